package skiplist

import (
	"bytes"
	"fmt"
	"math/rand"
	"testing"
)

func TestInsertAndLookup(t *testing.T) {
	sl := New(WithSource(rand.NewSource(1)))

	keys := [][]byte{[]byte("apple"), []byte("banana"), []byte("cherry"), []byte("date")}
	for i, key := range keys {
		sl.InsertOrUpdate(key, []byte(fmt.Sprintf("v%d", i)))
	}

	for i, key := range keys {
		res, val := sl.Lookup(key)
		if res != Present {
			t.Fatalf("key %s: expected Present, got %v", key, res)
		}
		want := fmt.Sprintf("v%d", i)
		if string(val) != want {
			t.Fatalf("key %s: expected %s, got %s", key, want, val)
		}
	}

	if res, _ := sl.Lookup([]byte("fig")); res != NotFound {
		t.Fatalf("expected NotFound for absent key, got %v", res)
	}
}

func TestUpdateOverwritesInPlace(t *testing.T) {
	sl := New(WithSource(rand.NewSource(1)))
	key := []byte("k")

	sl.InsertOrUpdate(key, []byte("v1"))
	sl.InsertOrUpdate(key, []byte("v2"))

	if sl.Size() != 1 {
		t.Fatalf("expected size 1 after update, got %d", sl.Size())
	}
	if res, val := sl.Lookup(key); res != Present || string(val) != "v2" {
		t.Fatalf("expected Present(v2), got %v %q", res, val)
	}
}

func TestMarkDeletedOfPresentKey(t *testing.T) {
	sl := New(WithSource(rand.NewSource(1)))
	key := []byte("k")
	sl.InsertOrUpdate(key, []byte("v"))
	sl.MarkDeleted(key)

	if res, _ := sl.Lookup(key); res != Tombstone {
		t.Fatalf("expected Tombstone, got %v", res)
	}
	if sl.Size() != 1 {
		t.Fatalf("delete should retain the node, got size %d", sl.Size())
	}
}

func TestMarkDeletedOfAbsentKeyStillLinksTombstone(t *testing.T) {
	// Resolves spec Open Question 1: deleting a key this index has never
	// seen must still be visible as a tombstone, since it may shadow an
	// older on-disk value.
	sl := New(WithSource(rand.NewSource(1)))
	key := []byte("never-inserted")

	sl.MarkDeleted(key)

	res, _ := sl.Lookup(key)
	if res != Tombstone {
		t.Fatalf("expected Tombstone for delete-of-absent key, got %v", res)
	}
	if sl.Size() != 1 {
		t.Fatalf("expected a tombstone node to be linked, got size %d", sl.Size())
	}
}

func TestSortedOrder(t *testing.T) {
	sl := New(WithSource(rand.NewSource(7)))
	keys := []string{"zebra", "apple", "mango", "banana", "cherry"}
	for _, k := range keys {
		sl.InsertOrUpdate([]byte(k), []byte(k))
	}

	it := sl.NewIterator()
	var prev []byte
	count := 0
	for it.Next() {
		key, _, _ := it.Entry()
		if prev != nil && bytes.Compare(prev, key) >= 0 {
			t.Fatalf("keys not strictly ascending: %s >= %s", prev, key)
		}
		prev = key
		count++
	}
	if count != len(keys) {
		t.Fatalf("expected %d entries, iterated %d", len(keys), count)
	}
}

func TestIteratorSurfacesTombstones(t *testing.T) {
	sl := New(WithSource(rand.NewSource(1)))
	sl.InsertOrUpdate([]byte("a"), []byte("1"))
	sl.MarkDeleted([]byte("b"))

	var sawTombstone bool
	it := sl.NewIterator()
	for it.Next() {
		_, _, deleted := it.Entry()
		if deleted {
			sawTombstone = true
		}
	}
	if !sawTombstone {
		t.Fatal("iterator must surface tombstones so they can propagate into a flushed sstable")
	}
}

func TestSizeCountsTombstones(t *testing.T) {
	sl := New(WithSource(rand.NewSource(1)))
	for i := 0; i < 100; i++ {
		sl.InsertOrUpdate([]byte(fmt.Sprintf("key-%d", i)), []byte("v"))
	}
	for i := 0; i < 20; i++ {
		sl.MarkDeleted([]byte(fmt.Sprintf("key-%d", i)))
	}
	if sl.Size() != 100 {
		t.Fatalf("expected size 100 (tombstones retained), got %d", sl.Size())
	}
}

func TestEstimateBytesGrows(t *testing.T) {
	sl := New(WithSource(rand.NewSource(1)))
	before := sl.EstimateBytes()
	sl.InsertOrUpdate([]byte("key"), bytes.Repeat([]byte("v"), 1000))
	after := sl.EstimateBytes()
	if after <= before+1000 {
		t.Fatalf("expected estimate to grow by at least the value size, before=%d after=%d", before, after)
	}
}

func TestEmpty(t *testing.T) {
	sl := New()
	if res, _ := sl.Lookup([]byte("any")); res != NotFound {
		t.Fatalf("expected NotFound on empty list, got %v", res)
	}
	if sl.Size() != 0 {
		t.Fatal("expected size 0")
	}
}
