package engine

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func openTest(t *testing.T, dir string) *Engine {
	t.Helper()
	cfg := DefaultConfig(dir)
	cfg.MemTableFlushThreshold = 1 << 20
	e, err := Open(cfg)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	return e
}

func mustGet(t *testing.T, e *Engine, key string) string {
	t.Helper()
	val, ok, err := e.Get([]byte(key))
	if err != nil {
		t.Fatalf("Get(%q): %v", key, err)
	}
	if !ok {
		t.Fatalf("Get(%q): expected present, got absent", key)
	}
	return string(val)
}

func mustAbsent(t *testing.T, e *Engine, key string) {
	t.Helper()
	_, ok, err := e.Get([]byte(key))
	if err != nil {
		t.Fatalf("Get(%q): %v", key, err)
	}
	if ok {
		t.Fatalf("Get(%q): expected absent", key)
	}
}

// Seed scenario 1.
func TestSeedBasicPutGet(t *testing.T) {
	e := openTest(t, t.TempDir())
	defer e.Close()

	e.Put([]byte("k1"), []byte("v1"))
	e.Put([]byte("k2"), []byte("v2"))
	e.Put([]byte("k3"), []byte("v3"))

	if got := mustGet(t, e, "k1"); got != "v1" {
		t.Fatalf("k1 = %q", got)
	}
	if got := mustGet(t, e, "k2"); got != "v2" {
		t.Fatalf("k2 = %q", got)
	}
	if got := mustGet(t, e, "k3"); got != "v3" {
		t.Fatalf("k3 = %q", got)
	}
	mustAbsent(t, e, "nope")
}

// Seed scenario 2 / P2 last-writer-wins.
func TestSeedLastWriterWins(t *testing.T) {
	e := openTest(t, t.TempDir())
	defer e.Close()

	e.Put([]byte("k"), []byte("a"))
	e.Put([]byte("k"), []byte("b"))
	e.Put([]byte("k"), []byte("c"))

	if got := mustGet(t, e, "k"); got != "c" {
		t.Fatalf("k = %q, want c", got)
	}
}

// Seed scenario 3 / P3 tombstone authority, including delete of an absent key.
func TestSeedRemoveAndAbsentRemove(t *testing.T) {
	e := openTest(t, t.TempDir())
	defer e.Close()

	e.Put([]byte("k1"), []byte("v1"))
	e.Put([]byte("k2"), []byte("v2"))
	e.Remove([]byte("k1"))
	e.Remove([]byte("missing"))

	mustAbsent(t, e, "k1")
	if got := mustGet(t, e, "k2"); got != "v2" {
		t.Fatalf("k2 = %q, want v2", got)
	}
}

// Seed scenario 4: recovery across close/reopen.
func TestSeedRecoveryAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	e := openTest(t, dir)

	e.Put([]byte("p1"), []byte("v1"))
	e.Put([]byte("p2"), []byte("v2"))
	e.Put([]byte("p3"), []byte("v3"))
	e.Remove([]byte("p2"))

	if err := e.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	e2 := openTest(t, dir)
	defer e2.Close()

	if got := mustGet(t, e2, "p1"); got != "v1" {
		t.Fatalf("p1 = %q, want v1", got)
	}
	mustAbsent(t, e2, "p2")
	if got := mustGet(t, e2, "p3"); got != "v3" {
		t.Fatalf("p3 = %q, want v3", got)
	}
}

// Seed scenario 5: large payloads.
func TestSeedLargePayload(t *testing.T) {
	e := openTest(t, t.TempDir())
	defer e.Close()

	key := strings.Repeat("k", 1000)
	val := strings.Repeat("v", 10000)
	e.Put([]byte(key), []byte(val))

	if got := mustGet(t, e, key); got != val {
		t.Fatalf("got value of length %d, want %d", len(got), len(val))
	}
}

// Seed scenario 6: scale, with a flush threshold low enough to force
// several real SSTable flushes mid-run, plus a close/reopen repeat.
func TestSeedScaleWithFlushesAndRecovery(t *testing.T) {
	dir := t.TempDir()
	cfg := DefaultConfig(dir)
	cfg.MemTableFlushThreshold = 2048
	e, err := Open(cfg)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	for i := 0; i < 1000; i++ {
		k := fmt.Sprintf("key%d", i)
		v := fmt.Sprintf("value%d", i)
		if err := e.Put([]byte(k), []byte(v)); err != nil {
			t.Fatalf("Put(%s): %v", k, err)
		}
	}
	for i := 0; i < 1000; i++ {
		k := fmt.Sprintf("key%d", i)
		want := fmt.Sprintf("value%d", i)
		if got := mustGet(t, e, k); got != want {
			t.Fatalf("%s = %q, want %q", k, got, want)
		}
	}

	for i := 0; i < 500; i++ {
		if err := e.Remove([]byte(fmt.Sprintf("key%d", i))); err != nil {
			t.Fatalf("Remove: %v", err)
		}
	}
	for i := 0; i < 500; i++ {
		mustAbsent(t, e, fmt.Sprintf("key%d", i))
	}
	for i := 500; i < 1000; i++ {
		k := fmt.Sprintf("key%d", i)
		want := fmt.Sprintf("value%d", i)
		if got := mustGet(t, e, k); got != want {
			t.Fatalf("%s = %q, want %q", k, got, want)
		}
	}

	if err := e.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	e2, err := Open(cfg)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer e2.Close()

	for i := 0; i < 500; i++ {
		mustAbsent(t, e2, fmt.Sprintf("key%d", i))
	}
	for i := 500; i < 1000; i++ {
		k := fmt.Sprintf("key%d", i)
		want := fmt.Sprintf("value%d", i)
		if got := mustGet(t, e2, k); got != want {
			t.Fatalf("%s = %q, want %q", k, got, want)
		}
	}

	if e2.Stats().NumSSTables == 0 {
		t.Fatal("expected the scale run to have produced at least one sstable")
	}
}

// P5: flush transparency — the value observed through Get does not change
// because a flush happened in between.
func TestFlushTransparency(t *testing.T) {
	e := openTest(t, t.TempDir())
	defer e.Close()

	e.Put([]byte("a"), []byte("1"))
	if err := e.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	e.Put([]byte("b"), []byte("2"))

	if got := mustGet(t, e, "a"); got != "1" {
		t.Fatalf("a = %q", got)
	}
	if got := mustGet(t, e, "b"); got != "2" {
		t.Fatalf("b = %q", got)
	}

	e.Remove([]byte("a"))
	if err := e.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	mustAbsent(t, e, "a")
}

// P6: SSTable immutability — the file produced by a flush never changes
// afterward, even as later writes and flushes occur.
func TestSSTableImmutableAfterFlush(t *testing.T) {
	dir := t.TempDir()
	e := openTest(t, dir)
	defer e.Close()

	e.Put([]byte("x"), []byte("1"))
	if err := e.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}

	matches, err := filepath.Glob(filepath.Join(dir, sstableGlob))
	if err != nil || len(matches) != 1 {
		t.Fatalf("expected exactly one sstable after first flush, got %v (err %v)", matches, err)
	}
	before, err := os.ReadFile(matches[0])
	if err != nil {
		t.Fatalf("reading sstable: %v", err)
	}

	e.Put([]byte("y"), []byte("2"))
	if err := e.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}

	after, err := os.ReadFile(matches[0])
	if err != nil {
		t.Fatalf("re-reading first sstable: %v", err)
	}
	if string(before) != string(after) {
		t.Fatal("the first sstable's bytes changed after a later flush")
	}
}

// P7: SSTable ordering — every data region is strictly ascending by key.
// Exercised indirectly: out-of-order inserts still resolve correctly after
// a flush forces them through the sorted builder.
func TestOutOfOrderInsertsResolveCorrectlyAfterFlush(t *testing.T) {
	e := openTest(t, t.TempDir())
	defer e.Close()

	keys := []string{"zebra", "apple", "mango", "banana"}
	for _, k := range keys {
		e.Put([]byte(k), []byte(k+"-value"))
	}
	if err := e.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	for _, k := range keys {
		if got := mustGet(t, e, k); got != k+"-value" {
			t.Fatalf("%s = %q", k, got)
		}
	}
}

func TestClosedEngineRejectsOperations(t *testing.T) {
	dir := t.TempDir()
	e := openTest(t, dir)
	if err := e.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	if err := e.Put([]byte("a"), []byte("1")); err != ErrClosed {
		t.Fatalf("Put after close: got %v, want ErrClosed", err)
	}
	if _, _, err := e.Get([]byte("a")); err != ErrClosed {
		t.Fatalf("Get after close: got %v, want ErrClosed", err)
	}
	if err := e.Remove([]byte("a")); err != ErrClosed {
		t.Fatalf("Remove after close: got %v, want ErrClosed", err)
	}

	// Closing twice must be a harmless no-op.
	if err := e.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
}
