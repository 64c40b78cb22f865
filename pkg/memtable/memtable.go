// Package memtable wraps the skip list ordered index with the atomic
// memory-usage estimate and flush-readiness predicate the engine needs.
package memtable

import (
	"sync/atomic"

	"github.com/mnohosten/lsmdb/pkg/skiplist"
)

// MemTable is the engine's in-memory write buffer.
type MemTable struct {
	index     *skiplist.SkipList
	sizeBytes atomic.Int64
}

// New creates an empty memtable.
func New(opts ...skiplist.Option) *MemTable {
	return &MemTable{index: skiplist.New(opts...)}
}

// Put inserts or updates key/value and refreshes the size estimate.
func (mt *MemTable) Put(key, val []byte) {
	mt.index.InsertOrUpdate(key, val)
	mt.sizeBytes.Store(mt.index.EstimateBytes())
}

// Delete tombstones key and refreshes the size estimate.
func (mt *MemTable) Delete(key []byte) {
	mt.index.MarkDeleted(key)
	mt.sizeBytes.Store(mt.index.EstimateBytes())
}

// Lookup returns the logical state of key in this memtable.
func (mt *MemTable) Lookup(key []byte) (skiplist.LookupResult, []byte) {
	return mt.index.Lookup(key)
}

// SizeBytes returns the cached memory-usage estimate.
func (mt *MemTable) SizeBytes() int64 {
	return mt.sizeBytes.Load()
}

// ShouldFlush reports whether the memtable has crossed threshold bytes.
func (mt *MemTable) ShouldFlush(threshold int64) bool {
	return mt.SizeBytes() >= threshold
}

// Len returns the number of keys held, including tombstones.
func (mt *MemTable) Len() int {
	return mt.index.Size()
}

// Iterator walks entries in ascending key order, tombstones included, for
// the flush path to snapshot.
func (mt *MemTable) Iterator() *skiplist.Iterator {
	return mt.index.NewIterator()
}
