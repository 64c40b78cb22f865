// Package engine coordinates the write-ahead log, memtable, and SSTables
// into the single-writer key/value store: Put and Remove append to the
// log before touching the memtable, and Get checks the memtable before
// consulting SSTables from newest to oldest.
//
// There is exactly one writer goroutine's worth of serialization here —
// Put/Remove/flush all hold writeMu — matching the single-writer design:
// SSTables are produced only by a synchronous memtable flush, never by a
// background compaction pass.
package engine

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/mnohosten/lsmdb/pkg/compression"
	"github.com/mnohosten/lsmdb/pkg/encryption"
	"github.com/mnohosten/lsmdb/pkg/memtable"
	"github.com/mnohosten/lsmdb/pkg/skiplist"
	"github.com/mnohosten/lsmdb/pkg/sstable"
	"github.com/mnohosten/lsmdb/pkg/wal"
)

// Config holds the engine's tunables.
type Config struct {
	// Dir is the directory holding the WAL and SSTable files.
	Dir string
	// MemTableFlushThreshold is the estimated byte size at which a Put or
	// Remove triggers a synchronous flush of the memtable to a new SSTable.
	MemTableFlushThreshold int64
	// Compression selects the codec new SSTables compress values with.
	Compression compression.Algorithm
	// Encryption configures transparent at-rest encryption of the WAL and
	// SSTable files. Nil disables it.
	Encryption *encryption.Config
}

// DefaultConfig returns a Config with encryption and compression disabled
// and the standard 64MiB flush threshold.
func DefaultConfig(dir string) *Config {
	return &Config{
		Dir:                    dir,
		MemTableFlushThreshold: 64 * 1024 * 1024,
		Compression:            compression.AlgorithmNone,
	}
}

// state is the engine's atomically-swapped snapshot of everything a
// reader needs: the live memtable and the list of flushed SSTables,
// newest first. A Get reads one state via a single atomic load and then
// walks it without taking writeMu, so readers never block behind a
// writer that is mid-flush.
type state struct {
	mem    *memtable.MemTable
	tables []*sstable.Reader // newest to oldest
}

// Engine is the embeddable key/value store.
type Engine struct {
	dir    string
	cfg    Config
	codec  *compression.Codec
	wal    *wal.WAL
	nextID atomic.Int64

	writeMu sync.Mutex
	closed  atomic.Bool

	current atomic.Pointer[state]
}

const sstableGlob = "sstable_*.sst"

func sstablePath(dir string, id int64) string {
	return filepath.Join(dir, fmt.Sprintf("sstable_%010d.sst", id))
}

// Open recovers an engine rooted at cfg.Dir: it loads every existing
// SSTable (newest id first), replays the WAL into a fresh memtable, and
// leaves the log in place so a later flush truncates it once those
// records are durable in an SSTable.
func Open(cfg *Config) (*Engine, error) {
	if err := os.MkdirAll(cfg.Dir, 0755); err != nil {
		return nil, fmt.Errorf("engine: open: %w", err)
	}

	codec, err := compression.NewCodec(cfg.Compression)
	if err != nil {
		return nil, fmt.Errorf("engine: open: %w", err)
	}

	tables, nextID, err := loadSSTables(cfg.Dir, cfg.Encryption)
	if err != nil {
		return nil, err
	}

	log, err := wal.Open(cfg.Dir, cfg.Encryption)
	if err != nil {
		return nil, fmt.Errorf("engine: open: %w", err)
	}

	mem := memtable.New()
	records, err := log.Replay()
	if err != nil {
		return nil, fmt.Errorf("engine: open: replaying wal: %w", err)
	}
	for _, rec := range records {
		switch rec.Type {
		case wal.RecordPut:
			mem.Put(rec.Key, rec.Value)
		case wal.RecordDelete:
			mem.Delete(rec.Key)
		}
	}

	e := &Engine{dir: cfg.Dir, cfg: *cfg, codec: codec, wal: log}
	e.nextID.Store(nextID)
	e.current.Store(&state{mem: mem, tables: tables})
	return e, nil
}

func loadSSTables(dir string, encCfg *encryption.Config) ([]*sstable.Reader, int64, error) {
	matches, err := filepath.Glob(filepath.Join(dir, sstableGlob))
	if err != nil {
		return nil, 0, fmt.Errorf("engine: listing sstables: %w", err)
	}

	type idPath struct {
		id   int64
		path string
	}
	found := make([]idPath, 0, len(matches))
	var nextID int64
	for _, path := range matches {
		var id int64
		if _, err := fmt.Sscanf(filepath.Base(path), "sstable_%010d.sst", &id); err != nil {
			continue
		}
		found = append(found, idPath{id: id, path: path})
		if id >= nextID {
			nextID = id + 1
		}
	}

	sort.Slice(found, func(i, j int) bool { return found[i].id > found[j].id })

	tables := make([]*sstable.Reader, 0, len(found))
	for _, fp := range found {
		r, err := sstable.Open(fp.path, encCfg)
		if err != nil {
			return nil, 0, fmt.Errorf("%w: %s: %v", ErrCorruptTable, fp.path, err)
		}
		tables = append(tables, r)
	}
	return tables, nextID, nil
}

// Put durably writes key/value: the WAL record is appended and synced
// before the memtable is updated, and a flush is triggered synchronously
// if the memtable has crossed the configured threshold.
func (e *Engine) Put(key, val []byte) error {
	e.writeMu.Lock()
	defer e.writeMu.Unlock()

	if e.closed.Load() {
		return ErrClosed
	}
	if err := e.wal.AppendPut(key, val); err != nil {
		return err
	}
	if err := e.wal.Sync(); err != nil {
		return err
	}

	st := e.current.Load()
	st.mem.Put(key, val)

	if st.mem.ShouldFlush(e.cfg.MemTableFlushThreshold) {
		return e.flushLocked()
	}
	return nil
}

// Remove unconditionally appends a tombstone, whether or not the key is
// currently present: an older flushed SSTable may still hold it, and a
// missing tombstone there would let the old value resurface on Get.
func (e *Engine) Remove(key []byte) error {
	e.writeMu.Lock()
	defer e.writeMu.Unlock()

	if e.closed.Load() {
		return ErrClosed
	}
	if err := e.wal.AppendDelete(key); err != nil {
		return err
	}
	if err := e.wal.Sync(); err != nil {
		return err
	}

	st := e.current.Load()
	st.mem.Delete(key)

	if st.mem.ShouldFlush(e.cfg.MemTableFlushThreshold) {
		return e.flushLocked()
	}
	return nil
}

// Get looks up key in the memtable, then in SSTables from newest to
// oldest, stopping at the first table that mentions the key at all —
// including a tombstone, which short-circuits the search without
// consulting any older table.
func (e *Engine) Get(key []byte) ([]byte, bool, error) {
	if e.closed.Load() {
		return nil, false, ErrClosed
	}

	st := e.current.Load()

	switch res, val := st.mem.Lookup(key); res {
	case skiplist.Present:
		return val, true, nil
	case skiplist.Tombstone:
		return nil, false, nil
	}

	for _, t := range st.tables {
		res, val, err := t.Get(key)
		if err != nil {
			return nil, false, fmt.Errorf("engine: get: %w", err)
		}
		switch res {
		case sstable.Present:
			return val, true, nil
		case sstable.Tombstone:
			return nil, false, nil
		}
	}

	return nil, false, nil
}

// flushLocked builds a new SSTable from the current memtable and
// publishes a new state with an empty memtable and the new table
// prepended. Callers must hold writeMu. The WAL is truncated only after
// the SSTable is durably written, so a crash between those two steps
// just means Open will see records flush would have dropped and folds
// them harmlessly back into the recovered memtable.
func (e *Engine) flushLocked() error {
	st := e.current.Load()
	if st.mem.Len() == 0 {
		return nil
	}

	id := e.nextID.Add(1) - 1
	path := sstablePath(e.dir, id)

	entries := make([]sstable.Entry, 0, st.mem.Len())
	it := st.mem.Iterator()
	for it.Next() {
		key, val, deleted := it.Entry()
		entries = append(entries, sstable.Entry{Key: key, Value: val, Deleted: deleted})
	}

	if err := sstable.Create(path, entries, e.codec, e.cfg.Encryption); err != nil {
		return fmt.Errorf("engine: flush: %w", err)
	}
	reader, err := sstable.Open(path, e.cfg.Encryption)
	if err != nil {
		return fmt.Errorf("engine: flush: %w", err)
	}

	newTables := make([]*sstable.Reader, 0, len(st.tables)+1)
	newTables = append(newTables, reader)
	newTables = append(newTables, st.tables...)

	e.current.Store(&state{mem: memtable.New(), tables: newTables})

	if err := e.wal.Truncate(); err != nil {
		return fmt.Errorf("engine: flush: %w", err)
	}
	return nil
}

// Flush forces a synchronous flush of the current memtable even if it is
// below the configured threshold. A no-op on an empty memtable.
func (e *Engine) Flush() error {
	e.writeMu.Lock()
	defer e.writeMu.Unlock()
	if e.closed.Load() {
		return ErrClosed
	}
	return e.flushLocked()
}

// Close flushes any buffered writes and closes the WAL. Further calls to
// Put, Remove, Get, or Flush return ErrClosed.
func (e *Engine) Close() error {
	e.writeMu.Lock()
	defer e.writeMu.Unlock()
	if e.closed.Load() {
		return nil
	}
	if err := e.flushLocked(); err != nil {
		return err
	}
	e.closed.Store(true)
	return e.wal.Close()
}

// Stats reports a point-in-time snapshot of the engine's shape.
type Stats struct {
	MemTableEntries int
	MemTableBytes   int64
	NumSSTables     int
}

// Stats returns a snapshot of the current state.
func (e *Engine) Stats() Stats {
	st := e.current.Load()
	return Stats{
		MemTableEntries: st.mem.Len(),
		MemTableBytes:   st.mem.SizeBytes(),
		NumSSTables:     len(st.tables),
	}
}
