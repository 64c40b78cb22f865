// Package wal implements the engine's write-ahead log: an append-only,
// crash-tolerant record stream that is replayed to reconstruct the
// memtable after a restart.
package wal

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/mnohosten/lsmdb/pkg/encryption"
)

// RecordType distinguishes a durable put from a durable delete.
type RecordType uint8

const (
	// RecordPut carries a key and a value.
	RecordPut RecordType = 1
	// RecordDelete carries a key; its value is always zero-length.
	RecordDelete RecordType = 2
)

// Record is one decoded WAL entry, in file order.
type Record struct {
	Type  RecordType
	Key   []byte
	Value []byte
}

// WAL is the append-only log at <dir>/wal.log.
type WAL struct {
	path string
	file *os.File
	mu   sync.Mutex

	encCfg    *encryption.Config
	iv        []byte
	writeOnce *encryption.Stream

	sizeBytes atomic.Int64
}

const fileName = "wal.log"

// Open opens (creating if absent) the WAL file at dir/wal.log. cfg may be
// nil, meaning encryption is disabled.
func Open(dir string, cfg *encryption.Config) (*WAL, error) {
	if cfg == nil {
		cfg = encryption.DefaultConfig()
	}
	path := filepath.Join(dir, fileName)

	file, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("wal: open: %w", err)
	}

	stat, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("wal: stat: %w", err)
	}

	w := &WAL{path: path, file: file, encCfg: cfg}

	if cfg.Algorithm == encryption.AlgorithmNone {
		w.sizeBytes.Store(stat.Size())
		return w, nil
	}

	if stat.Size() == 0 {
		stream, iv, err := encryption.NewStream(cfg)
		if err != nil {
			file.Close()
			return nil, err
		}
		if _, err := file.Write(iv); err != nil {
			file.Close()
			return nil, fmt.Errorf("wal: writing iv header: %w", err)
		}
		w.iv, w.writeOnce = iv, stream
		w.sizeBytes.Store(0)
		return w, nil
	}

	iv := make([]byte, encryption.IVSize)
	if _, err := file.ReadAt(iv, 0); err != nil {
		file.Close()
		return nil, fmt.Errorf("wal: reading iv header: %w", err)
	}
	plainSize := stat.Size() - int64(encryption.IVSize)
	stream, err := encryption.OpenStream(cfg, iv, plainSize)
	if err != nil {
		file.Close()
		return nil, err
	}
	w.iv, w.writeOnce = iv, stream
	w.sizeBytes.Store(plainSize)
	return w, nil
}

func encodeRecord(typ RecordType, key, val []byte) []byte {
	buf := make([]byte, 1+4+len(key)+4+len(val))
	buf[0] = byte(typ)
	binary.LittleEndian.PutUint32(buf[1:5], uint32(len(key)))
	copy(buf[5:], key)
	off := 5 + len(key)
	binary.LittleEndian.PutUint32(buf[off:off+4], uint32(len(val)))
	copy(buf[off+4:], val)
	return buf
}

// AppendPut writes a PUT record. It does not sync to stable storage.
func (w *WAL) AppendPut(key, val []byte) error {
	return w.append(encodeRecord(RecordPut, key, val))
}

// AppendDelete writes a DELETE record (zero-length value). It does not
// sync to stable storage.
func (w *WAL) AppendDelete(key []byte) error {
	return w.append(encodeRecord(RecordDelete, key, nil))
}

func (w *WAL) append(plain []byte) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	out := plain
	if w.writeOnce != nil {
		out = make([]byte, len(plain))
		w.writeOnce.XORKeyStream(out, plain)
	}
	if _, err := w.file.Write(out); err != nil {
		return fmt.Errorf("wal: append: %w", err)
	}
	w.sizeBytes.Add(int64(len(plain)))
	return nil
}

// Sync flushes buffered writes to the OS and requests the OS flush them to
// stable media before returning.
func (w *WAL) Sync() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.file.Sync(); err != nil {
		return fmt.Errorf("wal: sync: %w", err)
	}
	return nil
}

// Replay decodes every complete record in file order. A short read inside
// a record — the signature of a crash mid-append — stops decoding and
// discards the trailing partial record silently; everything decoded before
// that point is returned.
func (w *WAL) Replay() ([]Record, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	r, err := os.Open(w.path)
	if err != nil {
		return nil, fmt.Errorf("wal: replay: %w", err)
	}
	defer r.Close()

	var src io.Reader = r
	if w.encCfg.Algorithm != encryption.AlgorithmNone {
		if _, err := r.Seek(int64(encryption.IVSize), io.SeekStart); err != nil {
			return nil, fmt.Errorf("wal: replay: %w", err)
		}
		stream, err := encryption.OpenStream(w.encCfg, w.iv, 0)
		if err != nil {
			return nil, err
		}
		src = &decryptReader{r: r, stream: stream}
	}

	var records []Record
	typeBuf := make([]byte, 1)
	for {
		if _, err := io.ReadFull(src, typeBuf); err != nil {
			break
		}
		typ := RecordType(typeBuf[0])

		key, ok := readLengthPrefixed(src)
		if !ok {
			break
		}
		val, ok := readLengthPrefixed(src)
		if !ok {
			break
		}
		records = append(records, Record{Type: typ, Key: key, Value: val})
	}
	return records, nil
}

// readLengthPrefixed reads a 4-byte little-endian length followed by that
// many bytes. ok is false on any short read, signalling a truncated
// trailing record that the caller must discard.
func readLengthPrefixed(r io.Reader) (data []byte, ok bool) {
	lenBuf := make([]byte, 4)
	if _, err := io.ReadFull(r, lenBuf); err != nil {
		return nil, false
	}
	n := binary.LittleEndian.Uint32(lenBuf)
	if n == 0 {
		return nil, true
	}
	data = make([]byte, n)
	if _, err := io.ReadFull(r, data); err != nil {
		return nil, false
	}
	return data, true
}

// decryptReader streams ciphertext through the keystream a record at a
// time, which is sufficient here since Replay never seeks backward.
type decryptReader struct {
	r      io.Reader
	stream *encryption.Stream
}

func (d *decryptReader) Read(p []byte) (int, error) {
	n, err := d.r.Read(p)
	if n > 0 {
		d.stream.XORKeyStream(p[:n], p[:n])
	}
	return n, err
}

// Truncate closes, deletes, and reopens the WAL file empty, resetting the
// byte counter. Called by the engine after a successful SSTable flush.
func (w *WAL) Truncate() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.file.Close(); err != nil {
		return fmt.Errorf("wal: truncate: closing: %w", err)
	}
	if err := os.Remove(w.path); err != nil {
		return fmt.Errorf("wal: truncate: removing: %w", err)
	}
	file, err := os.OpenFile(w.path, os.O_CREATE|os.O_RDWR|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("wal: truncate: reopening: %w", err)
	}
	w.file = file
	w.sizeBytes.Store(0)
	w.writeOnce = nil
	w.iv = nil

	if w.encCfg.Algorithm != encryption.AlgorithmNone {
		stream, iv, err := encryption.NewStream(w.encCfg)
		if err != nil {
			return err
		}
		if _, err := w.file.Write(iv); err != nil {
			return fmt.Errorf("wal: truncate: writing iv header: %w", err)
		}
		w.iv, w.writeOnce = iv, stream
	}
	return nil
}

// SizeBytes returns the number of plaintext record bytes appended since
// the last truncate.
func (w *WAL) SizeBytes() int64 {
	return w.sizeBytes.Load()
}

// Close syncs and closes the underlying file.
func (w *WAL) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.file.Sync(); err != nil {
		return fmt.Errorf("wal: close: %w", err)
	}
	if err := w.file.Close(); err != nil {
		return fmt.Errorf("wal: close: %w", err)
	}
	return nil
}
