// Package sstable implements the immutable, sorted on-disk table produced
// by a memtable flush: a data region in ascending key order, a trailing
// index, and a builder/reader pair over that layout.
package sstable

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/mnohosten/lsmdb/pkg/compression"
	"github.com/mnohosten/lsmdb/pkg/encryption"
)

// Entry is one (key, value-or-tombstone) pair to flush into a table.
type Entry struct {
	Key     []byte
	Value   []byte
	Deleted bool
}

// trailerFixedSize is the 8-byte index offset plus the 4-byte entry count
// that sit at the very end of every table, after the index region.
const trailerFixedSize = 8 + 4

type indexEntry struct {
	key    []byte
	offset int64
}

// Create writes a new immutable SSTable at path from entries, which need
// not already be sorted. When encCfg enables encryption, a cleartext IV
// header precedes the (now ciphertext) codec byte, data region, index
// region, and trailer — mirroring pkg/wal's IV-header-plus-keystream
// layout. Any I/O error aborts with the partial file left behind; the
// caller treats the table as absent and retries on the next flush with a
// new id.
func Create(path string, entries []Entry, codec *compression.Codec, encCfg *encryption.Config) error {
	if codec == nil {
		var err error
		codec, err = compression.NewCodec(compression.AlgorithmNone)
		if err != nil {
			return err
		}
	}

	sorted := make([]Entry, len(entries))
	copy(sorted, entries)
	sort.Slice(sorted, func(i, j int) bool { return bytes.Compare(sorted[i].Key, sorted[j].Key) < 0 })

	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_EXCL, 0644)
	if err != nil {
		return fmt.Errorf("sstable: create: %w", err)
	}
	defer file.Close()

	stream, iv, err := encryption.NewStream(encCfg)
	if err != nil {
		return fmt.Errorf("sstable: building keystream: %w", err)
	}
	if iv != nil {
		if _, err := file.Write(iv); err != nil {
			return fmt.Errorf("sstable: writing iv header: %w", err)
		}
	}
	w := &encryptingWriter{file: file, stream: stream}

	if _, err := w.Write([]byte{byte(codec.Algorithm())}); err != nil {
		return fmt.Errorf("sstable: writing codec header: %w", err)
	}

	var offset int64 = 1 // past the codec header byte
	index := make([]indexEntry, 0, len(sorted))

	for _, e := range sorted {
		val := e.Value
		if !e.Deleted {
			val, err = codec.Compress(val)
			if err != nil {
				return fmt.Errorf("sstable: compressing value: %w", err)
			}
		}

		index = append(index, indexEntry{key: e.Key, offset: offset})

		n, err := writeDataEntry(w, e.Key, val, e.Deleted)
		if err != nil {
			return fmt.Errorf("sstable: writing entry: %w", err)
		}
		offset += int64(n)
	}

	indexStart := offset
	for _, ie := range index {
		n, err := writeIndexEntry(w, ie.key, ie.offset)
		if err != nil {
			return fmt.Errorf("sstable: writing index: %w", err)
		}
		offset += int64(n)
	}

	trailer := make([]byte, trailerFixedSize)
	binary.LittleEndian.PutUint64(trailer[0:8], uint64(indexStart))
	binary.LittleEndian.PutUint32(trailer[8:12], uint32(len(index)))
	if _, err := w.Write(trailer); err != nil {
		return fmt.Errorf("sstable: writing trailer: %w", err)
	}

	if err := file.Sync(); err != nil {
		return fmt.Errorf("sstable: sync: %w", err)
	}
	return nil
}

// encryptingWriter XORs every write through stream (in plaintext-offset
// order) before it reaches file. A nil stream is a transparent passthrough,
// so Create doesn't need to branch on whether encryption is enabled.
type encryptingWriter struct {
	file   *os.File
	stream *encryption.Stream
}

func (w *encryptingWriter) Write(p []byte) (int, error) {
	if w.stream == nil {
		return w.file.Write(p)
	}
	out := make([]byte, len(p))
	w.stream.XORKeyStream(out, p)
	return w.file.Write(out)
}

func writeDataEntry(w io.Writer, key, val []byte, deleted bool) (int, error) {
	buf := make([]byte, 1+4+len(key)+4+len(val))
	if deleted {
		buf[0] = 1
	}
	binary.LittleEndian.PutUint32(buf[1:5], uint32(len(key)))
	copy(buf[5:], key)
	off := 5 + len(key)
	binary.LittleEndian.PutUint32(buf[off:off+4], uint32(len(val)))
	copy(buf[off+4:], val)
	return w.Write(buf)
}

func writeIndexEntry(w io.Writer, key []byte, offset int64) (int, error) {
	buf := make([]byte, 4+len(key)+8)
	binary.LittleEndian.PutUint32(buf[0:4], uint32(len(key)))
	copy(buf[4:], key)
	binary.LittleEndian.PutUint64(buf[4+len(key):], uint64(offset))
	return w.Write(buf)
}

// Reader is an open, immutable SSTable. Its index lives in memory for the
// reader's lifetime; every lookup opens a fresh file handle to read the
// data region, so any number of readers may share one Reader concurrently.
type Reader struct {
	path        string
	index       []indexEntry
	codec       *compression.Codec
	encCfg      *encryption.Config
	iv          []byte
	ivHeaderLen int64
}

// readPlain reads the plaintext-offset range [plainOff, plainOff+len(buf))
// from file, decrypting it in place if the table is encrypted. CTR mode's
// counter arithmetic makes this an O(1) seek regardless of plainOff.
func (r *Reader) readPlain(file *os.File, buf []byte, plainOff int64) error {
	if _, err := file.ReadAt(buf, plainOff+r.ivHeaderLen); err != nil {
		return err
	}
	if r.iv == nil {
		return nil
	}
	stream, err := encryption.OpenStream(r.encCfg, r.iv, plainOff)
	if err != nil {
		return err
	}
	stream.XORKeyStream(buf, buf)
	return nil
}

// plainReaderAt seeks file to the ciphertext byte backing plaintext offset
// plainOff and returns a reader that decrypts on the fly as the caller
// reads forward — used for the variable-length data-entry decode, where
// the number of bytes to read isn't known until partway through decoding.
func (r *Reader) plainReaderAt(file *os.File, plainOff int64) (io.Reader, error) {
	if _, err := file.Seek(plainOff+r.ivHeaderLen, io.SeekStart); err != nil {
		return nil, err
	}
	if r.iv == nil {
		return file, nil
	}
	stream, err := encryption.OpenStream(r.encCfg, r.iv, plainOff)
	if err != nil {
		return nil, err
	}
	return &decryptingReader{r: file, stream: stream}, nil
}

// decryptingReader streams ciphertext through a keystream already seeked
// to the right counter block, decrypting each Read in place.
type decryptingReader struct {
	r      io.Reader
	stream *encryption.Stream
}

func (d *decryptingReader) Read(p []byte) (int, error) {
	n, err := d.r.Read(p)
	if n > 0 {
		d.stream.XORKeyStream(p[:n], p[:n])
	}
	return n, err
}

// Open loads path's index into memory and returns a Reader. encCfg must
// match whatever config the table was created with (nil/AlgorithmNone for
// a plaintext table). It returns ErrCorrupt if the trailer or index
// cannot be decoded.
func Open(path string, encCfg *encryption.Config) (*Reader, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("sstable: open: %w", err)
	}
	defer file.Close()

	stat, err := file.Stat()
	if err != nil {
		return nil, fmt.Errorf("sstable: stat: %w", err)
	}

	r := &Reader{path: path, encCfg: encCfg}
	fileSize := stat.Size()
	if encCfg != nil && encCfg.Algorithm != encryption.AlgorithmNone {
		iv := make([]byte, encryption.IVSize)
		if _, err := file.ReadAt(iv, 0); err != nil {
			return nil, fmt.Errorf("%w: %s: reading iv header: %v", ErrCorrupt, path, err)
		}
		r.iv = iv
		r.ivHeaderLen = encryption.IVSize
	}
	size := fileSize - r.ivHeaderLen

	if size < 1+trailerFixedSize {
		return nil, fmt.Errorf("%w: %s: file too small", ErrCorrupt, path)
	}

	trailer := make([]byte, trailerFixedSize)
	if err := r.readPlain(file, trailer, size-trailerFixedSize); err != nil {
		return nil, fmt.Errorf("%w: %s: reading trailer: %v", ErrCorrupt, path, err)
	}
	indexStart := int64(binary.LittleEndian.Uint64(trailer[0:8]))
	count := binary.LittleEndian.Uint32(trailer[8:12])

	if indexStart < 1 || indexStart > size-trailerFixedSize {
		return nil, fmt.Errorf("%w: %s: index offset out of range", ErrCorrupt, path)
	}

	indexBytes := make([]byte, size-trailerFixedSize-indexStart)
	if err := r.readPlain(file, indexBytes, indexStart); err != nil {
		return nil, fmt.Errorf("%w: %s: reading index region: %v", ErrCorrupt, path, err)
	}

	index := make([]indexEntry, 0, count)
	ir := bytes.NewReader(indexBytes)
	for i := uint32(0); i < count; i++ {
		var keyLen uint32
		if err := binary.Read(ir, binary.LittleEndian, &keyLen); err != nil {
			return nil, fmt.Errorf("%w: %s: decoding index entry %d: %v", ErrCorrupt, path, i, err)
		}
		key := make([]byte, keyLen)
		if _, err := io.ReadFull(ir, key); err != nil {
			return nil, fmt.Errorf("%w: %s: decoding index key %d: %v", ErrCorrupt, path, i, err)
		}
		var off uint64
		if err := binary.Read(ir, binary.LittleEndian, &off); err != nil {
			return nil, fmt.Errorf("%w: %s: decoding index offset %d: %v", ErrCorrupt, path, i, err)
		}
		index = append(index, indexEntry{key: key, offset: int64(off)})
	}
	r.index = index

	var codecHeader [1]byte
	if err := r.readPlain(file, codecHeader[:], 0); err != nil {
		return nil, fmt.Errorf("%w: %s: reading codec header: %v", ErrCorrupt, path, err)
	}
	codec, err := compression.ForAlgorithm(codecHeader[0])
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrCorrupt, path, err)
	}
	r.codec = codec

	return r, nil
}

// LookupResult mirrors skiplist.LookupResult for a table's answer to Get.
type LookupResult int

const (
	// NotFound means this table has no entry for the key at all.
	NotFound LookupResult = iota
	// Present means the table holds a live value for the key.
	Present
	// Tombstone means the table records an explicit deletion of the key.
	Tombstone
)

// Get performs a binary-search lookup followed by a single seek-and-decode
// of the matching data entry.
func (r *Reader) Get(key []byte) (LookupResult, []byte, error) {
	i := sort.Search(len(r.index), func(i int) bool { return bytes.Compare(r.index[i].key, key) >= 0 })
	if i >= len(r.index) || !bytes.Equal(r.index[i].key, key) {
		return NotFound, nil, nil
	}

	file, err := os.Open(r.path)
	if err != nil {
		return NotFound, nil, fmt.Errorf("sstable: get: %w", err)
	}
	defer file.Close()

	src, err := r.plainReaderAt(file, r.index[i].offset)
	if err != nil {
		return NotFound, nil, fmt.Errorf("sstable: get: %w", err)
	}
	deleted, _, val, err := readDataEntry(src)
	if err != nil {
		return NotFound, nil, fmt.Errorf("sstable: get: %w", err)
	}
	if deleted {
		return Tombstone, nil, nil
	}
	val, err = r.codec.Decompress(val)
	if err != nil {
		return NotFound, nil, fmt.Errorf("sstable: get: %w", err)
	}
	return Present, val, nil
}

func readDataEntry(r io.Reader) (deleted bool, key, val []byte, err error) {
	var header [1]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return false, nil, nil, err
	}
	deleted = header[0] != 0

	var keyLen uint32
	if err := binary.Read(r, binary.LittleEndian, &keyLen); err != nil {
		return false, nil, nil, err
	}
	key = make([]byte, keyLen)
	if _, err := io.ReadFull(r, key); err != nil {
		return false, nil, nil, err
	}

	var valLen uint32
	if err := binary.Read(r, binary.LittleEndian, &valLen); err != nil {
		return false, nil, nil, err
	}
	val = make([]byte, valLen)
	if _, err := io.ReadFull(r, val); err != nil {
		return false, nil, nil, err
	}
	return deleted, key, val, nil
}

// ReadAll decodes the entire data region in index order, decompressing
// live values. Used by tests and by any future compaction path.
func (r *Reader) ReadAll() ([]Entry, error) {
	file, err := os.Open(r.path)
	if err != nil {
		return nil, fmt.Errorf("sstable: readall: %w", err)
	}
	defer file.Close()

	entries := make([]Entry, 0, len(r.index))
	for _, ie := range r.index {
		src, err := r.plainReaderAt(file, ie.offset)
		if err != nil {
			return nil, fmt.Errorf("sstable: readall: %w", err)
		}
		deleted, key, val, err := readDataEntry(src)
		if err != nil {
			return nil, fmt.Errorf("sstable: readall: %w", err)
		}
		if !deleted {
			val, err = r.codec.Decompress(val)
			if err != nil {
				return nil, fmt.Errorf("sstable: readall: %w", err)
			}
		}
		entries = append(entries, Entry{Key: key, Value: val, Deleted: deleted})
	}
	return entries, nil
}

// Path returns the table's file path.
func (r *Reader) Path() string { return r.path }

// Len returns the number of entries indexed.
func (r *Reader) Len() int { return len(r.index) }
