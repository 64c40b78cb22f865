// Package compression provides the optional per-value codec SSTables use
// for their data region.
package compression

import (
	"fmt"

	"github.com/klauspost/compress/snappy"
	"github.com/klauspost/compress/zstd"
)

// Algorithm identifies a value compression codec. The numeric values are
// part of the SSTable on-disk format (stored in the table's 1-byte codec
// header) and must never be renumbered.
type Algorithm uint8

const (
	// AlgorithmNone stores values uncompressed.
	AlgorithmNone Algorithm = 0
	// AlgorithmSnappy is fast, low-ratio compression.
	AlgorithmSnappy Algorithm = 1
	// AlgorithmZstd is slower, better-ratio compression.
	AlgorithmZstd Algorithm = 2
)

func (a Algorithm) String() string {
	switch a {
	case AlgorithmSnappy:
		return "snappy"
	case AlgorithmZstd:
		return "zstd"
	default:
		return "none"
	}
}

// ErrUnknownAlgorithm is returned when an SSTable's codec header holds a
// value this build doesn't recognize.
var ErrUnknownAlgorithm = fmt.Errorf("compression: unknown algorithm")

// Codec compresses and decompresses SSTable values.
type Codec struct {
	algo Algorithm
	enc  *zstd.Encoder
	dec  *zstd.Decoder
}

// NewCodec builds a Codec for algo. The returned Codec is safe for
// concurrent use by any number of SSTable readers; a writer uses its own
// codec instance for the lifetime of a single table build.
func NewCodec(algo Algorithm) (*Codec, error) {
	c := &Codec{algo: algo}
	if algo == AlgorithmZstd {
		enc, err := zstd.NewWriter(nil)
		if err != nil {
			return nil, fmt.Errorf("compression: %w", err)
		}
		dec, err := zstd.NewReader(nil)
		if err != nil {
			return nil, fmt.Errorf("compression: %w", err)
		}
		c.enc, c.dec = enc, dec
	}
	return c, nil
}

// Algorithm returns the codec's algorithm.
func (c *Codec) Algorithm() Algorithm { return c.algo }

// Compress returns the on-disk encoding of val.
func (c *Codec) Compress(val []byte) ([]byte, error) {
	switch c.algo {
	case AlgorithmNone:
		return val, nil
	case AlgorithmSnappy:
		return snappy.Encode(nil, val), nil
	case AlgorithmZstd:
		return c.enc.EncodeAll(val, nil), nil
	default:
		return nil, ErrUnknownAlgorithm
	}
}

// Decompress reverses Compress.
func (c *Codec) Decompress(data []byte) ([]byte, error) {
	switch c.algo {
	case AlgorithmNone:
		return data, nil
	case AlgorithmSnappy:
		out, err := snappy.Decode(nil, data)
		if err != nil {
			return nil, fmt.Errorf("compression: snappy: %w", err)
		}
		return out, nil
	case AlgorithmZstd:
		out, err := c.dec.DecodeAll(data, nil)
		if err != nil {
			return nil, fmt.Errorf("compression: zstd: %w", err)
		}
		return out, nil
	default:
		return nil, ErrUnknownAlgorithm
	}
}

// ForAlgorithm builds the Codec a reader needs to decode a table's stored
// codec id, validating that id is recognized.
func ForAlgorithm(id uint8) (*Codec, error) {
	switch Algorithm(id) {
	case AlgorithmNone, AlgorithmSnappy, AlgorithmZstd:
		return NewCodec(Algorithm(id))
	default:
		return nil, fmt.Errorf("compression: %w: %d", ErrUnknownAlgorithm, id)
	}
}
