package engine

import "errors"

var (
	// ErrClosed is returned by any operation attempted on a closed engine.
	ErrClosed = errors.New("engine: closed")

	// ErrCorruptTable is returned on open when an on-disk SSTable's trailer
	// or index cannot be decoded.
	ErrCorruptTable = errors.New("engine: corrupt sstable on recovery")
)
