package sstable

import "errors"

// ErrCorrupt wraps any failure to decode a table's trailer or index on
// open. There are no checksums in this format, so corruption within the
// data region itself is only ever caught at point of read, not at open.
var ErrCorrupt = errors.New("sstable: corrupt table")
