// Copyright 2020 Cosmos Nicolaou. All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

// Package store provides a reference blockproc.BlockWriter and
// blockproc.FragmentTable implementation: it packs blocks into an
// io.WriterAt at a monotonically advancing cursor, maintains a
// whole-block dedup index confirmed by a payload compare, pads to a
// device block size when requested, and serializes a fragment entry
// table. It is illustrative packaging for the demo CLI and tests, not
// a SquashFS format implementation; see SPEC_FULL.md §3.
package store

import (
	"bytes"
	"fmt"
	"io"
	"sync"

	"github.com/kestrelfs/blockproc"
)

type dedupKey struct {
	checksum     uint32
	size         int
	isCompressed bool
}

type dedupCandidate struct {
	offset  int64
	written int
	payload []byte
}

// Writer implements blockproc.BlockWriter against an io.WriterAt.
// Grounded on the cursor/blockWriter bookkeeping of
// MJKWoolnough-squashfs's builder.go, generalized from that package's
// fixed gzip/lzma pipeline to the capability-based compressor this
// module's Processor already applies before handing blocks to Write.
type Writer struct {
	mu           sync.Mutex
	w            io.WriterAt
	devBlockSize int
	cursor       int64
	index        map[dedupKey][]dedupCandidate
}

// New creates a Writer appending to w. devBlockSize must be positive;
// it is the alignment unit honored when a block carries blockproc.Align.
func New(w io.WriterAt, devBlockSize int) *Writer {
	return &Writer{
		w:            w,
		devBlockSize: devBlockSize,
		index:        make(map[dedupKey][]dedupCandidate),
	}
}

// Write implements blockproc.BlockWriter.
func (w *Writer) Write(checksum uint32, buffer []byte, flags blockproc.Flags) (int64, int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	offset := w.cursor
	if len(buffer) > 0 {
		n, err := w.w.WriteAt(buffer, offset)
		if err != nil {
			return 0, 0, err
		}
		w.cursor += int64(n)
	}
	written := len(buffer)

	if flags.Has(blockproc.Align) && w.devBlockSize > 0 {
		if rem := w.cursor % int64(w.devBlockSize); rem != 0 {
			pad := int64(w.devBlockSize) - rem
			if _, err := w.w.WriteAt(make([]byte, pad), w.cursor); err != nil {
				return 0, 0, err
			}
			w.cursor += pad
		}
	}

	cp := make([]byte, len(buffer))
	copy(cp, buffer)
	key := dedupKey{checksum: checksum, size: len(buffer), isCompressed: flags.Has(blockproc.IsCompressed)}
	w.index[key] = append(w.index[key], dedupCandidate{offset: offset, written: written, payload: cp})

	return offset, written, nil
}

// appendRaw writes buf at the current cursor and advances it, for use
// by a FragmentTable sharing this Writer's output file.
func (w *Writer) appendRaw(buf []byte) (int64, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	start := w.cursor
	n, err := w.w.WriteAt(buf, start)
	if err != nil {
		return 0, err
	}
	w.cursor += int64(n)
	return start, nil
}

// LookupDedup implements blockproc.BlockWriter.
func (w *Writer) LookupDedup(checksum uint32, size int, isCompressed bool, payload []byte) (int64, int, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()

	key := dedupKey{checksum: checksum, size: size, isCompressed: isCompressed}
	for _, c := range w.index[key] {
		if bytes.Equal(c.payload, payload) {
			return c.offset, c.written, true
		}
	}
	return 0, 0, false
}

// entry is one reserved/patched fragment-table record.
type entry struct {
	localOffset    uint32
	size           uint32
	absoluteOffset int64
	compressed     bool
}

// FragmentTable implements blockproc.FragmentTable by accumulating
// entries in memory and serializing them, packed, to an io.WriterAt at
// finalize time. Grounded on the fragment-table bookkeeping in
// MJKWoolnough-squashfs's builder.go (writePossibleFragment /
// writeFragments), generalized to the two-phase append/patch protocol
// blockproc.FragmentTable requires.
type FragmentTable struct {
	mu      sync.Mutex
	w       *Writer
	entries []entry
}

// NewFragmentTable creates a FragmentTable that serializes after
// whatever w has written so far, sharing w's cursor so the fragment
// index lands immediately following the block stream.
func NewFragmentTable(w *Writer) *FragmentTable {
	return &FragmentTable{w: w}
}

// AppendEntry implements blockproc.FragmentTable.
func (t *FragmentTable) AppendEntry(localOffset uint32, size uint32) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.entries = append(t.entries, entry{localOffset: localOffset, size: size})
	return len(t.entries) - 1
}

// PatchOffset implements blockproc.FragmentTable.
func (t *FragmentTable) PatchOffset(entryIndex int, absoluteOffset int64, compressed bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.entries[entryIndex].absoluteOffset = absoluteOffset
	t.entries[entryIndex].compressed = compressed
}

// Serialize implements blockproc.FragmentTable: it writes one
// fixed-width record per entry (offset, size, compressed) and returns
// the table's starting offset and entry count.
func (t *FragmentTable) Serialize() (int64, int64, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	var start int64
	for i, e := range t.entries {
		rec := []byte(fmt.Sprintf("%020d %010d %d\n", e.absoluteOffset, e.size, boolToInt(e.compressed)))
		off, err := t.w.appendRaw(rec)
		if err != nil {
			return 0, 0, err
		}
		if i == 0 {
			start = off
		}
	}
	return start, int64(len(t.entries)), nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
