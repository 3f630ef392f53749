// Copyright 2020 Cosmos Nicolaou. All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package blockproc

import (
	"bytes"
	"hash/crc32"
)

// fragKey is the dedup lookup key for tail fragments (spec.md §4.F).
type fragKey struct {
	checksum uint32
	size     int
}

// fragRecord is a previously accumulated fragment kept around so a
// later identical fragment can be deduplicated against it. payload is
// retained in memory for the processor's lifetime; finalized fragment
// blocks are not re-read from disk to confirm a match.
type fragRecord struct {
	entryIndex int
	localOffset uint32
	payload    []byte
}

// pendingFragment tracks one fragment accumulated into the currently
// open, not-yet-written fragment block.
type pendingFragment struct {
	entryIndex  int
	localOffset uint32
}

// fragAssembler owns the open fragment block and the cross-file
// fragment dedup index (spec.md §4.F).
type fragAssembler struct {
	blockSize int
	buf       []byte
	pending   []pendingFragment
	index     map[fragKey][]fragRecord

	scratch []byte
}

func newFragAssembler(blockSize int) *fragAssembler {
	return &fragAssembler{
		blockSize: blockSize,
		buf:       make([]byte, 0, blockSize),
		index:     make(map[fragKey][]fragRecord),
		scratch:   make([]byte, blockSize),
	}
}

// lookup returns an existing fragment record matching checksum/size and
// confirmed by a payload compare, or false.
func (f *fragAssembler) lookup(checksum uint32, payload []byte) (fragRecord, bool) {
	for _, rec := range f.index[fragKey{checksum, len(payload)}] {
		if bytes.Equal(rec.payload, payload) {
			return rec, true
		}
	}
	return fragRecord{}, false
}

// fits reports whether n more bytes can be accommodated in the
// currently open fragment block.
func (f *fragAssembler) fits(n int) bool {
	return len(f.buf)+n <= f.blockSize
}

// add appends payload to the open fragment block, reserves a fragment
// table entry for it, records it for future dedup, and returns the
// entry index and local offset to link into the owning inode.
func (f *fragAssembler) add(table FragmentTable, checksum uint32, payload []byte) (entryIndex int, localOffset uint32) {
	localOffset = uint32(len(f.buf))
	f.buf = append(f.buf, payload...)
	entryIndex = table.AppendEntry(localOffset, uint32(len(payload)))
	f.pending = append(f.pending, pendingFragment{entryIndex: entryIndex, localOffset: localOffset})

	cp := make([]byte, len(payload))
	copy(cp, payload)
	key := fragKey{checksum, len(payload)}
	f.index[key] = append(f.index[key], fragRecord{entryIndex: entryIndex, localOffset: localOffset, payload: cp})
	return
}

// empty reports whether the open fragment block currently has no
// pending fragments.
func (f *fragAssembler) empty() bool {
	return len(f.buf) == 0
}

// finalize compresses and writes the open fragment block (if non-empty)
// via writer and codec, patches every pending entry's absolute offset
// into table, and resets the open block. It is a no-op if the open
// block is empty.
func (f *fragAssembler) finalize(writer BlockWriter, table FragmentTable, codec Compressor) (Status, error) {
	if f.empty() {
		return OK, nil
	}

	data := f.buf
	compressed := false
	if n, err := codec.Compress(f.buf, f.scratch[:cap(f.scratch)]); err != nil {
		return ErrCompressor, err
	} else if n > 0 && n < len(f.buf) {
		data = f.scratch[:n]
		compressed = true
	}

	offset, _, err := writer.Write(crc32.ChecksumIEEE(data), data, 0)
	if err != nil {
		return ErrIO, err
	}

	for _, p := range f.pending {
		table.PatchOffset(p.entryIndex, offset+int64(p.localOffset), compressed)
	}

	f.buf = f.buf[:0]
	f.pending = f.pending[:0]
	return OK, nil
}
