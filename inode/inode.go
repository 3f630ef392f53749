// Copyright 2020 Cosmos Nicolaou. All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

// Package inode provides a reference blockproc.Inode implementation:
// file size, per-block on-disk placement records and fragment
// location, usable by both tests and the demo CLI. Grounded on the
// per-file metadata fields MJKWoolnough-squashfs's builder.go tracks
// for a regular file (fileStat's size/blocks/fragment fields).
package inode

import "sync"

// BlockRecord is the on-disk placement of one data block.
type BlockRecord struct {
	Index          int
	CompressedSize uint32
	OnDiskOffset   int64
}

// File implements blockproc.Inode for a regular file.
type File struct {
	mu sync.Mutex

	size int64

	blocks []BlockRecord

	hasFrag          bool
	fragEntryIndex   int
	fragLocalOffset  uint32
}

// New allocates a fresh, empty File inode.
func New() *File {
	return &File{}
}

// FileSize implements blockproc.Inode.
func (f *File) FileSize() int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.size
}

// SetFileSize implements blockproc.Inode.
func (f *File) SetFileSize(n int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.size = n
}

// SetFragLocation implements blockproc.Inode.
func (f *File) SetFragLocation(entryIndex int, offsetInFragmentBlock uint32) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.hasFrag = true
	f.fragEntryIndex = entryIndex
	f.fragLocalOffset = offsetInFragmentBlock
}

// AppendBlockRecord implements blockproc.Inode. Blocks must arrive in
// increasing index order, per blockproc's ordering guarantee.
func (f *File) AppendBlockRecord(index int, compressedSize uint32, onDiskOffset int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.blocks = append(f.blocks, BlockRecord{Index: index, CompressedSize: compressedSize, OnDiskOffset: onDiskOffset})
}

// Blocks returns the recorded data-block placements, in arrival order.
func (f *File) Blocks() []BlockRecord {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]BlockRecord, len(f.blocks))
	copy(out, f.blocks)
	return out
}

// Fragment reports the fragment-table entry and in-block offset
// holding this file's tail fragment, if any.
func (f *File) Fragment() (entryIndex int, offsetInFragmentBlock uint32, ok bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.fragEntryIndex, f.fragLocalOffset, f.hasFrag
}
