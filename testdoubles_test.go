// Copyright 2020 Cosmos Nicolaou. All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package blockproc

// fakeInode is a minimal blockproc.Inode test double recording every
// call it receives, for assertions in splitter/assembler/processor
// tests that would otherwise need the store/inode packages (which
// import this one, and so cannot be imported back from its tests).
type fakeInode struct {
	fileSize int64

	blockRecords []struct {
		index          int
		compressedSize uint32
		onDiskOffset   int64
	}

	fragEntryIndex int
	fragOffset     uint32
	hasFrag        bool
}

func (f *fakeInode) FileSize() int64     { return f.fileSize }
func (f *fakeInode) SetFileSize(n int64) { f.fileSize = n }

func (f *fakeInode) SetFragLocation(entryIndex int, offsetInFragmentBlock uint32) {
	f.hasFrag = true
	f.fragEntryIndex = entryIndex
	f.fragOffset = offsetInFragmentBlock
}

func (f *fakeInode) AppendBlockRecord(index int, compressedSize uint32, onDiskOffset int64) {
	f.blockRecords = append(f.blockRecords, struct {
		index          int
		compressedSize uint32
		onDiskOffset   int64
	}{index, compressedSize, onDiskOffset})
}

// recordingDispatcher captures every submitted block without running
// the block stage, isolating splitter tests from pipeline/worker
// concerns.
type recordingDispatcher struct {
	submitted []*Block
	err       error
}

func (d *recordingDispatcher) submit(b *Block) error {
	d.submitted = append(d.submitted, b)
	return d.err
}
func (d *recordingDispatcher) drain() error { return d.err }
func (d *recordingDispatcher) close()       {}
