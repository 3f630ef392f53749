// Copyright 2020 Cosmos Nicolaou. All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package blockproc

// splitter is the front-end state machine (spec.md §4.E): begin_file,
// append and end_file. It runs exclusively on the caller's goroutine,
// the processor's sole producer (spec.md §5), and so needs no locking
// of its own beyond what pipeline and dispatcher already provide.
type splitter struct {
	p          *pipeline
	dispatcher dispatcher
	blockSize  int
	sparse     bool
	newInode   func() Inode

	open      bool
	inode     Inode
	blkFlags  Flags
	blkIndex  int
	blkCurrent *Block
}

func newSplitter(p *pipeline, d dispatcher, blockSize int, sparse bool, newInode func() Inode) *splitter {
	return &splitter{p: p, dispatcher: d, blockSize: blockSize, sparse: sparse, newInode: newInode}
}

// beginFile opens a new file. It fails with ErrSequence if a file is
// already open, or ErrUnsupported if flags carries bits outside
// userSettableFlags.
func (s *splitter) beginFile(flags Flags) (Inode, error) {
	if s.open {
		return nil, wrapStatus(ErrSequence, nil)
	}
	if flags&^userSettableFlags != 0 {
		return nil, wrapStatus(ErrUnsupported, nil)
	}
	s.open = true
	s.inode = s.newInode()
	s.blkFlags = flags | FirstBlock
	s.blkIndex = 0
	s.blkCurrent = nil
	return s.inode, nil
}

// append copies buf into the in-progress block(s) of the open file,
// flushing full blocks to the pipeline as they fill. It fails with
// ErrSequence if no file is open.
func (s *splitter) append(buf []byte) (int, error) {
	if !s.open {
		return 0, wrapStatus(ErrSequence, nil)
	}
	if err := s.p.status(); err != nil {
		return 0, err
	}
	s.inode.SetFileSize(s.inode.FileSize() + int64(len(buf)))

	n := 0
	for n < len(buf) {
		if s.blkCurrent == nil {
			s.blkCurrent = s.p.getBlock()
			s.blkCurrent.flags = s.blkFlags
			s.blkCurrent.inode = s.inode
		}
		copied := copy(s.blkCurrent.data[s.blkCurrent.size:s.blockSize], buf[n:])
		s.blkCurrent.size += copied
		n += copied
		if s.blkCurrent.size == s.blockSize {
			if err := s.flushBlock(); err != nil {
				return n, err
			}
		}
	}
	return n, s.p.status()
}

// endFile closes the open file: it ensures LAST_BLOCK is carried by a
// real block where possible, or by a zero-sized sentinel otherwise, and
// flushes any remaining in-progress block. It fails with ErrSequence if
// no file is open.
//
// spec.md §4.E stamps LAST_BLOCK on blk_current whenever one exists and
// would not become a fragment; every other case (no in-progress block,
// including a zero-byte file, or one that would be fragmented) needs a
// sentinel instead, since a fragment's own classification must not be
// conflated with the file-level LAST_BLOCK signal. A zero-byte file has
// no block at all to stamp, so it always takes the sentinel path — an
// edge case spec.md's wording leaves implicit.
func (s *splitter) endFile() error {
	if !s.open {
		return wrapStatus(ErrSequence, nil)
	}

	wouldFragment := s.blkCurrent != nil && s.blkCurrent.size < s.blockSize && !s.blkFlags.Has(DontFragment)
	if s.blkCurrent == nil || wouldFragment {
		if err := s.emitSentinel(); err != nil {
			return err
		}
	} else {
		s.blkCurrent.flags |= LastBlock
	}

	if s.blkCurrent != nil {
		if err := s.flushBlock(); err != nil {
			return err
		}
	}

	s.open = false
	s.inode = nil
	return nil
}

// flushBlock classifies and submits blk_current, then clears it.
func (s *splitter) flushBlock() error {
	b := s.blkCurrent
	if b.size < s.blockSize && !s.blkFlags.Has(DontFragment) {
		b.flags |= IsFragment
	}
	if s.sparse && allZero(b.Data()) {
		b.flags = (b.flags &^ IsFragment) | IsSparse
		b.size = 0
	}
	s.blkFlags &^= FirstBlock
	b.index = s.blkIndex
	s.blkIndex++
	s.blkCurrent = nil
	return s.dispatcher.submit(b)
}

// emitSentinel submits a zero-sized, LAST_BLOCK-only block to carry
// end-of-file when no real block is available to carry the flag.
func (s *splitter) emitSentinel() error {
	b := s.p.getBlock()
	b.flags = LastBlock
	b.inode = s.inode
	b.index = s.blkIndex
	s.blkIndex++
	return s.dispatcher.submit(b)
}

// allZero reports whether every byte of buf is zero, the detection
// spec.md §4.E's "Sparse handling" requires. There is no third-party
// library for this trivial scan in the pack or the wider ecosystem
// worth a dependency; see DESIGN.md.
func allZero(buf []byte) bool {
	for _, c := range buf {
		if c != 0 {
			return false
		}
	}
	return true
}
