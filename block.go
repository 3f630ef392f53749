// Copyright 2020 Cosmos Nicolaou. All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package blockproc

// Block is a unit of file data moving through the pipeline: up to
// blockSize bytes of uncompressed payload, or fewer for a tail fragment,
// or zero for a sparse block or end-of-file sentinel.
type Block struct {
	data  []byte // fixed-capacity buffer, data[:size] is the used prefix.
	size  int
	flags Flags

	checksum uint32
	inode    Inode
	index    int
	seq      uint64

	// origSize is the payload length stageBlock observed before
	// compression, captured because compression overwrites size in
	// place; used to report Progress.Size once size itself has become
	// the post-stage (possibly compressed) length.
	origSize int

	err error

	next *Block // free-list / work-queue link.
}

// Data returns the block's used payload.
func (b *Block) Data() []byte { return b.data[:b.size] }

// Size returns the block's used payload length.
func (b *Block) Size() int { return b.size }

// Flags returns the block's flag set.
func (b *Block) Flags() Flags { return b.flags }

// Checksum returns the CRC32 of the uncompressed payload, or 0 if the
// block is empty.
func (b *Block) Checksum() uint32 { return b.checksum }

// Index returns the block's 0-based position within its file.
func (b *Block) Index() int { return b.index }

// reset clears a block to its post-acquisition zero state, retaining its
// backing buffer.
func (b *Block) reset() {
	b.size = 0
	b.flags = 0
	b.checksum = 0
	b.inode = nil
	b.index = 0
	b.seq = 0
	b.origSize = 0
	b.err = nil
	b.next = nil
}

// blockPool is an intrusively linked free-list of fixed-capacity blocks.
// It is not itself safe for concurrent use; callers serialize access
// with the processor's mutex, per spec.md §4.A / §5.
type blockPool struct {
	blockSize int
	free      *Block
}

func newBlockPool(blockSize int) *blockPool {
	return &blockPool{blockSize: blockSize}
}

// get pops the free-list head, allocating a fresh block if the free-list
// is empty. The returned block is zero-initialized except for its
// backing buffer.
func (p *blockPool) get() *Block {
	if b := p.free; b != nil {
		p.free = b.next
		b.next = nil
		return b
	}
	return &Block{data: make([]byte, p.blockSize)}
}

// recycle pushes b onto the free-list head.
func (p *blockPool) recycle(b *Block) {
	b.reset()
	b.next = p.free
	p.free = b
}
