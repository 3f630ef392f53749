// Copyright 2020 Cosmos Nicolaou. All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package blockproc

// assembler drains completed blocks strictly in sequence order and
// performs dedup, fragment packing, writer interaction and inode
// updates (spec.md §4.F). It runs on the same goroutine as the
// front-end API, per spec.md §5.
type assembler struct {
	p          *pipeline
	writer     BlockWriter
	table      FragmentTable
	fragCodec  Compressor
	frag       *fragAssembler
	nextDone   uint64
	stats      Stats
	progressCh chan<- Progress
	verbose    bool
}

func newAssembler(p *pipeline, blockSize int, writer BlockWriter, table FragmentTable, fragCodec Compressor, progressCh chan<- Progress, verbose bool) *assembler {
	return &assembler{
		p:          p,
		writer:     writer,
		table:      table,
		fragCodec:  fragCodec,
		frag:       newFragAssembler(blockSize),
		nextDone:   0,
		progressCh: progressCh,
		verbose:    verbose,
	}
}

// drainReady pops and processes every completed block currently
// available in strict sequence order, stopping when the next expected
// sequence number hasn't completed yet. It is called after any
// front-end call that filed work (spec.md §4.F).
func (a *assembler) drainReady() error {
	for {
		b, ok := a.p.popReady(a.nextDone)
		if !ok {
			return nil
		}
		a.nextDone++
		if err := a.process(b); err != nil {
			return err
		}
	}
}

func (a *assembler) process(b *Block) error {
	if a.progressCh != nil {
		a.progressCh <- Progress{Seq: b.seq, Checksum: b.checksum, Compressed: b.size, Size: b.origSize}
	}

	switch {
	case b.flags.Has(IsFragment):
		return a.processFragment(b)
	case b.flags.Has(IsSparse):
		return a.processSparse(b)
	case b.size == 0:
		// Sentinel: emitted only to carry LastBlock when no real block
		// was available to stamp it on. Nothing to record.
		a.p.recycle(b)
		return nil
	default:
		return a.processDataBlock(b)
	}
}

func (a *assembler) processDataBlock(b *Block) error {
	inode := b.inode
	payload := b.Data()
	if offset, written, ok := a.writer.LookupDedup(b.checksum, b.size, b.flags.Has(IsCompressed), payload); ok {
		inode.AppendBlockRecord(b.index, uint32(written), offset)
		a.p.recycle(b)
		return nil
	}
	offset, written, err := a.writer.Write(b.checksum, payload, b.flags)
	if err != nil {
		return wrapStatus(ErrIO, err)
	}
	inode.AppendBlockRecord(b.index, uint32(written), offset)
	a.stats.DataBlockCount++
	a.p.recycle(b)
	return nil
}

func (a *assembler) processFragment(b *Block) error {
	inode := b.inode
	payload := b.Data()
	if rec, ok := a.frag.lookup(b.checksum, payload); ok {
		inode.SetFragLocation(rec.entryIndex, rec.localOffset)
		a.stats.TotalFragCount++
		a.p.recycle(b)
		return nil
	}

	if !a.frag.fits(b.size) {
		trace(a.verbose, "finalizing fragment block before accepting seq %d", b.seq)
		if status, err := a.frag.finalize(a.writer, a.table, a.fragCodec); status != OK {
			return wrapStatus(status, err)
		}
		a.stats.FragBlockCount++
	}

	entryIndex, localOffset := a.frag.add(a.table, b.checksum, payload)
	inode.SetFragLocation(entryIndex, localOffset)
	a.stats.TotalFragCount++
	a.stats.ActualFragCount++
	a.p.recycle(b)
	return nil
}

func (a *assembler) processSparse(b *Block) error {
	b.inode.AppendBlockRecord(b.index, 0, 0)
	a.stats.SparseBlockCount++
	a.p.recycle(b)
	return nil
}

// finalizeTrailingFragment flushes any partially filled fragment block.
// Called by Finish.
func (a *assembler) finalizeTrailingFragment() error {
	if a.frag.empty() {
		return nil
	}
	status, err := a.frag.finalize(a.writer, a.table, a.fragCodec)
	if status != OK {
		return wrapStatus(status, err)
	}
	a.stats.FragBlockCount++
	return nil
}
