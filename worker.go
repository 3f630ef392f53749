// Copyright 2020 Cosmos Nicolaou. All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package blockproc

import "sync"

// dispatcher is the shared contract between the parallel worker-pool
// backend and the synchronous single-thread backend (spec.md §9: "keep
// them separate implementations of the same append_to_work_queue /
// finish contract"). Processor never branches on worker count outside
// of New.
type dispatcher interface {
	// submit admits b into the pipeline, returning any latched fault.
	submit(b *Block) error
	// drain blocks until every submitted block has been completed,
	// returning the latched fault.
	drain() error
	// close stops background workers and releases their resources. It
	// is safe to call close more than once.
	close()
}

// parallelDispatcher runs num_workers goroutines, each with its own
// deep-copied codec and scratch buffer, draining the pipeline's FIFO
// queue and filing completions (spec.md §4.C). Grounded on the worker
// goroutine / channel-handoff shape of the teacher's Decompressor in
// parallel.go, adapted to the pipeline's mutex+condvar queue instead of
// channels.
type parallelDispatcher struct {
	p       *pipeline
	wg      sync.WaitGroup
	verbose bool
}

func newParallelDispatcher(p *pipeline, numWorkers int, compressor Compressor, blockSize int, verbose bool) *parallelDispatcher {
	d := &parallelDispatcher{p: p, verbose: verbose}
	d.wg.Add(numWorkers)
	for i := 0; i < numWorkers; i++ {
		id := i
		codec := compressor.DeepCopy()
		scratch := make([]byte, blockSize)
		go func() {
			defer d.wg.Done()
			trace(d.verbose, "worker %d: starting", id)
			d.run(codec, scratch)
			trace(d.verbose, "worker %d: exiting", id)
		}()
	}
	return d
}

func (d *parallelDispatcher) run(codec Compressor, scratch []byte) {
	for {
		b, ok := d.p.dequeue()
		if !ok {
			return
		}
		trace(d.verbose, "staging: seq %d, flags %v, size %d", b.seq, b.flags, b.size)
		stageBlock(b, codec, scratch)
		d.p.fileCompletion(b)
	}
}

func (d *parallelDispatcher) submit(b *Block) error {
	return d.p.enqueue(b)
}

func (d *parallelDispatcher) drain() error {
	return d.p.waitDrained()
}

func (d *parallelDispatcher) close() {
	d.p.shutdown()
	d.wg.Wait()
}

// serialDispatcher processes each block inline on the caller's
// goroutine when num_workers <= 1, per spec.md §4.C: "the processor
// operates synchronously". It still assigns sequence numbers and files
// completions through the same pipeline the assembler drains, so the
// assembler's logic is identical regardless of dispatch mode.
type serialDispatcher struct {
	p       *pipeline
	codec   Compressor
	scratch []byte
}

func newSerialDispatcher(p *pipeline, compressor Compressor, blockSize int) *serialDispatcher {
	return &serialDispatcher{
		p:       p,
		codec:   compressor.DeepCopy(),
		scratch: make([]byte, blockSize),
	}
}

func (d *serialDispatcher) submit(b *Block) error {
	if err := d.p.admitInline(b); err != nil {
		return err
	}
	stageBlock(b, d.codec, d.scratch)
	d.p.fileCompletion(b)
	return d.p.status()
}

func (d *serialDispatcher) drain() error {
	return d.p.waitDrained()
}

func (d *serialDispatcher) close() {
	d.p.shutdown()
}
