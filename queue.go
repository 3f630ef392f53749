// Copyright 2020 Cosmos Nicolaou. All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package blockproc

import (
	"container/heap"
	"sync"
)

// completionHeap is an insertion-sorted (by sequence number) list of
// completed blocks, implemented as a container/heap min-heap. This
// mirrors the teacher's blockHeap in parallel.go, generalized from
// decompression reassembly to the processor's completion list (spec.md
// §4.B, design note §9: "a priority queue keyed by sequence" is an
// explicitly sanctioned alternative to an intrusive sorted list).
type completionHeap []*Block

func (h completionHeap) Len() int            { return len(h) }
func (h completionHeap) Less(i, j int) bool  { return h[i].seq < h[j].seq }
func (h completionHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *completionHeap) Push(x interface{}) { *h = append(*h, x.(*Block)) }
func (h *completionHeap) Pop() interface{} {
	old := *h
	n := len(old)
	x := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return x
}

// pipeline holds the shared state spec.md §5 calls out as protected by
// "a single mutex": the work queue, the completion list, the free-list,
// the backlog counter, nextSeq and the latched status, plus the two
// condition variables queueHasWork and queueNotFull.
type pipeline struct {
	mu           sync.Mutex
	queueHasWork *sync.Cond
	queueNotFull *sync.Cond

	qHead, qTail *Block // FIFO work queue, linked via Block.next.
	backlog      int
	maxBacklog   int
	nextSeq      uint64

	completion completionHeap

	pool *blockPool

	fault   faultLatch
	closing bool
}

func newPipeline(blockSize, maxBacklog int) *pipeline {
	p := &pipeline{
		maxBacklog: maxBacklog,
		pool:       newBlockPool(blockSize),
	}
	p.queueHasWork = sync.NewCond(&p.mu)
	p.queueNotFull = sync.NewCond(&p.mu)
	return p
}

// getBlock acquires a block from the free-list, or allocates one, under
// the processor mutex (spec.md §4.A).
func (p *pipeline) getBlock() *Block {
	p.mu.Lock()
	b := p.pool.get()
	p.mu.Unlock()
	return b
}

// recycle returns a block to the free-list.
func (p *pipeline) recycle(b *Block) {
	p.mu.Lock()
	p.pool.recycle(b)
	p.mu.Unlock()
}

// status returns the latched processor fault, if any.
func (p *pipeline) status() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.fault.get()
}

// enqueue admits b to the FIFO work queue, blocking the caller until
// backlog < maxBacklog or a fault has been latched (spec.md §4.B). It
// assigns b.seq under the mutex, the sole point at which sequence
// numbers are handed out.
func (p *pipeline) enqueue(b *Block) error {
	p.mu.Lock()
	for p.backlog >= p.maxBacklog && p.fault.get() == nil {
		p.queueNotFull.Wait()
	}
	if err := p.fault.get(); err != nil {
		p.mu.Unlock()
		return err
	}
	b.seq = p.nextSeq
	p.nextSeq++
	if p.qTail == nil {
		p.qHead, p.qTail = b, b
	} else {
		p.qTail.next = b
		p.qTail = b
	}
	p.backlog++
	p.queueHasWork.Signal()
	p.mu.Unlock()
	return nil
}

// admitInline assigns a sequence number and backlog slot for the
// synchronous (single-worker) dispatch path, without touching the FIFO
// queue: the caller runs the block stage itself, immediately followed by
// fileCompletion.
func (p *pipeline) admitInline(b *Block) error {
	p.mu.Lock()
	if err := p.fault.get(); err != nil {
		p.mu.Unlock()
		return err
	}
	b.seq = p.nextSeq
	p.nextSeq++
	p.backlog++
	p.mu.Unlock()
	return nil
}

// dequeue pops the FIFO head for a worker to process. It returns
// (nil, false) once a fault has been latched, without popping any
// further work, per spec.md §4.C's cancellation rule: workers already
// holding a block still file it, but workers waiting for the next one
// exit instead. After shutdown has been requested it keeps popping
// whatever is still queued and returns (nil, false) once the queue is
// empty.
func (p *pipeline) dequeue() (*Block, bool) {
	p.mu.Lock()
	for {
		if p.fault.get() != nil {
			p.mu.Unlock()
			return nil, false
		}
		if p.qHead != nil {
			break
		}
		if p.closing {
			p.mu.Unlock()
			return nil, false
		}
		p.queueHasWork.Wait()
	}
	b := p.qHead
	p.qHead = b.next
	if p.qHead == nil {
		p.qTail = nil
	}
	b.next = nil
	p.mu.Unlock()
	return b, true
}

// fileCompletion inserts a processed block into the sorted completion
// list, decrements backlog, latches the block's error (if any) as the
// first processor fault, and wakes anyone waiting on backlog headroom.
func (p *pipeline) fileCompletion(b *Block) {
	p.mu.Lock()
	heap.Push(&p.completion, b)
	p.backlog--
	p.fault.latch(b.err)
	p.queueNotFull.Broadcast()
	p.queueHasWork.Broadcast()
	p.mu.Unlock()
}

// popReady removes and returns the head of the completion list iff its
// sequence number equals expected (spec.md §4.F's in-order drain rule).
func (p *pipeline) popReady(expected uint64) (*Block, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.completion) > 0 && p.completion[0].seq == expected {
		b := heap.Pop(&p.completion).(*Block)
		return b, true
	}
	return nil, false
}

// waitDrained blocks until backlog reaches zero, then returns the
// latched fault, if any. It also wakes on a latched fault even with
// backlog still outstanding: once a worker has latched a fault, the
// remaining queued blocks are never dequeued (dequeue bails out as soon
// as a fault is set, per its cancellation rule), so backlog would
// otherwise never reach zero and this would wait forever instead of
// surfacing the fault. Used by Finish.
func (p *pipeline) waitDrained() error {
	p.mu.Lock()
	for p.backlog > 0 && p.fault.get() == nil {
		p.queueNotFull.Wait()
	}
	err := p.fault.get()
	p.mu.Unlock()
	return err
}

// shutdown wakes every waiter so worker goroutines and any blocked
// front-end call can observe closing/fault and return.
func (p *pipeline) shutdown() {
	p.mu.Lock()
	p.closing = true
	p.queueHasWork.Broadcast()
	p.queueNotFull.Broadcast()
	p.mu.Unlock()
}
