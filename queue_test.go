// Copyright 2020 Cosmos Nicolaou. All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package blockproc

import (
	"errors"
	"sync"
	"testing"
	"time"
)

func TestPipelineEnqueueAssignsSequence(t *testing.T) {
	p := newPipeline(8, 4)
	b1 := p.getBlock()
	b2 := p.getBlock()
	if err := p.enqueue(b1); err != nil {
		t.Fatalf("enqueue b1: %v", err)
	}
	if err := p.enqueue(b2); err != nil {
		t.Fatalf("enqueue b2: %v", err)
	}
	if b1.seq != 0 || b2.seq != 1 {
		t.Fatalf("sequence numbers = %d, %d, want 0, 1", b1.seq, b2.seq)
	}
}

func TestPipelineDequeueFIFO(t *testing.T) {
	p := newPipeline(8, 4)
	b1, b2 := p.getBlock(), p.getBlock()
	p.enqueue(b1)
	p.enqueue(b2)

	got1, ok := p.dequeue()
	if !ok || got1 != b1 {
		t.Fatalf("dequeue 1 = %v, %v, want b1, true", got1, ok)
	}
	got2, ok := p.dequeue()
	if !ok || got2 != b2 {
		t.Fatalf("dequeue 2 = %v, %v, want b2, true", got2, ok)
	}
}

func TestPipelineCompletionDrainsInSequenceOrder(t *testing.T) {
	p := newPipeline(8, 8)
	blocks := make([]*Block, 4)
	for i := range blocks {
		blocks[i] = p.getBlock()
		p.enqueue(blocks[i])
	}
	// File completions out of order: 2, 0, 3, 1.
	p.fileCompletion(blocks[2])
	p.fileCompletion(blocks[0])
	p.fileCompletion(blocks[3])
	p.fileCompletion(blocks[1])

	for expected := uint64(0); expected < 4; expected++ {
		b, ok := p.popReady(expected)
		if !ok {
			t.Fatalf("popReady(%d) not ready", expected)
		}
		if b.seq != expected {
			t.Fatalf("popReady(%d) returned seq %d", expected, b.seq)
		}
	}
	if _, ok := p.popReady(4); ok {
		t.Fatalf("popReady(4) should not be ready")
	}
}

func TestPipelineBacklogBlocksEnqueue(t *testing.T) {
	p := newPipeline(8, 1)
	b1 := p.getBlock()
	if err := p.enqueue(b1); err != nil {
		t.Fatalf("enqueue b1: %v", err)
	}

	var wg sync.WaitGroup
	wg.Add(1)
	started := make(chan struct{})
	go func() {
		defer wg.Done()
		b2 := p.getBlock()
		close(started)
		if err := p.enqueue(b2); err != nil {
			t.Errorf("enqueue b2: %v", err)
		}
	}()

	<-started
	// Drain the first block so the second can be admitted.
	got, ok := p.dequeue()
	if !ok || got != b1 {
		t.Fatalf("dequeue = %v, %v", got, ok)
	}
	p.fileCompletion(got)
	wg.Wait()
}

func TestPipelineFaultUnblocksWaiters(t *testing.T) {
	p := newPipeline(8, 1)
	b1 := p.getBlock()
	p.enqueue(b1)

	faultErr := errors.New("boom")
	done := make(chan error, 1)
	go func() {
		b2 := p.getBlock()
		done <- p.enqueue(b2)
	}()

	p.mu.Lock()
	p.fault.latch(faultErr)
	p.queueNotFull.Broadcast()
	p.mu.Unlock()

	if err := <-done; err != faultErr {
		t.Fatalf("enqueue returned %v, want %v", err, faultErr)
	}
}

func TestPipelineWaitDrained(t *testing.T) {
	p := newPipeline(8, 4)
	b := p.getBlock()
	p.enqueue(b)
	go func() {
		got, _ := p.dequeue()
		p.fileCompletion(got)
	}()
	if err := p.waitDrained(); err != nil {
		t.Fatalf("waitDrained: %v", err)
	}
}

// TestPipelineWaitDrainedReturnsOnFaultWithBacklogOutstanding reproduces
// the scenario where one worker latches a fault on a block while a
// sibling block is still sitting in the queue: dequeue abandons that
// sibling without ever filing its completion, so backlog never reaches
// zero on its own. waitDrained must still return once the fault is
// latched instead of waiting on a backlog that can no longer drain.
func TestPipelineWaitDrainedReturnsOnFaultWithBacklogOutstanding(t *testing.T) {
	p := newPipeline(8, 4)
	b1 := p.getBlock()
	b2 := p.getBlock()
	if err := p.enqueue(b1); err != nil {
		t.Fatalf("enqueue b1: %v", err)
	}
	if err := p.enqueue(b2); err != nil {
		t.Fatalf("enqueue b2: %v", err)
	}

	// b1 completes with a fault; b2 is left stranded in the queue, exactly
	// as dequeue leaves it once a fault has been latched.
	got, ok := p.dequeue()
	if !ok || got != b1 {
		t.Fatalf("dequeue = %v, %v, want b1", got, ok)
	}
	got.err = errors.New("compressor exploded")
	p.fileCompletion(got)

	done := make(chan error, 1)
	go func() { done <- p.waitDrained() }()

	select {
	case err := <-done:
		if err == nil {
			t.Fatalf("expected waitDrained to return the latched fault")
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("waitDrained deadlocked with a stranded block still in the queue")
	}
}
