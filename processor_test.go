// Copyright 2020 Cosmos Nicolaou. All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package blockproc

import (
	"testing"
	"time"
)

func newTestProcessor(t *testing.T, blockSize int, opts ...Option) (*Processor, *fakeBlockWriter, *fakeFragmentTable) {
	t.Helper()
	writer := &fakeBlockWriter{}
	table := &fakeFragmentTable{}
	proc, err := New(blockSize, repeatCompressor{refuse: true}, writer, table, func() Inode { return &fakeInode{} }, opts...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return proc, writer, table
}

func TestNewRejectsBadArguments(t *testing.T) {
	writer := &fakeBlockWriter{}
	table := &fakeFragmentTable{}
	newInode := func() Inode { return &fakeInode{} }
	if _, err := New(0, repeatCompressor{}, writer, table, newInode); err == nil {
		t.Fatalf("expected an error for a zero block size")
	}
	if _, err := New(16, nil, writer, table, newInode); err == nil {
		t.Fatalf("expected an error for a nil compressor")
	}
	if _, err := New(16, repeatCompressor{}, writer, table, nil); err == nil {
		t.Fatalf("expected an error for a nil inode factory")
	}
}

func TestProcessorRoundTripSerial(t *testing.T) {
	proc, writer, _ := newTestProcessor(t, 4, WithWorkers(1))

	inode, err := proc.BeginFile(0)
	if err != nil {
		t.Fatalf("BeginFile: %v", err)
	}
	if _, err := proc.Append([]byte("abcdefgh12")); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if err := proc.EndFile(); err != nil {
		t.Fatalf("EndFile: %v", err)
	}
	if err := proc.Finish(); err != nil {
		t.Fatalf("Finish: %v", err)
	}

	stats := proc.GetStats()
	if stats.DataBlockCount == 0 && stats.FragBlockCount == 0 {
		t.Fatalf("expected at least one data or fragment block, got %+v", stats)
	}
	if stats.InputBytesRead != 10 {
		t.Fatalf("InputBytesRead = %d, want 10", stats.InputBytesRead)
	}
	if inode.FileSize() != 10 {
		t.Fatalf("FileSize() = %d, want 10", inode.FileSize())
	}
	if len(writer.writes) == 0 {
		t.Fatalf("expected the writer to have received at least one block")
	}
	if err := proc.Destroy(); err != nil {
		t.Fatalf("Destroy: %v", err)
	}
}

func TestProcessorRoundTripParallel(t *testing.T) {
	proc, _, _ := newTestProcessor(t, 4, WithWorkers(4), WithMaxBacklog(2))

	for i := 0; i < 5; i++ {
		if _, err := proc.BeginFile(0); err != nil {
			t.Fatalf("BeginFile %d: %v", i, err)
		}
		if _, err := proc.Append([]byte("0123456789ab")); err != nil {
			t.Fatalf("Append %d: %v", i, err)
		}
		if err := proc.EndFile(); err != nil {
			t.Fatalf("EndFile %d: %v", i, err)
		}
	}
	if err := proc.Destroy(); err != nil {
		t.Fatalf("Destroy: %v", err)
	}
	stats := proc.GetStats()
	if stats.DataBlockCount+stats.FragBlockCount == 0 {
		t.Fatalf("expected some blocks written, got %+v", stats)
	}
	if want := int64(5 * len("0123456789ab")); stats.InputBytesRead != want {
		t.Fatalf("InputBytesRead = %d, want %d", stats.InputBytesRead, want)
	}
}

// TestProcessorFaultDrainsBacklogWithoutDeadlock exercises a codec error
// injected into one of several in-flight blocks under a multi-worker
// backend: Finish must return the latched fault rather than hang waiting
// for blocks still sitting in the queue behind it to complete.
func TestProcessorFaultDrainsBacklogWithoutDeadlock(t *testing.T) {
	writer := &fakeBlockWriter{}
	table := &fakeFragmentTable{}
	proc, err := New(8, erroringCompressor{}, writer, table, func() Inode { return &fakeInode{} },
		WithWorkers(4), WithMaxBacklog(2))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if _, err := proc.BeginFile(0); err != nil {
		t.Fatalf("BeginFile: %v", err)
	}
	// Enough blocks to exceed maxBacklog and guarantee some remain queued
	// behind the first one a worker faults on.
	for i := 0; i < 6; i++ {
		if _, err := proc.Append([]byte("abcdefgh")); err != nil {
			break // the latched fault is expected to surface here or in Finish.
		}
	}

	done := make(chan error, 1)
	go func() { done <- proc.Finish() }()

	select {
	case err := <-done:
		if err == nil {
			t.Fatalf("expected Finish to return the latched compressor fault")
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("Finish deadlocked waiting for a backlog that can never drain")
	}

	if err := proc.Destroy(); err == nil {
		t.Fatalf("expected Destroy to surface the latched fault too")
	}
}

func TestProcessorWriteFragmentTableNoFragments(t *testing.T) {
	proc, _, _ := newTestProcessor(t, 4, WithWorkers(1))
	proc.BeginFile(DontFragment)
	proc.Append([]byte("ab"))
	proc.EndFile()
	proc.Finish()

	var super FragmentSuperblockFields
	if err := proc.WriteFragmentTable(&super); err != nil {
		t.Fatalf("WriteFragmentTable: %v", err)
	}
	if !super.NoFragments || super.FragmentTableStart != AllOnes {
		t.Fatalf("super = %+v, want NoFragments with AllOnes start", super)
	}
}

func TestProcessorWriteFragmentTableWithFragments(t *testing.T) {
	proc, _, table := newTestProcessor(t, 8, WithWorkers(1))
	proc.BeginFile(0)
	proc.Append([]byte("abc")) // shorter than block size: becomes a fragment
	proc.EndFile()
	proc.Finish()

	var super FragmentSuperblockFields
	if err := proc.WriteFragmentTable(&super); err != nil {
		t.Fatalf("WriteFragmentTable: %v", err)
	}
	if super.NoFragments {
		t.Fatalf("expected fragments to be present")
	}
	if super.FragmentTableCount != int64(len(table.entries)) {
		t.Fatalf("FragmentTableCount = %d, want %d", super.FragmentTableCount, len(table.entries))
	}
}

func TestProcessorSequenceMisuse(t *testing.T) {
	proc, _, _ := newTestProcessor(t, 4, WithWorkers(1))
	if _, err := proc.Append([]byte("x")); err == nil {
		t.Fatalf("expected ErrSequence from Append before BeginFile")
	}
	if err := proc.EndFile(); err == nil {
		t.Fatalf("expected ErrSequence from EndFile before BeginFile")
	}
}
