// Copyright 2020 Cosmos Nicolaou. All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package blockproc

// Stats is the monotonic counter set spec.md §3 requires. It is
// single-writer (Processor.Append and the assembler, both running on
// the front-end thread) and single-reader (GetStats), so no
// synchronization beyond the processor being quiescent when read is
// required (design note §9).
type Stats struct {
	InputBytesRead  int64
	DataBlockCount  int64
	FragBlockCount  int64
	SparseBlockCount int64
	TotalFragCount  int64
	ActualFragCount int64
}

// Progress reports one assembler-ordered block completion, for a
// caller-supplied channel option, mirroring the teacher's Progress type
// in parallel.go. Compressed is the block's on-wire (post-stage) size;
// Size is its original payload size before staging, the two differing
// whenever the block was actually compressed.
type Progress struct {
	Seq        uint64
	Checksum   uint32
	Compressed int
	Size       int
}
