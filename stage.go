// Copyright 2020 Cosmos Nicolaou. All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package blockproc

import "hash/crc32"

// stageBlock implements the block stage (spec.md §4.D): checksum, then
// compress unless the block is a fragment, marked DontCompress, or
// empty. codec and scratch are a worker's (or the single synchronous
// path's) private codec instance and scratch buffer; stageBlock never
// touches shared state.
func stageBlock(b *Block, codec Compressor, scratch []byte) {
	b.origSize = b.size
	if b.size == 0 {
		b.checksum = 0
		return
	}
	b.checksum = crc32.ChecksumIEEE(b.data[:b.size])

	if b.flags.Has(IsFragment) || b.flags.Has(DontCompress) {
		return
	}

	n, err := codec.Compress(b.data[:b.size], scratch[:cap(scratch)])
	if err != nil {
		b.err = wrapStatus(ErrCompressor, err)
		return
	}
	if n <= 0 || n >= b.size {
		// Incompressible, or the codec produced something no smaller than
		// the original despite the n < size contract: keep the original.
		return
	}
	copy(b.data[:n], scratch[:n])
	b.size = n
	b.flags |= IsCompressed
}
