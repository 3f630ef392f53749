// Copyright 2020 Cosmos Nicolaou. All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package blockproc

// Flags is a bitset carried by a Block. A subset is user-settable via
// BeginFile; the remainder is stamped internally by the splitter and
// assembler.
type Flags uint32

const (
	// FirstBlock marks the first block emitted for a file. Internal only.
	FirstBlock Flags = 1 << iota
	// LastBlock marks the final block (or sentinel) emitted for a file.
	// Internal only.
	LastBlock
	// IsFragment marks a tail-end block shorter than the configured block
	// size, destined for packing into a shared fragment block. Internal
	// only.
	IsFragment
	// IsCompressed marks a block whose data has been replaced by its
	// compressed form. Internal only.
	IsCompressed
	// IsSparse marks an all-zero block recorded with on-disk size zero.
	// Internal only.
	IsSparse

	// DontCompress disables compression for the blocks of a file.
	// User-settable.
	DontCompress
	// DontFragment forces every block of a file, including the tail, to
	// be written as a full data block rather than packed as a fragment.
	// User-settable.
	DontFragment
	// Align requests device-block-size padding for a block's on-disk
	// placement. User-settable.
	Align
)

// userSettableFlags is the mask of flags a caller may pass to BeginFile.
const userSettableFlags = DontCompress | DontFragment | Align

// Has reports whether f contains all bits of mask.
func (f Flags) Has(mask Flags) bool {
	return f&mask == mask
}
