// Copyright 2020 Cosmos Nicolaou. All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package blockproc

// Compressor is the codec capability required by the block stage. A
// Compressor is never shared between goroutines; each worker (and the
// processor's own fragment-block finalization path) owns a DeepCopy.
type Compressor interface {
	// DeepCopy returns an independent instance sharing configuration but
	// no mutable state with the receiver, safe for concurrent use
	// alongside the original.
	DeepCopy() Compressor

	// Compress writes the compressed form of in to out, returning the
	// number of bytes written. A return of 0 means the data was judged
	// incompressible and the caller must keep the original; a negative
	// return is a compressor error code reported via err.
	Compress(in []byte, out []byte) (n int, err error)
}

// BlockWriter is the output-file capability: it appends finished blocks
// (data blocks or packed fragment blocks) and answers whole-block
// deduplication queries.
type BlockWriter interface {
	// Write appends buffer to the output, applying devblksz padding if
	// flags has Align set, and returns the on-disk offset and the number
	// of bytes actually written (the compressed size when the block
	// carries IsCompressed). checksum is the CRC32 of the block's
	// uncompressed payload, the same value a later LookupDedup call
	// will be asked to match, passed through so the writer can index
	// this block for future dedup without recomputing it from
	// (possibly already compressed) buffer.
	Write(checksum uint32, buffer []byte, flags Flags) (offset int64, written int, err error)

	// LookupDedup reports an existing on-disk block identical to payload,
	// keyed by (checksum, size, isCompressed) and confirmed by a payload
	// compare to rule out CRC collisions.
	LookupDedup(checksum uint32, size int, isCompressed bool, payload []byte) (offset int64, written int, ok bool)
}

// FragmentTable is the fragment-index capability. Entries are reserved
// as each fragment is accumulated into its (not yet written) fragment
// block, so the owning inode can be linked to an entry index right
// away; the entry's on-disk location is patched in once the containing
// fragment block is actually written.
type FragmentTable interface {
	// AppendEntry reserves a new entry for a fragment of size bytes at
	// localOffset within its not-yet-finalized fragment block, returning
	// the entry's index.
	AppendEntry(localOffset uint32, size uint32) int

	// PatchOffset finalizes entryIndex's on-disk location and compressed
	// flag once its containing fragment block has been written:
	// absoluteOffset is the fragment block's on-disk offset plus the
	// entry's localOffset.
	PatchOffset(entryIndex int, absoluteOffset int64, compressed bool)

	// Serialize writes the accumulated fragment entry array and returns
	// its starting offset and the number of entries written, the pair
	// write_fragment_table records into the superblock fields.
	Serialize() (start int64, count int64, err error)
}

// Inode is the opaque per-file metadata capability. The splitter
// allocates one per file; the assembler updates it as blocks complete.
type Inode interface {
	// FileSize returns the size recorded so far.
	FileSize() int64
	// SetFileSize records the final file size.
	SetFileSize(n int64)
	// SetFragLocation records which fragment-table entry holds this
	// file's tail fragment, and the fragment's offset within its
	// fragment block.
	SetFragLocation(entryIndex int, offsetInFragmentBlock uint32)
	// AppendBlockRecord records the on-disk placement of the block at
	// the given index. Blocks must be appended in increasing index
	// order.
	AppendBlockRecord(index int, compressedSize uint32, onDiskOffset int64)
}

// FragmentSuperblockFields is the minimal subset of on-disk super-block
// state WriteFragmentTable reads and writes. It is not a full SquashFS
// super-block (that layout is out of scope for this package); it exists
// solely to give WriteFragmentTable somewhere to record its result.
type FragmentSuperblockFields struct {
	// NoFragments is set when the archive contains no fragments.
	NoFragments bool
	// AlwaysFragments mirrors the SquashFS super-block flag of the same
	// name; cleared when the archive contains no fragments, and left
	// unchanged otherwise.
	AlwaysFragments bool
	// FragmentTableStart is the on-disk offset of the serialized
	// fragment entry array, or AllOnes when NoFragments is set.
	FragmentTableStart int64
	// FragmentTableCount is the number of fragment entries serialized.
	FragmentTableCount int64
}

// AllOnes is the sentinel value SquashFS uses for "no table present".
const AllOnes = -1
