// Copyright 2020 Cosmos Nicolaou. All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package blockproc

// Processor is the concurrent block processor (spec.md §4.G): it wires
// the pool/queue (pipeline), the worker-pool or synchronous back-end
// (dispatcher), the front-end state machine (splitter) and the
// back-end assembler into the package's public API.
type Processor struct {
	p   *pipeline
	d   dispatcher
	s   *splitter
	asm *assembler
}

// New creates a Processor. blockSize is B_max. compressor and writer
// and table are the external capabilities the processor drives;
// newInode is called once per BeginFile to allocate the per-file
// metadata handle the splitter and assembler then populate — spec.md
// §4.E's "allocates an inode of type FILE" with the factory made
// explicit, since Inode is an opaque, caller-defined capability here
// rather than a concrete type this package can construct itself.
//
// num_workers and max_backlog are positional arguments in spec.md's
// create(); here they are WithWorkers/WithMaxBacklog options instead,
// consistent with every other Processor setting and with the teacher's
// functional-options idiom (SPEC_FULL.md's ambient-stack "Configuration"
// note).
func New(blockSize int, compressor Compressor, writer BlockWriter, table FragmentTable, newInode func() Inode, opts ...Option) (*Processor, error) {
	if blockSize <= 0 || compressor == nil || writer == nil || table == nil || newInode == nil {
		return nil, wrapStatus(ErrAlloc, nil)
	}

	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	p := newPipeline(blockSize, o.maxBacklog)

	var d dispatcher
	if o.numWorkers <= 1 {
		d = newSerialDispatcher(p, compressor, blockSize)
	} else {
		d = newParallelDispatcher(p, o.numWorkers, compressor, blockSize, o.verbose)
	}

	asm := newAssembler(p, blockSize, writer, table, compressor.DeepCopy(), o.progressCh, o.verbose)
	sp := newSplitter(p, d, blockSize, o.sparse, newInode)

	return &Processor{p: p, d: d, s: sp, asm: asm}, nil
}

// BeginFile opens a new file and returns its inode handle.
func (proc *Processor) BeginFile(flags Flags) (Inode, error) {
	inode, err := proc.s.beginFile(flags)
	if err != nil {
		return nil, err
	}
	if err := proc.asm.drainReady(); err != nil {
		return inode, err
	}
	return inode, nil
}

// Append feeds buf into the open file, returning the number of bytes
// consumed (always len(buf) absent a fault) and any latched error.
func (proc *Processor) Append(buf []byte) (int, error) {
	n, err := proc.s.append(buf)
	proc.asm.stats.InputBytesRead += int64(n)
	if drainErr := proc.asm.drainReady(); err == nil {
		err = drainErr
	}
	return n, err
}

// EndFile closes the open file.
func (proc *Processor) EndFile() error {
	if err := proc.s.endFile(); err != nil {
		return err
	}
	return proc.asm.drainReady()
}

// Finish waits for every in-flight block to complete, drains the
// completion list in order, and finalizes any partially filled
// fragment block (spec.md §4.F). The wait/drain fault and the
// fragment-finalize fault are distinct failures that can both occur, so
// they are combined rather than one silently shadowing the other.
func (proc *Processor) Finish() error {
	drainErr := proc.d.drain()
	if err := proc.asm.drainReady(); drainErr == nil {
		drainErr = err
	}
	teardownErr := proc.asm.finalizeTrailingFragment()
	return combine(drainErr, teardownErr)
}

// GetStats returns a snapshot of the processor's counters. Safe to call
// once the processor is quiescent (no front-end call in flight).
func (proc *Processor) GetStats() Stats {
	return proc.asm.stats
}

// WriteFragmentTable serializes the fragment entry array, if any, and
// records its location in super (spec.md §4.G).
func (proc *Processor) WriteFragmentTable(super *FragmentSuperblockFields) error {
	if proc.asm.stats.ActualFragCount == 0 {
		super.NoFragments = true
		super.AlwaysFragments = false
		super.FragmentTableStart = AllOnes
		super.FragmentTableCount = 0
		return nil
	}
	start, count, err := proc.asm.table.Serialize()
	if err != nil {
		return wrapStatus(ErrIO, err)
	}
	super.NoFragments = false
	super.FragmentTableStart = start
	super.FragmentTableCount = count
	return nil
}

// Destroy finishes any in-flight work and releases worker resources.
// Safe to call more than once.
func (proc *Processor) Destroy() error {
	err := proc.Finish()
	proc.d.close()
	return err
}
