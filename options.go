// Copyright 2020 Cosmos Nicolaou. All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package blockproc

import "runtime"

type options struct {
	numWorkers int
	maxBacklog int
	verbose    bool
	progressCh chan<- Progress
	sparse     bool
}

// Option configures a Processor at construction, mirroring the
// teacher's DecompressorOption / ScannerOption functional-option idiom.
type Option func(*options)

// WithWorkers sets the number of worker goroutines. n <= 1 selects the
// synchronous dispatch backend (spec.md §4.C). The default is
// runtime.GOMAXPROCS(-1).
func WithWorkers(n int) Option {
	return func(o *options) { o.numWorkers = n }
}

// WithMaxBacklog sets max_backlog, the sole tunable bounding in-flight
// blocks (spec.md §5).
func WithMaxBacklog(n int) Option {
	return func(o *options) { o.maxBacklog = n }
}

// WithVerbose enables trace logging of worker and assembler activity.
func WithVerbose(v bool) Option {
	return func(o *options) { o.verbose = v }
}

// WithProgress requests a Progress report on ch for every block the
// assembler drains in order.
func WithProgress(ch chan<- Progress) Option {
	return func(o *options) { o.progressCh = ch }
}

// WithSparseDetection enables the splitter's all-zero block detection
// (spec.md §4.E "Sparse handling"), off by default since it costs a
// full scan of every block's bytes.
func WithSparseDetection(v bool) Option {
	return func(o *options) { o.sparse = v }
}

func defaultOptions() options {
	return options{
		numWorkers: runtime.GOMAXPROCS(-1),
		maxBacklog: 64,
	}
}
