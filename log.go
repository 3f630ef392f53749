// Copyright 2020 Cosmos Nicolaou. All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package blockproc

import "log"

// trace logs format/args via the standard log package iff verbose is
// set, mirroring the teacher's dc.trace helper in parallel.go.
func trace(verbose bool, format string, args ...interface{}) {
	if verbose {
		log.Printf(format, args...)
	}
}
