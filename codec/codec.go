// Copyright 2020 Cosmos Nicolaou. All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

// Package codec provides blockproc.Compressor adapters.
package codec

import (
	"fmt"

	"github.com/klauspost/compress/zstd"

	"github.com/kestrelfs/blockproc"
)

// Zstd wraps github.com/klauspost/compress/zstd as a blockproc.Compressor.
// Grounded on SPEC_FULL.md's domain-stack binding of the zstd library
// (sourced from distr1-distri's dependency list) to the processor's
// Compressor capability.
type Zstd struct {
	level zstd.EncoderLevel
	enc   *zstd.Encoder
}

// NewZstd creates a Zstd compressor at the given encoder level. A zero
// level selects zstd.SpeedDefault.
func NewZstd(level zstd.EncoderLevel) *Zstd {
	if level == 0 {
		level = zstd.SpeedDefault
	}
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(level))
	if err != nil {
		panic(fmt.Sprintf("codec: zstd.NewWriter: %v", err))
	}
	return &Zstd{level: level, enc: enc}
}

// DeepCopy implements blockproc.Compressor: each worker gets its own
// encoder instance sharing the configured level, matching the stage's
// per-worker codec-state requirement (SPEC_FULL.md §6).
func (z *Zstd) DeepCopy() blockproc.Compressor {
	return NewZstd(z.level)
}

// Compress implements blockproc.Compressor: n == 0 means the encoded
// form was no smaller than in, or didn't fit in out's capacity, and
// the caller must keep the original.
func (z *Zstd) Compress(in, out []byte) (int, error) {
	encoded := z.enc.EncodeAll(in, out[:0])
	if len(encoded) >= len(in) || len(encoded) > cap(out) {
		return 0, nil
	}
	copy(out, encoded)
	return len(encoded), nil
}

// NoCompression is a blockproc.Compressor that always reports its
// input incompressible, for tests wanting deterministic uncompressed
// output.
type NoCompression struct{}

// DeepCopy implements blockproc.Compressor.
func (NoCompression) DeepCopy() blockproc.Compressor { return NoCompression{} }

// Compress implements blockproc.Compressor.
func (NoCompression) Compress(in, out []byte) (int, error) { return 0, nil }
