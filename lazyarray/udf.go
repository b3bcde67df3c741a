// Copyright (C) 2022 Sneller, Inc.
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program.  If not, see <http://www.gnu.org/licenses/>.

package lazyarray

import (
	"context"

	"github.com/lazynd/lazynd/container"
)

// LazyUDF is a lazy array backed by a user-supplied per-chunk
// function rather than a textual expression -- the original
// LazyArray implementation's second concrete type, kept distinct from
// LazyNode rather than folded in, mirroring that split. Unlike
// LazyNode it can never be Save'd: persistence only understands
// textual expressions (see persist.go).
type LazyUDF struct {
	fn       container.BlockFunc
	operands operandTable
	shape    []int64
	dtype    container.DType
}

// NewLazyUDF wraps fn and its raw inputs as a lazy array of the given
// shape and dtype. When at least one input is chunked, fn is invoked
// once per chunk of the reference operand chosen by reference;
// otherwise it is invoked once over the whole array.
func NewLazyUDF(fn container.BlockFunc, inputs []Operand, shape []int64, dtype container.DType) (*LazyUDF, error) {
	if fn == nil {
		return nil, exprErrorf("", "NewLazyUDF: fn must not be nil")
	}
	if len(inputs) == 0 {
		return nil, exprErrorf("", "NewLazyUDF: at least one input operand is required")
	}
	t := newOperandTable()
	for _, in := range inputs {
		t, _ = t.append(in)
	}
	return &LazyUDF{fn: fn, operands: t, shape: shape, dtype: dtype}, nil
}

// Shape returns the UDF's declared output shape.
func (u *LazyUDF) Shape() []int64 { return u.shape }

// DType returns the UDF's declared output element type.
func (u *LazyUDF) DType() container.DType { return u.dtype }

// reference returns a chunked input operand to drive EvalUDF/
// GetItemUDF's chunk loop tiling, preferring the first one whose shape
// is no larger than u.shape (IsSmaller) so planChunks never walks a
// grid wider than the declared output -- a UDF's inputs need not share
// a common shape the way LazyNode's operands do (validateInputs
// enforces that there; NewLazyUDF does not), so an arbitrary first
// match could otherwise pick an oversized reference and tile past the
// output buffer's bounds.
func (u *LazyUDF) reference() (container.Container, bool) {
	var fallback container.Container
	haveFallback := false
	for _, e := range u.operands.arrays() {
		c, ok := e.op.Chunked()
		if !ok {
			continue
		}
		if IsSmaller(c.Shape(), u.shape) {
			return c, true
		}
		if !haveFallback {
			fallback, haveFallback = c, true
		}
	}
	return fallback, haveFallback
}

func (u *LazyUDF) inputsFrom(ops map[string]container.Buffer) []container.Buffer {
	names := u.operands.names()
	out := make([]container.Buffer, len(names))
	for i, name := range names {
		out[i] = ops[name]
	}
	return out
}

// EvalUDF evaluates u chunk by chunk, invoking its block function once
// per chunk of the reference operand and writing the result into
// opts.Out or a freshly allocated Container. When opts.Guard is
// non-nil it wraps the whole chunk loop; chunkstore.WithSerialCompression
// is such a guard, and serializes guarded runs with each other. EvalUDF
// installs no guard of its own and changes no compression thread
// setting.
func (d *EvalDriver) EvalUDF(ctx context.Context, u *LazyUDF, opts EvalOptions) (container.Container, error) {
	out := opts.Out
	run := func() error {
		ref, hasRef := u.reference()
		if out == nil {
			cfg := opts.Config
			if hasRef {
				if len(cfg.Chunks) == 0 {
					cfg.Chunks = ref.Chunks()
				}
				if len(cfg.Blocks) == 0 {
					cfg.Blocks = ref.Blocks()
				}
			}
			var err error
			out, err = d.Factory.Create(u.shape, u.dtype, cfg)
			if err != nil {
				return err
			}
		}

		fetcher := newOperandFetcher(u.operands)
		infos := []ChunkInfo{{Slice: fullSliceOf(u.shape), LocalShape: u.shape, Full: true}}
		if hasRef {
			infos = planChunks(ref)
		}
		for _, info := range infos {
			if err := ctx.Err(); err != nil {
				return err
			}
			var ops map[string]container.Buffer
			var err error
			if info.Full {
				ops, err = fetcher.fetchFast(info)
			} else {
				ops, err = fetcher.fetchGeneric(u.shape, info.Slice)
			}
			if err != nil {
				return err
			}
			dst := container.NewBuffer(u.dtype, info.LocalShape, int(product(info.LocalShape)))
			if err := u.fn(u.inputsFrom(ops), &dst, lowBounds(info.Slice)); err != nil {
				return err
			}
			if err := out.UpdateData(info.Nchunk, dst.Bytes(), false); err != nil {
				return err
			}
		}
		return nil
	}

	guard := opts.Guard
	if guard == nil {
		guard = func(fn func() error) error { return fn() }
	}
	if err := guard(run); err != nil {
		return nil, err
	}
	return out, nil
}

// GetItemUDF evaluates u restricted to sel (nil means the whole
// array) and returns the result as a single in-memory Buffer, the UDF
// counterpart to EvalDriver.GetItem.
func (d *EvalDriver) GetItemUDF(ctx context.Context, u *LazyUDF, sel []Slice) (container.Buffer, error) {
	if sel == nil {
		sel = fullSliceOf(u.shape)
	}
	fetcher := newOperandFetcher(u.operands)
	outShape := shapeOf(sel)
	dst := container.NewBuffer(u.dtype, outShape, int(product(outShape)))

	ref, hasRef := u.reference()
	if !hasRef {
		ops, err := fetcher.fetchGeneric(u.shape, sel)
		if err != nil {
			return container.Buffer{}, err
		}
		if err := u.fn(u.inputsFrom(ops), &dst, lowBounds(sel)); err != nil {
			return container.Buffer{}, err
		}
		return dst, nil
	}

	for _, info := range planChunks(ref) {
		if err := ctx.Err(); err != nil {
			return container.Buffer{}, err
		}
		overlap, ok := SlicesIntersect(sel, lowBounds(info.Slice), highBounds(info.Slice))
		if !ok {
			continue
		}
		var ops map[string]container.Buffer
		var err error
		var localShape []int64
		if info.Full && sameSlice(overlap, info.Slice) {
			ops, err = fetcher.fetchFast(info)
			localShape = info.LocalShape
		} else {
			ops, err = fetcher.fetchGeneric(u.shape, overlap)
			localShape = shapeOf(overlap)
		}
		if err != nil {
			return container.Buffer{}, err
		}
		res := container.NewBuffer(u.dtype, localShape, int(product(localShape)))
		if err := u.fn(u.inputsFrom(ops), &res, lowBounds(overlap)); err != nil {
			return container.Buffer{}, err
		}
		copyOverlap(dst, sel, res, overlap, overlap)
	}
	return dst, nil
}
