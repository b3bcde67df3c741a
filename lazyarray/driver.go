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
	"math"

	"github.com/lazynd/lazynd/container"
)

// inCacheThreshold is the element count below which Eval skips the
// whole chunk-plan machinery and evaluates the expression in one
// shot, the same "somewhat arbitrary threshold" judgment call the
// original expression engine makes for operands small enough to fit
// in cache.
const inCacheThreshold = 10_000

// EvalDriver ties a LazyNode/Reduction to the two external
// collaborators it needs to actually produce data: a Kernel to
// evaluate expression text over operand buffers, and a Factory to
// allocate the output Container. It never imports a concrete
// implementation of either.
type EvalDriver struct {
	Kernel  container.Kernel
	Factory container.Factory
}

// NewEvalDriver constructs a driver bound to kernel and factory.
func NewEvalDriver(kernel container.Kernel, factory container.Factory) *EvalDriver {
	return &EvalDriver{Kernel: kernel, Factory: factory}
}

// EvalOptions configures a single Eval call.
type EvalOptions struct {
	Out    container.Container // nil: allocate a fresh output via Factory
	Config container.Config
	Item   []Slice // non-nil: restrict evaluation to this region

	// Guard, if non-nil, wraps EvalUDF's chunk loop.
	// chunkstore.WithSerialCompression can fill this role: it
	// serializes guarded runs with each other, though Stores
	// themselves do not take its lock. LazyNode's Eval/Reduce ignore
	// it.
	Guard func(fn func() error) error
}

// Eval evaluates n over its operands, writing the result into opts.Out
// if supplied, or a freshly allocated Container otherwise.
func (d *EvalDriver) Eval(ctx context.Context, n *LazyNode, opts EvalOptions) (container.Container, error) {
	if err := d.Kernel.Validate(n.expr, n.operands.names()); err != nil {
		return nil, err
	}
	v, err := validateInputs(n.operands, opts.Out)
	if err != nil {
		return nil, err
	}

	if opts.Item != nil {
		return d.slicesEval(ctx, n, v, opts, opts.Item)
	}

	if product(v.Shape) <= inCacheThreshold {
		return d.evalInCache(n, v, opts)
	}
	if v.FastPath && v.Ref != nil && noCustomTiling(opts.Config) {
		return d.chunksEval(ctx, n, v, opts)
	}
	return d.slicesEval(ctx, n, v, opts, nil)
}

// GetItem evaluates n restricted to sel (nil means the whole array)
// and returns the result as a single in-memory Buffer, never touching
// a Container -- the Go rendering of __getitem__/eval(item=...,
// _getitem=True).
func (d *EvalDriver) GetItem(ctx context.Context, n *LazyNode, sel []Slice) (container.Buffer, error) {
	if err := d.Kernel.Validate(n.expr, n.operands.names()); err != nil {
		return container.Buffer{}, err
	}
	v, err := validateInputs(n.operands, nil)
	if err != nil {
		return container.Buffer{}, err
	}
	if sel == nil {
		sel = fullSliceOf(v.Shape)
	}

	fetcher := newOperandFetcher(n.operands)
	outShape := shapeOf(sel)
	dst := container.NewBuffer(v.DType, outShape, int(product(outShape)))

	if v.FastPath && v.Ref != nil {
		for _, info := range planChunks(v.Ref) {
			if err := ctx.Err(); err != nil {
				return container.Buffer{}, err
			}
			overlap, ok := SlicesIntersect(sel, lowBounds(info.Slice), highBounds(info.Slice))
			if !ok {
				continue
			}
			var res container.Buffer
			var err error
			if info.Full && sameSlice(overlap, info.Slice) {
				ops, ferr := fetcher.fetchFast(info)
				if ferr != nil {
					return container.Buffer{}, ferr
				}
				res, err = d.Kernel.Evaluate(n.expr, ops, nil)
			} else {
				ops, ferr := fetcher.fetchGeneric(v.Shape, overlap)
				if ferr != nil {
					return container.Buffer{}, ferr
				}
				res, err = d.Kernel.Evaluate(n.expr, ops, nil)
			}
			if err != nil {
				return container.Buffer{}, &KernelError{Expr: n.expr, Err: err}
			}
			copyOverlap(dst, sel, res, overlap, overlap)
		}
		return dst, nil
	}

	ops, err := fetcher.fetchGeneric(v.Shape, sel)
	if err != nil {
		return container.Buffer{}, err
	}
	res, err := d.Kernel.Evaluate(n.expr, ops, nil)
	if err != nil {
		return container.Buffer{}, &KernelError{Expr: n.expr, Err: err}
	}
	return res, nil
}

// evalInCache fetches every operand as one whole dense buffer and
// evaluates the expression a single time, for arrays small enough to
// fit comfortably in CPU cache.
func (d *EvalDriver) evalInCache(n *LazyNode, v validated, opts EvalOptions) (container.Container, error) {
	fetcher := newOperandFetcher(n.operands)
	full := fullSliceOf(v.Shape)
	ops, err := fetcher.fetchGeneric(v.Shape, full)
	if err != nil {
		return nil, err
	}
	res, err := d.Kernel.Evaluate(n.expr, ops, nil)
	if err != nil {
		return nil, &KernelError{Expr: n.expr, Err: err}
	}
	return d.materialize(res, v, opts)
}

// chunksEval walks the reference container's own chunk grid, taking
// the decompress-whole-chunk fast path for full chunks and falling
// back to a projected slice read for the partial chunk at the edge of
// a non-evenly-dividing shape.
func (d *EvalDriver) chunksEval(ctx context.Context, n *LazyNode, v validated, opts EvalOptions) (container.Container, error) {
	out := opts.Out
	if out == nil {
		cfg := opts.Config
		cfg.Chunks = v.Ref.Chunks()
		cfg.Blocks = v.Ref.Blocks()
		var err error
		out, err = d.Factory.Create(v.Shape, v.DType, cfg)
		if err != nil {
			return nil, err
		}
	}

	fetcher := newOperandFetcher(n.operands)
	for _, info := range planChunks(v.Ref) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		var ops map[string]container.Buffer
		var err error
		if info.Full {
			ops, err = fetcher.fetchFast(info)
		} else {
			ops, err = fetcher.fetchGeneric(v.Shape, info.Slice)
		}
		if err != nil {
			return nil, err
		}
		res, err := d.Kernel.Evaluate(n.expr, ops, nil)
		if err != nil {
			return nil, &KernelError{Expr: n.expr, Err: err}
		}
		if err := out.UpdateData(info.Nchunk, res.Bytes(), false); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// slicesEval is the generic fallback: it walks the reference
// container's chunk grid (or, when sel is supplied, only the chunks
// that intersect sel) and reads each operand via a projected slice
// rather than assuming identical tiling.
func (d *EvalDriver) slicesEval(ctx context.Context, n *LazyNode, v validated, opts EvalOptions, sel []Slice) (container.Container, error) {
	out := opts.Out
	if out == nil {
		cfg := opts.Config
		if v.Ref != nil {
			cfg.Chunks = v.Ref.Chunks()
		}
		var err error
		out, err = d.Factory.Create(v.Shape, v.DType, cfg)
		if err != nil {
			return nil, err
		}
	}

	fetcher := newOperandFetcher(n.operands)
	if v.Ref == nil {
		full := fullSliceOf(v.Shape)
		ops, err := fetcher.fetchGeneric(v.Shape, full)
		if err != nil {
			return nil, err
		}
		res, err := d.Kernel.Evaluate(n.expr, ops, nil)
		if err != nil {
			return nil, &KernelError{Expr: n.expr, Err: err}
		}
		return out, out.UpdateData(0, res.Bytes(), false)
	}

	for _, info := range planChunks(v.Ref) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		region := info.Slice
		if sel != nil {
			overlap, ok := SlicesIntersect(sel, lowBounds(info.Slice), highBounds(info.Slice))
			if !ok {
				continue
			}
			region = overlap
		}
		ops, err := fetcher.fetchGeneric(v.Shape, region)
		if err != nil {
			return nil, err
		}
		res, err := d.Kernel.Evaluate(n.expr, ops, nil)
		if err != nil {
			return nil, &KernelError{Expr: n.expr, Err: err}
		}
		if err := writeRegion(out, info, region, res); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// writeRegion writes res, which covers region (a sub-rectangle of
// chunk info.Nchunk), back into out. When region spans the whole
// chunk this is a plain UpdateData; otherwise the chunk is
// read-modify-written so the untouched portion survives.
func writeRegion(out container.Container, info ChunkInfo, region []Slice, res container.Buffer) error {
	if sameSlice(region, info.Slice) {
		return out.UpdateData(info.Nchunk, res.Bytes(), false)
	}
	raw, err := out.DecompressChunk(info.Nchunk, nil)
	if err != nil {
		return err
	}
	chunkBuf := container.BufferFromBytes(raw, out.DType(), info.LocalShape, int(product(info.LocalShape)))
	copyOverlap(chunkBuf, info.Slice, res, region, region)
	return out.UpdateData(info.Nchunk, chunkBuf.Bytes(), false)
}

// materialize writes a single whole-array result buffer, chunk by
// chunk, into opts.Out or a freshly allocated Container (a single
// chunk unless opts.Config sets Chunks).
func (d *EvalDriver) materialize(res container.Buffer, v validated, opts EvalOptions) (container.Container, error) {
	out := opts.Out
	if out == nil {
		cfg := opts.Config
		if len(cfg.Chunks) == 0 {
			cfg.Chunks = v.Shape
		}
		var err error
		out, err = d.Factory.Create(v.Shape, v.DType, cfg)
		if err != nil {
			return nil, err
		}
	}
	for _, info := range planChunks(out) {
		part := sliceBuffer(res, v.Shape, info.Slice)
		if err := out.UpdateData(info.Nchunk, part.Bytes(), false); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// Reduce evaluates r's node and folds the result down across r.Axis
// (or every axis, if empty), producing a dense Buffer shaped to the
// output shape -- a 0-element-shape, 1-element Buffer for a full
// reduction.
func (d *EvalDriver) Reduce(ctx context.Context, r *Reduction) (container.Buffer, error) {
	n := r.Node
	if err := d.Kernel.Validate(n.expr, n.operands.names()); err != nil {
		return container.Buffer{}, err
	}
	v, err := validateInputs(n.operands, nil)
	if err != nil {
		return container.Buffer{}, err
	}
	dtype := v.DType
	if r.DType != nil {
		dtype = *r.DType
	} else if r.Op == Mean || r.Op == Var || r.Op == Std {
		// Matches numpy's promotion of integer inputs to float64 for
		// these reductions; an explicit DType overrides it.
		dtype = container.Float64
	}
	axisSet := axesToReduce(len(v.Shape), r.Axis)
	outShape := outputShapeAfterReduce(v.Shape, axisSet)
	outN := int(product(outShape))
	if outN == 0 {
		outN = 1
	}

	needSumSq := r.Op == Var || r.Op == Std
	effOp := r.Op
	if effOp == Mean || effOp == Var || effOp == Std {
		effOp = Sum
	}

	acc := container.NewBuffer(dtype, outShape, outN)
	fillIdentity(acc, identityScalar(effOp, dtype))
	var accSq container.Buffer
	if needSumSq {
		accSq = container.NewBuffer(dtype, outShape, outN)
		fillIdentity(accSq, identityScalar(Sum, dtype))
	}

	fetcher := newOperandFetcher(n.operands)
	count := int64(1)
	for axis := range axisSet {
		count *= v.Shape[axis]
	}

	process := func(info ChunkInfo, ops map[string]container.Buffer) error {
		res, err := d.Kernel.Evaluate(n.expr, ops, nil)
		if err != nil {
			return &KernelError{Expr: n.expr, Err: err}
		}
		reduceChunk(acc, outShape, axisSet, info.Slice, res, effOp)
		if needSumSq {
			sq := squareBuffer(res)
			reduceChunk(accSq, outShape, axisSet, info.Slice, sq, Sum)
		}
		return nil
	}

	if v.Ref != nil {
		for _, info := range planChunks(v.Ref) {
			if err := ctx.Err(); err != nil {
				return container.Buffer{}, err
			}
			var ops map[string]container.Buffer
			var err error
			if info.Full && v.FastPath {
				ops, err = fetcher.fetchFast(info)
			} else {
				ops, err = fetcher.fetchGeneric(v.Shape, info.Slice)
			}
			if err != nil {
				return container.Buffer{}, err
			}
			if err := process(info, ops); err != nil {
				return container.Buffer{}, err
			}
		}
	} else {
		full := fullSliceOf(v.Shape)
		ops, err := fetcher.fetchGeneric(v.Shape, full)
		if err != nil {
			return container.Buffer{}, err
		}
		if err := process(ChunkInfo{Slice: full}, ops); err != nil {
			return container.Buffer{}, err
		}
	}

	switch r.Op {
	case Mean:
		divideScalar(acc, float64(count))
	case Var:
		toVariance(acc, accSq, float64(count))
	case Std:
		toVariance(acc, accSq, float64(count))
		sqrtBuffer(acc)
	}
	return acc, nil
}

func axesToReduce(ndim int, axis []int) map[int]bool {
	set := map[int]bool{}
	if len(axis) == 0 {
		for i := 0; i < ndim; i++ {
			set[i] = true
		}
		return set
	}
	for _, a := range axis {
		set[a] = true
	}
	return set
}

func outputShapeAfterReduce(shape []int64, axisSet map[int]bool) []int64 {
	var out []int64
	for i, d := range shape {
		if !axisSet[i] {
			out = append(out, d)
		}
	}
	return out
}

func fillIdentity(b container.Buffer, id container.Scalar) {
	n := b.Len()
	for i := 0; i < n; i++ {
		switch b.DType {
		case container.Bool:
			b.Bools[i] = id.Bool
		case container.Int64:
			b.Ints[i] = id.Int
		case container.Complex128:
			b.Complexes[i] = id.Cplx
		default:
			b.Floats[i] = id.Float
		}
	}
}

// reduceChunk folds chunkResult (covering chunkSlice of the full
// array) into acc (shaped outShape, with axisSet's axes dropped).
func reduceChunk(acc container.Buffer, outShape []int64, axisSet map[int]bool, chunkSlice []Slice, chunkResult container.Buffer, op ReduceOp) {
	localShape := shapeOf(chunkSlice)
	forEachIndex(localShape, func(rel []int64) {
		var accIdx []int64
		for i, r := range rel {
			if axisSet[i] {
				continue
			}
			accIdx = append(accIdx, chunkSlice[i].Start+r)
		}
		accFlat := flatIndex(outShape, accIdx)
		chunkFlat := flatIndex(localShape, rel)
		mergeElem(op, acc, int(accFlat), chunkResult, int(chunkFlat))
	})
}

func squareBuffer(b container.Buffer) container.Buffer {
	out := container.NewBuffer(b.DType, b.Shape, b.Len())
	for i := 0; i < b.Len(); i++ {
		switch b.DType {
		case container.Int64:
			out.Ints[i] = b.Ints[i] * b.Ints[i]
		case container.Complex128:
			out.Complexes[i] = b.Complexes[i] * b.Complexes[i]
		default:
			f := b.Float64At(i)
			out.Floats[i] = f * f
		}
	}
	return out
}

func divideScalar(b container.Buffer, n float64) {
	for i := 0; i < b.Len(); i++ {
		switch b.DType {
		case container.Int64:
			b.Ints[i] = int64(float64(b.Ints[i]) / n)
		case container.Complex128:
			b.Complexes[i] = b.Complexes[i] / complex(n, 0)
		default:
			b.Floats[i] = b.Floats[i] / n
		}
	}
}

func toVariance(sum, sumSq container.Buffer, n float64) {
	for i := 0; i < sum.Len(); i++ {
		mean := sum.Float64At(i) / n
		meanSq := sumSq.Float64At(i) / n
		v := meanSq - mean*mean
		if v < 0 {
			v = 0
		}
		sum.Floats = ensureFloats(sum)
		sum.Floats[i] = v
	}
}

func sqrtBuffer(b container.Buffer) {
	for i := 0; i < b.Len(); i++ {
		b.Floats[i] = math.Sqrt(b.Floats[i])
	}
}

func ensureFloats(b container.Buffer) []float64 {
	if b.Floats != nil {
		return b.Floats
	}
	return make([]float64, b.Len())
}

func noCustomTiling(cfg container.Config) bool {
	return len(cfg.Chunks) == 0 && len(cfg.Blocks) == 0
}

func fullSliceOf(shape []int64) []Slice {
	out := make([]Slice, len(shape))
	for i, d := range shape {
		out[i] = Slice{Start: 0, Stop: d}
	}
	return out
}

func sameSlice(a, b []Slice) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
