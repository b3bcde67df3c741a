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

import "github.com/lazynd/lazynd/container"

// operandFetcher turns one chunk's worth of an operand table into the
// name->Buffer binding a Kernel evaluates against, per spec.md §4.4:
// scalars pass straight through as a broadcast buffer, dense buffers
// and non-full chunks of a chunked container are read via a projected
// slice, and full chunks of a chunked container on the fast path are
// decompressed whole into a buffer reused across chunks.
type operandFetcher struct {
	table   operandTable
	reusable map[string][]byte
}

func newOperandFetcher(table operandTable) *operandFetcher {
	return &operandFetcher{table: table, reusable: map[string][]byte{}}
}

// fetchFast fetches every operand for chunk info assuming info.Full
// and that every chunked operand shares info's chunk tiling exactly.
func (f *operandFetcher) fetchFast(info ChunkInfo) (map[string]container.Buffer, error) {
	n := int(product(info.LocalShape))
	out := make(map[string]container.Buffer, f.table.Len())
	for _, e := range f.table.entries {
		switch {
		case e.op.IsScalar():
			s, _ := e.op.Scalar()
			out[e.name] = s.Broadcast(1)
		case e.op.IsChunked():
			c, _ := e.op.Chunked()
			raw, err := c.DecompressChunk(info.Nchunk, f.reusable[e.name])
			if err != nil {
				return nil, err
			}
			f.reusable[e.name] = raw
			out[e.name] = container.BufferFromBytes(raw, c.DType(), info.LocalShape, n)
		default:
			dense, _ := e.op.Dense()
			proj := ProjectSlice(info.Slice, highBounds(info.Slice), dense.Shape)
			out[e.name] = sliceBuffer(dense, dense.Shape, proj)
		}
	}
	return out, nil
}

// fetchGeneric fetches every operand projected against sel, a slice
// expressed in terms of the output/broadcast shape outShape. Used by
// slicesEval, evalInCache, GetItem and Reduce, and by chunksEval for a
// non-full chunk.
func (f *operandFetcher) fetchGeneric(outShape []int64, sel []Slice) (map[string]container.Buffer, error) {
	out := make(map[string]container.Buffer, f.table.Len())
	for _, e := range f.table.entries {
		switch {
		case e.op.IsScalar():
			s, _ := e.op.Scalar()
			out[e.name] = s.Broadcast(1)
		case e.op.IsChunked():
			c, _ := e.op.Chunked()
			proj := ProjectSlice(sel, outShape, c.Shape())
			buf, err := readSlice(c, proj)
			if err != nil {
				return nil, err
			}
			out[e.name] = buf
		default:
			dense, _ := e.op.Dense()
			proj := ProjectSlice(sel, outShape, dense.Shape)
			out[e.name] = sliceBuffer(dense, dense.Shape, proj)
		}
	}
	return out, nil
}

// slicesFromShape turns a fast-path chunk slice back into a slice
// list expressed relative to its own local shape (i.e. [0, dim) per
// axis), the form ProjectSlice expects as its "reference slice" when
// the reference is the chunk itself.
func slicesFromShape(local []Slice) []Slice {
	out := make([]Slice, len(local))
	for i, s := range local {
		out[i] = Slice{Start: 0, Stop: s.Len()}
	}
	return out
}

// readSlice gathers sel (expressed against c's own logical shape) out
// of a chunked Container by decompressing every chunk that intersects
// sel and copying the overlap into the result buffer. This is the
// generic (non-fast-path) equivalent of a dense buffer's direct slice.
func readSlice(c container.Container, sel []Slice) (container.Buffer, error) {
	localShape := shapeOf(sel)
	dst := container.NewBuffer(c.DType(), localShape, int(product(localShape)))
	var reuse []byte
	for _, info := range planChunks(c) {
		overlap, ok := SlicesIntersect(sel, lowBounds(info.Slice), highBounds(info.Slice))
		if !ok {
			continue
		}
		raw, err := c.DecompressChunk(info.Nchunk, reuse)
		if err != nil {
			return container.Buffer{}, err
		}
		reuse = raw
		chunkBuf := container.BufferFromBytes(raw, c.DType(), info.LocalShape, int(product(info.LocalShape)))
		copyOverlap(dst, sel, chunkBuf, info.Slice, overlap)
	}
	return dst, nil
}

func lowBounds(s []Slice) []int64 {
	out := make([]int64, len(s))
	for i, v := range s {
		out[i] = v.Start
	}
	return out
}

func highBounds(s []Slice) []int64 {
	out := make([]int64, len(s))
	for i, v := range s {
		out[i] = v.Stop
	}
	return out
}

// copyOverlap copies the portion of chunkBuf (whose local coordinate
// origin is chunkSlice) covered by overlap into dst (whose local
// coordinate origin is dstSlice).
func copyOverlap(dst container.Buffer, dstSlice []Slice, chunkBuf container.Buffer, chunkSlice []Slice, overlap []Slice) {
	overlapShape := shapeOf(overlap)
	forEachIndex(overlapShape, func(rel []int64) {
		dstIdx := make([]int64, len(rel))
		chunkIdx := make([]int64, len(rel))
		for i, r := range rel {
			abs := overlap[i].Start + r
			dstIdx[i] = abs - dstSlice[i].Start
			chunkIdx[i] = abs - chunkSlice[i].Start
		}
		dstFlat := flatIndex(shapeOf(dstSlice), dstIdx)
		chunkFlat := flatIndex(shapeOf(chunkSlice), chunkIdx)
		dst.SetElem(int(dstFlat), chunkBuf.Elem(int(chunkFlat)))
	})
}

// sliceBuffer extracts the sub-rectangle sel of a flat, row-major
// buffer whose logical shape is srcShape.
func sliceBuffer(src container.Buffer, srcShape []int64, sel []Slice) container.Buffer {
	localShape := shapeOf(sel)
	dst := container.NewBuffer(src.DType, localShape, int(product(localShape)))
	forEachIndex(localShape, func(rel []int64) {
		srcIdx := make([]int64, len(rel))
		for i, r := range rel {
			srcIdx[i] = sel[i].Start + r
		}
		srcFlat := flatIndex(srcShape, srcIdx)
		dstFlat := flatIndex(localShape, rel)
		dst.SetElem(int(dstFlat), src.Elem(int(srcFlat)))
	})
	return dst
}

// flatIndex converts an N-dimensional row-major index into a flat
// offset for an array of the given shape.
func flatIndex(shape []int64, idx []int64) int64 {
	var flat int64
	for i, d := range shape {
		flat = flat*d + idx[i]
	}
	return flat
}

// forEachIndex calls fn once for every row-major coordinate of shape,
// reusing a single backing slice across calls (fn must not retain it).
func forEachIndex(shape []int64, fn func(idx []int64)) {
	n := len(shape)
	if n == 0 {
		fn(nil)
		return
	}
	idx := make([]int64, n)
	total := product(shape)
	for i := int64(0); i < total; i++ {
		fn(idx)
		for d := n - 1; d >= 0; d-- {
			idx[d]++
			if idx[d] < shape[d] {
				break
			}
			idx[d] = 0
		}
	}
}
