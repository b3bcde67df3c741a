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

// validated is the outcome of validateInputs: the shape and dtype the
// output should take, whether the fast chunk-aligned path applies,
// and the chunked operand (if any) chosen as the chunk-plan reference.
type validated struct {
	Shape    []int64
	DType    container.DType
	FastPath bool
	Ref      container.Container // nil if no chunked operand exists
}

// validateInputs implements the six rules of the InputValidator
// contract: it rejects a degenerate operand set, checks broadcast
// compatibility across every array operand, and -- when at least one
// operand is a chunked container -- decides whether every chunked
// operand (and out, if chunked) shares identical chunk and block
// tiling, which is the precondition chunksEval/chunksGetitem need to
// take the fast path instead of falling back to slice-by-slice
// evaluation.
func validateInputs(table operandTable, out container.Container) (validated, error) {
	if table.Len() == 0 {
		return validated{}, typeErrorf("at least one operand is required")
	}

	arrays := table.arrays()
	var shapes [][]int64
	for _, e := range arrays {
		shapes = append(shapes, e.op.Shape())
	}
	if len(arrays) >= 2 {
		if _, err := BroadcastShape(shapes...); err != nil {
			return validated{}, err
		}
	}

	var chunkedOperands []container.Container
	for _, e := range arrays {
		if c, ok := e.op.Chunked(); ok {
			chunkedOperands = append(chunkedOperands, c)
		}
	}

	if len(chunkedOperands) == 0 {
		shape, dtype := firstArrayShapeDType(arrays, out)
		return validated{Shape: shape, DType: dtype, FastPath: false}, nil
	}

	ref := chunkedOperands[0]
	equalChunks := true
	equalBlocks := true
	if trailingMismatch(ref.Blocks(), ref.Chunks()) {
		equalBlocks = false
	}
	for _, c := range chunkedOperands[1:] {
		if !ShapesEqual(ref.Shape(), c.Shape()) {
			return validated{}, shapeErrorf("chunked operands should have the same shape")
		}
		if !ShapesEqual(ref.Chunks(), c.Chunks()) {
			equalChunks = false
		}
		if !ShapesEqual(ref.Blocks(), c.Blocks()) {
			equalBlocks = false
		}
		if trailingMismatch(ref.Blocks(), c.Chunks()) {
			equalBlocks = false
		}
	}
	if out != nil {
		if !ShapesEqual(ref.Chunks(), out.Chunks()) {
			equalChunks = false
		}
		if !ShapesEqual(ref.Blocks(), out.Blocks()) {
			equalBlocks = false
		}
	}

	dtype := ref.DType()
	if out != nil {
		dtype = out.DType()
	}
	return validated{
		Shape:    ref.Shape(),
		DType:    dtype,
		FastPath: equalChunks && equalBlocks,
		Ref:      ref,
	}, nil
}

// trailingMismatch reports whether blocks and chunks disagree on any
// dimension past the leading one -- the condition that disables the
// fast path even when chunk/block shapes otherwise match exactly
// (spec.md §4.3 rule 5).
func trailingMismatch(blocks, chunks []int64) bool {
	if len(blocks) != len(chunks) || len(blocks) == 0 {
		return false
	}
	for i := 1; i < len(blocks); i++ {
		if blocks[i] != chunks[i] {
			return true
		}
	}
	return false
}

func firstArrayShapeDType(arrays []namedOperand, out container.Container) ([]int64, container.DType) {
	if out != nil {
		return out.Shape(), out.DType()
	}
	if len(arrays) == 0 {
		return nil, container.Float64
	}
	return arrays[0].op.Shape(), arrays[0].op.DType()
}
