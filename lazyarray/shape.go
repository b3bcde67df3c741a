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
	"fmt"

	"github.com/lazynd/lazynd/ints"
)

// Slice is a half-open, unit-step range along one axis: [Start, Stop).
// ParseSlice rejects anything with a step other than 1 (spec.md §4.2).
type Slice struct {
	Start, Stop int64
}

func (s Slice) Len() int64 { return s.Stop - s.Start }

// ParseSlice validates a per-axis slice against an axis of length dim:
// it rejects a non-unit step, wraps a negative start or stop once by
// adding dim, and rejects (rather than clamps) bounds that still fall
// outside [0, dim] or a stop below start.
func ParseSlice(start, stop, step, dim int64) (Slice, error) {
	if step != 1 {
		return Slice{}, shapeErrorf("slice step must be 1, got %d", step)
	}
	if start < 0 {
		start += dim
	}
	if stop < 0 {
		stop += dim
	}
	if start < 0 || start > dim {
		return Slice{}, shapeErrorf("slice start %d out of bounds for dimension of size %d", start, dim)
	}
	if stop < start || stop > dim {
		return Slice{}, shapeErrorf("slice stop %d out of bounds for dimension of size %d", stop, dim)
	}
	return Slice{Start: start, Stop: stop}, nil
}

// FullSlice returns the slice selecting the whole axis of length dim.
func FullSlice(dim int64) Slice { return Slice{Start: 0, Stop: dim} }

// BroadcastShape computes the NumPy-style broadcast result of shapes,
// aligning from the trailing axis, requiring each pair of dimensions
// to be either equal or one of them 1 (spec.md §4.1, §7 ShapeError).
func BroadcastShape(shapes ...[]int64) ([]int64, error) {
	ndim := 0
	for _, s := range shapes {
		if len(s) > ndim {
			ndim = len(s)
		}
	}
	out := make([]int64, ndim)
	for i := range out {
		out[i] = 1
	}
	for _, s := range shapes {
		off := ndim - len(s)
		for i, d := range s {
			axis := off + i
			switch {
			case d == 1:
				// contributes nothing
			case out[axis] == 1:
				out[axis] = d
			case out[axis] != d:
				return nil, shapeErrorf("operands could not be broadcast together with shapes %v", shapesFor(shapes))
			}
		}
	}
	return out, nil
}

func shapesFor(shapes [][]int64) []string {
	out := make([]string, len(shapes))
	for i, s := range shapes {
		out[i] = fmt.Sprint(s)
	}
	return out
}

// IsSmaller reports whether shape a is no larger, axis-by-axis (after
// trailing alignment), than shape b -- used to decide which operand
// can serve as the output-shape reference without materializing the
// broadcast result (spec.md §4.1).
func IsSmaller(a, b []int64) bool {
	if len(a) > len(b) {
		return false
	}
	off := len(b) - len(a)
	for i, d := range a {
		if d > b[off+i] {
			return false
		}
	}
	return true
}

// ShapesEqual reports whether a and b are identical, dimension for
// dimension (no broadcasting).
func ShapesEqual(a, b []int64) bool {
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

// ProjectSlice maps a slice expressed against the broadcast output
// shape down onto an operand of shape opShape, collapsing any
// broadcast axis (an operand dimension of 1 facing an output
// dimension > 1) to the full [0,1) slice regardless of the requested
// range (spec.md §4.1's "Slicing through broadcast").
func ProjectSlice(slices []Slice, outShape, opShape []int64) []Slice {
	off := len(outShape) - len(opShape)
	proj := make([]Slice, len(opShape))
	for i, d := range opShape {
		s := slices[off+i]
		if d == 1 && outShape[off+i] != 1 {
			proj[i] = Slice{Start: 0, Stop: 1}
		} else {
			proj[i] = s
		}
	}
	return proj
}

// SlicesIntersect reports whether chunk (given as per-axis bounds
// chunkLo/chunkHi, half-open) has any overlap with every axis of
// sel, and if so returns the intersection per axis.
func SlicesIntersect(sel []Slice, chunkLo, chunkHi []int64) ([]Slice, bool) {
	out := make([]Slice, len(sel))
	for i := range sel {
		lo := ints.Max(sel[i].Start, chunkLo[i])
		hi := ints.Min(sel[i].Stop, chunkHi[i])
		if lo >= hi {
			return nil, false
		}
		out[i] = Slice{Start: lo, Stop: hi}
	}
	return out, true
}

// shapeOf converts a slice list into the shape it selects.
func shapeOf(slices []Slice) []int64 {
	out := make([]int64, len(slices))
	for i, s := range slices {
		out[i] = s.Len()
	}
	return out
}

// product returns the total element count of shape.
func product(shape []int64) int64 {
	n := int64(1)
	for _, d := range shape {
		n *= d
	}
	return n
}
