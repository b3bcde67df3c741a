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

package numexpr

import "fmt"

// This file's broadcast helpers are a self-contained duplicate of
// lazyarray's shape algebra (see lazyarray/shape.go), not a shared
// import: numexpr is a reference Kernel that lazyarray depends on via
// container.Kernel, so the dependency must not run the other way.

// broadcastShape computes the NumPy-style broadcast shape of two
// shapes, aligning from the right and allowing any size-1 dimension
// (or a wholly absent leading dimension) to stretch to match its
// counterpart.
func broadcastShape(a, b []int64) ([]int64, error) {
	n := len(a)
	if len(b) > n {
		n = len(b)
	}
	out := make([]int64, n)
	for i := 0; i < n; i++ {
		var ai, bi int64 = 1, 1
		if k := i - (n - len(a)); k >= 0 {
			ai = a[k]
		}
		if k := i - (n - len(b)); k >= 0 {
			bi = b[k]
		}
		switch {
		case ai == bi:
			out[i] = ai
		case ai == 1:
			out[i] = bi
		case bi == 1:
			out[i] = ai
		default:
			return nil, fmt.Errorf("numexpr: shapes %v and %v are not broadcastable", a, b)
		}
	}
	return out, nil
}

// strides returns the row-major strides of shape.
func strides(shape []int64) []int64 {
	n := len(shape)
	st := make([]int64, n)
	acc := int64(1)
	for i := n - 1; i >= 0; i-- {
		st[i] = acc
		acc *= shape[i]
	}
	return st
}

// broadcastStrides maps shape's natural strides onto outShape's rank
// (right-aligned), using a zero stride for every dimension that is
// absent in shape or of size 1 where outShape is larger.
func broadcastStrides(shape, outShape []int64) []int64 {
	n := len(outShape)
	st := strides(shape)
	full := make([]int64, n)
	offset := n - len(shape)
	for i := 0; i < n; i++ {
		if i < offset {
			full[i] = 0
			continue
		}
		dim := shape[i-offset]
		if dim == 1 && outShape[i] != 1 {
			full[i] = 0
		} else {
			full[i] = st[i-offset]
		}
	}
	return full
}

func product(shape []int64) int {
	p := 1
	for _, d := range shape {
		p *= int(d)
	}
	return p
}

// forEachIndex calls fn once per flat output element with that
// element's multi-dimensional coordinate, in row-major order.
func forEachIndex(outShape []int64, fn func(flat int, idx []int64)) {
	n := len(outShape)
	total := product(outShape)
	idx := make([]int64, n)
	for flat := 0; flat < total; flat++ {
		fn(flat, idx)
		for i := n - 1; i >= 0; i-- {
			idx[i]++
			if idx[i] < outShape[i] {
				break
			}
			idx[i] = 0
		}
	}
}

// flatIndex projects idx (a coordinate in outShape's space) onto a
// flat offset in a source buffer via that source's broadcast strides.
func flatIndex(idx []int64, st []int64) int {
	off := int64(0)
	for i, s := range st {
		off += idx[i] * s
	}
	return int(off)
}
