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
	"github.com/lazynd/lazynd/container"
	"github.com/lazynd/lazynd/ints"
)

// ChunkInfo describes one chunk of a reference Container's chunk grid:
// its linear index, its per-axis grid coordinate, the slice of the
// logical array it covers, that slice's shape, and whether it is a
// "full" chunk (exactly chunks-shaped, with no trailing padding).
type ChunkInfo struct {
	Nchunk     int
	Coords     []int64
	Slice      []Slice
	LocalShape []int64
	Full       bool
}

// planChunks enumerates ref's chunk grid in row-major chunk order
// (spec.md §4.4): nchunk ranges over [0, ref.Nchunks()), coords is
// nchunk unraveled against the per-axis chunk-grid extents
// (ExtShape[i]/Chunks[i]), and each chunk's slice is clipped to the
// logical (unpadded) Shape.
func planChunks(ref container.Container) []ChunkInfo {
	shape := ref.Shape()
	chunks := ref.Chunks()
	ext := ref.ExtShape()
	ndim := len(shape)

	grid := make([]int64, ndim)
	for i := range grid {
		grid[i] = ext[i] / chunks[i]
	}

	n := ref.Nchunks()
	out := make([]ChunkInfo, n)
	for nchunk := 0; nchunk < n; nchunk++ {
		coords := unravel(int64(nchunk), grid)
		slice := make([]Slice, ndim)
		local := make([]int64, ndim)
		full := true
		for i := 0; i < ndim; i++ {
			lo := coords[i] * chunks[i]
			hi := ints.Min(lo+chunks[i], shape[i])
			slice[i] = Slice{Start: lo, Stop: hi}
			local[i] = hi - lo
			if local[i] != chunks[i] {
				full = false
			}
		}
		out[nchunk] = ChunkInfo{Nchunk: nchunk, Coords: coords, Slice: slice, LocalShape: local, Full: full}
	}
	return out
}

// unravel converts a linear chunk index into per-axis grid
// coordinates, row-major (last axis varies fastest).
func unravel(index int64, grid []int64) []int64 {
	coords := make([]int64, len(grid))
	for i := len(grid) - 1; i >= 0; i-- {
		if grid[i] == 0 {
			continue
		}
		coords[i] = index % grid[i]
		index /= grid[i]
	}
	return coords
}
