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
	"reflect"
	"testing"

	"github.com/lazynd/lazynd/container"
)

// memContainer is a tiny uncompressed in-memory container.Container,
// sufficient for exercising fetchFast/fetchGeneric/readSlice without
// pulling in the reference chunkstore package.
type memContainer struct {
	shape, chunks, ext []int64
	dtype              container.DType
	chunkData          map[int][]byte
}

func newMemContainer(shape, chunks []int64, dtype container.DType) *memContainer {
	ext := make([]int64, len(shape))
	for i := range shape {
		n := shape[i] / chunks[i]
		if shape[i]%chunks[i] != 0 {
			n++
		}
		ext[i] = n * chunks[i]
	}
	return &memContainer{shape: shape, chunks: chunks, ext: ext, dtype: dtype, chunkData: map[int][]byte{}}
}

func (c *memContainer) Shape() []int64         { return c.shape }
func (c *memContainer) Chunks() []int64        { return c.chunks }
func (c *memContainer) Blocks() []int64        { return c.chunks }
func (c *memContainer) ExtShape() []int64      { return c.ext }
func (c *memContainer) DType() container.DType { return c.dtype }
func (c *memContainer) Nchunks() int {
	n := 1
	for i := range c.ext {
		n *= int(c.ext[i] / c.chunks[i])
	}
	return n
}
func (c *memContainer) Locator() string { return "mem" }

func (c *memContainer) DecompressChunk(nchunk int, dst []byte) ([]byte, error) {
	data, ok := c.chunkData[nchunk]
	if !ok {
		info := planChunks(c)[nchunk]
		n := int(product(info.LocalShape))
		buf := container.NewBuffer(c.dtype, info.LocalShape, n)
		return buf.Bytes(), nil
	}
	out := append(dst[:0], data...)
	return out, nil
}

func (c *memContainer) UpdateData(nchunk int, result []byte, copy bool) error {
	data := result
	if copy {
		data = append([]byte(nil), result...)
	}
	c.chunkData[nchunk] = data
	return nil
}

func (c *memContainer) LazyChunkHeader(nchunk int) (container.ChunkHeader, bool) {
	return container.ChunkHeader{}, false
}
func (c *memContainer) WriteMetadata(key string, data []byte) error { return nil }
func (c *memContainer) ReadMetadata(key string) ([]byte, bool, error) {
	return nil, false, nil
}

func mustWrite(t *testing.T, c *memContainer, nchunk int, vs []float64) {
	t.Helper()
	buf := container.NewBuffer(container.Float64, nil, len(vs))
	copy(buf.Floats, vs)
	if err := c.UpdateData(nchunk, buf.Bytes(), false); err != nil {
		t.Fatal(err)
	}
}

func TestFetchFastDecompressesFullChunk(t *testing.T) {
	c := newMemContainer([]int64{4}, []int64{2}, container.Float64)
	mustWrite(t, c, 0, []float64{1, 2})
	mustWrite(t, c, 1, []float64{3, 4})

	tbl := newOperandTable()
	tbl, _ = tbl.append(NewChunked(c))
	f := newOperandFetcher(tbl)

	plan := planChunks(c)
	bufs, err := f.fetchFast(plan[1])
	if err != nil {
		t.Fatal(err)
	}
	got := bufs["o0"].Floats
	if !reflect.DeepEqual(got, []float64{3, 4}) {
		t.Fatalf("got %v want [3 4]", got)
	}
}

func TestFetchFastBroadcastsScalar(t *testing.T) {
	c := newMemContainer([]int64{2}, []int64{2}, container.Float64)
	mustWrite(t, c, 0, []float64{1, 2})

	scalarOp, err := NewScalar(3.0)
	if err != nil {
		t.Fatal(err)
	}
	tbl := newOperandTable()
	tbl, _ = tbl.append(NewChunked(c))
	tbl, _ = tbl.append(scalarOp)
	f := newOperandFetcher(tbl)

	plan := planChunks(c)
	bufs, err := f.fetchFast(plan[0])
	if err != nil {
		t.Fatal(err)
	}
	if bufs["o1"].Len() != 1 || bufs["o1"].Floats[0] != 3.0 {
		t.Fatalf("got %+v", bufs["o1"])
	}
}

func TestFetchGenericProjectsSlice(t *testing.T) {
	c := newMemContainer([]int64{6}, []int64{2}, container.Float64)
	mustWrite(t, c, 0, []float64{1, 2})
	mustWrite(t, c, 1, []float64{3, 4})
	mustWrite(t, c, 2, []float64{5, 6})

	tbl := newOperandTable()
	tbl, _ = tbl.append(NewChunked(c))
	f := newOperandFetcher(tbl)

	sel := []Slice{{Start: 1, Stop: 5}}
	bufs, err := f.fetchGeneric([]int64{6}, sel)
	if err != nil {
		t.Fatal(err)
	}
	want := []float64{2, 3, 4, 5}
	if !reflect.DeepEqual(bufs["o0"].Floats, want) {
		t.Fatalf("got %v want %v", bufs["o0"].Floats, want)
	}
}

func TestReadSliceAcrossMultipleChunks(t *testing.T) {
	c := newMemContainer([]int64{2, 4}, []int64{1, 2}, container.Float64)
	mustWrite(t, c, 0, []float64{1, 2})
	mustWrite(t, c, 1, []float64{3, 4})
	mustWrite(t, c, 2, []float64{5, 6})
	mustWrite(t, c, 3, []float64{7, 8})

	buf, err := readSlice(c, []Slice{{Start: 0, Stop: 2}, {Start: 1, Stop: 4}})
	if err != nil {
		t.Fatal(err)
	}
	want := []float64{2, 3, 4, 6, 7, 8}
	if !reflect.DeepEqual(buf.Floats, want) {
		t.Fatalf("got %v want %v", buf.Floats, want)
	}
}

func TestSliceBufferExtractsSubRectangle(t *testing.T) {
	src := container.NewBuffer(container.Float64, []int64{3, 3}, 9)
	copy(src.Floats, []float64{1, 2, 3, 4, 5, 6, 7, 8, 9})
	sel := []Slice{{Start: 1, Stop: 3}, {Start: 0, Stop: 2}}
	out := sliceBuffer(src, src.Shape, sel)
	want := []float64{4, 5, 7, 8}
	if !reflect.DeepEqual(out.Floats, want) {
		t.Fatalf("got %v want %v", out.Floats, want)
	}
}

func TestForEachIndexRowMajor(t *testing.T) {
	var got [][]int64
	forEachIndex([]int64{2, 2}, func(idx []int64) {
		got = append(got, append([]int64(nil), idx...))
	})
	want := [][]int64{{0, 0}, {0, 1}, {1, 0}, {1, 1}}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %v want %v", got, want)
	}
}

func TestFlatIndex(t *testing.T) {
	if flatIndex([]int64{3, 3}, []int64{1, 2}) != 5 {
		t.Fatal("expected row-major flat index 5")
	}
}
