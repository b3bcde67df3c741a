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
	"testing"

	"github.com/lazynd/lazynd/chunkstore"
	"github.com/lazynd/lazynd/container"
	"github.com/lazynd/lazynd/numexpr"
)

// fillLinear creates a chunked Float64 container of the given shape/
// chunks via chunkstore.Factory and writes it full of values
// gen(flatIndex), chunk by chunk, in the same row-major chunk order
// planChunks enumerates.
func fillLinear(t *testing.T, shape, chunks []int64, gen func(flat int) float64) container.Container {
	t.Helper()
	f := chunkstore.Factory{}
	c, err := f.Create(shape, container.Float64, container.Config{Chunks: chunks})
	if err != nil {
		t.Fatal(err)
	}
	flat := 0
	for _, info := range planChunks(c) {
		n := int(product(info.LocalShape))
		buf := container.NewBuffer(container.Float64, info.LocalShape, n)
		for i := 0; i < n; i++ {
			buf.Floats[i] = gen(flat)
			flat++
		}
		if err := c.UpdateData(info.Nchunk, buf.Bytes(), false); err != nil {
			t.Fatal(err)
		}
	}
	return c
}

func newTestDriver() *EvalDriver {
	return NewEvalDriver(numexpr.New(), chunkstore.Factory{})
}

func TestEvalFastPathVector(t *testing.T) {
	const n = 20_000
	shape := []int64{n}
	chunks := []int64{2000}
	a := fillLinear(t, shape, chunks, func(i int) float64 { return float64(i) })
	b := fillLinear(t, shape, chunks, func(i int) float64 { return float64(2 * i) })

	node, err := Leaf(NewChunked(a)).Add(NewChunked(b))
	if err != nil {
		t.Fatal(err)
	}
	d := newTestDriver()
	out, err := d.Eval(context.Background(), node, EvalOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if out.Nchunks() != a.Nchunks() {
		t.Fatalf("expected the fast path to reuse the reference tiling: got %d chunks, want %d", out.Nchunks(), a.Nchunks())
	}
	raw, err := out.DecompressChunk(0, nil)
	if err != nil {
		t.Fatal(err)
	}
	buf := container.BufferFromBytes(raw, container.Float64, []int64{2000}, 2000)
	for i := 0; i < 5; i++ {
		want := float64(i) + float64(2*i)
		if buf.Floats[i] != want {
			t.Fatalf("index %d: got %v want %v", i, buf.Floats[i], want)
		}
	}
}

func TestEvalFastPathIsDeterministicAcrossRuns(t *testing.T) {
	const n = 20_000
	shape := []int64{n}
	chunks := []int64{2000}
	a := fillLinear(t, shape, chunks, func(i int) float64 { return float64(i) })
	b := fillLinear(t, shape, chunks, func(i int) float64 { return float64(3 * i) })

	run := func() []float64 {
		node, err := Leaf(NewChunked(a)).Mul(NewChunked(b))
		if err != nil {
			t.Fatal(err)
		}
		d := newTestDriver()
		out, err := d.Eval(context.Background(), node, EvalOptions{})
		if err != nil {
			t.Fatal(err)
		}
		raw, err := out.DecompressChunk(3, nil)
		if err != nil {
			t.Fatal(err)
		}
		return container.BufferFromBytes(raw, container.Float64, []int64{2000}, 2000).Floats
	}
	first := run()
	second := run()
	for i := range first {
		if first[i] != second[i] {
			t.Fatalf("index %d: got %v then %v, expected determinism", i, first[i], second[i])
		}
	}
}

func TestEvalSlicingThroughGetItem(t *testing.T) {
	shape := []int64{10}
	chunks := []int64{3}
	a := fillLinear(t, shape, chunks, func(i int) float64 { return float64(i) })

	node := Leaf(NewChunked(a))
	d := newTestDriver()
	sel := []Slice{{Start: 2, Stop: 8}}
	buf, err := d.GetItem(context.Background(), node, sel)
	if err != nil {
		t.Fatal(err)
	}
	want := []float64{2, 3, 4, 5, 6, 7}
	for i, w := range want {
		if buf.Floats[i] != w {
			t.Fatalf("index %d: got %v want %v", i, buf.Floats[i], w)
		}
	}
}

func TestEvalSumReduction(t *testing.T) {
	shape := []int64{12}
	chunks := []int64{4}
	a := fillLinear(t, shape, chunks, func(i int) float64 { return float64(i + 1) })

	node := Leaf(NewChunked(a))
	red, err := node.Sum()
	if err != nil {
		t.Fatal(err)
	}
	d := newTestDriver()
	buf, err := d.Reduce(context.Background(), red)
	if err != nil {
		t.Fatal(err)
	}
	want := 12.0 * 13.0 / 2.0 // sum 1..12
	if buf.Floats[0] != want {
		t.Fatalf("got %v want %v", buf.Floats[0], want)
	}
}

func TestEvalBroadcastThenReduce(t *testing.T) {
	shape := []int64{3, 4}
	chunks := []int64{3, 4}
	a := fillLinear(t, shape, chunks, func(i int) float64 { return float64(i) })
	rowScalarOp, err := NewScalar(10.0)
	if err != nil {
		t.Fatal(err)
	}

	node, err := Leaf(NewChunked(a)).Add(rowScalarOp)
	if err != nil {
		t.Fatal(err)
	}
	red, err := node.Sum(1)
	if err != nil {
		t.Fatal(err)
	}
	d := newTestDriver()
	buf, err := d.Reduce(context.Background(), red)
	if err != nil {
		t.Fatal(err)
	}
	// row 0: (0+10)+(1+10)+(2+10)+(3+10) = 46
	// row 1: (4+10)+(5+10)+(6+10)+(7+10) = 62
	// row 2: (8+10)+(9+10)+(10+10)+(11+10) = 78
	want := []float64{46, 62, 78}
	for i, w := range want {
		if buf.Floats[i] != w {
			t.Fatalf("row %d: got %v want %v", i, buf.Floats[i], w)
		}
	}
}

func TestEvalMeanOfIntegerPromotesToFloat(t *testing.T) {
	f := chunkstore.Factory{}
	c, err := f.Create([]int64{4}, container.Int64, container.Config{Chunks: []int64{4}})
	if err != nil {
		t.Fatal(err)
	}
	buf := container.NewBuffer(container.Int64, []int64{4}, 4)
	copy(buf.Ints, []int64{1, 2, 3, 4})
	if err := c.UpdateData(0, buf.Bytes(), false); err != nil {
		t.Fatal(err)
	}
	node := Leaf(NewChunked(c))
	red, err := node.Mean()
	if err != nil {
		t.Fatal(err)
	}
	d := newTestDriver()
	out, err := d.Reduce(context.Background(), red)
	if err != nil {
		t.Fatal(err)
	}
	if out.DType != container.Float64 {
		t.Fatalf("got dtype %v want float64", out.DType)
	}
	if math.Abs(out.Floats[0]-2.5) > 1e-12 {
		t.Fatalf("got %v want 2.5", out.Floats[0])
	}
}

func TestEvalVarAndStdReduction(t *testing.T) {
	shape := []int64{6}
	chunks := []int64{2}
	a := fillLinear(t, shape, chunks, func(i int) float64 { return float64(i + 1) }) // 1..6

	d := newTestDriver()

	wantVar := 2.9166666666666665 // population variance of 1..6
	wantStd := math.Sqrt(wantVar)

	varRed, err := Leaf(NewChunked(a)).Var()
	if err != nil {
		t.Fatal(err)
	}
	varOut, err := d.Reduce(context.Background(), varRed)
	if err != nil {
		t.Fatal(err)
	}
	if varOut.DType != container.Float64 {
		t.Fatalf("Var: got dtype %v want float64", varOut.DType)
	}
	if math.Abs(varOut.Floats[0]-wantVar) > 1e-9 {
		t.Fatalf("Var: got %v want %v", varOut.Floats[0], wantVar)
	}

	stdRed, err := Leaf(NewChunked(a)).Std()
	if err != nil {
		t.Fatal(err)
	}
	stdOut, err := d.Reduce(context.Background(), stdRed)
	if err != nil {
		t.Fatal(err)
	}
	if stdOut.DType != container.Float64 {
		t.Fatalf("Std: got dtype %v want float64", stdOut.DType)
	}
	if math.Abs(stdOut.Floats[0]-wantStd) > 1e-9 {
		t.Fatalf("Std: got %v want %v", stdOut.Floats[0], wantStd)
	}
}

func TestEvalStdOfIntegerPromotesToFloat(t *testing.T) {
	f := chunkstore.Factory{}
	c, err := f.Create([]int64{4}, container.Int64, container.Config{Chunks: []int64{4}})
	if err != nil {
		t.Fatal(err)
	}
	buf := container.NewBuffer(container.Int64, []int64{4}, 4)
	copy(buf.Ints, []int64{1, 2, 3, 4})
	if err := c.UpdateData(0, buf.Bytes(), false); err != nil {
		t.Fatal(err)
	}
	node := Leaf(NewChunked(c))
	red, err := node.Std()
	if err != nil {
		t.Fatal(err)
	}
	d := newTestDriver()
	out, err := d.Reduce(context.Background(), red)
	if err != nil {
		t.Fatal(err)
	}
	if out.DType != container.Float64 {
		t.Fatalf("got dtype %v want float64", out.DType)
	}
	want := math.Sqrt(1.25) // population std of 1,2,3,4
	if math.Abs(out.Floats[0]-want) > 1e-12 {
		t.Fatalf("got %v want %v", out.Floats[0], want)
	}
}

func TestEvalSmallArrayUsesInCachePath(t *testing.T) {
	shape := []int64{4}
	chunks := []int64{4}
	a := fillLinear(t, shape, chunks, func(i int) float64 { return float64(i) })
	node, err := Leaf(NewChunked(a)).Func("sqrt")
	if err != nil {
		t.Fatal(err)
	}
	d := newTestDriver()
	out, err := d.Eval(context.Background(), node, EvalOptions{})
	if err != nil {
		t.Fatal(err)
	}
	raw, err := out.DecompressChunk(0, nil)
	if err != nil {
		t.Fatal(err)
	}
	buf := container.BufferFromBytes(raw, container.Float64, []int64{4}, 4)
	for i := 0; i < 4; i++ {
		want := math.Sqrt(float64(i))
		if math.Abs(buf.Floats[i]-want) > 1e-12 {
			t.Fatalf("index %d: got %v want %v", i, buf.Floats[i], want)
		}
	}
}
