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
	"testing"

	"github.com/lazynd/lazynd/chunkstore"
	"github.com/lazynd/lazynd/container"
)

// doubleFn is a trivial BlockFunc: out[i] = 2*inputs[0][i] for every i.
func doubleFn(inputs []container.Buffer, out *container.Buffer, offset []int64) error {
	in := inputs[0]
	for i := 0; i < in.Len(); i++ {
		out.SetElem(i, 2*in.Float64At(i))
	}
	return nil
}

func TestLazyUDFRejectsNilFunc(t *testing.T) {
	a := NewDense(container.NewBuffer(container.Float64, []int64{3}, 3))
	if _, err := NewLazyUDF(nil, []Operand{a}, []int64{3}, container.Float64); err == nil {
		t.Fatal("expected an error for a nil fn")
	}
}

func TestLazyUDFRejectsNoInputs(t *testing.T) {
	if _, err := NewLazyUDF(doubleFn, nil, []int64{3}, container.Float64); err == nil {
		t.Fatal("expected an error for zero inputs")
	}
}

func TestEvalUDFOverChunkedOperand(t *testing.T) {
	shape := []int64{12}
	chunks := []int64{4}
	a := fillLinear(t, shape, chunks, func(i int) float64 { return float64(i) })

	u, err := NewLazyUDF(doubleFn, []Operand{NewChunked(a)}, shape, container.Float64)
	if err != nil {
		t.Fatal(err)
	}
	d := newTestDriver()
	out, err := d.EvalUDF(context.Background(), u, EvalOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if out.Nchunks() != a.Nchunks() {
		t.Fatalf("expected the UDF output to reuse the reference tiling: got %d chunks, want %d", out.Nchunks(), a.Nchunks())
	}
	raw, err := out.DecompressChunk(0, nil)
	if err != nil {
		t.Fatal(err)
	}
	buf := container.BufferFromBytes(raw, container.Float64, []int64{4}, 4)
	for i := 0; i < 4; i++ {
		want := 2 * float64(i)
		if buf.Floats[i] != want {
			t.Fatalf("index %d: got %v want %v", i, buf.Floats[i], want)
		}
	}
}

func TestGetItemUDFSlicesAcrossChunks(t *testing.T) {
	shape := []int64{10}
	chunks := []int64{3}
	a := fillLinear(t, shape, chunks, func(i int) float64 { return float64(i) })

	u, err := NewLazyUDF(doubleFn, []Operand{NewChunked(a)}, shape, container.Float64)
	if err != nil {
		t.Fatal(err)
	}
	d := newTestDriver()
	sel := []Slice{{Start: 2, Stop: 8}}
	buf, err := d.GetItemUDF(context.Background(), u, sel)
	if err != nil {
		t.Fatal(err)
	}
	want := []float64{4, 6, 8, 10, 12, 14}
	for i, w := range want {
		if buf.Floats[i] != w {
			t.Fatalf("index %d: got %v want %v", i, buf.Floats[i], w)
		}
	}
}

func TestEvalUDFWithNoChunkedInputRunsOnce(t *testing.T) {
	buf := container.NewBuffer(container.Float64, []int64{4}, 4)
	copy(buf.Floats, []float64{1, 2, 3, 4})
	dense := NewDense(buf)

	u, err := NewLazyUDF(doubleFn, []Operand{dense}, []int64{4}, container.Float64)
	if err != nil {
		t.Fatal(err)
	}
	d := newTestDriver()
	out, err := d.EvalUDF(context.Background(), u, EvalOptions{})
	if err != nil {
		t.Fatal(err)
	}
	raw, err := out.DecompressChunk(0, nil)
	if err != nil {
		t.Fatal(err)
	}
	got := container.BufferFromBytes(raw, container.Float64, []int64{4}, 4)
	want := []float64{2, 4, 6, 8}
	for i, w := range want {
		if got.Floats[i] != w {
			t.Fatalf("index %d: got %v want %v", i, got.Floats[i], w)
		}
	}
}

func TestEvalUDFGuardIsInvoked(t *testing.T) {
	shape := []int64{4}
	chunks := []int64{4}
	a := fillLinear(t, shape, chunks, func(i int) float64 { return float64(i) })
	u, err := NewLazyUDF(doubleFn, []Operand{NewChunked(a)}, shape, container.Float64)
	if err != nil {
		t.Fatal(err)
	}
	d := newTestDriver()
	called := false
	guard := func(fn func() error) error {
		called = true
		return chunkstore.WithSerialCompression(fn)
	}
	if _, err := d.EvalUDF(context.Background(), u, EvalOptions{Guard: guard}); err != nil {
		t.Fatal(err)
	}
	if !called {
		t.Fatal("expected the guard hook to be invoked")
	}
}
