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

import (
	"math"
	"testing"

	"github.com/lazynd/lazynd/container"
)

func floats(vs ...float64) container.Buffer {
	b := container.NewBuffer(container.Float64, []int64{int64(len(vs))}, len(vs))
	copy(b.Floats, vs)
	return b
}

func ints(vs ...int64) container.Buffer {
	b := container.NewBuffer(container.Int64, []int64{int64(len(vs))}, len(vs))
	copy(b.Ints, vs)
	return b
}

func almostEqual(a, b, tol float64) bool {
	d := a - b
	if d < 0 {
		d = -d
	}
	return d <= tol*math.Max(1, math.Abs(b))
}

func TestEvaluateArithmetic(t *testing.T) {
	k := New()
	a := floats(1, 2, 3)
	b := floats(10, 20, 30)
	out, err := k.Evaluate("a + b * 2", map[string]container.Buffer{"a": a, "b": b}, nil)
	if err != nil {
		t.Fatal(err)
	}
	want := []float64{21, 42, 63}
	for i, w := range want {
		if out.Floats[i] != w {
			t.Fatalf("index %d: got %v want %v", i, out.Floats[i], w)
		}
	}
}

func TestEvaluateIntegerWraparound(t *testing.T) {
	k := New()
	a := ints(1, 2, 3)
	out, err := k.Evaluate("a * a", map[string]container.Buffer{"a": a}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if out.DType != container.Int64 {
		t.Fatalf("expected int64 output, got %v", out.DType)
	}
	for i, w := range []int64{1, 4, 9} {
		if out.Ints[i] != w {
			t.Fatalf("index %d: got %v want %v", i, out.Ints[i], w)
		}
	}
}

func TestEvaluateDivisionPromotesToFloat(t *testing.T) {
	k := New()
	a := ints(7, 8, 9)
	b := ints(2, 2, 2)
	out, err := k.Evaluate("a / b", map[string]container.Buffer{"a": a, "b": b}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if out.DType != container.Float64 {
		t.Fatalf("expected float64 output from integer division, got %v", out.DType)
	}
	if out.Floats[0] != 3.5 {
		t.Fatalf("got %v want 3.5", out.Floats[0])
	}
}

func TestEvaluateComparisonAndLogical(t *testing.T) {
	k := New()
	a := floats(1, 2, 3, 4)
	b := floats(2, 2, 2, 2)
	out, err := k.Evaluate("(a > b) and (a < 4)", map[string]container.Buffer{"a": a, "b": b}, nil)
	if err != nil {
		t.Fatal(err)
	}
	want := []bool{false, false, true, false}
	for i, w := range want {
		if out.Bools[i] != w {
			t.Fatalf("index %d: got %v want %v", i, out.Bools[i], w)
		}
	}
}

func TestEvaluateBroadcast(t *testing.T) {
	k := New()
	a := container.NewBuffer(container.Float64, []int64{4, 3}, 12)
	for i := range a.Floats {
		a.Floats[i] = 1
	}
	b := floats(1, 1, 1)
	out, err := k.Evaluate("a + b", map[string]container.Buffer{"a": a, "b": b}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(out.Floats) != 12 {
		t.Fatalf("expected 12 elements, got %d", len(out.Floats))
	}
	for i, v := range out.Floats {
		if v != 2 {
			t.Fatalf("index %d: got %v want 2", i, v)
		}
	}
}

func TestEvaluateWhere(t *testing.T) {
	k := New()
	cond := container.NewBuffer(container.Bool, []int64{3}, 3)
	cond.Bools = []bool{true, false, true}
	a := floats(1, 2, 3)
	b := floats(10, 20, 30)
	out, err := k.Evaluate("where(cond, a, b)", map[string]container.Buffer{"cond": cond, "a": a, "b": b}, nil)
	if err != nil {
		t.Fatal(err)
	}
	want := []float64{1, 20, 3}
	for i, w := range want {
		if out.Floats[i] != w {
			t.Fatalf("index %d: got %v want %v", i, out.Floats[i], w)
		}
	}
}

// TestEvaluateComplexExpression is spec scenario 2: compare the
// reference kernel's evaluation of a composite trig/sqrt expression
// against computing the same thing directly in Go, at a small N in
// place of the scenario's 10e6-element array.
func TestEvaluateComplexExpression(t *testing.T) {
	k := New()
	const n = 64
	vals := make([]float64, n)
	for i := range vals {
		vals[i] = float64(i) * 10.0 / float64(n-1)
	}
	a, b, c, d := floats(vals...), floats(vals...), floats(vals...), floats(vals...)
	out, err := k.Evaluate(
		"tan(a) * (sin(b) * sin(b) + cos(c)) + (sqrt(d) * 2) + 2",
		map[string]container.Buffer{"a": a, "b": b, "c": c, "d": d},
		nil,
	)
	if err != nil {
		t.Fatal(err)
	}
	for i, v := range vals {
		want := math.Tan(v)*(math.Sin(v)*math.Sin(v)+math.Cos(v)) + (math.Sqrt(v) * 2) + 2
		if !almostEqual(out.Floats[i], want, 1e-10) {
			t.Fatalf("index %d: got %v want %v", i, out.Floats[i], want)
		}
	}
}

func TestEvaluateComplexDType(t *testing.T) {
	k := New()
	a := container.NewBuffer(container.Complex128, nil, 2)
	a.Complexes = []complex128{complex(1, 2), complex(3, -4)}
	out, err := k.Evaluate("conj(a)", map[string]container.Buffer{"a": a}, nil)
	if err != nil {
		t.Fatal(err)
	}
	want := []complex128{complex(1, -2), complex(3, 4)}
	for i, w := range want {
		if out.Complexes[i] != w {
			t.Fatalf("index %d: got %v want %v", i, out.Complexes[i], w)
		}
	}
}

func TestValidateRejectsUnknownIdentifier(t *testing.T) {
	k := New()
	if err := k.Validate("a + z", []string{"a", "b"}); err == nil {
		t.Fatal("expected error for unknown identifier")
	}
}

func TestValidateRejectsDisallowedFunction(t *testing.T) {
	k := New()
	if err := k.Validate("where(a, a, 1)", []string{"a"}); err == nil {
		t.Fatal("expected error for disallowed function")
	}
}

func TestValidateRejectsWrongArity(t *testing.T) {
	k := New()
	if err := k.Validate("sin(a, a)", []string{"a"}); err == nil {
		t.Fatal("expected error for wrong arity")
	}
}

func TestValidateAccepts(t *testing.T) {
	k := New()
	if err := k.Validate("sqrt(a) + contains(b, 1)", []string{"a", "b"}); err != nil {
		t.Fatal(err)
	}
}
