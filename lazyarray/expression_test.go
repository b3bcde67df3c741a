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
	"testing"

	"github.com/lazynd/lazynd/container"
)

func denseLeaf(t *testing.T, vs ...float64) *LazyNode {
	t.Helper()
	buf := container.NewBuffer(container.Float64, []int64{int64(len(vs))}, len(vs))
	copy(buf.Floats, vs)
	return Leaf(NewDense(buf))
}

// TestFusionEquivalence checks that building (a+b)*(a-c) via two
// independently-fused subexpressions produces the same expression
// (modulo placeholder names) and operand table as building it over a
// single shared table from the start, deduplicating the repeated use
// of "a" by identity.
func TestFusionEquivalence(t *testing.T) {
	a := denseLeaf(t, 1, 2, 3)
	b := denseLeaf(t, 4, 5, 6)
	c := denseLeaf(t, 7, 8, 9)

	aOp, _ := a.Operand("o0")
	bOp, _ := b.Operand("o0")
	cOp, _ := c.Operand("o0")

	left, err := a.Add(b)
	if err != nil {
		t.Fatal(err)
	}
	right, err := a.Sub(c)
	if err != nil {
		t.Fatal(err)
	}
	combined, err := left.Mul(right)
	if err != nil {
		t.Fatal(err)
	}

	if combined.operands.Len() != 3 {
		t.Fatalf("expected a to be deduplicated across both sides, got %d operands: %v",
			combined.operands.Len(), combined.OperandNames())
	}

	// every operand in the combined table must still resolve to the
	// same underlying leaf by identity (not merely by shape/value).
	wantIdentities := []Operand{aOp, bOp, cOp}
	for _, name := range combined.OperandNames() {
		op, ok := combined.Operand(name)
		if !ok {
			t.Fatalf("missing operand %q", name)
		}
		found := false
		for _, want := range wantIdentities {
			if op.SameIdentity(want) {
				found = true
			}
		}
		if !found {
			t.Fatalf("operand %q did not match any of a, b, c by identity", name)
		}
	}

	want := "((o0 + o1) * (o0 - o2))"
	if combined.Expression() != want {
		t.Fatalf("got expression %q want %q", combined.Expression(), want)
	}
}

func TestPlaceholderRebasing(t *testing.T) {
	a := denseLeaf(t, 1, 2)
	b := denseLeaf(t, 3, 4)
	sum, err := a.Add(b)
	if err != nil {
		t.Fatal(err)
	}
	if sum.Expression() != "(o0 + o1)" {
		t.Fatalf("got %q", sum.Expression())
	}

	c := denseLeaf(t, 5, 6)
	// fuse sum (o0, o1) with a fresh leaf c (o0 in its own table) --
	// c must be rebased to o2, without disturbing o0/o1's references
	// to a and b.
	combined, err := sum.Add(c)
	if err != nil {
		t.Fatal(err)
	}
	if combined.Expression() != "((o0 + o1) + o2)" {
		t.Fatalf("got %q", combined.Expression())
	}
	if combined.operands.Len() != 3 {
		t.Fatalf("got %d operands", combined.operands.Len())
	}
}

func TestRebasePlaceholdersIgnoresEmbeddedO(t *testing.T) {
	rename := map[string]string{"o0": "o5"}
	got := rebasePlaceholders("(foo + o0)", rename)
	want := "(foo + o5)"
	if got != want {
		t.Fatalf("got %q want %q", got, want)
	}
	// an identifier merely starting with 'o' followed by a digit mid-
	// token is not a placeholder unless it begins at a boundary; this
	// case has no such identifier so the string must be untouched
	// apart from the rename.
	got2 := rebasePlaceholders("o0", rename)
	if got2 != "o5" {
		t.Fatalf("got %q want o5", got2)
	}
}

func TestCombineWithScalarLiteral(t *testing.T) {
	a := denseLeaf(t, 1, 2, 3)
	plus, err := a.Add(2.5)
	if err != nil {
		t.Fatal(err)
	}
	if plus.Expression() != "(o0 + 2.5)" {
		t.Fatalf("got %q", plus.Expression())
	}

	radd, err := a.RAdd(2.5)
	if err != nil {
		t.Fatal(err)
	}
	if radd.Expression() != "(2.5 + o0)" {
		t.Fatalf("got %q", radd.Expression())
	}
}

func TestNotAndNeg(t *testing.T) {
	a := denseLeaf(t, 1, 0, 1)
	if got := a.Not().Expression(); got != "(not o0)" {
		t.Fatalf("got %q", got)
	}
	if got := a.Neg().Expression(); got != "(-o0)" {
		t.Fatalf("got %q", got)
	}
}

func TestFuncArityAndAllowList(t *testing.T) {
	a := denseLeaf(t, 1, 2, 3)
	if _, err := a.Func("bogus"); err == nil {
		t.Fatal("expected an error for a disallowed function name")
	}
	if _, err := a.Func("sin", 1); err == nil {
		t.Fatal("expected an error for wrong arity (sin takes 1 arg)")
	}
	sin, err := a.Func("sin")
	if err != nil {
		t.Fatal(err)
	}
	if sin.Expression() != "sin(o0)" {
		t.Fatalf("got %q", sin.Expression())
	}

	b := denseLeaf(t, 4, 5, 6)
	c := denseLeaf(t, 7, 8, 9)
	contains, err := a.Func("contains", b)
	if err != nil {
		t.Fatal(err)
	}
	if contains.Expression() != "contains(o0, o1)" {
		t.Fatalf("got %q", contains.Expression())
	}
	if contains.operands.Len() != 2 {
		t.Fatalf("got %d operands", contains.operands.Len())
	}
	if _, err := a.Func("contains", b, c); err == nil {
		t.Fatal("expected an error: contains takes exactly 2 arguments")
	}
}

func TestShapeBroadcastsAcrossOperands(t *testing.T) {
	a := denseLeaf(t, 1, 2, 3)
	scalarOp, err := NewScalar(int64(2))
	if err != nil {
		t.Fatal(err)
	}
	doubled, err := a.Mul(scalarOp)
	if err != nil {
		t.Fatal(err)
	}
	shape, err := doubled.Shape()
	if err != nil {
		t.Fatal(err)
	}
	if len(shape) != 1 || shape[0] != 3 {
		t.Fatalf("got shape %v", shape)
	}
}

func TestShapeErrorsWithNoArrayOperands(t *testing.T) {
	scalarOp, err := NewScalar(int64(2))
	if err != nil {
		t.Fatal(err)
	}
	n := Leaf(scalarOp)
	if _, err := n.Shape(); err == nil {
		t.Fatal("expected an error: expression has no array operands")
	}
}
