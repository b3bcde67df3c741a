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
	"math"
	"testing"

	"github.com/lazynd/lazynd/container"
)

func TestReductionRejectsDTypeOnMinMaxAnyAll(t *testing.T) {
	a := denseLeaf(t, 1, 2, 3)
	if _, err := newReduction(Min, a, dtypePtr(container.Float64), nil); err == nil {
		t.Fatal("expected an error: Min does not accept an explicit dtype")
	}
	if _, err := newReduction(Any, a, dtypePtr(container.Bool), nil); err == nil {
		t.Fatal("expected an error: Any does not accept an explicit dtype")
	}
	if _, err := newReduction(Sum, a, dtypePtr(container.Float64), nil); err != nil {
		t.Fatalf("Sum should accept an explicit dtype: %v", err)
	}
}

func dtypePtr(dt container.DType) *container.DType { return &dt }

func TestReductionBuildersSetOp(t *testing.T) {
	a := denseLeaf(t, 1, 2, 3)
	r, err := a.Sum()
	if err != nil {
		t.Fatal(err)
	}
	if r.Op != Sum {
		t.Fatalf("got op %v", r.Op)
	}
	r2, err := a.Mean()
	if err != nil {
		t.Fatal(err)
	}
	if r2.Op != Mean {
		t.Fatalf("got op %v", r2.Op)
	}
}

func TestIdentityScalarSumIsZero(t *testing.T) {
	s := identityScalar(Sum, container.Float64)
	if s.Float != 0 {
		t.Fatalf("got %v want 0", s.Float)
	}
}

func TestIdentityScalarProdIsOne(t *testing.T) {
	s := identityScalar(Prod, container.Int64)
	if s.Int != 1 {
		t.Fatalf("got %v want 1", s.Int)
	}
}

func TestIdentityScalarMinMaxAreExtremes(t *testing.T) {
	min := identityScalar(Min, container.Int64)
	if min.Int != math.MaxInt64 {
		t.Fatalf("got %v want MaxInt64", min.Int)
	}
	max := identityScalar(Max, container.Int64)
	if max.Int != math.MinInt64 {
		t.Fatalf("got %v want MinInt64", max.Int)
	}
	minF := identityScalar(Min, container.Float64)
	if !math.IsInf(minF.Float, 1) {
		t.Fatalf("got %v want +Inf", minF.Float)
	}
	maxF := identityScalar(Max, container.Float64)
	if !math.IsInf(maxF.Float, -1) {
		t.Fatalf("got %v want -Inf", maxF.Float)
	}
}

func TestIdentityScalarAnyAllBooleans(t *testing.T) {
	if identityScalar(Any, container.Bool).Bool != false {
		t.Fatal("Any's identity must be false")
	}
	if identityScalar(All, container.Bool).Bool != true {
		t.Fatal("All's identity must be true")
	}
}

func TestMergeElemSumAndProd(t *testing.T) {
	acc := container.NewBuffer(container.Float64, nil, 1)
	acc.Floats[0] = 2
	src := container.NewBuffer(container.Float64, nil, 1)
	src.Floats[0] = 3
	mergeElem(Sum, acc, 0, src, 0)
	if acc.Floats[0] != 5 {
		t.Fatalf("got %v want 5", acc.Floats[0])
	}

	accP := container.NewBuffer(container.Float64, nil, 1)
	accP.Floats[0] = 2
	mergeElem(Prod, accP, 0, src, 0)
	if accP.Floats[0] != 6 {
		t.Fatalf("got %v want 6", accP.Floats[0])
	}
}

func TestMergeElemIntegerWraparound(t *testing.T) {
	acc := container.NewBuffer(container.Int64, nil, 1)
	acc.Ints[0] = math.MaxInt64
	src := container.NewBuffer(container.Int64, nil, 1)
	src.Ints[0] = 1
	mergeElem(Sum, acc, 0, src, 0)
	if acc.Ints[0] != math.MinInt64 {
		t.Fatalf("got %v want MinInt64 (wraparound)", acc.Ints[0])
	}
}

func TestMergeElemMinMax(t *testing.T) {
	acc := container.NewBuffer(container.Float64, nil, 1)
	acc.Floats[0] = 5
	src := container.NewBuffer(container.Float64, nil, 1)
	src.Floats[0] = 2
	mergeElem(Min, acc, 0, src, 0)
	if acc.Floats[0] != 2 {
		t.Fatalf("got %v want 2", acc.Floats[0])
	}

	acc2 := container.NewBuffer(container.Float64, nil, 1)
	acc2.Floats[0] = 5
	mergeElem(Max, acc2, 0, src, 0)
	if acc2.Floats[0] != 5 {
		t.Fatalf("got %v want 5 (unchanged, 5 > 2)", acc2.Floats[0])
	}
}

func TestMergeElemAnyAll(t *testing.T) {
	acc := container.NewBuffer(container.Bool, nil, 1)
	acc.Bools[0] = false
	src := container.NewBuffer(container.Bool, nil, 1)
	src.Bools[0] = true
	mergeElem(Any, acc, 0, src, 0)
	if !acc.Bools[0] {
		t.Fatal("expected Any to become true")
	}

	acc2 := container.NewBuffer(container.Bool, nil, 1)
	acc2.Bools[0] = true
	src2 := container.NewBuffer(container.Bool, nil, 1)
	src2.Bools[0] = false
	mergeElem(All, acc2, 0, src2, 0)
	if acc2.Bools[0] {
		t.Fatal("expected All to become false")
	}
}

func TestLessElemComparesComplexByRealPart(t *testing.T) {
	a := container.NewBuffer(container.Complex128, nil, 1)
	a.Complexes[0] = complex(1, 100)
	b := container.NewBuffer(container.Complex128, nil, 1)
	b.Complexes[0] = complex(2, -100)
	if !lessElem(a, 0, b, 0) {
		t.Fatal("expected a < b by real part, ignoring imaginary part")
	}
}
