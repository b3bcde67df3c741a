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

	"github.com/lazynd/lazynd/container"
)

// ReduceOp names one of the reduction operators a LazyNode can be
// wrapped in. Sum/Prod/Mean/Std/Var accept an optional result dtype;
// Min/Max/Any/All do not (spec.md §7 ReductionError).
type ReduceOp byte

const (
	Sum ReduceOp = iota
	Prod
	Min
	Max
	Any
	All
	Mean
	Std
	Var
)

func (op ReduceOp) String() string {
	switch op {
	case Sum:
		return "sum"
	case Prod:
		return "prod"
	case Min:
		return "min"
	case Max:
		return "max"
	case Any:
		return "any"
	case All:
		return "all"
	case Mean:
		return "mean"
	case Std:
		return "std"
	case Var:
		return "var"
	default:
		return "reduce"
	}
}

// acceptsDType reports whether op accepts an explicit output dtype.
func (op ReduceOp) acceptsDType() bool {
	switch op {
	case Min, Max, Any, All:
		return false
	default:
		return true
	}
}

// Reduction is a lazy reduction built over a LazyNode: like LazyNode
// itself, it is a pure descriptor until Reduce is called on it.
type Reduction struct {
	Op    ReduceOp
	Node  *LazyNode
	Axis  []int
	DType *container.DType // nil means "use the node's natural dtype"
}

func newReduction(op ReduceOp, n *LazyNode, dt *container.DType, axis []int) (*Reduction, error) {
	if dt != nil && !op.acceptsDType() {
		return nil, reductionErrorf("reduction %q does not accept an explicit dtype", op)
	}
	return &Reduction{Op: op, Node: n, Axis: axis, DType: dt}, nil
}

// Sum builds a sum reduction over the given axes (all axes if empty).
func (n *LazyNode) Sum(axis ...int) (*Reduction, error) { return newReduction(Sum, n, nil, axis) }

// SumDType is Sum with an explicit accumulation/result dtype.
func (n *LazyNode) SumDType(dt container.DType, axis ...int) (*Reduction, error) {
	return newReduction(Sum, n, &dt, axis)
}

// Prod builds a product reduction.
func (n *LazyNode) Prod(axis ...int) (*Reduction, error) { return newReduction(Prod, n, nil, axis) }

// ProdDType is Prod with an explicit result dtype.
func (n *LazyNode) ProdDType(dt container.DType, axis ...int) (*Reduction, error) {
	return newReduction(Prod, n, &dt, axis)
}

// Min builds a minimum reduction.
func (n *LazyNode) Min(axis ...int) (*Reduction, error) { return newReduction(Min, n, nil, axis) }

// Max builds a maximum reduction.
func (n *LazyNode) Max(axis ...int) (*Reduction, error) { return newReduction(Max, n, nil, axis) }

// Any builds a logical-or reduction.
func (n *LazyNode) Any(axis ...int) (*Reduction, error) { return newReduction(Any, n, nil, axis) }

// All builds a logical-and reduction.
func (n *LazyNode) All(axis ...int) (*Reduction, error) { return newReduction(All, n, nil, axis) }

// Mean builds an arithmetic-mean reduction.
func (n *LazyNode) Mean(axis ...int) (*Reduction, error) { return newReduction(Mean, n, nil, axis) }

// MeanDType is Mean with an explicit result dtype.
func (n *LazyNode) MeanDType(dt container.DType, axis ...int) (*Reduction, error) {
	return newReduction(Mean, n, &dt, axis)
}

// Std builds a standard-deviation reduction.
func (n *LazyNode) Std(axis ...int) (*Reduction, error) { return newReduction(Std, n, nil, axis) }

// Var builds a variance reduction.
func (n *LazyNode) Var(axis ...int) (*Reduction, error) { return newReduction(Var, n, nil, axis) }

// identityScalar returns the fill value a fresh accumulator of dtype
// dt should start from for op, so that merging the first real chunk
// leaves no seam (spec.md §4.1's identity-fill rule).
func identityScalar(op ReduceOp, dt container.DType) container.Scalar {
	switch op {
	case Sum, Mean:
		return zeroScalar(dt)
	case Prod:
		return oneScalar(dt)
	case Min:
		return extremeScalar(dt, true)
	case Max:
		return extremeScalar(dt, false)
	case Any:
		return container.Scalar{DType: container.Bool, Bool: false}
	case All:
		return container.Scalar{DType: container.Bool, Bool: true}
	default:
		return zeroScalar(dt)
	}
}

func zeroScalar(dt container.DType) container.Scalar {
	return container.Scalar{DType: dt}
}

func oneScalar(dt container.DType) container.Scalar {
	switch dt {
	case container.Bool:
		return container.Scalar{DType: dt, Bool: true}
	case container.Int64:
		return container.Scalar{DType: dt, Int: 1}
	case container.Complex128:
		return container.Scalar{DType: dt, Cplx: complex(1, 0)}
	default:
		return container.Scalar{DType: dt, Float: 1}
	}
}

// extremeScalar returns the identity fill for Min (wantMin=true) or
// Max: +Inf/-Inf for floats (as the real part, for complex),
// MaxInt64/MinInt64 for integers. Complex operands have no total
// order; Min/Max over them compare by real part only, matching
// numexpr's treatment.
func extremeScalar(dt container.DType, wantMin bool) container.Scalar {
	switch dt {
	case container.Int64:
		if wantMin {
			return container.Scalar{DType: dt, Int: math.MaxInt64}
		}
		return container.Scalar{DType: dt, Int: math.MinInt64}
	case container.Complex128:
		if wantMin {
			return container.Scalar{DType: dt, Cplx: complex(math.Inf(1), 0)}
		}
		return container.Scalar{DType: dt, Cplx: complex(math.Inf(-1), 0)}
	default:
		if wantMin {
			return container.Scalar{DType: dt, Float: math.Inf(1)}
		}
		return container.Scalar{DType: dt, Float: math.Inf(-1)}
	}
}

// mergeElem folds src's i-th element into acc's j-th slot in place,
// the per-chunk combining step the reduction driver applies as each
// chunk's partial result arrives. Integer Sum/Prod wrap around on
// overflow, matching plain int64 arithmetic (spec.md §4.1).
func mergeElem(op ReduceOp, acc container.Buffer, j int, src container.Buffer, i int) {
	switch op {
	case Sum, Mean:
		addElem(acc, j, src, i)
	case Prod:
		mulElem(acc, j, src, i)
	case Min:
		if lessElem(src, i, acc, j) {
			copyElem(acc, j, src, i)
		}
	case Max:
		if lessElem(acc, j, src, i) {
			copyElem(acc, j, src, i)
		}
	case Any:
		acc.Bools[j] = acc.Bools[j] || truthyElem(src, i)
	case All:
		acc.Bools[j] = acc.Bools[j] && truthyElem(src, i)
	}
}

func addElem(acc container.Buffer, j int, src container.Buffer, i int) {
	switch acc.DType {
	case container.Int64:
		acc.Ints[j] += asInt64(src, i)
	case container.Complex128:
		acc.Complexes[j] += asComplex128(src, i)
	default:
		acc.Floats[j] += asFloat64(src, i)
	}
}

func mulElem(acc container.Buffer, j int, src container.Buffer, i int) {
	switch acc.DType {
	case container.Int64:
		acc.Ints[j] *= asInt64(src, i)
	case container.Complex128:
		acc.Complexes[j] *= asComplex128(src, i)
	default:
		acc.Floats[j] *= asFloat64(src, i)
	}
}

func copyElem(acc container.Buffer, j int, src container.Buffer, i int) {
	switch acc.DType {
	case container.Int64:
		acc.Ints[j] = asInt64(src, i)
	case container.Complex128:
		acc.Complexes[j] = asComplex128(src, i)
	default:
		acc.Floats[j] = asFloat64(src, i)
	}
}

func lessElem(a container.Buffer, i int, b container.Buffer, j int) bool {
	if a.DType == container.Complex128 || b.DType == container.Complex128 {
		return real(asComplex128(a, i)) < real(asComplex128(b, j))
	}
	if a.DType == container.Int64 && b.DType == container.Int64 {
		return asInt64(a, i) < asInt64(b, j)
	}
	return asFloat64(a, i) < asFloat64(b, j)
}

func truthyElem(b container.Buffer, i int) bool {
	switch b.DType {
	case container.Bool:
		return b.Bools[i]
	case container.Int64:
		return b.Ints[i] != 0
	case container.Complex128:
		return b.Complexes[i] != 0
	default:
		return b.Floats[i] != 0
	}
}

func asInt64(b container.Buffer, i int) int64 {
	switch b.DType {
	case container.Bool:
		if b.Bools[i] {
			return 1
		}
		return 0
	case container.Int64:
		return b.Ints[i]
	case container.Float64:
		return int64(b.Floats[i])
	default:
		return int64(real(b.Complexes[i]))
	}
}

func asFloat64(b container.Buffer, i int) float64 { return b.Float64At(i) }

func asComplex128(b container.Buffer, i int) complex128 {
	if b.DType == container.Complex128 {
		return b.Complexes[i]
	}
	return complex(b.Float64At(i), 0)
}
