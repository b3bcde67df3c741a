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
	"fmt"
	"math"
	"math/cmplx"

	"github.com/lazynd/lazynd/container"
)

// functionAllowList mirrors lazyarray's function allow-list (see
// lazyarray/node.go). It is kept as a separate copy rather than a
// shared import: numexpr must not depend on lazyarray, since lazyarray
// depends on numexpr only through the container.Kernel interface.
var functionAllowList = map[string]int{
	"sin": 1, "cos": 1, "tan": 1,
	"sinh": 1, "cosh": 1, "tanh": 1,
	"arcsin": 1, "arccos": 1, "arctan": 1,
	"arcsinh": 1, "arccosh": 1, "arctanh": 1,
	"exp": 1, "expm1": 1,
	"log": 1, "log10": 1, "log1p": 1,
	"sqrt": 1, "abs": 1,
	"conj": 1, "real": 1, "imag": 1,
	"arctan2":  2,
	"pow":      2,
	"contains": 2,
}

var realMathFuncs = map[string]func(float64) float64{
	"sin": math.Sin, "cos": math.Cos, "tan": math.Tan,
	"sinh": math.Sinh, "cosh": math.Cosh, "tanh": math.Tanh,
	"arcsin": math.Asin, "arccos": math.Acos, "arctan": math.Atan,
	"arcsinh": math.Asinh, "arccosh": math.Acosh, "arctanh": math.Atanh,
	"exp": math.Exp, "expm1": math.Expm1,
	"log": math.Log, "log10": math.Log10, "log1p": math.Log1p,
	"sqrt": math.Sqrt,
}

var complexMathFuncs = map[string]func(complex128) complex128{
	"sin": cmplx.Sin, "cos": cmplx.Cos, "tan": cmplx.Tan,
	"sinh": cmplx.Sinh, "cosh": cmplx.Cosh, "tanh": cmplx.Tanh,
	"exp": cmplx.Exp, "log": cmplx.Log, "sqrt": cmplx.Sqrt,
}

// Kernel is a reference implementation of container.Kernel: it parses
// and evaluates the small textual expression grammar directly, rather
// than delegating to an external numeric expression library, the same
// division of labor the original expression engine uses numexpr's own
// C evaluator for.
type Kernel struct{}

// New returns a ready-to-use reference Kernel.
func New() Kernel { return Kernel{} }

// Validate implements container.Kernel.
func (Kernel) Validate(expr string, names []string) error {
	root, err := parseExpr(expr)
	if err != nil {
		return err
	}
	allowed := make(map[string]bool, len(names))
	for _, n := range names {
		allowed[n] = true
	}
	refs := map[string]bool{}
	identifiers(root, refs)
	for name := range refs {
		if !allowed[name] {
			return fmt.Errorf("numexpr: expression references unknown identifier %q", name)
		}
	}
	calls := map[string]int{}
	functionCalls(root, calls)
	for name, arity := range calls {
		want, ok := functionAllowList[name]
		if !ok {
			return fmt.Errorf("numexpr: function %q is not in the allowed function list", name)
		}
		if want != arity {
			return fmt.Errorf("numexpr: function %q expects %d argument(s), got %d", name, want, arity)
		}
	}
	return nil
}

// Evaluate implements container.Kernel.
func (Kernel) Evaluate(expr string, operands map[string]container.Buffer, out *container.Buffer) (container.Buffer, error) {
	root, err := parseExpr(expr)
	if err != nil {
		return container.Buffer{}, err
	}
	result, err := evalNode(root, operands)
	if err != nil {
		return container.Buffer{}, err
	}
	if out != nil && out.DType == result.DType && out.Len() == result.Len() {
		copy(out.Bools, result.Bools)
		copy(out.Ints, result.Ints)
		copy(out.Floats, result.Floats)
		copy(out.Complexes, result.Complexes)
		out.Shape = result.Shape
		return *out, nil
	}
	return result, nil
}

func evalNode(n node, operands map[string]container.Buffer) (container.Buffer, error) {
	switch x := n.(type) {
	case intLit:
		return container.Scalar{DType: container.Int64, Int: x.v}.Broadcast(1), nil
	case floatLit:
		return container.Scalar{DType: container.Float64, Float: x.v}.Broadcast(1), nil
	case boolLit:
		return container.Scalar{DType: container.Bool, Bool: x.v}.Broadcast(1), nil
	case ident:
		b, ok := operands[x.name]
		if !ok {
			return container.Buffer{}, fmt.Errorf("numexpr: no operand bound for %q", x.name)
		}
		return b, nil
	case unary:
		v, err := evalNode(x.x, operands)
		if err != nil {
			return container.Buffer{}, err
		}
		return evalUnary(x.op, v)
	case binary:
		l, err := evalNode(x.l, operands)
		if err != nil {
			return container.Buffer{}, err
		}
		r, err := evalNode(x.r, operands)
		if err != nil {
			return container.Buffer{}, err
		}
		return evalBinary(x.op, l, r)
	case call:
		args := make([]container.Buffer, len(x.args))
		for i, a := range x.args {
			v, err := evalNode(a, operands)
			if err != nil {
				return container.Buffer{}, err
			}
			args[i] = v
		}
		return evalCall(x.name, args)
	default:
		return container.Buffer{}, fmt.Errorf("numexpr: unhandled AST node %T", n)
	}
}

func shapeField(s []int64) []int64 {
	if len(s) == 0 {
		return nil
	}
	return s
}

func toBool(b container.Buffer, i int) bool {
	switch b.DType {
	case container.Bool:
		return b.Bools[i]
	case container.Int64:
		return b.Ints[i] != 0
	case container.Float64:
		return b.Floats[i] != 0
	case container.Complex128:
		return b.Complexes[i] != 0
	default:
		return false
	}
}

func toInt64(b container.Buffer, i int) int64 {
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
	case container.Complex128:
		return int64(real(b.Complexes[i]))
	default:
		return 0
	}
}

func toComplex128(b container.Buffer, i int) complex128 {
	if b.DType == container.Complex128 {
		return b.Complexes[i]
	}
	return complex(b.Float64At(i), 0)
}

func ipow(base, exp int64) int64 {
	if exp < 0 {
		return 0
	}
	result := int64(1)
	for ; exp > 0; exp-- {
		result *= base
	}
	return result
}

func evalUnary(op string, x container.Buffer) (container.Buffer, error) {
	n := x.Len()
	switch op {
	case "not":
		out := container.NewBuffer(container.Bool, x.Shape, n)
		for i := 0; i < n; i++ {
			out.Bools[i] = !toBool(x, i)
		}
		return out, nil
	case "-":
		dt := x.DType
		if dt == container.Bool {
			dt = container.Int64
		}
		out := container.NewBuffer(dt, x.Shape, n)
		for i := 0; i < n; i++ {
			switch dt {
			case container.Int64:
				out.Ints[i] = -toInt64(x, i)
			case container.Float64:
				out.Floats[i] = -x.Float64At(i)
			case container.Complex128:
				out.Complexes[i] = -toComplex128(x, i)
			}
		}
		return out, nil
	default:
		return container.Buffer{}, fmt.Errorf("numexpr: unsupported unary operator %q", op)
	}
}

func evalBinary(op string, l, r container.Buffer) (container.Buffer, error) {
	outShape, err := broadcastShape(l.Shape, r.Shape)
	if err != nil {
		return container.Buffer{}, err
	}
	lst := broadcastStrides(l.Shape, outShape)
	rst := broadcastStrides(r.Shape, outShape)
	switch op {
	case "and", "or":
		n := product(outShape)
		out := container.NewBuffer(container.Bool, shapeField(outShape), n)
		forEachIndex(outShape, func(flat int, idx []int64) {
			a := toBool(l, flatIndex(idx, lst))
			b := toBool(r, flatIndex(idx, rst))
			if op == "and" {
				out.Bools[flat] = a && b
			} else {
				out.Bools[flat] = a || b
			}
		})
		return out, nil
	case "==", "!=", "<", "<=", ">", ">=":
		return compareOp(op, l, r, lst, rst, outShape)
	default:
		return arithOp(op, l, r, lst, rst, outShape)
	}
}

func compareOp(op string, l, r container.Buffer, lst, rst, outShape []int64) (container.Buffer, error) {
	n := product(outShape)
	out := container.NewBuffer(container.Bool, shapeField(outShape), n)
	compareDType := container.Promote(l.DType, r.DType)
	var opErr error
	forEachIndex(outShape, func(flat int, idx []int64) {
		ai, bi := flatIndex(idx, lst), flatIndex(idx, rst)
		if compareDType == container.Complex128 {
			x, y := toComplex128(l, ai), toComplex128(r, bi)
			switch op {
			case "==":
				out.Bools[flat] = x == y
			case "!=":
				out.Bools[flat] = x != y
			default:
				opErr = fmt.Errorf("numexpr: operator %q is not defined for complex operands", op)
			}
			return
		}
		x, y := l.Float64At(ai), r.Float64At(bi)
		switch op {
		case "==":
			out.Bools[flat] = x == y
		case "!=":
			out.Bools[flat] = x != y
		case "<":
			out.Bools[flat] = x < y
		case "<=":
			out.Bools[flat] = x <= y
		case ">":
			out.Bools[flat] = x > y
		case ">=":
			out.Bools[flat] = x >= y
		}
	})
	if opErr != nil {
		return container.Buffer{}, opErr
	}
	return out, nil
}

func arithOp(op string, l, r container.Buffer, lst, rst, outShape []int64) (container.Buffer, error) {
	outDType := container.Promote(l.DType, r.DType)
	if op == "/" && outDType != container.Complex128 {
		outDType = container.Float64
	}
	if op == "**" && outDType == container.Bool {
		outDType = container.Int64
	}
	n := product(outShape)
	out := container.NewBuffer(outDType, shapeField(outShape), n)
	var opErr error
	forEachIndex(outShape, func(flat int, idx []int64) {
		ai, bi := flatIndex(idx, lst), flatIndex(idx, rst)
		switch outDType {
		case container.Int64:
			x, y := toInt64(l, ai), toInt64(r, bi)
			switch op {
			case "+":
				out.Ints[flat] = x + y
			case "-":
				out.Ints[flat] = x - y
			case "*":
				out.Ints[flat] = x * y
			case "**":
				out.Ints[flat] = ipow(x, y)
			default:
				opErr = fmt.Errorf("numexpr: unsupported integer operator %q", op)
			}
		case container.Float64:
			x, y := l.Float64At(ai), r.Float64At(bi)
			switch op {
			case "+":
				out.Floats[flat] = x + y
			case "-":
				out.Floats[flat] = x - y
			case "*":
				out.Floats[flat] = x * y
			case "/":
				out.Floats[flat] = x / y
			case "**":
				out.Floats[flat] = math.Pow(x, y)
			default:
				opErr = fmt.Errorf("numexpr: unsupported float operator %q", op)
			}
		case container.Complex128:
			x, y := toComplex128(l, ai), toComplex128(r, bi)
			switch op {
			case "+":
				out.Complexes[flat] = x + y
			case "-":
				out.Complexes[flat] = x - y
			case "*":
				out.Complexes[flat] = x * y
			case "/":
				out.Complexes[flat] = x / y
			case "**":
				out.Complexes[flat] = cmplx.Pow(x, y)
			default:
				opErr = fmt.Errorf("numexpr: unsupported complex operator %q", op)
			}
		}
	})
	if opErr != nil {
		return container.Buffer{}, opErr
	}
	return out, nil
}

func evalCall(name string, args []container.Buffer) (container.Buffer, error) {
	switch name {
	case "arctan2":
		return binaryMathBroadcast(args[0], args[1], math.Atan2)
	case "pow":
		outShape, err := broadcastShape(args[0].Shape, args[1].Shape)
		if err != nil {
			return container.Buffer{}, err
		}
		lst := broadcastStrides(args[0].Shape, outShape)
		rst := broadcastStrides(args[1].Shape, outShape)
		return arithOp("**", args[0], args[1], lst, rst, outShape)
	case "contains":
		return containsOp(args[0], args[1])
	case "abs":
		return absOp(args[0])
	case "conj":
		return conjOp(args[0])
	case "real":
		return realOp(args[0])
	case "imag":
		return imagOp(args[0])
	default:
		return applyUnaryMath(name, args[0])
	}
}

func binaryMathBroadcast(a, b container.Buffer, fn func(float64, float64) float64) (container.Buffer, error) {
	outShape, err := broadcastShape(a.Shape, b.Shape)
	if err != nil {
		return container.Buffer{}, err
	}
	ast := broadcastStrides(a.Shape, outShape)
	bst := broadcastStrides(b.Shape, outShape)
	n := product(outShape)
	out := container.NewBuffer(container.Float64, shapeField(outShape), n)
	forEachIndex(outShape, func(flat int, idx []int64) {
		out.Floats[flat] = fn(a.Float64At(flatIndex(idx, ast)), b.Float64At(flatIndex(idx, bst)))
	})
	return out, nil
}

// containsOp implements the engine's numeric rendering of "contains":
// bitwise-flag containment, a & b == b, elementwise over int64-coerced
// operands (spec.md has no string dtype, so substring containment does
// not transfer; see DESIGN.md for the rationale). The result is always
// Bool.
func containsOp(a, b container.Buffer) (container.Buffer, error) {
	outShape, err := broadcastShape(a.Shape, b.Shape)
	if err != nil {
		return container.Buffer{}, err
	}
	ast := broadcastStrides(a.Shape, outShape)
	bst := broadcastStrides(b.Shape, outShape)
	n := product(outShape)
	out := container.NewBuffer(container.Bool, shapeField(outShape), n)
	forEachIndex(outShape, func(flat int, idx []int64) {
		x, y := toInt64(a, flatIndex(idx, ast)), toInt64(b, flatIndex(idx, bst))
		out.Bools[flat] = x&y == y
	})
	return out, nil
}

func absOp(x container.Buffer) (container.Buffer, error) {
	n := x.Len()
	switch x.DType {
	case container.Complex128:
		out := container.NewBuffer(container.Float64, x.Shape, n)
		for i := 0; i < n; i++ {
			out.Floats[i] = cmplx.Abs(x.Complexes[i])
		}
		return out, nil
	case container.Int64:
		out := container.NewBuffer(container.Int64, x.Shape, n)
		for i := 0; i < n; i++ {
			v := x.Ints[i]
			if v < 0 {
				v = -v
			}
			out.Ints[i] = v
		}
		return out, nil
	default:
		out := container.NewBuffer(container.Float64, x.Shape, n)
		for i := 0; i < n; i++ {
			out.Floats[i] = math.Abs(x.Float64At(i))
		}
		return out, nil
	}
}

func conjOp(x container.Buffer) (container.Buffer, error) {
	if x.DType != container.Complex128 {
		return x, nil
	}
	n := x.Len()
	out := container.NewBuffer(container.Complex128, x.Shape, n)
	for i := 0; i < n; i++ {
		out.Complexes[i] = cmplx.Conj(x.Complexes[i])
	}
	return out, nil
}

func realOp(x container.Buffer) (container.Buffer, error) {
	if x.DType != container.Complex128 {
		return x, nil
	}
	n := x.Len()
	out := container.NewBuffer(container.Float64, x.Shape, n)
	for i := 0; i < n; i++ {
		out.Floats[i] = real(x.Complexes[i])
	}
	return out, nil
}

func imagOp(x container.Buffer) (container.Buffer, error) {
	n := x.Len()
	out := container.NewBuffer(container.Float64, x.Shape, n)
	if x.DType == container.Complex128 {
		for i := 0; i < n; i++ {
			out.Floats[i] = imag(x.Complexes[i])
		}
	}
	return out, nil
}

func applyUnaryMath(name string, x container.Buffer) (container.Buffer, error) {
	n := x.Len()
	if x.DType == container.Complex128 {
		fn, ok := complexMathFuncs[name]
		if !ok {
			return container.Buffer{}, fmt.Errorf("numexpr: function %q does not support complex operands", name)
		}
		out := container.NewBuffer(container.Complex128, x.Shape, n)
		for i := 0; i < n; i++ {
			out.Complexes[i] = fn(x.Complexes[i])
		}
		return out, nil
	}
	fn, ok := realMathFuncs[name]
	if !ok {
		return container.Buffer{}, fmt.Errorf("numexpr: unknown function %q", name)
	}
	out := container.NewBuffer(container.Float64, x.Shape, n)
	for i := 0; i < n; i++ {
		out.Floats[i] = fn(x.Float64At(i))
	}
	return out, nil
}
