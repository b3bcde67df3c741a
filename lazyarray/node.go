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

// Package lazyarray implements a lazy, chunked, out-of-core
// N-dimensional array expression engine: operators build up a
// textual expression string over a table of operands without
// touching any data, and Eval/Reduce/Save later walk the operand
// chunks to produce a result (see SPEC_FULL.md).
package lazyarray

import "github.com/lazynd/lazynd/container"

// functionAllowList is the closed set of element-wise functions
// spec.md §3 names, verbatim -- no more, no fewer. LazyNode.Func
// rejects any name outside this set before ever handing an expression
// to a Kernel, so a bad function name fails at graph-construction
// time rather than deep inside evaluation.
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

// LazyNode is a lazy expression: a textual expression string paired
// with the operand table it references. It is built up incrementally
// by the arithmetic/comparison/logical operator methods and by Func,
// and only ever consulted -- never evaluated against real data --
// until Eval, Reduce, GetItem, or Save is called on it.
type LazyNode struct {
	expr     string
	operands operandTable
}

// Leaf wraps a single array (dense or chunked) as the starting point
// of an expression tree.
func Leaf(op Operand) *LazyNode {
	t, name := newOperandTable().append(op)
	return &LazyNode{expr: name, operands: t}
}

// String renders the node's current expression text.
func (n *LazyNode) String() string { return n.expr }

// Expression returns the node's textual expression, for inspection or
// persistence.
func (n *LazyNode) Expression() string { return n.expr }

// OperandNames returns the node's operand placeholders in table order.
func (n *LazyNode) OperandNames() []string { return n.operands.names() }

// Operand returns the operand bound to a given placeholder name.
func (n *LazyNode) Operand(name string) (Operand, bool) { return n.operands.lookup(name) }

// Shape returns n's broadcast output shape across all of its array
// operands.
func (n *LazyNode) Shape() ([]int64, error) {
	arrays := n.operands.arrays()
	if len(arrays) == 0 {
		return nil, typeErrorf("expression has no array operands")
	}
	shapes := make([][]int64, len(arrays))
	for i, e := range arrays {
		shapes[i] = e.op.Shape()
	}
	return BroadcastShape(shapes...)
}

// DType reports n's seed element type: the dtype of its first array
// operand, or of its sole scalar operand if it has no arrays. The
// Kernel may upgrade this once it observes the first evaluated chunk
// (spec.md §4.3 rule 6).
func (n *LazyNode) DType() container.DType {
	for _, e := range n.operands.arrays() {
		if s, ok := e.op.sampleScalar(); ok {
			return s.DType
		}
	}
	for _, e := range n.operands.entries {
		if s, ok := e.op.sampleScalar(); ok {
			return s.DType
		}
	}
	return container.Float64
}

// combine's rhs is either a *LazyNode, an Operand (array), or a Go
// scalar: the three shapes a binary operator's right-hand operand (or,
// via combine's swap, left-hand operand) can take.
func combine(lhs *LazyNode, op string, rhs any, swap bool) (*LazyNode, error) {
	switch r := rhs.(type) {
	case *LazyNode:
		expr, table := fuse(lhs.expr, lhs.operands, op, r.expr, r.operands)
		if swap {
			expr, table = fuse(r.expr, r.operands, op, lhs.expr, lhs.operands)
		}
		return &LazyNode{expr: expr, operands: table}, nil
	case Operand:
		if name, ok := lhs.operands.indexOfIdentity(r); ok {
			return wrapBinary(lhs.expr, op, name, swap, lhs.operands), nil
		}
		t, name := lhs.operands.append(r)
		return wrapBinary(lhs.expr, op, name, swap, t), nil
	default:
		s, err := container.NormalizeScalar(rhs)
		if err != nil {
			return nil, err
		}
		lit := s.Literal()
		if swap {
			return &LazyNode{expr: "(" + lit + " " + op + " " + lhs.expr + ")", operands: lhs.operands}, nil
		}
		return &LazyNode{expr: "(" + lhs.expr + " " + op + " " + lit + ")", operands: lhs.operands}, nil
	}
}

func wrapBinary(lhsExpr, op, rhsName string, swap bool, table operandTable) *LazyNode {
	if swap {
		return &LazyNode{expr: "(" + rhsName + " " + op + " " + lhsExpr + ")", operands: table}
	}
	return &LazyNode{expr: "(" + lhsExpr + " " + op + " " + rhsName + ")", operands: table}
}

// Arithmetic, comparison, and logical operators. rhs may be a
// *LazyNode, an Operand, or a Go scalar (int, float64, bool, ...).

func (n *LazyNode) Add(rhs any) (*LazyNode, error) { return combine(n, "+", rhs, false) }
func (n *LazyNode) Sub(rhs any) (*LazyNode, error) { return combine(n, "-", rhs, false) }
func (n *LazyNode) Mul(rhs any) (*LazyNode, error) { return combine(n, "*", rhs, false) }
func (n *LazyNode) Div(rhs any) (*LazyNode, error) { return combine(n, "/", rhs, false) }
func (n *LazyNode) Pow(rhs any) (*LazyNode, error) { return combine(n, "**", rhs, false) }
func (n *LazyNode) And(rhs any) (*LazyNode, error) { return combine(n, "and", rhs, false) }
func (n *LazyNode) Or(rhs any) (*LazyNode, error)  { return combine(n, "or", rhs, false) }

func (n *LazyNode) Eq(rhs any) (*LazyNode, error) { return combine(n, "==", rhs, false) }
func (n *LazyNode) Ne(rhs any) (*LazyNode, error) { return combine(n, "!=", rhs, false) }
func (n *LazyNode) Lt(rhs any) (*LazyNode, error) { return combine(n, "<", rhs, false) }
func (n *LazyNode) Le(rhs any) (*LazyNode, error) { return combine(n, "<=", rhs, false) }
func (n *LazyNode) Gt(rhs any) (*LazyNode, error) { return combine(n, ">", rhs, false) }
func (n *LazyNode) Ge(rhs any) (*LazyNode, error) { return combine(n, ">=", rhs, false) }

// RAdd etc. build the operator with n on the right (value OP n),
// mirroring the original's __radd__/__rsub__/... family, used when
// the left-hand value is a plain Go scalar and n is the LazyNode.
func (n *LazyNode) RAdd(lhs any) (*LazyNode, error) { return combine(n, "+", lhs, true) }
func (n *LazyNode) RSub(lhs any) (*LazyNode, error) { return combine(n, "-", lhs, true) }
func (n *LazyNode) RMul(lhs any) (*LazyNode, error) { return combine(n, "*", lhs, true) }
func (n *LazyNode) RDiv(lhs any) (*LazyNode, error) { return combine(n, "/", lhs, true) }
func (n *LazyNode) RPow(lhs any) (*LazyNode, error) { return combine(n, "**", lhs, true) }

// Not applies logical negation.
func (n *LazyNode) Not() *LazyNode {
	return &LazyNode{expr: "(not " + n.expr + ")", operands: n.operands}
}

// Neg applies unary arithmetic negation.
func (n *LazyNode) Neg() *LazyNode {
	return &LazyNode{expr: "(-" + n.expr + ")", operands: n.operands}
}

// Func applies a named allow-listed function to n and any additional
// array/scalar arguments (e.g. Func("arctan2", other), Func("contains",
// mask)).
func (n *LazyNode) Func(name string, args ...any) (*LazyNode, error) {
	arity, ok := functionAllowList[name]
	if !ok {
		return nil, exprErrorf(n.expr, "function %q is not in the allowed function list", name)
	}
	if arity != len(args)+1 {
		return nil, exprErrorf(n.expr, "function %q expects %d argument(s), got %d", name, arity, len(args)+1)
	}
	expr := n.expr
	table := n.operands
	parts := make([]string, 0, len(args)+1)
	parts = append(parts, expr)
	for _, a := range args {
		var piece string
		switch v := a.(type) {
		case *LazyNode:
			var rename map[string]string
			table, rename = fuseOperandTables(table, v.operands)
			piece = rebasePlaceholders(v.expr, rename)
		case Operand:
			if existing, ok := table.indexOfIdentity(v); ok {
				piece = existing
			} else {
				var name string
				table, name = table.append(v)
				piece = name
			}
		default:
			s, err := container.NormalizeScalar(v)
			if err != nil {
				return nil, err
			}
			piece = s.Literal()
		}
		parts = append(parts, piece)
	}
	out := name + "("
	for i, p := range parts {
		if i > 0 {
			out += ", "
		}
		out += p
	}
	out += ")"
	return &LazyNode{expr: out, operands: table}, nil
}

// Func on a bare Operand, for chaining like Func("sin", leafOperand)
// without first wrapping the operand in a LazyNode.
func Func(name string, args ...any) (*LazyNode, error) {
	if len(args) == 0 {
		return nil, exprErrorf("", "function %q requires at least one argument", name)
	}
	first := args[0]
	var n *LazyNode
	switch v := first.(type) {
	case *LazyNode:
		n = v
	case Operand:
		n = Leaf(v)
	default:
		return nil, typeErrorf("function %q's first argument must be an array", name)
	}
	return n.Func(name, args[1:]...)
}
