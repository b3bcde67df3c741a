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
)

type operandKind byte

const (
	kindScalar operandKind = iota
	kindDense
	kindChunked
)

// Operand is a named input to an expression: a scalar, a dense
// in-memory buffer, or a chunked Container (spec.md §3).
type Operand struct {
	kind     operandKind
	identity identityToken

	scalar  container.Scalar
	dense   container.Buffer
	chunked container.Container
}

// NewScalar wraps a Go numeric/boolean value as a scalar operand.
func NewScalar(v any) (Operand, error) {
	s, err := container.NormalizeScalar(v)
	if err != nil {
		return Operand{}, err
	}
	return Operand{kind: kindScalar, identity: newIdentityToken(), scalar: s}, nil
}

// NewDense wraps a dense in-memory buffer as an array operand.
func NewDense(buf container.Buffer) Operand {
	return Operand{kind: kindDense, identity: newIdentityToken(), dense: buf}
}

// NewChunked wraps a chunked Container as an array operand.
func NewChunked(c container.Container) Operand {
	return Operand{kind: kindChunked, identity: newIdentityToken(), chunked: c}
}

// IsScalar reports whether op is a scalar operand.
func (op Operand) IsScalar() bool { return op.kind == kindScalar }

// IsArray reports whether op is a dense or chunked array operand.
func (op Operand) IsArray() bool { return op.kind != kindScalar }

// IsChunked reports whether op is backed by a chunked Container.
func (op Operand) IsChunked() bool { return op.kind == kindChunked }

// SameIdentity reports whether op and other were constructed from the
// same NewScalar/NewDense/NewChunked call (the "value1 is value2"
// check of spec.md §4.1/§9).
func (op Operand) SameIdentity(other Operand) bool {
	return op.identity == other.identity
}

// Scalar returns op's scalar value; ok is false if op is not a scalar.
func (op Operand) Scalar() (container.Scalar, bool) {
	if op.kind != kindScalar {
		return container.Scalar{}, false
	}
	return op.scalar, true
}

// Chunked returns op's Container; ok is false if op is not chunked.
func (op Operand) Chunked() (container.Container, bool) {
	if op.kind != kindChunked {
		return nil, false
	}
	return op.chunked, true
}

// Dense returns op's dense Buffer; ok is false if op is not dense.
func (op Operand) Dense() (container.Buffer, bool) {
	if op.kind != kindDense {
		return container.Buffer{}, false
	}
	return op.dense, true
}

// Shape returns op's shape, or nil for a scalar.
func (op Operand) Shape() []int64 {
	switch op.kind {
	case kindDense:
		return op.dense.Shape
	case kindChunked:
		return op.chunked.Shape()
	default:
		return nil
	}
}

// DType returns op's element type.
func (op Operand) DType() container.DType {
	switch op.kind {
	case kindScalar:
		return op.scalar.DType
	case kindDense:
		return op.dense.DType
	case kindChunked:
		return op.chunked.DType()
	default:
		return container.Float64
	}
}

// sampleScalar returns a single representative element of op (used by
// LazyNode.DType's scalar-sample dtype discovery, spec.md §3).
func (op Operand) sampleScalar() (container.Scalar, bool) {
	switch op.kind {
	case kindScalar:
		return op.scalar, true
	case kindDense:
		if op.dense.Len() == 0 {
			return container.Scalar{}, false
		}
		return elemScalar(op.dense, 0), true
	case kindChunked:
		return container.Scalar{DType: op.chunked.DType()}, true
	default:
		return container.Scalar{}, false
	}
}

func elemScalar(b container.Buffer, i int) container.Scalar {
	switch b.DType {
	case container.Bool:
		return container.Scalar{DType: container.Bool, Bool: b.Bools[i]}
	case container.Int64:
		return container.Scalar{DType: container.Int64, Int: b.Ints[i]}
	case container.Float64:
		return container.Scalar{DType: container.Float64, Float: b.Floats[i]}
	case container.Complex128:
		return container.Scalar{DType: container.Complex128, Cplx: b.Complexes[i]}
	default:
		return container.Scalar{}
	}
}

// namedOperand pairs a placeholder name with its Operand, in the
// insertion order the operand table preserves.
type namedOperand struct {
	name string
	op   Operand
}

// operandTable is an ordered mapping from placeholder name (o0, o1,
// ...) to Operand (spec.md §3's "Operand table").
type operandTable struct {
	entries []namedOperand
}

func newOperandTable() operandTable {
	return operandTable{}
}

func (t operandTable) Len() int { return len(t.entries) }

// names returns the placeholder names in insertion order.
func (t operandTable) names() []string {
	out := make([]string, len(t.entries))
	for i, e := range t.entries {
		out[i] = e.name
	}
	return out
}

// lookup returns the Operand bound to name.
func (t operandTable) lookup(name string) (Operand, bool) {
	for _, e := range t.entries {
		if e.name == name {
			return e.op, true
		}
	}
	return Operand{}, false
}

// indexOfIdentity returns the name of the first operand whose identity
// matches op's, if any exists in the table.
func (t operandTable) indexOfIdentity(op Operand) (string, bool) {
	for _, e := range t.entries {
		if e.op.SameIdentity(op) {
			return e.name, true
		}
	}
	return "", false
}

// append adds a fresh placeholder bound to op, naming it o<N> where N
// is the table's current length, and returns the new table and name.
func (t operandTable) append(op Operand) (operandTable, string) {
	name := placeholderName(len(t.entries))
	nt := operandTable{entries: make([]namedOperand, len(t.entries)+1)}
	copy(nt.entries, t.entries)
	nt.entries[len(t.entries)] = namedOperand{name: name, op: op}
	return nt, name
}

// clone returns a shallow copy of t suitable for independent mutation.
func (t operandTable) clone() operandTable {
	nt := operandTable{entries: make([]namedOperand, len(t.entries))}
	copy(nt.entries, t.entries)
	return nt
}

// arrays returns the array-valued (non-scalar) operands, in table
// order, paired with their placeholder names.
func (t operandTable) arrays() []namedOperand {
	var out []namedOperand
	for _, e := range t.entries {
		if e.op.IsArray() {
			out = append(out, e)
		}
	}
	return out
}
