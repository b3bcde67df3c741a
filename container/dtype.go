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

// Package container defines the narrow contracts the lazyarray core
// depends on for its two external collaborators: the compressed chunked
// array store (Container) and the scalar expression evaluator (Kernel).
// It also defines the element-type and buffer vocabulary shared by both
// contracts and by lazyarray itself.
package container

import "fmt"

// DType is the element type of a buffer or container. Real array
// libraries carry a much finer dtype lattice (int8..int64, float32,
// float64, ...); this engine collapses that lattice to the four kinds
// that its promotion, identity-fill, and overflow rules actually need
// to distinguish (see DESIGN.md): boolean results of comparisons and
// logical ops, 64-bit integers (with documented wraparound), 64-bit
// floats, and complex values for the conj/real/imag functions.
type DType byte

const (
	Bool DType = iota
	Int64
	Float64
	Complex128
)

// String implements fmt.Stringer.
func (d DType) String() string {
	switch d {
	case Bool:
		return "bool"
	case Int64:
		return "int64"
	case Float64:
		return "float64"
	case Complex128:
		return "complex128"
	default:
		return fmt.Sprintf("DType(%d)", byte(d))
	}
}

// Itemsize returns the size in bytes of a single element.
func (d DType) Itemsize() int {
	switch d {
	case Bool:
		return 1
	case Int64:
		return 8
	case Float64:
		return 8
	case Complex128:
		return 16
	default:
		return 0
	}
}

// rank orders dtypes for binary-operator promotion: the result of
// combining two operands takes the higher-ranked dtype, mirroring
// numexpr's bool < int < float < complex promotion ladder.
func (d DType) rank() int {
	switch d {
	case Bool:
		return 0
	case Int64:
		return 1
	case Float64:
		return 2
	case Complex128:
		return 3
	default:
		return -1
	}
}

// Promote returns the dtype an arithmetic operator should produce when
// combining operands of dtype a and b.
func Promote(a, b DType) DType {
	if a.rank() >= b.rank() {
		return a
	}
	return b
}
