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

package container

import (
	"encoding/binary"
	"fmt"
	"math"
)

// Buffer is a dense, typed, N-dimensional in-memory block: the unit
// that the Kernel and user block functions operate on, and the unit
// OperandFetcher produces per chunk.
//
// Exactly one of the typed slices is populated, selected by DType.
// Shape is advisory (used for reshaping/printing); Kernel operations
// treat a Buffer as flat and element-for-element.
type Buffer struct {
	DType DType
	Shape []int64

	Bools     []bool
	Ints      []int64
	Floats    []float64
	Complexes []complex128
}

// NewBuffer allocates a zero-valued buffer of n elements of dtype dt
// with the given shape (shape may be nil for a flat buffer).
func NewBuffer(dt DType, shape []int64, n int) Buffer {
	b := Buffer{DType: dt, Shape: shape}
	switch dt {
	case Bool:
		b.Bools = make([]bool, n)
	case Int64:
		b.Ints = make([]int64, n)
	case Float64:
		b.Floats = make([]float64, n)
	case Complex128:
		b.Complexes = make([]complex128, n)
	default:
		panic(fmt.Sprintf("container: unsupported dtype %v", dt))
	}
	return b
}

// Len returns the number of elements in b.
func (b Buffer) Len() int {
	switch b.DType {
	case Bool:
		return len(b.Bools)
	case Int64:
		return len(b.Ints)
	case Float64:
		return len(b.Floats)
	case Complex128:
		return len(b.Complexes)
	default:
		return 0
	}
}

// Elem returns the i-th element as its natural Go type.
func (b Buffer) Elem(i int) any {
	switch b.DType {
	case Bool:
		return b.Bools[i]
	case Int64:
		return b.Ints[i]
	case Float64:
		return b.Floats[i]
	case Complex128:
		return b.Complexes[i]
	default:
		return nil
	}
}

// SetElem assigns the i-th element; v must be assignable to b.DType's
// natural Go type.
func (b Buffer) SetElem(i int, v any) {
	switch b.DType {
	case Bool:
		b.Bools[i] = v.(bool)
	case Int64:
		b.Ints[i] = v.(int64)
	case Float64:
		b.Floats[i] = v.(float64)
	case Complex128:
		b.Complexes[i] = v.(complex128)
	default:
		panic("container: SetElem on zero-value Buffer")
	}
}

// Float64At returns the i-th element converted to float64, for use by
// numeric kernels that operate uniformly over promoted operands.
func (b Buffer) Float64At(i int) float64 {
	switch b.DType {
	case Bool:
		if b.Bools[i] {
			return 1
		}
		return 0
	case Int64:
		return float64(b.Ints[i])
	case Float64:
		return b.Floats[i]
	case Complex128:
		return real(b.Complexes[i])
	default:
		return 0
	}
}

// Bytes encodes b's native little-endian byte representation, the
// format Container implementations persist chunks in.
func (b Buffer) Bytes() []byte {
	n := b.Len()
	out := make([]byte, n*b.DType.Itemsize())
	switch b.DType {
	case Bool:
		for i, v := range b.Bools {
			if v {
				out[i] = 1
			}
		}
	case Int64:
		for i, v := range b.Ints {
			binary.LittleEndian.PutUint64(out[i*8:], uint64(v))
		}
	case Float64:
		for i, v := range b.Floats {
			binary.LittleEndian.PutUint64(out[i*8:], math.Float64bits(v))
		}
	case Complex128:
		for i, v := range b.Complexes {
			binary.LittleEndian.PutUint64(out[i*16:], math.Float64bits(real(v)))
			binary.LittleEndian.PutUint64(out[i*16+8:], math.Float64bits(imag(v)))
		}
	}
	return out
}

// BufferFromBytes decodes raw little-endian bytes (as produced by
// Bytes, or read back from a Container's compressed chunk storage)
// into a typed Buffer of n elements and the given shape.
func BufferFromBytes(raw []byte, dt DType, shape []int64, n int) Buffer {
	b := NewBuffer(dt, shape, n)
	switch dt {
	case Bool:
		for i := 0; i < n; i++ {
			b.Bools[i] = raw[i] != 0
		}
	case Int64:
		for i := 0; i < n; i++ {
			b.Ints[i] = int64(binary.LittleEndian.Uint64(raw[i*8:]))
		}
	case Float64:
		for i := 0; i < n; i++ {
			b.Floats[i] = math.Float64frombits(binary.LittleEndian.Uint64(raw[i*8:]))
		}
	case Complex128:
		for i := 0; i < n; i++ {
			re := math.Float64frombits(binary.LittleEndian.Uint64(raw[i*16:]))
			im := math.Float64frombits(binary.LittleEndian.Uint64(raw[i*16+8:]))
			b.Complexes[i] = complex(re, im)
		}
	}
	return b
}

// Scalar wraps a single Go numeric/boolean value as a 0-dimensional
// operand. NormalizeScalar maps the wide range of Go numeric types a
// caller might pass (int, int32, float32, ...) onto the four DTypes.
type Scalar struct {
	DType DType
	Bool  bool
	Int   int64
	Float float64
	Cplx  complex128
}

// NormalizeScalar converts v into a Scalar, determining its DType.
func NormalizeScalar(v any) (Scalar, error) {
	switch x := v.(type) {
	case bool:
		return Scalar{DType: Bool, Bool: x}, nil
	case int:
		return Scalar{DType: Int64, Int: int64(x)}, nil
	case int8:
		return Scalar{DType: Int64, Int: int64(x)}, nil
	case int16:
		return Scalar{DType: Int64, Int: int64(x)}, nil
	case int32:
		return Scalar{DType: Int64, Int: int64(x)}, nil
	case int64:
		return Scalar{DType: Int64, Int: x}, nil
	case uint:
		return Scalar{DType: Int64, Int: int64(x)}, nil
	case uint8:
		return Scalar{DType: Int64, Int: int64(x)}, nil
	case uint16:
		return Scalar{DType: Int64, Int: int64(x)}, nil
	case uint32:
		return Scalar{DType: Int64, Int: int64(x)}, nil
	case uint64:
		return Scalar{DType: Int64, Int: int64(x)}, nil
	case float32:
		return Scalar{DType: Float64, Float: float64(x)}, nil
	case float64:
		return Scalar{DType: Float64, Float: x}, nil
	case complex64:
		return Scalar{DType: Complex128, Cplx: complex128(x)}, nil
	case complex128:
		return Scalar{DType: Complex128, Cplx: x}, nil
	default:
		return Scalar{}, fmt.Errorf("container: %T is not a supported scalar type", v)
	}
}

// Literal renders s the way ExpressionString inlines scalar operands
// textually (see lazyarray's ExpressionString.buildBinary).
func (s Scalar) Literal() string {
	switch s.DType {
	case Bool:
		if s.Bool {
			return "True"
		}
		return "False"
	case Int64:
		return fmt.Sprintf("%d", s.Int)
	case Float64:
		return fmt.Sprintf("%g", s.Float)
	case Complex128:
		return fmt.Sprintf("complex(%g, %g)", real(s.Cplx), imag(s.Cplx))
	default:
		return "0"
	}
}

// Broadcast expands s into a flat Buffer of n repeated elements, used
// by the Kernel when a scalar operand must be materialized alongside
// array operands.
func (s Scalar) Broadcast(n int) Buffer {
	b := NewBuffer(s.DType, nil, n)
	for i := 0; i < n; i++ {
		switch s.DType {
		case Bool:
			b.Bools[i] = s.Bool
		case Int64:
			b.Ints[i] = s.Int
		case Float64:
			b.Floats[i] = s.Float
		case Complex128:
			b.Complexes[i] = s.Cplx
		}
	}
	return b
}
