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

package chunkstore

import (
	"fmt"

	"github.com/lazynd/lazynd/container"
)

// Factory is the reference container.Factory: it allocates Stores and
// registers them under their locator so a later Open call (or the
// persistence hook's ContainerResolver) can resolve them again.
type Factory struct{}

// Create implements container.Factory.
func (Factory) Create(shape []int64, dtype container.DType, cfg container.Config) (container.Container, error) {
	if err := checkMode(cfg); err != nil {
		return nil, err
	}
	s := newStore(shape, dtype, cfg)
	register(s.locator, s)
	return s, nil
}

// CreateZeros implements container.Factory: like Create, but every
// chunk is actually compressed and written as zeros up front (so
// LazyChunkHeader can flag it, and so a caller cannot observe any
// difference between an explicitly zeroed chunk and one Create merely
// promises reads as zero).
func (Factory) CreateZeros(shape []int64, dtype container.DType, cfg container.Config) (container.Container, error) {
	if err := checkMode(cfg); err != nil {
		return nil, err
	}
	s := newStore(shape, dtype, cfg)
	if err := fillEvery(s, container.Scalar{DType: dtype}); err != nil {
		return nil, err
	}
	register(s.locator, s)
	return s, nil
}

// CreateFull implements container.Factory: every chunk is compressed
// and written filled with value.
func (Factory) CreateFull(shape []int64, value container.Scalar, dtype container.DType, cfg container.Config) (container.Container, error) {
	if err := checkMode(cfg); err != nil {
		return nil, err
	}
	s := newStore(shape, dtype, cfg)
	if err := fillEvery(s, value); err != nil {
		return nil, err
	}
	register(s.locator, s)
	return s, nil
}

func checkMode(cfg container.Config) error {
	if cfg.OutputLocator == "" || cfg.Mode == container.ModeOverride {
		return nil
	}
	if _, err := Open(cfg.OutputLocator); err == nil {
		return fmt.Errorf("chunkstore: container %q already exists (use ModeOverride to replace it)", cfg.OutputLocator)
	}
	return nil
}

func fillEvery(s *Store, value container.Scalar) error {
	v := convertScalar(value, s.dtype)
	n := s.Nchunks()
	for nchunk := 0; nchunk < n; nchunk++ {
		local := s.localLen(nchunk)
		buf := v.Broadcast(local)
		if err := s.UpdateData(nchunk, buf.Bytes(), false); err != nil {
			return err
		}
	}
	return nil
}

// convertScalar reinterprets value under dtype, the same int/float/
// bool/complex coercion Buffer.Float64At and friends perform -- needed
// because CreateFull's fill value may not already be the container's
// target dtype.
func convertScalar(value container.Scalar, dtype container.DType) container.Scalar {
	switch dtype {
	case container.Bool:
		return container.Scalar{DType: container.Bool, Bool: scalarAsBool(value)}
	case container.Int64:
		return container.Scalar{DType: container.Int64, Int: scalarAsInt64(value)}
	case container.Float64:
		return container.Scalar{DType: container.Float64, Float: scalarAsFloat64(value)}
	case container.Complex128:
		return container.Scalar{DType: container.Complex128, Cplx: scalarAsComplex(value)}
	default:
		return value
	}
}

func scalarAsBool(s container.Scalar) bool {
	switch s.DType {
	case container.Bool:
		return s.Bool
	case container.Int64:
		return s.Int != 0
	case container.Float64:
		return s.Float != 0
	case container.Complex128:
		return s.Cplx != 0
	default:
		return false
	}
}

func scalarAsInt64(s container.Scalar) int64 {
	switch s.DType {
	case container.Bool:
		if s.Bool {
			return 1
		}
		return 0
	case container.Int64:
		return s.Int
	case container.Float64:
		return int64(s.Float)
	case container.Complex128:
		return int64(real(s.Cplx))
	default:
		return 0
	}
}

func scalarAsFloat64(s container.Scalar) float64 {
	switch s.DType {
	case container.Bool:
		if s.Bool {
			return 1
		}
		return 0
	case container.Int64:
		return float64(s.Int)
	case container.Float64:
		return s.Float
	case container.Complex128:
		return real(s.Cplx)
	default:
		return 0
	}
}

func scalarAsComplex(s container.Scalar) complex128 {
	if s.DType == container.Complex128 {
		return s.Cplx
	}
	return complex(scalarAsFloat64(s), 0)
}
