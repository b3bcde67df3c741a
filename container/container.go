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

// SpecialValue classifies a chunk's lazy header without requiring a
// full decompression, mirroring the Container contract's optional
// get_lazychunk hook (spec.md §4.4/§6). The driver only ever reads
// this; see DESIGN.md for why the corresponding skip-on-all-zero
// optimization is detected but not acted upon.
type SpecialValue byte

const (
	NotSpecial SpecialValue = iota
	SpecialZero
)

// ChunkHeader is the lightweight per-chunk metadata a Container may
// expose without decompressing the chunk body.
type ChunkHeader struct {
	Special SpecialValue
}

// Container is the narrow contract the core depends on for a
// compressed, chunked N-dimensional array store. It is implemented by
// the reference chunkstore package, but lazyarray never imports that
// package directly -- only this interface.
type Container interface {
	// Shape is the logical (unpadded) array shape.
	Shape() []int64
	// Chunks is the I/O tiling: the shape of one chunk.
	Chunks() []int64
	// Blocks is the in-chunk compression tiling.
	Blocks() []int64
	// ExtShape is Shape rounded up to a whole number of Chunks per
	// dimension; ExtShape != Shape iff the container has padding.
	ExtShape() []int64
	// DType is the element type.
	DType() DType
	// Nchunks is the total number of chunks (product of
	// ExtShape[i]/Chunks[i]).
	Nchunks() int
	// Locator is a stable, resolvable handle to this container
	// (a filesystem path, URL, or opaque token), used by the
	// persistence hook.
	Locator() string

	// DecompressChunk decompresses chunk nchunk's contents into dst,
	// reusing dst's backing array when it has enough capacity, and
	// returns the populated slice. A boundary chunk's contents are
	// clipped to the logical Shape, not padded to Chunks.
	DecompressChunk(nchunk int, dst []byte) ([]byte, error)
	// UpdateData writes result (already encoded via Buffer.Bytes)
	// as the new contents of chunk nchunk. copy indicates whether
	// the container must defensively copy result rather than
	// retain the slice.
	UpdateData(nchunk int, result []byte, copy bool) error
	// LazyChunkHeader returns chunk nchunk's header without
	// decompressing its body, when the container can supply one
	// cheaply.
	LazyChunkHeader(nchunk int) (ChunkHeader, bool)

	// WriteMetadata persists an opaque variable-length metadata blob
	// under key, alongside the container's chunk data -- the Go
	// rendering of a compressed-array store's side metadata table
	// (vlmeta), used by the persistence hook to save a LazyNode's
	// expression/operand-locator record next to its output array.
	WriteMetadata(key string, data []byte) error
	// ReadMetadata retrieves a blob previously written under key.
	ReadMetadata(key string) ([]byte, bool, error)
}

// Mode selects how Create should treat an existing locator.
type Mode string

const (
	ModeCreate   Mode = "create"
	ModeOverride Mode = "override"
)

// Config carries the recognized, user-facing evaluation/creation
// options of spec.md §6. Field names are Go-cased renderings of the
// spec's abstract option names; the driver-internal options
// (_output, _reduce_args, _getitem, _slice) are NOT part of Config --
// they are explicit parameters on lazyarray's EvalDriver methods.
type Config struct {
	Chunks               []int64
	Blocks               []int64
	DType                DType
	OutputLocator        string
	Mode                 Mode
	CompressionParams    any // compr.CompressionParams; kept as `any` so container has no compr dependency
	DecompressionParams  any // compr.DecompressionParams
}

// Factory creates a new Container, the Go rendering of the Container
// contract's create_empty/create_zeros/create_full operations. The
// driver is handed a Factory rather than importing a concrete
// container implementation, so lazyarray has zero dependency on any
// particular storage backend.
type Factory interface {
	// Create allocates an empty container of the given shape/dtype,
	// tiled according to cfg.Chunks/cfg.Blocks (falling back to
	// reasonable defaults when unset).
	Create(shape []int64, dtype DType, cfg Config) (Container, error)
	// CreateZeros is like Create but fills every chunk with the
	// dtype's zero value up front.
	CreateZeros(shape []int64, dtype DType, cfg Config) (Container, error)
	// CreateFull is like Create but fills every chunk with value.
	CreateFull(shape []int64, value Scalar, dtype DType, cfg Config) (Container, error)
}

// Kernel is the narrow contract for the pluggable scalar expression
// evaluator: it applies a textual expression over a name->Buffer
// binding, broadcasting scalars, and recognizing the function
// allow-list of spec.md §3.
type Kernel interface {
	// Evaluate applies expr to operands. When out is non-nil and its
	// shape/dtype accept the result in place, Evaluate may write
	// into *out and return it; otherwise it allocates a fresh Buffer.
	Evaluate(expr string, operands map[string]Buffer, out *Buffer) (Buffer, error)
	// Validate performs a static check of expr against names (the
	// allowed placeholder set) and the function allow-list, without
	// evaluating anything. Used both by Eval's entry-point validation
	// and by the persistence hook's save/open re-validation.
	Validate(expr string, names []string) error
}

// BlockFunc is a user-defined per-block function: it must fill out in
// place given the chunk-local inputs and the chunk's global starting
// coordinate offset.
type BlockFunc func(inputs []Buffer, out *Buffer, offset []int64) error
