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

package compr

// CompressionParams selects and configures the
// per-chunk compression codec used when a container
// writes a chunk.
type CompressionParams struct {
	// Codec names an algorithm accepted by Compression,
	// e.g. "zstd", "zstd-better", "s2". The zero value
	// selects "zstd".
	Codec string
}

// DecompressionParams selects the codec used to
// read back a chunk written with CompressionParams.
type DecompressionParams struct {
	// Codec names an algorithm accepted by Decompression.
	// The zero value selects "zstd".
	Codec string
}

// Compressor resolves p to a Compressor, defaulting
// to "zstd" when Codec is unset.
func (p CompressionParams) Compressor() Compressor {
	name := p.Codec
	if name == "" {
		name = "zstd"
	}
	return Compression(name)
}

// Decompressor resolves p to a Decompressor, defaulting
// to "zstd" when Codec is unset.
func (p DecompressionParams) Decompressor() Decompressor {
	name := p.Codec
	if name == "" {
		name = "zstd"
	}
	return Decompression(name)
}
