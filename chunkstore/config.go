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

	"sigs.k8s.io/yaml"

	"github.com/lazynd/lazynd/compr"
	"github.com/lazynd/lazynd/container"
)

// yamlConfig is the on-disk YAML rendering of container.Config: plain
// fields rather than container.Config itself, since Config's
// CompressionParams/DecompressionParams are typed `any` to keep
// container free of a compr dependency.
type yamlConfig struct {
	Chunks              []int64 `json:"chunks,omitempty"`
	Blocks              []int64 `json:"blocks,omitempty"`
	DType               string  `json:"dtype,omitempty"`
	OutputLocator       string  `json:"outputLocator,omitempty"`
	Mode                string  `json:"mode,omitempty"`
	CompressionCodec    string  `json:"compressionCodec,omitempty"`
	DecompressionCodec  string  `json:"decompressionCodec,omitempty"`
}

// LoadConfig parses a container.Config from YAML text, the same
// convention the teacher uses sigs.k8s.io/yaml for in its own
// table/database definition loaders.
func LoadConfig(data []byte) (container.Config, error) {
	var y yamlConfig
	if err := yaml.Unmarshal(data, &y); err != nil {
		return container.Config{}, fmt.Errorf("chunkstore: parsing config: %w", err)
	}
	dtype, err := parseDType(y.DType)
	if err != nil {
		return container.Config{}, err
	}
	cfg := container.Config{
		Chunks:              y.Chunks,
		Blocks:              y.Blocks,
		DType:               dtype,
		OutputLocator:       y.OutputLocator,
		Mode:                container.Mode(y.Mode),
		CompressionParams:   compr.CompressionParams{Codec: y.CompressionCodec},
		DecompressionParams: compr.DecompressionParams{Codec: y.DecompressionCodec},
	}
	if cfg.Mode == "" {
		cfg.Mode = container.ModeCreate
	}
	return cfg, nil
}

func parseDType(name string) (container.DType, error) {
	switch name {
	case "", "float64":
		return container.Float64, nil
	case "int64":
		return container.Int64, nil
	case "bool":
		return container.Bool, nil
	case "complex128":
		return container.Complex128, nil
	default:
		return 0, fmt.Errorf("chunkstore: unknown dtype %q", name)
	}
}
