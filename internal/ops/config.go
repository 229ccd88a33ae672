// Copyright (C) 2020 Markus L. Noga
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.


package ops

import (
	"bytes"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/mlnoga/skymask/internal/mask"
)

const DefaultPreviewColor = "#ff3030"

// Settings from a YAML configuration file. Command line flags take precedence.
type Config struct {
	PadArcsec    float64 `yaml:"padArcsec"`
	BeamArcsec   float64 `yaml:"beamArcsec"`
	Threads      int     `yaml:"threads"` // 0 = one per logical core
	Preview      string  `yaml:"preview"`
	PreviewColor string  `yaml:"previewColor"`
	Listen       string  `yaml:"listen"`
	Log          string  `yaml:"log"`
}

func DefaultConfig() Config {
	p := mask.DefaultParams()
	return Config{
		PadArcsec:    p.PadArcsec,
		BeamArcsec:   p.BeamArcsec,
		PreviewColor: DefaultPreviewColor,
		Listen:       ":8080",
		Log:          "%auto",
	}
}

// Reads a configuration file. Keys not present keep their defaults, unknown keys are an error.
func LoadConfig(fileName string) (Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(fileName)
	if err != nil {
		return cfg, err
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && err != io.EOF {
		return cfg, fmt.Errorf("%s: %w", fileName, err)
	}
	if cfg.Threads < 0 {
		return cfg, fmt.Errorf("%s: threads must not be negative", fileName)
	}
	return cfg, nil
}

func (cfg Config) MaskParams() mask.Params {
	return mask.Params{PadArcsec: cfg.PadArcsec, BeamArcsec: cfg.BeamArcsec}
}
