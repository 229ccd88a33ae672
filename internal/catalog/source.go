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


// Package catalog reads self-describing sky model catalogs into source records.
//
// The first line declares the columns, e.g.
//
//	format = Name, Type, Ra, Dec, I, MajorAxis, MinorAxis, Orientation
//
// or in the alternative form "# (Name, Type, Ra, Dec, I) = format".
// Columns may carry default values as in "ReferenceFrequency='60e6'".
package catalog

import (
	"fmt"
	"strings"

	"github.com/mlnoga/skymask/internal/sky"
)

// Source shape, as given in the Type column
type ShapeType int

const (
	Unknown ShapeType = iota
	Point
	Gaussian
)

func ParseShapeType(s string) ShapeType {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "POINT":
		return Point
	case "GAUSSIAN":
		return Gaussian
	default:
		return Unknown
	}
}

func (t ShapeType) String() string {
	switch t {
	case Point:
		return "POINT"
	case Gaussian:
		return "GAUSSIAN"
	default:
		return "UNKNOWN"
	}
}

// A single catalog entry. Immutable once read.
type Source struct {
	Line     int // line number in the catalog, for log output
	Name     string
	Type     ShapeType
	TypeName string // Type column as written, for warnings on unknown types
	RA       string // HH:MM:SS[.sss]
	Dec      string // ±DD.MM.SS[.sss]

	MajorAxis   float64 // full width in arc seconds
	MinorAxis   float64 // full width in arc seconds
	Orientation float64 // position angle in degrees
	Flux        float64 // Stokes I, Jy by convention

	HasMajorAxis   bool
	HasMinorAxis   bool
	HasOrientation bool
	HasFlux        bool

	Extra map[string]string // columns without a typed field, by header name
}

// Returns the source position. RA is normalized to [0,360) degrees,
// declinations beyond ±90 degrees fail with a *sky.RangeError.
func (s *Source) Position() (sky.Direction, error) {
	ra, err := sky.ParseRA(s.RA)
	if err != nil {
		return sky.Direction{}, fmt.Errorf("source %s: %w", s.Name, err)
	}
	dec, err := sky.ParseDec(s.Dec)
	if err != nil {
		return sky.Direction{}, fmt.Errorf("source %s: %w", s.Name, err)
	}
	return sky.NewDirectionDeg(ra, dec), nil
}

func (s *Source) String() string {
	b := strings.Builder{}
	fmt.Fprintf(&b, "%s %s %s %s", s.Name, s.Type, s.RA, s.Dec)
	if s.HasMajorAxis || s.HasMinorAxis {
		fmt.Fprintf(&b, " %gx%g\"", s.MajorAxis, s.MinorAxis)
	}
	if s.HasOrientation {
		fmt.Fprintf(&b, " pa=%g", s.Orientation)
	}
	if s.HasFlux {
		fmt.Fprintf(&b, " I=%gJy", s.Flux)
	}
	return b.String()
}
