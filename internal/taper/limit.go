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


// Package taper drops catalog sources too faint to be detected at their
// distance from a pointing center, given a Gaussian primary beam.
package taper

import (
	"errors"
	"fmt"
	"math"
	"strconv"

	"github.com/mlnoga/skymask/internal/sky"
)

// Minimum detectable flux at a sky position
type LimitFunc func(pos sky.Direction) float64

// Returns the limiting flux function limit*(1-exp(-4 ln2 sep^2/fwhm^2)),
// which is zero at the center and approaches limit far from it. fwhm in radians.
func BuildLimitFunc(limit, fwhm float64, center sky.Direction) LimitFunc {
	decay := -4 * math.Ln2 / (fwhm * fwhm)
	return func(pos sky.Direction) float64 {
		sep := sky.Separation(center, pos)
		return limit * (1 - math.Exp(decay*sep*sep))
	}
}

// Taper parameters
type Params struct {
	Limit  float64       `json:"limit"`
	FWHM   float64       `json:"fwhm"` // radians
	Center sky.Direction `json:"center"`
}

func (p Params) LimitFunc() LimitFunc {
	return BuildLimitFunc(p.Limit, p.FWHM, p.Center)
}

func (p Params) String() string {
	return fmt.Sprintf("limit %g fwhm %.6gdeg center %s", p.Limit, sky.Deg(p.FWHM), p.Center)
}

// Invalid or missing command line parameters
type UsageError struct {
	Msg string
	Err error
}

func (e *UsageError) Error() string {
	if e.Err != nil {
		return e.Msg + ": " + e.Err.Error()
	}
	return e.Msg
}

func (e *UsageError) Unwrap() error { return e.Err }

var errNotPositive = errors.New("must be positive")

// Parses <flux_limit> <fwhm> <ra> <dec>. The FWHM defaults to degrees and may carry
// a deg, rad, arcmin or arcsec suffix. RA and Dec accept sexagesimal or decimal degrees.
func ParseArgs(args []string) (Params, error) {
	if len(args) != 4 {
		return Params{}, &UsageError{Msg: fmt.Sprintf("expected 4 arguments, got %d", len(args))}
	}
	limit, err := strconv.ParseFloat(args[0], 64)
	if err != nil {
		return Params{}, &UsageError{Msg: "flux limit '" + args[0] + "'", Err: err}
	}
	fwhmDeg, err := sky.ParseAngle(args[1])
	if err != nil {
		return Params{}, &UsageError{Msg: "fwhm", Err: err}
	}
	if !(fwhmDeg > 0) {
		return Params{}, &UsageError{Msg: "fwhm '" + args[1] + "'", Err: errNotPositive}
	}
	center, err := sky.ParseDirection(args[2], args[3])
	if err != nil {
		return Params{}, &UsageError{Msg: "reference direction", Err: err}
	}
	return Params{Limit: limit, FWHM: sky.Rad(fwhmDeg), Center: center}, nil
}
