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


// Package sky converts between sexagesimal and decimal sky coordinates,
// and measures angular distances on the celestial sphere.
package sky

import (
	"errors"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
)

// Base error for invalid coordinates. Test with errors.Is.
var ErrValidation = errors.New("invalid coordinate")

// Declination outside of [-90°, 90°]
type RangeError struct {
	Dec float64 // offending declination in degrees
}

func (e *RangeError) Error() string {
	return fmt.Sprintf("declination %g out of range [-90, 90]", e.Dec)
}

func (e *RangeError) Unwrap() error { return ErrValidation }

// Malformed sexagesimal or angle string
type ParseError struct {
	Kind  string // "RA", "Dec" or "angle"
	Value string
	Err   error // underlying strconv error, if any
}

func (e *ParseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("invalid %s '%s': %s", e.Kind, e.Value, e.Err.Error())
	}
	return fmt.Sprintf("invalid %s '%s'", e.Kind, e.Value)
}

func (e *ParseError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrValidation}
	}
	return []error{ErrValidation, e.Err}
}

// Converts an RA in hours, minutes and seconds to decimal degrees in [0,360)
func HMSToDeg(h, m, s float64) float64 {
	hrs := math.Mod(h+m/60+s/3600, 24)
	if hrs < 0 {
		hrs += 24
	}
	return 15 * hrs
}

// Converts a declination in degrees, minutes and seconds to decimal degrees.
// The sign is carried on the degrees field, including negative zero, and
// applies to minutes and seconds as well. Returns a *RangeError if the
// magnitude exceeds 90 degrees.
func DMSToDeg(d, m, s float64) (float64, error) {
	if math.Signbit(d) {
		m, s = -m, -s
	}
	deg := d + m/60 + s/3600
	if math.Abs(deg) > 90 {
		return 0, &RangeError{Dec: deg}
	}
	return deg, nil
}

// Splits decimal degrees in [0,360) into hours, minutes and seconds
func DegToHMS(deg float64) (h, m int, s float64) {
	hrs := math.Mod(deg/15, 24)
	if hrs < 0 {
		hrs += 24
	}
	h = int(hrs)
	mins := (hrs - float64(h)) * 60
	m = int(mins)
	s = (mins - float64(m)) * 60
	return h, m, s
}

// Splits decimal degrees into sign, degrees, minutes and seconds
func DegToDMS(deg float64) (negative bool, d, m int, s float64) {
	negative = deg < 0
	abs := math.Abs(deg)
	d = int(abs)
	mins := (abs - float64(d)) * 60
	m = int(mins)
	s = (mins - float64(m)) * 60
	return negative, d, m, s
}

// Formats decimal degrees as HH:MM:SS.sss
func FormatRA(deg float64) string {
	h, m, s := DegToHMS(deg)
	return fmt.Sprintf("%02d:%02d:%06.3f", h, m, s)
}

// Formats decimal degrees as ±DD.MM.SS.sss, the sky model declination format
func FormatDec(deg float64) string {
	neg, d, m, s := DegToDMS(deg)
	sign := '+'
	if neg {
		sign = '-'
	}
	return fmt.Sprintf("%c%02d.%02d.%06.3f", sign, d, m, s)
}

// Parses a sky model RA of the form HH:MM:SS[.sss] into decimal degrees
func ParseRA(s string) (float64, error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) != 3 {
		return 0, &ParseError{Kind: "RA", Value: s}
	}
	vals, err := parseFields(parts)
	if err != nil {
		return 0, &ParseError{Kind: "RA", Value: s, Err: err}
	}
	return HMSToDeg(vals[0], vals[1], vals[2]), nil
}

// Parses a sky model declination of the form ±DD.MM.SS[.sss] into decimal degrees.
// Fractional seconds stay attached to the third field.
func ParseDec(s string) (float64, error) {
	parts := strings.SplitN(strings.TrimSpace(s), ".", 3)
	if len(parts) != 3 {
		return 0, &ParseError{Kind: "Dec", Value: s}
	}
	vals, err := parseFields(parts)
	if err != nil {
		return 0, &ParseError{Kind: "Dec", Value: s, Err: err}
	}
	return DMSToDeg(vals[0], vals[1], vals[2])
}

func parseFields(parts []string) ([]float64, error) {
	vals := make([]float64, len(parts))
	for i, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return nil, err
		}
		vals[i] = v
	}
	return vals, nil
}

var reHMSLetters = regexp.MustCompile(`^([+-]?[0-9]+)h([0-9]+)m([0-9.]+)s?$`)
var reDMSLetters = regexp.MustCompile(`^([+-]?[0-9]+)d([0-9]+)m([0-9.]+)s?$`)
var reQuantity = regexp.MustCompile(`^([+-]?(?:[0-9]+\.?[0-9]*|\.[0-9]+)(?:[eE][+-]?[0-9]+)?)\s*(deg|d|rad|arcmin|arcsec)?$`)

// Parses a right ascension given as HH:MM:SS, 12h30m00s, or a plain
// number with an optional unit (deg, rad, arcmin, arcsec; degrees if omitted).
// Returns decimal degrees in [0,360).
func ParseRAAngle(s string) (float64, error) {
	t := strings.TrimSpace(s)
	if strings.Count(t, ":") == 2 {
		return ParseRA(t)
	}
	if sub := reHMSLetters.FindStringSubmatch(t); sub != nil {
		vals, err := parseFields(sub[1:])
		if err != nil {
			return 0, &ParseError{Kind: "RA", Value: s, Err: err}
		}
		return HMSToDeg(vals[0], vals[1], vals[2]), nil
	}
	deg, err := ParseAngle(t)
	if err != nil {
		return 0, &ParseError{Kind: "RA", Value: s}
	}
	deg = math.Mod(deg, 360)
	if deg < 0 {
		deg += 360
	}
	return deg, nil
}

// Parses a declination given as ±DD.MM.SS, ±DD:MM:SS, ±DDdMMmSSs, or a plain
// number with an optional unit. Returns decimal degrees in [-90,90].
func ParseDecAngle(s string) (float64, error) {
	t := strings.TrimSpace(s)
	if strings.Count(t, ".") >= 2 {
		return ParseDec(t)
	}
	var parts []string
	if strings.Count(t, ":") == 2 {
		parts = strings.Split(t, ":")
	} else if sub := reDMSLetters.FindStringSubmatch(t); sub != nil {
		parts = sub[1:]
	}
	if parts != nil {
		vals, err := parseFields(parts)
		if err != nil {
			return 0, &ParseError{Kind: "Dec", Value: s, Err: err}
		}
		return DMSToDeg(vals[0], vals[1], vals[2])
	}
	deg, err := ParseAngle(t)
	if err != nil {
		return 0, &ParseError{Kind: "Dec", Value: s}
	}
	if math.Abs(deg) > 90 {
		return 0, &RangeError{Dec: deg}
	}
	return deg, nil
}

// Parses a number with an optional angular unit into degrees. Degrees if no unit given.
func ParseAngle(s string) (float64, error) {
	sub := reQuantity.FindStringSubmatch(strings.TrimSpace(s))
	if sub == nil {
		return 0, &ParseError{Kind: "angle", Value: s}
	}
	v, err := strconv.ParseFloat(sub[1], 64)
	if err != nil {
		return 0, &ParseError{Kind: "angle", Value: s, Err: err}
	}
	switch sub[2] {
	case "rad":
		v *= 180 / math.Pi
	case "arcmin":
		v /= 60
	case "arcsec":
		v /= 3600
	}
	return v, nil
}
