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


package sky

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/spatial/r3"
)

// Reference frame for all directions. No precession or nutation is applied.
const EpochJ2000 = "J2000"

// Converts degrees to radians
func Rad(deg float64) float64 { return deg * math.Pi / 180 }

// Converts radians to degrees
func Deg(rad float64) float64 { return rad * 180 / math.Pi }

// Converts arc seconds to radians
func ArcsecToRad(arcsec float64) float64 { return arcsec / 3600 * math.Pi / 180 }

// A direction on the celestial sphere, in radians
type Direction struct {
	RA  float64 `json:"ra"`
	Dec float64 `json:"dec"`
}

// Creates a direction from decimal degrees
func NewDirectionDeg(raDeg, decDeg float64) Direction {
	return Direction{RA: Rad(raDeg), Dec: Rad(decDeg)}
}

// Parses a direction from RA and Dec strings, see ParseRAAngle and ParseDecAngle
func ParseDirection(ra, dec string) (Direction, error) {
	raDeg, err := ParseRAAngle(ra)
	if err != nil {
		return Direction{}, err
	}
	decDeg, err := ParseDecAngle(dec)
	if err != nil {
		return Direction{}, err
	}
	return NewDirectionDeg(raDeg, decDeg), nil
}

func (d Direction) String() string {
	return fmt.Sprintf("%s %s %s", EpochJ2000, FormatRA(Deg(d.RA)), FormatDec(Deg(d.Dec)))
}

// Unit vector pointing towards the direction
func (d Direction) Vec() r3.Vec {
	cosDec := math.Cos(d.Dec)
	return r3.Vec{
		X: cosDec * math.Cos(d.RA),
		Y: cosDec * math.Sin(d.RA),
		Z: math.Sin(d.Dec),
	}
}

// Great circle distance between two directions in radians, in [0, pi].
// Same result as the spherical law of cosines, but from atan2 of the cross
// and dot products of the unit vectors, which stays accurate for tiny angles.
func Separation(a, b Direction) float64 {
	va, vb := a.Vec(), b.Vec()
	return math.Atan2(r3.Norm(r3.Cross(va, vb)), r3.Dot(va, vb))
}
