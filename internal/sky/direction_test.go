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
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/valyala/fastrand"
)

// spherical law of cosines, for comparison
func lawOfCosines(a, b Direction) float64 {
	c := math.Sin(a.Dec)*math.Sin(b.Dec) + math.Cos(a.Dec)*math.Cos(b.Dec)*math.Cos(a.RA-b.RA)
	return math.Acos(math.Max(-1, math.Min(1, c)))
}

func TestSeparationKnownValues(t *testing.T) {
	pole := NewDirectionDeg(0, 90)
	origin := NewDirectionDeg(0, 0)
	assert.InDelta(t, 0, Separation(origin, origin), 1e-15)
	assert.InDelta(t, math.Pi/2, Separation(pole, origin), 1e-12)
	assert.InDelta(t, math.Pi, Separation(origin, NewDirectionDeg(180, 0)), 1e-12)
	// RA wraps around
	assert.InDelta(t, Rad(2), Separation(NewDirectionDeg(359, 0), NewDirectionDeg(1, 0)), 1e-12)
	// one degree in RA at dec 60 is half a degree on the sky, approximately
	assert.InDelta(t, Rad(0.5), Separation(NewDirectionDeg(10, 60), NewDirectionDeg(11, 60)), 1e-5)
	// arc second scale
	assert.InDelta(t, ArcsecToRad(1), Separation(NewDirectionDeg(10, 20), NewDirectionDeg(10, 20+1.0/3600)), 1e-13)
}

func TestSeparationMatchesLawOfCosines(t *testing.T) {
	rng := fastrand.RNG{}
	for i := 0; i < 1000; i++ {
		a := NewDirectionDeg(float64(rng.Uint32n(360000))/1000, float64(rng.Uint32n(180000))/1000-90)
		b := NewDirectionDeg(float64(rng.Uint32n(360000))/1000, float64(rng.Uint32n(180000))/1000-90)
		require.InDelta(t, lawOfCosines(a, b), Separation(a, b), 1e-7, "%v %v", a, b)
		require.InDelta(t, Separation(a, b), Separation(b, a), 1e-15)
	}
}

func TestParseDirection(t *testing.T) {
	d, err := ParseDirection("12:30:00", "+41.16.00")
	require.NoError(t, err)
	assert.InDelta(t, Rad(187.5), d.RA, 1e-12)
	assert.InDelta(t, Rad(41+16.0/60), d.Dec, 1e-12)
	assert.Contains(t, d.String(), EpochJ2000)

	_, err = ParseDirection("12:30:00", "+99.00.00")
	assert.Error(t, err)
}
