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
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/valyala/fastrand"
)

func TestHMSToDeg(t *testing.T) {
	assert.InDelta(t, 0.0, HMSToDeg(0, 0, 0), 1e-12)
	assert.InDelta(t, 187.5, HMSToDeg(12, 30, 0), 1e-12)
	assert.InDelta(t, 15.0, HMSToDeg(25, 0, 0), 1e-12) // wraps at 24h
	assert.InDelta(t, 345.0, HMSToDeg(-1, 0, 0), 1e-12)
}

func TestHMSRoundTrip(t *testing.T) {
	rng := fastrand.RNG{}
	for i := 0; i < 10000; i++ {
		h := float64(rng.Uint32n(24))
		m := float64(rng.Uint32n(60))
		s := float64(rng.Uint32n(60000)) / 1000

		deg := HMSToDeg(h, m, s)
		require.True(t, deg >= 0 && deg < 360, "deg=%f", deg)

		gh, gm, gs := DegToHMS(deg)
		want := h*3600 + m*60 + s
		got := float64(gh)*3600 + float64(gm)*60 + gs
		if math.Abs(got-want) > 1e-6 {
			t.Fatalf("%v:%v:%v -> %f -> %d:%d:%f", h, m, s, deg, gh, gm, gs)
		}
	}
}

func TestDMSRoundTrip(t *testing.T) {
	rng := fastrand.RNG{}
	for i := 0; i < 10000; i++ {
		d := float64(rng.Uint32n(90))
		m := float64(rng.Uint32n(60))
		s := float64(rng.Uint32n(60000)) / 1000
		if rng.Uint32n(2) == 1 {
			d = -d
			if d == 0 {
				d = math.Copysign(0, -1)
			}
		}

		deg, err := DMSToDeg(d, m, s)
		require.NoError(t, err)

		neg, gd, gm, gs := DegToDMS(deg)
		wantAbs := math.Abs(d)*3600 + m*60 + s
		gotAbs := float64(gd)*3600 + float64(gm)*60 + gs
		assert.InDelta(t, wantAbs, gotAbs, 1e-6)
		if wantAbs > 0 {
			assert.Equal(t, math.Signbit(d), neg, "sign of %v %v %v", d, m, s)
		}
	}
}

func TestDMSToDegOutOfRange(t *testing.T) {
	for _, tc := range [][3]float64{{91, 0, 0}, {-90, 0, 1}, {90, 1, 0}, {180, 0, 0}} {
		_, err := DMSToDeg(tc[0], tc[1], tc[2])
		require.Error(t, err, "%v", tc)
		var re *RangeError
		assert.True(t, errors.As(err, &re))
		assert.True(t, errors.Is(err, ErrValidation))
	}
	deg, err := DMSToDeg(-90, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, -90.0, deg)
}

func TestParseDec(t *testing.T) {
	tcs := []struct {
		in   string
		want float64
	}{
		{"+41.16.00", 41 + 16.0/60},
		{"41.16.00.5", 41 + 16.0/60 + 0.5/3600},
		{"-05.30.00", -5.5},
		{"-00.30.00", -0.5},
		{"00.30.00", 0.5},
	}
	for _, tc := range tcs {
		got, err := ParseDec(tc.in)
		require.NoError(t, err, tc.in)
		assert.InDelta(t, tc.want, got, 1e-12, tc.in)
	}

	_, err := ParseDec("+95.00.00")
	assert.True(t, errors.Is(err, ErrValidation))
	_, err = ParseDec("12:30:00")
	var pe *ParseError
	assert.True(t, errors.As(err, &pe))
	_, err = ParseDec("ab.cd.ef")
	assert.True(t, errors.Is(err, ErrValidation))
}

func TestParseRA(t *testing.T) {
	got, err := ParseRA("12:30:00")
	require.NoError(t, err)
	assert.InDelta(t, 187.5, got, 1e-12)

	got, err = ParseRA(" 23:59:59.5 ")
	require.NoError(t, err)
	assert.InDelta(t, 15*(23+59.0/60+59.5/3600), got, 1e-12)

	for _, bad := range []string{"", "12:30", "12.30.00", "xx:00:00"} {
		_, err = ParseRA(bad)
		assert.True(t, errors.Is(err, ErrValidation), bad)
	}
}

func TestFormatParseRoundTrip(t *testing.T) {
	for _, deg := range []float64{0, 12.345, 187.5, 359.9} {
		got, err := ParseRA(FormatRA(deg))
		require.NoError(t, err)
		assert.InDelta(t, deg, got, 1e-5)
	}
	for _, deg := range []float64{-89.5, -0.25, 0, 41.2667, 90} {
		got, err := ParseDec(FormatDec(deg))
		require.NoError(t, err)
		assert.InDelta(t, deg, got, 1e-5)
	}
}

func TestParseAngles(t *testing.T) {
	tcs := []struct {
		ra, dec     string
		wantRA, wantDec float64
	}{
		{"12:30:00", "+41.16.00", 187.5, 41 + 16.0/60},
		{"12h30m00s", "41d16m00s", 187.5, 41 + 16.0/60},
		{"187.5", "41:16:00", 187.5, 41 + 16.0/60},
		{"187.5deg", "-12.5deg", 187.5, -12.5},
		{"3.14159265358979rad", "0rad", 180, 0},
		{"-10", "-00:30:00", 350, -0.5},
	}
	for _, tc := range tcs {
		ra, err := ParseRAAngle(tc.ra)
		require.NoError(t, err, tc.ra)
		assert.InDelta(t, tc.wantRA, ra, 1e-9, tc.ra)
		dec, err := ParseDecAngle(tc.dec)
		require.NoError(t, err, tc.dec)
		assert.InDelta(t, tc.wantDec, dec, 1e-9, tc.dec)
	}

	_, err := ParseDecAngle("91")
	assert.True(t, errors.Is(err, ErrValidation))
	_, err = ParseRAAngle("north")
	assert.True(t, errors.Is(err, ErrValidation))

	v, err := ParseAngle("3600arcsec")
	require.NoError(t, err)
	assert.InDelta(t, 1.0, v, 1e-12)
	v, err = ParseAngle("30arcmin")
	require.NoError(t, err)
	assert.InDelta(t, 0.5, v, 1e-12)
}
