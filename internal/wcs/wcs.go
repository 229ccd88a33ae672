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


// Package wcs maps between pixel and celestial coordinates of a FITS image,
// following Calabretta & Greisen, "Representations of celestial coordinates
// in FITS", A&A 395, 1077 (2002). Only zenithal projections are supported,
// which covers what radio imagers write.
package wcs

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"gonum.org/v1/gonum/mat"

	"github.com/mlnoga/skymask/internal/fits"
)

var (
	ErrUnsupported = errors.New("unsupported world coordinate system")
	ErrNoSolution  = errors.New("coordinate has no projection")
)

// Zenithal projection codes from the CTYPE keys
type Projection string

const (
	SIN Projection = "SIN" // slant orthographic, the radio interferometry default
	TAN Projection = "TAN" // gnomonic
	ARC Projection = "ARC" // zenithal equidistant
	STG Projection = "STG" // stereographic
)

func ParseProjection(s string) (Projection, error) {
	p := Projection(strings.ToUpper(strings.TrimSpace(s)))
	switch p {
	case SIN, TAN, ARC, STG:
		return p, nil
	}
	return "", fmt.Errorf("%w: projection '%s'", ErrUnsupported, s)
}

const r2d = 180 / math.Pi
const d2r = math.Pi / 180

// A celestial world coordinate system for the first two image axes.
// Pixel coordinates are 0-based; FITS CRPIX is 1-based.
type WCS struct {
	Proj    Projection
	CRVAL   [2]float64 // reference point RA, Dec in degrees
	CRPIX   [2]float64 // reference pixel, 1-based
	CD      [4]float64 // linear transformation, degrees per pixel, row major
	LonPole float64    // native longitude of the celestial pole in degrees

	inv [4]float64 // inverse of CD
}

// Creates a WCS with the given projection, reference point in degrees,
// 1-based reference pixel and pixel scale in degrees
func New(proj Projection, crval, crpix, cdelt [2]float64) (*WCS, error) {
	return newWCS(proj, crval, crpix, [4]float64{cdelt[0], 0, 0, cdelt[1]}, defaultLonPole(crval[1]))
}

func newWCS(proj Projection, crval, crpix [2]float64, cd [4]float64, lonPole float64) (*WCS, error) {
	m := mat.NewDense(2, 2, cd[:])
	if math.Abs(mat.Det(m)) < 1e-300 {
		return nil, fmt.Errorf("%w: singular pixel scale matrix", ErrUnsupported)
	}
	var inv mat.Dense
	if err := inv.Inverse(m); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrUnsupported, err.Error())
	}
	w := &WCS{Proj: proj, CRVAL: crval, CRPIX: crpix, CD: cd, LonPole: lonPole}
	w.inv = [4]float64{inv.At(0, 0), inv.At(0, 1), inv.At(1, 0), inv.At(1, 1)}
	return w, nil
}

// Reads the celestial WCS of the first two axes from a FITS header.
// The linear part comes from CDi_j, or PCi_j with CDELTi, or CDELTi with CROTA2.
func FromHeader(h *fits.Header) (*WCS, error) {
	ctype1, _ := h.String("CTYPE1")
	ctype2, _ := h.String("CTYPE2")
	if !strings.HasPrefix(ctype1, "RA--") || !strings.HasPrefix(ctype2, "DEC-") || len(ctype1) < 8 || len(ctype2) < 8 {
		return nil, fmt.Errorf("%w: axes '%s', '%s'; need RA and DEC as first two axes", ErrUnsupported, ctype1, ctype2)
	}
	proj, err := ParseProjection(ctype1[5:8])
	if err != nil {
		return nil, err
	}
	if ctype2[5:8] != string(proj) {
		return nil, fmt.Errorf("%w: mixed projections '%s', '%s'", ErrUnsupported, ctype1, ctype2)
	}

	var crval, crpix [2]float64
	for i, k := range []string{"1", "2"} {
		var ok bool
		if crval[i], ok = h.Float("CRVAL" + k); !ok {
			return nil, fmt.Errorf("%w: CRVAL%s missing", ErrUnsupported, k)
		}
		crpix[i] = h.FloatOr("CRPIX"+k, 0)
	}

	var cd [4]float64
	_, hasCD11 := h.Float("CD1_1")
	_, hasCD22 := h.Float("CD2_2")
	if hasCD11 || hasCD22 {
		cd = [4]float64{h.FloatOr("CD1_1", 0), h.FloatOr("CD1_2", 0), h.FloatOr("CD2_1", 0), h.FloatOr("CD2_2", 0)}
	} else {
		cdelt1, ok1 := h.Float("CDELT1")
		cdelt2, ok2 := h.Float("CDELT2")
		if !ok1 || !ok2 {
			return nil, fmt.Errorf("%w: no CDi_j or CDELTi keys", ErrUnsupported)
		}
		_, hasPC11 := h.Float("PC1_1")
		_, hasPC22 := h.Float("PC2_2")
		if hasPC11 || hasPC22 {
			cd = [4]float64{
				cdelt1 * h.FloatOr("PC1_1", 1), cdelt1 * h.FloatOr("PC1_2", 0),
				cdelt2 * h.FloatOr("PC2_1", 0), cdelt2 * h.FloatOr("PC2_2", 1),
			}
		} else {
			rho := h.FloatOr("CROTA2", 0) * d2r
			cd = [4]float64{
				cdelt1 * math.Cos(rho), -cdelt2 * math.Sin(rho),
				cdelt1 * math.Sin(rho), cdelt2 * math.Cos(rho),
			}
		}
	}

	return newWCS(proj, crval, crpix, cd, h.FloatOr("LONPOLE", defaultLonPole(crval[1])))
}

// Writes the WCS into a FITS header as RA/DEC axes with CRVAL, CRPIX and CD or CDELT keys
func (w *WCS) ToHeader(h *fits.Header) {
	h.SetString("CTYPE1", "RA---"+string(w.Proj))
	h.SetString("CTYPE2", "DEC--"+string(w.Proj))
	h.SetString("CUNIT1", "deg")
	h.SetString("CUNIT2", "deg")
	h.SetFloat("CRVAL1", w.CRVAL[0])
	h.SetFloat("CRVAL2", w.CRVAL[1])
	h.SetFloat("CRPIX1", w.CRPIX[0])
	h.SetFloat("CRPIX2", w.CRPIX[1])
	if w.CD[1] == 0 && w.CD[2] == 0 {
		h.SetFloat("CDELT1", w.CD[0])
		h.SetFloat("CDELT2", w.CD[3])
	} else {
		h.SetFloat("CD1_1", w.CD[0])
		h.SetFloat("CD1_2", w.CD[1])
		h.SetFloat("CD2_1", w.CD[2])
		h.SetFloat("CD2_2", w.CD[3])
	}
	if w.LonPole != defaultLonPole(w.CRVAL[1]) {
		h.SetFloat("LONPOLE", w.LonPole)
	}
	h.SetString("RADESYS", "FK5")
	h.SetFloat("EQUINOX", 2000)
}

func (w *WCS) String() string {
	return fmt.Sprintf("%s crval=(%.6f, %.6f) crpix=(%.2f, %.2f) cd=[%.4g %.4g; %.4g %.4g]",
		w.Proj, w.CRVAL[0], w.CRVAL[1], w.CRPIX[0], w.CRPIX[1], w.CD[0], w.CD[1], w.CD[2], w.CD[3])
}

// Converts 0-based pixel coordinates to RA and Dec in radians. RA is in [0, 2pi).
func (w *WCS) ToWorld(x, y float64) (ra, dec float64, err error) {
	px, py := x+1-w.CRPIX[0], y+1-w.CRPIX[1]
	ix := w.CD[0]*px + w.CD[1]*py
	iy := w.CD[2]*px + w.CD[3]*py

	// intermediate world coordinates to native spherical coordinates
	r := math.Hypot(ix, iy)
	phi := math.Atan2(ix, -iy)
	var theta float64
	switch w.Proj {
	case SIN:
		s := r * d2r
		if s > 1 {
			return 0, 0, ErrNoSolution
		}
		theta = math.Acos(s)
	case TAN:
		theta = math.Atan2(r2d, r)
	case ARC:
		theta = (90 - r) * d2r
	case STG:
		theta = math.Pi/2 - 2*math.Atan(r*d2r/2)
	}

	// native to celestial
	ra0, dec0, phiP := w.CRVAL[0]*d2r, w.CRVAL[1]*d2r, w.LonPole*d2r
	sinT, cosT := math.Sincos(theta)
	sinD0, cosD0 := math.Sincos(dec0)
	sinDP, cosDP := math.Sincos(phi - phiP)

	a := -cosT * sinDP
	b := sinT*cosD0 - cosT*sinD0*cosDP
	dec = math.Atan2(sinT*sinD0+cosT*cosD0*cosDP, math.Hypot(a, b))
	ra = ra0 + math.Atan2(a, b)
	return normRA(ra), dec, nil
}

// Converts RA and Dec in radians to real-valued 0-based pixel coordinates
func (w *WCS) ToPixel(ra, dec float64) (x, y float64, err error) {
	ra0, dec0, phiP := w.CRVAL[0]*d2r, w.CRVAL[1]*d2r, w.LonPole*d2r
	sinD, cosD := math.Sincos(dec)
	sinD0, cosD0 := math.Sincos(dec0)
	sinDA, cosDA := math.Sincos(ra - ra0)

	// celestial to native
	a := -cosD * sinDA
	b := sinD*cosD0 - cosD*sinD0*cosDA
	phi := phiP + math.Atan2(a, b)
	theta := math.Atan2(sinD*sinD0+cosD*cosD0*cosDA, math.Hypot(a, b))

	// native spherical to intermediate world coordinates, in degrees
	var r float64
	switch w.Proj {
	case SIN:
		if theta < 0 {
			return 0, 0, ErrNoSolution
		}
		r = r2d * math.Cos(theta)
	case TAN:
		if theta <= 0 {
			return 0, 0, ErrNoSolution
		}
		r = r2d * math.Cos(theta) / math.Sin(theta)
	case ARC:
		r = 90 - theta*r2d
	case STG:
		if theta <= -math.Pi/2 {
			return 0, 0, ErrNoSolution
		}
		r = r2d * 2 * math.Cos(theta) / (1 + math.Sin(theta))
	}
	sinP, cosP := math.Sincos(phi)
	ix, iy := r*sinP, -r*cosP

	px := w.inv[0]*ix + w.inv[1]*iy
	py := w.inv[2]*ix + w.inv[3]*iy
	return px + w.CRPIX[0] - 1, py + w.CRPIX[1] - 1, nil
}

// Native longitude of the celestial pole when LONPOLE is absent
func defaultLonPole(dec0 float64) float64 {
	if dec0 >= 90 {
		return 0
	}
	return 180
}

func normRA(ra float64) float64 {
	ra = math.Mod(ra, 2*math.Pi)
	if ra < 0 {
		ra += 2 * math.Pi
	}
	return ra
}
