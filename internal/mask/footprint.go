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


package mask

import (
	"math"
	"math/bits"

	"github.com/mlnoga/skymask/internal/catalog"
	"github.com/mlnoga/skymask/internal/sky"
)

// Geometry constants for footprints, in arc seconds
type Params struct {
	PadArcsec  float64 `json:"padArcsec"`  // added to every axis before halving
	BeamArcsec float64 `json:"beamArcsec"` // default beam for points and degenerate Gaussians
}

func DefaultParams() Params {
	return Params{PadArcsec: 500, BeamArcsec: 54}
}

// An elliptical source footprint on the sky. All angles in radians,
// Major and Minor are radii.
type Footprint struct {
	RA, Dec      float64
	Major, Minor float64
	PA           float64
}

// Computes the footprint of a source. Returns false if the source shape is unknown,
// and an error if its position is invalid. Depends on nothing but its arguments.
func FootprintFor(src *catalog.Source, p Params) (Footprint, bool, error) {
	pos, err := src.Position()
	if err != nil {
		return Footprint{}, false, err
	}
	fp := Footprint{RA: pos.RA, Dec: pos.Dec}

	switch src.Type {
	case catalog.Gaussian:
		fp.Major = sky.ArcsecToRad((src.MajorAxis + p.PadArcsec) / 2)
		fp.Minor = sky.ArcsecToRad((src.MinorAxis + p.PadArcsec) / 2)
		fp.PA = sky.Rad(src.Orientation)
		if fp.Major == 0 || fp.Minor == 0 {
			// some surveys tag point sources as zero-sized Gaussians
			fp.Major = sky.ArcsecToRad(p.BeamArcsec + p.PadArcsec)
			fp.Minor = fp.Major
		}
	case catalog.Point:
		fp.Major = sky.ArcsecToRad((p.BeamArcsec + p.PadArcsec) / 2)
		fp.Minor = fp.Major
		fp.PA = 0
	default:
		return Footprint{}, false, nil
	}
	return fp, true, nil
}

// Checks whether a sky position lies strictly inside the footprint
func (fp Footprint) Contains(ra, dec float64) bool {
	dRA, dDec := wrapPi(ra-fp.RA), dec-fp.Dec
	sinPA, cosPA := math.Sincos(fp.PA)
	x := dRA*sinPA + dDec*cosPA
	y := -dRA*cosPA + dDec*sinPA
	return x*x/(fp.Major*fp.Major)+y*y/(fp.Minor*fp.Minor) < 1
}

// Maps an RA difference into [-pi, pi), so footprints straddling RA 0 stay whole
func wrapPi(d float64) float64 {
	if d >= -math.Pi && d < math.Pi {
		return d
	}
	d = math.Mod(d+math.Pi, 2*math.Pi)
	if d < 0 {
		d += 2 * math.Pi
	}
	return d - math.Pi
}

// A half-open pixel rectangle [XMin,XMax) x [YMin,YMax)
type Box struct {
	XMin, XMax, YMin, YMax int
}

// Computes the pixel bounding box of the footprint from two opposite corners,
// widening the RA extent by 1/cos(dec) at each corner
func (fp Footprint) BoundingBox(g *Grid) (Box, error) {
	dec1, dec2 := fp.Dec-fp.Major, fp.Dec+fp.Major
	x1, y1, err := g.ToPixel(fp.RA-fp.Major/math.Cos(dec1), dec1)
	if err != nil {
		return Box{}, err
	}
	x2, y2, err := g.ToPixel(fp.RA+fp.Major/math.Cos(dec2), dec2)
	if err != nil {
		return Box{}, err
	}
	return Box{
		XMin: int(math.Floor(math.Min(x1, x2))),
		XMax: int(math.Ceil(math.Max(x1, x2))),
		YMin: int(math.Floor(math.Min(y1, y2))),
		YMax: int(math.Ceil(math.Max(y1, y2))),
	}, nil
}

// True if the box does not overlap the grid at all
func (b Box) Outside(width, height int) bool {
	return b.XMin >= width || b.YMin >= height || b.XMax <= 0 || b.YMax <= 0
}

// True if the box extends beyond any grid edge
func (b Box) CrossesEdge(width, height int) bool {
	return b.XMin < 0 || b.YMin < 0 || b.XMax > width || b.YMax > height
}

// Clips the box to the grid
func (b Box) Clip(width, height int) Box {
	return Box{XMin: max(b.XMin, 0), XMax: min(b.XMax, width), YMin: max(b.YMin, 0), YMax: min(b.YMax, height)}
}

func (b Box) Area() int {
	if b.XMax <= b.XMin || b.YMax <= b.YMin {
		return 0
	}
	return (b.XMax - b.XMin) * (b.YMax - b.YMin)
}

// Calls fn for every pixel in the box, clipped to the grid, whose world
// coordinates are inside the footprint
func (fp Footprint) visit(g *Grid, b Box, fn func(x, y int)) {
	b = b.Clip(g.Width(), g.Height())
	for x := b.XMin; x < b.XMax; x++ {
		for y := b.YMin; y < b.YMax; y++ {
			ra, dec, err := g.ToWorld(float64(x), float64(y))
			if err != nil {
				continue
			}
			if fp.Contains(ra, dec) {
				fn(x, y)
			}
		}
	}
}

// Flags the pixels of the footprint within the box on the reference plane.
// Returns the number of newly flagged pixels.
func (fp Footprint) Paint(g *Grid, b Box) (added int) {
	fp.visit(g, b, func(x, y int) {
		if g.At(x, y) == 0 {
			added++
		}
		g.Set(x, y)
	})
	return added
}

// Pixels of a footprint within a clipped box, one bit each
type Coverage struct {
	Box  Box
	bits []uint64
}

// Computes the coverage of the footprint within the box without touching the grid
func (fp Footprint) Cover(g *Grid, b Box) *Coverage {
	c := &Coverage{Box: b.Clip(g.Width(), g.Height())}
	c.bits = make([]uint64, (c.Box.Area()+63)/64)
	w := c.Box.XMax - c.Box.XMin
	fp.visit(g, c.Box, func(x, y int) {
		i := (y-c.Box.YMin)*w + x - c.Box.XMin
		c.bits[i/64] |= 1 << (i % 64)
	})
	return c
}

// Flags the covered pixels on the reference plane. Returns the number of newly flagged pixels.
func (c *Coverage) Paint(g *Grid) (added int) {
	w := c.Box.XMax - c.Box.XMin
	for i, word := range c.bits {
		for word != 0 {
			j := i*64 + bits.TrailingZeros64(word)
			word &= word - 1
			x, y := c.Box.XMin+j%w, c.Box.YMin+j/w
			if g.At(x, y) == 0 {
				added++
			}
			g.Set(x, y)
		}
	}
	return added
}
