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
	"errors"
	"fmt"
	"io"

	"github.com/mlnoga/skymask/internal/fits"
	"github.com/mlnoga/skymask/internal/wcs"
)

// A mask image with its world coordinate system. Only the reference plane,
// i.e. index 0 of every axis beyond the second, is ever accessed.
type Grid struct {
	Image *fits.Image
	WCS   *wcs.WCS
}

// Wraps an image and derives its world coordinate system from the header
func NewGrid(img *fits.Image) (*Grid, error) {
	if len(img.Naxisn) < 2 {
		return nil, fmt.Errorf("%d: mask has %d axes, need at least two", img.ID, len(img.Naxisn))
	}
	if img.Data == nil || len(img.Data) < int(img.Naxisn[0])*int(img.Naxisn[1]) {
		return nil, errors.New("mask has no data")
	}
	w, err := wcs.FromHeader(&img.Header)
	if err != nil {
		return nil, err
	}
	return &Grid{Image: img, WCS: w}, nil
}

// Creates an empty single plane mask with the given size and coordinate system
func NewEmptyGrid(width, height int32, w *wcs.WCS) *Grid {
	img := fits.NewImageFromNaxisn([]int32{width, height}, nil)
	w.ToHeader(&img.Header)
	img.Header.SetString("ORIGIN", "skymask")
	return &Grid{Image: img, WCS: w}
}

// Loads a mask grid from a FITS file
func Open(fileName string, logWriter io.Writer) (*Grid, error) {
	img, err := fits.NewImageFromFile(fileName, 0, logWriter)
	if err != nil {
		return nil, err
	}
	g, err := NewGrid(img)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", fileName, err)
	}
	fmt.Fprintf(logWriter, "%d: Mask %s has dimensions %s and WCS %s\n", img.ID, fileName, img.DimensionsToString(), g.WCS)
	return g, nil
}

// Writes the mask back to the file it was loaded from
func (g *Grid) Save() error {
	if g.Image.FileName == "" {
		return errors.New("mask has no file name")
	}
	return g.Image.WriteFile(g.Image.FileName)
}

func (g *Grid) Width() int  { return int(g.Image.Naxisn[0]) }
func (g *Grid) Height() int { return int(g.Image.Naxisn[1]) }

// Pixel (0-based) to RA, Dec in radians
func (g *Grid) ToWorld(x, y float64) (ra, dec float64, err error) {
	return g.WCS.ToWorld(x, y)
}

// RA, Dec in radians to real-valued pixel coordinates
func (g *Grid) ToPixel(ra, dec float64) (x, y float64, err error) {
	return g.WCS.ToPixel(ra, dec)
}

// Flags a pixel on the reference plane. Panics if out of bounds.
func (g *Grid) Set(x, y int) {
	g.Image.Data[y*g.Width()+x] = 1
}

func (g *Grid) At(x, y int) float32 {
	return g.Image.Data[y*g.Width()+x]
}

// Number of flagged pixels on the reference plane
func (g *Grid) Count() (n int) {
	for _, v := range g.Image.Plane0() {
		if v != 0 {
			n++
		}
	}
	return n
}
