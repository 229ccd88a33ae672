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


package fits

import (
	"image"
	"image/color"
	"image/jpeg"
	"io"

	colorful "github.com/lucasb-eyer/go-colorful"
)

// Write the first plane of a mask to JPG, painting set pixels in the given color on black.
func (f *Image) WriteMaskJPGToFile(fileName string, on colorful.Color, quality int) error {
	return createBuffered(fileName, func(w io.Writer) error { return f.WriteMaskJPG(w, on, quality) })
}

// Write the first plane of a mask to JPG, painting set pixels in the given color on black.
// FITS rows run bottom to top, so the image is flipped vertically.
func (f *Image) WriteMaskJPG(writer io.Writer, on colorful.Color, quality int) error {
	width, height := int(f.Naxisn[0]), int(f.Naxisn[1])
	data := f.Plane0()
	img := image.NewRGBA(image.Rectangle{image.Point{0, 0}, image.Point{width, height}})
	r, g, b := on.Clamped().RGB255()
	set, unset := color.RGBA{r, g, b, 255}, color.RGBA{0, 0, 0, 255}
	for y := 0; y < height; y++ {
		yoffset := y * width
		for x := 0; x < width; x++ {
			c := unset
			if data[yoffset+x] > 0 {
				c = set
			}
			img.SetRGBA(x, height-1-y, c)
		}
	}

	return jpeg.Encode(writer, img, &jpeg.Options{Quality: quality})
}
