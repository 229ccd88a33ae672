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
	"fmt"
	"strings"
)

// A FITS image.
// Spec here:   https://fits.gsfc.nasa.gov/standard40/fits_standard40aa-le.pdf
// Primer here: https://fits.gsfc.nasa.gov/fits_primer.html
type Image struct {
	ID       int    // Sequential ID number, for log output
	FileName string // Original file name, if any, for log output

	Header Header  // The header with all keys, values, comments, history entries etc.
	Bitpix int32   // Bits per pixel value from the header. Positive values are integral, negative floating.
	Bzero  float32 // Zero offset. True pixel value is Bzero + Bscale * Data[i].
	Bscale float32 // Value scaler. True pixel value is Bzero + Bscale * Data[i].
	Naxisn []int32 // Axis dimensions. Most quickly varying dimension first (i.e. X,Y)
	Pixels int32   // Number of pixels in the image. Product of Naxisn[]

	Data []float32 // The image data
}

// Creates a FITS image initialized with empty header
func NewImage() *Image {
	return &Image{
		Header: NewHeader(),
		Bscale: 1,
	}
}

// Creates a FITS image from given naxisn. Data is not copied, allocated if nil. naxisn is deep copied
func NewImageFromNaxisn(naxisn []int32, data []float32) *Image {
	numPixels := int32(1)
	for _, naxis := range naxisn {
		numPixels *= naxis
	}
	if data == nil {
		data = make([]float32, numPixels)
	}
	return &Image{
		Header: NewHeader(),
		Bitpix: -32,
		Bzero:  0,
		Bscale: 1,
		Naxisn: append([]int32(nil), naxisn...), // clone slice
		Pixels: numPixels,
		Data:   data,
	}
}

// FITS header data. Keys holds every valued key in reading or insertion order,
// so headers survive a read/write round trip.
type Header struct {
	Bools    map[string]bool
	Ints     map[string]int32
	Floats   map[string]float64
	Strings  map[string]string
	Dates    map[string]string
	Keys     []string
	Comments []string
	History  []string
	End      bool
	Length   int32
}

// Creates a FITS header initialized with empty maps and arrays
func NewHeader() Header {
	return Header{
		Bools:    make(map[string]bool),
		Ints:     make(map[string]int32),
		Floats:   make(map[string]float64),
		Strings:  make(map[string]string),
		Dates:    make(map[string]string),
		Keys:     make([]string, 0),
		Comments: make([]string, 0),
		History:  make([]string, 0),
		End:      false,
	}
}

const fitsBlockSize int = 2880 // Block size of FITS header and data units
const HeaderLineSize int = 80  // Line size of a FITS header

// Returns a numeric header value, accepting integer or floating point entries
func (h *Header) Float(key string) (float64, bool) {
	if v, ok := h.Floats[key]; ok {
		return v, true
	}
	if v, ok := h.Ints[key]; ok {
		return float64(v), true
	}
	return 0, false
}

// Returns a numeric header value, or the default if absent
func (h *Header) FloatOr(key string, def float64) float64 {
	if v, ok := h.Float(key); ok {
		return v
	}
	return def
}

// Returns a string header value with trailing blanks removed
func (h *Header) String(key string) (string, bool) {
	v, ok := h.Strings[key]
	return strings.TrimRight(v, " "), ok
}

func (h *Header) remember(key string) {
	for _, k := range h.Keys {
		if k == key {
			return
		}
	}
	h.Keys = append(h.Keys, key)
}

// Removes a key from all typed maps
func (h *Header) Delete(key string) {
	delete(h.Bools, key)
	delete(h.Ints, key)
	delete(h.Floats, key)
	delete(h.Strings, key)
	delete(h.Dates, key)
	for i, k := range h.Keys {
		if k == key {
			h.Keys = append(h.Keys[:i], h.Keys[i+1:]...)
			break
		}
	}
}

func (h *Header) SetFloat(key string, v float64) {
	h.Delete(key)
	h.Floats[key] = v
	h.remember(key)
}

func (h *Header) SetInt(key string, v int32) {
	h.Delete(key)
	h.Ints[key] = v
	h.remember(key)
}

func (h *Header) SetString(key string, v string) {
	h.Delete(key)
	h.Strings[key] = v
	h.remember(key)
}

func (h *Header) SetBool(key string, v bool) {
	h.Delete(key)
	h.Bools[key] = v
	h.remember(key)
}

func (h *Header) AddHistory(line string) {
	h.History = append(h.History, line)
}

func (f *Image) DimensionsToString() string {
	b := strings.Builder{}
	for i, naxis := range f.Naxisn {
		if i > 0 {
			fmt.Fprintf(&b, "x%d", naxis)
		} else {
			fmt.Fprintf(&b, "%d", naxis)
		}
	}
	return b.String()
}

// Width and height of the first two axes
func (f *Image) Size() (width, height int32) {
	if len(f.Naxisn) < 2 {
		return 0, 0
	}
	return f.Naxisn[0], f.Naxisn[1]
}

// Returns the first plane of the image, i.e. index 0 along every axis beyond
// the second. Shares storage with f.Data.
func (f *Image) Plane0() []float32 {
	width, height := f.Size()
	return f.Data[:width*height]
}
