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
	"bufio"
	"compress/gzip"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"
)

// Writes an in-memory FITS image to a file with given filename.
// Creates or truncates the file, compresses with gzip if .gz or .gzip suffix is present.
func (fits *Image) WriteFile(fileName string) (err error) {
	f, err := os.OpenFile(fileName, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}()

	lName := strings.ToLower(fileName)
	if strings.HasSuffix(lName, ".gz") || strings.HasSuffix(lName, ".gzip") {
		zw := gzip.NewWriter(f)
		if err = fits.Write(zw); err != nil {
			return err
		}
		return zw.Close()
	}
	bw := bufio.NewWriter(f)
	if err = fits.Write(bw); err != nil {
		return err
	}
	return bw.Flush()
}

// Creates or truncates the file and writes it through a buffer. Errors from
// flushing and closing are returned like write errors.
func createBuffered(fileName string, write func(w io.Writer) error) (err error) {
	f, err := os.Create(fileName)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}()

	bw := bufio.NewWriter(f)
	if err = write(bw); err != nil {
		return err
	}
	return bw.Flush()
}

// Keys written from the image structure rather than the header maps
var structuralKeys = map[string]bool{"SIMPLE": true, "BITPIX": true, "NAXIS": true, "BZERO": true, "BSCALE": true, "END": true}

// Writes an in-memory FITS image to an io.Writer as 32-bit floating point data.
// Header keys are written in their original order, followed by comments and history.
func (fits *Image) Write(w io.Writer) error {
	// Build header in string buffer
	sb := strings.Builder{}
	writeBool(&sb, "SIMPLE", true, "FITS standard 4.0")
	writeInt(&sb, "BITPIX", -32, "32-bit floating point")
	writeInt(&sb, "NAXIS", int64(len(fits.Naxisn)), "Number of axes")
	for i := 0; i < len(fits.Naxisn); i++ {
		writeInt(&sb, fmt.Sprintf("NAXIS%d", i+1), int64(fits.Naxisn[i]), "Axis size")
	}

	h := &fits.Header
	for _, key := range h.Keys {
		if structuralKeys[key] || strings.HasPrefix(key, "NAXIS") {
			continue
		}
		if v, ok := h.Bools[key]; ok {
			writeBool(&sb, key, v, "")
		} else if v, ok := h.Ints[key]; ok {
			writeInt(&sb, key, int64(v), "")
		} else if v, ok := h.Floats[key]; ok {
			writeFloat(&sb, key, v, "")
		} else if v, ok := h.Strings[key]; ok {
			writeString(&sb, key, v, "")
		} else if v, ok := h.Dates[key]; ok {
			writeString(&sb, key, v, "")
		}
	}
	for _, c := range h.Comments {
		writeCommentary(&sb, "COMMENT", c)
	}
	for _, c := range h.History {
		writeCommentary(&sb, "HISTORY", c)
	}
	writeEnd(&sb)

	// Pad current header block with spaces if necessary
	if bytesInHeaderBlock := sb.Len() % fitsBlockSize; bytesInHeaderBlock > 0 {
		sb.WriteString(strings.Repeat(" ", fitsBlockSize-bytesInHeaderBlock))
	}

	// Write header block(s)
	if _, err := io.WriteString(w, sb.String()); err != nil {
		return err
	}

	// Write payload data, replacing NaNs with zeros for compatibility
	if err := writeFloat32Array(w, fits.Data, true); err != nil {
		return err
	}

	// Pad data unit with zeros
	if bytesInDataBlock := (len(fits.Data) * 4) % fitsBlockSize; bytesInDataBlock > 0 {
		_, err := w.Write(make([]byte, fitsBlockSize-bytesInDataBlock))
		return err
	}
	return nil
}

func trimKeyComment(key, comment string) (string, string) {
	if len(key) > 8 {
		key = key[0:8]
	}
	if len(comment) > 47 {
		comment = comment[0:47]
	}
	return key, comment
}

// Writes a FITS header boolean value
func writeBool(w io.Writer, key string, value bool, comment string) {
	key, comment = trimKeyComment(key, comment)
	v := "F"
	if value {
		v = "T"
	}
	fmt.Fprintf(w, "%-8s= %20s / %-47s", key, v, comment)
}

// Writes a FITS header integer value
func writeInt(w io.Writer, key string, value int64, comment string) {
	key, comment = trimKeyComment(key, comment)
	fmt.Fprintf(w, "%-8s= %20d / %-47s", key, value, comment)
}

// Writes a FITS header floating point value with the shortest representation
// that reads back to the same double.
func writeFloat(w io.Writer, key string, value float64, comment string) {
	key, comment = trimKeyComment(key, comment)
	v := strconv.FormatFloat(value, 'G', -1, 64)
	if !strings.ContainsAny(v, ".E") {
		v += ".0"
	}
	fmt.Fprintf(w, "%-80.80s", fmt.Sprintf("%-8s= %20s / %s", key, v, comment))
}

// Writes a FITS header string value. Long strings are truncated to fit a single card.
func writeString(w io.Writer, key, value, comment string) {
	key, comment = trimKeyComment(key, comment)
	value = strings.ReplaceAll(value, "'", "''")
	if len(value) > 68 {
		value = value[:68]
	}
	if len(value) < 8 {
		value += strings.Repeat(" ", 8-len(value)) // fixed format minimum
	}
	card := fmt.Sprintf("%-8s= '%s'", key, value)
	if len(card) < 30 {
		card += strings.Repeat(" ", 30-len(card))
	}
	if len(card)+3+len(comment) <= HeaderLineSize && comment != "" {
		card += " / " + comment
	}
	fmt.Fprintf(w, "%-80s", card)
}

// Writes a COMMENT or HISTORY card
func writeCommentary(w io.Writer, key, text string) {
	if len(text) > 72 {
		text = text[:72]
	}
	fmt.Fprintf(w, "%-8s%-72s", key, text)
}

// Writes a FITS header end record
func writeEnd(w io.Writer) {
	fmt.Fprintf(w, "END%s", strings.Repeat(" ", 80-3))
}

// Writes FITS binary body data in network byte order.
// Optionally replaces NaNs with zeros for compatibility with other software
func writeFloat32Array(w io.Writer, data []float32, replaceNaNs bool) error {
	buf := make([]byte, bufLen)

	for block := 0; block < len(data); block += (bufLen >> 2) {
		size := len(data) - block
		if size > (bufLen >> 2) {
			size = (bufLen >> 2)
		}

		for offset := 0; offset < size; offset++ {
			d := data[block+offset]
			if replaceNaNs && math.IsNaN(float64(d)) {
				d = 0
			}
			val := math.Float32bits(d)
			buf[(offset<<2)+0] = byte(val >> 24)
			buf[(offset<<2)+1] = byte(val >> 16)
			buf[(offset<<2)+2] = byte(val >> 8)
			buf[(offset<<2)+3] = byte(val)
		}
		_, err := w.Write(buf[:(size << 2)])
		if err != nil {
			return err
		}
	}
	return nil
}
