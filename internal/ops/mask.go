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


package ops

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"strings"

	colorful "github.com/lucasb-eyer/go-colorful"

	"github.com/mlnoga/skymask/internal/catalog"
	"github.com/mlnoga/skymask/internal/mask"
	"github.com/mlnoga/skymask/internal/sky"
	"github.com/mlnoga/skymask/internal/wcs"
)

// Creates an empty mask with a world coordinate system centered on a given direction
type OpNewMask struct {
	OpBase
	FileName   string  `json:"fileName"`
	Width      int32   `json:"width"`
	Height     int32   `json:"height"`
	RA         string  `json:"ra"`
	Dec        string  `json:"dec"`
	CellArcsec float64 `json:"cellArcsec"`
	Projection string  `json:"projection"`
}

func init() { SetOperatorFactory(func() Operator { return NewOpNewMaskDefault() }) } // register the operator for JSON decoding

func NewOpNewMaskDefault() *OpNewMask { return NewOpNewMask("", 2048, 2048, "", "", 15, "SIN") }

func NewOpNewMask(fileName string, width, height int32, ra, dec string, cellArcsec float64, projection string) *OpNewMask {
	return &OpNewMask{
		OpBase:     OpBase{Type: "newMask", Active: fileName != ""},
		FileName:   fileName,
		Width:      width,
		Height:     height,
		RA:         ra,
		Dec:        dec,
		CellArcsec: cellArcsec,
		Projection: projection,
	}
}

func (op *OpNewMask) Apply(ctx context.Context, c *Context) error {
	if err := c.checkPath(op.FileName); err != nil {
		return err
	}
	if op.Width <= 0 || op.Height <= 0 {
		return fmt.Errorf("invalid mask size %dx%d", op.Width, op.Height)
	}
	if !(op.CellArcsec > 0) {
		return fmt.Errorf("invalid cell size %g arcsec", op.CellArcsec)
	}
	if err := c.checkMemory(int64(op.Width) * int64(op.Height) * 4); err != nil {
		return err
	}
	center, err := sky.ParseDirection(op.RA, op.Dec)
	if err != nil {
		return err
	}
	proj, err := wcs.ParseProjection(op.Projection)
	if err != nil {
		return err
	}
	cell := op.CellArcsec / 3600
	w, err := wcs.New(proj,
		[2]float64{sky.Deg(center.RA), sky.Deg(center.Dec)},
		[2]float64{float64(op.Width/2 + 1), float64(op.Height/2 + 1)},
		[2]float64{-cell, cell})
	if err != nil {
		return err
	}

	g := mask.NewEmptyGrid(op.Width, op.Height, w)
	g.Image.FileName = op.FileName
	g.Image.Header.AddHistory(fmt.Sprintf("skymask new %dx%d cell %g arcsec", op.Width, op.Height, op.CellArcsec))
	fmt.Fprintf(c.Log, "Writing empty %s pixel mask with WCS %s to %s\n", g.Image.DimensionsToString(), w, op.FileName)
	return g.Save()
}

// Rasterizes the sources of a catalog onto an existing mask, in place
type OpMask struct {
	OpBase
	MaskFile     string       `json:"maskFile"`
	Catalog      string       `json:"catalog"` // file name or URL
	Params       mask.Params  `json:"params"`
	Preview      string       `json:"preview"`      // optional .jpg or .tif preview file
	PreviewColor string       `json:"previewColor"` // hex color of masked pixels in JPEG previews
	Report       *mask.Report `json:"report,omitempty"`
}

func init() { SetOperatorFactory(func() Operator { return NewOpMaskDefault() }) } // register the operator for JSON decoding

func NewOpMaskDefault() *OpMask { return NewOpMask("", "", mask.DefaultParams(), "", DefaultPreviewColor) }

func NewOpMask(maskFile, catalogLocation string, params mask.Params, preview, previewColor string) *OpMask {
	return &OpMask{
		OpBase:       OpBase{Type: "mask", Active: maskFile != ""},
		MaskFile:     maskFile,
		Catalog:      catalogLocation,
		Params:       params,
		Preview:      preview,
		PreviewColor: previewColor,
	}
}

func (op *OpMask) Apply(ctx context.Context, c *Context) error {
	for _, p := range []string{op.MaskFile, op.Preview} {
		if err := c.checkPath(p); err != nil {
			return err
		}
	}
	if err := c.checkLocation(op.Catalog); err != nil {
		return err
	}
	if fi, err := os.Stat(op.MaskFile); err != nil {
		return err
	} else if err := c.checkMemory(fi.Size()); err != nil {
		return err
	}
	var on colorful.Color
	if op.Preview != "" {
		var err error
		if on, err = colorful.Hex(op.PreviewColor); err != nil {
			return fmt.Errorf("preview color: %w", err)
		}
	}

	cat, err := catalog.Load(ctx, op.Catalog)
	if err != nil {
		return err
	}
	fmt.Fprintf(c.Log, "Read %d sources from %s, fingerprint %016x\n", len(cat.Sources), cat.URL, cat.Fingerprint)

	g, err := mask.Open(op.MaskFile, c.Log)
	if err != nil {
		return err
	}
	opts := mask.Options{Threads: c.MaxThreads}
	if err := c.checkMemory(g.WorkingSetBytes(opts)); err != nil {
		return err
	}
	rep, err := mask.Rasterize(g, cat.Sources, op.Params, opts, c.Log)
	if err != nil {
		return err
	}
	op.Report = &rep
	c.Metrics.ObserveReport(rep)

	g.Image.Header.AddHistory(fmt.Sprintf("skymask %s: %d of %d sources, fingerprint %016x",
		path.Base(cat.URL), rep.Added, rep.Sources, cat.Fingerprint))
	fmt.Fprintf(c.Log, "Writing %s pixel mask to %s\n", g.Image.DimensionsToString(), op.MaskFile)
	if err := g.Save(); err != nil {
		return err
	}

	if op.Preview == "" {
		return nil
	}
	fmt.Fprintf(c.Log, "Writing preview to %s\n", op.Preview)
	switch lower := strings.ToLower(op.Preview); {
	case strings.HasSuffix(lower, ".jpg") || strings.HasSuffix(lower, ".jpeg"):
		return g.Image.WriteMaskJPGToFile(op.Preview, on, 95)
	case strings.HasSuffix(lower, ".tif") || strings.HasSuffix(lower, ".tiff"):
		return g.Image.WriteMonoTIFF16ToFile(op.Preview, 0, 1, 1)
	default:
		return errors.New("unknown preview suffix, use .jpg or .tif")
	}
}
