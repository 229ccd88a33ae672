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
	"fmt"
	"io"
	"os"

	"github.com/viant/afs"

	"github.com/mlnoga/skymask/internal/catalog"
	"github.com/mlnoga/skymask/internal/taper"
)

// Filters a catalog stream by a Gaussian flux taper around a reference direction.
// Streams are taken from In and Out if set, else from the Input and Output locations.
type OpTaper struct {
	OpBase
	Limit  string      `json:"limit"`
	FWHM   string      `json:"fwhm"` // degrees, or with deg/rad/arcmin/arcsec suffix
	RA     string      `json:"ra"`
	Dec    string      `json:"dec"`
	Input  string      `json:"input"`  // file name or URL
	Output string      `json:"output"` // file name or URL, written only if the whole catalog was filtered
	Stats  taper.Stats `json:"stats"`
	In     io.Reader   `json:"-"`
	Out    io.Writer   `json:"-"`
}

func init() { SetOperatorFactory(func() Operator { return NewOpTaperDefault() }) } // register the operator for JSON decoding

func NewOpTaperDefault() *OpTaper { return NewOpTaper(nil, nil, nil) }

// Creates a taper operator from the four command line arguments <flux_limit> <fwhm> <ra> <dec>
func NewOpTaper(args []string, in io.Reader, out io.Writer) *OpTaper {
	op := &OpTaper{
		OpBase: OpBase{Type: "taper", Active: true},
		In:     in,
		Out:    out,
	}
	for i, p := range []*string{&op.Limit, &op.FWHM, &op.RA, &op.Dec} {
		if i < len(args) {
			*p = args[i]
		}
	}
	return op
}

// Creates a taper operator reading from and writing to the given locations
func NewOpTaperFiles(args []string, input, output string) *OpTaper {
	op := NewOpTaper(args, nil, nil)
	op.Input, op.Output = input, output
	return op
}

func (op *OpTaper) Args() []string {
	return []string{op.Limit, op.FWHM, op.RA, op.Dec}
}

func (op *OpTaper) Apply(ctx context.Context, c *Context) error {
	p, err := taper.ParseArgs(op.Args())
	if err != nil {
		return err
	}
	in, out := op.In, op.Out
	if in == nil && op.Input == "" {
		return fmt.Errorf("%s operator without input", op.Type)
	}
	if out == nil && op.Output == "" {
		return fmt.Errorf("%s operator without output", op.Type)
	}
	for _, l := range []string{op.Input, op.Output} {
		if err := c.checkLocation(l); err != nil {
			return err
		}
	}
	fs := afs.New()

	if in == nil {
		rc, err := fs.OpenURL(ctx, catalog.NormalizeURL(op.Input))
		if err != nil {
			return fmt.Errorf("reading catalog %s: %w", op.Input, err)
		}
		defer rc.Close()
		in = rc
	}

	var spool *os.File
	if out == nil {
		if spool, err = os.CreateTemp("", "skymask-taper-*"); err != nil {
			return err
		}
		defer os.Remove(spool.Name())
		defer spool.Close()
		out = spool
	}

	fmt.Fprintf(c.Log, "Applying taper with %s\n", p)
	op.Stats, err = taper.Filter(in, out, p.LimitFunc())
	c.Metrics.ObserveTaper(op.Stats)
	if err != nil {
		return err
	}
	fmt.Fprintf(c.Log, "%s\n", op.Stats)

	if spool == nil {
		return nil
	}
	if _, err := spool.Seek(0, io.SeekStart); err != nil {
		return err
	}
	fmt.Fprintf(c.Log, "Writing filtered catalog to %s\n", op.Output)
	return fs.Upload(ctx, catalog.NormalizeURL(op.Output), 0644, spool)
}
