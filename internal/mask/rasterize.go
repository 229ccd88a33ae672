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
	"fmt"
	"io"
	"sync"

	"github.com/mlnoga/skymask/internal/catalog"
)

type Options struct {
	Threads int `json:"threads"` // footprints evaluated concurrently if >1
}

// Outcome of a rasterization run
type Report struct {
	Sources int `json:"sources"` // records seen
	Added   int `json:"added"`   // records rasterized onto the mask
	Invalid int `json:"invalid"` // records with invalid positions
	Unknown int `json:"unknown"` // records with unknown shape types
	Outside int `json:"outside"` // records entirely outside the mask
	Edge    int `json:"edge"`    // rasterized records crossing a mask edge
	Pixels  int `json:"pixels"`  // pixels newly flagged by this run
}

func (r Report) String() string {
	return fmt.Sprintf("%d sources: %d added (%d across edges), %d outside, %d unknown type, %d invalid; %d pixels newly masked",
		r.Sources, r.Added, r.Edge, r.Outside, r.Unknown, r.Invalid, r.Pixels)
}

type outcome int

const (
	added outcome = iota
	invalid
	unknown
	outside
)

// Result of examining one source, free of side effects on the grid
type examination struct {
	outcome outcome
	edge    bool
	err     error
	fp      Footprint
	box     Box
	cover   *Coverage // set for added sources examined concurrently
}

func examine(g *Grid, src *catalog.Source, p Params) examination {
	fp, ok, err := FootprintFor(src, p)
	if err != nil {
		return examination{outcome: invalid, err: err}
	}
	if !ok {
		return examination{outcome: unknown}
	}
	box, err := fp.BoundingBox(g)
	if err != nil || box.Outside(g.Width(), g.Height()) {
		return examination{outcome: outside, err: err}
	}
	return examination{outcome: added, edge: box.CrossesEdge(g.Width(), g.Height()), fp: fp, box: box}
}

// Bytes held while rasterizing with the given options: the image data,
// plus one coverage bitset of at most the grid size per concurrent source
func (g *Grid) WorkingSetBytes(opts Options) int64 {
	n := int64(len(g.Image.Data)) * 4
	if opts.Threads > 1 {
		n += int64(opts.Threads) * int64((g.Width()*g.Height()+63)/64*8)
	}
	return n
}

// Flags all mask pixels covered by the footprints of the given sources.
// Sources with invalid positions, unknown shapes or no overlap with the mask
// are logged and skipped. Log output and results are in catalog order,
// regardless of the number of threads.
func Rasterize(g *Grid, sources []*catalog.Source, p Params, opts Options, logWriter io.Writer) (Report, error) {
	if p.PadArcsec < 0 || p.BeamArcsec <= 0 {
		return Report{}, fmt.Errorf("invalid footprint parameters pad=%g beam=%g", p.PadArcsec, p.BeamArcsec)
	}
	rep := Report{}

	if opts.Threads <= 1 {
		for _, src := range sources {
			apply(g, src, examine(g, src, p), &rep, logWriter)
		}
	} else {
		// Windows of Threads sources are covered concurrently, then painted in order
		exams := make([]examination, opts.Threads)
		for start := 0; start < len(sources); start += opts.Threads {
			window := sources[start:min(start+opts.Threads, len(sources))]
			var wg sync.WaitGroup
			for i, src := range window {
				wg.Add(1)
				go func(i int, src *catalog.Source) {
					defer wg.Done()
					e := examine(g, src, p)
					if e.outcome == added {
						e.cover = e.fp.Cover(g, e.box)
					}
					exams[i] = e
				}(i, src)
			}
			wg.Wait()
			for i, src := range window {
				apply(g, src, exams[i], &rep, logWriter)
				exams[i] = examination{}
			}
		}
	}

	fmt.Fprintf(logWriter, "%s\n", rep)
	return rep, nil
}

func apply(g *Grid, src *catalog.Source, e examination, rep *Report, logWriter io.Writer) {
	rep.Sources++
	switch e.outcome {
	case invalid:
		rep.Invalid++
		fmt.Fprintf(logWriter, "Line %d: %s, ignoring it.\n", src.Line, e.err.Error())
		return
	case unknown:
		rep.Unknown++
		fmt.Fprintf(logWriter, "WARNING: unknown source type (%s), ignoring it.\n", src.TypeName)
		return
	}

	fmt.Fprintf(logWriter, "Adding %s\n", src.Name)
	if e.outcome == outside {
		rep.Outside++
		fmt.Fprintf(logWriter, "WARNING: source %s falls outside the mask, ignoring it.\n", src.Name)
		return
	}
	if e.edge {
		rep.Edge++
		fmt.Fprintf(logWriter, "WARNING: source %s falls across map edge.\n", src.Name)
	}
	rep.Added++
	if e.cover != nil {
		rep.Pixels += e.cover.Paint(g)
	} else {
		rep.Pixels += e.fp.Paint(g, e.box)
	}
}
