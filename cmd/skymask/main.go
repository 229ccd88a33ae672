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


package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"runtime/pprof"
	"strings"
	"time"

	"github.com/klauspost/cpuid"

	nl "github.com/mlnoga/skymask/internal"
	"github.com/mlnoga/skymask/internal/metrics"
	"github.com/mlnoga/skymask/internal/ops"
	"github.com/mlnoga/skymask/internal/rest"
	"github.com/mlnoga/skymask/internal/taper"
)

const version = "0.1.0"

var cpuprofile = flag.String("cpuprofile", "", "write cpu profile to `file`")
var memprofile = flag.String("memprofile", "", "write memory profile to `file`")

var config = flag.String("config", "", "read settings from YAML `file`; flags given explicitly take precedence")
var log = flag.String("log", "%auto", "save log output to `file`. `%auto` replaces suffix of mask file with .log")
var threads = flag.Int("threads", 0, "number of threads for rasterizing, 0=one per logical core")

var pad = flag.Float64("pad", 500, "padding added to source axes in arc seconds")
var beam = flag.Float64("beam", 54, "default beam for point sources and zero-sized Gaussians in arc seconds")
var preview = flag.String("preview", "", "save preview of the mask as JPEG or TIFF to `file`. `%auto` replaces suffix of mask file with .jpg")
var previewColor = flag.String("previewColor", ops.DefaultPreviewColor, "hex color of masked pixels in JPEG previews")

var width = flag.Int("width", 2048, "width of a new mask in pixels")
var height = flag.Int("height", 2048, "height of a new mask in pixels")
var ra = flag.String("ra", "", "right ascension of the center of a new mask, e.g. 10:00:00 or 150.0")
var dec = flag.String("dec", "", "declination of the center of a new mask, e.g. +30.00.00 or 30.0")
var cell = flag.Float64("cell", 15, "pixel size of a new mask in arc seconds")
var proj = flag.String("proj", "SIN", "projection of a new mask, one of SIN, TAN, ARC, STG")

var listen = flag.String("listen", ":8080", "listen address for the REST server")
var chroot = flag.String("chroot", "", "change the REST server's filesystem root to `dir`")
var setuid = flag.Int("setuid", -1, "change the REST server's user id, -1=keep")

func main() {
	start := time.Now()
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, `Skymask Copyright (c) 2020 Markus L. Noga
This program comes with ABSOLUTELY NO WARRANTY.
This is free software, and you are welcome to redistribute it under certain conditions.
Refer to https://www.gnu.org/licenses/gpl-3.0.en.html for details.

Usage: %s [-flag value] (mask|taper|new|job|serve|legal|version) (args)

Commands:
  mask    <mask.fits> <skymodel>            Add catalog sources to a mask, in place
  taper   <flux_limit> <fwhm> <ra> <dec>    Filter a catalog from stdin to stdout by a Gaussian flux taper
  new     <mask.fits>                       Create an empty mask, see -width -height -ra -dec -cell -proj
  job     <job.json>                        Run a JSON sequence of operators
  serve                                     Serve the REST API
  legal   Show license and attribution information
  version Show version information

Flags:
`, os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()

	args := flag.Args()
	if len(args) < 1 {
		flag.Usage()
		os.Exit(2)
	}
	if err := applyConfig(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err.Error())
		os.Exit(1)
	}

	// The taper writes data to stdout, so it logs to stderr and has its own error handling
	if args[0] == "taper" {
		nl.LogToStderr()
		if err := cmdTaper(args[1:]); err != nil {
			fmt.Fprintf(os.Stderr, "%s\nError: %s\n", taperUsage, err.Error())
			os.Exit(1)
		}
		return
	}

	// Initialize logging to file in addition to stdout, if selected
	if *log == "%auto" {
		*log = ""
		if (args[0] == "mask" || args[0] == "new") && len(args) > 1 {
			*log = strings.TrimSuffix(args[1], filepath.Ext(args[1])) + ".log"
		}
	}
	if *log != "" {
		if err := nl.LogAlsoToFile(*log); err != nil {
			nl.LogFatalf("Unable to open logfile '%s'\n", *log)
		}
	}
	if *preview == "%auto" {
		*preview = ""
		if args[0] == "mask" && len(args) > 1 {
			*preview = strings.TrimSuffix(args[1], filepath.Ext(args[1])) + ".jpg"
		}
	}

	// Enable CPU profiling if flagged
	if *cpuprofile != "" {
		f, err := os.Create(*cpuprofile)
		if err != nil {
			nl.LogFatalf("Could not create CPU profile: %s\n", err)
		}
		defer f.Close()
		if err := pprof.StartCPUProfile(f); err != nil {
			nl.LogFatalf("Could not start CPU profile: %s\n", err)
		}
		defer pprof.StopCPUProfile()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	logWriter := nl.LogWriter()
	c, err := newContext(logWriter)
	if err != nil {
		nl.LogFatalf("Error: %s\n", err.Error())
	}

	switch args[0] {
	case "mask":
		if len(args) != 3 {
			err = errors.New("mask needs a mask file and a sky model")
			break
		}
		params := ops.Config{PadArcsec: *pad, BeamArcsec: *beam}.MaskParams()
		err = ops.Run(ctx, ops.NewOpMask(args[1], args[2], params, *preview, *previewColor), c)
	case "new":
		if len(args) != 2 {
			err = errors.New("new needs a mask file")
			break
		}
		err = ops.Run(ctx, ops.NewOpNewMask(args[1], int32(*width), int32(*height), *ra, *dec, *cell, *proj), c)
	case "job":
		if len(args) != 2 {
			err = errors.New("job needs a JSON file")
			break
		}
		err = cmdJob(ctx, args[1], c)
	case "serve":
		if err = rest.MakeSandbox(*chroot, *setuid, logWriter); err != nil {
			break
		}
		fmt.Fprintf(logWriter, "Serving REST API on %s\n", *listen)
		err = rest.Serve(*listen, c)
	case "legal":
		fmt.Fprint(logWriter, legal)
	case "version":
		fmt.Fprintf(logWriter, "Version %s\n", version)
		fmt.Fprintf(logWriter, "%s, %d logical cores, AVX2 %v, %d MiB memory\n",
			cpuid.CPU.BrandName, cpuid.CPU.LogicalCores, cpuid.CPU.AVX2(), c.MemoryMB)
	case "help", "?":
		flag.Usage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command '%s'\n\n", args[0])
		flag.Usage()
		os.Exit(2)
	}

	// Store memory profile if flagged
	if *memprofile != "" {
		f, err := os.Create(*memprofile)
		if err != nil {
			nl.LogFatalf("Could not create memory profile: %s\n", err)
		}
		defer f.Close()
		runtime.GC() // get up-to-date statistics
		if err := pprof.Lookup("allocs").WriteTo(f, 0); err != nil {
			nl.LogFatalf("Could not write allocation profile: %s\n", err)
		}
	}
	if err != nil {
		nl.LogFatalf("Error: %s\n", err.Error())
	}
	if args[0] == "mask" || args[0] == "new" || args[0] == "job" {
		fmt.Fprintf(logWriter, "\nDone after %v\n", time.Since(start))
	}
	nl.LogSync()
	nl.LogClose()
}

// Overrides flag defaults with the config file, unless a flag was given explicitly
func applyConfig() error {
	if *config == "" {
		return nil
	}
	cfg, err := ops.LoadConfig(*config)
	if err != nil {
		return err
	}
	set := map[string]bool{}
	flag.Visit(func(f *flag.Flag) { set[f.Name] = true })
	if !set["pad"] {
		*pad = cfg.PadArcsec
	}
	if !set["beam"] {
		*beam = cfg.BeamArcsec
	}
	if !set["threads"] {
		*threads = cfg.Threads
	}
	if !set["preview"] && cfg.Preview != "" {
		*preview = cfg.Preview
	}
	if !set["previewColor"] && cfg.PreviewColor != "" {
		*previewColor = cfg.PreviewColor
	}
	if !set["listen"] && cfg.Listen != "" {
		*listen = cfg.Listen
	}
	if !set["log"] && cfg.Log != "" {
		*log = cfg.Log
	}
	return nil
}

func newContext(logWriter io.Writer) (*ops.Context, error) {
	m, err := metrics.NewCollector(nil)
	if err != nil {
		return nil, err
	}
	c := ops.NewContext(logWriter, m)
	if *threads > 0 {
		c.MaxThreads = *threads
	}
	return c, nil
}

const taperUsage = `skymask taper -- Applies Gaussian taper to skymodel

Usage: skymask taper <flux_limit> <fwhm> <ra> <dec> < [input] > [output]
Reads input sky model from stdin, outputs to stdout.
The FWHM is in degrees unless given with a rad, arcmin or arcsec suffix.`

// Filters stdin to stdout. Output is spooled to a temporary file so nothing
// reaches stdout unless the whole catalog was processed.
func cmdTaper(args []string) error {
	if len(args) != 4 {
		return &taper.UsageError{Msg: fmt.Sprintf("expected 4 arguments, got %d", len(args))}
	}
	spool, err := os.CreateTemp("", "skymask-taper-*")
	if err != nil {
		return err
	}
	defer os.Remove(spool.Name())
	defer spool.Close()

	c, err := newContext(nl.LogWriter())
	if err != nil {
		return err
	}
	op := ops.NewOpTaper(args, os.Stdin, spool)
	if err := op.Apply(context.Background(), c); err != nil {
		return err
	}
	if _, err := spool.Seek(0, io.SeekStart); err != nil {
		return err
	}
	_, err = io.Copy(os.Stdout, spool)
	return err
}

// Runs a JSON operator sequence from a file
func cmdJob(ctx context.Context, fileName string, c *ops.Context) error {
	data, err := os.ReadFile(fileName)
	if err != nil {
		return err
	}
	seq := ops.NewOpSequenceDefault()
	if err := json.Unmarshal(data, seq); err != nil {
		return fmt.Errorf("%s: %w", fileName, err)
	}
	return ops.Run(ctx, seq, c)
}
