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
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mlnoga/skymask/internal/mask"
	"github.com/mlnoga/skymask/internal/metrics"
	"github.com/mlnoga/skymask/internal/taper"
)

const testCatalog = `format = Name, Type, Ra, Dec, I, MajorAxis, MinorAxis, Orientation
s1,POINT,10:00:00,+30.00.00,1.0,,,
s2,GAUSSIAN,10:00:20,+30.05.00,2.0,60,30,45
s3,DISK,10:00:40,+29.55.00,3.0,60,60,0
s4,POINT,02:00:00,-10.00.00,4.0,,,
`

func newTestContext(t *testing.T) (*Context, *metrics.Collector, *bytes.Buffer) {
	t.Helper()
	m, err := metrics.NewCollector(prometheus.NewRegistry())
	require.NoError(t, err)
	var log bytes.Buffer
	c := NewContext(&log, m)
	c.MaxThreads = 2
	return c, m, &log
}

func TestNewContext(t *testing.T) {
	c := NewContext(&bytes.Buffer{}, nil)
	assert.Greater(t, c.MaxThreads, 0)
	assert.Equal(t, c.MemoryMB*7/10, c.MaskMemoryMB)
	assert.Greater(t, DefaultThreads(), 0)
}

func TestNewMaskThenMask(t *testing.T) {
	dir := t.TempDir()
	maskFile := filepath.Join(dir, "field.fits")
	catFile := filepath.Join(dir, "sky.model")
	preview := filepath.Join(dir, "field.jpg")
	require.NoError(t, os.WriteFile(catFile, []byte(testCatalog), 0644))

	c, m, log := newTestContext(t)
	ctx := context.Background()
	require.NoError(t, Run(ctx, NewOpNewMask(maskFile, 64, 64, "10:00:00", "+30.00.00", 30, "SIN"), c))

	op := NewOpMask(maskFile, catFile, mask.DefaultParams(), preview, DefaultPreviewColor)
	require.NoError(t, Run(ctx, op, c))
	require.NotNil(t, op.Report)
	assert.Equal(t, 4, op.Report.Sources)
	assert.Equal(t, 2, op.Report.Added)
	assert.Equal(t, 1, op.Report.Unknown)
	assert.Equal(t, 1, op.Report.Outside)
	assert.Contains(t, log.String(), "WARNING: unknown source type (DISK), ignoring it.")
	assert.Contains(t, log.String(), "WARNING: source s4 falls outside the mask, ignoring it.")

	g, err := mask.Open(maskFile, &bytes.Buffer{})
	require.NoError(t, err)
	assert.Equal(t, op.Report.Pixels, g.Count())
	assert.Equal(t, float32(1), g.At(32, 32))
	require.NotEmpty(t, g.Image.Header.History)
	assert.True(t, strings.HasPrefix(g.Image.Header.History[len(g.Image.Header.History)-1], "skymask sky.model: 2 of 4 sources"))

	fi, err := os.Stat(preview)
	require.NoError(t, err)
	assert.Greater(t, fi.Size(), int64(0))

	assert.Equal(t, 2.0, testutil.ToFloat64(m.Sources.WithLabelValues("added")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Runs.WithLabelValues("mask", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Runs.WithLabelValues("newMask", "ok")))
}

func TestMaskErrors(t *testing.T) {
	dir := t.TempDir()
	c, m, _ := newTestContext(t)
	ctx := context.Background()

	err := Run(ctx, NewOpMask(filepath.Join(dir, "missing.fits"), "x", mask.DefaultParams(), "", ""), c)
	assert.Error(t, err)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Runs.WithLabelValues("mask", "error")))

	maskFile := filepath.Join(dir, "m.fits")
	require.NoError(t, NewOpNewMask(maskFile, 16, 16, "0", "0", 60, "TAN").Apply(ctx, c))
	err = NewOpMask(maskFile, filepath.Join(dir, "missing.model"), mask.DefaultParams(), "", "").Apply(ctx, c)
	assert.Error(t, err)

	catFile := filepath.Join(dir, "sky.model")
	require.NoError(t, os.WriteFile(catFile, []byte(testCatalog), 0644))
	err = NewOpMask(maskFile, catFile, mask.DefaultParams(), filepath.Join(dir, "p.png"), DefaultPreviewColor).Apply(ctx, c)
	assert.Error(t, err)
	err = NewOpMask(maskFile, catFile, mask.DefaultParams(), filepath.Join(dir, "p.jpg"), "not a color").Apply(ctx, c)
	assert.Error(t, err)

	// mask data plus one coverage bitset per thread must fit the memory share
	big := filepath.Join(dir, "big.fits")
	require.NoError(t, NewOpNewMask(big, 512, 512, "10:00:00", "+30.00.00", 30, "SIN").Apply(ctx, c))
	c.MaskMemoryMB, c.MaxThreads = 1, 8
	err = NewOpMask(big, catFile, mask.DefaultParams(), "", "").Apply(ctx, c)
	assert.ErrorContains(t, err, "MiB")
}

func TestNewMaskValidation(t *testing.T) {
	dir := t.TempDir()
	c, _, _ := newTestContext(t)
	ctx := context.Background()
	fn := filepath.Join(dir, "m.fits")

	assert.Error(t, NewOpNewMask(fn, 0, 16, "0", "0", 60, "SIN").Apply(ctx, c))
	assert.Error(t, NewOpNewMask(fn, 16, 16, "0", "0", 0, "SIN").Apply(ctx, c))
	assert.Error(t, NewOpNewMask(fn, 16, 16, "0", "95", 60, "SIN").Apply(ctx, c))
	assert.Error(t, NewOpNewMask(fn, 16, 16, "0", "0", 60, "MER").Apply(ctx, c))

	c.MaskMemoryMB = 1
	err := NewOpNewMask(fn, 1024, 1024, "0", "0", 60, "SIN").Apply(ctx, c)
	assert.ErrorContains(t, err, "MiB")
	_, statErr := os.Stat(fn)
	assert.True(t, os.IsNotExist(statErr))
}

func TestRestrictedPaths(t *testing.T) {
	c := &Context{RestrictPaths: true}
	assert.NoError(t, c.checkPath("masks/a.fits"))
	assert.Error(t, c.checkPath("/etc/a.fits"))
	assert.Error(t, c.checkPath("../a.fits"))
	assert.NoError(t, c.checkLocation("mem://localhost/sky.model"))
	assert.NoError(t, c.checkLocation("sky.model"))
	assert.Error(t, c.checkLocation("file:///etc/passwd"))
	assert.Error(t, c.checkLocation("file://masks/sky.model"))
	assert.Error(t, c.checkLocation("../sky.model"))
	assert.Error(t, c.checkLocation("mem://localhost/../sky.model"))
	for _, remote := range []string{
		"http://127.0.0.1:8080/internal/secret",
		"https://example.com/sky.model",
		"HTTP://127.0.0.1/sky.model",
		"scp://127.0.0.1/etc/passwd",
		"ssh://127.0.0.1/etc/passwd",
		"tar:///tmp/a.tar/etc/passwd",
		"zip:///tmp/a.zip/sky.model",
		"s3://bucket/sky.model",
	} {
		assert.ErrorContains(t, c.checkLocation(remote), "not allowed", remote)
	}

	err := NewOpMask("m.fits", "http://127.0.0.1:1/internal/secret", mask.DefaultParams(), "", "").Apply(context.Background(), c)
	assert.ErrorContains(t, err, "not allowed")
	err = NewOpTaperFiles([]string{"1", "5", "0", "0"}, "tar:///tmp/a.tar/sky.model", "out.model").Apply(context.Background(), c)
	assert.ErrorContains(t, err, "not allowed")
	err = NewOpTaperFiles([]string{"1", "5", "0", "0"}, "sky.model", "/tmp/out.model").Apply(context.Background(), c)
	assert.ErrorContains(t, err, "outside current directory tree")

	err = NewOpNewMask("/tmp/x.fits", 16, 16, "0", "0", 60, "SIN").Apply(context.Background(), c)
	assert.ErrorContains(t, err, "outside current directory tree")

	c.RestrictPaths = false
	assert.NoError(t, c.checkPath("/etc/a.fits"))
	assert.NoError(t, c.checkLocation("https://example.com/sky.model"))
}

func TestTaperOperator(t *testing.T) {
	c, m, log := newTestContext(t)
	var out bytes.Buffer
	in := "format = Name, Type, Ra, Dec, I\n" +
		"near,POINT,10:00:00,+30.00.00,0.01\n" +
		"far,POINT,12:00:00,+30.00.00,0.01\n"
	op := NewOpTaper([]string{"1", "5", "10:00:00", "+30.00.00"}, strings.NewReader(in), &out)
	require.NoError(t, Run(context.Background(), op, c))
	assert.Equal(t, "format = Name, Type, Ra, Dec, I\nnear,POINT,10:00:00,+30.00.00,0.01\n", out.String())
	assert.Equal(t, taper.Stats{Lines: 3, Headers: 1, Kept: 1, Dropped: 1}, op.Stats)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.TaperLines.WithLabelValues("kept")))
	assert.Contains(t, log.String(), "Applying taper with limit 1")

	op = NewOpTaper([]string{"1", "5"}, strings.NewReader(in), &out)
	var usage *taper.UsageError
	assert.ErrorAs(t, op.Apply(context.Background(), c), &usage)

	op = NewOpTaper([]string{"1", "5", "0", "0"}, nil, nil)
	assert.ErrorContains(t, op.Apply(context.Background(), c), "without input")
}

const taperInput = "format = Name, Type, Ra, Dec, I\n" +
	"near,POINT,10:00:00,+30.00.00,0.01\n" +
	"far,POINT,12:00:00,+30.00.00,0.01\n"

func TestTaperOperatorFiles(t *testing.T) {
	dir := t.TempDir()
	in, out := filepath.Join(dir, "in.model"), filepath.Join(dir, "out.model")
	require.NoError(t, os.WriteFile(in, []byte(taperInput), 0644))
	c, _, log := newTestContext(t)
	args := []string{"1", "5", "10:00:00", "+30.00.00"}

	op := NewOpTaperFiles(args, in, out)
	require.NoError(t, Run(context.Background(), op, c))
	got, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, "format = Name, Type, Ra, Dec, I\nnear,POINT,10:00:00,+30.00.00,0.01\n", string(got))
	assert.Equal(t, 1, op.Stats.Kept)
	assert.Contains(t, log.String(), "Writing filtered catalog to "+out)

	// a failed run leaves no output behind
	bad := filepath.Join(dir, "bad.model")
	require.NoError(t, os.WriteFile(bad, []byte(taperInput+"broken,POINT,10:00:00,+30.00.00,lots\n"), 0644))
	failed := filepath.Join(dir, "failed.model")
	var lineErr *taper.LineError
	assert.ErrorAs(t, NewOpTaperFiles(args, bad, failed).Apply(context.Background(), c), &lineErr)
	_, statErr := os.Stat(failed)
	assert.True(t, os.IsNotExist(statErr))

	assert.ErrorContains(t, NewOpTaperFiles(args, "", out).Apply(context.Background(), c), "without input")
	assert.ErrorContains(t, NewOpTaperFiles(args, in, "").Apply(context.Background(), c), "without output")
	assert.Error(t, NewOpTaperFiles(args, filepath.Join(dir, "missing.model"), out).Apply(context.Background(), c))
}

func TestTaperJob(t *testing.T) {
	dir := t.TempDir()
	in, out := filepath.Join(dir, "in.model"), filepath.Join(dir, "out.model")
	require.NoError(t, os.WriteFile(in, []byte(taperInput), 0644))

	step := map[string]interface{}{
		"type": "taper", "active": true,
		"limit": "1", "fwhm": "5", "ra": "10:00:00", "dec": "+30.00.00",
		"input": in, "output": out,
	}
	b, err := json.Marshal(map[string]interface{}{"type": "seq", "active": true, "steps": []interface{}{step}})
	require.NoError(t, err)
	seq := NewOpSequenceDefault()
	require.NoError(t, json.Unmarshal(b, seq))
	require.Len(t, seq.Steps, 1)

	c, m, _ := newTestContext(t)
	require.NoError(t, Run(context.Background(), seq, c))
	got, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, "format = Name, Type, Ra, Dec, I\nnear,POINT,10:00:00,+30.00.00,0.01\n", string(got))
	assert.Equal(t, taper.Stats{Lines: 3, Headers: 1, Kept: 1, Dropped: 1}, seq.Steps[0].(*OpTaper).Stats)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Runs.WithLabelValues("taper", "ok")))

	// the operator round trips through JSON with its locations
	b, err = json.Marshal(seq)
	require.NoError(t, err)
	assert.Contains(t, string(b), `"output":`)
}

func TestSequenceJSON(t *testing.T) {
	dir := t.TempDir()
	maskFile := filepath.Join(dir, "seq.fits")
	catFile := filepath.Join(dir, "sky.model")
	require.NoError(t, os.WriteFile(catFile, []byte(testCatalog), 0644))

	seq := NewOpSequence(
		NewOpNewMask(maskFile, 48, 48, "10:00:00", "+30.00.00", 30, "SIN"),
		NewOpMask(maskFile, catFile, mask.DefaultParams(), "", DefaultPreviewColor),
	)
	b, err := json.Marshal(seq)
	require.NoError(t, err)

	decoded := NewOpSequenceDefault()
	require.NoError(t, json.Unmarshal(b, decoded))
	require.Len(t, decoded.Steps, 2)
	assert.True(t, decoded.Active)
	newMask, ok := decoded.Steps[0].(*OpNewMask)
	require.True(t, ok)
	assert.Equal(t, int32(48), newMask.Width)
	assert.Equal(t, "SIN", newMask.Projection)
	opMask, ok := decoded.Steps[1].(*OpMask)
	require.True(t, ok)
	assert.Equal(t, mask.DefaultParams(), opMask.Params)

	c, _, _ := newTestContext(t)
	require.NoError(t, Run(context.Background(), decoded, c))
	require.NotNil(t, opMask.Report)
	assert.Equal(t, 2, opMask.Report.Added)

	err = json.Unmarshal([]byte(`{"type":"seq","active":true,"steps":[{"type":"stack","active":true}]}`), NewOpSequenceDefault())
	assert.ErrorContains(t, err, "unknown operator type 'stack'")

	assert.Error(t, NewOpSequence().Apply(context.Background(), c))
}

func TestLoadConfig(t *testing.T) {
	dir := t.TempDir()
	fn := filepath.Join(dir, "skymask.yaml")
	require.NoError(t, os.WriteFile(fn, []byte("padArcsec: 300\nthreads: 4\npreviewColor: \"#00ff00\"\n"), 0644))
	cfg, err := LoadConfig(fn)
	require.NoError(t, err)
	assert.Equal(t, 300.0, cfg.PadArcsec)
	assert.Equal(t, 54.0, cfg.BeamArcsec)
	assert.Equal(t, 4, cfg.Threads)
	assert.Equal(t, "#00ff00", cfg.PreviewColor)
	assert.Equal(t, ":8080", cfg.Listen)
	assert.Equal(t, mask.Params{PadArcsec: 300, BeamArcsec: 54}, cfg.MaskParams())

	require.NoError(t, os.WriteFile(fn, nil, 0644))
	cfg, err = LoadConfig(fn)
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)

	require.NoError(t, os.WriteFile(fn, []byte("padding: 3\n"), 0644))
	_, err = LoadConfig(fn)
	assert.Error(t, err)

	require.NoError(t, os.WriteFile(fn, []byte("threads: -1\n"), 0644))
	_, err = LoadConfig(fn)
	assert.Error(t, err)

	_, err = LoadConfig(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)
}
