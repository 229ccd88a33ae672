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


package catalog

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/viant/afs"

	"github.com/mlnoga/skymask/internal/sky"
)

const skymodel = `format = Name, Type, Ra, Dec, I, Q, U, V, MajorAxis, MinorAxis, Orientation, ReferenceFrequency='60e6', SpectralIndex='[]'

3C196, POINT, 08:13:36.0, +48.13.02.6, 83.1, 0, 0, 0, , , , 74e6, [-0.8, 0.1]
W1, GAUSSIAN, 08:20:00.0, -01.30.00, 1.5, 0, 0, 0, 120, 60, 45, , [-0.7]
W2, GAUSSIAN, 08:25:00.0, -00.10.00, 0.5, 0, 0, 0, 0, 0, 0, ,
# a comment line
S9, SHAPELET, 08:30:00.0, +50.00.00, 2.0, 0, 0, 0, , , , ,
`

func TestReadSkymodel(t *testing.T) {
	rd, err := NewReader(strings.NewReader(skymodel))
	require.NoError(t, err)
	assert.Equal(t, []string{"Name", "Type", "Ra", "Dec", "I", "Q", "U", "V", "MajorAxis", "MinorAxis", "Orientation", "ReferenceFrequency", "SpectralIndex"}, rd.Schema.Names)
	assert.Equal(t, "60e6", rd.Schema.Defaults["ReferenceFrequency"])
	assert.True(t, rd.Schema.Has(ColFlux))

	sources, err := rd.ReadAll()
	require.NoError(t, err)
	require.Len(t, sources, 4)

	s := sources[0]
	assert.Equal(t, "3C196", s.Name)
	assert.Equal(t, Point, s.Type)
	assert.Equal(t, "08:13:36.0", s.RA)
	assert.Equal(t, "+48.13.02.6", s.Dec)
	assert.True(t, s.HasFlux)
	assert.InDelta(t, 83.1, s.Flux, 1e-12)
	assert.False(t, s.HasMajorAxis)
	assert.Equal(t, "74e6", s.Extra["ReferenceFrequency"])
	assert.Equal(t, "[-0.8, 0.1]", s.Extra["SpectralIndex"])
	assert.Equal(t, 3, s.Line)

	g := sources[1]
	assert.Equal(t, Gaussian, g.Type)
	assert.Equal(t, 120.0, g.MajorAxis)
	assert.Equal(t, 60.0, g.MinorAxis)
	assert.Equal(t, 45.0, g.Orientation)
	assert.Equal(t, "60e6", g.Extra["ReferenceFrequency"]) // default from header

	assert.Equal(t, Unknown, sources[3].Type)
	assert.Equal(t, "SHAPELET", sources[3].TypeName)
}

func TestSingleSourceCatalog(t *testing.T) {
	rd, err := NewReader(strings.NewReader("format=Name,Type,Ra,Dec\nA,POINT,01:00:00,+10.00.00"))
	require.NoError(t, err)
	sources, err := rd.ReadAll()
	require.NoError(t, err)
	require.Len(t, sources, 1)
	pos, err := sources[0].Position()
	require.NoError(t, err)
	assert.InDelta(t, sky.Rad(15), pos.RA, 1e-12)
	assert.InDelta(t, sky.Rad(10), pos.Dec, 1e-12)
}

func TestAlternativeHeader(t *testing.T) {
	rd, err := NewReader(strings.NewReader("# (Name, Type, Ra, Dec, I) = format\nA, POINT, 01:00:00, +10.00.00, 3.5\n"))
	require.NoError(t, err)
	assert.Equal(t, []string{"Name", "Type", "Ra", "Dec", "I"}, rd.Schema.Names)
	s, err := rd.Next()
	require.NoError(t, err)
	assert.Equal(t, 3.5, s.Flux)
	_, err = rd.Next()
	assert.Equal(t, io.EOF, err)
}

func TestReaderErrors(t *testing.T) {
	_, err := NewReader(strings.NewReader("A, POINT, 01:00:00, +10.00.00\n"))
	assert.True(t, errors.Is(err, ErrNoHeader))

	_, err = NewReader(strings.NewReader(""))
	assert.True(t, errors.Is(err, ErrNoHeader))

	rd, err := NewReader(strings.NewReader("format=Name,Type,Ra,Dec,MajorAxis\nA,GAUSSIAN,01:00:00,+10.00.00,wide\n"))
	require.NoError(t, err)
	_, err = rd.Next()
	var re *RowError
	require.True(t, errors.As(err, &re))
	assert.Equal(t, 2, re.Line)
	assert.Equal(t, "MajorAxis", re.Column)

	rd, err = NewReader(strings.NewReader("format=Name,Type,Ra,Dec\nA,POINT\n"))
	require.NoError(t, err)
	_, err = rd.Next()
	assert.True(t, errors.As(err, &re))
}

func TestPositionValidation(t *testing.T) {
	s := &Source{Name: "bad", RA: "01:00:00", Dec: "+95.00.00"}
	_, err := s.Position()
	assert.True(t, errors.Is(err, sky.ErrValidation))
	var re *sky.RangeError
	assert.True(t, errors.As(err, &re))
}

func TestFingerprint(t *testing.T) {
	a, err := Fingerprint([]byte(skymodel))
	require.NoError(t, err)
	b, err := Fingerprint([]byte(skymodel))
	require.NoError(t, err)
	c, err := Fingerprint([]byte(skymodel + "\n"))
	require.NoError(t, err)
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
}

func TestLoadFromMemory(t *testing.T) {
	ctx := context.Background()
	URL := "mem://localhost/catalogs/test.skymodel"
	require.NoError(t, afs.New().Upload(ctx, URL, 0644, strings.NewReader(skymodel)))

	cat, err := Load(ctx, URL)
	require.NoError(t, err)
	assert.Equal(t, URL, cat.URL)
	assert.Len(t, cat.Sources, 4)
	fp, _ := Fingerprint([]byte(skymodel))
	assert.Equal(t, fp, cat.Fingerprint)
}

func TestLoadFromPath(t *testing.T) {
	fileName := filepath.Join(t.TempDir(), "sky.model")
	require.NoError(t, os.WriteFile(fileName, []byte(skymodel), 0644))

	cat, err := Load(context.Background(), fileName)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(cat.URL, "file://"))
	assert.Len(t, cat.Sources, 4)

	_, err = Load(context.Background(), filepath.Join(t.TempDir(), "missing.model"))
	assert.Error(t, err)
}
