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
	"bytes"
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/minio/highwayhash"
	"github.com/viant/afs"
)

// Key for catalog fingerprints. Fixed, so fingerprints are comparable across runs.
var fingerprintKey = []byte("skymask-catalog-fingerprint-key!")

// A fully loaded catalog
type Catalog struct {
	URL         string
	Schema      *Schema
	Sources     []*Source
	Fingerprint uint64 // HighwayHash-64 of the raw catalog bytes
}

// Returns a 64-bit HighwayHash of the given data
func Fingerprint(data []byte) (uint64, error) {
	h, err := highwayhash.New64(fingerprintKey)
	if err != nil {
		return 0, err
	}
	if _, err = h.Write(data); err != nil {
		return 0, err
	}
	return h.Sum64(), nil
}

// Turns plain file paths into file:// URLs, leaves URLs with a scheme untouched
func NormalizeURL(location string) string {
	if strings.Contains(location, "://") {
		return location
	}
	if abs, err := filepath.Abs(location); err == nil {
		location = abs
	}
	return "file://" + filepath.ToSlash(location)
}

// Loads a catalog from a path or any URL supported by afs, e.g. file://, mem:// or s3://
func Load(ctx context.Context, location string) (*Catalog, error) {
	URL := NormalizeURL(location)
	data, err := afs.New().DownloadWithURL(ctx, URL)
	if err != nil {
		return nil, fmt.Errorf("reading catalog %s: %w", location, err)
	}
	return Parse(URL, data)
}

// Parses a catalog held in memory
func Parse(URL string, data []byte) (*Catalog, error) {
	fp, err := Fingerprint(data)
	if err != nil {
		return nil, err
	}
	rd, err := NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("catalog %s: %w", URL, err)
	}
	sources, err := rd.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("catalog %s: %w", URL, err)
	}
	return &Catalog{URL: URL, Schema: rd.Schema, Sources: sources, Fingerprint: fp}, nil
}
