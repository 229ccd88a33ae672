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
	"bufio"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"
)

var ErrNoHeader = errors.New("catalog has no format header")

// Typed meaning of a catalog column
type Column int

const (
	ColExtra Column = iota
	ColName
	ColType
	ColRA
	ColDec
	ColMajorAxis
	ColMinorAxis
	ColOrientation
	ColFlux
)

var knownColumns = map[string]Column{
	"Name":        ColName,
	"Type":        ColType,
	"Ra":          ColRA,
	"Dec":         ColDec,
	"MajorAxis":   ColMajorAxis,
	"MinorAxis":   ColMinorAxis,
	"Orientation": ColOrientation,
	"I":           ColFlux,
	"Flux":        ColFlux,
}

// Column layout declared by the catalog header
type Schema struct {
	Names    []string          // header names in column order
	Columns  []Column          // typed meaning per column
	Defaults map[string]string // default values declared in the header, by name
}

var reAltHeader = regexp.MustCompile(`^#?\s*\((.*)\)\s*=\s*format\s*$`)
var reWhite = regexp.MustCompile(`\s`)

// Parses a format header line into a schema
func ParseSchema(line string) (*Schema, error) {
	if !strings.Contains(line, "format") {
		return nil, ErrNoHeader
	}
	var body string
	if sub := reAltHeader.FindStringSubmatch(strings.TrimSpace(line)); sub != nil {
		body = sub[1]
	} else {
		body = line[strings.Index(line, "format")+len("format"):]
		body = strings.TrimPrefix(strings.TrimSpace(body), "=")
	}

	s := &Schema{Defaults: map[string]string{}}
	for _, raw := range splitFields(body) {
		name, def := reWhite.ReplaceAllString(raw, ""), ""
		if i := strings.Index(name, "="); i >= 0 {
			name, def = name[:i], strings.Trim(name[i+1:], `'"`)
		}
		if name == "" {
			continue
		}
		s.Names = append(s.Names, name)
		s.Columns = append(s.Columns, knownColumns[name])
		if def != "" {
			s.Defaults[name] = def
		}
	}
	if len(s.Names) == 0 {
		return nil, ErrNoHeader
	}
	return s, nil
}

// Returns true if the schema has a column of the given type
func (s *Schema) Has(c Column) bool {
	for _, col := range s.Columns {
		if col == c {
			return true
		}
	}
	return false
}

// A catalog row that could not be parsed
type RowError struct {
	Line   int
	Column string
	Err    error
}

func (e *RowError) Error() string {
	return fmt.Sprintf("line %d column %s: %s", e.Line, e.Column, e.Err.Error())
}

func (e *RowError) Unwrap() error { return e.Err }

// Reads source records from a sky model, one row at a time
type Reader struct {
	Schema  *Schema
	scanner *bufio.Scanner
	line    int
}

// Creates a reader and consumes the header. Blank and comment lines before the header are skipped.
func NewReader(r io.Reader) (*Reader, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 16*1024*1024)
	rd := &Reader{scanner: sc}
	for sc.Scan() {
		rd.line++
		text := strings.TrimSpace(sc.Text())
		if text == "" {
			continue
		}
		if strings.HasPrefix(text, "#") && !strings.Contains(text, "format") {
			continue
		}
		s, err := ParseSchema(text)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", rd.line, err)
		}
		rd.Schema = s
		return rd, nil
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return nil, ErrNoHeader
}

// Returns the next source, or io.EOF after the last one
func (rd *Reader) Next() (*Source, error) {
	for rd.scanner.Scan() {
		rd.line++
		text := strings.TrimSpace(rd.scanner.Text())
		if text == "" || strings.HasPrefix(text, "#") || strings.Contains(text, "format") {
			continue
		}
		return rd.parseRow(text)
	}
	if err := rd.scanner.Err(); err != nil {
		return nil, err
	}
	return nil, io.EOF
}

// Reads all remaining sources
func (rd *Reader) ReadAll() (sources []*Source, err error) {
	for {
		s, err := rd.Next()
		if err == io.EOF {
			return sources, nil
		}
		if err != nil {
			return nil, err
		}
		sources = append(sources, s)
	}
}

func (rd *Reader) parseRow(text string) (*Source, error) {
	fields := splitFields(text)
	src := &Source{Line: rd.line}
	for i, name := range rd.Schema.Names {
		val := ""
		if i < len(fields) {
			val = strings.TrimSpace(fields[i])
		}
		if val == "" {
			val = rd.Schema.Defaults[name]
		}

		var f float64
		var err error
		col := rd.Schema.Columns[i]
		isNumeric := col == ColMajorAxis || col == ColMinorAxis || col == ColOrientation || col == ColFlux
		if isNumeric && val != "" {
			if f, err = strconv.ParseFloat(val, 64); err != nil {
				return nil, &RowError{Line: rd.line, Column: name, Err: err}
			}
		}

		switch col {
		case ColName:
			src.Name = val
		case ColType:
			src.TypeName, src.Type = val, ParseShapeType(val)
		case ColRA:
			src.RA = val
		case ColDec:
			src.Dec = val
		case ColMajorAxis:
			src.MajorAxis, src.HasMajorAxis = f, val != ""
		case ColMinorAxis:
			src.MinorAxis, src.HasMinorAxis = f, val != ""
		case ColOrientation:
			src.Orientation, src.HasOrientation = f, val != ""
		case ColFlux:
			src.Flux, src.HasFlux = f, val != ""
		default:
			if src.Extra == nil {
				src.Extra = map[string]string{}
			}
			src.Extra[name] = val
		}
	}
	if src.RA == "" || src.Dec == "" {
		return nil, &RowError{Line: rd.line, Column: "Ra/Dec", Err: errors.New("missing position")}
	}
	return src, nil
}

// Splits a line on commas, except for commas within square brackets
// as used by list-valued columns such as SpectralIndex.
func splitFields(line string) []string {
	var fields []string
	depth, start := 0, 0
	for i, c := range line {
		switch c {
		case '[':
			depth++
		case ']':
			if depth > 0 {
				depth--
			}
		case ',':
			if depth == 0 {
				fields = append(fields, line[start:i])
				start = i + 1
			}
		}
	}
	return append(fields, line[start:])
}
