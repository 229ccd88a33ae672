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


package taper

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/mlnoga/skymask/internal/sky"
)

// Lines containing this marker are catalog headers and copied verbatim
const HeaderMarker = "format"

// Field indices of a comma-separated catalog line
const (
	fieldRA   = 2
	fieldDec  = 3
	fieldFlux = 4
)

var ErrTooFewFields = errors.New("too few fields")

// A malformed catalog line. Aborts filtering.
type LineError struct {
	Line int
	Err  error
}

func (e *LineError) Error() string {
	return fmt.Sprintf("line %d: %s", e.Line, e.Err.Error())
}

func (e *LineError) Unwrap() error { return e.Err }

type Stats struct {
	Lines   int `json:"lines"`
	Headers int `json:"headers"`
	Kept    int `json:"kept"`
	Dropped int `json:"dropped"`
}

func (s Stats) String() string {
	return fmt.Sprintf("%d lines: %d headers, %d sources kept, %d dropped", s.Lines, s.Headers, s.Kept, s.Dropped)
}

// Copies header and blank lines, and those sources whose flux is strictly
// above the limit at their position, from r to w. Holds one line at a time.
func Filter(r io.Reader, w io.Writer, fn LimitFunc) (stats Stats, err error) {
	br := bufio.NewReader(r)
	bw := bufio.NewWriter(w)
	for {
		line, readErr := br.ReadString('\n')
		if len(line) > 0 {
			stats.Lines++
			keep, isHeader, err := decide(line, fn)
			if err != nil {
				return stats, &LineError{Line: stats.Lines, Err: err}
			}
			if isHeader {
				stats.Headers++
			} else if keep {
				stats.Kept++
			} else {
				stats.Dropped++
			}
			if keep || isHeader {
				if _, err := bw.WriteString(line); err != nil {
					return stats, err
				}
			}
		}
		if readErr == io.EOF {
			break
		} else if readErr != nil {
			return stats, readErr
		}
	}
	return stats, bw.Flush()
}

func decide(line string, fn LimitFunc) (keep, isHeader bool, err error) {
	if strings.Contains(line, HeaderMarker) || strings.TrimSpace(line) == "" {
		return false, true, nil
	}
	fields := strings.Split(strings.TrimRight(line, "\r\n"), ",")
	if len(fields) <= fieldFlux {
		return false, false, ErrTooFewFields
	}
	flux, err := strconv.ParseFloat(strings.TrimSpace(fields[fieldFlux]), 64)
	if err != nil {
		return false, false, err
	}
	pos, err := sky.ParseDirection(fields[fieldRA], fields[fieldDec])
	if err != nil {
		return false, false, err
	}
	return flux > fn(pos), false, nil
}
