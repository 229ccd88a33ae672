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
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/klauspost/cpuid"
	"github.com/pbnjay/memory"

	"github.com/mlnoga/skymask/internal/metrics"
)

// An execution context for operators
type Context struct {
	Log           io.Writer
	MemoryMB      int                // memory.TotalMemory()/1024/1024
	MaskMemoryMB  int                // MemoryMB*7/10, largest mask we are willing to hold
	MaxThreads    int                `json:"maxThreads"`
	RestrictPaths bool               // only relative paths inside the working directory
	Metrics       *metrics.Collector // may be nil
}

func NewContext(log io.Writer, m *metrics.Collector) *Context {
	memoryMB := int(memory.TotalMemory() / 1024 / 1024)
	return &Context{
		Log:          log,
		MemoryMB:     memoryMB,
		MaskMemoryMB: memoryMB * 7 / 10,
		MaxThreads:   DefaultThreads(),
		Metrics:      m,
	}
}

// Number of logical cores, or GOMAXPROCS if the CPU does not tell
func DefaultThreads() int {
	if n := cpuid.CPU.LogicalCores; n > 0 {
		return n
	}
	return runtime.GOMAXPROCS(0)
}

// Refuses to hold a mask larger than the configured share of physical memory
func (c *Context) checkMemory(bytes int64) error {
	if c.MaskMemoryMB > 0 && bytes > int64(c.MaskMemoryMB)*1024*1024 {
		return fmt.Errorf("mask needs %d MiB, more than the %d MiB available", bytes/1024/1024, c.MaskMemoryMB)
	}
	return nil
}

// Returns an error if paths are restricted and p is absolute or leaves the current directory tree
func (c *Context) checkPath(p string) error {
	if !c.RestrictPaths {
		return nil
	}
	if filepath.IsAbs(p) || strings.Contains(p, "..") {
		return fmt.Errorf("path '%s' outside current directory tree, aborting", p)
	}
	return nil
}

// Like checkPath, for catalog locations which may also be URLs. With restricted
// paths, only relative plain paths and mem:// URLs are allowed.
func (c *Context) checkLocation(location string) error {
	scheme, rest, found := strings.Cut(location, "://")
	if !found {
		return c.checkPath(location)
	}
	if !c.RestrictPaths {
		return nil
	}
	if strings.ToLower(scheme) == "mem" && !strings.Contains(rest, "..") {
		return nil
	}
	return fmt.Errorf("location '%s' not allowed with restricted paths, aborting", location)
}

// A mask or catalog processing operator
type Operator interface {
	GetType() string
	IsActive() bool
	Apply(ctx context.Context, c *Context) error
}

// Base type for operators, including type information for JSON serializing/deserializing
type OpBase struct {
	Type   string `json:"type"`
	Active bool   `json:"active"`
}

func (op *OpBase) GetType() string { return op.Type }
func (op *OpBase) IsActive() bool  { return op.Active }

// Factory method for operators. For JSON serializing/deserializing
type OperatorFactory func() Operator

// Mapping from operator type strings to factory method for the type
var operatorFactories = map[string]OperatorFactory{}

// Returns the operator factory for a given type string
func GetOperatorFactory(t string) OperatorFactory {
	return operatorFactories[t]
}

// Registers a given type string for a given type of Operator, identified via an exemplar generator
func SetOperatorFactory(f OperatorFactory) {
	op := f()
	t := op.GetType()
	if GetOperatorFactory(t) != nil {
		panic(fmt.Sprintf("error: re-registering operator key %s\n", t))
	}
	operatorFactories[t] = f
}

// Applies an operator if active, logging its settings and recording run metrics
func Run(ctx context.Context, op Operator, c *Context) (err error) {
	if !op.IsActive() {
		return nil
	}
	start := time.Now()
	defer func() { c.Metrics.ObserveRun(op.GetType(), start, err) }()

	if m, err := json.MarshalIndent(op, "", "  "); err == nil {
		fmt.Fprintf(c.Log, "Running %s with these settings:\n%s\n", op.GetType(), string(m))
	}
	err = op.Apply(ctx, c)
	fmt.Fprintf(c.Log, "%s done after %v\n", op.GetType(), time.Since(start).Round(time.Millisecond))
	return err
}

// Applies a sequence of operators in order, stopping at the first error
type OpSequence struct {
	OpBase
	Steps    []Operator        `json:"-"`     // the actual steps
	StepsRaw []json.RawMessage `json:"steps"` // helper for unmarshaling
}

func init() { SetOperatorFactory(func() Operator { return NewOpSequenceDefault() }) } // register the operator for JSON decoding

func NewOpSequenceDefault() *OpSequence { return NewOpSequence() }

func NewOpSequence(steps ...Operator) *OpSequence {
	return &OpSequence{
		OpBase: OpBase{Type: "seq", Active: len(steps) > 0},
		Steps:  steps,
	}
}

// Unmarshals a sequence of polymorphic operators from JSON.
// Uses temporary op.StepsRaw inspired by https://alexkappa.medium.com/json-polymorphism-in-go-4cade1e58ed1
func (op *OpSequence) UnmarshalJSON(b []byte) error {
	type alias OpSequence
	err := json.Unmarshal(b, (*alias)(op))
	if err != nil {
		return err
	}

	for _, raw := range op.StepsRaw {
		var step OpBase
		err = json.Unmarshal(raw, &step)
		if err != nil {
			return err
		}

		var i Operator
		if factory := GetOperatorFactory(step.Type); factory != nil {
			i = factory()
		} else {
			return fmt.Errorf("unknown operator type '%s' in raw JSON message '%s'", step.Type, string(raw))
		}
		err = json.Unmarshal(raw, i)
		if err != nil {
			return err
		}
		op.Steps = append(op.Steps, i)
	}
	op.StepsRaw = nil
	return nil
}

// Appends one or more operators to the existing sequence
func (op *OpSequence) Append(steps ...Operator) {
	op.Steps = append(op.Steps, steps...)
}

// Marshals a sequence with polymorphic operators to JSON.
// Uses the actual op.Steps with label "steps", and ignores op.StepsRaw
func (op *OpSequence) MarshalJSON() (bs []byte, err error) {
	buf := bytes.Buffer{}
	buf.WriteString("{\"type\":")
	inner, err := json.Marshal(op.Type)
	if err != nil {
		return nil, err
	}
	buf.Write(inner)
	fmt.Fprintf(&buf, ", \"active\":%v, \"steps\":", op.Active)
	inner, err = json.Marshal(op.Steps)
	if err != nil {
		return nil, err
	}
	buf.Write(inner)
	buf.WriteRune('}')
	return buf.Bytes(), nil
}

func (op *OpSequence) Apply(ctx context.Context, c *Context) error {
	if len(op.Steps) == 0 {
		return errors.New("empty sequence")
	}
	for i, step := range op.Steps {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := Run(ctx, step, c); err != nil {
			return fmt.Errorf("step %d (%s): %w", i, step.GetType(), err)
		}
	}
	return nil
}
