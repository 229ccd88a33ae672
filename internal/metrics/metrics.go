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


// Package metrics exposes rasterizer and taper outcomes to Prometheus.
package metrics

import (
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mlnoga/skymask/internal/mask"
	"github.com/mlnoga/skymask/internal/taper"
)

// Collector bundles the Prometheus metrics of mask and taper runs.
// A nil *Collector is valid and records nothing.
type Collector struct {
	gatherer prometheus.Gatherer

	Runs         *prometheus.CounterVec
	RunDurations *prometheus.HistogramVec
	Sources      *prometheus.CounterVec
	EdgeSources  prometheus.Counter
	MaskedPixels prometheus.Counter
	TaperLines   *prometheus.CounterVec
}

// Registers the metrics against the given registerer, or the global
// Prometheus registry if nil. Registering twice returns the existing metrics.
func NewCollector(reg prometheus.Registerer) (*Collector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	runs, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "skymask_runs_total",
		Help: "Operator runs, labeled by operator type and status.",
	}, []string{"op", "status"}), "skymask_runs_total")
	if err != nil {
		return nil, err
	}
	durations, err := registerHistogramVec(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "skymask_run_duration_seconds",
		Help:    "Operator run time in seconds.",
		Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60, 300},
	}, []string{"op"}), "skymask_run_duration_seconds")
	if err != nil {
		return nil, err
	}
	sources, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "skymask_sources_total",
		Help: "Catalog sources seen by the rasterizer, labeled by outcome.",
	}, []string{"outcome"}), "skymask_sources_total")
	if err != nil {
		return nil, err
	}
	edge, err := registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "skymask_edge_sources_total",
		Help: "Rasterized sources crossing a mask edge.",
	}), "skymask_edge_sources_total")
	if err != nil {
		return nil, err
	}
	pixels, err := registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "skymask_masked_pixels_total",
		Help: "Mask pixels newly flagged by the rasterizer.",
	}), "skymask_masked_pixels_total")
	if err != nil {
		return nil, err
	}
	lines, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "skymask_taper_lines_total",
		Help: "Catalog lines processed by the flux taper, labeled by result.",
	}, []string{"result"}), "skymask_taper_lines_total")
	if err != nil {
		return nil, err
	}

	return &Collector{
		gatherer:     gatherer,
		Runs:         runs,
		RunDurations: durations,
		Sources:      sources,
		EdgeSources:  edge,
		MaskedPixels: pixels,
		TaperLines:   lines,
	}, nil
}

// Exposes the metrics for scraping
func (c *Collector) Handler() http.Handler {
	gatherer := prometheus.DefaultGatherer
	if c != nil && c.gatherer != nil {
		gatherer = c.gatherer
	}
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// Records one operator run
func (c *Collector) ObserveRun(op string, start time.Time, err error) {
	if c == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	c.Runs.WithLabelValues(op, status).Inc()
	c.RunDurations.WithLabelValues(op).Observe(time.Since(start).Seconds())
}

func (c *Collector) ObserveReport(r mask.Report) {
	if c == nil {
		return
	}
	c.Sources.WithLabelValues("added").Add(float64(r.Added))
	c.Sources.WithLabelValues("invalid").Add(float64(r.Invalid))
	c.Sources.WithLabelValues("unknown").Add(float64(r.Unknown))
	c.Sources.WithLabelValues("outside").Add(float64(r.Outside))
	c.EdgeSources.Add(float64(r.Edge))
	c.MaskedPixels.Add(float64(r.Pixels))
}

func (c *Collector) ObserveTaper(s taper.Stats) {
	if c == nil {
		return
	}
	c.TaperLines.WithLabelValues("header").Add(float64(s.Headers))
	c.TaperLines.WithLabelValues("kept").Add(float64(s.Kept))
	c.TaperLines.WithLabelValues("dropped").Add(float64(s.Dropped))
}

func registerCounterVec(reg prometheus.Registerer, vec *prometheus.CounterVec, name string) (*prometheus.CounterVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.CounterVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}

func registerHistogramVec(reg prometheus.Registerer, vec *prometheus.HistogramVec, name string) (*prometheus.HistogramVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.HistogramVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}

func registerCounter(reg prometheus.Registerer, counter prometheus.Counter, name string) (prometheus.Counter, error) {
	if err := reg.Register(counter); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Counter); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return counter, nil
}
