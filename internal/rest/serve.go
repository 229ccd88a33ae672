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


package rest

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"

	"github.com/mlnoga/skymask/internal/ops"
	"github.com/mlnoga/skymask/internal/taper"
)

// Serves the REST API on the given address until the listener fails.
// File paths in requests are restricted to the working directory tree.
func Serve(listen string, base *ops.Context) error {
	c := *base
	c.RestrictPaths = true
	return NewRouter(&c).Run(listen)
}

// Creates the router. Each request runs with a copy of the base context,
// logging into the response for mask jobs.
func NewRouter(base *ops.Context) *gin.Engine {
	s := &server{base: base}
	r := gin.Default()
	api := r.Group("/api")
	{
		v1 := api.Group("/v1")
		{
			v1.GET("/ping", getPing)
			v1.POST("/newMask", s.postNewMask)
			v1.POST("/mask", s.postMask)
			v1.POST("/job", s.postJob)
			v1.POST("/taper", s.postTaper)
		}
	}
	r.GET("/metrics", gin.WrapH(base.Metrics.Handler()))
	return r
}

type server struct {
	base *ops.Context
	jobs sync.Mutex // masks are modified in place, one job at a time
}

func getPing(c *gin.Context) {
	c.JSON(200, gin.H{
		"message": "pong",
	})
}

func printArgs(logWriter io.Writer, prefix, suffix string, args interface{}) error {
	m, err := json.MarshalIndent(args, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintf(logWriter, "%s%s%s", prefix, string(m), suffix)
	return nil
}

func (s *server) postNewMask(c *gin.Context) {
	op := ops.NewOpNewMaskDefault()
	if err := c.ShouldBindJSON(op); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	op.Active = true
	s.runStreaming(c, op, nil)
}

func (s *server) postMask(c *gin.Context) {
	op := ops.NewOpMaskDefault()
	if err := c.ShouldBindJSON(op); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	op.Active = true
	s.runStreaming(c, op, func(w io.Writer) {
		if op.Report != nil {
			printArgs(w, "Report:\n", "\n", op.Report)
		}
	})
}

func (s *server) postJob(c *gin.Context) {
	op := ops.NewOpSequenceDefault()
	if err := c.ShouldBindJSON(op); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	s.runStreaming(c, op, nil)
}

// Runs a mask modifying operator, streaming its log output as plain text
func (s *server) runStreaming(c *gin.Context, op ops.Operator, after func(w io.Writer)) {
	logWriter := c.Writer
	header := logWriter.Header()
	header.Set("Content-Type", "text/plain")
	logWriter.WriteHeader(http.StatusOK)

	s.jobs.Lock()
	defer s.jobs.Unlock()

	ctx := *s.base
	ctx.Log = logWriter
	if err := ops.Run(c.Request.Context(), op, &ctx); err != nil {
		fmt.Fprintf(logWriter, "error: %s\n", err.Error())
	} else if after != nil {
		after(logWriter)
	}
	logWriter.Flush()
}

// Filters the catalog in the request body. Parameters limit, fwhm, ra and dec
// come from the query string. Replies with the filtered catalog, or an error and no catalog.
func (s *server) postTaper(c *gin.Context) {
	args := []string{c.Query("limit"), c.Query("fwhm"), c.Query("ra"), c.Query("dec")}
	var out bytes.Buffer
	ctx := *s.base
	ctx.Log = io.Discard
	op := ops.NewOpTaper(args, c.Request.Body, &out)
	if err := ops.Run(c.Request.Context(), op, &ctx); err != nil {
		status := http.StatusUnprocessableEntity
		var usage *taper.UsageError
		if errors.As(err, &usage) {
			status = http.StatusBadRequest
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}
	c.Header("X-Taper-Kept", fmt.Sprint(op.Stats.Kept))
	c.Header("X-Taper-Dropped", fmt.Sprint(op.Stats.Dropped))
	c.Data(http.StatusOK, "text/plain; charset=utf-8", out.Bytes())
}
