/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package httpapi exposes evaluations over HTTP. Handlers bind JSON and map
// errors to status codes; everything else belongs to the pipeline and runs
// packages.
package httpapi

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/callgrade/callgrade/blueprint"
	"github.com/callgrade/callgrade/pipeline"
	"github.com/callgrade/callgrade/report"
	"github.com/callgrade/callgrade/rubric"
	"github.com/callgrade/callgrade/runs"
	"github.com/callgrade/callgrade/transcript"
)

// Server routes evaluation requests to the runner and reads runs back out of
// the store.
type Server struct {
	router *gin.Engine
	store  *runs.Store
	runner *runs.Runner
	source transcript.Source
}

// Option configures a Server.
type Option func(*Server) error

// WithTranscriptSource lets callers evaluate by call_id instead of inlining
// the transcript; the server fetches it from the source.
func WithTranscriptSource(src transcript.Source) Option {
	return func(s *Server) error {
		if src == nil {
			return fmt.Errorf("transcript source cannot be nil")
		}
		s.source = src
		return nil
	}
}

// NewServer wires the HTTP surface over a run store and runner.
func NewServer(store *runs.Store, runner *runs.Runner, opts ...Option) (*Server, error) {
	if store == nil {
		return nil, fmt.Errorf("server requires a store")
	}
	if runner == nil {
		return nil, fmt.Errorf("server requires a runner")
	}
	s := &Server{
		router: gin.New(),
		store:  store,
		runner: runner,
	}
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}
	s.router.Use(gin.Recovery())
	s.routes()
	return s, nil
}

// Handler returns the router for mounting in an http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) routes() {
	s.router.GET("/healthz", s.health)
	s.router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := s.router.Group("/v1")
	{
		v1.POST("/evaluations", s.createEvaluation)
		v1.POST("/blueprints/validate", s.validateBlueprint)
		v1.GET("/runs/:id", s.getRun)
		v1.GET("/runs/:id/result", s.getResult)
		v1.GET("/runs/:id/report", s.getReport)
	}
}

// evaluationRequest is the POST /v1/evaluations body. A missing blueprint
// selects the legacy checklist; call_id fetches the transcript from the
// configured source when none is inlined.
type evaluationRequest struct {
	Blueprint  *blueprint.Draft       `json:"blueprint,omitempty"`
	Transcript *transcript.Transcript `json:"transcript,omitempty"`
	CallID     string                 `json:"call_id,omitempty"`
	Rubric     *rubric.Template       `json:"rubric,omitempty"`
}

func (s *Server) createEvaluation(c *gin.Context) {
	var req evaluationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("decoding request: %v", err)})
		return
	}

	strategy := pipeline.Legacy()
	if req.Blueprint != nil {
		bp, err := blueprint.Compile(req.Blueprint)
		if err != nil {
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": fmt.Sprintf("invalid blueprint: %v", err)})
			return
		}
		strategy = pipeline.BlueprintDriven(bp)
	}

	tr := req.Transcript
	if tr == nil && req.CallID != "" {
		if s.source == nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "no transcript source configured; inline the transcript"})
			return
		}
		fetched, err := s.source.Fetch(c.Request.Context(), req.CallID)
		if err != nil {
			respondError(c, &pipeline.HardFailure{Op: "transcript source", Err: err})
			return
		}
		tr = fetched
	}

	preq := pipeline.Request{
		Strategy:   strategy,
		Transcript: tr,
		Rubric:     req.Rubric,
	}

	if c.Query("mode") == "async" {
		run, err := s.runner.Submit(c.Request.Context(), preq)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusAccepted, run)
		return
	}

	run, err := s.runner.RunSync(c.Request.Context(), preq)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, run)
}

// validateBlueprint compiles a draft without evaluating anything, returning
// the normalized blueprint. The body is YAML, which also admits JSON.
func (s *Server) validateBlueprint(c *gin.Context) {
	raw, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("reading body: %v", err)})
		return
	}
	draft, err := blueprint.ParseDraft(raw)
	if err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		return
	}
	bp, err := blueprint.Compile(draft)
	if err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, bp)
}

func (s *Server) getRun(c *gin.Context) {
	run, ok := s.lookup(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, run)
}

func (s *Server) getResult(c *gin.Context) {
	run, ok := s.lookup(c)
	if !ok {
		return
	}
	if run.Result == nil {
		respondNoResult(c, run)
		return
	}
	c.JSON(http.StatusOK, run.Result)
}

func (s *Server) getReport(c *gin.Context) {
	run, ok := s.lookup(c)
	if !ok {
		return
	}
	if run.Result == nil {
		respondNoResult(c, run)
		return
	}
	c.Data(http.StatusOK, "text/markdown; charset=utf-8", []byte(report.Markdown(run.Result)))
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// lookup reads the run named in the path, writing the error response itself
// when there is none to return.
func (s *Server) lookup(c *gin.Context) (*runs.Run, bool) {
	run, err := s.store.Get(c.Request.Context(), c.Param("id"))
	if errors.Is(err, runs.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "run not found"})
		return nil, false
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return nil, false
	}
	return run, true
}

// respondNoResult answers result reads for runs that have none: still in
// flight, or hard-failed before an evaluation existed.
func respondNoResult(c *gin.Context, run *runs.Run) {
	if run.Status.Terminal() {
		c.JSON(http.StatusGone, gin.H{
			"status":      run.Status,
			"explanation": run.Explanation,
			"error":       "run finished without a result",
		})
		return
	}
	c.JSON(http.StatusConflict, gin.H{
		"status": run.Status,
		"error":  "run is not finished",
	})
}

// respondError maps the pipeline's error taxonomy onto status codes.
func respondError(c *gin.Context, err error) {
	var ce *pipeline.ConfigError
	if errors.As(err, &ce) {
		c.JSON(http.StatusBadRequest, gin.H{"error": ce.Error()})
		return
	}
	var hf *pipeline.HardFailure
	if errors.As(err, &hf) {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": hf.Error()})
		return
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
}
