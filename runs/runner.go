/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package runs

import (
	"context"
	"fmt"

	"github.com/chainguard-dev/clog"
	"golang.org/x/sync/errgroup"

	"github.com/callgrade/callgrade/blueprint"
	"github.com/callgrade/callgrade/pipeline"
)

const defaultWorkers = 4

// Runner executes submitted evaluations on a bounded worker pool and records
// every outcome in the store. Submitted work is detached from the caller's
// cancellation: once a run row exists, the run reaches a terminal status even
// if the submitter goes away.
type Runner struct {
	store    *Store
	pipeline *pipeline.Pipeline
	group    errgroup.Group
}

// RunnerOption configures a Runner.
type RunnerOption func(*Runner) error

// WithWorkers bounds how many evaluations execute at once.
func WithWorkers(n int) RunnerOption {
	return func(r *Runner) error {
		if n < 1 {
			return fmt.Errorf("workers must be positive, got %d", n)
		}
		r.group.SetLimit(n)
		return nil
	}
}

// NewRunner returns a Runner executing on the given store and pipeline.
func NewRunner(store *Store, p *pipeline.Pipeline, opts ...RunnerOption) (*Runner, error) {
	if store == nil {
		return nil, fmt.Errorf("runner requires a store")
	}
	if p == nil {
		return nil, fmt.Errorf("runner requires a pipeline")
	}
	r := &Runner{store: store, pipeline: p}
	r.group.SetLimit(defaultWorkers)
	for _, opt := range opts {
		if err := opt(r); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Submit validates the request, records a pending run, and schedules it. The
// returned run is the pending row; poll Get for the terminal state. Submit
// blocks only while every worker is busy.
func (r *Runner) Submit(ctx context.Context, req pipeline.Request) (*Run, error) {
	bp, err := validate(req)
	if err != nil {
		return nil, err
	}
	run, err := r.store.Create(ctx, req.Transcript.CallID, bp.ID)
	if err != nil {
		return nil, &pipeline.HardFailure{Op: "run store", Err: err}
	}

	// The evaluation outlives the submitting request: keep the caller's
	// values (logger, trace) but not its cancellation.
	dctx := context.WithoutCancel(ctx)
	r.group.Go(func() error {
		r.execute(dctx, run.ID, req)
		return nil
	})
	return run, nil
}

// RunSync evaluates in the caller's context and persists the outcome before
// returning the terminal run.
func (r *Runner) RunSync(ctx context.Context, req pipeline.Request) (*Run, error) {
	bp, err := validate(req)
	if err != nil {
		return nil, err
	}
	run, err := r.store.Create(ctx, req.Transcript.CallID, bp.ID)
	if err != nil {
		return nil, &pipeline.HardFailure{Op: "run store", Err: err}
	}
	if err := r.store.Start(ctx, run.ID); err != nil {
		return nil, &pipeline.HardFailure{Op: "run store", Err: err}
	}

	fe, err := r.pipeline.Run(ctx, req)
	if err != nil {
		// The context may already be cancelled; the row still has to
		// reach a terminal state.
		fctx := context.WithoutCancel(ctx)
		if ferr := r.store.FailHard(fctx, run.ID, fmt.Sprintf("evaluation did not run: %v", err)); ferr != nil {
			clog.FromContext(ctx).With("run", run.ID).Errorf("Marking run failed: %v", ferr)
		}
		return nil, err
	}
	if err := r.store.CommitResult(ctx, run.ID, fe); err != nil {
		return nil, &pipeline.HardFailure{Op: "run store", Err: err}
	}

	run.Status = Status(fe.Status)
	run.Explanation = fe.Explanation
	run.Result = fe
	return run, nil
}

// Wait blocks until every submitted run has reached a terminal state. Call it
// on shutdown after refusing new submissions.
func (r *Runner) Wait() {
	// Workers always return nil; failures land in the store.
	_ = r.group.Wait()
}

func (r *Runner) execute(ctx context.Context, id string, req pipeline.Request) {
	log := clog.FromContext(ctx).With("run", id)
	if err := r.store.Start(ctx, id); err != nil {
		log.Errorf("Starting run: %v", err)
		return
	}
	fe, err := r.pipeline.Run(ctx, req)
	if err != nil {
		log.Warnf("Run did not produce an evaluation: %v", err)
		if ferr := r.store.FailHard(ctx, id, fmt.Sprintf("evaluation did not run: %v", err)); ferr != nil {
			log.Errorf("Marking run failed: %v", ferr)
		}
		return
	}
	if err := r.store.CommitResult(ctx, id, fe); err != nil {
		log.Errorf("Committing run result: %v", err)
	}
}

// validate rejects requests the pipeline would refuse, before a row exists
// for them.
func validate(req pipeline.Request) (*blueprint.Blueprint, error) {
	bp := req.Strategy.Blueprint()
	if bp == nil {
		return nil, &pipeline.ConfigError{Err: fmt.Errorf("no evaluation strategy selected")}
	}
	if req.Transcript == nil {
		return nil, &pipeline.ConfigError{Err: fmt.Errorf("no transcript provided")}
	}
	if err := req.Transcript.Validate(); err != nil {
		return nil, &pipeline.ConfigError{Err: fmt.Errorf("invalid transcript: %w", err)}
	}
	return bp, nil
}
