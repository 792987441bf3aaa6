/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package pipeline

import (
	"context"
	"fmt"

	"github.com/chainguard-dev/clog"
	"go.opentelemetry.io/otel/attribute"

	"github.com/callgrade/callgrade/blueprint"
	"github.com/callgrade/callgrade/llmeval"
	"github.com/callgrade/callgrade/metrics"
	"github.com/callgrade/callgrade/rubric"
	"github.com/callgrade/callgrade/rules"
	"github.com/callgrade/callgrade/transcript"
)

// StageEvaluator is the model-judged half of an evaluation. llmeval.Evaluator
// implements it; tests substitute fakes.
type StageEvaluator interface {
	EvaluateStages(ctx context.Context, bp *blueprint.Blueprint, tr *transcript.Transcript, candidates llmeval.Candidates) (map[string]llmeval.StageEvaluation, error)
}

// Pipeline runs complete evaluations: deterministic rules, then the stage
// evaluator for model-judged behaviors, then rubric scoring, then assembly of
// the immutable record. A Pipeline holds no per-run state and is safe for
// concurrent use.
type Pipeline struct {
	engine    *rules.Engine
	evaluator StageEvaluator
	rubric    *rubric.Template
}

// Option configures a Pipeline.
type Option func(*Pipeline) error

// WithEvaluator supplies the stage evaluator. Required for blueprints with
// semantic or hybrid behaviors; a purely deterministic pipeline can run
// without one.
func WithEvaluator(ev StageEvaluator) Option {
	return func(p *Pipeline) error {
		if ev == nil {
			return fmt.Errorf("nil stage evaluator")
		}
		p.evaluator = ev
		return nil
	}
}

// WithRules replaces the default rule engine, e.g. to allow edit-distance
// tolerance in phrase matching.
func WithRules(e *rules.Engine) Option {
	return func(p *Pipeline) error {
		if e == nil {
			return fmt.Errorf("nil rule engine")
		}
		p.engine = e
		return nil
	}
}

// WithRubric sets the template used when a request names none. Without it,
// requests fall back to the blueprint's per-stage default template.
func WithRubric(t *rubric.Template) Option {
	return func(p *Pipeline) error {
		if t == nil {
			return fmt.Errorf("nil rubric template")
		}
		p.rubric = t
		return nil
	}
}

// New builds a Pipeline with an exact-match rule engine unless WithRules
// overrides it.
func New(opts ...Option) (*Pipeline, error) {
	engine, err := rules.New()
	if err != nil {
		return nil, err
	}
	p := &Pipeline{engine: engine}
	for _, opt := range opts {
		if err := opt(p); err != nil {
			return nil, err
		}
	}
	return p, nil
}

// Request is one evaluation of one transcript.
type Request struct {
	Strategy   Strategy
	Transcript *transcript.Transcript

	// Rubric overrides the pipeline's template for this run. Nil selects
	// the pipeline template, then the blueprint's default.
	Rubric *rubric.Template
}

// Run evaluates the transcript and returns the assembled record. The phases
// run in dependency order; a ConfigError means the setup was unusable and
// nothing was evaluated. Cancellation surfaces as the context's error with no
// record produced: records are only ever complete.
func (p *Pipeline) Run(ctx context.Context, req Request) (*FinalEvaluation, error) {
	bp := req.Strategy.Blueprint()
	if bp == nil {
		return nil, configErrorf("no evaluation strategy selected")
	}
	if req.Transcript == nil {
		return nil, configErrorf("nil transcript")
	}
	if err := req.Transcript.Validate(); err != nil {
		return nil, &ConfigError{Err: fmt.Errorf("invalid transcript: %w", err)}
	}

	ctx, span := startSpan(ctx, "evaluation.run",
		attribute.String("blueprint.id", bp.ID),
		attribute.String("blueprint.version", bp.Version),
		attribute.String("call.id", req.Transcript.CallID),
		attribute.String("strategy", req.Strategy.Name()),
	)
	fe, err := p.run(ctx, bp, req)
	endSpan(span, err)
	if err != nil {
		return nil, err
	}

	m := metrics.NewPipeline(bp.ID)
	m.RecordEvaluation(string(fe.Status), fe.OverallScore)
	for _, v := range fe.CriticalViolations {
		m.RecordCriticalViolation(string(v.Action))
	}

	clog.FromContext(ctx).With(
		"blueprint", bp.ID,
		"call", fe.CallID,
		"status", string(fe.Status),
	).Infof("Evaluation finished with overall score %.1f", fe.OverallScore)
	return fe, nil
}

func (p *Pipeline) run(ctx context.Context, bp *blueprint.Blueprint, req Request) (*FinalEvaluation, error) {
	tr := req.Transcript

	_, rulesSpan := startSpan(ctx, "evaluation.rules")
	det, err := p.engine.Evaluate(bp, tr)
	endSpan(rulesSpan, err)
	if err != nil {
		return nil, &ConfigError{Err: err}
	}

	var evals map[string]llmeval.StageEvaluation
	if req.Strategy.ModelAssisted() {
		candidates := modelCandidates(bp, det)
		if len(candidates) > 0 {
			if p.evaluator == nil {
				return nil, configErrorf("blueprint %q has model-evaluated behaviors but no stage evaluator is configured", bp.ID)
			}
			mctx, modelSpan := startSpan(ctx, "evaluation.model")
			evals, err = p.evaluator.EvaluateStages(mctx, bp, tr, candidates)
			endSpan(modelSpan, err)
			if err != nil {
				return nil, fmt.Errorf("evaluating stages: %w", err)
			}
		}
	}

	tmpl := req.Rubric
	if tmpl == nil {
		tmpl = p.rubric
	}
	if tmpl == nil {
		tmpl = rubric.DefaultTemplate(bp)
	}

	_, scoreSpan := startSpan(ctx, "evaluation.score")
	res, err := rubric.Score(tmpl, bp, det, evals)
	endSpan(scoreSpan, err)
	if err != nil {
		return nil, &ConfigError{Err: err}
	}

	return assemble(bp, tr, req.Strategy, det, evals, res), nil
}

// modelCandidates lists per stage the behaviors the evaluator must judge:
// applicable semantic behaviors, plus applicable hybrid behaviors whose
// deterministic fast path found nothing.
func modelCandidates(bp *blueprint.Blueprint, det *rules.Output) llmeval.Candidates {
	candidates := llmeval.Candidates{}
	for si := range bp.Stages {
		st := &bp.Stages[si]
		for bi := range st.Behaviors {
			b := &st.Behaviors[bi]
			if !b.ModelEvaluated() || !det.Applicable(b.ID) {
				continue
			}
			if b.Detection == blueprint.Hybrid {
				if r, ok := det.Results[b.ID]; ok && r.Detected {
					continue
				}
			}
			candidates[st.Name] = append(candidates[st.Name], b.ID)
		}
	}
	return candidates
}
