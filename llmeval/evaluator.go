/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package llmeval

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/chainguard-dev/clog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	oteltrace "go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/callgrade/callgrade/blueprint"
	"github.com/callgrade/callgrade/metrics"
	"github.com/callgrade/callgrade/redact"
	"github.com/callgrade/callgrade/transcript"
)

// BehaviorFinding is the model's judgment on a single behavior within a
// stage. Confidence is the model's own estimate in [0, 1]; the scorer
// multiplies it into the behavior score rather than trusting Present alone.
type BehaviorFinding struct {
	BehaviorID string  `json:"behavior_id" jsonschema:"required" jsonschema_description:"The id of the behavior this finding is about, copied exactly from the behavior list."`
	Present    bool    `json:"present" jsonschema:"required" jsonschema_description:"Whether the agent exhibited the behavior anywhere in the conversation."`
	Confidence float64 `json:"confidence" jsonschema:"required" jsonschema_description:"Confidence in the present judgment, between 0.0 and 1.0."`
	Rationale  string  `json:"rationale" jsonschema:"required" jsonschema_description:"One or two sentences quoting or paraphrasing the evidence for the judgment."`
}

// StageEvaluation is the outcome of one stage's model call. When the call or
// its response parsing fails, ModelCallSucceeded is false, every candidate
// behavior gets an all-false zero-confidence finding, and Warning carries a
// coarse reason suitable for the final record.
type StageEvaluation struct {
	StageName          string                     `json:"stage_name"`
	ModelCallSucceeded bool                       `json:"model_call_succeeded"`
	Findings           map[string]BehaviorFinding `json:"findings"`
	Warning            string                     `json:"warning,omitempty"`
}

// ModelClient is the narrow surface the evaluator needs from a provider.
// Complete sends one system+user exchange and returns the raw text of the
// model's reply.
type ModelClient interface {
	Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error)
	Model() string
}

// Candidates maps a stage name to the behavior ids that still need a model
// judgment for that stage: semantic behaviors, plus hybrid behaviors the
// deterministic pass did not detect.
type Candidates map[string][]string

const (
	defaultMaxConcurrent = 4
	defaultCallTimeout   = 90 * time.Second
)

// Evaluator runs per-stage model calls against a single provider.
type Evaluator struct {
	client        ModelClient
	window        Window
	maxConcurrent int
	callTimeout   time.Duration
	metrics       *metrics.Model
}

// Option is a function that modifies the evaluator.
type Option func(e *Evaluator) error

// WithWindow sets the windowing strategy for stage prompts.
func WithWindow(w Window) Option {
	return func(e *Evaluator) error {
		if w == nil {
			return errors.New("window cannot be nil")
		}
		e.window = w
		return nil
	}
}

// WithMaxConcurrent bounds how many stage calls run at once.
func WithMaxConcurrent(n int) Option {
	return func(e *Evaluator) error {
		if n <= 0 {
			return fmt.Errorf("maxConcurrent must be positive, got %d", n)
		}
		e.maxConcurrent = n
		return nil
	}
}

// WithCallTimeout sets the per-call deadline. A call that exceeds it is
// recorded as a recoverable failure, never retried.
func WithCallTimeout(d time.Duration) Option {
	return func(e *Evaluator) error {
		if d <= 0 {
			return fmt.Errorf("callTimeout must be positive, got %v", d)
		}
		e.callTimeout = d
		return nil
	}
}

// NewEvaluator creates an evaluator backed by the given client.
func NewEvaluator(client ModelClient, opts ...Option) (*Evaluator, error) {
	if client == nil {
		return nil, errors.New("client cannot be nil")
	}
	e := &Evaluator{
		client:        client,
		window:        FullTranscript{},
		maxConcurrent: defaultMaxConcurrent,
		callTimeout:   defaultCallTimeout,
		metrics:       metrics.NewModel("callgrade/llmeval"),
	}
	for _, opt := range opts {
		if err := opt(e); err != nil {
			return nil, err
		}
	}
	return e, nil
}

// EvaluateStages runs one model call per stage that has candidate behaviors,
// at most maxConcurrent at a time. Per-stage failures (timeouts, provider
// errors, malformed responses) are folded into the returned evaluations as
// recoverable warnings; the error return is reserved for cancellation and
// for inputs that could never produce a meaningful run.
func (e *Evaluator) EvaluateStages(ctx context.Context, bp *blueprint.Blueprint, tr *transcript.Transcript, candidates Candidates) (map[string]StageEvaluation, error) {
	if bp == nil {
		return nil, errors.New("blueprint cannot be nil")
	}
	if tr == nil {
		return nil, errors.New("transcript cannot be nil")
	}
	for name, ids := range candidates {
		stage := bp.Stage(name)
		if stage == nil {
			return nil, fmt.Errorf("candidates name stage %q not in blueprint %q", name, bp.ID)
		}
		for _, id := range ids {
			if stage.Behavior(id) == nil {
				return nil, fmt.Errorf("candidates name behavior %q not in stage %q", id, name)
			}
		}
	}

	evals := make(map[string]StageEvaluation, len(candidates))
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.maxConcurrent)
	for _, stage := range bp.Stages {
		ids := candidates[stage.Name]
		if len(ids) == 0 {
			continue
		}
		g.Go(func() error {
			eval, err := e.evaluateStage(gctx, bp, &stage, tr, ids)
			if err != nil {
				return err
			}
			mu.Lock()
			evals[stage.Name] = eval
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return evals, nil
}

// evaluateStage makes a single stage call and normalizes every failure mode
// into a recoverable StageEvaluation. Only cancellation of the parent
// context escapes as an error.
func (e *Evaluator) evaluateStage(ctx context.Context, bp *blueprint.Blueprint, stage *blueprint.Stage, tr *transcript.Transcript, ids []string) (StageEvaluation, error) {
	tracer := otel.Tracer("callgrade/llmeval", oteltrace.WithInstrumentationVersion("1.0.0"))
	ctx, span := tracer.Start(ctx, "evaluation.stage_call", oteltrace.WithAttributes(
		attribute.String("stage", stage.Name),
		attribute.String("model", e.client.Model()),
		attribute.Int("behaviors", len(ids)),
	))
	defer span.End()

	log := clog.FromContext(ctx).With("stage", stage.Name, "model", e.client.Model())

	// Nothing leaves the process unredacted. The mapping is discarded:
	// model calls only ever see placeholders.
	window, _ := redact.Redact(e.window.Extract(tr, stage))

	system, user, err := buildStagePrompt(bp, stage, ids, window)
	if err != nil {
		err = fmt.Errorf("building prompt for stage %q: %w", stage.Name, err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return StageEvaluation{}, err
	}

	callCtx, cancel := context.WithTimeout(ctx, e.callTimeout)
	defer cancel()
	raw, err := e.client.Complete(callCtx, system, user)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		if ctx.Err() != nil {
			return StageEvaluation{}, ctx.Err()
		}
		warning := "model call failed"
		if errors.Is(err, context.DeadlineExceeded) {
			warning = "model call timed out"
		}
		log.Warnf("stage call failed: %v", err)
		e.metrics.RecordCall(ctx, e.client.Model(), stage.Name, false)
		return failedStageEvaluation(stage.Name, ids, warning), nil
	}

	findings, err := parseStageResponse(raw, ids)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		log.Warnf("stage response rejected: %v", err)
		e.metrics.RecordCall(ctx, e.client.Model(), stage.Name, false)
		e.metrics.RecordParseFailure(ctx, e.client.Model(), stage.Name)
		return failedStageEvaluation(stage.Name, ids, "response failed strict parsing"), nil
	}

	span.SetStatus(codes.Ok, "")
	e.metrics.RecordCall(ctx, e.client.Model(), stage.Name, true)
	return StageEvaluation{
		StageName:          stage.Name,
		ModelCallSucceeded: true,
		Findings:           findings,
	}, nil
}

// failedStageEvaluation is the conservative stand-in when no trustworthy
// model judgment exists: every candidate behavior is marked absent with
// zero confidence.
func failedStageEvaluation(stageName string, ids []string, warning string) StageEvaluation {
	findings := make(map[string]BehaviorFinding, len(ids))
	for _, id := range ids {
		findings[id] = BehaviorFinding{
			BehaviorID: id,
			Present:    false,
			Confidence: 0,
		}
	}
	return StageEvaluation{
		StageName:          stageName,
		ModelCallSucceeded: false,
		Findings:           findings,
		Warning:            warning,
	}
}
