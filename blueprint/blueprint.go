/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package blueprint

// BehaviorType classifies how a behavior contributes to scoring.
type BehaviorType string

const (
	// Required behaviors must be present; absence costs their weight.
	Required BehaviorType = "required"
	// Optional behaviors add signal but never produce violations.
	Optional BehaviorType = "optional"
	// Forbidden behaviors must be absent; detection applies a rubric penalty.
	Forbidden BehaviorType = "forbidden"
	// Critical behaviors are compliance-bearing; absence triggers the
	// behavior's CriticalAction.
	Critical BehaviorType = "critical"
)

// DetectionMode selects which detector establishes a behavior's presence.
type DetectionMode string

const (
	// Semantic behaviors are established by the LLM stage evaluator only.
	Semantic DetectionMode = "semantic"
	// ExactPhrase behaviors are established by the deterministic rule
	// engine only.
	ExactPhrase DetectionMode = "exact_phrase"
	// Hybrid behaviors take a deterministic fast path and fall back to the
	// LLM evaluator when no phrase matched.
	Hybrid DetectionMode = "hybrid"
)

// CriticalAction is the consequence of an unsatisfied critical behavior.
type CriticalAction string

const (
	// FailStage zeroes the stage's score contribution.
	FailStage CriticalAction = "fail_stage"
	// FailOverall forces the evaluation to a failing outcome regardless of
	// the numeric score.
	FailOverall CriticalAction = "fail_overall"
	// FlagOnly records the violation without affecting scores.
	FlagOnly CriticalAction = "flag_only"
)

// OrderingPolicy controls how stage-order violations are treated.
type OrderingPolicy string

const (
	// OrderingAdvisory records order violations in the explanation only.
	OrderingAdvisory OrderingPolicy = "advisory"
	// OrderingCritical treats order violations as critical violations with
	// a fail_overall action.
	OrderingCritical OrderingPolicy = "critical"
)

// Condition gates a behavior on the conversation mentioning one of the
// trigger phrases. A behavior whose condition never triggers is not
// applicable: it is excluded from its stage's weighting and cannot violate.
type Condition struct {
	TriggerPhrases []string `json:"trigger_phrases" yaml:"trigger_phrases"`
}

// Behavior is one observable agent action within a stage.
type Behavior struct {
	ID          string        `json:"id" yaml:"id"`
	Name        string        `json:"name" yaml:"name"`
	Description string        `json:"description,omitempty" yaml:"description,omitempty"`
	Type        BehaviorType  `json:"type" yaml:"type"`
	Detection   DetectionMode `json:"detection" yaml:"detection"`

	// Phrases are the literal variants for exact_phrase and hybrid
	// detection. Matching is case-insensitive on collapsed whitespace.
	Phrases []string `json:"phrases,omitempty" yaml:"phrases,omitempty"`

	// Weight is this behavior's share of the stage score. Scoreable
	// behaviors within a stage sum to 100; forbidden behaviors carry no
	// weight (they act as penalties instead).
	Weight float64 `json:"weight,omitempty" yaml:"weight,omitempty"`

	// CriticalAction applies only to Critical behaviors. Compiles to
	// FailOverall when left empty.
	CriticalAction CriticalAction `json:"critical_action,omitempty" yaml:"critical_action,omitempty"`

	// MaxElapsed, when positive, requires the behavior to occur within
	// this many seconds of call start. Only enforced for deterministic
	// matches on timed segments.
	MaxElapsed float64 `json:"max_elapsed,omitempty" yaml:"max_elapsed,omitempty"`

	Condition *Condition `json:"condition,omitempty" yaml:"condition,omitempty"`
}

// Deterministic reports whether the rule engine scans for this behavior.
func (b *Behavior) Deterministic() bool {
	return b.Detection == ExactPhrase || b.Detection == Hybrid
}

// ModelEvaluated reports whether the LLM stage evaluator may establish this
// behavior's presence.
func (b *Behavior) ModelEvaluated() bool {
	return b.Detection == Semantic || b.Detection == Hybrid
}

// Scoreable reports whether the behavior participates in the stage's
// weighted sum.
func (b *Behavior) Scoreable() bool {
	return b.Type != Forbidden
}

// Stage is a phase of the call with an expected position and its own
// behavior checklist.
type Stage struct {
	Name string `json:"name" yaml:"name"`

	// OrderingIndex is the stage's expected position, contiguous from 1.
	OrderingIndex int `json:"ordering_index" yaml:"ordering_index"`

	// Weight is the stage's share of blueprint-level weighting. Stage
	// weights sum to 100.
	Weight float64 `json:"weight" yaml:"weight"`

	Behaviors []Behavior `json:"behaviors" yaml:"behaviors"`
}

// Behavior returns the stage's behavior with the given ID, or nil.
func (s *Stage) Behavior(id string) *Behavior {
	for i := range s.Behaviors {
		if s.Behaviors[i].ID == id {
			return &s.Behaviors[i]
		}
	}
	return nil
}

// Blueprint is the compiled evaluation plan for one call type. Compile
// produces it from a Draft; treat it as immutable afterwards.
type Blueprint struct {
	ID       string `json:"id" yaml:"id"`
	Version  string `json:"version" yaml:"version"`
	Language string `json:"language,omitempty" yaml:"language,omitempty"`

	// Retention is the record retention policy label carried through to
	// persisted evaluations, e.g. "90d".
	Retention string `json:"retention,omitempty" yaml:"retention,omitempty"`

	// PassThreshold is the minimum overall score to pass. Compiles to 70
	// when left zero.
	PassThreshold float64 `json:"pass_threshold,omitempty" yaml:"pass_threshold,omitempty"`

	// Ordering selects how stage-order violations are treated. Compiles
	// to OrderingAdvisory when left empty.
	Ordering OrderingPolicy `json:"ordering_policy,omitempty" yaml:"ordering_policy,omitempty"`

	// Stages are sorted by OrderingIndex after compilation.
	Stages []Stage `json:"stages" yaml:"stages"`
}

// Stage returns the stage with the given name, or nil.
func (bp *Blueprint) Stage(name string) *Stage {
	for i := range bp.Stages {
		if bp.Stages[i].Name == name {
			return &bp.Stages[i]
		}
	}
	return nil
}

// FindBehavior returns the stage and behavior for the given behavior ID, or
// nils when no stage defines it.
func (bp *Blueprint) FindBehavior(id string) (*Stage, *Behavior) {
	for i := range bp.Stages {
		if b := bp.Stages[i].Behavior(id); b != nil {
			return &bp.Stages[i], b
		}
	}
	return nil, nil
}

// ModelStages returns the stages holding at least one behavior the LLM
// evaluator may establish.
func (bp *Blueprint) ModelStages() []Stage {
	var out []Stage
	for _, st := range bp.Stages {
		for i := range st.Behaviors {
			if st.Behaviors[i].ModelEvaluated() {
				out = append(out, st)
				break
			}
		}
	}
	return out
}
