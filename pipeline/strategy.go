/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package pipeline

import "github.com/callgrade/callgrade/blueprint"

// Strategy selects how a call is evaluated. It is a tagged choice made once
// per request by the caller: Legacy runs the built-in deterministic
// checklist and never consults a model; BlueprintDriven evaluates against a
// compiled blueprint. The zero value is not a valid strategy.
type Strategy struct {
	legacy bool
	bp     *blueprint.Blueprint
}

// Legacy evaluates against the built-in checklist. Every legacy behavior is
// exact_phrase, so the model evaluator is never invoked.
func Legacy() Strategy {
	return Strategy{legacy: true}
}

// BlueprintDriven evaluates against a compiled blueprint.
func BlueprintDriven(bp *blueprint.Blueprint) Strategy {
	return Strategy{bp: bp}
}

// StrategyFor picks BlueprintDriven when a compiled blueprint exists for the
// call type and falls back to Legacy otherwise.
func StrategyFor(bp *blueprint.Blueprint) Strategy {
	if bp == nil {
		return Legacy()
	}
	return BlueprintDriven(bp)
}

// Blueprint returns the blueprint the strategy evaluates against, or nil for
// the invalid zero value.
func (s Strategy) Blueprint() *blueprint.Blueprint {
	if s.legacy {
		return blueprint.LegacyChecklist()
	}
	return s.bp
}

// ModelAssisted reports whether the strategy may call the stage evaluator.
func (s Strategy) ModelAssisted() bool {
	return !s.legacy
}

// Name is the strategy label recorded on the evaluation.
func (s Strategy) Name() string {
	if s.legacy {
		return "legacy"
	}
	return "blueprint"
}
