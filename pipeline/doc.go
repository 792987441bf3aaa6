/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package pipeline orchestrates one complete call evaluation and assembles
// the immutable FinalEvaluation record.
//
// # Phases
//
// Run executes the phases in fixed dependency order: the deterministic rule
// engine, the model-backed stage evaluator, the rubric scorer, and the
// assembler. Each phase consumes the previous one's output. The rule
// engine's results select the evaluator's candidates (semantic behaviors,
// plus hybrid behaviors the deterministic fast path missed), so a purely
// deterministic blueprint never touches a model. Stage evaluation is the
// only phase that performs I/O and the only one allowed to degrade instead
// of fail: a stage whose model call fails is scored on deterministic
// evidence alone and the explanation says so.
//
// # Strategies
//
// The caller picks a Strategy once per request: Legacy evaluates the
// built-in deterministic checklist (no blueprint, no model calls);
// BlueprintDriven evaluates a compiled blueprint. StrategyFor selects
// between them based on whether a blueprint exists for the call type.
//
// # Error taxonomy
//
// A ConfigError means the setup was unusable (invalid blueprint,
// transcript, or rubric) and nothing was evaluated. A HardFailure means an
// upstream collaborator such as the transcript source or the run store was
// unavailable; the runs and httpapi packages, which own those
// collaborators, produce it and map it to status failed_hard. Critical
// violations are not errors at all: they are first-class outcomes recorded
// on the evaluation with status failed_critical. Raw provider and library
// errors never cross this package's boundary.
//
// # Records
//
// A FinalEvaluation is assembled exactly once per run and never mutated;
// corrections require a new run. All free text on the record, including
// model-authored rationales, passes through the redactor before assembly
// returns, so persisted evaluations never contain unmasked PII.
//
// # Thread safety
//
// A Pipeline holds no per-run state: every run works on an isolated
// snapshot of its inputs, so one Pipeline may evaluate many transcripts
// concurrently.
package pipeline
