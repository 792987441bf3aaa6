/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package blueprint defines the evaluation plan for a call type: ordered
// stages, the behaviors expected within each stage, and the weights and
// policies that drive scoring.
//
// Blueprints are authored as YAML drafts and compiled before use. The
// compiler validates structure (unique contiguous ordering indexes, weight
// sums, phrase requirements, contradictions between required and forbidden
// phrases), fills defaults, and emits a form the rest of the pipeline
// treats as immutable for the lifetime of an evaluation.
package blueprint
