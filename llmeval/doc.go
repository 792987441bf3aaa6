/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

/*
Package llmeval runs the model-judged half of a call evaluation: for each
stage of a blueprint it sends one bounded, redacted prompt to a model and
collects a per-behavior finding with a calibrated confidence.

# Failure semantics

A stage call can time out, be rejected by the provider, or come back as text
the strict parser refuses. None of those abort an evaluation. The stage is
marked ModelCallSucceeded=false, every candidate behavior gets an all-false
zero-confidence finding, and a coarse warning is attached for the final
record. Raw provider errors are logged, never returned to callers or
persisted. Rate limit errors are the one class retried, inside the provider
clients, with exponential backoff.

# Providers

Three ModelClient implementations ship with the package:

  - ClaudeClient streams messages from the Anthropic API.
  - GeminiClient uses the Gemini API with a response schema, so conforming
    replies arrive as bare JSON.
  - OpenAIClient uses chat completions with a strict json_schema response
    format.

All three default to temperature 0.1 and take the same retry configuration.
Anything implementing ModelClient works; tests use canned clients.

# Redaction

The evaluator redacts the conversation window itself before prompt assembly
and discards the mapping. Caller PII never reaches a provider, and the
findings a model returns contain placeholders like [NAME_1] wherever it
quotes the transcript.
*/
package llmeval
