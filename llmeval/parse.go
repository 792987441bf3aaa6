/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package llmeval

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// stageResponse is the wire shape of a stage call reply.
type stageResponse struct {
	Findings []BehaviorFinding `json:"findings" jsonschema:"required" jsonschema_description:"Exactly one finding per listed behavior."`
}

// extractJSON pulls the JSON payload out of a model reply that may wrap it in
// a markdown code fence.
func extractJSON(text string) string {
	// Prefer an explicit ```json fence anywhere in the reply.
	if _, after, found := strings.Cut(text, "```json\n"); found {
		if body, _, closed := strings.Cut(after, "```"); closed {
			return strings.TrimSpace(body)
		}
		return strings.TrimSpace(after)
	}

	// Otherwise strip any bare fence wrapping. These do nothing if the
	// markers aren't there.
	trimmed := strings.TrimSpace(text)
	trimmed = strings.TrimPrefix(trimmed, "```json")
	trimmed = strings.TrimPrefix(trimmed, "```")
	trimmed = strings.TrimSuffix(trimmed, "```")
	return strings.TrimSpace(trimmed)
}

// parseStageResponse decodes and validates a stage reply. The reply must
// contain exactly one finding for each candidate behavior id and nothing
// else; anything looser is rejected rather than repaired, except confidence,
// which is clamped into [0, 1].
func parseStageResponse(raw string, ids []string) (map[string]BehaviorFinding, error) {
	text := extractJSON(raw)
	if text == "" {
		return nil, errors.New("empty response")
	}

	dec := json.NewDecoder(strings.NewReader(text))
	dec.DisallowUnknownFields()
	var resp stageResponse
	if err := dec.Decode(&resp); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}
	if dec.More() {
		return nil, errors.New("trailing content after JSON object")
	}

	want := make(map[string]bool, len(ids))
	for _, id := range ids {
		want[id] = true
	}

	findings := make(map[string]BehaviorFinding, len(ids))
	for _, f := range resp.Findings {
		if !want[f.BehaviorID] {
			return nil, fmt.Errorf("finding for unknown behavior %q", f.BehaviorID)
		}
		if _, dup := findings[f.BehaviorID]; dup {
			return nil, fmt.Errorf("duplicate finding for behavior %q", f.BehaviorID)
		}
		if f.Confidence < 0 {
			f.Confidence = 0
		}
		if f.Confidence > 1 {
			f.Confidence = 1
		}
		findings[f.BehaviorID] = f
	}
	for _, id := range ids {
		if _, ok := findings[id]; !ok {
			return nil, fmt.Errorf("missing finding for behavior %q", id)
		}
	}
	return findings, nil
}
