/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package llmeval

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestParseStageResponse(t *testing.T) {
	ids := []string{"greet", "empathy"}

	tests := []struct {
		name    string
		raw     string
		wantErr bool
	}{{
		name: "bare object",
		raw:  `{"findings": [{"behavior_id": "greet", "present": true, "confidence": 0.9, "rationale": "quoted"}, {"behavior_id": "empathy", "present": false, "confidence": 0.8, "rationale": "nothing in call"}]}`,
	}, {
		name: "json fence",
		raw: "Here you go:\n```json\n" +
			`{"findings": [{"behavior_id": "greet", "present": true, "confidence": 0.9, "rationale": "quoted"}, {"behavior_id": "empathy", "present": false, "confidence": 0.8, "rationale": "nothing in call"}]}` +
			"\n```\nLet me know if you need anything else.",
	}, {
		name: "bare fence",
		raw: "```\n" +
			`{"findings": [{"behavior_id": "greet", "present": true, "confidence": 0.9, "rationale": "quoted"}, {"behavior_id": "empathy", "present": false, "confidence": 0.8, "rationale": "nothing in call"}]}` +
			"\n```",
	}, {
		name:    "empty response",
		raw:     "",
		wantErr: true,
	}, {
		name:    "prose instead of JSON",
		raw:     "The agent greeted the caller warmly.",
		wantErr: true,
	}, {
		name:    "missing finding",
		raw:     `{"findings": [{"behavior_id": "greet", "present": true, "confidence": 0.9, "rationale": "quoted"}]}`,
		wantErr: true,
	}, {
		name: "unknown behavior",
		raw: `{"findings": [{"behavior_id": "greet", "present": true, "confidence": 0.9, "rationale": "q"},
			{"behavior_id": "empathy", "present": false, "confidence": 0.8, "rationale": "q"},
			{"behavior_id": "upsell", "present": true, "confidence": 0.9, "rationale": "q"}]}`,
		wantErr: true,
	}, {
		name: "duplicate finding",
		raw: `{"findings": [{"behavior_id": "greet", "present": true, "confidence": 0.9, "rationale": "q"},
			{"behavior_id": "greet", "present": false, "confidence": 0.1, "rationale": "q"}]}`,
		wantErr: true,
	}, {
		name:    "unknown top-level field",
		raw:     `{"findings": [], "overall": "great"}`,
		wantErr: true,
	}, {
		name:    "unknown finding field",
		raw:     `{"findings": [{"behavior_id": "greet", "present": true, "confidence": 0.9, "rationale": "q", "score": 100}]}`,
		wantErr: true,
	}, {
		name: "trailing content",
		raw: `{"findings": [{"behavior_id": "greet", "present": true, "confidence": 0.9, "rationale": "q"},
			{"behavior_id": "empathy", "present": false, "confidence": 0.8, "rationale": "q"}]} {"more": true}`,
		wantErr: true,
	}, {
		name:    "wrong shape",
		raw:     `[{"behavior_id": "greet", "present": true, "confidence": 0.9, "rationale": "q"}]`,
		wantErr: true,
	}}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			findings, err := parseStageResponse(tt.raw, ids)
			if tt.wantErr {
				if err == nil {
					t.Fatal("parseStageResponse() = nil, wanted an error")
				}
				return
			}
			if err != nil {
				t.Fatalf("parseStageResponse() = %v, wanted no error", err)
			}
			if len(findings) != len(ids) {
				t.Fatalf("len(findings): got = %d, wanted = %d", len(findings), len(ids))
			}
			if !findings["greet"].Present {
				t.Error("greet finding: got absent, wanted present")
			}
		})
	}
}

func TestParseStageResponseClampsConfidence(t *testing.T) {
	raw := `{"findings": [
		{"behavior_id": "greet", "present": true, "confidence": 1.7, "rationale": "q"},
		{"behavior_id": "empathy", "present": false, "confidence": -0.2, "rationale": "q"}]}`
	findings, err := parseStageResponse(raw, []string{"greet", "empathy"})
	if err != nil {
		t.Fatalf("parseStageResponse() = %v, wanted no error", err)
	}
	if got := findings["greet"].Confidence; got != 1 {
		t.Errorf("clamped high confidence: got = %v, wanted = %v", got, 1.0)
	}
	if got := findings["empathy"].Confidence; got != 0 {
		t.Errorf("clamped low confidence: got = %v, wanted = %v", got, 0.0)
	}
}

func TestExtractJSON(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{{
		name: "plain object",
		in:   `{"a": 1}`,
		want: `{"a": 1}`,
	}, {
		name: "surrounding whitespace",
		in:   "\n\n  {\"a\": 1}  \n",
		want: `{"a": 1}`,
	}, {
		name: "json fence with prose",
		in:   "Sure!\n```json\n{\"a\": 1}\n```\nanything else?",
		want: `{"a": 1}`,
	}, {
		name: "unclosed json fence",
		in:   "```json\n{\"a\": 1}",
		want: `{"a": 1}`,
	}, {
		name: "bare fence",
		in:   "```\n{\"a\": 1}\n```",
		want: `{"a": 1}`,
	}, {
		name: "empty fence",
		in:   "```json\n```",
		want: "",
	}}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if diff := cmp.Diff(tt.want, extractJSON(tt.in)); diff != "" {
				t.Errorf("extractJSON() mismatch (-want, +got):\n%s", diff)
			}
		})
	}
}
