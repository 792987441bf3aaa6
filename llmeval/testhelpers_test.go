/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package llmeval_test

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/callgrade/callgrade/blueprint"
	"github.com/callgrade/callgrade/llmeval"
	"github.com/callgrade/callgrade/transcript"
)

// callRecord captures one Complete invocation.
type callRecord struct {
	system string
	user   string
}

// mockModelClient returns canned replies keyed by stage name. The stage is
// recovered from the prompt itself, which doubles as a check that the stage
// context made it into the prompt.
type mockModelClient struct {
	mu          sync.Mutex
	replies     map[string]string
	errs        map[string]error
	delay       time.Duration
	calls       []callRecord
	inFlight    int
	maxInFlight int
}

func (m *mockModelClient) Model() string { return "mock-model" }

func (m *mockModelClient) Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	m.mu.Lock()
	m.calls = append(m.calls, callRecord{system: systemPrompt, user: userPrompt})
	m.inFlight++
	if m.inFlight > m.maxInFlight {
		m.maxInFlight = m.inFlight
	}
	m.mu.Unlock()

	defer func() {
		m.mu.Lock()
		m.inFlight--
		m.mu.Unlock()
	}()

	if m.delay > 0 {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(m.delay):
		}
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	stage := stageNameFromPrompt(userPrompt)
	if err, ok := m.errs[stage]; ok {
		return "", err
	}
	if reply, ok := m.replies[stage]; ok {
		return reply, nil
	}
	return "", fmt.Errorf("no canned reply for stage %q", stage)
}

// getCalls returns a copy of recorded calls for thread-safe testing.
func (m *mockModelClient) getCalls() []callRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	calls := make([]callRecord, len(m.calls))
	copy(calls, m.calls)
	return calls
}

func (m *mockModelClient) getMaxInFlight() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.maxInFlight
}

// stageNameFromPrompt pulls the stage name out of the bound <stage> block.
func stageNameFromPrompt(user string) string {
	_, after, found := strings.Cut(user, "<name>")
	if !found {
		return ""
	}
	name, _, found := strings.Cut(after, "</name>")
	if !found {
		return ""
	}
	return name
}

// findingsReply builds a valid JSON reply marking every behavior present.
func findingsReply(t *testing.T, ids ...string) string {
	t.Helper()
	findings := make([]llmeval.BehaviorFinding, 0, len(ids))
	for _, id := range ids {
		findings = append(findings, llmeval.BehaviorFinding{
			BehaviorID: id,
			Present:    true,
			Confidence: 0.9,
			Rationale:  "the agent said so",
		})
	}
	b, err := json.Marshal(map[string]any{"findings": findings})
	if err != nil {
		t.Fatalf("marshaling reply: %v", err)
	}
	return string(b)
}

// semanticStage builds a stage whose behaviors all need a model judgment.
func semanticStage(name string, index int, ids ...string) blueprint.Stage {
	behaviors := make([]blueprint.Behavior, 0, len(ids))
	for _, id := range ids {
		behaviors = append(behaviors, blueprint.Behavior{
			ID:          id,
			Name:        id,
			Description: "whether the agent did " + id,
			Type:        blueprint.Required,
			Detection:   blueprint.Semantic,
			Weight:      100.0 / float64(len(ids)),
		})
	}
	return blueprint.Stage{
		Name:          name,
		OrderingIndex: index,
		Weight:        100,
		Behaviors:     behaviors,
	}
}

func compileBlueprint(t *testing.T, stages ...blueprint.Stage) *blueprint.Blueprint {
	t.Helper()
	for i := range stages {
		stages[i].Weight = 100.0 / float64(len(stages))
	}
	bp, err := blueprint.Compile(&blueprint.Draft{
		ID:      "bp-test",
		Version: "1",
		Stages:  stages,
	})
	if err != nil {
		t.Fatalf("Compile() = %v, wanted no error", err)
	}
	return bp
}

func testTranscript() *transcript.Transcript {
	return &transcript.Transcript{
		CallID: "call-7",
		Segments: []transcript.Segment{
			{Speaker: transcript.SpeakerAgent, Text: "Thank you for calling, how can I help?"},
			{Speaker: transcript.SpeakerCustomer, Text: "My bill is wrong."},
			{Speaker: transcript.SpeakerAgent, Text: "I can take care of that for you."},
		},
	}
}
