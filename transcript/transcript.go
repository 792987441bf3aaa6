/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package transcript

import (
	"fmt"
	"strings"
)

// Speaker identifies who produced a segment.
type Speaker string

const (
	// SpeakerAgent is the call-center agent side of the conversation.
	SpeakerAgent Speaker = "agent"
	// SpeakerCustomer is the customer side of the conversation.
	SpeakerCustomer Speaker = "customer"
	// SpeakerSystem is IVR or other automated audio.
	SpeakerSystem Speaker = "system"
)

// Segment is a single utterance within a call transcript. StartTime and
// EndTime are offsets in seconds from the start of the call and are nil when
// the upstream transcription service provided no timing for the utterance.
type Segment struct {
	Speaker   Speaker  `json:"speaker"`
	Text      string   `json:"text"`
	StartTime *float64 `json:"start_time,omitempty"`
	EndTime   *float64 `json:"end_time,omitempty"`
}

// Timed reports whether the segment carries a start offset.
func (s Segment) Timed() bool {
	return s.StartTime != nil
}

// Transcript is an ordered sequence of segments for one call.
type Transcript struct {
	CallID   string    `json:"call_id"`
	Language string    `json:"language,omitempty"`
	Segments []Segment `json:"segments"`
}

// Validate checks structural soundness. An empty transcript is valid input
// to the pipeline (every required behavior will simply be absent), but
// segments that do exist must carry a known speaker and coherent timing.
func (t *Transcript) Validate() error {
	if t.CallID == "" {
		return fmt.Errorf("transcript has no call_id")
	}
	for i, seg := range t.Segments {
		switch seg.Speaker {
		case SpeakerAgent, SpeakerCustomer, SpeakerSystem:
		default:
			return fmt.Errorf("segment %d: unknown speaker %q", i, seg.Speaker)
		}
		if seg.StartTime != nil && *seg.StartTime < 0 {
			return fmt.Errorf("segment %d: negative start_time %v", i, *seg.StartTime)
		}
		if seg.StartTime != nil && seg.EndTime != nil && *seg.EndTime < *seg.StartTime {
			return fmt.Errorf("segment %d: end_time %v before start_time %v", i, *seg.EndTime, *seg.StartTime)
		}
	}
	return nil
}

// AgentText concatenates the text of all agent segments in order, separated
// by newlines. Useful for quick containment checks and logging.
func (t *Transcript) AgentText() string {
	var b strings.Builder
	for _, seg := range t.Segments {
		if seg.Speaker != SpeakerAgent {
			continue
		}
		if b.Len() > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(seg.Text)
	}
	return b.String()
}

// Duration returns the largest end offset (falling back to start offsets)
// observed across segments, in seconds. Zero when nothing is timed.
func (t *Transcript) Duration() float64 {
	var max float64
	for _, seg := range t.Segments {
		if seg.EndTime != nil && *seg.EndTime > max {
			max = *seg.EndTime
		}
		if seg.StartTime != nil && *seg.StartTime > max {
			max = *seg.StartTime
		}
	}
	return max
}
