/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package llmeval

import (
	"fmt"
	"strings"

	"github.com/callgrade/callgrade/blueprint"
	"github.com/callgrade/callgrade/transcript"
)

// Window selects the slice of conversation a stage evaluation sees. The
// evaluator redacts whatever a window returns before it goes anywhere near
// a model.
type Window interface {
	// Extract renders the conversation text for one stage's model call.
	Extract(tr *transcript.Transcript, stage *blueprint.Stage) string
}

// FullTranscript sends the whole conversation for every stage. The default:
// stage boundaries inside a call are not reliably segmentable, so the model
// sees everything and judges one stage's behaviors at a time.
type FullTranscript struct{}

// Extract implements Window.
func (FullTranscript) Extract(tr *transcript.Transcript, _ *blueprint.Stage) string {
	return renderSegments(tr.Segments)
}

// TimeRange keeps only segments whose start offset falls within [From, To)
// seconds. Untimed segments are excluded. Useful for long calls where a
// stage is known to live in a bounded span.
type TimeRange struct {
	From float64
	To   float64
}

// Extract implements Window.
func (w TimeRange) Extract(tr *transcript.Transcript, _ *blueprint.Stage) string {
	var kept []transcript.Segment
	for _, seg := range tr.Segments {
		if seg.StartTime == nil {
			continue
		}
		if *seg.StartTime >= w.From && *seg.StartTime < w.To {
			kept = append(kept, seg)
		}
	}
	return renderSegments(kept)
}

// renderSegments renders one utterance per line, speaker-prefixed, in
// transcript order.
func renderSegments(segs []transcript.Segment) string {
	var b strings.Builder
	for _, seg := range segs {
		if b.Len() > 0 {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "%s: %s", seg.Speaker, seg.Text)
	}
	return b.String()
}
