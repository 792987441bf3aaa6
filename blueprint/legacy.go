/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package blueprint

// LegacyChecklist returns the built-in checklist used when a call type has
// no authored blueprint. Every behavior is exact_phrase so the legacy path
// never consults a model. The checklist is compiled on each call so callers
// can hold it without aliasing package state.
func LegacyChecklist() *Blueprint {
	bp, err := Compile(&Draft{
		ID:            "legacy-checklist",
		Version:       "1",
		PassThreshold: DefaultPassThreshold,
		Stages: []Stage{{
			Name:          "Opening",
			OrderingIndex: 1,
			Weight:        25,
			Behaviors: []Behavior{{
				ID:        "legacy.greeting",
				Name:      "Greeting",
				Type:      Required,
				Detection: ExactPhrase,
				Phrases:   []string{"thank you for calling", "thanks for calling", "how can I help"},
				Weight:    100,
			}},
		}, {
			Name:          "Verification",
			OrderingIndex: 2,
			Weight:        25,
			Behaviors: []Behavior{{
				ID:        "legacy.verify",
				Name:      "Identity verification",
				Type:      Required,
				Detection: ExactPhrase,
				Phrases:   []string{"verify your identity", "confirm your account", "verify your account"},
				Weight:    100,
			}},
		}, {
			Name:          "Resolution",
			OrderingIndex: 3,
			Weight:        25,
			Behaviors: []Behavior{{
				ID:        "legacy.resolution",
				Name:      "Resolution offered",
				Type:      Required,
				Detection: ExactPhrase,
				Phrases:   []string{"I can help with that", "let me take care of", "I've resolved", "I have resolved"},
				Weight:    100,
			}, {
				ID:        "legacy.no-guarantee",
				Name:      "No unauthorized guarantees",
				Type:      Forbidden,
				Detection: ExactPhrase,
				Phrases:   []string{"I guarantee", "I promise you"},
			}},
		}, {
			Name:          "Closing",
			OrderingIndex: 4,
			Weight:        25,
			Behaviors: []Behavior{{
				ID:        "legacy.closing",
				Name:      "Closing",
				Type:      Required,
				Detection: ExactPhrase,
				Phrases:   []string{"anything else I can help", "thank you for your patience", "have a great day"},
				Weight:    100,
			}},
		}},
	})
	if err != nil {
		// The checklist is a compile-time constant of this package; a
		// failure here is a programming error, not an input error.
		panic(err)
	}
	return bp
}
