/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package llmeval

import (
	"github.com/callgrade/callgrade/blueprint"
	"github.com/callgrade/callgrade/prompt"
)

// stageSystemPrompt anchors the model's role for every stage call.
const stageSystemPrompt = `You are a quality assurance auditor for customer service calls.
You judge only what the transcript shows. You never invent evidence, and when
the transcript is ambiguous you lower your confidence instead of guessing.
You always respond with a single JSON object matching the requested structure.`

// stagePrompt is the prompt for one stage's behavior audit
var stagePrompt = prompt.MustNew(`<task>
You are auditing one stage of a customer service call. For each expected
behavior listed below, decide whether the agent exhibited it anywhere in the
conversation.
</task>

{{stage}}

<expected_behaviors>
{{behaviors}}
</expected_behaviors>

{{transcript}}

<instructions>
1. Read the full conversation. Personal details appear as placeholders like
   [NAME_1] or [CARD_1]; treat each placeholder as the words it replaced.
2. Judge every behavior independently, using only what the transcript shows.
   Only the agent's own utterances count as exhibiting a behavior.
3. For a behavior of type "forbidden", present means the agent committed the
   prohibited act.
4. For each behavior, report whether it is present and a confidence from 0.0
   to 1.0 using this calibration:

CONFIDENCE CALIBRATION:
- 0.90-1.00 (Certain): The transcript contains direct, unambiguous evidence for your judgment.
  * Use When: You can quote a specific agent utterance that settles the question by itself.
  * Rationale Guidance: Quote the decisive utterance.

- 0.70-0.89 (Strong): The evidence clearly supports your judgment but requires minor interpretation.
  * Use When: The agent's wording differs from the behavior description yet plainly accomplishes or violates it.
  * Rationale Guidance: Quote the supporting utterance and state the interpretation in one clause.

- 0.40-0.69 (Mixed): The transcript partially supports your judgment or contains conflicting signals.
  * Use When: The agent made an incomplete attempt, or different parts of the call point in different directions.
  * Rationale Guidance: Name both the supporting and the conflicting evidence.

- 0.10-0.39 (Weak): Your judgment rests on indirect inference rather than explicit evidence.
  * Use When: Nothing in the transcript addresses the behavior directly and you are reasoning from context.
  * Rationale Guidance: State the inference and why the transcript leaves it uncertain.

- 0.00-0.09 (None): The transcript offers no basis for the judgment.
  * Use When: The relevant portion of the call is missing, inaudible, or entirely off-topic.
  * Rationale Guidance: Say what is missing.

5. Keep each rationale to one or two sentences grounded in the transcript.
</instructions>

<output_format>
Return your findings as a JSON object with this structure:
{
  "findings": [
    {
      "behavior_id": "the id copied exactly from the behavior list",
      "present": true,
      "confidence": 0.0-1.0,
      "rationale": "evidence for the judgment"
    }
  ]
}

Include exactly one finding for each listed behavior, and no others.
</output_format>

Respond with only the JSON object, no additional text.`)

// promptBehavior is the reduced view of a behavior a stage call sees.
type promptBehavior struct {
	ID          string `yaml:"id"`
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
	Type        string `yaml:"type"`
}

// buildStagePrompt binds one stage's context, candidate behaviors, and
// redacted conversation window into the system and user prompts for a call.
func buildStagePrompt(bp *blueprint.Blueprint, stage *blueprint.Stage, ids []string, window string) (string, string, error) {
	behaviors := make([]promptBehavior, 0, len(ids))
	for _, id := range ids {
		b := stage.Behavior(id)
		behaviors = append(behaviors, promptBehavior{
			ID:          b.ID,
			Name:        b.Name,
			Description: b.Description,
			Type:        string(b.Type),
		})
	}

	p, err := stagePrompt.BindXML("stage", struct {
		XMLName  struct{} `xml:"stage"`
		Name     string   `xml:"name"`
		Position int      `xml:"position"`
		Language string   `xml:"language,omitempty"`
	}{
		Name:     stage.Name,
		Position: stage.OrderingIndex,
		Language: bp.Language,
	})
	if err != nil {
		return "", "", err
	}

	if p, err = p.BindYAML("behaviors", behaviors); err != nil {
		return "", "", err
	}

	if p, err = p.BindXML("transcript", struct {
		XMLName struct{} `xml:"transcript"`
		Content string   `xml:",chardata"`
	}{
		Content: window,
	}); err != nil {
		return "", "", err
	}

	user, err := p.Build()
	if err != nil {
		return "", "", err
	}
	return stageSystemPrompt, user, nil
}
