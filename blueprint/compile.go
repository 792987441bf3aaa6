/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package blueprint

import (
	"bytes"
	"fmt"
	"math"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// Draft is an authored, not yet validated blueprint. Drafts are written as
// YAML documents with the same shape as the compiled form.
type Draft = Blueprint

const (
	// DefaultPassThreshold applies when a draft leaves pass_threshold
	// unset.
	DefaultPassThreshold = 70.0

	// weightEpsilon is the tolerated drift of a weight sum from 100
	// before compilation rejects the draft. Sums within the tolerance are
	// rescaled to exactly 100. The tolerance admits three-way decimal
	// splits like 33.3+33.3+33.3 without admitting forgotten behaviors.
	weightEpsilon = 0.5
)

// ParseDraft decodes a YAML draft. Unknown fields are rejected so that
// authoring typos surface as configuration errors instead of silently
// ignored rules.
func ParseDraft(raw []byte) (*Draft, error) {
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	var d Draft
	if err := dec.Decode(&d); err != nil {
		return nil, fmt.Errorf("decoding blueprint draft: %w", err)
	}
	return &d, nil
}

// Compile validates a draft and returns the immutable compiled blueprint.
// Stage order is normalized to ordering-index order, defaulted fields are
// filled in, and weight sums within tolerance are rescaled to exactly 100.
func Compile(d *Draft) (*Blueprint, error) {
	if d == nil {
		return nil, fmt.Errorf("nil draft")
	}
	if d.ID == "" {
		return nil, fmt.Errorf("blueprint has no id")
	}
	if d.Version == "" {
		return nil, fmt.Errorf("blueprint %q has no version", d.ID)
	}
	if len(d.Stages) == 0 {
		return nil, fmt.Errorf("blueprint %q has no stages", d.ID)
	}

	bp := &Blueprint{
		ID:            d.ID,
		Version:       d.Version,
		Language:      d.Language,
		Retention:     d.Retention,
		PassThreshold: d.PassThreshold,
		Ordering:      d.Ordering,
		Stages:        deepCopyStages(d.Stages),
	}

	if bp.PassThreshold == 0 {
		bp.PassThreshold = DefaultPassThreshold
	}
	if bp.PassThreshold < 0 || bp.PassThreshold > 100 {
		return nil, fmt.Errorf("blueprint %q: pass_threshold %v out of range [0, 100]", bp.ID, bp.PassThreshold)
	}
	switch bp.Ordering {
	case "":
		bp.Ordering = OrderingAdvisory
	case OrderingAdvisory, OrderingCritical:
	default:
		return nil, fmt.Errorf("blueprint %q: unknown ordering_policy %q", bp.ID, bp.Ordering)
	}

	if err := compileStages(bp); err != nil {
		return nil, err
	}
	if err := checkContradictions(bp); err != nil {
		return nil, err
	}
	return bp, nil
}

func compileStages(bp *Blueprint) error {
	names := make(map[string]bool, len(bp.Stages))
	indexes := make(map[int]string, len(bp.Stages))
	behaviorIDs := make(map[string]string)

	for i := range bp.Stages {
		st := &bp.Stages[i]
		if st.Name == "" {
			return fmt.Errorf("blueprint %q: stage %d has no name", bp.ID, i)
		}
		if names[st.Name] {
			return fmt.Errorf("blueprint %q: duplicate stage name %q", bp.ID, st.Name)
		}
		names[st.Name] = true

		if st.OrderingIndex < 1 {
			return fmt.Errorf("stage %q: ordering_index %d must be >= 1", st.Name, st.OrderingIndex)
		}
		if prev, ok := indexes[st.OrderingIndex]; ok {
			return fmt.Errorf("stages %q and %q share ordering_index %d", prev, st.Name, st.OrderingIndex)
		}
		indexes[st.OrderingIndex] = st.Name

		if len(st.Behaviors) == 0 {
			return fmt.Errorf("stage %q has no behaviors", st.Name)
		}
		if err := compileBehaviors(st, behaviorIDs); err != nil {
			return err
		}
	}

	// Ordering indexes must be contiguous from 1 so that positional
	// comparisons in the rule engine are meaningful.
	for want := 1; want <= len(bp.Stages); want++ {
		if _, ok := indexes[want]; !ok {
			return fmt.Errorf("blueprint %q: ordering_index %d missing, indexes must be contiguous from 1", bp.ID, want)
		}
	}
	sort.Slice(bp.Stages, func(i, j int) bool {
		return bp.Stages[i].OrderingIndex < bp.Stages[j].OrderingIndex
	})

	var stageSum float64
	for i := range bp.Stages {
		stageSum += bp.Stages[i].Weight
	}
	scale, err := weightScale(stageSum)
	if err != nil {
		return fmt.Errorf("blueprint %q: stage weights sum to %v, wanted 100: %w", bp.ID, stageSum, err)
	}
	for i := range bp.Stages {
		bp.Stages[i].Weight *= scale
	}
	return nil
}

func compileBehaviors(st *Stage, seen map[string]string) error {
	var scoreableSum float64
	for i := range st.Behaviors {
		b := &st.Behaviors[i]
		if b.ID == "" {
			return fmt.Errorf("stage %q: behavior %d has no id", st.Name, i)
		}
		if prev, ok := seen[b.ID]; ok {
			return fmt.Errorf("behavior id %q appears in both stage %q and stage %q", b.ID, prev, st.Name)
		}
		seen[b.ID] = st.Name
		if b.Name == "" {
			b.Name = b.ID
		}

		switch b.Type {
		case Required, Optional, Forbidden, Critical:
		default:
			return fmt.Errorf("behavior %q: unknown type %q", b.ID, b.Type)
		}
		switch b.Detection {
		case Semantic, ExactPhrase, Hybrid:
		default:
			return fmt.Errorf("behavior %q: unknown detection mode %q", b.ID, b.Detection)
		}

		if b.Deterministic() && len(b.Phrases) == 0 {
			return fmt.Errorf("behavior %q: detection %q requires at least one phrase", b.ID, b.Detection)
		}
		if b.ModelEvaluated() && b.Description == "" {
			return fmt.Errorf("behavior %q: detection %q requires a description for the evaluator", b.ID, b.Detection)
		}

		if b.Type == Critical {
			switch b.CriticalAction {
			case "":
				b.CriticalAction = FailOverall
			case FailStage, FailOverall, FlagOnly:
			default:
				return fmt.Errorf("behavior %q: unknown critical_action %q", b.ID, b.CriticalAction)
			}
		} else if b.CriticalAction != "" {
			return fmt.Errorf("behavior %q: critical_action set on non-critical type %q", b.ID, b.Type)
		}

		if b.MaxElapsed < 0 {
			return fmt.Errorf("behavior %q: negative max_elapsed %v", b.ID, b.MaxElapsed)
		}
		if b.Condition != nil && len(b.Condition.TriggerPhrases) == 0 {
			return fmt.Errorf("behavior %q: condition has no trigger phrases", b.ID)
		}

		if b.Type == Forbidden {
			if b.Weight != 0 {
				return fmt.Errorf("behavior %q: forbidden behaviors carry no weight, found %v", b.ID, b.Weight)
			}
			continue
		}
		if b.Weight <= 0 {
			return fmt.Errorf("behavior %q: weight %v must be positive", b.ID, b.Weight)
		}
		scoreableSum += b.Weight
	}

	scale, err := weightScale(scoreableSum)
	if err != nil {
		return fmt.Errorf("stage %q: behavior weights sum to %v, wanted 100: %w", st.Name, scoreableSum, err)
	}
	for i := range st.Behaviors {
		if st.Behaviors[i].Scoreable() {
			st.Behaviors[i].Weight *= scale
		}
	}
	return nil
}

// weightScale returns the factor that rescales sum to exactly 100, or an
// error when the sum drifts beyond tolerance.
func weightScale(sum float64) (float64, error) {
	if math.Abs(sum-100) > weightEpsilon {
		return 0, fmt.Errorf("drift %v exceeds tolerance %v", math.Abs(sum-100), weightEpsilon)
	}
	return 100 / sum, nil
}

// checkContradictions rejects drafts where a phrase the agent must say is
// also a phrase the agent must not say.
func checkContradictions(bp *Blueprint) error {
	type owner struct{ behaviorID, phrase string }
	demanded := map[string]owner{}
	for _, st := range bp.Stages {
		for _, b := range st.Behaviors {
			if b.Type == Forbidden || !b.Deterministic() {
				continue
			}
			if b.Type != Required && b.Type != Critical {
				continue
			}
			for _, p := range b.Phrases {
				demanded[NormalizeText(p)] = owner{b.ID, p}
			}
		}
	}
	for _, st := range bp.Stages {
		for _, b := range st.Behaviors {
			if b.Type != Forbidden || !b.Deterministic() {
				continue
			}
			for _, p := range b.Phrases {
				if o, ok := demanded[NormalizeText(p)]; ok {
					return fmt.Errorf("phrase %q is required by behavior %q and forbidden by behavior %q", o.phrase, o.behaviorID, b.ID)
				}
			}
		}
	}
	return nil
}

// NormalizeText lowercases and collapses runs of whitespace, preserving
// word boundaries. Both the rule engine and the compiler match phrases in
// this normalized space.
func NormalizeText(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

func deepCopyStages(in []Stage) []Stage {
	out := make([]Stage, len(in))
	copy(out, in)
	for i := range out {
		behaviors := make([]Behavior, len(in[i].Behaviors))
		copy(behaviors, in[i].Behaviors)
		for j := range behaviors {
			behaviors[j].Phrases = append([]string(nil), behaviors[j].Phrases...)
			if c := behaviors[j].Condition; c != nil {
				behaviors[j].Condition = &Condition{
					TriggerPhrases: append([]string(nil), c.TriggerPhrases...),
				}
			}
		}
		out[i].Behaviors = behaviors
	}
	return out
}
