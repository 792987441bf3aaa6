/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package rubric aggregates the pipeline's per-behavior signals into
// category scores and one overall weighted score. A rubric template is a
// second weighting layer on top of the blueprint: categories map onto stage
// names or behavior ids and carry their own weights, so a contact center can
// report "Compliance" and "Soft Skills" axes that cut across stages.
package rubric

import (
	"bytes"
	"fmt"
	"math"

	"gopkg.in/yaml.v3"

	"github.com/callgrade/callgrade/blueprint"
)

// weightEpsilon mirrors the blueprint compiler's tolerance: category weight
// sums within it are rescaled to exactly 100, beyond it the template is
// rejected.
const weightEpsilon = 0.5

// Band labels a score range for reviewers. Bands are advisory; they never
// change a score.
type Band struct {
	Label string  `json:"label" yaml:"label"`
	Min   float64 `json:"min" yaml:"min"`
	Max   float64 `json:"max" yaml:"max"`
}

// Category is one reporting axis. Mappings name stages or behaviors of the
// blueprint this rubric is scored against.
type Category struct {
	Name     string   `json:"name" yaml:"name"`
	Weight   float64  `json:"weight" yaml:"weight"`
	Bands    []Band   `json:"level_definitions,omitempty" yaml:"level_definitions,omitempty"`
	Mappings []string `json:"mappings" yaml:"mappings"`
}

// Level returns the label of the band containing score, or "" when no band
// matches.
func (c *Category) Level(score float64) string {
	for _, b := range c.Bands {
		if score >= b.Min && score <= b.Max {
			return b.Label
		}
	}
	return ""
}

// Template is an ordered set of categories whose weights sum to 100.
type Template struct {
	Categories []Category `json:"categories" yaml:"categories"`
}

// ParseTemplate decodes a YAML rubric. Unknown fields are rejected.
func ParseTemplate(raw []byte) (*Template, error) {
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	var t Template
	if err := dec.Decode(&t); err != nil {
		return nil, fmt.Errorf("decoding rubric template: %w", err)
	}
	return &t, nil
}

// Validate checks the template against the blueprint it will score: every
// mapping must resolve to a stage name or behavior id, and weights must sum
// to 100 within tolerance. Weights within tolerance are rescaled in place.
func (t *Template) Validate(bp *blueprint.Blueprint) error {
	if len(t.Categories) == 0 {
		return fmt.Errorf("rubric has no categories")
	}
	names := make(map[string]bool, len(t.Categories))
	var sum float64
	for i := range t.Categories {
		c := &t.Categories[i]
		if c.Name == "" {
			return fmt.Errorf("category %d has no name", i)
		}
		if names[c.Name] {
			return fmt.Errorf("duplicate category name %q", c.Name)
		}
		names[c.Name] = true
		if c.Weight <= 0 {
			return fmt.Errorf("category %q: weight %v must be positive", c.Name, c.Weight)
		}
		if len(c.Mappings) == 0 {
			return fmt.Errorf("category %q has no mappings", c.Name)
		}
		for _, target := range c.Mappings {
			if bp.Stage(target) != nil {
				continue
			}
			if _, b := bp.FindBehavior(target); b != nil {
				continue
			}
			return fmt.Errorf("category %q: mapping %q matches no stage or behavior in blueprint %q", c.Name, target, bp.ID)
		}
		for _, band := range c.Bands {
			if band.Min > band.Max {
				return fmt.Errorf("category %q: band %q has min %v above max %v", c.Name, band.Label, band.Min, band.Max)
			}
		}
		sum += c.Weight
	}
	if math.Abs(sum-100) > weightEpsilon {
		return fmt.Errorf("category weights sum to %v, wanted 100", sum)
	}
	scale := 100 / sum
	for i := range t.Categories {
		t.Categories[i].Weight *= scale
	}
	return nil
}

// clone deep-copies the template so scoring can normalize weights without
// writing to a template shared across concurrent runs.
func (t *Template) clone() *Template {
	out := &Template{Categories: make([]Category, len(t.Categories))}
	copy(out.Categories, t.Categories)
	for i := range out.Categories {
		out.Categories[i].Bands = append([]Band(nil), out.Categories[i].Bands...)
		out.Categories[i].Mappings = append([]string(nil), out.Categories[i].Mappings...)
	}
	return out
}

// DefaultTemplate derives a rubric with one category per stage, carrying the
// stage's own weight. Used when an evaluation request names no rubric.
func DefaultTemplate(bp *blueprint.Blueprint) *Template {
	t := &Template{Categories: make([]Category, 0, len(bp.Stages))}
	for _, st := range bp.Stages {
		t.Categories = append(t.Categories, Category{
			Name:     st.Name,
			Weight:   st.Weight,
			Mappings: []string{st.Name},
			Bands: []Band{
				{Label: "excellent", Min: 90, Max: 100},
				{Label: "good", Min: 75, Max: 90},
				{Label: "adequate", Min: 60, Max: 75},
				{Label: "poor", Min: 0, Max: 60},
			},
		})
	}
	return t
}
