/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package report renders evaluation records for humans: a markdown report
// for review queues and a one-line summary for logs and CLI output.
package report

import (
	"bytes"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/olekukonko/tablewriter"
	"github.com/olekukonko/tablewriter/renderer"
	"github.com/olekukonko/tablewriter/tw"

	"github.com/callgrade/callgrade/pipeline"
)

// Markdown renders the full evaluation record as a markdown document: a
// summary block, one table row per stage and per category, the critical
// violations when any, and the explanation.
func Markdown(fe *pipeline.FinalEvaluation) string {
	if fe == nil {
		return ""
	}

	var out strings.Builder
	fmt.Fprintf(&out, "# Call Evaluation: %s\n\n", fe.CallID)
	fmt.Fprintf(&out, "- Blueprint: %s (version %s, %s strategy)\n", fe.BlueprintID, fe.BlueprintVersion, fe.Strategy)
	fmt.Fprintf(&out, "- Status: %s\n", fe.Status)
	fmt.Fprintf(&out, "- Overall: %s\n", overallCell(fe))
	fmt.Fprintf(&out, "- Evaluated: %s\n", fe.EvaluatedAt.Format("2006-01-02 15:04:05 MST"))

	if len(fe.StageScores) > 0 {
		out.WriteString("\n## Stages\n\n")
		renderStages(&out, fe.StageScores)
	}
	if len(fe.CategoryScores) > 0 {
		out.WriteString("\n## Categories\n\n")
		renderCategories(&out, fe)
	}
	if len(fe.CriticalViolations) > 0 {
		out.WriteString("\n## Critical Violations\n\n")
		renderViolations(&out, fe)
	}
	if fe.Explanation != "" {
		out.WriteString("\n## Explanation\n\n")
		out.WriteString(fe.Explanation)
		out.WriteString("\n")
	}
	return out.String()
}

// Text is the one-line form: status, score, outcome, and how many critical
// violations there were.
func Text(fe *pipeline.FinalEvaluation) string {
	if fe == nil {
		return ""
	}
	outcome := "passed"
	if !fe.Passed {
		outcome = "failed"
	}
	line := fmt.Sprintf("%s: call %s scored %.1f (%s)", fe.Status, fe.CallID, fe.OverallScore, outcome)
	switch n := len(fe.CriticalViolations); n {
	case 0:
		return line
	case 1:
		return line + ", 1 critical violation"
	default:
		return fmt.Sprintf("%s, %d critical violations", line, n)
	}
}

func overallCell(fe *pipeline.FinalEvaluation) string {
	if fe.Passed {
		return fmt.Sprintf("%.1f (passed)", fe.OverallScore)
	}
	return fmt.Sprintf("❌ %.1f (failed)", fe.OverallScore)
}

func renderStages(out *strings.Builder, scores map[string]float64) {
	names := make([]string, 0, len(scores))
	for name := range scores {
		names = append(names, name)
	}
	sort.Strings(names)

	var buf bytes.Buffer
	table := newTable([]string{"Stage", "Score"}, &buf)
	for _, name := range names {
		_ = table.Append([]string{name, fmt.Sprintf("%.1f", scores[name])})
	}
	_ = table.Render()
	out.Write(buf.Bytes())
}

func renderCategories(out *strings.Builder, fe *pipeline.FinalEvaluation) {
	var buf bytes.Buffer
	table := newTable([]string{"Category", "Weight", "Score", "Level"}, &buf)
	for _, cat := range fe.CategoryScores {
		level := cat.Level
		if level == "" {
			level = "-"
		}
		_ = table.Append([]string{
			cat.Name,
			fmt.Sprintf("%.0f", cat.Weight),
			fmt.Sprintf("%.1f", cat.Score),
			level,
		})
	}
	_ = table.Render()
	out.Write(buf.Bytes())
}

func renderViolations(out *strings.Builder, fe *pipeline.FinalEvaluation) {
	var buf bytes.Buffer
	table := newTable([]string{"Behavior", "Stage", "Action", "Reason"}, &buf)
	for _, v := range fe.CriticalViolations {
		_ = table.Append([]string{
			fmt.Sprintf("❌ %s", v.BehaviorID),
			v.Stage,
			string(v.Action),
			v.Reason,
		})
	}
	_ = table.Render()
	out.Write(buf.Bytes())
}

// newTable builds a markdown table writer so every report formats the same
// way.
func newTable(headers []string, w io.Writer) *tablewriter.Table {
	cfg := tablewriter.Config{
		Header: tw.CellConfig{
			Alignment:  tw.CellAlignment{Global: tw.AlignLeft},
			Formatting: tw.CellFormatting{AutoFormat: tw.Off},
		},
		Row: tw.CellConfig{
			Alignment: tw.CellAlignment{Global: tw.AlignLeft},
		},
		MaxWidth: 100,
		Behavior: tw.Behavior{TrimSpace: tw.Off},
	}
	return tablewriter.NewTable(w,
		tablewriter.WithConfig(cfg),
		tablewriter.WithHeader(headers),
		tablewriter.WithRenderer(renderer.NewBlueprint()),
		tablewriter.WithRendition(tw.Rendition{
			Symbols: tw.NewSymbols(tw.StyleMarkdown),
			Borders: tw.Border{
				Left:   tw.On,
				Top:    tw.Off,
				Right:  tw.On,
				Bottom: tw.Off,
			},
		}),
		tablewriter.WithRowAutoWrap(tw.WrapNone),
	)
}
