/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package rules

import (
	"math"
	"strings"
	"unicode"

	"github.com/callgrade/callgrade/blueprint"
	"github.com/callgrade/callgrade/transcript"
)

// normSegment is a transcript segment in normalized matching space.
type normSegment struct {
	index   int
	speaker transcript.Speaker
	text    string
	start   *float64
}

func normalizeSegments(tr *transcript.Transcript) []normSegment {
	out := make([]normSegment, 0, len(tr.Segments))
	for i, seg := range tr.Segments {
		out = append(out, normSegment{
			index:   i,
			speaker: seg.Speaker,
			text:    blueprint.NormalizeText(seg.Text),
			start:   seg.StartTime,
		})
	}
	return out
}

// candidate is one phrase occurrence. Candidates are ranked by start time
// (untimed segments sort last), then segment index, then offset within the
// segment, then phrase list position, so the winning match is a pure
// function of the inputs.
type candidate struct {
	segIndex  int
	offset    int
	start     *float64
	phrase    string
	phrasePos int
}

func (c candidate) timeKey() float64 {
	if c.start == nil {
		return math.Inf(1)
	}
	return *c.start
}

func (c candidate) before(o candidate) bool {
	if c.timeKey() != o.timeKey() {
		return c.timeKey() < o.timeKey()
	}
	if c.segIndex != o.segIndex {
		return c.segIndex < o.segIndex
	}
	if c.offset != o.offset {
		return c.offset < o.offset
	}
	return c.phrasePos < o.phrasePos
}

// findFirst returns the winning occurrence of any phrase across the given
// segments, or false when nothing matches. Matching is case-insensitive on
// collapsed whitespace and respects word boundaries; tolerance > 0 allows
// that many edits (insertions, deletions, substitutions) per phrase.
func findFirst(segs []normSegment, phrases []string, tolerance int) (candidate, bool) {
	var best candidate
	found := false
	for pi, raw := range phrases {
		phrase := blueprint.NormalizeText(raw)
		if phrase == "" {
			continue
		}
		for _, seg := range segs {
			offset, ok := indexInSegment(seg.text, phrase, tolerance)
			if !ok {
				continue
			}
			c := candidate{
				segIndex:  seg.index,
				offset:    offset,
				start:     seg.start,
				phrase:    raw,
				phrasePos: pi,
			}
			if !found || c.before(best) {
				best = c
				found = true
			}
		}
	}
	return best, found
}

// indexInSegment returns the rune offset of the leftmost boundary-respecting
// occurrence of phrase in text.
func indexInSegment(text, phrase string, tolerance int) (int, bool) {
	t := []rune(text)
	p := []rune(phrase)
	if len(p) == 0 || len(t) < len(p)-tolerance {
		return 0, false
	}
	if tolerance <= 0 {
		return exactIndex(t, p)
	}
	return fuzzyIndex(t, p, tolerance)
}

func exactIndex(t, p []rune) (int, bool) {
	for start := 0; start+len(p) <= len(t); start++ {
		if !boundary(t, start, start+len(p)) {
			continue
		}
		match := true
		for i := range p {
			if t[start+i] != p[i] {
				match = false
				break
			}
		}
		if match {
			return start, true
		}
	}
	return 0, false
}

// fuzzyIndex runs an approximate search (edit distance, free start) and
// returns the start of the leftmost-ending window within maxDist edits.
func fuzzyIndex(t, p []rune, maxDist int) (int, bool) {
	m := len(p)
	// dist[i] is the best edit distance of p[:i] against a window ending
	// at the current text position; from[i] is where that window starts.
	dist := make([]int, m+1)
	from := make([]int, m+1)
	next := make([]int, m+1)
	nextFrom := make([]int, m+1)
	for i := 0; i <= m; i++ {
		dist[i] = i
		from[i] = 0
	}
	for j := 1; j <= len(t); j++ {
		next[0] = 0
		nextFrom[0] = j
		for i := 1; i <= m; i++ {
			sub := dist[i-1]
			subFrom := from[i-1]
			if t[j-1] != p[i-1] {
				sub++
			}
			ins := dist[i] + 1
			insFrom := from[i]
			del := next[i-1] + 1
			delFrom := nextFrom[i-1]

			best, bestFrom := sub, subFrom
			if ins < best {
				best, bestFrom = ins, insFrom
			}
			if del < best {
				best, bestFrom = del, delFrom
			}
			next[i] = best
			nextFrom[i] = bestFrom
		}
		copy(dist, next)
		copy(from, nextFrom)
		if dist[m] <= maxDist && boundary(t, from[m], j) {
			return from[m], true
		}
	}
	return 0, false
}

// boundary reports whether [start, end) begins and ends at word boundaries.
func boundary(t []rune, start, end int) bool {
	if start > 0 && isWordRune(t[start-1]) && isWordRune(t[start]) {
		return false
	}
	if end < len(t) && isWordRune(t[end-1]) && isWordRune(t[end]) {
		return false
	}
	return true
}

func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r)
}

// containsAny reports whether any phrase occurs in any of the segments.
// Used for condition triggers, which scan every speaker.
func containsAny(segs []normSegment, phrases []string) bool {
	for _, raw := range phrases {
		phrase := blueprint.NormalizeText(raw)
		if phrase == "" {
			continue
		}
		for _, seg := range segs {
			if strings.Contains(seg.text, phrase) {
				return true
			}
		}
	}
	return false
}
