/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package redact masks personally identifiable information in transcript
// text before it reaches a model or durable storage. Redaction is a pure
// function of its input: the same text always produces the same redacted
// output and the same placeholder assignment. The returned mapping is the
// only way back to the original values and must never be sent to a model
// or persisted alongside the evaluation.
package redact

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
)

// Kind is the category of a redacted value, embedded in its placeholder.
type Kind string

const (
	KindName  Kind = "NAME"
	KindEmail Kind = "EMAIL"
	KindCard  Kind = "CARD"
	KindSSN   Kind = "SSN"
	KindPhone Kind = "PHONE"
)

// nameMarker is the tag upstream transcription attaches around recognized
// customer names. The whole marker is replaced; only the inner text is
// kept in the mapping.
var nameMarker = regexp.MustCompile(`(?is)<name>(.*?)</name>`)

// Patterns below are matched in priority order. Longer numeric shapes come
// first so a card number is never half-claimed as a phone number.
var patterns = []struct {
	kind Kind
	re   *regexp.Regexp
}{
	{KindEmail, regexp.MustCompile(`[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}`)},
	{KindCard, regexp.MustCompile(`\b\d{4}[ -]?\d{4}[ -]?\d{4}[ -]?\d{1,4}\b`)},
	{KindPhone, regexp.MustCompile(`(?:\+?1[-. ]?)?(?:\(\d{3}\)|\b\d{3})[-. ]?\d{3}[-. ]?\d{4}\b`)},
	{KindSSN, regexp.MustCompile(`\b\d{3}-\d{2}-\d{4}\b|\b\d{9}\b`)},
}

// Mapping records placeholder to original value. It stays process-local.
type Mapping map[string]string

// Restore substitutes original values back into redacted text. Used by
// tooling with access to the original call, never by the pipeline itself.
func (m Mapping) Restore(redacted string) string {
	if len(m) == 0 {
		return redacted
	}
	// Longest placeholders first so [PHONE_10] is not clobbered by
	// [PHONE_1].
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return len(keys[i]) > len(keys[j]) })
	for _, k := range keys {
		redacted = strings.ReplaceAll(redacted, k, m[k])
	}
	return redacted
}

type span struct {
	start, end int
	kind       Kind
	value      string
}

// Redact masks names, emails, card numbers, phone numbers, and SSN-like
// sequences. Placeholders are typed and numbered by order of first
// appearance ([PHONE_1], [EMAIL_1], ...); repeated occurrences of the same
// value reuse the same placeholder.
func Redact(text string) (string, Mapping) {
	var spans []span

	for _, loc := range nameMarker.FindAllStringSubmatchIndex(text, -1) {
		spans = append(spans, span{
			start: loc[0],
			end:   loc[1],
			kind:  KindName,
			value: text[loc[2]:loc[3]],
		})
	}
	for _, p := range patterns {
		for _, loc := range p.re.FindAllStringIndex(text, -1) {
			if overlaps(spans, loc[0], loc[1]) {
				continue
			}
			spans = append(spans, span{
				start: loc[0],
				end:   loc[1],
				kind:  p.kind,
				value: text[loc[0]:loc[1]],
			})
		}
	}
	if len(spans) == 0 {
		return text, Mapping{}
	}
	sort.Slice(spans, func(i, j int) bool { return spans[i].start < spans[j].start })

	mapping := Mapping{}
	assigned := map[Kind]map[string]string{}
	counts := map[Kind]int{}
	var b strings.Builder
	prev := 0
	for _, sp := range spans {
		b.WriteString(text[prev:sp.start])
		byValue, ok := assigned[sp.kind]
		if !ok {
			byValue = map[string]string{}
			assigned[sp.kind] = byValue
		}
		placeholder, ok := byValue[sp.value]
		if !ok {
			counts[sp.kind]++
			placeholder = fmt.Sprintf("[%s_%d]", sp.kind, counts[sp.kind])
			byValue[sp.value] = placeholder
			mapping[placeholder] = sp.value
		}
		b.WriteString(placeholder)
		prev = sp.end
	}
	b.WriteString(text[prev:])
	return b.String(), mapping
}

// MatchesPII reports whether text still contains anything the redactor
// would mask. Persisted evaluation text must never match.
func MatchesPII(text string) bool {
	if nameMarker.MatchString(text) {
		return true
	}
	for _, p := range patterns {
		if p.re.MatchString(text) {
			return true
		}
	}
	return false
}

func overlaps(spans []span, start, end int) bool {
	for _, sp := range spans {
		if start < sp.end && end > sp.start {
			return true
		}
	}
	return false
}
