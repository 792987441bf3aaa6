/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package transcript

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Source fetches transcripts by call ID. Implementations talk to whatever
// system of record holds finished calls; the pipeline treats a fetch error
// as a hard failure for the evaluation that needed it.
type Source interface {
	Fetch(ctx context.Context, callID string) (*Transcript, error)
}

// DirSource reads transcripts from a directory of <call_id>.json files.
type DirSource struct {
	dir string
}

// NewDirSource returns a Source over the given directory.
func NewDirSource(dir string) *DirSource {
	return &DirSource{dir: dir}
}

// Fetch implements Source.
func (d *DirSource) Fetch(ctx context.Context, callID string) (*Transcript, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	raw, err := os.ReadFile(filepath.Join(d.dir, callID+".json"))
	if err != nil {
		return nil, fmt.Errorf("reading transcript for call %q: %w", callID, err)
	}
	return Parse(raw)
}

// Parse decodes a transcript document and validates it.
func Parse(raw []byte) (*Transcript, error) {
	var t Transcript
	if err := json.Unmarshal(raw, &t); err != nil {
		return nil, fmt.Errorf("decoding transcript: %w", err)
	}
	if err := t.Validate(); err != nil {
		return nil, fmt.Errorf("invalid transcript: %w", err)
	}
	return &t, nil
}
