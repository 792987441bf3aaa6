/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package transcript_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/callgrade/callgrade/transcript"
)

func writeCall(t *testing.T, dir, callID, doc string) {
	t.Helper()
	err := os.WriteFile(filepath.Join(dir, callID+".json"), []byte(doc), 0o600)
	require.NoError(t, err, "failed to write transcript fixture")
}

func TestDirSourceFetch(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	writeCall(t, dir, "call-55", `{
		"call_id": "call-55",
		"segments": [
			{"speaker": "agent", "text": "Thank you for calling.", "start_time": 0.5},
			{"speaker": "customer", "text": "Hi, my bill looks wrong."}
		]
	}`)

	src := transcript.NewDirSource(dir)

	tr, err := src.Fetch(ctx, "call-55")
	require.NoError(t, err, "failed to fetch a known call")
	require.Equal(t, "call-55", tr.CallID)
	require.Len(t, tr.Segments, 2)
	require.Equal(t, transcript.SpeakerAgent, tr.Segments[0].Speaker)

	_, err = src.Fetch(ctx, "call-does-not-exist")
	require.Error(t, err, "expected an error for an unknown call")
}

func TestDirSourceFetchRejectsInvalid(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	writeCall(t, dir, "call-bad-speaker", `{
		"call_id": "call-bad-speaker",
		"segments": [{"speaker": "narrator", "text": "Once upon a time."}]
	}`)
	writeCall(t, dir, "call-not-json", `segments: nope`)

	src := transcript.NewDirSource(dir)

	_, err := src.Fetch(ctx, "call-bad-speaker")
	require.ErrorContains(t, err, "invalid transcript")

	_, err = src.Fetch(ctx, "call-not-json")
	require.ErrorContains(t, err, "decoding transcript")
}

func TestDirSourceFetchHonorsCancellation(t *testing.T) {
	dir := t.TempDir()
	writeCall(t, dir, "call-55", `{"call_id": "call-55", "segments": []}`)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := transcript.NewDirSource(dir).Fetch(ctx, "call-55")
	require.ErrorIs(t, err, context.Canceled)
}

func TestParse(t *testing.T) {
	tr, err := transcript.Parse([]byte(`{
		"call_id": "call-9",
		"language": "en-US",
		"segments": [{"speaker": "system", "text": "This call may be recorded."}]
	}`))
	require.NoError(t, err, "failed to parse a valid document")
	require.Equal(t, "en-US", tr.Language)

	_, err = transcript.Parse([]byte(`{"segments": []}`))
	require.ErrorContains(t, err, "invalid transcript", "documents without a call ID must be rejected")
}
