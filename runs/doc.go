/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package runs tracks evaluation requests from submission to a terminal
// status.
//
// A Run is a row in SQLite keyed by a generated ID. It starts pending, moves
// to running when a worker picks it up, and ends in exactly one of completed,
// failed_critical, or failed_hard. Every transition is a guarded UPDATE on
// the prior status, so a row can never commit twice and a terminal row is
// never rewritten. The terminal result lands in a single update together
// with the status.
//
// The Runner is the only writer. Submit detaches execution from the caller's
// cancellation so an abandoned request still drives its row to a terminal
// state; RunSync stays on the caller's context for interactive use. Worker
// concurrency is bounded, and Submit blocking on a full pool is the
// backpressure.
package runs
