// Copyright 2026 The Insight Authors
// SPDX-License-Identifier: Apache-2.0

// Package stream is the client-side session controller for the
// insight health-assistant event stream.
//
// One live SSE connection carries interleaved natural-language text,
// tool-call telemetry, specialist-team status updates, and
// incrementally generated visualization source code. This package
// consumes that single ordered stream and reconstructs four
// independent, consistent views from it:
//
//   - the chat transcript ([Conversation])
//   - the tool-call ledger (the single-slot active call register)
//   - the specialist-team panel ([Tracker], [TeamUpdate])
//   - the visualization artifact ([Publisher], [Artifact])
//
// The pieces layer bottom-up: [DecodeFrame] turns raw SSE frames into
// typed [Event] values, [Extractor] separates prose from fenced code
// as text fragments arrive, [Publisher] emits throttled versioned
// artifact snapshots, and [Controller] owns the connection, fans each
// decoded event out to every view, and guarantees that at most one
// session is live per chat surface.
//
// Everything below the transport is synchronous per event: handlers
// run in strict stream order on the session's consumer goroutine, and
// no state is shared across sessions.
package stream
