// Copyright 2026 The Insight Authors
// SPDX-License-Identifier: Apache-2.0

// Package capture records and replays decoded streaming sessions.
//
// Two on-disk formats are involved:
//
//   - Capture files (.inscap): the binary record of a live session.
//     Every decoded event is appended with its offset from session
//     start, CBOR-encoded, zstd-compressed, and protected by a BLAKE3
//     trailer. Writer implements stream.Recorder so a Controller can
//     tee into one transparently.
//
//   - Script files (.jsonc): hand-authored session transcripts for
//     demos and tests. JSON extended with // comments and trailing
//     commas, each step carrying a delay and a wire-format event.
//
// The replay tool plays either format back through the same decoding
// pipeline a live connection uses.
package capture
