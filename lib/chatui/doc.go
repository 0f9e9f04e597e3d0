// Copyright 2026 The Insight Authors
// SPDX-License-Identifier: Apache-2.0

// Package chatui is the terminal chat surface. It renders the
// transcript, the specialist team sidebar, the visualization panel,
// and the coarse session state, and feeds typed messages back into a
// stream controller.
//
// The controller runs outside the bubbletea loop; its callbacks are
// bridged in as typed messages via program.Send (see Bind). The model
// itself holds no streaming logic: everything it displays arrives as
// a message, which keeps it deterministic and testable without a
// backend.
package chatui
