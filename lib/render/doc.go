// Copyright 2026 The Insight Authors
// SPDX-License-Identifier: Apache-2.0

// Package render turns visualization artifacts into something a
// surface can display. The terminal client cannot execute component
// code, so its renderer produces a syntax-highlighted source preview;
// a browser surface would substitute a real component renderer behind
// the same interface.
package render
