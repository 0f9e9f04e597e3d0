// Copyright 2026 The Insight Authors
// SPDX-License-Identifier: Apache-2.0

package render

import (
	"context"

	"github.com/insight-health/insight/lib/stream"
)

// Result is a rendered artifact ready for display.
type Result struct {
	// ArtifactID identifies which artifact this rendering is of.
	ArtifactID string

	// Text is the displayable form, possibly ANSI-styled.
	Text string

	// Partial marks renderings of streaming snapshots, which may be
	// syntactically broken mid-stream.
	Partial bool
}

// Renderer turns one artifact snapshot into a displayable Result.
// Implementations must tolerate incomplete code: streaming snapshots
// arrive mid-expression and a best-effort rendering beats an error.
type Renderer interface {
	Render(ctx context.Context, artifact stream.Artifact) (Result, error)
}
