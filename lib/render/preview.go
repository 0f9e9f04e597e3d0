// Copyright 2026 The Insight Authors
// SPDX-License-Identifier: Apache-2.0

package render

import (
	"context"
	"strings"

	"github.com/alecthomas/chroma/v2/quick"

	"github.com/insight-health/insight/lib/stream"
)

// Preview renders artifacts as syntax-highlighted source text. Chroma
// tokenizes line by line, so partial streaming snapshots highlight
// fine up to the broken tail.
type Preview struct {
	// Formatter is the chroma formatter name. Defaults to
	// "terminal256".
	Formatter string

	// Style is the chroma style name. Defaults to "monokai".
	Style string
}

var _ Renderer = (*Preview)(nil)

// Render highlights the artifact's code. Unknown languages and chroma
// failures degrade to the plain source, never an error: the preview's
// job is to always show something.
func (preview *Preview) Render(_ context.Context, artifact stream.Artifact) (Result, error) {
	result := Result{
		ArtifactID: artifact.ID,
		Partial:    artifact.IsStreaming,
	}

	language := artifact.Language
	if language == "" {
		result.Text = artifact.Code
		return result, nil
	}

	var buffer strings.Builder
	err := quick.Highlight(&buffer, artifact.Code, language, preview.formatter(), preview.style())
	if err != nil {
		result.Text = artifact.Code
		return result, nil
	}
	result.Text = buffer.String()
	return result, nil
}

func (preview *Preview) formatter() string {
	if preview.Formatter != "" {
		return preview.Formatter
	}
	return "terminal256"
}

func (preview *Preview) style() string {
	if preview.Style != "" {
		return preview.Style
	}
	return "monokai"
}
