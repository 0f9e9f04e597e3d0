// Copyright 2026 The Insight Authors
// SPDX-License-Identifier: Apache-2.0

package chatui

import (
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
)

// styleRenderer forces the ANSI256 profile. lipgloss's automatic
// detection strips all styling when output is not a terminal, which
// would make rendering differ between live use and tests.
var styleRenderer = lipgloss.NewRenderer(os.Stdout, termenv.WithProfile(termenv.ANSI256))

func init() {
	styleRenderer.SetColorProfile(termenv.ANSI256)
}

func newStyle() lipgloss.Style {
	return styleRenderer.NewStyle()
}
