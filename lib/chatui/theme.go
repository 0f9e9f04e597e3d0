// Copyright 2026 The Insight Authors
// SPDX-License-Identifier: Apache-2.0

package chatui

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/insight-health/insight/lib/stream"
)

// Theme defines the color palette for the chat surface. All colors
// use lipgloss ANSI 256-color codes for broad terminal compatibility.
type Theme struct {
	// Text colors.
	NormalText lipgloss.Color
	FaintText  lipgloss.Color

	// Role accents for transcript bubbles.
	UserAccent      lipgloss.Color
	AssistantAccent lipgloss.Color
	ThinkingAccent  lipgloss.Color

	// Session state colors.
	StateActive   lipgloss.Color
	StateComplete lipgloss.Color
	StateError    lipgloss.Color

	// Specialist member status colors.
	MemberWaiting  lipgloss.Color
	MemberWorking  lipgloss.Color
	MemberComplete lipgloss.Color
	MemberError    lipgloss.Color

	// UI chrome.
	BorderColor      lipgloss.Color
	HeaderForeground lipgloss.Color
	NoticeForeground lipgloss.Color
	NoticeBackground lipgloss.Color
	HelpText         lipgloss.Color
}

// DefaultTheme is the built-in palette.
var DefaultTheme = Theme{
	NormalText: lipgloss.Color("252"),
	FaintText:  lipgloss.Color("243"),

	UserAccent:      lipgloss.Color("39"),
	AssistantAccent: lipgloss.Color("114"),
	ThinkingAccent:  lipgloss.Color("243"),

	StateActive:   lipgloss.Color("214"),
	StateComplete: lipgloss.Color("114"),
	StateError:    lipgloss.Color("203"),

	MemberWaiting:  lipgloss.Color("243"),
	MemberWorking:  lipgloss.Color("214"),
	MemberComplete: lipgloss.Color("114"),
	MemberError:    lipgloss.Color("203"),

	BorderColor:      lipgloss.Color("238"),
	HeaderForeground: lipgloss.Color("81"),
	NoticeForeground: lipgloss.Color("231"),
	NoticeBackground: lipgloss.Color("160"),
	HelpText:         lipgloss.Color("243"),
}

// StateColor returns the color for a session state.
func (theme Theme) StateColor(state stream.AppState) lipgloss.Color {
	switch state {
	case stream.StateComplete:
		return theme.StateComplete
	case stream.StateError:
		return theme.StateError
	case stream.StateIdle, stream.StateWelcome:
		return theme.FaintText
	default:
		return theme.StateActive
	}
}

// MemberColor returns the color for a specialist member status.
func (theme Theme) MemberColor(status stream.MemberStatus) lipgloss.Color {
	switch status {
	case stream.MemberComplete:
		return theme.MemberComplete
	case stream.MemberError:
		return theme.MemberError
	case stream.MemberWaiting:
		return theme.MemberWaiting
	default:
		return theme.MemberWorking
	}
}
