// Copyright 2026 The Insight Authors
// SPDX-License-Identifier: Apache-2.0

package chatui

import (
	"strconv"
	"strings"

	"github.com/charmbracelet/x/ansi"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	gtext "github.com/yuin/goldmark/text"
)

// renderMarkdown renders assistant prose for the transcript viewport:
// headings, emphasis, code, lists, and blockquotes, wrapped to width.
// Transcript rendering is intentionally flat compared to a full
// document renderer; chat prose is short and mostly paragraphs.
func renderMarkdown(content string, width int, theme Theme) string {
	if width < 8 {
		width = 8
	}
	source := []byte(content)
	document := goldmark.New().Parser().Parse(gtext.NewReader(source))

	renderer := markdownRenderer{theme: theme, width: width, source: source}
	for node := document.FirstChild(); node != nil; node = node.NextSibling() {
		renderer.renderBlock(node, "")
	}
	return strings.TrimRight(renderer.output.String(), "\n")
}

type markdownRenderer struct {
	theme  Theme
	width  int
	source []byte
	output strings.Builder
}

func (renderer *markdownRenderer) renderBlock(node ast.Node, prefix string) {
	switch node := node.(type) {
	case *ast.Heading:
		style := newStyle().Bold(true).Foreground(renderer.theme.HeaderForeground)
		renderer.writeWrapped(style.Render(renderer.renderInline(node)), prefix)
		renderer.output.WriteString("\n")

	case *ast.Paragraph, *ast.TextBlock:
		renderer.writeWrapped(renderer.renderInline(node), prefix)

	case *ast.FencedCodeBlock, *ast.CodeBlock:
		style := newStyle().Foreground(renderer.theme.FaintText)
		lines := node.Lines()
		for i := 0; i < lines.Len(); i++ {
			segment := lines.At(i)
			line := strings.TrimRight(string(segment.Value(renderer.source)), "\n")
			renderer.output.WriteString(prefix + "  " + style.Render(line) + "\n")
		}

	case *ast.List:
		marker := "• "
		ordered := node.IsOrdered()
		index := node.Start
		for item := node.FirstChild(); item != nil; item = item.NextSibling() {
			if ordered {
				marker = strconv.Itoa(index) + ". "
				index++
			}
			first := true
			for child := item.FirstChild(); child != nil; child = child.NextSibling() {
				itemPrefix := prefix + strings.Repeat(" ", len(marker))
				if first {
					renderer.output.WriteString(prefix + marker)
					renderer.renderBlockBare(child, itemPrefix)
					first = false
				} else {
					renderer.renderBlock(child, itemPrefix)
				}
			}
		}

	case *ast.Blockquote:
		style := newStyle().Foreground(renderer.theme.FaintText)
		for child := node.FirstChild(); child != nil; child = child.NextSibling() {
			renderer.renderBlock(child, prefix+style.Render("│ "))
		}

	case *ast.ThematicBreak:
		style := newStyle().Foreground(renderer.theme.BorderColor)
		renderer.output.WriteString(prefix + style.Render(strings.Repeat("─", renderer.width)) + "\n")
	}
}

// renderBlockBare renders a block without emitting its own leading
// prefix, for the first block of a list item (the marker already
// occupies the prefix column).
func (renderer *markdownRenderer) renderBlockBare(node ast.Node, continuation string) {
	switch node := node.(type) {
	case *ast.Paragraph, *ast.TextBlock:
		wrapped := ansi.Wrap(renderer.renderInline(node), renderer.width-len(continuation), "")
		lines := strings.Split(wrapped, "\n")
		for i, line := range lines {
			if i > 0 {
				renderer.output.WriteString(continuation)
			}
			renderer.output.WriteString(line + "\n")
		}
	default:
		renderer.renderBlock(node, continuation)
	}
}

func (renderer *markdownRenderer) writeWrapped(text, prefix string) {
	wrapped := ansi.Wrap(text, renderer.width-ansi.StringWidth(prefix), "")
	for _, line := range strings.Split(wrapped, "\n") {
		renderer.output.WriteString(prefix + line + "\n")
	}
}

// renderInline collects a block node's inline children into one
// styled string.
func (renderer *markdownRenderer) renderInline(node ast.Node) string {
	var builder strings.Builder
	for child := node.FirstChild(); child != nil; child = child.NextSibling() {
		renderer.renderInlineNode(&builder, child)
	}
	return builder.String()
}

func (renderer *markdownRenderer) renderInlineNode(builder *strings.Builder, node ast.Node) {
	switch node := node.(type) {
	case *ast.Text:
		builder.WriteString(string(node.Segment.Value(renderer.source)))
		if node.SoftLineBreak() {
			builder.WriteString(" ")
		}
		if node.HardLineBreak() {
			builder.WriteString("\n")
		}

	case *ast.CodeSpan:
		style := newStyle().Foreground(renderer.theme.AssistantAccent)
		var inner strings.Builder
		for child := node.FirstChild(); child != nil; child = child.NextSibling() {
			renderer.renderInlineNode(&inner, child)
		}
		builder.WriteString(style.Render(inner.String()))

	case *ast.Emphasis:
		style := newStyle().Italic(true)
		if node.Level >= 2 {
			style = newStyle().Bold(true)
		}
		var inner strings.Builder
		for child := node.FirstChild(); child != nil; child = child.NextSibling() {
			renderer.renderInlineNode(&inner, child)
		}
		builder.WriteString(style.Render(inner.String()))

	case *ast.Link:
		style := newStyle().Foreground(renderer.theme.HeaderForeground).Underline(true)
		var inner strings.Builder
		for child := node.FirstChild(); child != nil; child = child.NextSibling() {
			renderer.renderInlineNode(&inner, child)
		}
		builder.WriteString(style.Render(inner.String()))

	case *ast.AutoLink:
		style := newStyle().Foreground(renderer.theme.HeaderForeground).Underline(true)
		builder.WriteString(style.Render(string(node.URL(renderer.source))))

	default:
		for child := node.FirstChild(); child != nil; child = child.NextSibling() {
			renderer.renderInlineNode(builder, child)
		}
	}
}
