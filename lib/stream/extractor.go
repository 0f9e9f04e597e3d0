// Copyright 2026 The Insight Authors
// SPDX-License-Identifier: Apache-2.0

package stream

import (
	"log/slog"
	"regexp"
	"strings"

	"github.com/google/uuid"
)

// Placeholder is substituted into the transcript where a recognized
// visualization block was lifted out of the prose.
const Placeholder = "*[Visualization rendered in side panel]*"

const fenceMarker = "```"

// jsxPattern matches an opening or closing JSX tag with a
// capitalized component name.
var jsxPattern = regexp.MustCompile(`</?[A-Z][A-Za-z0-9]*`)

// returnPattern matches a return statement as a whole word.
var returnPattern = regexp.MustCompile(`\breturn\b`)

// chartIdentifiers are component names whose presence marks a code
// block as a renderable visualization.
var chartIdentifiers = []string{
	"LineChart", "BarChart", "AreaChart", "PieChart",
	"ScatterChart", "ComposedChart", "RadarChart",
	"ResponsiveContainer", "Recharts",
}

// LooksRenderable reports whether a completed code block appears to
// be a renderable visualization component: a known chart identifier,
// a JSX tag, or a return statement. Blocks that fail go back into the
// transcript verbatim; blocks that pass are lifted into an artifact.
func LooksRenderable(code string) bool {
	for _, identifier := range chartIdentifiers {
		if strings.Contains(code, identifier) {
			return true
		}
	}
	if jsxPattern.MatchString(code) {
		return true
	}
	return returnPattern.MatchString(code)
}

// Extractor scans accumulating assistant text for fenced code
// markers, separating prose from streaming code. It buffers partial
// code between events and survives fence markers split anywhere
// across fragment boundaries, including mid-backtick.
//
// Two mutually exclusive paths feed the code buffer: the fence path
// (driven by Feed scanning text fragments) and the explicit path
// (driven by the viz_start/viz_code/viz_complete events). Starting
// one while the other is active is a protocol violation; the first
// wins and the conflicting starter is logged and ignored.
type Extractor struct {
	publisher *Publisher
	logger    *slog.Logger

	inCode   bool
	language string
	rawTag   string
	code     strings.Builder

	// carry holds a trailing partial fence marker (or a fence whose
	// language-tag line hasn't finished streaming) withheld from
	// output until the next fragment disambiguates it.
	carry string

	// explicit is true while the viz_* channel owns the buffer.
	explicit bool

	artifactID string

	// completedBlock governs artifact identity: a fence opening after
	// a completed block allocates a fresh id, otherwise the current
	// id continues.
	completedBlock bool
}

// NewExtractor creates an Extractor publishing through publisher.
// If logger is nil, slog.Default() is used.
func NewExtractor(publisher *Publisher, logger *slog.Logger) *Extractor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Extractor{publisher: publisher, logger: logger}
}

// Active reports whether a code block is currently open on either
// path.
func (ex *Extractor) Active() bool { return ex.inCode || ex.explicit }

// ArtifactID returns the id of the current (or most recent) block.
func (ex *Extractor) ArtifactID() string { return ex.artifactID }

// Feed scans one text fragment and returns the prose portion to
// append to the transcript. Code portions go to the publisher as
// throttled streaming snapshots; a completed block is replaced by
// [Placeholder] if it looks renderable, or reinserted verbatim if
// not.
func (ex *Extractor) Feed(content string) string {
	if ex.explicit {
		// The explicit channel owns code extraction; fences in prose
		// are left untouched.
		return content
	}

	var prose strings.Builder
	text := ex.carry + content
	ex.carry = ""

	for text != "" {
		if !ex.inCode {
			open := strings.Index(text, fenceMarker)
			if open == -1 {
				held := trailingMarkerPrefix(text)
				prose.WriteString(text[:len(text)-held])
				ex.carry = text[len(text)-held:]
				break
			}
			rest := text[open+len(fenceMarker):]
			newline := strings.IndexByte(rest, '\n')
			if newline == -1 {
				// The language-tag line hasn't finished streaming;
				// withhold from the fence onward.
				prose.WriteString(text[:open])
				ex.carry = text[open:]
				break
			}
			prose.WriteString(text[:open])
			ex.openBlock(rest[:newline])
			ex.inCode = true
			text = rest[newline+1:]
			continue
		}

		closing := strings.Index(text, fenceMarker)
		if closing == -1 {
			held := trailingMarkerPrefix(text)
			ex.appendCode(text[:len(text)-held])
			ex.carry = text[len(text)-held:]
			break
		}
		ex.appendCode(text[:closing])
		prose.WriteString(ex.closeBlock())
		text = text[closing+len(fenceMarker):]
	}

	return prose.String()
}

// VizStart opens the explicit code-streaming channel. Ignored (with a
// log line) if either path already has a block open.
func (ex *Extractor) VizStart(language string) {
	if ex.inCode {
		ex.logger.Warn("viz_start while a fenced block is open; keeping the fence path",
			"artifact_id", ex.artifactID)
		return
	}
	if ex.explicit {
		ex.logger.Warn("viz_start while the explicit channel is already open; ignoring",
			"artifact_id", ex.artifactID)
		return
	}
	ex.explicit = true
	ex.openBlock(language)
}

// VizCode appends a fragment on the explicit channel.
func (ex *Extractor) VizCode(fragment string) {
	if !ex.explicit {
		ex.logger.Warn("viz_code without viz_start; dropping fragment")
		return
	}
	ex.appendCode(fragment)
}

// VizComplete closes the explicit channel and publishes the final
// artifact. A non-empty authoritative code replaces the locally
// buffered copy.
func (ex *Extractor) VizComplete(authoritative string) {
	if !ex.explicit {
		ex.logger.Warn("viz_complete without viz_start; ignoring")
		return
	}
	code := ex.code.String()
	if authoritative != "" {
		code = authoritative
	}
	ex.publisher.Final(ex.artifactID, ex.language, code)
	ex.explicit = false
	ex.completedBlock = true
	ex.code.Reset()
}

// Finish hard-finalizes on stream close. An unterminated block is
// published as final regardless of throttle state (the renderer deals
// with broken code; this layer must still deliver it). Returns any
// leftover withheld text plus substitution for an unterminated block,
// to append to the transcript.
func (ex *Extractor) Finish() string {
	var prose strings.Builder

	if ex.explicit {
		ex.VizComplete("")
	} else if ex.inCode {
		ex.code.WriteString(ex.carry)
		ex.carry = ""
		code := ex.code.String()
		ex.inCode = false
		ex.completedBlock = true
		ex.code.Reset()
		if LooksRenderable(code) {
			ex.publisher.Final(ex.artifactID, ex.language, code)
			prose.WriteString(Placeholder)
		} else {
			prose.WriteString(fenceMarker + ex.rawTag + "\n" + code)
		}
	}

	prose.WriteString(ex.carry)
	ex.carry = ""
	return prose.String()
}

// openBlock resets the buffer and settles artifact identity. The
// caller chooses the path by setting inCode or explicit.
func (ex *Extractor) openBlock(tag string) {
	ex.rawTag = tag
	ex.language = strings.TrimSpace(tag)
	ex.code.Reset()
	if ex.artifactID == "" || ex.completedBlock {
		ex.artifactID = uuid.NewString()
		ex.completedBlock = false
	}
}

func (ex *Extractor) appendCode(fragment string) {
	if fragment == "" {
		return
	}
	ex.code.WriteString(fragment)
	ex.publisher.Streaming(ex.artifactID, ex.language, ex.code.String(), fragment)
}

func (ex *Extractor) closeBlock() string {
	code := ex.code.String()
	ex.inCode = false
	ex.completedBlock = true
	ex.code.Reset()

	if LooksRenderable(code) {
		ex.publisher.Final(ex.artifactID, ex.language, code)
		return Placeholder
	}
	// Not a visualization: the original fenced text, language tag
	// included, goes back into the prose unmodified.
	return fenceMarker + ex.rawTag + "\n" + code + fenceMarker
}

// trailingMarkerPrefix returns how many trailing bytes of text form a
// strict prefix of the fence marker (one or two backticks). Those
// bytes are withheld: the next fragment decides whether they complete
// a fence.
func trailingMarkerPrefix(text string) int {
	held := 0
	for held < len(fenceMarker)-1 && held < len(text) && text[len(text)-1-held] == '`' {
		held++
	}
	return held
}
