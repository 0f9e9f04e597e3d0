// Copyright 2026 The Insight Authors
// SPDX-License-Identifier: Apache-2.0

package stream

import (
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/insight-health/insight/lib/clock"
)

// testPublisher wires a Publisher to an in-memory artifact slice with
// a fake clock, so throttle behavior is deterministic.
func testPublisher(t *testing.T) (*Publisher, *clock.FakeClock, *[]Artifact) {
	t.Helper()
	fake := clock.Fake(time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC))
	var artifacts []Artifact
	publisher := NewPublisher(fake, func(a Artifact) {
		artifacts = append(artifacts, a)
	}, slog.New(slog.DiscardHandler))
	return publisher, fake, &artifacts
}

func testExtractor(t *testing.T) (*Extractor, *clock.FakeClock, *[]Artifact) {
	t.Helper()
	publisher, fake, artifacts := testPublisher(t)
	return NewExtractor(publisher, slog.New(slog.DiscardHandler)), fake, artifacts
}

// feedAll feeds each fragment and concatenates the returned prose.
func feedAll(extractor *Extractor, fragments ...string) string {
	var prose strings.Builder
	for _, fragment := range fragments {
		prose.WriteString(extractor.Feed(fragment))
	}
	return prose.String()
}

func TestExtractorVisualizationBlock(t *testing.T) {
	t.Parallel()

	extractor, _, artifacts := testExtractor(t)

	prose := feedAll(extractor,
		"Here is a chart:\n```jsx\nconst X = () => <LineChart/>;\n```\nDone.")

	want := "Here is a chart:\n" + Placeholder + "\nDone."
	if prose != want {
		t.Errorf("prose = %q, want %q", prose, want)
	}

	final := lastFinal(t, *artifacts)
	if final.Code != "const X = () => <LineChart/>;\n" {
		t.Errorf("final code = %q", final.Code)
	}
	if final.Language != "jsx" {
		t.Errorf("language = %q, want jsx", final.Language)
	}
}

func TestExtractorSplitAnywhere(t *testing.T) {
	t.Parallel()

	// The same input split at every position, including mid-fence,
	// must yield identical prose and artifact code.
	input := "Here is a chart:\n```jsx\nconst X = () => <LineChart/>;\n```\nDone."
	wantProse := "Here is a chart:\n" + Placeholder + "\nDone."

	for split := 1; split < len(input); split++ {
		extractor, _, artifacts := testExtractor(t)
		prose := feedAll(extractor, input[:split], input[split:])
		if prose != wantProse {
			t.Fatalf("split %d: prose = %q", split, prose)
		}
		final := lastFinal(t, *artifacts)
		if final.Code != "const X = () => <LineChart/>;\n" {
			t.Fatalf("split %d: final code = %q", split, final.Code)
		}
	}
}

func TestExtractorThreeWaySplit(t *testing.T) {
	t.Parallel()

	extractor, _, artifacts := testExtractor(t)
	prose := feedAll(extractor,
		"Here is a chart:\n```",
		"jsx\nconst X = () => <LineChart/>;\n``",
		"`\nDone.")

	want := "Here is a chart:\n" + Placeholder + "\nDone."
	if prose != want {
		t.Errorf("prose = %q, want %q", prose, want)
	}
	if lastFinal(t, *artifacts).Code != "const X = () => <LineChart/>;\n" {
		t.Errorf("final code = %q", lastFinal(t, *artifacts).Code)
	}
}

func TestExtractorNonRenderableReinsertedVerbatim(t *testing.T) {
	t.Parallel()

	extractor, _, artifacts := testExtractor(t)

	// Plain YAML config: no JSX, no charts, no return.
	prose := feedAll(extractor, "Config:\n```yaml\nkey: value\n```\nend")

	want := "Config:\n```yaml\nkey: value\n```\nend"
	if prose != want {
		t.Errorf("prose = %q, want %q", prose, want)
	}
	for _, artifact := range *artifacts {
		if !artifact.IsStreaming {
			t.Errorf("non-renderable block published a final artifact: %+v", artifact)
		}
	}
}

func TestExtractorConsecutiveBlocksGetFreshIDs(t *testing.T) {
	t.Parallel()

	extractor, _, artifacts := testExtractor(t)
	feedAll(extractor,
		"```jsx\nconst A = () => <BarChart/>;\n```\n",
		"```jsx\nconst B = () => <PieChart/>;\n```\n")

	var finals []Artifact
	for _, artifact := range *artifacts {
		if !artifact.IsStreaming {
			finals = append(finals, artifact)
		}
	}
	if len(finals) != 2 {
		t.Fatalf("got %d final artifacts, want 2", len(finals))
	}
	if finals[0].ID == finals[1].ID {
		t.Errorf("second block reused artifact id %q", finals[0].ID)
	}
}

func TestExtractorStreamingEmissionsGrowMonotonically(t *testing.T) {
	t.Parallel()

	extractor, fake, artifacts := testExtractor(t)
	extractor.Feed("```jsx\nconst A = () => {\n")
	fake.Advance(150 * time.Millisecond)
	extractor.Feed("  return <AreaChart/>;\n")
	fake.Advance(150 * time.Millisecond)
	extractor.Feed("};\n```")

	previous := ""
	for _, artifact := range *artifacts {
		if !strings.HasPrefix(artifact.Code, previous) {
			t.Fatalf("code %q is not an extension of %q", artifact.Code, previous)
		}
		previous = artifact.Code
	}
	final := lastFinal(t, *artifacts)
	if final.Code != "const A = () => {\n  return <AreaChart/>;\n};\n" {
		t.Errorf("final code = %q", final.Code)
	}
}

func TestExtractorExplicitChannel(t *testing.T) {
	t.Parallel()

	extractor, _, artifacts := testExtractor(t)
	extractor.VizStart("jsx")
	extractor.VizCode("const V = () => ")
	extractor.VizCode("<ScatterChart/>;\n")
	extractor.VizComplete("")

	final := lastFinal(t, *artifacts)
	if final.Code != "const V = () => <ScatterChart/>;\n" {
		t.Errorf("final code = %q", final.Code)
	}
}

func TestExtractorExplicitAuthoritativeCodeWins(t *testing.T) {
	t.Parallel()

	extractor, _, artifacts := testExtractor(t)
	extractor.VizStart("jsx")
	extractor.VizCode("partial garbage")
	extractor.VizComplete("const V = () => <RadarChart/>;")

	if lastFinal(t, *artifacts).Code != "const V = () => <RadarChart/>;" {
		t.Errorf("final code = %q", lastFinal(t, *artifacts).Code)
	}
}

func TestExtractorPathConflictFirstWins(t *testing.T) {
	t.Parallel()

	// Fence path already active: viz_start must be ignored.
	extractor, _, artifacts := testExtractor(t)
	extractor.Feed("```jsx\nconst A = () => <LineChart/>;\n")
	extractor.VizStart("jsx")
	prose := extractor.Feed("```")

	if prose != Placeholder {
		t.Errorf("prose = %q, want placeholder", prose)
	}
	if lastFinal(t, *artifacts).Code != "const A = () => <LineChart/>;\n" {
		t.Errorf("final code = %q", lastFinal(t, *artifacts).Code)
	}

	// Explicit path active: fences in text stay plain prose.
	extractor2, _, _ := testExtractor(t)
	extractor2.VizStart("jsx")
	prose = extractor2.Feed("```jsx\nnot code extraction\n```")
	if prose != "```jsx\nnot code extraction\n```" {
		t.Errorf("prose during explicit channel = %q", prose)
	}
}

func TestExtractorFinishFlushesUnterminatedBlock(t *testing.T) {
	t.Parallel()

	extractor, _, artifacts := testExtractor(t)
	extractor.Feed("```jsx\nconst A = () => <ComposedChart/>;")
	prose := extractor.Finish()

	if prose != Placeholder {
		t.Errorf("Finish prose = %q, want placeholder", prose)
	}
	final := lastFinal(t, *artifacts)
	if final.Code != "const A = () => <ComposedChart/>;" {
		t.Errorf("final code = %q", final.Code)
	}
	if final.IsStreaming {
		t.Error("Finish must publish a frozen artifact")
	}
}

func TestLooksRenderable(t *testing.T) {
	t.Parallel()

	cases := []struct {
		code string
		want bool
	}{
		{"const X = () => <LineChart/>;", true},
		{"function f() { return 42; }", true},
		{"<ResponsiveContainer>", true},
		{"key: value", false},
		{"SELECT * FROM labs;", false},
		{"x { returnable: true }", false},
	}
	for _, testCase := range cases {
		if got := LooksRenderable(testCase.code); got != testCase.want {
			t.Errorf("LooksRenderable(%q) = %v, want %v", testCase.code, got, testCase.want)
		}
	}
}

func lastFinal(t *testing.T, artifacts []Artifact) Artifact {
	t.Helper()
	for i := len(artifacts) - 1; i >= 0; i-- {
		if !artifacts[i].IsStreaming {
			return artifacts[i]
		}
	}
	t.Fatal("no final artifact published")
	return Artifact{}
}
