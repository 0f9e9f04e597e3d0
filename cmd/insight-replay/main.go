// Copyright 2026 The Insight Authors
// SPDX-License-Identifier: Apache-2.0

// insight-replay plays a recorded or scripted session through the
// full streaming pipeline without a backend. Events are re-encoded
// into SSE frames and fed through the same decoder, extractor, and
// state machine a live connection uses, so a replayed session
// exercises exactly the client-side path that produced it.
//
// Input is either a capture file written by insight-chat --capture, or
// a hand-authored JSONC script (see lib/capture for both formats).
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/spf13/pflag"

	"github.com/insight-health/insight/lib/capture"
	"github.com/insight-health/insight/lib/stream"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var realtime bool
	var verbose bool
	var message string

	flagSet := pflag.NewFlagSet("insight-replay", pflag.ContinueOnError)
	flagSet.BoolVar(&realtime, "realtime", false, "honor the recorded inter-event delays")
	flagSet.BoolVarP(&verbose, "verbose", "v", false, "print every state change and artifact snapshot")
	flagSet.StringVar(&message, "message", "(replayed session)", "user message shown at the top of the transcript")
	flagSet.BoolP("help", "h", false, "show help")

	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if err == pflag.ErrHelp {
			printHelp(flagSet)
			return nil
		}
		return err
	}
	if help, _ := flagSet.GetBool("help"); help {
		printHelp(flagSet)
		return nil
	}
	args := flagSet.Args()
	if len(args) != 1 {
		return fmt.Errorf("expected exactly one capture or script path, got %d", len(args))
	}

	steps, err := loadSteps(args[0])
	if err != nil {
		return err
	}

	printer := &printer{verbose: verbose}
	controller := stream.NewController(stream.Options{
		Streamer:  &stepStreamer{steps: steps, realtime: realtime},
		Logger:    slog.New(slog.DiscardHandler),
		Callbacks: printer.callbacks(),
	})

	if err := controller.Send(context.Background(), message, false); err != nil {
		return err
	}
	controller.Wait()

	printer.summary(os.Stdout)
	return nil
}

// loadSteps reads either format. Scripts are distinguished by their
// extension; everything else must be a capture file.
func loadSteps(path string) ([]capture.ScriptStep, error) {
	if strings.HasSuffix(path, ".jsonc") || strings.HasSuffix(path, ".json") {
		return capture.ReadScript(path)
	}

	reader, err := capture.Open(path)
	if err != nil {
		return nil, err
	}
	defer reader.Close()

	records, err := reader.ReadAll()
	if err != nil {
		return nil, err
	}
	steps := make([]capture.ScriptStep, 0, len(records))
	previous := int64(0)
	for _, record := range records {
		steps = append(steps, capture.ScriptStep{
			DelayMS: record.OffsetMS - previous,
			Event:   record.Event,
		})
		previous = record.OffsetMS
	}
	return steps, nil
}

// stepStreamer serves script steps as an SSE byte stream, re-encoding
// each event into wire JSON so the replay runs through DecodeFrame.
type stepStreamer struct {
	steps    []capture.ScriptStep
	realtime bool
}

func (streamer *stepStreamer) OpenStream(ctx context.Context, _ stream.SendRequest) (io.ReadCloser, error) {
	reader, writer := io.Pipe()
	go func() {
		defer writer.Close()
		for _, step := range streamer.steps {
			if streamer.realtime && step.DelayMS > 0 {
				select {
				case <-ctx.Done():
					return
				case <-time.After(time.Duration(step.DelayMS) * time.Millisecond):
				}
			}
			data, err := stream.EncodeWire(step.Event)
			if err != nil {
				writer.CloseWithError(err)
				return
			}
			if _, err := fmt.Fprintf(writer, "data: %s\n\n", data); err != nil {
				return
			}
		}
	}()
	return reader, nil
}

// printer collects callback emissions and prints the session outcome.
// Callbacks fire on the consumer goroutine, but the summary is only
// read after Wait, so no locking is needed beyond the verbose prints
// going straight to stderr.
type printer struct {
	verbose   bool
	messages  []stream.Message
	tools     []stream.ToolCall
	team      stream.TeamUpdate
	states    []stream.AppState
	artifacts []stream.Artifact
	notices   []string
}

func (p *printer) callbacks() stream.Callbacks {
	return stream.Callbacks{
		OnState: func(state stream.AppState) {
			p.states = append(p.states, state)
			if p.verbose {
				fmt.Fprintf(os.Stderr, "state: %s\n", state)
			}
		},
		OnTeam: func(team stream.TeamUpdate) { p.team = team },
		OnArtifact: func(artifact stream.Artifact) {
			p.artifacts = append(p.artifacts, artifact)
			if p.verbose {
				kind := "final"
				if artifact.IsStreaming {
					kind = "streaming"
				}
				fmt.Fprintf(os.Stderr, "artifact %s (%s, %d bytes)\n", artifact.ID, kind, len(artifact.Code))
			}
		},
		OnMessages:  func(messages []stream.Message) { p.messages = messages },
		OnToolCalls: func(tools []stream.ToolCall) { p.tools = tools },
		OnNotice:    func(text string) { p.notices = append(p.notices, text) },
	}
}

func (p *printer) summary(out io.Writer) {
	for _, message := range p.messages {
		if message.Content == "" {
			continue
		}
		fmt.Fprintf(out, "[%s]\n%s\n\n", message.Role, message.Content)
	}

	if len(p.tools) > 0 {
		fmt.Fprintln(out, "tools:")
		for _, tool := range p.tools {
			fmt.Fprintf(out, "  %s (%s)\n", tool.Name, tool.Status)
		}
	}

	if len(p.team.Members) > 0 {
		fmt.Fprintf(out, "team (%s):\n", p.team.TeamStatus)
		for _, member := range p.team.Members {
			fmt.Fprintf(out, "  %s: %s %.0f%%\n", member.ID, member.Status, member.Progress)
		}
	}
	if p.team.TraceID != "" {
		fmt.Fprintf(out, "trace: %s\n", p.team.TraceID)
	}

	finals := 0
	for _, artifact := range p.artifacts {
		if !artifact.IsStreaming {
			finals++
		}
	}
	fmt.Fprintf(out, "artifacts: %d final, %d snapshots\n", finals, len(p.artifacts)-finals)

	for _, notice := range p.notices {
		fmt.Fprintf(out, "notice: %s\n", notice)
	}
	if len(p.states) > 0 {
		fmt.Fprintf(out, "final state: %s\n", p.states[len(p.states)-1])
	}
}

func printHelp(flagSet *pflag.FlagSet) {
	fmt.Fprintf(os.Stderr, `Insight replay — run a recorded or scripted session offline.

Feeds a capture file (from insight-chat --capture) or a JSONC script
through the full client pipeline and prints the resulting transcript,
tool ledger, team roster, and artifact counts.

Usage:
  insight-replay [flags] <session.inscap | script.jsonc>

Flags:
%s`, flagSet.FlagUsages())
}
