// Copyright 2026 The Insight Authors
// SPDX-License-Identifier: Apache-2.0

// insight-chat is the interactive terminal client for the Insight
// health assistant. It opens a streaming session per message, renders
// the transcript, specialist team, and visualization previews, and
// optionally records every session to a capture file for later replay
// with insight-replay.
package main

import (
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/pflag"
	"golang.org/x/term"

	"github.com/insight-health/insight/lib/capture"
	"github.com/insight-health/insight/lib/chatui"
	"github.com/insight-health/insight/lib/config"
	"github.com/insight-health/insight/lib/render"
	"github.com/insight-health/insight/lib/stream"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// programRelay forwards controller emissions into the bubbletea loop.
// The controller is built before the program exists, so the program
// pointer is filled in just before Run.
type programRelay struct {
	program *tea.Program
}

func (relay *programRelay) Send(message tea.Msg) {
	relay.program.Send(message)
}

func run() error {
	var configPath string
	var capturePath string
	var thinking bool

	flagSet := pflag.NewFlagSet("insight-chat", pflag.ContinueOnError)
	flagSet.StringVar(&configPath, "config", "", "path to insight.yaml (default: $INSIGHT_CONFIG, else built-in defaults)")
	flagSet.StringVar(&capturePath, "capture", "", "record sessions to this capture file (overrides config)")
	flagSet.BoolVar(&thinking, "thinking", false, "request extended agent reasoning on every message")
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
	if args := flagSet.Args(); len(args) > 0 {
		return fmt.Errorf("unexpected argument: %s", args[0])
	}

	if !term.IsTerminal(int(os.Stdout.Fd())) {
		return fmt.Errorf("insight-chat needs an interactive terminal; use insight-replay for scripted runs")
	}

	cfg, err := config.Resolve(configPath)
	if err != nil {
		return err
	}
	if capturePath == "" {
		capturePath = cfg.Capture.Path
	}
	if thinking {
		cfg.Chat.Thinking = true
	}

	logger, closeLog, err := openLogger(cfg)
	if err != nil {
		return err
	}
	defer closeLog()

	var recorder stream.Recorder
	if capturePath != "" {
		writer, err := capture.NewWriter(capturePath, nil)
		if err != nil {
			return err
		}
		defer writer.Close()
		recorder = writer
	}

	// The connect timeout bounds dialing and response headers only;
	// the stream itself stays open for the whole session.
	httpClient := &http.Client{
		Transport: &http.Transport{
			DialContext:           (&net.Dialer{Timeout: cfg.ConnectTimeout()}).DialContext,
			ResponseHeaderTimeout: cfg.ConnectTimeout(),
		},
	}
	client := stream.NewClient(cfg.Server.BaseURL, httpClient, logger)

	relay := &programRelay{}
	controller := stream.NewController(stream.Options{
		Streamer:  client,
		Logger:    logger,
		Recorder:  recorder,
		Callbacks: chatui.Bind(relay),
	})
	defer controller.Cancel()

	model := chatui.NewModel(controller, &render.Preview{})
	model.SetThinking(cfg.Chat.Thinking)

	program := tea.NewProgram(model, tea.WithAltScreen())
	relay.program = program

	logger.Info("chat starting",
		"base_url", cfg.Server.BaseURL,
		"conversation_id", controller.ConversationID(),
		"capture", capturePath != "")
	_, err = program.Run()
	return err
}

// openLogger builds the diagnostic logger. The TUI owns the terminal,
// so logs go to the configured file or nowhere.
func openLogger(cfg *config.Config) (*slog.Logger, func(), error) {
	if cfg.Log.File == "" {
		return slog.New(slog.DiscardHandler), func() {}, nil
	}
	file, err := os.OpenFile(cfg.Log.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("opening log file: %w", err)
	}
	handler := slog.NewTextHandler(file, &slog.HandlerOptions{Level: cfg.LogLevel()})
	return slog.New(handler), func() { file.Close() }, nil
}

func printHelp(flagSet *pflag.FlagSet) {
	fmt.Fprintf(os.Stderr, `Insight chat — interactive terminal client for the health assistant.

Each message opens a streaming session against the backend configured
in insight.yaml (or http://localhost:8000 by default). The transcript,
specialist team roster, and visualization previews update live as the
stream arrives. With --capture, every decoded event is also recorded
to a capture file that insight-replay can play back.

Usage:
  insight-chat [flags]

Flags:
%s
Keys:
  enter   send message        C-t   toggle extended reasoning
  esc     cancel session      C-v   toggle visualization panel
  C-u/C-d scroll transcript   C-c   quit
`, flagSet.FlagUsages())
}
