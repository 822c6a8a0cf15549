// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package watch

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/pflag"

	"github.com/bureau-foundation/foreman/cmd/foreman/cli"
	"github.com/bureau-foundation/foreman/cmd/foreman/client"
	"github.com/bureau-foundation/foreman/lib/watchui"
)

type watchParams struct {
	client.Connection
	LogOutput string `flag:"log-output" desc:"write JSON log records to this file (the dashboard shows warnings inline)"`
}

// Command returns the "watch" command.
func Command() *cli.Command {
	var params watchParams

	return &cli.Command{
		Name:    "watch",
		Summary: "Watch coordinated sessions in a live dashboard",
		Description: `Open a full-screen dashboard over the daemon's coordination feed.

The left pane lists coordinated sessions with status, pending
confirmations, and recent activity; the right pane shows the selected
session's task detail. Approve or reject confirmations, change the
supervision level, and message agents without leaving the terminal.
Press ? inside the dashboard for the key reference.`,
		Usage: "foreman watch [flags]",
		Examples: []cli.Example{
			{
				Description: "Watch a daemon on another host",
				Command:     "foreman watch --address 10.0.0.5:7663",
			},
			{
				Description: "Keep a debug log alongside the dashboard",
				Command:     "foreman watch --log-output /tmp/foreman-watch.json",
			},
		},
		Flags: func() *pflag.FlagSet {
			return cli.FlagsFromParams("watch", &params)
		},
		Run: func(args []string) error {
			if len(args) != 0 {
				return fmt.Errorf("watch takes no arguments")
			}
			return runWatch(&params)
		},
	}
}

func runWatch(params *watchParams) error {
	// Warnings and errors surface in the dashboard's help bar. The
	// optional log file additionally captures everything down to
	// debug, which is the only way to see stream details once the
	// alternate screen owns the terminal.
	tuiHandler := watchui.NewTUILogHandler(slog.LevelWarn)

	var backgroundLogger *slog.Logger
	if params.LogOutput != "" {
		fileHandler, fileCloser, err := openFileLogHandler(params.LogOutput)
		if err != nil {
			return fmt.Errorf("opening log file %s: %w", params.LogOutput, err)
		}
		defer fileCloser()
		backgroundLogger = slog.New(fanoutHandler{tuiHandler, fileHandler})
		// Logged before the alternate screen takes over, so the line
		// stays on the normal screen for after the dashboard exits.
		cli.NewCommandLogger().Info("writing log records", "path", params.LogOutput)
	} else {
		backgroundLogger = slog.New(tuiHandler)
	}

	source := NewFeedSource(params.Client(), backgroundLogger)
	defer source.Close()

	model := watchui.NewModel(source)
	program := tea.NewProgram(model, tea.WithAltScreen())

	// Wire the TUI handler to the program so stream warnings reach
	// the help bar. This must happen after NewProgram creates the
	// program and before Run processes messages; records logged in
	// between are dropped.
	tuiHandler.SetProgram(program)

	_, err := program.Run()
	return err
}

// openFileLogHandler creates a debug-level JSON handler writing to
// path, created or truncated. The returned closer releases the file.
func openFileLogHandler(path string) (slog.Handler, func(), error) {
	file, err := os.Create(path)
	if err != nil {
		return nil, nil, err
	}
	handler := slog.NewJSONHandler(file, &slog.HandlerOptions{Level: slog.LevelDebug})
	return handler, func() { file.Close() }, nil
}

// fanoutHandler delivers each record to every underlying handler that
// is enabled for its level.
type fanoutHandler []slog.Handler

func (handlers fanoutHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, handler := range handlers {
		if handler.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (handlers fanoutHandler) Handle(ctx context.Context, record slog.Record) error {
	for _, handler := range handlers {
		if handler.Enabled(ctx, record.Level) {
			if err := handler.Handle(ctx, record); err != nil {
				return err
			}
		}
	}
	return nil
}

func (handlers fanoutHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	derived := make(fanoutHandler, len(handlers))
	for index, handler := range handlers {
		derived[index] = handler.WithAttrs(attrs)
	}
	return derived
}

func (handlers fanoutHandler) WithGroup(name string) slog.Handler {
	derived := make(fanoutHandler, len(handlers))
	for index, handler := range handlers {
		derived[index] = handler.WithGroup(name)
	}
	return derived
}
