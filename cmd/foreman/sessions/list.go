// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package sessions

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/foreman/cmd/foreman/cli"
	"github.com/bureau-foundation/foreman/cmd/foreman/client"
	"github.com/bureau-foundation/foreman/lib/coordinator"
	"github.com/bureau-foundation/foreman/lib/session"
)

type listParams struct {
	client.Connection
	cli.JSONOutput
	AgentType string `flag:"agent" desc:"only sessions of this agent type"`
	Status    string `flag:"status" desc:"only sessions with this status (spawning, ready, busy, blocked, stopped, error)"`
}

// sessionDetail is the combined view of one session and, when the
// session is coordinated, its task.
type sessionDetail struct {
	Session session.Session          `json:"session"`
	Task    *coordinator.TaskContext `json:"task,omitempty"`
}

// ListCommand returns the "sessions" command.
func ListCommand() *cli.Command {
	var params listParams

	return &cli.Command{
		Name:    "sessions",
		Summary: "List sessions or show one in detail",
		Description: `Without arguments, list all sessions the daemon manages. With a
session ID, show that session together with its coordinated task and
decision history, when it has one.`,
		Usage: "foreman sessions [session-id] [flags]",
		Examples: []cli.Example{
			{
				Description: "List every running claude session",
				Command:     "foreman sessions --agent claude --status busy",
			},
			{
				Description: "Inspect one session and its task",
				Command:     "foreman sessions 01J9ZB8QK3",
			},
		},
		Flags: func() *pflag.FlagSet {
			return cli.FlagsFromParams("sessions", &params)
		},
		Run: func(args []string) error {
			switch len(args) {
			case 0:
				return runList(&params)
			case 1:
				return runShow(&params, args[0])
			default:
				return fmt.Errorf("expected at most one session ID argument, got %d", len(args))
			}
		},
	}
}

func runList(params *listParams) error {
	ctx, cancel := callContext()
	defer cancel()

	sessions, err := params.Client().Sessions(ctx, params.AgentType, params.Status)
	if err != nil {
		return err
	}

	if done, err := params.EmitJSON(sessions); done {
		return err
	}

	if len(sessions) == 0 {
		fmt.Fprintf(os.Stderr, "No sessions.\n")
		return nil
	}

	now := time.Now()
	writer := tabwriter.NewWriter(os.Stderr, 0, 4, 2, ' ', 0)
	fmt.Fprintf(writer, "ID\tAGENT\tNAME\tSTATUS\tAGE\tACTIVITY\n")
	for _, s := range sessions {
		fmt.Fprintf(writer, "%s\t%s\t%s\t%s\t%s\t%s\n",
			s.ID,
			s.AgentType,
			s.Name,
			s.Status,
			formatAge(now.Sub(s.CreatedAt)),
			formatAge(now.Sub(s.LastActivityAt)),
		)
	}
	return writer.Flush()
}

func runShow(params *listParams, id string) error {
	ctx, cancel := callContext()
	defer cancel()

	daemon := params.Client()
	found, err := daemon.Session(ctx, id)
	if err != nil {
		return err
	}

	detail := sessionDetail{Session: found}
	task, err := daemon.Task(ctx, id)
	switch {
	case err == nil:
		detail.Task = &task
	case client.IsNotFound(err):
		// Uncoordinated session; the session half is still useful.
	default:
		return err
	}

	if done, err := params.EmitJSON(detail); done {
		return err
	}

	now := time.Now()
	fmt.Fprintf(os.Stderr, "Session %s\n", found.ID)
	fmt.Fprintf(os.Stderr, "  Agent:     %s\n", found.AgentType)
	fmt.Fprintf(os.Stderr, "  Name:      %s\n", found.Name)
	fmt.Fprintf(os.Stderr, "  Workdir:   %s\n", found.Workdir)
	fmt.Fprintf(os.Stderr, "  Status:    %s\n", found.Status)
	fmt.Fprintf(os.Stderr, "  Age:       %s\n", formatAge(now.Sub(found.CreatedAt)))
	fmt.Fprintf(os.Stderr, "  Activity:  %s ago\n", formatAge(now.Sub(found.LastActivityAt)))

	if detail.Task == nil {
		fmt.Fprintf(os.Stderr, "\nNot coordinated.\n")
		return nil
	}

	fmt.Fprintf(os.Stderr, "\nTask %q\n", detail.Task.Label)
	fmt.Fprintf(os.Stderr, "  Status:         %s\n", detail.Task.Status)
	fmt.Fprintf(os.Stderr, "  Task:           %s\n", detail.Task.OriginalTask)
	fmt.Fprintf(os.Stderr, "  Auto-resolved:  %d\n", detail.Task.AutoResolvedCount)
	fmt.Fprintf(os.Stderr, "  Idle checks:    %d\n", detail.Task.IdleChecks)

	if len(detail.Task.History) > 0 {
		fmt.Fprintf(os.Stderr, "\nDecisions:\n")
		writer := tabwriter.NewWriter(os.Stderr, 0, 4, 2, ' ', 0)
		fmt.Fprintf(writer, "  TIME\tTRIGGER\tACTION\tOUTCOME\tREASONING\n")
		for _, entry := range detail.Task.History {
			fmt.Fprintf(writer, "  %s\t%s\t%s\t%s\t%s\n",
				entry.Time.Local().Format("15:04:05"),
				entry.Trigger,
				entry.Action,
				entry.Outcome,
				truncateLine(entry.Reasoning, 60),
			)
		}
		writer.Flush()
	}
	return nil
}

// formatAge formats a duration as a short age string for tables.
func formatAge(duration time.Duration) string {
	if duration < 0 {
		duration = 0
	}
	days := int(duration.Hours()) / 24
	hours := int(duration.Hours()) % 24
	minutes := int(duration.Minutes()) % 60
	seconds := int(duration.Seconds()) % 60

	if days > 0 {
		return fmt.Sprintf("%dd %dh", days, hours)
	}
	if hours > 0 {
		return fmt.Sprintf("%dh %dm", hours, minutes)
	}
	if minutes > 0 {
		return fmt.Sprintf("%dm %ds", minutes, seconds)
	}
	return fmt.Sprintf("%ds", seconds)
}

// truncateLine shortens text to limit runes on a single line.
func truncateLine(text string, limit int) string {
	runes := []rune(text)
	if len(runes) <= limit {
		return text
	}
	return string(runes[:limit-1]) + "…"
}
