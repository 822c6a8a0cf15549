// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package swarm

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/foreman/cmd/foreman/cli"
	"github.com/bureau-foundation/foreman/cmd/foreman/client"
)

type statusParams struct {
	client.Connection
	cli.JSONOutput
}

// StatusCommand returns the "status" command.
func StatusCommand() *cli.Command {
	var params statusParams

	return &cli.Command{
		Name:    "status",
		Summary: "Show the coordination status",
		Description: `Show the supervision level, every coordinated task, pending
confirmations, and the coordinator's counters.`,
		Usage: "foreman status [flags]",
		Examples: []cli.Example{
			{
				Description: "Show status as JSON for scripting",
				Command:     "foreman status --json",
			},
		},
		Flags: func() *pflag.FlagSet {
			return cli.FlagsFromParams("status", &params)
		},
		Run: func(args []string) error {
			if len(args) != 0 {
				return fmt.Errorf("status takes no arguments")
			}
			return runStatus(&params)
		},
	}
}

func runStatus(params *statusParams) error {
	ctx, cancel := callContext()
	defer cancel()

	status, err := params.Client().Status(ctx)
	if err != nil {
		return err
	}

	if done, err := params.EmitJSON(status); done {
		return err
	}

	fmt.Fprintf(os.Stderr, "Coordination Status\n")
	fmt.Fprintf(os.Stderr, "  Supervision:  %s\n", status.Supervision)
	fmt.Fprintf(os.Stderr, "  Tasks:        %d\n", status.TaskCount)
	fmt.Fprintf(os.Stderr, "  Pending:      %d\n", status.PendingConfirmations)

	metrics := status.Metrics
	fmt.Fprintf(os.Stderr, "\nCounters:\n")
	fmt.Fprintf(os.Stderr, "  Sessions spawned:       %d\n", metrics.SessionsSpawned)
	fmt.Fprintf(os.Stderr, "  Auto-responses:         %d\n", metrics.AutoResponses)
	fmt.Fprintf(os.Stderr, "  Decisions respond:      %d\n", metrics.DecisionsRespond)
	fmt.Fprintf(os.Stderr, "  Decisions escalate:     %d\n", metrics.DecisionsEscalate)
	fmt.Fprintf(os.Stderr, "  Decisions ignore:       %d\n", metrics.DecisionsIgnore)
	fmt.Fprintf(os.Stderr, "  Decisions complete:     %d\n", metrics.DecisionsComplete)
	fmt.Fprintf(os.Stderr, "  Unparseable decisions:  %d\n", metrics.UnparseableDecisions)
	fmt.Fprintf(os.Stderr, "  Stall classifications:  %d\n", metrics.StallClassifications)
	fmt.Fprintf(os.Stderr, "  Worker faults:          %d\n", metrics.WorkerFaults)

	if len(status.Tasks) > 0 {
		now := time.Now()
		fmt.Fprintf(os.Stderr, "\nTasks:\n")
		writer := tabwriter.NewWriter(os.Stderr, 0, 4, 2, ' ', 0)
		fmt.Fprintf(writer, "  SESSION\tLABEL\tSTATUS\tDECISIONS\tAUTO\tUPDATED\n")
		for _, task := range status.Tasks {
			fmt.Fprintf(writer, "  %s\t%s\t%s\t%d\t%d\t%s ago\n",
				task.SessionID,
				task.Label,
				task.Status,
				len(task.History),
				task.AutoResolvedCount,
				formatAge(now.Sub(task.UpdatedAt)),
			)
		}
		writer.Flush()
	}
	return nil
}

// callContext returns a context with a timeout covering one daemon
// API call.
func callContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 30*time.Second)
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
