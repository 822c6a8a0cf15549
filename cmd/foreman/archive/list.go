// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package archive

import (
	"fmt"
	"os"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/foreman/cmd/foreman/cli"
)

type listParams struct {
	cli.JSONOutput
	storeAccess
	Agent string `flag:"agent" desc:"only records of this agent type"`
}

func listCommand() *cli.Command {
	var params listParams

	return &cli.Command{
		Name:    "list",
		Summary: "List archived session records",
		Usage:   "foreman archive list [flags]",
		Examples: []cli.Example{
			{
				Description: "List archived codex sessions as JSON",
				Command:     "foreman archive list --agent codex --json",
			},
		},
		Flags: func() *pflag.FlagSet {
			return cli.FlagsFromParams("list", &params)
		},
		Run: func(args []string) error {
			if len(args) != 0 {
				return fmt.Errorf("list takes no arguments")
			}
			return runList(&params)
		},
	}
}

func runList(params *listParams) error {
	store, err := params.open()
	if err != nil {
		return err
	}
	defer store.Close()

	entries, err := store.List()
	if err != nil {
		return err
	}

	if params.Agent != "" {
		filtered := entries[:0]
		for _, entry := range entries {
			if entry.AgentType == params.Agent {
				filtered = append(filtered, entry)
			}
		}
		entries = filtered
	}

	// Newest first; the index appends in write order.
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].StoppedAt.After(entries[j].StoppedAt)
	})

	if done, err := params.EmitJSON(entries); done {
		return err
	}

	if len(entries) == 0 {
		fmt.Fprintf(os.Stderr, "No archived records.\n")
		return nil
	}

	writer := tabwriter.NewWriter(os.Stderr, 0, 4, 2, ' ', 0)
	fmt.Fprintf(writer, "ID\tAGENT\tLABEL\tSTATUS\tSTOPPED\tDURATION\tSIZE\n")
	for _, entry := range entries {
		fmt.Fprintf(writer, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			entry.ID,
			entry.AgentType,
			entry.Label,
			entry.FinalStatus,
			entry.StoppedAt.Local().Format("2006-01-02 15:04"),
			formatRunTime(entry.StoppedAt.Sub(entry.SpawnedAt)),
			formatSize(entry.StoredSize),
		)
	}
	return writer.Flush()
}

// formatRunTime formats a session's lifetime for the listing.
func formatRunTime(duration time.Duration) string {
	if duration < 0 {
		duration = 0
	}
	hours := int(duration.Hours())
	minutes := int(duration.Minutes()) % 60
	seconds := int(duration.Seconds()) % 60
	if hours > 0 {
		return fmt.Sprintf("%dh %dm", hours, minutes)
	}
	if minutes > 0 {
		return fmt.Sprintf("%dm %ds", minutes, seconds)
	}
	return fmt.Sprintf("%ds", seconds)
}

// formatSize formats a byte count with a binary unit.
func formatSize(size int64) string {
	switch {
	case size >= 1<<20:
		return fmt.Sprintf("%.1f MiB", float64(size)/(1<<20))
	case size >= 1<<10:
		return fmt.Sprintf("%.1f KiB", float64(size)/(1<<10))
	default:
		return fmt.Sprintf("%d B", size)
	}
}
