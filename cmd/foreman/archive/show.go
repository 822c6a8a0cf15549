// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package archive

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/foreman/cmd/foreman/cli"
	"github.com/bureau-foundation/foreman/lib/archive"
)

type showParams struct {
	cli.JSONOutput
	storeAccess
	Transcript bool `flag:"transcript" desc:"print the full transcript to stdout instead of the summary"`
}

func showCommand() *cli.Command {
	var params showParams

	return &cli.Command{
		Name:    "show",
		Summary: "Show one archived session record",
		Description: `Print an archived record: the session's identity, how it ended,
and its decision history. --transcript dumps the retained terminal
output to stdout instead, for piping into a pager or grep.`,
		Usage: "foreman archive show <record-id> [flags]",
		Examples: []cli.Example{
			{
				Description: "Show a record",
				Command:     "foreman archive show 01J9ZB8QK3",
			},
			{
				Description: "Read the transcript",
				Command:     "foreman archive show 01J9ZB8QK3 --transcript | less -R",
			},
		},
		Flags: func() *pflag.FlagSet {
			return cli.FlagsFromParams("show", &params)
		},
		Run: func(args []string) error {
			if len(args) != 1 {
				return fmt.Errorf("expected exactly one record ID argument, got %d", len(args))
			}
			return runShow(&params, args[0])
		},
	}
}

func runShow(params *showParams, id string) error {
	store, err := params.open()
	if err != nil {
		return err
	}
	defer store.Close()

	record, err := store.Read(id)
	if errors.Is(err, archive.ErrRecordNotFound) {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return &cli.ExitError{Code: 1}
	}
	if err != nil {
		return err
	}

	if params.Transcript {
		fmt.Fprint(os.Stdout, record.Transcript)
		if !strings.HasSuffix(record.Transcript, "\n") {
			fmt.Fprintln(os.Stdout)
		}
		return nil
	}

	if done, err := params.EmitJSON(record); done {
		return err
	}

	fmt.Fprintf(os.Stderr, "Record %s\n", record.ID)
	fmt.Fprintf(os.Stderr, "  Agent:    %s\n", record.AgentType)
	fmt.Fprintf(os.Stderr, "  Name:     %s\n", record.Name)
	if record.Label != "" {
		fmt.Fprintf(os.Stderr, "  Label:    %s\n", record.Label)
	}
	fmt.Fprintf(os.Stderr, "  Workdir:  %s\n", record.Workdir)
	if record.InitialTask != "" {
		fmt.Fprintf(os.Stderr, "  Task:     %s\n", record.InitialTask)
	}
	fmt.Fprintf(os.Stderr, "  Status:   %s\n", record.FinalStatus)
	if record.StopReason != "" {
		fmt.Fprintf(os.Stderr, "  Reason:   %s\n", record.StopReason)
	}
	fmt.Fprintf(os.Stderr, "  Spawned:  %s\n", record.SpawnedAt.Local().Format("2006-01-02 15:04:05"))
	fmt.Fprintf(os.Stderr, "  Stopped:  %s (ran %s)\n",
		record.StoppedAt.Local().Format("2006-01-02 15:04:05"),
		formatRunTime(record.StoppedAt.Sub(record.SpawnedAt)))
	fmt.Fprintf(os.Stderr, "  Transcript: %d bytes", len(record.Transcript))
	if record.TranscriptTruncated {
		fmt.Fprintf(os.Stderr, " (older output evicted)")
	}
	fmt.Fprintf(os.Stderr, "\n")

	if len(record.Decisions) > 0 {
		fmt.Fprintf(os.Stderr, "\nDecisions (%d, %d auto-resolved):\n", len(record.Decisions), record.AutoResolved)
		writer := tabwriter.NewWriter(os.Stderr, 0, 4, 2, ' ', 0)
		fmt.Fprintf(writer, "  TIME\tTRIGGER\tACTION\tOUTCOME\tREASONING\n")
		for _, decision := range record.Decisions {
			fmt.Fprintf(writer, "  %s\t%s\t%s\t%s\t%s\n",
				decision.Time.Local().Format("15:04:05"),
				decision.Trigger,
				decision.Action,
				decision.Outcome,
				firstLine(decision.Reasoning),
			)
		}
		writer.Flush()
	}
	return nil
}

// firstLine returns the first line of text, truncated for the table.
func firstLine(text string) string {
	if index := strings.IndexByte(text, '\n'); index >= 0 {
		text = text[:index]
	}
	runes := []rune(text)
	if len(runes) > 60 {
		return string(runes[:59]) + "…"
	}
	return text
}
