package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/fatih/color"
	"github.com/felixgeelhaar/icesync/internal/scoring/application"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var (
	syncDryRun bool
	syncOutput string
)

// ErrRunFailed is returned when a sync pass recorded failures.
var ErrRunFailed = errors.New("sync finished with failures")

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Rescore tasks once without waiting for a webhook",
	RunE: func(cmd *cobra.Command, args []string) error {
		write, err := summaryWriter(syncOutput)
		if err != nil {
			return err
		}

		c, err := newContainer(cmd.Context())
		if err != nil {
			return err
		}
		defer c.Close()

		summary := c.Processor.WithDryRun(syncDryRun).Run(cmd.Context())
		if err := write(cmd.OutOrStdout(), summary); err != nil {
			return err
		}

		if summary.Failed() {
			return ErrRunFailed
		}
		return nil
	},
}

type summaryWriterFunc func(io.Writer, *application.RunSummary) error

func summaryWriter(format string) (summaryWriterFunc, error) {
	switch format {
	case "", "text":
		return printSummary, nil
	case "json":
		return func(w io.Writer, s *application.RunSummary) error {
			enc := json.NewEncoder(w)
			enc.SetIndent("", "  ")
			return enc.Encode(s)
		}, nil
	case "yaml":
		return func(w io.Writer, s *application.RunSummary) error {
			enc := yaml.NewEncoder(w)
			enc.SetIndent(2)
			if err := enc.Encode(s); err != nil {
				return err
			}
			return enc.Close()
		}, nil
	default:
		return nil, fmt.Errorf("unknown output format %q (want text, json or yaml)", format)
	}
}

var (
	updatedColor = color.New(color.FgGreen)
	plannedColor = color.New(color.FgCyan)
	failedColor  = color.New(color.FgRed)
)

func printSummary(w io.Writer, s *application.RunSummary) error {
	if s.FetchError != "" {
		failedColor.Fprintf(w, "Fetch failed: %s\n", s.FetchError)
	}
	for _, r := range s.Results {
		label := fmt.Sprintf("%-10s", r.Outcome)
		switch r.Outcome {
		case application.OutcomeUpdated:
			fmt.Fprintf(w, "%s %s  p%d  %s\n", updatedColor.Sprint(label), r.TaskID, r.Priority, r.Content)
		case application.OutcomePlanned:
			fmt.Fprintf(w, "%s %s  p%d  %s\n", plannedColor.Sprint(label), r.TaskID, r.Priority, r.Content)
		case application.OutcomeFailed:
			fmt.Fprintf(w, "%s %s  %s\n", failedColor.Sprint(label), r.TaskID, r.Error)
		}
	}
	_, err := fmt.Fprintf(w, "Fetched %d tasks: updated=%d planned=%d unchanged=%d ineligible=%d failed=%d\n",
		s.Fetched,
		s.Count(application.OutcomeUpdated),
		s.Count(application.OutcomePlanned),
		s.Count(application.OutcomeUnchanged),
		s.Count(application.OutcomeIneligible),
		s.Count(application.OutcomeFailed),
	)
	return err
}

func init() {
	syncCmd.Flags().BoolVar(&syncDryRun, "dry-run", false, "show what would change without updating tasks")
	syncCmd.Flags().StringVarP(&syncOutput, "output", "o", "text", "output format: text, json or yaml")
	rootCmd.AddCommand(syncCmd)
}
