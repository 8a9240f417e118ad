package cli

import (
	"fmt"

	"github.com/felixgeelhaar/icesync/internal/scoring/application"
	"github.com/felixgeelhaar/icesync/internal/scoring/domain"
	"github.com/spf13/cobra"
)

var (
	scoreLabels []string
	scoreTag    string
)

var scoreCmd = &cobra.Command{
	Use:   "score [title]",
	Short: "Score labels offline and show the rewritten title",
	Example: `  icesync score --label Impact-6 --label C-6 --label E-10 "Ship feature"
  icesync score -l I-8 -l C-7 -l E-10 "ICE-S 036.0: Buy milk"`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		codec, err := domain.NewScoreCodec(scoreTag)
		if err != nil {
			return err
		}

		task := domain.Task{Labels: scoreLabels}
		if len(args) == 1 {
			task.Content = args[0]
		}

		out := cmd.OutOrStdout()
		m, ok := domain.ExtractMetrics(task.Labels)
		if !ok {
			fmt.Fprintln(out, "Not eligible: Impact, Confidence and Ease labels are all required")
			return nil
		}

		score := m.Score()
		tier := domain.PriorityTierFor(score)
		decision := application.NewReconciler(codec).Reconcile(task, score)
		fmt.Fprintf(out, "Score:    %s (impact=%d confidence=%d ease=%d)\n", score, m.Impact, m.Confidence, m.Ease)
		fmt.Fprintf(out, "Priority: %d (%s)\n", tier, tier)
		if decision.Action == application.ActionNoOp {
			fmt.Fprintf(out, "Title:    %s (unchanged)\n", task.Content)
			return nil
		}
		fmt.Fprintf(out, "Title:    %s\n", decision.Content)
		return nil
	},
}

func init() {
	scoreCmd.Flags().StringArrayVarP(&scoreLabels, "label", "l", nil, "task label, e.g. Impact-8 or I-8 (repeatable)")
	scoreCmd.Flags().StringVar(&scoreTag, "tag", domain.DefaultScoreTag, "score tag used in titles")
	rootCmd.AddCommand(scoreCmd)
}
