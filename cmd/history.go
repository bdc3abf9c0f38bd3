package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/zjrosen/spmbatch/internal/history"
)

var historyLimit int

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List recorded batch runs",
	RunE:  runHistory,
}

func init() {
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "maximum runs to list (0 for all)")
	rootCmd.AddCommand(historyCmd)
}

func runHistory(cmd *cobra.Command, args []string) error {
	if cfg.History.Path == "" {
		return fmt.Errorf("no history path configured")
	}

	store, err := history.Open(cfg.History.Path)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	runs, err := store.List(historyLimit)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "no recorded runs")
		return nil
	}

	for _, r := range runs {
		fmt.Fprintf(cmd.OutOrStdout(), "%s  %-10s %-14s selected=%d total=%d succeeded=%d\n",
			r.StartedAt.Format("2006-01-02 15:04:05"), r.Operation, r.Outcome,
			r.Selected, r.Total, r.Succeeded)
		for _, e := range r.Errors {
			fmt.Fprintf(cmd.OutOrStdout(), "    error: %s\n", e)
		}
	}
	return nil
}
