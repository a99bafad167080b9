package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/4n6ix/triagehost/internal/session"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List past scans from the history database",
	RunE:  runHistory,
}

func init() {
	rootCmd.AddCommand(historyCmd)
	historyCmd.Flags().String("db", "triagehost-history.db", "Scan history database path")
	historyCmd.Flags().Int("limit", 20, "Maximum number of scans to list (0 = all)")
	historyCmd.Flags().Duration("prune", 0, "Delete scans older than this age before listing")
}

func runHistory(cmd *cobra.Command, args []string) error {
	dbPath, _ := cmd.Flags().GetString("db")
	store, err := session.NewSQLiteStore(dbPath)
	if err != nil {
		return err
	}
	defer store.Close()

	ctx := cmd.Context()
	if prune, _ := cmd.Flags().GetDuration("prune"); prune > 0 {
		removed, err := store.Cleanup(ctx, prune)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "pruned %d scan(s)\n", removed)
	}

	limit, _ := cmd.Flags().GetInt("limit")
	records, err := store.List(ctx, limit)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "no scans recorded")
		return nil
	}

	out := cmd.OutOrStdout()
	for _, rec := range records {
		fmt.Fprintf(out, "%s  %-15s  %-15s  %4d artifacts  %2d warn  %2d err  %s\n",
			rec.StartUTC.UTC().Format(time.RFC3339),
			rec.Hostname,
			rec.Status,
			rec.TotalArtifacts,
			rec.Warnings,
			rec.Errors,
			rec.ScanID)
	}
	return nil
}
