package main

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"
	"time"

	"docrelay/history"

	"github.com/spf13/cobra"
)

func newHistoryCommand(opts *options) *cobra.Command {
	historyCmd := &cobra.Command{
		Use:   "history",
		Short: "Inspect past conversions",
	}

	var dataDir string
	historyCmd.PersistentFlags().StringVar(&dataDir, "data-dir", "", "Data directory (default from configuration)")

	withStore := func(run func(cmd *cobra.Command, args []string) error) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, opts, nil)
			if err != nil {
				return err
			}
			if dataDir != "" {
				cfg.DataDir = dataDir
			}
			if !openHistory(cfg.DataDir) {
				return fmt.Errorf("history store unavailable in %s", cfg.DataDir)
			}
			defer history.Close()
			return run(cmd, args)
		}
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List recorded conversions, newest first",
		Args:  cobra.NoArgs,
		RunE: withStore(func(cmd *cobra.Command, args []string) error {
			records, err := history.List()
			if err != nil {
				return err
			}
			if len(records) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No conversions recorded")
				return nil
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "KEY\tWHEN\tTITLE\tFORMAT\tSTATUS\tSIZE\tDURATION")
			for _, rec := range records {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s->%s\t%s\t%d\t%s\n",
					rec.Key,
					rec.Timestamp.Local().Format("2006-01-02 15:04:05"),
					rec.Title,
					rec.SourceFormat, rec.OutputFormat,
					rec.Status,
					rec.Size,
					rec.Duration.Round(time.Millisecond),
				)
			}
			return w.Flush()
		}),
	}

	showCmd := &cobra.Command{
		Use:   "show <key>",
		Short: "Show one recorded conversion as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: withStore(func(cmd *cobra.Command, args []string) error {
			rec, err := history.Get(args[0])
			if err != nil {
				return err
			}
			if rec == nil {
				return fmt.Errorf("no conversion recorded with key %s", args[0])
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(rec)
		}),
	}

	deleteCmd := &cobra.Command{
		Use:   "delete <key>",
		Short: "Remove one recorded conversion",
		Args:  cobra.ExactArgs(1),
		RunE: withStore(func(cmd *cobra.Command, args []string) error {
			rec, err := history.Get(args[0])
			if err != nil {
				return err
			}
			if rec == nil {
				return fmt.Errorf("no conversion recorded with key %s", args[0])
			}
			if err := history.Delete(args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s\n", args[0])
			return nil
		}),
	}

	var maxAge time.Duration
	cleanupCmd := &cobra.Command{
		Use:   "cleanup",
		Short: "Remove recorded conversions older than --max-age",
		Args:  cobra.NoArgs,
		RunE: withStore(func(cmd *cobra.Command, args []string) error {
			removed, err := history.CleanupOldRecords(maxAge)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Removed %d records\n", removed)
			return nil
		}),
	}
	cleanupCmd.Flags().DurationVar(&maxAge, "max-age", historyRetention, "Keep records younger than this")

	historyCmd.AddCommand(listCmd, showCmd, deleteCmd, cleanupCmd)
	return historyCmd
}
