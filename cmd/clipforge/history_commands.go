package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"clipforge/internal/queue"
)

func newHistoryCommand(cctx *commandContext) *cobra.Command {
	var limitFlag int

	cmd := &cobra.Command{
		Use:   "history [batch-id]",
		Short: "List recent batches, or the jobs of one batch",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := cctx.ensureConfig()
			if err != nil {
				return err
			}
			store, err := queue.Open(cfg)
			if err != nil {
				return fmt.Errorf("open history: %w", err)
			}
			defer store.Close()

			out := cmd.OutOrStdout()
			if len(args) == 1 {
				jobs, err := store.BatchJobs(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if len(jobs) == 0 {
					fmt.Fprintf(out, "No jobs recorded for batch %s.\n", args[0])
					return nil
				}
				headers := []string{"Job", "Status", "Mode", "Progress", "Output", "Error"}
				rows := make([][]string, 0, len(jobs))
				for _, job := range jobs {
					rows = append(rows, []string{
						shortID(job.ID),
						string(job.Status),
						job.Mode,
						fmt.Sprintf("%.0f%%", job.ProgressPercent),
						job.OutputPath,
						job.ErrorMessage,
					})
				}
				aligns := []columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignLeft, alignLeft}
				fmt.Fprintln(out, renderTable(headers, rows, aligns))
				return nil
			}

			batches, err := store.RecentBatches(cmd.Context(), limitFlag)
			if err != nil {
				return err
			}
			if len(batches) == 0 {
				fmt.Fprintln(out, "No batches recorded yet.")
				return nil
			}
			headers := []string{"Batch", "Status", "Jobs", "Started", "Finished"}
			rows := make([][]string, 0, len(batches))
			for _, batch := range batches {
				finished := "-"
				if batch.FinishedAt != nil {
					finished = batch.FinishedAt.Local().Format(time.DateTime)
				}
				rows = append(rows, []string{
					batch.ID,
					string(batch.Status),
					fmt.Sprintf("%d", batch.JobCount),
					batch.CreatedAt.Local().Format(time.DateTime),
					finished,
				})
			}
			aligns := []columnAlignment{alignLeft, alignLeft, alignRight, alignLeft, alignLeft}
			fmt.Fprintln(out, renderTable(headers, rows, aligns))
			return nil
		},
	}

	cmd.Flags().IntVar(&limitFlag, "limit", 20, "Maximum number of batches to list")
	return cmd
}

func newStatusCommand(cctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Summarize recorded jobs by lifecycle state",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := cctx.ensureConfig()
			if err != nil {
				return err
			}
			store, err := queue.Open(cfg)
			if err != nil {
				return fmt.Errorf("open history: %w", err)
			}
			defer store.Close()

			summary, err := store.Stats(cmd.Context())
			if err != nil {
				return err
			}

			headers := []string{"State", "Jobs"}
			rows := [][]string{
				{"pending", fmt.Sprintf("%d", summary.Pending)},
				{"running", fmt.Sprintf("%d", summary.Running)},
				{"completed", fmt.Sprintf("%d", summary.Completed)},
				{"failed", fmt.Sprintf("%d", summary.Failed)},
				{"cancelled", fmt.Sprintf("%d", summary.Cancelled)},
				{"total", fmt.Sprintf("%d", summary.Total)},
			}
			aligns := []columnAlignment{alignLeft, alignRight}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable(headers, rows, aligns))
			return nil
		},
	}
}
