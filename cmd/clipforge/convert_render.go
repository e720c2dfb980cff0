package main

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"clipforge/internal/plan"
	"clipforge/internal/queue"
	"clipforge/internal/report"
	"clipforge/internal/scheduler"
	"clipforge/internal/services/ffmpegcli"
)

func renderPlanTable(plans []plan.JobPlan) string {
	headers := []string{"Job", "Mode", "Segments", "Duration", "Output"}
	rows := make([][]string, 0, len(plans))
	var notes []string
	for _, p := range plans {
		rows = append(rows, []string{
			shortID(p.ID),
			string(p.Mode),
			describeSegments(p),
			fmt.Sprintf("%.1fs", p.ExpectedDuration()),
			p.OutputPath,
		})
		for _, note := range p.BoundaryNotes {
			notes = append(notes, fmt.Sprintf("%s: %s", shortID(p.ID), note))
		}
	}
	aligns := []columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignLeft}
	out := renderTable(headers, rows, aligns)
	if len(notes) > 0 {
		out += "\nBoundary adjustments:\n  " + strings.Join(notes, "\n  ")
	}
	return out
}

// renderCommandPreview prints the ffmpeg command lines a dry run would
// execute, one invocation per line.
func renderCommandPreview(out io.Writer, binary string, client *ffmpegcli.Client, plans []plan.JobPlan) {
	fmt.Fprintln(out, "Commands:")
	for _, p := range plans {
		for _, args := range client.CommandPreview(p) {
			fmt.Fprintf(out, "  %s %s\n", binary, strings.Join(args, " "))
		}
	}
}

func describeSegments(p plan.JobPlan) string {
	if len(p.Segments) == 0 {
		return "whole file"
	}
	parts := make([]string, 0, len(p.Segments))
	for _, seg := range p.Segments {
		parts = append(parts, fmt.Sprintf("%.1f-%.1f", seg.Start, seg.End))
	}
	return strings.Join(parts, ", ")
}

// streamUpdates drains the batch's update channel, printing state
// transitions and coarse progress. It returns once the channel closes,
// which happens after every job is terminal.
func streamUpdates(out io.Writer, batch *scheduler.Batch) {
	lastStep := make(map[string]int)
	for update := range batch.Updates() {
		switch update.Status {
		case queue.StatusRunning:
			step := int(update.Fraction * 10)
			if prev, seen := lastStep[update.JobID]; seen && step <= prev {
				continue
			}
			lastStep[update.JobID] = step
			fmt.Fprintf(out, "%s  %3.0f%%\n", shortID(update.JobID), update.Fraction*100)
		case queue.StatusCompleted, queue.StatusFailed, queue.StatusCancelled:
			fmt.Fprintf(out, "%s  %s\n", shortID(update.JobID), update.Status)
		}
	}
}

func renderReportTable(rep report.BatchReport) string {
	headers := []string{"Job", "Status", "Detail", "Output"}
	rows := make([][]string, 0, len(rep.Jobs))
	for _, job := range rep.Jobs {
		detail := job.Message
		if detail == "" && job.Status == queue.StatusCompleted {
			detail = "ok"
		}
		output := job.OutputPath
		if output != "" {
			output = filepath.Base(output)
		}
		rows = append(rows, []string{shortID(job.ID), string(job.Status), detail, output})
	}
	aligns := []columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft}
	summary := fmt.Sprintf("Batch %s: %s (%d completed, %d failed, %d cancelled)",
		shortID(rep.BatchID), rep.Status, rep.Completed, rep.Failed, rep.Cancelled)
	return renderTable(headers, rows, aligns) + "\n" + summary
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
