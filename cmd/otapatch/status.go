package main

import (
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"otapatch/internal/store"
)

var statusLimit int

func newStatusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Display recent job history",
		Long: `Display the most recent dump, patch, and tool-acquisition jobs recorded
in the local database, newest first.`,
		Example: `  otapatch status
  otapatch status --limit 50`,
		RunE: statusRun,
	}

	cmd.Flags().IntVar(&statusLimit, "limit", 20, "maximum number of jobs to show")

	return cmd
}

func statusRun(cmd *cobra.Command, args []string) error {
	jobs, err := globalStore.ListRecentJobs(statusLimit)
	if err != nil {
		return fmt.Errorf("failed to list jobs: %w", err)
	}

	if len(jobs) == 0 {
		fmt.Println("No jobs recorded yet")
		return nil
	}

	fmt.Printf("%-5s %-6s %-8s %10s %-17s %s\n", "ID", "Kind", "Status", "Written", "Started", "Detail")
	fmt.Println(strings.Repeat("-", 90))
	for _, j := range jobs {
		detail := j.URL
		if j.Status == store.StatusFailed && j.ErrorMessage != "" {
			detail = j.ErrorMessage
		} else if j.Kind == store.KindPatch && j.Artifact != "" {
			detail = j.Artifact
		}
		fmt.Printf("%-5d %-6s %-8s %10s %-17s %s\n",
			j.ID,
			j.Kind,
			j.Status,
			humanize.IBytes(uint64(j.BytesWritten)),
			j.StartTime.Format("2006-01-02 15:04"),
			detail,
		)
	}

	return nil
}
