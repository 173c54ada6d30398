package main

import (
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"otapatch/internal/safety"
	"otapatch/internal/tools"
)

func newListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list URL",
		Short: "List the partitions of an OTA archive",
		Long: `List the partitions contained in an Android OTA update archive without
extracting anything. Shows each partition's name, size, and hash, plus the
archive's security patch level when available.`,
		Example: `  otapatch list https://example.com/ota.zip`,
		Args:    cobra.ExactArgs(1),
		RunE:    listRun,
	}

	return cmd
}

func listRun(cmd *cobra.Command, args []string) error {
	rawURL := args[0]
	if _, err := safety.ValidateHTTPURL(rawURL); err != nil {
		return fmt.Errorf("invalid archive URL: %w", err)
	}

	if err := globalTools.EnsurePresent(cmd.Context(), tools.PayloadDumper); err != nil {
		return fmt.Errorf("failed to acquire payload-dumper: %w", err)
	}

	info, err := globalPayload.List(cmd.Context(), rawURL)
	if err != nil {
		return fmt.Errorf("failed to list archive: %w", err)
	}

	fmt.Printf("Archive: %s\n", rawURL)
	if info.SecurityPatchLevel != "" {
		fmt.Printf("Security patch level: %s\n", info.SecurityPatchLevel)
	}
	fmt.Printf("Partitions: %d (%s total)\n", info.TotalPartitions, info.TotalSizeReadable)
	fmt.Println("")
	fmt.Printf("%-20s %12s  %s\n", "Partition", "Size", "Hash")
	fmt.Println(strings.Repeat("-", 70))
	for _, p := range info.Partitions {
		fmt.Printf("%-20s %12s  %s\n", p.Name, humanize.IBytes(p.SizeBytes), p.Hash)
	}

	return nil
}
