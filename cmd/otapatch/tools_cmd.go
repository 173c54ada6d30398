package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"otapatch/internal/store"
	"otapatch/internal/tools"
)

var toolsRefresh bool

func newToolsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tools",
		Short: "Acquire and inspect the cached helper binaries",
		Long: `Ensure the helper binaries (ksud, magiskboot, payload-dumper) are present
in the local cache, fetching any that are missing from their upstream
GitHub releases. With --refresh, the latest release of every tool is
fetched even if a cached copy exists.`,
		Example: `  otapatch tools
  otapatch tools --refresh`,
		RunE: toolsRun,
	}

	cmd.Flags().BoolVar(&toolsRefresh, "refresh", false, "re-fetch the latest release of every tool")

	return cmd
}

func toolsRun(cmd *cobra.Command, args []string) error {
	job := startJob(store.KindTools, "", "")

	kinds := []tools.Kind{tools.Ksud, tools.Magiskboot, tools.PayloadDumper}

	var err error
	if toolsRefresh {
		for _, kind := range kinds {
			if err = globalTools.FetchLatest(cmd.Context(), kind); err != nil {
				break
			}
		}
	} else {
		err = globalTools.EnsureAll(cmd.Context())
	}
	if err != nil {
		finishJob(job, err, 0, "")
		return fmt.Errorf("tool acquisition failed: %w", err)
	}

	var totalBytes int64
	fmt.Printf("%-16s %10s  %s\n", "Tool", "Size", "Path")
	fmt.Println(strings.Repeat("-", 70))
	for _, kind := range kinds {
		t := globalTools.Tool(kind)
		sizeStr := "?"
		if fi, statErr := os.Stat(t.Path()); statErr == nil {
			sizeStr = humanize.IBytes(uint64(fi.Size()))
			totalBytes += fi.Size()
		}
		fmt.Printf("%-16s %10s  %s\n", t.Name(), sizeStr, t.Path())
	}

	finishJob(job, nil, totalBytes, "")
	return nil
}
