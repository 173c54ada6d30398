package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"otapatch/internal/bootpatch"
	"otapatch/internal/safety"
	"otapatch/internal/store"
)

var patchKeep bool

func newPatchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "patch URL PARTITION [METHOD]",
		Short: "Dump a boot image from an OTA archive and patch it for rooting",
		Long: `Dump the target partition (and the boot partition, whose kernel carries
the version metadata) from an Android OTA update archive, then patch the
target image. The patched image is written to the current directory.

PARTITION is one of boot, init_boot, or vendor_boot. METHOD defaults to
kernelsu; magisk is recognized but not yet implemented.`,
		Example: `  otapatch patch https://example.com/ota.zip boot
  otapatch patch https://example.com/ota.zip init_boot kernelsu
  otapatch patch https://example.com/ota.zip vendor_boot --keep`,
		Args: cobra.RangeArgs(2, 3),
		RunE: patchRun,
	}

	cmd.Flags().BoolVar(&patchKeep, "keep", false, "leave the working directory in place after patching")

	return cmd
}

func patchRun(cmd *cobra.Command, args []string) error {
	rawURL := args[0]
	if _, err := safety.ValidateHTTPURL(rawURL); err != nil {
		return fmt.Errorf("invalid archive URL: %w", err)
	}

	partition, err := bootpatch.ParsePartition(args[1])
	if err != nil {
		return err
	}

	method := bootpatch.KernelSU
	if len(args) == 3 {
		method, err = bootpatch.ParseMethod(args[2])
		if err != nil {
			return err
		}
	}

	if err := globalTools.EnsureAll(cmd.Context()); err != nil {
		return fmt.Errorf("failed to acquire tools: %w", err)
	}

	job := startJob(store.KindPatch, rawURL, partition.Name())

	artifact, err := globalPatcher.Patch(cmd.Context(), rawURL, partition, method)
	if err != nil {
		finishJob(job, err, 0, "")
		return fmt.Errorf("patch failed: %w", err)
	}

	dest := filepath.Base(artifact.Path)
	if err := moveFile(artifact.Path, dest); err != nil {
		finishJob(job, err, 0, "")
		return fmt.Errorf("failed to move patched image: %w", err)
	}

	var bytesWritten int64
	if fi, err := os.Stat(dest); err == nil {
		bytesWritten = fi.Size()
	}

	if !patchKeep {
		if err := os.RemoveAll(artifact.WorkDir); err != nil {
			logger.Warn("failed to clean up working directory", "dir", artifact.WorkDir, "error", err)
		}
	} else {
		fmt.Printf("Working directory: %s\n", artifact.WorkDir)
	}

	finishJob(job, nil, bytesWritten, dest)

	fmt.Printf("Kernel version: %s\n", artifact.KernelVersion)
	fmt.Printf("KMI:            %s\n", artifact.KMI)
	fmt.Printf("Patched image:  %s\n", dest)
	return nil
}
