package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"otapatch/internal/compress"
	"otapatch/internal/dump"
	"otapatch/internal/safety"
	"otapatch/internal/store"
	"otapatch/internal/tools"
)

var (
	dumpKeep     bool
	dumpCompress string
)

func newDumpCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "dump URL PARTITIONS",
		Short: "Extract partition images from an OTA archive",
		Long: `Extract one or more partition images from an Android OTA update archive.
Partitions are extracted concurrently into a fresh working directory under
the data directory. Extracted images are moved to the current directory
unless --keep leaves them in the working directory.

PARTITIONS is a comma-separated list, e.g. boot,init_boot,vbmeta.`,
		Example: `  otapatch dump https://example.com/ota.zip boot
  otapatch dump https://example.com/ota.zip boot,vbmeta,dtbo
  otapatch dump https://example.com/ota.zip boot --compress zstd --keep`,
		Args: cobra.ExactArgs(2),
		RunE: dumpRun,
	}

	cmd.Flags().BoolVar(&dumpKeep, "keep", false, "leave images in the working directory instead of the current directory")
	cmd.Flags().StringVar(&dumpCompress, "compress", "", "compress extracted images (none, zstd, xz); defaults to the config setting")

	return cmd
}

func dumpRun(cmd *cobra.Command, args []string) error {
	rawURL := args[0]
	if _, err := safety.ValidateHTTPURL(rawURL); err != nil {
		return fmt.Errorf("invalid archive URL: %w", err)
	}

	var names []string
	for _, p := range strings.Split(args[1], ",") {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if !globalCfg.PartitionSupported(p) {
			return fmt.Errorf("unsupported partition %q (supported: %s)",
				p, strings.Join(globalCfg.Dump.SupportedPartitions, ", "))
		}
		names = append(names, p)
	}
	if len(names) == 0 {
		return fmt.Errorf("no partitions requested")
	}

	codecName := dumpCompress
	if codecName == "" {
		codecName = globalCfg.Dump.Compression
	}
	codec, err := compress.ParseCodec(codecName)
	if err != nil {
		return err
	}

	if err := globalTools.EnsurePresent(cmd.Context(), tools.PayloadDumper); err != nil {
		return fmt.Errorf("failed to acquire payload-dumper: %w", err)
	}

	job := startJob(store.KindDump, rawURL, strings.Join(names, ","))

	result, err := globalDumper.Dump(cmd.Context(), rawURL, names)
	if err != nil {
		finishJob(job, err, 0, "")
		// The orchestrator never deletes its working directory; on failure
		// ownership passes to us.
		var dumpErr *dump.Error
		if errors.As(err, &dumpErr) && !dumpKeep {
			if rmErr := os.RemoveAll(dumpErr.TempDir); rmErr != nil {
				logger.Warn("failed to clean up working directory", "dir", dumpErr.TempDir, "error", rmErr)
			}
		}
		return fmt.Errorf("dump failed: %w", err)
	}

	var totalBytes int64
	fmt.Printf("%-20s %12s  %s\n", "Partition", "Size", "File")
	fmt.Println(strings.Repeat("-", 70))
	for _, p := range result.Partitions {
		outPath := p.Path
		if !dumpKeep {
			dest := fmt.Sprintf("%s.img", p.Name)
			if err := moveFile(p.Path, dest); err != nil {
				finishJob(job, err, totalBytes, "")
				return fmt.Errorf("failed to move %s: %w", p.Name, err)
			}
			outPath = dest
		}
		if codec != compress.None {
			compressed, err := compress.File(outPath, codec)
			if err != nil {
				finishJob(job, err, totalBytes, "")
				return fmt.Errorf("failed to compress %s: %w", p.Name, err)
			}
			outPath = compressed
		}
		totalBytes += int64(p.SizeBytes)
		fmt.Printf("%-20s %12s  %s\n", p.Name, humanize.IBytes(p.SizeBytes), outPath)
	}

	if !dumpKeep {
		if err := os.RemoveAll(result.TempDir); err != nil {
			logger.Warn("failed to clean up working directory", "dir", result.TempDir, "error", err)
		}
	} else {
		fmt.Printf("\nWorking directory: %s\n", result.TempDir)
	}

	finishJob(job, nil, totalBytes, "")
	logger.Info("dump complete", "partitions", len(result.Partitions), "bytes", totalBytes)
	return nil
}

// moveFile renames src to dest, falling back to copy-and-remove when the
// paths are on different filesystems. Images can be multiple gigabytes, so
// the fallback streams rather than buffering.
func moveFile(src, dest string) error {
	if err := os.Rename(src, dest); err == nil {
		return nil
	}

	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dest)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		_ = os.Remove(dest)
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}
	return os.Remove(src)
}
