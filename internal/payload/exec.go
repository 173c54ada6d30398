package payload

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
)

// ExecClient implements Client by invoking the payload-dumper helper
// binary as a subprocess.
type ExecClient struct {
	binPath   string
	userAgent string
	logger    *slog.Logger
}

// NewExecClient creates a client around the helper binary at binPath.
func NewExecClient(binPath, userAgent string, logger *slog.Logger) *ExecClient {
	return &ExecClient{binPath: binPath, userAgent: userAgent, logger: logger}
}

// List runs the helper in listing mode and parses its JSON output.
func (c *ExecClient) List(ctx context.Context, url string) (*ArchiveInfo, error) {
	c.logger.Info("listing remote payload", "url", url)

	out, err := c.run(ctx, "--list", "--json", "--ua", c.userAgent, url)
	if err != nil {
		return nil, fmt.Errorf("listing partitions of %s: %w", url, err)
	}

	var info ArchiveInfo
	if err := json.Unmarshal(out, &info); err != nil {
		return nil, fmt.Errorf("parsing partition listing of %s: %w", url, err)
	}
	return &info, nil
}

// Extract runs the helper in extraction mode, writing one partition image
// to outPath.
func (c *ExecClient) Extract(ctx context.Context, url, partition, outPath string) error {
	c.logger.Info("extracting partition", "partition", partition, "url", url, "out", outPath)

	if _, err := c.run(ctx, "--extract", partition, "--out", outPath, "--ua", c.userAgent, url); err != nil {
		return fmt.Errorf("extracting partition %s from %s: %w", partition, url, err)
	}
	return nil
}

// run executes the helper and returns stdout. A non-zero exit becomes an
// error carrying the helper's stderr.
func (c *ExecClient) run(ctx context.Context, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, c.binPath, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg != "" {
			return nil, fmt.Errorf("%s: %w: %s", c.binPath, err, msg)
		}
		return nil, fmt.Errorf("%s: %w", c.binPath, err)
	}
	return stdout.Bytes(), nil
}
