// Package dump extracts named partitions from a remote OTA archive into a
// fresh working directory. Extraction of each partition runs on its own
// goroutine; outcomes are collected in spawn order, so the result sequence
// is deterministic even though wall-clock completion is not.
package dump

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	"otapatch/internal/payload"
	"otapatch/internal/safety"
)

// Partition describes one successfully requested partition: the remote
// listing metadata merged with the local output path.
type Partition struct {
	Name      string
	SizeBytes uint64
	Hash      string // empty when the listing carries none
	Path      string
}

// Result is a completed dump. TempDir is exclusively owned by the caller
// after return; the orchestrator never deletes it.
type Result struct {
	Partitions []Partition
	TempDir    string
}

// Error wraps a dump failure together with the working directory that may
// hold partially extracted images. Extractions that already succeeded are
// not rolled back; cleanup is the caller's decision.
type Error struct {
	TempDir string
	Err     error
}

func (e *Error) Error() string {
	return fmt.Sprintf("dump failed (workdir %s): %v", e.TempDir, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Orchestrator coordinates partition dumps.
type Orchestrator struct {
	client  payload.Client
	tmpRoot string
	logger  *slog.Logger
}

// New creates an orchestrator writing under tmpRoot (normally
// <data_dir>/tmp).
func New(client payload.Client, tmpRoot string, logger *slog.Logger) *Orchestrator {
	return &Orchestrator{client: client, tmpRoot: tmpRoot, logger: logger}
}

// Dump lists the archive once, then extracts every requested partition
// that the listing contains. Requested names absent from the listing are
// silently dropped. Names are deduplicated and sorted first, so each
// unique partition is listed and extracted exactly once and the result
// order is deterministic. An empty request yields an empty result with a
// fresh (empty) working directory.
//
// The first extraction failure, observed in spawn order, fails the whole
// dump with *Error. There are no retries and no timeout beyond what the
// payload client applies itself.
func (o *Orchestrator) Dump(ctx context.Context, url string, names []string) (*Result, error) {
	names = normalize(names)

	tempDir, err := o.newTempDir()
	if err != nil {
		return nil, err
	}
	o.logger.Info("dumping partitions", "url", url, "partitions", names, "workdir", tempDir)

	if len(names) == 0 {
		return &Result{Partitions: []Partition{}, TempDir: tempDir}, nil
	}

	info, err := o.client.List(ctx, url)
	if err != nil {
		return nil, &Error{TempDir: tempDir, Err: err}
	}

	var (
		partitions []Partition
		outcomes   []chan error
	)
	for _, name := range names {
		remote, ok := info.Partition(name)
		if !ok {
			o.logger.Warn("requested partition not in listing, skipping", "partition", name)
			continue
		}

		outPath, err := safety.SafeJoinUnder(tempDir, name+".img")
		if err != nil {
			return nil, &Error{TempDir: tempDir, Err: fmt.Errorf("partition name %q: %w", name, err)}
		}

		partitions = append(partitions, Partition{
			Name:      name,
			SizeBytes: remote.SizeBytes,
			Hash:      remote.Hash,
			Path:      outPath,
		})

		// One-shot handoff per extraction: the worker sends exactly
		// one outcome, the collection loop below receives exactly once.
		ch := make(chan error, 1)
		go o.extract(ctx, ch, url, name, outPath)
		outcomes = append(outcomes, ch)
	}

	// Collect in spawn order. A later fast failure does not short-circuit
	// an earlier, slower extraction.
	for i, ch := range outcomes {
		if err := <-ch; err != nil {
			return nil, &Error{TempDir: tempDir, Err: fmt.Errorf("partition %s: %w", partitions[i].Name, err)}
		}
	}

	o.logger.Info("dump complete", "partitions", len(partitions), "workdir", tempDir)
	return &Result{Partitions: partitions, TempDir: tempDir}, nil
}

// extract runs one blocking extraction and delivers its single outcome. A
// worker panic is converted into an error so the collector never blocks
// forever on a dead worker.
func (o *Orchestrator) extract(ctx context.Context, ch chan<- error, url, name, outPath string) {
	defer func() {
		if r := recover(); r != nil {
			ch <- fmt.Errorf("extraction worker panicked: %v", r)
		}
	}()
	ch <- o.client.Extract(ctx, url, name, outPath)
}

// newTempDir creates a fresh working directory keyed by a nanosecond
// timestamp. Keys are never reused across dumps; on the (theoretical)
// collision the next reading is tried.
func (o *Orchestrator) newTempDir() (string, error) {
	if err := os.MkdirAll(o.tmpRoot, 0o755); err != nil {
		return "", fmt.Errorf("creating dump root: %w", err)
	}
	for attempt := 0; attempt < 3; attempt++ {
		dir := filepath.Join(o.tmpRoot, strconv.FormatInt(time.Now().UnixNano(), 10))
		err := os.Mkdir(dir, 0o755)
		if err == nil {
			return dir, nil
		}
		if !os.IsExist(err) {
			return "", fmt.Errorf("creating dump directory: %w", err)
		}
	}
	return "", fmt.Errorf("could not create a unique dump directory under %s", o.tmpRoot)
}

// normalize sorts and deduplicates the requested partition names, dropping
// empties.
func normalize(names []string) []string {
	seen := make(map[string]bool, len(names))
	out := make([]string, 0, len(names))
	for _, n := range names {
		if n == "" || seen[n] {
			continue
		}
		seen[n] = true
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}
