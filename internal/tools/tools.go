// Package tools acquires and caches the external helper binaries (ksud,
// magiskboot, payload-dumper). Each tool is described by a Spec: the
// repository its releases live in, a predicate selecting the right asset
// for the current platform, and an install strategy turning asset bytes
// into the cached executable.
package tools

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"

	"otapatch/internal/config"
	"otapatch/internal/platform"
	"otapatch/internal/release"
)

// Kind identifies one of the known helper tools.
type Kind string

const (
	Ksud          Kind = "ksud"
	Magiskboot    Kind = "magiskboot"
	PayloadDumper Kind = "payload-dumper"
)

// ErrAssetNotFound indicates no release asset matched the tool's predicate.
var ErrAssetNotFound = errors.New("no matching release asset")

// ErrMemberNotFound indicates the expected member was absent from a
// downloaded archive asset.
var ErrMemberNotFound = errors.New("archive member not found")

// InstallFunc turns downloaded asset bytes into the file at dest.
type InstallFunc func(data []byte, dest string) error

// Spec describes how one tool variant is acquired.
type Spec struct {
	Name       string
	Repo       string
	MatchAsset func(name string) bool
	Install    InstallFunc
}

// Tool is one acquired (or acquirable) helper binary.
type Tool struct {
	spec Spec
	path string
}

// Name returns the tool's display name.
func (t *Tool) Name() string { return t.spec.Name }

// Path returns the deterministic local path of the cached binary:
// <binDir>/<os>/<arch>/<name><suffix>.
func (t *Tool) Path() string { return t.path }

// Manager owns the set of known tools and their acquisition.
//
// First-time acquisition is not serialized across processes: two
// concurrent callers may both download and write the same tool. The write
// is temp-file-plus-rename, so the last writer wins with identical bytes.
type Manager struct {
	profile platform.Profile
	client  *release.Client
	logger  *slog.Logger
	tools   map[Kind]*Tool
	order   []Kind
}

// NewManager builds the tool set for the given platform profile. binDir is
// the root of the binary cache (normally <data_dir>/bin).
func NewManager(profile platform.Profile, binDir string, client *release.Client, cfg config.ToolsConfig, logger *slog.Logger) *Manager {
	m := &Manager{
		profile: profile,
		client:  client,
		logger:  logger,
		tools:   make(map[Kind]*Tool),
		order:   []Kind{Ksud, Magiskboot, PayloadDumper},
	}

	specs := map[Kind]Spec{
		Ksud:          ksudSpec(profile, cfg.KsudRepo),
		Magiskboot:    magiskbootSpec(profile, cfg.MagiskRepo),
		PayloadDumper: payloadDumperSpec(profile, cfg.PayloadDumpRepo),
	}
	for kind, spec := range specs {
		m.tools[kind] = &Tool{
			spec: spec,
			path: filepath.Join(binDir, profile.OS, profile.Arch, spec.Name+profile.Suffix),
		}
	}
	return m
}

// Tool returns the tool for a kind. Kinds are a closed set, so a miss is a
// programming error.
func (m *Manager) Tool(kind Kind) *Tool {
	t, ok := m.tools[kind]
	if !ok {
		panic(fmt.Sprintf("unknown tool kind %q", kind))
	}
	return t
}

// EnsurePresent makes sure the tool binary exists locally, fetching the
// latest release if it does not. Existence alone gates re-fetch, so two
// calls in a row perform at most one network fetch.
func (m *Manager) EnsurePresent(ctx context.Context, kind Kind) error {
	t := m.Tool(kind)
	m.logger.Info("initializing tool", "tool", t.Name())
	if _, err := os.Stat(t.path); err == nil {
		m.logger.Debug("tool already present", "tool", t.Name(), "path", t.path)
		return nil
	}
	return m.FetchLatest(ctx, kind)
}

// EnsureAll ensures every known tool, in a fixed order.
func (m *Manager) EnsureAll(ctx context.Context) error {
	for _, kind := range m.order {
		if err := m.EnsurePresent(ctx, kind); err != nil {
			return err
		}
	}
	return nil
}

// FetchLatest downloads and installs the latest release of the tool,
// overwriting any cached copy. The asset is installed to a temporary file
// and renamed into place so an interrupted write never satisfies a later
// existence check.
func (m *Manager) FetchLatest(ctx context.Context, kind Kind) error {
	t := m.Tool(kind)
	m.logger.Info("fetching latest tool release", "tool", t.Name(), "repo", t.spec.Repo)

	rel, err := m.client.Latest(ctx, t.spec.Repo)
	if err != nil {
		return err
	}

	var asset *release.Asset
	for i := range rel.Assets {
		if t.spec.MatchAsset(rel.Assets[i].Name) {
			asset = &rel.Assets[i]
			break
		}
	}
	if asset == nil {
		return fmt.Errorf("%s release %s: %w", t.spec.Repo, rel.TagName, ErrAssetNotFound)
	}

	data, err := m.client.DownloadAsset(ctx, *asset)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(t.path), 0o755); err != nil {
		return fmt.Errorf("creating tool directory: %w", err)
	}

	partial := t.path + ".partial"
	if err := t.spec.Install(data, partial); err != nil {
		_ = os.Remove(partial)
		return fmt.Errorf("installing %s: %w", t.Name(), err)
	}
	if runtime.GOOS != "windows" {
		if err := os.Chmod(partial, 0o755); err != nil {
			_ = os.Remove(partial)
			return fmt.Errorf("marking %s executable: %w", t.Name(), err)
		}
	}
	if err := os.Rename(partial, t.path); err != nil {
		_ = os.Remove(partial)
		return fmt.Errorf("installing %s: %w", t.Name(), err)
	}

	m.logger.Info("tool installed", "tool", t.Name(), "tag", rel.TagName, "path", t.path)
	return nil
}
