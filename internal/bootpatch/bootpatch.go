// Package bootpatch drives patching of a boot-type partition: dump the
// target and base boot partitions, recover kernel metadata from the
// unpacked boot image, then hand everything to the external patcher.
package bootpatch

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"path/filepath"
	"strings"

	"otapatch/internal/dump"
	"otapatch/internal/tools"
)

// Method selects the patch implementation.
type Method int

const (
	KernelSU Method = iota
	Magisk
)

// ErrUnknownMethod and ErrUnknownPartition reject tokens outside the
// closed enums.
var (
	ErrUnknownMethod    = errors.New("unknown patch method")
	ErrUnknownPartition = errors.New("unknown patch partition")
	// ErrMagiskUnsupported marks the deliberately unimplemented variant.
	ErrMagiskUnsupported = errors.New("magisk patching is not implemented")
)

// ParseMethod parses the user-facing method tokens.
func ParseMethod(s string) (Method, error) {
	switch s {
	case "kernelsu", "ksu", "k":
		return KernelSU, nil
	case "magisk", "m":
		return Magisk, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownMethod, s)
	}
}

func (m Method) String() string {
	switch m {
	case KernelSU:
		return "kernelsu"
	case Magisk:
		return "magisk"
	default:
		return "unknown"
	}
}

// Partition is one of the boot-type partitions the pipeline knows how to
// patch.
type Partition int

const (
	Boot Partition = iota
	InitBoot
	VendorBoot
)

// ParsePartition parses the user-facing partition tokens.
func ParsePartition(s string) (Partition, error) {
	switch s {
	case "boot", "b":
		return Boot, nil
	case "init_boot", "ib":
		return InitBoot, nil
	case "vendor_boot", "vb":
		return VendorBoot, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownPartition, s)
	}
}

// Name returns the canonical partition name.
func (p Partition) Name() string {
	switch p {
	case Boot:
		return "boot"
	case InitBoot:
		return "init_boot"
	case VendorBoot:
		return "vendor_boot"
	default:
		return "unknown"
	}
}

// Artifact is the terminal output of a patch. Path lies inside the dump
// working directory that produced the inputs; removing that directory is
// the caller's responsibility.
type Artifact struct {
	Path          string
	KMI           string
	KernelVersion string
	WorkDir       string
}

// Patcher wires the dump orchestrator and the tool cache together.
type Patcher struct {
	tools  *tools.Manager
	dumper *dump.Orchestrator
	logger *slog.Logger
}

// New creates a patcher. The tool manager must have been ensured before
// Patch is called.
func New(tm *tools.Manager, dumper *dump.Orchestrator, logger *slog.Logger) *Patcher {
	return &Patcher{tools: tm, dumper: dumper, logger: logger}
}

// Patch dumps the target and base boot partitions from url, recovers
// kernel metadata, and invokes the patcher. Only the KernelSU method is
// implemented; Magisk validates and then fails. Nothing is retried, and
// the dump working directory is left in place on every path.
func (p *Patcher) Patch(ctx context.Context, url string, partition Partition, method Method) (*Artifact, error) {
	switch method {
	case KernelSU:
	case Magisk:
		return nil, ErrMagiskUnsupported
	default:
		return nil, fmt.Errorf("%w: %d", ErrUnknownMethod, method)
	}

	p.logger.Info("patching boot partition",
		"url", url, "partition", partition.Name(), "method", method.String())

	res, err := p.dumper.Dump(ctx, url, []string{partition.Name(), "boot"})
	if err != nil {
		return nil, fmt.Errorf("dumping partitions: %w", err)
	}
	for _, want := range []string{partition.Name(), "boot"} {
		if !hasPartition(res, want) {
			return nil, fmt.Errorf("partition %s not present in archive", want)
		}
	}

	meta, err := p.recoverMetadata(ctx, res.TempDir)
	if err != nil {
		return nil, err
	}

	outName := fmt.Sprintf("%s_patched_%s-%s.img", method, partition.Name(), meta.KMI)
	p.logger.Info("invoking patcher",
		"partition", partition.Name(), "kmi", meta.KMI, "out", outName)

	ksud := p.tools.Tool(tools.Ksud).Path()
	magiskboot := p.tools.Tool(tools.Magiskboot).Path()
	err = runTool(ctx, res.TempDir, ksud,
		"boot-patch",
		"-b", partition.Name()+".img",
		"--magiskboot", magiskboot,
		"--kmi", meta.KMI,
		"--out-name", outName,
	)
	if err != nil {
		return nil, fmt.Errorf("patching %s: %w", partition.Name(), err)
	}

	return &Artifact{
		Path:          filepath.Join(res.TempDir, outName),
		KMI:           meta.KMI,
		KernelVersion: meta.KernelVersion,
		WorkDir:       res.TempDir,
	}, nil
}

// recoverMetadata unpacks boot.img in place and scans the kernel image.
func (p *Patcher) recoverMetadata(ctx context.Context, dir string) (KernelMetadata, error) {
	magiskboot := p.tools.Tool(tools.Magiskboot).Path()
	if err := runTool(ctx, dir, magiskboot, "unpack", "-n", "boot.img"); err != nil {
		return KernelMetadata{}, fmt.Errorf("unpacking boot image: %w", err)
	}

	meta, err := ScanKernelFile(filepath.Join(dir, "kernel"))
	if err != nil {
		return KernelMetadata{}, fmt.Errorf("recovering kernel metadata: %w", err)
	}
	p.logger.Info("recovered kernel metadata",
		"kmi", meta.KMI, "kernel_version", meta.KernelVersion)
	return meta, nil
}

func hasPartition(res *dump.Result, name string) bool {
	for _, part := range res.Partitions {
		if part.Name == name {
			return true
		}
	}
	return false
}

// runTool runs a helper binary inside dir. Non-zero exit is a hard error
// carrying the tool's stderr.
func runTool(ctx context.Context, dir, bin string, args ...string) error {
	cmd := exec.CommandContext(ctx, bin, args...)
	cmd.Dir = dir
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			msg = strings.TrimSpace(stdout.String())
		}
		if msg != "" {
			return fmt.Errorf("%s %s: %w: %s", filepath.Base(bin), args[0], err, msg)
		}
		return fmt.Errorf("%s %s: %w", filepath.Base(bin), args[0], err)
	}
	return nil
}
