package bootpatch

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"otapatch/internal/config"
	"otapatch/internal/dump"
	"otapatch/internal/payload"
	"otapatch/internal/platform"
	"otapatch/internal/release"
	"otapatch/internal/tools"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestParseMethod(t *testing.T) {
	cases := []struct {
		in   string
		want Method
	}{
		{"kernelsu", KernelSU}, {"ksu", KernelSU}, {"k", KernelSU},
		{"magisk", Magisk}, {"m", Magisk},
	}
	for _, tc := range cases {
		got, err := ParseMethod(tc.in)
		if err != nil {
			t.Errorf("ParseMethod(%q): %v", tc.in, err)
			continue
		}
		if got != tc.want {
			t.Errorf("ParseMethod(%q) = %v, want %v", tc.in, got, tc.want)
		}
	}

	for _, bad := range []string{"", "apatch", "KSU", "kernel su"} {
		if _, err := ParseMethod(bad); !errors.Is(err, ErrUnknownMethod) {
			t.Errorf("ParseMethod(%q): expected ErrUnknownMethod, got %v", bad, err)
		}
	}
}

func TestParsePartition(t *testing.T) {
	cases := []struct {
		in       string
		want     Partition
		wantName string
	}{
		{"boot", Boot, "boot"},
		{"b", Boot, "boot"},
		{"init_boot", InitBoot, "init_boot"},
		{"ib", InitBoot, "init_boot"},
		{"vendor_boot", VendorBoot, "vendor_boot"},
		{"vb", VendorBoot, "vendor_boot"},
	}
	for _, tc := range cases {
		got, err := ParsePartition(tc.in)
		if err != nil {
			t.Errorf("ParsePartition(%q): %v", tc.in, err)
			continue
		}
		if got != tc.want || got.Name() != tc.wantName {
			t.Errorf("ParsePartition(%q) = %v (%s)", tc.in, got, got.Name())
		}
	}

	for _, bad := range []string{"", "system", "bootloader"} {
		if _, err := ParsePartition(bad); !errors.Is(err, ErrUnknownPartition) {
			t.Errorf("ParsePartition(%q): expected ErrUnknownPartition, got %v", bad, err)
		}
	}
}

func TestPatchMagiskAlwaysUnsupported(t *testing.T) {
	// The method is rejected before any dump happens, so URL validity is
	// irrelevant.
	p := New(nil, nil, testLogger())

	_, err := p.Patch(context.Background(), "not even a url", InitBoot, Magisk)
	if !errors.Is(err, ErrMagiskUnsupported) {
		t.Fatalf("expected ErrMagiskUnsupported, got %v", err)
	}
}

// scriptedClient serves a fixed listing and writes fake partition images.
type scriptedClient struct{}

func (scriptedClient) List(ctx context.Context, url string) (*payload.ArchiveInfo, error) {
	return &payload.ArchiveInfo{
		Partitions: []payload.PartitionInfo{
			{Name: "boot", SizeBytes: 1000},
			{Name: "init_boot", SizeBytes: 300},
		},
		TotalPartitions: 2,
	}, nil
}

func (scriptedClient) Extract(ctx context.Context, url, partition, outPath string) error {
	return os.WriteFile(outPath, []byte("image:"+partition), 0o644)
}

// fakeToolset builds a tools.Manager whose cached binaries are shell
// scripts: magiskboot's unpack mode writes a kernel image with the given
// candidates, ksud's boot-patch mode creates the --out-name file.
func fakeToolset(t *testing.T, magiskbootScript, ksudScript string) *tools.Manager {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("fake tools require a POSIX shell")
	}

	binDir := filepath.Join(t.TempDir(), "bin")
	profile := platform.Profile{OS: "linux", Arch: "x86_64"}
	client := release.NewClient("http://127.0.0.1:0", "test", time.Second, testLogger())
	m := tools.NewManager(profile, binDir, client, config.DefaultConfig().Tools, testLogger())

	write := func(kind tools.Kind, script string) {
		path := m.Tool(kind).Path()
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatalf("creating tool dir: %v", err)
		}
		if err := os.WriteFile(path, []byte(script), 0o755); err != nil {
			t.Fatalf("writing fake tool: %v", err)
		}
	}
	write(tools.Magiskboot, magiskbootScript)
	write(tools.Ksud, ksudScript)
	return m
}

const workingMagiskboot = `#!/bin/sh
[ "$1" = "unpack" ] || exit 2
printf '5.10.101-android13-8-00674-gabc\0Linux version 5.10.101-something\0' > kernel
exit 0
`

const workingKsud = `#!/bin/sh
[ "$1" = "boot-patch" ] || exit 2
out=""
while [ $# -gt 0 ]; do
  if [ "$1" = "--out-name" ]; then out="$2"; fi
  shift
done
[ -n "$out" ] || exit 3
printf 'patched' > "$out"
exit 0
`

func TestPatchKernelSU(t *testing.T) {
	tm := fakeToolset(t, workingMagiskboot, workingKsud)
	dumper := dump.New(scriptedClient{}, filepath.Join(t.TempDir(), "tmp"), testLogger())
	p := New(tm, dumper, testLogger())

	art, err := p.Patch(context.Background(), "https://example.com/ota.zip", InitBoot, KernelSU)
	if err != nil {
		t.Fatalf("Patch failed: %v", err)
	}

	if art.KMI != "android13-5.10.101" {
		t.Errorf("KMI = %q", art.KMI)
	}
	if art.KernelVersion != "5.10.101-something" {
		t.Errorf("KernelVersion = %q", art.KernelVersion)
	}

	wantName := "kernelsu_patched_init_boot-android13-5.10.101.img"
	if filepath.Base(art.Path) != wantName {
		t.Errorf("artifact name = %q, want %q", filepath.Base(art.Path), wantName)
	}
	if filepath.Dir(art.Path) != art.WorkDir {
		t.Errorf("artifact %q not inside its work dir %q", art.Path, art.WorkDir)
	}
	content, err := os.ReadFile(art.Path)
	if err != nil {
		t.Fatalf("reading artifact: %v", err)
	}
	if string(content) != "patched" {
		t.Errorf("artifact content = %q", content)
	}

	// Both dumped images are still in the work dir; cleanup is the
	// caller's job.
	for _, img := range []string{"boot.img", "init_boot.img"} {
		if _, err := os.Stat(filepath.Join(art.WorkDir, img)); err != nil {
			t.Errorf("expected %s in work dir: %v", img, err)
		}
	}
}

func TestPatchBootTargetDumpsOnce(t *testing.T) {
	// Target == boot: the request is deduplicated to a single partition.
	tm := fakeToolset(t, workingMagiskboot, workingKsud)
	dumper := dump.New(scriptedClient{}, filepath.Join(t.TempDir(), "tmp"), testLogger())
	p := New(tm, dumper, testLogger())

	art, err := p.Patch(context.Background(), "https://example.com/ota.zip", Boot, KernelSU)
	if err != nil {
		t.Fatalf("Patch failed: %v", err)
	}
	if want := "kernelsu_patched_boot-android13-5.10.101.img"; filepath.Base(art.Path) != want {
		t.Errorf("artifact name = %q, want %q", filepath.Base(art.Path), want)
	}
}

func TestPatchUnpackFailureSurfaced(t *testing.T) {
	failingMagiskboot := "#!/bin/sh\necho 'bad magic' >&2\nexit 1\n"
	tm := fakeToolset(t, failingMagiskboot, workingKsud)
	dumper := dump.New(scriptedClient{}, filepath.Join(t.TempDir(), "tmp"), testLogger())
	p := New(tm, dumper, testLogger())

	_, err := p.Patch(context.Background(), "https://example.com/ota.zip", Boot, KernelSU)
	if err == nil {
		t.Fatal("expected unpack failure")
	}
	if !strings.Contains(err.Error(), "unpacking boot image") {
		t.Errorf("error %q does not name the unpack stage", err)
	}
	if !strings.Contains(err.Error(), "bad magic") {
		t.Errorf("error %q does not carry tool stderr", err)
	}
}

func TestPatchPatcherFailureSurfaced(t *testing.T) {
	failingKsud := "#!/bin/sh\necho 'unsupported kmi' >&2\nexit 1\n"
	tm := fakeToolset(t, workingMagiskboot, failingKsud)
	dumper := dump.New(scriptedClient{}, filepath.Join(t.TempDir(), "tmp"), testLogger())
	p := New(tm, dumper, testLogger())

	_, err := p.Patch(context.Background(), "https://example.com/ota.zip", Boot, KernelSU)
	if err == nil {
		t.Fatal("expected patcher failure")
	}
	if !strings.Contains(err.Error(), "unsupported kmi") {
		t.Errorf("error %q does not carry tool stderr", err)
	}
}

func TestPatchMissingTargetPartition(t *testing.T) {
	tm := fakeToolset(t, workingMagiskboot, workingKsud)
	dumper := dump.New(scriptedClient{}, filepath.Join(t.TempDir(), "tmp"), testLogger())
	p := New(tm, dumper, testLogger())

	// The fixture listing has no vendor_boot.
	_, err := p.Patch(context.Background(), "https://example.com/ota.zip", VendorBoot, KernelSU)
	if err == nil {
		t.Fatal("expected error for partition absent from archive")
	}
	if !strings.Contains(err.Error(), "vendor_boot") {
		t.Errorf("error %q does not name the missing partition", err)
	}
}
