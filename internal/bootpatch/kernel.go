package bootpatch

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"
	"unicode/utf8"
)

// KernelMetadata is recovered from the unpacked kernel image; it is not
// authoritative input, just whatever version strings the build left behind.
type KernelMetadata struct {
	KMI           string // e.g. "android13-5.10.101"
	KernelVersion string // e.g. "5.10.101-something"
}

var (
	ErrKMINotFound           = errors.New("kmi not found in kernel image")
	ErrKernelVersionNotFound = errors.New("kernel version not found in kernel image")
	ErrNoKernelMetadata      = errors.New("no kernel metadata found in kernel image")
)

// kmiPattern matches a version-like token followed by an android release
// token, e.g. "5.10.101-android13-8-00674-g...". The KMI is composed the
// other way round: android13-5.10.101.
var kmiPattern = regexp.MustCompile(`(?:.* )?(\d+\.\d+(?:\.\d+)?)(?:\S+?)?(android\d+)`)

// versionPattern matches the banner the kernel build embeds.
var versionPattern = regexp.MustCompile(`Linux version (.+)`)

// ScanKernelFile reads an unpacked kernel image and recovers its metadata.
func ScanKernelFile(path string) (KernelMetadata, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return KernelMetadata{}, fmt.Errorf("reading kernel image: %w", err)
	}
	return ScanKernel(data)
}

// ScanKernel splits the raw kernel bytes on NUL into candidate substrings
// and scans them once. The KMI is only accepted from candidates that
// decode as printable ASCII (or space); the version banner is matched on
// raw bytes. Scanning stops as soon as both values are found — not
// necessarily on the same candidate.
func ScanKernel(data []byte) (KernelMetadata, error) {
	var meta KernelMetadata
	var haveKMI, haveVersion bool

	for _, raw := range bytes.Split(data, []byte{0}) {
		if haveKMI && haveVersion {
			break
		}
		if len(raw) == 0 {
			continue
		}

		if !haveVersion {
			if m := versionPattern.FindSubmatch(raw); m != nil {
				meta.KernelVersion = strings.TrimSpace(string(m[1]))
				haveVersion = true
			}
		}

		if !haveKMI {
			if s, ok := printableASCII(raw); ok {
				if m := kmiPattern.FindStringSubmatch(s); m != nil {
					meta.KMI = m[2] + "-" + m[1]
					haveKMI = true
				}
			}
		}
	}

	switch {
	case !haveKMI && !haveVersion:
		return KernelMetadata{}, ErrNoKernelMetadata
	case !haveKMI:
		return KernelMetadata{}, ErrKMINotFound
	case !haveVersion:
		return KernelMetadata{}, ErrKernelVersionNotFound
	}
	return meta, nil
}

// printableASCII decodes raw as UTF-8 and requires every rune to be
// printable ASCII or space.
func printableASCII(raw []byte) (string, bool) {
	if !utf8.Valid(raw) {
		return "", false
	}
	s := string(raw)
	for _, r := range s {
		if r != ' ' && (r < '!' || r > '~') {
			return "", false
		}
	}
	return s, true
}
