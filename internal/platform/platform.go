package platform

import (
	"fmt"
	"runtime"
)

// Profile identifies the host OS/architecture pair the helper binaries are
// built for, plus the executable filename suffix for that OS.
type Profile struct {
	OS     string // "linux" or "android"
	Arch   string // "x86_64" or "aarch64"
	Suffix string // ".exe" on windows, empty otherwise
}

// goarchNames maps Go architecture names to the names used by the helper
// tool release assets.
var goarchNames = map[string]string{
	"amd64": "x86_64",
	"arm64": "aarch64",
}

var supportedOS = map[string]bool{
	"linux":   true,
	"android": true,
}

// Resolve returns the profile for the given OS/arch pair (in Go toolchain
// naming). It fails if the pair is outside the supported set; callers on a
// request path must treat that as a recoverable error, only the process
// bootstrap may exit on it.
func Resolve(goos, goarch string) (Profile, error) {
	arch, ok := goarchNames[goarch]
	if !ok {
		return Profile{}, fmt.Errorf("unsupported platform %s/%s", goos, goarch)
	}
	if !supportedOS[goos] {
		return Profile{}, fmt.Errorf("unsupported platform %s/%s", goos, goarch)
	}
	suffix := ""
	if goos == "windows" {
		suffix = ".exe"
	}
	return Profile{OS: goos, Arch: arch, Suffix: suffix}, nil
}

// Current resolves the profile of the running host.
func Current() (Profile, error) {
	return Resolve(runtime.GOOS, runtime.GOARCH)
}

func (p Profile) String() string {
	return p.OS + "/" + p.Arch
}
