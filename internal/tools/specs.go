package tools

import (
	"fmt"
	"strings"

	"otapatch/internal/platform"
)

// ksudSpec selects the musl/bionic ksud build by exact asset name and
// installs the raw bytes.
func ksudSpec(profile platform.Profile, repo string) Spec {
	triple := "unknown-linux-musl"
	if profile.OS == "android" {
		triple = "linux-android"
	}
	assetName := fmt.Sprintf("ksud-%s-%s", profile.Arch, triple)

	return Spec{
		Name:       "ksud",
		Repo:       repo,
		MatchAsset: func(name string) bool { return name == assetName },
		Install:    installRaw,
	}
}

// magiskbootSpec selects the Magisk apk by prefix and extracts the
// libmagiskboot.so member for the current architecture. The apk is a zip
// archive; first prefix match wins.
func magiskbootSpec(profile platform.Profile, repo string) Spec {
	abi := "x86_64"
	if profile.Arch == "aarch64" {
		abi = "arm64-v8a"
	}
	member := fmt.Sprintf("lib/%s/libmagiskboot.so", abi)

	return Spec{
		Name:       "magiskboot",
		Repo:       repo,
		MatchAsset: func(name string) bool { return strings.HasPrefix(name, "Magisk-v") },
		Install:    installZipMember(member),
	}
}

// payloadDumperSpec selects the linux tar.gz build of the payload-dumper
// helper and extracts the binary member.
func payloadDumperSpec(profile platform.Profile, repo string) Spec {
	goarch := "amd64"
	if profile.Arch == "aarch64" {
		goarch = "arm64"
	}
	want := fmt.Sprintf("linux_%s.tar.gz", goarch)

	return Spec{
		Name:       "payload-dumper",
		Repo:       repo,
		MatchAsset: func(name string) bool { return strings.HasSuffix(name, want) },
		Install:    installTarGzMember("payload-dumper-go"),
	}
}
