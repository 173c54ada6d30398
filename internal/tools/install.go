package tools

import (
	"archive/tar"
	"archive/zip"
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path"

	"github.com/klauspost/compress/gzip"

	"otapatch/internal/safety"
)

// maxMemberSize bounds a single extracted archive member.
const maxMemberSize = 512 << 20

// installRaw writes the asset bytes directly to dest.
func installRaw(data []byte, dest string) error {
	return os.WriteFile(dest, data, 0o644)
}

// installZipMember returns an InstallFunc that extracts exactly the named
// member from a zip asset.
func installZipMember(member string) InstallFunc {
	return func(data []byte, dest string) error {
		archive, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
		if err != nil {
			return fmt.Errorf("opening zip asset: %w", err)
		}
		for _, f := range archive.File {
			if f.Name != member {
				continue
			}
			rc, err := f.Open()
			if err != nil {
				return fmt.Errorf("opening zip member %s: %w", member, err)
			}
			content, err := safety.ReadAllWithLimit(rc, maxMemberSize)
			rc.Close()
			if err != nil {
				return fmt.Errorf("reading zip member %s: %w", member, err)
			}
			return os.WriteFile(dest, content, 0o644)
		}
		return fmt.Errorf("zip member %s: %w", member, ErrMemberNotFound)
	}
}

// installTarGzMember returns an InstallFunc that extracts the first regular
// file whose base name matches member from a tar.gz asset.
func installTarGzMember(member string) InstallFunc {
	return func(data []byte, dest string) error {
		gz, err := gzip.NewReader(bytes.NewReader(data))
		if err != nil {
			return fmt.Errorf("opening gzip asset: %w", err)
		}
		defer gz.Close()

		tr := tar.NewReader(gz)
		for {
			hdr, err := tr.Next()
			if errors.Is(err, io.EOF) {
				break
			}
			if err != nil {
				return fmt.Errorf("reading tar asset: %w", err)
			}
			if hdr.Typeflag != tar.TypeReg || path.Base(hdr.Name) != member {
				continue
			}
			content, err := safety.ReadAllWithLimit(tr, maxMemberSize)
			if err != nil {
				return fmt.Errorf("reading tar member %s: %w", member, err)
			}
			return os.WriteFile(dest, content, 0o644)
		}
		return fmt.Errorf("tar member %s: %w", member, ErrMemberNotFound)
	}
}
