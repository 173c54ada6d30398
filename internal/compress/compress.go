// Package compress shrinks extracted partition images before they are
// handed back to the caller. Partition images are large and mostly
// compressible, so a dump can optionally emit .zst or .xz files instead
// of raw images.
package compress

import (
	"fmt"
	"io"
	"os"

	"github.com/klauspost/compress/zstd"
	"github.com/ulikunitz/xz"
)

// Codec is a supported output compression.
type Codec string

const (
	None Codec = "none"
	Zstd Codec = "zstd"
	Xz   Codec = "xz"
)

// ParseCodec validates a codec name from config or flags.
func ParseCodec(s string) (Codec, error) {
	switch Codec(s) {
	case None, Zstd, Xz:
		return Codec(s), nil
	case "":
		return None, nil
	default:
		return None, fmt.Errorf("unsupported compression %q (want none, zstd or xz)", s)
	}
}

// File compresses path in place, producing path plus the codec suffix and
// removing the original. It returns the new path. With Codec None the
// original path is returned untouched.
func File(path string, codec Codec) (string, error) {
	if codec == None {
		return path, nil
	}

	in, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("opening %s: %w", path, err)
	}
	defer in.Close()

	outPath := path + "." + suffix(codec)
	out, err := os.Create(outPath)
	if err != nil {
		return "", fmt.Errorf("creating %s: %w", outPath, err)
	}

	if err := encode(out, in, codec); err != nil {
		out.Close()
		_ = os.Remove(outPath)
		return "", fmt.Errorf("compressing %s: %w", path, err)
	}
	if err := out.Close(); err != nil {
		_ = os.Remove(outPath)
		return "", fmt.Errorf("closing %s: %w", outPath, err)
	}

	if err := os.Remove(path); err != nil {
		return "", fmt.Errorf("removing %s: %w", path, err)
	}
	return outPath, nil
}

func suffix(codec Codec) string {
	if codec == Xz {
		return "xz"
	}
	return "zst"
}

func encode(w io.Writer, r io.Reader, codec Codec) error {
	switch codec {
	case Zstd:
		enc, err := zstd.NewWriter(w)
		if err != nil {
			return err
		}
		if _, err := io.Copy(enc, r); err != nil {
			enc.Close()
			return err
		}
		return enc.Close()
	case Xz:
		enc, err := xz.NewWriter(w)
		if err != nil {
			return err
		}
		if _, err := io.Copy(enc, r); err != nil {
			enc.Close()
			return err
		}
		return enc.Close()
	default:
		return fmt.Errorf("unsupported codec %q", codec)
	}
}
