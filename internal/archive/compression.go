package archive

import (
	"bufio"
	"bytes"
	"io"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/mdouchement/modelshuttle/internal/storeerr"
	"github.com/pkg/errors"
)

// A Compression is the codec wrapping the tar stream.
type Compression int

// Supported compressions.
// Auto picks the compression from the archive extension.
const (
	Auto Compression = iota
	Gzip
	Zstd
	None
)

var (
	gzipMagic = []byte{0x1f, 0x8b}
	zstdMagic = []byte{0x28, 0xb5, 0x2f, 0xfd}
)

func (c Compression) String() string {
	switch c {
	case Gzip:
		return "gzip"
	case Zstd:
		return "zstd"
	case None:
		return "none"
	case Auto:
		return "auto"
	}
	return "unknown"
}

// Extension returns the usual file extension of an archive using c.
func (c Compression) Extension() string {
	switch c {
	case Zstd:
		return ".tar.zst"
	case None:
		return ".tar"
	}
	return ".tar.gz"
}

// CompressionFromPath guesses the compression from the archive extension, gzip by default.
func CompressionFromPath(p string) Compression {
	p = strings.ToLower(p)
	switch {
	case strings.HasSuffix(p, ".tar.zst"), strings.HasSuffix(p, ".tzst"), strings.HasSuffix(p, ".zst"):
		return Zstd
	case strings.HasSuffix(p, ".tar"):
		return None
	}
	return Gzip
}

// ParseCompression parses a compression name.
func ParseCompression(s string) (Compression, error) {
	switch strings.ToLower(s) {
	case "gzip", "gz":
		return Gzip, nil
	case "zstd", "zst":
		return Zstd, nil
	case "none", "tar":
		return None, nil
	case "", "auto":
		return Auto, nil
	}
	return Auto, errors.Errorf("unknown compression %q", s)
}

type nopWriteCloser struct {
	io.Writer
}

func (nopWriteCloser) Close() error { return nil }

func compress(w io.Writer, c Compression) (io.WriteCloser, error) {
	switch c {
	case Gzip, Auto:
		// The gzip header is left without name nor mtime so the output is reproducible.
		return gzip.NewWriterLevel(w, gzip.DefaultCompression)
	case Zstd:
		return zstd.NewWriter(w, zstd.WithEncoderConcurrency(1))
	case None:
		return nopWriteCloser{Writer: w}, nil
	}
	return nil, errors.Errorf("unknown compression %d", c)
}

// decompress sniffs the magic bytes of r.
func decompress(r io.Reader) (io.ReadCloser, Compression, error) {
	br := bufio.NewReader(r)
	magic, err := br.Peek(len(zstdMagic))
	if err != nil && err != io.EOF {
		return nil, None, storeerr.FromOS("read archive", "", err)
	}

	switch {
	case bytes.HasPrefix(magic, gzipMagic):
		gr, err := gzip.NewReader(br)
		if err != nil {
			return nil, Gzip, storeerr.New(storeerr.Corrupt, "read archive", "gzip", err)
		}
		return gr, Gzip, nil
	case bytes.HasPrefix(magic, zstdMagic):
		zr, err := zstd.NewReader(br, zstd.WithDecoderConcurrency(1))
		if err != nil {
			return nil, Zstd, storeerr.New(storeerr.Corrupt, "read archive", "zstd", err)
		}
		return zr.IOReadCloser(), Zstd, nil
	}
	return io.NopCloser(br), None, nil
}
