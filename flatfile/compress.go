package flatfile

import (
	"io"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
)

// -----------------------------------------------------------------------------
// Gzip Decompressor
// -----------------------------------------------------------------------------

// gzipDecompressor implements Decompressor for gzip streams.
type gzipDecompressor struct{}

// NewGzipDecompressor creates a gzip decompressor for .gz files.
// Multi-member gzip files are read as one stream.
func NewGzipDecompressor() Decompressor {
	return &gzipDecompressor{}
}

func (g *gzipDecompressor) Name() string {
	return "gzip"
}

func (g *gzipDecompressor) Extension() string {
	return ".gz"
}

func (g *gzipDecompressor) Decompress(r io.Reader) (io.ReadCloser, error) {
	return gzip.NewReader(r)
}

// -----------------------------------------------------------------------------
// Zstd Decompressor
// -----------------------------------------------------------------------------

// zstdDecompressor implements Decompressor for Zstandard streams.
type zstdDecompressor struct{}

// NewZstdDecompressor creates a zstd decompressor for .zst files.
func NewZstdDecompressor() Decompressor {
	return &zstdDecompressor{}
}

func (z *zstdDecompressor) Name() string {
	return "zstd"
}

func (z *zstdDecompressor) Extension() string {
	return ".zst"
}

func (z *zstdDecompressor) Decompress(r io.Reader) (io.ReadCloser, error) {
	decoder, err := zstd.NewReader(r)
	if err != nil {
		return nil, err
	}
	return decoder.IOReadCloser(), nil
}

// -----------------------------------------------------------------------------
// NoOp Decompressor
// -----------------------------------------------------------------------------

// noopDecompressor passes data through unchanged.
type noopDecompressor struct{}

// NewNoOpDecompressor creates a pass-through decompressor.
func NewNoOpDecompressor() Decompressor {
	return &noopDecompressor{}
}

func (n *noopDecompressor) Name() string {
	return "noop"
}

func (n *noopDecompressor) Extension() string {
	return ""
}

func (n *noopDecompressor) Decompress(r io.Reader) (io.ReadCloser, error) {
	return io.NopCloser(r), nil
}

// DecompressorForPath returns the decompressor matching the extension of
// path, or the noop decompressor when none matches.
func DecompressorForPath(path string) Decompressor {
	lower := strings.ToLower(path)
	for _, d := range []Decompressor{NewGzipDecompressor(), NewZstdDecompressor()} {
		if strings.HasSuffix(lower, d.Extension()) {
			return d
		}
	}
	return NewNoOpDecompressor()
}
