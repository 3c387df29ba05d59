package flatfile

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/parquet-go/parquet-go"
)

// ErrInvalidFormat indicates data that is not a readable Parquet file.
var ErrInvalidFormat = errors.New("parquet: invalid format")

// ParquetCompression specifies internal Parquet compression.
type ParquetCompression int

// Parquet compression options for internal file compression.
const (
	ParquetCompressionNone ParquetCompression = iota
	ParquetCompressionSnappy
	ParquetCompressionGzip
	ParquetCompressionZstd
)

// ParquetOption configures Parquet codec behavior.
type ParquetOption func(*parquetCodec)

// WithParquetCompression sets internal Parquet compression.
func WithParquetCompression(codec ParquetCompression) ParquetOption {
	return func(c *parquetCodec) {
		c.compression = codec
	}
}

// parquetCodec implements RecordCodec for Apache Parquet files.
// Columns follow the parquet tags on Record.
type parquetCodec struct {
	compression ParquetCompression
}

// NewParquetCodec creates a Parquet record codec.
// Default compression: Snappy.
//
// A Parquet file carries a footer that references all row groups, so Encode
// buffers the whole file before writing it out.
func NewParquetCodec(opts ...ParquetOption) RecordCodec {
	c := &parquetCodec{compression: ParquetCompressionSnappy}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *parquetCodec) Name() string {
	return "parquet"
}

func (c *parquetCodec) Encode(w io.Writer, records []Record) error {
	var buf bytes.Buffer

	pqWriter := parquet.NewGenericWriter[Record](&buf, c.compressionOption())
	if len(records) > 0 {
		if _, err := pqWriter.Write(records); err != nil {
			_ = pqWriter.Close()
			return fmt.Errorf("parquet: write rows: %w", err)
		}
	}
	if err := pqWriter.Close(); err != nil {
		return fmt.Errorf("parquet: close writer: %w", err)
	}

	_, err := io.Copy(w, &buf)
	return err
}

func (c *parquetCodec) Decode(r io.Reader) ([]Record, error) {
	// Parquet needs random access for the footer.
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("parquet: read file: %w", err)
	}
	if len(data) == 0 {
		return nil, ErrInvalidFormat
	}

	file, err := parquet.OpenFile(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidFormat, err)
	}
	if file.NumRows() == 0 {
		return []Record{}, nil
	}

	reader := parquet.NewGenericReader[Record](bytes.NewReader(data))
	defer func() { _ = reader.Close() }()

	records := make([]Record, 0, file.NumRows())
	rows := make([]Record, 100)
	for {
		n, err := reader.Read(rows)
		records = append(records, rows[:n]...)
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, fmt.Errorf("%w: read rows: %w", ErrInvalidFormat, err)
		}
	}
	return records, nil
}

func (c *parquetCodec) compressionOption() parquet.WriterOption {
	switch c.compression {
	case ParquetCompressionSnappy:
		return parquet.Compression(&parquet.Snappy)
	case ParquetCompressionGzip:
		return parquet.Compression(&parquet.Gzip)
	case ParquetCompressionZstd:
		return parquet.Compression(&parquet.Zstd)
	default:
		return parquet.Compression(&parquet.Uncompressed)
	}
}
