// Package flatfile provides a buffered, push-back capable input stream for
// record-oriented flat files, together with the storage adapters that feed it.
//
// The stream delivers delimiter-terminated spans from a byte source while
// supporting speculative lookahead (PrefetchString) and exact replay (Unread,
// UngetByte). Record parsers decide which delimiter to request at each step;
// flatfile never interprets record content.
package flatfile

import (
	"context"
	"errors"
	"fmt"
	"io"
)

// -----------------------------------------------------------------------------
// Source
// -----------------------------------------------------------------------------

// Source is the byte-producing resource a Stream reads from.
//
// Seeking is optional: sources that also implement io.Seeker support
// SetPosition and Rewind; others fail those calls with ErrNotSeekable.
// Physical exhaustion is signalled by io.EOF from Read.
type Source interface {
	io.Reader
	io.Closer
}

// SourceOpener is implemented by stores that can hand out a native seekable
// source (for example an *os.File) instead of a range-read emulation.
type SourceOpener interface {
	// OpenSource opens the object at path for streaming.
	OpenSource(ctx context.Context, path string) (Source, error)
}

// -----------------------------------------------------------------------------
// Store interface
// -----------------------------------------------------------------------------

// Store abstracts the storage system flat files are read from.
//
// Implementations may target filesystems, S3, Redis or other backends.
type Store interface {
	// Put writes data to the given path.
	Put(ctx context.Context, path string, r io.Reader) error

	// Get retrieves data from the given path.
	Get(ctx context.Context, path string) (io.ReadCloser, error)

	// Exists checks whether a path exists.
	Exists(ctx context.Context, path string) (bool, error)

	// List returns paths under the given prefix.
	List(ctx context.Context, prefix string) ([]string, error)

	// Delete removes the path if it exists.
	Delete(ctx context.Context, path string) error
}

// RangeReader is implemented by stores that support true range reads.
type RangeReader interface {
	// Stat returns the size of the object at path in bytes.
	Stat(ctx context.Context, path string) (int64, error)

	// ReadRange reads up to length bytes starting at offset.
	// A range extending beyond EOF returns the available bytes; an offset at
	// or beyond EOF returns an empty slice.
	ReadRange(ctx context.Context, path string, offset, length int64) ([]byte, error)
}

// StoreFactory creates a Store on demand.
type StoreFactory func() (Store, error)

// -----------------------------------------------------------------------------
// Decompressor interface
// -----------------------------------------------------------------------------

// Decompressor wraps compressed streams.
type Decompressor interface {
	// Name returns the decompressor identifier (for example, "gzip").
	Name() string

	// Extension returns the file extension it handles (for example, ".gz").
	Extension() string

	// Decompress wraps a reader with decompression.
	Decompress(r io.Reader) (io.ReadCloser, error)
}

// -----------------------------------------------------------------------------
// Errors
// -----------------------------------------------------------------------------

// Error sentinel values for common conditions.
var (
	// ErrClosed indicates an operation on a stream whose source was closed.
	ErrClosed = errClosed{}

	// ErrNotSeekable indicates a seek on a source without io.Seeker.
	ErrNotSeekable = errNotSeekable{}

	// ErrNotFound indicates a requested object does not exist.
	ErrNotFound = errNotFound{}

	// ErrPathExists indicates an attempt to write to an existing path.
	ErrPathExists = errPathExists{}
)

// ErrEmptyDelimiter indicates a delimited read was requested with "".
var ErrEmptyDelimiter = errors.New("delimiter must not be empty")

// ErrRangeReadNotSupported indicates a store can neither open native sources
// nor serve range reads.
var ErrRangeReadNotSupported = errors.New("range read not supported")

type errClosed struct{}

func (errClosed) Error() string { return "stream closed" }

type errNotSeekable struct{}

func (errNotSeekable) Error() string { return "source not seekable" }

type errNotFound struct{}

func (errNotFound) Error() string { return "not found" }

type errPathExists struct{}

func (errPathExists) Error() string { return "path exists" }

// SeekError reports a failed SetPosition or Rewind.
type SeekError struct {
	Label  string
	Offset int64
	Err    error
}

func (e *SeekError) Error() string {
	return fmt.Sprintf("flatfile: seek %s to %d: %v", e.Label, e.Offset, e.Err)
}

func (e *SeekError) Unwrap() error {
	return e.Err
}

// IOError reports a read failure from the underlying source.
// The source error is carried unchanged.
type IOError struct {
	Op    string
	Label string
	Err   error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("flatfile: %s %s: %v", e.Op, e.Label, e.Err)
}

func (e *IOError) Unwrap() error {
	return e.Err
}
