package flatfile

import (
	"context"
	"errors"
	"fmt"
	"io"
)

// -----------------------------------------------------------------------------
// Range Source
// -----------------------------------------------------------------------------

// RangeSource is a seekable Source backed by true range reads.
//
// Each Read issues one ReadRange call for at most len(p) bytes, so the
// stream's block size controls the request size.
type RangeSource struct {
	ctx    context.Context
	rr     RangeReader
	path   string
	size   int64
	off    int64
	closed bool
}

// NewRangeSource stats path and returns a source positioned at offset 0.
// Returns ErrNotFound if the object does not exist.
func NewRangeSource(ctx context.Context, rr RangeReader, path string) (*RangeSource, error) {
	if rr == nil {
		return nil, errors.New("flatfile: range reader must not be nil")
	}
	size, err := rr.Stat(ctx, path)
	if err != nil {
		return nil, err
	}
	return &RangeSource{
		ctx:  ctx,
		rr:   rr,
		path: path,
		size: size,
	}, nil
}

// Name returns the object path.
func (r *RangeSource) Name() string { return r.path }

// Size returns the object size captured at open time.
func (r *RangeSource) Size() int64 { return r.size }

// Read implements io.Reader.
func (r *RangeSource) Read(p []byte) (int, error) {
	if r.closed {
		return 0, ErrClosed
	}
	if r.off >= r.size {
		return 0, io.EOF
	}
	if len(p) == 0 {
		return 0, nil
	}
	length := int64(len(p))
	if remaining := r.size - r.off; length > remaining {
		length = remaining
	}
	data, err := r.rr.ReadRange(r.ctx, r.path, r.off, length)
	if err != nil {
		return 0, err
	}
	if len(data) == 0 {
		// Object shrank after Stat.
		r.size = r.off
		return 0, io.EOF
	}
	n := copy(p, data)
	r.off += int64(n)
	return n, nil
}

// Seek implements io.Seeker. Seeking past the end is allowed; reads there
// return io.EOF.
func (r *RangeSource) Seek(offset int64, whence int) (int64, error) {
	if r.closed {
		return 0, ErrClosed
	}
	var abs int64
	switch whence {
	case io.SeekStart:
		abs = offset
	case io.SeekCurrent:
		abs = r.off + offset
	case io.SeekEnd:
		abs = r.size + offset
	default:
		return 0, fmt.Errorf("flatfile: invalid whence %d", whence)
	}
	if abs < 0 {
		return 0, errors.New("flatfile: negative position")
	}
	r.off = abs
	return abs, nil
}

// Close implements io.Closer.
func (r *RangeSource) Close() error {
	if r.closed {
		return ErrClosed
	}
	r.closed = true
	return nil
}

var _ io.ReadSeekCloser = (*RangeSource)(nil)

// -----------------------------------------------------------------------------
// Decompressing Source
// -----------------------------------------------------------------------------

// DecompressSource is a seekable Source over the decompressed form of an
// object. Offsets count decompressed bytes. Forward seeks discard output;
// backward seeks reopen the object and start over.
type DecompressSource struct {
	open   func() (io.ReadCloser, error)
	dec    Decompressor
	raw    io.ReadCloser
	r      io.ReadCloser
	off    int64
	closed bool
}

// NewDecompressSource returns a source that calls open lazily, on first
// Read or Seek.
func NewDecompressSource(open func() (io.ReadCloser, error), dec Decompressor) *DecompressSource {
	return &DecompressSource{open: open, dec: dec}
}

func (d *DecompressSource) ensureOpen() error {
	if d.r != nil {
		return nil
	}
	raw, err := d.open()
	if err != nil {
		return err
	}
	r, err := d.dec.Decompress(raw)
	if err != nil {
		_ = raw.Close()
		return fmt.Errorf("%s: %w", d.dec.Name(), err)
	}
	d.raw, d.r, d.off = raw, r, 0
	return nil
}

func (d *DecompressSource) release() error {
	if d.r == nil {
		return nil
	}
	err := errors.Join(d.r.Close(), d.raw.Close())
	d.r, d.raw = nil, nil
	return err
}

// Read implements io.Reader.
func (d *DecompressSource) Read(p []byte) (int, error) {
	if d.closed {
		return 0, ErrClosed
	}
	if err := d.ensureOpen(); err != nil {
		return 0, err
	}
	if len(p) == 0 {
		return 0, nil
	}
	n, err := d.r.Read(p)
	d.off += int64(n)
	return n, err
}

// Seek implements io.Seeker for io.SeekStart and io.SeekCurrent.
// The decompressed size is unknown, so io.SeekEnd is rejected.
func (d *DecompressSource) Seek(offset int64, whence int) (int64, error) {
	if d.closed {
		return 0, ErrClosed
	}
	target := offset
	switch whence {
	case io.SeekStart:
	case io.SeekCurrent:
		target = d.off + offset
	default:
		return 0, fmt.Errorf("flatfile: %s source does not support whence %d", d.dec.Name(), whence)
	}
	if target < 0 {
		return 0, errors.New("flatfile: negative position")
	}
	if d.r != nil && target < d.off {
		if err := d.release(); err != nil {
			return 0, err
		}
	}
	if err := d.ensureOpen(); err != nil {
		return 0, err
	}
	if skip := target - d.off; skip > 0 {
		n, err := io.CopyN(io.Discard, d.r, skip)
		d.off += n
		if err != nil && !errors.Is(err, io.EOF) {
			return d.off, err
		}
	}
	// Past the end, reads report io.EOF; remember the requested offset.
	d.off = target
	return target, nil
}

// Close implements io.Closer.
func (d *DecompressSource) Close() error {
	if d.closed {
		return ErrClosed
	}
	d.closed = true
	return d.release()
}

var _ io.ReadSeekCloser = (*DecompressSource)(nil)
