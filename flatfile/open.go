package flatfile

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"go.uber.org/zap"
)

// Open opens path on store and returns a stream that owns the source.
//
// Source selection:
//   - stores implementing SourceOpener hand out a native source
//   - stores implementing RangeReader are streamed with range reads
//   - anything else fails with ErrRangeReadNotSupported
//
// With WithDecompressor or WithAutoDecompress the object is decompressed on
// the fly; seeking then restarts decompression as needed.
func Open(ctx context.Context, store Store, path string, opts ...Option) (*Stream, error) {
	if store == nil {
		return nil, errors.New("flatfile: store must not be nil")
	}
	return openStream(path, opts, func() (Source, error) {
		return OpenSource(ctx, store, path)
	})
}

// OpenFile opens a local file and returns a stream that owns it.
func OpenFile(path string, opts ...Option) (*Stream, error) {
	return openStream(path, opts, func() (Source, error) {
		file, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		return file, nil
	})
}

// With opens path on store, passes the stream to fn and closes it on every
// exit path, including a panic in fn. Any later use of the stream fails
// with ErrClosed.
func With(ctx context.Context, store Store, path string, fn func(*Stream) error, opts ...Option) error {
	s, err := Open(ctx, store, path, opts...)
	if err != nil {
		return err
	}
	return use(s, fn)
}

// WithFile is With for a local file.
func WithFile(path string, fn func(*Stream) error, opts ...Option) error {
	s, err := OpenFile(path, opts...)
	if err != nil {
		return err
	}
	return use(s, fn)
}

func use(s *Stream, fn func(*Stream) error) (err error) {
	defer func() {
		cerr := s.Close()
		if cerr != nil && !errors.Is(cerr, ErrClosed) && err == nil {
			err = cerr
		}
	}()
	return fn(s)
}

// OpenSource opens path on store as a Source, preferring a native source
// over range reads.
func OpenSource(ctx context.Context, store Store, path string) (Source, error) {
	if so, ok := store.(SourceOpener); ok {
		return so.OpenSource(ctx, path)
	}
	if rr, ok := store.(RangeReader); ok {
		return NewRangeSource(ctx, rr, path)
	}
	return nil, ErrRangeReadNotSupported
}

func openStream(path string, opts []Option, open func() (Source, error)) (*Stream, error) {
	cfg, err := newStreamConfig(modeOpen, opts)
	if err != nil {
		return nil, err
	}
	if cfg.label == "" {
		cfg.label = path
	}

	dec := cfg.decompressor
	if dec == nil && cfg.autoDecompress {
		dec = DecompressorForPath(path)
	}

	var src Source
	if dec != nil && dec.Extension() != "" {
		src = NewDecompressSource(func() (io.ReadCloser, error) {
			return open()
		}, dec)
		// Surface open and header errors now rather than on first read.
		if _, err := src.Read(nil); err != nil && !errors.Is(err, io.EOF) {
			_ = src.Close()
			return nil, fmt.Errorf("flatfile: open %s: %w", path, err)
		}
	} else {
		src, err = open()
		if err != nil {
			return nil, fmt.Errorf("flatfile: open %s: %w", path, err)
		}
	}

	if dec != nil {
		cfg.logger.Debug("decompressing source", zap.String("path", path), zap.String("decompressor", dec.Name()))
	}
	return newStream(src, cfg), nil
}
