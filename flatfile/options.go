package flatfile

import (
	"errors"
	"fmt"

	"go.uber.org/zap"
)

// ErrOptionNotValidForSource indicates an option was passed to FromSource
// that only applies when flatfile opens the source itself.
var ErrOptionNotValidForSource = errors.New("option not valid for an already-open source")

// streamMode records which constructor is applying options.
type streamMode int

const (
	modeSource streamMode = iota
	modeOpen
)

// streamConfig holds the resolved configuration for a stream.
type streamConfig struct {
	mode           streamMode
	label          string
	logger         *zap.Logger
	owned          bool
	blockSize      int
	decompressor   Decompressor
	autoDecompress bool
}

// Option configures stream construction.
type Option func(*streamConfig) error

func newStreamConfig(mode streamMode, opts []Option) (*streamConfig, error) {
	cfg := &streamConfig{
		mode:      mode,
		logger:    zap.NewNop(),
		blockSize: DefaultBlockSize,
		owned:     mode == modeOpen,
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(cfg); err != nil {
			return nil, fmt.Errorf("flatfile: %w", err)
		}
	}
	if cfg.logger == nil {
		return nil, errors.New("flatfile: logger must not be nil")
	}
	return cfg, nil
}

// WithLabel overrides the diagnostic label of the stream.
// Default: the path for opened streams; for FromSource, the label argument.
func WithLabel(label string) Option {
	return func(cfg *streamConfig) error {
		cfg.label = label
		return nil
	}
}

// WithLogger sets the logger used for lifecycle events.
// Default: zap.NewNop().
func WithLogger(l *zap.Logger) Option {
	return func(cfg *streamConfig) error {
		cfg.logger = l
		return nil
	}
}

// WithOwnership makes a FromSource stream close its source on Close.
// Opened streams always own their source.
func WithOwnership() Option {
	return func(cfg *streamConfig) error {
		cfg.owned = true
		return nil
	}
}

// WithBlockSize sets the read-ahead block size. For range-read stores this
// is also the size of each range request.
// Default: DefaultBlockSize.
func WithBlockSize(n int) Option {
	return func(cfg *streamConfig) error {
		if n < minBlockSize {
			return fmt.Errorf("block size must be at least %d, got %d", minBlockSize, n)
		}
		cfg.blockSize = n
		return nil
	}
}

// WithDecompressor decompresses the opened object with d.
// Positions then count decompressed bytes.
// This option is only valid for Open, OpenFile, With and WithFile.
func WithDecompressor(d Decompressor) Option {
	return func(cfg *streamConfig) error {
		if cfg.mode != modeOpen {
			return fmt.Errorf("WithDecompressor: %w", ErrOptionNotValidForSource)
		}
		if d == nil {
			return errors.New("WithDecompressor: decompressor must not be nil")
		}
		cfg.decompressor = d
		return nil
	}
}

// WithAutoDecompress picks a decompressor from the path extension
// (see DecompressorForPath). An explicit WithDecompressor wins.
// This option is only valid for Open, OpenFile, With and WithFile.
func WithAutoDecompress() Option {
	return func(cfg *streamConfig) error {
		if cfg.mode != modeOpen {
			return fmt.Errorf("WithAutoDecompress: %w", ErrOptionNotValidForSource)
		}
		cfg.autoDecompress = true
		return nil
	}
}
