package flatfile

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"go.uber.org/zap"
)

// Stream is a buffered input stream with lookahead and push-back.
//
// Content reaches the caller from a single pending buffer first and from the
// source second. Unread and UngetByte prepend to the pending buffer,
// PrefetchString appends to it, and every read consumes from its front.
// Position reports the physical offset of the source cursor, which pending
// content never affects.
//
// A Stream is not safe for concurrent use.
type Stream struct {
	src     Source
	cur     *cursor
	label   string
	owned   bool
	closed  bool
	pending []byte
	logger  *zap.Logger
}

// named is implemented by *os.File.
type named interface {
	Name() string
}

// FromSource wraps an already-open source. The stream does not close src
// unless WithOwnership is given. An empty label falls back to the source's
// Name, when it has one.
func FromSource(src Source, label string, opts ...Option) (*Stream, error) {
	if src == nil {
		return nil, errors.New("flatfile: source must not be nil")
	}
	cfg, err := newStreamConfig(modeSource, opts)
	if err != nil {
		return nil, err
	}
	if cfg.label == "" {
		cfg.label = label
	}
	if cfg.label == "" {
		if n, ok := src.(named); ok {
			cfg.label = n.Name()
		}
	}
	return newStream(src, cfg), nil
}

func newStream(src Source, cfg *streamConfig) *Stream {
	s := &Stream{
		src:    src,
		cur:    newCursor(src, cfg.blockSize),
		label:  cfg.label,
		owned:  cfg.owned,
		logger: cfg.logger.With(zap.String("label", cfg.label)),
	}
	s.logger.Debug("stream opened", zap.Bool("owned", s.owned), zap.Int("block_size", cfg.blockSize))
	return s
}

// Label returns the identifying label (usually a path) of the stream.
func (s *Stream) Label() string { return s.label }

// Source returns the underlying source. A seekable source is first moved back
// to Position(), discarding the read-ahead block, so direct reads continue
// where the stream's cursor stopped. Pending content is not part of the
// source and stays with the stream. Call SetPosition before reading through
// the stream again.
func (s *Stream) Source() Source {
	if s.closed {
		return s.src
	}
	if _, ok := s.src.(io.Seeker); ok {
		if err := s.cur.seek(s.cur.pos); err != nil {
			s.logger.Warn("repositioning source failed", zap.Int64("offset", s.cur.pos), zap.Error(err))
		}
	}
	return s.src
}

// Close releases the stream and closes the source when it is owned.
// Closing an already-closed stream returns ErrClosed.
func (s *Stream) Close() error {
	if s.closed {
		return ErrClosed
	}
	s.closed = true
	s.pending = nil
	if !s.owned {
		s.logger.Debug("stream closed")
		return nil
	}
	if err := s.src.Close(); err != nil {
		s.logger.Warn("closing source failed", zap.Error(err))
		return fmt.Errorf("flatfile: close %s: %w", s.label, err)
	}
	s.logger.Debug("stream closed")
	return nil
}

// ReadString returns the next span up to and including delim.
//
// Pending content is consulted first. When it holds no delim, it becomes the
// prefix of the result and reading continues on the source. The last span of
// a source may lack the delimiter. When nothing remains, ReadString returns
// "" and io.EOF.
func (s *Stream) ReadString(delim string) (string, error) {
	if s.closed {
		return "", ErrClosed
	}
	if delim == "" {
		return "", ErrEmptyDelimiter
	}
	d := []byte(delim)

	var acc []byte
	if len(s.pending) > 0 {
		if i := bytes.Index(s.pending, d); i >= 0 {
			n := i + len(d)
			span := string(s.pending[:n])
			s.pending = s.pending[n:]
			return span, nil
		}
		acc = append(acc, s.pending...)
		s.pending = nil
	}

	span, err := s.cur.readUntil(acc, d)
	if err != nil && !errors.Is(err, io.EOF) {
		s.pending = append(span, s.pending...)
		return "", &IOError{Op: "read", Label: s.label, Err: err}
	}
	if len(span) == 0 {
		return "", io.EOF
	}
	return string(span), nil
}

// ReadLine is ReadString("\n").
func (s *Stream) ReadLine() (string, error) {
	return s.ReadString("\n")
}

// PrefetchString reads the next span up to and including delim from the
// source, appends it to the pending buffer and returns it. It never scans
// the pending buffer, so successive calls look further ahead, and later
// reads deliver prefetched spans in the order they were fetched.
func (s *Stream) PrefetchString(delim string) (string, error) {
	if s.closed {
		return "", ErrClosed
	}
	if delim == "" {
		return "", ErrEmptyDelimiter
	}

	span, err := s.cur.readUntil(nil, []byte(delim))
	s.pending = append(s.pending, span...)
	if err != nil && !errors.Is(err, io.EOF) {
		return "", &IOError{Op: "prefetch", Label: s.label, Err: err}
	}
	if len(span) == 0 {
		return "", io.EOF
	}
	return string(span), nil
}

// PrefetchLine is PrefetchString("\n").
func (s *Stream) PrefetchLine() (string, error) {
	return s.PrefetchString("\n")
}

// ReadByte consumes one byte, from the pending buffer if it is non-empty.
func (s *Stream) ReadByte() (byte, error) {
	if s.closed {
		return 0, ErrClosed
	}
	if len(s.pending) > 0 {
		c := s.pending[0]
		s.pending = s.pending[1:]
		return c, nil
	}
	c, err := s.cur.readByte()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return 0, io.EOF
		}
		return 0, &IOError{Op: "read byte", Label: s.label, Err: err}
	}
	return c, nil
}

// UngetByte pushes c in front of all pending content. No I/O happens and
// Position is unchanged.
func (s *Stream) UngetByte(c byte) error {
	if s.closed {
		return ErrClosed
	}
	s.prepend([]byte{c})
	return nil
}

// Unread pushes span in front of all pending content. Successive calls
// stack: the last span pushed is delivered first.
func (s *Stream) Unread(span string) error {
	if s.closed {
		return ErrClosed
	}
	s.prepend([]byte(span))
	return nil
}

func (s *Stream) prepend(b []byte) {
	if len(b) == 0 {
		return
	}
	buf := make([]byte, 0, len(b)+len(s.pending))
	buf = append(buf, b...)
	s.pending = append(buf, s.pending...)
}

// ReadAll returns all pending content followed by the rest of the source.
// It returns "" and io.EOF when nothing remains.
func (s *Stream) ReadAll() (string, error) {
	if s.closed {
		return "", ErrClosed
	}
	rest, err := s.cur.readAll()
	data := append(s.pending, rest...)
	s.pending = nil
	if err != nil {
		s.pending = data
		return "", &IOError{Op: "read all", Label: s.label, Err: err}
	}
	if len(data) == 0 {
		return "", io.EOF
	}
	return string(data), nil
}

// SkipSpaces discards ASCII whitespace from the front of the stream. The
// first non-space byte stays available to the next read.
func (s *Stream) SkipSpaces() error {
	for {
		c, err := s.ReadByte()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
		if !isSpace(c) {
			return s.UngetByte(c)
		}
	}
}

func isSpace(c byte) bool {
	switch c {
	case ' ', '\t', '\n', '\r', '\v', '\f':
		return true
	}
	return false
}

// Position returns the number of bytes pulled from the source so far,
// counting from the last seek. Pending content does not affect it.
func (s *Stream) Position() int64 {
	return s.cur.pos
}

// SetPosition seeks the source to offset n and discards the pending buffer.
// Failures are reported as *SeekError.
func (s *Stream) SetPosition(n int64) (int64, error) {
	if s.closed {
		return 0, &SeekError{Label: s.label, Offset: n, Err: ErrClosed}
	}
	if n < 0 {
		return 0, &SeekError{Label: s.label, Offset: n, Err: errors.New("negative offset")}
	}
	if err := s.cur.seek(n); err != nil {
		return 0, &SeekError{Label: s.label, Offset: n, Err: err}
	}
	s.pending = nil
	s.logger.Debug("stream repositioned", zap.Int64("offset", n))
	return n, nil
}

// Rewind returns to the start of the source with an empty pending buffer.
func (s *Stream) Rewind() error {
	_, err := s.SetPosition(0)
	return err
}

// AtEnd reports whether the pending buffer is empty and the source is
// exhausted. Lookahead alone never makes it true.
func (s *Stream) AtEnd() (bool, error) {
	if s.closed {
		return false, ErrClosed
	}
	if len(s.pending) > 0 {
		return false, nil
	}
	done, err := s.cur.exhausted()
	if err != nil {
		return false, &IOError{Op: "eof check", Label: s.label, Err: err}
	}
	return done, nil
}

// PrefetchBuffer returns a copy of the pending buffer without consuming it.
func (s *Stream) PrefetchBuffer() string {
	return string(s.pending)
}
