package flatfile

import (
	"bytes"
	"errors"
	"io"
	"strings"
	"testing"
)

var errInjectedRead = errors.New("injected read error")

// memSource is a seekable in-memory Source that records Close calls.
type memSource struct {
	*bytes.Reader
	closes int
}

func newMemSource(content string) *memSource {
	return &memSource{Reader: bytes.NewReader([]byte(content))}
}

func (m *memSource) Close() error {
	m.closes++
	return nil
}

// pipeSource is a Source without io.Seeker.
type pipeSource struct {
	io.Reader
}

func (pipeSource) Close() error { return nil }

// faultSource returns data, then fails every Read with err.
type faultSource struct {
	data []byte
	err  error
}

func (f *faultSource) Read(p []byte) (int, error) {
	if len(f.data) == 0 {
		return 0, f.err
	}
	n := copy(p, f.data)
	f.data = f.data[n:]
	return n, nil
}

func (f *faultSource) Close() error { return nil }

func newTestStream(t *testing.T, content string, opts ...Option) *Stream {
	t.Helper()
	s, err := FromSource(newMemSource(content), "test", opts...)
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func mustRead(t *testing.T, s *Stream, delim string) string {
	t.Helper()
	span, err := s.ReadString(delim)
	if err != nil {
		t.Fatalf("ReadString(%q) failed: %v", delim, err)
	}
	return span
}

func mustPrefetch(t *testing.T, s *Stream, delim string) string {
	t.Helper()
	span, err := s.PrefetchString(delim)
	if err != nil {
		t.Fatalf("PrefetchString(%q) failed: %v", delim, err)
	}
	return span
}

func mustAtEnd(t *testing.T, s *Stream) bool {
	t.Helper()
	done, err := s.AtEnd()
	if err != nil {
		t.Fatalf("AtEnd failed: %v", err)
	}
	return done
}

func readAllLines(t *testing.T, s *Stream) []string {
	t.Helper()
	var lines []string
	for {
		line, err := s.ReadLine()
		if errors.Is(err, io.EOF) {
			return lines
		}
		if err != nil {
			t.Fatal(err)
		}
		lines = append(lines, line)
	}
}

func joinLines(lines []string) string {
	return strings.Join(lines, "")
}
