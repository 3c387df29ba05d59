package flatfile

import (
	"encoding/binary"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

// -----------------------------------------------------------------------------
// Delimited reads
// -----------------------------------------------------------------------------

func TestStream_ReadLine_DrainsSource(t *testing.T) {
	s := newTestStream(t, "abc\ndef\nghi\n")

	got := readAllLines(t, s)
	want := []string{"abc\n", "def\n", "ghi\n"}
	if len(got) != len(want) {
		t.Fatalf("got %d lines, want %d: %q", len(got), len(want), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("line %d = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestStream_ReadString_FinalSpanWithoutDelimiter(t *testing.T) {
	s := newTestStream(t, "abc\ndef")

	if got := mustRead(t, s, "\n"); got != "abc\n" {
		t.Errorf("first span = %q, want %q", got, "abc\n")
	}
	if got := mustRead(t, s, "\n"); got != "def" {
		t.Errorf("final span = %q, want %q", got, "def")
	}
	got, err := s.ReadString("\n")
	if !errors.Is(err, io.EOF) || got != "" {
		t.Errorf("after drain: got (%q, %v), want (\"\", io.EOF)", got, err)
	}
}

func TestStream_ReadString_EmptySource(t *testing.T) {
	s := newTestStream(t, "")

	got, err := s.ReadLine()
	if !errors.Is(err, io.EOF) || got != "" {
		t.Errorf("got (%q, %v), want (\"\", io.EOF)", got, err)
	}
	if !mustAtEnd(t, s) {
		t.Error("expected AtEnd on empty source")
	}
}

func TestStream_ReadString_MultiByteDelimiter(t *testing.T) {
	s := newTestStream(t, ">seq1\nACGT\n>seq2\nTTTT\n")

	// Spans include their delimiter, so the first entry keeps the trailing
	// '>' of "\n>" and the second entry starts without one.
	if got := mustRead(t, s, "\n>"); got != ">seq1\nACGT\n>" {
		t.Errorf("first entry = %q, want %q", got, ">seq1\nACGT\n>")
	}
	if got := mustRead(t, s, "\n>"); got != "seq2\nTTTT\n" {
		t.Errorf("second entry = %q, want %q", got, "seq2\nTTTT\n")
	}
	if _, err := s.ReadString("\n>"); !errors.Is(err, io.EOF) {
		t.Errorf("expected io.EOF, got: %v", err)
	}
}

func TestStream_ReadString_LiteralSubstringThenSkipSpaces(t *testing.T) {
	s := newTestStream(t, "xxxCDS   abc")

	if got := mustRead(t, s, "CDS"); got != "xxxCDS" {
		t.Errorf("ReadString(CDS) = %q, want %q", got, "xxxCDS")
	}
	if err := s.SkipSpaces(); err != nil {
		t.Fatal(err)
	}
	c, err := s.ReadByte()
	if err != nil {
		t.Fatal(err)
	}
	if c != 'a' {
		t.Errorf("ReadByte after SkipSpaces = %q, want 'a'", c)
	}
}

func TestStream_ReadString_DelimiterIsLiteral(t *testing.T) {
	s := newTestStream(t, "a.b*c.*d")

	if got := mustRead(t, s, ".*"); got != "a.b*c.*" {
		t.Errorf("got %q, want %q", got, "a.b*c.*")
	}
}

func TestStream_ReadString_DelimiterStraddlesPendingAndSource(t *testing.T) {
	s := newTestStream(t, "ab\n>cd\n>ef")

	mustPrefetch(t, s, "\n")
	if got := mustRead(t, s, "\n>"); got != "ab\n>" {
		t.Errorf("got %q, want %q", got, "ab\n>")
	}
	if got := s.Position(); got != 4 {
		t.Errorf("Position = %d, want 4", got)
	}
	if got := mustRead(t, s, "\n>"); got != "cd\n>" {
		t.Errorf("got %q, want %q", got, "cd\n>")
	}
	if got := mustRead(t, s, "\n>"); got != "ef" {
		t.Errorf("got %q, want %q", got, "ef")
	}
}

func TestStream_ReadString_PendingPrefixContinuesFromSource(t *testing.T) {
	s := newTestStream(t, "abc\ndef\n")

	if err := s.Unread("xy"); err != nil {
		t.Fatal(err)
	}
	if got := mustRead(t, s, "\n"); got != "xyabc\n" {
		t.Errorf("got %q, want %q", got, "xyabc\n")
	}
	if got := s.Position(); got != 4 {
		t.Errorf("Position = %d, want 4", got)
	}
	if buf := s.PrefetchBuffer(); buf != "" {
		t.Errorf("PrefetchBuffer = %q, want empty", buf)
	}
}

func TestStream_ReadString_LongerThanBlock(t *testing.T) {
	long := strings.Repeat("a", 40) + "\n"
	s := newTestStream(t, long+"tail\n", WithBlockSize(16))

	if got := mustRead(t, s, "\n"); got != long {
		t.Errorf("got %q, want %q", got, long)
	}
	if got := s.Position(); got != int64(len(long)) {
		t.Errorf("Position = %d, want %d", got, len(long))
	}
	if got := mustRead(t, s, "\n"); got != "tail\n" {
		t.Errorf("got %q, want %q", got, "tail\n")
	}
}

func TestStream_ReadString_DelimiterAcrossBlockBoundary(t *testing.T) {
	// With a 16-byte block, 'X' fills the first block and 'Y' starts the next.
	content := strings.Repeat("a", 15) + "XY" + "rest"
	s := newTestStream(t, content, WithBlockSize(16))

	want := strings.Repeat("a", 15) + "XY"
	if got := mustRead(t, s, "XY"); got != want {
		t.Errorf("got %q, want %q", got, want)
	}
	if got := mustRead(t, s, "XY"); got != "rest" {
		t.Errorf("got %q, want %q", got, "rest")
	}
}

func TestStream_ReadString_DoesNotOverreadSource(t *testing.T) {
	src := newMemSource("abc\ndef\n")
	s, err := FromSource(src, "test")
	if err != nil {
		t.Fatal(err)
	}

	mustRead(t, s, "\n")
	if got := s.Position(); got != 4 {
		t.Errorf("Position = %d, want 4 (read-ahead must not count)", got)
	}
}

func TestStream_EmptyDelimiter(t *testing.T) {
	s := newTestStream(t, "abc")

	if _, err := s.ReadString(""); !errors.Is(err, ErrEmptyDelimiter) {
		t.Errorf("ReadString: expected ErrEmptyDelimiter, got: %v", err)
	}
	if _, err := s.PrefetchString(""); !errors.Is(err, ErrEmptyDelimiter) {
		t.Errorf("PrefetchString: expected ErrEmptyDelimiter, got: %v", err)
	}
	if got := s.Position(); got != 0 {
		t.Errorf("Position = %d, want 0", got)
	}
}

// -----------------------------------------------------------------------------
// Lookahead
// -----------------------------------------------------------------------------

func TestStream_PrefetchString_AccumulatesInReadOrder(t *testing.T) {
	s := newTestStream(t, "abc\ndef\nghi\n")

	if got := mustPrefetch(t, s, "\n"); got != "abc\n" {
		t.Errorf("first prefetch = %q", got)
	}
	if got := mustPrefetch(t, s, "\n"); got != "def\n" {
		t.Errorf("second prefetch = %q", got)
	}
	if got := s.PrefetchBuffer(); got != "abc\ndef\n" {
		t.Errorf("PrefetchBuffer = %q, want %q", got, "abc\ndef\n")
	}
	if got := s.Position(); got != 8 {
		t.Errorf("Position = %d, want 8", got)
	}

	lines := readAllLines(t, s)
	if joined := joinLines(lines); joined != "abc\ndef\nghi\n" {
		t.Errorf("drained %q, want original order", joined)
	}
}

func TestStream_PrefetchString_IgnoresPendingContent(t *testing.T) {
	s := newTestStream(t, "abc\ndef\n")

	if err := s.Unread("pushed\n"); err != nil {
		t.Fatal(err)
	}
	if got := mustPrefetch(t, s, "\n"); got != "abc\n" {
		t.Errorf("prefetch = %q, want %q", got, "abc\n")
	}
	if got := s.PrefetchBuffer(); got != "pushed\nabc\n" {
		t.Errorf("PrefetchBuffer = %q, want %q", got, "pushed\nabc\n")
	}
}

func TestStream_PrefetchDoesNotTripAtEnd(t *testing.T) {
	s := newTestStream(t, "abc\ndef\n")

	for {
		_, err := s.PrefetchLine()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			t.Fatal(err)
		}
	}
	if mustAtEnd(t, s) {
		t.Fatal("AtEnd = true with undrained lookahead")
	}

	readAllLines(t, s)
	if !mustAtEnd(t, s) {
		t.Error("AtEnd = false after draining lookahead")
	}
}

func TestStream_AtEnd_AfterFullDrain(t *testing.T) {
	s := newTestStream(t, "a\nb\nc")

	if mustAtEnd(t, s) {
		t.Fatal("AtEnd = true before reading")
	}
	readAllLines(t, s)
	if !mustAtEnd(t, s) {
		t.Error("AtEnd = false after full drain")
	}
}

func TestStream_AtEnd_PendingPushBack(t *testing.T) {
	s := newTestStream(t, "a\n")

	readAllLines(t, s)
	if err := s.UngetByte('z'); err != nil {
		t.Fatal(err)
	}
	if mustAtEnd(t, s) {
		t.Error("AtEnd = true with pushed-back byte")
	}
	if c, err := s.ReadByte(); err != nil || c != 'z' {
		t.Errorf("ReadByte = (%q, %v), want 'z'", c, err)
	}
	if !mustAtEnd(t, s) {
		t.Error("AtEnd = false after consuming push-back")
	}
}

func TestStream_AtEnd_DoesNotMovePosition(t *testing.T) {
	s := newTestStream(t, "abc\n")

	mustAtEnd(t, s)
	if got := s.Position(); got != 0 {
		t.Errorf("Position = %d after AtEnd, want 0", got)
	}
}

// -----------------------------------------------------------------------------
// Push-back
// -----------------------------------------------------------------------------

func TestStream_Unread_StackOrder(t *testing.T) {
	s := newTestStream(t, "first\nsecond\nthird\n")

	a := mustRead(t, s, "\n")
	b := mustRead(t, s, "\n")
	pos := s.Position()

	if err := s.Unread(b); err != nil {
		t.Fatal(err)
	}
	if err := s.Unread(a); err != nil {
		t.Fatal(err)
	}
	if got := s.Position(); got != pos {
		t.Errorf("Unread moved Position from %d to %d", pos, got)
	}

	if got := mustRead(t, s, "\n"); got != a {
		t.Errorf("first replay = %q, want %q", got, a)
	}
	if got := mustRead(t, s, "\n"); got != b {
		t.Errorf("second replay = %q, want %q", got, b)
	}
	if got := mustRead(t, s, "\n"); got != "third\n" {
		t.Errorf("after replay = %q, want %q", got, "third\n")
	}
}

func TestStream_Unread_PrecedesLookahead(t *testing.T) {
	s := newTestStream(t, "abc\ndef\n")

	mustPrefetch(t, s, "\n")
	if err := s.Unread("zz\n"); err != nil {
		t.Fatal(err)
	}
	if got := s.PrefetchBuffer(); got != "zz\nabc\n" {
		t.Errorf("PrefetchBuffer = %q, want %q", got, "zz\nabc\n")
	}
	lines := readAllLines(t, s)
	if joined := joinLines(lines); joined != "zz\nabc\ndef\n" {
		t.Errorf("drained %q", joined)
	}
}

func TestStream_ReadByte_RoundTrip(t *testing.T) {
	s := newTestStream(t, "xyz")

	c, err := s.ReadByte()
	if err != nil {
		t.Fatal(err)
	}
	if err := s.UngetByte(c); err != nil {
		t.Fatal(err)
	}
	again, err := s.ReadByte()
	if err != nil {
		t.Fatal(err)
	}
	if again != c {
		t.Errorf("ReadByte after UngetByte = %q, want %q", again, c)
	}
	if got := s.Position(); got != 1 {
		t.Errorf("Position = %d, want 1", got)
	}
}

func TestStream_UngetByte_ReassemblesPrefetchedToken(t *testing.T) {
	s := newTestStream(t, "token\nnext\n")

	span := mustPrefetch(t, s, "\n")
	c, err := s.ReadByte()
	if err != nil {
		t.Fatal(err)
	}
	if err := s.UngetByte(c); err != nil {
		t.Fatal(err)
	}
	if got := mustRead(t, s, "\n"); got != span {
		t.Errorf("ReadString = %q, want prefetched %q", got, span)
	}
}

func TestStream_ReadByte_AtEnd(t *testing.T) {
	s := newTestStream(t, "")

	if _, err := s.ReadByte(); !errors.Is(err, io.EOF) {
		t.Errorf("expected io.EOF, got: %v", err)
	}
}

func TestStream_ReadAll(t *testing.T) {
	s := newTestStream(t, "abc\ndef\nghi")

	mustRead(t, s, "\n")
	mustPrefetch(t, s, "\n")
	got, err := s.ReadAll()
	if err != nil {
		t.Fatal(err)
	}
	if got != "def\nghi" {
		t.Errorf("ReadAll = %q, want %q", got, "def\nghi")
	}
	if _, err := s.ReadAll(); !errors.Is(err, io.EOF) {
		t.Errorf("second ReadAll: expected io.EOF, got: %v", err)
	}
}

// -----------------------------------------------------------------------------
// Whitespace
// -----------------------------------------------------------------------------

func TestStream_SkipSpaces(t *testing.T) {
	tests := []struct {
		name    string
		content string
		pushed  string
		want    byte
	}{
		{"ascii class", " \t\n\r\v\fx", "", 'x'},
		{"no leading space", "abc", "", 'a'},
		{"pending then source", "  y", " \n", 'y'},
		{"pending only", "", "\t z", 'z'},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestStream(t, tt.content)
			if tt.pushed != "" {
				if err := s.Unread(tt.pushed); err != nil {
					t.Fatal(err)
				}
			}
			if err := s.SkipSpaces(); err != nil {
				t.Fatal(err)
			}
			c, err := s.ReadByte()
			if err != nil {
				t.Fatal(err)
			}
			if c != tt.want {
				t.Errorf("ReadByte = %q, want %q", c, tt.want)
			}
		})
	}
}

func TestStream_SkipSpaces_AtEnd(t *testing.T) {
	s := newTestStream(t, "  \n ")

	if err := s.SkipSpaces(); err != nil {
		t.Fatal(err)
	}
	if !mustAtEnd(t, s) {
		t.Error("expected AtEnd after skipping trailing whitespace")
	}
}

// -----------------------------------------------------------------------------
// Position
// -----------------------------------------------------------------------------

func TestStream_Position_Monotonic(t *testing.T) {
	s := newTestStream(t, "one\ntwo\nthree\nfour\nfive\nsix\n", WithBlockSize(16))

	ops := []func() error{
		func() error { _, err := s.PrefetchLine(); return err },
		func() error { _, err := s.ReadByte(); return err },
		func() error { _, err := s.ReadLine(); return err },
		func() error { return s.UngetByte('q') },
		func() error { _, err := s.ReadString("e"); return err },
		func() error { return s.Unread("abc") },
		func() error { _, err := s.PrefetchString("r"); return err },
		func() error { _, err := s.ReadLine(); return err },
		func() error { return s.SkipSpaces() },
		func() error { _, err := s.ReadLine(); return err },
	}

	last := s.Position()
	for i := 0; i < 3; i++ {
		for j, op := range ops {
			if err := op(); err != nil && !errors.Is(err, io.EOF) {
				t.Fatalf("op %d failed: %v", j, err)
			}
			pos := s.Position()
			if pos < last {
				t.Fatalf("op %d: Position went from %d to %d", j, last, pos)
			}
			last = pos
		}
	}
}

func TestStream_SetPosition(t *testing.T) {
	s := newTestStream(t, "abc\ndef\nghi\n")

	mustRead(t, s, "\n")
	mustPrefetch(t, s, "\n")

	n, err := s.SetPosition(4)
	if err != nil {
		t.Fatal(err)
	}
	if n != 4 {
		t.Errorf("SetPosition returned %d, want 4", n)
	}
	if buf := s.PrefetchBuffer(); buf != "" {
		t.Errorf("PrefetchBuffer = %q after SetPosition, want empty", buf)
	}
	if got := s.Position(); got != 4 {
		t.Errorf("Position = %d, want 4", got)
	}
	if got := mustRead(t, s, "\n"); got != "def\n" {
		t.Errorf("ReadLine = %q, want %q", got, "def\n")
	}
	if got := s.Position(); got != 8 {
		t.Errorf("Position = %d, want 8", got)
	}
}

func TestStream_SetPosition_PastEnd(t *testing.T) {
	s := newTestStream(t, "abc\n")

	if _, err := s.SetPosition(100); err != nil {
		t.Fatal(err)
	}
	if _, err := s.ReadLine(); !errors.Is(err, io.EOF) {
		t.Errorf("expected io.EOF past end, got: %v", err)
	}
	if !mustAtEnd(t, s) {
		t.Error("expected AtEnd past end")
	}
}

func TestStream_Rewind_ClearsLookahead(t *testing.T) {
	s := newTestStream(t, "abc\ndef\n")

	mustPrefetch(t, s, "\n")
	mustPrefetch(t, s, "\n")
	if err := s.Unread("x"); err != nil {
		t.Fatal(err)
	}

	if err := s.Rewind(); err != nil {
		t.Fatal(err)
	}
	if buf := s.PrefetchBuffer(); buf != "" {
		t.Errorf("PrefetchBuffer = %q after Rewind, want empty", buf)
	}
	if got := s.Position(); got != 0 {
		t.Errorf("Position = %d after Rewind, want 0", got)
	}
	if got := mustRead(t, s, "\n"); got != "abc\n" {
		t.Errorf("ReadLine after Rewind = %q, want %q", got, "abc\n")
	}
}

func TestStream_SetPosition_Errors(t *testing.T) {
	t.Run("not seekable", func(t *testing.T) {
		s, err := FromSource(pipeSource{strings.NewReader("abc")}, "pipe")
		if err != nil {
			t.Fatal(err)
		}
		_, err = s.SetPosition(0)
		if !errors.Is(err, ErrNotSeekable) {
			t.Errorf("expected ErrNotSeekable, got: %v", err)
		}
		var seekErr *SeekError
		if !errors.As(err, &seekErr) {
			t.Fatalf("expected *SeekError, got %T", err)
		}
		if seekErr.Label != "pipe" || seekErr.Offset != 0 {
			t.Errorf("SeekError = %+v", seekErr)
		}
	})

	t.Run("negative offset", func(t *testing.T) {
		s := newTestStream(t, "abc")
		var seekErr *SeekError
		if _, err := s.SetPosition(-1); !errors.As(err, &seekErr) {
			t.Errorf("expected *SeekError, got: %v", err)
		}
	})

	t.Run("closed", func(t *testing.T) {
		s := newTestStream(t, "abc")
		if err := s.Close(); err != nil {
			t.Fatal(err)
		}
		_, err := s.SetPosition(0)
		var seekErr *SeekError
		if !errors.As(err, &seekErr) {
			t.Fatalf("expected *SeekError, got: %v", err)
		}
		if !errors.Is(err, ErrClosed) {
			t.Errorf("expected ErrClosed, got: %v", err)
		}
	})
}

// -----------------------------------------------------------------------------
// Lifecycle
// -----------------------------------------------------------------------------

func TestFromSource_NilSource(t *testing.T) {
	if _, err := FromSource(nil, "x"); err == nil {
		t.Error("expected error for nil source")
	}
}

func TestFromSource_Accessors(t *testing.T) {
	src := newMemSource("abc")
	s, err := FromSource(src, "seqs.fa")
	if err != nil {
		t.Fatal(err)
	}
	if s.Label() != "seqs.fa" {
		t.Errorf("Label = %q, want %q", s.Label(), "seqs.fa")
	}
	if s.Source() != Source(src) {
		t.Error("Source did not return the wrapped source")
	}
}

func TestStream_Source_PositionedAtCursor(t *testing.T) {
	s := newTestStream(t, "abc\ndef\nghi\n")
	if got := mustRead(t, s, "\n"); got != "abc\n" {
		t.Fatalf("ReadLine = %q", got)
	}

	raw := s.Source()
	off, err := raw.(io.Seeker).Seek(0, io.SeekCurrent)
	if err != nil {
		t.Fatal(err)
	}
	if off != 4 {
		t.Errorf("raw offset = %d, want 4", off)
	}
	rest, err := io.ReadAll(raw)
	if err != nil {
		t.Fatal(err)
	}
	if string(rest) != "def\nghi\n" {
		t.Errorf("raw read = %q, want %q", rest, "def\nghi\n")
	}
}

func TestStream_Source_LeavesPendingWithStream(t *testing.T) {
	s := newTestStream(t, "abc\ndef\nghi\n")
	mustRead(t, s, "\n")
	if got := mustPrefetch(t, s, "\n"); got != "def\n" {
		t.Fatalf("PrefetchLine = %q", got)
	}

	rest, err := io.ReadAll(s.Source())
	if err != nil {
		t.Fatal(err)
	}
	if string(rest) != "ghi\n" {
		t.Errorf("raw read = %q, want %q", rest, "ghi\n")
	}
	if got := s.PrefetchBuffer(); got != "def\n" {
		t.Errorf("PrefetchBuffer = %q, want %q", got, "def\n")
	}

	// Back on the stream after realigning the cursor.
	if _, err := s.SetPosition(4); err != nil {
		t.Fatal(err)
	}
	if got := mustRead(t, s, "\n"); got != "def\n" {
		t.Errorf("ReadLine after SetPosition = %q, want %q", got, "def\n")
	}
}

func TestStream_Source_NotSeekable(t *testing.T) {
	src := pipeSource{strings.NewReader("abc\ndef\n")}
	s, err := FromSource(src, "pipe")
	if err != nil {
		t.Fatal(err)
	}
	mustRead(t, s, "\n")
	if s.Source() != Source(src) {
		t.Error("Source did not return the wrapped source")
	}
}

func TestStream_ReadByte_ServesByteReaders(t *testing.T) {
	s := newTestStream(t, "\xac\x02rest\n")

	n, err := binary.ReadUvarint(s)
	if err != nil {
		t.Fatal(err)
	}
	if n != 300 {
		t.Errorf("ReadUvarint = %d, want 300", n)
	}
	if got := mustRead(t, s, "\n"); got != "rest\n" {
		t.Errorf("ReadLine = %q, want %q", got, "rest\n")
	}
}

func TestFromSource_LabelFallsBackToFileName(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "in.txt")
	if err := os.WriteFile(path, []byte("abc\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	s, err := FromSource(f, "")
	if err != nil {
		t.Fatal(err)
	}
	if s.Label() != path {
		t.Errorf("Label = %q, want %q", s.Label(), path)
	}
}

func TestStream_Close_Ownership(t *testing.T) {
	t.Run("borrowed", func(t *testing.T) {
		src := newMemSource("abc")
		s, err := FromSource(src, "test")
		if err != nil {
			t.Fatal(err)
		}
		if err := s.Close(); err != nil {
			t.Fatal(err)
		}
		if src.closes != 0 {
			t.Errorf("borrowed source closed %d times", src.closes)
		}
	})

	t.Run("owned", func(t *testing.T) {
		src := newMemSource("abc")
		s, err := FromSource(src, "test", WithOwnership())
		if err != nil {
			t.Fatal(err)
		}
		if err := s.Close(); err != nil {
			t.Fatal(err)
		}
		if src.closes != 1 {
			t.Errorf("owned source closed %d times, want 1", src.closes)
		}
	})
}

func TestStream_Close_Twice(t *testing.T) {
	src := newMemSource("abc")
	s, err := FromSource(src, "test", WithOwnership())
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}
	if err := s.Close(); !errors.Is(err, ErrClosed) {
		t.Errorf("second Close: expected ErrClosed, got: %v", err)
	}
	if src.closes != 1 {
		t.Errorf("source closed %d times, want 1", src.closes)
	}
}

func TestStream_UseAfterClose(t *testing.T) {
	s := newTestStream(t, "abc\n")
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}

	ops := map[string]func() error{
		"ReadString":     func() error { _, err := s.ReadString("\n"); return err },
		"PrefetchString": func() error { _, err := s.PrefetchString("\n"); return err },
		"ReadByte":       func() error { _, err := s.ReadByte(); return err },
		"UngetByte":     func() error { return s.UngetByte('a') },
		"Unread":         func() error { return s.Unread("a") },
		"ReadAll":        func() error { _, err := s.ReadAll(); return err },
		"AtEnd":          func() error { _, err := s.AtEnd(); return err },
		"SkipSpaces":     func() error { return s.SkipSpaces() },
		"Rewind":         func() error { return s.Rewind() },
	}
	for name, op := range ops {
		if err := op(); !errors.Is(err, ErrClosed) {
			t.Errorf("%s after Close: expected ErrClosed, got: %v", name, err)
		}
	}
}

// -----------------------------------------------------------------------------
// Source failures
// -----------------------------------------------------------------------------

func TestStream_ReadString_SourceError(t *testing.T) {
	src := &faultSource{data: []byte("abc"), err: errInjectedRead}
	s, err := FromSource(src, "faulty")
	if err != nil {
		t.Fatal(err)
	}

	_, err = s.ReadLine()
	if !errors.Is(err, errInjectedRead) {
		t.Fatalf("expected injected error, got: %v", err)
	}
	var ioErr *IOError
	if !errors.As(err, &ioErr) {
		t.Fatalf("expected *IOError, got %T", err)
	}
	if ioErr.Op != "read" || ioErr.Label != "faulty" {
		t.Errorf("IOError = %+v", ioErr)
	}
	// The partial span stays available.
	if got := s.PrefetchBuffer(); got != "abc" {
		t.Errorf("PrefetchBuffer = %q, want %q", got, "abc")
	}
}

func TestStream_AtEnd_SourceError(t *testing.T) {
	s, err := FromSource(&faultSource{err: errInjectedRead}, "faulty")
	if err != nil {
		t.Fatal(err)
	}
	var ioErr *IOError
	if _, err := s.AtEnd(); !errors.As(err, &ioErr) {
		t.Errorf("expected *IOError, got: %v", err)
	}
}

func TestStream_ReadByte_SourceError(t *testing.T) {
	s, err := FromSource(&faultSource{err: errInjectedRead}, "faulty")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := s.ReadByte(); !errors.Is(err, errInjectedRead) {
		t.Errorf("expected injected error, got: %v", err)
	}
}

// -----------------------------------------------------------------------------
// Logging
// -----------------------------------------------------------------------------

func TestStream_Logging(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	s := newTestStream(t, "abc\n", WithLogger(zap.New(core)))

	if _, err := s.SetPosition(2); err != nil {
		t.Fatal(err)
	}
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}

	for _, msg := range []string{"stream opened", "stream repositioned", "stream closed"} {
		if n := logs.FilterMessage(msg).Len(); n != 1 {
			t.Errorf("%q logged %d times, want 1", msg, n)
		}
	}
	for _, entry := range logs.All() {
		if entry.ContextMap()["label"] != "test" {
			t.Errorf("entry %q missing label field", entry.Message)
		}
	}
}
