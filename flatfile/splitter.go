package flatfile

import (
	"errors"
	"fmt"
	"io"
	"strings"

	murmurhash "github.com/rryqszq4/go-murmurhash"
)

// checksumSeed seeds record checksums; changing it changes every checksum.
const checksumSeed uint64 = 0x12345678

// -----------------------------------------------------------------------------
// Formats
// -----------------------------------------------------------------------------

// Format describes how a flat file is split into records.
type Format struct {
	// Name identifies the format (for example, "fasta").
	Name string

	// Delimiter terminates each record.
	Delimiter string

	// Overrun is the number of trailing delimiter bytes that belong to the
	// next record. FASTA's "\n>" has an overrun of 1: the '>' starts the
	// next entry.
	Overrun int

	// Header marks the start of the first record. Content before it is
	// leader text skipped by SkipLeader. Empty means no leader.
	Header string
}

// Built-in formats.
var (
	FASTA   = Format{Name: "fasta", Delimiter: "\n>", Overrun: 1, Header: ">"}
	GenBank = Format{Name: "genbank", Delimiter: "\n//\n", Header: "LOCUS "}
	Lines   = Format{Name: "lines", Delimiter: "\n"}
)

func (f Format) validate() error {
	if f.Delimiter == "" {
		return ErrEmptyDelimiter
	}
	if f.Overrun < 0 || f.Overrun > len(f.Delimiter) {
		return fmt.Errorf("overrun %d out of range for delimiter %q", f.Overrun, f.Delimiter)
	}
	return nil
}

// -----------------------------------------------------------------------------
// Records
// -----------------------------------------------------------------------------

// Record is one delimited entry of a flat file.
type Record struct {
	// Index is the zero-based position of the record in the file.
	Index int64 `json:"index" parquet:"index"`

	// Start and End are the logical byte offsets of the entry.
	Start int64 `json:"start" parquet:"start"`
	End   int64 `json:"end" parquet:"end"`

	// Checksum is the hex MurmurHash64A of Data.
	Checksum string `json:"checksum" parquet:"checksum"`

	// Data is the raw entry text, delimiter included except for overrun.
	Data string `json:"data" parquet:"data"`
}

// Checksum returns the hex MurmurHash64A of data used for Record.Checksum.
func Checksum(data string) string {
	return fmt.Sprintf("%016x", murmurhash.MurmurHash64A([]byte(data), checksumSeed))
}

// -----------------------------------------------------------------------------
// Splitter
// -----------------------------------------------------------------------------

// Splitter reads records from a Stream. It relies on the stream's push-back
// to hand delimiter overrun and peeked entries back to the next read.
type Splitter struct {
	s      *Stream
	format Format
	index  int64
}

// NewSplitter creates a splitter reading f-formatted records from s.
func NewSplitter(s *Stream, f Format) (*Splitter, error) {
	if s == nil {
		return nil, errors.New("flatfile: stream must not be nil")
	}
	if err := f.validate(); err != nil {
		return nil, fmt.Errorf("flatfile: format %q: %w", f.Name, err)
	}
	return &Splitter{s: s, format: f}, nil
}

// Format returns the splitter's format.
func (sp *Splitter) Format() Format { return sp.format }

// SkipLeader discards content before the first Header found at the start
// of a line. It reports whether a header was found; when none is, all the
// content read is pushed back and the stream is left as it was.
func (sp *Splitter) SkipLeader() (bool, error) {
	header := sp.format.Header
	if header == "" {
		return false, nil
	}

	var data strings.Builder
	for {
		span, err := sp.s.ReadString(header)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return false, errors.Join(err, sp.s.Unread(data.String()))
		}
		data.WriteString(span)

		if !strings.HasSuffix(span, header) {
			continue
		}
		before := strings.TrimSuffix(data.String(), header)
		if before == "" || strings.HasSuffix(before, "\n") || strings.HasSuffix(before, "\r") {
			return true, sp.s.Unread(header)
		}
	}

	return false, sp.s.Unread(data.String())
}

// Next reads the next record. It returns io.EOF when the stream is
// exhausted.
func (sp *Splitter) Next() (Record, error) {
	start := sp.offset()
	entry, err := sp.s.ReadString(sp.format.Delimiter)
	if err != nil {
		return Record{}, err
	}

	if sp.format.Overrun > 0 && strings.HasSuffix(entry, sp.format.Delimiter) {
		cut := len(entry) - sp.format.Overrun
		if err := sp.s.Unread(entry[cut:]); err != nil {
			return Record{}, err
		}
		entry = entry[:cut]
	}

	rec := Record{
		Index:    sp.index,
		Start:    start,
		End:      sp.offset(),
		Checksum: Checksum(entry),
		Data:     entry,
	}
	sp.index++
	return rec, nil
}

// Peek returns the next record without consuming it.
func (sp *Splitter) Peek() (Record, error) {
	rec, err := sp.Next()
	if err != nil {
		return Record{}, err
	}
	if err := sp.s.Unread(rec.Data); err != nil {
		return Record{}, err
	}
	sp.index--
	return rec, nil
}

// Rewind restarts splitting from the beginning of the stream.
func (sp *Splitter) Rewind() error {
	if err := sp.s.Rewind(); err != nil {
		return err
	}
	sp.index = 0
	return nil
}

// offset is the logical offset of the next byte the stream will deliver,
// assuming pending content was read from the source.
func (sp *Splitter) offset() int64 {
	return sp.s.Position() - int64(len(sp.s.pending))
}

// ReadAllRecords drains sp and returns every remaining record.
func ReadAllRecords(sp *Splitter) ([]Record, error) {
	var records []Record
	for {
		rec, err := sp.Next()
		if errors.Is(err, io.EOF) {
			return records, nil
		}
		if err != nil {
			return records, err
		}
		records = append(records, rec)
	}
}
