package flatfile

import (
	"bufio"
	"bytes"
	"errors"
	"io"
)

// DefaultBlockSize is the read-ahead block a cursor pulls from its source.
const DefaultBlockSize = 64 * 1024

// minBlockSize mirrors bufio's own lower bound.
const minBlockSize = 16

// cursor is the physical read position over a Source.
//
// It reads the source in blocks, but pos only advances by the bytes handed
// out to the stream, so a delimited read never consumes past its delimiter.
type cursor struct {
	src Source
	br  *bufio.Reader
	pos int64
}

func newCursor(src Source, blockSize int) *cursor {
	if blockSize < minBlockSize {
		blockSize = DefaultBlockSize
	}
	return &cursor{
		src: src,
		br:  bufio.NewReaderSize(src, blockSize),
	}
}

// readUntil appends source bytes to acc until acc ends with delim or the
// source is exhausted. The match is checked against the whole of acc, so a
// delimiter that starts inside acc and finishes in the source is found.
// At exhaustion it returns acc and io.EOF.
func (c *cursor) readUntil(acc, delim []byte) ([]byte, error) {
	last := delim[len(delim)-1]
	for {
		chunk, err := c.br.ReadSlice(last)
		acc = append(acc, chunk...)
		c.pos += int64(len(chunk))

		switch {
		case err == nil:
			if bytes.HasSuffix(acc, delim) {
				return acc, nil
			}
		case errors.Is(err, bufio.ErrBufferFull):
		default:
			return acc, err
		}
	}
}

func (c *cursor) readByte() (byte, error) {
	b, err := c.br.ReadByte()
	if err != nil {
		return 0, err
	}
	c.pos++
	return b, nil
}

func (c *cursor) readAll() ([]byte, error) {
	data, err := io.ReadAll(c.br)
	c.pos += int64(len(data))
	return data, err
}

// exhausted reports whether the source has no more bytes. It may fill the
// read-ahead block but never moves pos.
func (c *cursor) exhausted() (bool, error) {
	_, err := c.br.Peek(1)
	if err == nil {
		return false, nil
	}
	if errors.Is(err, io.EOF) {
		return true, nil
	}
	return false, err
}

// seek repositions the source and drops any read-ahead.
func (c *cursor) seek(offset int64) error {
	seeker, ok := c.src.(io.Seeker)
	if !ok {
		return ErrNotSeekable
	}
	if _, err := seeker.Seek(offset, io.SeekStart); err != nil {
		return err
	}
	c.br.Reset(c.src)
	c.pos = offset
	return nil
}
