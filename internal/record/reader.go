// Package record frames a capture file into delimiter-terminated records.
package record

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
)

// ErrClosed is returned by Next after Close.
var ErrClosed = errors.New("record: reader closed")

// Reader yields one delimited record at a time from a forward-only byte source.
// Not safe for concurrent use; each session owns its own Reader.
type Reader struct {
	br     *bufio.Reader
	closer io.Closer
	delim  byte
	size   int64
	read   int64
	closed bool
}

// Open opens path read-only and returns a Reader with its own cursor.
// The file size is taken from filesystem metadata at open time.
func Open(path string, delim byte) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening capture: %w", err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("reading capture metadata: %w", err)
	}
	r := NewReader(f, delim, info.Size())
	r.closer = f
	return r, nil
}

// NewReader wraps src. size is reported by Size and is not checked against
// what src actually yields.
func NewReader(src io.Reader, delim byte, size int64) *Reader {
	return &Reader{
		br:    bufio.NewReader(src),
		delim: delim,
		size:  size,
	}
}

// Next reads up to and including the next delimiter, or to end of stream.
// eof is true exactly when no bytes were read. A trailing record without a
// delimiter is returned as a normal record.
func (r *Reader) Next() (rec []byte, n int, eof bool, err error) {
	if r.closed {
		return nil, 0, false, ErrClosed
	}
	rec, err = r.br.ReadBytes(r.delim)
	n = len(rec)
	r.read += int64(n)
	if err != nil && !errors.Is(err, io.EOF) {
		return rec, n, false, fmt.Errorf("reading record: %w", err)
	}
	return rec, n, n == 0, nil
}

// Drained reports whether the source has no bytes left after the cursor.
// A read error other than end of stream reports false so that the next
// call to Next surfaces it.
func (r *Reader) Drained() bool {
	if r.closed {
		return true
	}
	_, err := r.br.Peek(1)
	return errors.Is(err, io.EOF)
}

// BytesRead returns the cumulative number of bytes consumed.
func (r *Reader) BytesRead() int64 {
	return r.read
}

// Size returns the source size captured when the Reader was created.
func (r *Reader) Size() int64 {
	return r.size
}

// Delimiter returns the record delimiter.
func (r *Reader) Delimiter() byte {
	return r.delim
}

// Close releases the underlying file. Safe to call more than once.
func (r *Reader) Close() error {
	if r.closed {
		return nil
	}
	r.closed = true
	if r.closer != nil {
		return r.closer.Close()
	}
	return nil
}
