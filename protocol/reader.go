package protocol

import (
	"bufio"
	"errors"
	"io"
	"strings"
)

const (
	// LineTerminator ends every request and response
	LineTerminator = "\n"

	// MaxRequestSize is the longest request line accepted, terminator excluded
	MaxRequestSize = 64 * 1024
)

// ErrLineTooLong is returned when a request exceeds MaxRequestSize. The
// first MaxRequestSize bytes are returned with it.
var ErrLineTooLong = errors.New("protocol: request line too long")

// Reader reads one request line from a connection
type Reader struct {
	br  *bufio.Reader
	max int
}

// NewReader creates a request reader limited to MaxRequestSize
func NewReader(r io.Reader) *Reader {
	return NewReaderSize(r, MaxRequestSize)
}

// NewReaderSize creates a request reader that refuses lines longer than max
func NewReaderSize(r io.Reader, max int) *Reader {
	return &Reader{
		br:  bufio.NewReader(io.LimitReader(r, int64(max)+1)),
		max: max,
	}
}

// ReadRequest returns the first line of the stream without its terminator.
//
// A stream that closes before the terminator still yields the bytes read so
// far with a nil error. A stream that closes with nothing read returns an
// empty line and io.EOF.
func (r *Reader) ReadRequest() (string, error) {
	line, err := r.br.ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", err
	}
	if len(line) > r.max && !strings.HasSuffix(line, LineTerminator) {
		return line[:r.max], ErrLineTooLong
	}
	line = strings.TrimRight(line, "\r\n")
	if err != nil && line == "" {
		return "", io.EOF
	}
	return line, nil
}
