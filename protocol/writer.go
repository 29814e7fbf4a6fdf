package protocol

import (
	"bufio"
	"io"
)

// Writer writes response blocks to a connection
type Writer struct {
	bw *bufio.Writer
}

// NewWriter creates a new response writer
func NewWriter(w io.Writer) *Writer {
	return &Writer{
		bw: bufio.NewWriter(w),
	}
}

// WriteResponse writes text followed by the line terminator and flushes
func (w *Writer) WriteResponse(text string) error {
	if _, err := w.bw.WriteString(text); err != nil {
		return err
	}
	if _, err := w.bw.WriteString(LineTerminator); err != nil {
		return err
	}
	return w.bw.Flush()
}

// WriteResponse is a shorthand for NewWriter(w).WriteResponse(text)
func WriteResponse(w io.Writer, text string) error {
	return NewWriter(w).WriteResponse(text)
}
