package netutil

import (
	"errors"
	"io"
)

var ErrNonPositiveWrite = errors.New("netutil: socket write returned a non-positive count without error")

// WriteFull loops a Write call until every byte of p has been accepted by
// w, per the spec's requirement that partial writes be retried rather than
// treated as a short write. A write that returns n<=0 with a nil error is
// treated as a fatal socket error.
func WriteFull(w io.Writer, p []byte) error {
	for len(p) > 0 {
		n, err := w.Write(p)
		if err != nil {
			return err
		}
		if n <= 0 {
			return ErrNonPositiveWrite
		}
		p = p[n:]
	}
	return nil
}
