package httpwire

import (
	"bytes"
	"io"
	"net/http"
	"strconv"

	"proxyfabric/internal/netutil"
)

// WriteRequest serializes req onto w using the framing rules of spec
// §4.3: a Content-Length body streams unchanged; a chunked body is
// re-chunked on the wire; a body with neither framing header is
// buffered so its length can be declared. Every discrete write unit is
// flushed separately if w is a Flusher, so a slow peer never stalls on a
// half-filled buffer.
func WriteRequest(w io.Writer, req *http.Request) error {
	path := req.URL.Path
	if req.URL.RawQuery != "" {
		path = path + "?" + req.URL.RawQuery
	}

	header := req.Header.Clone()
	if header.Get("Host") == "" {
		host := req.Host
		if host == "" {
			host = req.URL.Host
		}
		header.Set("Host", host)
	}

	hasContentLength := header.Get("Content-Length") != ""
	chunked := header.Get("Transfer-Encoding") == "chunked"

	// A body with neither framing header must be buffered up front so
	// its length can be declared before the header block is written.
	var bufferedBody []byte
	if req.Body != nil && !hasContentLength && !chunked {
		buffered, err := io.ReadAll(req.Body)
		if err != nil {
			return err
		}
		bufferedBody = buffered
		header.Set("Content-Length", strconv.Itoa(len(bufferedBody)))
		hasContentLength = true
	}

	var headBuf bytes.Buffer
	headBuf.WriteString(req.Method)
	headBuf.WriteByte(' ')
	headBuf.WriteString(path)
	headBuf.WriteString(" HTTP/1.1\r\n")
	writeHeaderBlock(&headBuf, header)

	if err := netutil.WriteFull(w, headBuf.Bytes()); err != nil {
		return err
	}
	flush(w)

	switch {
	case req.Body == nil:
		return nil

	case bufferedBody != nil:
		if len(bufferedBody) == 0 {
			return nil
		}
		if err := netutil.WriteFull(w, bufferedBody); err != nil {
			return err
		}
		flush(w)
		return nil

	case hasContentLength:
		return streamBody(w, req.Body)

	case chunked:
		return rechunkBody(w, req.Body)

	default:
		return nil
	}
}

// writeHeaderBlock writes all headers verbatim (one per declared value,
// preserving multi-valued headers) followed by the blank line that ends
// the header section.
func writeHeaderBlock(buf *bytes.Buffer, header http.Header) {
	for name, values := range header {
		for _, v := range values {
			buf.WriteString(name)
			buf.WriteString(": ")
			buf.WriteString(v)
			buf.WriteString("\r\n")
		}
	}
	buf.WriteString("\r\n")
}

func streamBody(w io.Writer, body io.Reader) error {
	buf := make([]byte, 32*1024)
	for {
		n, err := body.Read(buf)
		if n > 0 {
			if werr := netutil.WriteFull(w, buf[:n]); werr != nil {
				return werr
			}
			flush(w)
		}
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
	}
}

func rechunkBody(w io.Writer, body io.Reader) error {
	buf := make([]byte, 32*1024)
	for {
		n, err := body.Read(buf)
		if n > 0 {
			if werr := WriteChunk(w, buf[:n]); werr != nil {
				return werr
			}
			flush(w)
		}
		if err == io.EOF {
			return WriteLastChunk(w)
		}
		if err != nil {
			return err
		}
	}
}

type flusher interface {
	Flush() error
}

func flush(w io.Writer) {
	if f, ok := w.(flusher); ok {
		_ = f.Flush()
	}
}
