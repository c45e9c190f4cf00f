package httpwire

import (
	"bytes"
	"io"
	"net/http"
	"strconv"

	"proxyfabric/internal/netutil"
)

// WriteResponse serializes resp onto w (spec §4.7 step 4, the mirror of
// WriteRequest). If the response carries a body but neither
// Content-Length nor chunked Transfer-Encoding is set, the body is sent
// chunked. If there is no body and no Content-Length, Content-Length: 0
// is added so the peer's response reader doesn't fall back to
// close-termination needlessly.
func WriteResponse(w io.Writer, resp *ParsedResponse) error {
	header := resp.Header.Clone()
	if header == nil {
		header = http.Header{}
	}

	hasContentLength := header.Get("Content-Length") != ""
	chunked := header.Get("Transfer-Encoding") == "chunked"

	switch {
	case len(resp.Body) > 0 && !hasContentLength && !chunked:
		header.Set("Transfer-Encoding", "chunked")
		chunked = true
	case len(resp.Body) == 0 && !hasContentLength:
		header.Set("Content-Length", "0")
		hasContentLength = true
	}

	status := resp.Status
	if status == "" {
		status = http.StatusText(resp.StatusCode)
	}

	var headBuf bytes.Buffer
	headBuf.WriteString("HTTP/1.1 ")
	headBuf.WriteString(strconv.Itoa(resp.StatusCode))
	headBuf.WriteByte(' ')
	headBuf.WriteString(status)
	headBuf.WriteString("\r\n")
	writeHeaderBlock(&headBuf, header)

	if err := netutil.WriteFull(w, headBuf.Bytes()); err != nil {
		return err
	}
	flush(w)

	if len(resp.Body) == 0 {
		return nil
	}

	if chunked {
		if err := WriteChunk(w, resp.Body); err != nil {
			return err
		}
		if err := WriteLastChunk(w); err != nil {
			return err
		}
		flush(w)
		return nil
	}

	if err := netutil.WriteFull(w, resp.Body); err != nil {
		return err
	}
	flush(w)
	return nil
}
