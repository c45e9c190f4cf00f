package httpwire

import (
	"bufio"
	"io"
	"net/http"
	"net/textproto"
)

// readFirstLineAndHeaders reads one request-line-or-status-line followed
// by a MIME header block terminated by a blank line, the shared prefix
// of both the request parser (edge side, §4.7) and the response parser
// (container side, §4.4).
func readFirstLineAndHeaders(r *bufio.Reader) (string, http.Header, error) {
	tp := textproto.NewReader(r)

	firstLine, err := tp.ReadLine()
	if err != nil {
		return "", nil, err
	}

	mimeHeader, err := tp.ReadMIMEHeader()
	if err != nil && err != io.EOF {
		return "", nil, err
	}
	return firstLine, http.Header(mimeHeader), nil
}

// readFramedBody reads a message body per the framing declared in
// header: Content-Length takes precedence, then chunked
// Transfer-Encoding, and otherwise (when allowCloseTermination is set)
// the body runs until the connection closes.
func readFramedBody(r *bufio.Reader, header http.Header, contentLength int64, chunked bool, allowCloseTermination bool) ([]byte, error) {
	switch {
	case contentLength >= 0:
		body := make([]byte, contentLength)
		if contentLength == 0 {
			return body, nil
		}
		if _, err := io.ReadFull(r, body); err != nil {
			return nil, err
		}
		return body, nil

	case chunked:
		return ReadChunkedBody(r)

	case allowCloseTermination:
		return io.ReadAll(r)

	default:
		return nil, nil
	}
}
