package httpwire

import (
	"bufio"
	"fmt"
	"strconv"
	"strings"
)

// ReadRequest parses one HTTP/1.1 request off r: request line, headers,
// then body framed by Content-Length or chunked Transfer-Encoding
// (spec §4.7 step 1, the mirror image of ReadResponse). A request with
// neither framing header and no body is the common case for GET/HEAD;
// one with neither header but a declared method that implies a body is
// treated as having no body, matching ordinary HTTP/1.1 practice.
func ReadRequest(r *bufio.Reader) (*ParsedRequest, error) {
	firstLine, header, err := readFirstLineAndHeaders(r)
	if err != nil {
		return nil, err
	}

	method, path, rawQuery, err := parseRequestLine(firstLine)
	if err != nil {
		return nil, err
	}

	contentLength := int64(-1)
	if v := header.Get("Content-Length"); v != "" {
		n, perr := strconv.ParseInt(v, 10, 64)
		if perr != nil {
			return nil, fmt.Errorf("httpwire: invalid Content-Length %q: %w", v, perr)
		}
		contentLength = n
	}
	chunked := strings.EqualFold(header.Get("Transfer-Encoding"), "chunked")

	body, err := readFramedBody(r, header, contentLength, chunked, false)
	if err != nil {
		return nil, err
	}

	return &ParsedRequest{
		Method:     method,
		Path:       path,
		RawQuery:   rawQuery,
		Header:     header,
		Body:       body,
		RemoteHost: header.Get("Host"),
	}, nil
}

func parseRequestLine(line string) (method, path, rawQuery string, err error) {
	parts := strings.SplitN(line, " ", 3)
	if len(parts) != 3 {
		return "", "", "", fmt.Errorf("httpwire: malformed request line %q", line)
	}
	method = parts[0]
	target := parts[1]

	if idx := strings.IndexByte(target, '?'); idx >= 0 {
		path = target[:idx]
		rawQuery = target[idx+1:]
	} else {
		path = target
	}
	return method, path, rawQuery, nil
}
