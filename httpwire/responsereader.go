package httpwire

import (
	"bufio"
	"fmt"
	"strconv"
	"strings"
)

// ReadResponse parses one HTTP/1.1 response off r (spec §4.4): status
// line, headers, then body. 204/304/1xx responses finalize immediately
// with an empty body regardless of declared framing. Otherwise a
// Content-Length or chunked Transfer-Encoding header frames the body;
// absent both, the body is defined by connection close.
func ReadResponse(r *bufio.Reader) (*ParsedResponse, error) {
	firstLine, header, err := readFirstLineAndHeaders(r)
	if err != nil {
		return nil, err
	}

	statusCode, statusText, err := parseStatusLine(firstLine)
	if err != nil {
		return nil, err
	}

	if isEarlyCompletion(statusCode) {
		return &ParsedResponse{StatusCode: statusCode, Status: statusText, Header: header, Body: nil}, nil
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

	body, err := readFramedBody(r, header, contentLength, chunked, true)
	if err != nil {
		return nil, err
	}

	return &ParsedResponse{StatusCode: statusCode, Status: statusText, Header: header, Body: body}, nil
}

func isEarlyCompletion(statusCode int) bool {
	if statusCode == 204 || statusCode == 304 {
		return true
	}
	return statusCode >= 100 && statusCode < 200
}

func parseStatusLine(line string) (int, string, error) {
	parts := strings.SplitN(line, " ", 3)
	if len(parts) < 2 {
		return 0, "", fmt.Errorf("httpwire: malformed status line %q", line)
	}
	code, err := strconv.Atoi(parts[1])
	if err != nil {
		return 0, "", fmt.Errorf("httpwire: invalid status code in %q: %w", line, err)
	}
	text := ""
	if len(parts) == 3 {
		text = parts[2]
	}
	return code, text, nil
}
