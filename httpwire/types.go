package httpwire

import "net/http"

// ParsedRequest is the request-line + headers + fully-materialized body
// the edge side decodes off a data channel (spec §4.7 step 1), mirroring
// net/http.Request's shape without pulling in its own wire codec.
type ParsedRequest struct {
	Method     string
	Path       string
	RawQuery   string
	Header     http.Header
	Body       []byte
	RemoteHost string // value of the Host header, used to synthesize the target URL
}

// ParsedResponse is the status-line + headers + fully-materialized body
// the container side decodes off a data channel (spec §4.4).
type ParsedResponse struct {
	StatusCode int
	Status     string // status text, e.g. "OK"
	Header     http.Header
	Body       []byte
}
