package edgeside

import (
	"bufio"
	"io"
	"net"
	"net/http"

	"proxyfabric/httpwire"
	"proxyfabric/internal/log"
	"proxyfabric/objectstore"
)

// serve runs the data-channel service loop (§4.7): parse one request,
// forward it to the Object-Store adapter, write the response, and loop
// for keep-alive reuse until the peer closes or a fatal error occurs.
func serve(conn net.Conn, adapter *objectstore.Adapter, readBufSize, writeBufSize int) {
	reader := bufio.NewReaderSize(conn, readBufSize)
	writer := bufio.NewWriterSize(conn, writeBufSize)

	for {
		req, err := httpwire.ReadRequest(reader)
		if err != nil {
			if err == io.EOF {
				// peer closed cleanly between requests; nothing to
				// respond to.
				return
			}
			log.Debugf("edgeside: data channel request parse failed: %v", err)
			writeParseError(writer)
			return
		}

		resp := handleOne(adapter, req)

		if err := httpwire.WriteResponse(writer, resp); err != nil {
			log.Warnf("edgeside: data channel write failed: %v", err)
			return
		}
		if err := writer.Flush(); err != nil {
			log.Warnf("edgeside: data channel flush failed: %v", err)
			return
		}
	}
}

// writeParseError attempts a 502 on an otherwise-live socket before giving
// up on it (§4.7 step 5, §7 HttpParseError): a malformed request doesn't
// necessarily mean the writer side is broken too, so the peer still gets
// a chance to see the failure instead of just a dropped connection.
func writeParseError(w *bufio.Writer) {
	resp := &httpwire.ParsedResponse{StatusCode: http.StatusBadGateway, Status: http.StatusText(http.StatusBadGateway)}
	if err := httpwire.WriteResponse(w, resp); err != nil {
		log.Debugf("edgeside: failed to write parse-error response: %v", err)
		return
	}
	if err := w.Flush(); err != nil {
		log.Debugf("edgeside: failed to flush parse-error response: %v", err)
	}
}

// handleOne synthesizes the https target (§4.7 step 2, protocol forced
// to https regardless of what the peer asked for) and invokes the
// adapter, translating its result into the wire response shape.
func handleOne(adapter *objectstore.Adapter, req *httpwire.ParsedRequest) *httpwire.ParsedResponse {
	target := "https://" + req.RemoteHost + req.Path
	if req.RawQuery != "" {
		target += "?" + req.RawQuery
	}

	storeReq := &objectstore.Request{
		Method:    req.Method,
		Path:      req.Path,
		RawQuery:  req.RawQuery,
		Header:    req.Header,
		Body:      req.Body,
		TargetURL: target,
	}

	storeResp := adapter.Handle(storeReq)

	return &httpwire.ParsedResponse{
		StatusCode: storeResp.StatusCode,
		Status:     http.StatusText(storeResp.StatusCode),
		Header:     http.Header(storeResp.Header),
		Body:       storeResp.Body,
	}
}
