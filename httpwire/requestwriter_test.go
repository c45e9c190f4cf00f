package httpwire

import (
	"bufio"
	"bytes"
	"net/http"
	"strings"
	"testing"
)

func TestWriteRequest_ContentLengthPassesThrough(t *testing.T) {
	body := "hello body"
	req, err := http.NewRequest("POST", "http://example.invalid/upload?x=1", strings.NewReader(body))
	if err != nil {
		t.Fatal(err)
	}
	req.ContentLength = int64(len(body))
	req.Header.Set("Content-Length", "10")

	var out bytes.Buffer
	if err := WriteRequest(&out, req); err != nil {
		t.Fatal(err)
	}

	if !strings.HasPrefix(out.String(), "POST /upload?x=1 HTTP/1.1\r\n") {
		t.Fatalf("unexpected request line in: %q", out.String())
	}

	parsed, err := ReadRequest(bufio.NewReader(bytes.NewReader(out.Bytes())))
	if err != nil {
		t.Fatal(err)
	}
	if string(parsed.Body) != body {
		t.Fatalf("got body %q", parsed.Body)
	}
}

func TestWriteRequest_NoFramingBuffersBody(t *testing.T) {
	body := "unframed body"
	req, err := http.NewRequest("POST", "http://example.invalid/thing", strings.NewReader(body))
	if err != nil {
		t.Fatal(err)
	}
	req.ContentLength = -1 // simulate neither header present

	var out bytes.Buffer
	if err := WriteRequest(&out, req); err != nil {
		t.Fatal(err)
	}

	parsed, err := ReadRequest(bufio.NewReader(&out))
	if err != nil {
		t.Fatal(err)
	}
	if parsed.Method != "POST" || parsed.Path != "/thing" {
		t.Fatalf("unexpected parsed request: %+v", parsed)
	}
	if string(parsed.Body) != body {
		t.Fatalf("got body %q", parsed.Body)
	}
	if parsed.Header.Get("Content-Length") != "13" {
		t.Fatalf("expected Content-Length to be set to buffered size, got %q", parsed.Header.Get("Content-Length"))
	}
}

func TestWriteRequest_ChunkedReencodesOnWire(t *testing.T) {
	body := "hello world"
	req, err := http.NewRequest("PUT", "http://example.invalid/k", strings.NewReader(body))
	if err != nil {
		t.Fatal(err)
	}
	req.Header.Set("Transfer-Encoding", "chunked")
	req.ContentLength = -1

	var out bytes.Buffer
	if err := WriteRequest(&out, req); err != nil {
		t.Fatal(err)
	}

	parsed, err := ReadRequest(bufio.NewReader(&out))
	if err != nil {
		t.Fatal(err)
	}
	if string(parsed.Body) != body {
		t.Fatalf("got body %q", parsed.Body)
	}
}

func TestWriteRequest_InsertsHostHeaderWhenMissing(t *testing.T) {
	req, err := http.NewRequest("GET", "http://myhost.invalid/p", nil)
	if err != nil {
		t.Fatal(err)
	}

	var out bytes.Buffer
	if err := WriteRequest(&out, req); err != nil {
		t.Fatal(err)
	}

	parsed, err := ReadRequest(bufio.NewReader(&out))
	if err != nil {
		t.Fatal(err)
	}
	if parsed.Header.Get("Host") != "myhost.invalid" {
		t.Fatalf("expected Host header to be inserted, got %q", parsed.Header.Get("Host"))
	}
}
