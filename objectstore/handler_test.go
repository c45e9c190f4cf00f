package objectstore

import (
	"bytes"
	"encoding/xml"
	"io"
	"testing"
)

func TestPutThenGetRoundTrips(t *testing.T) {
	a := NewAdapter([]string{"bucketA"}, io.Discard)

	put := &Request{Method: "PUT", Path: "/bucketA/hello.txt", Body: []byte("hi\n")}
	resp := a.Handle(put)
	if resp.StatusCode != 204 {
		t.Fatalf("PUT: expected 204, got %d", resp.StatusCode)
	}

	get := &Request{Method: "GET", Path: "/bucketA/hello.txt"}
	resp = a.Handle(get)
	if resp.StatusCode != 200 {
		t.Fatalf("GET: expected 200, got %d", resp.StatusCode)
	}
	if string(resp.Body) != "hi\n" {
		t.Fatalf("GET: body = %q", resp.Body)
	}
	if resp.Header["Content-Length"][0] != "3" {
		t.Fatalf("GET: Content-Length = %v", resp.Header["Content-Length"])
	}
}

func TestDeleteIsIdempotent(t *testing.T) {
	a := NewAdapter([]string{"bucketA"}, io.Discard)

	first := a.Handle(&Request{Method: "DELETE", Path: "/bucketA/missing"})
	second := a.Handle(&Request{Method: "DELETE", Path: "/bucketA/missing"})
	if first.StatusCode != 204 || second.StatusCode != 204 {
		t.Fatalf("expected 204/204, got %d/%d", first.StatusCode, second.StatusCode)
	}
}

func TestGetMissingKeyReturnsNoSuchKeyXML(t *testing.T) {
	a := NewAdapter([]string{"bucketA"}, io.Discard)
	resp := a.Handle(&Request{Method: "GET", Path: "/bucketA/missing"})
	if resp.StatusCode != 404 {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
	var xe xmlError
	if err := xml.Unmarshal(resp.Body, &xe); err != nil {
		t.Fatal(err)
	}
	if xe.Code != "NoSuchKey" {
		t.Fatalf("expected NoSuchKey, got %s", xe.Code)
	}
}

func TestIfNoneMatchReturns304(t *testing.T) {
	a := NewAdapter([]string{"bucketA"}, io.Discard)
	a.Handle(&Request{Method: "PUT", Path: "/bucketA/k", Body: []byte("v")})
	get := a.Handle(&Request{Method: "GET", Path: "/bucketA/k"})
	etag := get.Header["ETag"][0]

	resp := a.Handle(&Request{
		Method: "GET",
		Path:   "/bucketA/k",
		Header: map[string][]string{"If-None-Match": {etag}},
	})
	if resp.StatusCode != 304 {
		t.Fatalf("expected 304, got %d", resp.StatusCode)
	}
}

func TestIfMatchMismatchReturns412(t *testing.T) {
	a := NewAdapter([]string{"bucketA"}, io.Discard)
	a.Handle(&Request{Method: "PUT", Path: "/bucketA/k", Body: []byte("v")})

	resp := a.Handle(&Request{
		Method: "GET",
		Path:   "/bucketA/k",
		Header: map[string][]string{"If-Match": {`"not-the-real-etag"`}},
	})
	if resp.StatusCode != 412 {
		t.Fatalf("expected 412, got %d", resp.StatusCode)
	}
}

func TestLargePutTakesTransparentMultipartPath(t *testing.T) {
	a := NewAdapter([]string{"bucketA"}, io.Discard)
	body := bytes.Repeat([]byte("x"), 51<<20) // just over the 50 MiB threshold

	put := a.Handle(&Request{Method: "PUT", Path: "/bucketA/large", Body: body})
	if put.StatusCode != 204 {
		t.Fatalf("PUT: expected 204, got %d", put.StatusCode)
	}

	get := a.Handle(&Request{Method: "GET", Path: "/bucketA/large"})
	if len(get.Body) != len(body) {
		t.Fatalf("GET: expected %d bytes, got %d", len(body), len(get.Body))
	}
}

func TestExplicitMultipartSequence(t *testing.T) {
	a := NewAdapter([]string{"bucketA"}, io.Discard)

	initResp := a.Handle(&Request{Method: "POST", Path: "/bucketA/multi", RawQuery: "uploads"})
	var initResult initiateMultipartUploadResult
	if err := xml.Unmarshal(stripXMLHeader(initResp.Body), &initResult); err != nil {
		t.Fatal(err)
	}
	uploadID := initResult.UploadID
	if uploadID == "" {
		t.Fatal("expected a non-empty UploadId")
	}

	part1 := a.Handle(&Request{
		Method: "PUT", Path: "/bucketA/multi",
		RawQuery: "uploadId=" + uploadID + "&partNumber=1",
		Body:     []byte("hello "),
	})
	if part1.StatusCode != 200 {
		t.Fatalf("part1: expected 200, got %d", part1.StatusCode)
	}
	etag1 := part1.Header["ETag"][0]

	part2 := a.Handle(&Request{
		Method: "PUT", Path: "/bucketA/multi",
		RawQuery: "uploadId=" + uploadID + "&partNumber=2",
		Body:     []byte("world"),
	})
	etag2 := part2.Header["ETag"][0]

	completeBody, _ := xml.Marshal(&completeMultipartUpload{Parts: []completedPart{
		{PartNumber: 1, ETag: etag1},
		{PartNumber: 2, ETag: etag2},
	}})
	complete := a.Handle(&Request{
		Method: "POST", Path: "/bucketA/multi",
		RawQuery: "uploadId=" + uploadID,
		Body:     completeBody,
	})
	if complete.StatusCode != 200 {
		t.Fatalf("complete: expected 200, got %d", complete.StatusCode)
	}

	get := a.Handle(&Request{Method: "GET", Path: "/bucketA/multi"})
	if string(get.Body) != "hello world" {
		t.Fatalf("got %q", get.Body)
	}
}

func TestAbortMultipartIsIdempotent(t *testing.T) {
	a := NewAdapter([]string{"bucketA"}, io.Discard)
	initResp := a.Handle(&Request{Method: "POST", Path: "/bucketA/multi", RawQuery: "uploads"})
	var initResult initiateMultipartUploadResult
	_ = xml.Unmarshal(stripXMLHeader(initResp.Body), &initResult)

	first := a.Handle(&Request{Method: "DELETE", Path: "/bucketA/multi", RawQuery: "uploadId=" + initResult.UploadID})
	second := a.Handle(&Request{Method: "DELETE", Path: "/bucketA/multi", RawQuery: "uploadId=" + initResult.UploadID})
	if first.StatusCode != 204 || second.StatusCode != 204 {
		t.Fatalf("expected 204/204, got %d/%d", first.StatusCode, second.StatusCode)
	}
}

func TestCompleteWithMalformedXMLReturnsMalformedXML(t *testing.T) {
	a := NewAdapter([]string{"bucketA"}, io.Discard)
	initResp := a.Handle(&Request{Method: "POST", Path: "/bucketA/multi", RawQuery: "uploads"})
	var initResult initiateMultipartUploadResult
	_ = xml.Unmarshal(stripXMLHeader(initResp.Body), &initResult)

	resp := a.Handle(&Request{
		Method: "POST", Path: "/bucketA/multi",
		RawQuery: "uploadId=" + initResult.UploadID,
		Body:     []byte("not xml"),
	})
	var xe xmlError
	_ = xml.Unmarshal(resp.Body, &xe)
	if xe.Code != "MalformedXML" {
		t.Fatalf("expected MalformedXML, got %s (status %d)", xe.Code, resp.StatusCode)
	}
}

func TestUnknownBucketPrefixFallsBackToDefault(t *testing.T) {
	a := NewAdapter([]string{"bucketA"}, io.Discard)
	a.Handle(&Request{Method: "PUT", Path: "/some/nested/key", Body: []byte("v")})

	resp := a.Handle(&Request{Method: "GET", Path: "/some/nested/key"})
	if resp.StatusCode != 200 {
		t.Fatalf("expected the unrecognized first segment to be treated as part of the default-bucket key, got %d", resp.StatusCode)
	}
}

func stripXMLHeader(b []byte) []byte {
	if bytes.HasPrefix(b, []byte(xml.Header)) {
		return b[len(xml.Header):]
	}
	return b
}
