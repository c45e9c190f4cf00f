package objectstore

import "encoding/xml"

// xmlError is the S3-style error body every failure path renders:
// Code/Message/RequestId/HostId, per the external interface (§6).
type xmlError struct {
	XMLName   xml.Name `xml:"Error"`
	Code      string   `xml:"Code"`
	Message   string   `xml:"Message"`
	RequestID string   `xml:"RequestId"`
	HostID    string   `xml:"HostId"`
}

// codedError pairs an S3 error code with the HTTP status it renders as.
type codedError struct {
	status  int
	code    string
	message string
}

func (e *codedError) Error() string { return e.code + ": " + e.message }

func errNoSuchKey(key string) *codedError {
	return &codedError{status: 404, code: "NoSuchKey", message: "The specified key does not exist: " + key}
}

func errNoSuchUpload(uploadID string) *codedError {
	return &codedError{status: 404, code: "NoSuchUpload", message: "The specified multipart upload does not exist: " + uploadID}
}

func errPreconditionFailed() *codedError {
	return &codedError{status: 412, code: "PreconditionFailed", message: "At least one of the pre-conditions you specified did not hold"}
}

func errMalformedXML(detail string) *codedError {
	return &codedError{status: 400, code: "MalformedXML", message: "The XML you provided was not well-formed: " + detail}
}

func errInvalidPart(detail string) *codedError {
	return &codedError{status: 400, code: "InvalidPart", message: detail}
}

func errInternal(detail string) *codedError {
	return &codedError{status: 500, code: "InternalError", message: detail}
}
