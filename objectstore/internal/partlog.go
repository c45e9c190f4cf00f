// Package internal encodes the multipart-upload bookkeeping record the
// Object-Store adapter appends to on every part upload and completion,
// so that a restart can still answer "what uploads were in flight" and
// abort them instead of leaking parts. Records are framed the same way
// as the control protocol ([u32 LE length][payload]) but the payload is
// a protobuf wire-format message, encoded field-by-field with
// google.golang.org/protobuf/encoding/protowire rather than through a
// .proto-generated type (see DESIGN.md).
package internal

import (
	"encoding/binary"
	"fmt"
	"io"

	"google.golang.org/protobuf/encoding/protowire"
)

// field numbers for the PartLogRecord wire message.
const (
	fieldUploadID = 1
	fieldBucket   = 2
	fieldKey      = 3
	fieldAborted  = 4
	fieldComplete = 5
	fieldPart     = 6 // repeated PartEntry

	partFieldNumber = 1
	partFieldETag   = 2
	partFieldSize   = 3
)

type PartEntry struct {
	Number int32
	ETag   string
	Size   int64
}

// Record is one upload's bookkeeping state at the time it was appended.
type Record struct {
	UploadID string
	Bucket   string
	Key      string
	Aborted  bool
	Complete bool
	Parts    []PartEntry
}

func encodePart(p PartEntry) []byte {
	var b []byte
	b = protowire.AppendTag(b, partFieldNumber, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(p.Number))
	b = protowire.AppendTag(b, partFieldETag, protowire.BytesType)
	b = protowire.AppendString(b, p.ETag)
	b = protowire.AppendTag(b, partFieldSize, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(p.Size))
	return b
}

func decodePart(b []byte) (PartEntry, error) {
	var p PartEntry
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return p, protowire.ParseError(n)
		}
		b = b[n:]
		switch num {
		case partFieldNumber:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return p, protowire.ParseError(n)
			}
			p.Number = int32(v)
			b = b[n:]
		case partFieldETag:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return p, protowire.ParseError(n)
			}
			p.ETag = string(v)
			b = b[n:]
		case partFieldSize:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return p, protowire.ParseError(n)
			}
			p.Size = int64(v)
			b = b[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return p, protowire.ParseError(n)
			}
			b = b[n:]
		}
	}
	return p, nil
}

// Encode serializes r to protobuf wire bytes.
func Encode(r Record) []byte {
	var b []byte
	b = protowire.AppendTag(b, fieldUploadID, protowire.BytesType)
	b = protowire.AppendString(b, r.UploadID)
	b = protowire.AppendTag(b, fieldBucket, protowire.BytesType)
	b = protowire.AppendString(b, r.Bucket)
	b = protowire.AppendTag(b, fieldKey, protowire.BytesType)
	b = protowire.AppendString(b, r.Key)
	b = protowire.AppendTag(b, fieldAborted, protowire.VarintType)
	b = protowire.AppendVarint(b, boolToVarint(r.Aborted))
	b = protowire.AppendTag(b, fieldComplete, protowire.VarintType)
	b = protowire.AppendVarint(b, boolToVarint(r.Complete))
	for _, p := range r.Parts {
		b = protowire.AppendTag(b, fieldPart, protowire.BytesType)
		b = protowire.AppendBytes(b, encodePart(p))
	}
	return b
}

// Decode parses protobuf wire bytes produced by Encode.
func Decode(b []byte) (Record, error) {
	var r Record
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return r, protowire.ParseError(n)
		}
		b = b[n:]
		switch num {
		case fieldUploadID:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return r, protowire.ParseError(n)
			}
			r.UploadID = string(v)
			b = b[n:]
		case fieldBucket:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return r, protowire.ParseError(n)
			}
			r.Bucket = string(v)
			b = b[n:]
		case fieldKey:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return r, protowire.ParseError(n)
			}
			r.Key = string(v)
			b = b[n:]
		case fieldAborted:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return r, protowire.ParseError(n)
			}
			r.Aborted = v != 0
			b = b[n:]
		case fieldComplete:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return r, protowire.ParseError(n)
			}
			r.Complete = v != 0
			b = b[n:]
		case fieldPart:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return r, protowire.ParseError(n)
			}
			part, err := decodePart(v)
			if err != nil {
				return r, err
			}
			r.Parts = append(r.Parts, part)
			b = b[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return r, protowire.ParseError(n)
			}
			b = b[n:]
		}
	}
	return r, nil
}

func boolToVarint(b bool) uint64 {
	if b {
		return 1
	}
	return 0
}

// Append writes one length-prefixed record to w, for an append-only
// bookkeeping log.
func Append(w io.Writer, r Record) error {
	payload := Encode(r)
	var lenBuf [4]byte
	binary.LittleEndian.PutUint32(lenBuf[:], uint32(len(payload)))
	if _, err := w.Write(lenBuf[:]); err != nil {
		return err
	}
	_, err := w.Write(payload)
	return err
}

// ReadAll decodes every length-prefixed record in r, for recovering
// in-flight uploads after a restart.
func ReadAll(r io.Reader) ([]Record, error) {
	var records []Record
	for {
		var lenBuf [4]byte
		_, err := io.ReadFull(r, lenBuf[:])
		if err == io.EOF {
			return records, nil
		}
		if err != nil {
			return records, err
		}
		n := binary.LittleEndian.Uint32(lenBuf[:])
		payload := make([]byte, n)
		if _, err := io.ReadFull(r, payload); err != nil {
			return records, fmt.Errorf("partlog: truncated record: %w", err)
		}
		rec, err := Decode(payload)
		if err != nil {
			return records, err
		}
		records = append(records, rec)
	}
}
