package objectstore

import (
	"bytes"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"io"
	"sort"
	"sync"

	"github.com/google/uuid"

	"proxyfabric/config"
	"proxyfabric/objectstore/internal"
)

// upload tracks one in-flight multipart upload, client-driven or the
// one a large single-shot PUT starts transparently.
type upload struct {
	id          string
	bucket      string
	key         string
	contentType string
	customMD5   string

	mu    sync.Mutex
	parts map[int][]byte
}

// multipartLedger owns every in-flight upload plus the append-only
// bookkeeping log backing it (§6, "on any failure abort the upload").
type multipartLedger struct {
	log io.Writer // append target for Record entries; nil discards

	mu      sync.Mutex
	uploads map[string]*upload
}

func newMultipartLedger(log io.Writer) *multipartLedger {
	return &multipartLedger{log: log, uploads: make(map[string]*upload)}
}

func (l *multipartLedger) append(r internal.Record) {
	if l.log == nil {
		return
	}
	_ = internal.Append(l.log, r)
}

func (l *multipartLedger) create(bucketName, key, contentType, customMD5 string) *upload {
	u := &upload{
		id:          uuid.NewString(),
		bucket:      bucketName,
		key:         key,
		contentType: contentType,
		customMD5:   customMD5,
		parts:       make(map[int][]byte),
	}
	l.mu.Lock()
	l.uploads[u.id] = u
	l.mu.Unlock()
	l.append(internal.Record{UploadID: u.id, Bucket: bucketName, Key: key})
	return u
}

func (l *multipartLedger) get(uploadID string) (*upload, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	u, ok := l.uploads[uploadID]
	return u, ok
}

func (l *multipartLedger) remove(uploadID string) {
	l.mu.Lock()
	delete(l.uploads, uploadID)
	l.mu.Unlock()
}

func (u *upload) putPart(number int, data []byte) string {
	sum := md5.Sum(data)
	etag := `"` + hex.EncodeToString(sum[:]) + `"`
	u.mu.Lock()
	u.parts[number] = data
	u.mu.Unlock()
	return etag
}

// assemble concatenates parts in ascending part-number order. order, if
// non-nil, restricts and orders assembly to exactly that list (used for
// the client-driven CompleteMultipartUpload path, which supplies its own
// ordered part list). Only part numbers are checked; the ETags listed in
// a completion request are not compared against the stored parts.
func (u *upload) assemble(order []int) ([]byte, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	if order == nil {
		order = make([]int, 0, len(u.parts))
		for n := range u.parts {
			order = append(order, n)
		}
		sort.Ints(order)
	}
	var buf bytes.Buffer
	for _, n := range order {
		data, ok := u.parts[n]
		if !ok {
			return nil, errInvalidPart(fmt.Sprintf("missing part %d", n))
		}
		buf.Write(data)
	}
	return buf.Bytes(), nil
}

func partLogEntryFor(u *upload) internal.Record {
	return internal.Record{UploadID: u.id, Bucket: u.bucket, Key: u.key, Parts: u.partRecordEntries()}
}

func internalRecordComplete(u *upload) internal.Record {
	r := partLogEntryFor(u)
	r.Complete = true
	return r
}

func internalRecordAborted(u *upload) internal.Record {
	r := partLogEntryFor(u)
	r.Aborted = true
	return r
}

func (u *upload) partRecordEntries() []internal.PartEntry {
	u.mu.Lock()
	defer u.mu.Unlock()
	entries := make([]internal.PartEntry, 0, len(u.parts))
	for n, data := range u.parts {
		sum := md5.Sum(data)
		entries = append(entries, internal.PartEntry{
			Number: int32(n),
			ETag:   `"` + hex.EncodeToString(sum[:]) + `"`,
			Size:   int64(len(data)),
		})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Number < entries[j].Number })
	return entries
}

// RecoverLedger replays the append-only log written by a previous process
// (objectstore/internal/partlog.go's write half) and aborts whatever
// upload was left neither Complete nor Aborted when that process stopped.
// Only bookkeeping survives a restart — the in-memory part bytes don't —
// so there is nothing to resume; this just keeps the ledger itself honest
// by appending an explicit Aborted record for every upload recovery finds
// still open, per the package doc's "abort them instead of leaking parts."
func (a *Adapter) RecoverLedger(r io.Reader) (recovered, aborted int, err error) {
	records, err := internal.ReadAll(r)
	if err != nil {
		return 0, 0, err
	}

	final := make(map[string]internal.Record, len(records))
	order := make([]string, 0, len(records))
	for _, rec := range records {
		if _, seen := final[rec.UploadID]; !seen {
			order = append(order, rec.UploadID)
		}
		final[rec.UploadID] = rec
	}

	for _, id := range order {
		rec := final[id]
		recovered++
		if rec.Complete || rec.Aborted {
			continue
		}
		a.ledger.append(internal.Record{UploadID: rec.UploadID, Bucket: rec.Bucket, Key: rec.Key, Aborted: true})
		aborted++
	}
	return recovered, aborted, nil
}

// transparentMultipartPut splits body into config.MultipartPartSize
// chunks (minimum config.MultipartMinPartSize except for the final
// part) and drives the same create/upload-part/complete path a
// client-issued multipart sequence would, aborting on any failure.
func (a *Adapter) transparentMultipartPut(bucketName, key, contentType, customMD5 string, body []byte) (*object, error) {
	u := a.ledger.create(bucketName, key, contentType, customMD5)

	ok := false
	defer func() {
		if !ok {
			a.ledger.append(internal.Record{UploadID: u.id, Bucket: bucketName, Key: key, Aborted: true})
			a.ledger.remove(u.id)
		}
	}()

	partSize := config.MultipartPartSize
	number := 1
	for offset := 0; offset < len(body); {
		end := offset + partSize
		if end > len(body) {
			end = len(body)
		}
		// the spec's minimum-5MiB-per-part rule only binds non-final
		// parts; a short final part is always allowed.
		if end != len(body) && end-offset < config.MultipartMinPartSize {
			end = len(body)
		}
		u.putPart(number, body[offset:end])
		offset = end
		number++
	}

	a.ledger.append(internal.Record{UploadID: u.id, Bucket: bucketName, Key: key, Parts: u.partRecordEntries()})

	assembled, err := u.assemble(nil)
	if err != nil {
		return nil, err
	}

	b := a.store.bucketFor(bucketName)
	obj := b.put(key, assembled, contentType, customMD5)

	a.ledger.append(internal.Record{UploadID: u.id, Bucket: bucketName, Key: key, Complete: true, Parts: u.partRecordEntries()})
	a.ledger.remove(u.id)
	ok = true
	return obj, nil
}
