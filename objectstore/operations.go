package objectstore

import (
	"encoding/xml"
	"sort"
	"strconv"
	"strings"
	"time"

	"proxyfabric/config"
)

func headerGet(h map[string][]string, key string) string {
	if h == nil {
		return ""
	}
	for k, v := range h {
		if strings.EqualFold(k, key) && len(v) > 0 {
			return v[0]
		}
	}
	return ""
}

func (a *Adapter) getObject(bucketName, key string, header map[string][]string, headOnly bool) (*Response, error) {
	b := a.store.bucketFor(bucketName)
	obj, ok := b.get(key)
	if !ok {
		return nil, errNoSuchKey(key)
	}

	if ifMatch := headerGet(header, "If-Match"); ifMatch != "" && ifMatch != obj.etag {
		return nil, errPreconditionFailed()
	}
	if ifNoneMatch := headerGet(header, "If-None-Match"); ifNoneMatch != "" && ifNoneMatch == obj.etag {
		resp := newResponse(304)
		resp.set("ETag", obj.etag)
		return resp, nil
	}

	resp := newResponse(200)
	resp.set("Content-Type", obj.contentType)
	resp.set("Content-Length", strconv.Itoa(len(obj.data)))
	resp.set("ETag", obj.etag)
	resp.set("Last-Modified", obj.lastModified.Format(time.RFC1123))
	resp.set("Accept-Ranges", "bytes")
	if obj.md5 != "" {
		resp.set("x-amz-meta-md5", obj.md5)
	}
	if !headOnly {
		resp.Body = obj.data
	}
	return resp, nil
}

func (a *Adapter) putObject(bucketName, key string, header map[string][]string, body []byte) (*Response, error) {
	contentType := headerGet(header, "Content-Type")
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	customMD5 := headerGet(header, "x-amz-meta-md5")

	var obj *object
	if len(body) > config.MultipartThreshold {
		assembled, err := a.transparentMultipartPut(bucketName, key, contentType, customMD5, body)
		if err != nil {
			return nil, err
		}
		obj = assembled
	} else {
		b := a.store.bucketFor(bucketName)
		obj = b.put(key, body, contentType, customMD5)
	}

	resp := newResponse(204)
	resp.set("ETag", obj.etag)
	return resp, nil
}

func (a *Adapter) deleteObject(bucketName, key string) (*Response, error) {
	b := a.store.bucketFor(bucketName)
	b.delete(key) // idempotent: always 204, even if the key never existed (§6)
	return newResponse(204), nil
}

func (a *Adapter) listBucket(bucketName string, query map[string][]string) (*Response, error) {
	prefix := firstOr(query["prefix"], "")
	delimiter := firstOr(query["delimiter"], "")
	maxKeys := 1000
	if v := firstOr(query["max-keys"], ""); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			maxKeys = n
		}
	}
	token := firstOr(query["continuation-token"], "")

	b := a.store.bucketFor(bucketName)
	keys := b.list(prefix)
	sort.Strings(keys)

	start := 0
	if token != "" {
		for i, k := range keys {
			if k > token {
				start = i
				break
			}
		}
	}
	keys = keys[start:]

	result := &listBucketResult{
		Name:    bucketName,
		Prefix:  prefix,
		MaxKeys: maxKeys,
	}
	if delimiter != "" {
		result.Delimiter = delimiter
	}

	seenPrefixes := map[string]bool{}
	count := 0
	truncated := false
	for _, k := range keys {
		if count >= maxKeys {
			truncated = true
			result.NextContinuationToken = k
			break
		}
		rest := k[len(prefix):]
		if delimiter != "" {
			if idx := strings.Index(rest, delimiter); idx >= 0 {
				cp := prefix + rest[:idx+len(delimiter)]
				if !seenPrefixes[cp] {
					seenPrefixes[cp] = true
					result.CommonPrefixes = append(result.CommonPrefixes, commonPrefix{Prefix: cp})
				}
				count++
				continue
			}
		}
		obj, _ := b.get(k)
		result.Contents = append(result.Contents, listEntry{
			Key:          k,
			LastModified: obj.lastModified.Format(time.RFC3339),
			ETag:         obj.etag,
			Size:         int64(len(obj.data)),
		})
		count++
	}
	result.KeyCount = count
	result.IsTruncated = truncated

	body, err := xml.MarshalIndent(result, "", "  ")
	if err != nil {
		return nil, errInternal(err.Error())
	}
	resp := newResponse(200)
	resp.set("Content-Type", "application/xml")
	resp.Body = append([]byte(xml.Header), body...)
	return resp, nil
}

func firstOr(v []string, def string) string {
	if len(v) == 0 {
		return def
	}
	return v[0]
}

func (a *Adapter) initiateMultipart(bucketName, key string, header map[string][]string) (*Response, error) {
	contentType := headerGet(header, "Content-Type")
	customMD5 := headerGet(header, "x-amz-meta-md5")
	u := a.ledger.create(bucketName, key, contentType, customMD5)

	body, err := xml.MarshalIndent(&initiateMultipartUploadResult{
		Bucket:   bucketName,
		Key:      key,
		UploadID: u.id,
	}, "", "  ")
	if err != nil {
		return nil, errInternal(err.Error())
	}
	resp := newResponse(200)
	resp.set("Content-Type", "application/xml")
	resp.Body = append([]byte(xml.Header), body...)
	return resp, nil
}

func (a *Adapter) uploadPart(bucketName, key, uploadID string, partNumber int, body []byte) (*Response, error) {
	if partNumber < 1 || partNumber > 10000 {
		return nil, errInvalidPart("partNumber must be between 1 and 10000")
	}
	u, ok := a.ledger.get(uploadID)
	if !ok {
		return nil, errNoSuchUpload(uploadID)
	}
	etag := u.putPart(partNumber, body)
	a.ledger.append(partLogEntryFor(u))

	resp := newResponse(200)
	resp.set("ETag", etag)
	return resp, nil
}

func (a *Adapter) completeMultipart(bucketName, key, uploadID string, body []byte) (*Response, error) {
	u, ok := a.ledger.get(uploadID)
	if !ok {
		return nil, errNoSuchUpload(uploadID)
	}

	var req completeMultipartUpload
	if err := xml.Unmarshal(body, &req); err != nil {
		return nil, errMalformedXML(err.Error())
	}
	if len(req.Parts) == 0 {
		return nil, errMalformedXML("CompleteMultipartUpload must list at least one part")
	}

	order := make([]int, 0, len(req.Parts))
	for _, p := range req.Parts {
		order = append(order, p.PartNumber)
	}

	assembled, err := u.assemble(order)
	if err != nil {
		a.abortAndRemove(u)
		return nil, err
	}

	b := a.store.bucketFor(u.bucket)
	obj := b.put(u.key, assembled, u.contentType, u.customMD5)
	a.ledger.append(internalRecordComplete(u))
	a.ledger.remove(uploadID)

	result := &completeMultipartUploadResult{
		Bucket:   u.bucket,
		Key:      u.key,
		ETag:     obj.etag,
		Location: "/" + u.bucket + "/" + u.key,
	}
	out, err := xml.MarshalIndent(result, "", "  ")
	if err != nil {
		return nil, errInternal(err.Error())
	}
	resp := newResponse(200)
	resp.set("Content-Type", "application/xml")
	resp.Body = append([]byte(xml.Header), out...)
	return resp, nil
}

func (a *Adapter) abortMultipart(uploadID string) (*Response, error) {
	u, ok := a.ledger.get(uploadID)
	if ok {
		a.abortAndRemove(u)
	}
	// abort is idempotent in spirit with delete: unknown upload still 204s.
	return newResponse(204), nil
}

func (a *Adapter) abortAndRemove(u *upload) {
	a.ledger.append(internalRecordAborted(u))
	a.ledger.remove(u.id)
}
