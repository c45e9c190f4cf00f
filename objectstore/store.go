package objectstore

import (
	"crypto/md5"
	"encoding/hex"
	"sync"
	"time"
)

// object is one stored item plus the metadata the external interface
// (§6) requires the adapter to echo back: Content-Type, ETag,
// Last-Modified and the caller-supplied md5 custom metadata.
type object struct {
	data         []byte
	contentType  string
	etag         string
	md5          string
	lastModified time.Time
}

// bucket guards its key map the same way the teacher guards ConnPool's
// map[connectKey][]*PersistConn with a single sync.RWMutex.
type bucket struct {
	mu      sync.RWMutex
	objects map[string]*object
}

func newBucket() *bucket {
	return &bucket{objects: make(map[string]*object)}
}

func (b *bucket) get(key string) (*object, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	o, ok := b.objects[key]
	return o, ok
}

func (b *bucket) put(key string, data []byte, contentType, customMD5 string) *object {
	sum := md5.Sum(data)
	o := &object{
		data:         data,
		contentType:  contentType,
		etag:         `"` + hex.EncodeToString(sum[:]) + `"`,
		md5:          customMD5,
		lastModified: time.Now().UTC(),
	}
	b.mu.Lock()
	b.objects[key] = o
	b.mu.Unlock()
	return o
}

func (b *bucket) delete(key string) {
	b.mu.Lock()
	delete(b.objects, key)
	b.mu.Unlock()
}

// list returns keys with the given prefix, in no particular order, for
// the bucket GET listing operation. Sorting and pagination/delimiter
// grouping are applied by the caller.
func (b *bucket) list(prefix string) []string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	keys := make([]string, 0, len(b.objects))
	for k := range b.objects {
		if len(prefix) == 0 || (len(k) >= len(prefix) && k[:len(prefix)] == prefix) {
			keys = append(keys, k)
		}
	}
	return keys
}

// Store holds every named bucket, created lazily on first use so
// "multiple buckets are allowed" (§6) without a separate provisioning
// step.
type Store struct {
	mu      sync.Mutex
	buckets map[string]*bucket
}

func NewStore() *Store {
	return &Store{buckets: make(map[string]*bucket)}
}

func (s *Store) bucketFor(name string) *bucket {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.buckets[name]
	if !ok {
		b = newBucket()
		s.buckets[name] = b
	}
	return b
}
