package blob

import (
	"context"
	"fmt"
	"net/url"
	"sync"
	"time"
)

// Object is what MemoryStore keeps per key.
type Object struct {
	Data        []byte
	ContentType string
}

// MemoryStore is an in-process Store; presigned links point at memory://.
type MemoryStore struct {
	mu      sync.RWMutex
	objects map[string]Object
	now     func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{objects: make(map[string]Object), now: time.Now}
}

func (m *MemoryStore) PutObject(ctx context.Context, key string, data []byte, contentType string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = Object{Data: append([]byte(nil), data...), ContentType: contentType}
	return nil
}

func (m *MemoryStore) PresignGet(ctx context.Context, key string, ttl time.Duration) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if _, ok := m.objects[key]; !ok {
		return "", fmt.Errorf("object %s not found", key)
	}
	u := url.URL{Scheme: "memory", Path: "/" + key}
	u.RawQuery = url.Values{"expires": {m.now().Add(ttl).UTC().Format(time.RFC3339)}}.Encode()
	return u.String(), nil
}

func (m *MemoryStore) DeleteObject(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, key)
	return nil
}

// Get returns a stored object.
func (m *MemoryStore) Get(key string) (Object, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	o, ok := m.objects[key]
	return o, ok
}
