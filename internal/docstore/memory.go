package docstore

import (
	"context"
	"sort"
	"strings"
	"sync"
)

type memDoc struct {
	data    []byte
	version int64
}

// Memory is an in-process Store. It runs the same optimistic protocol as the
// networked backends so update callbacks see real retries under contention.
type Memory struct {
	mu   sync.RWMutex
	docs map[string]map[string]memDoc
}

func NewMemory() *Memory {
	return &Memory{docs: make(map[string]map[string]memDoc)}
}

func (m *Memory) Get(_ context.Context, collection, key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	d, ok := m.docs[collection][key]
	if !ok {
		return nil, ErrNotFound
	}
	return clone(d.data), nil
}

func (m *Memory) Update(ctx context.Context, collection, key string, fn UpdateFunc) ([]byte, error) {
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		m.mu.RLock()
		cur, exists := m.docs[collection][key]
		m.mu.RUnlock()

		next, err := fn(clone(cur.data), exists)
		if err != nil {
			return nil, err
		}

		m.mu.Lock()
		latest, stillExists := m.docs[collection][key]
		if stillExists != exists || latest.version != cur.version {
			m.mu.Unlock()
			continue
		}
		if m.docs[collection] == nil {
			m.docs[collection] = make(map[string]memDoc)
		}
		m.docs[collection][key] = memDoc{data: clone(next), version: cur.version + 1}
		m.mu.Unlock()
		return next, nil
	}
	return nil, ErrConflict
}

func (m *Memory) Query(_ context.Context, collection string, f Filter) ([]Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Document, 0, len(m.docs[collection]))
	for k, d := range m.docs[collection] {
		if strings.HasPrefix(k, f.KeyPrefix) {
			out = append(out, Document{Key: k, Data: clone(d.data)})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

func (m *Memory) Delete(_ context.Context, collection, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.docs[collection][key]; !ok {
		return ErrNotFound
	}
	delete(m.docs[collection], key)
	return nil
}

func (m *Memory) Close() error { return nil }

func clone(b []byte) []byte {
	if b == nil {
		return nil
	}
	return append([]byte(nil), b...)
}
