package cache

import (
	"context"
	"encoding/json"
	"sync"
	"time"
)

type memoryItem struct {
	data     []byte
	expireAt time.Time // zero means no expiry
}

func (m *memoryItem) expired() bool {
	return !m.expireAt.IsZero() && time.Now().After(m.expireAt)
}

// MemoryStore implements Store with in-process storage. Used when no
// Redis is configured; state is lost on restart, which the core accepts.
type MemoryStore struct {
	data          map[string]*memoryItem
	mutex         sync.RWMutex
	cleanupTicker *time.Ticker
	done          chan struct{}
}

// NewMemoryStore creates an in-memory store with periodic expiry cleanup.
func NewMemoryStore() *MemoryStore {
	ms := &MemoryStore{
		data:          make(map[string]*memoryItem),
		cleanupTicker: time.NewTicker(5 * time.Minute),
		done:          make(chan struct{}),
	}
	go ms.cleanupExpired()
	return ms
}

func (ms *MemoryStore) Set(_ context.Context, key string, value interface{}, expiration time.Duration) error {
	data, err := encodeValue(value)
	if err != nil {
		return err
	}

	var expireAt time.Time
	if expiration > 0 {
		expireAt = time.Now().Add(expiration)
	}

	ms.mutex.Lock()
	ms.data[key] = &memoryItem{data: data, expireAt: expireAt}
	ms.mutex.Unlock()
	return nil
}

func (ms *MemoryStore) Get(_ context.Context, key string, dest interface{}) error {
	ms.mutex.Lock()
	item, exists := ms.data[key]
	if exists && item.expired() {
		delete(ms.data, key)
		exists = false
	}
	ms.mutex.Unlock()

	if !exists {
		return ErrCacheMiss
	}
	return decodeValue(item.data, dest)
}

func (ms *MemoryStore) Delete(_ context.Context, keys ...string) error {
	ms.mutex.Lock()
	for _, key := range keys {
		delete(ms.data, key)
	}
	ms.mutex.Unlock()
	return nil
}

func (ms *MemoryStore) cleanupExpired() {
	for {
		select {
		case <-ms.done:
			return
		case <-ms.cleanupTicker.C:
			ms.mutex.Lock()
			for key, item := range ms.data {
				if item.expired() {
					delete(ms.data, key)
				}
			}
			ms.mutex.Unlock()
		}
	}
}

// Close stops the cleanup loop.
func (ms *MemoryStore) Close() error {
	ms.cleanupTicker.Stop()
	close(ms.done)
	return nil
}

func encodeValue(value interface{}) ([]byte, error) {
	switch v := value.(type) {
	case []byte:
		return v, nil
	case string:
		return []byte(v), nil
	default:
		return json.Marshal(value)
	}
}

func decodeValue(data []byte, dest interface{}) error {
	switch d := dest.(type) {
	case *[]byte:
		*d = append([]byte(nil), data...)
		return nil
	case *string:
		*d = string(data)
		return nil
	default:
		return json.Unmarshal(data, dest)
	}
}
