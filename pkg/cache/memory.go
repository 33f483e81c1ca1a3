package cache

import (
	"context"
	"encoding/json"
	"sync"
	"time"
)

type memoryEntry struct {
	data []byte
	exp  time.Time
}

// Memory is an in-process TTL cache. Values are stored JSON-encoded so Get
// semantics match the Redis backend.
type Memory struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry
	stopCh  chan struct{}
	once    sync.Once
}

// NewMemory creates an in-memory cache with a background sweeper.
func NewMemory(cleanupInterval time.Duration) *Memory {
	if cleanupInterval <= 0 {
		cleanupInterval = time.Minute
	}
	m := &Memory{
		entries: make(map[string]memoryEntry),
		stopCh:  make(chan struct{}),
	}
	go m.sweep(cleanupInterval)
	return m
}

func (m *Memory) sweep(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-m.stopCh:
			return
		case <-ticker.C:
			now := time.Now()
			m.mu.Lock()
			for k, e := range m.entries {
				if !e.exp.IsZero() && now.After(e.exp) {
					delete(m.entries, k)
				}
			}
			m.mu.Unlock()
		}
	}
}

func (m *Memory) Set(_ context.Context, key string, value interface{}, expiration time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	var exp time.Time
	if expiration > 0 {
		exp = time.Now().Add(expiration)
	}
	m.mu.Lock()
	m.entries[key] = memoryEntry{data: data, exp: exp}
	m.mu.Unlock()
	return nil
}

func (m *Memory) Get(_ context.Context, key string, dest interface{}) error {
	m.mu.RLock()
	e, ok := m.entries[key]
	m.mu.RUnlock()
	if !ok {
		return ErrCacheMiss
	}
	if !e.exp.IsZero() && time.Now().After(e.exp) {
		m.mu.Lock()
		delete(m.entries, key)
		m.mu.Unlock()
		return ErrCacheMiss
	}
	return json.Unmarshal(e.data, dest)
}

func (m *Memory) Delete(_ context.Context, keys ...string) error {
	m.mu.Lock()
	for _, k := range keys {
		delete(m.entries, k)
	}
	m.mu.Unlock()
	return nil
}

func (m *Memory) Exists(_ context.Context, key string) (bool, error) {
	m.mu.RLock()
	e, ok := m.entries[key]
	m.mu.RUnlock()
	if !ok {
		return false, nil
	}
	if !e.exp.IsZero() && time.Now().After(e.exp) {
		return false, nil
	}
	return true, nil
}

func (m *Memory) Close() error {
	m.once.Do(func() { close(m.stopCh) })
	return nil
}

var _ Service = (*Memory)(nil)
