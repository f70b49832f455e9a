package session

import (
	"context"
	"sync"
	"time"
)

// MemoryStore keeps leases in process memory. It suits single-instance
// deployments; use RedisStore or SQLStore when instances share sessions.
type MemoryStore struct {
	mu     sync.RWMutex
	leases map[string]*storedLease
	closed bool
	done   chan struct{}
	now    func() time.Time
}

type storedLease struct {
	data      []byte
	expiresAt time.Time
}

// MemoryStoreOption configures a MemoryStore.
type MemoryStoreOption func(*memoryStoreConfig)

type memoryStoreConfig struct {
	cleanupInterval time.Duration
	now             func() time.Time
}

// WithCleanupInterval sets how often expired leases are swept.
// Default: 1 minute.
func WithCleanupInterval(d time.Duration) MemoryStoreOption {
	return func(c *memoryStoreConfig) {
		if d > 0 {
			c.cleanupInterval = d
		}
	}
}

// WithClock overrides the time source. Intended for tests.
func WithClock(now func() time.Time) MemoryStoreOption {
	return func(c *memoryStoreConfig) {
		if now != nil {
			c.now = now
		}
	}
}

// NewMemoryStore creates an empty store and starts its sweeper.
func NewMemoryStore(opts ...MemoryStoreOption) *MemoryStore {
	cfg := &memoryStoreConfig{
		cleanupInterval: time.Minute,
		now:             time.Now,
	}
	for _, opt := range opts {
		opt(cfg)
	}

	m := &MemoryStore{
		leases: make(map[string]*storedLease),
		done:   make(chan struct{}),
		now:    cfg.now,
	}
	go m.cleanupLoop(cfg.cleanupInterval)
	return m
}

func (m *MemoryStore) Save(ctx context.Context, sessionID string, data []byte, expiresAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrStoreClosed
	}
	m.leases[sessionID] = &storedLease{data: clone(data), expiresAt: expiresAt}
	return nil
}

func (m *MemoryStore) Load(ctx context.Context, sessionID string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, ErrStoreClosed
	}
	l, ok := m.leases[sessionID]
	if !ok || !m.now().Before(l.expiresAt) {
		return nil, nil
	}
	return clone(l.data), nil
}

func (m *MemoryStore) Delete(ctx context.Context, sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrStoreClosed
	}
	delete(m.leases, sessionID)
	return nil
}

func (m *MemoryStore) Touch(ctx context.Context, sessionID string, expiresAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrStoreClosed
	}
	if l, ok := m.leases[sessionID]; ok {
		l.expiresAt = expiresAt
	}
	return nil
}

func (m *MemoryStore) SaveAll(ctx context.Context, leases map[string]Data) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrStoreClosed
	}
	for id, d := range leases {
		m.leases[id] = &storedLease{data: clone(d.Data), expiresAt: d.ExpiresAt}
	}
	return nil
}

// Close stops the sweeper and drops all leases. It is idempotent.
func (m *MemoryStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil
	}
	m.closed = true
	close(m.done)
	m.leases = nil
	return nil
}

// Count returns the number of stored leases, expired ones included.
func (m *MemoryStore) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.leases)
}

func (m *MemoryStore) cleanupLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.sweep()
		case <-m.done:
			return
		}
	}
}

// sweep removes expired leases and returns how many were dropped.
func (m *MemoryStore) sweep() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return 0
	}
	now := m.now()
	n := 0
	for id, l := range m.leases {
		if !now.Before(l.expiresAt) {
			delete(m.leases, id)
			n++
		}
	}
	return n
}

func clone(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
