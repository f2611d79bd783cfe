package statestore

import (
	"container/list"
	"context"
	"sync"
	"time"
)

// MemoryStore is an in-memory, thread-safe Store implementation. It is the
// default backend: suitable for a single-process engine, with no
// cross-restart persistence per spec.
type MemoryStore struct {
	mu sync.RWMutex

	entries map[Key]*list.Element // key -> LRU list element wrapping *entry
	lru     *list.List            // front = most recently used

	maxEntries int // 0 = unbounded

	sweepInterval time.Duration
	stopSweep     chan struct{}
	sweepDone     chan struct{}
	closed        bool

	onEvict func(key Key, reason string) // optional
}

// MemoryOption configures a MemoryStore.
type MemoryOption func(*MemoryStore)

// WithMaxEntries sets a hard cap on total entries across all sessions and
// nodes. On overflow, the least-recently-used entry is evicted. 0 (the
// default) means unbounded.
func WithMaxEntries(n int) MemoryOption {
	return func(s *MemoryStore) { s.maxEntries = n }
}

// WithSweepInterval overrides how often the background goroutine scans for
// TTL-expired entries. Default is DefaultSweepInterval. A non-positive
// value disables the background sweep; expired entries are still hidden
// from Get/GetOrInit/Update, just not proactively removed until accessed.
func WithSweepInterval(d time.Duration) MemoryOption {
	return func(s *MemoryStore) { s.sweepInterval = d }
}

// WithOnEvict registers a callback invoked every time an entry is removed
// without an explicit Remove/RemoveSession call: either because its TTL
// elapsed ("ttl") or because it was pushed out by WithMaxEntries' capacity
// bound ("capacity"). The callback runs with s.mu held, so it must not call
// back into the store; it exists to let callers (e.g. the engine) publish a
// state.entry_evicted event carrying the evicted entry's NodeID/SessionID.
func WithOnEvict(fn func(key Key, reason string)) MemoryOption {
	return func(s *MemoryStore) { s.onEvict = fn }
}

func (s *MemoryStore) notifyEvict(key Key, reason string) {
	if s.onEvict != nil {
		s.onEvict(key, reason)
	}
}

// NewMemoryStore creates a ready-to-use in-memory state store and starts
// its background TTL sweep goroutine.
func NewMemoryStore(opts ...MemoryOption) *MemoryStore {
	s := &MemoryStore{
		entries:       make(map[Key]*list.Element),
		lru:           list.New(),
		sweepInterval: DefaultSweepInterval,
		stopSweep:     make(chan struct{}),
		sweepDone:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.sweepInterval > 0 {
		go s.sweepLoop()
	} else {
		close(s.sweepDone)
	}
	return s
}

func (s *MemoryStore) sweepLoop() {
	defer close(s.sweepDone)
	ticker := time.NewTicker(s.sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			s.evictExpired()
		case <-s.stopSweep:
			return
		}
	}
}

// evictExpired removes every entry whose TTL has elapsed.
func (s *MemoryStore) evictExpired() {
	now := time.Now()
	s.mu.Lock()
	defer s.mu.Unlock()
	for k, el := range s.entries {
		if el.Value.(*entry).expired(now) {
			s.lru.Remove(el)
			delete(s.entries, k)
			s.notifyEvict(k, "ttl")
		}
	}
}

// touch moves el to the front of the LRU list. Caller must hold s.mu.
func (s *MemoryStore) touch(el *list.Element) {
	s.lru.MoveToFront(el)
}

// evictLRULocked evicts the least-recently-used entry. Caller must hold
// s.mu (write lock).
func (s *MemoryStore) evictLRULocked() {
	oldest := s.lru.Back()
	if oldest == nil {
		return
	}
	key := oldest.Value.(*entry).key
	s.lru.Remove(oldest)
	delete(s.entries, key)
	s.notifyEvict(key, "capacity")
}

func normalizeTTL(ttl time.Duration) time.Duration {
	if ttl <= 0 {
		return DefaultTTL
	}
	return ttl
}

// GetOrInit returns the current value for key, initializing it via init if
// absent. Implements spec.md §4.6's get_or_init operation.
func (s *MemoryStore) GetOrInit(ctx context.Context, key Key, ttl time.Duration, init func() ([]byte, error)) ([]byte, error) {
	if key.NodeID == "" || key.SessionID == "" {
		return nil, ErrInvalidKey
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, ErrClosed
	}
	now := time.Now()
	if el, ok := s.entries[key]; ok {
		e := el.Value.(*entry)
		if !e.expired(now) {
			e.lastAccess = now
			s.touch(el)
			value := e.value
			s.mu.Unlock()
			return value, nil
		}
		// Expired: fall through and reinitialize in its place.
		s.lru.Remove(el)
		delete(s.entries, key)
		s.notifyEvict(key, "ttl")
	}
	s.mu.Unlock()

	value, err := init()
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}
	// Another caller may have raced us to initialize the same key; the
	// last writer wins, matching Update's last-writer-wins semantics.
	e := &entry{key: key, value: value, createdAt: now, lastAccess: now, ttl: normalizeTTL(ttl)}
	if el, ok := s.entries[key]; ok {
		el.Value = e
		s.touch(el)
	} else {
		if s.maxEntries > 0 && len(s.entries) >= s.maxEntries {
			s.evictLRULocked()
		}
		s.entries[key] = s.lru.PushFront(e)
	}
	return value, nil
}

// Update reads the current value (nil if absent) and replaces it with
// fn's result.
func (s *MemoryStore) Update(ctx context.Context, key Key, ttl time.Duration, fn func(current []byte) ([]byte, error)) error {
	if key.NodeID == "" || key.SessionID == "" {
		return ErrInvalidKey
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}

	now := time.Now()
	var current []byte
	el, ok := s.entries[key]
	if ok {
		e := el.Value.(*entry)
		if !e.expired(now) {
			current = e.value
		} else {
			s.lru.Remove(el)
			delete(s.entries, key)
			s.notifyEvict(key, "ttl")
			ok = false
		}
	}

	next, err := fn(current)
	if err != nil {
		return err
	}

	if ok {
		e := el.Value.(*entry)
		e.value = next
		e.lastAccess = now
		e.ttl = normalizeTTL(ttl)
		s.touch(el)
		return nil
	}

	if s.maxEntries > 0 && len(s.entries) >= s.maxEntries {
		s.evictLRULocked()
	}
	e := &entry{key: key, value: next, createdAt: now, lastAccess: now, ttl: normalizeTTL(ttl)}
	s.entries[key] = s.lru.PushFront(e)
	return nil
}

// Get returns the current value for key without initializing it.
func (s *MemoryStore) Get(ctx context.Context, key Key) ([]byte, bool, error) {
	if key.NodeID == "" || key.SessionID == "" {
		return nil, false, ErrInvalidKey
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, false, ErrClosed
	}

	el, ok := s.entries[key]
	if !ok {
		return nil, false, nil
	}
	e := el.Value.(*entry)
	if e.expired(time.Now()) {
		s.lru.Remove(el)
		delete(s.entries, key)
		s.notifyEvict(key, "ttl")
		return nil, false, nil
	}
	e.lastAccess = time.Now()
	s.touch(el)
	return e.value, true, nil
}

// Remove deletes a single entry. It is not an error to remove a key that
// does not exist.
func (s *MemoryStore) Remove(ctx context.Context, key Key) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	if el, ok := s.entries[key]; ok {
		s.lru.Remove(el)
		delete(s.entries, key)
	}
	return nil
}

// RemoveSession atomically removes every entry for sessionID, regardless of
// node ID. Called eagerly on session teardown (spec.md §4.6 "Cleanup").
func (s *MemoryStore) RemoveSession(ctx context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	for k, el := range s.entries {
		if k.SessionID == sessionID {
			s.lru.Remove(el)
			delete(s.entries, k)
		}
	}
	return nil
}

// Close stops the background sweep goroutine and releases the store. It is
// safe to call more than once.
func (s *MemoryStore) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	select {
	case <-s.stopSweep:
	default:
		close(s.stopSweep)
	}
	<-s.sweepDone
	return nil
}

// Len reports the current entry count, for tests and metrics.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}
