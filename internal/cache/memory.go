package cache

import (
	"strconv"
	"sync"
	"time"
)

// memoryStore is the in-process fallback used when Redis is unreachable.
type memoryStore struct {
	mu          sync.RWMutex
	values      map[string][]byte
	expirations map[string]time.Time

	janitorStop chan struct{}
	janitorDone chan struct{}
	stopOnce    sync.Once
}

func newMemoryStore(janitorInterval time.Duration) *memoryStore {
	s := &memoryStore{
		values:      make(map[string][]byte),
		expirations: make(map[string]time.Time),
		janitorStop: make(chan struct{}),
		janitorDone: make(chan struct{}),
	}

	if janitorInterval > 0 {
		go s.janitor(janitorInterval)
	} else {
		close(s.janitorDone)
	}
	return s
}

func (s *memoryStore) janitor(interval time.Duration) {
	defer close(s.janitorDone)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.evictExpired()
		case <-s.janitorStop:
			return
		}
	}
}

func (s *memoryStore) evictExpired() {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	for key, expiry := range s.expirations {
		if now.After(expiry) {
			delete(s.values, key)
			delete(s.expirations, key)
		}
	}
}

// expired must be called with mu held.
func (s *memoryStore) expired(key string) bool {
	if expiry, ok := s.expirations[key]; ok {
		return time.Now().After(expiry)
	}
	return false
}

func (s *memoryStore) get(key string) ([]byte, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.expired(key) {
		return nil, false
	}
	v, ok := s.values[key]
	return v, ok
}

func (s *memoryStore) set(key string, value []byte, ttl time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.values[key] = value
	if ttl > 0 {
		s.expirations[key] = time.Now().Add(ttl)
	} else {
		delete(s.expirations, key)
	}
}

func (s *memoryStore) del(keys ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, key := range keys {
		delete(s.values, key)
		delete(s.expirations, key)
	}
}

func (s *memoryStore) incr(key string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	if v, ok := s.values[key]; ok && !s.expired(key) {
		parsed, err := strconv.ParseInt(string(v), 10, 64)
		if err != nil {
			return 0, err
		}
		n = parsed
	} else {
		delete(s.expirations, key)
	}
	n++
	s.values[key] = []byte(strconv.FormatInt(n, 10))
	return n, nil
}

func (s *memoryStore) close() {
	s.stopOnce.Do(func() {
		select {
		case <-s.janitorDone:
		default:
			close(s.janitorStop)
		}
	})
	<-s.janitorDone
}
