package cache

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/adverant/nexus/contract-ocr-worker/internal/logging"
)

// MemoryStore is an in-process Store. Entries older than ttl are treated as
// absent, and the oldest entries are evicted beyond maxEntries.
type MemoryStore struct {
	entries    map[string]*Entry
	mu         sync.RWMutex
	maxEntries int // 0 = unlimited
	ttl        time.Duration
	now        func() time.Time
	logger     *logging.Logger
}

// NewMemoryStore creates an empty store. A nil logger logs under "cache".
func NewMemoryStore(maxEntries int, ttl time.Duration, logger *logging.Logger) *MemoryStore {
	if maxEntries < 0 {
		maxEntries = 0
	}
	if logger == nil {
		logger = logging.NewLogger("cache")
	}
	return &MemoryStore{
		entries:    make(map[string]*Entry),
		maxEntries: maxEntries,
		ttl:        ttl,
		now:        time.Now,
		logger:     logger,
	}
}

func (s *MemoryStore) Get(ctx context.Context, documentID string) (*Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.live(documentID)
	if !ok {
		return nil, ErrNotFound
	}
	return e.Clone(), nil
}

func (s *MemoryStore) Put(ctx context.Context, entry *Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var version int64
	if cur, ok := s.live(entry.DocumentID); ok {
		version = cur.Version
	}
	s.store(entry, version+1)
	return nil
}

func (s *MemoryStore) CompareAndSwap(ctx context.Context, expected int64, entry *Entry) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var version int64
	if cur, ok := s.live(entry.DocumentID); ok {
		version = cur.Version
	}
	if version != expected {
		return false, nil
	}
	s.store(entry, version+1)
	return true, nil
}

// live must be called with the lock held.
func (s *MemoryStore) live(documentID string) (*Entry, bool) {
	e, ok := s.entries[documentID]
	if !ok {
		return nil, false
	}
	if s.ttl > 0 && s.now().Sub(e.StoredAt) > s.ttl {
		return nil, false
	}
	return e, true
}

// store must be called with the write lock held.
func (s *MemoryStore) store(entry *Entry, version int64) {
	entry.Version = version
	entry.StoredAt = s.now()
	s.entries[entry.DocumentID] = entry.Clone()
	s.cleanupIfNeeded()
}

// cleanupIfNeeded drops the oldest entries beyond maxEntries.
func (s *MemoryStore) cleanupIfNeeded() {
	if s.maxEntries <= 0 || len(s.entries) <= s.maxEntries {
		return
	}

	entries := make([]*Entry, 0, len(s.entries))
	for _, e := range s.entries {
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].StoredAt.Before(entries[j].StoredAt)
	})

	removeCount := len(entries) - s.maxEntries
	for i := 0; i < removeCount; i++ {
		s.logger.Debug("evicting cached document",
			"document_id", entries[i].DocumentID,
			"stored_at", entries[i].StoredAt,
		)
		delete(s.entries, entries[i].DocumentID)
	}
}

// Count returns the number of stored entries, expired ones included.
func (s *MemoryStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}
