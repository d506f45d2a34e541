package cache

import (
	"container/list"
	"strings"
	"sync"
	"time"
)

// Entry is one cached value with its freshness window. It is valid while
// now <= createdAt+ttl; past that it is treated as absent even before the
// sweep removes it.
type Entry struct {
	Data      any
	CreatedAt time.Time
	TTL       time.Duration
}

// Expired reports whether the entry is past its freshness window at now.
func (e Entry) Expired(now time.Time) bool {
	return now.After(e.CreatedAt.Add(e.TTL))
}

// lruStore is a bounded, time-boxed key-value store with least-recently-used
// eviction. Concurrent use is safe; racing writes to the same key are
// last-write-wins.
type lruStore struct {
	mu         sync.Mutex
	maxEntries int
	items      map[string]*list.Element
	evictList  *list.List
	now        func() time.Time
	onEvict    func()
}

type lruItem struct {
	key   string
	entry Entry
}

func newLRUStore(maxEntries int, now func() time.Time, onEvict func()) *lruStore {
	if maxEntries <= 0 {
		maxEntries = 128
	}
	if now == nil {
		now = time.Now
	}
	return &lruStore{
		maxEntries: maxEntries,
		items:      make(map[string]*list.Element),
		evictList:  list.New(),
		now:        now,
		onEvict:    onEvict,
	}
}

// Get returns the stored value if present and fresh. Expired entries are
// removed on access and reported as absent.
func (s *lruStore) Get(key string) (any, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	elem, ok := s.items[key]
	if !ok {
		return nil, false
	}
	item := elem.Value.(*lruItem)
	if item.entry.Expired(s.now()) {
		s.removeElement(elem)
		return nil, false
	}
	s.evictList.MoveToFront(elem)
	return item.entry.Data, true
}

// Set stores value under key with the provided freshness window, evicting the
// least recently used entry when the store is full.
func (s *lruStore) Set(key string, value any, ttl time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry := Entry{Data: value, CreatedAt: s.now(), TTL: ttl}
	if elem, ok := s.items[key]; ok {
		elem.Value.(*lruItem).entry = entry
		s.evictList.MoveToFront(elem)
		return
	}

	elem := s.evictList.PushFront(&lruItem{key: key, entry: entry})
	s.items[key] = elem

	for s.evictList.Len() > s.maxEntries {
		oldest := s.evictList.Back()
		if oldest == nil {
			break
		}
		s.removeElement(oldest)
		if s.onEvict != nil {
			s.onEvict()
		}
	}
}

// Delete removes the entry stored under key, if any.
func (s *lruStore) Delete(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if elem, ok := s.items[key]; ok {
		s.removeElement(elem)
	}
}

// DeleteFunc removes every entry whose key satisfies match and returns how
// many were removed.
func (s *lruStore) DeleteFunc(match func(key string) bool) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for key, elem := range s.items {
		if match(key) {
			s.removeElement(elem)
			removed++
		}
	}
	return removed
}

// Clear drops every entry.
func (s *lruStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items = make(map[string]*list.Element)
	s.evictList.Init()
}

// Len reports the number of physical entries, fresh or not.
func (s *lruStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.evictList.Len()
}

func (s *lruStore) removeElement(elem *list.Element) {
	item := elem.Value.(*lruItem)
	s.evictList.Remove(elem)
	delete(s.items, item.key)
}

func containsSegment(key, segment string) bool {
	return strings.Contains(key, ":"+segment+":") || strings.HasSuffix(key, ":"+segment)
}
