package cache

import (
	"container/list"
	"sync"
	"sync/atomic"
	"time"
	"unicode/utf8"
)

// MemoryStore implements Store in process memory. It is safe for concurrent use.
type MemoryStore struct {
	mu     sync.RWMutex
	config Config
	data   map[string]*list.Element
	order  *list.List // front is oldest
	closed atomic.Bool

	hits      atomic.Uint64
	misses    atomic.Uint64
	evictions atomic.Uint64

	nowFunc func() time.Time

	cleanupTicker *time.Ticker
	done          chan struct{}
}

// NewMemoryStore creates a store. When cfg.TTL is set a background loop
// drops expired entries; call Close to stop it.
func NewMemoryStore(cfg Config) *MemoryStore {
	s := &MemoryStore{
		config:  cfg,
		data:    make(map[string]*list.Element),
		order:   list.New(),
		nowFunc: time.Now,
		done:    make(chan struct{}),
	}
	if cfg.TTL > 0 {
		interval := cfg.TTL / 2
		if interval < time.Second {
			interval = time.Second
		}
		s.cleanupTicker = time.NewTicker(interval)
		go s.cleanupLoop()
	}
	return s
}

func (s *MemoryStore) cleanupLoop() {
	for {
		select {
		case <-s.cleanupTicker.C:
			s.cleanupExpired()
		case <-s.done:
			return
		}
	}
}

func (s *MemoryStore) cleanupExpired() {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.nowFunc()
	for e := s.order.Front(); e != nil; {
		next := e.Next()
		if s.expired(e.Value.(Page), now) {
			s.removeElement(e)
			s.evictions.Add(1)
		}
		e = next
	}
}

func (s *MemoryStore) expired(p Page, now time.Time) bool {
	return s.config.TTL > 0 && now.Sub(p.FetchedAt) >= s.config.TTL
}

// Get returns the cached page for url.
func (s *MemoryStore) Get(url string) (Page, bool) {
	if s.closed.Load() {
		return Page{}, false
	}

	s.mu.RLock()
	e, ok := s.data[url]
	var p Page
	if ok {
		p = e.Value.(Page)
	}
	s.mu.RUnlock()

	if !ok || s.expired(p, s.nowFunc()) {
		s.misses.Add(1)
		return Page{}, false
	}
	s.hits.Add(1)
	return p, true
}

// Put stores text for url unless a live entry exists.
func (s *MemoryStore) Put(url, text string) Page {
	now := s.nowFunc()
	p := Page{
		URL:       url,
		Text:      text,
		Chars:     utf8.RuneCountInString(text),
		FetchedAt: now,
	}
	if s.closed.Load() {
		return p
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if e, ok := s.data[url]; ok {
		existing := e.Value.(Page)
		if !s.expired(existing, now) {
			return existing
		}
		s.removeElement(e)
	}

	s.data[url] = s.order.PushBack(p)

	if s.config.MaxEntries > 0 {
		for s.order.Len() > s.config.MaxEntries {
			s.removeElement(s.order.Front())
			s.evictions.Add(1)
		}
	}
	return p
}

// Delete removes url from the cache.
func (s *MemoryStore) Delete(url string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.data[url]; ok {
		s.removeElement(e)
	}
}

// Purge removes every entry.
func (s *MemoryStore) Purge() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data = make(map[string]*list.Element)
	s.order.Init()
}

// Len returns the number of stored entries, including expired ones not yet swept.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.order.Len()
}

// Stats returns a counter snapshot.
func (s *MemoryStore) Stats() Stats {
	return Stats{
		Entries:    s.Len(),
		Hits:       s.hits.Load(),
		Misses:     s.misses.Load(),
		Evictions:  s.evictions.Load(),
		MaxEntries: s.config.MaxEntries,
		TTL:        s.config.TTL,
	}
}

// Close stops the cleanup loop. Later Gets miss and Puts are not stored.
func (s *MemoryStore) Close() error {
	if s.closed.Swap(true) {
		return ErrClosed
	}
	close(s.done)
	if s.cleanupTicker != nil {
		s.cleanupTicker.Stop()
	}
	return nil
}

// removeElement must be called with mu held.
func (s *MemoryStore) removeElement(e *list.Element) {
	p := s.order.Remove(e).(Page)
	delete(s.data, p.URL)
}

var _ Store = (*MemoryStore)(nil)
