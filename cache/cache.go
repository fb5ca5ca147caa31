// Package cache holds extracted page text keyed by URL.
//
// Entries are immutable once stored: Put never replaces a live entry, so the
// first successful fetch of a URL wins. The store is unbounded and entries
// never expire unless Config sets MaxEntries or TTL. An unbounded store grows
// with the number of distinct URLs requested, which is only acceptable for
// short-lived processes.
package cache

import (
	"errors"
	"time"
)

// ErrClosed is returned by operations on a closed store.
var ErrClosed = errors.New("cache closed")

// Page is a cached extraction result.
type Page struct {
	URL       string    `json:"url"`
	Text      string    `json:"-"`
	Chars     int       `json:"chars"`
	FetchedAt time.Time `json:"fetched_at"`
}

// Store is the page cache used by the fetcher.
type Store interface {
	// Get returns the cached page for url, if present and not expired.
	Get(url string) (Page, bool)

	// Put stores text for url unless a live entry already exists, and
	// returns the entry that is now cached.
	Put(url, text string) Page

	// Stats returns counters for the stats endpoint.
	Stats() Stats
}

// Config bounds the store. Zero values disable the bound.
type Config struct {
	// MaxEntries evicts the oldest entries once exceeded.
	MaxEntries int

	// TTL expires entries this long after they were fetched.
	TTL time.Duration
}

// Stats is a snapshot of cache counters.
type Stats struct {
	Entries    int           `json:"entries"`
	Hits       uint64        `json:"hits"`
	Misses     uint64        `json:"misses"`
	Evictions  uint64        `json:"evictions"`
	MaxEntries int           `json:"max_entries"`
	TTL        time.Duration `json:"ttl"`
}
