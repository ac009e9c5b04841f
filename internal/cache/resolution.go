// Package cache provides the process-lifetime resolution cache that maps a
// normalized lookup key to a previously resolved external identifier.
package cache

import (
	"strings"
	"sync"
	"time"

	"golang.org/x/text/cases"

	"github.com/JakeFAU/webscout/internal/failure"
)

// Value is the resolved identifier plus a display label.
type Value struct {
	ID    string `json:"id"`
	Label string `json:"label"`
}

// Entry is a cached key/value pair.
type Entry struct {
	Key        string    `json:"key"`
	Value      Value     `json:"value"`
	InsertedAt time.Time `json:"insertedAt"`
}

// Stats summarizes cache usage.
type Stats struct {
	Size   int   `json:"size"`
	Hits   int64 `json:"hits"`
	Misses int64 `json:"misses"`
	Writes int64 `json:"writes"`
}

// Clock returns the current time.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }

// Resolution is an in-memory, insertion-ordered key/value store. It has no
// eviction policy: entries are small identifiers and live for the process.
type Resolution struct {
	mu      sync.RWMutex
	entries map[string]Entry
	order   []string
	hits    int64
	misses  int64
	writes  int64
	clock   Clock
	onSize  func(int)
}

// Option customizes a Resolution cache.
type Option func(*Resolution)

// WithClock injects the clock used for InsertedAt.
func WithClock(c Clock) Option {
	return func(r *Resolution) {
		if c != nil {
			r.clock = c
		}
	}
}

// WithSizeObserver registers a callback invoked with the new size after each write.
func WithSizeObserver(fn func(int)) Option {
	return func(r *Resolution) {
		r.onSize = fn
	}
}

// NewResolution constructs an empty cache.
func NewResolution(opts ...Option) *Resolution {
	r := &Resolution{
		entries: make(map[string]Entry),
		clock:   systemClock{},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// NormalizeKey trims and case-folds a lookup key.
func NormalizeKey(key string) string {
	return cases.Fold().String(strings.TrimSpace(key))
}

// Put stores value under the normalized key. Existing entries are overwritten
// in place and keep their original insertion position.
func (r *Resolution) Put(key string, value Value) (Entry, error) {
	k := NormalizeKey(key)
	if k == "" {
		return Entry{}, failure.New(failure.KindValidation, "cache.put", "key is empty")
	}
	entry := Entry{Key: k, Value: value, InsertedAt: r.clock.Now()}

	r.mu.Lock()
	if _, exists := r.entries[k]; !exists {
		r.order = append(r.order, k)
	}
	r.entries[k] = entry
	r.writes++
	size := len(r.entries)
	r.mu.Unlock()

	if r.onSize != nil {
		r.onSize(size)
	}
	return entry, nil
}

// Get returns the entry stored under any case variant of key.
func (r *Resolution) Get(key string) (Entry, bool) {
	k := NormalizeKey(key)
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, ok := r.entries[k]
	if ok {
		r.hits++
	} else {
		r.misses++
	}
	return entry, ok
}

// All returns every entry in insertion order.
func (r *Resolution) All() []Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Entry, 0, len(r.order))
	for _, k := range r.order {
		out = append(out, r.entries[k])
	}
	return out
}

// Stats reports size and hit/miss counters.
func (r *Resolution) Stats() Stats {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return Stats{
		Size:   len(r.entries),
		Hits:   r.hits,
		Misses: r.misses,
		Writes: r.writes,
	}
}
