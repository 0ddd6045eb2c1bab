// Package idempotency replays the stored response of a write request that
// is retried with the same Idempotency-Key.
package idempotency

import (
	"errors"
	"net/http"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// DefaultTTL is how long a response stays replayable.
const DefaultTTL = 24 * time.Hour

// ErrInFlight is returned by Reserve when the key is already held by an
// unfinished request.
var ErrInFlight = errors.New("idempotency key in use by a request in flight")

// Entry is a captured response.
type Entry struct {
	Key        string
	Method     string
	Path       string
	BodyHash   string
	StatusCode int
	Headers    http.Header
	Body       []byte
	CreatedAt  time.Time
	pending    bool
}

// Store holds captured responses. Implementations must be safe for
// concurrent use.
type Store interface {
	Get(key string) (*Entry, bool)
	// Reserve claims key for a request that is about to run. It fails with
	// ErrInFlight if the key is already claimed or stored.
	Reserve(key, method, path string) error
	Set(key string, entry *Entry)
	Delete(key string)
}

// CacheStore is a Store backed by an expiring in-memory cache.
type CacheStore struct {
	c *gocache.Cache
}

// NewCacheStore returns a CacheStore whose entries live for ttl. A zero or
// negative ttl means DefaultTTL.
func NewCacheStore(ttl time.Duration) *CacheStore {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	cleanup := ttl / 4
	if cleanup < time.Minute {
		cleanup = time.Minute
	}
	return &CacheStore{c: gocache.New(ttl, cleanup)}
}

// Get returns a copy of the completed entry for key.
func (s *CacheStore) Get(key string) (*Entry, bool) {
	v, ok := s.c.Get(key)
	if !ok {
		return nil, false
	}
	e := v.(*Entry)
	if e.pending {
		return nil, false
	}
	return e.clone(), true
}

func (s *CacheStore) Reserve(key, method, path string) error {
	err := s.c.Add(key, &Entry{Key: key, Method: method, Path: path, CreatedAt: time.Now(), pending: true}, gocache.DefaultExpiration)
	if err != nil {
		return ErrInFlight
	}
	return nil
}

func (s *CacheStore) Set(key string, entry *Entry) {
	cp := entry.clone()
	cp.pending = false
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now()
	}
	s.c.SetDefault(key, cp)
}

func (s *CacheStore) Delete(key string) {
	s.c.Delete(key)
}

// Len reports how many keys are held, pending ones included.
func (s *CacheStore) Len() int {
	return s.c.ItemCount()
}

func (e *Entry) clone() *Entry {
	cp := *e
	if e.Headers != nil {
		cp.Headers = e.Headers.Clone()
	}
	cp.Body = append([]byte(nil), e.Body...)
	return &cp
}
