// Package memstore provides an in-memory implementation of triage.SessionStore.
package memstore

import (
	"context"
	"sync"
	"time"

	"github.com/linnemanlabs/firstline/internal/triage"
)

// DefaultTTL is how long an untouched draft stays alive.
const DefaultTTL = 30 * time.Minute

// Option configures a Store.
type Option func(*Store)

// WithTTL overrides DefaultTTL.
func WithTTL(ttl time.Duration) Option {
	return func(s *Store) {
		if ttl > 0 {
			s.ttl = ttl
		}
	}
}

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// WithEvictHook is called with the number of drafts dropped by each purge.
func WithEvictHook(fn func(n int)) Option {
	return func(s *Store) { s.onEvict = fn }
}

type keyLock struct {
	mu   sync.Mutex
	refs int
}

// Store holds drafts in memory. Expired drafts are purged on every access,
// there is no background sweeper.
type Store struct {
	mu      sync.Mutex
	drafts  map[triage.SessionKey]*triage.Draft
	locks   map[triage.SessionKey]*keyLock
	ttl     time.Duration
	now     func() time.Time
	onEvict func(n int)
}

// New initializes an empty Store.
func New(opts ...Option) *Store {
	s := &Store{
		drafts: make(map[triage.SessionKey]*triage.Draft),
		locks:  make(map[triage.SessionKey]*keyLock),
		ttl:    DefaultTTL,
		now:    time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Get returns a copy of the live draft for key.
func (s *Store) Get(_ context.Context, key triage.SessionKey) (*triage.Draft, bool, error) {
	unlock := s.lockKey(key)
	defer unlock()

	d, ok := s.load(key)
	return d, ok, nil
}

// Set stores a copy of d, stamping UpdatedAt.
func (s *Store) Set(_ context.Context, key triage.SessionKey, d *triage.Draft) error {
	unlock := s.lockKey(key)
	defer unlock()

	s.store(key, d)
	return nil
}

// Clear drops the draft for key, if any.
func (s *Store) Clear(_ context.Context, key triage.SessionKey) error {
	unlock := s.lockKey(key)
	defer unlock()

	s.store(key, nil)
	return nil
}

// Update performs an atomic read-modify-write of key. Only callers of the
// same key wait on each other.
func (s *Store) Update(_ context.Context, key triage.SessionKey, fn triage.UpdateFunc) (*triage.Draft, error) {
	unlock := s.lockKey(key)
	defer unlock()

	cur, ok := s.load(key)
	next, err := fn(cur, ok)
	if err != nil {
		return nil, err
	}
	stored := s.store(key, next)
	return stored.Clone(), nil
}

// load returns a copy of the live draft after purging expired entries.
func (s *Store) load(key triage.SessionKey) (*triage.Draft, bool) {
	s.mu.Lock()
	evicted := s.purgeLocked()
	d, ok := s.drafts[key]
	var cp *triage.Draft
	if ok {
		cp = d.Clone()
	}
	s.mu.Unlock()

	s.reportEvictions(evicted)
	return cp, ok
}

// store saves a copy of d, or deletes the key when d is nil, and returns the stored copy.
func (s *Store) store(key triage.SessionKey, d *triage.Draft) *triage.Draft {
	s.mu.Lock()
	evicted := s.purgeLocked()
	var cp *triage.Draft
	if d == nil {
		delete(s.drafts, key)
	} else {
		cp = d.Clone()
		cp.UpdatedAt = s.now()
		s.drafts[key] = cp
	}
	s.mu.Unlock()

	s.reportEvictions(evicted)
	return cp
}

func (s *Store) purgeLocked() int {
	now := s.now()
	n := 0
	for k, d := range s.drafts {
		if now.Sub(d.UpdatedAt) > s.ttl {
			delete(s.drafts, k)
			n++
		}
	}
	return n
}

func (s *Store) reportEvictions(n int) {
	if n > 0 && s.onEvict != nil {
		s.onEvict(n)
	}
}

// lockKey serializes access to one key. Lock entries are reference counted
// and removed once nobody holds or waits on them.
func (s *Store) lockKey(key triage.SessionKey) func() {
	s.mu.Lock()
	l, ok := s.locks[key]
	if !ok {
		l = &keyLock{}
		s.locks[key] = l
	}
	l.refs++
	s.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		s.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(s.locks, key)
		}
		s.mu.Unlock()
	}
}
