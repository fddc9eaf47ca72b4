package tle

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

// ErrNoElements is returned when no element set applies to a query.
var ErrNoElements = errors.New("tle: no element set")

// Store holds the current Dataset. Reads are lock-free; replacements through
// Update are serialized so concurrent refreshes never lose entries.
type Store struct {
	current atomic.Pointer[Dataset]
	update  sync.Mutex
}

func NewStore() *Store {
	return &Store{}
}

// Get returns the current dataset, or nil before the first load.
func (s *Store) Get() *Dataset {
	return s.current.Load()
}

// Set replaces the current dataset unconditionally.
func (s *Store) Set(ds *Dataset) {
	s.current.Store(ds)
}

// Update calls fn with the current dataset (possibly nil) and installs the
// dataset it returns. Updates run one at a time. When fn fails, or returns
// nil, the store is left unchanged.
func (s *Store) Update(fn func(cur *Dataset) (*Dataset, error)) error {
	s.update.Lock()
	defer s.update.Unlock()

	next, err := fn(s.current.Load())
	if err != nil {
		return err
	}
	if next != nil {
		s.current.Store(next)
	}
	return nil
}

// AgeSeconds reports how long ago the current dataset was fetched, or -1
// when nothing is loaded.
func (s *Store) AgeSeconds() float64 {
	if ds := s.current.Load(); ds != nil {
		return time.Since(ds.FetchedAt).Seconds()
	}
	return -1
}

// Select returns the element set for noradID with the newest epoch not after
// t. A noradID of 0 matches any satellite. Among equal epochs the entry that
// appears last in the dataset wins.
func (s *Store) Select(noradID int, t time.Time) (Entry, error) {
	ds := s.current.Load()
	if ds == nil {
		return Entry{}, fmt.Errorf("select %d at %s: no dataset loaded: %w", noradID, t.Format(time.RFC3339), ErrNoElements)
	}

	best := -1
	for i, e := range ds.Entries {
		if (noradID != 0 && e.NORADID != noradID) || e.Epoch.After(t) {
			continue
		}
		if best < 0 || !e.Epoch.Before(ds.Entries[best].Epoch) {
			best = i
		}
	}
	if best < 0 {
		return Entry{}, fmt.Errorf("select %d at %s: %w", noradID, t.Format(time.RFC3339), ErrNoElements)
	}
	return ds.Entries[best], nil
}
