// Package memstore provides an in-memory implementation of evidence.Store.
package memstore

import (
	"context"
	"sort"
	"sync"

	"github.com/linnemanlabs/ksiwatch/internal/evidence"
)

type entry struct {
	doc     []byte
	version int64
}

// Store holds category documents in memory. Suitable for dev/testing.
type Store struct {
	mu   sync.RWMutex
	docs map[string]entry // category -> document
}

// New initializes a new in-memory Store.
func New() *Store {
	return &Store{docs: make(map[string]entry)}
}

// Load returns a copy of the category document and its version.
func (s *Store) Load(_ context.Context, category string) ([]byte, int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.docs[category]
	if !ok {
		return nil, 0, nil
	}
	return append([]byte(nil), e.doc...), e.version, nil
}

// Save stores a copy of doc if the stored version still matches.
func (s *Store) Save(_ context.Context, category string, expectVersion int64, doc []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.docs[category].version != expectVersion {
		return evidence.ErrVersionConflict
	}
	s.docs[category] = entry{doc: append([]byte(nil), doc...), version: expectVersion + 1}
	return nil
}

// Categories lists stored categories in sorted order.
func (s *Store) Categories(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.docs))
	for c := range s.docs {
		out = append(out, c)
	}
	sort.Strings(out)
	return out, nil
}
