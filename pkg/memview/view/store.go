package view

import "github.com/go-memview/memview/pkg/memview/viewmode"

// Persisted is the navigation state remembered for a view across remounts:
// where it was looking and in which representation.
type Persisted struct {
	BaseAddr uint64
	Mode     viewmode.Mode
}

// Store persists per-view navigation state for the lifetime of the process.
// Implementations are not required to be goroutine safe: all view operations
// run on a single logical thread of control.
type Store interface {
	Get(key string) (Persisted, bool)
	Set(key string, st Persisted)
}

// StateKey builds the store key for a (session, view) pair.
func StateKey(sessionID, viewID string) string {
	return sessionID + ":" + viewID
}

// MapStore is the process-wide Store implementation. Entries are replaced,
// never deleted; the session count is small and bounded by user action.
type MapStore struct {
	m map[string]Persisted
}

// NewMapStore returns an empty MapStore.
func NewMapStore() *MapStore {
	return &MapStore{m: make(map[string]Persisted)}
}

func (s *MapStore) Get(key string) (Persisted, bool) {
	st, ok := s.m[key]
	return st, ok
}

func (s *MapStore) Set(key string, st Persisted) {
	s.m[key] = st
}
