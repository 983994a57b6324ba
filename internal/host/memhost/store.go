package memhost

import (
	"context"
	"slices"
	"sync"

	"github.com/zjrosen/tagsync/internal/host"
)

type storeKey struct {
	objectID string
	key      string
}

// Store is an in-memory host.Store.
type Store struct {
	mu      sync.RWMutex
	values  map[storeKey]string
	failErr error
	writes  int
}

var (
	_ host.Store        = (*Store)(nil)
	_ host.ObjectLister = (*Store)(nil)
)

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{values: make(map[storeKey]string)}
}

func (s *Store) Read(_ context.Context, objectID, key string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.values[storeKey{objectID, key}], nil
}

func (s *Store) Write(_ context.Context, writes ...host.Write) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failErr != nil {
		return s.failErr
	}
	for _, w := range writes {
		s.values[storeKey{w.ObjectID, w.Key}] = w.Value
	}
	s.writes++
	return nil
}

// FailWrites makes every following Write return err. A nil err restores normal writes.
func (s *Store) FailWrites(err error) {
	s.mu.Lock()
	s.failErr = err
	s.mu.Unlock()
}

// WriteCount reports how many Write calls succeeded.
func (s *Store) WriteCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.writes
}

// ObjectIDs returns the ids of objects holding a non-empty value for key, in id order.
func (s *Store) ObjectIDs(_ context.Context, key string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var ids []string
	for k, v := range s.values {
		if k.objectID != "" && k.key == key && v != "" {
			ids = append(ids, k.objectID)
		}
	}
	slices.Sort(ids)
	return ids, nil
}
