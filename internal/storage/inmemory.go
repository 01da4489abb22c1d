// Package storage provides an in-memory object store keyed by object id.
// It backs thin-pack base resolution in tests and small deployments.
package storage

import (
	"sync"

	"github.com/zhleyai/git/protocol"
	"github.com/zhleyai/git/protocol/hash"
)

// InMemoryStorage stores packfile objects in a map. It is safe for
// concurrent use.
type InMemoryStorage struct {
	mu      sync.RWMutex
	objects map[string]*protocol.PackfileObject
}

func NewInMemoryStorage() *InMemoryStorage {
	return &InMemoryStorage{objects: make(map[string]*protocol.PackfileObject)}
}

func (s *InMemoryStorage) Get(key hash.Hash) (*protocol.PackfileObject, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	obj, ok := s.objects[key.String()]
	return obj, ok
}

func (s *InMemoryStorage) GetAllKeys() []hash.Hash {
	s.mu.RLock()
	defer s.mu.RUnlock()

	keys := make([]hash.Hash, 0, len(s.objects))
	for key := range s.objects {
		keys = append(keys, hash.MustFromHex(key))
	}

	return keys
}

func (s *InMemoryStorage) Add(objs ...*protocol.PackfileObject) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, obj := range objs {
		s.objects[obj.Hash.String()] = obj
	}
}

func (s *InMemoryStorage) Delete(key hash.Hash) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.objects, key.String())
}

func (s *InMemoryStorage) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.objects)
}
