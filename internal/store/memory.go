package store

import "sync"

type memStore struct {
	mu     sync.RWMutex
	props  map[string]string
	closed bool
}

// NewMemory returns an empty in-process store.
func NewMemory() Store {
	return &memStore{props: map[string]string{}}
}

func (s *memStore) Get(key string) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return "", false, ErrClosed
	}
	v, ok := s.props[key]
	return v, ok, nil
}

func (s *memStore) Set(key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	s.props[key] = value
	return nil
}

func (s *memStore) SetMany(props map[string]string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	for k, v := range props {
		s.props[k] = v
	}
	return nil
}

func (s *memStore) RemovePrefix(prefix string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	removePrefixLocked(s.props, prefix)
	return nil
}

func (s *memStore) Keys(prefix string, exactLevel bool) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrClosed
	}
	return sortedKeys(s.props, prefix, exactLevel), nil
}

func (s *memStore) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}

func removePrefixLocked(m map[string]string, prefix string) int {
	n := 0
	for k := range m {
		if underPrefix(k, prefix) {
			delete(m, k)
			n++
		}
	}
	return n
}
