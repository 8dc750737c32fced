// Package keylock serializes work per key within one process.
package keylock

import (
	"context"
	"fmt"
	"sync"
)

type slot struct {
	ch   chan struct{}
	refs int
}

// Map hands out one mutex per key. Idle keys are dropped once their last
// holder or waiter releases.
type Map struct {
	mu    sync.Mutex
	slots map[string]*slot
}

func New() *Map {
	return &Map{slots: make(map[string]*slot)}
}

// Lock blocks until key is held or ctx is done. The returned func releases
// the key and must be called exactly once.
func (m *Map) Lock(ctx context.Context, key string) (func(), error) {
	m.mu.Lock()
	s, ok := m.slots[key]
	if !ok {
		s = &slot{ch: make(chan struct{}, 1)}
		m.slots[key] = s
	}
	s.refs++
	m.mu.Unlock()

	select {
	case s.ch <- struct{}{}:
	case <-ctx.Done():
		m.drop(key, s)
		return nil, ctx.Err()
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-s.ch
			m.drop(key, s)
		})
	}, nil
}

func (m *Map) drop(key string, s *slot) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s.refs--
	if s.refs == 0 {
		delete(m.slots, key)
	}
}

// Len reports how many keys are currently held or awaited.
func (m *Map) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.slots)
}

func AssignmentKey(id int64) string {
	return fmt.Sprintf("assignment:%d", id)
}

func AccountKey(userID, familyID int64) string {
	return fmt.Sprintf("account:%d:%d", familyID, userID)
}
