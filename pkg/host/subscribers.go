package host

import (
	"sort"
	"sync"
)

// Subscribers is a reusable ErrorLog implementation.
type Subscribers struct {
	mu     sync.Mutex
	nextID int
	fns    map[int]func(LogEvent)
}

// Subscribe implements ErrorLog.
func (s *Subscribers) Subscribe(fn func(LogEvent)) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fns == nil {
		s.fns = make(map[int]func(LogEvent))
	}
	id := s.nextID
	s.nextID++
	s.fns[id] = fn

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.fns, id)
			s.mu.Unlock()
		})
	}
}

// Publish delivers ev to every current subscriber in subscription order.
func (s *Subscribers) Publish(ev LogEvent) {
	s.mu.Lock()
	ids := make([]int, 0, len(s.fns))
	for id := range s.fns {
		ids = append(ids, id)
	}
	fns := make([]func(LogEvent), 0, len(ids))
	sort.Ints(ids)
	for _, id := range ids {
		fns = append(fns, s.fns[id])
	}
	s.mu.Unlock()

	for _, fn := range fns {
		fn(ev)
	}
}

// Len returns the number of live subscriptions.
func (s *Subscribers) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.fns)
}
