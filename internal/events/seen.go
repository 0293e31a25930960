package events

import (
	"container/ring"
	"sync"
)

// seenSet remembers the last n event ids
type seenSet struct {
	sync.Mutex
	ring *ring.Ring
	ids  map[string]*ring.Ring
}

func newSeenSet(n int) *seenSet {
	if n < 1 {
		n = 1
	}
	return &seenSet{
		ring: ring.New(n),
		ids:  make(map[string]*ring.Ring, n),
	}
}

// addIfAbsent records id and reports whether it was new
func (s *seenSet) addIfAbsent(id string) bool {
	s.Lock()
	defer s.Unlock()
	if _, ok := s.ids[id]; ok {
		return false
	}
	if old, ok := s.ring.Value.(string); ok {
		delete(s.ids, old) // Oldest id falls out
	}
	s.ring.Value = id
	s.ids[id] = s.ring
	s.ring = s.ring.Next()
	return true
}
