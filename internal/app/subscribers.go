package app

import (
	"cmp"
	"polysentry/clients/notifier"
	"slices"
	"sync"

	"github.com/samber/lo"
)

// SubscriberRegistry is the set of destinations that receive alerts.
// It is in-memory only.
type SubscriberRegistry struct {
	mu   sync.RWMutex
	dest map[notifier.Destination]struct{}
}

func NewSubscriberRegistry() *SubscriberRegistry {
	return &SubscriberRegistry{dest: make(map[notifier.Destination]struct{})}
}

// Subscribe adds d. Returns false if it was already present.
func (s *SubscriberRegistry) Subscribe(d notifier.Destination) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.dest[d]; ok {
		return false
	}
	s.dest[d] = struct{}{}
	return true
}

// Unsubscribe removes d. Returns false if it was not present.
func (s *SubscriberRegistry) Unsubscribe(d notifier.Destination) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.dest[d]; !ok {
		return false
	}
	delete(s.dest, d)
	return true
}

// Contains reports whether d is subscribed.
func (s *SubscriberRegistry) Contains(d notifier.Destination) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.dest[d]
	return ok
}

// Snapshot returns a sorted copy of the current subscribers, safe to iterate
// while commands mutate the registry.
func (s *SubscriberRegistry) Snapshot() []notifier.Destination {
	s.mu.RLock()
	out := lo.Keys(s.dest)
	s.mu.RUnlock()

	slices.SortFunc(out, func(a, b notifier.Destination) int {
		return cmp.Or(cmp.Compare(a.Channel, b.Channel), cmp.Compare(a.ChatID, b.ChatID))
	})
	return out
}

// Len returns the number of subscribers.
func (s *SubscriberRegistry) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.dest)
}
