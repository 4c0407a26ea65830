package store

import "sync"

// EventType is the type of a subscription event.
type EventType uint8

// Event types.
const (
	EventAdded EventType = iota + 1
	EventRemoved
	EventUpdated
)

func (t EventType) String() string {
	switch t {
	case EventAdded:
		return "added"
	case EventRemoved:
		return "removed"
	case EventUpdated:
		return "updated"
	default:
		return "unknown"
	}
}

// Event is a committed change of an entity.
type Event struct {
	Type   EventType
	ID     uint64
	Entity Entity
}

// Subscription is a feed of committed changes. Events are dropped if the
// feed is full.
type Subscription struct {
	store  *Store
	filter Filter
	Feed   chan Event

	cancelOnce sync.Once
}

// Subscribe subscribes to committed changes of entities matching the filter.
func (s *Store) Subscribe(f Filter) *Subscription {
	sub := &Subscription{
		store:  s,
		filter: f,
		Feed:   make(chan Event, s.opts.NotificationBuffer),
	}

	s.subsLock.Lock()
	defer s.subsLock.Unlock()

	s.subs = append(s.subs, sub)
	return sub
}

// Cancel cancels the subscription and closes the feed. Feeds of a closed
// store were already closed by Close.
func (sub *Subscription) Cancel() {
	sub.cancelOnce.Do(func() {
		s := sub.store
		s.subsLock.Lock()
		defer s.subsLock.Unlock()

		for i, existing := range s.subs {
			if existing == sub {
				s.subs = append(s.subs[:i], s.subs[i+1:]...)
				close(sub.Feed)
				return
			}
		}
	})
}

func (s *Store) publish(t EventType, e Entity, id uint64) {
	s.subsLock.RLock()
	defer s.subsLock.RUnlock()

	for _, sub := range s.subs {
		ok, err := matches(sub.filter, e)
		if err != nil || !ok {
			continue
		}
		select {
		case sub.Feed <- Event{Type: t, ID: id, Entity: e}:
		default:
		}
	}
}
