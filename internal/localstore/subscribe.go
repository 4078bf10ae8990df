package localstore

import (
	"sync"
)

// Change is one document mutation visible to subscribers.
type Change struct {
	Collection string
	Doc        any  // the typed document (models.Item, models.Household, models.User)
	Remote     bool // true when the change was applied by a pull
}

// Filter decides whether a subscriber receives a change.
type Filter func(Change) bool

// hub fans document changes out to live subscribers. Delivery is
// best-effort: a subscriber that stops draining its channel loses
// changes rather than blocking writers.
type hub struct {
	mu   sync.Mutex
	subs map[int]*subscriber
	next int
}

type subscriber struct {
	ch     chan Change
	filter Filter
}

const subscriberBuffer = 64

func newHub() *hub {
	return &hub{subs: make(map[int]*subscriber)}
}

// Subscribe registers a live query. Changes matching the filter (nil
// matches everything) are delivered on the returned channel until cancel
// is called. Reads are synchronous and never touch the network.
func (s *Store) Subscribe(filter Filter) (<-chan Change, func()) {
	s.hub.mu.Lock()
	defer s.hub.mu.Unlock()

	id := s.hub.next
	s.hub.next++

	sub := &subscriber{ch: make(chan Change, subscriberBuffer), filter: filter}
	s.hub.subs[id] = sub

	cancel := func() {
		s.hub.mu.Lock()
		defer s.hub.mu.Unlock()
		if cur, ok := s.hub.subs[id]; ok {
			delete(s.hub.subs, id)
			close(cur.ch)
		}
	}
	return sub.ch, cancel
}

func (s *Store) notify(collection string, doc any, remote bool) {
	ch := Change{Collection: collection, Doc: doc, Remote: remote}

	s.hub.mu.Lock()
	defer s.hub.mu.Unlock()
	for _, sub := range s.hub.subs {
		if sub.filter != nil && !sub.filter(ch) {
			continue
		}
		select {
		case sub.ch <- ch:
		default: // subscriber not draining
		}
	}
}

func (h *hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, sub := range h.subs {
		delete(h.subs, id)
		close(sub.ch)
	}
}
