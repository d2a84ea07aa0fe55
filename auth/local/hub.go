package local

import (
	"sync"

	"github.com/sigea-app/sigea/auth"
)

// hub fans auth events out to the subscribers of each visitor. Sequence
// numbers are assigned under the hub lock, and each subscriber is drained by
// its own goroutine, so every listener sees its changes in sequence order and
// a slow listener never blocks a publisher.
type hub struct {
	mu     sync.Mutex
	seq    uint64
	nextID uint64
	subs   map[string]map[uint64]*subscriber
}

type subscriber struct {
	mu     sync.Mutex
	queue  []auth.Change
	closed bool
	wake   chan struct{}
}

func newHub() *hub {
	return &hub{
		subs: make(map[string]map[uint64]*subscriber),
	}
}

// subscribe registers fn for visitorID and delivers INITIAL_SESSION with the
// session returned by current. The INITIAL_SESSION sequence number is taken
// when the subscriber is registered and current runs after the hub lock is
// released, so a slow session read holds up only this subscriber. Any change
// published meanwhile carries a higher sequence and is delivered after it.
func (h *hub) subscribe(visitorID string, current func() *auth.Session, fn auth.Listener) func() {
	sub := &subscriber{wake: make(chan struct{}, 1)}

	h.mu.Lock()
	h.nextID++
	id := h.nextID
	if h.subs[visitorID] == nil {
		h.subs[visitorID] = make(map[uint64]*subscriber)
	}
	h.subs[visitorID][id] = sub
	h.seq++
	initial := h.seq
	h.mu.Unlock()

	sub.prepend(auth.Change{Seq: initial, Event: auth.EventInitialSession, Session: current()})
	go sub.run(fn)

	var once sync.Once
	return func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs[visitorID], id)
			if len(h.subs[visitorID]) == 0 {
				delete(h.subs, visitorID)
			}
			h.mu.Unlock()
			sub.close()
		})
	}
}

func (h *hub) publish(visitorID string, event auth.Event, session *auth.Session) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.seq++
	change := auth.Change{Seq: h.seq, Event: event, Session: session}
	for _, sub := range h.subs[visitorID] {
		sub.push(change)
	}
}

func (h *hub) subscribers(visitorID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs[visitorID])
}

func (s *subscriber) push(change auth.Change) {
	s.mu.Lock()
	if !s.closed {
		s.queue = append(s.queue, change)
	}
	s.mu.Unlock()

	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// prepend queues change ahead of anything already queued.
func (s *subscriber) prepend(change auth.Change) {
	s.mu.Lock()
	if !s.closed {
		s.queue = append([]auth.Change{change}, s.queue...)
	}
	s.mu.Unlock()

	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *subscriber) close() {
	s.mu.Lock()
	s.closed = true
	s.queue = nil
	s.mu.Unlock()

	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *subscriber) run(fn auth.Listener) {
	for range s.wake {
		for {
			s.mu.Lock()
			if s.closed {
				s.mu.Unlock()
				return
			}
			if len(s.queue) == 0 {
				s.mu.Unlock()
				break
			}
			change := s.queue[0]
			s.queue = s.queue[1:]
			s.mu.Unlock()

			fn(change)
		}
	}
}
