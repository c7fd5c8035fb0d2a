package session

import (
	"sync"

	"github.com/user/chatbridge/pkg/stream"
)

type subscriber struct {
	ch   chan stream.Event
	done chan struct{}
	once sync.Once

	mu     sync.Mutex
	closed bool
}

// Subscribe returns a channel receiving every committed event of every turn,
// in commit order, and a function that ends the subscription and closes the
// channel. Delivery blocks the turn until the event is received, the
// subscription ends or the turn is cancelled.
func (c *Controller) Subscribe() (<-chan stream.Event, func()) {
	sub := &subscriber{
		ch:   make(chan stream.Event, 16),
		done: make(chan struct{}),
	}

	c.mu.Lock()
	id := c.nextSub
	c.nextSub++
	c.subs[id] = sub
	c.mu.Unlock()

	return sub.ch, func() {
		sub.once.Do(func() {
			close(sub.done)
			c.mu.Lock()
			delete(c.subs, id)
			c.mu.Unlock()

			sub.mu.Lock()
			sub.closed = true
			close(sub.ch)
			sub.mu.Unlock()
		})
	}
}

func (c *Controller) publish(turn *Turn, ev stream.Event) {
	c.mu.Lock()
	subs := make([]*subscriber, 0, len(c.subs))
	for _, s := range c.subs {
		subs = append(subs, s)
	}
	c.mu.Unlock()

	for _, s := range subs {
		s.send(turn, ev)
	}
}

func (s *subscriber) send(turn *Turn, ev stream.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	select {
	case s.ch <- ev:
	case <-s.done:
	case <-turn.ctx.Done():
	}
}
