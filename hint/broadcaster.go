/*
Copyright (c) 2025 Diagrid Inc.
Licensed under the MIT License.
*/

package hint

import (
	"sync"

	"github.com/diagridio/go-async-scheduler/api"
)

// Broadcaster is a multicast stream of hints. Every subscription receives
// every hint published while it is open. Hints published with no open
// subscriptions are dropped.
// Each subscription buffers a single pending hint. Publishing onto a
// subscription whose pending hint has not yet been consumed replaces it, so a
// slow subscriber only ever sees the most recent hint.
type Broadcaster[H any] struct {
	lock   sync.Mutex
	subs   map[*subscription[H]]struct{}
	closed bool
}

type subscription[H any] struct {
	b  *Broadcaster[H]
	ch chan H
}

func New[H any]() *Broadcaster[H] {
	return &Broadcaster[H]{
		subs: make(map[*subscription[H]]struct{}),
	}
}

// Subscribe opens a new subscription. Subscribing to a closed broadcaster
// returns a subscription whose channel is already closed.
func (b *Broadcaster[H]) Subscribe() api.Subscription[H] {
	b.lock.Lock()
	defer b.lock.Unlock()

	sub := &subscription[H]{
		b:  b,
		ch: make(chan H, 1),
	}

	if b.closed {
		close(sub.ch)
		return sub
	}

	b.subs[sub] = struct{}{}
	return sub
}

// Publish delivers the hint to every open subscription. Never blocks.
func (b *Broadcaster[H]) Publish(hint H) {
	b.lock.Lock()
	defer b.lock.Unlock()

	for sub := range b.subs {
		select {
		case sub.ch <- hint:
			continue
		default:
		}

		// Replace the stale pending hint.
		select {
		case <-sub.ch:
		default:
		}
		select {
		case sub.ch <- hint:
		default:
		}
	}
}

// Subscribers returns the number of open subscriptions.
func (b *Broadcaster[H]) Subscribers() int {
	b.lock.Lock()
	defer b.lock.Unlock()
	return len(b.subs)
}

// Close closes every open subscription. Any subsequent subscription is
// closed on creation and published hints are dropped.
func (b *Broadcaster[H]) Close() {
	b.lock.Lock()
	defer b.lock.Unlock()

	if b.closed {
		return
	}
	b.closed = true

	for sub := range b.subs {
		close(sub.ch)
	}
	clear(b.subs)
}

func (s *subscription[H]) C() <-chan H {
	return s.ch
}

func (s *subscription[H]) Close() {
	s.b.lock.Lock()
	defer s.b.lock.Unlock()

	if _, ok := s.b.subs[s]; !ok {
		return
	}
	delete(s.b.subs, s)
	close(s.ch)
}
