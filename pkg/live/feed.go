// Package live provides snapshot feeds: publishers push the full current
// state and every subscriber receives the latest snapshot on its own goroutine.
package live

import "sync"

// Feed fans snapshots out to subscribers
type Feed[T any] struct {
	mu      sync.Mutex
	subs    map[*Subscription[T]]struct{}
	latest  []T
	hasLast bool
}

// NewFeed creates an empty feed
func NewFeed[T any]() *Feed[T] {
	return &Feed[T]{subs: make(map[*Subscription[T]]struct{})}
}

// Subscription is a handle returned by Subscribe
type Subscription[T any] struct {
	feed     *Feed[T]
	callback func([]T)

	mu      sync.Mutex
	pending []T
	ready   bool
	closed  bool
	wake    chan struct{}
	done    chan struct{}
}

// Subscribe registers callback. If the feed already published, the latest
// snapshot is delivered first. Callbacks for one subscription never overlap
// and only the newest undelivered snapshot is kept.
func (f *Feed[T]) Subscribe(callback func([]T)) *Subscription[T] {
	sub := &Subscription[T]{
		feed:     f,
		callback: callback,
		wake:     make(chan struct{}, 1),
		done:     make(chan struct{}),
	}

	f.mu.Lock()
	f.subs[sub] = struct{}{}
	if f.hasLast {
		sub.offer(f.latest)
	}
	f.mu.Unlock()

	go sub.run()
	return sub
}

// Publish delivers a snapshot to every subscriber
func (f *Feed[T]) Publish(snapshot []T) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.latest = snapshot
	f.hasLast = true
	for sub := range f.subs {
		sub.offer(snapshot)
	}
}

// Latest returns the last published snapshot
func (f *Feed[T]) Latest() ([]T, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.latest, f.hasLast
}

// Len returns the number of active subscriptions
func (f *Feed[T]) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.subs)
}

// Close cancels every subscription
func (f *Feed[T]) Close() {
	f.mu.Lock()
	subs := make([]*Subscription[T], 0, len(f.subs))
	for sub := range f.subs {
		subs = append(subs, sub)
	}
	f.mu.Unlock()

	for _, sub := range subs {
		sub.Cancel()
	}
}

func (s *Subscription[T]) offer(snapshot []T) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.pending = snapshot
	s.ready = true
	select {
	case s.wake <- struct{}{}:
	default:
	}
	s.mu.Unlock()
}

func (s *Subscription[T]) run() {
	defer close(s.done)
	for range s.wake {
		s.mu.Lock()
		if s.closed {
			s.mu.Unlock()
			return
		}
		if !s.ready {
			s.mu.Unlock()
			continue
		}
		snapshot := s.pending
		s.pending = nil
		s.ready = false
		s.mu.Unlock()

		s.callback(snapshot)
	}
}

// Cancel stops delivery. It is safe to call more than once and from inside
// the callback.
func (s *Subscription[T]) Cancel() {
	s.feed.mu.Lock()
	delete(s.feed.subs, s)
	s.feed.mu.Unlock()

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.pending = nil
	close(s.wake)
	s.mu.Unlock()
}

// Done is closed once the delivery goroutine has exited
func (s *Subscription[T]) Done() <-chan struct{} {
	return s.done
}
