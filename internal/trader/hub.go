package trader

import "sync"

// Subscription receives published values until it is unsubscribed.
type Subscription[T any] struct {
	out   chan T
	wake  chan struct{}
	done  chan struct{}
	limit int

	mu    sync.Mutex
	queue []T
}

// C returns the receive channel. It is closed on unsubscribe.
func (s *Subscription[T]) C() <-chan T {
	return s.out
}

// push queues value for delivery. Once limit values are pending, the oldest
// droppable one makes room; if none is pending a droppable value is itself
// discarded. Values that are not droppable are always queued.
func (s *Subscription[T]) push(value T, droppable func(T) bool) {
	s.mu.Lock()
	if len(s.queue) >= s.limit && droppable(value) {
		i := 0
		for i < len(s.queue) && !droppable(s.queue[i]) {
			i++
		}
		if i == len(s.queue) {
			s.mu.Unlock()
			return
		}
		s.queue = append(s.queue[:i], s.queue[i+1:]...)
	}
	s.queue = append(s.queue, value)
	s.mu.Unlock()

	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *Subscription[T]) pop() (T, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var zero T
	if len(s.queue) == 0 {
		return zero, false
	}
	v := s.queue[0]
	s.queue[0] = zero
	s.queue = s.queue[1:]
	return v, true
}

// pump moves queued values to the receive channel in order.
func (s *Subscription[T]) pump() {
	defer close(s.out)
	for {
		v, ok := s.pop()
		if !ok {
			select {
			case <-s.wake:
				continue
			case <-s.done:
				return
			}
		}
		select {
		case s.out <- v:
		case <-s.done:
			return
		}
	}
}

// Hub fans values out to any number of subscribers.
type Hub[T any] struct {
	mu        sync.Mutex
	subs      map[*Subscription[T]]struct{}
	droppable func(T) bool
}

// NewHub creates a hub. droppable marks values a slow subscriber may lose
// when its buffer is full; nil makes every value droppable.
func NewHub[T any](droppable func(T) bool) *Hub[T] {
	if droppable == nil {
		droppable = func(T) bool { return true }
	}
	return &Hub[T]{subs: make(map[*Subscription[T]]struct{}), droppable: droppable}
}

func (h *Hub[T]) Subscribe(buffer int) *Subscription[T] {
	sub := &Subscription[T]{
		out:   make(chan T),
		wake:  make(chan struct{}, 1),
		done:  make(chan struct{}),
		limit: max(1, buffer),
	}
	h.mu.Lock()
	h.subs[sub] = struct{}{}
	h.mu.Unlock()
	go sub.pump()
	return sub
}

// Subscribers returns the number of live subscriptions.
func (h *Hub[T]) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

func (h *Hub[T]) Unsubscribe(sub *Subscription[T]) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.subs[sub]; !ok {
		return
	}
	delete(h.subs, sub)
	close(sub.done)
}

// Broadcast never blocks. Values reach each subscriber in broadcast order,
// minus droppable values coalesced away while that subscriber lagged.
func (h *Hub[T]) Broadcast(value T) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for sub := range h.subs {
		sub.push(value, h.droppable)
	}
}
