package broadcast

import "sync"

// Dispatcher delivers values to a callback on its own goroutine in the order they were pushed.
// Push never blocks, so it is safe to call while holding locks.
type Dispatcher[T any] struct {
	fn     func(T)
	mu     sync.Mutex
	queue  []T
	closed bool
	wake   chan struct{}
	done   chan struct{}
	exited chan struct{}
}

// NewDispatcher starts a dispatcher calling fn for every pushed value
func NewDispatcher[T any](fn func(T)) *Dispatcher[T] {
	d := &Dispatcher[T]{
		fn:     fn,
		wake:   make(chan struct{}, 1),
		done:   make(chan struct{}),
		exited: make(chan struct{}),
	}
	go d.run()
	return d
}

// Push queues v for delivery. Values pushed after Stop are dropped.
func (d *Dispatcher[T]) Push(v T) {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.queue = append(d.queue, v)
	d.mu.Unlock()

	select {
	case d.wake <- struct{}{}:
	default:
	}
}

// Stop drops anything still queued. A callback already running is not interrupted.
func (d *Dispatcher[T]) Stop() {
	d.mu.Lock()
	wasClosed := d.closed
	d.closed = true
	d.queue = nil
	d.mu.Unlock()
	if !wasClosed {
		close(d.done)
	}
}

// Drain stops accepting values and returns a channel closed once everything queued was delivered
func (d *Dispatcher[T]) Drain() <-chan struct{} {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		d.mu.Unlock()
		close(d.done)
	} else {
		d.mu.Unlock()
	}
	return d.exited
}

func (d *Dispatcher[T]) run() {
	defer close(d.exited)
	for {
		for {
			d.mu.Lock()
			if len(d.queue) == 0 {
				d.mu.Unlock()
				break
			}
			v := d.queue[0]
			d.queue = d.queue[1:]
			d.mu.Unlock()
			d.fn(v)
		}

		select {
		case <-d.wake:
		case <-d.done:
			d.mu.Lock()
			remaining := len(d.queue)
			d.mu.Unlock()
			if remaining == 0 {
				return
			}
		}
	}
}
