package session

import (
	"context"
	"sync"

	"campusbus-backend/internal/broadcast"
	"campusbus-backend/internal/models"
)

// Emission is one value observed on a vehicle key. Report is nil when the key is
// absent or its payload is malformed, meaning there is no active broadcaster.
type Emission struct {
	Report *models.PositionReport
}

// ReportStream is a lazy, unbounded sequence of emissions for one broadcast key.
// It cannot be restarted once closed.
type ReportStream struct {
	sub broadcast.Subscription

	mu     sync.Mutex
	queue  []Emission
	closed bool
	wake   chan struct{}
	done   chan struct{}
}

// OpenReportStream subscribes to key. The first emission is the current value.
func OpenReportStream(ctx context.Context, svc broadcast.Subscriber, key string) (*ReportStream, error) {
	s := &ReportStream{
		wake: make(chan struct{}, 1),
		done: make(chan struct{}),
	}

	sub, err := svc.Subscribe(ctx, key, s.receive)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.sub = sub
	closed := s.closed
	s.mu.Unlock()
	if closed {
		sub.Unsubscribe()
	}
	return s, nil
}

// Next blocks until the next emission, ctx is done, or the stream is closed
func (s *ReportStream) Next(ctx context.Context) (Emission, error) {
	for {
		s.mu.Lock()
		if s.closed {
			s.mu.Unlock()
			return Emission{}, ErrStreamClosed
		}
		if len(s.queue) > 0 {
			e := s.queue[0]
			s.queue = s.queue[1:]
			s.mu.Unlock()
			return e, nil
		}
		s.mu.Unlock()

		select {
		case <-s.wake:
		case <-s.done:
			return Emission{}, ErrStreamClosed
		case <-ctx.Done():
			return Emission{}, ctx.Err()
		}
	}
}

// Close detaches from the broadcast key. Later Next calls return ErrStreamClosed.
func (s *ReportStream) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.queue = nil
	sub := s.sub
	s.mu.Unlock()

	close(s.done)
	if sub != nil {
		sub.Unsubscribe()
	}
}

func (s *ReportStream) receive(snap broadcast.Snapshot) {
	var e Emission
	if snap.Exists() {
		if r, ok := models.ParsePositionReport(snap.Value); ok {
			e.Report = r
		}
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.queue = append(s.queue, e)
	s.mu.Unlock()

	select {
	case s.wake <- struct{}{}:
	default:
	}
}
