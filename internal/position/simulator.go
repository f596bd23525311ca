package position

import (
	"errors"
	"sync"
	"time"

	"campusbus-backend/internal/geo"
)

// Simulator replays a route as a moving device. It walks the path by linear
// interpolation, StepsPerLeg fixes per leg, and loops at the end.
type Simulator struct {
	path        []geo.Coordinate
	interval    time.Duration
	StepsPerLeg int

	mu     sync.Mutex
	paused bool
	denied bool
}

// NewSimulator creates a simulator producing one fix every interval
func NewSimulator(path []geo.Coordinate, interval time.Duration) *Simulator {
	return &Simulator{
		path:        append([]geo.Coordinate(nil), path...),
		interval:    interval,
		StepsPerLeg: 10,
	}
}

// Pause stops producing fixes, so the watch eventually times out
func (s *Simulator) Pause() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.paused = true
}

// Resume continues producing fixes
func (s *Simulator) Resume() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.paused = false
}

// DenyPermission makes running and future watches fail with ErrPermissionDenied
func (s *Simulator) DenyPermission() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.denied = true
}

func (s *Simulator) state() (paused, denied bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.paused, s.denied
}

// Watch starts emitting fixes on a background goroutine
func (s *Simulator) Watch(onFix func(Fix), onError func(error), opts WatchOptions) (Watch, error) {
	if len(s.path) == 0 {
		return nil, errors.New("position: simulator has an empty path")
	}
	if s.interval <= 0 {
		return nil, errors.New("position: simulator interval must be positive")
	}

	w := &simWatch{stop: make(chan struct{})}
	go s.run(w, onFix, onError, opts)
	return w, nil
}

func (s *Simulator) run(w *simWatch, onFix func(Fix), onError func(error), opts WatchOptions) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultFixTimeout
	}
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()

	steps := s.StepsPerLeg
	if steps < 1 {
		steps = 1
	}
	step := 0

	for {
		select {
		case <-w.stop:
			return

		case <-deadline.C:
			if w.cancelled() {
				return
			}
			onError(ErrTimeout)
			deadline.Reset(timeout)

		case now := <-ticker.C:
			paused, denied := s.state()
			if w.cancelled() {
				return
			}
			if denied {
				onError(ErrPermissionDenied)
				return
			}
			if paused {
				continue
			}

			onFix(Fix{Coordinate: s.pointAt(step, steps), Accuracy: 5, At: now})
			step++

			if !deadline.Stop() {
				select {
				case <-deadline.C:
				default:
				}
			}
			deadline.Reset(timeout)
		}
	}
}

func (s *Simulator) pointAt(step, steps int) geo.Coordinate {
	if len(s.path) == 1 {
		return s.path[0]
	}
	legs := len(s.path)
	leg := (step / steps) % legs
	frac := float64(step%steps) / float64(steps)
	from := s.path[leg]
	to := s.path[(leg+1)%legs]
	return geo.Interpolate(from, to, frac)
}

type simWatch struct {
	once sync.Once
	stop chan struct{}
}

func (w *simWatch) Cancel() {
	w.once.Do(func() { close(w.stop) })
}

func (w *simWatch) cancelled() bool {
	select {
	case <-w.stop:
		return true
	default:
		return false
	}
}
