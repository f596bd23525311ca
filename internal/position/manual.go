package position

import (
	"errors"
	"sync"
	"time"

	"campusbus-backend/internal/geo"
)

// Manual is a Source driven by hand. Useful for tests and replay tools.
type Manual struct {
	mu       sync.Mutex
	onFix    func(Fix)
	onError  func(error)
	opts     WatchOptions
	watching bool
	watches  int
	cancels  int
	failWith error
}

// NewManual creates an idle manual source
func NewManual() *Manual {
	return &Manual{}
}

// FailWatch makes the next Watch call return err
func (m *Manual) FailWatch(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failWith = err
}

func (m *Manual) Watch(onFix func(Fix), onError func(error), opts WatchOptions) (Watch, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		err := m.failWith
		m.failWith = nil
		return nil, err
	}
	if m.watching {
		return nil, errors.New("position: manual source already watched")
	}
	m.onFix, m.onError, m.opts = onFix, onError, opts
	m.watching = true
	m.watches++
	return &manualWatch{m: m, gen: m.watches}, nil
}

// Emit delivers a fix synchronously. It reports false when nothing is watching.
func (m *Manual) Emit(c geo.Coordinate) bool {
	m.mu.Lock()
	fn := m.onFix
	active := m.watching
	m.mu.Unlock()
	if !active || fn == nil {
		return false
	}
	fn(Fix{Coordinate: c, At: time.Now()})
	return true
}

// Fail delivers an error synchronously. It reports false when nothing is watching.
func (m *Manual) Fail(err error) bool {
	m.mu.Lock()
	fn := m.onError
	active := m.watching
	m.mu.Unlock()
	if !active || fn == nil {
		return false
	}
	fn(err)
	return true
}

// Watching reports whether a watch is active
func (m *Manual) Watching() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.watching
}

// Watches returns how many watches were started
func (m *Manual) Watches() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.watches
}

// Cancels returns how many watches were cancelled
func (m *Manual) Cancels() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cancels
}

// Options returns the options of the latest watch
func (m *Manual) Options() WatchOptions {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.opts
}

type manualWatch struct {
	m    *Manual
	gen  int
	once sync.Once
}

func (w *manualWatch) Cancel() {
	w.once.Do(func() {
		w.m.mu.Lock()
		defer w.m.mu.Unlock()
		w.m.cancels++
		if w.m.watches == w.gen {
			w.m.watching = false
			w.m.onFix = nil
			w.m.onError = nil
		}
	})
}
