package broadcast

import (
	"context"
	"encoding/json"
	"log"
	"time"
)

// mirrorTimeout bounds a single mirror write
const mirrorTimeout = 10 * time.Second

// Mirror receives a copy of every store write, e.g. to persist it or fan it out
// to another realtime system. Failures are logged and never reach publishers.
type Mirror interface {
	Name() string
	MirrorPut(ctx context.Context, key string, value json.RawMessage) error
	MirrorDelete(ctx context.Context, key string) error
}

type mirrorEvent struct {
	key     string
	value   json.RawMessage
	deleted bool
}

// mirrorPump feeds one mirror from its own goroutine so a slow backend
// never blocks the store, while keeping writes in order.
type mirrorPump struct {
	mirror Mirror
	queue  *Dispatcher[mirrorEvent]
}

func newMirrorPump(m Mirror) *mirrorPump {
	p := &mirrorPump{mirror: m}
	p.queue = NewDispatcher(p.apply)
	return p
}

func (p *mirrorPump) push(ev mirrorEvent) {
	p.queue.Push(ev)
}

func (p *mirrorPump) apply(ev mirrorEvent) {
	ctx, cancel := context.WithTimeout(context.Background(), mirrorTimeout)
	defer cancel()

	var err error
	if ev.deleted {
		err = p.mirror.MirrorDelete(ctx, ev.key)
	} else {
		err = p.mirror.MirrorPut(ctx, ev.key, ev.value)
	}
	if err != nil {
		log.Printf("⚠️  [MIRROR %s] Failed to mirror %s: %v", p.mirror.Name(), ev.key, err)
	}
}

func (p *mirrorPump) close(ctx context.Context) {
	select {
	case <-p.queue.Drain():
	case <-ctx.Done():
		log.Printf("⚠️  [MIRROR %s] Shutdown before queue drained", p.mirror.Name())
		p.queue.Stop()
	}
}
