// Package router is the single outbound path from the core to the
// presentation layer.
package router

import (
	"context"

	"github.com/moroshma/jstail/internal/domain/entity"
	"github.com/moroshma/jstail/pkg/logger"
)

// DefaultBuffer is the event queue length used when none is configured.
const DefaultBuffer = 1024

// Recorder observes routed events. internal/metrics implements it.
type Recorder interface {
	ObserveEvent(ev entity.Event)
	ObserveDroppedEvent(kind entity.EventKind)
}

// Sink receives routed events.
type Sink interface {
	Deliver(ev entity.Event)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ev entity.Event)

// Deliver implements Sink
func (f SinkFunc) Deliver(ev entity.Event) { f(ev) }

// Router queues events for the presentation layer.
type Router struct {
	out      chan entity.Event
	recorder Recorder
	logger   *logger.Logger
}

// New creates a router with a bounded queue. rec may be nil.
func New(buffer int, rec Recorder, log *logger.Logger) *Router {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	return &Router{
		out:      make(chan entity.Event, buffer),
		recorder: rec,
		logger:   log.Named("router"),
	}
}

// Emit queues ev. It blocks while the queue is full and gives up when ctx
// ends, reporting whether the event was queued.
func (r *Router) Emit(ctx context.Context, ev entity.Event) bool {
	select {
	case r.out <- ev:
		if r.recorder != nil {
			r.recorder.ObserveEvent(ev)
		}
		return true
	case <-ctx.Done():
		if r.recorder != nil {
			r.recorder.ObserveDroppedEvent(ev.Kind())
		}
		r.logger.Debug("Event dropped", logger.String("kind", string(ev.Kind())))
		return false
	}
}

// Events exposes the queue for a single reader. Use Drain for fan-out.
func (r *Router) Events() <-chan entity.Event {
	return r.out
}

// Drain hands every event to each sink in order until ctx ends.
func (r *Router) Drain(ctx context.Context, sinks ...Sink) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev := <-r.out:
			for _, s := range sinks {
				s.Deliver(ev)
			}
		}
	}
}
