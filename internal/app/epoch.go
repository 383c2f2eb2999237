package app

import (
	"context"
	"fmt"

	"github.com/moroshma/jstail/internal/domain/entity"
	"github.com/moroshma/jstail/internal/link"
	"github.com/moroshma/jstail/internal/registry"
	"github.com/moroshma/jstail/internal/router"
	"github.com/moroshma/jstail/internal/usecase"
	"github.com/moroshma/jstail/pkg/logger"
)

// epoch is everything derived from one server address. It is discarded as
// a whole when the address changes.
type epoch struct {
	address string
	ctx     context.Context
	cancel  context.CancelFunc

	link       *link.Link
	consumers  *registry.Registry
	background *registry.Registry
	directory  *usecase.Directory
	session    *usecase.Session
	watcher    *usecase.AdvisoryWatcher
	traces     *usecase.TraceQuery

	queue  chan entity.Command
	events *router.Router
	logger *logger.Logger
}

func (w *Worker) newEpoch(parent context.Context, address string) *epoch {
	ctx, cancel := context.WithCancel(parent)
	log := w.logger.WithField("address", address)

	e := &epoch{
		address: address,
		ctx:     ctx,
		cancel:  cancel,
		queue:   make(chan entity.Command, w.opts.QueueSize),
		events:  w.events,
		logger:  log,
	}

	e.link = link.New(address, w.dial, link.Options{
		RetryDelay: w.opts.RetryDelay,
		Emit: func(ev entity.ConnectivityChangedEvent) {
			e.events.Emit(ctx, ev)
		},
	}, log)

	e.consumers = registry.New(ctx, log)
	if w.opts.OnConsumersChange != nil {
		e.consumers.OnChange(w.opts.OnConsumersChange)
	}
	e.background = registry.New(ctx, log)

	factory := usecase.NewConsumerFactory(e.link, e.consumers, w.opts.ConsumerDescription, log)
	e.directory = usecase.NewDirectory(e.link, w.opts.TraceStream, w.opts.ConsumerDescription, log)
	e.session = usecase.NewSession(factory, e.consumers, w.events, log)
	e.watcher = usecase.NewAdvisoryWatcher(e.link, e.background, e.directory, e.session, w.events, log)
	e.traces = usecase.NewTraceQuery(e.link, factory, e.consumers, w.events, usecase.TraceConfig{
		Stream:       w.opts.TraceStream,
		Root:         w.opts.TraceRoot,
		PollInterval: w.opts.PollInterval,
		Strict:       w.opts.StrictSubjects,
	}, log)

	return e
}

// start connects in the background and begins serving queued commands.
func (e *epoch) start() {
	go func() {
		if err := e.link.Connect(e.ctx); err != nil {
			return
		}
		if err := e.watcher.Watch(e.ctx); err != nil && e.ctx.Err() == nil {
			e.logger.Error("Failed to start advisory watcher", logger.Error(err))
		}
	}()
	go e.serve()
}

func (e *epoch) serve() {
	for {
		select {
		case <-e.ctx.Done():
			return
		case cmd := <-e.queue:
			if err := e.dispatch(e.ctx, cmd); err != nil {
				if e.ctx.Err() != nil {
					return
				}
				e.logger.Error("Command failed",
					logger.String("command", string(cmd.Kind())),
					logger.Error(err),
				)
				e.events.Emit(e.ctx, entity.ConnectivityChangedEvent{Status: entity.StatusError, Message: err.Error()})
			}
		}
	}
}

func (e *epoch) enqueue(cmd entity.Command) error {
	select {
	case e.queue <- cmd:
		return nil
	default:
		return fmt.Errorf("%w: %s", ErrQueueFull, cmd.Kind())
	}
}

func (e *epoch) dispatch(ctx context.Context, cmd entity.Command) error {
	switch c := cmd.(type) {
	case entity.GetStreams:
		streams, err := e.directory.ListStreams(ctx)
		if err != nil {
			return err
		}
		e.events.Emit(ctx, entity.StreamsEvent{Streams: streams})
		_, err = e.session.Start(ctx, streams, c.StartTime)
		return err
	case entity.GetConsumers:
		consumers, err := e.directory.ListConsumers(ctx, c.Stream)
		if err != nil {
			return err
		}
		e.events.Emit(ctx, entity.ConsumersEvent{Stream: c.Stream, Consumers: consumers})
		return nil
	case entity.FetchMessageTrace:
		return e.traces.FetchMessageTrace(ctx, c.MessageID)
	case entity.ListenForFailures:
		return e.traces.ListenForFailures(ctx, c.StartTime)
	default:
		return fmt.Errorf("%w: %s", router.ErrUnhandledCommand, cmd.Kind())
	}
}

func (e *epoch) close() {
	e.cancel()
	e.consumers.Close()
	e.background.Close()
	e.link.Close()
}
