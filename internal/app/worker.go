// Package app runs the background worker that turns presentation-layer
// commands into broker subscriptions and events.
package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/moroshma/jstail/internal/domain/entity"
	"github.com/moroshma/jstail/internal/domain/repository"
	"github.com/moroshma/jstail/internal/link"
	"github.com/moroshma/jstail/internal/router"
	"github.com/moroshma/jstail/internal/usecase"
	"github.com/moroshma/jstail/pkg/logger"
)

var (
	// ErrNoServerAddress is reported for commands sent before setServerAddress.
	ErrNoServerAddress = errors.New("no server address set")
	// ErrQueueFull is reported when an address has too many commands pending.
	ErrQueueFull = errors.New("command queue full")
)

const defaultQueueSize = 64

// Options configures a Worker
type Options struct {
	RetryDelay          time.Duration
	TraceStream         string
	TraceRoot           string
	ConsumerDescription string
	PollInterval        time.Duration
	StrictSubjects      bool
	QueueSize           int
	// OnConsumersChange receives the live consumer count of the current address.
	OnConsumersChange func(active int)
}

// Worker owns at most one address epoch at a time.
type Worker struct {
	opts     Options
	dial     repository.Dialer
	events   *router.Router
	logger   *logger.Logger
	commands chan entity.Command

	epoch *epoch
}

// NewWorker creates a worker. Nothing is dialed until a SetServerAddress
// command arrives.
func NewWorker(opts Options, dial repository.Dialer, events *router.Router, log *logger.Logger) *Worker {
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = link.DefaultRetryDelay
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = usecase.DefaultPollInterval
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = defaultQueueSize
	}
	return &Worker{
		opts:     opts,
		dial:     dial,
		events:   events,
		logger:   log.Named("worker"),
		commands: make(chan entity.Command),
	}
}

// Submit hands cmd to the worker loop.
func (w *Worker) Submit(ctx context.Context, cmd entity.Command) error {
	if cmd == nil {
		return fmt.Errorf("%w: nil command", router.ErrUnhandledCommand)
	}
	select {
	case w.commands <- cmd:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run processes commands until ctx ends.
func (w *Worker) Run(ctx context.Context) error {
	w.logger.Info("Worker started")
	defer func() {
		if w.epoch != nil {
			w.epoch.close()
			w.epoch = nil
		}
		w.logger.Info("Worker stopped")
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case cmd := <-w.commands:
			if err := w.handle(ctx, cmd); err != nil {
				w.logger.Error("Command rejected",
					logger.String("command", string(cmd.Kind())),
					logger.Error(err),
				)
				w.events.Emit(ctx, entity.ConnectivityChangedEvent{Status: entity.StatusError, Message: err.Error()})
			}
		}
	}
}

func (w *Worker) handle(ctx context.Context, cmd entity.Command) error {
	if c, ok := cmd.(entity.SetServerAddress); ok {
		w.setServerAddress(ctx, c.Address)
		return nil
	}
	if w.epoch == nil {
		return fmt.Errorf("%w: %s", ErrNoServerAddress, cmd.Kind())
	}
	return w.epoch.enqueue(cmd)
}

// setServerAddress tears down every consumer, subscription and the
// connection of the previous address before building the new epoch.
func (w *Worker) setServerAddress(ctx context.Context, address string) {
	if w.epoch != nil {
		w.logger.Info("Replacing server address",
			logger.String("from", w.epoch.address),
			logger.String("to", address),
		)
		w.epoch.close()
	}
	w.epoch = w.newEpoch(ctx, address)
	w.epoch.start()
}
