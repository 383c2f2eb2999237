// Package link owns the single broker connection of a worker epoch.
//
// Connect keeps dialing with a fixed delay until it succeeds or is
// cancelled. Callers that need the broker block in Wait, so anything issued
// before the first successful connect queues behind it instead of failing.
package link

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/moroshma/jstail/internal/domain/entity"
	"github.com/moroshma/jstail/internal/domain/repository"
	"github.com/moroshma/jstail/pkg/logger"
)

// DefaultRetryDelay is the pause between failed connection attempts.
const DefaultRetryDelay = 5 * time.Second

// ErrClosed is returned once the link has been closed.
var ErrClosed = errors.New("link closed")

// EmitFunc receives every status transition.
type EmitFunc func(entity.ConnectivityChangedEvent)

// Options configures a Link
type Options struct {
	RetryDelay time.Duration
	Emit       EmitFunc
}

// Link is the connection to one broker address.
type Link struct {
	address    string
	dial       repository.Dialer
	retryDelay time.Duration
	emit       EmitFunc
	logger     *logger.Logger

	ready     chan struct{}
	done      chan struct{}
	closeOnce sync.Once

	mu       sync.RWMutex
	broker   repository.Broker
	status   entity.Status
	lastErr  string
	attempts int
}

// New creates a link. Nothing is dialed until Connect.
func New(address string, dial repository.Dialer, opts Options, log *logger.Logger) *Link {
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = DefaultRetryDelay
	}
	if opts.Emit == nil {
		opts.Emit = func(entity.ConnectivityChangedEvent) {}
	}
	return &Link{
		address:    address,
		dial:       dial,
		retryDelay: opts.RetryDelay,
		emit:       opts.Emit,
		logger:     log.Named("link").WithField("address", address),
		ready:      make(chan struct{}),
		done:       make(chan struct{}),
		status:     entity.StatusDisconnected,
	}
}

// Address returns the broker address of this link.
func (l *Link) Address() string {
	return l.address
}

// Connect dials until a connection is made. It returns nil on success,
// ctx.Err() on cancellation and ErrClosed if Close was called meanwhile.
func (l *Link) Connect(ctx context.Context) error {
	l.transition(entity.StatusConnecting, "")

	for {
		select {
		case <-l.done:
			return ErrClosed
		default:
		}

		l.mu.Lock()
		l.attempts++
		attempt := l.attempts
		l.mu.Unlock()

		broker, err := l.dial(ctx, l.address, l.connectionEvents())
		if err == nil {
			return l.established(broker, attempt)
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		l.logger.Warn("Connection attempt failed",
			logger.Int("attempt", attempt),
			logger.Duration("retry_in", l.retryDelay),
			logger.Error(err),
		)
		l.transition(entity.StatusConnectionError, err.Error())

		timer := time.NewTimer(l.retryDelay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-l.done:
			timer.Stop()
			return ErrClosed
		case <-timer.C:
		}
	}
}

func (l *Link) established(broker repository.Broker, attempt int) error {
	l.mu.Lock()
	select {
	case <-l.done:
		l.mu.Unlock()
		broker.Close()
		return ErrClosed
	default:
	}
	l.broker = broker
	l.status = entity.StatusConnected
	l.lastErr = ""
	l.mu.Unlock()

	l.logger.Info("Connected to broker", logger.Int("attempts", attempt))
	// The status event goes out before any waiter is released.
	l.emit(entity.ConnectivityChangedEvent{Status: entity.StatusConnected})
	close(l.ready)
	return nil
}

func (l *Link) connectionEvents() repository.ConnectionEvents {
	return repository.ConnectionEvents{
		OnDisconnect: func(err error) {
			msg := ""
			if err != nil {
				msg = err.Error()
			}
			l.logger.Warn("Connection lost, reconnecting", logger.String("reason", msg))
			l.transition(entity.StatusReconnecting, msg)
		},
		OnReconnect: func() {
			l.logger.Info("Connection recovered")
			l.transition(entity.StatusReconnect, "")
		},
		OnClosed: func() {
			l.transition(entity.StatusDisconnected, "")
		},
	}
}

func (l *Link) transition(status entity.Status, message string) {
	l.mu.Lock()
	l.status = status
	if status == entity.StatusConnectionError || status == entity.StatusReconnecting {
		l.lastErr = message
	} else if status.Healthy() {
		l.lastErr = ""
	}
	l.mu.Unlock()

	l.emit(entity.ConnectivityChangedEvent{Status: status, Message: message})
}

// Wait blocks until the broker is connected.
func (l *Link) Wait(ctx context.Context) (repository.Broker, error) {
	select {
	case <-l.ready:
		l.mu.RLock()
		defer l.mu.RUnlock()
		return l.broker, nil
	case <-l.done:
		return nil, ErrClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// State returns the latest status and the last connection error.
func (l *Link) State() (entity.Status, string) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.status, l.lastErr
}

// Attempts returns the number of dial attempts made so far.
func (l *Link) Attempts() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.attempts
}

// Close stops any pending Connect and closes the broker connection.
func (l *Link) Close() {
	l.closeOnce.Do(func() {
		l.mu.Lock()
		close(l.done)
		broker := l.broker
		l.mu.Unlock()

		if broker != nil {
			broker.Close()
		}
	})
}
