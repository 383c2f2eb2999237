package repository

import (
	"context"
	"errors"

	"github.com/moroshma/jstail/internal/domain/entity"
)

// ErrNotConnected is returned by broker calls made while the connection is down.
var ErrNotConnected = errors.New("broker is not connected")

// Broker defines the broker operations the core depends on
type Broker interface {
	// ListStreams returns every stream the broker reports, in broker order
	ListStreams(ctx context.Context) ([]entity.StreamDescriptor, error)

	// StreamExists reports whether a stream with this name exists
	StreamExists(ctx context.Context, name string) (bool, error)

	// ListConsumers returns every consumer of a stream, in broker order
	ListConsumers(ctx context.Context, stream string) ([]entity.ConsumerDescriptor, error)

	// Subscribe creates an ephemeral push consumer and subscribes to it
	Subscribe(ctx context.Context, spec entity.ConsumerSpec) (Subscription, error)

	// SubscribeAdvisories subscribes to a core (non-JetStream) subject
	SubscribeAdvisories(ctx context.Context, subject string) (Subscription, error)

	// Close drops the connection
	Close()
}

// Subscription is the liveness handle of one consumer.
type Subscription interface {
	// Messages is closed once the subscription is stopped
	Messages() <-chan *entity.Message

	// Stop unsubscribes without waiting for readers of Messages
	Stop() error
}

// ConnectionEvents are invoked by the broker client after the initial connect.
type ConnectionEvents struct {
	OnDisconnect func(err error)
	OnReconnect  func()
	OnClosed     func()
}

// Dialer makes one connection attempt.
type Dialer func(ctx context.Context, address string, events ConnectionEvents) (Broker, error)
