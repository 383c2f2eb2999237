package nats

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/moroshma/jstail/internal/domain/entity"
	"github.com/moroshma/jstail/internal/domain/repository"
	"github.com/moroshma/jstail/pkg/logger"
)

// Broker implements repository.Broker using nats.go
type Broker struct {
	conn   *nats.Conn
	js     nats.JetStreamContext // push subscriptions
	jsm    jetstream.JetStream   // listing and lookups
	cfg    Config
	logger *logger.Logger
}

// Config represents NATS connection configuration
type Config struct {
	Name           string
	ReconnectWait  time.Duration
	ConnectTimeout time.Duration
	// BufferSize bounds each subscription's hand-off channel.
	BufferSize int
	// OnDrop is called for every message dropped because a buffer was full.
	OnDrop func(stream string)
}

// NewDialer returns a repository.Dialer that makes one connection attempt
// per call. The nats client reconnects by itself once connected.
func NewDialer(cfg Config, log *logger.Logger) repository.Dialer {
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 256
	}
	if cfg.ReconnectWait <= 0 {
		cfg.ReconnectWait = 5 * time.Second
	}
	return func(ctx context.Context, address string, events repository.ConnectionEvents) (repository.Broker, error) {
		return Dial(ctx, address, cfg, events, log)
	}
}

// Dial connects to address and prepares both JetStream APIs.
func Dial(ctx context.Context, address string, cfg Config, events repository.ConnectionEvents, log *logger.Logger) (*Broker, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	opts := []nats.Option{
		nats.Name(cfg.Name),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if events.OnDisconnect != nil {
				events.OnDisconnect(err)
			}
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			if events.OnReconnect != nil {
				events.OnReconnect()
			}
		}),
		nats.ClosedHandler(func(_ *nats.Conn) {
			if events.OnClosed != nil {
				events.OnClosed()
			}
		}),
	}
	if cfg.ConnectTimeout > 0 {
		opts = append(opts, nats.Timeout(cfg.ConnectTimeout))
	}

	conn, err := nats.Connect(address, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS at %s: %w", address, err)
	}

	js, err := conn.JetStream()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to get JetStream context: %w", err)
	}

	jsm, err := jetstream.New(conn)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to create JetStream manager: %w", err)
	}

	return &Broker{
		conn:   conn,
		js:     js,
		jsm:    jsm,
		cfg:    cfg,
		logger: log.Named("nats"),
	}, nil
}

// ListStreams implements repository.Broker
func (b *Broker) ListStreams(ctx context.Context) ([]entity.StreamDescriptor, error) {
	if !b.conn.IsConnected() {
		return nil, repository.ErrNotConnected
	}

	lister := b.jsm.ListStreams(ctx)
	var streams []entity.StreamDescriptor
	for info := range lister.Info() {
		streams = append(streams, toStreamDescriptor(info))
	}
	if err := lister.Err(); err != nil {
		return nil, fmt.Errorf("failed to list streams: %w", err)
	}

	return streams, nil
}

// StreamExists implements repository.Broker
func (b *Broker) StreamExists(ctx context.Context, name string) (bool, error) {
	if !b.conn.IsConnected() {
		return false, repository.ErrNotConnected
	}

	_, err := b.jsm.Stream(ctx, name)
	if errors.Is(err, jetstream.ErrStreamNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to look up stream %s: %w", name, err)
	}
	return true, nil
}

// ListConsumers implements repository.Broker
func (b *Broker) ListConsumers(ctx context.Context, stream string) ([]entity.ConsumerDescriptor, error) {
	if !b.conn.IsConnected() {
		return nil, repository.ErrNotConnected
	}

	s, err := b.jsm.Stream(ctx, stream)
	if err != nil {
		return nil, fmt.Errorf("failed to look up stream %s: %w", stream, err)
	}

	lister := s.ListConsumers(ctx)
	var consumers []entity.ConsumerDescriptor
	for info := range lister.Info() {
		consumers = append(consumers, toConsumerDescriptor(info))
	}
	if err := lister.Err(); err != nil {
		return nil, fmt.Errorf("failed to list consumers of %s: %w", stream, err)
	}

	return consumers, nil
}

// Subscribe implements repository.Broker. Every consumer is ephemeral,
// delivers to a fresh inbox, never acks and replays instantly.
func (b *Broker) Subscribe(ctx context.Context, spec entity.ConsumerSpec) (repository.Subscription, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	filter := spec.FilterSubject
	if filter == "" {
		filter = entity.AllSubjects
	}

	opts := append(subscribeOptions(spec), nats.DeliverSubject(nats.NewInbox()))

	sub := newSubscription(spec.Stream, b.cfg.BufferSize, b.cfg.OnDrop)
	natsSub, err := b.js.Subscribe(filter, sub.deliver, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to subscribe to %s on %s: %w", filter, spec.Stream, err)
	}
	sub.natsSub = natsSub

	b.logger.Debug("Consumer created",
		logger.String("stream", spec.Stream),
		logger.String("filter", filter),
		logger.String("deliver_policy", spec.DeliverPolicy.String()),
	)

	return sub, nil
}

// SubscribeAdvisories implements repository.Broker
func (b *Broker) SubscribeAdvisories(ctx context.Context, subject string) (repository.Subscription, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	sub := newSubscription("", b.cfg.BufferSize, b.cfg.OnDrop)
	natsSub, err := b.conn.Subscribe(subject, sub.deliver)
	if err != nil {
		return nil, fmt.Errorf("failed to subscribe to %s: %w", subject, err)
	}
	sub.natsSub = natsSub

	return sub, nil
}

// Close implements repository.Broker
func (b *Broker) Close() {
	b.conn.Close()
}

func subscribeOptions(spec entity.ConsumerSpec) []nats.SubOpt {
	opts := []nats.SubOpt{
		nats.BindStream(spec.Stream),
		nats.AckNone(),
		nats.ReplayInstant(),
	}
	if spec.Description != "" {
		opts = append(opts, nats.Description(spec.Description))
	}

	switch spec.DeliverPolicy {
	case entity.DeliverByStartTime:
		opts = append(opts, nats.StartTime(spec.StartTime))
	default:
		opts = append(opts, nats.DeliverAll())
	}

	return opts
}
