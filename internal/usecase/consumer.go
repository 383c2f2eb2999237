package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/moroshma/jstail/internal/domain/entity"
	"github.com/moroshma/jstail/internal/registry"
	"github.com/moroshma/jstail/pkg/logger"
)

// ErrRegistryClosed is returned when a consumer is created after its
// registry shut down.
var ErrRegistryClosed = errors.New("consumer registry closed")

// ConsumerOption overrides one field of the default consumer spec.
type ConsumerOption func(*entity.ConsumerSpec)

// WithFilterSubject narrows the consumer to subject.
func WithFilterSubject(subject string) ConsumerOption {
	return func(s *entity.ConsumerSpec) {
		s.FilterSubject = subject
	}
}

// WithStartTime starts delivery at t.
func WithStartTime(t time.Time) ConsumerOption {
	return func(s *entity.ConsumerSpec) {
		s.DeliverPolicy = entity.DeliverByStartTime
		s.StartTime = t
	}
}

// WithDescription replaces the diagnostic description. A consumer without
// the diagnostic description is listed by Directory.ListConsumers.
func WithDescription(description string) ConsumerOption {
	return func(s *entity.ConsumerSpec) {
		s.Description = description
	}
}

// ConsumerFactory creates ephemeral consumers and registers them.
type ConsumerFactory struct {
	source      BrokerSource
	registry    *registry.Registry
	description string
	logger      *logger.Logger
}

// NewConsumerFactory creates a factory whose consumers carry description.
func NewConsumerFactory(source BrokerSource, reg *registry.Registry, description string, log *logger.Logger) *ConsumerFactory {
	return &ConsumerFactory{
		source:      source,
		registry:    reg,
		description: description,
		logger:      log.Named("consumers"),
	}
}

// Description returns the diagnostic description put on every consumer.
func (f *ConsumerFactory) Description() string {
	return f.description
}

// Create opens a consumer on stream and starts a pump that feeds handle.
// The defaults are every subject, every message, and the diagnostic
// description; opts are applied on top of them.
func (f *ConsumerFactory) Create(
	ctx context.Context,
	stream string,
	name string,
	handle registry.Handler,
	opts ...ConsumerOption,
) (*registry.Task, error) {
	broker, err := f.source.Wait(ctx)
	if err != nil {
		return nil, err
	}

	spec := entity.ConsumerSpec{
		Stream:        stream,
		FilterSubject: entity.AllSubjects,
		Description:   f.description,
		DeliverPolicy: entity.DeliverAll,
	}
	for _, opt := range opts {
		opt(&spec)
	}

	sub, err := broker.Subscribe(ctx, spec)
	if err != nil {
		return nil, fmt.Errorf("failed to create consumer on %s: %w", stream, err)
	}
	if err := ctx.Err(); err != nil {
		_ = sub.Stop()
		return nil, err
	}

	task := f.registry.Spawn(name, stream, sub, handle)
	if task == nil {
		return nil, ErrRegistryClosed
	}

	f.logger.Debug("Consumer created",
		logger.String("task", name),
		logger.String("stream", stream),
		logger.String("filter", spec.FilterSubject),
		logger.String("deliver", spec.DeliverPolicy.String()),
	)
	return task, nil
}
