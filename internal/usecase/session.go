package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/moroshma/jstail/internal/domain/entity"
	"github.com/moroshma/jstail/internal/registry"
	"github.com/moroshma/jstail/pkg/logger"
)

// ErrSessionNotStarted is returned by Add before the first successful Start.
var ErrSessionNotStarted = errors.New("session not started")

// Session owns the per-stream consumers of the current time window.
type Session struct {
	factory  *ConsumerFactory
	registry *registry.Registry
	emitter  Emitter
	logger   *logger.Logger

	// mu orders Start against Add so a restart never interleaves with an
	// advisory-driven creation.
	mu        sync.Mutex
	startTime time.Time
	started   bool
}

// NewSession creates a session. reg must be the registry factory spawns into.
func NewSession(factory *ConsumerFactory, reg *registry.Registry, emitter Emitter, log *logger.Logger) *Session {
	return &Session{
		factory:  factory,
		registry: reg,
		emitter:  emitter,
		logger:   log.Named("session"),
	}
}

// Start replaces the current consumer generation with one consumer per
// stream, each delivering from startTime. The previous generation is torn
// down before the first new consumer is opened. It returns the number of
// consumers created.
func (s *Session) Start(ctx context.Context, streams []entity.StreamDescriptor, startTime time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cancelled := s.registry.CancelAll()
	s.started = false
	s.startTime = startTime
	generation := s.registry.Generation()

	for _, stream := range streams {
		if _, err := s.open(ctx, stream.Name, startTime); err != nil {
			s.registry.CancelAll()
			return 0, err
		}
	}
	s.started = true

	s.logger.Info("Session started",
		logger.String("generation", generation),
		logger.Int("consumers", len(streams)),
		logger.Int("cancelled", cancelled),
		logger.Time("start_time", startTime),
	)
	return len(streams), nil
}

// Add opens one consumer for a stream that appeared after Start.
func (s *Session) Add(ctx context.Context, stream string, startTime time.Time) (*registry.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return nil, ErrSessionNotStarted
	}

	task, err := s.open(ctx, stream, startTime)
	if err != nil {
		return nil, err
	}
	s.logger.Info("Consumer added", logger.String("stream", stream), logger.Time("start_time", startTime))
	return task, nil
}

// StartTime returns the start time of the latest Start.
func (s *Session) StartTime() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.startTime
}

func (s *Session) open(ctx context.Context, stream string, startTime time.Time) (*registry.Task, error) {
	task, err := s.factory.Create(ctx, stream, "session", s.forward(stream), WithStartTime(startTime))
	if err != nil {
		return nil, fmt.Errorf("failed to open session consumer: %w", err)
	}
	return task, nil
}

func (s *Session) forward(stream string) registry.Handler {
	return func(ctx context.Context, msg *entity.Message) {
		if msg.Stream == "" {
			msg.Stream = stream
		}
		s.emitter.Emit(ctx, entity.MessageEvent{Message: msg})
	}
}
