package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/moroshma/jstail/internal/domain/entity"
	"github.com/moroshma/jstail/internal/registry"
	"github.com/moroshma/jstail/pkg/logger"
)

// StreamAdvisorySubject carries the JetStream stream lifecycle advisories.
const StreamAdvisorySubject = "$JS.EVENT.ADVISORY.STREAM.>"

const (
	advisoryCreate = "create"
	advisoryDelete = "delete"
)

// streamAdvisory is the part of io.nats.jetstream.advisory.v1.stream_action we read.
type streamAdvisory struct {
	Type   string `json:"type"`
	Stream string `json:"stream"`
	Action string `json:"action"`
}

// AdvisoryWatcher keeps the session in step with streams that are created
// or deleted while it runs.
type AdvisoryWatcher struct {
	source    BrokerSource
	registry  *registry.Registry
	directory *Directory
	session   *Session
	emitter   Emitter
	logger    *logger.Logger
	now       func() time.Time
}

// NewAdvisoryWatcher creates a watcher. reg holds the advisory subscription
// and must outlive session restarts.
func NewAdvisoryWatcher(
	source BrokerSource,
	reg *registry.Registry,
	directory *Directory,
	session *Session,
	emitter Emitter,
	log *logger.Logger,
) *AdvisoryWatcher {
	return &AdvisoryWatcher{
		source:    source,
		registry:  reg,
		directory: directory,
		session:   session,
		emitter:   emitter,
		logger:    log.Named("advisory"),
		now:       time.Now,
	}
}

// Watch waits for the broker and subscribes to the advisory subject. The
// subscription lives until the registry is closed.
func (w *AdvisoryWatcher) Watch(ctx context.Context) error {
	broker, err := w.source.Wait(ctx)
	if err != nil {
		return err
	}

	sub, err := broker.SubscribeAdvisories(ctx, StreamAdvisorySubject)
	if err != nil {
		return fmt.Errorf("failed to subscribe to stream advisories: %w", err)
	}
	if w.registry.Spawn("advisory", "", sub, w.handle) == nil {
		return ErrRegistryClosed
	}

	w.logger.Info("Watching stream advisories", logger.String("subject", StreamAdvisorySubject))
	return nil
}

func (w *AdvisoryWatcher) handle(ctx context.Context, msg *entity.Message) {
	var adv streamAdvisory
	if err := json.Unmarshal(msg.Data, &adv); err != nil {
		w.logger.Warn("Failed to decode advisory",
			logger.String("subject", msg.Subject),
			logger.Error(err),
		)
		return
	}

	switch adv.Action {
	case advisoryCreate, advisoryDelete:
	default:
		return
	}

	w.logger.Info("Stream advisory",
		logger.String("action", adv.Action),
		logger.String("stream", adv.Stream),
	)

	streams, err := w.directory.ListStreams(ctx)
	if err != nil {
		w.logger.Warn("Failed to refresh stream directory", logger.Error(err))
		return
	}
	w.emitter.Emit(ctx, entity.StreamsEvent{Streams: streams})

	// Deleted streams keep their consumer until the next session restart.
	if adv.Action != advisoryCreate || !containsStream(streams, adv.Stream) {
		return
	}

	_, err = w.session.Add(ctx, adv.Stream, w.now())
	if errors.Is(err, ErrSessionNotStarted) {
		w.logger.Debug("No active session for new stream", logger.String("stream", adv.Stream))
		return
	}
	if err != nil {
		w.logger.Warn("Failed to add consumer for new stream",
			logger.String("stream", adv.Stream),
			logger.Error(err),
		)
	}
}

func containsStream(streams []entity.StreamDescriptor, name string) bool {
	for _, s := range streams {
		if s.Name == name {
			return true
		}
	}
	return false
}
