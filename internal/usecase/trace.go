package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/moroshma/jstail/internal/domain/entity"
	"github.com/moroshma/jstail/internal/registry"
	"github.com/moroshma/jstail/pkg/logger"
)

var (
	// ErrMalformedSubject is returned for a trace subject that is not
	// <root>.<id>.<kind>.
	ErrMalformedSubject = errors.New("malformed trace subject")
	// ErrInvalidMessageID is returned for a message id that is not a single
	// subject token.
	ErrInvalidMessageID = errors.New("invalid message id")
)

const (
	// FailureKind is the last subject token of failure records.
	FailureKind = "Failure"
	// DefaultPollInterval is how often ListenForFailures checks for the trace stream.
	DefaultPollInterval = 500 * time.Millisecond
)

// ParseTraceSubject splits <root>.<id>.<kind>.
func ParseTraceSubject(root, subject string) (id, kind string, err error) {
	rest, ok := strings.CutPrefix(subject, root+".")
	if !ok {
		return "", "", fmt.Errorf("%w: %q", ErrMalformedSubject, subject)
	}
	id, kind, ok = strings.Cut(rest, ".")
	if !ok || id == "" || kind == "" || strings.Contains(kind, ".") {
		return "", "", fmt.Errorf("%w: %q", ErrMalformedSubject, subject)
	}
	return id, kind, nil
}

// ParseFailureSubject extracts the message id from <root>.<id>.Failure.
func ParseFailureSubject(root, subject string) (string, error) {
	id, kind, err := ParseTraceSubject(root, subject)
	if err != nil {
		return "", err
	}
	if kind != FailureKind {
		return "", fmt.Errorf("%w: %q is not a failure subject", ErrMalformedSubject, subject)
	}
	return id, nil
}

// TraceIndex keeps the trace records received per message id. Entries are
// never evicted.
type TraceIndex struct {
	mu      sync.RWMutex
	records map[string][]*entity.Message
	order   []string
}

func NewTraceIndex() *TraceIndex {
	return &TraceIndex{records: make(map[string][]*entity.Message)}
}

func (x *TraceIndex) open(id string) {
	x.mu.Lock()
	defer x.mu.Unlock()
	if _, ok := x.records[id]; !ok {
		x.records[id] = nil
		x.order = append(x.order, id)
	}
}

// Append adds msg to the records of id.
func (x *TraceIndex) Append(id string, msg *entity.Message) {
	x.mu.Lock()
	defer x.mu.Unlock()
	if _, ok := x.records[id]; !ok {
		x.order = append(x.order, id)
	}
	x.records[id] = append(x.records[id], msg)
}

// Get returns the records of id in arrival order.
func (x *TraceIndex) Get(id string) []*entity.Message {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return append([]*entity.Message(nil), x.records[id]...)
}

// Has reports whether id was ever requested or recorded.
func (x *TraceIndex) Has(id string) bool {
	x.mu.RLock()
	defer x.mu.RUnlock()
	_, ok := x.records[id]
	return ok
}

// IDs returns every known id in the order it first appeared.
func (x *TraceIndex) IDs() []string {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return append([]string(nil), x.order...)
}

// FailureFeed is the append-only list of failure records.
type FailureFeed struct {
	mu   sync.RWMutex
	msgs []*entity.Message
}

func (f *FailureFeed) Append(msg *entity.Message) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.msgs = append(f.msgs, msg)
}

func (f *FailureFeed) All() []*entity.Message {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return append([]*entity.Message(nil), f.msgs...)
}

func (f *FailureFeed) Len() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.msgs)
}

// TraceConfig configures a TraceQuery
type TraceConfig struct {
	// Stream is the name of the trace stream.
	Stream string
	// Root is the first subject token of trace records.
	Root         string
	PollInterval time.Duration
	// Strict makes a malformed failure subject panic instead of being dropped.
	Strict bool
}

// TraceQuery serves trace lookups and the failure feed from the trace stream.
type TraceQuery struct {
	source   BrokerSource
	factory  *ConsumerFactory
	registry *registry.Registry
	emitter  Emitter
	cfg      TraceConfig
	index    *TraceIndex
	failures *FailureFeed
	logger   *logger.Logger

	// The one failure listener. listenSeq identifies it, stopPoll ends its
	// pending existence poll and failureTask is its consumer once open.
	listenMu    sync.Mutex
	listenSeq   uint64
	stopPoll    context.CancelFunc
	failureTask *registry.Task
}

// NewTraceQuery creates a query. reg is the registry factory spawns into.
func NewTraceQuery(
	source BrokerSource,
	factory *ConsumerFactory,
	reg *registry.Registry,
	emitter Emitter,
	cfg TraceConfig,
	log *logger.Logger,
) *TraceQuery {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	return &TraceQuery{
		source:   source,
		factory:  factory,
		registry: reg,
		emitter:  emitter,
		cfg:      cfg,
		index:    NewTraceIndex(),
		failures: &FailureFeed{},
		logger:   log.Named("trace"),
	}
}

func (q *TraceQuery) Index() *TraceIndex {
	return q.index
}

func (q *TraceQuery) Failures() *FailureFeed {
	return q.failures
}

// FetchMessageTrace opens a consumer on every trace record of id. It stays
// open for late records until the next session restart. Repeated calls for
// the same id open additional consumers.
func (q *TraceQuery) FetchMessageTrace(ctx context.Context, id string) error {
	if !entity.IsSubjectToken(id) {
		return fmt.Errorf("%w: %q", ErrInvalidMessageID, id)
	}
	subject := q.cfg.Root + "." + id + ".*"
	q.index.open(id)

	_, err := q.factory.Create(ctx, q.cfg.Stream, "trace", func(ctx context.Context, msg *entity.Message) {
		_, kind, err := ParseTraceSubject(q.cfg.Root, msg.Subject)
		if err != nil {
			q.logger.Debug("Trace record with unexpected subject", logger.String("subject", msg.Subject))
		}
		q.index.Append(id, msg)
		q.emitter.Emit(ctx, entity.MessageTraceEvent{MessageID: id, TraceKind: kind, Message: msg})
	}, WithFilterSubject(subject))
	if err != nil {
		return fmt.Errorf("failed to fetch trace of %s: %w", id, err)
	}

	q.logger.Debug("Trace subscription opened", logger.String("message_id", id))
	return nil
}

// ListenForFailures waits in the background for the trace stream to exist
// and then streams its failure records from startTime. It replaces the
// listener of a previous call. The wait ends with the current registry
// generation.
func (q *TraceQuery) ListenForFailures(ctx context.Context, startTime time.Time) error {
	if _, err := q.source.Wait(ctx); err != nil {
		return err
	}

	stopCtx, stop := context.WithCancel(context.Background())
	q.listenMu.Lock()
	q.stopListenerLocked()
	q.listenSeq++
	seq := q.listenSeq
	q.stopPoll = stop
	q.listenMu.Unlock()

	q.registry.Go("failure-poll", func(genCtx context.Context) {
		pollCtx, cancel := context.WithCancel(genCtx)
		defer cancel()
		defer context.AfterFunc(stopCtx, cancel)()

		if err := q.awaitStream(pollCtx); err != nil {
			return
		}
		task, err := q.factory.Create(pollCtx, q.cfg.Stream, "failures", q.handleFailure,
			WithFilterSubject(q.cfg.Root+".*."+FailureKind),
			WithStartTime(startTime),
		)
		if err != nil {
			if pollCtx.Err() == nil {
				q.logger.Error("Failed to open failure feed", logger.Error(err))
			}
			return
		}

		q.listenMu.Lock()
		defer q.listenMu.Unlock()
		if seq != q.listenSeq {
			q.registry.Cancel(task.ID)
			return
		}
		q.failureTask = task
		q.logger.Info("Failure feed opened", logger.Time("start_time", startTime))
	})
	return nil
}

func (q *TraceQuery) stopListenerLocked() {
	if q.stopPoll != nil {
		q.stopPoll()
		q.stopPoll = nil
	}
	if q.failureTask != nil {
		q.registry.Cancel(q.failureTask.ID)
		q.failureTask = nil
	}
}

func (q *TraceQuery) awaitStream(ctx context.Context) error {
	ticker := time.NewTicker(q.cfg.PollInterval)
	defer ticker.Stop()

	for {
		broker, err := q.source.Wait(ctx)
		if err != nil {
			return err
		}
		exists, err := broker.StreamExists(ctx, q.cfg.Stream)
		if err != nil {
			q.logger.Warn("Failed to check trace stream", logger.Error(err))
		}
		if exists {
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (q *TraceQuery) handleFailure(ctx context.Context, msg *entity.Message) {
	id, err := ParseFailureSubject(q.cfg.Root, msg.Subject)
	if err != nil {
		if q.cfg.Strict {
			panic(err)
		}
		q.logger.Error("Dropping failure record", logger.Error(err))
		return
	}
	q.failures.Append(msg)
	q.emitter.Emit(ctx, entity.MessageFailureEvent{MessageID: id, Message: msg})
}
