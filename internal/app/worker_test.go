package app

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/moroshma/jstail/internal/domain/entity"
	"github.com/moroshma/jstail/internal/domain/repository"
	"github.com/moroshma/jstail/internal/repository/memory"
	"github.com/moroshma/jstail/internal/router"
	"github.com/moroshma/jstail/pkg/logger"
)

type fakeDialer struct {
	mu       sync.Mutex
	brokers  map[string]*memory.Broker
	failures map[string]int
}

func newFakeDialer() *fakeDialer {
	return &fakeDialer{brokers: make(map[string]*memory.Broker), failures: make(map[string]int)}
}

func (d *fakeDialer) add(address string, streams ...string) *memory.Broker {
	d.mu.Lock()
	defer d.mu.Unlock()
	b := memory.New(streams...)
	d.brokers[address] = b
	return b
}

func (d *fakeDialer) dial(ctx context.Context, address string, _ repository.ConnectionEvents) (repository.Broker, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.failures[address] > 0 {
		d.failures[address]--
		return nil, errors.New("connection refused")
	}
	b, ok := d.brokers[address]
	if !ok {
		return nil, errors.New("no such host")
	}
	return b, nil
}

func startWorker(t *testing.T, d *fakeDialer) (*Worker, *router.Router) {
	t.Helper()
	events := router.New(256, nil, logger.Nop())
	w := NewWorker(Options{
		RetryDelay:          5 * time.Millisecond,
		TraceStream:         "Tracing",
		TraceRoot:           "Tracing",
		ConsumerDescription: "jstail debug consumer",
		PollInterval:        5 * time.Millisecond,
	}, d.dial, events, logger.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return w, events
}

func submit(t *testing.T, w *Worker, cmds ...entity.Command) {
	t.Helper()
	for _, cmd := range cmds {
		require.NoError(t, w.Submit(context.Background(), cmd))
	}
}

// until reads events up to and including the first one match accepts.
func until(t *testing.T, r *router.Router, match func(entity.Event) bool) []entity.Event {
	t.Helper()
	var seen []entity.Event
	timeout := time.After(2 * time.Second)
	for {
		select {
		case ev := <-r.Events():
			seen = append(seen, ev)
			if match(ev) {
				return seen
			}
		case <-timeout:
			t.Fatalf("event not received; saw %d events", len(seen))
			return nil
		}
	}
}

func isKind(kind entity.EventKind) func(entity.Event) bool {
	return func(ev entity.Event) bool { return ev.Kind() == kind }
}

func isStatus(status entity.Status) func(entity.Event) bool {
	return func(ev entity.Event) bool {
		c, ok := ev.(entity.ConnectivityChangedEvent)
		return ok && c.Status == status
	}
}

func statuses(events []entity.Event) []entity.Status {
	var out []entity.Status
	for _, ev := range events {
		if c, ok := ev.(entity.ConnectivityChangedEvent); ok {
			out = append(out, c.Status)
		}
	}
	return out
}

func TestWorker_CommandBeforeAddress(t *testing.T) {
	w, events := startWorker(t, newFakeDialer())

	submit(t, w, entity.GetStreams{StartTime: time.Now()})

	ev := until(t, events, isStatus(entity.StatusError))
	last := ev[len(ev)-1].(entity.ConnectivityChangedEvent)
	assert.Contains(t, last.Message, ErrNoServerAddress.Error())
}

func TestWorker_GetStreamsStartsSession(t *testing.T) {
	d := newFakeDialer()
	b := d.add("nats://a:4222", "orders", "Tracing", "billing")
	w, events := startWorker(t, d)
	start := time.Date(2026, 10, 14, 9, 0, 0, 0, time.UTC)

	submit(t, w,
		entity.SetServerAddress{Address: "nats://a:4222"},
		entity.GetStreams{StartTime: start},
	)

	seen := until(t, events, isKind(entity.EventStreams))
	assert.Equal(t, []entity.Status{entity.StatusConnecting, entity.StatusConnected}, statuses(seen))

	streams := seen[len(seen)-1].(entity.StreamsEvent).Streams
	require.Len(t, streams, 2)
	assert.Equal(t, "billing", streams[0].Name)
	assert.Equal(t, "orders", streams[1].Name)

	assert.Eventually(t, func() bool { return len(b.Active()) == 2 }, time.Second, time.Millisecond)
	for _, s := range b.Active() {
		assert.Equal(t, start, s.Spec.StartTime)
		assert.Equal(t, "jstail debug consumer", s.Spec.Description)
	}
	assert.Eventually(t, func() bool { return len(b.ActiveAdvisories()) == 1 }, time.Second, time.Millisecond)

	b.Publish("orders", "orders.created", []byte("1"))
	msg := until(t, events, isKind(entity.EventMessage))
	assert.Equal(t, "orders", msg[len(msg)-1].(entity.MessageEvent).Message.Stream)
}

func TestWorker_RetriesUntilConnected(t *testing.T) {
	d := newFakeDialer()
	b := d.add("nats://a:4222", "orders")
	d.failures["nats://a:4222"] = 3
	w, events := startWorker(t, d)

	submit(t, w,
		entity.SetServerAddress{Address: "nats://a:4222"},
		entity.GetStreams{StartTime: time.Now()},
	)

	seen := until(t, events, isKind(entity.EventStreams))
	assert.Equal(t, []entity.Status{
		entity.StatusConnecting,
		entity.StatusConnectionError,
		entity.StatusConnectionError,
		entity.StatusConnectionError,
		entity.StatusConnected,
	}, statuses(seen))
	for _, ev := range seen {
		if c, ok := ev.(entity.ConnectivityChangedEvent); ok && c.Status == entity.StatusConnectionError {
			assert.Equal(t, "connection refused", c.Message)
		}
	}
	assert.Eventually(t, func() bool { return len(b.Active()) == 1 }, time.Second, time.Millisecond)
}

func TestWorker_AddressChangeTearsDownEverything(t *testing.T) {
	d := newFakeDialer()
	a := d.add("nats://a:4222", "orders")
	b := d.add("nats://b:4222", "payments", "audit")
	w, events := startWorker(t, d)

	submit(t, w,
		entity.SetServerAddress{Address: "nats://a:4222"},
		entity.GetStreams{StartTime: time.Now()},
		entity.FetchMessageTrace{MessageID: "abc123"},
	)
	until(t, events, isKind(entity.EventStreams))
	assert.Eventually(t, func() bool { return len(a.Active()) == 2 }, time.Second, time.Millisecond)
	assert.Eventually(t, func() bool { return len(a.ActiveAdvisories()) == 1 }, time.Second, time.Millisecond)

	submit(t, w,
		entity.SetServerAddress{Address: "nats://b:4222"},
		entity.GetStreams{StartTime: time.Now()},
	)

	seen := until(t, events, isKind(entity.EventStreams))
	assert.Equal(t, []string{"audit", "payments"}, []string{
		seen[len(seen)-1].(entity.StreamsEvent).Streams[0].Name,
		seen[len(seen)-1].(entity.StreamsEvent).Streams[1].Name,
	})

	assert.True(t, a.Closed())
	assert.Empty(t, a.Active())
	assert.Empty(t, a.ActiveAdvisories())
	assert.Eventually(t, func() bool { return len(b.Active()) == 2 }, time.Second, time.Millisecond)
}

func TestWorker_GetConsumers(t *testing.T) {
	d := newFakeDialer()
	b := d.add("nats://a:4222", "orders")
	b.SetConsumers("orders", []entity.ConsumerDescriptor{
		{Name: "worker-b"},
		{Name: "tail", Description: "jstail debug consumer"},
		{Name: "worker-a"},
	})
	w, events := startWorker(t, d)

	submit(t, w,
		entity.SetServerAddress{Address: "nats://a:4222"},
		entity.GetConsumers{Stream: "orders"},
	)

	seen := until(t, events, isKind(entity.EventConsumers))
	ev := seen[len(seen)-1].(entity.ConsumersEvent)
	assert.Equal(t, "orders", ev.Stream)
	require.Len(t, ev.Consumers, 2)
	assert.Equal(t, "worker-a", ev.Consumers[0].Name)
	assert.Equal(t, "worker-b", ev.Consumers[1].Name)
}

func TestWorker_FailedCommandIsReportedAndWorkerContinues(t *testing.T) {
	d := newFakeDialer()
	b := d.add("nats://a:4222", "orders")
	b.FailListing(errors.New("jetstream not enabled"))
	w, events := startWorker(t, d)

	submit(t, w,
		entity.SetServerAddress{Address: "nats://a:4222"},
		entity.GetStreams{StartTime: time.Now()},
	)
	seen := until(t, events, isStatus(entity.StatusError))
	assert.Contains(t, seen[len(seen)-1].(entity.ConnectivityChangedEvent).Message, "jetstream not enabled")

	b.FailListing(nil)
	submit(t, w, entity.GetStreams{StartTime: time.Now()})
	until(t, events, isKind(entity.EventStreams))
}

func TestEpoch_DispatchRejectsUnhandledCommand(t *testing.T) {
	w := NewWorker(Options{}, newFakeDialer().dial, router.New(1, nil, logger.Nop()), logger.Nop())
	e := w.newEpoch(context.Background(), "nats://a:4222")
	defer e.close()

	err := e.dispatch(context.Background(), entity.SetServerAddress{Address: "nats://b:4222"})
	assert.ErrorIs(t, err, router.ErrUnhandledCommand)
}

func TestEpoch_EnqueueReportsFullQueue(t *testing.T) {
	w := NewWorker(Options{QueueSize: 1}, newFakeDialer().dial, router.New(1, nil, logger.Nop()), logger.Nop())
	e := w.newEpoch(context.Background(), "nats://a:4222")
	defer e.close()

	require.NoError(t, e.enqueue(entity.GetConsumers{Stream: "a"}))
	assert.ErrorIs(t, e.enqueue(entity.GetConsumers{Stream: "b"}), ErrQueueFull)
}
