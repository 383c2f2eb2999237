// Package memory is an in-process repository.Broker. It records every
// subscription it hands out so tests can assert on consumer lifecycles.
package memory

import (
	"context"
	"strings"
	"sync"

	"github.com/moroshma/jstail/internal/domain/entity"
	"github.com/moroshma/jstail/internal/domain/repository"
)

// Broker implements repository.Broker in memory
type Broker struct {
	mu         sync.Mutex
	streams    map[string]entity.StreamDescriptor
	order      []string
	consumers  map[string][]entity.ConsumerDescriptor
	subs       []*Subscription
	advisories []*Subscription
	listErr    error
	closed     bool
}

// New creates an empty broker.
func New(streams ...string) *Broker {
	b := &Broker{
		streams:   make(map[string]entity.StreamDescriptor),
		consumers: make(map[string][]entity.ConsumerDescriptor),
	}
	for _, name := range streams {
		b.AddStream(name)
	}
	return b
}

// AddStream registers a stream. Broker order is insertion order.
func (b *Broker) AddStream(name string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.streams[name]; !ok {
		b.order = append(b.order, name)
	}
	b.streams[name] = entity.StreamDescriptor{Name: name, Subjects: []string{name + ".>"}}
}

// RemoveStream drops a stream. Existing subscriptions are left alone, as
// on a real server the deleted consumer just goes quiet.
func (b *Broker) RemoveStream(name string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.streams, name)
	for i, n := range b.order {
		if n == name {
			b.order = append(b.order[:i], b.order[i+1:]...)
			break
		}
	}
}

// SetConsumers replaces the consumer listing of a stream.
func (b *Broker) SetConsumers(stream string, consumers []entity.ConsumerDescriptor) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.consumers[stream] = consumers
}

// FailListing makes ListStreams and ListConsumers return err until cleared with nil.
func (b *Broker) FailListing(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.listErr = err
}

// ListStreams implements repository.Broker
func (b *Broker) ListStreams(ctx context.Context) ([]entity.StreamDescriptor, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, repository.ErrNotConnected
	}
	if b.listErr != nil {
		return nil, b.listErr
	}
	out := make([]entity.StreamDescriptor, 0, len(b.order))
	for _, name := range b.order {
		out = append(out, b.streams[name])
	}
	return out, nil
}

// StreamExists implements repository.Broker
func (b *Broker) StreamExists(ctx context.Context, name string) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return false, repository.ErrNotConnected
	}
	_, ok := b.streams[name]
	return ok, nil
}

// ListConsumers implements repository.Broker
func (b *Broker) ListConsumers(ctx context.Context, stream string) ([]entity.ConsumerDescriptor, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.listErr != nil {
		return nil, b.listErr
	}
	return append([]entity.ConsumerDescriptor(nil), b.consumers[stream]...), nil
}

// Subscribe implements repository.Broker
func (b *Broker) Subscribe(ctx context.Context, spec entity.ConsumerSpec) (repository.Subscription, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, repository.ErrNotConnected
	}
	if spec.FilterSubject == "" {
		spec.FilterSubject = entity.AllSubjects
	}
	sub := newSubscription(spec, spec.FilterSubject)
	b.subs = append(b.subs, sub)
	return sub, nil
}

// SubscribeAdvisories implements repository.Broker
func (b *Broker) SubscribeAdvisories(ctx context.Context, subject string) (repository.Subscription, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, repository.ErrNotConnected
	}
	sub := newSubscription(entity.ConsumerSpec{}, subject)
	b.advisories = append(b.advisories, sub)
	return sub, nil
}

// Close implements repository.Broker
func (b *Broker) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
}

// Closed reports whether Close was called.
func (b *Broker) Closed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.closed
}

// Subscriptions returns every JetStream subscription ever created.
func (b *Broker) Subscriptions() []*Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]*Subscription(nil), b.subs...)
}

// Active returns the subscriptions that have not been stopped.
func (b *Broker) Active() []*Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []*Subscription
	for _, s := range b.subs {
		if !s.Stopped() {
			out = append(out, s)
		}
	}
	return out
}

// ActiveAdvisories returns the live advisory subscriptions.
func (b *Broker) ActiveAdvisories() []*Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []*Subscription
	for _, s := range b.advisories {
		if !s.Stopped() {
			out = append(out, s)
		}
	}
	return out
}

// Publish delivers a message to every live subscription bound to stream
// whose filter matches subject.
func (b *Broker) Publish(stream, subject string, data []byte) int {
	delivered := 0
	for _, s := range b.Active() {
		if s.Spec.Stream != stream || !SubjectMatches(s.Subject, subject) {
			continue
		}
		if s.Push(&entity.Message{Stream: stream, Subject: subject, Data: data}) {
			delivered++
		}
	}
	return delivered
}

// Advise delivers an advisory payload on subject to advisory subscribers.
func (b *Broker) Advise(subject string, data []byte) int {
	delivered := 0
	for _, s := range b.ActiveAdvisories() {
		if SubjectMatches(s.Subject, subject) && s.Push(&entity.Message{Subject: subject, Data: data}) {
			delivered++
		}
	}
	return delivered
}

// SubjectMatches applies NATS wildcard rules: '*' matches one token and a
// trailing '>' matches one or more.
func SubjectMatches(filter, subject string) bool {
	ft := strings.Split(filter, ".")
	st := strings.Split(subject, ".")
	for i, tok := range ft {
		if tok == ">" {
			return len(st) > i
		}
		if i >= len(st) {
			return false
		}
		if tok != "*" && tok != st[i] {
			return false
		}
	}
	return len(ft) == len(st)
}

// Subscription implements repository.Subscription
type Subscription struct {
	Spec    entity.ConsumerSpec
	Subject string

	mu      sync.Mutex
	msgs    chan *entity.Message
	stopped bool
}

func newSubscription(spec entity.ConsumerSpec, subject string) *Subscription {
	return &Subscription{Spec: spec, Subject: subject, msgs: make(chan *entity.Message, 64)}
}

// Push hands a message to the subscriber. It returns false once stopped or full.
func (s *Subscription) Push(msg *entity.Message) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return false
	}
	select {
	case s.msgs <- msg:
		return true
	default:
		return false
	}
}

// Messages implements repository.Subscription
func (s *Subscription) Messages() <-chan *entity.Message {
	return s.msgs
}

// Stop implements repository.Subscription
func (s *Subscription) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.stopped {
		s.stopped = true
		close(s.msgs)
	}
	return nil
}

// Stopped reports whether Stop was called.
func (s *Subscription) Stopped() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopped
}
