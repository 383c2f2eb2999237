package nats

import (
	"sync"

	"github.com/nats-io/nats.go"

	"github.com/moroshma/jstail/internal/domain/entity"
)

// subscription adapts a callback subscription to a channel. nats invokes
// deliver from its own goroutine; a full buffer drops the message.
type subscription struct {
	stream  string
	natsSub *nats.Subscription
	msgs    chan *entity.Message
	onDrop  func(stream string)

	mu     sync.Mutex
	closed bool
}

func newSubscription(stream string, size int, onDrop func(string)) *subscription {
	return &subscription{
		stream: stream,
		msgs:   make(chan *entity.Message, size),
		onDrop: onDrop,
	}
}

func (s *subscription) deliver(msg *nats.Msg) {
	converted := toMessage(msg)

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}

	select {
	case s.msgs <- converted:
	default:
		if s.onDrop != nil {
			s.onDrop(s.stream)
		}
	}
}

// Messages implements repository.Subscription
func (s *subscription) Messages() <-chan *entity.Message {
	return s.msgs
}

// Stop implements repository.Subscription
func (s *subscription) Stop() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	close(s.msgs)
	s.mu.Unlock()

	if s.natsSub == nil {
		return nil
	}
	// Unsubscribe also deletes the ephemeral consumer on the server.
	return s.natsSub.Unsubscribe()
}
