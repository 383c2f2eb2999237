package nats

import (
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/moroshma/jstail/internal/domain/entity"
)

// toMessage copies a nats message into the domain type. Messages from core
// subscriptions carry no JetStream metadata and keep zero sequences.
func toMessage(msg *nats.Msg) *entity.Message {
	out := &entity.Message{
		Subject: msg.Subject,
		Data:    msg.Data,
	}

	if len(msg.Header) > 0 {
		out.Headers = make(map[string][]string, len(msg.Header))
		for k, v := range msg.Header {
			out.Headers[k] = append([]string(nil), v...)
		}
	}

	if msg.Reply == "" {
		return out
	}
	meta, err := msg.Metadata()
	if err != nil {
		return out
	}

	out.Stream = meta.Stream
	out.Consumer = meta.Consumer
	out.Sequence = meta.Sequence.Stream
	out.ConsumerSequence = meta.Sequence.Consumer
	out.Timestamp = meta.Timestamp
	out.Pending = meta.NumPending

	return out
}

func toStreamDescriptor(info *jetstream.StreamInfo) entity.StreamDescriptor {
	return entity.StreamDescriptor{
		Name:      info.Config.Name,
		Subjects:  info.Config.Subjects,
		Retention: info.Config.Retention.String(),
		Storage:   info.Config.Storage.String(),
		Messages:  info.State.Msgs,
		Bytes:     info.State.Bytes,
		FirstSeq:  info.State.FirstSeq,
		LastSeq:   info.State.LastSeq,
		Consumers: info.State.Consumers,
		Created:   info.Created,
	}
}

func toConsumerDescriptor(info *jetstream.ConsumerInfo) entity.ConsumerDescriptor {
	return entity.ConsumerDescriptor{
		Name:          info.Name,
		Stream:        info.Stream,
		Description:   info.Config.Description,
		Durable:       info.Config.Durable != "",
		NumPending:    info.NumPending,
		NumAckPending: info.NumAckPending,
		Delivered:     info.Delivered.Stream,
		Created:       info.Created,
	}
}
