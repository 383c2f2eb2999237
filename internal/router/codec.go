package router

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/moroshma/jstail/internal/domain/entity"
)

var (
	// ErrUnhandledCommand is returned for an inbound command kind outside the protocol.
	ErrUnhandledCommand = errors.New("unhandled command")
	// ErrUnknownEvent is returned for an outbound event type outside the protocol.
	ErrUnknownEvent = errors.New("unknown event")
	// ErrInvalidCommand is returned when a known command misses a required field.
	ErrInvalidCommand = errors.New("invalid command")
)

// commandEnvelope is the inbound wire shape: {"type": "...", ...fields}.
type commandEnvelope struct {
	Type       string     `json:"type"`
	Address    string     `json:"address,omitempty"`
	StartTime  *time.Time `json:"startTime,omitempty"`
	StreamName string     `json:"streamName,omitempty"`
	MessageID  string     `json:"messageId,omitempty"`
}

// DecodeCommand parses one inbound frame.
func DecodeCommand(data []byte) (entity.Command, error) {
	var env commandEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCommand, err)
	}

	switch entity.CommandKind(env.Type) {
	case entity.CommandSetServerAddress:
		if env.Address == "" {
			return nil, fmt.Errorf("%w: %s requires address", ErrInvalidCommand, env.Type)
		}
		return entity.SetServerAddress{Address: env.Address}, nil
	case entity.CommandGetStreams:
		if env.StartTime == nil {
			return nil, fmt.Errorf("%w: %s requires startTime", ErrInvalidCommand, env.Type)
		}
		return entity.GetStreams{StartTime: *env.StartTime}, nil
	case entity.CommandGetConsumers:
		if env.StreamName == "" {
			return nil, fmt.Errorf("%w: %s requires streamName", ErrInvalidCommand, env.Type)
		}
		return entity.GetConsumers{Stream: env.StreamName}, nil
	case entity.CommandFetchMessageTrace:
		if env.MessageID == "" {
			return nil, fmt.Errorf("%w: %s requires messageId", ErrInvalidCommand, env.Type)
		}
		if !entity.IsSubjectToken(env.MessageID) {
			return nil, fmt.Errorf("%w: messageId %q is not a single subject token", ErrInvalidCommand, env.MessageID)
		}
		return entity.FetchMessageTrace{MessageID: env.MessageID}, nil
	case entity.CommandListenForFailures:
		if env.StartTime == nil {
			return nil, fmt.Errorf("%w: %s requires startTime", ErrInvalidCommand, env.Type)
		}
		return entity.ListenForFailures{StartTime: *env.StartTime}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnhandledCommand, env.Type)
	}
}

// EncodeCommand is the inverse of DecodeCommand.
func EncodeCommand(cmd entity.Command) ([]byte, error) {
	env := commandEnvelope{Type: string(cmd.Kind())}
	switch c := cmd.(type) {
	case entity.SetServerAddress:
		env.Address = c.Address
	case entity.GetStreams:
		env.StartTime = &c.StartTime
	case entity.GetConsumers:
		env.StreamName = c.Stream
	case entity.FetchMessageTrace:
		env.MessageID = c.MessageID
	case entity.ListenForFailures:
		env.StartTime = &c.StartTime
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnhandledCommand, cmd)
	}
	return json.Marshal(env)
}

// wireMessage is how a broker message is sent to the presentation layer.
type wireMessage struct {
	Stream    string              `json:"stream,omitempty"`
	Subject   string              `json:"subject"`
	Sequence  uint64              `json:"sequence"`
	Timestamp *time.Time          `json:"timestamp,omitempty"`
	Headers   map[string][]string `json:"headers,omitempty"`
	Payload   string              `json:"payload"`
	Encoding  string              `json:"encoding"`
}

func toWire(msg *entity.Message) *wireMessage {
	if msg == nil {
		return nil
	}
	w := &wireMessage{
		Stream:   msg.Stream,
		Subject:  msg.Subject,
		Sequence: msg.Sequence,
		Headers:  msg.Headers,
	}
	if !msg.Timestamp.IsZero() {
		ts := msg.Timestamp
		w.Timestamp = &ts
	}
	if utf8.Valid(msg.Data) {
		w.Payload, w.Encoding = string(msg.Data), "utf-8"
	} else {
		w.Payload, w.Encoding = base64.StdEncoding.EncodeToString(msg.Data), "base64"
	}
	return w
}

type streamsFrame struct {
	Type    entity.EventKind          `json:"type"`
	Streams []entity.StreamDescriptor `json:"streams"`
}

type consumersFrame struct {
	Type      entity.EventKind            `json:"type"`
	Stream    string                      `json:"stream"`
	Consumers []entity.ConsumerDescriptor `json:"consumers"`
}

type messageFrame struct {
	Type      entity.EventKind `json:"type"`
	MessageID string           `json:"messageId,omitempty"`
	TraceKind string           `json:"kind,omitempty"`
	Message   *wireMessage     `json:"message"`
}

type connectivityFrame struct {
	Type    entity.EventKind `json:"type"`
	Status  entity.Status    `json:"status"`
	Message string           `json:"message,omitempty"`
}

// EncodeEvent renders one outbound frame.
func EncodeEvent(ev entity.Event) ([]byte, error) {
	var frame any
	switch e := ev.(type) {
	case entity.StreamsEvent:
		streams := e.Streams
		if streams == nil {
			streams = []entity.StreamDescriptor{}
		}
		frame = streamsFrame{Type: e.Kind(), Streams: streams}
	case entity.ConsumersEvent:
		consumers := e.Consumers
		if consumers == nil {
			consumers = []entity.ConsumerDescriptor{}
		}
		frame = consumersFrame{Type: e.Kind(), Stream: e.Stream, Consumers: consumers}
	case entity.MessageEvent:
		frame = messageFrame{Type: e.Kind(), Message: toWire(e.Message)}
	case entity.MessageTraceEvent:
		frame = messageFrame{Type: e.Kind(), MessageID: e.MessageID, TraceKind: e.TraceKind, Message: toWire(e.Message)}
	case entity.MessageFailureEvent:
		frame = messageFrame{Type: e.Kind(), MessageID: e.MessageID, Message: toWire(e.Message)}
	case entity.ConnectivityChangedEvent:
		frame = connectivityFrame{Type: e.Kind(), Status: e.Status, Message: e.Message}
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnknownEvent, ev)
	}
	return json.Marshal(frame)
}
