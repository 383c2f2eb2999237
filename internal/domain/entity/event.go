package entity

// EventKind tags an outbound event.
type EventKind string

const (
	EventStreams             EventKind = "streams"
	EventConsumers           EventKind = "consumers"
	EventMessage             EventKind = "message"
	EventMessageTrace        EventKind = "messageTrace"
	EventMessageFailure      EventKind = "messageFailure"
	EventConnectivityChanged EventKind = "connectivityChanged"
)

// Event is the closed set of values the core sends to the presentation
// layer. Only the types in this file implement it.
type Event interface {
	Kind() EventKind
	event()
}

// StreamsEvent carries the sorted stream directory.
type StreamsEvent struct {
	Streams []StreamDescriptor
}

// ConsumersEvent carries the sorted, non-diagnostic consumers of one stream.
type ConsumersEvent struct {
	Stream    string
	Consumers []ConsumerDescriptor
}

// MessageEvent carries one message from a session consumer.
type MessageEvent struct {
	Message *Message
}

// MessageTraceEvent carries one trace record for a message id. TraceKind is
// the last subject token (for example "Published" or "Failure").
type MessageTraceEvent struct {
	MessageID string
	TraceKind string
	Message   *Message
}

// MessageFailureEvent carries one failure record.
type MessageFailureEvent struct {
	MessageID string
	Message   *Message
}

// ConnectivityChangedEvent carries a connectivity transition or a command error.
type ConnectivityChangedEvent struct {
	Status  Status
	Message string
}

func (StreamsEvent) Kind() EventKind             { return EventStreams }
func (ConsumersEvent) Kind() EventKind           { return EventConsumers }
func (MessageEvent) Kind() EventKind             { return EventMessage }
func (MessageTraceEvent) Kind() EventKind        { return EventMessageTrace }
func (MessageFailureEvent) Kind() EventKind      { return EventMessageFailure }
func (ConnectivityChangedEvent) Kind() EventKind { return EventConnectivityChanged }

func (StreamsEvent) event()             {}
func (ConsumersEvent) event()           {}
func (MessageEvent) event()             {}
func (MessageTraceEvent) event()        {}
func (MessageFailureEvent) event()      {}
func (ConnectivityChangedEvent) event() {}
