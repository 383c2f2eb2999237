package entity

import "time"

// Message is one delivered unit. It is never mutated after the adapter builds it.
type Message struct {
	Stream           string
	Consumer         string
	Subject          string
	Sequence         uint64 // stream sequence
	ConsumerSequence uint64
	Data             []byte
	Headers          map[string][]string
	Timestamp        time.Time
	Pending          uint64
}

// Header returns the first value stored for key.
func (m *Message) Header(key string) string {
	if vals := m.Headers[key]; len(vals) > 0 {
		return vals[0]
	}
	return ""
}

// StreamDescriptor identifies one broker stream. Everything except Name is
// informational and passed through to the presentation layer untouched.
type StreamDescriptor struct {
	Name      string    `json:"name"`
	Subjects  []string  `json:"subjects,omitempty"`
	Retention string    `json:"retention,omitempty"`
	Storage   string    `json:"storage,omitempty"`
	Messages  uint64    `json:"messages"`
	Bytes     uint64    `json:"bytes"`
	FirstSeq  uint64    `json:"firstSeq"`
	LastSeq   uint64    `json:"lastSeq"`
	Consumers int       `json:"consumers"`
	Created   time.Time `json:"created"`
}

// ConsumerDescriptor describes a consumer as reported by the broker.
type ConsumerDescriptor struct {
	Name          string    `json:"name"`
	Stream        string    `json:"stream"`
	Description   string    `json:"description,omitempty"`
	Durable       bool      `json:"durable"`
	NumPending    uint64    `json:"numPending"`
	NumAckPending int       `json:"numAckPending"`
	Delivered     uint64    `json:"delivered"`
	Created       time.Time `json:"created"`
}
