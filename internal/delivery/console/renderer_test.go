package console

import (
	"bytes"
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"

	"github.com/moroshma/jstail/internal/domain/entity"
)

func render(t *testing.T, opts Options, events ...entity.Event) string {
	t.Helper()
	noColor := color.NoColor
	color.NoColor = true
	t.Cleanup(func() { color.NoColor = noColor })

	var buf bytes.Buffer
	r := NewRenderer(&buf, opts)
	for _, ev := range events {
		r.Deliver(ev)
	}
	return buf.String()
}

func TestRenderer(t *testing.T) {
	msg := &entity.Message{Stream: "ORDERS", Subject: "orders.created", Sequence: 7, Data: []byte(`{"id":1}`)}

	tests := []struct {
		name  string
		event entity.Event
		want  string
	}{
		{
			name:  "streams",
			event: entity.StreamsEvent{Streams: []entity.StreamDescriptor{{Name: "A"}, {Name: "B"}}},
			want:  "streams 2: A, B\n",
		},
		{
			name:  "consumers",
			event: entity.ConsumersEvent{Stream: "A", Consumers: []entity.ConsumerDescriptor{{Name: "w1"}}},
			want:  "consumers A: w1\n",
		},
		{
			name:  "message",
			event: entity.MessageEvent{Message: msg},
			want:  "[ORDERS] orders.created #7 {\"id\":1}\n",
		},
		{
			name:  "trace",
			event: entity.MessageTraceEvent{MessageID: "abc123", TraceKind: "Published", Message: msg},
			want:  "trace abc123 Published orders.created #7 {\"id\":1}\n",
		},
		{
			name:  "failure",
			event: entity.MessageFailureEvent{MessageID: "xyz987", Message: msg},
			want:  "failure xyz987 orders.created #7 {\"id\":1}\n",
		},
		{
			name:  "status with message",
			event: entity.ConnectivityChangedEvent{Status: entity.StatusConnectionError, Message: "refused"},
			want:  "status connectionError: refused\n",
		},
		{
			name:  "status",
			event: entity.ConnectivityChangedEvent{Status: entity.StatusConnected},
			want:  "status connected\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, render(t, Options{}, tt.event))
		})
	}
}

func TestRenderer_Payload(t *testing.T) {
	binary := entity.MessageEvent{Message: &entity.Message{Stream: "S", Subject: "s", Data: []byte{0xff, 0x00}}}
	assert.Equal(t, "[S] s #0 <2 bytes>\n", render(t, Options{}, binary))

	long := entity.MessageEvent{Message: &entity.Message{Stream: "S", Subject: "s", Data: []byte("abcdefgh")}}
	assert.Equal(t, "[S] s #0 abcd...\n", render(t, Options{MaxPayload: 4}, long))
	assert.Equal(t, "[S] s #0\n", render(t, Options{MaxPayload: -1}, long))

	withHeaders := entity.MessageEvent{Message: &entity.Message{Stream: "S", Subject: "s", Headers: map[string][]string{"K": {"v"}}}}
	assert.Equal(t, "[S] s #0  map[K:[v]]\n", render(t, Options{Headers: true}, withHeaders))
}
