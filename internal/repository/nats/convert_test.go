package nats

import (
	"testing"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/moroshma/jstail/internal/domain/entity"
)

func TestToMessage_JetStreamMetadata(t *testing.T) {
	msg := &nats.Msg{
		Subject: "orders.created",
		Reply:   "$JS.ACK.ORDERS.dbg.1.42.7.1700000000000000000.3",
		Data:    []byte(`{"id":1}`),
		Header:  nats.Header{"Nats-Msg-Id": []string{"abc123"}, "X-Multi": []string{"a", "b"}},
		Sub:     &nats.Subscription{},
	}

	out := toMessage(msg)

	assert.Equal(t, "orders.created", out.Subject)
	assert.Equal(t, "ORDERS", out.Stream)
	assert.Equal(t, "dbg", out.Consumer)
	assert.Equal(t, uint64(42), out.Sequence)
	assert.Equal(t, uint64(7), out.ConsumerSequence)
	assert.Equal(t, uint64(3), out.Pending)
	assert.Equal(t, time.Unix(0, 1700000000000000000).UTC(), out.Timestamp.UTC())
	assert.Equal(t, "abc123", out.Header("Nats-Msg-Id"))
	assert.Equal(t, []string{"a", "b"}, out.Headers["X-Multi"])
}

func TestToMessage_CoreMessage(t *testing.T) {
	out := toMessage(&nats.Msg{
		Subject: "$JS.EVENT.ADVISORY.STREAM.CREATED.ORDERS",
		Data:    []byte(`{"action":"create"}`),
	})

	assert.Equal(t, "$JS.EVENT.ADVISORY.STREAM.CREATED.ORDERS", out.Subject)
	assert.Empty(t, out.Stream)
	assert.Zero(t, out.Sequence)
	assert.Nil(t, out.Headers)
}

func TestToMessage_HeadersAreCopied(t *testing.T) {
	header := nats.Header{"K": []string{"v"}}
	out := toMessage(&nats.Msg{Subject: "s", Header: header})

	header["K"][0] = "changed"
	assert.Equal(t, "v", out.Header("K"))
}

func TestSubscription_DeliverAndStop(t *testing.T) {
	sub := newSubscription("ORDERS", 4, nil)

	sub.deliver(&nats.Msg{Subject: "orders.a"})
	sub.deliver(&nats.Msg{Subject: "orders.b"})

	require.NoError(t, sub.Stop())
	// Delivery after stop is ignored rather than panicking on a closed channel.
	sub.deliver(&nats.Msg{Subject: "orders.c"})
	require.NoError(t, sub.Stop())

	var subjects []string
	for m := range sub.Messages() {
		subjects = append(subjects, m.Subject)
	}
	assert.Equal(t, []string{"orders.a", "orders.b"}, subjects)
}

func TestSubscription_DropsWhenFull(t *testing.T) {
	var dropped []string
	sub := newSubscription("ORDERS", 1, func(stream string) {
		dropped = append(dropped, stream)
	})

	sub.deliver(&nats.Msg{Subject: "orders.a", Reply: "$JS.ACK.ORDERS.dbg.1.1.1.1700000000000000000.0", Sub: &nats.Subscription{}})
	sub.deliver(&nats.Msg{Subject: "orders.b", Reply: "$JS.ACK.ORDERS.dbg.1.2.2.1700000000000000000.0", Sub: &nats.Subscription{}})

	assert.Equal(t, []string{"ORDERS"}, dropped)
	assert.Len(t, sub.Messages(), 1)
}

func TestSubscribeOptions(t *testing.T) {
	tests := []struct {
		name string
		spec entity.ConsumerSpec
		want int
	}{
		{
			name: "deliver all without description",
			spec: entity.ConsumerSpec{Stream: "ORDERS"},
			want: 4,
		},
		{
			name: "start time with description",
			spec: entity.ConsumerSpec{
				Stream:        "ORDERS",
				Description:   "jstail debug consumer",
				DeliverPolicy: entity.DeliverByStartTime,
				StartTime:     time.Now(),
			},
			want: 5,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Len(t, subscribeOptions(tt.spec), tt.want)
		})
	}
}
