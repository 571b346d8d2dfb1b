package messaging

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wyfcoding/orderbridge/internal/order/domain"
)

type sent struct {
	topic   string
	key     string
	headers map[string]string
	value   any
}

type recordingSender struct {
	msgs []sent
	err  error
}

func (r *recordingSender) SendMessage(_ context.Context, topic, key string, headers map[string]string, value any) error {
	r.msgs = append(r.msgs, sent{topic, key, headers, value})
	return r.err
}

func TestKafkaEventPublisher(t *testing.T) {
	sender := &recordingSender{}
	p := NewKafkaEventPublisher(sender, "orderbridge.events", "orderbridge")
	ctx := context.Background()

	require.NoError(t, p.PublishOrderPlaced(ctx, domain.OrderPlacedEvent{OrderID: "A1", OccurredOn: time.Now()}))
	require.NoError(t, p.PublishStopLossExecuted(ctx, domain.StopLossExecutedEvent{OrderID: "A1"}))

	require.Len(t, sender.msgs, 2)
	first := sender.msgs[0]
	assert.Equal(t, "orderbridge.events", first.topic)
	assert.Equal(t, "A1", first.key)
	assert.Equal(t, domain.EventOrderPlaced, first.headers["event_type"])
	assert.Equal(t, "orderbridge", first.headers["source"])
	assert.NotEmpty(t, first.headers["event_id"])
	assert.IsType(t, domain.OrderPlacedEvent{}, first.value)

	assert.Equal(t, domain.EventStopLossExecuted, sender.msgs[1].headers["event_type"])
	assert.NotEqual(t, first.headers["event_id"], sender.msgs[1].headers["event_id"])
}

func TestKafkaEventPublisherPropagatesError(t *testing.T) {
	boom := errors.New("broker down")
	p := NewKafkaEventPublisher(&recordingSender{err: boom}, "t", "s")
	err := p.PublishOrderFailed(context.Background(), domain.OrderFailedEvent{OrderID: "manual-1"})
	require.ErrorIs(t, err, boom)
}
