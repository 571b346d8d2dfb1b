package application

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wyfcoding/orderbridge/internal/order/domain"
	"github.com/wyfcoding/orderbridge/internal/order/infrastructure/persistence/memory"
)

func TestDispatcherQueueFull(t *testing.T) {
	ing := newIngestor(&fakeBroker{}, memory.NewOrderStore(), &recordingPublisher{})
	d := NewBatchDispatcher(ing, 1, 1, 10, nil)

	id, err := d.Submit("tok", []map[string]any{{"symbol": "ABC"}})
	require.NoError(t, err)
	require.NotEmpty(t, id)

	_, err = d.Submit("tok", []map[string]any{{"symbol": "ABC"}})
	require.ErrorIs(t, err, domain.ErrQueueFull)

	r, ok := d.Report(id)
	require.True(t, ok)
	assert.Equal(t, BatchPending, r.State)
	assert.Equal(t, 1, r.Total)
}

func TestDispatcherProcessesBatches(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store := memory.NewOrderStore()
	ing := newIngestor(&fakeBroker{}, store, &recordingPublisher{})
	d := NewBatchDispatcher(ing, 2, 8, 10, nil)
	d.Start(ctx)
	d.Start(ctx)

	ids := make([]string, 0, 3)
	for i := 0; i < 3; i++ {
		id, err := d.Submit("tok", []map[string]any{{"symbol": "ABC"}, {"symbol": "NOPE"}})
		require.NoError(t, err)
		ids = append(ids, id)
	}

	for _, id := range ids {
		require.Eventually(t, func() bool {
			r, ok := d.Report(id)
			return ok && r.State == BatchFinished
		}, 2*time.Second, 5*time.Millisecond)

		r, _ := d.Report(id)
		assert.Equal(t, 1, r.Placed)
		assert.Equal(t, 1, r.Skipped)
		assert.Len(t, r.Rows, 2)
		assert.NotNil(t, r.StartedAt)
		assert.NotNil(t, r.FinishedAt)
	}
	assert.Equal(t, 3, store.Counts(ctx).Orders)

	cancel()
	d.Wait()
}

func TestDispatcherReportHistory(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ing := newIngestor(&fakeBroker{}, memory.NewOrderStore(), &recordingPublisher{})
	d := NewBatchDispatcher(ing, 1, 16, 2, nil)
	d.Start(ctx)

	var ids []string
	for i := 0; i < 4; i++ {
		id, err := d.Submit("tok", []map[string]any{{"symbol": "ABC", "tag": fmt.Sprint("t", i)}})
		require.NoError(t, err)
		ids = append(ids, id)
		require.Eventually(t, func() bool {
			r, ok := d.Report(id)
			return ok && r.State == BatchFinished
		}, 2*time.Second, 5*time.Millisecond)
	}

	_, ok := d.Report(ids[0])
	assert.False(t, ok)
	_, ok = d.Report(ids[1])
	assert.False(t, ok)
	_, ok = d.Report(ids[3])
	assert.True(t, ok)
}

func TestDispatcherReportIsCopy(t *testing.T) {
	ing := newIngestor(&fakeBroker{}, memory.NewOrderStore(), &recordingPublisher{})
	d := NewBatchDispatcher(ing, 1, 4, 4, nil)

	id, err := d.Submit("tok", []map[string]any{{"symbol": "ABC"}})
	require.NoError(t, err)

	r, _ := d.Report(id)
	r.State = BatchFinished
	again, _ := d.Report(id)
	assert.Equal(t, BatchPending, again.State)
}
