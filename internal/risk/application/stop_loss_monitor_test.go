package application

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	orderapp "github.com/wyfcoding/orderbridge/internal/order/application"
	orderdomain "github.com/wyfcoding/orderbridge/internal/order/domain"
	"github.com/wyfcoding/orderbridge/internal/order/infrastructure/messaging"
	"github.com/wyfcoding/orderbridge/internal/order/infrastructure/persistence/memory"
	"github.com/wyfcoding/orderbridge/internal/risk/infrastructure/lock"
)

type lookup struct {
	tokens []int64
	cred   orderdomain.Credential
}

type fakeBroker struct {
	mu      sync.Mutex
	prices  map[int64]decimal.Decimal
	lookups []lookup
	placed  []orderdomain.PlacementRequest
	failing bool
	gate    chan struct{}
	entered chan struct{}
}

func newFakeBroker() *fakeBroker {
	return &fakeBroker{prices: map[int64]decimal.Decimal{}}
}

func (f *fakeBroker) setPrice(token int64, p string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.prices[token] = decimal.RequireFromString(p)
}

func (f *fakeBroker) PlaceOrder(_ context.Context, req orderdomain.PlacementRequest, _ orderdomain.Credential) (*orderdomain.Placement, error) {
	if f.entered != nil {
		f.entered <- struct{}{}
	}
	if f.gate != nil {
		<-f.gate
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failing {
		return nil, &orderdomain.BrokerError{Kind: orderdomain.KindTransport, Err: errors.New("timeout")}
	}
	f.placed = append(f.placed, req)
	return &orderdomain.Placement{OrderID: "SL" + decimal.NewFromInt(int64(len(f.placed))).String()}, nil
}

func (f *fakeBroker) GetLastPrices(_ context.Context, tokens []int64, cred orderdomain.Credential) map[int64]decimal.Decimal {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lookups = append(f.lookups, lookup{append([]int64(nil), tokens...), cred})
	out := make(map[int64]decimal.Decimal)
	for _, t := range tokens {
		if p, ok := f.prices[t]; ok {
			out[t] = p
		}
	}
	return out
}

func (f *fakeBroker) placedCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.placed)
}

func seedWatch(t *testing.T, store *memory.OrderStore, id string, token int64, stop string, cred orderdomain.Credential) {
	t.Helper()
	ctx := context.Background()
	now := time.Now()
	require.NoError(t, store.Save(ctx, &orderdomain.OrderRecord{
		OrderID:         id,
		InstrumentToken: token,
		TransactionType: orderdomain.TransactionBuy,
		Quantity:        10,
		Product:         "I",
		PlacedAt:        now,
		Status:          orderdomain.OrderStatusPlaced,
		Credential:      cred,
	}))
	require.NoError(t, store.SaveWatch(ctx, &orderdomain.StopLossWatch{
		OrderID:         id,
		InstrumentToken: token,
		Quantity:        10,
		Product:         "I",
		StopLossPrice:   decimal.RequireFromString(stop),
		Credential:      cred,
		CreatedAt:       now,
	}))
}

func newMonitor(store *memory.OrderStore, broker *fakeBroker, opts ...MonitorOption) *StopLossMonitor {
	return NewStopLossMonitor(store, broker, messaging.NoopEventPublisher{}, time.Minute, opts...)
}

func TestTriggerBoundary(t *testing.T) {
	ctx := context.Background()
	store := memory.NewOrderStore()
	broker := newFakeBroker()

	seedWatch(t, store, "below", 1, "95", "tok")
	seedWatch(t, store, "equal", 2, "95", "tok")
	seedWatch(t, store, "above", 3, "95", "tok")
	broker.setPrice(1, "94.99")
	broker.setPrice(2, "95")
	broker.setPrice(3, "95.01")

	report, err := newMonitor(store, broker).RunPass(ctx)
	require.NoError(t, err)

	assert.Equal(t, 2, report.Triggered)
	assert.Equal(t, 2, report.Executed)
	watches := store.ListWatches(ctx)
	require.Len(t, watches, 1)
	assert.Equal(t, "above", watches[0].OrderID)
}

func TestPriceLookupsGroupedByInstrument(t *testing.T) {
	ctx := context.Background()
	store := memory.NewOrderStore()
	broker := newFakeBroker()

	for i, token := range []int64{1, 1, 2, 2, 3, 3} {
		seedWatch(t, store, "O"+decimal.NewFromInt(int64(i)).String(), token, "50", "tok")
		broker.setPrice(token, "100")
	}

	report, err := newMonitor(store, broker).RunPass(ctx)
	require.NoError(t, err)

	assert.Equal(t, 6, report.Watches)
	assert.Equal(t, 3, report.Instruments)
	assert.Equal(t, 3, report.PriceLookups)
	require.Len(t, broker.lookups, 1)
	assert.ElementsMatch(t, []int64{1, 2, 3}, broker.lookups[0].tokens)
	assert.Equal(t, 0, report.Triggered)
}

func TestHeterogeneousCredentials(t *testing.T) {
	ctx := context.Background()
	store := memory.NewOrderStore()
	broker := newFakeBroker()

	seedWatch(t, store, "a1", 1, "95", "tok-a")
	seedWatch(t, store, "b1", 1, "95", "tok-b")
	seedWatch(t, store, "b2", 2, "95", "tok-b")
	broker.setPrice(1, "90")
	broker.setPrice(2, "90")

	report, err := newMonitor(store, broker).RunPass(ctx)
	require.NoError(t, err)

	assert.Equal(t, 2, report.PriceLookups)
	total := 0
	for _, l := range broker.lookups {
		total += len(l.tokens)
	}
	assert.Equal(t, 2, total)
	assert.Equal(t, 3, report.Executed)
	assert.Empty(t, store.ListWatches(ctx))
}

func TestLiquidationFailureKeepsWatch(t *testing.T) {
	ctx := context.Background()
	store := memory.NewOrderStore()
	broker := newFakeBroker()
	broker.failing = true

	seedWatch(t, store, "A1", 1, "95", "tok")
	broker.setPrice(1, "90")
	m := newMonitor(store, broker)

	report, err := m.RunPass(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Failed)
	assert.Len(t, store.ListWatches(ctx), 1)
	rec, _ := store.Get(ctx, "A1")
	assert.Nil(t, rec.Execution)

	broker.mu.Lock()
	broker.failing = false
	broker.mu.Unlock()

	report, err = m.RunPass(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Executed)
	assert.Empty(t, store.ListWatches(ctx))
}

func TestMissingPriceSkipsInstrument(t *testing.T) {
	ctx := context.Background()
	store := memory.NewOrderStore()
	broker := newFakeBroker()

	seedWatch(t, store, "A1", 1, "95", "tok")
	seedWatch(t, store, "B1", 2, "95", "tok")
	broker.setPrice(2, "90")

	report, err := newMonitor(store, broker).RunPass(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.SkippedNoPrice)
	assert.Equal(t, 1, report.Executed)

	watches := store.ListWatches(ctx)
	require.Len(t, watches, 1)
	assert.Equal(t, "A1", watches[0].OrderID)
}

func TestWatchWithoutCredentialSkipped(t *testing.T) {
	ctx := context.Background()
	store := memory.NewOrderStore()
	broker := newFakeBroker()

	seedWatch(t, store, "A1", 1, "95", "")
	broker.setPrice(1, "90")

	report, err := newMonitor(store, broker).RunPass(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.SkippedNoCredential)
	assert.Empty(t, broker.lookups)
	assert.Len(t, store.ListWatches(ctx), 1)
}

func TestConcurrentPassesLiquidateAtMostOnce(t *testing.T) {
	ctx := context.Background()
	store := memory.NewOrderStore()
	broker := newFakeBroker()
	broker.gate = make(chan struct{})
	broker.entered = make(chan struct{}, 1)

	seedWatch(t, store, "A1", 1, "95", "tok")
	broker.setPrice(1, "90")
	m := newMonitor(store, broker)

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = m.RunPass(ctx)
	}()
	<-broker.entered

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := m.RunPass(ctx)
			assert.ErrorIs(t, err, ErrPassInProgress)
		}()
	}
	wg.Wait()

	close(broker.gate)
	<-done

	assert.Equal(t, 1, broker.placedCount())
	assert.Empty(t, store.ListWatches(ctx))

	report, err := m.RunPass(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, report.Watches)
	assert.Equal(t, 1, broker.placedCount())
}

type heldLock struct{ held bool }

func (l *heldLock) TryAcquire(context.Context) (string, bool, error) {
	if l.held {
		return "", false, nil
	}
	l.held = true
	return "t", true, nil
}

func (l *heldLock) Release(context.Context, string) error {
	l.held = false
	return nil
}

func TestDistributedLockHeldElsewhere(t *testing.T) {
	ctx := context.Background()
	store := memory.NewOrderStore()
	broker := newFakeBroker()
	seedWatch(t, store, "A1", 1, "95", "tok")
	broker.setPrice(1, "90")

	lock := &heldLock{held: true}
	m := newMonitor(store, broker, WithPassLock(lock))

	_, err := m.RunPass(ctx)
	require.ErrorIs(t, err, ErrPassInProgress)
	assert.Equal(t, 0, broker.placedCount())

	lock.held = false
	report, err := m.RunPass(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Executed)
	assert.False(t, lock.held)
}

type sharedLockStore struct {
	mu   sync.Mutex
	data map[string]string
}

func (s *sharedLockStore) SetNX(_ context.Context, key string, value any, _ time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.data[key]; ok {
		return false, nil
	}
	s.data[key] = value.(string)
	return true, nil
}

func (s *sharedLockStore) DeleteIfValue(_ context.Context, key, value string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.data[key] != value {
		return false, nil
	}
	delete(s.data, key)
	return true, nil
}

func TestInstancesWithSeparateStoresDoNotBlockEachOther(t *testing.T) {
	ctx := context.Background()
	redis := &sharedLockStore{data: map[string]string{}}
	const key = "orderbridge:stoploss:pass"

	storeA := memory.NewOrderStore()
	brokerA := newFakeBroker()
	brokerA.gate = make(chan struct{})
	brokerA.entered = make(chan struct{}, 1)
	seedWatch(t, storeA, "A1", 1, "95", "tok-a")
	brokerA.setPrice(1, "94")
	monitorA := newMonitor(storeA, brokerA, WithPassLock(lock.NewRedisPassLock(redis, key, "node-a", time.Minute)))

	storeB := memory.NewOrderStore()
	brokerB := newFakeBroker()
	seedWatch(t, storeB, "B1", 1, "95", "tok-b")
	brokerB.setPrice(1, "94")
	monitorB := newMonitor(storeB, brokerB, WithPassLock(lock.NewRedisPassLock(redis, key, "node-b", time.Minute)))

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = monitorA.RunPass(ctx)
	}()
	<-brokerA.entered

	report, err := monitorB.RunPass(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Executed)
	assert.Equal(t, 1, brokerB.placedCount())
	assert.Empty(t, storeB.ListWatches(ctx))

	close(brokerA.gate)
	<-done
	assert.Equal(t, 1, brokerA.placedCount())
	assert.Empty(t, storeA.ListWatches(ctx))
}

func TestSameInstanceSharesPassLock(t *testing.T) {
	ctx := context.Background()
	redis := &sharedLockStore{data: map[string]string{}}
	const key = "orderbridge:stoploss:pass"

	held := lock.NewRedisPassLock(redis, key, "node-a", time.Minute)
	token, ok, err := held.TryAcquire(ctx)
	require.NoError(t, err)
	require.True(t, ok)

	store := memory.NewOrderStore()
	broker := newFakeBroker()
	seedWatch(t, store, "A1", 1, "95", "tok")
	broker.setPrice(1, "94")
	m := newMonitor(store, broker, WithPassLock(lock.NewRedisPassLock(redis, key, "node-a", time.Minute)))

	_, err = m.RunPass(ctx)
	require.ErrorIs(t, err, ErrPassInProgress)
	assert.Equal(t, 0, broker.placedCount())

	require.NoError(t, held.Release(ctx, token))
	report, err := m.RunPass(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Executed)
}

func TestStartRunsUntilCancelled(t *testing.T) {
	store := memory.NewOrderStore()
	broker := newFakeBroker()
	seedWatch(t, store, "A1", 1, "95", "tok")
	broker.setPrice(1, "90")

	m := NewStopLossMonitor(store, broker, messaging.NoopEventPublisher{}, 10*time.Millisecond)
	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- m.Start(ctx) }()

	require.Eventually(t, func() bool {
		return len(store.ListWatches(context.Background())) == 0
	}, 2*time.Second, 5*time.Millisecond)

	cancel()
	select {
	case err := <-errCh:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("monitor did not stop")
	}
	assert.Equal(t, 1, broker.placedCount())
}

func TestEndToEndStopLoss(t *testing.T) {
	ctx := context.Background()
	store := memory.NewOrderStore()
	broker := newFakeBroker()

	ingestBroker := &ingestOnly{id: "1001-BUY"}
	ing := orderapp.NewBatchIngestor(resolver{"ABC": 1001}, ingestBroker, store, messaging.NoopEventPublisher{})
	report := ing.Process(ctx, orderapp.Batch{ID: "b1", Credential: "tok", Rows: []map[string]any{{
		"symbol": "ABC", "transaction_type": "BUY", "quantity": 10, "price": 100, "stop_loss_price": 95,
	}}})
	require.Equal(t, 1, report.Placed)

	m := newMonitor(store, broker)

	broker.setPrice(1001, "96")
	_, err := m.RunPass(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, broker.placedCount())
	assert.Len(t, store.ListWatches(ctx), 1)

	broker.setPrice(1001, "94")
	_, err = m.RunPass(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, broker.placedCount())

	sell := broker.placed[0]
	assert.Equal(t, orderdomain.TransactionSell, sell.TransactionType)
	assert.Equal(t, orderdomain.OrderTypeMarket, sell.OrderType)
	assert.Equal(t, int64(10), sell.Quantity)
	assert.Equal(t, int64(1001), sell.InstrumentToken)
	assert.Equal(t, "DAY", sell.Validity)
	assert.Equal(t, "stop-loss-order", sell.Tag)
	assert.True(t, sell.Price.IsZero())

	rec, err := store.Get(ctx, "1001-BUY")
	require.NoError(t, err)
	require.NotNil(t, rec.Execution)
	assert.True(t, rec.Execution.Price.Equal(decimal.NewFromInt(94)))
	assert.Equal(t, "SL1", rec.Execution.OrderID)
	assert.Empty(t, store.ListWatches(ctx))

	_, err = m.RunPass(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, broker.placedCount())
}

type resolver map[string]int64

func (r resolver) Resolve(symbol string) (int64, bool) {
	t, ok := r[symbol]
	return t, ok
}

type ingestOnly struct{ id string }

func (b *ingestOnly) PlaceOrder(context.Context, orderdomain.PlacementRequest, orderdomain.Credential) (*orderdomain.Placement, error) {
	return &orderdomain.Placement{OrderID: b.id}, nil
}

func (b *ingestOnly) GetLastPrices(context.Context, []int64, orderdomain.Credential) map[int64]decimal.Decimal {
	return nil
}
