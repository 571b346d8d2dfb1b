package http

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wyfcoding/orderbridge/internal/order/application"
	"github.com/wyfcoding/orderbridge/internal/order/domain"
	"github.com/wyfcoding/orderbridge/internal/order/infrastructure/messaging"
	"github.com/wyfcoding/orderbridge/internal/order/infrastructure/persistence/memory"
)

type stubBroker struct{}

func (stubBroker) PlaceOrder(context.Context, domain.PlacementRequest, domain.Credential) (*domain.Placement, error) {
	return &domain.Placement{OrderID: "B-1"}, nil
}

func (stubBroker) GetLastPrices(context.Context, []int64, domain.Credential) map[int64]decimal.Decimal {
	return nil
}

type resolver map[string]int64

func (r resolver) Resolve(s string) (int64, bool) { t, ok := r[s]; return t, ok }
func (r resolver) Count() int                     { return len(r) }

type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func setup(t *testing.T, queueSize int, start bool) (*gin.Engine, *memory.OrderStore) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	store := memory.NewOrderStore()
	res := resolver{"ABC": 1001}
	ing := application.NewBatchIngestor(res, stubBroker{}, store, messaging.NoopEventPublisher{})
	d := application.NewBatchDispatcher(ing, 1, queueSize, 10, nil)
	if start {
		ctx, cancel := context.WithCancel(context.Background())
		t.Cleanup(cancel)
		d.Start(ctx)
	}

	router := gin.New()
	NewOrderHandler(application.NewOrderQueryService(store, res), d).RegisterRoutes(&router.RouterGroup)
	return router, store
}

func do(router *gin.Engine, method, path string, body any) (*httptest.ResponseRecorder, envelope) {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	var env envelope
	_ = json.Unmarshal(w.Body.Bytes(), &env)
	return w, env
}

func TestSubmitBatchValidation(t *testing.T) {
	router, _ := setup(t, 4, false)

	w, _ := do(router, http.MethodPost, "/api/v1/batches", map[string]any{"rows": []any{map[string]any{"symbol": "ABC"}}})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, _ = do(router, http.MethodPost, "/api/v1/batches", map[string]any{"access_token": "tok", "rows": []any{}})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/batches", bytes.NewBufferString("{not json"))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSubmitBatchQueueFull(t *testing.T) {
	router, _ := setup(t, 1, false)
	body := map[string]any{"access_token": "tok", "rows": []any{map[string]any{"symbol": "ABC"}}}

	w, _ := do(router, http.MethodPost, "/api/v1/batches", body)
	assert.Equal(t, http.StatusAccepted, w.Code)

	w, _ = do(router, http.MethodPost, "/api/v1/batches", body)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
}

func TestBatchLifecycleAndQueries(t *testing.T) {
	router, store := setup(t, 4, true)

	w, env := do(router, http.MethodPost, "/api/v1/batches", map[string]any{
		"access_token": "secret-token",
		"rows": []any{
			map[string]any{"symbol": "ABC", "quantity": 10, "price": 100, "stop_loss_price": 95},
			map[string]any{"symbol": "NOPE"},
		},
	})
	require.Equal(t, http.StatusAccepted, w.Code)
	var accepted struct {
		BatchID string `json:"batch_id"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &accepted))
	require.NotEmpty(t, accepted.BatchID)

	require.Eventually(t, func() bool {
		_, env := do(router, http.MethodGet, "/api/v1/batches/"+accepted.BatchID, nil)
		var r application.BatchReport
		return json.Unmarshal(env.Data, &r) == nil && r.State == application.BatchFinished
	}, 2*time.Second, 5*time.Millisecond)

	_, env = do(router, http.MethodGet, "/api/v1/batches/"+accepted.BatchID, nil)
	var report application.BatchReport
	require.NoError(t, json.Unmarshal(env.Data, &report))
	assert.Equal(t, 1, report.Placed)
	assert.Equal(t, 1, report.Skipped)

	w, env = do(router, http.MethodGet, "/api/v1/orders", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.NotContains(t, w.Body.String(), "secret-token")
	var view struct {
		Orders     []map[string]any   `json:"orders"`
		StopLosses []map[string]any   `json:"stop_losses"`
		Counts     domain.StoreCounts `json:"counts"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &view))
	assert.Len(t, view.Orders, 1)
	assert.Len(t, view.StopLosses, 1)
	assert.Equal(t, 1, view.Counts.Watches)

	w, _ = do(router, http.MethodGet, "/api/v1/orders/B-1", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	w, _ = do(router, http.MethodGet, "/api/v1/orders/missing", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	w, _ = do(router, http.MethodGet, "/api/v1/batches/missing", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w, env = do(router, http.MethodGet, "/api/v1/summary", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var sum map[string]int
	require.NoError(t, json.Unmarshal(env.Data, &sum))
	assert.Equal(t, 1, sum["orders"])
	assert.Equal(t, 1, sum["instruments"])
	assert.Equal(t, 1, sum["stop_loss_watches"])

	w, _ = do(router, http.MethodGet, "/api/v1/stop-losses", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	w, _ = do(router, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	assert.Equal(t, 1, store.Counts(context.Background()).Placed)
}
