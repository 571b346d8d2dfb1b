// Package upstox 实现基于 Upstox v2 REST 接口的券商网关
package upstox

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"github.com/shopspring/decimal"
	"github.com/wyfcoding/orderbridge/internal/order/domain"
	"github.com/wyfcoding/orderbridge/pkg/logger"
	"github.com/wyfcoding/orderbridge/pkg/metrics"
	"golang.org/x/sync/errgroup"
)

const (
	placeOrderPath = "/v2/order/place"
	lastPricePath  = "/v2/market-quote/ltp"

	maxBodyBytes = 1 << 20
)

var codec = sonic.Config{UseNumber: true}.Froze()

// Config 网关配置
type Config struct {
	BaseURL string
	Timeout time.Duration
	// 行情查询并发上限
	PriceConcurrency int
}

// Gateway Upstox 券商网关。除共享的 http.Client 外无状态，可并发使用。
type Gateway struct {
	baseURL     string
	client      *http.Client
	concurrency int
	metrics     *metrics.Metrics
	logger      *slog.Logger
}

var _ domain.BrokerGateway = (*Gateway)(nil)

// NewGateway 创建网关；client 为空时按配置的超时创建，m 可为空
func NewGateway(cfg Config, client *http.Client, m *metrics.Metrics) *Gateway {
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}
	concurrency := cfg.PriceConcurrency
	if concurrency <= 0 {
		concurrency = 1
	}
	return &Gateway{
		baseURL:     strings.TrimRight(cfg.BaseURL, "/"),
		client:      client,
		concurrency: concurrency,
		metrics:     m,
		logger:      logger.Module("upstox_gateway"),
	}
}

// PlaceOrder 提交订单
func (g *Gateway) PlaceOrder(ctx context.Context, req domain.PlacementRequest, cred domain.Credential) (*domain.Placement, error) {
	payload, err := codec.Marshal(placeOrderPayload{
		Quantity:          req.Quantity,
		Product:           req.Product,
		Validity:          req.Validity,
		Price:             json.Number(req.Price.String()),
		Tag:               req.Tag,
		InstrumentToken:   req.InstrumentToken,
		OrderType:         string(req.OrderType),
		TransactionType:   string(req.TransactionType),
		DisclosedQuantity: req.DisclosedQuantity,
		TriggerPrice:      json.Number(req.TriggerPrice.String()),
		IsAMO:             req.IsAMO,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode order payload: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+placeOrderPath, bytes.NewReader(payload))
	if err != nil {
		return nil, &domain.BrokerError{Kind: domain.KindTransport, Err: err}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	setAuth(httpReq, cred)

	status, body, err := g.do(httpReq)
	if err != nil {
		return nil, &domain.BrokerError{Kind: domain.KindTransport, Err: err}
	}
	raw := rawJSON(body)

	var resp Response[ResponsePlaceOrder]
	decodeErr := codec.Unmarshal(body, &resp)
	if decodeErr == nil && resp.Failed() {
		return nil, &domain.BrokerError{Kind: domain.KindRejection, StatusCode: status, Message: resp.Message(), Raw: raw}
	}
	if status < 200 || status >= 300 {
		return nil, &domain.BrokerError{Kind: domain.KindHTTPStatus, StatusCode: status, Message: snippet(body), Raw: raw}
	}
	if decodeErr != nil {
		return nil, &domain.BrokerError{Kind: domain.KindHTTPStatus, StatusCode: status, Message: "unreadable response body", Raw: raw, Err: decodeErr}
	}

	return &domain.Placement{OrderID: resp.Data.ID(), Raw: raw}, nil
}

// GetLastPrices 按合约并发查询最新价，并发数受 PriceConcurrency 限制。
// 查询失败的合约记录日志后从结果中省略。
func (g *Gateway) GetLastPrices(ctx context.Context, tokens []int64, cred domain.Credential) map[int64]decimal.Decimal {
	unique := make([]int64, 0, len(tokens))
	seen := make(map[int64]struct{}, len(tokens))
	for _, t := range tokens {
		if t <= 0 {
			continue
		}
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		unique = append(unique, t)
	}

	var (
		mu     sync.Mutex
		prices = make(map[int64]decimal.Decimal, len(unique))
		eg     errgroup.Group
	)
	eg.SetLimit(g.concurrency)

	for _, token := range unique {
		eg.Go(func() error {
			if g.metrics != nil {
				g.metrics.PriceLookupsTotal.Inc()
			}
			price, err := g.lastPrice(ctx, token, cred)
			if err != nil {
				if g.metrics != nil {
					g.metrics.PriceLookupFailuresTotal.Inc()
				}
				g.logger.WarnContext(ctx, "last price lookup failed", "instrument_token", token, "error", err)
				return nil
			}
			mu.Lock()
			prices[token] = price
			mu.Unlock()
			return nil
		})
	}
	_ = eg.Wait()

	return prices
}

func (g *Gateway) lastPrice(ctx context.Context, token int64, cred domain.Credential) (decimal.Decimal, error) {
	key := strconv.FormatInt(token, 10)
	endpoint := g.baseURL + lastPricePath + "?" + url.Values{"instrument_token": {key}}.Encode()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return decimal.Zero, &domain.BrokerError{Kind: domain.KindTransport, Err: err}
	}
	setAuth(httpReq, cred)

	status, body, err := g.do(httpReq)
	if err != nil {
		return decimal.Zero, &domain.BrokerError{Kind: domain.KindTransport, Err: err}
	}

	var resp Response[map[string]ResponseLastPrice]
	decodeErr := codec.Unmarshal(body, &resp)
	if decodeErr == nil && resp.Failed() {
		return decimal.Zero, &domain.BrokerError{Kind: domain.KindRejection, StatusCode: status, Message: resp.Message()}
	}
	if status < 200 || status >= 300 {
		return decimal.Zero, &domain.BrokerError{Kind: domain.KindHTTPStatus, StatusCode: status, Message: snippet(body)}
	}
	if decodeErr != nil {
		return decimal.Zero, fmt.Errorf("failed to decode quote: %w", decodeErr)
	}

	quote, ok := resp.Data[key]
	if !ok && len(resp.Data) == 1 {
		// 券商按 instrument key（如 NSE_EQ|INE...）返回时只有一条，
		// 但 key 或 instrument_token 指向其他合约时不能采用
		for k, q := range resp.Data {
			if sameInstrument(k, key) && sameInstrument(q.TokenString(), key) {
				quote, ok = q, true
			}
		}
	}
	if !ok {
		return decimal.Zero, fmt.Errorf("no quote for instrument %s", key)
	}
	if quote.LastPrice == nil {
		return decimal.Zero, errors.New("no last price in quote")
	}
	return *quote.LastPrice, nil
}

// sameInstrument 判断报价标识是否可能属于 want。
// 空值或非数字的 instrument key 无法比较，视为一致；数字标识必须相等。
func sameInstrument(id, want string) bool {
	id = strings.TrimSpace(id)
	if id == "" {
		return true
	}
	if i := strings.LastIndexAny(id, "|:"); i >= 0 {
		id = id[i+1:]
	}
	if _, err := strconv.ParseInt(id, 10, 64); err != nil {
		return true
	}
	return id == want
}

func (g *Gateway) do(req *http.Request) (int, []byte, error) {
	req.Header.Set("Accept", "application/json")
	resp, err := g.client.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return resp.StatusCode, nil, err
	}
	return resp.StatusCode, body, nil
}

func setAuth(req *http.Request, cred domain.Credential) {
	if !cred.Empty() {
		req.Header.Set("Authorization", "Bearer "+string(cred))
	}
}

// rawJSON 保留券商原始报文；非 JSON 内容以字符串形式保存
func rawJSON(body []byte) json.RawMessage {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return nil
	}
	if sonic.Valid(trimmed) {
		return append(json.RawMessage(nil), trimmed...)
	}
	quoted, err := sonic.Marshal(string(trimmed))
	if err != nil {
		return nil
	}
	return quoted
}

func snippet(body []byte) string {
	s := strings.TrimSpace(string(body))
	if len(s) > 256 {
		s = s[:256]
	}
	if s == "" {
		return "empty response body"
	}
	return s
}
