package application

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync/atomic"

	"github.com/wyfcoding/orderbridge/internal/referencedata/domain"
	"github.com/wyfcoding/orderbridge/pkg/logger"
)

// LoadResult 一次加载的统计
type LoadResult struct {
	// 去重后的映射数量
	Loaded int `json:"loaded"`
	// 缺少字段或格式错误而被忽略的记录数
	Skipped int `json:"skipped"`
	// 被后续记录覆盖的重复代码数
	Duplicates int `json:"duplicates"`
}

// Registry 合约注册表。
// 映射表以不可变快照的形式发布，读操作无需加锁。
type Registry struct {
	table  atomic.Pointer[map[string]int64]
	logger *slog.Logger
}

// NewRegistry 创建空注册表
func NewRegistry() *Registry {
	r := &Registry{logger: logger.Module("instrument_registry")}
	empty := make(map[string]int64)
	r.table.Store(&empty)
	return r
}

// Load 从数据源构建映射表并替换当前快照。
// 单条记录缺少代码或合约编号时跳过计数，重复代码以最后一条为准。
func (r *Registry) Load(ctx context.Context, src domain.InstrumentSource) (LoadResult, error) {
	var result LoadResult

	records, err := src.Fetch(ctx)
	if err != nil {
		r.logger.ErrorContext(ctx, "failed to read instrument source", "source", src.Name(), "error", err)
		return result, fmt.Errorf("load instruments from %s: %w", src.Name(), err)
	}

	table := make(map[string]int64, len(records))
	for i, rec := range records {
		raw, ok := rec.Symbol.(string)
		symbol := domain.NormalizeSymbol(raw)
		if !ok || symbol == "" {
			result.Skipped++
			r.logger.DebugContext(ctx, "instrument record without symbol", "index", i)
			continue
		}
		token, ok := domain.ParseToken(rec.Token)
		if !ok {
			result.Skipped++
			r.logger.DebugContext(ctx, "instrument record with invalid token", "index", i, "symbol", symbol)
			continue
		}
		if _, dup := table[symbol]; dup {
			result.Duplicates++
		}
		table[symbol] = token
	}

	result.Loaded = len(table)
	r.table.Store(&table)

	r.logger.InfoContext(ctx, "instrument mappings loaded",
		"source", src.Name(),
		"loaded", result.Loaded,
		"skipped", result.Skipped,
		"duplicates", result.Duplicates,
	)
	return result, nil
}

// Resolve 按交易代码查询合约编号
func (r *Registry) Resolve(symbol string) (int64, bool) {
	key := domain.NormalizeSymbol(symbol)
	if key == "" {
		return 0, false
	}
	token, ok := (*r.table.Load())[key]
	return token, ok
}

// Count 当前映射数量
func (r *Registry) Count() int {
	return len(*r.table.Load())
}

// List 返回按代码排序的映射列表副本
func (r *Registry) List() []domain.Instrument {
	table := *r.table.Load()
	out := make([]domain.Instrument, 0, len(table))
	for symbol, token := range table {
		out = append(out, domain.Instrument{Symbol: symbol, Token: token})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out
}
