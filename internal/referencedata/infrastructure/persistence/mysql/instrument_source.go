package mysql

import (
	"context"
	"fmt"

	"github.com/wyfcoding/orderbridge/internal/referencedata/domain"
	"gorm.io/gorm"
)

// InstrumentSource 从 instruments 表读取合约映射
type InstrumentSource struct {
	db       *gorm.DB
	exchange string
}

// NewInstrumentSource 创建数据源；exchange 为空时读取全部交易所
func NewInstrumentSource(db *gorm.DB, exchange string) *InstrumentSource {
	return &InstrumentSource{db: db, exchange: exchange}
}

// Name 数据源名称
func (s *InstrumentSource) Name() string {
	if s.exchange == "" {
		return "mysql:instruments"
	}
	return "mysql:instruments:" + s.exchange
}

// Fetch 按主键顺序读取，保证重复代码"后写覆盖"的语义稳定
func (s *InstrumentSource) Fetch(ctx context.Context) ([]domain.RawInstrument, error) {
	var models []InstrumentModel
	if err := s.query(ctx).Find(&models).Error; err != nil {
		return nil, fmt.Errorf("failed to query instruments: %w", err)
	}
	return toRawInstruments(models), nil
}

func (s *InstrumentSource) query(ctx context.Context) *gorm.DB {
	query := s.db.WithContext(ctx).Model(&InstrumentModel{})
	if s.exchange != "" {
		query = query.Where("exchange = ?", s.exchange)
	}
	return query.Order("id ASC")
}

func toRawInstruments(models []InstrumentModel) []domain.RawInstrument {
	out := make([]domain.RawInstrument, 0, len(models))
	for _, m := range models {
		var rec domain.RawInstrument
		if m.Symbol != nil {
			rec.Symbol = *m.Symbol
		}
		if m.InstrumentToken != nil {
			rec.Token = *m.InstrumentToken
		}
		out = append(out, rec)
	}
	return out
}
