package mysql

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wyfcoding/orderbridge/internal/referencedata/domain"
	driver "gorm.io/driver/mysql"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func dryRunDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(driver.New(driver.Config{
		DSN:                       "orderbridge:secret@tcp(127.0.0.1:3306)/orderbridge?parseTime=true",
		SkipInitializeWithVersion: true,
	}), &gorm.Config{
		DryRun:               true,
		DisableAutomaticPing: true,
		Logger:               gormlogger.Discard,
	})
	require.NoError(t, err)
	return db
}

func TestInstrumentSourceQuery(t *testing.T) {
	db := dryRunDB(t)

	var models []InstrumentModel
	stmt := NewInstrumentSource(db, "NSE").query(context.Background()).Find(&models).Statement
	sql := stmt.SQL.String()
	assert.Contains(t, sql, "FROM `instruments`")
	assert.Contains(t, sql, "WHERE exchange = ?")
	assert.Contains(t, sql, "ORDER BY id ASC")
	assert.Equal(t, []any{"NSE"}, stmt.Vars)

	models = nil
	stmt = NewInstrumentSource(db, "").query(context.Background()).Find(&models).Statement
	assert.NotContains(t, stmt.SQL.String(), "WHERE")
	assert.Empty(t, stmt.Vars)
}

func TestInstrumentSourceFetchDryRun(t *testing.T) {
	src := NewInstrumentSource(dryRunDB(t), "NSE")
	assert.Equal(t, "mysql:instruments:NSE", src.Name())
	assert.Equal(t, "mysql:instruments", NewInstrumentSource(nil, "").Name())

	recs, err := src.Fetch(context.Background())
	require.NoError(t, err)
	assert.Empty(t, recs)
}

func TestToRawInstruments(t *testing.T) {
	sym := func(s string) *string { return &s }
	tok := func(n int64) *int64 { return &n }

	got := toRawInstruments([]InstrumentModel{
		{ID: 1, Exchange: "NSE", Symbol: sym("ABC"), InstrumentToken: tok(1001)},
		{ID: 2, Exchange: "NSE", Symbol: nil, InstrumentToken: tok(1002)},
		{ID: 3, Exchange: "NSE", Symbol: sym("XYZ"), InstrumentToken: nil},
	})

	assert.Equal(t, []domain.RawInstrument{
		{Symbol: "ABC", Token: int64(1001)},
		{Symbol: nil, Token: int64(1002)},
		{Symbol: "XYZ", Token: nil},
	}, got)
}
