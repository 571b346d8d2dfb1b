package mysql

// InstrumentModel MySQL 合约表映射。
// symbol 与 instrument_token 允许为空，为空的行在加载时被跳过。
type InstrumentModel struct {
	ID              uint    `gorm:"primaryKey;column:id"`
	Exchange        string  `gorm:"column:exchange;type:varchar(16);index"`
	Symbol          *string `gorm:"column:symbol;type:varchar(64);index"`
	InstrumentToken *int64  `gorm:"column:instrument_token"`
}

// TableName 指定表名
func (InstrumentModel) TableName() string { return "instruments" }
