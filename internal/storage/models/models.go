package models

import "time"

// BaseModel replaces gorm.Model for tighter control over the columns.
type BaseModel struct {
	ID        uint       `gorm:"primarykey"`
	CreatedAt time.Time  `gorm:"default:CURRENT_TIMESTAMP"`
	UpdatedAt time.Time  `gorm:"default:CURRENT_TIMESTAMP"`
	DeletedAt *time.Time `gorm:"index"`
}

// PoolSnapshot is a periodic sample of one pool's observable state. Big
// amounts are stored as decimal strings to keep the full 10^18 precision.
type PoolSnapshot struct {
	BaseModel
	ModelID   string `gorm:"index;not null;type:varchar(128)"`
	Reserve   string `gorm:"not null;type:varchar(80)"`
	Supply    string `gorm:"not null;type:varchar(80)"`
	SpotPrice string `gorm:"not null;type:varchar(80)"`
	Phase     string `gorm:"not null;type:varchar(20)"`
	Graduated bool   `gorm:"not null"`
	Paused    bool   `gorm:"not null"`
}

// TradeRecord is one executed buy or sell.
type TradeRecord struct {
	BaseModel
	ModelID   string `gorm:"index;not null;type:varchar(128)"`
	Side      string `gorm:"not null;type:varchar(8)"`
	Account   string `gorm:"index;not null;type:varchar(128)"`
	AmountIn  string `gorm:"not null;type:varchar(80)"`
	AmountOut string `gorm:"not null;type:varchar(80)"`
	Fee       string `gorm:"not null;type:varchar(80)"`
}
