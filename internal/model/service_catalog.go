package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Service is a catalog entry a client can request. Conversion copies its name
// and default commission terms onto the generated line items.
type Service struct {
	ID             string           `gorm:"type:varchar(64);primaryKey" json:"id"`
	Name           string           `gorm:"type:varchar(255);not null" json:"name"`
	DefaultPrice   decimal.Decimal  `gorm:"type:decimal(18,4);not null;default:0" json:"default_price"`
	CommissionRate *decimal.Decimal `gorm:"type:decimal(18,4)" json:"commission_rate"`
	CommissionType *string          `gorm:"type:varchar(20)" json:"commission_type"`
	IsActive       bool             `gorm:"not null" json:"is_active"`
	CreatedAt      time.Time        `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time        `gorm:"autoUpdateTime" json:"updated_at"`
}
