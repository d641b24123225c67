package model

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// StaffCommission is one row of the commission report.
type StaffCommission struct {
	ProfileID     uuid.UUID       `json:"profile_id"`
	FullName      string          `json:"full_name,omitempty"`
	DailyAmount   decimal.Decimal `json:"daily_amount"`
	WeeklyAmount  decimal.Decimal `json:"weekly_amount"`
	MonthlyAmount decimal.Decimal `json:"monthly_amount"`
}

// LineCommission is the commission earned on one line of a work order.
type LineCommission struct {
	ServiceID  string          `json:"service_id"`
	Commission decimal.Decimal `json:"commission"`
}
