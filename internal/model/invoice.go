package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type InvoiceStatus string

const (
	InvoiceDraft   InvoiceStatus = "draft"
	InvoiceSent    InvoiceStatus = "sent"
	InvoicePaid    InvoiceStatus = "paid"
	InvoiceOverdue InvoiceStatus = "overdue"
)

// Invoice bills a client for the services of a quote or a completed work order.
// Each origin back-reference is unique: one invoice per quote and per work order.
type Invoice struct {
	ID             uuid.UUID                            `gorm:"type:uuid;primaryKey" json:"id"`
	InvoiceNo      string                               `gorm:"type:varchar(30);uniqueIndex;not null" json:"invoice_no"`
	QuoteRequestID *uuid.UUID                           `gorm:"type:uuid;uniqueIndex" json:"quote_request_id"`
	WorkOrderID    *uuid.UUID                           `gorm:"type:uuid;uniqueIndex" json:"work_order_id"`
	ClientID       uuid.UUID                            `gorm:"type:uuid;not null;index" json:"client_id"`
	Vehicle        Vehicle                              `gorm:"embedded;embeddedPrefix:vehicle_" json:"vehicle"`
	Services       datatypes.JSONSlice[ServiceLineItem] `json:"services"`
	Subtotal       decimal.Decimal                      `gorm:"type:decimal(18,4);not null" json:"subtotal"`
	TotalAmount    decimal.Decimal                      `gorm:"type:decimal(18,4);not null" json:"total_amount"`
	Status         InvoiceStatus                        `gorm:"type:varchar(20);not null;default:'draft';index" json:"status"`
	DueDate        *time.Time                           `json:"due_date"`
	SentAt         *time.Time                           `json:"sent_at"`
	PaidAt         *time.Time                           `json:"paid_at"`
	Note           string                               `gorm:"type:text" json:"note"`
	CreatedBy      *uuid.UUID                           `gorm:"type:uuid" json:"created_by"`
	CreatedAt      time.Time                            `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time                            `gorm:"autoUpdateTime" json:"updated_at"`
}

func (i *Invoice) BeforeCreate(tx *gorm.DB) error {
	if i.ID == uuid.Nil {
		i.ID = uuid.New()
	}
	return nil
}
