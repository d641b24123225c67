package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type WorkOrderStatus string

const (
	WorkOrderPending    WorkOrderStatus = "pending"
	WorkOrderApproved   WorkOrderStatus = "approved"
	WorkOrderRejected   WorkOrderStatus = "rejected"
	WorkOrderInProgress WorkOrderStatus = "in_progress"
	WorkOrderCompleted  WorkOrderStatus = "completed"
	WorkOrderCancelled  WorkOrderStatus = "cancelled"
	WorkOrderInvoiced   WorkOrderStatus = "invoiced"
)

// WorkOrder is the job card staff execute. QuoteRequestID is the back-reference
// to the quote it was converted from and is unique so a quote yields one work order.
type WorkOrder struct {
	ID             uuid.UUID                            `gorm:"type:uuid;primaryKey" json:"id"`
	WorkOrderNo    string                               `gorm:"type:varchar(30);uniqueIndex;not null" json:"work_order_no"`
	QuoteRequestID *uuid.UUID                           `gorm:"type:uuid;uniqueIndex" json:"quote_request_id"`
	ClientID       uuid.UUID                            `gorm:"type:uuid;not null;index" json:"client_id"`
	Vehicle        Vehicle                              `gorm:"embedded;embeddedPrefix:vehicle_" json:"vehicle"`
	Description    string                               `gorm:"type:text" json:"description"`
	Services       datatypes.JSONSlice[ServiceLineItem] `json:"services"`
	Subtotal       decimal.Decimal                      `gorm:"type:decimal(18,4);not null;default:0" json:"subtotal"`
	Status         WorkOrderStatus                      `gorm:"type:varchar(20);not null;default:'pending';index" json:"status"`
	CreatedBy      *uuid.UUID                           `gorm:"type:uuid" json:"created_by"`
	CompletedAt    *time.Time                           `gorm:"index" json:"completed_at"`
	CreatedAt      time.Time                            `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time                            `gorm:"autoUpdateTime" json:"updated_at"`
}

func (w *WorkOrder) BeforeCreate(tx *gorm.DB) error {
	if w.ID == uuid.Nil {
		w.ID = uuid.New()
	}
	return nil
}

// IsAssigned reports whether staffID is credited on any line.
func (w WorkOrder) IsAssigned(staffID uuid.UUID) bool {
	for _, it := range w.Services {
		for _, id := range it.Assignees() {
			if id == staffID {
				return true
			}
		}
	}
	return false
}
