package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	ActionCreateQuote         = "CREATE_QUOTE"
	ActionEstimateQuote       = "ESTIMATE_QUOTE"
	ActionRespondQuote        = "RESPOND_QUOTE"
	ActionOverrideQuote       = "OVERRIDE_QUOTE_RESPONSE"
	ActionArchiveQuote        = "ARCHIVE_QUOTE"
	ActionUnarchiveQuote      = "UNARCHIVE_QUOTE"
	ActionUpdateQuoteMedia    = "UPDATE_QUOTE_MEDIA"
	ActionDeleteQuote         = "DELETE_QUOTE"
	ActionConvertToWorkOrder  = "CONVERT_TO_WORK_ORDER"
	ActionConvertToInvoice    = "CONVERT_TO_INVOICE"
	ActionCreateWorkOrder     = "CREATE_WORK_ORDER"
	ActionTransitionWorkOrder = "TRANSITION_WORK_ORDER"
	ActionUpdateWorkOrderLine = "UPDATE_WORK_ORDER_SERVICES"
	ActionTransitionInvoice   = "TRANSITION_INVOICE"
)

// AuditLog tracks who did what to which record, and when.
type AuditLog struct {
	ID         uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	UserID     *uuid.UUID `gorm:"type:uuid;index" json:"user_id"`
	Action     string     `gorm:"type:varchar(50);not null;index" json:"action"`
	EntityType string     `gorm:"type:varchar(50);index" json:"entity_type"`
	EntityID   string     `gorm:"type:varchar(50);index" json:"entity_id"`
	Details    string     `gorm:"type:text" json:"details"` // JSON payload of the action
	CreatedAt  time.Time  `gorm:"index" json:"created_at"`
}

func (a *AuditLog) BeforeCreate(tx *gorm.DB) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	return nil
}
