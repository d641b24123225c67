package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Notification types raised on status changes.
const (
	NotificationQuoteStatus     = "quote_status"
	NotificationWorkOrderStatus = "work_order_status"
	NotificationInvoiceStatus   = "invoice_status"
)

// Notification is a system message for one user. DedupKey makes repeated
// delivery of the same status change collapse into a single row.
type Notification struct {
	ID         uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	UserID     uuid.UUID  `gorm:"type:uuid;not null;index" json:"user_id"`
	Type       string     `gorm:"type:varchar(50);not null" json:"type"`
	Title      string     `gorm:"type:varchar(255);not null" json:"title"`
	Message    string     `gorm:"type:text" json:"message"`
	EntityType string     `gorm:"type:varchar(50)" json:"entity_type"`
	EntityID   *uuid.UUID `gorm:"type:uuid" json:"entity_id"`
	DedupKey   string     `gorm:"type:varchar(200);uniqueIndex" json:"-"`
	IsRead     bool       `gorm:"not null;default:false;index" json:"is_read"`
	ReadAt     *time.Time `json:"read_at"`
	CreatedAt  time.Time  `gorm:"autoCreateTime;index" json:"created_at"`
}

func (n *Notification) BeforeCreate(tx *gorm.DB) error {
	if n.ID == uuid.Nil {
		n.ID = uuid.New()
	}
	if n.DedupKey == "" {
		n.DedupKey = n.ID.String()
	}
	return nil
}

// Message is a direct chat message between two users.
type Message struct {
	ID          uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	SenderID    uuid.UUID  `gorm:"type:uuid;not null;index" json:"sender_id"`
	RecipientID uuid.UUID  `gorm:"type:uuid;not null;index" json:"recipient_id"`
	Body        string     `gorm:"type:text;not null" json:"body"`
	IsRead      bool       `gorm:"not null;default:false;index" json:"is_read"`
	ReadAt      *time.Time `json:"read_at"`
	CreatedAt   time.Time  `gorm:"autoCreateTime;index" json:"created_at"`
}

func (m *Message) BeforeCreate(tx *gorm.DB) error {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	return nil
}
