package model

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/schema"
)

type QuoteStatus string

const (
	QuoteStatusPending   QuoteStatus = "pending"
	QuoteStatusEstimated QuoteStatus = "estimated"
	QuoteStatusAccepted  QuoteStatus = "accepted"
	QuoteStatusRejected  QuoteStatus = "rejected"
	QuoteStatusConverted QuoteStatus = "converted"
)

// Client responses recorded on an estimated quote.
const (
	ClientResponseAccepted = "accepted"
	ClientResponseRejected = "rejected"
)

func (s QuoteStatus) Valid() bool {
	switch s {
	case QuoteStatusPending, QuoteStatusEstimated, QuoteStatusAccepted, QuoteStatusRejected, QuoteStatusConverted:
		return true
	}
	return false
}

// QuoteRequest is a client's request for pricing on a set of services.
// ServiceEstimates stays NULL until an admin estimates the quote; from then on
// EstimatedAmount always equals the sum of its values.
type QuoteRequest struct {
	ID               uuid.UUID                   `gorm:"type:uuid;primaryKey" json:"id"`
	ClientID         uuid.UUID                   `gorm:"type:uuid;not null;index" json:"client_id"`
	Vehicle          Vehicle                     `gorm:"embedded;embeddedPrefix:vehicle_" json:"vehicle"`
	Description      string                      `gorm:"type:text" json:"description"`
	ServiceIDs       datatypes.JSONSlice[string] `json:"service_ids"`
	ServiceDetails   datatypes.JSON              `json:"service_details,omitempty"`
	Status           QuoteStatus                 `gorm:"type:varchar(20);not null;default:'pending';index" json:"status"`
	ClientResponse   *string                     `gorm:"type:varchar(20)" json:"client_response"`
	IsArchived       bool                        `gorm:"not null;default:false;index" json:"is_archived"`
	ServiceEstimates ServiceAmounts              `json:"service_estimates"`
	EstimatedAmount  decimal.NullDecimal         `gorm:"type:decimal(18,4)" json:"estimated_amount"`
	MediaURLs        datatypes.JSONSlice[string] `json:"media_urls"`
	EstimatedBy      *uuid.UUID                  `gorm:"type:uuid" json:"estimated_by"`
	EstimatedAt      *time.Time                  `json:"estimated_at"`
	RespondedAt      *time.Time                  `json:"responded_at"`
	CreatedAt        time.Time                   `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt        time.Time                   `gorm:"autoUpdateTime" json:"updated_at"`
}

func (q *QuoteRequest) BeforeCreate(tx *gorm.DB) error {
	if q.ID == uuid.Nil {
		q.ID = uuid.New()
	}
	return nil
}

// ServiceAmounts maps service id to an exact money amount. A nil map is stored as NULL.
type ServiceAmounts map[string]decimal.Decimal

func (m ServiceAmounts) Value() (driver.Value, error) {
	if m == nil {
		return nil, nil
	}
	b, err := json.Marshal(map[string]decimal.Decimal(m))
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (m *ServiceAmounts) Scan(value interface{}) error {
	var raw []byte
	switch v := value.(type) {
	case nil:
		*m = nil
		return nil
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("cannot scan %T into ServiceAmounts", value)
	}
	if len(raw) == 0 || string(raw) == "null" {
		*m = nil
		return nil
	}
	out := map[string]decimal.Decimal{}
	if err := json.Unmarshal(raw, &out); err != nil {
		return err
	}
	*m = out
	return nil
}

func (ServiceAmounts) GormDataType() string {
	return "json"
}

func (ServiceAmounts) GormDBDataType(db *gorm.DB, field *schema.Field) string {
	if db.Dialector.Name() == "postgres" {
		return "JSONB"
	}
	return "JSON"
}

// Total sums the amounts in key order so the result never depends on map iteration.
func (m ServiceAmounts) Total() decimal.Decimal {
	total := decimal.Zero
	for _, k := range m.Keys() {
		total = total.Add(m[k])
	}
	return total
}

func (m ServiceAmounts) Keys() []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
