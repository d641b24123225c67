package model

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Commission types as stored on line items. "fixed" is a legacy synonym of "flat".
const (
	CommissionPercentage = "percentage"
	CommissionFlat       = "flat"
	CommissionFixed      = "fixed"
)

// AssignedProfile is one staff member working on a line, with their own commission terms.
type AssignedProfile struct {
	StaffID        uuid.UUID        `json:"staff_id"`
	CommissionRate *decimal.Decimal `json:"commission_rate"`
	CommissionType *string          `json:"commission_type"`
}

// ServiceLineItem is one priced service on a work order or invoice.
// A non-empty AssignedProfiles overrides the single-assignee fields.
type ServiceLineItem struct {
	ServiceID         string            `json:"service_id"`
	ServiceName       string            `json:"service_name"`
	Quantity          int               `json:"quantity"`
	UnitPrice         decimal.Decimal   `json:"unit_price"`
	Description       string            `json:"description,omitempty"`
	CommissionRate    *decimal.Decimal  `json:"commission_rate"`
	CommissionType    *string           `json:"commission_type"`
	AssignedProfileID *uuid.UUID        `json:"assigned_profile_id,omitempty"`
	AssignedProfiles  []AssignedProfile `json:"assigned_profiles"`
}

func (l ServiceLineItem) LineTotal() decimal.Decimal {
	return l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

// Assignees lists every staff id credited on the line.
func (l ServiceLineItem) Assignees() []uuid.UUID {
	if len(l.AssignedProfiles) > 0 {
		ids := make([]uuid.UUID, 0, len(l.AssignedProfiles))
		for _, p := range l.AssignedProfiles {
			ids = append(ids, p.StaffID)
		}
		return ids
	}
	if l.AssignedProfileID != nil {
		return []uuid.UUID{*l.AssignedProfileID}
	}
	return nil
}

func (l ServiceLineItem) Validate() error {
	if l.ServiceID == "" {
		return errors.New("service_id is required")
	}
	if l.Quantity <= 0 {
		return fmt.Errorf("service %s: quantity must be greater than zero", l.ServiceID)
	}
	if l.UnitPrice.IsNegative() {
		return fmt.Errorf("service %s: unit_price must not be negative", l.ServiceID)
	}
	if l.CommissionRate != nil && l.CommissionRate.IsNegative() {
		return fmt.Errorf("service %s: commission_rate must not be negative", l.ServiceID)
	}
	for _, p := range l.AssignedProfiles {
		if p.StaffID == uuid.Nil {
			return fmt.Errorf("service %s: assigned profile without staff_id", l.ServiceID)
		}
		if p.CommissionRate != nil && p.CommissionRate.IsNegative() {
			return fmt.Errorf("service %s: commission_rate must not be negative", l.ServiceID)
		}
	}
	return nil
}

// SumLines totals line_total over items.
func SumLines(items []ServiceLineItem) decimal.Decimal {
	total := decimal.Zero
	for _, it := range items {
		total = total.Add(it.LineTotal())
	}
	return total
}
