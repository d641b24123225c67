// Package commission computes staff commission on service line items.
package commission

import (
	"fmt"
	"strings"

	"backoffice/internal/model"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Mode decides how a line is shared when several staff are assigned.
type Mode string

const (
	// ModeIndependent computes every assignee against the full line total.
	ModeIndependent Mode = "independent"
	// ModeProportional gives each of n assignees line_total / n as their base.
	ModeProportional Mode = "proportional"
)

func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case "", ModeIndependent:
		return ModeIndependent, nil
	case ModeProportional:
		return ModeProportional, nil
	}
	return "", fmt.Errorf("unknown commission split mode %q", s)
}

// Result is the commission one staff member earns on one line.
type Result struct {
	ProfileID  uuid.UUID
	ServiceID  string
	Base       decimal.Decimal
	Commission decimal.Decimal
}

type Allocator struct {
	mode Mode
}

func NewAllocator(mode Mode) *Allocator {
	if mode == "" {
		mode = ModeIndependent
	}
	return &Allocator{mode: mode}
}

func (a *Allocator) Mode() Mode {
	return a.mode
}

// Allocate returns one result per assignee of item; an unassigned line yields none.
func (a *Allocator) Allocate(item model.ServiceLineItem) []Result {
	total := item.LineTotal()

	if len(item.AssignedProfiles) > 0 {
		base := total
		if a.mode == ModeProportional {
			base = total.Div(decimal.NewFromInt(int64(len(item.AssignedProfiles))))
		}
		out := make([]Result, 0, len(item.AssignedProfiles))
		for _, p := range item.AssignedProfiles {
			out = append(out, Result{
				ProfileID:  p.StaffID,
				ServiceID:  item.ServiceID,
				Base:       base,
				Commission: Amount(base, p.CommissionRate, p.CommissionType),
			})
		}
		return out
	}

	if item.AssignedProfileID != nil {
		return []Result{{
			ProfileID:  *item.AssignedProfileID,
			ServiceID:  item.ServiceID,
			Base:       total,
			Commission: Amount(total, item.CommissionRate, item.CommissionType),
		}}
	}
	return nil
}

// LineDetails lists the commission payable on each line, summed over its assignees.
func (a *Allocator) LineDetails(items []model.ServiceLineItem) []model.LineCommission {
	out := make([]model.LineCommission, 0, len(items))
	for _, it := range items {
		sum := decimal.Zero
		for _, r := range a.Allocate(it) {
			sum = sum.Add(r.Commission)
		}
		out = append(out, model.LineCommission{ServiceID: it.ServiceID, Commission: sum})
	}
	return out
}

// Amount applies one set of commission terms to base. Unknown or missing
// types earn nothing; a negative rate is treated as zero.
func Amount(base decimal.Decimal, rate *decimal.Decimal, typ *string) decimal.Decimal {
	if rate == nil || !rate.IsPositive() || !base.IsPositive() {
		return decimal.Zero
	}
	switch NormalizeType(typ) {
	case model.CommissionPercentage:
		return base.Mul(*rate).Div(decimal.NewFromInt(100))
	case model.CommissionFlat:
		return decimal.Min(*rate, base)
	default:
		return decimal.Zero
	}
}

// NormalizeType folds "fixed" into "flat". It returns "" for null or unknown types.
func NormalizeType(typ *string) string {
	if typ == nil {
		return ""
	}
	switch strings.ToLower(strings.TrimSpace(*typ)) {
	case model.CommissionPercentage, "percent":
		return model.CommissionPercentage
	case model.CommissionFlat, model.CommissionFixed:
		return model.CommissionFlat
	}
	return ""
}
