// Package estimate validates and totals per-service estimate amounts.
package estimate

import (
	"sort"

	"backoffice/internal/apperr"

	"github.com/shopspring/decimal"
)

// Result is a complete estimate. Total is the exact sum of PerService.
type Result struct {
	PerService map[string]decimal.Decimal
	Total      decimal.Decimal
}

// Compute checks that every requested service carries a strictly positive
// amount and returns the per-service map together with its exact total.
// Amounts for services that were not requested are rejected.
func Compute(serviceIDs []string, amounts map[string]decimal.Decimal) (Result, error) {
	if err := Validate(serviceIDs, amounts); err != nil {
		return Result{}, err
	}

	per := make(map[string]decimal.Decimal, len(amounts))
	total := decimal.Zero
	for _, id := range Unique(serviceIDs) {
		per[id] = amounts[id]
		total = total.Add(amounts[id])
	}
	return Result{PerService: per, Total: total}, nil
}

// Validate is Compute without the result.
func Validate(serviceIDs []string, amounts map[string]decimal.Decimal) error {
	requested := Unique(serviceIDs)
	if len(requested) == 0 {
		return apperr.IncompleteEstimate("quote has no requested services")
	}
	if len(amounts) == 0 {
		return apperr.IncompleteEstimate("no service estimates were provided")
	}

	want := make(map[string]struct{}, len(requested))
	for _, id := range requested {
		want[id] = struct{}{}
		amount, ok := amounts[id]
		if !ok {
			return apperr.IncompleteEstimate("missing estimate for service %s", id)
		}
		if !amount.IsPositive() {
			return apperr.IncompleteEstimate("estimate for service %s must be greater than zero", id)
		}
	}

	extra := make([]string, 0)
	for id := range amounts {
		if _, ok := want[id]; !ok {
			extra = append(extra, id)
		}
	}
	if len(extra) > 0 {
		sort.Strings(extra)
		return apperr.IncompleteEstimate("service %s was not requested", extra[0])
	}
	return nil
}

// Unique drops empty and repeated ids, keeping first-seen order.
func Unique(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

// Display rounds an amount to cents for presentation only.
func Display(d decimal.Decimal) string {
	return d.StringFixed(2)
}
