package commission

import (
	"sort"
	"time"

	"backoffice/internal/model"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type Window string

const (
	WindowAll   Window = ""
	WindowDay   Window = "day"
	WindowWeek  Window = "week"
	WindowMonth Window = "month"
)

// Entry is a set of line items earned at one instant, normally a work order's completion.
type Entry struct {
	At    time.Time
	Items []model.ServiceLineItem
}

// WindowStart is the inclusive lower bound of w ending at now. Weeks start on Monday.
func WindowStart(w Window, now time.Time) time.Time {
	y, m, d := now.Date()
	midnight := time.Date(y, m, d, 0, 0, 0, 0, now.Location())
	switch w {
	case WindowDay:
		return midnight
	case WindowWeek:
		offset := (int(midnight.Weekday()) + 6) % 7
		return midnight.AddDate(0, 0, -offset)
	case WindowMonth:
		return time.Date(y, m, 1, 0, 0, 0, 0, now.Location())
	default:
		return time.Time{}
	}
}

func inWindow(at time.Time, w Window, now time.Time) bool {
	if w == WindowAll {
		return true
	}
	return !at.Before(WindowStart(w, now)) && !at.After(now)
}

// Aggregate sums commission per staff member over entries inside the window.
func (a *Allocator) Aggregate(entries []Entry, w Window, now time.Time) map[uuid.UUID]decimal.Decimal {
	out := make(map[uuid.UUID]decimal.Decimal)
	for _, e := range entries {
		if !inWindow(e.At, w, now) {
			continue
		}
		for _, it := range e.Items {
			for _, r := range a.Allocate(it) {
				out[r.ProfileID] = out[r.ProfileID].Add(r.Commission)
			}
		}
	}
	return out
}

// Summarize reports daily, weekly and monthly totals for every staff member
// credited on any entry, ordered by profile id.
func (a *Allocator) Summarize(entries []Entry, now time.Time) []model.StaffCommission {
	day := a.Aggregate(entries, WindowDay, now)
	week := a.Aggregate(entries, WindowWeek, now)
	month := a.Aggregate(entries, WindowMonth, now)

	seen := make(map[uuid.UUID]struct{})
	for _, e := range entries {
		for _, it := range e.Items {
			for _, id := range it.Assignees() {
				seen[id] = struct{}{}
			}
		}
	}

	out := make([]model.StaffCommission, 0, len(seen))
	for id := range seen {
		out = append(out, model.StaffCommission{
			ProfileID:     id,
			DailyAmount:   day[id],
			WeeklyAmount:  week[id],
			MonthlyAmount: month[id],
		})
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].ProfileID.String() < out[j].ProfileID.String()
	})
	return out
}
