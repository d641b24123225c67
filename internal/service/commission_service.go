package service

import (
	"context"
	"time"

	"backoffice/internal/apperr"
	"backoffice/internal/commission"
	"backoffice/internal/estimate"
	"backoffice/internal/export"
	"backoffice/internal/model"
	"backoffice/internal/realtime"
	"backoffice/internal/repository"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// --- DTOs ---

type CommissionRow struct {
	ProfileID     string `json:"profile_id"`
	FullName      string `json:"full_name"`
	DailyAmount   string `json:"daily_amount"`
	WeeklyAmount  string `json:"weekly_amount"`
	MonthlyAmount string `json:"monthly_amount"`
	// Amount is the total inside the requested window, if any.
	Amount *string `json:"amount,omitempty"`
}

// --- Interface ---

type CommissionService interface {
	Report(ctx context.Context, actor model.Actor, window string) ([]CommissionRow, error)
	ExportWorkbook(ctx context.Context, actor model.Actor) (string, []byte, error)
}

type commissionService struct {
	workOrderRepo repository.WorkOrderRepository
	profileRepo   repository.ProfileRepository
	allocator     *commission.Allocator
	workbook      *export.WorkbookGenerator
	cache         *realtime.ViewCache
	log           zerolog.Logger
	now           func() time.Time
}

func NewCommissionService(
	workOrderRepo repository.WorkOrderRepository,
	profileRepo repository.ProfileRepository,
	allocator *commission.Allocator,
	workbook *export.WorkbookGenerator,
	cache *realtime.ViewCache,
	log zerolog.Logger,
) CommissionService {
	return &commissionService{
		workOrderRepo: workOrderRepo,
		profileRepo:   profileRepo,
		allocator:     allocator,
		workbook:      workbook,
		cache:         cache,
		log:           log.With().Str("component", "commission_service").Logger(),
		now:           nowUTC,
	}
}

// --- Implementation ---

// Report totals commission per staff member over completed and invoiced work
// orders. Staff only see their own row.
func (s *commissionService) Report(ctx context.Context, actor model.Actor, window string) ([]CommissionRow, error) {
	w, err := parseWindow(window)
	if err != nil {
		return nil, err
	}
	if !actor.IsBackOffice() {
		return nil, apperr.Unauthorized("commission reports are for staff only")
	}
	scope := "all"
	if !actor.Has(model.RoleAdmin) {
		scope = actor.ID.String()
	}

	now := s.now()
	key := realtime.AggregateKey(realtime.TableWorkOrders, "commission", scope, string(w), now.Format("2006-01-02"))
	if v, ok := cacheGet(s.cache, key); ok {
		return v.([]CommissionRow), nil
	}

	entries, err := s.entries(ctx, loadSince(w, now))
	if err != nil {
		return nil, err
	}
	summary := s.allocator.Summarize(entries, now)
	var inWindow map[uuid.UUID]decimal.Decimal
	if window != "" {
		inWindow = s.allocator.Aggregate(entries, w, now)
	}

	names, err := s.names(ctx, summary)
	if err != nil {
		return nil, err
	}

	rows := make([]CommissionRow, 0, len(summary))
	for _, sc := range summary {
		if scope != "all" && sc.ProfileID != actor.ID {
			continue
		}
		row := CommissionRow{
			ProfileID:     sc.ProfileID.String(),
			FullName:      names[sc.ProfileID],
			DailyAmount:   estimate.Display(sc.DailyAmount),
			WeeklyAmount:  estimate.Display(sc.WeeklyAmount),
			MonthlyAmount: estimate.Display(sc.MonthlyAmount),
		}
		if inWindow != nil {
			amount := estimate.Display(inWindow[sc.ProfileID])
			row.Amount = &amount
		}
		rows = append(rows, row)
	}

	cacheSet(s.cache, key, rows)
	return rows, nil
}

// ExportWorkbook renders this month's commission report as an xlsx file.
func (s *commissionService) ExportWorkbook(ctx context.Context, actor model.Actor) (string, []byte, error) {
	if !actor.Has(model.RoleAdmin) {
		return "", nil, apperr.Unauthorized("only an admin can export commission reports")
	}

	now := s.now()
	orders, err := s.workOrderRepo.ListCompletedSince(ctx, loadSince(commission.WindowMonth, now))
	if err != nil {
		return "", nil, err
	}
	summary := s.allocator.Summarize(toEntries(orders), now)
	names, err := s.names(ctx, summary)
	if err != nil {
		return "", nil, err
	}
	for i := range summary {
		summary[i].FullName = names[summary[i].ProfileID]
	}

	var lines []export.CommissionLine
	for _, wo := range orders {
		for _, it := range wo.Services {
			for _, r := range s.allocator.Allocate(it) {
				lines = append(lines, export.CommissionLine{
					WorkOrderNo: wo.WorkOrderNo,
					CompletedAt: *wo.CompletedAt,
					ServiceID:   it.ServiceID,
					ServiceName: it.ServiceName,
					StaffName:   nameOrID(names, r.ProfileID),
					Base:        r.Base,
					Commission:  r.Commission,
				})
			}
		}
	}

	data, err := s.workbook.Generate(export.CommissionReport{GeneratedAt: now, Staff: summary, Lines: lines})
	if err != nil {
		return "", nil, err
	}
	s.log.Info().Int("staff", len(summary)).Int("lines", len(lines)).Msg("commission workbook exported")
	return "commission-" + now.Format("2006-01") + ".xlsx", data, nil
}

// --- Helpers ---

func (s *commissionService) entries(ctx context.Context, since time.Time) ([]commission.Entry, error) {
	orders, err := s.workOrderRepo.ListCompletedSince(ctx, since)
	if err != nil {
		return nil, err
	}
	return toEntries(orders), nil
}

func toEntries(orders []model.WorkOrder) []commission.Entry {
	entries := make([]commission.Entry, 0, len(orders))
	for _, wo := range orders {
		entries = append(entries, commission.Entry{At: *wo.CompletedAt, Items: wo.Services})
	}
	return entries
}

func (s *commissionService) names(ctx context.Context, rows []model.StaffCommission) (map[uuid.UUID]string, error) {
	ids := make([]uuid.UUID, 0, len(rows))
	for _, r := range rows {
		ids = append(ids, r.ProfileID)
	}
	profiles, err := s.profileRepo.FindByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	out := make(map[uuid.UUID]string, len(profiles))
	for id, p := range profiles {
		out[id] = p.FullName
	}
	return out, nil
}

func nameOrID(names map[uuid.UUID]string, id uuid.UUID) string {
	if n := names[id]; n != "" {
		return n
	}
	return id.String()
}

func parseWindow(raw string) (commission.Window, error) {
	switch w := commission.Window(raw); w {
	case commission.WindowAll, commission.WindowDay, commission.WindowWeek, commission.WindowMonth:
		return w, nil
	case "all":
		return commission.WindowAll, nil
	}
	return "", apperr.InvalidInput("window must be day, week, month or all")
}

// loadSince is the earliest completion time any column of the report needs.
// A week can begin in the previous month.
func loadSince(w commission.Window, now time.Time) time.Time {
	if w == commission.WindowAll {
		return time.Time{}
	}
	week := commission.WindowStart(commission.WindowWeek, now)
	month := commission.WindowStart(commission.WindowMonth, now)
	if week.Before(month) {
		return week
	}
	return month
}
