package service

import (
	"context"
	"io"
	"strings"
	"sync"
	"testing"

	"backoffice/internal/commission"
	"backoffice/internal/config"
	"backoffice/internal/database"
	"backoffice/internal/export"
	"backoffice/internal/model"
	"backoffice/internal/realtime"
	"backoffice/internal/repository"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []realtime.ChangeEvent
}

func (p *recordingPublisher) Publish(evt realtime.ChangeEvent) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, evt)
	return 1
}

func (p *recordingPublisher) count(table string, typ realtime.EventType) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, e := range p.events {
		if e.Table == table && e.Type == typ {
			n++
		}
	}
	return n
}

type recordingMedia struct {
	mu      sync.Mutex
	removed []string
}

func (m *recordingMedia) Save(ctx context.Context, filename string, r io.Reader) (string, error) {
	return "/media/" + filename, nil
}

func (m *recordingMedia) Remove(ctx context.Context, urls []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.removed = append(m.removed, urls...)
	return nil
}

type fixture struct {
	db        *gorm.DB
	quotes    repository.QuoteRepository
	orders    repository.WorkOrderRepository
	invoices  repository.InvoiceRepository
	catalog   repository.ServiceCatalogRepository
	profiles  repository.ProfileRepository
	audits    repository.AuditRepository
	notes     repository.NotificationRepository
	messages  repository.MessageRepository
	tx        repository.TransactionManager
	publisher *recordingPublisher
	media     *recordingMedia
	cache     *realtime.ViewCache
	badges    *realtime.Badges
	allocator *commission.Allocator

	admin  model.Actor
	staff  model.Actor
	client model.Actor
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	db, err := database.NewConnection(config.DBConfig{
		Driver: "sqlite",
		DSN:    "file:svc_" + name + "?mode=memory&cache=shared",
	}, zerolog.Nop())
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})

	f := &fixture{
		db:        db,
		quotes:    repository.NewQuoteRepository(db),
		orders:    repository.NewWorkOrderRepository(db),
		invoices:  repository.NewInvoiceRepository(db),
		catalog:   repository.NewServiceCatalogRepository(db),
		profiles:  repository.NewProfileRepository(db),
		audits:    repository.NewAuditRepository(db),
		notes:     repository.NewNotificationRepository(db),
		messages:  repository.NewMessageRepository(db),
		tx:        repository.NewTransactionManager(db),
		publisher: &recordingPublisher{},
		media:     &recordingMedia{},
		cache:     realtime.NewViewCache(0),
		badges:    realtime.NewBadges(),
		allocator: commission.NewAllocator(commission.ModeIndependent),
	}

	ctx := context.Background()
	f.admin = f.profile(t, "Ada Admin", model.RoleAdmin)
	f.staff = f.profile(t, "Sam Staff", model.RoleStaff)
	f.client = f.profile(t, "Cleo Client", model.RoleClient)

	rate := decimal.NewFromInt(10)
	pct := model.CommissionPercentage
	for _, svc := range []model.Service{
		{ID: "svc-1", Name: "Oil change", DefaultPrice: decimal.NewFromInt(100), CommissionRate: &rate, CommissionType: &pct, IsActive: true},
		{ID: "svc-2", Name: "Brake check", DefaultPrice: decimal.NewFromInt(80), IsActive: true},
	} {
		svc := svc
		require.NoError(t, f.catalog.Upsert(ctx, &svc))
	}
	return f
}

func (f *fixture) profile(t *testing.T, name, role string) model.Actor {
	t.Helper()
	p := &model.Profile{
		FullName: name,
		Email:    strings.ToLower(strings.ReplaceAll(name, " ", ".")) + "@example.com",
		Role:     role,
		IsActive: true,
	}
	require.NoError(t, f.profiles.Create(context.Background(), p))
	return model.NewActor(p.ID, role)
}

func (f *fixture) quoteService() QuoteService {
	return NewQuoteService(f.quotes, f.catalog, f.audits, f.tx, f.media, f.publisher, f.cache, nil, zerolog.Nop())
}

func (f *fixture) conversionService(quotes repository.QuoteRepository) ConversionService {
	if quotes == nil {
		quotes = f.quotes
	}
	return NewConversionService(quotes, f.orders, f.invoices, f.catalog, f.audits, f.publisher, nil, zerolog.Nop())
}

func (f *fixture) workOrderService() WorkOrderService {
	return NewWorkOrderService(f.orders, f.catalog, f.audits, f.tx, f.allocator, f.publisher, f.cache, nil, zerolog.Nop())
}

func (f *fixture) invoiceService() InvoiceService {
	return NewInvoiceService(f.invoices, f.profiles, f.audits, f.tx, export.NewPDFGenerator(), "Garage", f.publisher, f.cache, nil, zerolog.Nop())
}

func (f *fixture) commissionService() CommissionService {
	return NewCommissionService(f.orders, f.profiles, f.allocator, export.NewWorkbookGenerator(), f.cache, zerolog.Nop())
}

func (f *fixture) inboxService(limit int) InboxService {
	return NewInboxService(f.notes, f.messages, f.badges, nil, limit, zerolog.Nop())
}

// acceptedQuote walks a two-service quote through estimate and acceptance.
func (f *fixture) acceptedQuote(t *testing.T) QuoteResponse {
	t.Helper()
	ctx := context.Background()
	svc := f.quoteService()

	q, err := svc.CreateQuote(ctx, f.client, CreateQuoteRequest{
		Vehicle:    model.Vehicle{Make: "Toyota", Model: "Corolla", Year: 2019},
		ServiceIDs: []string{"svc-1", "svc-2"},
	})
	require.NoError(t, err)
	_, err = svc.SubmitEstimate(ctx, f.admin, q.ID, EstimateRequest{ServiceEstimates: map[string]decimal.Decimal{
		"svc-1": decimal.RequireFromString("120.00"),
		"svc-2": decimal.RequireFromString("80.50"),
	}})
	require.NoError(t, err)
	q, err = svc.RespondToQuote(ctx, f.client, q.ID, RespondRequest{Response: model.ClientResponseAccepted})
	require.NoError(t, err)
	return q
}

func mustID(t *testing.T, raw string) uuid.UUID {
	t.Helper()
	id, err := uuid.Parse(raw)
	require.NoError(t, err)
	return id
}
