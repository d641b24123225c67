package repository

import (
	"context"
	"errors"
	"strings"
	"testing"

	"backoffice/internal/apperr"
	"backoffice/internal/config"
	"backoffice/internal/database"
	"backoffice/internal/model"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	db, err := database.NewConnection(config.DBConfig{
		Driver: "sqlite",
		DSN:    "file:" + name + "?mode=memory&cache=shared",
	}, zerolog.Nop())
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return db
}

func seedQuote(t *testing.T, repo QuoteRepository) *model.QuoteRequest {
	t.Helper()
	q := &model.QuoteRequest{
		ClientID:   uuid.New(),
		Vehicle:    model.Vehicle{Make: "Toyota", Model: "Corolla", Year: 2019},
		ServiceIDs: []string{"svc-1", "svc-2"},
		MediaURLs:  []string{},
		Status:     model.QuoteStatusPending,
	}
	require.NoError(t, repo.Create(context.Background(), q))
	return q
}

func TestQuoteRoundTripKeepsNullEstimates(t *testing.T) {
	repo := NewQuoteRepository(newTestDB(t))
	q := seedQuote(t, repo)

	got, err := repo.FindByID(context.Background(), q.ID)
	require.NoError(t, err)
	assert.Nil(t, got.ServiceEstimates)
	assert.False(t, got.EstimatedAmount.Valid)
	assert.Equal(t, []string{"svc-1", "svc-2"}, []string(got.ServiceIDs))
	assert.Equal(t, "Corolla", got.Vehicle.Model)
}

func TestQuoteCompareAndSwap(t *testing.T) {
	ctx := context.Background()
	repo := NewQuoteRepository(newTestDB(t))
	q := seedQuote(t, repo)

	amounts := model.ServiceAmounts{
		"svc-1": decimal.RequireFromString("120.00"),
		"svc-2": decimal.RequireFromString("80.50"),
	}
	err := repo.CompareAndSwap(ctx, q.ID, []model.QuoteStatus{model.QuoteStatusPending}, map[string]interface{}{
		"status":            model.QuoteStatusEstimated,
		"service_estimates": amounts,
		"estimated_amount":  decimal.NewNullDecimal(amounts.Total()),
	})
	require.NoError(t, err)

	got, err := repo.FindByID(ctx, q.ID)
	require.NoError(t, err)
	assert.Equal(t, model.QuoteStatusEstimated, got.Status)
	assert.Equal(t, "200.50", got.EstimatedAmount.Decimal.StringFixed(2))
	assert.Equal(t, "80.50", got.ServiceEstimates["svc-2"].StringFixed(2))

	// the second writer read "pending" too and must lose
	err = repo.CompareAndSwap(ctx, q.ID, []model.QuoteStatus{model.QuoteStatusPending}, map[string]interface{}{
		"status": model.QuoteStatusEstimated,
	})
	assert.True(t, errors.Is(err, apperr.ErrStaleState))

	err = repo.CompareAndSwap(ctx, uuid.New(), []model.QuoteStatus{model.QuoteStatusPending}, map[string]interface{}{
		"status": model.QuoteStatusEstimated,
	})
	assert.True(t, errors.Is(err, apperr.ErrNotFound))
}

func TestQuoteListFilters(t *testing.T) {
	ctx := context.Background()
	repo := NewQuoteRepository(newTestDB(t))
	a := seedQuote(t, repo)
	seedQuote(t, repo)
	require.NoError(t, repo.SetArchived(ctx, a.ID, true))

	archived := true
	items, total, err := repo.List(ctx, QuoteFilter{Archived: &archived, Page: 1, Limit: 10})
	require.NoError(t, err)
	assert.EqualValues(t, 1, total)
	require.Len(t, items, 1)
	assert.Equal(t, a.ID, items[0].ID)

	_, total, err = repo.List(ctx, QuoteFilter{ClientID: &a.ClientID})
	require.NoError(t, err)
	assert.EqualValues(t, 1, total)
}

func TestQuoteDelete(t *testing.T) {
	ctx := context.Background()
	repo := NewQuoteRepository(newTestDB(t))
	q := seedQuote(t, repo)

	require.NoError(t, repo.Delete(ctx, q.ID))
	_, err := repo.FindByID(ctx, q.ID)
	assert.True(t, errors.Is(err, apperr.ErrNotFound))
	assert.True(t, errors.Is(repo.Delete(ctx, q.ID), apperr.ErrNotFound))
}

func TestNotificationDedupAndMarkRead(t *testing.T) {
	ctx := context.Background()
	repo := NewNotificationRepository(newTestDB(t))
	user := uuid.New()

	n := &model.Notification{UserID: user, Type: model.NotificationQuoteStatus, Title: "Quote estimated", DedupKey: "quote:1:estimated"}
	created, err := repo.Create(ctx, n)
	require.NoError(t, err)
	assert.True(t, created)

	created, err = repo.Create(ctx, &model.Notification{UserID: user, Type: model.NotificationQuoteStatus, Title: "Quote estimated", DedupKey: "quote:1:estimated"})
	require.NoError(t, err)
	assert.False(t, created)

	count, err := repo.CountUnread(ctx, user)
	require.NoError(t, err)
	assert.EqualValues(t, 1, count)

	changed, err := repo.MarkRead(ctx, n.ID, user)
	require.NoError(t, err)
	assert.True(t, changed)
	changed, err = repo.MarkRead(ctx, n.ID, user)
	require.NoError(t, err)
	assert.False(t, changed)

	changed, err = repo.MarkRead(ctx, n.ID, uuid.New())
	require.NoError(t, err)
	assert.False(t, changed)
}

func TestWorkOrderGuardLookup(t *testing.T) {
	ctx := context.Background()
	repo := NewWorkOrderRepository(newTestDB(t))
	quoteID := uuid.New()

	got, err := repo.FindByQuoteRequestID(ctx, quoteID)
	require.NoError(t, err)
	assert.Nil(t, got)

	wo := &model.WorkOrder{WorkOrderNo: "WO-20240101-00001", QuoteRequestID: &quoteID, ClientID: uuid.New(), Status: model.WorkOrderPending}
	require.NoError(t, repo.Create(ctx, wo))

	dup := &model.WorkOrder{WorkOrderNo: "WO-20240101-00002", QuoteRequestID: &quoteID, ClientID: uuid.New(), Status: model.WorkOrderPending}
	assert.Error(t, repo.Create(ctx, dup), "a quote may back only one work order")

	got, err = repo.FindByQuoteRequestID(ctx, quoteID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, wo.ID, got.ID)

	n, err := repo.CountByPrefix(ctx, "WO-20240101-")
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
}
