package service

import (
	"context"
	"errors"
	"testing"

	"backoffice/internal/apperr"
	"backoffice/internal/model"
	"backoffice/internal/realtime"
	"backoffice/internal/repository"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEstimateAcceptScenario(t *testing.T) {
	f := newFixture(t)
	q := f.acceptedQuote(t)

	assert.Equal(t, string(model.QuoteStatusAccepted), q.Status)
	require.NotNil(t, q.EstimatedAmount)
	assert.Equal(t, "200.50", *q.EstimatedAmount)
	assert.Equal(t, map[string]string{"svc-1": "120.00", "svc-2": "80.50"}, q.ServiceEstimates)
	require.NotNil(t, q.ClientResponse)
	assert.Equal(t, model.ClientResponseAccepted, *q.ClientResponse)

	logs, total, err := f.audits.List(context.Background(), repository.AuditFilter{EntityID: q.ID})
	require.NoError(t, err)
	assert.EqualValues(t, 3, total)
	assert.Len(t, logs, 3)
	assert.Equal(t, 2, f.publisher.count(realtime.TableQuoteRequests, realtime.EventUpdate))
}

func TestCreateQuoteDeduplicatesServices(t *testing.T) {
	f := newFixture(t)
	q, err := f.quoteService().CreateQuote(context.Background(), f.client, CreateQuoteRequest{
		ServiceIDs: []string{"svc-1", "svc-1", "svc-2"},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"svc-1", "svc-2"}, q.ServiceIDs)
	assert.Equal(t, string(model.QuoteStatusPending), q.Status)
	assert.Nil(t, q.EstimatedAmount)
	assert.Equal(t, f.client.ID.String(), q.ClientID)
}

func TestCreateQuoteRejectsUnknownService(t *testing.T) {
	f := newFixture(t)
	_, err := f.quoteService().CreateQuote(context.Background(), f.client, CreateQuoteRequest{ServiceIDs: []string{"svc-9"}})
	assert.True(t, errors.Is(err, apperr.ErrInvalidInput))
}

func TestSubmitEstimateGuards(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	svc := f.quoteService()
	q, err := svc.CreateQuote(ctx, f.client, CreateQuoteRequest{ServiceIDs: []string{"svc-1", "svc-2"}})
	require.NoError(t, err)

	full := EstimateRequest{ServiceEstimates: map[string]decimal.Decimal{
		"svc-1": decimal.NewFromInt(1),
		"svc-2": decimal.NewFromInt(2),
	}}

	_, err = svc.SubmitEstimate(ctx, f.staff, q.ID, full)
	assert.True(t, errors.Is(err, apperr.ErrUnauthorized))

	_, err = svc.SubmitEstimate(ctx, f.admin, q.ID, EstimateRequest{ServiceEstimates: map[string]decimal.Decimal{
		"svc-1": decimal.NewFromInt(1),
	}})
	assert.True(t, errors.Is(err, apperr.ErrIncompleteEstimate))

	_, err = svc.SubmitEstimate(ctx, f.admin, q.ID, full)
	require.NoError(t, err)

	_, err = svc.SubmitEstimate(ctx, f.admin, q.ID, full)
	assert.True(t, errors.Is(err, apperr.ErrInvalidTransition))
}

// staleQuotes serves the quote as it was before another writer moved it.
type staleQuotes struct {
	repository.QuoteRepository
	snapshot *model.QuoteRequest
}

func (r *staleQuotes) FindByID(ctx context.Context, id uuid.UUID) (*model.QuoteRequest, error) {
	if r.snapshot != nil && r.snapshot.ID == id {
		cp := *r.snapshot
		return &cp, nil
	}
	return r.QuoteRepository.FindByID(ctx, id)
}

func TestConcurrentEstimateLoserGetsStaleState(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	q, err := f.quoteService().CreateQuote(ctx, f.client, CreateQuoteRequest{ServiceIDs: []string{"svc-1"}})
	require.NoError(t, err)
	snapshot, err := f.quotes.FindByID(ctx, mustID(t, q.ID))
	require.NoError(t, err)

	amounts := EstimateRequest{ServiceEstimates: map[string]decimal.Decimal{"svc-1": decimal.NewFromInt(50)}}
	_, err = f.quoteService().SubmitEstimate(ctx, f.admin, q.ID, amounts)
	require.NoError(t, err)

	loser := NewQuoteService(&staleQuotes{QuoteRepository: f.quotes, snapshot: snapshot}, f.catalog, f.audits, f.tx, f.media, f.publisher, nil, nil, zerolog.Nop())
	_, err = loser.SubmitEstimate(ctx, f.admin, q.ID, EstimateRequest{ServiceEstimates: map[string]decimal.Decimal{"svc-1": decimal.NewFromInt(70)}})
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperr.ErrStaleState))

	current, err := f.quotes.FindByID(ctx, snapshot.ID)
	require.NoError(t, err)
	assert.Equal(t, "50.00", current.EstimatedAmount.Decimal.StringFixed(2))
}

func TestRespondTwiceIsIdempotentAndConflictingResponseFails(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	q := f.acceptedQuote(t)
	svc := f.quoteService()

	again, err := svc.RespondToQuote(ctx, f.client, q.ID, RespondRequest{Response: model.ClientResponseAccepted})
	require.NoError(t, err)
	assert.Equal(t, q.UpdatedAt, again.UpdatedAt)

	_, err = svc.RespondToQuote(ctx, f.client, q.ID, RespondRequest{Response: model.ClientResponseRejected})
	assert.True(t, errors.Is(err, apperr.ErrInvalidTransition))

	other := model.NewActor(uuid.New(), model.RoleClient)
	_, err = svc.RespondToQuote(ctx, other, q.ID, RespondRequest{Response: model.ClientResponseAccepted})
	assert.True(t, errors.Is(err, apperr.ErrUnauthorized))
}

func TestAdminOverrideFlipsResponse(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	q := f.acceptedQuote(t)
	svc := f.quoteService()

	_, err := svc.OverrideResponse(ctx, f.staff, q.ID, RespondRequest{Response: model.ClientResponseRejected})
	assert.True(t, errors.Is(err, apperr.ErrUnauthorized))

	q, err = svc.OverrideResponse(ctx, f.admin, q.ID, RespondRequest{Response: model.ClientResponseRejected})
	require.NoError(t, err)
	assert.Equal(t, string(model.QuoteStatusRejected), q.Status)
	assert.Equal(t, model.ClientResponseRejected, *q.ClientResponse)
}

func TestMediaEditableOnlyBeforeResponse(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	svc := f.quoteService()
	q, err := svc.CreateQuote(ctx, f.client, CreateQuoteRequest{
		ServiceIDs: []string{"svc-1"},
		MediaURLs:  []string{"/media/a.jpg", "/media/b.jpg"},
	})
	require.NoError(t, err)

	q, err = svc.UpdateMedia(ctx, f.client, q.ID, UpdateMediaRequest{MediaURLs: []string{"/media/b.jpg", "/media/c.jpg"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"/media/b.jpg", "/media/c.jpg"}, q.MediaURLs)
	assert.Equal(t, []string{"/media/a.jpg"}, f.media.removed)

	accepted := f.acceptedQuote(t)
	_, err = svc.UpdateMedia(ctx, f.client, accepted.ID, UpdateMediaRequest{MediaURLs: nil})
	assert.True(t, errors.Is(err, apperr.ErrImmutableState))
}

func TestDeleteQuoteCascadesMedia(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	svc := f.quoteService()
	q, err := svc.CreateQuote(ctx, f.client, CreateQuoteRequest{
		ServiceIDs: []string{"svc-1"},
		MediaURLs:  []string{"/media/a.jpg"},
	})
	require.NoError(t, err)

	assert.True(t, errors.Is(svc.DeleteQuote(ctx, f.client, q.ID), apperr.ErrUnauthorized))
	require.NoError(t, svc.DeleteQuote(ctx, f.admin, q.ID))

	_, err = f.quotes.FindByID(ctx, mustID(t, q.ID))
	assert.True(t, errors.Is(err, apperr.ErrNotFound))
	assert.Equal(t, []string{"/media/a.jpg"}, f.media.removed)
	assert.Equal(t, 1, f.publisher.count(realtime.TableQuoteRequests, realtime.EventDelete))
}

func TestListQuotesScopesClients(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	svc := NewQuoteService(f.quotes, f.catalog, f.audits, f.tx, f.media, f.publisher, nil, nil, zerolog.Nop())
	_, err := svc.CreateQuote(ctx, f.client, CreateQuoteRequest{ServiceIDs: []string{"svc-1"}})
	require.NoError(t, err)
	other := model.NewActor(uuid.New(), model.RoleClient)
	_, err = svc.CreateQuote(ctx, other, CreateQuoteRequest{ServiceIDs: []string{"svc-2"}})
	require.NoError(t, err)

	mine, total, err := svc.ListQuotes(ctx, f.client, QuoteFilter{})
	require.NoError(t, err)
	assert.EqualValues(t, 1, total)
	require.Len(t, mine, 1)
	assert.Equal(t, f.client.ID.String(), mine[0].ClientID)

	_, total, err = svc.ListQuotes(ctx, f.staff, QuoteFilter{})
	require.NoError(t, err)
	assert.EqualValues(t, 2, total)

	_, err = svc.GetQuote(ctx, other, mine[0].ID)
	assert.True(t, errors.Is(err, apperr.ErrUnauthorized))
}

func TestArchiveIsAdminOnly(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	svc := f.quoteService()
	q := f.acceptedQuote(t)

	_, err := svc.SetArchived(ctx, f.staff, q.ID, true)
	assert.True(t, errors.Is(err, apperr.ErrUnauthorized))

	q, err = svc.SetArchived(ctx, f.admin, q.ID, true)
	require.NoError(t, err)
	assert.True(t, q.IsArchived)
	assert.Equal(t, string(model.QuoteStatusAccepted), q.Status)
}
