package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"backoffice/internal/apperr"
	"backoffice/internal/model"
	"backoffice/internal/realtime"
	"backoffice/internal/repository"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// flakyQuotes fails the first write that marks a quote converted.
type flakyQuotes struct {
	repository.QuoteRepository
	mu     sync.Mutex
	failed bool
}

func (r *flakyQuotes) CompareAndSwap(ctx context.Context, id uuid.UUID, expected []model.QuoteStatus, updates map[string]interface{}) error {
	r.mu.Lock()
	if updates["status"] == model.QuoteStatusConverted && !r.failed {
		r.failed = true
		r.mu.Unlock()
		return errors.New("connection reset")
	}
	r.mu.Unlock()
	return r.QuoteRepository.CompareAndSwap(ctx, id, expected, updates)
}

func TestConvertToWorkOrderIsIdempotent(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	q := f.acceptedQuote(t)
	svc := f.conversionService(nil)

	wo, err := svc.ConvertToWorkOrder(ctx, f.staff, q.ID)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(wo.WorkOrderNo, "WO-"))
	assert.Equal(t, string(model.WorkOrderPending), wo.Status)
	assert.Equal(t, "200.50", wo.Subtotal)
	require.Len(t, wo.Services, 2)
	assert.Equal(t, "Oil change", wo.Services[0].ServiceName)
	assert.Equal(t, "120.00", wo.Services[0].LineTotal)
	require.NotNil(t, wo.QuoteRequestID)
	assert.Equal(t, q.ID, *wo.QuoteRequestID)

	again, err := svc.ConvertToWorkOrder(ctx, f.staff, q.ID)
	require.NoError(t, err)
	assert.Equal(t, wo.ID, again.ID)

	quote, err := f.quotes.FindByID(ctx, mustID(t, q.ID))
	require.NoError(t, err)
	assert.Equal(t, model.QuoteStatusConverted, quote.Status)

	_, total, err := f.orders.List(ctx, repository.WorkOrderFilter{})
	require.NoError(t, err)
	assert.EqualValues(t, 1, total)
	assert.Equal(t, 1, f.publisher.count(realtime.TableWorkOrders, realtime.EventInsert))
}

func TestConvertToWorkOrderHealsUnlinkedTarget(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	q := f.acceptedQuote(t)
	svc := f.conversionService(&flakyQuotes{QuoteRepository: f.quotes})

	_, err := svc.ConvertToWorkOrder(ctx, f.staff, q.ID)
	require.Error(t, err)
	var convErr *ConversionError
	require.True(t, errors.As(err, &convErr))
	assert.Equal(t, StageLinking, convErr.Stage)

	quote, err := f.quotes.FindByID(ctx, mustID(t, q.ID))
	require.NoError(t, err)
	assert.Equal(t, model.QuoteStatusAccepted, quote.Status)
	orphan, err := f.orders.FindByQuoteRequestID(ctx, quote.ID)
	require.NoError(t, err)
	require.NotNil(t, orphan)

	wo, err := svc.ConvertToWorkOrder(ctx, f.staff, q.ID)
	require.NoError(t, err)
	assert.Equal(t, orphan.ID.String(), wo.ID)

	quote, err = f.quotes.FindByID(ctx, quote.ID)
	require.NoError(t, err)
	assert.Equal(t, model.QuoteStatusConverted, quote.Status)
}

func TestConvertRejectsUnacceptedQuoteAndClients(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	q, err := f.quoteService().CreateQuote(ctx, f.client, CreateQuoteRequest{ServiceIDs: []string{"svc-1"}})
	require.NoError(t, err)
	svc := f.conversionService(nil)

	_, err = svc.ConvertToWorkOrder(ctx, f.staff, q.ID)
	assert.True(t, errors.Is(err, apperr.ErrNotConvertible))

	_, err = svc.ConvertToInvoice(ctx, f.staff, ConvertToInvoiceRequest{SourceType: SourceQuoteRequest, SourceID: q.ID})
	assert.True(t, errors.Is(err, apperr.ErrNotConvertible))

	_, err = svc.ConvertToWorkOrder(ctx, f.client, q.ID)
	assert.True(t, errors.Is(err, apperr.ErrUnauthorized))

	_, err = svc.ConvertToWorkOrder(ctx, f.staff, uuid.NewString())
	assert.True(t, errors.Is(err, apperr.ErrNotFound))
}

func TestConvertQuoteDirectlyToInvoice(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	q := f.acceptedQuote(t)
	svc := f.conversionService(nil)

	inv, err := svc.ConvertToInvoice(ctx, f.admin, ConvertToInvoiceRequest{SourceType: SourceQuoteRequest, SourceID: q.ID, Note: "walk-in"})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(inv.InvoiceNo, "INV-"))
	assert.Equal(t, "200.50", inv.TotalAmount)
	assert.Equal(t, string(model.InvoiceDraft), inv.Status)

	again, err := svc.ConvertToInvoice(ctx, f.admin, ConvertToInvoiceRequest{SourceType: SourceQuoteRequest, SourceID: q.ID})
	require.NoError(t, err)
	assert.Equal(t, inv.ID, again.ID)

	_, err = svc.ConvertToWorkOrder(ctx, f.staff, q.ID)
	assert.True(t, errors.Is(err, apperr.ErrNotConvertible))
}

func TestWorkOrderToInvoiceFlow(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	q := f.acceptedQuote(t)
	conv := f.conversionService(nil)
	orders := f.workOrderService()

	wo, err := conv.ConvertToWorkOrder(ctx, f.staff, q.ID)
	require.NoError(t, err)

	_, err = conv.ConvertToInvoice(ctx, f.staff, ConvertToInvoiceRequest{SourceType: SourceQuoteRequest, SourceID: q.ID})
	assert.True(t, errors.Is(err, apperr.ErrNotConvertible))

	_, err = conv.ConvertToInvoice(ctx, f.staff, ConvertToInvoiceRequest{SourceType: SourceWorkOrder, SourceID: wo.ID})
	assert.True(t, errors.Is(err, apperr.ErrNotConvertible))

	for _, status := range []model.WorkOrderStatus{model.WorkOrderApproved, model.WorkOrderInProgress, model.WorkOrderCompleted} {
		wo, err = orders.TransitionWorkOrder(ctx, f.staff, wo.ID, TransitionRequest{Status: string(status)})
		require.NoError(t, err)
	}
	require.NotNil(t, wo.CompletedAt)

	inv, err := conv.ConvertToInvoice(ctx, f.staff, ConvertToInvoiceRequest{SourceType: SourceWorkOrder, SourceID: wo.ID})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(inv.InvoiceNo, "INV-"))
	assert.Equal(t, "200.50", inv.Subtotal)
	require.NotNil(t, inv.WorkOrderID)
	assert.Equal(t, wo.ID, *inv.WorkOrderID)
	assert.Nil(t, inv.QuoteRequestID)

	stored, err := f.orders.FindByID(ctx, mustID(t, wo.ID))
	require.NoError(t, err)
	assert.Equal(t, model.WorkOrderInvoiced, stored.Status)

	again, err := conv.ConvertToInvoice(ctx, f.staff, ConvertToInvoiceRequest{SourceType: SourceWorkOrder, SourceID: wo.ID})
	require.NoError(t, err)
	assert.Equal(t, inv.ID, again.ID)

	_, err = orders.TransitionWorkOrder(ctx, f.staff, wo.ID, TransitionRequest{Status: string(model.WorkOrderCancelled)})
	assert.True(t, errors.Is(err, apperr.ErrInvalidTransition))
}

func TestConvertHonorsCancelledContextBeforeCreate(t *testing.T) {
	f := newFixture(t)
	q := f.acceptedQuote(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := f.conversionService(nil).ConvertToWorkOrder(ctx, f.staff, q.ID)
	require.Error(t, err)

	found, err := f.orders.FindByQuoteRequestID(context.Background(), mustID(t, q.ID))
	require.NoError(t, err)
	assert.Nil(t, found)
}

func commissionByLine(lines []model.LineCommission) map[string]string {
	out := make(map[string]string, len(lines))
	for _, l := range lines {
		out[l.ServiceID] = l.Commission.StringFixed(2)
	}
	return out
}

func TestConversionCopiesCatalogCommissionTerms(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	q := f.acceptedQuote(t)

	wo, err := f.conversionService(nil).ConvertToWorkOrder(ctx, f.staff, q.ID)
	require.NoError(t, err)

	stored, err := f.orders.FindByID(ctx, mustID(t, wo.ID))
	require.NoError(t, err)
	require.Len(t, stored.Services, 2)
	lines := map[string]model.ServiceLineItem{}
	for _, it := range stored.Services {
		lines[it.ServiceID] = it
	}

	oil := lines["svc-1"]
	assert.Equal(t, "Oil change", oil.ServiceName)
	require.NotNil(t, oil.CommissionRate)
	assert.Equal(t, "10", oil.CommissionRate.String())
	require.NotNil(t, oil.CommissionType)
	assert.Equal(t, model.CommissionPercentage, *oil.CommissionType)
	assert.Equal(t, "120.00", oil.UnitPrice.StringFixed(2))

	brakes := lines["svc-2"]
	assert.Equal(t, "Brake check", brakes.ServiceName)
	assert.Nil(t, brakes.CommissionRate)
	assert.Nil(t, brakes.CommissionType)
}

func TestInvoiceKeepsWorkOrderCommission(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	orders := f.workOrderService()

	staffID := f.staff.ID
	flatRate := decimal.NewFromInt(60)
	flat := model.CommissionFlat
	fixedRate := decimal.NewFromInt(15)
	fixed := model.CommissionFixed
	pctRate := decimal.NewFromInt(5)
	pct := model.CommissionPercentage

	wo, err := orders.CreateWorkOrder(ctx, f.staff, CreateWorkOrderRequest{
		ClientID: f.client.ID.String(),
		Vehicle:  model.Vehicle{Make: "Mazda", Model: "3", Year: 2020},
		Services: []model.ServiceLineItem{
			{
				ServiceID:         "svc-1",
				Quantity:          1,
				UnitPrice:         decimal.NewFromInt(40),
				CommissionRate:    &flatRate,
				CommissionType:    &flat,
				AssignedProfileID: &staffID,
			},
			{
				ServiceID: "svc-2",
				Quantity:  1,
				UnitPrice: decimal.NewFromInt(200),
				AssignedProfiles: []model.AssignedProfile{
					{StaffID: f.staff.ID, CommissionRate: &fixedRate, CommissionType: &fixed},
					{StaffID: f.admin.ID, CommissionRate: &pctRate, CommissionType: &pct},
				},
			},
		},
	})
	require.NoError(t, err)
	for _, status := range []model.WorkOrderStatus{model.WorkOrderApproved, model.WorkOrderInProgress, model.WorkOrderCompleted} {
		wo, err = orders.TransitionWorkOrder(ctx, f.admin, wo.ID, TransitionRequest{Status: string(status)})
		require.NoError(t, err)
	}

	before, err := f.orders.FindByID(ctx, mustID(t, wo.ID))
	require.NoError(t, err)

	inv, err := f.conversionService(nil).ConvertToInvoice(ctx, f.staff, ConvertToInvoiceRequest{SourceType: SourceWorkOrder, SourceID: wo.ID})
	require.NoError(t, err)
	issued, err := f.invoices.FindByID(ctx, mustID(t, inv.ID))
	require.NoError(t, err)

	want := map[string]string{"svc-1": "40.00", "svc-2": "25.00"}
	assert.Equal(t, want, commissionByLine(f.allocator.LineDetails(before.Services)))
	assert.Equal(t, want, commissionByLine(f.allocator.LineDetails(issued.Services)))

	require.Len(t, issued.Services, len(before.Services))
	for i := range before.Services {
		b, a := before.Services[i], issued.Services[i]
		assert.Equal(t, b.ServiceID, a.ServiceID)
		assert.Equal(t, b.AssignedProfileID, a.AssignedProfileID)
		assert.Equal(t, b.CommissionType, a.CommissionType)
		assert.Equal(t, b.CommissionRate == nil, a.CommissionRate == nil)
		require.Len(t, a.AssignedProfiles, len(b.AssignedProfiles))
		for j := range b.AssignedProfiles {
			assert.Equal(t, b.AssignedProfiles[j].StaffID, a.AssignedProfiles[j].StaffID)
			assert.Equal(t, b.AssignedProfiles[j].CommissionType, a.AssignedProfiles[j].CommissionType)
		}
	}
}
