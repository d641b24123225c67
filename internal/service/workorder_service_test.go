package service

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"backoffice/internal/apperr"
	"backoffice/internal/model"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// completedWorkOrder creates a two-line work order with staff credited on
// both lines and walks it to completed.
func (f *fixture) completedWorkOrder(t *testing.T) WorkOrderResponse {
	t.Helper()
	ctx := context.Background()
	svc := f.workOrderService()

	staffID := f.staff.ID
	rate := decimal.NewFromInt(10)
	pct := model.CommissionPercentage
	flatRate := decimal.NewFromInt(15)
	flat := model.CommissionFixed
	adminRate := decimal.NewFromInt(5)

	wo, err := svc.CreateWorkOrder(ctx, f.staff, CreateWorkOrderRequest{
		ClientID: f.client.ID.String(),
		Vehicle:  model.Vehicle{Make: "Honda", Model: "Civic", Year: 2021},
		Services: []model.ServiceLineItem{
			{
				ServiceID:         "svc-1",
				Quantity:          2,
				UnitPrice:         decimal.NewFromInt(50),
				CommissionRate:    &rate,
				CommissionType:    &pct,
				AssignedProfileID: &staffID,
			},
			{
				ServiceID: "svc-2",
				Quantity:  1,
				UnitPrice: decimal.NewFromInt(200),
				AssignedProfiles: []model.AssignedProfile{
					{StaffID: f.staff.ID, CommissionRate: &flatRate, CommissionType: &flat},
					{StaffID: f.admin.ID, CommissionRate: &adminRate, CommissionType: &pct},
				},
			},
		},
	})
	require.NoError(t, err)
	for _, status := range []model.WorkOrderStatus{model.WorkOrderApproved, model.WorkOrderInProgress, model.WorkOrderCompleted} {
		wo, err = svc.TransitionWorkOrder(ctx, f.admin, wo.ID, TransitionRequest{Status: string(status)})
		require.NoError(t, err)
	}
	return wo
}

func TestCreateWorkOrderFillsCatalogNames(t *testing.T) {
	f := newFixture(t)
	wo := f.completedWorkOrder(t)

	assert.True(t, strings.HasPrefix(wo.WorkOrderNo, "WO-"))
	assert.Equal(t, "300.00", wo.Subtotal)
	require.Len(t, wo.Services, 2)
	assert.Equal(t, "Oil change", wo.Services[0].ServiceName)
	assert.Equal(t, "100.00", wo.Services[0].LineTotal)
	assert.Equal(t, "Brake check", wo.Services[1].ServiceName)
	assert.Nil(t, wo.QuoteRequestID)
	assert.Equal(t, string(model.WorkOrderCompleted), wo.Status)
}

func TestCreateWorkOrderValidation(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	svc := f.workOrderService()

	_, err := svc.CreateWorkOrder(ctx, f.client, CreateWorkOrderRequest{ClientID: f.client.ID.String()})
	assert.True(t, errors.Is(err, apperr.ErrUnauthorized))

	_, err = svc.CreateWorkOrder(ctx, f.staff, CreateWorkOrderRequest{
		ClientID: f.client.ID.String(),
		Services: []model.ServiceLineItem{{ServiceID: "svc-1", Quantity: 0, UnitPrice: decimal.NewFromInt(1)}},
	})
	assert.True(t, errors.Is(err, apperr.ErrInvalidInput))

	_, err = svc.CreateWorkOrder(ctx, f.staff, CreateWorkOrderRequest{
		ClientID: f.client.ID.String(),
		Services: []model.ServiceLineItem{{ServiceID: "svc-404", Quantity: 1, UnitPrice: decimal.NewFromInt(1)}},
	})
	assert.True(t, errors.Is(err, apperr.ErrInvalidInput))
}

func TestWorkOrderTransitionsAndEdits(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	svc := f.workOrderService()
	wo := f.completedWorkOrder(t)

	_, err := svc.TransitionWorkOrder(ctx, f.staff, wo.ID, TransitionRequest{Status: string(model.WorkOrderInvoiced)})
	assert.True(t, errors.Is(err, apperr.ErrUnauthorized))

	_, err = svc.TransitionWorkOrder(ctx, f.staff, wo.ID, TransitionRequest{Status: string(model.WorkOrderPending)})
	assert.True(t, errors.Is(err, apperr.ErrInvalidTransition))

	_, err = svc.UpdateServices(ctx, f.staff, wo.ID, UpdateServicesRequest{
		Services: []model.ServiceLineItem{{ServiceID: "svc-1", Quantity: 1, UnitPrice: decimal.NewFromInt(1)}},
	})
	assert.True(t, errors.Is(err, apperr.ErrImmutableState))
}

func TestUpdateServicesRecomputesSubtotal(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	svc := f.workOrderService()

	wo, err := svc.CreateWorkOrder(ctx, f.staff, CreateWorkOrderRequest{
		ClientID: f.client.ID.String(),
		Services: []model.ServiceLineItem{{ServiceID: "svc-1", Quantity: 1, UnitPrice: decimal.NewFromInt(40)}},
	})
	require.NoError(t, err)
	assert.Equal(t, string(model.WorkOrderPending), wo.Status)

	wo, err = svc.UpdateServices(ctx, f.staff, wo.ID, UpdateServicesRequest{
		Services: []model.ServiceLineItem{
			{ServiceID: "svc-1", Quantity: 3, UnitPrice: decimal.RequireFromString("19.99")},
			{ServiceID: "svc-2", Quantity: 1, UnitPrice: decimal.RequireFromString("0.03")},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "60.00", wo.Subtotal)
	assert.Len(t, wo.Services, 2)
}

func TestCommissionDetailVisibility(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	svc := f.workOrderService()
	wo := f.completedWorkOrder(t)

	lines, err := svc.CommissionDetail(ctx, f.staff, wo.ID)
	require.NoError(t, err)
	require.Len(t, lines, 2)
	assert.Equal(t, "10.00", lines[0].Commission)
	assert.Equal(t, "25.00", lines[1].Commission)

	other := f.profile(t, "Olly Other", model.RoleStaff)
	_, err = svc.CommissionDetail(ctx, other, wo.ID)
	assert.True(t, errors.Is(err, apperr.ErrUnauthorized))

	_, err = svc.CommissionDetail(ctx, f.client, wo.ID)
	assert.True(t, errors.Is(err, apperr.ErrUnauthorized))
}

func TestCommissionReportScopes(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.completedWorkOrder(t)
	svc := f.commissionService()

	rows, err := svc.Report(ctx, f.admin, "")
	require.NoError(t, err)
	require.Len(t, rows, 2)
	byID := map[string]CommissionRow{}
	for _, r := range rows {
		byID[r.ProfileID] = r
	}
	staffRow := byID[f.staff.ID.String()]
	assert.Equal(t, "Sam Staff", staffRow.FullName)
	assert.Equal(t, "25.00", staffRow.DailyAmount)
	assert.Equal(t, "25.00", staffRow.MonthlyAmount)
	assert.Nil(t, staffRow.Amount)
	assert.Equal(t, "10.00", byID[f.admin.ID.String()].MonthlyAmount)

	mine, err := svc.Report(ctx, f.staff, "week")
	require.NoError(t, err)
	require.Len(t, mine, 1)
	require.NotNil(t, mine[0].Amount)
	assert.Equal(t, "25.00", *mine[0].Amount)

	_, err = svc.Report(ctx, f.client, "")
	assert.True(t, errors.Is(err, apperr.ErrUnauthorized))

	_, err = svc.Report(ctx, f.admin, "year")
	assert.True(t, errors.Is(err, apperr.ErrInvalidInput))
}

func TestCommissionWorkbookExport(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.completedWorkOrder(t)
	svc := f.commissionService()

	name, data, err := svc.ExportWorkbook(ctx, f.admin)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(name, "commission-"))
	assert.True(t, strings.HasSuffix(name, ".xlsx"))
	assert.True(t, bytes.HasPrefix(data, []byte("PK")))

	_, _, err = svc.ExportWorkbook(ctx, f.staff)
	assert.True(t, errors.Is(err, apperr.ErrUnauthorized))
}

func TestInvoiceLifecycleAndPDF(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	wo := f.completedWorkOrder(t)
	inv, err := f.conversionService(nil).ConvertToInvoice(ctx, f.admin, ConvertToInvoiceRequest{SourceType: SourceWorkOrder, SourceID: wo.ID})
	require.NoError(t, err)
	require.NotNil(t, inv.DueDate)

	svc := f.invoiceService()
	_, err = svc.TransitionInvoice(ctx, f.admin, inv.ID, TransitionRequest{Status: string(model.InvoicePaid)})
	assert.True(t, errors.Is(err, apperr.ErrInvalidTransition))

	inv, err = svc.TransitionInvoice(ctx, f.admin, inv.ID, TransitionRequest{Status: string(model.InvoiceSent)})
	require.NoError(t, err)
	assert.NotNil(t, inv.SentAt)
	inv, err = svc.TransitionInvoice(ctx, f.admin, inv.ID, TransitionRequest{Status: string(model.InvoicePaid)})
	require.NoError(t, err)
	assert.NotNil(t, inv.PaidAt)

	_, err = svc.TransitionInvoice(ctx, f.client, inv.ID, TransitionRequest{Status: string(model.InvoiceOverdue)})
	assert.True(t, errors.Is(err, apperr.ErrUnauthorized))

	name, data, err := svc.RenderPDF(ctx, f.client, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, inv.InvoiceNo+".pdf", name)
	assert.True(t, bytes.HasPrefix(data, []byte("%PDF-")))

	stranger := f.profile(t, "Sid Stranger", model.RoleClient)
	_, _, err = svc.RenderPDF(ctx, stranger, inv.ID)
	assert.True(t, errors.Is(err, apperr.ErrUnauthorized))
}
