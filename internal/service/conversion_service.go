package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"backoffice/internal/apperr"
	"backoffice/internal/lifecycle"
	"backoffice/internal/metrics"
	"backoffice/internal/model"
	"backoffice/internal/realtime"
	"backoffice/internal/repository"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Stage is how far a conversion got.
type Stage string

const (
	StageNotStarted     Stage = "not_started"
	StageCreatingTarget Stage = "creating_target"
	StageLinking        Stage = "linking_back_reference"
	StageDone           Stage = "done"
)

// Conversion sources accepted by ConvertToInvoice.
const (
	SourceQuoteRequest = "quote_request"
	SourceWorkOrder    = "work_order"
)

const invoiceDueDays = 14

// ConversionError reports the stage a conversion stopped at. A failure at
// StageLinking leaves a target behind that the next attempt picks up.
type ConversionError struct {
	Stage Stage
	Err   error
}

func (e *ConversionError) Error() string {
	return fmt.Sprintf("conversion stopped at %s: %v", e.Stage, e.Err)
}

func (e *ConversionError) Unwrap() error { return e.Err }

// --- DTOs ---

type ConvertToInvoiceRequest struct {
	SourceType string `json:"source_type" binding:"required,oneof=quote_request work_order"`
	SourceID   string `json:"source_id" binding:"required"`
	Note       string `json:"note"`
}

// --- Interface ---

type ConversionService interface {
	ConvertToWorkOrder(ctx context.Context, actor model.Actor, quoteID string) (WorkOrderResponse, error)
	ConvertToInvoice(ctx context.Context, actor model.Actor, req ConvertToInvoiceRequest) (InvoiceResponse, error)
}

type conversionService struct {
	quoteRepo     repository.QuoteRepository
	workOrderRepo repository.WorkOrderRepository
	invoiceRepo   repository.InvoiceRepository
	catalogRepo   repository.ServiceCatalogRepository
	auditRepo     repository.AuditRepository
	publisher     realtime.Publisher
	metrics       *metrics.Metrics
	log           zerolog.Logger
}

func NewConversionService(
	quoteRepo repository.QuoteRepository,
	workOrderRepo repository.WorkOrderRepository,
	invoiceRepo repository.InvoiceRepository,
	catalogRepo repository.ServiceCatalogRepository,
	auditRepo repository.AuditRepository,
	publisher realtime.Publisher,
	m *metrics.Metrics,
	log zerolog.Logger,
) ConversionService {
	return &conversionService{
		quoteRepo:     quoteRepo,
		workOrderRepo: workOrderRepo,
		invoiceRepo:   invoiceRepo,
		catalogRepo:   catalogRepo,
		auditRepo:     auditRepo,
		publisher:     publisher,
		metrics:       m,
		log:           log.With().Str("component", "conversion_service").Logger(),
	}
}

// --- Implementation ---

// ConvertToWorkOrder turns an accepted quote into a pending work order and
// marks the quote converted. Repeating the call returns the same work order.
func (s *conversionService) ConvertToWorkOrder(ctx context.Context, actor model.Actor, id string) (resp WorkOrderResponse, err error) {
	outcome := "created"
	defer func() {
		if err != nil {
			outcome = metrics.Outcome(err)
		}
		s.metrics.ObserveConversion(SourceWorkOrder, outcome)
	}()

	if !actor.IsBackOffice() {
		return WorkOrderResponse{}, apperr.Unauthorized("only staff can convert quotes")
	}
	quoteID, err := parseID(id, "quote")
	if err != nil {
		return WorkOrderResponse{}, err
	}
	quote, err := s.quoteRepo.FindByID(ctx, quoteID)
	if err != nil {
		return WorkOrderResponse{}, err
	}

	existing, err := s.workOrderRepo.FindByQuoteRequestID(ctx, quote.ID)
	if err != nil {
		return WorkOrderResponse{}, err
	}
	if existing != nil {
		outcome = "reused"
		if err := s.linkQuote(ctx, quote); err != nil {
			return WorkOrderResponse{}, &ConversionError{Stage: StageLinking, Err: err}
		}
		return toWorkOrderResponse(*existing), nil
	}
	if err := s.checkNotInvoiced(ctx, quote); err != nil {
		return WorkOrderResponse{}, err
	}
	if err := s.checkConvertible(quote, actor); err != nil {
		return WorkOrderResponse{}, err
	}

	items, err := s.quoteLines(ctx, quote)
	if err != nil {
		return WorkOrderResponse{}, &ConversionError{Stage: StageNotStarted, Err: err}
	}
	if err := ctx.Err(); err != nil {
		return WorkOrderResponse{}, &ConversionError{Stage: StageNotStarted, Err: err}
	}

	createdBy := actor.ID
	quoteRef := quote.ID
	wo := &model.WorkOrder{
		QuoteRequestID: &quoteRef,
		ClientID:       quote.ClientID,
		Vehicle:        quote.Vehicle,
		Description:    quote.Description,
		Services:       items,
		Subtotal:       model.SumLines(items),
		Status:         model.WorkOrderPending,
		CreatedBy:      &createdBy,
	}
	err = createWithNumber(ctx, "WO", nowUTC(), s.workOrderRepo.CountByPrefix,
		func(no string) { wo.WorkOrderNo = no },
		func() error { return s.workOrderRepo.Create(ctx, wo) })
	if err != nil {
		// a concurrent conversion may have won the back-reference
		found, findErr := s.workOrderRepo.FindByQuoteRequestID(context.WithoutCancel(ctx), quote.ID)
		if findErr != nil || found == nil {
			return WorkOrderResponse{}, &ConversionError{Stage: StageCreatingTarget, Err: err}
		}
		outcome = "reused"
		wo = found
	} else {
		publish(s.publisher, insertEvent(realtime.TableWorkOrders, wo.ID, wo.ClientID, string(wo.Status)))
	}

	if err := s.linkQuote(ctx, quote); err != nil {
		s.log.Error().Err(err).Str("quote_id", quote.ID.String()).Str("work_order_id", wo.ID.String()).
			Str("stage", string(StageLinking)).Msg("work order created but quote not marked converted")
		return WorkOrderResponse{}, &ConversionError{Stage: StageLinking, Err: err}
	}

	s.audit(ctx, actor, model.ActionConvertToWorkOrder, SourceQuoteRequest, quote.ID, map[string]interface{}{
		"work_order_id": wo.ID.String(),
		"work_order_no": wo.WorkOrderNo,
	})
	s.log.Info().Str("quote_id", quote.ID.String()).Str("work_order_no", wo.WorkOrderNo).
		Str("stage", string(StageDone)).Msg("quote converted to work order")
	return toWorkOrderResponse(*wo), nil
}

// ConvertToInvoice bills an accepted quote or a completed work order and
// moves the source to its terminal status. Repeating the call returns the
// same invoice.
func (s *conversionService) ConvertToInvoice(ctx context.Context, actor model.Actor, req ConvertToInvoiceRequest) (resp InvoiceResponse, err error) {
	outcome := "created"
	defer func() {
		if err != nil {
			outcome = metrics.Outcome(err)
		}
		s.metrics.ObserveConversion("invoice", outcome)
	}()

	if !actor.IsBackOffice() {
		return InvoiceResponse{}, apperr.Unauthorized("only staff can issue invoices")
	}

	var (
		src      invoiceSource
		reused   bool
		existing *model.Invoice
	)
	switch req.SourceType {
	case SourceQuoteRequest:
		src, existing, err = s.quoteSource(ctx, actor, req.SourceID)
	case SourceWorkOrder:
		src, existing, err = s.workOrderSource(ctx, actor, req.SourceID)
	default:
		return InvoiceResponse{}, apperr.InvalidInput("source_type must be quote_request or work_order")
	}
	if err != nil {
		return InvoiceResponse{}, err
	}
	if existing != nil {
		outcome = "reused"
		if err := src.link(ctx); err != nil {
			return InvoiceResponse{}, &ConversionError{Stage: StageLinking, Err: err}
		}
		return toInvoiceResponse(*existing), nil
	}
	if err := ctx.Err(); err != nil {
		return InvoiceResponse{}, &ConversionError{Stage: StageNotStarted, Err: err}
	}

	now := nowUTC()
	due := now.Add(invoiceDueDays * 24 * time.Hour)
	createdBy := actor.ID
	inv := &model.Invoice{
		QuoteRequestID: src.quoteID,
		WorkOrderID:    src.workOrderID,
		ClientID:       src.clientID,
		Vehicle:        src.vehicle,
		Services:       src.items,
		Subtotal:       model.SumLines(src.items),
		TotalAmount:    model.SumLines(src.items),
		Status:         model.InvoiceDraft,
		DueDate:        &due,
		Note:           req.Note,
		CreatedBy:      &createdBy,
	}
	err = createWithNumber(ctx, "INV", now, s.invoiceRepo.CountByPrefix,
		func(no string) { inv.InvoiceNo = no },
		func() error { return s.invoiceRepo.Create(ctx, inv) })
	if err != nil {
		found, findErr := src.find(context.WithoutCancel(ctx))
		if findErr != nil || found == nil {
			return InvoiceResponse{}, &ConversionError{Stage: StageCreatingTarget, Err: err}
		}
		reused = true
		outcome = "reused"
		inv = found
	}
	if !reused {
		publish(s.publisher, insertEvent(realtime.TableInvoices, inv.ID, inv.ClientID, string(inv.Status)))
	}

	if err := src.link(ctx); err != nil {
		s.log.Error().Err(err).Str("source_type", req.SourceType).Str("source_id", req.SourceID).
			Str("invoice_id", inv.ID.String()).Str("stage", string(StageLinking)).Msg("invoice created but source not marked")
		return InvoiceResponse{}, &ConversionError{Stage: StageLinking, Err: err}
	}

	s.audit(ctx, actor, model.ActionConvertToInvoice, req.SourceType, src.id, map[string]interface{}{
		"invoice_id": inv.ID.String(),
		"invoice_no": inv.InvoiceNo,
	})
	s.log.Info().Str("source_type", req.SourceType).Str("source_id", src.id.String()).
		Str("invoice_no", inv.InvoiceNo).Str("stage", string(StageDone)).Msg("invoice issued")
	return toInvoiceResponse(*inv), nil
}

// invoiceSource is what ConvertToInvoice needs from either origin.
type invoiceSource struct {
	id          uuid.UUID
	quoteID     *uuid.UUID
	workOrderID *uuid.UUID
	clientID    uuid.UUID
	vehicle     model.Vehicle
	items       []model.ServiceLineItem
	find        func(ctx context.Context) (*model.Invoice, error)
	link        func(ctx context.Context) error
}

func (s *conversionService) quoteSource(ctx context.Context, actor model.Actor, id string) (invoiceSource, *model.Invoice, error) {
	quoteID, err := parseID(id, "quote")
	if err != nil {
		return invoiceSource{}, nil, err
	}
	quote, err := s.quoteRepo.FindByID(ctx, quoteID)
	if err != nil {
		return invoiceSource{}, nil, err
	}

	src := invoiceSource{
		id:       quote.ID,
		quoteID:  &quote.ID,
		clientID: quote.ClientID,
		vehicle:  quote.Vehicle,
		find: func(ctx context.Context) (*model.Invoice, error) {
			return s.invoiceRepo.FindByQuoteRequestID(ctx, quote.ID)
		},
		link: func(ctx context.Context) error { return s.linkQuote(ctx, quote) },
	}

	existing, err := src.find(ctx)
	if err != nil || existing != nil {
		return src, existing, err
	}
	wo, err := s.workOrderRepo.FindByQuoteRequestID(ctx, quote.ID)
	if err != nil {
		return src, nil, err
	}
	if wo != nil {
		return src, nil, apperr.NotConvertible("quote already became work order %s; invoice the work order instead", wo.WorkOrderNo)
	}
	if err := s.checkConvertible(quote, actor); err != nil {
		return src, nil, err
	}

	src.items, err = s.quoteLines(ctx, quote)
	return src, nil, err
}

func (s *conversionService) workOrderSource(ctx context.Context, actor model.Actor, id string) (invoiceSource, *model.Invoice, error) {
	woID, err := parseID(id, "work order")
	if err != nil {
		return invoiceSource{}, nil, err
	}
	wo, err := s.workOrderRepo.FindByID(ctx, woID)
	if err != nil {
		return invoiceSource{}, nil, err
	}

	src := invoiceSource{
		id:          wo.ID,
		workOrderID: &wo.ID,
		clientID:    wo.ClientID,
		vehicle:     wo.Vehicle,
		items:       append([]model.ServiceLineItem(nil), wo.Services...),
		find: func(ctx context.Context) (*model.Invoice, error) {
			return s.invoiceRepo.FindByWorkOrderID(ctx, wo.ID)
		},
		link: func(ctx context.Context) error { return s.linkWorkOrder(ctx, wo, actor) },
	}

	existing, err := src.find(ctx)
	if err != nil || existing != nil {
		return src, existing, err
	}
	if wo.Status != model.WorkOrderCompleted {
		return src, nil, apperr.NotConvertible("work order is %s; only completed work orders can be invoiced", wo.Status)
	}
	return src, nil, nil
}

// checkConvertible maps anything but an accepted quote to NotConvertible and
// then lets the state machine authorize the move to converted.
func (s *conversionService) checkConvertible(quote *model.QuoteRequest, actor model.Actor) error {
	if quote.Status != model.QuoteStatusAccepted {
		return apperr.NotConvertible("quote is %s; only accepted quotes can be converted", quote.Status)
	}
	_, err := lifecycle.TransitionQuote(lifecycle.StateOf(quote), lifecycle.ActionConvert, model.SystemActor(actor.ID))
	return err
}

// checkNotInvoiced refuses a work order for a quote that was billed directly.
func (s *conversionService) checkNotInvoiced(ctx context.Context, quote *model.QuoteRequest) error {
	inv, err := s.invoiceRepo.FindByQuoteRequestID(ctx, quote.ID)
	if err != nil {
		return err
	}
	if inv != nil {
		if err := s.linkQuote(ctx, quote); err != nil {
			s.log.Warn().Err(err).Str("quote_id", quote.ID.String()).Msg("invoiced quote not marked converted")
		}
		return apperr.NotConvertible("quote was already invoiced as %s", inv.InvoiceNo)
	}
	return nil
}

// linkQuote marks the quote converted. It runs detached from the caller's
// context so a cancelled request cannot strand a created target.
func (s *conversionService) linkQuote(ctx context.Context, quote *model.QuoteRequest) error {
	ctx = context.WithoutCancel(ctx)
	err := s.quoteRepo.CompareAndSwap(ctx, quote.ID, []model.QuoteStatus{model.QuoteStatusAccepted}, map[string]interface{}{
		"status": model.QuoteStatusConverted,
	})
	if err == nil {
		publish(s.publisher, statusEvent(realtime.TableQuoteRequests, quote.ID, quote.ClientID,
			string(model.QuoteStatusAccepted), string(model.QuoteStatusConverted)))
		return nil
	}
	if errors.Is(err, apperr.ErrStaleState) {
		current, findErr := s.quoteRepo.FindByID(ctx, quote.ID)
		if findErr == nil && current.Status == model.QuoteStatusConverted {
			return nil
		}
	}
	return err
}

func (s *conversionService) linkWorkOrder(ctx context.Context, wo *model.WorkOrder, actor model.Actor) error {
	ctx = context.WithoutCancel(ctx)
	if wo.Status == model.WorkOrderInvoiced {
		return nil
	}
	if err := lifecycle.TransitionWorkOrder(model.WorkOrderCompleted, model.WorkOrderInvoiced, model.SystemActor(actor.ID)); err != nil {
		return err
	}
	err := s.workOrderRepo.CompareAndSwap(ctx, wo.ID, []model.WorkOrderStatus{model.WorkOrderCompleted}, map[string]interface{}{
		"status": model.WorkOrderInvoiced,
	})
	if err == nil {
		publish(s.publisher, statusEvent(realtime.TableWorkOrders, wo.ID, wo.ClientID,
			string(model.WorkOrderCompleted), string(model.WorkOrderInvoiced)))
		return nil
	}
	if errors.Is(err, apperr.ErrStaleState) {
		current, findErr := s.workOrderRepo.FindByID(ctx, wo.ID)
		if findErr == nil && current.Status == model.WorkOrderInvoiced {
			return nil
		}
	}
	return err
}

// quoteLines builds one line per requested service priced at its estimate,
// with name and commission terms taken from the catalog.
func (s *conversionService) quoteLines(ctx context.Context, quote *model.QuoteRequest) ([]model.ServiceLineItem, error) {
	catalog, err := s.catalogRepo.FindByIDs(ctx, quote.ServiceIDs)
	if err != nil {
		return nil, err
	}

	items := make([]model.ServiceLineItem, 0, len(quote.ServiceIDs))
	for _, id := range quote.ServiceIDs {
		price, ok := quote.ServiceEstimates[id]
		if !ok {
			return nil, apperr.IncompleteEstimate("quote has no estimate for service %s", id)
		}
		item := model.ServiceLineItem{ServiceID: id, ServiceName: id, Quantity: 1, UnitPrice: price}
		if svc, ok := catalog[id]; ok {
			item.ServiceName = svc.Name
			item.CommissionRate = svc.CommissionRate
			item.CommissionType = svc.CommissionType
		}
		items = append(items, item)
	}
	return items, nil
}

func (s *conversionService) audit(ctx context.Context, actor model.Actor, action, entity string, sourceID uuid.UUID, details map[string]interface{}) {
	if err := writeAudit(context.WithoutCancel(ctx), s.auditRepo, actor, action, entity, sourceID, details); err != nil {
		s.log.Warn().Err(err).Str("action", action).Msg("audit not recorded")
	}
}
