package service

import (
	"context"
	"strconv"

	"backoffice/internal/apperr"
	"backoffice/internal/estimate"
	"backoffice/internal/export"
	"backoffice/internal/lifecycle"
	"backoffice/internal/metrics"
	"backoffice/internal/model"
	"backoffice/internal/realtime"
	"backoffice/internal/repository"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// --- DTOs ---

type InvoiceFilter struct {
	Status    string
	InvoiceNo string // partial match on invoice_no
	Page      int
	Limit     int
}

type InvoiceResponse struct {
	ID             string             `json:"id"`
	InvoiceNo      string             `json:"invoice_no"`
	QuoteRequestID *string            `json:"quote_request_id"`
	WorkOrderID    *string            `json:"work_order_id"`
	ClientID       string             `json:"client_id"`
	Vehicle        model.Vehicle      `json:"vehicle"`
	Services       []LineItemResponse `json:"services"`
	Subtotal       string             `json:"subtotal"`
	TotalAmount    string             `json:"total_amount"`
	Status         string             `json:"status"`
	DueDate        *string            `json:"due_date"`
	SentAt         *string            `json:"sent_at"`
	PaidAt         *string            `json:"paid_at"`
	Note           string             `json:"note"`
	CreatedAt      string             `json:"created_at"`
}

// --- Interface ---

type InvoiceService interface {
	GetInvoice(ctx context.Context, actor model.Actor, id string) (InvoiceResponse, error)
	ListInvoices(ctx context.Context, actor model.Actor, filter InvoiceFilter) ([]InvoiceResponse, int64, error)
	TransitionInvoice(ctx context.Context, actor model.Actor, id string, req TransitionRequest) (InvoiceResponse, error)
	RenderPDF(ctx context.Context, actor model.Actor, id string) (string, []byte, error)
}

type invoiceService struct {
	invoiceRepo repository.InvoiceRepository
	profileRepo repository.ProfileRepository
	auditRepo   repository.AuditRepository
	txManager   repository.TransactionManager
	pdf         *export.PDFGenerator
	issuer      string
	publisher   realtime.Publisher
	cache       *realtime.ViewCache
	metrics     *metrics.Metrics
	log         zerolog.Logger
}

func NewInvoiceService(
	invoiceRepo repository.InvoiceRepository,
	profileRepo repository.ProfileRepository,
	auditRepo repository.AuditRepository,
	txManager repository.TransactionManager,
	pdf *export.PDFGenerator,
	issuer string,
	publisher realtime.Publisher,
	cache *realtime.ViewCache,
	m *metrics.Metrics,
	log zerolog.Logger,
) InvoiceService {
	return &invoiceService{
		invoiceRepo: invoiceRepo,
		profileRepo: profileRepo,
		auditRepo:   auditRepo,
		txManager:   txManager,
		pdf:         pdf,
		issuer:      issuer,
		publisher:   publisher,
		cache:       cache,
		metrics:     m,
		log:         log.With().Str("component", "invoice_service").Logger(),
	}
}

// --- Implementation ---

func (s *invoiceService) GetInvoice(ctx context.Context, actor model.Actor, id string) (InvoiceResponse, error) {
	inv, err := s.load(ctx, actor, id)
	if err != nil {
		return InvoiceResponse{}, err
	}
	return toInvoiceResponse(inv), nil
}

type invoicePage struct {
	items []model.Invoice
	total int64
}

func (s *invoiceService) ListInvoices(ctx context.Context, actor model.Actor, filter InvoiceFilter) ([]InvoiceResponse, int64, error) {
	repoFilter := repository.InvoiceFilter{
		Status:    filter.Status,
		InvoiceNo: filter.InvoiceNo,
		Page:      filter.Page,
		Limit:     filter.Limit,
	}
	scope := "all"
	if !actor.IsBackOffice() {
		if !actor.Has(model.RoleClient) {
			return nil, 0, apperr.Unauthorized("not allowed to list invoices")
		}
		clientID := actor.ID
		repoFilter.ClientID = &clientID
		scope = clientID.String()
	}

	key := realtime.ListKey(realtime.TableInvoices, scope, filter.Status, filter.InvoiceNo,
		strconv.Itoa(filter.Page), strconv.Itoa(filter.Limit))
	var page invoicePage
	if v, ok := cacheGet(s.cache, key); ok {
		page = v.(invoicePage)
	} else {
		items, total, err := s.invoiceRepo.List(ctx, repoFilter)
		if err != nil {
			return nil, 0, err
		}
		page = invoicePage{items: items, total: total}
		cacheSet(s.cache, key, page)
	}

	out := make([]InvoiceResponse, 0, len(page.items))
	for _, inv := range page.items {
		out = append(out, toInvoiceResponse(inv))
	}
	return out, page.total, nil
}

func (s *invoiceService) TransitionInvoice(ctx context.Context, actor model.Actor, id string, req TransitionRequest) (resp InvoiceResponse, err error) {
	defer func() { s.metrics.ObserveTransition("invoice", req.Status, err) }()

	invoiceID, err := parseID(id, "invoice")
	if err != nil {
		return InvoiceResponse{}, err
	}
	inv, err := s.invoiceRepo.FindByID(ctx, invoiceID)
	if err != nil {
		return InvoiceResponse{}, err
	}

	to := model.InvoiceStatus(req.Status)
	if err := lifecycle.TransitionInvoice(inv.Status, to, actor); err != nil {
		return InvoiceResponse{}, err
	}

	updates := map[string]interface{}{"status": to}
	switch to {
	case model.InvoiceSent:
		updates["sent_at"] = nowUTC()
	case model.InvoicePaid:
		updates["paid_at"] = nowUTC()
	}
	err = s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		if err := s.invoiceRepo.CompareAndSwap(txCtx, inv.ID, []model.InvoiceStatus{inv.Status}, updates); err != nil {
			return err
		}
		return writeAudit(txCtx, s.auditRepo, actor, model.ActionTransitionInvoice, "invoice", inv.ID, map[string]interface{}{
			"invoice_no": inv.InvoiceNo,
			"from":       inv.Status,
			"to":         to,
		})
	})
	if err != nil {
		return InvoiceResponse{}, err
	}

	publish(s.publisher, statusEvent(realtime.TableInvoices, inv.ID, inv.ClientID, string(inv.Status), string(to)))
	updated, err := s.invoiceRepo.FindByID(ctx, inv.ID)
	if err != nil {
		return InvoiceResponse{}, err
	}
	return toInvoiceResponse(*updated), nil
}

// RenderPDF returns the file name and PDF bytes of an invoice.
func (s *invoiceService) RenderPDF(ctx context.Context, actor model.Actor, id string) (string, []byte, error) {
	inv, err := s.load(ctx, actor, id)
	if err != nil {
		return "", nil, err
	}

	clientName := inv.ClientID.String()
	profiles, err := s.profileRepo.FindByIDs(ctx, []uuid.UUID{inv.ClientID})
	if err != nil {
		s.log.Warn().Err(err).Str("invoice_id", inv.ID.String()).Msg("client profile lookup failed")
	} else if p, ok := profiles[inv.ClientID]; ok {
		clientName = p.FullName
	}

	data, err := s.pdf.Generate(export.InvoiceDocument{Invoice: inv, ClientName: clientName, IssuerName: s.issuer})
	if err != nil {
		return "", nil, err
	}
	return inv.InvoiceNo + ".pdf", data, nil
}

// --- Helpers ---

func (s *invoiceService) load(ctx context.Context, actor model.Actor, id string) (model.Invoice, error) {
	invoiceID, err := parseID(id, "invoice")
	if err != nil {
		return model.Invoice{}, err
	}

	key := realtime.DetailKey(realtime.TableInvoices, invoiceID)
	var inv model.Invoice
	if v, ok := cacheGet(s.cache, key); ok {
		inv = v.(model.Invoice)
	} else {
		found, err := s.invoiceRepo.FindByID(ctx, invoiceID)
		if err != nil {
			return model.Invoice{}, err
		}
		inv = *found
		cacheSet(s.cache, key, inv)
	}

	if !actor.IsBackOffice() && actor.ID != inv.ClientID {
		return model.Invoice{}, apperr.Unauthorized("not allowed to view this invoice")
	}
	return inv, nil
}

func toInvoiceResponse(inv model.Invoice) InvoiceResponse {
	resp := InvoiceResponse{
		ID:          inv.ID.String(),
		InvoiceNo:   inv.InvoiceNo,
		ClientID:    inv.ClientID.String(),
		Vehicle:     inv.Vehicle,
		Services:    toLineItems(inv.Services),
		Subtotal:    estimate.Display(inv.Subtotal),
		TotalAmount: estimate.Display(inv.TotalAmount),
		Status:      string(inv.Status),
		DueDate:     formatTime(inv.DueDate),
		SentAt:      formatTime(inv.SentAt),
		PaidAt:      formatTime(inv.PaidAt),
		Note:        inv.Note,
		CreatedAt:   inv.CreatedAt.UTC().Format(timeLayout),
	}
	if inv.QuoteRequestID != nil {
		id := inv.QuoteRequestID.String()
		resp.QuoteRequestID = &id
	}
	if inv.WorkOrderID != nil {
		id := inv.WorkOrderID.String()
		resp.WorkOrderID = &id
	}
	return resp
}
