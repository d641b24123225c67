package service

import (
	"context"
	"fmt"
	"strconv"

	"backoffice/internal/apperr"
	"backoffice/internal/commission"
	"backoffice/internal/estimate"
	"backoffice/internal/lifecycle"
	"backoffice/internal/metrics"
	"backoffice/internal/model"
	"backoffice/internal/realtime"
	"backoffice/internal/repository"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/datatypes"
)

// --- DTOs ---

type CreateWorkOrderRequest struct {
	ClientID    string                  `json:"client_id" binding:"required"`
	Vehicle     model.Vehicle           `json:"vehicle"`
	Description string                  `json:"description"`
	Services    []model.ServiceLineItem `json:"services" binding:"required,min=1"`
}

type UpdateServicesRequest struct {
	Services []model.ServiceLineItem `json:"services" binding:"required,min=1"`
}

type TransitionRequest struct {
	Status string `json:"status" binding:"required"`
}

type WorkOrderFilter struct {
	Status string
	Page   int
	Limit  int
}

type LineItemResponse struct {
	model.ServiceLineItem
	LineTotal string `json:"line_total"`
}

type WorkOrderResponse struct {
	ID             string             `json:"id"`
	WorkOrderNo    string             `json:"work_order_no"`
	QuoteRequestID *string            `json:"quote_request_id"`
	ClientID       string             `json:"client_id"`
	Vehicle        model.Vehicle      `json:"vehicle"`
	Description    string             `json:"description"`
	Services       []LineItemResponse `json:"services"`
	Subtotal       string             `json:"subtotal"`
	Status         string             `json:"status"`
	CompletedAt    *string            `json:"completed_at"`
	CreatedAt      string             `json:"created_at"`
	UpdatedAt      string             `json:"updated_at"`
}

type LineCommissionResponse struct {
	ServiceID  string `json:"service_id"`
	Commission string `json:"commission"`
}

// --- Interface ---

type WorkOrderService interface {
	CreateWorkOrder(ctx context.Context, actor model.Actor, req CreateWorkOrderRequest) (WorkOrderResponse, error)
	GetWorkOrder(ctx context.Context, actor model.Actor, id string) (WorkOrderResponse, error)
	ListWorkOrders(ctx context.Context, actor model.Actor, filter WorkOrderFilter) ([]WorkOrderResponse, int64, error)
	TransitionWorkOrder(ctx context.Context, actor model.Actor, id string, req TransitionRequest) (WorkOrderResponse, error)
	UpdateServices(ctx context.Context, actor model.Actor, id string, req UpdateServicesRequest) (WorkOrderResponse, error)
	CommissionDetail(ctx context.Context, actor model.Actor, id string) ([]LineCommissionResponse, error)
}

type workOrderService struct {
	workOrderRepo repository.WorkOrderRepository
	catalogRepo   repository.ServiceCatalogRepository
	auditRepo     repository.AuditRepository
	txManager     repository.TransactionManager
	allocator     *commission.Allocator
	publisher     realtime.Publisher
	cache         *realtime.ViewCache
	metrics       *metrics.Metrics
	log           zerolog.Logger
}

func NewWorkOrderService(
	workOrderRepo repository.WorkOrderRepository,
	catalogRepo repository.ServiceCatalogRepository,
	auditRepo repository.AuditRepository,
	txManager repository.TransactionManager,
	allocator *commission.Allocator,
	publisher realtime.Publisher,
	cache *realtime.ViewCache,
	m *metrics.Metrics,
	log zerolog.Logger,
) WorkOrderService {
	return &workOrderService{
		workOrderRepo: workOrderRepo,
		catalogRepo:   catalogRepo,
		auditRepo:     auditRepo,
		txManager:     txManager,
		allocator:     allocator,
		publisher:     publisher,
		cache:         cache,
		metrics:       m,
		log:           log.With().Str("component", "work_order_service").Logger(),
	}
}

// --- Implementation ---

func (s *workOrderService) CreateWorkOrder(ctx context.Context, actor model.Actor, req CreateWorkOrderRequest) (WorkOrderResponse, error) {
	if !actor.IsBackOffice() {
		return WorkOrderResponse{}, apperr.Unauthorized("only staff can create work orders")
	}
	clientID, err := parseID(req.ClientID, "client")
	if err != nil {
		return WorkOrderResponse{}, err
	}
	items, err := s.prepareLines(ctx, req.Services)
	if err != nil {
		return WorkOrderResponse{}, err
	}

	createdBy := actor.ID
	wo := &model.WorkOrder{
		ClientID:    clientID,
		Vehicle:     req.Vehicle,
		Description: req.Description,
		Services:    items,
		Subtotal:    model.SumLines(items),
		Status:      model.WorkOrderPending,
		CreatedBy:   &createdBy,
	}

	err = createWithNumber(ctx, "WO", nowUTC(), s.workOrderRepo.CountByPrefix,
		func(no string) { wo.WorkOrderNo = no },
		func() error { return s.workOrderRepo.Create(ctx, wo) })
	if err != nil {
		return WorkOrderResponse{}, fmt.Errorf("create work order: %w", err)
	}
	if err := writeAudit(ctx, s.auditRepo, actor, model.ActionCreateWorkOrder, "work_order", wo.ID, map[string]interface{}{
		"work_order_no": wo.WorkOrderNo,
		"subtotal":      wo.Subtotal.String(),
	}); err != nil {
		s.log.Warn().Err(err).Str("work_order_id", wo.ID.String()).Msg("audit not recorded")
	}

	publish(s.publisher, insertEvent(realtime.TableWorkOrders, wo.ID, wo.ClientID, string(wo.Status)))
	return s.reload(ctx, wo.ID)
}

func (s *workOrderService) GetWorkOrder(ctx context.Context, actor model.Actor, id string) (WorkOrderResponse, error) {
	woID, err := parseID(id, "work order")
	if err != nil {
		return WorkOrderResponse{}, err
	}

	key := realtime.DetailKey(realtime.TableWorkOrders, woID)
	var wo model.WorkOrder
	if v, ok := cacheGet(s.cache, key); ok {
		wo = v.(model.WorkOrder)
	} else {
		found, err := s.workOrderRepo.FindByID(ctx, woID)
		if err != nil {
			return WorkOrderResponse{}, err
		}
		wo = *found
		cacheSet(s.cache, key, wo)
	}

	if !actor.IsBackOffice() && actor.ID != wo.ClientID {
		return WorkOrderResponse{}, apperr.Unauthorized("not allowed to view this work order")
	}
	return toWorkOrderResponse(wo), nil
}

type workOrderPage struct {
	items []model.WorkOrder
	total int64
}

func (s *workOrderService) ListWorkOrders(ctx context.Context, actor model.Actor, filter WorkOrderFilter) ([]WorkOrderResponse, int64, error) {
	repoFilter := repository.WorkOrderFilter{Status: filter.Status, Page: filter.Page, Limit: filter.Limit}
	scope := "all"
	if !actor.IsBackOffice() {
		if !actor.Has(model.RoleClient) {
			return nil, 0, apperr.Unauthorized("not allowed to list work orders")
		}
		clientID := actor.ID
		repoFilter.ClientID = &clientID
		scope = clientID.String()
	}

	key := realtime.ListKey(realtime.TableWorkOrders, scope, filter.Status, strconv.Itoa(filter.Page), strconv.Itoa(filter.Limit))
	var page workOrderPage
	if v, ok := cacheGet(s.cache, key); ok {
		page = v.(workOrderPage)
	} else {
		items, total, err := s.workOrderRepo.List(ctx, repoFilter)
		if err != nil {
			return nil, 0, err
		}
		page = workOrderPage{items: items, total: total}
		cacheSet(s.cache, key, page)
	}

	out := make([]WorkOrderResponse, 0, len(page.items))
	for _, wo := range page.items {
		out = append(out, toWorkOrderResponse(wo))
	}
	return out, page.total, nil
}

func (s *workOrderService) TransitionWorkOrder(ctx context.Context, actor model.Actor, id string, req TransitionRequest) (resp WorkOrderResponse, err error) {
	defer func() { s.metrics.ObserveTransition("work_order", req.Status, err) }()

	woID, err := parseID(id, "work order")
	if err != nil {
		return WorkOrderResponse{}, err
	}
	wo, err := s.workOrderRepo.FindByID(ctx, woID)
	if err != nil {
		return WorkOrderResponse{}, err
	}

	to := model.WorkOrderStatus(req.Status)
	if err := lifecycle.TransitionWorkOrder(wo.Status, to, actor); err != nil {
		return WorkOrderResponse{}, err
	}

	updates := map[string]interface{}{"status": to}
	if to == model.WorkOrderCompleted {
		updates["completed_at"] = nowUTC()
	}
	err = s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		if err := s.workOrderRepo.CompareAndSwap(txCtx, wo.ID, []model.WorkOrderStatus{wo.Status}, updates); err != nil {
			return err
		}
		return writeAudit(txCtx, s.auditRepo, actor, model.ActionTransitionWorkOrder, "work_order", wo.ID, map[string]interface{}{
			"from": wo.Status,
			"to":   to,
		})
	})
	if err != nil {
		return WorkOrderResponse{}, err
	}

	publish(s.publisher, statusEvent(realtime.TableWorkOrders, wo.ID, wo.ClientID, string(wo.Status), string(to)))
	return s.reload(ctx, wo.ID)
}

func (s *workOrderService) UpdateServices(ctx context.Context, actor model.Actor, id string, req UpdateServicesRequest) (WorkOrderResponse, error) {
	if !actor.IsBackOffice() {
		return WorkOrderResponse{}, apperr.Unauthorized("only staff can edit work order services")
	}
	woID, err := parseID(id, "work order")
	if err != nil {
		return WorkOrderResponse{}, err
	}
	wo, err := s.workOrderRepo.FindByID(ctx, woID)
	if err != nil {
		return WorkOrderResponse{}, err
	}
	if err := lifecycle.WorkOrderEditable(wo.Status); err != nil {
		return WorkOrderResponse{}, err
	}
	items, err := s.prepareLines(ctx, req.Services)
	if err != nil {
		return WorkOrderResponse{}, err
	}

	err = s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		if err := s.workOrderRepo.CompareAndSwap(txCtx, wo.ID, []model.WorkOrderStatus{wo.Status}, map[string]interface{}{
			"services": datatypes.JSONSlice[model.ServiceLineItem](items),
			"subtotal": model.SumLines(items),
		}); err != nil {
			return err
		}
		return writeAudit(txCtx, s.auditRepo, actor, model.ActionUpdateWorkOrderLine, "work_order", wo.ID, map[string]interface{}{
			"lines": len(items),
		})
	})
	if err != nil {
		return WorkOrderResponse{}, err
	}

	publish(s.publisher, statusEvent(realtime.TableWorkOrders, wo.ID, wo.ClientID, string(wo.Status), string(wo.Status)))
	return s.reload(ctx, wo.ID)
}

// CommissionDetail lists the commission earned on each line. Staff may only
// look at work orders they are credited on.
func (s *workOrderService) CommissionDetail(ctx context.Context, actor model.Actor, id string) ([]LineCommissionResponse, error) {
	if !actor.IsBackOffice() {
		return nil, apperr.Unauthorized("commission details are for staff only")
	}
	woID, err := parseID(id, "work order")
	if err != nil {
		return nil, err
	}
	wo, err := s.workOrderRepo.FindByID(ctx, woID)
	if err != nil {
		return nil, err
	}
	if !actor.Has(model.RoleAdmin) && !wo.IsAssigned(actor.ID) {
		return nil, apperr.Unauthorized("not assigned to this work order")
	}

	details := s.allocator.LineDetails(wo.Services)
	out := make([]LineCommissionResponse, 0, len(details))
	for _, d := range details {
		out = append(out, LineCommissionResponse{ServiceID: d.ServiceID, Commission: estimate.Display(d.Commission)})
	}
	return out, nil
}

// --- Helpers ---

// prepareLines validates line items and fills the service name from the catalog.
func (s *workOrderService) prepareLines(ctx context.Context, in []model.ServiceLineItem) ([]model.ServiceLineItem, error) {
	if len(in) == 0 {
		return nil, apperr.InvalidInput("at least one service line is required")
	}
	ids := make([]string, 0, len(in))
	for _, it := range in {
		if err := it.Validate(); err != nil {
			return nil, apperr.InvalidInput("%s", err.Error())
		}
		ids = append(ids, it.ServiceID)
	}
	catalog, err := s.catalogRepo.FindByIDs(ctx, estimate.Unique(ids))
	if err != nil {
		return nil, err
	}

	out := make([]model.ServiceLineItem, len(in))
	for i, it := range in {
		svc, ok := catalog[it.ServiceID]
		if !ok {
			return nil, apperr.InvalidInput("unknown service %s", it.ServiceID)
		}
		if it.ServiceName == "" {
			it.ServiceName = svc.Name
		}
		out[i] = it
	}
	return out, nil
}

func (s *workOrderService) reload(ctx context.Context, id uuid.UUID) (WorkOrderResponse, error) {
	wo, err := s.workOrderRepo.FindByID(ctx, id)
	if err != nil {
		return WorkOrderResponse{}, err
	}
	return toWorkOrderResponse(*wo), nil
}

func toLineItems(items []model.ServiceLineItem) []LineItemResponse {
	out := make([]LineItemResponse, 0, len(items))
	for _, it := range items {
		out = append(out, LineItemResponse{ServiceLineItem: it, LineTotal: estimate.Display(it.LineTotal())})
	}
	return out
}

func toWorkOrderResponse(wo model.WorkOrder) WorkOrderResponse {
	resp := WorkOrderResponse{
		ID:          wo.ID.String(),
		WorkOrderNo: wo.WorkOrderNo,
		ClientID:    wo.ClientID.String(),
		Vehicle:     wo.Vehicle,
		Description: wo.Description,
		Services:    toLineItems(wo.Services),
		Subtotal:    estimate.Display(wo.Subtotal),
		Status:      string(wo.Status),
		CompletedAt: formatTime(wo.CompletedAt),
		CreatedAt:   wo.CreatedAt.UTC().Format(timeLayout),
		UpdatedAt:   wo.UpdatedAt.UTC().Format(timeLayout),
	}
	if wo.QuoteRequestID != nil {
		id := wo.QuoteRequestID.String()
		resp.QuoteRequestID = &id
	}
	return resp
}
