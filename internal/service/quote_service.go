package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"backoffice/internal/apperr"
	"backoffice/internal/estimate"
	"backoffice/internal/lifecycle"
	"backoffice/internal/media"
	"backoffice/internal/metrics"
	"backoffice/internal/model"
	"backoffice/internal/realtime"
	"backoffice/internal/repository"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// --- DTOs ---

type CreateQuoteRequest struct {
	ClientID       string          `json:"client_id"` // set by staff filing on behalf of a client
	Vehicle        model.Vehicle   `json:"vehicle"`
	Description    string          `json:"description"`
	ServiceIDs     []string        `json:"service_ids" binding:"required,min=1"`
	ServiceDetails json.RawMessage `json:"service_details" swaggertype:"object"`
	MediaURLs      []string        `json:"media_urls"`
}

type EstimateRequest struct {
	ServiceEstimates map[string]decimal.Decimal `json:"service_estimates" binding:"required" swaggertype:"object"`
}

type RespondRequest struct {
	Response string `json:"response" binding:"required,oneof=accepted rejected"`
}

type UpdateMediaRequest struct {
	MediaURLs []string `json:"media_urls"`
}

type QuoteFilter struct {
	Status   string
	Archived *bool
	Page     int
	Limit    int
}

type QuoteResponse struct {
	ID               string            `json:"id"`
	ClientID         string            `json:"client_id"`
	Vehicle          model.Vehicle     `json:"vehicle"`
	Description      string            `json:"description"`
	ServiceIDs       []string          `json:"service_ids"`
	ServiceDetails   json.RawMessage   `json:"service_details,omitempty" swaggertype:"object"`
	Status           string            `json:"status"`
	ClientResponse   *string           `json:"client_response"`
	IsArchived       bool              `json:"is_archived"`
	ServiceEstimates map[string]string `json:"service_estimates"`
	EstimatedAmount  *string           `json:"estimated_amount"`
	MediaURLs        []string          `json:"media_urls"`
	EstimatedAt      *string           `json:"estimated_at"`
	RespondedAt      *string           `json:"responded_at"`
	CreatedAt        string            `json:"created_at"`
	UpdatedAt        string            `json:"updated_at"`
}

// --- Interface ---

type QuoteService interface {
	CreateQuote(ctx context.Context, actor model.Actor, req CreateQuoteRequest) (QuoteResponse, error)
	GetQuote(ctx context.Context, actor model.Actor, id string) (QuoteResponse, error)
	ListQuotes(ctx context.Context, actor model.Actor, filter QuoteFilter) ([]QuoteResponse, int64, error)
	SubmitEstimate(ctx context.Context, actor model.Actor, id string, req EstimateRequest) (QuoteResponse, error)
	RespondToQuote(ctx context.Context, actor model.Actor, id string, req RespondRequest) (QuoteResponse, error)
	OverrideResponse(ctx context.Context, actor model.Actor, id string, req RespondRequest) (QuoteResponse, error)
	SetArchived(ctx context.Context, actor model.Actor, id string, archived bool) (QuoteResponse, error)
	UpdateMedia(ctx context.Context, actor model.Actor, id string, req UpdateMediaRequest) (QuoteResponse, error)
	DeleteQuote(ctx context.Context, actor model.Actor, id string) error
}

type quoteService struct {
	quoteRepo   repository.QuoteRepository
	catalogRepo repository.ServiceCatalogRepository
	auditRepo   repository.AuditRepository
	txManager   repository.TransactionManager
	media       media.Store
	publisher   realtime.Publisher
	cache       *realtime.ViewCache
	metrics     *metrics.Metrics
	log         zerolog.Logger
}

func NewQuoteService(
	quoteRepo repository.QuoteRepository,
	catalogRepo repository.ServiceCatalogRepository,
	auditRepo repository.AuditRepository,
	txManager repository.TransactionManager,
	mediaStore media.Store,
	publisher realtime.Publisher,
	cache *realtime.ViewCache,
	m *metrics.Metrics,
	log zerolog.Logger,
) QuoteService {
	return &quoteService{
		quoteRepo:   quoteRepo,
		catalogRepo: catalogRepo,
		auditRepo:   auditRepo,
		txManager:   txManager,
		media:       mediaStore,
		publisher:   publisher,
		cache:       cache,
		metrics:     m,
		log:         log.With().Str("component", "quote_service").Logger(),
	}
}

// --- Implementation ---

func (s *quoteService) CreateQuote(ctx context.Context, actor model.Actor, req CreateQuoteRequest) (QuoteResponse, error) {
	clientID := actor.ID
	switch {
	case actor.Has(model.RoleClient):
	case actor.IsBackOffice():
		id, err := parseID(req.ClientID, "client")
		if err != nil {
			return QuoteResponse{}, err
		}
		clientID = id
	default:
		return QuoteResponse{}, apperr.Unauthorized("only clients and staff can request quotes")
	}

	serviceIDs := estimate.Unique(req.ServiceIDs)
	if len(serviceIDs) == 0 {
		return QuoteResponse{}, apperr.InvalidInput("at least one service must be requested")
	}
	known, err := s.catalogRepo.FindByIDs(ctx, serviceIDs)
	if err != nil {
		return QuoteResponse{}, err
	}
	for _, id := range serviceIDs {
		if _, ok := known[id]; !ok {
			return QuoteResponse{}, apperr.InvalidInput("unknown service %s", id)
		}
	}
	if len(req.ServiceDetails) > 0 && !json.Valid(req.ServiceDetails) {
		return QuoteResponse{}, apperr.InvalidInput("service_details must be valid JSON")
	}

	mediaURLs := req.MediaURLs
	if mediaURLs == nil {
		mediaURLs = []string{}
	}
	quote := &model.QuoteRequest{
		ClientID:       clientID,
		Vehicle:        req.Vehicle,
		Description:    req.Description,
		ServiceIDs:     serviceIDs,
		ServiceDetails: datatypes.JSON(req.ServiceDetails),
		Status:         model.QuoteStatusPending,
		MediaURLs:      mediaURLs,
	}

	err = s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		if err := s.quoteRepo.Create(txCtx, quote); err != nil {
			return fmt.Errorf("create quote request: %w", err)
		}
		return writeAudit(txCtx, s.auditRepo, actor, model.ActionCreateQuote, "quote_request", quote.ID, map[string]interface{}{
			"service_ids": serviceIDs,
		})
	})
	if err != nil {
		return QuoteResponse{}, err
	}

	publish(s.publisher, insertEvent(realtime.TableQuoteRequests, quote.ID, quote.ClientID, string(quote.Status)))
	return s.reload(ctx, quote.ID)
}

func (s *quoteService) GetQuote(ctx context.Context, actor model.Actor, id string) (QuoteResponse, error) {
	quoteID, err := parseID(id, "quote")
	if err != nil {
		return QuoteResponse{}, err
	}
	quote, err := s.cachedQuote(ctx, quoteID)
	if err != nil {
		return QuoteResponse{}, err
	}
	if err := canView(actor, quote); err != nil {
		return QuoteResponse{}, err
	}
	return toQuoteResponse(*quote), nil
}

type quotePage struct {
	items []model.QuoteRequest
	total int64
}

func (s *quoteService) ListQuotes(ctx context.Context, actor model.Actor, filter QuoteFilter) ([]QuoteResponse, int64, error) {
	repoFilter := repository.QuoteFilter{
		Status:   filter.Status,
		Archived: filter.Archived,
		Page:     filter.Page,
		Limit:    filter.Limit,
	}
	scope := "all"
	if !actor.IsBackOffice() {
		if !actor.Has(model.RoleClient) {
			return nil, 0, apperr.Unauthorized("not allowed to list quotes")
		}
		clientID := actor.ID
		repoFilter.ClientID = &clientID
		scope = clientID.String()
	}

	archived := "any"
	if filter.Archived != nil {
		archived = strconv.FormatBool(*filter.Archived)
	}
	key := realtime.ListKey(realtime.TableQuoteRequests, scope, filter.Status, archived,
		strconv.Itoa(filter.Page), strconv.Itoa(filter.Limit))

	var page quotePage
	if v, ok := cacheGet(s.cache, key); ok {
		page = v.(quotePage)
	} else {
		items, total, err := s.quoteRepo.List(ctx, repoFilter)
		if err != nil {
			return nil, 0, err
		}
		page = quotePage{items: items, total: total}
		cacheSet(s.cache, key, page)
	}

	out := make([]QuoteResponse, 0, len(page.items))
	for _, q := range page.items {
		out = append(out, toQuoteResponse(q))
	}
	return out, page.total, nil
}

func (s *quoteService) SubmitEstimate(ctx context.Context, actor model.Actor, id string, req EstimateRequest) (resp QuoteResponse, err error) {
	defer func() { s.metrics.ObserveTransition("quote", string(lifecycle.ActionEstimate), err) }()

	quoteID, err := parseID(id, "quote")
	if err != nil {
		return QuoteResponse{}, err
	}
	quote, err := s.quoteRepo.FindByID(ctx, quoteID)
	if err != nil {
		return QuoteResponse{}, err
	}

	state := lifecycle.StateOf(quote)
	state.ServiceEstimates = req.ServiceEstimates
	decision, err := lifecycle.TransitionQuote(state, lifecycle.ActionEstimate, actor)
	if err != nil {
		return QuoteResponse{}, err
	}
	result, err := estimate.Compute(quote.ServiceIDs, req.ServiceEstimates)
	if err != nil {
		return QuoteResponse{}, err
	}

	now := nowUTC()
	err = s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		// status and amounts land in one row write so no reader sees one without the other
		if err := s.quoteRepo.CompareAndSwap(txCtx, quote.ID, []model.QuoteStatus{decision.From}, map[string]interface{}{
			"status":            decision.To,
			"service_estimates": model.ServiceAmounts(result.PerService),
			"estimated_amount":  decimal.NewNullDecimal(result.Total),
			"estimated_by":      actor.ID,
			"estimated_at":      now,
		}); err != nil {
			return err
		}
		return writeAudit(txCtx, s.auditRepo, actor, model.ActionEstimateQuote, "quote_request", quote.ID, map[string]interface{}{
			"total": result.Total.String(),
		})
	})
	if err != nil {
		return QuoteResponse{}, err
	}

	s.log.Info().Str("quote_id", quote.ID.String()).Str("total", result.Total.String()).Msg("quote estimated")
	publish(s.publisher, statusEvent(realtime.TableQuoteRequests, quote.ID, quote.ClientID, string(decision.From), string(decision.To)))
	return s.reload(ctx, quote.ID)
}

func (s *quoteService) RespondToQuote(ctx context.Context, actor model.Actor, id string, req RespondRequest) (QuoteResponse, error) {
	action := lifecycle.ActionAccept
	if req.Response == model.ClientResponseRejected {
		action = lifecycle.ActionReject
	} else if req.Response != model.ClientResponseAccepted {
		return QuoteResponse{}, apperr.InvalidInput("response must be accepted or rejected")
	}
	return s.applyResponse(ctx, actor, id, action, model.ActionRespondQuote)
}

func (s *quoteService) OverrideResponse(ctx context.Context, actor model.Actor, id string, req RespondRequest) (QuoteResponse, error) {
	action := lifecycle.ActionOverrideAccept
	if req.Response == model.ClientResponseRejected {
		action = lifecycle.ActionOverrideReject
	} else if req.Response != model.ClientResponseAccepted {
		return QuoteResponse{}, apperr.InvalidInput("response must be accepted or rejected")
	}
	return s.applyResponse(ctx, actor, id, action, model.ActionOverrideQuote)
}

func (s *quoteService) applyResponse(ctx context.Context, actor model.Actor, id string, action lifecycle.Action, auditAction string) (resp QuoteResponse, err error) {
	defer func() { s.metrics.ObserveTransition("quote", string(action), err) }()

	quoteID, err := parseID(id, "quote")
	if err != nil {
		return QuoteResponse{}, err
	}
	quote, err := s.quoteRepo.FindByID(ctx, quoteID)
	if err != nil {
		return QuoteResponse{}, err
	}

	decision, err := lifecycle.TransitionQuote(lifecycle.StateOf(quote), action, actor)
	if err != nil {
		return QuoteResponse{}, err
	}
	if decision.Noop {
		return toQuoteResponse(*quote), nil
	}

	err = s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		if err := s.quoteRepo.CompareAndSwap(txCtx, quote.ID, []model.QuoteStatus{decision.From}, map[string]interface{}{
			"status":          decision.To,
			"client_response": *decision.ClientResponse,
			"responded_at":    nowUTC(),
		}); err != nil {
			return err
		}
		return writeAudit(txCtx, s.auditRepo, actor, auditAction, "quote_request", quote.ID, map[string]interface{}{
			"from": decision.From,
			"to":   decision.To,
		})
	})
	if err != nil {
		return QuoteResponse{}, err
	}

	publish(s.publisher, statusEvent(realtime.TableQuoteRequests, quote.ID, quote.ClientID, string(decision.From), string(decision.To)))
	return s.reload(ctx, quote.ID)
}

func (s *quoteService) SetArchived(ctx context.Context, actor model.Actor, id string, archived bool) (QuoteResponse, error) {
	if !actor.Has(model.RoleAdmin) {
		return QuoteResponse{}, apperr.Unauthorized("only an admin can archive quotes")
	}
	quoteID, err := parseID(id, "quote")
	if err != nil {
		return QuoteResponse{}, err
	}
	quote, err := s.quoteRepo.FindByID(ctx, quoteID)
	if err != nil {
		return QuoteResponse{}, err
	}

	action := model.ActionArchiveQuote
	if !archived {
		action = model.ActionUnarchiveQuote
	}
	err = s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		if err := s.quoteRepo.SetArchived(txCtx, quote.ID, archived); err != nil {
			return err
		}
		return writeAudit(txCtx, s.auditRepo, actor, action, "quote_request", quote.ID, nil)
	})
	if err != nil {
		return QuoteResponse{}, err
	}

	publish(s.publisher, statusEvent(realtime.TableQuoteRequests, quote.ID, quote.ClientID, string(quote.Status), string(quote.Status)))
	return s.reload(ctx, quote.ID)
}

func (s *quoteService) UpdateMedia(ctx context.Context, actor model.Actor, id string, req UpdateMediaRequest) (QuoteResponse, error) {
	quoteID, err := parseID(id, "quote")
	if err != nil {
		return QuoteResponse{}, err
	}
	quote, err := s.quoteRepo.FindByID(ctx, quoteID)
	if err != nil {
		return QuoteResponse{}, err
	}
	if !actor.Has(model.RoleAdmin) && !(actor.Has(model.RoleClient) && actor.ID == quote.ClientID) {
		return QuoteResponse{}, apperr.Unauthorized("only the requesting client or an admin can change attachments")
	}
	if err := lifecycle.CheckMediaEditable(quote.Status); err != nil {
		return QuoteResponse{}, err
	}

	urls := req.MediaURLs
	if urls == nil {
		urls = []string{}
	}
	err = s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		if err := s.quoteRepo.CompareAndSwap(txCtx, quote.ID, []model.QuoteStatus{quote.Status}, map[string]interface{}{
			"media_urls": datatypes.JSONSlice[string](urls),
		}); err != nil {
			return err
		}
		return writeAudit(txCtx, s.auditRepo, actor, model.ActionUpdateQuoteMedia, "quote_request", quote.ID, map[string]interface{}{
			"count": len(urls),
		})
	})
	if err != nil {
		return QuoteResponse{}, err
	}

	s.removeMedia(ctx, quote.ID, dropped(quote.MediaURLs, urls))
	publish(s.publisher, statusEvent(realtime.TableQuoteRequests, quote.ID, quote.ClientID, string(quote.Status), string(quote.Status)))
	return s.reload(ctx, quote.ID)
}

// DeleteQuote is the only hard delete. It is allowed in any status and removes
// the quote's attachments once the row is gone.
func (s *quoteService) DeleteQuote(ctx context.Context, actor model.Actor, id string) error {
	if !actor.Has(model.RoleAdmin) {
		return apperr.Unauthorized("only an admin can delete quotes")
	}
	quoteID, err := parseID(id, "quote")
	if err != nil {
		return err
	}
	quote, err := s.quoteRepo.FindByID(ctx, quoteID)
	if err != nil {
		return err
	}

	err = s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		if err := s.quoteRepo.Delete(txCtx, quote.ID); err != nil {
			return err
		}
		return writeAudit(txCtx, s.auditRepo, actor, model.ActionDeleteQuote, "quote_request", quote.ID, map[string]interface{}{
			"status": quote.Status,
			"media":  len(quote.MediaURLs),
		})
	})
	if err != nil {
		return err
	}

	s.removeMedia(ctx, quote.ID, quote.MediaURLs)
	publish(s.publisher, realtime.ChangeEvent{
		Table: realtime.TableQuoteRequests,
		Type:  realtime.EventDelete,
		Old:   &realtime.Row{ID: quote.ID, Status: string(quote.Status), OwnerID: quote.ClientID},
	})
	return nil
}

// --- Helpers ---

func (s *quoteService) removeMedia(ctx context.Context, quoteID uuid.UUID, urls []string) {
	if s.media == nil || len(urls) == 0 {
		return
	}
	if err := s.media.Remove(ctx, urls); err != nil {
		s.log.Warn().Err(err).Str("quote_id", quoteID.String()).Msg("failed to remove quote media")
	}
}

func (s *quoteService) reload(ctx context.Context, id uuid.UUID) (QuoteResponse, error) {
	quote, err := s.quoteRepo.FindByID(ctx, id)
	if err != nil {
		return QuoteResponse{}, err
	}
	return toQuoteResponse(*quote), nil
}

func (s *quoteService) cachedQuote(ctx context.Context, id uuid.UUID) (*model.QuoteRequest, error) {
	key := realtime.DetailKey(realtime.TableQuoteRequests, id)
	if v, ok := cacheGet(s.cache, key); ok {
		q := v.(model.QuoteRequest)
		return &q, nil
	}
	quote, err := s.quoteRepo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	cacheSet(s.cache, key, *quote)
	return quote, nil
}

func canView(actor model.Actor, quote *model.QuoteRequest) error {
	if actor.IsBackOffice() || actor.ID == quote.ClientID {
		return nil
	}
	return apperr.Unauthorized("not allowed to view this quote")
}

// dropped lists the urls in before that are absent from after.
func dropped(before, after []string) []string {
	keep := make(map[string]struct{}, len(after))
	for _, u := range after {
		keep[u] = struct{}{}
	}
	var out []string
	for _, u := range before {
		if _, ok := keep[u]; !ok {
			out = append(out, u)
		}
	}
	return out
}

func toQuoteResponse(q model.QuoteRequest) QuoteResponse {
	resp := QuoteResponse{
		ID:             q.ID.String(),
		ClientID:       q.ClientID.String(),
		Vehicle:        q.Vehicle,
		Description:    q.Description,
		ServiceIDs:     append([]string{}, q.ServiceIDs...),
		ServiceDetails: json.RawMessage(q.ServiceDetails),
		Status:         string(q.Status),
		ClientResponse: q.ClientResponse,
		IsArchived:     q.IsArchived,
		MediaURLs:      append([]string{}, q.MediaURLs...),
		EstimatedAt:    formatTime(q.EstimatedAt),
		RespondedAt:    formatTime(q.RespondedAt),
		CreatedAt:      q.CreatedAt.UTC().Format(timeLayout),
		UpdatedAt:      q.UpdatedAt.UTC().Format(timeLayout),
	}
	if q.ServiceEstimates != nil {
		resp.ServiceEstimates = make(map[string]string, len(q.ServiceEstimates))
		for id, amount := range q.ServiceEstimates {
			resp.ServiceEstimates[id] = estimate.Display(amount)
		}
	}
	if q.EstimatedAmount.Valid {
		total := estimate.Display(q.EstimatedAmount.Decimal)
		resp.EstimatedAmount = &total
	}
	return resp
}
