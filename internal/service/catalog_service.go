package service

import (
	"context"
	"strings"

	"backoffice/internal/apperr"
	"backoffice/internal/commission"
	"backoffice/internal/estimate"
	"backoffice/internal/model"
	"backoffice/internal/repository"

	"github.com/shopspring/decimal"
)

type UpsertServiceRequest struct {
	ID             string           `json:"id" binding:"required,max=64"`
	Name           string           `json:"name" binding:"required"`
	DefaultPrice   decimal.Decimal  `json:"default_price" swaggertype:"string"`
	CommissionRate *decimal.Decimal `json:"commission_rate" swaggertype:"string"`
	CommissionType *string          `json:"commission_type"`
	IsActive       *bool            `json:"is_active"`
}

type ServiceResponse struct {
	ID             string  `json:"id"`
	Name           string  `json:"name"`
	DefaultPrice   string  `json:"default_price"`
	CommissionRate *string `json:"commission_rate"`
	CommissionType *string `json:"commission_type"`
	IsActive       bool    `json:"is_active"`
}

type CatalogService interface {
	ListServices(ctx context.Context, actor model.Actor) ([]ServiceResponse, error)
	UpsertService(ctx context.Context, actor model.Actor, req UpsertServiceRequest) (ServiceResponse, error)
}

type catalogService struct {
	catalogRepo repository.ServiceCatalogRepository
}

func NewCatalogService(catalogRepo repository.ServiceCatalogRepository) CatalogService {
	return &catalogService{catalogRepo: catalogRepo}
}

// ListServices shows clients the active catalog and staff everything.
func (s *catalogService) ListServices(ctx context.Context, actor model.Actor) ([]ServiceResponse, error) {
	services, err := s.catalogRepo.List(ctx, !actor.IsBackOffice())
	if err != nil {
		return nil, err
	}
	out := make([]ServiceResponse, 0, len(services))
	for _, svc := range services {
		out = append(out, toServiceResponse(svc))
	}
	return out, nil
}

func (s *catalogService) UpsertService(ctx context.Context, actor model.Actor, req UpsertServiceRequest) (ServiceResponse, error) {
	if !actor.Has(model.RoleAdmin) {
		return ServiceResponse{}, apperr.Unauthorized("only an admin can edit the service catalog")
	}
	id := strings.TrimSpace(req.ID)
	if id == "" {
		return ServiceResponse{}, apperr.InvalidInput("service id is required")
	}
	if req.DefaultPrice.IsNegative() {
		return ServiceResponse{}, apperr.InvalidInput("default_price must not be negative")
	}
	if req.CommissionRate != nil && req.CommissionRate.IsNegative() {
		return ServiceResponse{}, apperr.InvalidInput("commission_rate must not be negative")
	}
	if req.CommissionType != nil && commission.NormalizeType(req.CommissionType) == "" {
		return ServiceResponse{}, apperr.InvalidInput("commission_type must be percentage, flat or fixed")
	}

	active := true
	if req.IsActive != nil {
		active = *req.IsActive
	}
	svc := &model.Service{
		ID:             id,
		Name:           req.Name,
		DefaultPrice:   req.DefaultPrice,
		CommissionRate: req.CommissionRate,
		CommissionType: req.CommissionType,
		IsActive:       active,
	}
	if err := s.catalogRepo.Upsert(ctx, svc); err != nil {
		return ServiceResponse{}, err
	}
	return toServiceResponse(*svc), nil
}

func toServiceResponse(svc model.Service) ServiceResponse {
	resp := ServiceResponse{
		ID:             svc.ID,
		Name:           svc.Name,
		DefaultPrice:   estimate.Display(svc.DefaultPrice),
		CommissionType: svc.CommissionType,
		IsActive:       svc.IsActive,
	}
	if svc.CommissionRate != nil {
		rate := svc.CommissionRate.String()
		resp.CommissionRate = &rate
	}
	return resp
}
