package service

import (
	"context"
	"encoding/json"

	"backoffice/internal/apperr"
	"backoffice/internal/model"
	"backoffice/internal/repository"

	"github.com/google/uuid"
)

type AuditLogResponse struct {
	ID         string          `json:"id"`
	UserID     string          `json:"user_id"`
	Username   string          `json:"username"`
	Action     string          `json:"action"`
	EntityType string          `json:"entity_type"`
	EntityID   string          `json:"entity_id"`
	Details    json.RawMessage `json:"details" swaggertype:"object"`
	CreatedAt  string          `json:"created_at"`
}

type AuditFilter struct {
	EntityType string
	EntityID   string
	Page       int
	Limit      int
}

type AuditService interface {
	GetAuditLogs(ctx context.Context, actor model.Actor, filter AuditFilter) ([]AuditLogResponse, int64, error)
}

type auditService struct {
	auditRepo   repository.AuditRepository
	profileRepo repository.ProfileRepository
}

func NewAuditService(auditRepo repository.AuditRepository, profileRepo repository.ProfileRepository) AuditService {
	return &auditService{auditRepo: auditRepo, profileRepo: profileRepo}
}

// GetAuditLogs returns a page of audit rows, newest first, with the acting user's name resolved.
func (s *auditService) GetAuditLogs(ctx context.Context, actor model.Actor, filter AuditFilter) ([]AuditLogResponse, int64, error) {
	if !actor.Has(model.RoleAdmin) {
		return nil, 0, apperr.Unauthorized("only an admin can read the audit log")
	}

	logs, total, err := s.auditRepo.List(ctx, repository.AuditFilter{
		EntityType: filter.EntityType,
		EntityID:   filter.EntityID,
		Page:       filter.Page,
		Limit:      filter.Limit,
	})
	if err != nil {
		return nil, 0, err
	}

	ids := make([]uuid.UUID, 0, len(logs))
	for _, l := range logs {
		if l.UserID != nil {
			ids = append(ids, *l.UserID)
		}
	}
	profiles, err := s.profileRepo.FindByIDs(ctx, ids)
	if err != nil {
		return nil, 0, err
	}

	res := make([]AuditLogResponse, 0, len(logs))
	for _, l := range logs {
		username := "System"
		userID := ""
		if l.UserID != nil {
			userID = l.UserID.String()
			if p, ok := profiles[*l.UserID]; ok {
				username = p.FullName
			}
		}
		details := json.RawMessage(l.Details)
		if !json.Valid(details) {
			details = json.RawMessage("null")
		}

		res = append(res, AuditLogResponse{
			ID:         l.ID.String(),
			UserID:     userID,
			Username:   username,
			Action:     l.Action,
			EntityType: l.EntityType,
			EntityID:   l.EntityID,
			Details:    details,
			CreatedAt:  l.CreatedAt.Format("2006-01-02 15:04:05"),
		})
	}

	return res, total, nil
}
