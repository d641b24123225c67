package repository

import (
	"context"
	"fmt"

	"backoffice/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type ServiceCatalogRepository interface {
	List(ctx context.Context, activeOnly bool) ([]model.Service, error)
	FindByIDs(ctx context.Context, ids []string) (map[string]model.Service, error)
	Upsert(ctx context.Context, svc *model.Service) error
}

type serviceCatalogRepository struct {
	db *gorm.DB
}

func NewServiceCatalogRepository(db *gorm.DB) ServiceCatalogRepository {
	return &serviceCatalogRepository{db: db}
}

func (r *serviceCatalogRepository) List(ctx context.Context, activeOnly bool) ([]model.Service, error) {
	var services []model.Service
	query := GetDB(ctx, r.db).Order("name ASC")
	if activeOnly {
		query = query.Where("is_active = ?", true)
	}
	if err := query.Find(&services).Error; err != nil {
		return nil, fmt.Errorf("list services: %w", err)
	}
	return services, nil
}

func (r *serviceCatalogRepository) FindByIDs(ctx context.Context, ids []string) (map[string]model.Service, error) {
	out := make(map[string]model.Service, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	var services []model.Service
	if err := GetDB(ctx, r.db).Where("id IN ?", ids).Find(&services).Error; err != nil {
		return nil, fmt.Errorf("find services: %w", err)
	}
	for _, s := range services {
		out[s.ID] = s
	}
	return out, nil
}

func (r *serviceCatalogRepository) Upsert(ctx context.Context, svc *model.Service) error {
	return GetDB(ctx, r.db).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"name", "default_price", "commission_rate", "commission_type", "is_active", "updated_at"}),
	}).Create(svc).Error
}

type ProfileRepository interface {
	Create(ctx context.Context, p *model.Profile) error
	FindByIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]model.Profile, error)
	ListIDsByRole(ctx context.Context, role string) ([]uuid.UUID, error)
}

type profileRepository struct {
	db *gorm.DB
}

func NewProfileRepository(db *gorm.DB) ProfileRepository {
	return &profileRepository{db: db}
}

func (r *profileRepository) Create(ctx context.Context, p *model.Profile) error {
	return GetDB(ctx, r.db).Create(p).Error
}

func (r *profileRepository) FindByIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]model.Profile, error) {
	out := make(map[uuid.UUID]model.Profile, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	var profiles []model.Profile
	if err := GetDB(ctx, r.db).Where("id IN ?", ids).Find(&profiles).Error; err != nil {
		return nil, fmt.Errorf("find profiles: %w", err)
	}
	for _, p := range profiles {
		out[p.ID] = p
	}
	return out, nil
}

func (r *profileRepository) ListIDsByRole(ctx context.Context, role string) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	err := GetDB(ctx, r.db).Model(&model.Profile{}).
		Where("role = ? AND is_active = ?", role, true).
		Pluck("id", &ids).Error
	if err != nil {
		return nil, fmt.Errorf("list %s profiles: %w", role, err)
	}
	return ids, nil
}
