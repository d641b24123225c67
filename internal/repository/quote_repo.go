package repository

import (
	"context"
	"fmt"

	"backoffice/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type QuoteFilter struct {
	ClientID *uuid.UUID
	Status   string
	Archived *bool
	Page     int
	Limit    int
}

type QuoteRepository interface {
	Create(ctx context.Context, quote *model.QuoteRequest) error
	FindByID(ctx context.Context, id uuid.UUID) (*model.QuoteRequest, error)
	List(ctx context.Context, filter QuoteFilter) ([]model.QuoteRequest, int64, error)
	// CompareAndSwap writes updates only if the quote's status is still one of expected.
	CompareAndSwap(ctx context.Context, id uuid.UUID, expected []model.QuoteStatus, updates map[string]interface{}) error
	SetArchived(ctx context.Context, id uuid.UUID, archived bool) error
	Delete(ctx context.Context, id uuid.UUID) error
}

type quoteRepository struct {
	db *gorm.DB
}

func NewQuoteRepository(db *gorm.DB) QuoteRepository {
	return &quoteRepository{db: db}
}

func (r *quoteRepository) Create(ctx context.Context, quote *model.QuoteRequest) error {
	return GetDB(ctx, r.db).Create(quote).Error
}

func (r *quoteRepository) FindByID(ctx context.Context, id uuid.UUID) (*model.QuoteRequest, error) {
	var quote model.QuoteRequest
	if err := GetDB(ctx, r.db).First(&quote, "id = ?", id).Error; err != nil {
		return nil, notFound(err, "quote request", id)
	}
	return &quote, nil
}

func (r *quoteRepository) List(ctx context.Context, filter QuoteFilter) ([]model.QuoteRequest, int64, error) {
	var quotes []model.QuoteRequest
	var total int64

	query := GetDB(ctx, r.db).Model(&model.QuoteRequest{})
	if filter.ClientID != nil {
		query = query.Where("client_id = ?", *filter.ClientID)
	}
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}
	if filter.Archived != nil {
		query = query.Where("is_archived = ?", *filter.Archived)
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("count quote requests: %w", err)
	}

	offset, limit := paginate(filter.Page, filter.Limit)
	if err := query.Order("created_at DESC").Offset(offset).Limit(limit).Find(&quotes).Error; err != nil {
		return nil, 0, fmt.Errorf("list quote requests: %w", err)
	}
	return quotes, total, nil
}

func (r *quoteRepository) CompareAndSwap(ctx context.Context, id uuid.UUID, expected []model.QuoteStatus, updates map[string]interface{}) error {
	statuses := make([]string, len(expected))
	for i, s := range expected {
		statuses[i] = string(s)
	}
	return compareAndSwap(ctx, r.db, &model.QuoteRequest{}, "quote request", id, statuses, updates)
}

func (r *quoteRepository) SetArchived(ctx context.Context, id uuid.UUID, archived bool) error {
	res := GetDB(ctx, r.db).Model(&model.QuoteRequest{}).Where("id = ?", id).Update("is_archived", archived)
	if res.Error != nil {
		return fmt.Errorf("archive quote request %s: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return notFound(gorm.ErrRecordNotFound, "quote request", id)
	}
	return nil
}

func (r *quoteRepository) Delete(ctx context.Context, id uuid.UUID) error {
	res := GetDB(ctx, r.db).Delete(&model.QuoteRequest{}, "id = ?", id)
	if res.Error != nil {
		return fmt.Errorf("delete quote request %s: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return notFound(gorm.ErrRecordNotFound, "quote request", id)
	}
	return nil
}
