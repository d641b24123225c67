package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"backoffice/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type WorkOrderFilter struct {
	ClientID *uuid.UUID
	Status   string
	Page     int
	Limit    int
}

type WorkOrderRepository interface {
	Create(ctx context.Context, wo *model.WorkOrder) error
	FindByID(ctx context.Context, id uuid.UUID) (*model.WorkOrder, error)
	// FindByQuoteRequestID returns nil, nil when no work order references the quote.
	FindByQuoteRequestID(ctx context.Context, quoteID uuid.UUID) (*model.WorkOrder, error)
	List(ctx context.Context, filter WorkOrderFilter) ([]model.WorkOrder, int64, error)
	CompareAndSwap(ctx context.Context, id uuid.UUID, expected []model.WorkOrderStatus, updates map[string]interface{}) error
	// ListCompletedSince returns completed or invoiced work orders finished at or after since.
	ListCompletedSince(ctx context.Context, since time.Time) ([]model.WorkOrder, error)
	CountByPrefix(ctx context.Context, prefix string) (int64, error)
}

type workOrderRepository struct {
	db *gorm.DB
}

func NewWorkOrderRepository(db *gorm.DB) WorkOrderRepository {
	return &workOrderRepository{db: db}
}

func (r *workOrderRepository) Create(ctx context.Context, wo *model.WorkOrder) error {
	return GetDB(ctx, r.db).Create(wo).Error
}

func (r *workOrderRepository) FindByID(ctx context.Context, id uuid.UUID) (*model.WorkOrder, error) {
	var wo model.WorkOrder
	if err := GetDB(ctx, r.db).First(&wo, "id = ?", id).Error; err != nil {
		return nil, notFound(err, "work order", id)
	}
	return &wo, nil
}

func (r *workOrderRepository) FindByQuoteRequestID(ctx context.Context, quoteID uuid.UUID) (*model.WorkOrder, error) {
	var wo model.WorkOrder
	err := GetDB(ctx, r.db).Where("quote_request_id = ?", quoteID).First(&wo).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find work order by quote %s: %w", quoteID, err)
	}
	return &wo, nil
}

func (r *workOrderRepository) List(ctx context.Context, filter WorkOrderFilter) ([]model.WorkOrder, int64, error) {
	var orders []model.WorkOrder
	var total int64

	query := GetDB(ctx, r.db).Model(&model.WorkOrder{})
	if filter.ClientID != nil {
		query = query.Where("client_id = ?", *filter.ClientID)
	}
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("count work orders: %w", err)
	}
	offset, limit := paginate(filter.Page, filter.Limit)
	if err := query.Order("created_at DESC").Offset(offset).Limit(limit).Find(&orders).Error; err != nil {
		return nil, 0, fmt.Errorf("list work orders: %w", err)
	}
	return orders, total, nil
}

func (r *workOrderRepository) CompareAndSwap(ctx context.Context, id uuid.UUID, expected []model.WorkOrderStatus, updates map[string]interface{}) error {
	statuses := make([]string, len(expected))
	for i, s := range expected {
		statuses[i] = string(s)
	}
	return compareAndSwap(ctx, r.db, &model.WorkOrder{}, "work order", id, statuses, updates)
}

func (r *workOrderRepository) ListCompletedSince(ctx context.Context, since time.Time) ([]model.WorkOrder, error) {
	var orders []model.WorkOrder
	err := GetDB(ctx, r.db).
		Where("status IN ?", []string{string(model.WorkOrderCompleted), string(model.WorkOrderInvoiced)}).
		Where("completed_at IS NOT NULL AND completed_at >= ?", since.UTC()).
		Order("completed_at ASC").
		Find(&orders).Error
	if err != nil {
		return nil, fmt.Errorf("list completed work orders: %w", err)
	}
	return orders, nil
}

func (r *workOrderRepository) CountByPrefix(ctx context.Context, prefix string) (int64, error) {
	return countByPrefix(ctx, r.db, &model.WorkOrder{}, "work_order_no", prefix)
}
