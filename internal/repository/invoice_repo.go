package repository

import (
	"context"
	"errors"
	"fmt"

	"backoffice/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type InvoiceFilter struct {
	ClientID  *uuid.UUID
	Status    string
	InvoiceNo string // partial match
	Page      int
	Limit     int
}

type InvoiceRepository interface {
	Create(ctx context.Context, invoice *model.Invoice) error
	FindByID(ctx context.Context, id uuid.UUID) (*model.Invoice, error)
	// FindByQuoteRequestID and FindByWorkOrderID return nil, nil when nothing references the origin.
	FindByQuoteRequestID(ctx context.Context, quoteID uuid.UUID) (*model.Invoice, error)
	FindByWorkOrderID(ctx context.Context, workOrderID uuid.UUID) (*model.Invoice, error)
	List(ctx context.Context, filter InvoiceFilter) ([]model.Invoice, int64, error)
	CompareAndSwap(ctx context.Context, id uuid.UUID, expected []model.InvoiceStatus, updates map[string]interface{}) error
	CountByPrefix(ctx context.Context, prefix string) (int64, error)
}

type invoiceRepository struct {
	db *gorm.DB
}

func NewInvoiceRepository(db *gorm.DB) InvoiceRepository {
	return &invoiceRepository{db: db}
}

func (r *invoiceRepository) Create(ctx context.Context, invoice *model.Invoice) error {
	return GetDB(ctx, r.db).Create(invoice).Error
}

func (r *invoiceRepository) FindByID(ctx context.Context, id uuid.UUID) (*model.Invoice, error) {
	var invoice model.Invoice
	if err := GetDB(ctx, r.db).First(&invoice, "id = ?", id).Error; err != nil {
		return nil, notFound(err, "invoice", id)
	}
	return &invoice, nil
}

func (r *invoiceRepository) findBy(ctx context.Context, column string, id uuid.UUID) (*model.Invoice, error) {
	var invoice model.Invoice
	err := GetDB(ctx, r.db).Where(column+" = ?", id).First(&invoice).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find invoice by %s %s: %w", column, id, err)
	}
	return &invoice, nil
}

func (r *invoiceRepository) FindByQuoteRequestID(ctx context.Context, quoteID uuid.UUID) (*model.Invoice, error) {
	return r.findBy(ctx, "quote_request_id", quoteID)
}

func (r *invoiceRepository) FindByWorkOrderID(ctx context.Context, workOrderID uuid.UUID) (*model.Invoice, error) {
	return r.findBy(ctx, "work_order_id", workOrderID)
}

func (r *invoiceRepository) List(ctx context.Context, filter InvoiceFilter) ([]model.Invoice, int64, error) {
	var invoices []model.Invoice
	var total int64

	query := GetDB(ctx, r.db).Model(&model.Invoice{})
	if filter.ClientID != nil {
		query = query.Where("client_id = ?", *filter.ClientID)
	}
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}
	if filter.InvoiceNo != "" {
		query = query.Where("invoice_no LIKE ?", "%"+filter.InvoiceNo+"%")
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("count invoices: %w", err)
	}
	offset, limit := paginate(filter.Page, filter.Limit)
	if err := query.Order("created_at DESC").Offset(offset).Limit(limit).Find(&invoices).Error; err != nil {
		return nil, 0, fmt.Errorf("list invoices: %w", err)
	}
	return invoices, total, nil
}

func (r *invoiceRepository) CompareAndSwap(ctx context.Context, id uuid.UUID, expected []model.InvoiceStatus, updates map[string]interface{}) error {
	statuses := make([]string, len(expected))
	for i, s := range expected {
		statuses[i] = string(s)
	}
	return compareAndSwap(ctx, r.db, &model.Invoice{}, "invoice", id, statuses, updates)
}

func (r *invoiceRepository) CountByPrefix(ctx context.Context, prefix string) (int64, error) {
	return countByPrefix(ctx, r.db, &model.Invoice{}, "invoice_no", prefix)
}
