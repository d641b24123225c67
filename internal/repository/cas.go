package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"backoffice/internal/apperr"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// compareAndSwap applies updates to the row only while its status is one of
// expected. When nothing matched it tells a deleted row (NotFound) apart from
// a row whose status moved underneath the caller (StaleState).
func compareAndSwap(ctx context.Context, db *gorm.DB, table interface{}, entity string, id uuid.UUID, expected []string, updates map[string]interface{}) error {
	if len(expected) == 0 {
		return fmt.Errorf("compare-and-swap on %s %s without expected status", entity, id)
	}
	if _, ok := updates["updated_at"]; !ok {
		updates["updated_at"] = time.Now().UTC()
	}

	conn := GetDB(ctx, db)
	res := conn.Model(table).
		Where("id = ? AND status IN ?", id, expected).
		Updates(updates)
	if res.Error != nil {
		return fmt.Errorf("update %s %s: %w", entity, id, res.Error)
	}
	if res.RowsAffected == 1 {
		return nil
	}

	var count int64
	if err := conn.Model(table).Where("id = ?", id).Count(&count).Error; err != nil {
		return fmt.Errorf("recheck %s %s: %w", entity, id, err)
	}
	if count == 0 {
		return apperr.NotFound("%s %s not found", entity, id)
	}
	return apperr.StaleState("%s %s is no longer %s", entity, id, strings.Join(expected, " or "))
}

func notFound(err error, entity string, id interface{}) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return apperr.NotFound("%s %v not found", entity, id)
	}
	return fmt.Errorf("find %s %v: %w", entity, id, err)
}

// countByPrefix counts rows whose number column starts with prefix; used for daily sequences.
func countByPrefix(ctx context.Context, db *gorm.DB, table interface{}, column, prefix string) (int64, error) {
	var count int64
	err := GetDB(ctx, db).Model(table).Where(column+" LIKE ?", prefix+"%").Count(&count).Error
	return count, err
}

func paginate(page, limit int) (offset, size int) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 20
	}
	return (page - 1) * limit, limit
}
