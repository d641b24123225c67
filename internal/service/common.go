package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"backoffice/internal/apperr"
	"backoffice/internal/model"
	"backoffice/internal/realtime"
	"backoffice/internal/repository"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const timeLayout = time.RFC3339

var nowUTC = func() time.Time { return time.Now().UTC() }

func parseID(raw, entity string) (uuid.UUID, error) {
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, apperr.InvalidInput("invalid %s id %q", entity, raw)
	}
	return id, nil
}

func formatTime(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.UTC().Format(timeLayout)
	return &s
}

// writeAudit records one audit row inside the caller's transaction, if any.
func writeAudit(ctx context.Context, repo repository.AuditRepository, actor model.Actor, action, entityType string, entityID uuid.UUID, details map[string]interface{}) error {
	payload, _ := json.Marshal(details)
	var userID *uuid.UUID
	if !actor.IsZero() {
		id := actor.ID
		userID = &id
	}
	if err := repo.Log(ctx, &model.AuditLog{
		UserID:     userID,
		Action:     action,
		EntityType: entityType,
		EntityID:   entityID.String(),
		Details:    string(payload),
	}); err != nil {
		return fmt.Errorf("write audit log: %w", err)
	}
	return nil
}

func statusEvent(table string, id, owner uuid.UUID, from, to string) realtime.ChangeEvent {
	return realtime.ChangeEvent{
		Table: table,
		Type:  realtime.EventUpdate,
		Old:   &realtime.Row{ID: id, Status: from, OwnerID: owner},
		New:   &realtime.Row{ID: id, Status: to, OwnerID: owner},
	}
}

func insertEvent(table string, id, owner uuid.UUID, status string) realtime.ChangeEvent {
	return realtime.ChangeEvent{
		Table: table,
		Type:  realtime.EventInsert,
		New:   &realtime.Row{ID: id, Status: status, OwnerID: owner},
	}
}

func publish(pub realtime.Publisher, evt realtime.ChangeEvent) {
	if pub == nil {
		return
	}
	pub.Publish(evt)
}

// sequenceNumber builds numbers like INV-20240131-00001 from the count of
// today's rows. A concurrent writer can take the same number; the unique index
// rejects the loser, which retries through createWithNumber.
func sequenceNumber(ctx context.Context, kind string, now time.Time, count func(context.Context, string) (int64, error)) (string, error) {
	prefix := kind + "-" + now.Format("20060102") + "-"
	n, err := count(ctx, prefix)
	if err != nil {
		return "", fmt.Errorf("count %s numbers: %w", kind, err)
	}
	return fmt.Sprintf("%s%05d", prefix, n+1), nil
}

const numberAttempts = 3

// createWithNumber assigns a fresh sequence number and inserts, retrying on a
// duplicate key. A duplicate back-reference keeps failing and is returned for
// the caller's guard to resolve.
func createWithNumber(ctx context.Context, kind string, now time.Time, count func(context.Context, string) (int64, error), assign func(string), create func() error) error {
	var err error
	for attempt := 0; attempt < numberAttempts; attempt++ {
		no, numErr := sequenceNumber(ctx, kind, now, count)
		if numErr != nil {
			return numErr
		}
		assign(no)
		if err = create(); err == nil || !errors.Is(err, gorm.ErrDuplicatedKey) {
			return err
		}
	}
	return err
}

func cacheGet(c *realtime.ViewCache, key realtime.Key) (interface{}, bool) {
	if c == nil {
		return nil, false
	}
	return c.Get(key)
}

func cacheSet(c *realtime.ViewCache, key realtime.Key, v interface{}) {
	if c != nil {
		c.Set(key, v)
	}
}
