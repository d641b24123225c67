// Package realtime keeps every viewer consistent with the record store: it
// fans row changes out to subscribers, drops cached views that depend on a
// changed row and turns status changes into user notifications.
package realtime

import (
	"fmt"
	"sync"
	"time"

	"backoffice/internal/metrics"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Tables that publish change events.
const (
	TableQuoteRequests = "quote_requests"
	TableWorkOrders    = "work_orders"
	TableInvoices      = "invoices"
	TableNotifications = "notifications"
	TableMessages      = "messages"
)

type EventType string

const (
	EventInsert EventType = "INSERT"
	EventUpdate EventType = "UPDATE"
	EventDelete EventType = "DELETE"
)

// Row is the part of a changed record carried on an event. Consumers must
// treat it as a hint and re-read the record before acting on it.
type Row struct {
	ID      uuid.UUID `json:"id"`
	Status  string    `json:"status,omitempty"`
	OwnerID uuid.UUID `json:"owner_id,omitempty"`
}

type ChangeEvent struct {
	Table      string    `json:"table"`
	Type       EventType `json:"event_type"`
	Old        *Row      `json:"old,omitempty"`
	New        *Row      `json:"new,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

// EntityID is the id of the changed row, whichever image carries it.
func (e ChangeEvent) EntityID() uuid.UUID {
	if e.New != nil {
		return e.New.ID
	}
	if e.Old != nil {
		return e.Old.ID
	}
	return uuid.Nil
}

func (e ChangeEvent) StatusChanged() bool {
	return e.Type == EventUpdate && e.Old != nil && e.New != nil && e.Old.Status != e.New.Status
}

// Handler consumes one event. A returned error or panic is logged and counted;
// it never reaches the publisher or other subscribers.
type Handler func(ChangeEvent) error

// Publisher is what writers depend on to announce a committed change.
type Publisher interface {
	Publish(evt ChangeEvent) int
}

// Feed is an in-process row-level change subscription.
type Feed struct {
	mu      sync.RWMutex
	subs    map[string]map[uint64]Handler
	nextID  uint64
	log     zerolog.Logger
	metrics *metrics.Metrics
}

func NewFeed(log zerolog.Logger, m *metrics.Metrics) *Feed {
	return &Feed{
		subs:    make(map[string]map[uint64]Handler),
		log:     log.With().Str("component", "change_feed").Logger(),
		metrics: m,
	}
}

// Subscription is cancelled with Unsubscribe; calling it more than once is harmless.
type Subscription struct {
	feed  *Feed
	table string
	id    uint64
	once  sync.Once
}

func (s *Subscription) Unsubscribe() {
	s.once.Do(func() {
		s.feed.mu.Lock()
		defer s.feed.mu.Unlock()
		delete(s.feed.subs[s.table], s.id)
		if len(s.feed.subs[s.table]) == 0 {
			delete(s.feed.subs, s.table)
		}
	})
}

func (f *Feed) Subscribe(table string, h Handler) *Subscription {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	if f.subs[table] == nil {
		f.subs[table] = make(map[uint64]Handler)
	}
	f.subs[table][f.nextID] = h
	return &Subscription{feed: f, table: table, id: f.nextID}
}

// Publish delivers evt synchronously to the table's subscribers and returns
// how many handled it without error.
func (f *Feed) Publish(evt ChangeEvent) int {
	if evt.OccurredAt.IsZero() {
		evt.OccurredAt = time.Now().UTC()
	}

	f.mu.RLock()
	handlers := make([]Handler, 0, len(f.subs[evt.Table]))
	for _, h := range f.subs[evt.Table] {
		handlers = append(handlers, h)
	}
	f.mu.RUnlock()

	delivered := 0
	for _, h := range handlers {
		if err := f.deliver(h, evt); err != nil {
			f.metrics.EventDropped(evt.Table)
			f.log.Warn().Err(err).
				Str("table", evt.Table).
				Str("event", string(evt.Type)).
				Str("entity_id", evt.EntityID().String()).
				Msg("change event not handled")
			continue
		}
		delivered++
	}
	return delivered
}

func (f *Feed) deliver(h Handler, evt ChangeEvent) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("subscriber panic: %v", r)
		}
	}()
	return h(evt)
}
