package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"backoffice/internal/apperr"
	"backoffice/internal/metrics"
	"backoffice/internal/model"
	"backoffice/internal/repository"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Frame is what websocket clients receive.
type Frame struct {
	Event        string              `json:"event"` // invalidate, notification, message
	Table        string              `json:"table,omitempty"`
	ID           string              `json:"id,omitempty"`
	Notification *model.Notification `json:"notification,omitempty"`
	Unread       *UnreadCounts       `json:"unread,omitempty"`
}

type NotifierDeps struct {
	Feed          *Feed
	Cache         *ViewCache
	Badges        *Badges
	Pusher        Pusher
	Quotes        repository.QuoteRepository
	WorkOrders    repository.WorkOrderRepository
	Invoices      repository.InvoiceRepository
	Notifications repository.NotificationRepository
	Profiles      repository.ProfileRepository
	Metrics       *metrics.Metrics
	Log           zerolog.Logger
}

// Notifier consumes change events: it invalidates cached views, tells open
// websocket clients to refetch and raises one notification per recipient for
// every status change it can confirm against the store.
type Notifier struct {
	deps NotifierDeps
	log  zerolog.Logger
	subs []*Subscription
}

func NewNotifier(deps NotifierDeps) *Notifier {
	return &Notifier{
		deps: deps,
		log:  deps.Log.With().Str("component", "sync_notifier").Logger(),
	}
}

// Start subscribes to every table the notifier cares about.
func (n *Notifier) Start() {
	for _, table := range []string{TableQuoteRequests, TableWorkOrders, TableInvoices, TableMessages} {
		n.subs = append(n.subs, n.deps.Feed.Subscribe(table, func(evt ChangeEvent) error {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_, err := n.Notify(ctx, evt)
			return err
		}))
	}
}

func (n *Notifier) Stop() {
	for _, s := range n.subs {
		s.Unsubscribe()
	}
	n.subs = nil
}

// Notify handles one event and returns the notifications it wrote.
func (n *Notifier) Notify(ctx context.Context, evt ChangeEvent) ([]model.Notification, error) {
	id := evt.EntityID()

	if n.deps.Cache != nil {
		n.deps.Metrics.CacheInvalidated(n.deps.Cache.InvalidateEntity(evt.Table, id))
	}
	if audience := n.audience(ctx, evt); len(audience) > 0 {
		n.push(audience, Frame{Event: "invalidate", Table: evt.Table, ID: id.String()})
	}

	if evt.Table == TableMessages {
		n.onMessage(evt)
		return nil, nil
	}
	if !evt.StatusChanged() {
		return nil, nil
	}

	drafts, err := n.draft(ctx, evt)
	if err != nil {
		return nil, err
	}

	created := make([]model.Notification, 0, len(drafts))
	for i := range drafts {
		note := drafts[i]
		ok, err := n.deps.Notifications.Create(ctx, &note)
		if err != nil {
			return created, fmt.Errorf("raise notification for %s %s: %w", evt.Table, id, err)
		}
		if !ok {
			continue
		}
		created = append(created, note)
		n.deps.Metrics.NotificationRaised(evt.Table)

		frame := Frame{Event: "notification", Notification: &note}
		if c, loaded := n.adjustBadge(note.UserID, OriginNotification); loaded {
			frame.Unread = &c
		}
		n.push([]uuid.UUID{note.UserID}, frame)
	}
	return created, nil
}

func (n *Notifier) onMessage(evt ChangeEvent) {
	if evt.Type != EventInsert || evt.New == nil || evt.New.OwnerID == uuid.Nil {
		return
	}
	frame := Frame{Event: "message", Table: evt.Table, ID: evt.New.ID.String()}
	if c, loaded := n.adjustBadge(evt.New.OwnerID, OriginMessage); loaded {
		frame.Unread = &c
	}
	n.push([]uuid.UUID{evt.New.OwnerID}, frame)
}

func (n *Notifier) adjustBadge(userID uuid.UUID, origin Origin) (UnreadCounts, bool) {
	if n.deps.Badges == nil {
		return UnreadCounts{}, false
	}
	return n.deps.Badges.Adjust(userID, origin, 1)
}

// draft re-reads the changed record and builds notifications from its current
// status. Events that the store no longer confirms produce nothing.
func (n *Notifier) draft(ctx context.Context, evt ChangeEvent) ([]model.Notification, error) {
	id := evt.EntityID()

	var (
		status     string
		recipients []uuid.UUID
		kind       string
		entityType string
		title      string
		message    string
		changedAt  time.Time
	)

	switch evt.Table {
	case TableQuoteRequests:
		q, findErr := n.deps.Quotes.FindByID(ctx, id)
		if findErr != nil {
			return nil, n.missing(findErr)
		}
		status, kind, entityType, changedAt = string(q.Status), model.NotificationQuoteStatus, "quote_request", q.UpdatedAt
		recipients = []uuid.UUID{q.ClientID}
		if q.Status == model.QuoteStatusAccepted || q.Status == model.QuoteStatusRejected {
			admins, listErr := n.deps.Profiles.ListIDsByRole(ctx, model.RoleAdmin)
			if listErr != nil {
				return nil, listErr
			}
			recipients = append(recipients, admins...)
		}
		title, message = quoteText(q)
	case TableWorkOrders:
		wo, findErr := n.deps.WorkOrders.FindByID(ctx, id)
		if findErr != nil {
			return nil, n.missing(findErr)
		}
		status, kind, entityType, changedAt = string(wo.Status), model.NotificationWorkOrderStatus, "work_order", wo.UpdatedAt
		recipients = append([]uuid.UUID{wo.ClientID}, assignees(wo.Services)...)
		title = fmt.Sprintf("Work order %s is %s", wo.WorkOrderNo, humanize(status))
		message = fmt.Sprintf("%s %s %s", wo.Vehicle.Make, wo.Vehicle.Model, wo.Vehicle.VIN)
	case TableInvoices:
		inv, findErr := n.deps.Invoices.FindByID(ctx, id)
		if findErr != nil {
			return nil, n.missing(findErr)
		}
		status, kind, entityType, changedAt = string(inv.Status), model.NotificationInvoiceStatus, "invoice", inv.UpdatedAt
		recipients = []uuid.UUID{inv.ClientID}
		title = fmt.Sprintf("Invoice %s is %s", inv.InvoiceNo, humanize(status))
		message = fmt.Sprintf("Total due: %s", inv.TotalAmount.StringFixed(2))
	default:
		return nil, nil
	}

	// Only the change the store still shows is announced. A stale event whose
	// record has since moved on is left to the event of the newer write.
	if evt.Old != nil && status == evt.Old.Status {
		return nil, nil
	}
	if evt.New != nil && evt.New.Status != "" && status != evt.New.Status {
		return nil, nil
	}

	// Redeliveries of one event share a key; a later return to the same
	// status is a new write with its own stamp.
	stamp := evt.OccurredAt
	if stamp.IsZero() {
		stamp = changedAt
	}
	from := ""
	if evt.Old != nil {
		from = evt.Old.Status
	}

	entityID := id
	out := make([]model.Notification, 0, len(recipients))
	seen := make(map[uuid.UUID]struct{}, len(recipients))
	for _, r := range recipients {
		if r == uuid.Nil {
			continue
		}
		if _, dup := seen[r]; dup {
			continue
		}
		seen[r] = struct{}{}
		out = append(out, model.Notification{
			UserID:     r,
			Type:       kind,
			Title:      title,
			Message:    message,
			EntityType: entityType,
			EntityID:   &entityID,
			DedupKey:   fmt.Sprintf("%s:%s:%s>%s:%d:%s", evt.Table, id, from, status, stamp.UnixNano(), r),
		})
	}
	return out, nil
}

// audience is who may see the changed record: its owner plus every back-office
// user. Messages only concern their recipient.
func (n *Notifier) audience(ctx context.Context, evt ChangeEvent) []uuid.UUID {
	seen := make(map[uuid.UUID]struct{})
	var out []uuid.UUID
	add := func(ids ...uuid.UUID) {
		for _, id := range ids {
			if id == uuid.Nil {
				continue
			}
			if _, dup := seen[id]; dup {
				continue
			}
			seen[id] = struct{}{}
			out = append(out, id)
		}
	}
	if evt.New != nil {
		add(evt.New.OwnerID)
	}
	if evt.Old != nil {
		add(evt.Old.OwnerID)
	}
	if evt.Table == TableMessages || n.deps.Profiles == nil {
		return out
	}
	for _, role := range []string{model.RoleAdmin, model.RoleStaff} {
		ids, err := n.deps.Profiles.ListIDsByRole(ctx, role)
		if err != nil {
			n.log.Warn().Err(err).Str("role", role).Msg("list back-office users for invalidation")
			continue
		}
		add(ids...)
	}
	return out
}

func (n *Notifier) missing(err error) error {
	if errors.Is(err, apperr.ErrNotFound) {
		return nil
	}
	return err
}

func (n *Notifier) push(userIDs []uuid.UUID, frame Frame) {
	if n.deps.Pusher == nil {
		return
	}
	payload, err := json.Marshal(frame)
	if err != nil {
		n.log.Error().Err(err).Str("event", frame.Event).Msg("encode websocket frame")
		return
	}
	n.deps.Pusher.Push(userIDs, payload)
}

func quoteText(q *model.QuoteRequest) (string, string) {
	vehicle := strings.TrimSpace(fmt.Sprintf("%s %s", q.Vehicle.Make, q.Vehicle.Model))
	switch q.Status {
	case model.QuoteStatusEstimated:
		return "Your quote has been estimated", fmt.Sprintf("Estimate for %s: %s", vehicle, q.EstimatedAmount.Decimal.StringFixed(2))
	case model.QuoteStatusAccepted:
		return "Quote accepted", fmt.Sprintf("The quote for %s was accepted", vehicle)
	case model.QuoteStatusRejected:
		return "Quote rejected", fmt.Sprintf("The quote for %s was rejected", vehicle)
	case model.QuoteStatusConverted:
		return "Quote converted", fmt.Sprintf("Work on %s has been scheduled", vehicle)
	default:
		return "Quote updated", fmt.Sprintf("The quote for %s is %s", vehicle, q.Status)
	}
}

func assignees(items []model.ServiceLineItem) []uuid.UUID {
	var out []uuid.UUID
	for _, it := range items {
		out = append(out, it.Assignees()...)
	}
	return out
}

func humanize(status string) string {
	return strings.ReplaceAll(status, "_", " ")
}
