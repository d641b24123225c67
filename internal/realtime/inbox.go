package realtime

import (
	"sort"
	"sync"
	"time"

	"backoffice/internal/model"

	"github.com/google/uuid"
)

type Origin string

const (
	OriginNotification Origin = "notification"
	OriginMessage      Origin = "message"
)

// FeedItem is one row of the merged inbox, whichever table it came from.
type FeedItem struct {
	ID         uuid.UUID  `json:"id"`
	Origin     Origin     `json:"origin"`
	Title      string     `json:"title"`
	Body       string     `json:"body"`
	EntityType string     `json:"entity_type,omitempty"`
	EntityID   *uuid.UUID `json:"entity_id,omitempty"`
	SenderID   *uuid.UUID `json:"sender_id,omitempty"`
	IsRead     bool       `json:"is_read"`
	CreatedAt  time.Time  `json:"created_at"`
}

// MergeFeed interleaves notifications and messages newest first and keeps the
// newest limit items. Ties on time are broken by id so the order is stable.
func MergeFeed(notifications []model.Notification, messages []model.Message, limit int) []FeedItem {
	items := make([]FeedItem, 0, len(notifications)+len(messages))
	for _, n := range notifications {
		items = append(items, FeedItem{
			ID:         n.ID,
			Origin:     OriginNotification,
			Title:      n.Title,
			Body:       n.Message,
			EntityType: n.EntityType,
			EntityID:   n.EntityID,
			IsRead:     n.IsRead,
			CreatedAt:  n.CreatedAt,
		})
	}
	for _, m := range messages {
		sender := m.SenderID
		items = append(items, FeedItem{
			ID:        m.ID,
			Origin:    OriginMessage,
			Title:     "New message",
			Body:      m.Body,
			SenderID:  &sender,
			IsRead:    m.IsRead,
			CreatedAt: m.CreatedAt,
		})
	}

	sort.SliceStable(items, func(i, j int) bool {
		if !items[i].CreatedAt.Equal(items[j].CreatedAt) {
			return items[i].CreatedAt.After(items[j].CreatedAt)
		}
		return items[i].ID.String() > items[j].ID.String()
	})
	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}
	return items
}

// UnreadCounts are the per-source badges and their sum.
type UnreadCounts struct {
	Notifications int64 `json:"notifications"`
	Messages      int64 `json:"messages"`
	Total         int64 `json:"total"`
}

func NewUnreadCounts(notifications, messages int64) UnreadCounts {
	return UnreadCounts{Notifications: notifications, Messages: messages, Total: notifications + messages}
}

// Badges caches each user's unread counts between full recounts. Counts only
// move when the store confirms a row actually changed read state. Every
// adjustment bumps the user's version, loaded or not, so a recount that raced
// with one can tell its snapshot is already out of date.
type Badges struct {
	mu       sync.Mutex
	counts   map[uuid.UUID]UnreadCounts
	versions map[uuid.UUID]uint64
}

func NewBadges() *Badges {
	return &Badges{
		counts:   make(map[uuid.UUID]UnreadCounts),
		versions: make(map[uuid.UUID]uint64),
	}
}

// Version is read before counting unread rows and handed to LoadAt.
func (b *Badges) Version(userID uuid.UUID) uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.versions[userID]
}

// LoadAt stores c only if no adjustment happened since version was read.
func (b *Badges) LoadAt(userID uuid.UUID, c UnreadCounts, version uint64) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.versions[userID] != version {
		return false
	}
	b.counts[userID] = c
	return true
}

// Forget drops the cached counts so the next read recounts.
func (b *Badges) Forget(userID uuid.UUID) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.counts, userID)
}

func (b *Badges) Load(userID uuid.UUID, c UnreadCounts) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.counts[userID] = c
}

func (b *Badges) Get(userID uuid.UUID) (UnreadCounts, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	c, ok := b.counts[userID]
	return c, ok
}

// Adjust moves the origin's count by delta, never below zero. It reports
// false when the user's counts are not loaded.
func (b *Badges) Adjust(userID uuid.UUID, origin Origin, delta int64) (UnreadCounts, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.versions[userID]++
	c, ok := b.counts[userID]
	if !ok {
		return UnreadCounts{}, false
	}
	switch origin {
	case OriginNotification:
		c.Notifications = max(c.Notifications+delta, 0)
	case OriginMessage:
		c.Messages = max(c.Messages+delta, 0)
	}
	c.Total = c.Notifications + c.Messages
	b.counts[userID] = c
	return c, true
}

// Clear zeroes one origin, or both when origin is empty.
func (b *Badges) Clear(userID uuid.UUID, origin Origin) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.versions[userID]++
	c, ok := b.counts[userID]
	if !ok {
		return
	}
	switch origin {
	case OriginNotification:
		c.Notifications = 0
	case OriginMessage:
		c.Messages = 0
	default:
		c = UnreadCounts{}
	}
	c.Total = c.Notifications + c.Messages
	b.counts[userID] = c
}
