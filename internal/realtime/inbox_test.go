package realtime

import (
	"testing"
	"time"

	"backoffice/internal/model"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMergeFeedOrdersAndTruncates(t *testing.T) {
	base := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	var notes []model.Notification
	var msgs []model.Message
	for i := 0; i < 4; i++ {
		notes = append(notes, model.Notification{ID: uuid.New(), Title: "n", CreatedAt: base.Add(time.Duration(2*i) * time.Minute)})
		msgs = append(msgs, model.Message{ID: uuid.New(), Body: "m", CreatedAt: base.Add(time.Duration(2*i+1) * time.Minute)})
	}

	items := MergeFeed(notes, msgs, 5)

	require.Len(t, items, 5)
	assert.Equal(t, OriginMessage, items[0].Origin)
	assert.Equal(t, base.Add(7*time.Minute), items[0].CreatedAt)
	for i := 1; i < len(items); i++ {
		assert.False(t, items[i].CreatedAt.After(items[i-1].CreatedAt))
	}
	assert.Equal(t, base.Add(3*time.Minute), items[4].CreatedAt)
	require.NotNil(t, items[0].SenderID)
}

func TestMergeFeedWithoutLimitKeepsAll(t *testing.T) {
	items := MergeFeed([]model.Notification{{ID: uuid.New()}}, []model.Message{{ID: uuid.New()}}, 0)
	assert.Len(t, items, 2)
}

func TestBadgesAdjustOnlyWhenLoaded(t *testing.T) {
	b := NewBadges()
	user := uuid.New()

	_, ok := b.Adjust(user, OriginNotification, -1)
	assert.False(t, ok)

	b.Load(user, NewUnreadCounts(2, 1))
	c, ok := b.Adjust(user, OriginNotification, -1)
	require.True(t, ok)
	assert.Equal(t, UnreadCounts{Notifications: 1, Messages: 1, Total: 2}, c)

	c, _ = b.Adjust(user, OriginMessage, -5)
	assert.Equal(t, UnreadCounts{Notifications: 1, Messages: 0, Total: 1}, c)

	b.Clear(user, "")
	c, _ = b.Get(user)
	assert.Zero(t, c.Total)
}

func TestBadgesLoadAtRejectsSnapshotTakenBeforeAdjust(t *testing.T) {
	b := NewBadges()
	user := uuid.New()

	v := b.Version(user)
	b.Adjust(user, OriginNotification, 1)
	assert.False(t, b.LoadAt(user, NewUnreadCounts(2, 0), v))
	_, loaded := b.Get(user)
	assert.False(t, loaded)

	v = b.Version(user)
	require.True(t, b.LoadAt(user, NewUnreadCounts(3, 0), v))
	c, _ := b.Adjust(user, OriginNotification, 1)
	assert.EqualValues(t, 4, c.Notifications)

	b.Forget(user)
	_, loaded = b.Get(user)
	assert.False(t, loaded)
}
