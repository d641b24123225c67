package service

import (
	"context"
	"encoding/json"

	"backoffice/internal/apperr"
	"backoffice/internal/model"
	"backoffice/internal/realtime"
	"backoffice/internal/repository"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// --- DTOs ---

type FeedResponse struct {
	Items  []realtime.FeedItem   `json:"items"`
	Unread realtime.UnreadCounts `json:"unread"`
}

type MarkReadRequest struct {
	Origin string `json:"origin" binding:"required,oneof=notification message"`
	ID     string `json:"id" binding:"required"`
}

type MarkAllReadRequest struct {
	Origin string `json:"origin" binding:"omitempty,oneof=notification message"`
}

// --- Interface ---

type InboxService interface {
	Feed(ctx context.Context, actor model.Actor, limit int) (FeedResponse, error)
	MarkRead(ctx context.Context, actor model.Actor, req MarkReadRequest) (realtime.UnreadCounts, error)
	MarkAllRead(ctx context.Context, actor model.Actor, req MarkAllReadRequest) (realtime.UnreadCounts, error)
}

type inboxService struct {
	notificationRepo repository.NotificationRepository
	messageRepo      repository.MessageRepository
	badges           *realtime.Badges
	pusher           realtime.Pusher
	defaultLimit     int
	log              zerolog.Logger
}

func NewInboxService(
	notificationRepo repository.NotificationRepository,
	messageRepo repository.MessageRepository,
	badges *realtime.Badges,
	pusher realtime.Pusher,
	defaultLimit int,
	log zerolog.Logger,
) InboxService {
	if defaultLimit <= 0 {
		defaultLimit = 10
	}
	return &inboxService{
		notificationRepo: notificationRepo,
		messageRepo:      messageRepo,
		badges:           badges,
		pusher:           pusher,
		defaultLimit:     defaultLimit,
		log:              log.With().Str("component", "inbox_service").Logger(),
	}
}

// --- Implementation ---

// Feed merges the newest notifications and unread messages. Counts come from
// separate count queries so truncating the list never changes them.
func (s *inboxService) Feed(ctx context.Context, actor model.Actor, limit int) (FeedResponse, error) {
	if actor.IsZero() {
		return FeedResponse{}, apperr.Unauthorized("sign in to read your inbox")
	}
	if limit <= 0 {
		limit = s.defaultLimit
	}

	notes, err := s.notificationRepo.ListRecent(ctx, actor.ID, limit)
	if err != nil {
		return FeedResponse{}, err
	}
	msgs, err := s.messageRepo.ListUnreadRecent(ctx, actor.ID, limit)
	if err != nil {
		return FeedResponse{}, err
	}
	counts, err := s.recount(ctx, actor.ID)
	if err != nil {
		return FeedResponse{}, err
	}

	return FeedResponse{Items: realtime.MergeFeed(notes, msgs, limit), Unread: counts}, nil
}

// MarkRead flips one item. Only the request that actually changed the row
// moves the badge, so repeated clicks decrement once.
func (s *inboxService) MarkRead(ctx context.Context, actor model.Actor, req MarkReadRequest) (realtime.UnreadCounts, error) {
	if actor.IsZero() {
		return realtime.UnreadCounts{}, apperr.Unauthorized("sign in to read your inbox")
	}
	id, err := parseID(req.ID, req.Origin)
	if err != nil {
		return realtime.UnreadCounts{}, err
	}

	var changed bool
	origin := realtime.Origin(req.Origin)
	switch origin {
	case realtime.OriginNotification:
		changed, err = s.notificationRepo.MarkRead(ctx, id, actor.ID)
	case realtime.OriginMessage:
		changed, err = s.messageRepo.MarkRead(ctx, id, actor.ID)
	default:
		return realtime.UnreadCounts{}, apperr.InvalidInput("origin must be notification or message")
	}
	if err != nil {
		return realtime.UnreadCounts{}, err
	}

	if !changed {
		return s.current(ctx, actor.ID)
	}
	counts, loaded := s.badges.Adjust(actor.ID, origin, -1)
	if !loaded {
		if counts, err = s.recount(ctx, actor.ID); err != nil {
			return realtime.UnreadCounts{}, err
		}
	}
	s.pushCounts(actor.ID, counts)
	return counts, nil
}

func (s *inboxService) MarkAllRead(ctx context.Context, actor model.Actor, req MarkAllReadRequest) (realtime.UnreadCounts, error) {
	if actor.IsZero() {
		return realtime.UnreadCounts{}, apperr.Unauthorized("sign in to read your inbox")
	}
	origin := realtime.Origin(req.Origin)
	if origin == "" || origin == realtime.OriginNotification {
		if _, err := s.notificationRepo.MarkAllRead(ctx, actor.ID); err != nil {
			return realtime.UnreadCounts{}, err
		}
	}
	if origin == "" || origin == realtime.OriginMessage {
		if _, err := s.messageRepo.MarkAllRead(ctx, actor.ID); err != nil {
			return realtime.UnreadCounts{}, err
		}
	}

	counts, err := s.recount(ctx, actor.ID)
	if err != nil {
		return realtime.UnreadCounts{}, err
	}
	s.pushCounts(actor.ID, counts)
	return counts, nil
}

// --- Helpers ---

const recountAttempts = 3

// recount reads both unread counts and caches them unless a notification or
// read landed meanwhile, in which case it counts again.
func (s *inboxService) recount(ctx context.Context, userID uuid.UUID) (realtime.UnreadCounts, error) {
	var counts realtime.UnreadCounts
	for attempt := 0; attempt < recountAttempts; attempt++ {
		version := s.badges.Version(userID)
		unreadNotes, err := s.notificationRepo.CountUnread(ctx, userID)
		if err != nil {
			return realtime.UnreadCounts{}, err
		}
		unreadMsgs, err := s.messageRepo.CountUnread(ctx, userID)
		if err != nil {
			return realtime.UnreadCounts{}, err
		}
		counts = realtime.NewUnreadCounts(unreadNotes, unreadMsgs)
		if s.badges.LoadAt(userID, counts, version) {
			return counts, nil
		}
	}
	s.badges.Forget(userID)
	s.log.Debug().Str("user_id", userID.String()).Msg("unread counts kept moving, not cached")
	return counts, nil
}

func (s *inboxService) current(ctx context.Context, userID uuid.UUID) (realtime.UnreadCounts, error) {
	if c, ok := s.badges.Get(userID); ok {
		return c, nil
	}
	return s.recount(ctx, userID)
}

func (s *inboxService) pushCounts(userID uuid.UUID, counts realtime.UnreadCounts) {
	if s.pusher == nil {
		return
	}
	payload, err := json.Marshal(realtime.Frame{Event: "unread", Unread: &counts})
	if err != nil {
		s.log.Error().Err(err).Msg("encode unread frame")
		return
	}
	s.pusher.Push([]uuid.UUID{userID}, payload)
}
