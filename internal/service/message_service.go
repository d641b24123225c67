package service

import (
	"context"
	"fmt"
	"strings"

	"backoffice/internal/apperr"
	"backoffice/internal/model"
	"backoffice/internal/realtime"
	"backoffice/internal/repository"
)

type SendMessageRequest struct {
	RecipientID string `json:"recipient_id" binding:"required"`
	Body        string `json:"body" binding:"required"`
}

type MessageResponse struct {
	ID          string `json:"id"`
	SenderID    string `json:"sender_id"`
	RecipientID string `json:"recipient_id"`
	Body        string `json:"body"`
	IsRead      bool   `json:"is_read"`
	CreatedAt   string `json:"created_at"`
}

type MessageService interface {
	Send(ctx context.Context, actor model.Actor, req SendMessageRequest) (MessageResponse, error)
}

type messageService struct {
	messageRepo repository.MessageRepository
	publisher   realtime.Publisher
}

func NewMessageService(messageRepo repository.MessageRepository, publisher realtime.Publisher) MessageService {
	return &messageService{messageRepo: messageRepo, publisher: publisher}
}

func (s *messageService) Send(ctx context.Context, actor model.Actor, req SendMessageRequest) (MessageResponse, error) {
	if actor.IsZero() {
		return MessageResponse{}, apperr.Unauthorized("sign in to send messages")
	}
	recipient, err := parseID(req.RecipientID, "recipient")
	if err != nil {
		return MessageResponse{}, err
	}
	if recipient == actor.ID {
		return MessageResponse{}, apperr.InvalidInput("cannot send a message to yourself")
	}
	body := strings.TrimSpace(req.Body)
	if body == "" {
		return MessageResponse{}, apperr.InvalidInput("message body is empty")
	}

	msg := &model.Message{SenderID: actor.ID, RecipientID: recipient, Body: body}
	if err := s.messageRepo.Create(ctx, msg); err != nil {
		return MessageResponse{}, fmt.Errorf("send message: %w", err)
	}

	// the recipient owns the row so the notifier bumps their badge
	publish(s.publisher, realtime.ChangeEvent{
		Table: realtime.TableMessages,
		Type:  realtime.EventInsert,
		New:   &realtime.Row{ID: msg.ID, OwnerID: recipient},
	})

	return MessageResponse{
		ID:          msg.ID.String(),
		SenderID:    msg.SenderID.String(),
		RecipientID: msg.RecipientID.String(),
		Body:        msg.Body,
		IsRead:      msg.IsRead,
		CreatedAt:   msg.CreatedAt.UTC().Format(timeLayout),
	}, nil
}
