package handler

import (
	"net/http"

	"backoffice/internal/service"
	"backoffice/pkg/pagination"
	"backoffice/pkg/response"

	"github.com/gin-gonic/gin"
)

type InboxHandler struct {
	inboxService   service.InboxService
	messageService service.MessageService
}

func NewInboxHandler(inboxService service.InboxService, messageService service.MessageService) *InboxHandler {
	return &InboxHandler{inboxService: inboxService, messageService: messageService}
}

func (h *InboxHandler) RegisterRoutes(router *gin.RouterGroup) {
	inbox := router.Group("/inbox")
	{
		inbox.GET("", h.Feed)
		inbox.POST("/read", h.MarkRead)
		inbox.POST("/read-all", h.MarkAllRead)
	}
	router.POST("/messages", h.SendMessage)
}

// Feed returns the newest notifications and unread messages with badge counts
// @Summary      Inbox feed
// @Tags         inbox
// @Security     BearerAuth
// @Produce      json
// @Param        limit  query     int  false  "Maximum items (default 10)"
// @Success      200    {object}  response.Response{data=service.FeedResponse}
// @Router       /api/inbox [get]
func (h *InboxHandler) Feed(c *gin.Context) {
	a, ok := actor(c)
	if !ok {
		return
	}
	feed, err := h.inboxService.Feed(c.Request.Context(), a, pagination.Limit(c, "limit", 0, pagination.MaxLimit))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, feed))
}

// MarkRead marks one notification or message read
// @Summary      Mark inbox item read
// @Tags         inbox
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        payload  body      service.MarkReadRequest  true  "Item"
// @Success      200      {object}  response.Response{data=realtime.UnreadCounts}
// @Router       /api/inbox/read [post]
func (h *InboxHandler) MarkRead(c *gin.Context) {
	a, ok := actor(c)
	if !ok {
		return
	}
	var req service.MarkReadRequest
	if !bindJSON(c, &req) {
		return
	}
	counts, err := h.inboxService.MarkRead(c.Request.Context(), a, req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, counts))
}

// MarkAllRead clears the caller's unread notifications, messages or both
// @Summary      Mark all read
// @Tags         inbox
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        payload  body      service.MarkAllReadRequest  false  "Optional origin"
// @Success      200      {object}  response.Response{data=realtime.UnreadCounts}
// @Router       /api/inbox/read-all [post]
func (h *InboxHandler) MarkAllRead(c *gin.Context) {
	a, ok := actor(c)
	if !ok {
		return
	}
	var req service.MarkAllReadRequest
	if c.Request.ContentLength > 0 && !bindJSON(c, &req) {
		return
	}
	counts, err := h.inboxService.MarkAllRead(c.Request.Context(), a, req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, counts))
}

// SendMessage sends a direct message
// @Summary      Send message
// @Tags         inbox
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        payload  body      service.SendMessageRequest  true  "Message"
// @Success      201      {object}  response.Response{data=service.MessageResponse}
// @Failure      400      {object}  response.Response
// @Router       /api/messages [post]
func (h *InboxHandler) SendMessage(c *gin.Context) {
	a, ok := actor(c)
	if !ok {
		return
	}
	var req service.SendMessageRequest
	if !bindJSON(c, &req) {
		return
	}
	msg, err := h.messageService.Send(c.Request.Context(), a, req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, response.Success(http.StatusCreated, msg))
}
