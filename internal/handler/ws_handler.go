package handler

import (
	"backoffice/internal/middleware"
	"backoffice/internal/model"
	"backoffice/internal/realtime"

	"github.com/gin-gonic/gin"
)

type WebsocketHandler struct {
	hub    *realtime.Hub
	secret []byte
}

func NewWebsocketHandler(hub *realtime.Hub, secret []byte) *WebsocketHandler {
	return &WebsocketHandler{hub: hub, secret: secret}
}

// RegisterRoutes mounts /ws outside the authenticated group; the token is
// checked during the upgrade.
func (h *WebsocketHandler) RegisterRoutes(router gin.IRouter) {
	router.GET("/ws", h.Serve)
}

func (h *WebsocketHandler) Serve(c *gin.Context) {
	realtime.ServeWs(h.hub, func(token string) (model.Actor, error) {
		return middleware.ParseToken(h.secret, token)
	}, c)
}
