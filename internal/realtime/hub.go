package realtime

import (
	"context"
	"net/http"
	"sync"

	"backoffice/internal/model"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Pusher delivers a frame to the connections of the given users, or to
// everyone when userIDs is empty.
type Pusher interface {
	Push(userIDs []uuid.UUID, frame []byte)
}

// Authenticator resolves the token a websocket client presents.
type Authenticator func(token string) (model.Actor, error)

type Client struct {
	hub    *Hub
	userID uuid.UUID
	conn   *websocket.Conn
	send   chan []byte
}

type delivery struct {
	userIDs []uuid.UUID
	frame   []byte
}

// Hub tracks the open websocket connections per user.
type Hub struct {
	clients    map[uuid.UUID]map[*Client]struct{}
	deliver    chan delivery
	register   chan *Client
	unregister chan *Client
	done       chan struct{}
	log        zerolog.Logger
	mu         sync.RWMutex
}

func NewHub(log zerolog.Logger) *Hub {
	return &Hub{
		clients:    make(map[uuid.UUID]map[*Client]struct{}),
		deliver:    make(chan delivery, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
		log:        log.With().Str("component", "ws_hub").Logger(),
	}
}

// Run is the dispatch loop; it returns when ctx is done.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			close(h.done)
			h.mu.Lock()
			for _, set := range h.clients {
				for c := range set {
					close(c.send)
				}
			}
			h.clients = make(map[uuid.UUID]map[*Client]struct{})
			h.mu.Unlock()
			return
		case c := <-h.register:
			h.mu.Lock()
			if h.clients[c.userID] == nil {
				h.clients[c.userID] = make(map[*Client]struct{})
			}
			h.clients[c.userID][c] = struct{}{}
			h.mu.Unlock()
			h.log.Debug().Str("user_id", c.userID.String()).Msg("websocket client connected")
		case c := <-h.unregister:
			h.mu.Lock()
			h.drop(c)
			h.mu.Unlock()
		case d := <-h.deliver:
			h.mu.Lock()
			if len(d.userIDs) == 0 {
				for _, set := range h.clients {
					h.sendAll(set, d.frame)
				}
			} else {
				for _, id := range d.userIDs {
					h.sendAll(h.clients[id], d.frame)
				}
			}
			h.mu.Unlock()
		}
	}
}

// sendAll must be called with mu held. Slow clients are disconnected.
func (h *Hub) sendAll(set map[*Client]struct{}, frame []byte) {
	for c := range set {
		select {
		case c.send <- frame:
		default:
			h.drop(c)
		}
	}
}

func (h *Hub) drop(c *Client) {
	set, ok := h.clients[c.userID]
	if !ok {
		return
	}
	if _, ok := set[c]; !ok {
		return
	}
	delete(set, c)
	close(c.send)
	if len(set) == 0 {
		delete(h.clients, c.userID)
	}
	h.log.Debug().Str("user_id", c.userID.String()).Msg("websocket client disconnected")
}

// Push never blocks the caller; frames are discarded when the hub is saturated.
func (h *Hub) Push(userIDs []uuid.UUID, frame []byte) {
	select {
	case h.deliver <- delivery{userIDs: userIDs, frame: frame}:
	default:
		h.log.Warn().Int("recipients", len(userIDs)).Msg("websocket hub saturated, frame dropped")
	}
}

// Connected reports how many connections userID currently holds.
func (h *Hub) Connected(userID uuid.UUID) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[userID])
}

func (c *Client) writePump() {
	defer func() {
		_ = c.conn.Close()
	}()
	for message := range c.send {
		if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
			return
		}
	}
	_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
}

// readPump only watches for the peer going away; clients never send commands.
func (c *Client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		_ = c.conn.Close()
	}()
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.log.Warn().Err(err).Msg("websocket read failed")
			}
			return
		}
	}
}

// ServeWs upgrades an authenticated request. The token comes from the
// "token" query parameter because browsers cannot set headers on websockets.
func ServeWs(hub *Hub, auth Authenticator, c *gin.Context) {
	tokenString := c.Query("token")
	if tokenString == "" {
		c.AbortWithStatus(http.StatusUnauthorized)
		return
	}

	actor, err := auth(tokenString)
	if err != nil {
		hub.log.Info().Err(err).Msg("websocket connection rejected")
		c.AbortWithStatus(http.StatusUnauthorized)
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		hub.log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}
	client := &Client{hub: hub, userID: actor.ID, conn: conn, send: make(chan []byte, 256)}
	select {
	case hub.register <- client:
	case <-hub.done:
		_ = conn.Close()
		return
	}

	go client.writePump()
	go client.readPump()
}
