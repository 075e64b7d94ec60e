package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"orgadmin/internal/audit"
	"orgadmin/internal/middleware"
	"orgadmin/internal/service"
	"orgadmin/pkg/response"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// origin is enforced by CORS on the login that issued the token
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// SubscriberObserver is told when feed subscribers come and go.
type SubscriberObserver interface {
	SubscriberDelta(n int)
}

// Scope decides which changes a subscriber may see.
type Scope func(ctx context.Context, change audit.Change) bool

// Client represents a single connected WebSocket client
type Client struct {
	Hub   *Hub
	Conn  *websocket.Conn
	Send  chan []audit.Change
	Scope Scope
}

// Message is what subscribers receive for every committed unit of work.
type Message struct {
	Type    string         `json:"type"`
	Changes []audit.Change `json:"changes"`
}

// Hub fans committed audit changes out to connected clients. It implements
// the unit of work's change notifier.
type Hub struct {
	clients    map[*Client]bool
	broadcast  chan []audit.Change
	register   chan *Client
	unregister chan *Client
	done       chan struct{}
	mu         sync.Mutex
	log        *logrus.Entry
	observer   SubscriberObserver
}

// NewHub initializes a new WS Hub instance. observer may be nil.
func NewHub(log *logrus.Logger, observer SubscriberObserver) *Hub {
	return &Hub{
		broadcast:  make(chan []audit.Change, 64),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
		clients:    make(map[*Client]bool),
		log:        log.WithField("component", "audit-feed"),
		observer:   observer,
	}
}

// Publish queues changes for broadcast. It never blocks the committing
// request; when the queue is full the batch is dropped.
func (h *Hub) Publish(changes []audit.Change) {
	select {
	case h.broadcast <- changes:
	default:
		h.log.WithField("changes", len(changes)).Warn("audit feed queue full, dropping batch")
	}
}

// Clients returns the number of connected subscribers.
func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Run starts the core dispatch loop for WebSocket events until ctx is done.
func (h *Hub) Run(ctx context.Context) error {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for client := range h.clients {
				h.drop(client)
			}
			h.mu.Unlock()
			return nil
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			h.mu.Unlock()
			h.delta(1)
			h.log.Debug("client connected")
		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				h.drop(client)
				h.log.Debug("client disconnected")
			}
			h.mu.Unlock()
		case message := <-h.broadcast:
			h.mu.Lock()
			for client := range h.clients {
				select {
				case client.Send <- message:
				default:
					h.drop(client)
				}
			}
			h.mu.Unlock()
		}
	}
}

// drop must be called with h.mu held.
func (h *Hub) drop(client *Client) {
	delete(h.clients, client)
	close(client.Send)
	h.delta(-1)
}

func (h *Hub) delta(n int) {
	if h.observer != nil {
		h.observer.SubscriberDelta(n)
	}
}

// visible keeps the changes inside the client's scope.
func (c *Client) visible(ctx context.Context, changes []audit.Change) []audit.Change {
	if c.Scope == nil {
		return changes
	}
	ctx, cancel := context.WithTimeout(ctx, writeWait)
	defer cancel()
	out := make([]audit.Change, 0, len(changes))
	for _, ch := range changes {
		if c.Scope(ctx, ch) {
			out = append(out, ch)
		}
	}
	return out
}

// writePump handles writing messages from the Hub to the WebSocket connection
func (c *Client) writePump() {
	ctx, cancel := context.WithCancel(context.Background())
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		cancel()
		ticker.Stop()
		_ = c.Conn.Close()
	}()
	for {
		select {
		case changes, ok := <-c.Send:
			if !ok {
				_ = c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
				_ = c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			changes = c.visible(ctx, changes)
			if len(changes) == 0 {
				continue
			}
			payload, err := json.Marshal(Message{Type: "audit", Changes: changes})
			if err != nil {
				c.Hub.log.WithError(err).Error("encode audit message")
				continue
			}
			_ = c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump pumps messages from the WebSocket connection to the hub
func (c *Client) readPump() {
	defer func() {
		select {
		case c.Hub.unregister <- c:
		case <-c.Hub.done:
		}
		_ = c.Conn.Close()
	}()
	_ = c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error {
		return c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		// subscribers only listen; reads keep the connection alive
		if _, _, err := c.Conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.Hub.log.WithError(err).Warn("unexpected close")
			}
			return
		}
	}
}

// ServeWs authenticates the subscriber (token query parameter, bearer header
// or cookie), requires permKey, then upgrades the connection. Subscribers
// only receive changes of their organization subtree; catalog changes go to
// members of a root organization.
func ServeWs(hub *Hub, auth service.AuthService, authz service.Authorizer, orgs service.OrganizationService, permKey string) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := c.Query("token")
		if token == "" {
			var err error
			if token, err = middleware.BearerToken(c); err != nil {
				reject(c, err)
				return
			}
		}
		p, err := auth.Authenticate(c.Request.Context(), token)
		if err != nil {
			reject(c, err)
			return
		}
		if err := authz.Authorize(c.Request.Context(), p.UserID, permKey); err != nil {
			reject(c, err)
			return
		}
		root, err := orgs.IsRoot(c.Request.Context(), p.OrganizationID)
		if err != nil {
			reject(c, err)
			return
		}

		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			hub.log.WithError(err).Warn("upgrade failed")
			return
		}
		client := &Client{Hub: hub, Conn: conn, Send: make(chan []audit.Change, 256), Scope: TenantScope(orgs, p.OrganizationID, root)}
		select {
		case hub.register <- client:
		case <-hub.done:
			_ = conn.Close()
			return
		}

		// Allow collection of memory referenced by the caller by doing all work in new goroutines
		go client.writePump()
		go client.readPump()
	}
}

// TenantScope admits changes owned by orgID or its descendants, and
// unowned changes when root is set.
func TenantScope(orgs service.OrganizationService, orgID uuid.UUID, root bool) Scope {
	return func(ctx context.Context, ch audit.Change) bool {
		if ch.Organization == nil {
			return root
		}
		ok, err := orgs.InScope(ctx, orgID, *ch.Organization)
		return err == nil && ok
	}
}

func reject(c *gin.Context, err error) {
	res := response.FromError(err)
	c.AbortWithStatusJSON(res.StatusCode, res)
}
