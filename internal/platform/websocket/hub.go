// Package websocket streams visit stage changes to connected clients. Each
// client sees only its own tenant: either every visit of the tenant or the
// visits it subscribed to.
package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	gorillawebsocket "github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/ehr/opdflow/internal/platform/db"
	"github.com/ehr/opdflow/pkg/flowmodel"
)

// Event is one message on the stream.
type Event struct {
	Topic string `json:"topic"`
	flowmodel.StageChangeEvent
}

// ClientMessage is an inbound subscription change. Visits are visit ids in
// the client's tenant.
type ClientMessage struct {
	Action string   `json:"action"`
	Visits []string `json:"visits"`
}

// TenantTopic carries every stage change of a tenant.
func TenantTopic(tenantID string) string {
	return "tenant/" + tenantID
}

// VisitTopic carries the stage changes of one visit.
func VisitTopic(tenantID, flowID string) string {
	return "tenant/" + tenantID + "/visit/" + flowID
}

// Client represents a single WebSocket connection.
type Client struct {
	ID       string
	TenantID string
	Topics   []string
	Send     chan []byte
}

// NewClient returns a client of tenantID subscribed to topics.
func NewClient(tenantID string, topics ...string) *Client {
	return &Client{
		ID:       uuid.NewString(),
		TenantID: tenantID,
		Topics:   topics,
		Send:     make(chan []byte, 256),
	}
}

// Hub tracks clients and their topic subscriptions. It implements the
// visit service's stage notifier.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]map[*Client]struct{} // topic -> set of clients
	all     map[*Client]struct{}
	logger  zerolog.Logger
}

func NewHub(logger zerolog.Logger) *Hub {
	return &Hub{
		clients: make(map[string]map[*Client]struct{}),
		all:     make(map[*Client]struct{}),
		logger:  logger,
	}
}

// Register adds a client to the hub and subscribes it to its initial topics.
func (h *Hub) Register(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.all[client] = struct{}{}
	for _, topic := range client.Topics {
		h.addLocked(topic, client)
	}
}

// Unregister removes a client and closes its Send channel.
func (h *Hub) Unregister(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.all[client]; !ok {
		return
	}
	for _, topic := range client.Topics {
		h.removeLocked(topic, client)
	}
	delete(h.all, client)
	close(client.Send)
}

// Subscribe adds visit topics of the client's own tenant.
func (h *Hub) Subscribe(client *Client, visitIDs []string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, id := range visitIDs {
		if id = strings.TrimSpace(id); id == "" {
			continue
		}
		topic := VisitTopic(client.TenantID, id)
		if _, ok := h.clients[topic][client]; ok {
			continue
		}
		h.addLocked(topic, client)
		client.Topics = append(client.Topics, topic)
	}
}

// Unsubscribe drops visit topics from the client.
func (h *Hub) Unsubscribe(client *Client, visitIDs []string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	drop := make(map[string]struct{}, len(visitIDs))
	for _, id := range visitIDs {
		topic := VisitTopic(client.TenantID, strings.TrimSpace(id))
		drop[topic] = struct{}{}
		h.removeLocked(topic, client)
	}
	remaining := client.Topics[:0]
	for _, t := range client.Topics {
		if _, rm := drop[t]; !rm {
			remaining = append(remaining, t)
		}
	}
	client.Topics = remaining
}

func (h *Hub) addLocked(topic string, client *Client) {
	if h.clients[topic] == nil {
		h.clients[topic] = make(map[*Client]struct{})
	}
	h.clients[topic][client] = struct{}{}
}

func (h *Hub) removeLocked(topic string, client *Client) {
	if subscribers, ok := h.clients[topic]; ok {
		delete(subscribers, client)
		if len(subscribers) == 0 {
			delete(h.clients, topic)
		}
	}
}

// ProcessMessage applies a subscribe or unsubscribe message.
func (h *Hub) ProcessMessage(client *Client, msg ClientMessage) {
	switch msg.Action {
	case "subscribe":
		h.Subscribe(client, msg.Visits)
	case "unsubscribe":
		h.Unsubscribe(client, msg.Visits)
	}
}

// StageChanged sends ev to the tenant's subscribers and to the subscribers
// of the visit. A client on both topics gets it once.
func (h *Hub) StageChanged(_ context.Context, ev flowmodel.StageChangeEvent) {
	tenantTopic := TenantTopic(ev.TenantID)
	visitTopic := VisitTopic(ev.TenantID, ev.FlowID)

	byTopic := make(map[string][]byte, 2)
	for _, topic := range []string{tenantTopic, visitTopic} {
		data, err := json.Marshal(Event{Topic: topic, StageChangeEvent: ev})
		if err != nil {
			h.logger.Error().Err(err).Str("flow_id", ev.FlowID).Msg("marshal stage event")
			return
		}
		byTopic[topic] = data
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	sent := make(map[*Client]struct{})
	for _, topic := range []string{tenantTopic, visitTopic} {
		for client := range h.clients[topic] {
			if _, done := sent[client]; done {
				continue
			}
			sent[client] = struct{}{}
			select {
			case client.Send <- byTopic[topic]:
			default:
				h.logger.Warn().Str("client_id", client.ID).Msg("websocket client buffer full, dropping event")
			}
		}
	}
}

// ClientCount returns the total number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.all)
}

// TopicCount returns the number of clients subscribed to topic.
func (h *Hub) TopicCount(topic string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[topic])
}

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
)

// Handler upgrades HTTP requests to the event stream.
type Handler struct {
	hub      *Hub
	upgrader gorillawebsocket.Upgrader
}

// NewHandler returns a Handler. An empty origins list accepts any origin.
func NewHandler(hub *Hub, origins []string) *Handler {
	allowed := make(map[string]bool, len(origins))
	for _, o := range origins {
		if o = strings.TrimSpace(o); o != "" && o != "*" {
			allowed[o] = true
		}
	}
	return &Handler{
		hub: hub,
		upgrader: gorillawebsocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				return len(allowed) == 0 || origin == "" || allowed[origin]
			},
		},
	}
}

// RegisterRoutes mounts GET /ws/visit-flows on g. The group must resolve the
// tenant first.
func (h *Handler) RegisterRoutes(g *echo.Group) {
	g.GET("/ws/visit-flows", h.HandleConnect)
}

// HandleConnect upgrades the connection. With ?visitId=a,b the client starts
// on those visits, otherwise on the whole tenant.
func (h *Handler) HandleConnect(c echo.Context) error {
	tenantID := db.TenantFromContext(c.Request().Context())
	if tenantID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "tenant not resolved")
	}

	ws, err := h.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return err
	}

	client := NewClient(tenantID)
	if ids := c.QueryParam("visitId"); ids != "" {
		for _, id := range strings.Split(ids, ",") {
			if id = strings.TrimSpace(id); id != "" {
				client.Topics = append(client.Topics, VisitTopic(tenantID, id))
			}
		}
	}
	if len(client.Topics) == 0 {
		client.Topics = []string{TenantTopic(tenantID)}
	}
	h.hub.Register(client)
	h.hub.logger.Debug().Str("client_id", client.ID).Str("tenant_id", tenantID).Msg("websocket client connected")

	go h.writePump(client, ws)
	go h.readPump(client, ws)
	return nil
}

func (h *Handler) readPump(client *Client, ws *gorillawebsocket.Conn) {
	defer func() {
		h.hub.Unregister(client)
		ws.Close()
	}()

	ws.SetReadLimit(4096)
	_ = ws.SetReadDeadline(time.Now().Add(pongWait))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		_, message, err := ws.ReadMessage()
		if err != nil {
			return
		}
		var msg ClientMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			continue
		}
		h.hub.ProcessMessage(client, msg)
	}
}

func (h *Handler) writePump(client *Client, ws *gorillawebsocket.Conn) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		ws.Close()
	}()

	for {
		select {
		case message, ok := <-client.Send:
			_ = ws.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = ws.WriteMessage(gorillawebsocket.CloseMessage, nil)
				return
			}
			if err := ws.WriteMessage(gorillawebsocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			_ = ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := ws.WriteMessage(gorillawebsocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
