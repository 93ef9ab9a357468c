// Package websocket pushes intake events to open dashboards. Clients
// subscribe to topics and receive every event published on them.
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

	"github.com/medintake/intake/internal/platform/auth"
)

// Topics.
const (
	TopicRecords  = "records"
	TopicProfiles = "profiles"
)

// Event types.
const (
	EventRecordCreated = "record.created"
	EventProfileSynced = "profile.synced"
)

// BranchTopic is the per-branch record feed, e.g. "records/branch/centro".
func BranchTopic(branch string) string {
	b := strings.ToLower(strings.TrimSpace(branch))
	b = strings.Join(strings.Fields(b), "-")
	if b == "" {
		b = "none"
	}
	return TopicRecords + "/branch/" + b
}

// Event is one notification sent to subscribers.
type Event struct {
	Type      string          `json:"type"`
	Topic     string          `json:"topic"`
	SubjectID string          `json:"subject_id,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// ClientMessage is what a dashboard sends to change its subscriptions.
type ClientMessage struct {
	Action string   `json:"action"`
	Topics []string `json:"topics"`
}

// Publisher is implemented by *Hub.
type Publisher interface {
	Publish(ctx context.Context, event Event) error
}

// Client is one dashboard connection. Admin clients may also follow the
// profiles topic.
type Client struct {
	ID     string
	UserID string
	Admin  bool
	Topics []string
	Send   chan []byte
}

// CanFollow reports whether client may subscribe to topic on its own.
func CanFollow(client *Client, topic string) bool {
	switch {
	case topic == TopicRecords:
		return true
	case strings.HasPrefix(topic, TopicRecords+"/branch/"):
		return len(topic) > len(TopicRecords+"/branch/")
	case topic == TopicProfiles:
		return client.Admin
	default:
		return false
	}
}

// Hub tracks clients and their topic subscriptions.
type Hub struct {
	mu     sync.RWMutex
	topics map[string]map[*Client]struct{}
	all    map[*Client]struct{}
	logger zerolog.Logger
}

func NewHub(logger zerolog.Logger) *Hub {
	return &Hub{
		topics: make(map[string]map[*Client]struct{}),
		all:    make(map[*Client]struct{}),
		logger: logger.With().Str("component", "websocket").Logger(),
	}
}

func (h *Hub) Register(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.all[client] = struct{}{}
	h.subscribeLocked(client, client.Topics)
}

// Unregister removes client from every topic and closes its Send channel.
func (h *Hub) Unregister(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.all[client]; !ok {
		return
	}
	h.unsubscribeLocked(client, client.Topics)
	delete(h.all, client)
	close(client.Send)
}

func (h *Hub) Subscribe(client *Client, topics []string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	var added []string
	for _, t := range topics {
		if _, ok := h.topics[t][client]; !ok {
			added = append(added, t)
		}
	}
	h.subscribeLocked(client, added)
	client.Topics = append(client.Topics, added...)
}

func (h *Hub) Unsubscribe(client *Client, topics []string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.unsubscribeLocked(client, topics)
	drop := make(map[string]struct{}, len(topics))
	for _, t := range topics {
		drop[t] = struct{}{}
	}
	kept := client.Topics[:0]
	for _, t := range client.Topics {
		if _, ok := drop[t]; !ok {
			kept = append(kept, t)
		}
	}
	client.Topics = kept
}

func (h *Hub) subscribeLocked(client *Client, topics []string) {
	for _, t := range topics {
		if h.topics[t] == nil {
			h.topics[t] = make(map[*Client]struct{})
		}
		h.topics[t][client] = struct{}{}
	}
}

func (h *Hub) unsubscribeLocked(client *Client, topics []string) {
	for _, t := range topics {
		if subs, ok := h.topics[t]; ok {
			delete(subs, client)
			if len(subs) == 0 {
				delete(h.topics, t)
			}
		}
	}
}

// ProcessMessage applies a dashboard's subscription change. Topics the
// client may not follow are dropped.
func (h *Hub) ProcessMessage(client *Client, msg ClientMessage) {
	switch msg.Action {
	case "subscribe":
		var allowed []string
		for _, t := range msg.Topics {
			if CanFollow(client, t) {
				allowed = append(allowed, t)
				continue
			}
			h.logger.Warn().Str("client_id", client.ID).Str("topic", t).Msg("subscription refused")
		}
		h.Subscribe(client, allowed)
	case "unsubscribe":
		h.Unsubscribe(client, msg.Topics)
	}
}

// Publish sends event to the subscribers of event.Topic. Slow clients whose
// buffer is full miss the event.
func (h *Hub) Publish(_ context.Context, event Event) error {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for client := range h.topics[event.Topic] {
		select {
		case client.Send <- data:
		default:
			h.logger.Warn().Str("client_id", client.ID).Str("topic", event.Topic).Msg("client buffer full, event dropped")
		}
	}
	return nil
}

func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.all)
}

func (h *Hub) TopicCount(topic string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.topics[topic])
}

// Handler upgrades /ws requests and pumps messages between the socket and
// the hub.
type Handler struct {
	hub      *Hub
	upgrader gorillawebsocket.Upgrader
}

func NewHandler(hub *Hub, allowedOrigins []string) *Handler {
	allowed := make(map[string]struct{}, len(allowedOrigins))
	for _, o := range allowedOrigins {
		allowed[o] = struct{}{}
	}
	return &Handler{
		hub: hub,
		upgrader: gorillawebsocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				if origin == "" {
					return true
				}
				_, ok := allowed[origin]
				return ok
			},
		},
	}
}

func (wsh *Handler) RegisterRoutes(g *echo.Group) {
	g.GET("/ws", wsh.HandleConnect)
}

// HandleConnect subscribes the new client to the all-records topic. Role
// checks happen in the route's middleware.
func (wsh *Handler) HandleConnect(c echo.Context) error {
	ws, err := wsh.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return err
	}

	identity, _ := auth.IdentityFromContext(c.Request().Context())
	userID := identity.UserID
	client := &Client{
		ID:     uuid.New().String(),
		UserID: userID,
		Admin:  identity.HasRole(auth.RoleAdmin),
		Topics: []string{TopicRecords},
		Send:   make(chan []byte, 64),
	}
	wsh.hub.Register(client)
	wsh.hub.logger.Debug().Str("client_id", client.ID).Str("user_id", userID).Msg("dashboard connected")

	go wsh.writePump(client, ws)
	go wsh.readPump(client, ws)
	return nil
}

func (wsh *Handler) readPump(client *Client, ws *gorillawebsocket.Conn) {
	defer func() {
		wsh.hub.Unregister(client)
		ws.Close()
	}()

	for {
		_, message, err := ws.ReadMessage()
		if err != nil {
			return
		}
		var msg ClientMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			continue
		}
		wsh.hub.ProcessMessage(client, msg)
	}
}

func (wsh *Handler) writePump(client *Client, ws *gorillawebsocket.Conn) {
	defer ws.Close()

	for message := range client.Send {
		if err := ws.WriteMessage(gorillawebsocket.TextMessage, message); err != nil {
			return
		}
	}
}
