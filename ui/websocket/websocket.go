package websocket

import (
	"context"
	"encoding/json"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/sirupsen/logrus"
)

const broadcastTopic = "ws_broadcast"

// Conn is the part of a websocket connection the hub writes to.
type Conn interface {
	WriteMessage(messageType int, data []byte) error
	Close() error
}

// Bus fans events out to the other server instances. *valkey.Client implements it.
type Bus interface {
	Publish(ctx context.Context, channel, message string) error
	Subscribe(ctx context.Context, channel string, fn func(message string)) error
}

type BroadcastMessage struct {
	Event     string `json:"event"`
	CompanyID string `json:"company_id"`
	Payload   any    `json:"payload"`
	SenderID  string `json:"sender_id,omitempty"`
}

type registration struct {
	conn      Conn
	companyID string
}

// Hub delivers company events to the websocket clients of that company.
type Hub struct {
	clients    map[Conn]string
	register   chan registration
	unregister chan Conn
	broadcast  chan BroadcastMessage
	remote     chan BroadcastMessage
	done       chan struct{}

	bus      Bus
	serverID string
}

// NewHub builds a hub. bus may be nil for a single instance deployment.
func NewHub(bus Bus, serverID string) *Hub {
	return &Hub{
		clients:    make(map[Conn]string),
		register:   make(chan registration),
		unregister: make(chan Conn),
		broadcast:  make(chan BroadcastMessage, 256),
		remote:     make(chan BroadcastMessage, 256),
		done:       make(chan struct{}),
		bus:        bus,
		serverID:   serverID,
	}
}

// EmitToCompany queues an event. It never blocks: a full queue drops the event.
func (h *Hub) EmitToCompany(companyID, event string, payload any) {
	msg := BroadcastMessage{Event: event, CompanyID: companyID, Payload: payload}
	select {
	case h.broadcast <- msg:
	default:
		logrus.WithFields(logrus.Fields{"company_id": companyID, "event": event}).Warn("[WS] Broadcast queue full, event dropped")
	}
}

func (h *Hub) Register(conn Conn, companyID string) {
	select {
	case h.register <- registration{conn: conn, companyID: companyID}:
	case <-h.done:
	}
}

func (h *Hub) Unregister(conn Conn) {
	select {
	case h.unregister <- conn:
	case <-h.done:
	}
}

// Run owns the client set until ctx is done. It must be called once.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	if h.bus != nil {
		go h.subscribe(ctx)
	}

	for {
		select {
		case <-ctx.Done():
			for conn := range h.clients {
				h.closeConnection(conn)
			}
			return

		case r := <-h.register:
			h.clients[r.conn] = r.companyID
			logrus.WithField("company_id", r.companyID).Debug("[WS] Connection registered")

		case conn := <-h.unregister:
			delete(h.clients, conn)
			logrus.Debug("[WS] Connection unregistered")

		case msg := <-h.broadcast:
			h.deliver(msg)
			if h.bus != nil {
				h.publish(ctx, msg)
			}

		case msg := <-h.remote:
			h.deliver(msg)
		}
	}
}

func (h *Hub) deliver(msg BroadcastMessage) {
	msg.SenderID = ""
	data, err := json.Marshal(msg)
	if err != nil {
		logrus.Errorf("[WS] Marshal error: %v", err)
		return
	}

	for conn, companyID := range h.clients {
		if companyID != msg.CompanyID {
			continue
		}
		if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
			logrus.Errorf("[WS] Write error: %v", err)
			h.closeConnection(conn)
		}
	}
}

func (h *Hub) publish(ctx context.Context, msg BroadcastMessage) {
	msg.SenderID = h.serverID
	data, err := json.Marshal(msg)
	if err != nil {
		return
	}
	if err := h.bus.Publish(ctx, broadcastTopic, string(data)); err != nil {
		logrus.Errorf("[WS] Failed to publish to Valkey: %v", err)
	}
}

func (h *Hub) subscribe(ctx context.Context) {
	logrus.Info("[WS] Starting Valkey Pub/Sub subscriber for distributed events")
	err := h.bus.Subscribe(ctx, broadcastTopic, func(raw string) {
		var msg BroadcastMessage
		if err := json.Unmarshal([]byte(raw), &msg); err != nil {
			return
		}
		// our own publish coming back
		if msg.SenderID == h.serverID {
			return
		}
		select {
		case h.remote <- msg:
		case <-ctx.Done():
		}
	})
	if err != nil && ctx.Err() == nil {
		logrus.Errorf("[WS] Valkey subscriber failed: %v", err)
	}
}

func (h *Hub) closeConnection(conn Conn) {
	_ = conn.WriteMessage(websocket.CloseMessage, []byte{})
	_ = conn.Close()
	delete(h.clients, conn)
}

// RegisterRoutes mounts /ws. Clients pick their company with ?company_id=.
func RegisterRoutes(app fiber.Router, hub *Hub) {
	app.Use("/ws", func(c *fiber.Ctx) error {
		if !websocket.IsWebSocketUpgrade(c) {
			return c.SendStatus(fiber.StatusUpgradeRequired)
		}
		companyID := c.Query("company_id")
		if companyID == "" {
			return c.Status(fiber.StatusBadRequest).SendString("company_id is required")
		}
		c.Locals("company_id", companyID)
		return c.Next()
	})

	app.Get("/ws", websocket.New(func(conn *websocket.Conn) {
		companyID, _ := conn.Locals("company_id").(string)
		hub.Register(conn, companyID)
		defer hub.Unregister(conn)

		// Clients only listen; reading keeps control frames flowing.
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
					logrus.Debugf("[WS] read error: %v", err)
				}
				return
			}
		}
	}))
}
