package ws

import (
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// RunFunc triggers one forecast run for the given day. The handler calls it
// from the connection's read loop; implementations own their own
// synchronization and event broadcasting.
type RunFunc func(day time.Time)

// Handler manages WebSocket connections and routes run requests.
type Handler struct {
	hub *Hub
	run RunFunc
}

func NewHandler(hub *Hub, run RunFunc) *Handler {
	return &Handler{hub: hub, run: run}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("WebSocket upgrade error: %v", err)
		return
	}

	client := &Client{
		hub:  h.hub,
		conn: conn,
		send: make(chan []byte, 256),
	}

	h.hub.Register(client)
	go client.writePump()
	h.readPump(client)
}

func (h *Handler) readPump(c *Client) {
	defer func() {
		h.hub.Unregister(c)
		c.conn.Close()
	}()

	for {
		_, msg, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("WebSocket read error: %v", err)
			}
			return
		}
		h.handleMessage(msg)
	}
}

func (h *Handler) handleMessage(msg []byte) {
	var env Envelope
	if err := json.Unmarshal(msg, &env); err != nil {
		log.Printf("Invalid message: %v", err)
		return
	}

	switch env.Type {
	case TypeRunStart:
		var p RunStartPayload
		if len(env.Payload) > 0 {
			if err := json.Unmarshal(env.Payload, &p); err != nil {
				log.Printf("Invalid run:start payload: %v", err)
				return
			}
		}
		day := time.Now()
		if p.Date != "" {
			parsed, err := time.Parse("2006-01-02", p.Date)
			if err != nil {
				log.Printf("Invalid run date %q: %v", p.Date, err)
				return
			}
			day = parsed
		}
		if h.run != nil {
			go h.run(day)
		}

	default:
		log.Printf("Unknown message type: %s", env.Type)
	}
}
