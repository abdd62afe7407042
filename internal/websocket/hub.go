package websocket

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/philipphutterer/metube/internal/models"
)

// Hub fans queue lifecycle events out to all connected websocket clients. It
// implements the queue's Notifier interface; every event becomes one JSON
// message {"event": name, "data": payload}.
type Hub struct {
	mu        sync.Mutex
	clients   map[*websocket.Conn]bool
	broadcast chan []byte
	upgrader  websocket.Upgrader
	snapshot  func() any
}

type message struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

// NewHub creates a hub. snapshot supplies the full queue state sent to every
// client right after it connects.
func NewHub(snapshot func() any) *Hub {
	return &Hub{
		clients:   make(map[*websocket.Conn]bool),
		broadcast: make(chan []byte, 16),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		snapshot: snapshot,
	}
}

func (h *Hub) Run() {
	for {
		msg := <-h.broadcast
		h.mu.Lock()
		for client := range h.clients {
			err := client.WriteMessage(websocket.TextMessage, msg)
			if err != nil {
				client.Close()
				delete(h.clients, client)
			}
		}
		h.mu.Unlock()
	}
}

func (h *Hub) emit(event string, data any) {
	msg, err := json.Marshal(message{Event: event, Data: data})
	if err != nil {
		slog.Error("Failed to marshal event", "event", event, "error", err)
		return
	}
	h.broadcast <- msg
}

func (h *Hub) Added(info *models.DownloadInfo)     { h.emit("added", info) }
func (h *Hub) Updated(info *models.DownloadInfo)   { h.emit("updated", info) }
func (h *Hub) Completed(info *models.DownloadInfo) { h.emit("completed", info) }
func (h *Hub) Canceled(id string)                  { h.emit("canceled", id) }
func (h *Hub) Cleared(id string)                   { h.emit("cleared", id) }

func (h *Hub) WsHandler(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("WebSocket upgrade failed", "error", err)
		return
	}

	slog.Info("Client connected", "remote_addr", r.RemoteAddr)

	// Initial state sync before the client sees any live events.
	if initial, err := json.Marshal(message{Event: "all", Data: h.snapshot()}); err == nil {
		conn.WriteMessage(websocket.TextMessage, initial)
	}

	h.mu.Lock()
	h.clients[conn] = true
	h.mu.Unlock()

	defer func() {
		h.mu.Lock()
		delete(h.clients, conn)
		h.mu.Unlock()
		conn.Close()
		slog.Info("Client disconnected")
	}()

	waitTimeout := 60 * time.Second
	for {
		conn.SetReadDeadline(time.Now().Add(waitTimeout))
		_, _, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				slog.Error("WS read error", "error", err)
			}
			break
		}
	}
}
