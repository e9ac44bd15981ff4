package web

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/dbehnke/fecsim/pkg/logger"
	"github.com/dbehnke/fecsim/pkg/sweep"
	"github.com/gorilla/websocket"
)

// Event types pushed to dashboard clients
const (
	EventRunStarted     = "run_started"
	EventPointCompleted = "point_completed"
	EventRunFinished    = "run_finished"
)

// Event represents a WebSocket event to be broadcast to clients
type Event struct {
	Type      string                 `json:"type"`
	Timestamp time.Time              `json:"timestamp"`
	Data      map[string]interface{} `json:"data"`
}

// Marshal converts an event to JSON bytes
func (e *Event) Marshal() ([]byte, error) {
	return json.Marshal(e)
}

// Client represents a WebSocket client connection
type Client struct {
	ID       string
	conn     *websocket.Conn
	messages chan []byte
}

// WebSocketHub manages WebSocket client connections and broadcasts. It is
// also a sweep sink, so a runner can stream progress straight to browsers.
type WebSocketHub struct {
	clients    map[*Client]bool
	broadcast  chan Event
	register   chan *Client
	unregister chan *Client
	done       chan struct{}
	logger     *logger.Logger
	mu         sync.RWMutex
}

// NewWebSocketHub creates a new WebSocket hub
func NewWebSocketHub(log *logger.Logger) *WebSocketHub {
	return &WebSocketHub{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan Event, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
		logger:     log.WithComponent("web.ws"),
	}
}

// Run starts the WebSocket hub event loop
func (h *WebSocketHub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			h.mu.Unlock()
			h.logger.Debug("WebSocket client registered",
				logger.String("client_id", client.ID))

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.messages)
			}
			h.mu.Unlock()
			h.logger.Debug("WebSocket client unregistered",
				logger.String("client_id", client.ID))

		case event := <-h.broadcast:
			data, err := event.Marshal()
			if err != nil {
				h.logger.Error("Failed to marshal event",
					logger.Error(err))
				continue
			}

			h.mu.RLock()
			for client := range h.clients {
				select {
				case client.messages <- data:
				default:
					// Client buffer full, skip
					h.logger.Warn("Client message buffer full, skipping",
						logger.String("client_id", client.ID))
				}
			}
			h.mu.RUnlock()

		case <-ctx.Done():
			h.logger.Info("WebSocket hub shutting down")
			h.mu.Lock()
			for client := range h.clients {
				close(client.messages)
			}
			h.clients = make(map[*Client]bool)
			h.mu.Unlock()
			return
		}
	}
}

// Broadcast sends an event to all connected clients
func (h *WebSocketHub) Broadcast(event Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	select {
	case h.broadcast <- event:
	default:
		h.logger.Warn("Broadcast channel full, dropping event",
			logger.String("event_type", event.Type))
	}
}

// Handler returns an HTTP handler for WebSocket connections
func (h *WebSocketHub) Handler() http.Handler {
	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     func(r *http.Request) bool { return true },
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			// Upgrade has already written the error response
			return
		}
		client := &Client{ID: r.RemoteAddr, conn: conn, messages: make(chan []byte, 256)}

		select {
		case h.register <- client:
		case <-h.done:
			_ = conn.Close()
			return
		}

		// Reader goroutine: drain read to detect close
		go func() {
			defer func() {
				select {
				case h.unregister <- client:
				case <-h.done:
				}
				_ = client.conn.Close()
			}()
			client.conn.SetReadLimit(1024)
			for {
				if _, _, err := client.conn.ReadMessage(); err != nil {
					return
				}
			}
		}()

		// Writer loop
		go func() {
			for msg := range client.messages {
				_ = client.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
				if err := client.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
					return
				}
			}
		}()
	})
}

// GetClientCount returns the number of connected clients
func (h *WebSocketHub) GetClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// RunStarted broadcasts a sweep start
func (h *WebSocketHub) RunStarted(_ context.Context, res *sweep.Result) error {
	h.Broadcast(Event{
		Type:      EventRunStarted,
		Timestamp: res.StartedAt,
		Data: map[string]interface{}{
			"run_id":      res.RunID,
			"modulations": modulationNames(res.Config),
			"ebn0_start":  res.Config.EbN0Start,
			"ebn0_stop":   res.Config.EbN0Stop,
			"ebn0_step":   res.Config.EbN0Step,
			"info_bits":   res.Config.InfoBits,
			"trials":      res.Config.Trials,
		},
	})
	return nil
}

// PointCompleted broadcasts one finished point
func (h *WebSocketHub) PointCompleted(_ context.Context, p sweep.Point) error {
	h.Broadcast(Event{
		Type:      EventPointCompleted,
		Timestamp: time.Now(),
		Data: map[string]interface{}{
			"run_id":     p.RunID,
			"modulation": p.Modulation.String(),
			"ebn0_db":    p.EbN0dB,
			"coded":      p.Coded,
			"bits":       p.Bits,
			"errors":     p.Errors,
			"ber":        p.BER,
			"theory_ber": p.TheoryBER,
		},
	})
	return nil
}

// RunFinished broadcasts a sweep end
func (h *WebSocketHub) RunFinished(_ context.Context, res *sweep.Result) error {
	h.Broadcast(Event{
		Type:      EventRunFinished,
		Timestamp: res.FinishedAt,
		Data: map[string]interface{}{
			"run_id": res.RunID,
			"status": res.Status,
			"points": len(res.Points),
		},
	})
	return nil
}

func modulationNames(cfg sweep.Config) []string {
	names := make([]string, len(cfg.Modulations))
	for i, m := range cfg.Modulations {
		names[i] = m.String()
	}
	return names
}
