// Package monitor serves a WebSocket endpoint that streams the driver's
// URC traffic as JSON envelopes, adapted from the teacher's cloud client
// message envelope (internal/cloud/client.go's Message type) but
// inverted into a server role: dashboards connect in rather than the
// device dialing out to a cloud endpoint.
package monitor

import (
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	lorae5 "github.com/agsys/lora-e5-driver"
)

// EventType mirrors the teacher's MessageType naming convention.
type EventType string

const (
	EventJoin             EventType = "join"
	EventSendProgress     EventType = "send_progress"
	EventDownlinkPayload  EventType = "downlink_payload"
	EventDownlinkQuality  EventType = "downlink_quality"
	EventDownlinkDone     EventType = "downlink_done"
	EventFramePending     EventType = "frame_pending"
)

// Envelope is the JSON frame pushed to every connected client.
type Envelope struct {
	Type      EventType       `json:"type"`
	Timestamp int64           `json:"timestamp"`
	Payload   json.RawMessage `json:"payload"`
}

// Config holds the monitor's tunables.
type Config struct {
	WriteTimeout time.Duration
	PingInterval time.Duration
}

// DefaultConfig matches the teacher's cloud client timing.
func DefaultConfig() Config {
	return Config{WriteTimeout: 10 * time.Second, PingInterval: 30 * time.Second}
}

// Monitor fans out bus events to every connected WebSocket client.
type Monitor struct {
	cfg      Config
	upgrader websocket.Upgrader

	mu      sync.Mutex
	clients map[*websocket.Conn]chan Envelope
}

// New builds a Monitor; call ServeHTTP from an http.Server and Run to
// start draining the bus.
func New(cfg Config) *Monitor {
	return &Monitor{
		cfg:      cfg,
		upgrader: websocket.Upgrader{ReadBufferSize: 1024, WriteBufferSize: 1024},
		clients:  make(map[*websocket.Conn]chan Envelope),
	}
}

// ServeHTTP upgrades the request to a WebSocket and registers the
// connection as a broadcast target until it disconnects.
func (m *Monitor) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := m.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("monitor: upgrade failed: %v", err)
		return
	}

	out := make(chan Envelope, 32)
	m.mu.Lock()
	m.clients[conn] = out
	m.mu.Unlock()

	defer func() {
		m.mu.Lock()
		delete(m.clients, conn)
		m.mu.Unlock()
		conn.Close()
	}()

	for env := range out {
		conn.SetWriteDeadline(time.Now().Add(m.cfg.WriteTimeout))
		if err := conn.WriteJSON(env); err != nil {
			return
		}
	}
}

// Run drains bus.Events() until ctx.Done (via the passed channel) and
// broadcasts every URC to all connected clients.
func (m *Monitor) Run(stop <-chan struct{}, bus *lorae5.Bus) {
	for {
		select {
		case <-stop:
			return
		case ev, ok := <-bus.Events():
			if !ok {
				return
			}
			m.broadcast(describe(ev))
		}
	}
}

func (m *Monitor) broadcast(env Envelope) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for conn, ch := range m.clients {
		select {
		case ch <- env:
		default:
			log.Printf("monitor: dropping event for slow client %s", conn.RemoteAddr())
		}
	}
}

func describe(ev lorae5.UrcEvent) Envelope {
	now := time.Now().UnixMilli()
	var typ EventType
	var payload any

	switch v := ev.(type) {
	case lorae5.JoinEvent:
		typ, payload = EventJoin, v
	case lorae5.SendProgressEvent:
		typ, payload = EventSendProgress, v
	case lorae5.DownlinkPayloadEvent:
		typ, payload = EventDownlinkPayload, map[string]any{
			"port": v.Payload.Port, "length": v.Payload.Length,
		}
	case lorae5.DownlinkQualityEvent:
		typ, payload = EventDownlinkQuality, v.Quality
	case lorae5.DownlinkDoneEvent:
		typ, payload = EventDownlinkDone, struct{}{}
	case lorae5.DownlinkFramePendingEvent:
		typ, payload = EventFramePending, struct{}{}
	default:
		typ, payload = "unknown", struct{}{}
	}

	body, _ := json.Marshal(payload)
	return Envelope{Type: typ, Timestamp: now, Payload: body}
}
