package api

import (
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	// MaxWSConnectionsTotal is the maximum number of WebSocket connections allowed
	MaxWSConnectionsTotal = 500

	// MaxWSConnectionsPerIP is the maximum WebSocket connections per IP
	MaxWSConnectionsPerIP = 10

	// StateEvent is the event name of the periodic session broadcast.
	StateEvent = "session:state"

	writeWait = 2 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin: func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if IsAllowedOrigin(origin) {
			return true
		}
		log.Printf("⚠️ WebSocket connection rejected from origin: %s", origin)
		RecordConnectionRejected("origin")
		return false
	},
}

// wsClient tracks a WebSocket connection with its source IP
type wsClient struct {
	conn *websocket.Conn
	ip   string
}

// wsMessage is the envelope of every message sent to clients.
type wsMessage struct {
	Event string      `json:"event"`
	Data  interface{} `json:"data"`
}

// WebSocketHub fans session snapshots out to connected clients.
type WebSocketHub struct {
	clients    map[*websocket.Conn]*wsClient
	broadcast  chan []byte
	register   chan *wsClient
	unregister chan *websocket.Conn
	stopChan   chan struct{}
	stopOnce   sync.Once
	mu         sync.RWMutex

	wsLimiter *WebSocketRateLimiter
}

// NewWebSocketHub creates a new hub with connection limiting
func NewWebSocketHub() *WebSocketHub {
	return &WebSocketHub{
		clients:    make(map[*websocket.Conn]*wsClient),
		broadcast:  make(chan []byte, 256),
		register:   make(chan *wsClient),
		unregister: make(chan *websocket.Conn),
		stopChan:   make(chan struct{}),
		wsLimiter:  NewWebSocketRateLimiter(MaxWSConnectionsPerIP),
	}
}

// Run serves registrations and broadcasts until Stop.
func (h *WebSocketHub) Run() {
	for {
		select {
		case <-h.stopChan:
			h.mu.Lock()
			for conn, client := range h.clients {
				h.wsLimiter.Release(client.ip)
				conn.Close()
				delete(h.clients, conn)
			}
			h.mu.Unlock()
			UpdateWSConnections(0)
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client.conn] = client
			count := len(h.clients)
			h.mu.Unlock()

			log.Printf("📱 Client connected from %s (%d total)", client.ip, count)
			UpdateWSConnections(count)

		case conn := <-h.unregister:
			h.drop(conn)
			count := h.ClientCount()
			log.Printf("📱 Client disconnected (%d remaining)", count)
			UpdateWSConnections(count)

		case message := <-h.broadcast:
			h.mu.RLock()
			var failed []*websocket.Conn
			for conn := range h.clients {
				conn.SetWriteDeadline(time.Now().Add(writeWait))
				if err := conn.WriteMessage(websocket.TextMessage, message); err != nil {
					failed = append(failed, conn)
				}
			}
			h.mu.RUnlock()

			for _, conn := range failed {
				h.drop(conn)
			}
			if len(failed) > 0 {
				UpdateWSConnections(h.ClientCount())
			}
			IncrementWSMessages()
		}
	}
}

// drop closes conn and frees its IP slot. Safe to call twice.
func (h *WebSocketHub) drop(conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if client, ok := h.clients[conn]; ok {
		h.wsLimiter.Release(client.ip)
		delete(h.clients, conn)
		conn.Close()
	}
}

// Stop disconnects every client and ends Run and the broadcast loop.
func (h *WebSocketHub) Stop() {
	h.stopOnce.Do(func() { close(h.stopChan) })
}

// Broadcast queues a message for all clients. It is dropped when the queue
// is full.
func (h *WebSocketHub) Broadcast(event string, data interface{}) {
	jsonBytes, err := json.Marshal(wsMessage{Event: event, Data: data})
	if err != nil {
		log.Printf("⚠️ WebSocket broadcast %s not encodable: %v", event, err)
		return
	}

	select {
	case h.broadcast <- jsonBytes:
	default:
		// Channel full, skip (backpressure)
	}
}

// ClientCount returns the number of connected clients
func (h *WebSocketHub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// StartBroadcastLoop broadcasts the engine snapshot hz times per second,
// skipping ticks with no clients or no new snapshot.
func (h *WebSocketHub) StartBroadcastLoop(engine EngineInterface, hz int) {
	if hz <= 0 {
		hz = 10
	}
	ticker := time.NewTicker(time.Second / time.Duration(hz))

	go func() {
		defer ticker.Stop()
		var lastSeq uint64
		for {
			select {
			case <-h.stopChan:
				return
			case <-ticker.C:
				if h.ClientCount() == 0 {
					continue
				}
				snap := engine.GetSnapshot()
				if snap.Sequence == 0 || snap.Sequence == lastSeq {
					continue
				}
				lastSeq = snap.Sequence
				h.Broadcast(StateEvent, snap)
			}
		}
	}()
}

// HandleWebSocket handles incoming WebSocket connections with DoS protection
func (h *WebSocketHub) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	ip := GetClientIP(r)

	if total := h.ClientCount(); total >= MaxWSConnectionsTotal {
		log.Printf("⚠️ WebSocket connection rejected: total limit reached (%d)", total)
		RecordConnectionRejected("ws_total_limit")
		writeError(w, "Too many connections", http.StatusServiceUnavailable)
		return
	}

	if !h.wsLimiter.Allow(ip) {
		log.Printf("⚠️ WebSocket connection rejected from %s: per-IP limit reached", ip)
		RecordConnectionRejected("ws_ip_limit")
		writeError(w, "Too many connections from your IP", http.StatusTooManyRequests)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("⚠️ WebSocket upgrade error: %v", err)
		h.wsLimiter.Release(ip)
		return
	}

	select {
	case h.register <- &wsClient{conn: conn, ip: ip}:
	case <-h.stopChan:
		h.wsLimiter.Release(ip)
		conn.Close()
		return
	}

	// The feed is one-way. Reading only detects the disconnect.
	go func() {
		defer func() {
			select {
			case h.unregister <- conn:
			case <-h.stopChan:
			}
		}()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}
