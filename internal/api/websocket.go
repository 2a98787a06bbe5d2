package api

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nerrad567/solar-control-core/internal/infrastructure/config"
	"github.com/nerrad567/solar-control-core/internal/infrastructure/logging"
	"github.com/nerrad567/solar-control-core/internal/notify"
)

// Control messages an observer may exchange with the hub. Core events go
// out as plain notify.Event JSON.
const (
	msgPing  = "ping"
	msgPong  = "pong"
	msgError = "error"
)

const (
	observerQueue = 256

	defaultMaxMessage   = 8192
	defaultPingInterval = 30 * time.Second
	defaultPongTimeout  = 10 * time.Second
)

type controlMessage struct {
	Type    string `json:"type"`
	Message string `json:"message,omitempty"`
}

// ObserverGauge receives the connected observer count. *metrics.Metrics
// satisfies it.
type ObserverGauge interface {
	ObserversConnected(n int)
}

// Hub is the notify.Notifier behind /ws. Every event is encoded once and
// queued to each connected observer; an observer whose queue is full
// misses that event.
type Hub struct {
	logger *logging.Logger

	readLimit    int64
	pingInterval time.Duration
	pongTimeout  time.Duration

	mu        sync.RWMutex
	observers map[*observer]struct{}
	gauge     ObserverGauge
}

// observer is one WebSocket connection. send is never closed; done is
// closed once when the observer leaves, which makes its writer send a
// close frame and drop the connection.
type observer struct {
	conn *websocket.Conn
	send chan []byte
	done chan struct{}
	once sync.Once
}

func newObserver(conn *websocket.Conn, queue int) *observer {
	return &observer{conn: conn, send: make(chan []byte, queue), done: make(chan struct{})}
}

// leave marks the observer gone. Idempotent.
func (o *observer) leave() {
	o.once.Do(func() { close(o.done) })
}

// offer queues data without blocking. Returns false if it was dropped.
func (o *observer) offer(data []byte) bool {
	select {
	case <-o.done:
		return false
	default:
	}
	select {
	case o.send <- data:
		return true
	default:
		return false
	}
}

func (o *observer) reply(msg controlMessage) {
	if data, err := json.Marshal(msg); err == nil {
		o.offer(data)
	}
}

// Browsers connect from the dashboard origin; CORS middleware already
// restricts which origins reach this handler.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// NewHub applies cfg, falling back to 8 KiB messages, a 30 s ping and a
// 10 s pong timeout for zero fields.
func NewHub(cfg config.WebSocketConfig, logger *logging.Logger) *Hub {
	h := &Hub{
		logger:       logger,
		readLimit:    defaultMaxMessage,
		pingInterval: defaultPingInterval,
		pongTimeout:  defaultPongTimeout,
		observers:    make(map[*observer]struct{}),
	}
	if cfg.MaxMessageSize > 0 {
		h.readLimit = int64(cfg.MaxMessageSize)
	}
	if cfg.PingInterval > 0 {
		h.pingInterval = time.Duration(cfg.PingInterval) * time.Second
	}
	if cfg.PongTimeout > 0 {
		h.pongTimeout = time.Duration(cfg.PongTimeout) * time.Second
	}
	return h
}

// SetGauge reports the observer count to g from now on.
func (h *Hub) SetGauge(g ObserverGauge) {
	h.mu.Lock()
	h.gauge = g
	h.mu.Unlock()
}

// Run waits for ctx and then disconnects every observer.
func (h *Hub) Run(ctx context.Context) {
	<-ctx.Done()

	h.mu.Lock()
	gone := h.observers
	h.observers = make(map[*observer]struct{})
	h.report(0)
	h.mu.Unlock()

	for o := range gone {
		o.leave()
	}
}

func (h *Hub) add(o *observer) {
	h.mu.Lock()
	h.observers[o] = struct{}{}
	n := len(h.observers)
	h.report(n)
	h.mu.Unlock()
	h.logger.Debug("websocket observer connected", "observers", n)
}

func (h *Hub) remove(o *observer) {
	h.mu.Lock()
	_, present := h.observers[o]
	delete(h.observers, o)
	n := len(h.observers)
	if present {
		h.report(n)
	}
	h.mu.Unlock()

	o.leave()
	if present {
		h.logger.Debug("websocket observer disconnected", "observers", n)
	}
}

// report must be called with h.mu held.
func (h *Hub) report(n int) {
	if h.gauge != nil {
		h.gauge.ObserversConnected(n)
	}
}

// Notify implements notify.Notifier.
func (h *Hub) Notify(e notify.Event) {
	data, err := json.Marshal(e)
	if err != nil {
		h.logger.Error("failed to marshal event", "type", e.Type, "error", err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for o := range h.observers {
		o.offer(data)
	}
}

// ClientCount is the number of connected observers.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.observers)
}

// handleWebSocket upgrades GET /ws and starts the observer's reader and
// writer.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	if s.hub == nil {
		writeUnavailable(w, "websocket hub not running")
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("websocket upgrade failed", "error", err)
		return
	}

	o := newObserver(conn, observerQueue)
	s.hub.add(o)
	go s.hub.write(o)
	go s.hub.read(o)
}

// read consumes client frames until the connection fails. Any frame, not
// only a pong, extends the deadline.
func (h *Hub) read(o *observer) {
	defer h.remove(o)

	window := h.pingInterval + h.pongTimeout
	extend := func() error { return o.conn.SetReadDeadline(time.Now().Add(window)) }

	o.conn.SetReadLimit(h.readLimit)
	_ = extend() //nolint:errcheck // a dead conn fails the first read
	o.conn.SetPongHandler(func(string) error { return extend() })

	for {
		_, data, err := o.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Warn("websocket read error", "error", err)
			}
			return
		}
		_ = extend() //nolint:errcheck // checked on the next read
		o.handle(data)
	}
}

// handle answers a control message. Observers only listen, so ping is
// the only request.
func (o *observer) handle(data []byte) {
	var msg controlMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		o.reply(controlMessage{Type: msgError, Message: "invalid JSON message"})
		return
	}
	if msg.Type != msgPing {
		o.reply(controlMessage{Type: msgError, Message: "unknown message type: " + msg.Type})
		return
	}
	o.reply(controlMessage{Type: msgPong})
}

// write drains the queue and pings on pingInterval until the observer
// leaves or a write fails. Closing the connection ends read as well.
func (h *Hub) write(o *observer) {
	ticker := time.NewTicker(h.pingInterval)
	defer ticker.Stop()
	defer o.conn.Close()

	send := func(kind int, data []byte) error {
		_ = o.conn.SetWriteDeadline(time.Now().Add(h.pongTimeout)) //nolint:errcheck // write reports it
		return o.conn.WriteMessage(kind, data)
	}

	for {
		select {
		case <-o.done:
			_ = send(websocket.CloseMessage, nil) //nolint:errcheck // closing anyway
			return
		case data := <-o.send:
			if err := send(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			if err := send(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
