// Package realtime рассылает события хранилищ подключённым websocket-клиентам.
package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

const (
	sendBuffer      = 64
	broadcastBuffer = 256
	writeWait       = 10 * time.Second
	pongWait        = 60 * time.Second
	pingPeriod      = 30 * time.Second
	maxMessageSize  = 512

	// MessageInitialState приходит первым после подключения и несёт текущее состояние ленты.
	MessageInitialState = "initial_state"
)

var (
	// ErrHubStopped возвращается Publish после остановки hub.
	ErrHubStopped = errors.New("realtime hub is stopped")
	// ErrHubBusy возвращается Publish, когда очередь рассылки переполнена и событие отброшено.
	ErrHubBusy = errors.New("realtime hub broadcast queue is full")
)

// Message описывает кадр, который получает клиент.
type Message struct {
	Type          string    `json:"type"`
	Timestamp     time.Time `json:"timestamp"`
	AggregateType string    `json:"aggregate_type,omitempty"`
	AggregateID   int64     `json:"aggregate_id,omitempty"`
	Data          any       `json:"data,omitempty"`
}

// Config описывает ленту.
type Config struct {
	// Name используется в логах.
	Name string
	// Accept отбирает события ленты; nil пропускает все события.
	Accept func(domain.Event) bool
	// InitialState строит состояние, отправляемое новому клиенту.
	InitialState func(ctx context.Context) (any, error)
	// AllowedOrigins ограничивает Origin при upgrade; пустой список разрешает любой.
	AllowedOrigins []string
}

type client struct {
	conn *websocket.Conn
	send chan []byte
	hub  *Hub
}

// Hub держит подключения одной ленты и рассылает им события.
type Hub struct {
	cfg        Config
	upgrader   websocket.Upgrader
	clients    map[*client]struct{}
	broadcast  chan Message
	register   chan *client
	unregister chan *client
	done       chan struct{}
	stopOnce   sync.Once
	mu         sync.RWMutex
	logger     *log.Entry
}

// NewHub создаёт hub; рассылка начинается после Run.
func NewHub(cfg Config) *Hub {
	if cfg.Name == "" {
		cfg.Name = "feed"
	}
	h := &Hub{
		cfg:        cfg,
		clients:    make(map[*client]struct{}),
		broadcast:  make(chan Message, broadcastBuffer),
		register:   make(chan *client),
		unregister: make(chan *client),
		done:       make(chan struct{}),
		logger:     log.WithFields(log.Fields{"component": "realtime-hub", "feed": cfg.Name}),
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     h.checkOrigin,
	}
	return h
}

// Run обслуживает подключения до отмены ctx, затем закрывает всех клиентов.
func (h *Hub) Run(ctx context.Context) {
	defer h.stop()

	for {
		select {
		case <-ctx.Done():
			return

		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = struct{}{}
			h.mu.Unlock()
			h.logger.Debug("client connected")
			h.sendInitialState(ctx, c)

		case c := <-h.unregister:
			h.drop(c)
			h.logger.Debug("client disconnected")

		case msg := <-h.broadcast:
			data, err := json.Marshal(msg)
			if err != nil {
				h.logger.WithError(err).Warn("failed to encode feed message")
				continue
			}
			h.mu.Lock()
			for c := range h.clients {
				select {
				case c.send <- data:
				default:
					// Медленный клиент отключается, чтобы не задерживать остальных.
					close(c.send)
					delete(h.clients, c)
				}
			}
			h.mu.Unlock()
		}
	}
}

func (h *Hub) stop() {
	h.stopOnce.Do(func() {
		close(h.done)
		h.mu.Lock()
		for c := range h.clients {
			close(c.send)
			delete(h.clients, c)
		}
		h.mu.Unlock()
	})
}

func (h *Hub) drop(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; ok {
		close(c.send)
		delete(h.clients, c)
	}
}

// Clients возвращает число подключённых клиентов.
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Publish реализует domain.EventPublisher. Не блокируется: при переполненной очереди
// событие отбрасывается с ErrHubBusy.
func (h *Hub) Publish(_ context.Context, event domain.Event) error {
	if h.cfg.Accept != nil && !h.cfg.Accept(event) {
		return nil
	}
	msg := Message{
		Type:          string(event.Type),
		Timestamp:     event.OccurredAt,
		AggregateType: string(event.AggregateType),
		AggregateID:   event.AggregateID,
		Data:          event.Payload,
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now().UTC()
	}

	select {
	case <-h.done:
		return ErrHubStopped
	default:
	}
	select {
	case h.broadcast <- msg:
		return nil
	default:
		return ErrHubBusy
	}
}

// ServeHTTP выполняет websocket upgrade и подключает клиента к ленте.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.WithError(err).Warn("websocket upgrade failed")
		return
	}

	c := &client{conn: conn, send: make(chan []byte, sendBuffer), hub: h}
	select {
	case h.register <- c:
	case <-h.done:
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server is shutting down"),
			time.Now().Add(writeWait))
		_ = conn.Close()
		return
	}

	go c.writePump()
	go c.readPump()
}

func (h *Hub) sendInitialState(ctx context.Context, c *client) {
	if h.cfg.InitialState == nil {
		return
	}
	state, err := h.cfg.InitialState(ctx)
	if err != nil {
		h.logger.WithError(err).Warn("failed to build initial feed state")
		return
	}
	data, err := json.Marshal(Message{
		Type:      MessageInitialState,
		Timestamp: time.Now().UTC(),
		Data:      state,
	})
	if err != nil {
		h.logger.WithError(err).Warn("failed to encode initial feed state")
		return
	}
	select {
	case c.send <- data:
	default:
	}
}

func (h *Hub) checkOrigin(r *http.Request) bool {
	if len(h.cfg.AllowedOrigins) == 0 {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, allowed := range h.cfg.AllowedOrigins {
		if allowed == "*" || strings.EqualFold(strings.TrimSuffix(allowed, "/"), origin) {
			return true
		}
	}
	h.logger.WithField("origin", origin).Warn("rejected websocket from disallowed origin")
	return false
}

// readPump нужен только для control-кадров: лента односторонняя.
func (c *client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

var _ domain.EventPublisher = (*Hub)(nil)
