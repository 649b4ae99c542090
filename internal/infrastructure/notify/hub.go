package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/Haleralex/jobboard/internal/application/ports"
)

// clientBuffer - размер очереди исходящих сообщений одного клиента.
const clientBuffer = 64

// Compile-time check
var _ ports.Notifier = (*Hub)(nil)

// Hub хранит подключённых websocket-клиентов и рассылает им уведомления.
// Безопасен для конкурентного использования.
type Hub struct {
	logger *slog.Logger

	mu      sync.RWMutex
	clients map[string]*Client
	closed  bool
}

// NewHub создаёт пустой Hub.
func NewHub(log *slog.Logger) *Hub {
	if log == nil {
		log = slog.Default()
	}
	return &Hub{
		logger:  log.With("component", "notify_hub"),
		clients: make(map[string]*Client),
	}
}

// Notify кодирует уведомление в JSON и рассылает всем клиентам.
func (h *Hub) Notify(_ context.Context, n ports.Notification) error {
	data, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}
	h.Broadcast(data)
	return nil
}

// Broadcast рассылает уже закодированное сообщение.
// Медленный клиент теряет сообщение, остальные не блокируются.
func (h *Hub) Broadcast(data []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, c := range h.clients {
		select {
		case c.send <- data:
		default:
			h.logger.Warn("dropping notification for slow client", "client_id", c.ID)
		}
	}
}

// Register добавляет клиента. После Close клиент сразу отключается.
func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		close(c.send)
		return
	}
	h.clients[c.ID] = c
	h.logger.Debug("client registered", "client_id", c.ID, "clients", len(h.clients))
}

// Unregister удаляет клиента и закрывает его очередь.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.clients[c.ID]; ok {
		delete(h.clients, c.ID)
		close(c.send)
		h.logger.Debug("client unregistered", "client_id", c.ID, "clients", len(h.clients))
	}
}

// ClientCount возвращает число подключённых клиентов.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Close отключает всех клиентов. Повторный вызов ничего не делает.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return
	}
	h.closed = true
	for id, c := range h.clients {
		delete(h.clients, id)
		close(c.send)
	}
}
