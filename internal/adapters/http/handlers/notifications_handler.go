// Package handlers - Realtime notifications (websocket).
package handlers

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/Haleralex/jobboard/internal/infrastructure/notify"
)

// NotificationsHandler переводит HTTP-соединение в websocket и
// подписывает его на Hub.
type NotificationsHandler struct {
	hub      *notify.Hub
	upgrader websocket.Upgrader
	logger   *slog.Logger
}

// NewNotificationsHandler создаёт handler. Пустой allowedOrigins или "*"
// разрешает любой Origin.
func NewNotificationsHandler(hub *notify.Hub, allowedOrigins []string, logger *slog.Logger) *NotificationsHandler {
	if logger == nil {
		logger = slog.Default()
	}

	allowAll := len(allowedOrigins) == 0
	origins := make(map[string]bool, len(allowedOrigins))
	for _, o := range allowedOrigins {
		if o == "*" {
			allowAll = true
		}
		origins[o] = true
	}

	return &NotificationsHandler{
		hub:    hub,
		logger: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				return allowAll || origin == "" || origins[origin]
			},
		},
	}
}

// Subscribe обслуживает websocket до отключения клиента.
//
// @Summary Realtime notifications
// @Description Upgrades to websocket. Messages: {"type":"ApplicationCreated"|"JobCreated","payload":...}
// @Tags Notifications
// @Router /ws/notifications [get]
func (h *NotificationsHandler) Subscribe(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrader уже ответил клиенту
		h.logger.Debug("websocket upgrade failed", "error", err, "client_ip", c.ClientIP())
		return
	}

	client := notify.NewClient(h.hub, conn)
	h.logger.Debug("websocket client connected", "client_id", client.ID)
	client.Serve()
	h.logger.Debug("websocket client disconnected", "client_id", client.ID)
}

// RegisterRoutes регистрирует websocket endpoint.
func (h *NotificationsHandler) RegisterRoutes(router *gin.Engine) {
	router.GET("/ws/notifications", h.Subscribe)
}
