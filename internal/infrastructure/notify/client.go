package notify

import (
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	// writeWait - максимальное время записи одного сообщения.
	writeWait = 10 * time.Second
	// pongWait - сколько ждать pong от клиента.
	pongWait = 60 * time.Second
	// pingPeriod должен быть меньше pongWait.
	pingPeriod = (pongWait * 9) / 10
	// maxMessageSize - клиенты ничего не присылают, кроме control frames.
	maxMessageSize = 512
)

// Client - одно websocket-подключение к Hub.
type Client struct {
	ID   string
	conn *websocket.Conn
	send chan []byte
	hub  *Hub
}

// NewClient создаёт клиента для уже установленного соединения.
func NewClient(hub *Hub, conn *websocket.Conn) *Client {
	return &Client{
		ID:   uuid.NewString(),
		conn: conn,
		send: make(chan []byte, clientBuffer),
		hub:  hub,
	}
}

// Serve регистрирует клиента и обслуживает соединение до его закрытия.
// Блокируется, пока клиент не отключится или Hub не закроется.
func (c *Client) Serve() {
	c.hub.Register(c)
	go c.writePump()
	c.readPump()
}

// readPump читает входящие frames только ради ping/pong и обнаружения отключения.
func (c *Client) readPump() {
	defer func() {
		c.hub.Unregister(c)
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.logger.Debug("websocket read error", "client_id", c.ID, "error", err)
			}
			return
		}
	}
}

// writePump отправляет сообщения из очереди клиента и пингует соединение.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// Hub закрыл очередь
				_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, ""))
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
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
