package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/nats-io/nats.go"

	"github.com/Haleralex/jobboard/internal/application/ports"
)

// DefaultNATSSubject - subject NATS для уведомлений.
const DefaultNATSSubject = "jobboard.notifications"

// Compile-time checks
var (
	_ ports.Notifier = (*NATSNotifier)(nil)
	_ Relay          = (*NATSNotifier)(nil)
)

// NATSNotifier публикует уведомления в NATS core subject.
type NATSNotifier struct {
	conn    *nats.Conn
	subject string
	logger  *slog.Logger
}

// DialNATS подключается к NATS с переподключением без ограничения попыток.
// Недоступный при старте сервер не ошибка: соединение устанавливается в
// фоне, публикации до этого копятся в буфере переподключения.
func DialNATS(url string, log *slog.Logger) (*nats.Conn, error) {
	if log == nil {
		log = slog.Default()
	}
	conn, err := nats.Connect(url,
		nats.Name("jobboard"),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
		nats.ConnectHandler(func(c *nats.Conn) {
			log.Info("nats connected", "url", c.ConnectedUrl())
		}),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Warn("nats disconnected", "error", err)
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			log.Info("nats reconnected", "url", c.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}
	return conn, nil
}

// NewNATSNotifier создаёт notifier поверх установленного соединения.
func NewNATSNotifier(conn *nats.Conn, subject string, log *slog.Logger) *NATSNotifier {
	if subject == "" {
		subject = DefaultNATSSubject
	}
	if log == nil {
		log = slog.Default()
	}
	return &NATSNotifier{
		conn:    conn,
		subject: subject,
		logger:  log.With("component", "nats_notifier", "subject", subject),
	}
}

// Notify публикует уведомление. nats.Conn буферизует запись, поэтому
// ошибка означает только закрытое соединение или слишком большое сообщение.
func (n *NATSNotifier) Notify(_ context.Context, notification ports.Notification) error {
	data, err := json.Marshal(notification)
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}
	if err := n.conn.Publish(n.subject, data); err != nil {
		return fmt.Errorf("nats publish: %w", err)
	}
	return nil
}

// Relay подписывается на subject и передаёт сообщения в sink до отмены ctx.
func (n *NATSNotifier) Relay(ctx context.Context, sink func([]byte)) error {
	sub, err := n.conn.Subscribe(n.subject, func(msg *nats.Msg) {
		sink(msg.Data)
	})
	if err != nil {
		return fmt.Errorf("nats subscribe %s: %w", n.subject, err)
	}
	n.logger.Info("relaying notifications from nats")

	<-ctx.Done()
	if err := sub.Unsubscribe(); err != nil && n.conn.IsConnected() {
		n.logger.Warn("nats unsubscribe failed", "error", err)
	}
	return nil
}

// Close сбрасывает буфер и закрывает соединение.
func (n *NATSNotifier) Close() error {
	// без соединения сбрасывать нечего
	if !n.conn.IsConnected() {
		n.conn.Close()
		return nil
	}
	if err := n.conn.Drain(); err != nil {
		n.conn.Close()
		return err
	}
	return nil
}
