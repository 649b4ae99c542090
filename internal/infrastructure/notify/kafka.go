package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/Haleralex/jobboard/internal/application/dtos"
	"github.com/Haleralex/jobboard/internal/application/ports"
)

// DefaultKafkaTopic - топик экспорта событий.
const DefaultKafkaTopic = "application-events"

// Compile-time check
var _ ports.Notifier = (*KafkaNotifier)(nil)

// MessageWriter - часть kafka.Writer, используемая notifier.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaNotifier пишет уведомления в Kafka. Ключ сообщения - ID вакансии,
// чтобы события одной вакансии попадали в одну партицию.
type KafkaNotifier struct {
	writer MessageWriter
}

// NewKafkaWriter создаёт синхронный kafka.Writer.
func NewKafkaWriter(brokers []string, topic string) (*kafka.Writer, error) {
	if len(brokers) == 0 {
		return nil, errors.New("at least one Kafka broker address is required")
	}
	if topic == "" {
		topic = DefaultKafkaTopic
	}
	return &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		BatchTimeout:           10 * time.Millisecond,
		RequiredAcks:           kafka.RequireOne,
		AllowAutoTopicCreation: true,
	}, nil
}

// NewKafkaNotifier создаёт notifier.
func NewKafkaNotifier(writer MessageWriter) *KafkaNotifier {
	return &KafkaNotifier{writer: writer}
}

// Notify пишет одно сообщение.
func (k *KafkaNotifier) Notify(ctx context.Context, n ports.Notification) error {
	value, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}

	msg := kafka.Message{
		Key:   []byte(messageKey(n)),
		Value: value,
		Time:  n.OccurredAt,
		Headers: []kafka.Header{
			{Key: "type", Value: []byte(n.Type)},
		},
	}
	if err := k.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("kafka write: %w", err)
	}
	return nil
}

// Close закрывает writer.
func (k *KafkaNotifier) Close() error {
	return k.writer.Close()
}

// messageKey возвращает ID вакансии из payload, иначе тип уведомления.
func messageKey(n ports.Notification) string {
	switch p := n.Payload.(type) {
	case dtos.ApplicationDTO:
		return strconv.FormatInt(p.JobID, 10)
	case *dtos.ApplicationDTO:
		return strconv.FormatInt(p.JobID, 10)
	case dtos.JobDTO:
		return strconv.FormatInt(p.ID, 10)
	case *dtos.JobDTO:
		return strconv.FormatInt(p.ID, 10)
	default:
		return n.Type
	}
}
