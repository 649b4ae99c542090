// Package messaging адаптирует входящие сообщения брокера к use cases.
//
// Роль такая же, как у HTTP handlers: разобрать транспортный формат,
// вызвать use case, перевести результат в ответ транспорта (ack/drop/requeue).
package messaging

import (
	"context"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/Haleralex/jobboard/internal/application/usecases/application"
	"github.com/Haleralex/jobboard/internal/domain/errors"
	"github.com/Haleralex/jobboard/internal/domain/events"
	"github.com/Haleralex/jobboard/internal/infrastructure/messaging/rabbitmq"
	"github.com/Haleralex/jobboard/internal/pkg/logger"
)

// applicationsProcessedTotal counts handled ApplicationSubmitted messages by outcome
var applicationsProcessedTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "jobboard",
		Subsystem: "business",
		Name:      "applications_processed_total",
		Help:      "ApplicationSubmitted messages by outcome",
	},
	[]string{"outcome"},
)

// ApplicationAcceptor is the use case behind the handler.
type ApplicationAcceptor interface {
	Execute(ctx context.Context, event *events.ApplicationSubmitted) (application.Outcome, error)
	Wait()
}

// Compile-time checks
var (
	_ rabbitmq.Handler    = (*ApplicationHandler)(nil)
	_ rabbitmq.Drainer    = (*ApplicationHandler)(nil)
	_ ApplicationAcceptor = (*application.AcceptApplicationUseCase)(nil)
)

// ApplicationHandler decodes ApplicationSubmitted deliveries and decides
// their acknowledgement:
//
//	undecodable / invalid / unknown job -> Drop
//	duplicate / persisted               -> Ack
//	store failure                       -> Requeue
type ApplicationHandler struct {
	accept ApplicationAcceptor
	logger *slog.Logger
}

// NewApplicationHandler creates the handler.
func NewApplicationHandler(accept ApplicationAcceptor, log *slog.Logger) *ApplicationHandler {
	if log == nil {
		log = slog.Default()
	}
	return &ApplicationHandler{
		accept: accept,
		logger: log.With("component", "application_handler"),
	}
}

// Handle implements rabbitmq.Handler.
func (h *ApplicationHandler) Handle(ctx context.Context, env rabbitmq.Envelope) rabbitmq.Decision {
	event, err := events.DecodeApplicationSubmitted(env.Body)
	if err != nil {
		applicationsProcessedTotal.WithLabelValues("malformed").Inc()
		h.logger.WarnContext(ctx, "dropping malformed message",
			"delivery_tag", env.DeliveryTag,
			"content_type", env.ContentType,
			"body", logger.Truncate(string(env.Body), 500),
			"error", err,
		)
		return rabbitmq.Drop
	}

	if env.MessageID != "" && event.MessageID != "" && env.MessageID != event.MessageID {
		h.logger.DebugContext(ctx, "transport and body message ids differ",
			"transport_message_id", env.MessageID,
			"body_message_id", event.MessageID,
		)
	}

	ctx = logger.WithJobID(ctx, event.JobID)
	if logger.GetMessageID(ctx) == "" {
		ctx = logger.WithMessageID(ctx, event.MessageID)
	}

	outcome, err := h.accept.Execute(ctx, event)
	switch {
	case err == nil:
		applicationsProcessedTotal.WithLabelValues(string(outcome)).Inc()
		return rabbitmq.Ack

	case errors.IsMalformedEvent(err) || errors.IsValidationError(err):
		applicationsProcessedTotal.WithLabelValues("invalid").Inc()
		h.logger.WarnContext(ctx, "dropping invalid application", "error", err)
		return rabbitmq.Drop

	case errors.IsNotFound(err):
		applicationsProcessedTotal.WithLabelValues("unknown_job").Inc()
		h.logger.WarnContext(ctx, "dropping application for unknown job", "error", err)
		return rabbitmq.Drop

	default:
		applicationsProcessedTotal.WithLabelValues("requeued").Inc()
		h.logger.ErrorContext(ctx, "failed to persist application, requeueing",
			"redelivered", env.Redelivered,
			"error", err,
		)
		return rabbitmq.Requeue
	}
}

// Wait blocks until notifications started by the use case have finished.
func (h *ApplicationHandler) Wait() {
	h.accept.Wait()
}
