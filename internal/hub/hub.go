package hub

import (
	"chatcord-backend/internal/metrics"
	"context"

	"go.uber.org/zap"
)

// Hub is what the rest of the application publishes events through and
// subscribes with.
type Hub struct {
	Registry  *Registry
	publisher Publisher
	sugar     *zap.SugaredLogger
}

func New(registry *Registry, publisher Publisher, sugar *zap.SugaredLogger) *Hub {
	return &Hub{
		Registry:  registry,
		publisher: publisher,
		sugar:     sugar,
	}
}

// Emit wraps data in an event of eventType and publishes it on topic.
func (h *Hub) Emit(ctx context.Context, eventType string, topic string, data any) error {
	ev, err := NewEvent(eventType, topic, data)
	if err != nil {
		return err
	}

	h.sugar.Debugf("Sending %s to those on topic %s", eventType, topic)

	if err := h.publisher.Publish(ctx, ev); err != nil {
		return err
	}
	metrics.MessagesPublished.WithLabelValues(eventType).Inc()
	return nil
}
