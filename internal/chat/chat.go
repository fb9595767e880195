// Package chat ties storage, authorization, history and live delivery
// together: the services behind the HTTP API and the session controller
// behind every websocket view.
package chat

import (
	"chatcord-backend/internal/apperr"
	"chatcord-backend/internal/metrics"
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
)

// Emitter publishes an event on a topic. *hub.Hub implements it.
type Emitter interface {
	Emit(ctx context.Context, eventType string, topic string, data any) error
}

// ref is the payload of events about something that no longer exists.
type ref struct {
	ID int64 `json:"id,string"`
}

// RetryPolicy bounds how transient failures are retried.
type RetryPolicy struct {
	MaxAttempts     int
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:     3,
		InitialInterval: 200 * time.Millisecond,
		MaxInterval:     2 * time.Second,
	}
}

// retry runs op until it succeeds, fails with anything but a Transient error,
// runs out of attempts or ctx is done.
func (p RetryPolicy) retry(ctx context.Context, sugar *zap.SugaredLogger, what string, op func() error) error {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	exponential := backoff.NewExponentialBackOff()
	exponential.InitialInterval = p.InitialInterval
	exponential.MaxInterval = p.MaxInterval
	exponential.MaxElapsedTime = 0

	policy := backoff.WithContext(backoff.WithMaxRetries(exponential, uint64(attempts-1)), ctx)

	return backoff.RetryNotify(func() error {
		err := op()
		if err != nil && !apperr.Is(err, apperr.Transient) {
			return backoff.Permanent(err)
		}
		return err
	}, policy, func(err error, wait time.Duration) {
		metrics.SessionRetries.Inc()
		sugar.Warnw("Retrying after transient failure", "operation", what, "wait", wait, "error", err)
	})
}

// emit publishes and only logs failures. The data is already stored by then,
// clients that miss the push catch up through history.
func emit(ctx context.Context, emitter Emitter, sugar *zap.SugaredLogger, eventType string, topic string, data any) {
	if err := emitter.Emit(ctx, eventType, topic, data); err != nil {
		sugar.Warnw("Couldn't publish event", "event", eventType, "topic", topic, "error", err)
	}
}
