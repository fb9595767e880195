package hub

import (
	"chatcord-backend/internal/apperr"
	"chatcord-backend/internal/metrics"
	"context"
	"errors"
	"time"

	"github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"
	gobreaker "github.com/sony/gobreaker/v2"
	"go.uber.org/zap"
)

// Publisher hands an event to every subscriber of its topic, on this process
// and, depending on the broker, on others. Delivery is at most once.
type Publisher interface {
	Publish(ctx context.Context, ev Event) error
}

// LocalBroker delivers straight into the registry. Used in self-contained
// mode where only one process serves clients.
type LocalBroker struct {
	registry *Registry
}

func NewLocalBroker(registry *Registry) *LocalBroker {
	return &LocalBroker{registry: registry}
}

func (b *LocalBroker) Publish(ctx context.Context, ev Event) error {
	b.registry.Deliver(ev)
	return nil
}

// topic patterns relayed from redis
var relayPatterns = []string{"channel:*", "conversation:*", "server:*"}

// RedisBroker publishes through redis pub/sub so every process sees every
// event. Its Serve method is the relay that feeds redis messages back into
// the local registry and has to run under a supervisor.
type RedisBroker struct {
	client   *redis.Client
	registry *Registry
	breaker  *gobreaker.CircuitBreaker[struct{}]
	sugar    *zap.SugaredLogger
}

const breakerName = "redis-publish"

func NewRedisBroker(client *redis.Client, registry *Registry, sugar *zap.SugaredLogger) *RedisBroker {
	metrics.BreakerState.WithLabelValues(breakerName).Set(0)

	breaker := gobreaker.NewCircuitBreaker[struct{}](gobreaker.Settings{
		Name:        breakerName,
		MaxRequests: 3,
		Interval:    time.Minute,
		Timeout:     15 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			sugar.Warnw("Circuit breaker changed state", "name", name, "from", from.String(), "to", to.String())
			metrics.BreakerState.WithLabelValues(name).Set(float64(to))
		},
	})

	return &RedisBroker{
		client:   client,
		registry: registry,
		breaker:  breaker,
		sugar:    sugar,
	}
}

// Publish fails fast while redis is unreachable. A lost live push is
// acceptable since clients reconcile through history.
func (b *RedisBroker) Publish(ctx context.Context, ev Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return apperr.New(apperr.Internal, "hub.Publish", err)
	}

	_, err = b.breaker.Execute(func() (struct{}, error) {
		return struct{}{}, b.client.Publish(ctx, ev.Topic, payload).Err()
	})
	if err != nil {
		metrics.PublishErrors.WithLabelValues("redis").Inc()
		return apperr.New(apperr.Transient, "hub.Publish", err)
	}
	return nil
}

// Serve implements suture.Service.
func (b *RedisBroker) Serve(ctx context.Context) error {
	pubsub := b.client.PSubscribe(ctx, relayPatterns...)
	defer pubsub.Close()

	// wait for the subscription to be confirmed so failures restart the relay
	if _, err := pubsub.Receive(ctx); err != nil {
		return err
	}

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return errors.New("redis relay channel closed")
			}

			var ev Event
			if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
				b.sugar.Errorw("Couldn't decode relayed event", "channel", msg.Channel, "error", err)
				continue
			}
			b.registry.Deliver(ev)
		}
	}
}

func (b *RedisBroker) String() string {
	return "redis-relay"
}
