package chat

import (
	"chatcord-backend/internal/apperr"
	"chatcord-backend/internal/authz"
	"chatcord-backend/internal/hub"
	"chatcord-backend/internal/models"
	"chatcord-backend/internal/pagination"
	"chatcord-backend/internal/store"
	"chatcord-backend/internal/store/storetest"
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fixture struct {
	store    store.Store
	gate     *authz.Gate
	registry *hub.Registry
	hub      *hub.Hub
	messages *MessageService
	servers  *ServerService
	profiles *ProfileService

	server  models.Server
	general models.Channel

	owner   models.Profile
	mod     models.Profile
	guest   models.Profile
	outside models.Profile

	ownerMember models.Member
	modMember   models.Member
	guestMember models.Member
}

func newFixture(t *testing.T, queueSize int) *fixture {
	t.Helper()

	sugar := zap.NewNop().Sugar()
	s := storetest.New(t)
	registry := hub.NewRegistry(queueSize)
	h := hub.New(registry, hub.NewLocalBroker(registry), sugar)
	gate := authz.New(s, sugar)

	f := &fixture{
		store:    s,
		gate:     gate,
		registry: registry,
		hub:      h,
		messages: NewMessageService(s, gate, h, sugar),
		servers:  NewServerService(s, gate, h, sugar),
		profiles: NewProfileService(s, sugar),
		owner:    storetest.Profile(t, s, "owner"),
		mod:      storetest.Profile(t, s, "mod"),
		guest:    storetest.Profile(t, s, "guest"),
		outside:  storetest.Profile(t, s, "outside"),
	}
	f.server, f.ownerMember, f.general = storetest.Server(t, s, f.owner, "S")
	f.modMember = storetest.Member(t, s, f.server.ID, f.mod, models.RoleModerator)
	f.guestMember = storetest.Member(t, s, f.server.ID, f.guest, models.RoleGuest)
	return f
}

func fastRetry() RetryPolicy {
	return RetryPolicy{MaxAttempts: 3, InitialInterval: time.Millisecond, MaxInterval: 5 * time.Millisecond}
}

func (f *fixture) sessionConfig(s store.Store) SessionConfig {
	if s == nil {
		s = f.store
	}
	return SessionConfig{
		Gate:     f.gate,
		Engine:   pagination.New(s),
		Messages: f.messages,
		Registry: f.registry,
		Retry:    fastRetry(),
		Sugar:    zap.NewNop().Sugar(),
	}
}

func (f *fixture) open(t *testing.T, cfg SessionConfig, profile models.Profile, scope models.Scope) (*Session, *recordingSink) {
	t.Helper()

	sink := &recordingSink{}
	session := OpenSession(context.Background(), cfg, profile.ID, scope, sink)
	t.Cleanup(session.Close)
	return session, sink
}

// recordingSink keeps every frame it is sent. While held, Send waits until
// released.
type recordingSink struct {
	mutex    sync.Mutex
	events   []hub.Event
	hold     chan struct{}
	inflight atomic.Int32
}

func (r *recordingSink) Send(ctx context.Context, ev hub.Event) error {
	r.mutex.Lock()
	hold := r.hold
	r.mutex.Unlock()

	if hold != nil {
		r.inflight.Add(1)
		select {
		case <-hold:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	r.mutex.Lock()
	r.events = append(r.events, ev)
	r.mutex.Unlock()
	return nil
}

func (r *recordingSink) SendFrame(ctx context.Context, frameType string, topic string, data any) error {
	ev, err := hub.NewEvent(frameType, topic, data)
	if err != nil {
		return err
	}
	return r.Send(ctx, ev)
}

func (r *recordingSink) holdSends() {
	r.mutex.Lock()
	r.hold = make(chan struct{})
	r.mutex.Unlock()
}

func (r *recordingSink) release() {
	r.mutex.Lock()
	close(r.hold)
	r.hold = nil
	r.mutex.Unlock()
}

func (r *recordingSink) ofType(frameType string) []hub.Event {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	var matching []hub.Event
	for _, ev := range r.events {
		if ev.Type == frameType {
			matching = append(matching, ev)
		}
	}
	return matching
}

func (r *recordingSink) types() []string {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	types := make([]string, len(r.events))
	for i, ev := range r.events {
		types[i] = ev.Type
	}
	return types
}

// waitFor waits until count frames of frameType arrived and returns them.
func (r *recordingSink) waitFor(t *testing.T, frameType string, count int) []hub.Event {
	t.Helper()

	require.Eventually(t, func() bool {
		return len(r.ofType(frameType)) >= count
	}, 2*time.Second, 5*time.Millisecond, "waiting for %d %s frames, got %v", count, frameType, r.types())
	return r.ofType(frameType)
}

func decode[T any](t *testing.T, ev hub.Event) T {
	t.Helper()

	var v T
	require.NoError(t, json.Unmarshal(ev.Data, &v))
	return v
}

// recordingEmitter remembers what was published.
type recordingEmitter struct {
	mutex  sync.Mutex
	events []string
	check  func(eventType string, data any)
}

func (e *recordingEmitter) Emit(ctx context.Context, eventType string, topic string, data any) error {
	if e.check != nil {
		e.check(eventType, data)
	}

	e.mutex.Lock()
	defer e.mutex.Unlock()
	e.events = append(e.events, eventType+"@"+topic)
	return nil
}

func (e *recordingEmitter) published() []string {
	e.mutex.Lock()
	defer e.mutex.Unlock()
	return append([]string(nil), e.events...)
}

// flakyStore fails message listing with a transient error until failures
// runs out. A negative count fails forever.
type flakyStore struct {
	store.Store
	failures atomic.Int32
	lists    atomic.Int32
}

func (s *flakyStore) ListMessages(ctx context.Context, scope models.Scope, cursor int64, limit int) ([]models.Message, error) {
	s.lists.Add(1)
	if s.failures.Load() != 0 {
		s.failures.Add(-1)
		return nil, apperr.Newf(apperr.Transient, "flakyStore.ListMessages", "connection reset")
	}
	return s.Store.ListMessages(ctx, scope, cursor, limit)
}

// brokenWrites fails every message insert.
type brokenWrites struct {
	store.Store
}

func (s brokenWrites) CreateMessage(ctx context.Context, msg models.Message) error {
	return apperr.Newf(apperr.Transient, "brokenWrites.CreateMessage", "disk full")
}
