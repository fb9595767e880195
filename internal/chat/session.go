package chat

import (
	"chatcord-backend/internal/apperr"
	"chatcord-backend/internal/authz"
	"chatcord-backend/internal/hub"
	"chatcord-backend/internal/metrics"
	"chatcord-backend/internal/models"
	"chatcord-backend/internal/pagination"
	"context"
	"errors"
	"sync/atomic"

	"github.com/goccy/go-json"
	"go.uber.org/zap"
)

// SessionState is where a view is in its lifecycle. Error is terminal.
type SessionState int32

const (
	StateLoading SessionState = iota
	StateReady
	StateUpdating
	StateError
)

func (s SessionState) String() string {
	switch s {
	case StateLoading:
		return "loading"
	case StateReady:
		return "ready"
	case StateUpdating:
		return "updating"
	}
	return "error"
}

// history modes
const (
	HistoryInitial = "initial"
	HistoryOlder   = "older"
	HistoryResync  = "resync"
)

// resyncLimit caps how many missed messages a resync replays before the view
// is reloaded from the newest page instead.
const resyncLimit = 200

// Sink receives the frames of a session. *hub.Client implements it.
type Sink interface {
	Send(ctx context.Context, ev hub.Event) error
	SendFrame(ctx context.Context, frameType string, topic string, data any) error
}

// SessionConfig is what every session shares.
type SessionConfig struct {
	Gate     *authz.Gate
	Engine   *pagination.Engine
	Messages *MessageService
	Registry *hub.Registry
	Retry    RetryPolicy
	Sugar    *zap.SugaredLogger
}

type HistoryFrame struct {
	Scope      models.ScopeType `json:"scope"`
	ID         int64            `json:"id,string"`
	Mode       string           `json:"mode"`
	Items      []models.Message `json:"items"`
	NextCursor *string          `json:"nextCursor"`
}

type SentFrame struct {
	TempID  string         `json:"tempId"`
	Message models.Message `json:"message"`
}

type ErrorFrame struct {
	Scope    models.ScopeType `json:"scope,omitempty"`
	ID       int64            `json:"id,string,omitempty"`
	TempID   string           `json:"tempId,omitempty"`
	Error    string           `json:"error"`
	Reason   string           `json:"reason,omitempty"`
	Terminal bool             `json:"terminal"`
}

type commandKind int

const (
	commandOlder commandKind = iota
	commandResync
	commandSend
)

type command struct {
	kind    commandKind
	lastID  int64
	message NewMessage
	tempID  string
}

var (
	errSessionClosed = apperr.Newf(apperr.NotFound, "chat.Session", "session is closed")
	errSinkClosed    = errors.New("session sink closed")
)

// Session serves one channel or conversation view: it authorizes, loads the
// newest page, then relays live events and answers history and send
// requests until it is closed or fails.
//
// Only the run goroutine touches the view state; everything else talks to
// it through the command queue.
type Session struct {
	cfg       SessionConfig
	scope     models.Scope
	profileID int64
	sink      Sink

	state    atomic.Int32
	commands chan command
	cancel   context.CancelFunc
	done     chan struct{}

	sub        *hub.Subscriber
	member     models.Member
	serverID   int64
	nextCursor *string
	lastSeenID int64
	// ids already sent through history or a send echo, skipped when they
	// come in live
	seen map[int64]struct{}
}

// OpenSession starts a session in the Loading state. It runs until ctx is done,
// Close is called or it reaches Error.
func OpenSession(ctx context.Context, cfg SessionConfig, profileID int64, scope models.Scope, sink Sink) *Session {
	ctx, cancel := context.WithCancel(ctx)

	s := &Session{
		cfg:       cfg,
		scope:     scope,
		profileID: profileID,
		sink:      sink,
		commands:  make(chan command, 16),
		cancel:    cancel,
		done:      make(chan struct{}),
		seen:      make(map[int64]struct{}),
	}
	s.state.Store(int32(StateLoading))
	metrics.SessionStates.WithLabelValues(StateLoading.String()).Inc()

	go s.run(ctx)
	return s
}

func (s *Session) Scope() models.Scope {
	return s.scope
}

func (s *Session) State() SessionState {
	return SessionState(s.state.Load())
}

// Done is closed once the session stopped.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Close stops the session and waits for it. In-flight fetches are abandoned.
func (s *Session) Close() {
	s.cancel()
	<-s.done
}

// Older asks for the page before the oldest one sent so far.
func (s *Session) Older(ctx context.Context) error {
	return s.enqueue(ctx, command{kind: commandOlder})
}

// Resync asks for every message newer than lastID, for clients that
// reconnected or noticed a gap.
func (s *Session) Resync(ctx context.Context, lastID int64) error {
	return s.enqueue(ctx, command{kind: commandResync, lastID: lastID})
}

// Send posts a message in the scope. The stored message is echoed back with
// tempID so the client can replace its optimistic copy.
func (s *Session) Send(ctx context.Context, input NewMessage, tempID string) error {
	return s.enqueue(ctx, command{kind: commandSend, message: input, tempID: tempID})
}

func (s *Session) enqueue(ctx context.Context, cmd command) error {
	select {
	case <-s.done:
		return errSessionClosed
	default:
	}

	select {
	case s.commands <- cmd:
		return nil
	case <-s.done:
		return errSessionClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Session) setState(next SessionState) {
	if s.State() == StateError || s.State() == next {
		return
	}
	s.state.Store(int32(next))
	metrics.SessionStates.WithLabelValues(next.String()).Inc()
}

func (s *Session) run(ctx context.Context) {
	defer close(s.done)
	defer s.cancel()
	defer func() {
		if s.sub != nil {
			s.cfg.Registry.Close(s.sub)
		}
	}()

	if err := s.load(ctx); err != nil {
		s.stop(ctx, err)
		return
	}
	s.setState(StateReady)

	for {
		select {
		case <-ctx.Done():
			return

		case <-s.sub.Notify():
			if err := s.relay(ctx); err != nil {
				s.stop(ctx, err)
				return
			}

		case cmd := <-s.commands:
			if err := s.handle(ctx, cmd); err != nil {
				s.stop(ctx, err)
				return
			}
		}
	}
}

// load authorizes before touching any data, subscribes, then sends the newest
// page. Subscribing first means nothing posted meanwhile is missed; whatever
// shows up both live and in the page is sent once.
func (s *Session) load(ctx context.Context) error {
	err := s.cfg.Retry.retry(ctx, s.cfg.Sugar, "authorize", func() error {
		return s.authorize(ctx)
	})
	if err != nil {
		return err
	}

	s.sub = s.cfg.Registry.NewSubscriber()
	s.cfg.Registry.Subscribe(s.scope.Topic(), s.sub)
	s.cfg.Registry.Subscribe(models.ServerTopic(s.serverID), s.sub)

	return s.sendNewest(ctx)
}

func (s *Session) authorize(ctx context.Context) error {
	switch s.scope.Type {
	case models.ScopeChannel:
		member, channel, err := s.cfg.Gate.AuthorizeChannel(ctx, s.profileID, s.scope.ID, authz.ViewMessages)
		if err != nil {
			return err
		}
		s.member, s.serverID = member, channel.ServerID
		return nil

	case models.ScopeConversation:
		member, _, err := s.cfg.Gate.AuthorizeConversation(ctx, s.profileID, s.scope.ID)
		if err != nil {
			return err
		}
		s.member, s.serverID = member, member.ServerID
		return nil
	}
	return apperr.Newf(apperr.Invalid, "chat.Session", "unknown scope type %q", s.scope.Type)
}

func (s *Session) fetch(ctx context.Context, cursor int64) (models.Page, error) {
	var page models.Page
	err := s.cfg.Retry.retry(ctx, s.cfg.Sugar, "fetch page", func() error {
		var err error
		page, err = s.cfg.Engine.FetchPage(ctx, s.scope, cursor)
		return err
	})
	return page, err
}

// sendNewest (re)loads the view from the newest page.
func (s *Session) sendNewest(ctx context.Context) error {
	page, err := s.fetch(ctx, 0)
	if err != nil {
		return err
	}

	s.nextCursor = page.NextCursor
	s.remember(page.Items)
	return s.sendHistory(ctx, HistoryInitial, page)
}

func (s *Session) sendOlder(ctx context.Context) error {
	if s.nextCursor == nil {
		return s.sendHistory(ctx, HistoryOlder, models.Page{Items: []models.Message{}})
	}

	cursor, err := pagination.ParseCursor(*s.nextCursor)
	if err != nil {
		return err
	}

	page, err := s.fetch(ctx, cursor)
	if err != nil {
		return err
	}

	s.nextCursor = page.NextCursor
	return s.sendHistory(ctx, HistoryOlder, page)
}

// resync sends what the client missed after lastID, oldest first. A gap
// larger than resyncLimit reloads the view instead.
func (s *Session) resync(ctx context.Context, lastID int64) error {
	var items []models.Message
	var complete bool

	err := s.cfg.Retry.retry(ctx, s.cfg.Sugar, "resync", func() error {
		var err error
		items, complete, err = s.cfg.Engine.Since(ctx, s.scope, lastID, resyncLimit)
		return err
	})
	if err != nil {
		return err
	}

	if !complete {
		return s.sendNewest(ctx)
	}

	s.remember(items)
	return s.sendHistory(ctx, HistoryResync, models.Page{Items: items})
}

func (s *Session) remember(items []models.Message) {
	clear(s.seen)
	for _, msg := range items {
		s.seen[msg.ID] = struct{}{}
		s.lastSeenID = max(s.lastSeenID, msg.ID)
	}
}

func (s *Session) sendHistory(ctx context.Context, mode string, page models.Page) error {
	frame := HistoryFrame{
		Scope:      s.scope.Type,
		ID:         s.scope.ID,
		Mode:       mode,
		Items:      page.Items,
		NextCursor: page.NextCursor,
	}
	return s.write(ctx, hub.FrameHistory, frame)
}

func (s *Session) write(ctx context.Context, frameType string, data any) error {
	if err := s.sink.SendFrame(ctx, frameType, s.scope.Topic(), data); err != nil {
		return errors.Join(errSinkClosed, err)
	}
	return nil
}

func (s *Session) handle(ctx context.Context, cmd command) error {
	switch cmd.kind {
	case commandOlder:
		return s.sendOlder(ctx)
	case commandResync:
		return s.resync(ctx, cmd.lastID)
	case commandSend:
		return s.send(ctx, cmd)
	}
	return nil
}

// send is never retried: a write that timed out may still have happened.
func (s *Session) send(ctx context.Context, cmd command) error {
	s.setState(StateUpdating)

	msg, err := s.cfg.Messages.Send(ctx, s.profileID, s.scope, cmd.message)
	if apperr.IsDenial(err) {
		return err
	}

	s.setState(StateReady)

	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return s.write(ctx, hub.FrameError, s.errorFrame(err, cmd.tempID, false))
	}

	s.seen[msg.ID] = struct{}{}
	s.lastSeenID = max(s.lastSeenID, msg.ID)
	return s.write(ctx, hub.FrameSent, SentFrame{TempID: cmd.tempID, Message: msg})
}

type eventRef struct {
	ID        int64       `json:"id,string"`
	ProfileID int64       `json:"profileId,string"`
	ServerID  int64       `json:"serverId,string"`
	Role      models.Role `json:"role"`
}

// relay forwards what was queued for the subscriber. After a drop the client
// is told it lagged and gets the missed messages from history, so queued
// MessageCreated events are left out; edits and deletions still go through.
func (s *Session) relay(ctx context.Context) error {
	events, lagged := s.sub.Drain()

	if lagged {
		s.cfg.Sugar.Debugw("Session lagged", "scope", s.scope, "profileID", s.profileID)
		if err := s.write(ctx, hub.FrameLagging, ref{ID: s.scope.ID}); err != nil {
			return err
		}
		if err := s.resync(ctx, s.lastSeenID); err != nil {
			return err
		}
	}

	for _, ev := range events {
		if lagged && ev.Type == hub.MessageCreated {
			continue
		}

		skip, terminal := s.inspect(ev)
		if skip {
			continue
		}

		if err := s.sink.Send(ctx, ev); err != nil {
			return errors.Join(errSinkClosed, err)
		}
		if terminal != nil {
			return terminal
		}
	}
	return nil
}

// inspect tracks what the view has seen and reports events that end it.
func (s *Session) inspect(ev hub.Event) (skip bool, terminal error) {
	var data eventRef
	if len(ev.Data) > 0 {
		if err := json.Unmarshal(ev.Data, &data); err != nil {
			s.cfg.Sugar.Warnw("Undecodable event", "type", ev.Type, "topic", ev.Topic, "error", err)
			return false, nil
		}
	}

	switch ev.Type {
	case hub.MessageCreated:
		if _, seen := s.seen[data.ID]; seen {
			delete(s.seen, data.ID)
			return true, nil
		}
		s.lastSeenID = max(s.lastSeenID, data.ID)

	case hub.ChannelDeleted:
		if s.scope.Type == models.ScopeChannel && data.ID == s.scope.ID {
			return false, apperr.Newf(apperr.NotFound, "chat.Session", "channel was deleted")
		}

	case hub.ServerDeleted:
		if data.ID == s.serverID {
			return false, apperr.Newf(apperr.NotFound, "chat.Session", "server was deleted")
		}

	case hub.MemberLeft:
		if data.ID == s.member.ID {
			return false, apperr.Deny(apperr.NotMember, apperr.ReasonNotMember)
		}

	case hub.MemberModified:
		if data.ID == s.member.ID && data.Role.Valid() {
			s.member.Role = data.Role
		}
	}
	return false, nil
}

// stop ends the session. Anything but a gone client or a cancelled context
// moves it to Error and is reported to the client.
func (s *Session) stop(ctx context.Context, err error) {
	if errors.Is(err, errSinkClosed) || ctx.Err() != nil {
		s.cfg.Sugar.Debugw("Session closed", "scope", s.scope, "profileID", s.profileID)
		return
	}

	s.setState(StateError)

	if apperr.KindOf(err) == apperr.Internal {
		s.cfg.Sugar.Errorw("Session failed", "scope", s.scope, "profileID", s.profileID, "error", err)
	} else {
		s.cfg.Sugar.Infow("Session ended", "scope", s.scope, "profileID", s.profileID, "error", err)
	}

	_ = s.write(ctx, hub.FrameError, s.errorFrame(err, "", true))
}

func (s *Session) errorFrame(err error, tempID string, terminal bool) ErrorFrame {
	reason := apperr.ReasonOf(err)
	if reason == "" {
		reason = apperr.KindOf(err).String()
	}
	return ErrorFrame{
		Scope:    s.scope.Type,
		ID:       s.scope.ID,
		TempID:   tempID,
		Error:    apperr.PublicMessage(err),
		Reason:   reason,
		Terminal: terminal,
	}
}
