package chat

import (
	"chatcord-backend/internal/apperr"
	"chatcord-backend/internal/hub"
	"chatcord-backend/internal/models"
	"context"
	"sync"

	"github.com/goccy/go-json"
)

// Frame is the data of a frame a client sends about one view.
type Frame struct {
	Scope   models.ScopeType `json:"scope"`
	ID      int64            `json:"id,string"`
	LastID  int64            `json:"lastId,string,omitempty"`
	Content string           `json:"content,omitempty"`
	FileURL string           `json:"fileUrl,omitempty"`
	TempID  string           `json:"tempId,omitempty"`
}

func (f Frame) scope() models.Scope {
	return models.Scope{Type: f.Scope, ID: f.ID}
}

type sessionKey struct {
	clientID string
	scope    models.Scope
}

// Sessions keeps the open views of every websocket client and routes their
// frames. It is the hub.FrameHandler of the websocket endpoint.
type Sessions struct {
	cfg SessionConfig

	mutex    sync.Mutex
	sessions map[sessionKey]*Session
}

func NewSessions(cfg SessionConfig) *Sessions {
	return &Sessions{
		cfg:      cfg,
		sessions: make(map[sessionKey]*Session),
	}
}

func (m *Sessions) HandleFrame(ctx context.Context, c *hub.Client, ev hub.Event) {
	m.handle(ctx, c.ID, c.ProfileID, c, ev)
}

// Disconnected closes every view the client had open.
func (m *Sessions) Disconnected(c *hub.Client) {
	m.closeClient(c.ID)
}

func (m *Sessions) handle(ctx context.Context, clientID string, profileID int64, sink Sink, ev hub.Event) {
	var frame Frame
	if err := json.Unmarshal(ev.Data, &frame); err != nil {
		m.reject(ctx, sink, frame, apperr.Newf(apperr.Invalid, "chat.Sessions", "malformed %s frame", ev.Type))
		return
	}

	scope := frame.scope()
	if !scope.Type.Valid() || scope.ID <= 0 {
		m.reject(ctx, sink, frame, apperr.Newf(apperr.Invalid, "chat.Sessions", "invalid scope"))
		return
	}
	key := sessionKey{clientID: clientID, scope: scope}

	if ev.Type == hub.FrameSubscribe {
		m.open(ctx, key, profileID, sink)
		return
	}
	if ev.Type == hub.FrameUnsubscribe {
		m.close(key)
		return
	}

	m.mutex.Lock()
	session, exists := m.sessions[key]
	m.mutex.Unlock()

	if !exists {
		m.reject(ctx, sink, frame, apperr.Newf(apperr.Invalid, "chat.Sessions", "not subscribed to %s", scope))
		return
	}

	var err error
	switch ev.Type {
	case hub.FrameOlder:
		err = session.Older(ctx)
	case hub.FrameResync:
		err = session.Resync(ctx, frame.LastID)
	case hub.FrameSend:
		err = session.Send(ctx, NewMessage{Content: frame.Content, FileURL: frame.FileURL}, frame.TempID)
	default:
		err = apperr.Newf(apperr.Invalid, "chat.Sessions", "unknown frame type %q", ev.Type)
	}

	if err != nil {
		m.reject(ctx, sink, frame, err)
	}
}

// open starts a view. Subscribing again to a view that is still alive does
// nothing. A view is forgotten as soon as it ends.
func (m *Sessions) open(ctx context.Context, key sessionKey, profileID int64, sink Sink) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	if existing, exists := m.sessions[key]; exists {
		select {
		case <-existing.Done():
		default:
			return
		}
	}

	session := OpenSession(ctx, m.cfg, profileID, key.scope, sink)
	m.sessions[key] = session
	go m.forget(key, session)
}

func (m *Sessions) forget(key sessionKey, session *Session) {
	<-session.Done()

	m.mutex.Lock()
	defer m.mutex.Unlock()

	// it may have been closed and replaced already
	if m.sessions[key] == session {
		delete(m.sessions, key)
	}
}

func (m *Sessions) close(key sessionKey) {
	m.mutex.Lock()
	session, exists := m.sessions[key]
	delete(m.sessions, key)
	m.mutex.Unlock()

	if exists {
		session.Close()
	}
}

func (m *Sessions) closeClient(clientID string) {
	m.mutex.Lock()
	var closing []*Session
	for key, session := range m.sessions {
		if key.clientID == clientID {
			closing = append(closing, session)
			delete(m.sessions, key)
		}
	}
	m.mutex.Unlock()

	for _, session := range closing {
		session.Close()
	}
}

// Count returns how many views are open.
func (m *Sessions) Count() int {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	return len(m.sessions)
}

func (m *Sessions) reject(ctx context.Context, sink Sink, frame Frame, err error) {
	reason := apperr.ReasonOf(err)
	if reason == "" {
		reason = apperr.KindOf(err).String()
	}

	_ = sink.SendFrame(ctx, hub.FrameError, "", ErrorFrame{
		Scope:  frame.Scope,
		ID:     frame.ID,
		TempID: frame.TempID,
		Error:  apperr.PublicMessage(err),
		Reason: reason,
	})
}
