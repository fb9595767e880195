package hub

import (
	"chatcord-backend/internal/metrics"
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024
	sendBufferSize = 64
)

// FrameHandler receives the frames a client sends, except pings.
type FrameHandler interface {
	HandleFrame(ctx context.Context, c *Client, ev Event)
	Disconnected(c *Client)
}

// Client is one websocket connection of an authenticated profile.
type Client struct {
	ID        string
	ProfileID int64

	conn    *websocket.Conn
	send    chan Event
	done    chan struct{}
	once    sync.Once
	handler FrameHandler
	sugar   *zap.SugaredLogger
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
}

// Upgrade turns the request into a websocket client. It writes the error
// response itself when the handshake fails.
func Upgrade(w http.ResponseWriter, r *http.Request, profileID int64, handler FrameHandler, sugar *zap.SugaredLogger) (*Client, error) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return nil, err
	}
	return NewClient(conn, profileID, handler, sugar), nil
}

func NewClient(conn *websocket.Conn, profileID int64, handler FrameHandler, sugar *zap.SugaredLogger) *Client {
	return &Client{
		ID:        uuid.NewString(),
		ProfileID: profileID,
		conn:      conn,
		send:      make(chan Event, sendBufferSize),
		done:      make(chan struct{}),
		handler:   handler,
		sugar:     sugar,
	}
}

// Send queues ev for writing. It blocks while the write buffer is full and
// fails once the connection is gone or ctx is done.
func (c *Client) Send(ctx context.Context, ev Event) error {
	select {
	case c.send <- ev:
		return nil
	case <-c.done:
		return websocket.ErrCloseSent
	case <-ctx.Done():
		return ctx.Err()
	}
}

// SendFrame is Send for frames built from a value.
func (c *Client) SendFrame(ctx context.Context, frameType string, topic string, data any) error {
	ev, err := NewEvent(frameType, topic, data)
	if err != nil {
		return err
	}
	return c.Send(ctx, ev)
}

// Done is closed when the connection has ended.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// Run serves the connection until it closes or ctx is done.
func (c *Client) Run(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	metrics.WebSocketConnections.Inc()
	defer metrics.WebSocketConnections.Dec()

	c.sugar.Debugf("Profile ID [%d] connected to websocket as client %s", c.ProfileID, c.ID)

	go c.writePump(ctx)

	if err := c.SendFrame(ctx, FrameStatus, "", map[string]bool{"connected": true}); err != nil {
		c.sugar.Debug(err)
	}

	c.readPump(ctx)

	c.once.Do(func() { close(c.done) })
	c.handler.Disconnected(c)

	c.sugar.Debugf("Client %s of profile ID [%d] disconnected", c.ID, c.ProfileID)
}

func (c *Client) readPump(ctx context.Context) {
	defer c.conn.Close()

	c.conn.SetReadLimit(maxMessageSize)
	if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		c.sugar.Error(err)
		return
	}

	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, bytes, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				c.sugar.Error(err)
			}
			return
		}

		var ev Event
		if err := json.Unmarshal(bytes, &ev); err != nil {
			c.sugar.Debug(err)
			_ = c.SendFrame(ctx, FrameError, "", map[string]string{"error": "malformed frame"})
			continue
		}

		// any frame proves the client is alive
		if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
			c.sugar.Error(err)
			return
		}

		if ev.Type == FramePing {
			_ = c.SendFrame(ctx, FramePong, "", nil)
			continue
		}

		c.handler.HandleFrame(ctx, c, ev)
	}
}

func (c *Client) writePump(ctx context.Context) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case <-ctx.Done():
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, ""))
			return

		case ev := <-c.send:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				c.sugar.Error(err)
				return
			}

			bytes, err := json.Marshal(ev)
			if err != nil {
				c.sugar.Error(err)
				continue
			}

			if err := c.conn.WriteMessage(websocket.TextMessage, bytes); err != nil {
				c.sugar.Debug(err)
				return
			}

		case <-ticker.C:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				c.sugar.Error(err)
				return
			}

			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
