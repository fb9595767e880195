package hub

import (
	"github.com/goccy/go-json"
)

// events published on topics
const (
	ServerDeleted  = "ServerDeleted"
	ServerModified = "ServerModified"

	ChannelCreated  = "ChannelCreated"
	ChannelDeleted  = "ChannelDeleted"
	ChannelModified = "ChannelModified"

	MemberJoined   = "MemberJoined"
	MemberLeft     = "MemberLeft"
	MemberModified = "MemberModified"

	MessageCreated  = "MessageCreated"
	MessageDeleted  = "MessageDeleted"
	MessageModified = "MessageModified"
)

// frames sent by clients
const (
	FrameSubscribe   = "subscribe"
	FrameUnsubscribe = "unsubscribe"
	FrameOlder       = "older"
	FrameResync      = "resync"
	FrameSend        = "send"
	FramePing        = "ping"
)

// frames sent only to one client
const (
	FrameStatus  = "status"
	FrameHistory = "history"
	FrameLagging = "lagging"
	FrameError   = "error"
	FramePong    = "pong"
	FrameSent    = "sent"
)

// Event is the envelope of everything that goes over a websocket or through
// the broker, in both directions.
type Event struct {
	Type  string          `json:"type"`
	Topic string          `json:"topic,omitempty"`
	Data  json.RawMessage `json:"data,omitempty"`
}

func NewEvent(eventType string, topic string, data any) (Event, error) {
	ev := Event{Type: eventType, Topic: topic}
	if data == nil {
		return ev, nil
	}

	jsonBytes, err := json.Marshal(data)
	if err != nil {
		return Event{}, err
	}
	ev.Data = jsonBytes
	return ev, nil
}
