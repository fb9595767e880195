package models

import (
	"fmt"
	"strconv"
)

// ScopeType tells which kind of container a scope is. Channels and
// conversations are treated the same way for history and live delivery.
type ScopeType string

const (
	ScopeChannel      ScopeType = "channel"
	ScopeConversation ScopeType = "conversation"
)

func (t ScopeType) Valid() bool {
	return t == ScopeChannel || t == ScopeConversation
}

type Scope struct {
	Type ScopeType `json:"scope"`
	ID   int64     `json:"id,string"`
}

func ChannelScope(channelID int64) Scope {
	return Scope{Type: ScopeChannel, ID: channelID}
}

func ConversationScope(conversationID int64) Scope {
	return Scope{Type: ScopeConversation, ID: conversationID}
}

// Topic is the fanout topic for new messages of the scope, e.g.
// "channel:42:messages".
func (s Scope) Topic() string {
	return fmt.Sprintf("%s:%d:messages", s.Type, s.ID)
}

func (s Scope) String() string {
	return string(s.Type) + ":" + strconv.FormatInt(s.ID, 10)
}

// ScopeOf returns the scope a message belongs to.
func ScopeOf(msg Message) Scope {
	if msg.ConversationID != 0 {
		return ConversationScope(msg.ConversationID)
	}
	return ChannelScope(msg.ChannelID)
}

// ServerTopic carries channel and membership events of a server.
func ServerTopic(serverID int64) string {
	return fmt.Sprintf("server:%d:events", serverID)
}
