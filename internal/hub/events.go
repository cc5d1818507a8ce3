// ABOUTME: Connection states and the inbound event model for the push channel
// ABOUTME: Events are fanned out to all subscribers; filtering happens at the consumer

package hub

import "github.com/gamevault/supportchat/internal/api"

// State is the lifecycle state of the push-channel connection.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateReconnecting
)

// String returns a human-readable state name for logging.
func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateReconnecting:
		return "reconnecting"
	default:
		return "unknown"
	}
}

// EventKind discriminates inbound events on the shared stream.
type EventKind int

const (
	// KindStateChange reports a connection state transition in State.
	KindStateChange EventKind = iota
	// KindMessage carries a new message in Message.
	KindMessage
	// KindTyping signals the remote party started typing. The transport
	// carries no conversation scope for typing; consumers apply it to
	// their own conversation. There is no stop event; consumers expire it.
	KindTyping
	// KindSeen signals the remote party acknowledged reading.
	KindSeen
	// KindUserOnline and KindUserOffline mutate the presence set, keyed
	// by UserID.
	KindUserOnline
	KindUserOffline
	// KindListChanged is a coarse "re-fetch the conversation list" hint,
	// not a diff.
	KindListChanged
)

// Event is one inbound occurrence on the push channel. Every subscriber
// receives every event and filters by Kind and ConversationID itself.
type Event struct {
	Kind EventKind

	// State is set for KindStateChange.
	State State

	// Message is set for KindMessage. Always valid: malformed payloads
	// are dropped before publication.
	Message *api.Message

	// ConversationID scopes KindMessage events. Zero means unscoped.
	ConversationID int64

	// UserID is set for presence events.
	UserID string
}
