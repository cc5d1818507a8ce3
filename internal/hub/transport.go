// ABOUTME: Transport abstraction and wire codec for the conversations hub
// ABOUTME: Decodes inbound JSON frames into Events, dropping malformed payloads

package hub

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/gamevault/supportchat/internal/api"
)

// Hub invocation targets (outbound).
const (
	TargetJoinConversation  = "JoinConversation"
	TargetLeaveConversation = "LeaveConversation"
	TargetTyping            = "Typing"
	TargetSeen              = "Seen"
)

// Hub event targets (inbound).
const (
	TargetReceiveMessage = "ReceiveMessage"
	TargetUserTyping     = "UserTyping"
	TargetMessagesSeen   = "MessagesSeen"
	TargetUserOnline     = "UserOnline"
	TargetUserOffline    = "UserOffline"
)

// Transport is one live bidirectional connection to the hub.
type Transport interface {
	// Invoke sends an invocation frame. Returns an error only for
	// transport-level failures; the server does not acknowledge.
	Invoke(ctx context.Context, target string, args ...any) error

	// Frames delivers inbound frames until the connection drops, at which
	// point the channel is closed.
	Frames() <-chan Frame

	// Close tears the connection down.
	Close() error
}

// Dialer opens transports. The token factory is consulted once per
// handshake; the credential is not re-sent per message.
type Dialer interface {
	Dial(ctx context.Context, url string, tokenFactory func() string) (Transport, error)
}

// Frame is one wire-level message: a target name plus positional arguments.
type Frame struct {
	Target    string            `json:"target"`
	Arguments []json.RawMessage `json:"arguments"`
}

// decodeFrame turns an inbound frame into zero or more Events.
// A ReceiveMessage frame also yields a list-changed hint, because any new
// message invalidates conversation list summaries. Malformed message
// payloads (role flag missing or not a boolean) are dropped here so they
// never enter any message sequence.
func decodeFrame(f Frame, logger *slog.Logger) []Event {
	switch f.Target {
	case TargetReceiveMessage:
		if len(f.Arguments) == 0 {
			logger.Warn("message frame without payload")
			return nil
		}
		var msg api.Message
		if err := json.Unmarshal(f.Arguments[0], &msg); err != nil {
			logger.Warn("dropping undecodable message payload", "error", err)
			return nil
		}
		if !msg.Valid() {
			logger.Warn("dropping message payload without sender role flag",
				"conversation_id", msg.ConversationID)
			return nil
		}
		return []Event{
			{Kind: KindMessage, Message: &msg, ConversationID: msg.ConversationID},
			{Kind: KindListChanged},
		}

	case TargetUserTyping:
		return []Event{{Kind: KindTyping}}

	case TargetMessagesSeen:
		return []Event{{Kind: KindSeen}}

	case TargetUserOnline, TargetUserOffline:
		if len(f.Arguments) == 0 {
			return nil
		}
		var userID string
		if err := json.Unmarshal(f.Arguments[0], &userID); err != nil {
			logger.Warn("dropping presence payload with non-string user id", "error", err)
			return nil
		}
		kind := KindUserOnline
		if f.Target == TargetUserOffline {
			kind = KindUserOffline
		}
		return []Event{{Kind: kind, UserID: userID}}

	default:
		logger.Debug("ignoring unknown hub target", "target", f.Target)
		return nil
	}
}
