// ABOUTME: Relay wiring hub presence/typing events to the online set and outbound typing
// ABOUTME: Best-effort outbound; callers control the signal rate

package presence

import (
	"context"
	"log/slog"

	"github.com/gamevault/supportchat/internal/hub"
)

// Channel is the slice of the connection manager the relay needs.
type Channel interface {
	Subscribe(ctx context.Context) (<-chan hub.Event, string)
	Typing(ctx context.Context, conversationID int64)
}

// Relay maintains the shared online set from hub presence events and
// forwards outbound typing signals. It performs no debouncing of its own;
// callers decide how often to signal.
type Relay struct {
	channel Channel
	online  *OnlineSet
	logger  *slog.Logger
}

// NewRelay creates a relay. Pass nil logger for default.
func NewRelay(channel Channel, logger *slog.Logger) *Relay {
	if logger == nil {
		logger = slog.Default()
	}
	return &Relay{
		channel: channel,
		online:  NewOnlineSet(),
		logger:  logger.With("component", "presence"),
	}
}

// Online exposes the set of users currently known online.
func (r *Relay) Online() *OnlineSet {
	return r.online
}

// NotifyTyping forwards a best-effort typing signal for the conversation.
func (r *Relay) NotifyTyping(ctx context.Context, conversationID int64) {
	r.channel.Typing(ctx, conversationID)
}

// Run consumes hub events until ctx is cancelled. Presence add/remove
// events mutate the set; a transition into Connected resets it, because
// the hub sends no snapshot and whatever was known before the drop is
// stale.
func (r *Relay) Run(ctx context.Context) {
	events, _ := r.channel.Subscribe(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			switch ev.Kind {
			case hub.KindUserOnline:
				r.online.Add(ev.UserID)
			case hub.KindUserOffline:
				r.online.Remove(ev.UserID)
			case hub.KindStateChange:
				if ev.State == hub.StateConnected {
					r.online.Reset()
				}
			}
		}
	}
}
