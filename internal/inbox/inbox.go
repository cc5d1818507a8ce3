// ABOUTME: Conversation list synchronizer: full-replace refresh plus in-place updates
// ABOUTME: Serves both the single-thread user list and the multi-thread admin inbox

package inbox

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/gamevault/supportchat/internal/api"
	"github.com/gamevault/supportchat/internal/hub"
)

// Mode selects which list endpoint backs the synchronizer.
type Mode int

const (
	// ModeUser fetches the caller's own conversations.
	ModeUser Mode = iota
	// ModeAdmin fetches the full support inbox with participant identity.
	ModeAdmin
)

// Lister is the slice of the REST client the synchronizer needs.
type Lister interface {
	MyConversations(ctx context.Context) ([]api.ConversationSummary, error)
	AdminConversations(ctx context.Context) ([]api.ConversationSummary, error)
}

// Channel is the slice of the connection manager the synchronizer needs.
type Channel interface {
	Subscribe(ctx context.Context) (<-chan hub.Event, string)
}

// Synchronizer keeps a list of conversation summaries current. A list-changed
// signal triggers a full re-fetch; a push message updates the matching entry
// in place so the badge moves without waiting for the network.
//
// Filtering is a view projection: SetFilter never mutates the underlying
// list, and a refresh never loses the filter.
type Synchronizer struct {
	lister  Lister
	channel Channel
	mode    Mode
	logger  *slog.Logger

	// onUpdate fires after any visible change to the list. May be nil.
	onUpdate func()
	// onSelect receives the conversation id when an entry is opened.
	// May be nil.
	onSelect func(int64)

	mu       sync.Mutex
	entries  []api.ConversationSummary
	activeID int64
	filter   string
}

// NewSynchronizer creates an idle synchronizer. Call Refresh for the initial
// load and spawn Run to consume push events. Pass nil logger for
// slog.Default.
func NewSynchronizer(lister Lister, channel Channel, mode Mode, onUpdate func(), onSelect func(int64), logger *slog.Logger) *Synchronizer {
	if logger == nil {
		logger = slog.Default()
	}
	if onUpdate == nil {
		onUpdate = func() {}
	}
	return &Synchronizer{
		lister:   lister,
		channel:  channel,
		mode:     mode,
		onUpdate: onUpdate,
		onSelect: onSelect,
		logger:   logger.With("component", "inbox"),
	}
}

// Refresh fetches the full list and replaces the local state. No incremental
// diffing: the server's answer wins wholesale.
func (s *Synchronizer) Refresh(ctx context.Context) error {
	var (
		entries []api.ConversationSummary
		err     error
	)
	switch s.mode {
	case ModeAdmin:
		entries, err = s.lister.AdminConversations(ctx)
	default:
		entries, err = s.lister.MyConversations(ctx)
	}
	if err != nil {
		return fmt.Errorf("fetching conversation list: %w", err)
	}

	s.mu.Lock()
	s.entries = entries
	s.mu.Unlock()

	s.onUpdate()
	return nil
}

// Run consumes push events until ctx ends. Intended to be spawned once after
// the initial Refresh.
func (s *Synchronizer) Run(ctx context.Context) {
	events, _ := s.channel.Subscribe(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			s.handleEvent(ctx, ev)
		}
	}
}

func (s *Synchronizer) handleEvent(ctx context.Context, ev hub.Event) {
	switch ev.Kind {
	case hub.KindMessage:
		if ev.Message == nil {
			return
		}
		s.applyMessage(*ev.Message)

	case hub.KindListChanged:
		// Coarse signal: something changed, go ask
		if err := s.Refresh(ctx); err != nil {
			s.logger.Warn("list refresh after change signal failed", "error", err)
		}
	}
}

// applyMessage updates the matching entry's last message in place and bumps
// its unread count, unless the conversation is the one currently open: a
// thread the user is already reading never shows an unread badge.
func (s *Synchronizer) applyMessage(msg api.Message) {
	s.mu.Lock()
	changed := false
	for i := range s.entries {
		if s.entries[i].ID != msg.ConversationID {
			continue
		}
		s.entries[i].LastMessage = msg.Body
		if msg.ConversationID != s.activeID {
			s.entries[i].UnreadCount++
		}
		changed = true
		break
	}
	s.mu.Unlock()

	if changed {
		s.onUpdate()
	}
}

// Open marks an entry as the active conversation, zeroes its unread count
// locally, and emits the id to the detail consumer. The badge clears
// optimistically; no server round trip is involved.
func (s *Synchronizer) Open(id int64) {
	s.mu.Lock()
	s.activeID = id
	for i := range s.entries {
		if s.entries[i].ID == id {
			s.entries[i].UnreadCount = 0
			break
		}
	}
	onSelect := s.onSelect
	s.mu.Unlock()

	s.onUpdate()
	if onSelect != nil {
		onSelect(id)
	}
}

// SetActive records which conversation is open without emitting a selection.
// Pass 0 when no conversation is open.
func (s *Synchronizer) SetActive(id int64) {
	s.mu.Lock()
	s.activeID = id
	s.mu.Unlock()
}

// SetFilter sets the substring filter applied by Entries. Empty clears it.
func (s *Synchronizer) SetFilter(text string) {
	s.mu.Lock()
	s.filter = strings.TrimSpace(text)
	s.mu.Unlock()
	s.onUpdate()
}

// Entries returns the filtered view of the list. The filter matches, case
// insensitively, the subject, the participant username on admin entries, and
// the last message text.
func (s *Synchronizer) Entries() []api.ConversationSummary {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.filter == "" {
		out := make([]api.ConversationSummary, len(s.entries))
		copy(out, s.entries)
		return out
	}

	needle := strings.ToLower(s.filter)
	var out []api.ConversationSummary
	for _, e := range s.entries {
		if matches(e, needle) {
			out = append(out, e)
		}
	}
	return out
}

// Len returns the unfiltered list size.
func (s *Synchronizer) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

func matches(e api.ConversationSummary, needle string) bool {
	if strings.Contains(strings.ToLower(e.Subject), needle) {
		return true
	}
	if e.User != nil && strings.Contains(strings.ToLower(e.User.Username), needle) {
		return true
	}
	return strings.Contains(strings.ToLower(e.LastMessage), needle)
}
