// ABOUTME: Per-conversation session: join, authoritative fetch, poll/push reconciliation
// ABOUTME: De-duplicates by message id so push and poll never double-apply a message

package conversation

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/gamevault/supportchat/internal/api"
	"github.com/gamevault/supportchat/internal/dedupe"
	"github.com/gamevault/supportchat/internal/hub"
	"github.com/gamevault/supportchat/internal/presence"
)

const (
	seenTTL     = 10 * time.Minute
	seenMaxSize = 4096
)

// Fetcher is the slice of the REST client a session needs.
type Fetcher interface {
	Conversation(ctx context.Context, id int64) (*api.ConversationDetail, error)
	CreateConversation(ctx context.Context, message string) (int64, error)
	SendMessage(ctx context.Context, conversationID int64, message string) error
	CloseConversation(ctx context.Context, conversationID int64) error
}

// Channel is the slice of the connection manager a session needs.
type Channel interface {
	Connect(ctx context.Context) error
	Subscribe(ctx context.Context) (<-chan hub.Event, string)
	JoinConversation(ctx context.Context, id int64)
	LeaveConversation(ctx context.Context, id int64)
	Typing(ctx context.Context, id int64)
	Seen(ctx context.Context, id int64)
}

// Options tunes session timing.
type Options struct {
	// PollInterval is the authoritative re-fetch cadence. The poller runs
	// for the whole session lifetime regardless of push connectivity.
	PollInterval time.Duration
	// TypingExpiry is how long the remote typing indicator stays up with
	// no further signal.
	TypingExpiry time.Duration
}

// Session is the transient controller behind one mounted conversation
// view. It merges push-delivered messages with authoritative poll fetches
// and guarantees each message id appears exactly once.
//
// A session activated with id 0 is a draft: no conversation exists yet,
// and sending the first message creates one and transitions the session
// into normal joined mode.
type Session struct {
	fetcher Fetcher
	channel Channel
	opts    Options
	logger  *slog.Logger

	// onUpdate fires after any visible change to messages, status, typing,
	// or seen state. May be nil.
	onUpdate func()

	mu             sync.Mutex
	active         bool
	conversationID int64
	subject        string
	status         api.Status
	messages       []api.Message
	// lastFetchedCount is the length of the last applied authoritative
	// fetch. A fetch with the same length is skipped: cheap staleness
	// gate. Known limitation: an edit that keeps the count unchanged is
	// never picked up.
	lastFetchedCount int
	// fetchSeq orders fetches; appliedSeq rejects completions that lost
	// the race to a newer one.
	fetchSeq   int64
	appliedSeq int64
	remoteSeen bool

	seen   *dedupe.SeenSet
	typing *presence.TypingIndicator
	cancel context.CancelFunc

	// createMu serializes the draft transition so two concurrent first
	// sends cannot create two conversations.
	createMu sync.Mutex
}

// NewSession creates an inactive session. Call Activate or ActivateDraft.
// Pass nil logger for slog.Default.
func NewSession(fetcher Fetcher, channel Channel, opts Options, onUpdate func(), logger *slog.Logger) *Session {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = 3 * time.Second
	}
	if opts.TypingExpiry <= 0 {
		opts.TypingExpiry = 1500 * time.Millisecond
	}
	if onUpdate == nil {
		onUpdate = func() {}
	}
	return &Session{
		fetcher:  fetcher,
		channel:  channel,
		opts:     opts,
		onUpdate: onUpdate,
		logger:   logger.With("component", "session"),
	}
}

// Activate binds the session to a conversation: connect (idempotent), join
// its push scope, fetch the authoritative history, then keep reconciling
// via the event stream and the poller. Re-activating for a different id
// tears the previous binding down first so sessions never cross-talk.
func (s *Session) Activate(ctx context.Context, conversationID int64) error {
	if conversationID == 0 {
		return fmt.Errorf("conversation id required; use ActivateDraft for a new conversation")
	}
	s.Deactivate(ctx)
	s.start(ctx, conversationID)

	// Degraded connect is not fatal: the poller still delivers
	if err := s.channel.Connect(ctx); err != nil {
		s.logger.Warn("push channel unavailable, continuing poll-only", "error", err)
	}
	s.channel.JoinConversation(ctx, conversationID)

	if err := s.refresh(ctx); err != nil {
		s.logger.Warn("initial conversation fetch failed", "conversation_id", conversationID, "error", err)
	}
	return nil
}

// ActivateDraft opens the session with no conversation yet. The event loop
// runs, but nothing is joined, fetched, or polled until the first Send
// creates the conversation.
func (s *Session) ActivateDraft(ctx context.Context) {
	s.Deactivate(ctx)
	s.start(ctx, 0)

	if err := s.channel.Connect(ctx); err != nil {
		s.logger.Warn("push channel unavailable for draft session", "error", err)
	}
}

// start initializes session state and spawns the event loop plus, for a
// bound session, the poller.
func (s *Session) start(ctx context.Context, conversationID int64) {
	sessionCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))

	s.mu.Lock()
	s.active = true
	s.conversationID = conversationID
	s.subject = ""
	s.status = ""
	s.messages = nil
	s.lastFetchedCount = 0
	s.fetchSeq = 0
	s.appliedSeq = 0
	s.remoteSeen = false
	s.seen = dedupe.New(seenTTL, seenMaxSize)
	s.typing = presence.NewTypingIndicator(s.opts.TypingExpiry, func(bool) { s.onUpdate() })
	s.cancel = cancel
	s.mu.Unlock()

	go s.eventLoop(sessionCtx)
	if conversationID != 0 {
		go s.pollLoop(sessionCtx)
	}
}

// Deactivate tears the session down: leave the push scope, stop the poller
// and event loop, and silence the typing timer. In-flight fetches are not
// cancelled; their results are discarded by the active-session guard.
// Safe to call on an inactive session.
func (s *Session) Deactivate(ctx context.Context) {
	s.mu.Lock()
	if !s.active {
		s.mu.Unlock()
		return
	}
	s.active = false
	id := s.conversationID
	cancel := s.cancel
	seen := s.seen
	typing := s.typing
	s.cancel = nil
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if typing != nil {
		typing.Stop()
	}
	if seen != nil {
		seen.Close()
	}
	if id != 0 {
		s.channel.LeaveConversation(ctx, id)
	}
}

// Send posts a message. For a draft session the first send creates the
// conversation and transitions into joined mode. On success the thread is
// re-fetched immediately; the poller, not the push echo, is the source of
// truth for the sender's own message. On failure the caller keeps the
// input text and may retry.
func (s *Session) Send(ctx context.Context, text string) error {
	s.mu.Lock()
	id := s.conversationID
	draft := s.active && id == 0
	s.mu.Unlock()

	if draft {
		return s.sendFirst(ctx, text)
	}
	if id == 0 {
		return fmt.Errorf("session not active")
	}

	if err := s.fetcher.SendMessage(ctx, id, text); err != nil {
		return fmt.Errorf("sending message: %w", err)
	}

	s.mu.Lock()
	s.remoteSeen = false
	s.mu.Unlock()
	s.onUpdate()

	if err := s.refresh(ctx); err != nil {
		s.logger.Warn("post-send fetch failed, next poll will reconcile", "error", err)
	}
	return nil
}

// sendFirst creates the conversation from a draft, then performs the
// normal activation steps for the assigned id. The transition happens
// exactly once; a concurrent Send loses the race and retries as a normal
// send.
func (s *Session) sendFirst(ctx context.Context, text string) error {
	s.createMu.Lock()
	defer s.createMu.Unlock()

	s.mu.Lock()
	already := s.conversationID
	s.mu.Unlock()
	if already != 0 {
		// Lost the race to another first send
		return s.Send(ctx, text)
	}

	id, err := s.fetcher.CreateConversation(ctx, text)
	if err != nil {
		return fmt.Errorf("creating conversation: %w", err)
	}

	s.mu.Lock()
	if !s.active {
		s.mu.Unlock()
		return nil
	}
	if s.conversationID != 0 {
		// Another send already transitioned the draft
		s.mu.Unlock()
		return s.Send(ctx, text)
	}
	s.conversationID = id
	s.mu.Unlock()

	s.logger.Info("conversation created from draft", "conversation_id", id)

	s.channel.JoinConversation(ctx, id)
	if err := s.refresh(ctx); err != nil {
		s.logger.Warn("initial fetch after create failed", "conversation_id", id, "error", err)
	}

	// The poller only starts once a conversation exists
	s.startPollerForBound(ctx)
	return nil
}

// startPollerForBound spawns the poll loop under the current session
// lifetime. Called exactly once per draft transition. The active check and
// the cancel composition happen under one lock acquisition: a Deactivate
// that lands in between would otherwise leave the poller uncancellable.
func (s *Session) startPollerForBound(ctx context.Context) {
	sessionCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))

	s.mu.Lock()
	if !s.active {
		s.mu.Unlock()
		cancel()
		return
	}
	prevCancel := s.cancel
	s.cancel = func() {
		if prevCancel != nil {
			prevCancel()
		}
		cancel()
	}
	s.mu.Unlock()

	go s.pollLoop(sessionCtx)
}

// NotifyTyping signals, best effort, that the local user is typing.
func (s *Session) NotifyTyping(ctx context.Context) {
	s.mu.Lock()
	id := s.conversationID
	s.mu.Unlock()
	if id != 0 {
		s.channel.Typing(ctx, id)
	}
}

// Close closes the conversation (admin operation) and flips local status.
func (s *Session) Close(ctx context.Context) error {
	s.mu.Lock()
	id := s.conversationID
	s.mu.Unlock()
	if id == 0 {
		return fmt.Errorf("session not bound to a conversation")
	}

	if err := s.fetcher.CloseConversation(ctx, id); err != nil {
		return fmt.Errorf("closing conversation: %w", err)
	}

	s.mu.Lock()
	s.status = api.StatusClosed
	s.mu.Unlock()
	s.onUpdate()
	return nil
}

// ConversationID returns the bound id, 0 for a draft.
func (s *Session) ConversationID() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conversationID
}

// Subject returns the conversation subject from the last fetch.
func (s *Session) Subject() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.subject
}

// Status returns the conversation status from the last fetch.
func (s *Session) Status() api.Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// Messages returns a snapshot of the ordered message sequence.
func (s *Session) Messages() []api.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]api.Message, len(s.messages))
	copy(out, s.messages)
	return out
}

// TypingActive reports whether the remote party is typing right now.
func (s *Session) TypingActive() bool {
	s.mu.Lock()
	typing := s.typing
	s.mu.Unlock()
	return typing != nil && typing.Active()
}

// RemoteSeen reports whether the remote party has acknowledged reading
// since the local user last sent.
func (s *Session) RemoteSeen() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.remoteSeen
}

// eventLoop consumes push events for the bound conversation until the
// session ends.
func (s *Session) eventLoop(ctx context.Context) {
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

// handleEvent applies one push event. Messages are filtered by
// conversation id; typing and seen carry no scope on the wire and apply to
// the bound conversation.
func (s *Session) handleEvent(ctx context.Context, ev hub.Event) {
	switch ev.Kind {
	case hub.KindMessage:
		s.mu.Lock()
		id := s.conversationID
		s.mu.Unlock()
		if id == 0 || ev.ConversationID != id || ev.Message == nil {
			return
		}
		s.appendPushed(ctx, *ev.Message)

	case hub.KindTyping:
		s.mu.Lock()
		typing := s.typing
		bound := s.conversationID != 0
		s.mu.Unlock()
		if bound && typing != nil {
			typing.Signal()
		}

	case hub.KindSeen:
		s.mu.Lock()
		s.remoteSeen = true
		s.mu.Unlock()
		s.onUpdate()
	}
}

// appendPushed appends a push-delivered message immediately for latency,
// unless its id was already applied by a fetch or an earlier push. A
// successful append acknowledges the read best-effort.
func (s *Session) appendPushed(ctx context.Context, msg api.Message) {
	if !msg.Valid() {
		// Defense in depth: the hub already drops these
		return
	}

	s.mu.Lock()
	if !s.active || s.seen == nil || s.seen.CheckAndMark(msg.ID) {
		s.mu.Unlock()
		return
	}
	s.messages = append(s.messages, msg)
	// Push delivery order is not guaranteed; keep the sequence sorted
	if len(s.messages) > 1 && !s.messages[len(s.messages)-2].Before(msg) {
		sortMessages(s.messages)
	}
	id := s.conversationID
	s.mu.Unlock()

	s.onUpdate()
	s.channel.Seen(ctx, id)
}

// pollLoop re-fetches the thread at a fixed interval for the whole session
// lifetime, tolerating missed or out-of-order push delivery.
func (s *Session) pollLoop(ctx context.Context) {
	ticker := time.NewTicker(s.opts.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.refresh(ctx); err != nil {
				s.logger.Debug("poll fetch failed", "error", err)
			}
		}
	}
}

// refresh performs one authoritative fetch and reconciles it into the
// session. Stale completions (an older fetch finishing after a newer one)
// and fetches for a session that was torn down or re-bound meanwhile are
// discarded.
func (s *Session) refresh(ctx context.Context) error {
	s.mu.Lock()
	if !s.active || s.conversationID == 0 {
		s.mu.Unlock()
		return nil
	}
	id := s.conversationID
	s.fetchSeq++
	seq := s.fetchSeq
	s.mu.Unlock()

	detail, err := s.fetcher.Conversation(ctx, id)
	if err != nil {
		return err
	}

	valid := detail.Messages[:0:0]
	for _, m := range detail.Messages {
		if m.Valid() {
			valid = append(valid, m)
		}
	}
	sortMessages(valid)

	s.mu.Lock()
	if !s.active || s.conversationID != id {
		s.mu.Unlock()
		return nil
	}
	if seq <= s.appliedSeq {
		// A newer fetch already landed; this one is stale
		s.mu.Unlock()
		return nil
	}
	s.appliedSeq = seq

	s.subject = detail.Subject
	s.status = detail.Status

	// Count gate: a fetch whose length matches the last authoritative
	// fetch is treated as unchanged and skipped. Comparing against the
	// fetch count rather than the live sequence also keeps a lagging poll
	// from wiping a push-appended message the server has not shown yet.
	if len(valid) == s.lastFetchedCount {
		s.mu.Unlock()
		return nil
	}

	s.messages = valid
	s.lastFetchedCount = len(valid)
	if s.seen != nil {
		for _, m := range valid {
			s.seen.Mark(m.ID)
		}
	}
	s.mu.Unlock()

	s.onUpdate()
	return nil
}

// sortMessages orders by CreatedAt ascending with id as tie-break.
func sortMessages(msgs []api.Message) {
	sort.SliceStable(msgs, func(i, j int) bool {
		return msgs[i].Before(msgs[j])
	})
}
