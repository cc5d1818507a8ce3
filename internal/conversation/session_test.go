// ABOUTME: Tests for the conversation session: activation, reconciliation, drafts
// ABOUTME: Exercises the exactly-once guarantee under push/poll interleavings

package conversation

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gamevault/supportchat/internal/api"
	"github.com/gamevault/supportchat/internal/hub"
)

func msg(id, convID int64, body string, at time.Time, admin bool) api.Message {
	return api.Message{
		ID:             id,
		ConversationID: convID,
		Body:           body,
		CreatedAt:      at,
		IsAdmin:        boolPtr(admin),
		SenderUsername: "someone",
	}
}

func newFixture(msgs ...api.Message) (*fakeFetcher, *fakeChannel) {
	f := &fakeFetcher{
		detail: &api.ConversationDetail{
			ID:       7,
			Subject:  "Support",
			Status:   api.StatusOpen,
			Messages: msgs,
		},
		nextID: 42,
	}
	return f, &fakeChannel{}
}

func newTestSession(f *fakeFetcher, c *fakeChannel, onUpdate func()) *Session {
	return NewSession(f, c, Options{
		PollInterval: 20 * time.Millisecond,
		TypingExpiry: 30 * time.Millisecond,
	}, onUpdate, nil)
}

func messageIDs(msgs []api.Message) []int64 {
	out := make([]int64, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, m.ID)
	}
	return out
}

var t0 = time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)

func TestSession_ActivateJoinsFetchesAndFilters(t *testing.T) {
	f, c := newFixture(
		msg(1, 7, "hello", t0, false),
		api.Message{ID: 2, ConversationID: 7, Body: "no role flag", CreatedAt: t0.Add(time.Second)},
		msg(3, 7, "hi there", t0.Add(2*time.Second), true),
	)
	s := newTestSession(f, c, nil)
	defer s.Deactivate(t.Context())

	require.NoError(t, s.Activate(t.Context(), 7))

	assert.Equal(t, []int64{7}, c.joins())
	assert.Equal(t, "Support", s.Subject())
	assert.Equal(t, api.StatusOpen, s.Status())
	// The malformed message never enters the sequence
	assert.Equal(t, []int64{1, 3}, messageIDs(s.Messages()))
}

func TestSession_PushAndPollSameMessageAppliedOnce(t *testing.T) {
	first := msg(1, 7, "hello", t0, false)
	f, c := newFixture(first)
	s := newTestSession(f, c, nil)
	defer s.Deactivate(t.Context())

	require.NoError(t, s.Activate(t.Context(), 7))

	// Push delivers message 2, then the poller fetches a list containing it
	pushed := msg(2, 7, "pushed", t0.Add(time.Second), true)
	c.pushMessage(pushed)

	require.Eventually(t, func() bool {
		return len(s.Messages()) == 2
	}, time.Second, 5*time.Millisecond)

	f.setMessages(first, pushed)

	// Give the poller several ticks to re-deliver the same id
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, []int64{1, 2}, messageIDs(s.Messages()))
}

func TestSession_PollThenPushSameMessageAppliedOnce(t *testing.T) {
	first := msg(1, 7, "hello", t0, false)
	second := msg(2, 7, "from poll", t0.Add(time.Second), true)
	f, c := newFixture(first, second)
	s := newTestSession(f, c, nil)
	defer s.Deactivate(t.Context())

	require.NoError(t, s.Activate(t.Context(), 7))
	require.Equal(t, []int64{1, 2}, messageIDs(s.Messages()))

	// The push echo of message 2 arrives after the fetch already applied it
	c.pushMessage(second)

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, []int64{1, 2}, messageIDs(s.Messages()))
}

func TestSession_PushForOtherConversationIgnored(t *testing.T) {
	f, c := newFixture(msg(1, 7, "hello", t0, false))
	s := newTestSession(f, c, nil)
	defer s.Deactivate(t.Context())

	require.NoError(t, s.Activate(t.Context(), 7))

	c.pushMessage(msg(99, 8, "wrong thread", t0.Add(time.Second), true))

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, []int64{1}, messageIDs(s.Messages()))
}

func TestSession_ReactivateSwitchesWithoutCrossTalk(t *testing.T) {
	f, c := newFixture(msg(1, 7, "in seven", t0, false))
	s := newTestSession(f, c, nil)
	defer s.Deactivate(t.Context())

	require.NoError(t, s.Activate(t.Context(), 7))

	// Switch to conversation 8; the old binding is torn down first
	f.mu.Lock()
	f.detail = &api.ConversationDetail{
		ID: 8, Subject: "Other", Status: api.StatusOpen,
		Messages: []api.Message{msg(10, 8, "in eight", t0, true)},
	}
	f.mu.Unlock()
	require.NoError(t, s.Activate(t.Context(), 8))

	assert.Equal(t, []int64{7}, c.leaves())
	assert.Equal(t, []int64{7, 8}, c.joins())

	// Events for the old conversation must not reach the new binding
	c.pushMessage(msg(2, 7, "late for seven", t0.Add(time.Second), false))

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, []int64{10}, messageIDs(s.Messages()))
}

func TestSession_PushedMessagesKeptOrdered(t *testing.T) {
	f, c := newFixture(msg(5, 7, "later", t0.Add(10*time.Second), false))
	s := newTestSession(f, c, nil)
	defer s.Deactivate(t.Context())

	require.NoError(t, s.Activate(t.Context(), 7))

	// Out-of-order push delivery: an older message arrives second
	c.pushMessage(msg(3, 7, "earlier", t0, true))

	require.Eventually(t, func() bool {
		ids := messageIDs(s.Messages())
		return len(ids) == 2 && ids[0] == 3 && ids[1] == 5
	}, time.Second, 5*time.Millisecond)
}

func TestSession_AutoSeenOnPushAppend(t *testing.T) {
	f, c := newFixture(msg(1, 7, "hello", t0, false))
	s := newTestSession(f, c, nil)
	defer s.Deactivate(t.Context())

	require.NoError(t, s.Activate(t.Context(), 7))
	c.pushMessage(msg(2, 7, "new", t0.Add(time.Second), true))

	require.Eventually(t, func() bool {
		c.mu.Lock()
		defer c.mu.Unlock()
		return len(c.seenCalls) == 1 && c.seenCalls[0] == 7
	}, time.Second, 5*time.Millisecond)
}

func TestSession_SendTriggersImmediateRefetch(t *testing.T) {
	f, c := newFixture(msg(1, 7, "hello", t0, false))
	s := newTestSession(f, c, nil)
	defer s.Deactivate(t.Context())

	require.NoError(t, s.Activate(t.Context(), 7))
	before := f.fetchCount()

	require.NoError(t, s.Send(t.Context(), "my reply"))

	f.mu.Lock()
	sent := append([]string(nil), f.sent...)
	f.mu.Unlock()
	assert.Equal(t, []string{"my reply"}, sent)

	// The send does not wait for the next poll tick
	assert.Greater(t, f.fetchCount(), before)
	assert.False(t, s.RemoteSeen())
}

func TestSession_SendFailureSurfacedForInputRestore(t *testing.T) {
	f, c := newFixture(msg(1, 7, "hello", t0, false))
	f.sendErr = errors.New("boom")
	s := newTestSession(f, c, nil)
	defer s.Deactivate(t.Context())

	require.NoError(t, s.Activate(t.Context(), 7))
	// The caller keeps the typed text and may retry
	require.Error(t, s.Send(t.Context(), "lost reply"))
}

func TestSession_SendWhileChannelDownDeliversViaPoll(t *testing.T) {
	f, c := newFixture()
	c.connectErr = errors.New("hub unreachable")
	s := newTestSession(f, c, nil)
	defer s.Deactivate(t.Context())

	// Activation degrades to poll-only instead of failing
	require.NoError(t, s.Activate(t.Context(), 7))

	require.NoError(t, s.Send(t.Context(), "offline reply"))

	// The backend persists it; the next poll tick surfaces it
	f.setMessages(msg(1, 7, "offline reply", t0, false))
	require.Eventually(t, func() bool {
		return len(s.Messages()) == 1
	}, time.Second, 5*time.Millisecond)
}

func TestSession_DraftTransitionHappensOnce(t *testing.T) {
	f, c := newFixture()
	f.mu.Lock()
	f.detail.ID = 42
	f.mu.Unlock()
	s := newTestSession(f, c, nil)

	s.ActivateDraft(t.Context())
	assert.Zero(t, s.ConversationID())

	// Nothing is joined or polled while the draft is empty
	time.Sleep(50 * time.Millisecond)
	assert.Empty(t, c.joins())
	assert.Zero(t, f.fetchCount())

	require.NoError(t, s.Send(t.Context(), "first message"))

	assert.Equal(t, int64(42), s.ConversationID())
	assert.Equal(t, []int64{42}, c.joins())
	f.mu.Lock()
	created := append([]string(nil), f.created...)
	f.mu.Unlock()
	assert.Equal(t, []string{"first message"}, created)

	// Teardown leaves the assigned id, never zero
	s.Deactivate(t.Context())
	assert.Equal(t, []int64{42}, c.leaves())
}

func TestSession_DraftPollerStartsAfterTransition(t *testing.T) {
	f, c := newFixture()
	f.mu.Lock()
	f.detail.ID = 42
	f.mu.Unlock()
	s := newTestSession(f, c, nil)
	defer s.Deactivate(t.Context())

	s.ActivateDraft(t.Context())
	require.NoError(t, s.Send(t.Context(), "first message"))

	before := f.fetchCount()
	time.Sleep(60 * time.Millisecond)
	assert.Greater(t, f.fetchCount(), before, "poller should run after the draft binds")
}

func TestSession_PollerNotStartedAfterDeactivation(t *testing.T) {
	f, c := newFixture()
	f.mu.Lock()
	f.detail.ID = 42
	f.mu.Unlock()
	s := newTestSession(f, c, nil)

	s.ActivateDraft(t.Context())
	s.Deactivate(t.Context())

	// A draft transition losing the race to Deactivate must not leave a
	// poller running with nobody holding its cancel
	s.startPollerForBound(t.Context())

	// If an orphan poller survived, it would start fetching the moment the
	// session looks live again
	s.mu.Lock()
	s.active = true
	s.conversationID = 42
	s.mu.Unlock()

	time.Sleep(60 * time.Millisecond)
	assert.Zero(t, f.fetchCount())
}

func TestSession_CountGateSkipsSameLengthFetch(t *testing.T) {
	updates := 0
	f, c := newFixture(msg(1, 7, "hello", t0, false))
	s := NewSession(f, c, Options{
		PollInterval: time.Hour, // keep the poller out of this test
		TypingExpiry: time.Hour,
	}, func() { updates++ }, nil)
	defer s.Deactivate(t.Context())

	require.NoError(t, s.Activate(t.Context(), 7))
	afterActivate := updates

	// Same length, same content: no re-render
	require.NoError(t, s.refresh(t.Context()))
	assert.Equal(t, afterActivate, updates)

	// Length change: re-render
	f.setMessages(msg(1, 7, "hello", t0, false), msg(2, 7, "more", t0.Add(time.Second), true))
	require.NoError(t, s.refresh(t.Context()))
	assert.Greater(t, updates, afterActivate)
}

func TestSession_StaleOverlappingFetchDiscarded(t *testing.T) {
	older := &api.ConversationDetail{
		ID: 7, Subject: "Support", Status: api.StatusOpen,
		Messages: []api.Message{msg(1, 7, "hello", t0, false)},
	}
	newer := &api.ConversationDetail{
		ID: 7, Subject: "Support", Status: api.StatusOpen,
		Messages: []api.Message{
			msg(1, 7, "hello", t0, false),
			msg(2, 7, "newer", t0.Add(time.Second), true),
		},
	}

	release := make(chan struct{})
	f, c := newFixture()
	f.onFetch = func(seq int) *api.ConversationDetail {
		if seq == 1 {
			// The first fetch stalls and completes after the second
			<-release
			return older
		}
		return newer
	}

	s := NewSession(f, c, Options{PollInterval: time.Hour, TypingExpiry: time.Hour}, nil, nil)
	defer s.Deactivate(t.Context())

	s.start(t.Context(), 7)

	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = s.refresh(t.Context()) // seq 1, stalled
	}()

	require.Eventually(t, func() bool { return f.fetchCount() == 1 },
		time.Second, time.Millisecond)

	require.NoError(t, s.refresh(t.Context())) // seq 2, lands first
	require.Equal(t, []int64{1, 2}, messageIDs(s.Messages()))

	close(release)
	<-done

	// The older completion must not regress the displayed state
	assert.Equal(t, []int64{1, 2}, messageIDs(s.Messages()))
}

func TestSession_TypingIndicatorAutoExpires(t *testing.T) {
	f, c := newFixture(msg(1, 7, "hello", t0, false))
	s := newTestSession(f, c, nil)
	defer s.Deactivate(t.Context())

	require.NoError(t, s.Activate(t.Context(), 7))

	c.push(hub.Event{Kind: hub.KindTyping})

	require.Eventually(t, func() bool { return s.TypingActive() },
		time.Second, time.Millisecond)

	// No stop event exists in the protocol; the indicator clears itself
	require.Eventually(t, func() bool { return !s.TypingActive() },
		time.Second, time.Millisecond)
}

func TestSession_SeenEventSetsRemoteSeenUntilNextSend(t *testing.T) {
	f, c := newFixture(msg(1, 7, "hello", t0, false))
	s := newTestSession(f, c, nil)
	defer s.Deactivate(t.Context())

	require.NoError(t, s.Activate(t.Context(), 7))

	c.push(hub.Event{Kind: hub.KindSeen})
	require.Eventually(t, func() bool { return s.RemoteSeen() },
		time.Second, time.Millisecond)

	require.NoError(t, s.Send(t.Context(), "another"))
	assert.False(t, s.RemoteSeen())
}

func TestSession_CloseFlipsStatus(t *testing.T) {
	f, c := newFixture(msg(1, 7, "hello", t0, false))
	// Long intervals: a poll tick would re-apply the server-side status
	s := NewSession(f, c, Options{PollInterval: time.Hour, TypingExpiry: time.Hour}, nil, nil)
	defer s.Deactivate(t.Context())

	require.NoError(t, s.Activate(t.Context(), 7))
	require.NoError(t, s.Close(t.Context()))

	f.mu.Lock()
	closed := append([]int64(nil), f.closed...)
	f.mu.Unlock()
	assert.Equal(t, []int64{7}, closed)
	assert.Equal(t, api.StatusClosed, s.Status())
}

func TestSession_DeactivateStopsPolling(t *testing.T) {
	f, c := newFixture(msg(1, 7, "hello", t0, false))
	s := newTestSession(f, c, nil)

	require.NoError(t, s.Activate(t.Context(), 7))
	s.Deactivate(t.Context())

	count := f.fetchCount()
	time.Sleep(80 * time.Millisecond)
	assert.Equal(t, count, f.fetchCount(), "poller must stop with the session")

	assert.Equal(t, []int64{7}, c.leaves())
}

func TestSession_NotifyTypingForwardsForBoundSessionOnly(t *testing.T) {
	f, c := newFixture(msg(1, 7, "hello", t0, false))
	s := newTestSession(f, c, nil)
	defer s.Deactivate(t.Context())

	s.ActivateDraft(t.Context())
	s.NotifyTyping(t.Context())

	c.mu.Lock()
	assert.Empty(t, c.typed)
	c.mu.Unlock()

	require.NoError(t, s.Activate(t.Context(), 7))
	s.NotifyTyping(t.Context())

	c.mu.Lock()
	assert.Equal(t, []int64{7}, c.typed)
	c.mu.Unlock()
}
