// ABOUTME: Test doubles for session tests: scripted fetcher and channel
// ABOUTME: The channel fake records invocations and feeds push events

package conversation

import (
	"context"
	"sync"

	"github.com/gamevault/supportchat/internal/api"
	"github.com/gamevault/supportchat/internal/hub"
)

func boolPtr(v bool) *bool { return &v }

// fakeFetcher serves a mutable conversation detail and records writes.
type fakeFetcher struct {
	mu       sync.Mutex
	detail   *api.ConversationDetail
	fetchErr error
	nextID   int64
	sendErr  error
	sent     []string
	created  []string
	closed   []int64
	fetches  int
	onFetch  func(seq int) *api.ConversationDetail // optional scripted responses
}

func (f *fakeFetcher) Conversation(_ context.Context, _ int64) (*api.ConversationDetail, error) {
	f.mu.Lock()
	f.fetches++
	seq := f.fetches
	onFetch := f.onFetch
	err := f.fetchErr
	f.mu.Unlock()

	if err != nil {
		return nil, err
	}
	if onFetch != nil {
		// The closure may block to simulate an overlapping slow fetch
		return onFetch(seq), nil
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *f.detail
	cp.Messages = append([]api.Message(nil), f.detail.Messages...)
	return &cp, nil
}

func (f *fakeFetcher) CreateConversation(_ context.Context, message string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.created = append(f.created, message)
	return f.nextID, nil
}

func (f *fakeFetcher) SendMessage(_ context.Context, _ int64, message string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return f.sendErr
	}
	f.sent = append(f.sent, message)
	return nil
}

func (f *fakeFetcher) CloseConversation(_ context.Context, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = append(f.closed, id)
	return nil
}

func (f *fakeFetcher) setMessages(msgs ...api.Message) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.detail.Messages = msgs
}

func (f *fakeFetcher) fetchCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.fetches
}

// fakeChannel records outbound calls and broadcasts scripted events.
type fakeChannel struct {
	mu          sync.Mutex
	joined      []int64
	left        []int64
	typed       []int64
	seenCalls   []int64
	connectErr  error
	subscribers []chan hub.Event
}

func (c *fakeChannel) Connect(context.Context) error { return c.connectErr }

func (c *fakeChannel) Subscribe(ctx context.Context) (<-chan hub.Event, string) {
	ch := make(chan hub.Event, 64)
	c.mu.Lock()
	c.subscribers = append(c.subscribers, ch)
	c.mu.Unlock()
	return ch, "sub"
}

func (c *fakeChannel) JoinConversation(_ context.Context, id int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.joined = append(c.joined, id)
}

func (c *fakeChannel) LeaveConversation(_ context.Context, id int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.left = append(c.left, id)
}

func (c *fakeChannel) Typing(_ context.Context, id int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.typed = append(c.typed, id)
}

func (c *fakeChannel) Seen(_ context.Context, id int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seenCalls = append(c.seenCalls, id)
}

// push broadcasts an event to every subscriber.
func (c *fakeChannel) push(ev hub.Event) {
	c.mu.Lock()
	subs := append([]chan hub.Event(nil), c.subscribers...)
	c.mu.Unlock()
	for _, ch := range subs {
		ch <- ev
	}
}

// pushMessage broadcasts a message event the way the hub would.
func (c *fakeChannel) pushMessage(msg api.Message) {
	c.push(hub.Event{Kind: hub.KindMessage, Message: &msg, ConversationID: msg.ConversationID})
}

func (c *fakeChannel) joins() []int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]int64(nil), c.joined...)
}

func (c *fakeChannel) leaves() []int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]int64(nil), c.left...)
}
