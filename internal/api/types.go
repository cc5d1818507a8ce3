// ABOUTME: Domain types shared across the client: conversations, summaries, messages
// ABOUTME: Mirrors the backend wire format, including the required sender role flag

package api

import "time"

// Status is the lifecycle state of a conversation.
type Status string

const (
	StatusOpen   Status = "Open"
	StatusClosed Status = "Closed"
)

// Participant identifies the end user on an admin inbox entry.
type Participant struct {
	Username string `json:"username"`
	Email    string `json:"email,omitempty"`
}

// ConversationSummary is one entry in a conversation list. LastMessage and
// UnreadCount are mutated in place by the inbox synchronizer as push events
// and refreshes arrive.
type ConversationSummary struct {
	ID          int64      `json:"id"`
	Subject     string     `json:"subject"`
	Status      Status     `json:"status"`
	CreatedAt   time.Time  `json:"createdAt"`
	ClosedAt    *time.Time `json:"closedAt,omitempty"`
	LastMessage string     `json:"lastMessage,omitempty"`
	UnreadCount int        `json:"unreadCount,omitempty"`

	// User is only populated on admin inbox entries.
	User *Participant `json:"user,omitempty"`
}

// Message is a single conversation message. Immutable once created.
// Ordering is CreatedAt ascending with ID as tie-break.
//
// IsAdmin is a pointer because a payload missing the role flag is malformed
// and must be discarded, not defaulted: rendering depends on knowing which
// side sent the message.
type Message struct {
	ID             int64     `json:"id"`
	ConversationID int64     `json:"conversationId"`
	Body           string    `json:"message"`
	CreatedAt      time.Time `json:"createdAt"`
	IsAdmin        *bool     `json:"isAdmin"`
	SenderUsername string    `json:"senderUsername"`
	SenderEmail    string    `json:"senderEmail,omitempty"`
}

// Valid reports whether the message carries the required sender role flag.
func (m Message) Valid() bool {
	return m.IsAdmin != nil
}

// FromAdmin reports whether the message was sent by an admin.
// Only meaningful when Valid.
func (m Message) FromAdmin() bool {
	return m.IsAdmin != nil && *m.IsAdmin
}

// Before reports whether m sorts before other: CreatedAt ascending,
// ID as tie-break.
func (m Message) Before(other Message) bool {
	if !m.CreatedAt.Equal(other.CreatedAt) {
		return m.CreatedAt.Before(other.CreatedAt)
	}
	return m.ID < other.ID
}

// ConversationDetail is the full thread returned by the read API.
type ConversationDetail struct {
	ID       int64     `json:"id"`
	Subject  string    `json:"subject"`
	Status   Status    `json:"status"`
	Messages []Message `json:"messages"`
}
