// ABOUTME: HTTP client for the conversations REST API (user and admin surfaces)
// ABOUTME: Authoritative read path and message/conversation creation endpoints

package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

// TokenSource supplies the bearer token for outgoing requests.
// An empty token means the request goes out unauthenticated.
type TokenSource interface {
	Token() string
}

// Client talks to the conversations REST API. It is the authoritative read
// path: the realtime channel only hints that something changed, the data
// always comes from here.
type Client struct {
	baseURL string
	http    *http.Client
	tokens  TokenSource
	logger  *slog.Logger
}

// NewClient creates an API client rooted at baseURL (e.g. "http://host/api").
// Pass nil logger for slog.Default.
func NewClient(baseURL string, tokens TokenSource, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: 15 * time.Second},
		tokens:  tokens,
		logger:  logger.With("component", "api"),
	}
}

// MyConversations fetches the current user's conversation list.
func (c *Client) MyConversations(ctx context.Context) ([]ConversationSummary, error) {
	var out []ConversationSummary
	if err := c.get(ctx, "/conversations/my", &out); err != nil {
		return nil, err
	}
	return out, nil
}

// AdminConversations fetches the full admin inbox with embedded participant
// identity on each entry.
func (c *Client) AdminConversations(ctx context.Context) ([]ConversationSummary, error) {
	var out []ConversationSummary
	if err := c.get(ctx, "/admin/conversations", &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Conversation fetches a single conversation with its full message history.
func (c *Client) Conversation(ctx context.Context, id int64) (*ConversationDetail, error) {
	var out ConversationDetail
	if err := c.get(ctx, fmt.Sprintf("/conversations/%d", id), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// createConversationResponse is the body returned by POST /conversations.
type createConversationResponse struct {
	Message        string `json:"message"`
	ConversationID int64  `json:"conversationId"`
}

// CreateConversation creates a conversation and its first message atomically,
// returning the assigned conversation id.
func (c *Client) CreateConversation(ctx context.Context, message string) (int64, error) {
	var out createConversationResponse
	if err := c.post(ctx, "/conversations", map[string]string{"message": message}, &out); err != nil {
		return 0, err
	}
	return out.ConversationID, nil
}

// SendMessage posts a message to an existing conversation. The response body
// is not trusted; callers re-fetch the thread instead.
func (c *Client) SendMessage(ctx context.Context, conversationID int64, message string) error {
	return c.post(ctx, fmt.Sprintf("/conversations/%d/messages", conversationID), map[string]string{"message": message}, nil)
}

// CloseConversation closes a conversation. Admin only.
func (c *Client) CloseConversation(ctx context.Context, conversationID int64) error {
	return c.post(ctx, fmt.Sprintf("/admin/conversations/%d/close", conversationID), struct{}{}, nil)
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	return c.do(req, out)
}

func (c *Client) post(ctx context.Context, path string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encoding request body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out any) error {
	if token := c.tokens.Token(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		// Drain a little of the body for context; never trust it fully
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		return fmt.Errorf("%s %s: unexpected status %d: %s", req.Method, req.URL.Path, resp.StatusCode, snippet)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%s %s: decoding response: %w", req.Method, req.URL.Path, err)
	}
	return nil
}
