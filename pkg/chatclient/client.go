// Package chatclient is a Go client for the shout-chat API that mirrors one
// session's transcript locally. Sends are optimistic: the user message shows
// up immediately under a temporary id and is reconciled against the
// server-confirmed pair, rolled back on failure, or capped with a synthetic
// stop marker when the caller aborts the generation.
package chatclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"

	// StoppedMarkerContent is the excluded entry appended when the caller
	// aborts a generation. It exists only in local state.
	StoppedMarkerContent = "You stopped this response"
)

var (
	ErrSendInFlight   = errors.New("a send is already in flight")
	ErrStopped        = errors.New("generation stopped by caller")
	ErrUnknownMessage = errors.New("message not in local transcript")
)

// Message is the client-side transcript entry. Excluded marks synthetic
// local-only entries that are never sent to the server.
type Message struct {
	ID        string    `json:"id"`
	SessionID string    `json:"session_id"`
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	ModelUsed string    `json:"model_used,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	Excluded  bool      `json:"-"`
}

type turnResult struct {
	UserMessage      Message `json:"user_message"`
	AssistantMessage Message `json:"assistant_message"`
}

type editResult struct {
	EditedMessage    Message `json:"edited_message"`
	AssistantMessage Message `json:"assistant_message"`
}

type apiEnvelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

const codeGenerationCancelled = 49900

type Client struct {
	baseURL    string
	sessionID  string
	httpClient *http.Client

	mu       sync.Mutex
	messages []Message
	sending  bool
	cancel   context.CancelFunc
}

func New(baseURL, sessionID string) *Client {
	if sessionID == "" {
		sessionID = uuid.NewString()
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		sessionID:  sessionID,
		httpClient: &http.Client{Timeout: 120 * time.Second},
	}
}

func (c *Client) SessionID() string {
	return c.sessionID
}

// Messages returns a snapshot of the local transcript.
func (c *Client) Messages() []Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Message, len(c.messages))
	copy(out, c.messages)
	return out
}

func (c *Client) Sending() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sending
}

// Refresh replaces local state with the server-confirmed transcript.
// Synthetic excluded entries are dropped; the server is the authority.
func (c *Client) Refresh(ctx context.Context) error {
	var history []Message
	if err := c.do(ctx, http.MethodGet, "/api/v1/chat/history/"+c.sessionID, nil, &history); err != nil {
		return err
	}
	c.mu.Lock()
	c.messages = history
	c.mu.Unlock()
	return nil
}

// Send submits one turn. Only one send may be in flight; Stop aborts it.
// On abort the optimistic user message stays (the server persisted it) and a
// local stop marker is appended; on any other failure the optimistic entry is
// rolled back.
func (c *Client) Send(ctx context.Context, content string) error {
	c.mu.Lock()
	if c.sending {
		c.mu.Unlock()
		return ErrSendInFlight
	}
	sendCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel

	tempID := uuid.NewString()
	c.messages = append(c.messages, Message{
		ID:        tempID,
		SessionID: c.sessionID,
		Role:      RoleUser,
		Content:   content,
		CreatedAt: time.Now(),
	})
	c.sending = true
	c.mu.Unlock()

	var result turnResult
	err := c.do(sendCtx, http.MethodPost, "/api/v1/chat/message", map[string]string{
		"session_id": c.sessionID,
		"content":    content,
	}, &result)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.sending = false
	c.cancel = nil
	cancel()

	if err != nil {
		if isCancelled(sendCtx, err) {
			c.messages = append(c.messages, Message{
				ID:        uuid.NewString(),
				SessionID: c.sessionID,
				Role:      RoleAssistant,
				Content:   StoppedMarkerContent,
				CreatedAt: time.Now(),
				Excluded:  true,
			})
			return ErrStopped
		}
		c.removeLocked(tempID)
		return err
	}

	for i := range c.messages {
		if c.messages[i].ID == tempID {
			c.messages[i] = result.UserMessage
			break
		}
	}
	c.messages = append(c.messages, result.AssistantMessage)
	return nil
}

// Stop aborts the in-flight send, if any.
func (c *Client) Stop() {
	c.mu.Lock()
	cancel := c.cancel
	c.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// Edit truncates the local transcript at the target, rewrites its content
// optimistically, asks the server to edit-and-regenerate, then re-fetches the
// full history so local state converges on the server's regardless of how the
// local truncation went. The sending flag stays set until the re-fetch
// finishes: a send admitted mid-refresh would have its optimistic entry
// wiped by the wholesale replace.
func (c *Client) Edit(ctx context.Context, messageID, newContent string) error {
	c.mu.Lock()
	if c.sending {
		c.mu.Unlock()
		return ErrSendInFlight
	}
	idx := -1
	for i := range c.messages {
		if c.messages[i].ID == messageID {
			idx = i
			break
		}
	}
	if idx == -1 {
		c.mu.Unlock()
		return ErrUnknownMessage
	}
	c.messages = c.messages[:idx+1]
	c.messages[idx].Content = newContent
	c.sending = true
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		c.sending = false
		c.mu.Unlock()
	}()

	var result editResult
	if err := c.do(ctx, http.MethodPut, "/api/v1/chat/message/"+messageID, map[string]string{
		"content": newContent,
	}, &result); err != nil {
		return err
	}
	return c.Refresh(ctx)
}

// DeleteMessage removes the message on the server and locally.
func (c *Client) DeleteMessage(ctx context.Context, messageID string) error {
	if err := c.do(ctx, http.MethodDelete, "/api/v1/chat/message/"+messageID, nil, nil); err != nil {
		return err
	}
	c.mu.Lock()
	c.removeLocked(messageID)
	c.mu.Unlock()
	return nil
}

// Clear empties the session on the server and locally.
func (c *Client) Clear(ctx context.Context) error {
	if err := c.do(ctx, http.MethodDelete, "/api/v1/chat/history/"+c.sessionID, nil, nil); err != nil {
		return err
	}
	c.mu.Lock()
	c.messages = nil
	c.mu.Unlock()
	return nil
}

func (c *Client) removeLocked(messageID string) {
	kept := c.messages[:0]
	for _, m := range c.messages {
		if m.ID != messageID {
			kept = append(kept, m)
		}
	}
	c.messages = kept
}

func (c *Client) do(ctx context.Context, method, path string, body interface{}, out interface{}) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request failed: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request failed: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response failed: %w", err)
	}

	var envelope apiEnvelope
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return fmt.Errorf("parse response failed: %w", err)
	}
	if resp.StatusCode >= 300 {
		if envelope.Code == codeGenerationCancelled {
			return ErrStopped
		}
		return fmt.Errorf("api error (status %d): %s", resp.StatusCode, envelope.Message)
	}

	if out != nil && len(envelope.Data) > 0 {
		if err := json.Unmarshal(envelope.Data, out); err != nil {
			return fmt.Errorf("parse response data failed: %w", err)
		}
	}
	return nil
}

func isCancelled(ctx context.Context, err error) bool {
	return errors.Is(err, ErrStopped) || errors.Is(err, context.Canceled) || ctx.Err() != nil
}
