package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// Notifier delivers outbound notifications to the chat platform. Both calls
// are best-effort: callers fire them after the triggering operation has
// committed and must not let a delivery failure unwind anything.
type Notifier interface {
	// SendDirectMessage delivers text to one external user.
	SendDirectMessage(ctx context.Context, externalUserID, text string) error
	// Announce posts text to the configured announcements channel.
	Announce(ctx context.Context, text string) error
}

// Noop discards all notifications.
type Noop struct{}

func (Noop) SendDirectMessage(ctx context.Context, externalUserID, text string) error { return nil }
func (Noop) Announce(ctx context.Context, text string) error                          { return nil }

// DefaultTimeout bounds a single delivery attempt.
const DefaultTimeout = 5 * time.Second

// HTTPNotifier posts notifications to the presentation-layer bot service.
type HTTPNotifier struct {
	baseURL string
	client  *http.Client
}

// NewHTTPNotifier creates a notifier for the bot service at baseURL.
func NewHTTPNotifier(baseURL string) *HTTPNotifier {
	return &HTTPNotifier{
		baseURL: baseURL,
		client:  &http.Client{Timeout: DefaultTimeout},
	}
}

type directMessageRequest struct {
	UserID string `json:"user_id"`
	Text   string `json:"text"`
}

type announceRequest struct {
	Text string `json:"text"`
}

// SendDirectMessage posts {user_id, text} to POST {base}/dm.
func (n *HTTPNotifier) SendDirectMessage(ctx context.Context, externalUserID, text string) error {
	return n.post(ctx, "/dm", directMessageRequest{UserID: externalUserID, Text: text})
}

// Announce posts {text} to POST {base}/announce.
func (n *HTTPNotifier) Announce(ctx context.Context, text string) error {
	return n.post(ctx, "/announce", announceRequest{Text: text})
}

func (n *HTTPNotifier) post(ctx context.Context, path string, payload interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build notification request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send notification: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("send notification: unexpected status %d", resp.StatusCode)
	}
	return nil
}
