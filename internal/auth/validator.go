package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// Validator checks a per-message identity/token pair against the external
// token-validation endpoint. Every inbound bridge message is validated
// independently; there is no session-level authenticated state.
type Validator interface {
	Validate(ctx context.Context, steamID, token string) error
}

// ValidatorFunc adapts a function to the Validator interface.
type ValidatorFunc func(ctx context.Context, steamID, token string) error

func (f ValidatorFunc) Validate(ctx context.Context, steamID, token string) error {
	return f(ctx, steamID, token)
}

// DefaultTimeout bounds one validation round trip.
const DefaultTimeout = 5 * time.Second

// HTTPValidator validates tokens by POSTing to an external endpoint.
// Any non-2xx response or transport fault is an authentication failure.
type HTTPValidator struct {
	url    string
	client *http.Client
}

// NewHTTPValidator creates a validator for the given endpoint URL.
func NewHTTPValidator(url string) *HTTPValidator {
	return &HTTPValidator{
		url:    url,
		client: &http.Client{Timeout: DefaultTimeout},
	}
}

type validateRequest struct {
	SteamID string `json:"steamId"`
	Token   string `json:"token"`
}

type validateResponse struct {
	SteamID string `json:"steamId"`
	Status  string `json:"status"`
}

// Validate POSTs {steamId, token} and accepts only a 2xx response.
func (v *HTTPValidator) Validate(ctx context.Context, steamID, token string) error {
	if steamID == "" || token == "" {
		return fmt.Errorf("missing steam id or token")
	}

	body, err := json.Marshal(validateRequest{SteamID: steamID, Token: token})
	if err != nil {
		return fmt.Errorf("marshal validation request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, v.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build validation request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := v.client.Do(req)
	if err != nil {
		return fmt.Errorf("token validation request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("token validation rejected: status %d", resp.StatusCode)
	}

	// The body is informational; a decode failure does not reject a 2xx.
	var vr validateResponse
	_ = json.NewDecoder(resp.Body).Decode(&vr)
	return nil
}
