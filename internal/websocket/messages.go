package websocket

// MessageType is the closed set of bridge message kinds. Dispatch matches it
// exhaustively; anything else is an unknown type.
type MessageType string

const (
	TypeFetchProfile MessageType = "fetch_profile"
	TypeLinkAccount  MessageType = "link_account"
	TypeGrantXP      MessageType = "grant_xp"
	TypePlayerJoin   MessageType = "player_join"
	TypePlayerLeave  MessageType = "player_leave"
)

// InboundMessage is the envelope for messages from a game server to the bridge.
type InboundMessage struct {
	Type          MessageType `json:"type"`
	SteamID       string      `json:"steamId,omitempty"`
	Token         string      `json:"token,omitempty"`
	Content       *string     `json:"content,omitempty"`
	CorrelationID string      `json:"correlationId,omitempty"`
}

// OutboundMessage is the envelope for responses from the bridge. Type is
// either "<requestType>_response" or "error". A response is only written when
// the request carried a correlation id.
type OutboundMessage struct {
	Type          string `json:"type"`
	CorrelationID string `json:"correlationId,omitempty"`
	Success       bool   `json:"success"`
	Content       string `json:"content,omitempty"`
	Error         string `json:"error,omitempty"`
}

// ResponseTypeError is the outbound type for unroutable messages.
const ResponseTypeError = "error"

// responseType returns the outbound type tag paired with a request type.
func responseType(t MessageType) string {
	return string(t) + "_response"
}

// content returns the message's content string, or "" when absent/null.
func (m *InboundMessage) content() string {
	if m.Content == nil {
		return ""
	}
	return *m.Content
}
