package types

// Roles used across the chat transport and session transcript.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)

// Turn is a single prior exchange sent with each chat request, oldest-first.
type Turn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ChatRequest struct {
	Message             string `json:"message"`
	ConversationHistory []Turn `json:"conversationHistory,omitempty"`
}

// StreamFrame is one server-push event. Content carries the full accumulated
// answer so far, not a delta; clients replace their buffer with each frame.
type StreamFrame struct {
	Content string `json:"content"`
}

// Sentinel is the literal end-of-stream marker emitted after the last frame.
const Sentinel = "[DONE]"

type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
	ResetAt int64  `json:"resetAt,omitempty"`
}

type HealthResponse struct {
	Status string `json:"status"`
	Model  string `json:"model"`
}
