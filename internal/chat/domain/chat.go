// Package domain defines the types exchanged on the POST /chat route and
// between the chat service and the language model.
//
// The server keeps no conversation state. The widget sends the whole
// history with every message and appends the reply to it afterwards:
//
//	{"message": "My drain is clogged", "siteId": "demo-plumber",
//	 "history": [{"role": "assistant", "content": "Hi! How can I help?"}]}
package domain

// Conversation roles accepted in ChatRequest.History.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ============================================================
// Chat — request/response between the widget and the server
// ============================================================

// Turn is one prior message of the conversation.
type Turn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatRequest is the body of POST /chat.
// SiteID is optional; the configured default tenant is used when empty.
type ChatRequest struct {
	Message string `json:"message"`
	History []Turn `json:"history"`
	SiteID  string `json:"siteId"`
}

// ChatResponse is what the widget receives. Reply never contains the
// lead marker line.
type ChatResponse struct {
	Reply string `json:"reply"`
}

// ============================================================
// Completion — what the language model returned for one request
// ============================================================

// Completion is the model's raw reply plus token accounting.
type Completion struct {
	Text             string
	PromptTokens     int
	CompletionTokens int
}
