package chat

import "time"

// Role identifies who authored a turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Source is a citation attached to an assistant reply that used retrieval.
type Source struct {
	Source string `json:"source"`
}

// Turn is one entry in the conversation log. Turns are never modified once
// appended.
type Turn struct {
	ID        string    `json:"id"`
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Sources   []Source  `json:"sources,omitempty"`
	Tool      string    `json:"tool,omitempty"`
	Failed    bool      `json:"failed,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// ErrorReply is the assistant turn appended when a chat request fails.
const ErrorReply = "❌ Sorry, I encountered an error. Please check if the backend is running."

// DefaultGreeting is the assistant's opening line in the chat widget.
const DefaultGreeting = "Hi! Ask me anything about my experience, projects, or AI in general!"
