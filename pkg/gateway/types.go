package gateway

// TokenResponse is the body returned by the token endpoint.
type TokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type,omitempty"`
}

// ChatRequest is one chat turn sent to the backend.
type ChatRequest struct {
	Message        string `json:"message"`
	ConversationID string `json:"conversation_id,omitempty"`
	IncludeSources bool   `json:"include_sources"`
}

// Source is a citation attached to a retrieval-backed reply.
type Source struct {
	Source string `json:"source"`
}

// ChatResponse is the backend's reply to a chat turn.
type ChatResponse struct {
	Response       string   `json:"response"`
	ConversationID string   `json:"conversation_id"`
	Sources        []Source `json:"sources,omitempty"`
	ToolUsed       string   `json:"tool_used,omitempty"`
}

// UploadResponse reports how much of an uploaded document was ingested.
type UploadResponse struct {
	ChunksAdded int `json:"chunks_added"`
}

// Stats is the backend's document statistics. Its shape is backend defined.
type Stats map[string]any
