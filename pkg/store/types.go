package store

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a key or transcript does not exist.
var ErrNotFound = errors.New("not found")

// EntryType defines the kind of transcript line.
type EntryType string

const (
	TypeSession EntryType = "session"
	TypeTurn    EntryType = "turn"
)

// Header is the first line of a transcript file.
type Header struct {
	Type      EntryType `json:"type"` // Always "session"
	ID        string    `json:"id"`
	BaseURL   string    `json:"base_url,omitempty"`
	Version   int       `json:"version"`
	CreatedAt time.Time `json:"timestamp"`
}

// Entry is one line of a transcript after the header.
type Entry struct {
	Type           EntryType `json:"type"`
	ID             string    `json:"id"`
	ConversationID string    `json:"conversation_id,omitempty"`
	Timestamp      time.Time `json:"timestamp"`

	Turn *TurnEntry `json:"turn,omitempty"`
}

// TurnEntry records a single chat turn.
type TurnEntry struct {
	Role    string   `json:"role"`
	Content string   `json:"content"`
	Sources []string `json:"sources,omitempty"`
	Tool    string   `json:"tool,omitempty"`
	Failed  bool     `json:"failed,omitempty"`
}

// TranscriptInfo provides metadata about a transcript file.
type TranscriptInfo struct {
	ID        string
	Path      string
	BaseURL   string
	Created   time.Time
	Modified  time.Time
	TurnCount int
}
