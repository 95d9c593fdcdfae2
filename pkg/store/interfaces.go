package store

import "context"

// Store is a small durable key-value slot. The console keeps its bearer
// token here, the same way a browser keeps it in local storage.
type Store interface {
	// Get returns the value stored under key, or ErrNotFound.
	Get(ctx context.Context, key string) (string, error)

	// Set stores value under key, replacing any previous value.
	Set(ctx context.Context, key, value string) error

	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	// Close releases any resources held by the store.
	Close() error
}

// TranscriptManager creates and lists conversation transcripts in a directory.
type TranscriptManager interface {
	// NewTranscript starts an empty transcript for a chat against baseURL.
	NewTranscript(baseURL string) (Transcript, error)

	// LoadTranscript opens an existing transcript by its ID.
	LoadTranscript(id string) (Transcript, error)

	// ListTranscripts returns metadata for all transcripts, most recent first.
	ListTranscripts() ([]TranscriptInfo, error)
}

// Transcript is an append-only record of one conversation session.
type Transcript interface {
	// ID returns the transcript's unique identifier.
	ID() string

	// Path returns the absolute path to the transcript file.
	Path() string

	// Header returns the transcript metadata.
	Header() Header

	// Append persists an entry at the end of the transcript.
	Append(entry Entry) error

	// Entries returns every entry in append order.
	Entries() ([]Entry, error)

	// Close releases the underlying file handle.
	Close() error
}
