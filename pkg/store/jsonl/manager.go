package jsonl

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/portfolia/console/pkg/store"
)

// Manager implements the store.TranscriptManager interface using JSONL files.
type Manager struct {
	dir string
	mu  sync.Mutex
}

var _ store.TranscriptManager = (*Manager)(nil)

// NewManager returns a Manager that keeps transcripts under dir.
func NewManager(dir string) (*Manager, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create transcript directory: %w", err)
	}
	return &Manager{dir: dir}, nil
}

// Index represents the index.json structure
type Index struct {
	Transcripts []TranscriptMeta `json:"transcripts"`
}

type TranscriptMeta struct {
	ID        string    `json:"id"`
	Path      string    `json:"path"`
	BaseURL   string    `json:"base_url,omitempty"`
	Created   time.Time `json:"created"`
	Modified  time.Time `json:"modified"`
	TurnCount int       `json:"turn_count"`
}

func (m *Manager) indexPath() string {
	return filepath.Join(m.dir, "index.json")
}

func (m *Manager) readIndex() (Index, error) {
	var idx Index
	data, err := os.ReadFile(m.indexPath())
	if errors.Is(err, os.ErrNotExist) {
		return idx, nil
	}
	if err != nil {
		return idx, err
	}
	if err := json.Unmarshal(data, &idx); err != nil {
		return idx, fmt.Errorf("parse transcript index: %w", err)
	}
	return idx, nil
}

func (m *Manager) writeIndex(idx Index) error {
	data, err := json.MarshalIndent(idx, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(m.indexPath(), data, 0o644)
}

// updateIndex applies fn to the meta with the given ID, appending it first
// when it is not indexed yet.
func (m *Manager) updateIndex(id string, fn func(*TranscriptMeta)) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	idx, err := m.readIndex()
	if err != nil {
		return err
	}
	pos := -1
	for i := range idx.Transcripts {
		if idx.Transcripts[i].ID == id {
			pos = i
			break
		}
	}
	if pos < 0 {
		idx.Transcripts = append(idx.Transcripts, TranscriptMeta{ID: id})
		pos = len(idx.Transcripts) - 1
	}
	fn(&idx.Transcripts[pos])
	return m.writeIndex(idx)
}

func (m *Manager) touch(id string) {
	err := m.updateIndex(id, func(meta *TranscriptMeta) {
		meta.Modified = time.Now()
		meta.TurnCount++
	})
	if err != nil {
		slog.Error("Failed to update transcript index", "transcriptID", id, "error", err)
	}
}

func (m *Manager) NewTranscript(baseURL string) (store.Transcript, error) {
	id := uuid.New().String()
	path := filepath.Join(m.dir, id+".jsonl")

	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR|os.O_EXCL|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("create transcript file: %w", err)
	}

	now := time.Now()
	t := &Transcript{
		id:         id,
		filePath:   path,
		fileHandle: f,
		notify:     m.touch,
		header: store.Header{
			Type:      store.TypeSession,
			ID:        id,
			BaseURL:   baseURL,
			Version:   1,
			CreatedAt: now,
		},
	}
	if err := t.writeLine(t.header); err != nil {
		f.Close()
		return nil, fmt.Errorf("write transcript header: %w", err)
	}

	err = m.updateIndex(id, func(meta *TranscriptMeta) {
		meta.Path = path
		meta.BaseURL = baseURL
		meta.Created = now
		meta.Modified = now
	})
	if err != nil {
		slog.Error("Failed to update transcript index", "error", err)
	}

	return t, nil
}

func (m *Manager) LoadTranscript(id string) (store.Transcript, error) {
	// IDs are generated UUIDs; anything else would resolve outside dir.
	if _, err := uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("transcript %q: %w", id, store.ErrNotFound)
	}
	path := filepath.Join(m.dir, id+".jsonl")
	f, err := os.OpenFile(path, os.O_RDWR|os.O_APPEND, 0o644)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("transcript %s: %w", id, store.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("open transcript file: %w", err)
	}

	t := &Transcript{
		id:         id,
		filePath:   path,
		fileHandle: f,
		notify:     m.touch,
	}

	// The header is the first line; entries are read lazily.
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	if !sc.Scan() {
		f.Close()
		return nil, fmt.Errorf("transcript %s: missing header", id)
	}
	if err := json.Unmarshal(sc.Bytes(), &t.header); err != nil {
		f.Close()
		return nil, fmt.Errorf("parse transcript header: %w", err)
	}
	return t, nil
}

func (m *Manager) ListTranscripts() ([]store.TranscriptInfo, error) {
	m.mu.Lock()
	idx, err := m.readIndex()
	m.mu.Unlock()
	if err != nil {
		return nil, err
	}

	infos := make([]store.TranscriptInfo, 0, len(idx.Transcripts))
	for _, meta := range idx.Transcripts {
		infos = append(infos, store.TranscriptInfo{
			ID:        meta.ID,
			Path:      meta.Path,
			BaseURL:   meta.BaseURL,
			Created:   meta.Created,
			Modified:  meta.Modified,
			TurnCount: meta.TurnCount,
		})
	}
	sort.Slice(infos, func(i, j int) bool {
		return infos[i].Modified.After(infos[j].Modified)
	})
	return infos, nil
}
