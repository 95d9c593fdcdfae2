package store_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/google/uuid"

	"github.com/portfolia/console/pkg/store"
	"github.com/portfolia/console/pkg/store/file"
	"github.com/portfolia/console/pkg/store/jsonl"
	"github.com/portfolia/console/pkg/store/sqlite"
)

func backends(t *testing.T) map[string]func(dir string) store.Store {
	return map[string]func(dir string) store.Store{
		"file": func(dir string) store.Store {
			s, err := file.New(filepath.Join(dir, "state.json"))
			if err != nil {
				t.Fatalf("file.New: %v", err)
			}
			return s
		},
		"sqlite": func(dir string) store.Store {
			s, err := sqlite.New(filepath.Join(dir, "state.db"))
			if err != nil {
				t.Fatalf("sqlite.New: %v", err)
			}
			return s
		},
	}
}

func TestStore_SetGetDelete(t *testing.T) {
	ctx := context.Background()
	for name, open := range backends(t) {
		t.Run(name, func(t *testing.T) {
			s := open(t.TempDir())
			defer s.Close()

			if _, err := s.Get(ctx, "token"); !errors.Is(err, store.ErrNotFound) {
				t.Fatalf("expected ErrNotFound for missing key, got %v", err)
			}

			if err := s.Set(ctx, "token", "abc"); err != nil {
				t.Fatal(err)
			}
			if err := s.Set(ctx, "token", "def"); err != nil {
				t.Fatal(err)
			}
			got, err := s.Get(ctx, "token")
			if err != nil {
				t.Fatal(err)
			}
			if got != "def" {
				t.Errorf("expected overwritten value def, got %q", got)
			}

			if err := s.Delete(ctx, "token"); err != nil {
				t.Fatal(err)
			}
			if _, err := s.Get(ctx, "token"); !errors.Is(err, store.ErrNotFound) {
				t.Errorf("expected ErrNotFound after delete, got %v", err)
			}

			// Deleting again is not an error.
			if err := s.Delete(ctx, "token"); err != nil {
				t.Errorf("second delete: %v", err)
			}
		})
	}
}

func TestStore_SurvivesReopen(t *testing.T) {
	ctx := context.Background()
	for name, open := range backends(t) {
		t.Run(name, func(t *testing.T) {
			dir := t.TempDir()

			s := open(dir)
			if err := s.Set(ctx, "token", "persisted"); err != nil {
				t.Fatal(err)
			}
			s.Close()

			s = open(dir)
			defer s.Close()
			got, err := s.Get(ctx, "token")
			if err != nil {
				t.Fatal(err)
			}
			if got != "persisted" {
				t.Errorf("expected persisted, got %q", got)
			}
		})
	}
}

func TestTranscript_AppendAndReload(t *testing.T) {
	dir := t.TempDir()
	m, err := jsonl.NewManager(dir)
	if err != nil {
		t.Fatal(err)
	}

	tr, err := m.NewTranscript("http://localhost:8000")
	if err != nil {
		t.Fatal(err)
	}

	turns := []store.TurnEntry{
		{Role: "user", Content: "What projects have you built?"},
		{Role: "assistant", Content: "ODIN and RESCUE-5G.", Sources: []string{"cv.pdf"}, Tool: "rag"},
	}
	for _, turn := range turns {
		turn := turn
		if err := tr.Append(store.Entry{ConversationID: "conv-1", Turn: &turn}); err != nil {
			t.Fatal(err)
		}
	}
	id := tr.ID()
	if err := tr.Close(); err != nil {
		t.Fatal(err)
	}

	loaded, err := m.LoadTranscript(id)
	if err != nil {
		t.Fatal(err)
	}
	defer loaded.Close()

	if loaded.Header().BaseURL != "http://localhost:8000" {
		t.Errorf("header base url mismatch: %q", loaded.Header().BaseURL)
	}

	entries, err := loaded.Entries()
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	for i, e := range entries {
		if e.Type != store.TypeTurn || e.ID == "" || e.Timestamp.IsZero() {
			t.Errorf("entry %d not filled in: %+v", i, e)
		}
		if e.Turn.Role != turns[i].Role || e.Turn.Content != turns[i].Content {
			t.Errorf("entry %d mismatch: %+v", i, e.Turn)
		}
	}
	if entries[1].Turn.Tool != "rag" || len(entries[1].Turn.Sources) != 1 {
		t.Errorf("assistant metadata lost: %+v", entries[1].Turn)
	}

	// Appending after reload lands after the existing entries.
	extra := store.TurnEntry{Role: "user", Content: "Tell me more"}
	if err := loaded.Append(store.Entry{Turn: &extra}); err != nil {
		t.Fatal(err)
	}
	entries, err = loaded.Entries()
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 3 || entries[2].Turn.Content != "Tell me more" {
		t.Errorf("expected appended entry last, got %+v", entries)
	}

	infos, err := m.ListTranscripts()
	if err != nil {
		t.Fatal(err)
	}
	if len(infos) != 1 || infos[0].ID != id || infos[0].TurnCount != 3 {
		t.Errorf("index mismatch: %+v", infos)
	}
}

func TestTranscript_LoadMissing(t *testing.T) {
	m, err := jsonl.NewManager(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	if _, err := m.LoadTranscript("nope"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	if _, err := m.LoadTranscript(uuid.NewString()); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("expected ErrNotFound for unknown id, got %v", err)
	}
}

func TestTranscript_LoadRejectsPathsOutsideDir(t *testing.T) {
	root := t.TempDir()
	other, err := jsonl.NewManager(filepath.Join(root, "other"))
	if err != nil {
		t.Fatal(err)
	}
	tr, err := other.NewTranscript("http://localhost:8000")
	if err != nil {
		t.Fatal(err)
	}
	tr.Close()

	m, err := jsonl.NewManager(filepath.Join(root, "transcripts"))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := m.LoadTranscript("../other/" + tr.ID()); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("expected ErrNotFound for a relative path, got %v", err)
	}
}
