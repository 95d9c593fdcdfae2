package jsonl

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/portfolia/console/pkg/store"
)

// Transcript implements the store.Transcript interface using a JSONL file.
type Transcript struct {
	mu         sync.Mutex
	id         string
	filePath   string
	fileHandle *os.File
	header     store.Header
	notify     func(string)
}

var _ store.Transcript = (*Transcript)(nil)

func (t *Transcript) ID() string           { return t.id }
func (t *Transcript) Path() string         { return t.filePath }
func (t *Transcript) Header() store.Header { return t.header }

// Append persists an entry, filling in its ID and timestamp when unset.
func (t *Transcript) Append(e store.Entry) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}
	if e.Type == "" {
		e.Type = store.TypeTurn
	}

	if err := t.writeLine(e); err != nil {
		return err
	}
	if t.notify != nil {
		t.notify(t.id)
	}
	return nil
}

// Entries re-reads the file and returns every entry after the header.
func (t *Transcript) Entries() ([]store.Entry, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, err := t.fileHandle.Seek(0, io.SeekStart); err != nil {
		return nil, err
	}
	defer t.fileHandle.Seek(0, io.SeekEnd)

	sc := bufio.NewScanner(t.fileHandle)
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	var entries []store.Entry
	first := true
	for sc.Scan() {
		if first {
			first = false
			continue
		}
		var e store.Entry
		if err := json.Unmarshal(sc.Bytes(), &e); err != nil {
			return nil, fmt.Errorf("parse transcript entry: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, sc.Err()
}

func (t *Transcript) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.fileHandle.Close()
}

func (t *Transcript) writeLine(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	data = append(data, '\n')
	if _, err := t.fileHandle.Write(data); err != nil {
		return fmt.Errorf("write transcript line: %w", err)
	}
	return t.fileHandle.Sync()
}
