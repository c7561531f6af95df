package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	logx "voxassist/pkg/logx"
)

// fileStore keeps the whole collection in one JSON document.
//
// Writes go to a temp file in the same directory which is synced and renamed
// over the target, so readers never observe a partial document.
type fileStore struct {
	log  logx.Logger
	path string

	mu sync.Mutex
}

// fileRecord also accepts "task_type", the key used by older task files.
type fileRecord struct {
	Record
	TaskType string `json:"task_type,omitempty"`
}

func openFile(cfg Config, log logx.Logger) (Backend, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("storage.path is required for file driver")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	return &fileStore{log: log, path: path}, nil
}

func (s *fileStore) Close() error { return nil }

func (s *fileStore) Load(ctx context.Context) ([]Record, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()

	b, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if len(bytes.TrimSpace(b)) == 0 {
		return nil, nil
	}

	var raw []fileRecord
	if err := json.Unmarshal(b, &raw); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrCorrupt, s.path, err)
	}
	out := make([]Record, 0, len(raw))
	for _, r := range raw {
		rec := r.Record
		if rec.Kind == "" {
			rec.Kind = r.TaskType
		}
		out = append(out, rec)
	}
	return out, nil
}

func (s *fileStore) Save(ctx context.Context, recs []Record) error {
	_ = ctx
	if recs == nil {
		recs = []Record{}
	}
	b, err := json.MarshalIndent(recs, "", "  ")
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	dir := filepath.Dir(s.path)
	f, err := os.CreateTemp(dir, filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return err
	}
	tmp := f.Name()
	cleanup := func() { _ = os.Remove(tmp) }

	if _, err := f.Write(b); err != nil {
		_ = f.Close()
		cleanup()
		return err
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		cleanup()
		return err
	}
	if err := f.Close(); err != nil {
		cleanup()
		return err
	}
	if err := os.Rename(tmp, s.path); err != nil {
		cleanup()
		return err
	}
	s.log.Trace("tasks written", logx.String("path", s.path), logx.Int("count", len(recs)))
	return nil
}
