package report

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"mammo-overlay/utils"
)

// Store persists a finished run report.
type Store interface {
	Save(ctx context.Context, report Report) error
}

type JSONFileStore struct {
	path string
}

func NewJSONFileStore(path string) *JSONFileStore {
	return &JSONFileStore{path: path}
}

func (store *JSONFileStore) Save(ctx context.Context, report Report) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return err
	}
	if dir := filepath.Dir(store.path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
	}
	return os.WriteFile(store.path, data, 0644)
}

// JSONLog appends one diagnostic per line.
type JSONLog struct {
	mu   sync.Mutex
	path string
}

func NewJSONLog(path string) *JSONLog {
	return &JSONLog{path: path}
}

func (jsonLog *JSONLog) Append(diagnostic Diagnostic) error {
	jsonLog.mu.Lock()
	defer jsonLog.mu.Unlock()
	return utils.WriteAppend(jsonLog.path, diagnostic.String())
}

// MultiStore saves to every store and returns the first error.
type MultiStore []Store

func (stores MultiStore) Save(ctx context.Context, report Report) error {
	var first error
	for _, store := range stores {
		if err := store.Save(ctx, report); err != nil && first == nil {
			first = err
		}
	}
	return first
}
