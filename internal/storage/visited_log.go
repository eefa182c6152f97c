package storage

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// visitedLog implements Store on an append-only, line-oriented file with one
// listing id per line. The whole log is read into memory at open; MarkBatch
// appends to the file first and mutates the in-memory mirror only once the
// write has been synced, so a crash mid-commit never loses already logged ids.
type visitedLog struct {
	mu   sync.RWMutex
	file *os.File
	ids  map[string]struct{}
}

// openVisitedLog loads (creating if needed) the visited log at path.
func openVisitedLog(path string) (Store, error) {
	dir := filepath.Dir(path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create storage directory: %w", err)
		}
	}

	file, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open visited log: %w", err)
	}

	ids := make(map[string]struct{})
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		if id := strings.TrimSpace(scanner.Text()); id != "" {
			ids[id] = struct{}{}
		}
	}
	if err := scanner.Err(); err != nil {
		file.Close()
		return nil, fmt.Errorf("read visited log: %w", err)
	}

	return &visitedLog{file: file, ids: ids}, nil
}

// Close closes the underlying log file.
func (v *visitedLog) Close() error {
	if v == nil || v.file == nil {
		return nil
	}
	return v.file.Close()
}

// Seen reports whether id was committed by this or any earlier run.
func (v *visitedLog) Seen(id string) (bool, error) {
	if v == nil {
		return false, nil
	}
	v.mu.RLock()
	defer v.mu.RUnlock()
	_, ok := v.ids[id]
	return ok, nil
}

// MarkBatch appends the ids to the log and then to the in-memory set.
func (v *visitedLog) MarkBatch(ids []string) error {
	if v == nil || len(ids) == 0 {
		return nil
	}

	var sb strings.Builder
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		sb.WriteString(id)
		sb.WriteByte('\n')
	}
	if sb.Len() == 0 {
		return nil
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	if _, err := v.file.WriteString(sb.String()); err != nil {
		return fmt.Errorf("append visited log: %w", err)
	}
	if err := v.file.Sync(); err != nil {
		return fmt.Errorf("sync visited log: %w", err)
	}
	for _, id := range ids {
		if id = strings.TrimSpace(id); id != "" {
			v.ids[id] = struct{}{}
		}
	}
	return nil
}

// Len reports the number of known ids.
func (v *visitedLog) Len() int {
	if v == nil {
		return 0
	}
	v.mu.RLock()
	defer v.mu.RUnlock()
	return len(v.ids)
}
