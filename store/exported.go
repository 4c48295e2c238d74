package store

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// ExportLog tracks which training logs have already been converted to
// parquet. It is backed by an append-only file with one log path per line.
//
// On startup the file is read into memory for fast dedupe; on success the
// path is appended and fsynced. A partial final line from a crash is
// ignored on the next startup. This is a dedupe list, not a WAL.
type ExportLog struct {
	mu       sync.RWMutex
	file     *os.File
	exported map[string]struct{}
}

func OpenExportLog(path string) (*ExportLog, error) {
	if path == "" {
		return nil, fmt.Errorf("export log path is required")
	}

	exported := make(map[string]struct{})
	if f, err := os.Open(path); err == nil {
		scanner := bufio.NewScanner(f)
		for scanner.Scan() {
			name := strings.TrimSpace(scanner.Text())
			if name == "" {
				continue
			}
			exported[name] = struct{}{}
		}
		_ = f.Close()
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create export log dir: %w", err)
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open export log: %w", err)
	}

	return &ExportLog{file: file, exported: exported}, nil
}

func (l *ExportLog) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file == nil {
		return nil
	}
	err := l.file.Close()
	l.file = nil
	return err
}

func (l *ExportLog) Has(name string) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	_, ok := l.exported[name]
	return ok
}

func (l *ExportLog) Count() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.exported)
}

func (l *ExportLog) Add(name string) error {
	if name == "" {
		return fmt.Errorf("name is empty")
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.exported[name]; ok {
		return nil
	}
	if l.file == nil {
		return fmt.Errorf("export log is closed")
	}
	if _, err := l.file.WriteString(name + "\n"); err != nil {
		return fmt.Errorf("append export log: %w", err)
	}
	if err := l.file.Sync(); err != nil {
		return fmt.Errorf("sync export log: %w", err)
	}
	l.exported[name] = struct{}{}
	return nil
}
