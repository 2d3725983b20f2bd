package common

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// RepairEntry captures a single metadata arbitration that changed or gave
// up on a frame's content.
type RepairEntry struct {
	Frame     int       `json:"frame"`
	Field     string    `json:"field"`
	Verdict   string    `json:"verdict"`
	Source    string    `json:"source,omitempty"`
	Adopted   string    `json:"adopted,omitempty"`
	Discarded []string  `json:"discarded,omitempty"`
	Ts        time.Time `json:"ts"`
}

// RepairLog provides append-only access to a JSONL audit log.
type RepairLog struct {
	path string
	mu   sync.Mutex
}

// NewRepairLog returns a RepairLog that writes to the provided path.
func NewRepairLog(path string) *RepairLog {
	return &RepairLog{path: path}
}

// Path returns the backing file path for the log.
func (l *RepairLog) Path() string {
	if l == nil {
		return ""
	}
	return l.path
}

// Append writes a new entry to the audit log. Entries are serialized as
// JSON objects, one per line, to make downstream consumption and replay
// straightforward.
func (l *RepairLog) Append(entry RepairEntry) error {
	if l == nil {
		return errors.New("nil repair log")
	}
	if entry.Field == "" {
		return errors.New("repair entry missing field")
	}
	if entry.Ts.IsZero() {
		entry.Ts = time.Now().UTC()
	}
	data, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	dir := filepath.Dir(l.path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()
	if _, err := f.Write(append(data, '\n')); err != nil {
		return err
	}
	return f.Sync()
}

// ReadRepairLog loads every entry from the supplied JSONL file.
func ReadRepairLog(path string) ([]RepairEntry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	scanner := bufio.NewScanner(f)
	var entries []RepairEntry
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var entry RepairEntry
		if err := json.Unmarshal([]byte(line), &entry); err != nil {
			return nil, fmt.Errorf("decode repair entry: %w", err)
		}
		entries = append(entries, entry)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return entries, nil
}
