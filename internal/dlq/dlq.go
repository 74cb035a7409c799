// Package dlq keeps datagrams the collector could not decode, one JSON file
// per payload, so they can be inspected or purged later.
package dlq

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
	"unicode/utf8"
)

// Rejected captures one dropped datagram.
type Rejected struct {
	Timestamp time.Time `json:"timestamp" yaml:"timestamp"`
	Remote    string    `json:"remote" yaml:"remote"`
	Payload   string    `json:"payload" yaml:"payload"`
	Encoding  string    `json:"encoding" yaml:"encoding"`
	Error     string    `json:"error" yaml:"error"`
}

// Stats describes the queue state.
type Stats struct {
	Enabled      bool   `json:"enabled" yaml:"enabled"`
	Written      uint64 `json:"written" yaml:"written"`
	PendingFiles int    `json:"pending_files" yaml:"pending_files"`
	BasePath     string `json:"base_path,omitempty" yaml:"base_path,omitempty"`
}

const filePrefix = "rejected_"

// Queue writes rejected datagrams to a directory. A nil *Queue is a valid,
// disabled queue.
type Queue struct {
	basePath string
	logger   *slog.Logger
	mu       sync.Mutex
	written  uint64
}

// NewQueue creates the directory if needed and returns a queue writing to it.
func NewQueue(basePath string, logger *slog.Logger) (*Queue, error) {
	if basePath == "" {
		return nil, fmt.Errorf("reject queue path is empty")
	}
	if logger == nil {
		logger = slog.Default()
	}

	if err := os.MkdirAll(basePath, 0755); err != nil {
		return nil, fmt.Errorf("create reject directory: %w", err)
	}

	return &Queue{
		basePath: basePath,
		logger:   logger,
	}, nil
}

// Write records a rejected payload.
func (q *Queue) Write(ctx context.Context, payload []byte, remote string, cause error) error {
	if q == nil {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	now := time.Now().UTC()
	rejected := Rejected{
		Timestamp: now,
		Remote:    remote,
		Error:     cause.Error(),
	}
	// Non UTF-8 payloads are kept byte-exact as quoted Go strings.
	if utf8.Valid(payload) {
		rejected.Payload = string(payload)
		rejected.Encoding = "utf-8"
	} else {
		rejected.Payload = fmt.Sprintf("%q", payload)
		rejected.Encoding = "go-quoted"
	}

	filename := fmt.Sprintf("%s%d_%d.json", filePrefix, now.UnixNano(), q.written)
	data, err := json.MarshalIndent(rejected, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal rejected payload: %w", err)
	}

	if err := os.WriteFile(filepath.Join(q.basePath, filename), data, 0644); err != nil {
		return fmt.Errorf("write rejected payload: %w", err)
	}

	q.written++
	q.logger.Debug("wrote rejected datagram", slog.String("file", filename))
	return nil
}

// Stats returns queue metrics.
func (q *Queue) Stats() Stats {
	if q == nil {
		return Stats{}
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	stats := Stats{Enabled: true, Written: q.written, BasePath: q.basePath}
	names, err := q.files()
	if err != nil {
		q.logger.Error("failed to read reject directory", slog.String("error", err.Error()))
		return stats
	}
	stats.PendingFiles = len(names)
	return stats
}

// List returns up to limit rejected payloads, oldest first. limit <= 0 means all.
func (q *Queue) List(ctx context.Context, limit int) ([]Rejected, error) {
	if q == nil {
		return nil, fmt.Errorf("reject queue not enabled")
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	names, err := q.files()
	if err != nil {
		return nil, err
	}

	var out []Rejected
	for _, name := range names {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		if limit > 0 && len(out) >= limit {
			break
		}

		data, err := os.ReadFile(filepath.Join(q.basePath, name))
		if err != nil {
			q.logger.Warn("failed to read rejected payload", slog.String("file", name), slog.String("error", err.Error()))
			continue
		}

		var r Rejected
		if err := json.Unmarshal(data, &r); err != nil {
			q.logger.Warn("failed to parse rejected payload", slog.String("file", name), slog.String("error", err.Error()))
			continue
		}
		out = append(out, r)
	}

	return out, nil
}

// Purge removes every rejected payload and returns how many were deleted.
func (q *Queue) Purge(ctx context.Context) (int, error) {
	if q == nil {
		return 0, fmt.Errorf("reject queue not enabled")
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	names, err := q.files()
	if err != nil {
		return 0, err
	}

	deleted := 0
	for _, name := range names {
		if err := ctx.Err(); err != nil {
			return deleted, err
		}
		if err := os.Remove(filepath.Join(q.basePath, name)); err != nil {
			q.logger.Warn("failed to delete rejected payload", slog.String("file", name), slog.String("error", err.Error()))
			continue
		}
		deleted++
	}

	return deleted, nil
}

// files lists queue file names sorted oldest first. Caller holds q.mu.
func (q *Queue) files() ([]string, error) {
	entries, err := os.ReadDir(q.basePath)
	if err != nil {
		return nil, fmt.Errorf("read reject directory: %w", err)
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasPrefix(e.Name(), filePrefix) {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)
	return names, nil
}
