// Package store persists submissions as a single JSON object on disk.
//
// Every update rewrites the whole file. Only one writer (the collector) may
// use a given file; two writers against the same path can lose updates.
package store

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/telhawk-systems/formrelay/internal/models"
)

var (
	// ErrNotFound is returned when the store file or its directory is missing.
	ErrNotFound = errors.New("store not found")
	// ErrCorruptStore is returned when the file is not a JSON object of entries.
	ErrCorruptStore = errors.New("store is corrupt")
)

// Store is the narrow persistence contract the collector depends on.
type Store interface {
	Load(ctx context.Context) (models.Document, error)
	Persist(ctx context.Context, doc models.Document) error
}

// FileStore implements Store on a single JSON file.
type FileStore struct {
	mu   sync.Mutex
	path string
}

// NewFileStore returns a FileStore for path. It does not touch the disk;
// call Init before the first Load.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Path returns the file the store reads and writes.
func (s *FileStore) Path() string {
	return s.path
}

// Init creates the parent directory and an empty "{}" file when absent.
// An existing file is left untouched, so Init is safe on every startup.
func (s *FileStore) Init() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return fmt.Errorf("creating store directory: %w", err)
	}

	info, err := os.Stat(s.path)
	switch {
	case err == nil:
		if info.IsDir() {
			return fmt.Errorf("store path %s is a directory", s.path)
		}
		return nil
	case !errors.Is(err, fs.ErrNotExist):
		return fmt.Errorf("checking store file: %w", err)
	}

	f, err := os.OpenFile(s.path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		if errors.Is(err, fs.ErrExist) {
			return nil
		}
		return fmt.Errorf("creating store file: %w", err)
	}
	if _, err := f.WriteString("{}\n"); err != nil {
		f.Close()
		return fmt.Errorf("writing empty store: %w", err)
	}
	return f.Close()
}

// Load reads and decodes the whole file.
func (s *FileStore) Load(ctx context.Context) (models.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	data, err := os.ReadFile(s.path)
	s.mu.Unlock()
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, s.path)
		}
		return nil, fmt.Errorf("reading store: %w", err)
	}

	return Decode(data)
}

// Persist replaces the file with doc. The new content is written to a
// temporary file in the same directory and renamed over the old one.
func (s *FileStore) Persist(ctx context.Context, doc models.Document) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := Encode(doc)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(s.path)+".*.tmp")
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("%w: %s", ErrNotFound, dir)
		}
		return fmt.Errorf("creating temp store file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("writing store: %w", err)
	}
	if err := tmp.Chmod(0644); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("setting store permissions: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("closing store: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replacing store: %w", err)
	}

	return nil
}

// Decode parses a store document. Anything other than a JSON object whose
// values are string maps is ErrCorruptStore.
func Decode(data []byte) (models.Document, error) {
	var doc models.Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptStore, err)
	}
	if doc == nil {
		return nil, fmt.Errorf("%w: top-level value is not an object", ErrCorruptStore)
	}
	for key, entry := range doc {
		if entry == nil {
			return nil, fmt.Errorf("%w: entry %q is null", ErrCorruptStore, key)
		}
	}
	return doc, nil
}

// Encode renders doc with four-space indentation. A nil doc encodes as {}.
func Encode(doc models.Document) ([]byte, error) {
	if doc == nil {
		doc = models.Document{}
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "    ")
	if err := enc.Encode(doc); err != nil {
		return nil, fmt.Errorf("encoding store: %w", err)
	}
	return buf.Bytes(), nil
}

// Append performs one read-modify-write cycle: load, set doc[key] = entry,
// persist. An existing key is overwritten. It returns the entry count after
// the write.
func Append(ctx context.Context, s Store, key string, entry models.Entry) (int, error) {
	doc, err := s.Load(ctx)
	if err != nil {
		return 0, err
	}

	doc[key] = entry

	if err := s.Persist(ctx, doc); err != nil {
		return 0, err
	}
	return len(doc), nil
}
