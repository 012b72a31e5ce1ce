// Package document persists generated consultation documents.
package document

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"
)

var (
	ErrMissingName = errors.New("document name is required")
	ErrInvalidName = errors.New("document name must not contain path separators")
)

// Store writes a structured document and returns the reference path callers
// persist alongside the owning record.
type Store interface {
	Write(ctx context.Context, name string, content any) (string, error)
}

func validateName(name string) error {
	if name == "" {
		return ErrMissingName
	}
	if strings.ContainsAny(name, `/\`) || name == "." || name == ".." {
		return ErrInvalidName
	}
	return nil
}

// FileStore writes JSON documents under Dir. Returned paths are URLPrefix/name.
type FileStore struct {
	dir       string
	urlPrefix string
}

func NewFileStore(dir, urlPrefix string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create document dir %s: %w", dir, err)
	}
	return &FileStore{dir: dir, urlPrefix: strings.TrimRight(urlPrefix, "/")}, nil
}

func (s *FileStore) Write(ctx context.Context, name string, content any) (string, error) {
	if err := validateName(name); err != nil {
		return "", err
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	data, err := json.MarshalIndent(content, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode document: %w", err)
	}

	// write to a temp file and rename so readers never see a partial document
	tmp, err := os.CreateTemp(s.dir, name+".*.tmp")
	if err != nil {
		return "", fmt.Errorf("create temp document: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return "", fmt.Errorf("write document: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("close document: %w", err)
	}
	if err := os.Rename(tmpName, filepath.Join(s.dir, name)); err != nil {
		return "", fmt.Errorf("publish document: %w", err)
	}

	return path.Join(s.urlPrefix, name), nil
}

// Memory keeps documents in memory keyed by name along with their SHA-256.
type Memory struct {
	mu     sync.RWMutex
	docs   map[string][]byte
	hashes map[string]string
	prefix string
}

func NewMemory(prefix string) *Memory {
	return &Memory{
		docs:   make(map[string][]byte),
		hashes: make(map[string]string),
		prefix: strings.TrimRight(prefix, "/"),
	}
}

func (m *Memory) Write(_ context.Context, name string, content any) (string, error) {
	if err := validateName(name); err != nil {
		return "", err
	}
	data, err := json.Marshal(content)
	if err != nil {
		return "", fmt.Errorf("encode document: %w", err)
	}

	m.mu.Lock()
	m.docs[name] = data
	m.hashes[name] = fmt.Sprintf("%x", sha256.Sum256(data))
	m.mu.Unlock()

	return path.Join(m.prefix, name), nil
}

// Get returns the raw JSON stored under name.
func (m *Memory) Get(name string) ([]byte, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	data, ok := m.docs[name]
	return data, ok
}

func (m *Memory) Hash(name string) string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.hashes[name]
}
