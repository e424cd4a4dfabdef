package fallback

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	toml "github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"replyd/internal/common/fsutil"
)

// Entry is one pre-existing response in a user's corpus.
type Entry struct {
	Category string `json:"category" yaml:"category" toml:"category"`
	Prompt   string `json:"prompt" yaml:"prompt" toml:"prompt"`
	Response string `json:"response" yaml:"response" toml:"response"`
}

// Corpus returns a user's entries in a stable order.
type Corpus interface {
	Entries(ctx context.Context, userID string) ([]Entry, error)
}

// MemoryCorpus is an in-memory Corpus keyed by user id.
type MemoryCorpus struct {
	mu      sync.RWMutex
	entries map[string][]Entry
}

func NewMemoryCorpus() *MemoryCorpus { return &MemoryCorpus{entries: map[string][]Entry{}} }

// Add appends entries for userID.
func (c *MemoryCorpus) Add(userID string, e ...Entry) {
	c.mu.Lock()
	c.entries[userID] = append(c.entries[userID], e...)
	c.mu.Unlock()
}

func (c *MemoryCorpus) Entries(ctx context.Context, userID string) ([]Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]Entry(nil), c.entries[userID]...), nil
}

// corpusFile is the on-disk layout of <dir>/<user>.{yaml,yml,json,toml}.
type corpusFile struct {
	Entries []Entry `json:"entries" yaml:"entries" toml:"entries"`
}

// FileCorpus reads per-user corpus files from a directory. A user without a
// file has an empty corpus.
type FileCorpus struct {
	Dir string
}

var corpusExts = []string{".yaml", ".yml", ".json", ".toml"}

func (c FileCorpus) Entries(ctx context.Context, userID string) ([]Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if userID == "" || strings.ContainsAny(userID, `/\`) || strings.Contains(userID, "..") {
		return nil, nil
	}
	dir, err := fsutil.ExpandHome(c.Dir)
	if err != nil {
		return nil, err
	}
	for _, ext := range corpusExts {
		p := filepath.Join(dir, userID+ext)
		b, err := os.ReadFile(p)
		if errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, err
		}
		return decodeCorpus(p, b)
	}
	return nil, nil
}

// LoadFile reads a corpus file in any supported format.
func LoadFile(path string) ([]Entry, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return decodeCorpus(path, b)
}

func decodeCorpus(path string, b []byte) ([]Entry, error) {
	var f corpusFile
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(b, &f); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	case ".json":
		if err := json.Unmarshal(b, &f); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	case ".toml":
		if err := toml.Unmarshal(b, &f); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	default:
		return nil, fmt.Errorf("unsupported corpus extension: %s", ext)
	}
	return f.Entries, nil
}
