// Package registry maps users to their trained model files. A model directory
// holds one <userID>.gguf per user.
package registry

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"replyd/internal/common/fsutil"
	"replyd/pkg/types"
)

const modelExt = ".gguf"

// LoadDir scans dir for *.gguf files. The user id is the filename without
// its extension; the version is <user>@<modification date>.
func LoadDir(dir string) ([]types.Model, error) {
	base, err := fsutil.ExpandHome(dir)
	if err != nil {
		return nil, err
	}
	abs, err := filepath.Abs(base)
	if err != nil {
		return nil, fmt.Errorf("abs path: %w", err)
	}
	entries, err := os.ReadDir(abs)
	if err != nil {
		return nil, fmt.Errorf("read dir: %w", err)
	}
	var models []types.Model
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if !strings.EqualFold(filepath.Ext(name), modelExt) {
			continue
		}
		userID := strings.TrimSuffix(name, filepath.Ext(name))
		if userID == "" {
			continue
		}
		m := types.Model{UserID: userID, Path: filepath.Join(abs, name)}
		if info, err := e.Info(); err == nil {
			m.Version = userID + "@" + info.ModTime().UTC().Format("2006-01-02")
		}
		models = append(models, m)
	}
	sort.Slice(models, func(i, j int) bool { return models[i].UserID < models[j].UserID })
	return models, nil
}

// Registry is a reloadable index of per-user models. It implements
// runtime.ModelResolver.
type Registry struct {
	dir    string
	mu     sync.RWMutex
	models map[string]types.Model
}

// Open loads dir into a new Registry.
func Open(dir string) (*Registry, error) {
	r := &Registry{dir: dir}
	if err := r.Reload(); err != nil {
		return nil, err
	}
	return r, nil
}

// Reload rescans the directory, replacing the index.
func (r *Registry) Reload() error {
	models, err := LoadDir(r.dir)
	if err != nil {
		return err
	}
	idx := make(map[string]types.Model, len(models))
	for _, m := range models {
		idx[m.UserID] = m
	}
	r.mu.Lock()
	r.models = idx
	r.mu.Unlock()
	return nil
}

// ModelPath returns the model file for userID.
func (r *Registry) ModelPath(userID string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.models[userID]
	return m.Path, ok
}

// Get returns the model entry for userID.
func (r *Registry) Get(userID string) (types.Model, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.models[userID]
	return m, ok
}

// Models lists all entries sorted by user id.
func (r *Registry) Models() []types.Model {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]types.Model, 0, len(r.models))
	for _, m := range r.models {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out
}
