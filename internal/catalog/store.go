package catalog

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
)

const stateFile = "state.json"

// Store persists the catalog State as one JSON document on disk.
type Store struct {
	path string
	mu   sync.RWMutex
}

// NewStore creates a Store and ensures the directory exists.
func NewStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("catalog store: mkdir %s: %w", dir, err)
	}
	return &Store{path: filepath.Join(dir, stateFile)}, nil
}

func (s *Store) Path() string { return s.path }

// Load reads the state. A missing file is an empty catalog; an unreadable
// or corrupt file is an error so it is never silently overwritten.
func (s *Store) Load() (State, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return emptyState(), nil
		}
		return State{}, fmt.Errorf("catalog store: read: %w", err)
	}

	var st State
	if err := json.Unmarshal(data, &st); err != nil {
		return State{}, fmt.Errorf("catalog store: unmarshal: %w", err)
	}
	if st.Sessions == nil {
		st.Sessions = []Session{}
	}
	if st.ActiveSessions == nil {
		st.ActiveSessions = map[string]string{}
	}
	if !orderValid(st.Sessions) {
		slog.Warn("catalog order repaired", "path", s.path)
		for _, d := range domains(st.Sessions) {
			renumber(st.Sessions, d)
		}
	}
	return st, nil
}

// Save writes the state atomically through a temp file and rename.
func (s *Store) Save(st State) error {
	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return fmt.Errorf("catalog store: marshal: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tmp, err := os.CreateTemp(filepath.Dir(s.path), stateFile+".*.tmp")
	if err != nil {
		return fmt.Errorf("catalog store: temp file: %w", err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		s.removeTemp(tmpPath)
		return fmt.Errorf("catalog store: write: %w", err)
	}
	if err := tmp.Close(); err != nil {
		s.removeTemp(tmpPath)
		return fmt.Errorf("catalog store: close: %w", err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		s.removeTemp(tmpPath)
		return fmt.Errorf("catalog store: rename: %w", err)
	}
	return nil
}

func (s *Store) removeTemp(path string) {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Debug("catalog temp cleanup failed", "path", path, "error", err)
	}
}

func domains(sessions []Session) []string {
	seen := map[string]bool{}
	var out []string
	for _, s := range sessions {
		if !seen[s.Domain] {
			seen[s.Domain] = true
			out = append(out, s.Domain)
		}
	}
	return out
}
