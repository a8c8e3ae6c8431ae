package prefs

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

// Store is a durable key-value store for client preferences (volume, loop
// mode, favorites, search filter visibility). One JSON file per scope,
// read-modify-write with last-writer-wins semantics.
type Store struct {
	path string
	mu   sync.Mutex
	data map[string]json.RawMessage
}

// Open loads or creates a store for the given scope under root.
func Open(root string, scope string) (*Store, error) {
	if strings.TrimSpace(root) == "" {
		return nil, errors.New("prefs root required")
	}
	if strings.TrimSpace(scope) == "" {
		return nil, errors.New("prefs scope required")
	}

	s := &Store{path: filepath.Join(root, scope+".json")}
	if err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

// DefaultRoot returns the preference directory under XDG_STATE_HOME.
func DefaultRoot() (string, error) {
	if dir := os.Getenv("XDG_STATE_HOME"); dir != "" {
		return filepath.Join(dir, "aya"), nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".local", "state", "aya"), nil
}

func (s *Store) load() error {
	s.data = map[string]json.RawMessage{}
	raw, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}
	if len(raw) == 0 {
		return nil
	}
	return json.Unmarshal(raw, &s.data)
}

func (s *Store) flush() error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return err
	}
	payload, err := json.MarshalIndent(s.data, "", "  ")
	if err != nil {
		return err
	}
	tmp := fmt.Sprintf("%s.tmp.%d", s.path, time.Now().UnixNano())
	if err := os.WriteFile(tmp, payload, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, s.path)
}

// GetFloat returns a float value or the fallback.
func (s *Store) GetFloat(key string, fallback float64) float64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	raw, ok := s.data[key]
	if !ok {
		return fallback
	}
	var v float64
	if err := json.Unmarshal(raw, &v); err != nil {
		return fallback
	}
	return v
}

// SetFloat stores a float value.
func (s *Store) SetFloat(key string, v float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	payload, err := json.Marshal(v)
	if err != nil {
		return err
	}
	s.data[key] = payload
	return s.flush()
}

// GetString returns a string value or the fallback.
func (s *Store) GetString(key string, fallback string) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	raw, ok := s.data[key]
	if !ok {
		return fallback
	}
	var v string
	if err := json.Unmarshal(raw, &v); err != nil {
		return fallback
	}
	return v
}

// SetString stores a string value.
func (s *Store) SetString(key string, v string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	payload, err := json.Marshal(v)
	if err != nil {
		return err
	}
	s.data[key] = payload
	return s.flush()
}

// GetBool returns a bool value or the fallback.
func (s *Store) GetBool(key string, fallback bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	raw, ok := s.data[key]
	if !ok {
		return fallback
	}
	var v bool
	if err := json.Unmarshal(raw, &v); err != nil {
		return fallback
	}
	return v
}

// SetBool stores a bool value.
func (s *Store) SetBool(key string, v bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	payload, err := json.Marshal(v)
	if err != nil {
		return err
	}
	s.data[key] = payload
	return s.flush()
}

// GetSet returns the members of a stored string set.
func (s *Store) GetSet(key string) map[string]bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.readSet(key)
}

// Members returns the members of a stored set in sorted order.
func (s *Store) Members(key string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	set := s.readSet(key)
	out := make([]string, 0, len(set))
	for member := range set {
		out = append(out, member)
	}
	sort.Strings(out)
	return out
}

// Contains reports whether member is in the stored set.
func (s *Store) Contains(key string, member string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.readSet(key)[member]
}

// Toggle adds or removes a member from the stored set and reports whether
// the member is present afterwards.
func (s *Store) Toggle(key string, member string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	set := s.readSet(key)
	present := set[member]
	if present {
		delete(set, member)
	} else {
		set[member] = true
	}
	if err := s.writeSet(key, set); err != nil {
		return present, err
	}
	return !present, nil
}

func (s *Store) readSet(key string) map[string]bool {
	set := map[string]bool{}
	raw, ok := s.data[key]
	if !ok {
		return set
	}
	var members []string
	if err := json.Unmarshal(raw, &members); err != nil {
		return set
	}
	for _, member := range members {
		set[member] = true
	}
	return set
}

func (s *Store) writeSet(key string, set map[string]bool) error {
	members := make([]string, 0, len(set))
	for member := range set {
		members = append(members, member)
	}
	sort.Strings(members)
	payload, err := json.Marshal(members)
	if err != nil {
		return err
	}
	s.data[key] = payload
	return s.flush()
}
