package replay

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

const DefaultStatePath = "~/.refinery/replay-state.json"

// State tracks progress so an interrupted replay resumes where it stopped.
type State struct {
	StartedAt       time.Time      `json:"started_at"`
	LastProcessedAt time.Time      `json:"last_processed_at"`
	FilesProcessed  []string       `json:"files_processed"`
	FilesRemaining  int            `json:"files_remaining"`
	CallsProcessed  int            `json:"calls_processed"`
	Actions         map[string]int `json:"actions"`
	Errors          []string       `json:"errors"`

	// Completed holds the calls already replayed from files that still have
	// failures, so a resumed run retries only the failed ones.
	Completed map[string][]string `json:"completed_calls,omitempty"`

	path string
}

// LoadState reads the state file, or starts a fresh one if it does not exist.
func LoadState(path string) (*State, error) {
	if path == "" {
		path = DefaultStatePath
	}
	p := expandHome(path)

	data, err := os.ReadFile(p)
	if err != nil {
		if os.IsNotExist(err) {
			return &State{StartedAt: time.Now().UTC(), Actions: map[string]int{}, path: p}, nil
		}
		return nil, fmt.Errorf("read state: %w", err)
	}

	var s State
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parse state: %w", err)
	}
	if s.Actions == nil {
		s.Actions = map[string]int{}
	}
	s.path = p
	return &s, nil
}

func (s *State) Path() string { return s.path }

func (s *State) Save() error {
	s.LastProcessedAt = time.Now().UTC()

	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("mkdir: %w", err)
	}
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}
	return os.WriteFile(s.path, data, 0o644)
}

func (s *State) IsProcessed(path string) bool {
	for _, f := range s.FilesProcessed {
		if f == path {
			return true
		}
	}
	return false
}

func (s *State) MarkProcessed(path string) {
	s.FilesProcessed = append(s.FilesProcessed, path)
	delete(s.Completed, path)
}

func (s *State) isCompleted(path, callID string) bool {
	for _, id := range s.Completed[path] {
		if id == callID {
			return true
		}
	}
	return false
}

func (s *State) markCompleted(path, callID string) {
	if s.Completed == nil {
		s.Completed = map[string][]string{}
	}
	s.Completed[path] = append(s.Completed[path], callID)
}

func (s *State) AddError(msg string) {
	s.Errors = append(s.Errors, msg)
}

func (s *State) countAction(action string) {
	if s.Actions == nil {
		s.Actions = map[string]int{}
	}
	s.Actions[action]++
}

func expandHome(path string) string {
	if len(path) > 1 && path[0] == '~' && path[1] == '/' {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[2:])
	}
	return path
}
