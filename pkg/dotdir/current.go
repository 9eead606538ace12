package dotdir

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

const currentFile = "current.json"

// CurrentMemory points at the memory most recently submitted from this
// machine, so follow-up commands (tag, story, play) can omit the id. Tagging
// is often deferred, which is why the pointer outlives the submit command.
type CurrentMemory struct {
	MemoryID    string    `json:"memory_id"`
	SubmittedAt time.Time `json:"submitted_at"`
}

// LoadCurrent reads current.json. It returns nil, nil when nothing has been
// submitted yet.
func (m *Manager) LoadCurrent(overrideDir string) (*CurrentMemory, error) {
	dir, err := m.Target(overrideDir)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(filepath.Join(dir, currentFile))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading current memory: %w", err)
	}

	current := &CurrentMemory{}
	if err := json.Unmarshal(data, current); err != nil {
		return nil, fmt.Errorf("parsing current memory: %w", err)
	}

	return current, nil
}

// SaveCurrent writes current.json.
func (m *Manager) SaveCurrent(current *CurrentMemory, overrideDir string) error {
	if current == nil || current.MemoryID == "" {
		return errors.New("cannot save empty current memory")
	}

	dir, err := m.Target(overrideDir)
	if err != nil {
		return err
	}

	data, err := json.MarshalIndent(current, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling current memory: %w", err)
	}

	if err := os.WriteFile(filepath.Join(dir, currentFile), data, 0o600); err != nil {
		return fmt.Errorf("writing current memory: %w", err)
	}

	return nil
}

// ClearCurrent removes current.json. Missing is not an error.
func (m *Manager) ClearCurrent(overrideDir string) error {
	dir, err := m.Target(overrideDir)
	if err != nil {
		return err
	}

	if err := os.Remove(filepath.Join(dir, currentFile)); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("removing current memory: %w", err)
	}

	return nil
}

// ResolveMemoryID returns explicit when non-empty, otherwise the current
// memory id. It errors when neither is available.
func (m *Manager) ResolveMemoryID(explicit, overrideDir string) (string, error) {
	if explicit != "" {
		return explicit, nil
	}

	current, err := m.LoadCurrent(overrideDir)
	if err != nil {
		return "", err
	}
	if current == nil {
		return "", errors.New("no memory id given and no current memory; run palace submit first")
	}

	return current.MemoryID, nil
}
