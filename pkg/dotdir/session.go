package dotdir

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

const (
	activeSessionFile = "active_session.json"
)

// ActiveSession points at the local session the chat command resumes.
type ActiveSession struct {
	// SessionID is the ID of the session in the local store.
	SessionID string `json:"session_id"`

	// Kind is "chat" or "agent".
	Kind string `json:"kind"`

	// AgentID is set for agent sessions.
	AgentID string `json:"agent_id,omitempty"`

	UpdatedAt time.Time `json:"updated_at"`
}

// LoadActiveSession loads .ragora/active_session.json.
// Returns nil, nil if no session is active.
func (m *Manager) LoadActiveSession(overrideDir string) (*ActiveSession, error) {
	dir, err := m.Target(overrideDir)
	if err != nil || dir == "" {
		return nil, err
	}

	data, err := os.ReadFile(filepath.Join(dir, activeSessionFile))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading active session: %w", err)
	}

	state := &ActiveSession{}
	if err := json.Unmarshal(data, state); err != nil {
		return nil, fmt.Errorf("parsing active session: %w", err)
	}

	return state, nil
}

// SaveActiveSession persists the active session pointer.
func (m *Manager) SaveActiveSession(state *ActiveSession, overrideDir string) error {
	if state == nil {
		return errors.New("cannot save nil active session")
	}

	dir, err := m.Ensure(overrideDir)
	if err != nil {
		return err
	}

	if state.UpdatedAt.IsZero() {
		state.UpdatedAt = time.Now().UTC()
	}

	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling active session: %w", err)
	}

	if err := os.WriteFile(filepath.Join(dir, activeSessionFile), data, 0o600); err != nil {
		return fmt.Errorf("writing active session: %w", err)
	}

	return nil
}

// ClearActiveSession removes the pointer so the next chat starts fresh.
// Returns nil if nothing was active.
func (m *Manager) ClearActiveSession(overrideDir string) error {
	dir, err := m.Target(overrideDir)
	if err != nil || dir == "" {
		return err
	}

	if err := os.Remove(filepath.Join(dir, activeSessionFile)); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("removing active session: %w", err)
	}

	return nil
}
