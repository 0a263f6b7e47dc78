// Package inmemory provides a map-backed storage driver for tests and
// throwaway relay runs.
package inmemory

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/papercomputeco/ragora/pkg/storage"
)

// Driver implements storage.Driver using in-memory maps.
type Driver struct {
	// mu is a read write sync mutex for locking the maps
	mu sync.RWMutex

	sessions map[string]*storage.Session
	turns    map[string][]*storage.Turn
}

// NewDriver creates a new in-memory store.
func NewDriver() *Driver {
	return &Driver{
		sessions: make(map[string]*storage.Session),
		turns:    make(map[string][]*storage.Turn),
	}
}

func (d *Driver) PutSession(_ context.Context, s *storage.Session) error {
	if s == nil {
		return storage.ErrNilSession
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	cp := copySession(s)
	if existing, ok := d.sessions[s.ID]; ok {
		cp.CreatedAt = existing.CreatedAt
	}
	d.sessions[s.ID] = cp

	return nil
}

func (d *Driver) GetSession(_ context.Context, id string) (*storage.Session, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	s, ok := d.sessions[id]
	if !ok {
		return nil, storage.NotFoundError{ID: id}
	}

	return copySession(s), nil
}

func (d *Driver) LatestSession(ctx context.Context, kind, agentID string) (*storage.Session, error) {
	all, err := d.ListSessions(ctx, kind)
	if err != nil {
		return nil, err
	}

	for _, s := range all {
		if agentID == "" || s.AgentID == agentID {
			return s, nil
		}
	}

	return nil, storage.NotFoundError{}
}

func (d *Driver) ListSessions(_ context.Context, kind string) ([]*storage.Session, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	result := make([]*storage.Session, 0, len(d.sessions))
	for _, s := range d.sessions {
		if kind == "" || s.Kind == kind {
			result = append(result, copySession(s))
		}
	}

	slices.SortFunc(result, func(a, b *storage.Session) int {
		return b.UpdatedAt.Compare(a.UpdatedAt)
	})

	return result, nil
}

func (d *Driver) DeleteSession(_ context.Context, id string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.sessions[id]; !ok {
		return storage.NotFoundError{ID: id}
	}

	delete(d.sessions, id)
	delete(d.turns, id)

	return nil
}

func (d *Driver) AppendTurns(_ context.Context, turns ...*storage.Turn) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	for _, t := range turns {
		if t == nil {
			return storage.ErrNilSession
		}
		if _, ok := d.sessions[t.SessionID]; !ok {
			return storage.NotFoundError{ID: t.SessionID}
		}
	}

	for _, t := range turns {
		if t.CreatedAt.IsZero() {
			t.CreatedAt = time.Now().UTC()
		}
		t.Seq = len(d.turns[t.SessionID]) + 1

		cp := *t
		cp.Sources = slices.Clone(t.Sources)
		d.turns[t.SessionID] = append(d.turns[t.SessionID], &cp)

		if s := d.sessions[t.SessionID]; t.CreatedAt.After(s.UpdatedAt) {
			s.UpdatedAt = t.CreatedAt
		}
	}

	return nil
}

func (d *Driver) Turns(_ context.Context, sessionID string) ([]*storage.Turn, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if _, ok := d.sessions[sessionID]; !ok {
		return nil, storage.NotFoundError{ID: sessionID}
	}

	result := make([]*storage.Turn, 0, len(d.turns[sessionID]))
	for _, t := range d.turns[sessionID] {
		cp := *t
		result = append(result, &cp)
	}

	return result, nil
}

func (d *Driver) Close() error {
	return nil
}

func copySession(s *storage.Session) *storage.Session {
	cp := *s
	cp.Collections = slices.Clone(s.Collections)
	return &cp
}
