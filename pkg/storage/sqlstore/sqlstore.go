// Package sqlstore implements storage.Driver over database/sql. Statements are
// built with ent's dialect-aware SQL builders so the same code serves SQLite
// and PostgreSQL; the dialect packages only open the connection.
package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	entsql "entgo.io/ent/dialect/sql"

	"github.com/papercomputeco/ragora/pkg/storage"
)

const (
	sessionsTable = "sessions"
	turnsTable    = "turns"
)

var sessionColumns = []string{
	"id", "kind", "agent_id", "remote_session_id", "model",
	"collections", "title", "created_at", "updated_at",
}

var turnColumns = []string{
	"session_id", "seq", "role", "content", "finish_reason", "sources", "created_at",
}

// Store is a storage.Driver backed by a SQL database.
type Store struct {
	DB      *sql.DB
	dialect string
}

// New wraps db, creating the schema if needed. dialectName is one of
// dialect.SQLite or dialect.Postgres.
func New(ctx context.Context, db *sql.DB, dialectName string) (*Store, error) {
	ddl, ok := schema[dialectName]
	if !ok {
		return nil, fmt.Errorf("unsupported dialect %q", dialectName)
	}

	for _, stmt := range ddl {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return nil, fmt.Errorf("failed to create schema: %w", err)
		}
	}

	return &Store{DB: db, dialect: dialectName}, nil
}

func (s *Store) builder() *entsql.DialectBuilder {
	return entsql.Dialect(s.dialect)
}

func (s *Store) PutSession(ctx context.Context, sess *storage.Session) error {
	if sess == nil {
		return storage.ErrNilSession
	}

	collections, err := json.Marshal(nonNil(sess.Collections))
	if err != nil {
		return fmt.Errorf("failed to marshal collections: %w", err)
	}

	now := time.Now().UTC()
	created, updated := sess.CreatedAt, sess.UpdatedAt
	if created.IsZero() {
		created = now
	}
	if updated.IsZero() {
		updated = now
	}

	query, args := s.builder().
		Insert(sessionsTable).
		Columns(sessionColumns...).
		Values(sess.ID, sess.Kind, sess.AgentID, sess.RemoteSessionID, sess.Model,
			string(collections), sess.Title, created, updated).
		OnConflict(
			entsql.ConflictColumns("id"),
			entsql.ResolveWith(func(u *entsql.UpdateSet) {
				for _, c := range sessionColumns {
					if c != "id" && c != "created_at" {
						u.SetExcluded(c)
					}
				}
			}),
		).
		Query()

	if _, err := s.DB.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("could not store session: %w", err)
	}

	return nil
}

func (s *Store) GetSession(ctx context.Context, id string) (*storage.Session, error) {
	query, args := s.builder().
		Select(sessionColumns...).
		From(entsql.Table(sessionsTable)).
		Where(entsql.EQ("id", id)).
		Query()

	sess, err := scanSession(s.DB.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.NotFoundError{ID: id}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}

	return sess, nil
}

func (s *Store) LatestSession(ctx context.Context, kind, agentID string) (*storage.Session, error) {
	preds := []*entsql.Predicate{entsql.EQ("kind", kind)}
	if agentID != "" {
		preds = append(preds, entsql.EQ("agent_id", agentID))
	}

	query, args := s.builder().
		Select(sessionColumns...).
		From(entsql.Table(sessionsTable)).
		Where(entsql.And(preds...)).
		OrderBy(entsql.Desc("updated_at")).
		Limit(1).
		Query()

	sess, err := scanSession(s.DB.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.NotFoundError{}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query latest session: %w", err)
	}

	return sess, nil
}

func (s *Store) ListSessions(ctx context.Context, kind string) ([]*storage.Session, error) {
	sel := s.builder().
		Select(sessionColumns...).
		From(entsql.Table(sessionsTable)).
		OrderBy(entsql.Desc("updated_at"))
	if kind != "" {
		sel.Where(entsql.EQ("kind", kind))
	}

	query, args := sel.Query()
	rows, err := s.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query sessions: %w", err)
	}
	defer rows.Close()

	var result []*storage.Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		result = append(result, sess)
	}

	return result, rows.Err()
}

func (s *Store) DeleteSession(ctx context.Context, id string) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		query, args := s.builder().Delete(turnsTable).Where(entsql.EQ("session_id", id)).Query()
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("failed to delete turns: %w", err)
		}

		query, args = s.builder().Delete(sessionsTable).Where(entsql.EQ("id", id)).Query()
		res, err := tx.ExecContext(ctx, query, args...)
		if err != nil {
			return fmt.Errorf("failed to delete session: %w", err)
		}
		if n, err := res.RowsAffected(); err == nil && n == 0 {
			return storage.NotFoundError{ID: id}
		}

		return nil
	})
}

func (s *Store) AppendTurns(ctx context.Context, turns ...*storage.Turn) error {
	sources := make([]string, len(turns))
	for i, t := range turns {
		if t == nil {
			return storage.ErrNilSession
		}
		raw, err := json.Marshal(nonNil(t.Sources))
		if err != nil {
			return fmt.Errorf("failed to marshal sources: %w", err)
		}
		sources[i] = string(raw)
	}

	now := time.Now().UTC()
	created := make([]time.Time, len(turns))
	seqs := make([]int, len(turns))

	err := s.withTx(ctx, func(tx *sql.Tx) error {
		for i, t := range turns {
			created[i] = t.CreatedAt
			if created[i].IsZero() {
				created[i] = now
			}

			seq, err := s.appendTurn(ctx, tx, t, sources[i], created[i])
			if err != nil {
				return err
			}
			seqs[i] = seq
		}
		return nil
	})
	if err != nil {
		return err
	}

	for i, t := range turns {
		t.Seq = seqs[i]
		t.CreatedAt = created[i]
	}
	return nil
}

func (s *Store) appendTurn(ctx context.Context, tx *sql.Tx, t *storage.Turn, sources string, created time.Time) (int, error) {
	query, args := s.builder().
		Select("id").
		From(entsql.Table(sessionsTable)).
		Where(entsql.EQ("id", t.SessionID)).
		Query()
	var id string
	if err := tx.QueryRowContext(ctx, query, args...).Scan(&id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, storage.NotFoundError{ID: t.SessionID}
		}
		return 0, fmt.Errorf("failed to check session: %w", err)
	}

	query, args = s.builder().
		Select(entsql.Max("seq")).
		From(entsql.Table(turnsTable)).
		Where(entsql.EQ("session_id", t.SessionID)).
		Query()
	var last sql.NullInt64
	if err := tx.QueryRowContext(ctx, query, args...).Scan(&last); err != nil {
		return 0, fmt.Errorf("failed to read turn sequence: %w", err)
	}
	seq := int(last.Int64) + 1

	query, args = s.builder().
		Insert(turnsTable).
		Columns(turnColumns...).
		Values(t.SessionID, seq, t.Role, t.Content, t.FinishReason, sources, created).
		Query()
	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		return 0, fmt.Errorf("could not store turn: %w", err)
	}

	query, args = s.builder().
		Update(sessionsTable).
		Set("updated_at", created).
		Where(entsql.And(
			entsql.EQ("id", t.SessionID),
			entsql.LT("updated_at", created),
		)).
		Query()
	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		return 0, fmt.Errorf("failed to touch session: %w", err)
	}

	return seq, nil
}

func (s *Store) Turns(ctx context.Context, sessionID string) ([]*storage.Turn, error) {
	if _, err := s.GetSession(ctx, sessionID); err != nil {
		return nil, err
	}

	query, args := s.builder().
		Select(turnColumns...).
		From(entsql.Table(turnsTable)).
		Where(entsql.EQ("session_id", sessionID)).
		OrderBy("seq").
		Query()

	rows, err := s.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query turns: %w", err)
	}
	defer rows.Close()

	var result []*storage.Turn
	for rows.Next() {
		var (
			t       storage.Turn
			sources string
		)
		if err := rows.Scan(&t.SessionID, &t.Seq, &t.Role, &t.Content, &t.FinishReason, &sources, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan turn: %w", err)
		}
		if err := json.Unmarshal([]byte(sources), &t.Sources); err != nil {
			return nil, fmt.Errorf("failed to unmarshal sources: %w", err)
		}
		if len(t.Sources) == 0 {
			t.Sources = nil
		}
		t.CreatedAt = t.CreatedAt.UTC()
		result = append(result, &t)
	}

	return result, rows.Err()
}

func (s *Store) Close() error {
	return s.DB.Close()
}

func (s *Store) withTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (*storage.Session, error) {
	var (
		sess        storage.Session
		collections string
	)
	err := row.Scan(&sess.ID, &sess.Kind, &sess.AgentID, &sess.RemoteSessionID, &sess.Model,
		&collections, &sess.Title, &sess.CreatedAt, &sess.UpdatedAt)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(collections), &sess.Collections); err != nil {
		return nil, fmt.Errorf("failed to unmarshal collections: %w", err)
	}
	if len(sess.Collections) == 0 {
		sess.Collections = nil
	}
	sess.CreatedAt = sess.CreatedAt.UTC()
	sess.UpdatedAt = sess.UpdatedAt.UTC()

	return &sess, nil
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}

// Compile-time interface check.
var _ storage.Driver = (*Store)(nil)
