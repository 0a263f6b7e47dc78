package sqlstore

import "entgo.io/ent/dialect"

// schema holds the idempotent DDL for each supported dialect. Tables only
// ever gain columns; existing ones are never altered.
var schema = map[string][]string{
	dialect.SQLite: {
		`CREATE TABLE IF NOT EXISTS sessions (
			id TEXT PRIMARY KEY,
			kind TEXT NOT NULL,
			agent_id TEXT NOT NULL DEFAULT '',
			remote_session_id TEXT NOT NULL DEFAULT '',
			model TEXT NOT NULL DEFAULT '',
			collections TEXT NOT NULL DEFAULT '[]',
			title TEXT NOT NULL DEFAULT '',
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS sessions_kind_updated_at ON sessions (kind, updated_at)`,
		`CREATE TABLE IF NOT EXISTS turns (
			session_id TEXT NOT NULL REFERENCES sessions (id) ON DELETE CASCADE,
			seq INTEGER NOT NULL,
			role TEXT NOT NULL,
			content TEXT NOT NULL,
			finish_reason TEXT NOT NULL DEFAULT '',
			sources TEXT NOT NULL DEFAULT '[]',
			created_at DATETIME NOT NULL,
			PRIMARY KEY (session_id, seq)
		)`,
	},
	dialect.Postgres: {
		`CREATE TABLE IF NOT EXISTS sessions (
			id TEXT PRIMARY KEY,
			kind TEXT NOT NULL,
			agent_id TEXT NOT NULL DEFAULT '',
			remote_session_id TEXT NOT NULL DEFAULT '',
			model TEXT NOT NULL DEFAULT '',
			collections TEXT NOT NULL DEFAULT '[]',
			title TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS sessions_kind_updated_at ON sessions (kind, updated_at)`,
		`CREATE TABLE IF NOT EXISTS turns (
			session_id TEXT NOT NULL REFERENCES sessions (id) ON DELETE CASCADE,
			seq INTEGER NOT NULL,
			role TEXT NOT NULL,
			content TEXT NOT NULL,
			finish_reason TEXT NOT NULL DEFAULT '',
			sources TEXT NOT NULL DEFAULT '[]',
			created_at TIMESTAMPTZ NOT NULL,
			PRIMARY KEY (session_id, seq)
		)`,
	},
}
