package lists

import (
	"context"
	"fmt"

	"github.com/Macrina/Listify-Agent-sub000/internal/infrastructure/store"
)

var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS lists (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	name TEXT NOT NULL,
	description TEXT,
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL
)`,
	`CREATE TABLE IF NOT EXISTS list_items (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	list_id INTEGER NOT NULL REFERENCES lists(id),
	item_name TEXT NOT NULL,
	category TEXT NOT NULL DEFAULT 'other',
	quantity TEXT,
	notes TEXT,
	explanation TEXT,
	status TEXT NOT NULL DEFAULT 'pending',
	source_type TEXT NOT NULL,
	extracted_at TEXT NOT NULL,
	metadata TEXT NOT NULL DEFAULT '{}',
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL
)`,
	`CREATE INDEX IF NOT EXISTS idx_list_items_list_id ON list_items(list_id)`,
	`CREATE INDEX IF NOT EXISTS idx_lists_created_at ON lists(created_at)`,
}

var postgresSchema = []string{
	`CREATE TABLE IF NOT EXISTS lists (
	id BIGSERIAL PRIMARY KEY,
	name TEXT NOT NULL,
	description TEXT,
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL
)`,
	`CREATE TABLE IF NOT EXISTS list_items (
	id BIGSERIAL PRIMARY KEY,
	list_id BIGINT NOT NULL REFERENCES lists(id),
	item_name TEXT NOT NULL,
	category TEXT NOT NULL DEFAULT 'other',
	quantity TEXT,
	notes TEXT,
	explanation TEXT,
	status TEXT NOT NULL DEFAULT 'pending',
	source_type TEXT NOT NULL,
	extracted_at TEXT NOT NULL,
	metadata TEXT NOT NULL DEFAULT '{}',
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL
)`,
	`CREATE INDEX IF NOT EXISTS idx_list_items_list_id ON list_items(list_id)`,
	`CREATE INDEX IF NOT EXISTS idx_lists_created_at ON lists(created_at DESC)`,
}

// EnsureSchema creates the tables when missing. Each DDL statement is its own
// call; re-running it is harmless.
func (r *Repository) EnsureSchema(ctx context.Context) error {
	ddl := sqliteSchema
	if r.dialect == DialectPostgres {
		ddl = postgresSchema
	}
	for idx, stmt := range ddl {
		if _, err := r.gw.Exec(ctx, store.NewStatement(stmt)); err != nil {
			return fmt.Errorf("execute schema ddl %d: %w", idx, err)
		}
	}
	return nil
}
