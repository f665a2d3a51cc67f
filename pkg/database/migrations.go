package database

import (
	"context"
	"fmt"

	"entgo.io/ent/dialect/sql"
)

// CreatePartialUniqueIndexes creates PostgreSQL partial unique indexes that
// Ent/Atlas cannot express. The active-session index is what enforces
// duplicate prevention: at most one active session may exist for a given
// (owner_id, country, service_type) tuple.
func CreatePartialUniqueIndexes(ctx context.Context, driver *sql.Driver) error {
	db := driver.DB()

	_, err := db.ExecContext(ctx,
		`CREATE UNIQUE INDEX IF NOT EXISTS chat_sessions_owner_scope_active
		ON chat_sessions (owner_id, country, service_type)
		WHERE active AND owner_id IS NOT NULL`)
	if err != nil {
		return fmt.Errorf("failed to create active session index: %w", err)
	}

	// Idempotent appends: a retried append with the same key must not
	// produce a second row.
	_, err = db.ExecContext(ctx,
		`CREATE UNIQUE INDEX IF NOT EXISTS messages_session_idempotency_key
		ON messages (session_id, idempotency_key)
		WHERE idempotency_key IS NOT NULL`)
	if err != nil {
		return fmt.Errorf("failed to create idempotency index: %w", err)
	}

	return nil
}
