package storage

import (
	"database/sql"
	"fmt"
)

// InitSchema creates all required tables and indexes.
// This is idempotent - safe to call multiple times.
func InitSchema(db *sql.DB) error {
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		return fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	ddlStatements := []string{
		// locks table: reusable gating requirement bundles; categories
		// holds the category list as a JSON blob
		`CREATE TABLE IF NOT EXISTS locks (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			name TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			icon TEXT NOT NULL DEFAULT '',
			community_id TEXT NOT NULL,
			fulfillment TEXT NOT NULL,
			categories TEXT NOT NULL,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,

		`CREATE INDEX IF NOT EXISTS idx_locks_community ON locks(community_id)`,

		// boards table: which locks gate a board, and how they combine
		`CREATE TABLE IF NOT EXISTS boards (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			name TEXT NOT NULL,
			community_id TEXT NOT NULL,
			fulfillment TEXT NOT NULL,
			lock_ids TEXT NOT NULL,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,

		`CREATE INDEX IF NOT EXISTS idx_boards_community ON boards(community_id)`,

		// pre_verifications table: one row per (user, lock, category);
		// expiry is evaluated lazily against expires_at, never swept
		`CREATE TABLE IF NOT EXISTS pre_verifications (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			user_id TEXT NOT NULL,
			lock_id INTEGER NOT NULL,
			category_type TEXT NOT NULL,
			status TEXT NOT NULL,
			challenge_id TEXT NOT NULL DEFAULT '',
			challenge TEXT NOT NULL DEFAULT '',
			wallet_address TEXT NOT NULL DEFAULT '',
			signature TEXT NOT NULL DEFAULT '',
			challenge_expires_at TIMESTAMP,
			verified_at TIMESTAMP,
			expires_at TIMESTAMP,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			UNIQUE(user_id, lock_id, category_type),
			FOREIGN KEY (lock_id) REFERENCES locks(id) ON DELETE CASCADE
		)`,

		`CREATE INDEX IF NOT EXISTS idx_pre_verifications_user_lock
			ON pre_verifications(user_id, lock_id)`,

		// tokens table: admin API tokens with bcrypt hashes
		`CREATE TABLE IF NOT EXISTS tokens (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			key_hash TEXT NOT NULL UNIQUE,
			name TEXT NOT NULL,
			is_admin BOOLEAN NOT NULL DEFAULT FALSE,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,
	}

	for _, stmt := range ddlStatements {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("failed to execute DDL: %w", err)
		}
	}

	return nil
}
