package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// CreateToken creates a new API token with a bcrypt hash.
// Returns ErrDuplicate if a token with this hash already exists.
func (s *SQLiteStore) CreateToken(ctx context.Context, name string, isAdmin bool, keyHash string) (*Token, error) {
	result, err := s.db.ExecContext(ctx,
		"INSERT INTO tokens (key_hash, name, is_admin) VALUES (?, ?, ?)",
		keyHash, name, isAdmin)
	if err != nil {
		// UNIQUE constraint violations surface as extended code 2067
		// or as the base SQLITE_CONSTRAINT code.
		var sqliteErr *sqlite.Error
		if errors.As(err, &sqliteErr) {
			if sqliteErr.Code() == 2067 || (sqliteErr.Code()&0xFF) == sqlite3.SQLITE_CONSTRAINT {
				return nil, ErrDuplicate
			}
		}
		return nil, fmt.Errorf("failed to create token: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed to get insert ID: %w", err)
	}

	return &Token{
		ID:      id,
		KeyHash: keyHash,
		Name:    name,
		IsAdmin: isAdmin,
	}, nil
}

// GetTokenByID retrieves a token by ID.
// Returns ErrNotFound if the token doesn't exist.
func (s *SQLiteStore) GetTokenByID(ctx context.Context, id int64) (*Token, error) {
	var t Token

	err := s.db.QueryRowContext(ctx,
		"SELECT id, key_hash, name, is_admin, created_at FROM tokens WHERE id = ?",
		id).
		Scan(&t.ID, &t.KeyHash, &t.Name, &t.IsAdmin, &t.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get token by ID: %w", err)
	}

	return &t, nil
}

// ListTokens returns all tokens, newest first.
// Returns empty slice if no tokens exist.
func (s *SQLiteStore) ListTokens(ctx context.Context) ([]*Token, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, key_hash, name, is_admin, created_at FROM tokens ORDER BY created_at DESC")
	if err != nil {
		return nil, fmt.Errorf("failed to query tokens: %w", err)
	}
	defer rows.Close() //nolint:errcheck

	tokens := make([]*Token, 0)
	for rows.Next() {
		var t Token
		if err := rows.Scan(&t.ID, &t.KeyHash, &t.Name, &t.IsAdmin, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan token row: %w", err)
		}
		tokens = append(tokens, &t)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating tokens: %w", err)
	}

	return tokens, nil
}

// DeleteToken deletes a token by ID.
// Returns ErrNotFound if the token doesn't exist.
func (s *SQLiteStore) DeleteToken(ctx context.Context, id int64) error {
	result, err := s.db.ExecContext(ctx, "DELETE FROM tokens WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete token: %w", err)
	}
	return requireRow(result)
}

// CountAdminTokens returns the number of admin tokens. The master-token
// bootstrap path is only open while this is zero.
func (s *SQLiteStore) CountAdminTokens(ctx context.Context) (int, error) {
	var count int

	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM tokens WHERE is_admin = TRUE").
		Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count admin tokens: %w", err)
	}

	return count, nil
}
