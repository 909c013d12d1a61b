package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/openforum/gating-service/internal/gating"
)

// CreateLock persists a validated lock config. The category list is
// JSON-encoded into a single column.
func (s *SQLiteStore) CreateLock(ctx context.Context, lock *gating.Lock) (*gating.Lock, error) {
	if err := lock.Validate(); err != nil {
		return nil, fmt.Errorf("invalid lock: %w", err)
	}

	categoriesJSON, err := json.Marshal(lock.Categories)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal categories: %w", err)
	}

	now := time.Now().UTC()
	result, err := s.db.ExecContext(ctx,
		`INSERT INTO locks (name, description, icon, community_id, fulfillment, categories, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		lock.Name, lock.Description, lock.Icon, lock.CommunityID,
		string(lock.Fulfillment), string(categoriesJSON), now, now)
	if err != nil {
		return nil, fmt.Errorf("failed to create lock: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed to get insert ID: %w", err)
	}

	created := *lock
	created.ID = id
	created.CreatedAt = now
	created.UpdatedAt = now
	return &created, nil
}

// GetLock retrieves a lock by ID.
// Returns ErrNotFound if the lock doesn't exist.
func (s *SQLiteStore) GetLock(ctx context.Context, id int64) (*gating.Lock, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, name, description, icon, community_id, fulfillment, categories, created_at, updated_at
		 FROM locks WHERE id = ?`, id)

	lock, err := scanLock(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get lock: %w", err)
	}
	return lock, nil
}

// ListLocks returns all locks, optionally filtered by community.
// Returns empty slice if no locks exist.
func (s *SQLiteStore) ListLocks(ctx context.Context, communityID string) ([]*gating.Lock, error) {
	query := `SELECT id, name, description, icon, community_id, fulfillment, categories, created_at, updated_at
		 FROM locks`
	args := []any{}
	if communityID != "" {
		query += " WHERE community_id = ?"
		args = append(args, communityID)
	}
	query += " ORDER BY created_at DESC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query locks: %w", err)
	}
	defer rows.Close() //nolint:errcheck

	locks := make([]*gating.Lock, 0)
	for rows.Next() {
		lock, err := scanLock(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan lock row: %w", err)
		}
		locks = append(locks, lock)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating locks: %w", err)
	}
	return locks, nil
}

// DeleteLock deletes a lock by ID. Cascades to pre_verifications via
// foreign key constraint.
// Returns ErrNotFound if the lock doesn't exist.
func (s *SQLiteStore) DeleteLock(ctx context.Context, id int64) error {
	result, err := s.db.ExecContext(ctx, "DELETE FROM locks WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete lock: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanLock(r rowScanner) (*gating.Lock, error) {
	var lock gating.Lock
	var fulfillment, categoriesJSON string

	err := r.Scan(&lock.ID, &lock.Name, &lock.Description, &lock.Icon,
		&lock.CommunityID, &fulfillment, &categoriesJSON,
		&lock.CreatedAt, &lock.UpdatedAt)
	if err != nil {
		return nil, err
	}

	lock.Fulfillment = gating.FulfillmentMode(fulfillment)
	if err := json.Unmarshal([]byte(categoriesJSON), &lock.Categories); err != nil {
		return nil, fmt.Errorf("failed to unmarshal categories: %w", err)
	}
	return &lock, nil
}
