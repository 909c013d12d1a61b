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

// CreateBoard persists a board's lock binding.
func (s *SQLiteStore) CreateBoard(ctx context.Context, board *Board) (*Board, error) {
	if board.Name == "" {
		return nil, fmt.Errorf("board name is required")
	}
	if !board.Fulfillment.Valid() {
		return nil, fmt.Errorf("invalid fulfillment mode %q", board.Fulfillment)
	}

	lockIDsJSON, err := json.Marshal(board.LockIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal lock IDs: %w", err)
	}

	now := time.Now().UTC()
	result, err := s.db.ExecContext(ctx,
		`INSERT INTO boards (name, community_id, fulfillment, lock_ids, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		board.Name, board.CommunityID, string(board.Fulfillment), string(lockIDsJSON), now)
	if err != nil {
		return nil, fmt.Errorf("failed to create board: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed to get insert ID: %w", err)
	}

	created := *board
	created.ID = id
	created.CreatedAt = now
	return &created, nil
}

// GetBoard retrieves a board by ID.
// Returns ErrNotFound if the board doesn't exist.
func (s *SQLiteStore) GetBoard(ctx context.Context, id int64) (*Board, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, name, community_id, fulfillment, lock_ids, created_at
		 FROM boards WHERE id = ?`, id)

	board, err := scanBoard(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get board: %w", err)
	}
	return board, nil
}

// ListBoards returns all boards, optionally filtered by community.
func (s *SQLiteStore) ListBoards(ctx context.Context, communityID string) ([]*Board, error) {
	query := `SELECT id, name, community_id, fulfillment, lock_ids, created_at FROM boards`
	args := []any{}
	if communityID != "" {
		query += " WHERE community_id = ?"
		args = append(args, communityID)
	}
	query += " ORDER BY created_at DESC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query boards: %w", err)
	}
	defer rows.Close() //nolint:errcheck

	boards := make([]*Board, 0)
	for rows.Next() {
		board, err := scanBoard(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan board row: %w", err)
		}
		boards = append(boards, board)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating boards: %w", err)
	}
	return boards, nil
}

// DeleteBoard deletes a board by ID.
// Returns ErrNotFound if the board doesn't exist.
func (s *SQLiteStore) DeleteBoard(ctx context.Context, id int64) error {
	result, err := s.db.ExecContext(ctx, "DELETE FROM boards WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete board: %w", err)
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

func scanBoard(r rowScanner) (*Board, error) {
	var board Board
	var fulfillment, lockIDsJSON string

	err := r.Scan(&board.ID, &board.Name, &board.CommunityID,
		&fulfillment, &lockIDsJSON, &board.CreatedAt)
	if err != nil {
		return nil, err
	}

	board.Fulfillment = gating.FulfillmentMode(fulfillment)
	if err := json.Unmarshal([]byte(lockIDsJSON), &board.LockIDs); err != nil {
		return nil, fmt.Errorf("failed to unmarshal lock IDs: %w", err)
	}
	return &board, nil
}
