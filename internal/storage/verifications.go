package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/openforum/gating-service/internal/gating"
)

// UpsertChallenge writes a pending pre-verification row for
// (user, lock, category), replacing any previous state. A re-issued
// challenge overwrites the old one, which implicitly invalidates it.
func (s *SQLiteStore) UpsertChallenge(ctx context.Context, pv *PreVerification) (*PreVerification, error) {
	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO pre_verifications
			(user_id, lock_id, category_type, status, challenge_id, challenge,
			 wallet_address, signature, challenge_expires_at, verified_at, expires_at,
			 created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, '', ?, NULL, NULL, ?, ?)
		 ON CONFLICT(user_id, lock_id, category_type) DO UPDATE SET
			status = excluded.status,
			challenge_id = excluded.challenge_id,
			challenge = excluded.challenge,
			wallet_address = excluded.wallet_address,
			signature = '',
			challenge_expires_at = excluded.challenge_expires_at,
			verified_at = NULL,
			expires_at = NULL,
			updated_at = excluded.updated_at`,
		pv.UserID, pv.LockID, string(pv.CategoryType), string(StatusPending),
		pv.ChallengeID, pv.Challenge, pv.WalletAddress, pv.ChallengeExpiresAt,
		now, now)
	if err != nil {
		return nil, fmt.Errorf("failed to upsert challenge: %w", err)
	}

	return s.GetPreVerification(ctx, pv.UserID, pv.LockID, pv.CategoryType)
}

// GetPreVerification retrieves the record for one (user, lock, category).
// Returns ErrNotFound if no record exists.
func (s *SQLiteStore) GetPreVerification(ctx context.Context, userID string, lockID int64, category gating.CategoryType) (*PreVerification, error) {
	row := s.db.QueryRowContext(ctx,
		selectPreVerification+" WHERE user_id = ? AND lock_id = ? AND category_type = ?",
		userID, lockID, string(category))

	pv, err := scanPreVerification(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get pre-verification: %w", err)
	}
	return pv, nil
}

// ListPreVerifications returns all records for a (user, lock) pair.
// Returns empty slice if none exist.
func (s *SQLiteStore) ListPreVerifications(ctx context.Context, userID string, lockID int64) ([]*PreVerification, error) {
	rows, err := s.db.QueryContext(ctx,
		selectPreVerification+" WHERE user_id = ? AND lock_id = ? ORDER BY category_type ASC",
		userID, lockID)
	if err != nil {
		return nil, fmt.Errorf("failed to query pre-verifications: %w", err)
	}
	return collectPreVerifications(rows)
}

// ListPreVerificationsForLocks returns all records for a user across a
// set of locks, used by the board access computation.
func (s *SQLiteStore) ListPreVerificationsForLocks(ctx context.Context, userID string, lockIDs []int64) ([]*PreVerification, error) {
	if len(lockIDs) == 0 {
		return []*PreVerification{}, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(lockIDs)), ",")
	args := make([]any, 0, len(lockIDs)+1)
	args = append(args, userID)
	for _, id := range lockIDs {
		args = append(args, id)
	}

	rows, err := s.db.QueryContext(ctx,
		selectPreVerification+" WHERE user_id = ? AND lock_id IN ("+placeholders+") ORDER BY lock_id, category_type",
		args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query pre-verifications: %w", err)
	}
	return collectPreVerifications(rows)
}

// MarkVerified transitions a record to verified and stamps the grant
// window. The challenge is cleared so it cannot be replayed.
func (s *SQLiteStore) MarkVerified(ctx context.Context, id int64, signature string, verifiedAt, expiresAt time.Time) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE pre_verifications SET
			status = ?, signature = ?, challenge_id = '', challenge = '',
			verified_at = ?, expires_at = ?, updated_at = ?
		 WHERE id = ?`,
		string(StatusVerified), signature, verifiedAt, expiresAt, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to mark verified: %w", err)
	}
	return requireRow(result)
}

// MarkFailed transitions a record to failed, keeping the signature for
// diagnostics. Failed records may be retried by issuing a new challenge.
func (s *SQLiteStore) MarkFailed(ctx context.Context, id int64, signature string) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE pre_verifications SET
			status = ?, signature = ?, challenge_id = '', challenge = '',
			verified_at = NULL, expires_at = NULL, updated_at = ?
		 WHERE id = ?`,
		string(StatusFailed), signature, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to mark failed: %w", err)
	}
	return requireRow(result)
}

// DeletePreVerification removes a record by ID. Used for preview-mode
// verifications that must not persist.
func (s *SQLiteStore) DeletePreVerification(ctx context.Context, id int64) error {
	result, err := s.db.ExecContext(ctx, "DELETE FROM pre_verifications WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete pre-verification: %w", err)
	}
	return requireRow(result)
}

func requireRow(result sql.Result) error {
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

const selectPreVerification = `SELECT id, user_id, lock_id, category_type, status,
	challenge_id, challenge, wallet_address, signature,
	challenge_expires_at, verified_at, expires_at, created_at, updated_at
	FROM pre_verifications`

func scanPreVerification(r rowScanner) (*PreVerification, error) {
	var pv PreVerification
	var category, status string
	var challengeExpiresAt, verifiedAt, expiresAt sql.NullTime

	err := r.Scan(&pv.ID, &pv.UserID, &pv.LockID, &category, &status,
		&pv.ChallengeID, &pv.Challenge, &pv.WalletAddress, &pv.Signature,
		&challengeExpiresAt, &verifiedAt, &expiresAt, &pv.CreatedAt, &pv.UpdatedAt)
	if err != nil {
		return nil, err
	}

	pv.CategoryType = gating.CategoryType(category)
	pv.Status = VerificationStatus(status)
	if challengeExpiresAt.Valid {
		pv.ChallengeExpiresAt = challengeExpiresAt.Time
	}
	if verifiedAt.Valid {
		t := verifiedAt.Time
		pv.VerifiedAt = &t
	}
	if expiresAt.Valid {
		t := expiresAt.Time
		pv.ExpiresAt = &t
	}
	return &pv, nil
}

func collectPreVerifications(rows *sql.Rows) ([]*PreVerification, error) {
	defer rows.Close() //nolint:errcheck

	records := make([]*PreVerification, 0)
	for rows.Next() {
		pv, err := scanPreVerification(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan pre-verification row: %w", err)
		}
		records = append(records, pv)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating pre-verifications: %w", err)
	}
	return records, nil
}
