// Package storage handles all database operations for the gating service.
package storage

import (
	"context"
	"time"

	"github.com/openforum/gating-service/internal/gating"
)

// Store defines the SQLite persistence operations.
type Store interface {
	// Lock operations
	CreateLock(ctx context.Context, lock *gating.Lock) (*gating.Lock, error)
	GetLock(ctx context.Context, id int64) (*gating.Lock, error)
	ListLocks(ctx context.Context, communityID string) ([]*gating.Lock, error)
	DeleteLock(ctx context.Context, id int64) error

	// Board operations
	CreateBoard(ctx context.Context, board *Board) (*Board, error)
	GetBoard(ctx context.Context, id int64) (*Board, error)
	ListBoards(ctx context.Context, communityID string) ([]*Board, error)
	DeleteBoard(ctx context.Context, id int64) error

	// Pre-verification operations
	UpsertChallenge(ctx context.Context, pv *PreVerification) (*PreVerification, error)
	GetPreVerification(ctx context.Context, userID string, lockID int64, category gating.CategoryType) (*PreVerification, error)
	ListPreVerifications(ctx context.Context, userID string, lockID int64) ([]*PreVerification, error)
	ListPreVerificationsForLocks(ctx context.Context, userID string, lockIDs []int64) ([]*PreVerification, error)
	MarkVerified(ctx context.Context, id int64, signature string, verifiedAt, expiresAt time.Time) error
	MarkFailed(ctx context.Context, id int64, signature string) error
	DeletePreVerification(ctx context.Context, id int64) error

	// Admin token operations
	CreateToken(ctx context.Context, name string, isAdmin bool, keyHash string) (*Token, error)
	GetTokenByID(ctx context.Context, id int64) (*Token, error)
	ListTokens(ctx context.Context) ([]*Token, error)
	DeleteToken(ctx context.Context, id int64) error
	CountAdminTokens(ctx context.Context) (int, error)

	// Lifecycle
	Ping(ctx context.Context) error
	Close() error
}
