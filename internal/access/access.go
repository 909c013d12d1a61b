// Package access computes whether a user currently has write access to
// a gated board or post from their stored verification records. The
// result is derived on every call and never cached.
package access

import (
	"context"
	"fmt"
	"time"

	"github.com/openforum/gating-service/internal/gating"
	"github.com/openforum/gating-service/internal/storage"
)

// LockStatus is the derived state of one lock for one user.
type LockStatus struct {
	LockID             int64      `json:"lockId"`
	Name               string     `json:"name"`
	Verified           bool       `json:"verified"`
	VerifiedCategories int        `json:"verifiedCategories"`
	TotalCategories    int        `json:"totalCategories"`
	ExpiresAt          *time.Time `json:"expiresAt,omitempty"`
}

// BoardStatus is the derived access state for one (user, board) pair.
type BoardStatus struct {
	HasWriteAccess bool                   `json:"hasWriteAccess"`
	Fulfillment    gating.FulfillmentMode `json:"fulfillment"`
	VerifiedCount  int                    `json:"verifiedCount"`
	RequiredCount  int                    `json:"requiredCount"`
	Locks          []LockStatus           `json:"locks"`
	ExpiresAt      *time.Time             `json:"expiresAt,omitempty"`
}

// Service reads verification records and lock configs from storage and
// reduces them to access decisions.
type Service struct {
	store storage.Store
}

// NewService builds an access service.
func NewService(store storage.Store) *Service {
	return &Service{store: store}
}

// ForBoard computes the user's current access to a board from its
// configured locks and the user's stored verifications. Expiry is
// evaluated lazily against now; stored statuses are never trusted in
// isolation.
func (s *Service) ForBoard(ctx context.Context, userID string, boardID int64) (*BoardStatus, error) {
	board, err := s.store.GetBoard(ctx, boardID)
	if err != nil {
		return nil, err
	}

	locks := make([]*gating.Lock, 0, len(board.LockIDs))
	for _, id := range board.LockIDs {
		lock, err := s.store.GetLock(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("failed to load lock %d: %w", id, err)
		}
		locks = append(locks, lock)
	}

	records, err := s.store.ListPreVerificationsForLocks(ctx, userID, board.LockIDs)
	if err != nil {
		return nil, err
	}

	return Compute(locks, board.Fulfillment, records, time.Now().UTC()), nil
}

// ForLock computes the user's current state for a single lock.
func (s *Service) ForLock(ctx context.Context, userID string, lockID int64) (*LockStatus, error) {
	lock, err := s.store.GetLock(ctx, lockID)
	if err != nil {
		return nil, err
	}
	records, err := s.store.ListPreVerifications(ctx, userID, lockID)
	if err != nil {
		return nil, err
	}

	status := lockStatus(lock, indexRecords(records), time.Now().UTC())
	return &status, nil
}

// Compute reduces lock configs and verification records into a board
// access decision. The same ANY/ALL algebra applies across locks as
// applies across categories within one lock. Under all mode the overall
// expiry is the earliest contributing lock expiry; under any mode it is
// the latest among currently-verified locks.
func Compute(locks []*gating.Lock, mode gating.FulfillmentMode, records []*storage.PreVerification, now time.Time) *BoardStatus {
	byKey := indexRecords(records)

	statuses := make([]LockStatus, 0, len(locks))
	verified := 0
	var expiry *time.Time
	for _, lock := range locks {
		ls := lockStatus(lock, byKey, now)
		statuses = append(statuses, ls)
		if ls.Verified {
			verified++
		}

		switch mode {
		case gating.FulfillmentAll:
			// Any contributing lock expiring revokes access.
			expiry = earlier(expiry, ls.ExpiresAt)
		default:
			// Access persists as long as one lock remains valid.
			if ls.Verified {
				expiry = later(expiry, ls.ExpiresAt)
			}
		}
	}

	total := len(locks)
	required := total
	hasAccess := verified == total
	if mode == gating.FulfillmentAny && total > 0 {
		required = 1
		hasAccess = verified >= 1
	}

	status := &BoardStatus{
		HasWriteAccess: hasAccess,
		Fulfillment:    mode,
		VerifiedCount:  verified,
		RequiredCount:  required,
		Locks:          statuses,
	}
	if hasAccess {
		status.ExpiresAt = expiry
	}
	return status
}

type recordKey struct {
	lockID   int64
	category gating.CategoryType
}

func indexRecords(records []*storage.PreVerification) map[recordKey]*storage.PreVerification {
	byKey := make(map[recordKey]*storage.PreVerification, len(records))
	for _, r := range records {
		byKey[recordKey{lockID: r.LockID, category: r.CategoryType}] = r
	}
	return byKey
}

// lockStatus derives one lock's verified state from stored records. A
// category counts as verified if a currently-non-expired record exists,
// or vacuously if it has no requirements configured. The lock's own
// fulfillment mode combines its categories with the same min/max expiry
// selection used across locks.
func lockStatus(lock *gating.Lock, byKey map[recordKey]*storage.PreVerification, now time.Time) LockStatus {
	enabled := lock.EnabledCategories()

	verified := 0
	var expiry *time.Time
	for _, cat := range enabled {
		catVerified := false
		var catExpiry *time.Time

		if cat.Requirements.Empty() {
			catVerified = true
		} else if pv := byKey[recordKey{lockID: lock.ID, category: cat.Type}]; pv.CurrentlyVerified(now) {
			catVerified = true
			catExpiry = pv.ExpiresAt
		}

		if catVerified {
			verified++
		}

		switch lock.Fulfillment {
		case gating.FulfillmentAll:
			expiry = earlier(expiry, catExpiry)
		default:
			if catVerified {
				expiry = later(expiry, catExpiry)
			}
		}
	}

	total := len(enabled)
	satisfied := verified == total
	if lock.Fulfillment == gating.FulfillmentAny && total > 0 {
		satisfied = verified >= 1
	}

	ls := LockStatus{
		LockID:             lock.ID,
		Name:               lock.Name,
		Verified:           satisfied,
		VerifiedCategories: verified,
		TotalCategories:    total,
	}
	if satisfied {
		ls.ExpiresAt = expiry
	}
	return ls
}

func earlier(a, b *time.Time) *time.Time {
	if a == nil {
		return b
	}
	if b == nil || a.Before(*b) {
		return a
	}
	return b
}

func later(a, b *time.Time) *time.Time {
	if a == nil {
		return b
	}
	if b == nil || a.After(*b) {
		return a
	}
	return b
}
