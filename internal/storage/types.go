package storage

import (
	"time"

	"github.com/openforum/gating-service/internal/gating"
)

// VerificationStatus is the lifecycle state of a pre-verification
// record. Only pending, verified and failed are ever stored; expired and
// not_started are synthesized at read time.
type VerificationStatus string

const (
	// StatusNotStarted means no record exists for the key.
	StatusNotStarted VerificationStatus = "not_started"
	// StatusPending means a challenge was issued but not yet completed.
	StatusPending VerificationStatus = "pending"
	// StatusVerified means the signature validated and requirements held.
	StatusVerified VerificationStatus = "verified"
	// StatusFailed means signature validation or the requirements failed.
	StatusFailed VerificationStatus = "failed"
	// StatusExpired is derived from a verified record whose expires_at
	// has passed. Never written to the database.
	StatusExpired VerificationStatus = "expired"
)

// PreVerification is a stored verification outcome for one
// (user, lock, category) key.
type PreVerification struct {
	ID           int64
	UserID       string
	LockID       int64
	CategoryType gating.CategoryType
	Status       VerificationStatus

	// Challenge fields. ChallengeID is the single-use nonce identifier;
	// Challenge holds the full message the wallet signs.
	ChallengeID        string
	Challenge          string
	WalletAddress      string
	Signature          string
	ChallengeExpiresAt time.Time

	VerifiedAt *time.Time
	ExpiresAt  *time.Time
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// EffectiveStatus resolves the stored status against the clock: a
// verified record past its expiry reads as expired without any write.
func (p *PreVerification) EffectiveStatus(now time.Time) VerificationStatus {
	if p == nil {
		return StatusNotStarted
	}
	if p.Status == StatusVerified && p.ExpiresAt != nil && !now.Before(*p.ExpiresAt) {
		return StatusExpired
	}
	return p.Status
}

// CurrentlyVerified reports whether the record grants access right now.
func (p *PreVerification) CurrentlyVerified(now time.Time) bool {
	return p.EffectiveStatus(now) == StatusVerified
}

// Board binds a board to the locks gating its write access.
type Board struct {
	ID          int64                  `json:"id"`
	Name        string                 `json:"name"`
	CommunityID string                 `json:"communityId"`
	Fulfillment gating.FulfillmentMode `json:"fulfillment"`
	LockIDs     []int64                `json:"lockIds"`
	CreatedAt   time.Time              `json:"createdAt"`
}

// Token is an admin API token with a bcrypt key hash.
type Token struct {
	ID        int64
	KeyHash   string
	Name      string
	IsAdmin   bool
	CreatedAt time.Time
}
