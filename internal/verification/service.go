package verification

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/openforum/gating-service/internal/gating"
	"github.com/openforum/gating-service/internal/storage"
)

// Service drives the challenge/sign/verify flow and persists outcomes.
type Service struct {
	store     storage.Store
	evaluator *Evaluator
	policy    Policy
	logger    *slog.Logger
}

// NewService builds a verification service.
func NewService(store storage.Store, evaluator *Evaluator, policy Policy, logger *slog.Logger) *Service {
	return &Service{
		store:     store,
		evaluator: evaluator,
		policy:    policy,
		logger:    logger,
	}
}

// Outcome is the result of a verification completion call. Store-level
// failures surface as errors; everything else resolves into an Outcome.
type Outcome struct {
	Status    storage.VerificationStatus `json:"status"`
	Message   string                     `json:"message"`
	Missing   []string                   `json:"missing,omitempty"`
	ExpiresAt *time.Time                 `json:"expiresAt,omitempty"`
}

// IssueChallenge creates a pending pre-verification row holding a fresh
// challenge for (user, lock, category, address). Re-issuing for the
// same key replaces any previous challenge, invalidating it.
func (s *Service) IssueChallenge(ctx context.Context, userID string, lockID int64, category gating.CategoryType, address string) (*Challenge, error) {
	lock, err := s.store.GetLock(ctx, lockID)
	if err != nil {
		return nil, err
	}
	if _, ok := enabledCategory(lock, category); !ok {
		return nil, ErrCategoryNotEnabled
	}

	ch := NewChallenge(userID, lockID, category, address, s.policy.ChallengeTTL)

	_, err = s.store.UpsertChallenge(ctx, &storage.PreVerification{
		UserID:             userID,
		LockID:             lockID,
		CategoryType:       category,
		ChallengeID:        ch.ID,
		Challenge:          ch.Message,
		WalletAddress:      address,
		ChallengeExpiresAt: ch.ExpiresAt,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to store challenge: %w", err)
	}

	s.logger.Debug("challenge issued",
		"user_id", userID,
		"lock_id", lockID,
		"category", category)

	return &ch, nil
}

// VerifyAndRecord completes a challenge: validates the signature
// against the issued address, re-runs the category's requirement
// checks, and records the outcome. A signature mismatch is a hard
// failure that leaves the record failed. Preview-context verifications
// run the full flow but persist nothing.
func (s *Service) VerifyAndRecord(ctx context.Context, userID string, lockID int64, category gating.CategoryType, challengeID, signature string, grant GrantContext) (*Outcome, error) {
	lock, err := s.store.GetLock(ctx, lockID)
	if err != nil {
		return nil, err
	}
	cat, ok := enabledCategory(lock, category)
	if !ok {
		return nil, ErrCategoryNotEnabled
	}

	pv, err := s.store.GetPreVerification(ctx, userID, lockID, category)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrNoChallenge
		}
		return nil, err
	}
	if pv.Status != storage.StatusPending || pv.ChallengeID == "" {
		return nil, ErrNoChallenge
	}
	if pv.ChallengeID != challengeID {
		return nil, ErrChallengeMismatch
	}

	now := time.Now().UTC()
	if now.After(pv.ChallengeExpiresAt) {
		return nil, ErrChallengeExpired
	}

	if err := VerifySignature(pv.Challenge, signature, pv.WalletAddress); err != nil {
		if errors.Is(err, ErrSignatureMismatch) {
			if markErr := s.store.MarkFailed(ctx, pv.ID, signature); markErr != nil {
				return nil, markErr
			}
			s.logger.Warn("signature mismatch",
				"user_id", userID,
				"lock_id", lockID,
				"category", category)
			return &Outcome{
				Status:  storage.StatusFailed,
				Message: "signature does not match the wallet this challenge was issued for",
			}, nil
		}
		return nil, err
	}

	result := s.evaluator.EvaluateCategory(ctx, cat, pv.WalletAddress)
	if !result.Satisfied {
		if err := s.store.MarkFailed(ctx, pv.ID, signature); err != nil {
			return nil, err
		}
		missing := result.MissingRequirements()
		s.logger.Info("verification failed",
			"user_id", userID,
			"lock_id", lockID,
			"category", category,
			"missing", missing)
		return &Outcome{
			Status:  storage.StatusFailed,
			Message: "requirements not met",
			Missing: missing,
		}, nil
	}

	expiresAt := now.Add(s.policy.GrantDuration(grant))

	if grant.Type == ContextPreview {
		// Preview proves the flow works without granting anything.
		if err := s.store.DeletePreVerification(ctx, pv.ID); err != nil {
			return nil, err
		}
		return &Outcome{
			Status:  storage.StatusVerified,
			Message: "verified (preview, not recorded)",
		}, nil
	}

	if err := s.store.MarkVerified(ctx, pv.ID, signature, now, expiresAt); err != nil {
		return nil, err
	}

	s.logger.Info("verification recorded",
		"user_id", userID,
		"lock_id", lockID,
		"category", category,
		"context", grant.Type,
		"expires_at", expiresAt)

	return &Outcome{
		Status:    storage.StatusVerified,
		Message:   "verified",
		ExpiresAt: &expiresAt,
	}, nil
}

// CategoryStatus pairs a lock category with its stored verification
// state for one user.
type CategoryStatus struct {
	Type      gating.CategoryType        `json:"type"`
	Status    storage.VerificationStatus `json:"status"`
	ExpiresAt *time.Time                 `json:"expiresAt,omitempty"`
}

// GetStatus returns the stored verification state for every enabled
// category of a lock. Categories without a record read as not_started;
// verified records past expiry read as expired.
func (s *Service) GetStatus(ctx context.Context, userID string, lockID int64) ([]CategoryStatus, error) {
	lock, err := s.store.GetLock(ctx, lockID)
	if err != nil {
		return nil, err
	}

	records, err := s.store.ListPreVerifications(ctx, userID, lockID)
	if err != nil {
		return nil, err
	}
	byCategory := make(map[gating.CategoryType]*storage.PreVerification, len(records))
	for _, r := range records {
		byCategory[r.CategoryType] = r
	}

	now := time.Now().UTC()
	statuses := make([]CategoryStatus, 0, len(lock.Categories))
	for _, cat := range lock.EnabledCategories() {
		pv := byCategory[cat.Type]
		cs := CategoryStatus{
			Type:   cat.Type,
			Status: pv.EffectiveStatus(now),
		}
		if pv != nil && pv.CurrentlyVerified(now) {
			cs.ExpiresAt = pv.ExpiresAt
		}
		statuses = append(statuses, cs)
	}
	return statuses, nil
}

// Evaluator exposes the underlying evaluator for live status runs.
func (s *Service) Evaluator() *Evaluator {
	return s.evaluator
}

func enabledCategory(lock *gating.Lock, t gating.CategoryType) (gating.Category, bool) {
	for _, cat := range lock.EnabledCategories() {
		if cat.Type == t {
			return cat, true
		}
	}
	return gating.Category{}, false
}
