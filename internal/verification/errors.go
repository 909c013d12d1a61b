package verification

import "errors"

var (
	// ErrCategoryNotEnabled means the lock has no enabled category of
	// the requested type.
	ErrCategoryNotEnabled = errors.New("category not enabled for this lock")

	// ErrNoChallenge means no pending challenge exists for the key.
	ErrNoChallenge = errors.New("no pending challenge")

	// ErrChallengeMismatch means the submitted challenge ID does not
	// match the pending one. A superseded or already consumed challenge
	// fails this way.
	ErrChallengeMismatch = errors.New("challenge does not match")

	// ErrChallengeExpired means the challenge's signing window passed.
	ErrChallengeExpired = errors.New("challenge expired")

	// ErrSignatureMismatch means the recovered signer is not the
	// address the challenge was issued for.
	ErrSignatureMismatch = errors.New("signature does not match claimed address")
)
