// Package verification implements the challenge/signature protocol and
// the evaluator that decides whether a wallet satisfies a lock.
package verification

import "time"

// Grant durations are fixed by policy, not configurable per lock. Board
// access is amortized across many future actions, so it gets a longer
// window than a single post or comment.
const (
	DefaultPostGrant    = 30 * time.Minute
	DefaultBoardGrant   = 4 * time.Hour
	DefaultChallengeTTL = 5 * time.Minute
)

// ContextType discriminates what a verification is for.
type ContextType string

const (
	// ContextBoard grants board-wide write access.
	ContextBoard ContextType = "board"
	// ContextPost guards a single post or comment action.
	ContextPost ContextType = "post"
	// ContextPreview verifies without persisting anything.
	ContextPreview ContextType = "preview"
)

// Valid reports whether the context type is one of the known values.
func (c ContextType) Valid() bool {
	switch c {
	case ContextBoard, ContextPost, ContextPreview:
		return true
	}
	return false
}

// GrantContext describes what the caller wants access to. It governs
// the expiry duration and whether the outcome is persisted.
type GrantContext struct {
	Type    ContextType `json:"type"`
	BoardID int64       `json:"boardId,omitempty"`
	PostID  int64       `json:"postId,omitempty"`
}

// Policy holds the grant and challenge durations.
type Policy struct {
	PostGrant    time.Duration
	BoardGrant   time.Duration
	ChallengeTTL time.Duration
}

// DefaultPolicy returns the standard grant windows.
func DefaultPolicy() Policy {
	return Policy{
		PostGrant:    DefaultPostGrant,
		BoardGrant:   DefaultBoardGrant,
		ChallengeTTL: DefaultChallengeTTL,
	}
}

// GrantDuration returns how long a successful verification stays valid
// for the given context. Preview verifications are never persisted, so
// they get the short window for display purposes only.
func (p Policy) GrantDuration(ctx GrantContext) time.Duration {
	if ctx.Type == ContextBoard {
		return p.BoardGrant
	}
	return p.PostGrant
}
