// Package gating defines the lock, category and requirement types that
// describe what a user must prove before gaining write access.
package gating

import (
	"fmt"
	"math/big"
	"time"
)

// FulfillmentMode controls how multiple categories (or multiple locks)
// combine into a single pass/fail decision.
type FulfillmentMode string

const (
	// FulfillmentAny passes when at least one member is satisfied.
	FulfillmentAny FulfillmentMode = "any"
	// FulfillmentAll passes only when every member is satisfied.
	FulfillmentAll FulfillmentMode = "all"
)

// Valid reports whether the mode is one of the known values.
func (m FulfillmentMode) Valid() bool {
	return m == FulfillmentAny || m == FulfillmentAll
}

// CategoryType identifies one verification method within a lock.
// The set is closed: adding a category means adding a constant here,
// a descriptor in BuildRegistry and a checker in the checker package.
type CategoryType string

const (
	// CategoryUniversalProfile gates on LUKSO Universal Profile state:
	// LYX balance, LSP7/LSP8 tokens and the LSP26 follower registry.
	CategoryUniversalProfile CategoryType = "universal_profile"
	// CategoryEthereumProfile gates on Ethereum mainnet state:
	// ETH balance, ERC-20/ERC-721 tokens, ENS names and EFP follows.
	CategoryEthereumProfile CategoryType = "ethereum_profile"
)

// Lock is a named, reusable bundle of gating categories. Boards and posts
// reference locks by ID; the same lock can gate many of them.
type Lock struct {
	ID          int64           `json:"id"`
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Icon        string          `json:"icon,omitempty"`
	CommunityID string          `json:"communityId"`
	Fulfillment FulfillmentMode `json:"fulfillment"`
	Categories  []Category      `json:"categories"`
	CreatedAt   time.Time       `json:"createdAt"`
	UpdatedAt   time.Time       `json:"updatedAt"`
}

// EnabledCategories returns the categories that participate in evaluation.
func (l *Lock) EnabledCategories() []Category {
	out := make([]Category, 0, len(l.Categories))
	for _, c := range l.Categories {
		if c.Enabled {
			out = append(out, c)
		}
	}
	return out
}

// Category pairs a category type with its requirement payload. Disabled
// categories are kept in the config but excluded from evaluation.
type Category struct {
	Type         CategoryType `json:"type"`
	Enabled      bool         `json:"enabled"`
	Requirements Requirements `json:"requirements"`
}

// Requirements is the set of atomic checks inside one category. All
// configured requirements must pass for the category to be satisfied;
// there is no per-requirement fulfillment mode. A category with zero
// requirements is vacuously satisfied.
//
// Balance amounts are decimal strings in the chain's smallest unit
// (wei or equivalent) so that 18-decimal values never touch floats.
type Requirements struct {
	MinNativeBalance string                `json:"minNativeBalance,omitempty"`
	Tokens           []TokenRequirement    `json:"tokens,omitempty"`
	RequiresName     bool                  `json:"requiresName,omitempty"`
	NamePatterns     []string              `json:"namePatterns,omitempty"`
	Followers        []FollowerRequirement `json:"followers,omitempty"`
}

// Empty reports whether no requirement is configured at all.
func (r Requirements) Empty() bool {
	return r.MinNativeBalance == "" &&
		len(r.Tokens) == 0 &&
		!r.RequiresName &&
		len(r.Followers) == 0
}

// TokenKind distinguishes fungible balances from unique-token ownership.
type TokenKind string

const (
	// TokenFungible checks balanceOf against a minimum amount.
	TokenFungible TokenKind = "fungible"
	// TokenNonFungible checks ownership of a specific token ID, or a
	// minimum count of tokens when no ID is given.
	TokenNonFungible TokenKind = "nonfungible"
)

// TokenRequirement is one token-contract check.
type TokenRequirement struct {
	Contract string    `json:"contract"`
	Kind     TokenKind `json:"kind"`
	// MinAmount is the minimum fungible balance in the token's smallest
	// unit, as a decimal string. Fungible only.
	MinAmount string `json:"minAmount,omitempty"`
	// TokenID selects a specific token the address must own.
	// Non-fungible only.
	TokenID string `json:"tokenId,omitempty"`
	// MinCount is the minimum number of tokens owned when no TokenID is
	// given. Zero means 1.
	MinCount int64 `json:"minCount,omitempty"`
	// Name and Symbol are display metadata, never compared.
	Name   string `json:"name,omitempty"`
	Symbol string `json:"symbol,omitempty"`
	// Decimals is display metadata for fungible amounts. When nil the
	// checker fetches it from the contract instead of assuming 18.
	Decimals *uint8 `json:"decimals,omitempty"`
}

// FollowerKind is the sub-kind of a social-graph requirement.
type FollowerKind string

const (
	// FollowerMinimumCount requires at least N followers.
	FollowerMinimumCount FollowerKind = "minimum_followers"
	// FollowerFollowedBy requires that the given account follows the user.
	FollowerFollowedBy FollowerKind = "followed_by"
	// FollowerFollowing requires that the user follows the given account.
	FollowerFollowing FollowerKind = "following"
)

// FollowerRequirement is one social-graph check. Value holds a decimal
// count for FollowerMinimumCount and an address for the other kinds.
type FollowerRequirement struct {
	Kind  FollowerKind `json:"kind"`
	Value string       `json:"value"`
}

// ParseAmount parses a decimal smallest-unit amount string.
// Empty strings and negative values are rejected.
func ParseAmount(s string) (*big.Int, error) {
	n, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, fmt.Errorf("invalid amount %q", s)
	}
	if n.Sign() < 0 {
		return nil, fmt.Errorf("negative amount %q", s)
	}
	return n, nil
}

// Validate checks that a lock config is structurally sound before it is
// persisted: known fulfillment mode, at least one category, known category
// types, no duplicate category types, parseable amounts.
func (l *Lock) Validate() error {
	if l.Name == "" {
		return fmt.Errorf("lock name is required")
	}
	if !l.Fulfillment.Valid() {
		return fmt.Errorf("invalid fulfillment mode %q", l.Fulfillment)
	}
	if len(l.Categories) == 0 {
		return fmt.Errorf("lock must have at least one category")
	}
	seen := make(map[CategoryType]bool, len(l.Categories))
	for _, c := range l.Categories {
		if c.Type != CategoryUniversalProfile && c.Type != CategoryEthereumProfile {
			return fmt.Errorf("unknown category type %q", c.Type)
		}
		if seen[c.Type] {
			return fmt.Errorf("duplicate category type %q", c.Type)
		}
		seen[c.Type] = true
		if err := c.Requirements.validate(); err != nil {
			return fmt.Errorf("category %s: %w", c.Type, err)
		}
	}
	return nil
}

func (r Requirements) validate() error {
	if r.MinNativeBalance != "" {
		if _, err := ParseAmount(r.MinNativeBalance); err != nil {
			return fmt.Errorf("minNativeBalance: %w", err)
		}
	}
	for i, t := range r.Tokens {
		if t.Contract == "" {
			return fmt.Errorf("token %d: contract is required", i)
		}
		switch t.Kind {
		case TokenFungible:
			if t.MinAmount == "" {
				return fmt.Errorf("token %d: minAmount is required for fungible tokens", i)
			}
			if _, err := ParseAmount(t.MinAmount); err != nil {
				return fmt.Errorf("token %d: minAmount: %w", i, err)
			}
		case TokenNonFungible:
			if t.MinCount < 0 {
				return fmt.Errorf("token %d: minCount must not be negative", i)
			}
		default:
			return fmt.Errorf("token %d: unknown kind %q", i, t.Kind)
		}
	}
	for i, f := range r.Followers {
		switch f.Kind {
		case FollowerMinimumCount:
			if _, err := ParseAmount(f.Value); err != nil {
				return fmt.Errorf("follower requirement %d: %w", i, err)
			}
		case FollowerFollowedBy, FollowerFollowing:
			if f.Value == "" {
				return fmt.Errorf("follower requirement %d: address is required", i)
			}
		default:
			return fmt.Errorf("follower requirement %d: unknown kind %q", i, f.Kind)
		}
	}
	return nil
}
