package gating

import (
	"strings"
	"testing"
)

func validLock() *Lock {
	return &Lock{
		Name:        "Token holders",
		CommunityID: "c1",
		Fulfillment: FulfillmentAny,
		Categories: []Category{
			{
				Type:    CategoryEthereumProfile,
				Enabled: true,
				Requirements: Requirements{
					MinNativeBalance: "1000000000000000000",
					RequiresName:     true,
					NamePatterns:     []string{"*.eth"},
				},
			},
			{
				Type:    CategoryUniversalProfile,
				Enabled: true,
				Requirements: Requirements{
					MinNativeBalance: "5000000000000000000",
					Followers: []FollowerRequirement{
						{Kind: FollowerMinimumCount, Value: "10"},
					},
				},
			},
		},
	}
}

// TestLockValidate covers the structural checks applied before a lock
// config is persisted.
func TestLockValidate(t *testing.T) {
	t.Parallel()

	if err := validLock().Validate(); err != nil {
		t.Fatalf("valid lock rejected: %v", err)
	}

	tests := []struct {
		name    string
		mutate  func(*Lock)
		wantErr string
	}{
		{
			name:    "missing name",
			mutate:  func(l *Lock) { l.Name = "" },
			wantErr: "name is required",
		},
		{
			name:    "bad fulfillment",
			mutate:  func(l *Lock) { l.Fulfillment = "some" },
			wantErr: "invalid fulfillment mode",
		},
		{
			name:    "no categories",
			mutate:  func(l *Lock) { l.Categories = nil },
			wantErr: "at least one category",
		},
		{
			name:    "unknown category type",
			mutate:  func(l *Lock) { l.Categories[0].Type = "discord_role" },
			wantErr: "unknown category type",
		},
		{
			name:    "duplicate category type",
			mutate:  func(l *Lock) { l.Categories[1].Type = CategoryEthereumProfile },
			wantErr: "duplicate category type",
		},
		{
			name: "unparseable balance",
			mutate: func(l *Lock) {
				l.Categories[0].Requirements.MinNativeBalance = "5.5"
			},
			wantErr: "minNativeBalance",
		},
		{
			name: "negative balance",
			mutate: func(l *Lock) {
				l.Categories[0].Requirements.MinNativeBalance = "-1"
			},
			wantErr: "negative",
		},
		{
			name: "fungible token without minAmount",
			mutate: func(l *Lock) {
				l.Categories[0].Requirements.Tokens = []TokenRequirement{
					{Contract: "0xabc", Kind: TokenFungible},
				}
			},
			wantErr: "minAmount is required",
		},
		{
			name: "token without contract",
			mutate: func(l *Lock) {
				l.Categories[0].Requirements.Tokens = []TokenRequirement{
					{Kind: TokenNonFungible},
				}
			},
			wantErr: "contract is required",
		},
		{
			name: "follower count not numeric",
			mutate: func(l *Lock) {
				l.Categories[1].Requirements.Followers = []FollowerRequirement{
					{Kind: FollowerMinimumCount, Value: "lots"},
				}
			},
			wantErr: "follower requirement",
		},
		{
			name: "followed_by without address",
			mutate: func(l *Lock) {
				l.Categories[1].Requirements.Followers = []FollowerRequirement{
					{Kind: FollowerFollowedBy},
				}
			},
			wantErr: "address is required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := validLock()
			tt.mutate(l)
			err := l.Validate()
			if err == nil {
				t.Fatal("expected validation error, got nil")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error %q does not contain %q", err, tt.wantErr)
			}
		})
	}
}

// TestEnabledCategories verifies disabled categories are filtered out.
func TestEnabledCategories(t *testing.T) {
	t.Parallel()

	l := validLock()
	l.Categories[1].Enabled = false

	enabled := l.EnabledCategories()
	if len(enabled) != 1 {
		t.Fatalf("expected 1 enabled category, got %d", len(enabled))
	}
	if enabled[0].Type != CategoryEthereumProfile {
		t.Errorf("unexpected enabled category %s", enabled[0].Type)
	}
}

// TestRequirementsEmpty verifies the vacuous-category predicate.
func TestRequirementsEmpty(t *testing.T) {
	t.Parallel()

	if !(Requirements{}).Empty() {
		t.Error("zero-value requirements should be empty")
	}
	if (Requirements{RequiresName: true}).Empty() {
		t.Error("requirements with RequiresName should not be empty")
	}
	if (Requirements{MinNativeBalance: "1"}).Empty() {
		t.Error("requirements with a balance should not be empty")
	}
}

// TestParseAmount verifies integer-only parsing of smallest-unit amounts.
func TestParseAmount(t *testing.T) {
	t.Parallel()

	n, err := ParseAmount("5000000000000000000")
	if err != nil {
		t.Fatalf("ParseAmount failed: %v", err)
	}
	if n.String() != "5000000000000000000" {
		t.Errorf("round trip mismatch: %s", n)
	}

	for _, bad := range []string{"", "1e18", "5.0", "-3", "0x10"} {
		if _, err := ParseAmount(bad); err == nil {
			t.Errorf("expected error for %q", bad)
		}
	}
}
