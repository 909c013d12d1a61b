package verification

import (
	"context"
	"testing"

	"github.com/openforum/gating-service/internal/checker"
	"github.com/openforum/gating-service/internal/gating"
)

// stubChecker returns canned results regardless of input.
type stubChecker struct {
	results []checker.Result
}

func (s *stubChecker) Check(_ context.Context, _ gating.Requirements, _ string) []checker.Result {
	return s.results
}

func met(kind string) checker.Result   { return checker.Result{Kind: kind, IsMet: true} }
func unmet(kind string) checker.Result { return checker.Result{Kind: kind, IsMet: false} }

func nonEmptyReqs() gating.Requirements {
	return gating.Requirements{MinNativeBalance: "1"}
}

func twoCategoryLock(mode gating.FulfillmentMode) *gating.Lock {
	return &gating.Lock{
		Name:        "test",
		Fulfillment: mode,
		Categories: []gating.Category{
			{Type: gating.CategoryUniversalProfile, Enabled: true, Requirements: nonEmptyReqs()},
			{Type: gating.CategoryEthereumProfile, Enabled: true, Requirements: nonEmptyReqs()},
		},
	}
}

func testAddresses() map[gating.CategoryType]string {
	return map[gating.CategoryType]string{
		gating.CategoryUniversalProfile: "0x1000000000000000000000000000000000000001",
		gating.CategoryEthereumProfile:  "0x2000000000000000000000000000000000000002",
	}
}

func TestEvaluateAnyMode(t *testing.T) {
	t.Parallel()

	// Only the Ethereum category passes.
	ev := NewEvaluator(map[gating.CategoryType]checker.CategoryChecker{
		gating.CategoryUniversalProfile: &stubChecker{results: []checker.Result{unmet(checker.KindNativeBalance)}},
		gating.CategoryEthereumProfile:  &stubChecker{results: []checker.Result{met(checker.KindName)}},
	})

	result := ev.Evaluate(context.Background(), twoCategoryLock(gating.FulfillmentAny), testAddresses())
	if !result.CanComment {
		t.Error("any-mode lock with one satisfied category should pass")
	}
	if result.VerifiedCategories != 1 || result.TotalCategories != 2 {
		t.Errorf("expected 1 of 2 verified, got %d of %d", result.VerifiedCategories, result.TotalCategories)
	}
	if result.Message != "ready" {
		t.Errorf("expected 'ready' message, got %q", result.Message)
	}
}

func TestEvaluateAllMode(t *testing.T) {
	t.Parallel()

	checkers := map[gating.CategoryType]checker.CategoryChecker{
		gating.CategoryUniversalProfile: &stubChecker{results: []checker.Result{unmet(checker.KindNativeBalance)}},
		gating.CategoryEthereumProfile:  &stubChecker{results: []checker.Result{met(checker.KindName)}},
	}
	ev := NewEvaluator(checkers)
	ctx := context.Background()

	result := ev.Evaluate(ctx, twoCategoryLock(gating.FulfillmentAll), testAddresses())
	if result.CanComment {
		t.Error("all-mode lock with one unsatisfied category should fail")
	}
	if result.VerifiedCategories != 1 {
		t.Errorf("expected progress count 1 even on failure, got %d", result.VerifiedCategories)
	}

	// Both passing flips the aggregate.
	checkers[gating.CategoryUniversalProfile] = &stubChecker{results: []checker.Result{met(checker.KindNativeBalance)}}
	result = NewEvaluator(checkers).Evaluate(ctx, twoCategoryLock(gating.FulfillmentAll), testAddresses())
	if !result.CanComment {
		t.Error("all-mode lock with every category satisfied should pass")
	}
}

// Requirements within one category are always AND-combined: one unmet
// requirement spoils the category even when others pass.
func TestEvaluateRequirementsANDWithinCategory(t *testing.T) {
	t.Parallel()

	ev := NewEvaluator(map[gating.CategoryType]checker.CategoryChecker{
		gating.CategoryEthereumProfile: &stubChecker{results: []checker.Result{
			met(checker.KindNativeBalance),
			unmet(checker.KindTokenBalance),
			met(checker.KindName),
		}},
	})
	lock := &gating.Lock{
		Fulfillment: gating.FulfillmentAny,
		Categories: []gating.Category{
			{Type: gating.CategoryEthereumProfile, Enabled: true, Requirements: nonEmptyReqs()},
		},
	}

	result := ev.Evaluate(context.Background(), lock, testAddresses())
	if result.CanComment {
		t.Error("category with one unmet requirement must not be satisfied")
	}
	missing := result.Categories[0].MissingRequirements()
	if len(missing) != 1 || missing[0] != checker.KindTokenBalance {
		t.Errorf("expected missing [token_balance], got %v", missing)
	}
}

func TestEvaluateZeroRequirementsVacuouslySatisfied(t *testing.T) {
	t.Parallel()

	ev := NewEvaluator(map[gating.CategoryType]checker.CategoryChecker{})
	lock := &gating.Lock{
		Fulfillment: gating.FulfillmentAll,
		Categories: []gating.Category{
			{Type: gating.CategoryEthereumProfile, Enabled: true},
		},
	}

	// No address supplied either: vacuous categories need no wallet.
	result := ev.Evaluate(context.Background(), lock, nil)
	if !result.CanComment {
		t.Error("zero-requirement category must be vacuously satisfied")
	}
}

func TestEvaluateZeroCategories(t *testing.T) {
	t.Parallel()

	ev := NewEvaluator(map[gating.CategoryType]checker.CategoryChecker{})
	ctx := context.Background()

	anyLock := &gating.Lock{Fulfillment: gating.FulfillmentAny}
	if !ev.Evaluate(ctx, anyLock, nil).CanComment {
		t.Error("any-mode lock with no categories should pass")
	}

	allLock := &gating.Lock{Fulfillment: gating.FulfillmentAll}
	if !ev.Evaluate(ctx, allLock, nil).CanComment {
		t.Error("all-mode lock with no categories should pass")
	}
}

func TestEvaluateMissingWalletFailsCategory(t *testing.T) {
	t.Parallel()

	ev := NewEvaluator(map[gating.CategoryType]checker.CategoryChecker{
		gating.CategoryEthereumProfile: &stubChecker{results: []checker.Result{met(checker.KindName)}},
	})
	lock := &gating.Lock{
		Fulfillment: gating.FulfillmentAll,
		Categories: []gating.Category{
			{Type: gating.CategoryEthereumProfile, Enabled: true, Requirements: nonEmptyReqs()},
		},
	}

	result := ev.Evaluate(context.Background(), lock, nil)
	if result.CanComment {
		t.Error("missing wallet must never be treated as satisfied")
	}
	if result.Categories[0].Error == "" {
		t.Error("expected a connection error on the category result")
	}
}

func TestEvaluateDisabledCategoriesIgnored(t *testing.T) {
	t.Parallel()

	ev := NewEvaluator(map[gating.CategoryType]checker.CategoryChecker{
		gating.CategoryEthereumProfile: &stubChecker{results: []checker.Result{met(checker.KindName)}},
	})
	lock := &gating.Lock{
		Fulfillment: gating.FulfillmentAll,
		Categories: []gating.Category{
			{Type: gating.CategoryEthereumProfile, Enabled: true, Requirements: nonEmptyReqs()},
			{Type: gating.CategoryUniversalProfile, Enabled: false, Requirements: nonEmptyReqs()},
		},
	}

	result := ev.Evaluate(context.Background(), lock, testAddresses())
	if !result.CanComment {
		t.Error("disabled categories must not count against all mode")
	}
	if result.TotalCategories != 1 {
		t.Errorf("expected 1 enabled category, got %d", result.TotalCategories)
	}
}
