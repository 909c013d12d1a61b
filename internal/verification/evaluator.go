package verification

import (
	"context"
	"fmt"
	"sync"

	"github.com/openforum/gating-service/internal/checker"
	"github.com/openforum/gating-service/internal/gating"
)

// CategoryResult is the live outcome for one enabled category.
type CategoryResult struct {
	Type      gating.CategoryType `json:"type"`
	Satisfied bool                `json:"satisfied"`
	Results   []checker.Result    `json:"results"`
	Error     string              `json:"error,omitempty"`
}

// Evaluation aggregates a full lock check.
type Evaluation struct {
	CanComment         bool             `json:"canComment"`
	VerifiedCategories int              `json:"verifiedCategories"`
	TotalCategories    int              `json:"totalCategories"`
	Message            string           `json:"message"`
	Categories         []CategoryResult `json:"categories"`
}

// Evaluator runs category checkers against a lock's configuration and
// reduces the outcomes under the lock's fulfillment mode.
type Evaluator struct {
	checkers map[gating.CategoryType]checker.CategoryChecker
}

// NewEvaluator builds an evaluator over the given checker set.
func NewEvaluator(checkers map[gating.CategoryType]checker.CategoryChecker) *Evaluator {
	return &Evaluator{checkers: checkers}
}

// Checker returns the checker registered for a category type, or nil.
func (e *Evaluator) Checker(t gating.CategoryType) checker.CategoryChecker {
	return e.checkers[t]
}

// Evaluate runs every enabled category of the lock against the supplied
// wallet addresses. Categories run concurrently; requirements within a
// category are AND-combined, then the lock's fulfillment mode is
// applied across categories. A category with no configured requirements
// is vacuously satisfied. A category without a connected wallet is
// unsatisfied, never silently passed.
func (e *Evaluator) Evaluate(ctx context.Context, lock *gating.Lock, addresses map[gating.CategoryType]string) *Evaluation {
	enabled := lock.EnabledCategories()

	results := make([]CategoryResult, len(enabled))
	var wg sync.WaitGroup
	for i, cat := range enabled {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i] = e.evaluateCategory(ctx, cat, addresses[cat.Type])
		}()
	}
	wg.Wait()

	verified := 0
	for _, r := range results {
		if r.Satisfied {
			verified++
		}
	}

	total := len(enabled)
	satisfied := false
	switch lock.Fulfillment {
	case gating.FulfillmentAny:
		satisfied = verified >= 1 || total == 0
	default:
		satisfied = verified == total
	}

	return &Evaluation{
		CanComment:         satisfied,
		VerifiedCategories: verified,
		TotalCategories:    total,
		Message:            statusMessage(satisfied, verified, total, lock.Fulfillment),
		Categories:         results,
	}
}

// EvaluateCategory runs a single category of a lock, for the
// verification completion flow where only one category is at stake.
func (e *Evaluator) EvaluateCategory(ctx context.Context, cat gating.Category, address string) CategoryResult {
	return e.evaluateCategory(ctx, cat, address)
}

func (e *Evaluator) evaluateCategory(ctx context.Context, cat gating.Category, address string) CategoryResult {
	out := CategoryResult{Type: cat.Type}

	if cat.Requirements.Empty() {
		out.Satisfied = true
		out.Results = []checker.Result{}
		return out
	}

	if address == "" {
		out.Error = "wallet not connected"
		out.Results = []checker.Result{}
		return out
	}

	c := e.checkers[cat.Type]
	if c == nil {
		out.Error = fmt.Sprintf("no checker for category %s", cat.Type)
		out.Results = []checker.Result{}
		return out
	}

	out.Results = c.Check(ctx, cat.Requirements, address)
	out.Satisfied = allMet(out.Results)
	return out
}

func allMet(results []checker.Result) bool {
	for _, r := range results {
		if !r.IsMet {
			return false
		}
	}
	return true
}

// MissingRequirements lists the kinds that did not pass, for failure
// messages and retry hints.
func (r CategoryResult) MissingRequirements() []string {
	missing := make([]string, 0)
	for _, res := range r.Results {
		if !res.IsMet {
			missing = append(missing, res.Kind)
		}
	}
	return missing
}

func statusMessage(satisfied bool, verified, total int, mode gating.FulfillmentMode) string {
	if satisfied {
		return "ready"
	}
	if verified == 0 && total > 0 {
		return fmt.Sprintf("verification failed: 0 of %d categories verified", total)
	}
	required := total
	if mode == gating.FulfillmentAny {
		required = 1
	}
	return fmt.Sprintf("%d of %d categories verified, %d required", verified, total, required)
}
