// Package checker implements the per-category requirement checkers that
// read chain and indexer state and decide whether a wallet satisfies a
// requirement. Every checker is fail-closed: an RPC or API error makes
// the requirement unmet, never met.
package checker

import (
	"context"
	"log/slog"
	"math/big"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/openforum/gating-service/internal/gating"
)

// Requirement kinds reported in results.
const (
	KindNativeBalance  = "native_balance"
	KindTokenBalance   = "token_balance"
	KindTokenOwnership = "token_ownership"
	KindName           = "name"
	KindFollower       = "follower"
)

// Result is the outcome of one requirement check. Current and Required
// carry raw smallest-unit values (or names/addresses); Detail is a
// human-readable summary for display.
type Result struct {
	Kind     string `json:"kind"`
	IsMet    bool   `json:"isMet"`
	Current  string `json:"current,omitempty"`
	Required string `json:"required,omitempty"`
	Detail   string `json:"detail,omitempty"`
	Error    string `json:"error,omitempty"`
}

// CategoryChecker runs every requirement configured for one category
// against a wallet address. Implementations must not return an error:
// failures are captured per-requirement in the results.
type CategoryChecker interface {
	Check(ctx context.Context, reqs gating.Requirements, address string) []Result
}

// failed builds an unmet result carrying an upstream error.
func failed(kind, required string, err error) Result {
	return Result{Kind: kind, IsMet: false, Required: required, Error: err.Error()}
}

// runAll executes independent requirement checks concurrently and
// returns results in task order. Order of execution does not matter:
// results are AND-combined by the evaluator.
func runAll(tasks []func() Result) []Result {
	results := make([]Result, len(tasks))
	var wg sync.WaitGroup
	for i, task := range tasks {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i] = task()
		}()
	}
	wg.Wait()
	return results
}

// logUpstreamFailures debug-logs results that failed on an upstream
// error, so fail-closed denials can be traced back to their cause.
func logUpstreamFailures(logger *slog.Logger, address string, results []Result) []Result {
	for _, r := range results {
		if r.Error != "" {
			logger.Debug("requirement check failed upstream",
				"kind", r.Kind, "address", address, "error", r.Error)
		}
	}
	return results
}

// formatUnits renders a smallest-unit amount in human units for display.
// Comparison never uses this; it exists only for Detail strings.
func formatUnits(n *big.Int, decimals uint8, symbol string) string {
	s := decimal.NewFromBigInt(n, -int32(decimals)).String()
	if symbol == "" {
		return s
	}
	return s + " " + symbol
}
