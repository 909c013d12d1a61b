package checker

import (
	"context"
	"encoding/hex"
	"fmt"
	"log/slog"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"github.com/openforum/gating-service/internal/gating"
)

// DefaultLSP26Registry is the LSP26 follower system contract on LUKSO
// mainnet.
const DefaultLSP26Registry = "0xf01103E5a9909Fc0DBe8166dA7085e0285daDDcA"

// UniversalProfileChecker verifies universal_profile requirements: LYX
// balance, LSP7/LSP8 tokens and LSP26 follower relations, all read from
// a LUKSO RPC endpoint.
type UniversalProfileChecker struct {
	chain    *ChainClient
	registry string // LSP26 follower registry contract
	logger   *slog.Logger
}

// NewUniversalProfileChecker wires a Universal Profile checker. An empty
// registry address selects the mainnet LSP26 contract.
func NewUniversalProfileChecker(chain *ChainClient, registry string, logger *slog.Logger) *UniversalProfileChecker {
	if registry == "" {
		registry = DefaultLSP26Registry
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &UniversalProfileChecker{chain: chain, registry: registry, logger: logger}
}

// Check runs all configured requirements concurrently.
func (c *UniversalProfileChecker) Check(ctx context.Context, reqs gating.Requirements, address string) []Result {
	var tasks []func() Result

	if reqs.MinNativeBalance != "" {
		tasks = append(tasks, func() Result {
			return checkNativeBalance(ctx, c.chain, reqs.MinNativeBalance, address, "LYX")
		})
	}
	for _, token := range reqs.Tokens {
		tasks = append(tasks, func() Result {
			return c.checkToken(ctx, token, address)
		})
	}
	if reqs.RequiresName {
		// Name requirements only exist for the Ethereum category.
		tasks = append(tasks, func() Result {
			return failed(KindName, "", fmt.Errorf("name requirements are not supported for universal_profile"))
		})
	}
	for _, follower := range reqs.Followers {
		tasks = append(tasks, func() Result {
			return c.checkFollower(ctx, follower, address)
		})
	}

	return logUpstreamFailures(c.logger, address, runAll(tasks))
}

func (c *UniversalProfileChecker) checkToken(ctx context.Context, token gating.TokenRequirement, address string) Result {
	switch token.Kind {
	case gating.TokenFungible:
		return checkFungibleToken(ctx, c.chain, token, address)
	case gating.TokenNonFungible:
		if token.TokenID != "" {
			return c.checkTokenOwner(ctx, token, address)
		}
		return checkTokenCount(ctx, c.chain, token, address)
	default:
		return failed(KindTokenBalance, token.Contract, fmt.Errorf("unknown token kind %q", token.Kind))
	}
}

// checkTokenOwner checks ownership of a specific LSP8 token, identified
// by a bytes32 token ID.
func (c *UniversalProfileChecker) checkTokenOwner(ctx context.Context, token gating.TokenRequirement, address string) Result {
	tokenID, err := parseBytes32(token.TokenID)
	if err != nil {
		return failed(KindTokenOwnership, token.TokenID, err)
	}

	owner, err := c.chain.TokenOwnerOf(ctx, token.Contract, tokenID)
	if err != nil {
		return failed(KindTokenOwnership, token.TokenID, err)
	}

	met := owner == common.HexToAddress(address)
	return Result{
		Kind:     KindTokenOwnership,
		IsMet:    met,
		Current:  owner.Hex(),
		Required: token.TokenID,
		Detail:   fmt.Sprintf("token %s of %s", token.TokenID, displayName(token)),
	}
}

func (c *UniversalProfileChecker) checkFollower(ctx context.Context, req gating.FollowerRequirement, address string) Result {
	switch req.Kind {
	case gating.FollowerMinimumCount:
		minimum, err := gating.ParseAmount(req.Value)
		if err != nil {
			return failed(KindFollower, req.Value, err)
		}
		count, err := c.chain.FollowerCount(ctx, c.registry, address)
		if err != nil {
			return failed(KindFollower, req.Value, err)
		}
		return Result{
			Kind:     KindFollower,
			IsMet:    count.Cmp(minimum) >= 0,
			Current:  count.String(),
			Required: req.Value,
			Detail:   fmt.Sprintf("%s of %s required followers", count, req.Value),
		}

	case gating.FollowerFollowedBy:
		follows, err := c.chain.IsFollowing(ctx, c.registry, req.Value, address)
		if err != nil {
			return failed(KindFollower, req.Value, err)
		}
		return Result{
			Kind:     KindFollower,
			IsMet:    follows,
			Required: req.Value,
			Detail:   fmt.Sprintf("followed by %s", req.Value),
		}

	case gating.FollowerFollowing:
		follows, err := c.chain.IsFollowing(ctx, c.registry, address, req.Value)
		if err != nil {
			return failed(KindFollower, req.Value, err)
		}
		return Result{
			Kind:     KindFollower,
			IsMet:    follows,
			Required: req.Value,
			Detail:   fmt.Sprintf("following %s", req.Value),
		}

	default:
		return failed(KindFollower, req.Value, fmt.Errorf("unknown follower requirement kind %q", req.Kind))
	}
}

// parseBytes32 decodes an LSP8 token ID. Short values are left-padded
// with zeros, matching how LSP8 encodes numeric IDs.
func parseBytes32(s string) ([32]byte, error) {
	var out [32]byte
	h := strings.TrimPrefix(s, "0x")
	if len(h)%2 == 1 {
		h = "0" + h
	}
	raw, err := hex.DecodeString(h)
	if err != nil {
		return out, fmt.Errorf("invalid token ID %q: %w", s, err)
	}
	if len(raw) > 32 {
		return out, fmt.Errorf("token ID %q exceeds 32 bytes", s)
	}
	copy(out[32-len(raw):], raw)
	return out, nil
}

// checkNativeBalance compares the on-chain native balance against a
// minimum, both in the smallest unit, using big-integer arithmetic with
// an inclusive bound.
func checkNativeBalance(ctx context.Context, chain *ChainClient, minStr, address, symbol string) Result {
	minimum, err := gating.ParseAmount(minStr)
	if err != nil {
		return failed(KindNativeBalance, minStr, err)
	}

	balance, err := chain.NativeBalance(ctx, address)
	if err != nil {
		return failed(KindNativeBalance, minStr, err)
	}

	return Result{
		Kind:     KindNativeBalance,
		IsMet:    balance.Cmp(minimum) >= 0,
		Current:  balance.String(),
		Required: minStr,
		Detail: fmt.Sprintf("%s of %s required",
			formatUnits(balance, 18, ""), formatUnits(minimum, 18, symbol)),
	}
}

// checkFungibleToken compares balanceOf against a minimum amount. The
// token's decimals are fetched when not configured; a decimals failure
// only degrades the Detail string since comparison happens in the
// smallest unit.
func checkFungibleToken(ctx context.Context, chain *ChainClient, token gating.TokenRequirement, address string) Result {
	minimum, err := gating.ParseAmount(token.MinAmount)
	if err != nil {
		return failed(KindTokenBalance, token.MinAmount, err)
	}

	balance, err := chain.TokenBalance(ctx, token.Contract, address)
	if err != nil {
		return failed(KindTokenBalance, token.MinAmount, err)
	}

	detail := fmt.Sprintf("%s of %s required (smallest unit)", balance, minimum)
	decimals, known := token.Decimals, false
	if decimals != nil {
		known = true
	} else if d, derr := chain.TokenDecimals(ctx, token.Contract); derr == nil {
		decimals, known = &d, true
	}
	if known {
		detail = fmt.Sprintf("%s of %s required",
			formatUnits(balance, *decimals, ""),
			formatUnits(minimum, *decimals, token.Symbol))
	}

	return Result{
		Kind:     KindTokenBalance,
		IsMet:    balance.Cmp(minimum) >= 0,
		Current:  balance.String(),
		Required: token.MinAmount,
		Detail:   detail,
	}
}

// checkTokenCount checks balanceOf for a non-fungible collection
// against a minimum count (default 1).
func checkTokenCount(ctx context.Context, chain *ChainClient, token gating.TokenRequirement, address string) Result {
	minCount := token.MinCount
	if minCount <= 0 {
		minCount = 1
	}
	minimum := big.NewInt(minCount)

	balance, err := chain.TokenBalance(ctx, token.Contract, address)
	if err != nil {
		return failed(KindTokenOwnership, minimum.String(), err)
	}

	return Result{
		Kind:     KindTokenOwnership,
		IsMet:    balance.Cmp(minimum) >= 0,
		Current:  balance.String(),
		Required: minimum.String(),
		Detail:   fmt.Sprintf("%s of %d required from %s", balance, minCount, displayName(token)),
	}
}

func displayName(token gating.TokenRequirement) string {
	if token.Name != "" {
		return token.Name
	}
	if token.Symbol != "" {
		return token.Symbol
	}
	return token.Contract
}
