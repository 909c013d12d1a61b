package checker

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/openforum/gating-service/internal/gating"
)

// EthereumChecker verifies ethereum_profile requirements: ETH balance,
// ERC-20/ERC-721 tokens, ENS names and EFP social-graph relations.
type EthereumChecker struct {
	chain  *ChainClient
	ens    *ENSResolver
	efp    *EFPClient
	logger *slog.Logger
}

// NewEthereumChecker wires an Ethereum checker from its clients.
func NewEthereumChecker(chain *ChainClient, ens *ENSResolver, efp *EFPClient, logger *slog.Logger) *EthereumChecker {
	if logger == nil {
		logger = slog.Default()
	}
	return &EthereumChecker{chain: chain, ens: ens, efp: efp, logger: logger}
}

// Check runs all configured requirements concurrently. A category with
// zero requirements returns an empty slice, which the evaluator treats
// as vacuously satisfied.
func (c *EthereumChecker) Check(ctx context.Context, reqs gating.Requirements, address string) []Result {
	var tasks []func() Result

	if reqs.MinNativeBalance != "" {
		tasks = append(tasks, func() Result {
			return checkNativeBalance(ctx, c.chain, reqs.MinNativeBalance, address, "ETH")
		})
	}
	for _, token := range reqs.Tokens {
		tasks = append(tasks, func() Result {
			return c.checkToken(ctx, token, address)
		})
	}
	if reqs.RequiresName {
		tasks = append(tasks, func() Result {
			return c.checkName(ctx, reqs.NamePatterns, address)
		})
	}
	for _, follower := range reqs.Followers {
		tasks = append(tasks, func() Result {
			return c.checkFollower(ctx, follower, address)
		})
	}

	return logUpstreamFailures(c.logger, address, runAll(tasks))
}

func (c *EthereumChecker) checkToken(ctx context.Context, token gating.TokenRequirement, address string) Result {
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

// checkTokenOwner checks ownership of a specific ERC-721 token ID.
func (c *EthereumChecker) checkTokenOwner(ctx context.Context, token gating.TokenRequirement, address string) Result {
	tokenID, ok := new(big.Int).SetString(token.TokenID, 0)
	if !ok {
		return failed(KindTokenOwnership, token.TokenID, fmt.Errorf("invalid token ID %q", token.TokenID))
	}

	owner, err := c.chain.OwnerOf(ctx, token.Contract, tokenID)
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

func (c *EthereumChecker) checkName(ctx context.Context, patterns []string, address string) Result {
	name, err := c.ens.ReverseName(ctx, address)
	if err != nil {
		return failed(KindName, patternSummary(patterns), err)
	}
	if name == "" {
		return Result{
			Kind:     KindName,
			IsMet:    false,
			Required: patternSummary(patterns),
			Detail:   "no ENS name set for this address",
		}
	}

	met := len(patterns) == 0
	for _, p := range patterns {
		if MatchNamePattern(name, p) {
			met = true
			break
		}
	}
	return Result{
		Kind:     KindName,
		IsMet:    met,
		Current:  name,
		Required: patternSummary(patterns),
		Detail:   fmt.Sprintf("resolved %s", name),
	}
}

func (c *EthereumChecker) checkFollower(ctx context.Context, req gating.FollowerRequirement, address string) Result {
	switch req.Kind {
	case gating.FollowerMinimumCount:
		minimum, err := gating.ParseAmount(req.Value)
		if err != nil {
			return failed(KindFollower, req.Value, err)
		}
		count, err := c.efp.FollowerCount(ctx, address)
		if err != nil {
			return failed(KindFollower, req.Value, err)
		}
		return Result{
			Kind:     KindFollower,
			IsMet:    big.NewInt(count).Cmp(minimum) >= 0,
			Current:  fmt.Sprintf("%d", count),
			Required: req.Value,
			Detail:   fmt.Sprintf("%d of %s required EFP followers", count, req.Value),
		}

	case gating.FollowerFollowedBy:
		follows, err := c.efp.Follows(ctx, req.Value, address)
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
		follows, err := c.efp.Follows(ctx, address, req.Value)
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

func patternSummary(patterns []string) string {
	if len(patterns) == 0 {
		return "any ENS name"
	}
	out := patterns[0]
	for _, p := range patterns[1:] {
		out += ", " + p
	}
	return out
}
