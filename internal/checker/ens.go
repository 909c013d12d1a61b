package checker

import (
	"context"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// ENSRegistryAddress is the canonical ENS registry on Ethereum mainnet.
const ENSRegistryAddress = "0x00000000000C2E074eC69A0dFb2997BA6C7d2e1e"

// ENSResolver performs reverse ENS resolution: address -> primary name.
type ENSResolver struct {
	chain    *ChainClient
	registry string
}

// NewENSResolver creates a resolver against the given chain client.
// An empty registry address selects the canonical mainnet registry.
func NewENSResolver(chain *ChainClient, registry string) *ENSResolver {
	if registry == "" {
		registry = ENSRegistryAddress
	}
	return &ENSResolver{chain: chain, registry: registry}
}

// ReverseName returns the primary ENS name for an address, or "" if no
// reverse record is configured.
func (r *ENSResolver) ReverseName(ctx context.Context, address string) (string, error) {
	reverse := strings.ToLower(strings.TrimPrefix(address, "0x")) + ".addr.reverse"
	node := Namehash(reverse)

	values, err := r.chain.call(ctx, r.registry, ensRegistryABI, "resolver", node)
	if err != nil {
		return "", fmt.Errorf("failed to look up ENS resolver: %w", err)
	}
	resolverAddr, ok := values[0].(common.Address)
	if !ok {
		return "", fmt.Errorf("unexpected resolver result type %T", values[0])
	}
	if resolverAddr == (common.Address{}) {
		// No resolver set means no reverse record.
		return "", nil
	}

	values, err = r.chain.call(ctx, resolverAddr.Hex(), ensResolverABI, "name", node)
	if err != nil {
		return "", fmt.Errorf("failed to resolve ENS name: %w", err)
	}
	name, ok := values[0].(string)
	if !ok {
		return "", fmt.Errorf("unexpected name result type %T", values[0])
	}
	return name, nil
}

// Namehash implements the ENS namehash algorithm (EIP-137).
func Namehash(name string) [32]byte {
	var node [32]byte
	if name == "" {
		return node
	}
	labels := strings.Split(name, ".")
	for i := len(labels) - 1; i >= 0; i-- {
		labelHash := crypto.Keccak256([]byte(labels[i]))
		copy(node[:], crypto.Keccak256(node[:], labelHash))
	}
	return node
}

// MatchNamePattern reports whether a resolved name satisfies a pattern.
// "*" matches any non-empty name, "*.suffix" matches by suffix and
// anything else is an exact match.
func MatchNamePattern(name, pattern string) bool {
	if name == "" {
		return false
	}
	if pattern == "*" {
		return true
	}
	if suffix, ok := strings.CutPrefix(pattern, "*"); ok {
		return strings.HasSuffix(name, suffix)
	}
	return name == pattern
}
