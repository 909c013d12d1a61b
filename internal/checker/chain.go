package checker

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"time"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
)

// DefaultRPCTimeout bounds every single chain read. A timed-out read is
// a failed check, never a pending one.
const DefaultRPCTimeout = 10 * time.Second

// Minimal ABI fragments for the view methods the checkers call.
const (
	erc20ABIJSON = `[
		{"name":"balanceOf","type":"function","stateMutability":"view","inputs":[{"name":"owner","type":"address"}],"outputs":[{"name":"","type":"uint256"}]},
		{"name":"decimals","type":"function","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint8"}]}
	]`
	erc721ABIJSON = `[
		{"name":"ownerOf","type":"function","stateMutability":"view","inputs":[{"name":"tokenId","type":"uint256"}],"outputs":[{"name":"","type":"address"}]}
	]`
	lsp8ABIJSON = `[
		{"name":"tokenOwnerOf","type":"function","stateMutability":"view","inputs":[{"name":"tokenId","type":"bytes32"}],"outputs":[{"name":"","type":"address"}]}
	]`
	lsp26ABIJSON = `[
		{"name":"followerCount","type":"function","stateMutability":"view","inputs":[{"name":"addr","type":"address"}],"outputs":[{"name":"","type":"uint256"}]},
		{"name":"isFollowing","type":"function","stateMutability":"view","inputs":[{"name":"follower","type":"address"},{"name":"addr","type":"address"}],"outputs":[{"name":"","type":"bool"}]}
	]`
	ensRegistryABIJSON = `[
		{"name":"resolver","type":"function","stateMutability":"view","inputs":[{"name":"node","type":"bytes32"}],"outputs":[{"name":"","type":"address"}]}
	]`
	ensResolverABIJSON = `[
		{"name":"name","type":"function","stateMutability":"view","inputs":[{"name":"node","type":"bytes32"}],"outputs":[{"name":"","type":"string"}]}
	]`
)

var (
	erc20ABI       = mustABI(erc20ABIJSON)
	erc721ABI      = mustABI(erc721ABIJSON)
	lsp8ABI        = mustABI(lsp8ABIJSON)
	lsp26ABI       = mustABI(lsp26ABIJSON)
	ensRegistryABI = mustABI(ensRegistryABIJSON)
	ensResolverABI = mustABI(ensResolverABIJSON)
)

func mustABI(src string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(src))
	if err != nil {
		panic(fmt.Sprintf("invalid ABI fragment: %v", err))
	}
	return parsed
}

// ChainClient wraps an Ethereum-compatible JSON-RPC endpoint with the
// handful of view calls the checkers need. One client per chain.
type ChainClient struct {
	ec      *ethclient.Client
	timeout time.Duration
}

// ChainOption configures a ChainClient.
type ChainOption func(*ChainClient)

// WithRPCTimeout overrides the per-call timeout.
func WithRPCTimeout(d time.Duration) ChainOption {
	return func(c *ChainClient) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// DialChain connects to a JSON-RPC endpoint. The connection is lazy for
// HTTP endpoints, so dialing never blocks on the network.
func DialChain(rawurl string, opts ...ChainOption) (*ChainClient, error) {
	ec, err := ethclient.Dial(rawurl)
	if err != nil {
		return nil, fmt.Errorf("failed to dial %s: %w", rawurl, err)
	}
	c := &ChainClient{ec: ec, timeout: DefaultRPCTimeout}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Close releases the underlying RPC connection.
func (c *ChainClient) Close() {
	c.ec.Close()
}

func (c *ChainClient) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, c.timeout)
}

// NativeBalance returns the native-coin balance in the smallest unit.
func (c *ChainClient) NativeBalance(ctx context.Context, address string) (*big.Int, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	balance, err := c.ec.BalanceAt(ctx, common.HexToAddress(address), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to read native balance: %w", err)
	}
	return balance, nil
}

// call packs a view method, executes eth_call and unpacks the outputs.
func (c *ChainClient) call(ctx context.Context, contract string, parsed abi.ABI, method string, args ...any) ([]any, error) {
	data, err := parsed.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to pack %s: %w", method, err)
	}

	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	to := common.HexToAddress(contract)
	out, err := c.ec.CallContract(ctx, ethereum.CallMsg{To: &to, Data: data}, nil)
	if err != nil {
		return nil, fmt.Errorf("%s call failed: %w", method, err)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%s returned no data (wrong contract address?)", method)
	}

	values, err := parsed.Unpack(method, out)
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s result: %w", method, err)
	}
	return values, nil
}

// TokenBalance returns balanceOf(owner) for an ERC-20 or LSP7 contract.
func (c *ChainClient) TokenBalance(ctx context.Context, contract, owner string) (*big.Int, error) {
	values, err := c.call(ctx, contract, erc20ABI, "balanceOf", common.HexToAddress(owner))
	if err != nil {
		return nil, err
	}
	balance, ok := values[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("unexpected balanceOf result type %T", values[0])
	}
	return balance, nil
}

// TokenDecimals returns decimals() for a token contract.
func (c *ChainClient) TokenDecimals(ctx context.Context, contract string) (uint8, error) {
	values, err := c.call(ctx, contract, erc20ABI, "decimals")
	if err != nil {
		return 0, err
	}
	decimals, ok := values[0].(uint8)
	if !ok {
		return 0, fmt.Errorf("unexpected decimals result type %T", values[0])
	}
	return decimals, nil
}

// OwnerOf returns ownerOf(tokenId) for an ERC-721 contract.
func (c *ChainClient) OwnerOf(ctx context.Context, contract string, tokenID *big.Int) (common.Address, error) {
	values, err := c.call(ctx, contract, erc721ABI, "ownerOf", tokenID)
	if err != nil {
		return common.Address{}, err
	}
	owner, ok := values[0].(common.Address)
	if !ok {
		return common.Address{}, fmt.Errorf("unexpected ownerOf result type %T", values[0])
	}
	return owner, nil
}

// TokenOwnerOf returns tokenOwnerOf(tokenId) for an LSP8 contract,
// where token IDs are bytes32.
func (c *ChainClient) TokenOwnerOf(ctx context.Context, contract string, tokenID [32]byte) (common.Address, error) {
	values, err := c.call(ctx, contract, lsp8ABI, "tokenOwnerOf", tokenID)
	if err != nil {
		return common.Address{}, err
	}
	owner, ok := values[0].(common.Address)
	if !ok {
		return common.Address{}, fmt.Errorf("unexpected tokenOwnerOf result type %T", values[0])
	}
	return owner, nil
}

// FollowerCount reads the LSP26 follower registry.
func (c *ChainClient) FollowerCount(ctx context.Context, registry, address string) (*big.Int, error) {
	values, err := c.call(ctx, registry, lsp26ABI, "followerCount", common.HexToAddress(address))
	if err != nil {
		return nil, err
	}
	count, ok := values[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("unexpected followerCount result type %T", values[0])
	}
	return count, nil
}

// IsFollowing reports whether follower follows addr in the LSP26 registry.
func (c *ChainClient) IsFollowing(ctx context.Context, registry, follower, addr string) (bool, error) {
	values, err := c.call(ctx, registry, lsp26ABI, "isFollowing",
		common.HexToAddress(follower), common.HexToAddress(addr))
	if err != nil {
		return false, err
	}
	following, ok := values[0].(bool)
	if !ok {
		return false, fmt.Errorf("unexpected isFollowing result type %T", values[0])
	}
	return following, nil
}
