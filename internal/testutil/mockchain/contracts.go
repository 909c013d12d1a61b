package mockchain

import (
	"fmt"
	"math/big"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// Selectors are derived the way solc does: first four bytes of the
// keccak of the method signature.
func selector(signature string) [4]byte {
	var sel [4]byte
	copy(sel[:], crypto.Keccak256([]byte(signature))[:4])
	return sel
}

var (
	selBalanceOf     = selector("balanceOf(address)")
	selDecimals      = selector("decimals()")
	selOwnerOf       = selector("ownerOf(uint256)")
	selTokenOwnerOf  = selector("tokenOwnerOf(bytes32)")
	selFollowerCount = selector("followerCount(address)")
	selIsFollowing   = selector("isFollowing(address,address)")
	selResolver      = selector("resolver(bytes32)")
	selName          = selector("name(bytes32)")
)

func pad32(b []byte) []byte { return common.LeftPadBytes(b, 32) }

func encUint(n *big.Int) []byte { return pad32(n.Bytes()) }

func encAddress(a common.Address) []byte { return pad32(a.Bytes()) }

func encBool(v bool) []byte {
	if v {
		return encUint(big.NewInt(1))
	}
	return encUint(big.NewInt(0))
}

// encString ABI-encodes a single dynamic string return value.
func encString(s string) []byte {
	out := encUint(big.NewInt(32))
	out = append(out, encUint(big.NewInt(int64(len(s))))...)
	out = append(out, common.RightPadBytes([]byte(s), (len(s)+31)/32*32)...)
	return out
}

func callSelector(data []byte) ([4]byte, []byte, error) {
	var sel [4]byte
	if len(data) < 4 {
		return sel, nil, fmt.Errorf("call data too short")
	}
	copy(sel[:], data[:4])
	return sel, data[4:], nil
}

// SetToken installs an ERC-20/LSP7-style contract: balanceOf per owner
// plus a decimals value.
func (s *Server) SetToken(contract string, decimals uint8, balances map[string]*big.Int) {
	normalized := make(map[common.Address]*big.Int, len(balances))
	for owner, amount := range balances {
		normalized[common.HexToAddress(owner)] = new(big.Int).Set(amount)
	}
	var mu sync.RWMutex

	s.RegisterContract(contract, func(data []byte) ([]byte, error) {
		sel, args, err := callSelector(data)
		if err != nil {
			return nil, err
		}
		switch sel {
		case selBalanceOf:
			owner := common.BytesToAddress(args[:32])
			mu.RLock()
			balance, ok := normalized[owner]
			mu.RUnlock()
			if !ok {
				balance = big.NewInt(0)
			}
			return encUint(balance), nil
		case selDecimals:
			return encUint(big.NewInt(int64(decimals))), nil
		default:
			return nil, fmt.Errorf("token: unknown selector %x", sel)
		}
	})
}

// SetNFT installs an ERC-721/LSP8-style contract: ownerOf/tokenOwnerOf
// per token ID plus balanceOf counts. ERC-721 token IDs are decimal
// strings, LSP8 IDs hex strings; both dispatch on the raw 32-byte arg.
func (s *Server) SetNFT(contract string, owners map[string]string, counts map[string]*big.Int) {
	ownersByID := make(map[[32]byte]common.Address, len(owners))
	for id, owner := range owners {
		ownersByID[nftTokenKey(id)] = common.HexToAddress(owner)
	}
	countsByOwner := make(map[common.Address]*big.Int, len(counts))
	for owner, n := range counts {
		countsByOwner[common.HexToAddress(owner)] = new(big.Int).Set(n)
	}

	s.RegisterContract(contract, func(data []byte) ([]byte, error) {
		sel, args, err := callSelector(data)
		if err != nil {
			return nil, err
		}
		switch sel {
		case selOwnerOf, selTokenOwnerOf:
			var key [32]byte
			copy(key[:], args[:32])
			owner, ok := ownersByID[key]
			if !ok {
				return nil, fmt.Errorf("token does not exist")
			}
			return encAddress(owner), nil
		case selBalanceOf:
			owner := common.BytesToAddress(args[:32])
			count, ok := countsByOwner[owner]
			if !ok {
				count = big.NewInt(0)
			}
			return encUint(count), nil
		default:
			return nil, fmt.Errorf("nft: unknown selector %x", sel)
		}
	})
}

// nftTokenKey converts a token ID string into the 32-byte call argument
// an ownerOf/tokenOwnerOf call would carry.
func nftTokenKey(id string) [32]byte {
	var key [32]byte
	if strings.HasPrefix(id, "0x") {
		raw := common.FromHex(id)
		copy(key[32-len(raw):], raw)
		return key
	}
	n, ok := new(big.Int).SetString(id, 10)
	if !ok {
		n = big.NewInt(0)
	}
	copy(key[:], pad32(n.Bytes()))
	return key
}

// SetFollowerRegistry installs an LSP26-style follower registry with
// per-address counts and (follower -> followed) edges.
func (s *Server) SetFollowerRegistry(contract string, counts map[string]int64, edges map[string][]string) {
	countsByAddr := make(map[common.Address]*big.Int, len(counts))
	for addr, n := range counts {
		countsByAddr[common.HexToAddress(addr)] = big.NewInt(n)
	}
	edgeSet := make(map[[2]common.Address]bool)
	for follower, followed := range edges {
		for _, target := range followed {
			edgeSet[[2]common.Address{common.HexToAddress(follower), common.HexToAddress(target)}] = true
		}
	}

	s.RegisterContract(contract, func(data []byte) ([]byte, error) {
		sel, args, err := callSelector(data)
		if err != nil {
			return nil, err
		}
		switch sel {
		case selFollowerCount:
			addr := common.BytesToAddress(args[:32])
			count, ok := countsByAddr[addr]
			if !ok {
				count = big.NewInt(0)
			}
			return encUint(count), nil
		case selIsFollowing:
			follower := common.BytesToAddress(args[:32])
			addr := common.BytesToAddress(args[32:64])
			return encBool(edgeSet[[2]common.Address{follower, addr}]), nil
		default:
			return nil, fmt.Errorf("registry: unknown selector %x", sel)
		}
	})
}

// mockResolverAddress is where SetENSNames installs the resolver.
const mockResolverAddress = "0x0000000000000000000000000000000000001111"

// SetENSNames installs an ENS registry at the given address plus a
// resolver serving reverse records for the provided address -> name map.
// Addresses without an entry resolve to the zero resolver, matching a
// wallet with no reverse record.
func (s *Server) SetENSNames(registry string, names map[string]string) {
	byNode := make(map[[32]byte]string, len(names))
	for addr, name := range names {
		reverse := strings.ToLower(strings.TrimPrefix(addr, "0x")) + ".addr.reverse"
		byNode[namehash(reverse)] = name
	}

	s.RegisterContract(registry, func(data []byte) ([]byte, error) {
		sel, args, err := callSelector(data)
		if err != nil {
			return nil, err
		}
		if sel != selResolver {
			return nil, fmt.Errorf("ens registry: unknown selector %x", sel)
		}
		var node [32]byte
		copy(node[:], args[:32])
		if _, ok := byNode[node]; !ok {
			return encAddress(common.Address{}), nil
		}
		return encAddress(common.HexToAddress(mockResolverAddress)), nil
	})

	s.RegisterContract(mockResolverAddress, func(data []byte) ([]byte, error) {
		sel, args, err := callSelector(data)
		if err != nil {
			return nil, err
		}
		if sel != selName {
			return nil, fmt.Errorf("ens resolver: unknown selector %x", sel)
		}
		var node [32]byte
		copy(node[:], args[:32])
		return encString(byNode[node]), nil
	})
}

// namehash is the EIP-137 algorithm, duplicated here so the mock does
// not depend on the package under test.
func namehash(name string) [32]byte {
	var node [32]byte
	if name == "" {
		return node
	}
	labels := strings.Split(name, ".")
	for i := len(labels) - 1; i >= 0; i-- {
		copy(node[:], crypto.Keccak256(node[:], crypto.Keccak256([]byte(labels[i]))))
	}
	return node
}
