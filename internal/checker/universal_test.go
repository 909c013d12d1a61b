package checker

import (
	"context"
	"math/big"
	"strings"
	"testing"
	"time"

	"github.com/openforum/gating-service/internal/gating"
	"github.com/openforum/gating-service/internal/testutil/mockchain"
)

const lsp8Addr = "0x3333333333333333333333333333333333330003"

func newUPChecker(t *testing.T, srv *mockchain.Server) *UniversalProfileChecker {
	t.Helper()
	chain, err := DialChain(srv.URL, WithRPCTimeout(5*time.Second))
	if err != nil {
		t.Fatalf("failed to dial mock chain: %v", err)
	}
	t.Cleanup(chain.Close)
	return NewUniversalProfileChecker(chain, registryAddr, nil)
}

// TestLSP26FollowerCount verifies the on-chain follower registry read.
func TestLSP26FollowerCount(t *testing.T) {
	t.Parallel()

	srv := mockchain.New()
	defer srv.Close()
	srv.SetFollowerRegistry(registryAddr,
		map[string]int64{testWallet: 42},
		nil)

	c := newUPChecker(t, srv)
	reqs := gating.Requirements{Followers: []gating.FollowerRequirement{
		{Kind: gating.FollowerMinimumCount, Value: "42"},
	}}

	res := singleResult(t, c.Check(context.Background(), reqs, testWallet))
	if !res.IsMet {
		t.Errorf("42 followers must meet minimum 42: %+v", res)
	}

	reqs.Followers[0].Value = "43"
	res = singleResult(t, c.Check(context.Background(), reqs, testWallet))
	if res.IsMet {
		t.Errorf("42 followers must not meet minimum 43: %+v", res)
	}
}

// TestLSP26IsFollowing covers the directed follow edges.
func TestLSP26IsFollowing(t *testing.T) {
	t.Parallel()

	srv := mockchain.New()
	defer srv.Close()
	srv.SetFollowerRegistry(registryAddr, nil, map[string][]string{
		otherWallet: {testWallet}, // other follows wallet
	})

	c := newUPChecker(t, srv)

	reqs := gating.Requirements{Followers: []gating.FollowerRequirement{
		{Kind: gating.FollowerFollowedBy, Value: otherWallet},
	}}
	res := singleResult(t, c.Check(context.Background(), reqs, testWallet))
	if !res.IsMet {
		t.Errorf("wallet is followed by other, must be met: %+v", res)
	}

	reqs.Followers[0] = gating.FollowerRequirement{Kind: gating.FollowerFollowing, Value: otherWallet}
	res = singleResult(t, c.Check(context.Background(), reqs, testWallet))
	if res.IsMet {
		t.Errorf("wallet does not follow other, must not be met: %+v", res)
	}
}

// TestLSP8TokenOwnership verifies bytes32 token ID ownership.
func TestLSP8TokenOwnership(t *testing.T) {
	t.Parallel()

	tokenID := "0x00000000000000000000000000000000000000000000000000000000000000a1"

	srv := mockchain.New()
	defer srv.Close()
	srv.SetNFT(lsp8Addr, map[string]string{tokenID: testWallet}, nil)

	c := newUPChecker(t, srv)
	reqs := gating.Requirements{Tokens: []gating.TokenRequirement{
		{Contract: lsp8Addr, Kind: gating.TokenNonFungible, TokenID: tokenID},
	}}

	res := singleResult(t, c.Check(context.Background(), reqs, testWallet))
	if !res.IsMet {
		t.Errorf("owned LSP8 token must be met: %+v", res)
	}

	res = singleResult(t, c.Check(context.Background(), reqs, otherWallet))
	if res.IsMet {
		t.Errorf("foreign LSP8 token must not be met: %+v", res)
	}
}

// TestLYXBalance verifies the native LYX check reuses the inclusive
// big-integer comparison.
func TestLYXBalance(t *testing.T) {
	t.Parallel()

	srv := mockchain.New()
	defer srv.Close()

	five := new(big.Int)
	five.SetString("5000000000000000000", 10)
	srv.SetBalance(testWallet, five)

	c := newUPChecker(t, srv)
	reqs := gating.Requirements{MinNativeBalance: "5000000000000000000"}

	res := singleResult(t, c.Check(context.Background(), reqs, testWallet))
	if !res.IsMet {
		t.Errorf("5 LYX must meet minimum 5 LYX: %+v", res)
	}
	if res.Detail != "5 of 5 LYX required" {
		t.Errorf("unexpected detail %q", res.Detail)
	}
}

// TestNameRequirementUnsupported verifies the UP checker fails closed on
// a name requirement instead of ignoring it.
func TestNameRequirementUnsupported(t *testing.T) {
	t.Parallel()

	srv := mockchain.New()
	defer srv.Close()

	c := newUPChecker(t, srv)
	reqs := gating.Requirements{RequiresName: true}

	res := singleResult(t, c.Check(context.Background(), reqs, testWallet))
	if res.IsMet {
		t.Error("unsupported requirement must fail closed")
	}
	if res.Error == "" {
		t.Error("expected an error explaining the unsupported requirement")
	}
}

// TestParseBytes32 verifies LSP8 token ID decoding.
func TestParseBytes32(t *testing.T) {
	t.Parallel()

	got, err := parseBytes32("0xa1")
	if err != nil {
		t.Fatalf("parseBytes32 failed: %v", err)
	}
	if got[31] != 0xa1 {
		t.Errorf("expected left-padded value, got %x", got)
	}

	if _, err := parseBytes32("0x"+strings.Repeat("ab", 33)); err == nil {
		t.Error("expected error for oversized token ID")
	}
	if _, err := parseBytes32("zz"); err == nil {
		t.Error("expected error for non-hex token ID")
	}
}
