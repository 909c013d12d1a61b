//go:build e2e

// Package e2e exercises the full verification flow over HTTP: admin
// lock setup, challenge issuance, wallet signing and board access,
// backed by a mock chain node.
package e2e

import (
	"bytes"
	"crypto/ecdsa"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ethereum/go-ethereum/accounts"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/require"

	"github.com/openforum/gating-service/internal/access"
	"github.com/openforum/gating-service/internal/api"
	"github.com/openforum/gating-service/internal/checker"
	"github.com/openforum/gating-service/internal/gating"
	"github.com/openforum/gating-service/internal/storage"
	"github.com/openforum/gating-service/internal/testutil/mockchain"
	"github.com/openforum/gating-service/internal/verification"
)

const masterToken = "e2e-master-token"

type env struct {
	chain   *mockchain.Server
	service *httptest.Server
}

// setup wires the real stack against a mock chain: real SQLite storage,
// real checkers over ethclient, real challenge protocol.
func setup(t *testing.T) *env {
	t.Helper()

	chain := mockchain.New()
	t.Cleanup(chain.Close)

	store, err := storage.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	ethChain, err := checker.DialChain(chain.URL)
	require.NoError(t, err)
	t.Cleanup(ethChain.Close)

	luksoChain, err := checker.DialChain(chain.URL)
	require.NoError(t, err)
	t.Cleanup(luksoChain.Close)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	efp := checker.NewEFPClient(checker.WithEFPBaseURL(chain.URL))
	ens := checker.NewENSResolver(ethChain, "")

	evaluator := verification.NewEvaluator(map[gating.CategoryType]checker.CategoryChecker{
		gating.CategoryEthereumProfile:  checker.NewEthereumChecker(ethChain, ens, efp, logger),
		gating.CategoryUniversalProfile: checker.NewUniversalProfileChecker(luksoChain, "", logger),
	})

	handler := api.NewHandler(api.Options{
		Store:       store,
		Verifier:    verification.NewService(store, evaluator, verification.DefaultPolicy(), logger),
		Access:      access.NewService(store),
		Registry:    gating.BuildRegistry(),
		Logger:      logger,
		LogLevel:    new(slog.LevelVar),
		MasterToken: masterToken,
	})

	service := httptest.NewServer(handler.NewRouter())
	t.Cleanup(service.Close)

	return &env{chain: chain, service: service}
}

func (e *env) request(t *testing.T, method, path, token string, body any) *http.Response {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, e.service.URL+path, &buf)
	require.NoError(t, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	defer resp.Body.Close()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func newWallet(t *testing.T) (*ecdsa.PrivateKey, string) {
	t.Helper()
	key, err := ethcrypto.GenerateKey()
	require.NoError(t, err)
	return key, ethcrypto.PubkeyToAddress(key.PublicKey).Hex()
}

func signMessage(t *testing.T, key *ecdsa.PrivateKey, message string) string {
	t.Helper()
	sig, err := ethcrypto.Sign(accounts.TextHash([]byte(message)), key)
	require.NoError(t, err)
	return "0x" + hex.EncodeToString(sig)
}

// createEthLock creates a lock requiring 1 ETH via the admin API.
func (e *env) createEthLock(t *testing.T) *gating.Lock {
	t.Helper()
	resp := e.request(t, http.MethodPost, "/api/admin/locks", masterToken, &gating.Lock{
		Name:        "ETH Holders",
		CommunityID: "forum",
		Fulfillment: gating.FulfillmentAny,
		Categories: []gating.Category{
			{
				Type:    gating.CategoryEthereumProfile,
				Enabled: true,
				Requirements: gating.Requirements{
					MinNativeBalance: "1000000000000000000",
				},
			},
		},
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	return decode[*gating.Lock](t, resp)
}

func TestE2E_HealthCheck(t *testing.T) {
	e := setup(t)

	resp, err := http.Get(e.service.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

// TestE2E_VerifyAndAccess runs the full happy path: configure a lock
// and board, fund a wallet on the mock chain, sign the challenge and
// gain board write access.
func TestE2E_VerifyAndAccess(t *testing.T) {
	e := setup(t)
	lock := e.createEthLock(t)

	resp := e.request(t, http.MethodPost, "/api/admin/boards", masterToken, &storage.Board{
		Name:        "general",
		CommunityID: "forum",
		Fulfillment: gating.FulfillmentAll,
		LockIDs:     []int64{lock.ID},
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	board := decode[*storage.Board](t, resp)

	key, addr := newWallet(t)
	e.chain.SetBalance(addr, big.NewInt(2_000_000_000_000_000_000)) // 2 ETH

	resp = e.request(t, http.MethodPost, fmt.Sprintf("/api/locks/%d/challenge", lock.ID), "",
		api.ChallengeRequest{UserID: "alice", CategoryType: gating.CategoryEthereumProfile, Address: addr})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	ch := decode[api.ChallengeResponse](t, resp)
	require.NotEmpty(t, ch.Message)

	resp = e.request(t, http.MethodPost, fmt.Sprintf("/api/locks/%d/verify", lock.ID), "",
		api.VerifyRequest{
			UserID:       "alice",
			CategoryType: gating.CategoryEthereumProfile,
			ChallengeID:  ch.ChallengeID,
			Signature:    signMessage(t, key, ch.Message),
			Context:      verification.GrantContext{Type: verification.ContextBoard, BoardID: board.ID},
		})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	outcome := decode[verification.Outcome](t, resp)
	require.Equal(t, storage.StatusVerified, outcome.Status)
	require.NotNil(t, outcome.ExpiresAt)

	resp = e.request(t, http.MethodGet, fmt.Sprintf("/api/boards/%d/access?user=alice", board.ID), "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	status := decode[access.BoardStatus](t, resp)
	require.True(t, status.HasWriteAccess)
	require.NotNil(t, status.ExpiresAt)

	// A user who never verified has no access.
	resp = e.request(t, http.MethodGet, fmt.Sprintf("/api/boards/%d/access?user=bob", board.ID), "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	status = decode[access.BoardStatus](t, resp)
	require.False(t, status.HasWriteAccess)
}

// TestE2E_InsufficientBalance verifies that a valid signature is not
// enough when the wallet fails the requirements.
func TestE2E_InsufficientBalance(t *testing.T) {
	e := setup(t)
	lock := e.createEthLock(t)

	key, addr := newWallet(t)
	e.chain.SetBalance(addr, big.NewInt(1)) // 1 wei, requirement is 1 ETH

	resp := e.request(t, http.MethodPost, fmt.Sprintf("/api/locks/%d/challenge", lock.ID), "",
		api.ChallengeRequest{UserID: "carol", CategoryType: gating.CategoryEthereumProfile, Address: addr})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	ch := decode[api.ChallengeResponse](t, resp)

	resp = e.request(t, http.MethodPost, fmt.Sprintf("/api/locks/%d/verify", lock.ID), "",
		api.VerifyRequest{
			UserID:       "carol",
			CategoryType: gating.CategoryEthereumProfile,
			ChallengeID:  ch.ChallengeID,
			Signature:    signMessage(t, key, ch.Message),
		})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	outcome := decode[verification.Outcome](t, resp)
	require.Equal(t, storage.StatusFailed, outcome.Status)
	require.NotEmpty(t, outcome.Missing)
}

// TestE2E_PreviewMode verifies without persisting: the board still
// reports no access afterwards.
func TestE2E_PreviewMode(t *testing.T) {
	e := setup(t)
	lock := e.createEthLock(t)

	key, addr := newWallet(t)
	e.chain.SetBalance(addr, big.NewInt(2_000_000_000_000_000_000))

	resp := e.request(t, http.MethodPost, fmt.Sprintf("/api/locks/%d/challenge", lock.ID), "",
		api.ChallengeRequest{UserID: "dave", CategoryType: gating.CategoryEthereumProfile, Address: addr})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	ch := decode[api.ChallengeResponse](t, resp)

	resp = e.request(t, http.MethodPost, fmt.Sprintf("/api/locks/%d/verify", lock.ID), "",
		api.VerifyRequest{
			UserID:       "dave",
			CategoryType: gating.CategoryEthereumProfile,
			ChallengeID:  ch.ChallengeID,
			Signature:    signMessage(t, key, ch.Message),
			Context:      verification.GrantContext{Type: verification.ContextPreview},
		})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	outcome := decode[verification.Outcome](t, resp)
	require.Equal(t, storage.StatusVerified, outcome.Status)
	require.Nil(t, outcome.ExpiresAt)

	// Nothing persisted: stored status is back to not_started.
	resp = e.request(t, http.MethodGet, fmt.Sprintf("/api/locks/%d/status?user=dave", lock.ID), "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	status := decode[api.LockStatusResponse](t, resp)
	require.Len(t, status.Stored, 1)
	require.Equal(t, storage.StatusNotStarted, status.Stored[0].Status)
}
