package api

import (
	"bytes"
	"context"
	"crypto/ecdsa"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ethereum/go-ethereum/accounts"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"github.com/openforum/gating-service/internal/access"
	"github.com/openforum/gating-service/internal/checker"
	"github.com/openforum/gating-service/internal/gating"
	"github.com/openforum/gating-service/internal/storage"
	"github.com/openforum/gating-service/internal/verification"
)

const testMasterToken = "test-master-token"

// stubChecker returns canned results regardless of the address.
type stubChecker struct {
	results []checker.Result
}

func (s stubChecker) Check(_ context.Context, _ gating.Requirements, _ string) []checker.Result {
	return s.results
}

type testServer struct {
	handler *Handler
	router  http.Handler
	store   storage.Store
}

func newTestServer(t *testing.T, results []checker.Result) *testServer {
	t.Helper()

	store, err := storage.New(":memory:")
	if err != nil {
		t.Fatalf("failed to create storage: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	evaluator := verification.NewEvaluator(map[gating.CategoryType]checker.CategoryChecker{
		gating.CategoryEthereumProfile: stubChecker{results: results},
	})
	verifier := verification.NewService(store, evaluator, verification.DefaultPolicy(), logger)

	h := NewHandler(Options{
		Store:       store,
		Verifier:    verifier,
		Access:      access.NewService(store),
		Registry:    gating.BuildRegistry(),
		Logger:      logger,
		LogLevel:    new(slog.LevelVar),
		MasterToken: testMasterToken,
	})

	return &testServer{handler: h, router: h.NewRouter(), store: store}
}

// do sends a JSON request through the router. An empty token leaves the
// Authorization header unset.
func (ts *testServer) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("failed to encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	ts.router.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(rec.Body).Decode(&v); err != nil {
		t.Fatalf("failed to decode response: %v (body: %s)", err, rec.Body.String())
	}
	return v
}

func testLockBody() *gating.Lock {
	return &gating.Lock{
		Name:        "Token Holders",
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
	}
}

func (ts *testServer) createLock(t *testing.T) *gating.Lock {
	t.Helper()
	rec := ts.do(t, http.MethodPost, "/api/admin/locks", testMasterToken, testLockBody())
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201 creating lock, got %d: %s", rec.Code, rec.Body.String())
	}
	lock := decodeBody[*gating.Lock](t, rec)
	return lock
}

func newWallet(t *testing.T) (*ecdsa.PrivateKey, string) {
	t.Helper()
	key, err := ethcrypto.GenerateKey()
	if err != nil {
		t.Fatalf("failed to generate key: %v", err)
	}
	return key, ethcrypto.PubkeyToAddress(key.PublicKey).Hex()
}

func signMessage(t *testing.T, key *ecdsa.PrivateKey, message string) string {
	t.Helper()
	sig, err := ethcrypto.Sign(accounts.TextHash([]byte(message)), key)
	if err != nil {
		t.Fatalf("failed to sign: %v", err)
	}
	return "0x" + hex.EncodeToString(sig)
}

func TestHealthEndpoints(t *testing.T) {
	ts := newTestServer(t, nil)

	rec := ts.do(t, http.MethodGet, "/health", "", nil)
	if rec.Code != http.StatusOK {
		t.Errorf("health: expected 200, got %d", rec.Code)
	}

	rec = ts.do(t, http.MethodGet, "/ready", "", nil)
	if rec.Code != http.StatusOK {
		t.Errorf("ready: expected 200, got %d", rec.Code)
	}
}

func TestAdminAuthRequired(t *testing.T) {
	ts := newTestServer(t, nil)

	rec := ts.do(t, http.MethodGet, "/api/admin/locks", "", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", rec.Code)
	}
	apiErr := decodeBody[APIError](t, rec)
	if apiErr.Error != ErrCodeInvalidCredentials {
		t.Errorf("expected error code %q, got %q", ErrCodeInvalidCredentials, apiErr.Error)
	}

	rec = ts.do(t, http.MethodGet, "/api/admin/locks", "wrong-token", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("expected 401 with wrong token, got %d", rec.Code)
	}
}

func TestMasterTokenBootstrap(t *testing.T) {
	ts := newTestServer(t, nil)

	// Master token works while no admin token exists.
	rec := ts.do(t, http.MethodGet, "/api/admin/locks", testMasterToken, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 with master token, got %d: %s", rec.Code, rec.Body.String())
	}

	// The first stored token must be an admin token.
	rec = ts.do(t, http.MethodPost, "/api/admin/tokens", testMasterToken,
		CreateTokenRequest{Name: "reader", IsAdmin: false})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for non-admin first token, got %d", rec.Code)
	}
	if apiErr := decodeBody[APIError](t, rec); apiErr.Error != ErrCodeNoAdminTokenExists {
		t.Errorf("expected error code %q, got %q", ErrCodeNoAdminTokenExists, apiErr.Error)
	}

	rec = ts.do(t, http.MethodPost, "/api/admin/tokens", testMasterToken,
		CreateTokenRequest{Name: "ops", IsAdmin: true})
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201 creating admin token, got %d: %s", rec.Code, rec.Body.String())
	}
	created := decodeBody[CreateTokenResponse](t, rec)
	if created.Token == "" {
		t.Fatal("expected plaintext token in create response")
	}

	// Listing the token must not leak the key.
	rec = ts.do(t, http.MethodGet, "/api/admin/tokens", created.Token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 with new admin token, got %d: %s", rec.Code, rec.Body.String())
	}
	if bytes.Contains(rec.Body.Bytes(), []byte(created.Token)) {
		t.Error("token list response contains the plaintext token")
	}

	// Once an admin token exists the master token is locked out.
	rec = ts.do(t, http.MethodGet, "/api/admin/locks", testMasterToken, nil)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for master token after bootstrap, got %d", rec.Code)
	}
	if apiErr := decodeBody[APIError](t, rec); apiErr.Error != ErrCodeMasterTokenLocked {
		t.Errorf("expected error code %q, got %q", ErrCodeMasterTokenLocked, apiErr.Error)
	}
}

func TestNonAdminTokenRejected(t *testing.T) {
	ts := newTestServer(t, nil)

	rec := ts.do(t, http.MethodPost, "/api/admin/tokens", testMasterToken,
		CreateTokenRequest{Name: "ops", IsAdmin: true})
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", rec.Code)
	}
	admin := decodeBody[CreateTokenResponse](t, rec)

	rec = ts.do(t, http.MethodPost, "/api/admin/tokens", admin.Token,
		CreateTokenRequest{Name: "reader", IsAdmin: false})
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201 creating reader token, got %d: %s", rec.Code, rec.Body.String())
	}
	reader := decodeBody[CreateTokenResponse](t, rec)

	rec = ts.do(t, http.MethodGet, "/api/admin/locks", reader.Token, nil)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for non-admin token, got %d", rec.Code)
	}
	if apiErr := decodeBody[APIError](t, rec); apiErr.Error != ErrCodeAdminRequired {
		t.Errorf("expected error code %q, got %q", ErrCodeAdminRequired, apiErr.Error)
	}
}

func TestCannotDeleteLastAdminToken(t *testing.T) {
	ts := newTestServer(t, nil)

	rec := ts.do(t, http.MethodPost, "/api/admin/tokens", testMasterToken,
		CreateTokenRequest{Name: "ops", IsAdmin: true})
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", rec.Code)
	}
	admin := decodeBody[CreateTokenResponse](t, rec)

	rec = ts.do(t, http.MethodDelete, fmt.Sprintf("/api/admin/tokens/%d", admin.ID), admin.Token, nil)
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409 deleting last admin token, got %d", rec.Code)
	}
	if apiErr := decodeBody[APIError](t, rec); apiErr.Error != ErrCodeCannotDeleteLastAdmin {
		t.Errorf("expected error code %q, got %q", ErrCodeCannotDeleteLastAdmin, apiErr.Error)
	}

	// With a second admin token the first becomes deletable.
	rec = ts.do(t, http.MethodPost, "/api/admin/tokens", admin.Token,
		CreateTokenRequest{Name: "backup", IsAdmin: true})
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", rec.Code)
	}
	backup := decodeBody[CreateTokenResponse](t, rec)

	rec = ts.do(t, http.MethodDelete, fmt.Sprintf("/api/admin/tokens/%d", admin.ID), backup.Token, nil)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestLockCRUD(t *testing.T) {
	ts := newTestServer(t, nil)

	lock := ts.createLock(t)
	if lock.ID == 0 {
		t.Fatal("expected lock ID to be assigned")
	}

	rec := ts.do(t, http.MethodGet, fmt.Sprintf("/api/admin/locks/%d", lock.ID), testMasterToken, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	got := decodeBody[*gating.Lock](t, rec)
	if got.Name != lock.Name {
		t.Errorf("expected name %q, got %q", lock.Name, got.Name)
	}

	rec = ts.do(t, http.MethodGet, "/api/admin/locks?community=forum", testMasterToken, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if locks := decodeBody[[]*gating.Lock](t, rec); len(locks) != 1 {
		t.Errorf("expected 1 lock, got %d", len(locks))
	}

	rec = ts.do(t, http.MethodDelete, fmt.Sprintf("/api/admin/locks/%d", lock.ID), testMasterToken, nil)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rec.Code)
	}

	rec = ts.do(t, http.MethodGet, fmt.Sprintf("/api/admin/locks/%d", lock.ID), testMasterToken, nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404 after delete, got %d", rec.Code)
	}
}

func TestCreateLockInvalid(t *testing.T) {
	ts := newTestServer(t, nil)

	lock := testLockBody()
	lock.Fulfillment = "most"
	rec := ts.do(t, http.MethodPost, "/api/admin/locks", testMasterToken, lock)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for invalid fulfillment, got %d", rec.Code)
	}
	if apiErr := decodeBody[APIError](t, rec); apiErr.Error != ErrCodeInvalidRequest {
		t.Errorf("expected error code %q, got %q", ErrCodeInvalidRequest, apiErr.Error)
	}
}

func TestBoardCRUD(t *testing.T) {
	ts := newTestServer(t, nil)
	lock := ts.createLock(t)

	board := &storage.Board{
		Name:        "general",
		CommunityID: "forum",
		Fulfillment: gating.FulfillmentAll,
		LockIDs:     []int64{lock.ID},
	}
	rec := ts.do(t, http.MethodPost, "/api/admin/boards", testMasterToken, board)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	created := decodeBody[*storage.Board](t, rec)

	rec = ts.do(t, http.MethodGet, fmt.Sprintf("/api/admin/boards/%d", created.ID), testMasterToken, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	// A binding to a nonexistent lock is rejected up front.
	board.LockIDs = []int64{9999}
	rec = ts.do(t, http.MethodPost, "/api/admin/boards", testMasterToken, board)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown lock, got %d", rec.Code)
	}

	rec = ts.do(t, http.MethodDelete, fmt.Sprintf("/api/admin/boards/%d", created.ID), testMasterToken, nil)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rec.Code)
	}
}

func TestLockRequirementsPublic(t *testing.T) {
	ts := newTestServer(t, nil)
	lock := ts.createLock(t)

	// No auth required on the forum-facing surface.
	rec := ts.do(t, http.MethodGet, fmt.Sprintf("/api/locks/%d/requirements", lock.ID), "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	resp := decodeBody[LockRequirementsResponse](t, rec)
	if len(resp.Categories) != 1 {
		t.Fatalf("expected 1 category, got %d", len(resp.Categories))
	}
	cat := resp.Categories[0]
	if cat.Type != gating.CategoryEthereumProfile {
		t.Errorf("expected category type %q, got %q", gating.CategoryEthereumProfile, cat.Type)
	}
	if cat.Metadata.Name == "" {
		t.Error("expected registry metadata to be joined in")
	}
	if cat.Connection.ChainID != 1 {
		t.Errorf("expected chain ID 1, got %d", cat.Connection.ChainID)
	}
}

func TestChallengeVerifyFlow(t *testing.T) {
	met := []checker.Result{{Kind: "native_balance", IsMet: true, Current: "2", Required: "1"}}
	ts := newTestServer(t, met)
	lock := ts.createLock(t)
	key, addr := newWallet(t)

	rec := ts.do(t, http.MethodPost, fmt.Sprintf("/api/locks/%d/challenge", lock.ID), "",
		ChallengeRequest{UserID: "user-1", CategoryType: gating.CategoryEthereumProfile, Address: addr})
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	ch := decodeBody[ChallengeResponse](t, rec)
	if ch.ChallengeID == "" || ch.Message == "" {
		t.Fatal("expected challenge ID and message")
	}

	rec = ts.do(t, http.MethodPost, fmt.Sprintf("/api/locks/%d/verify", lock.ID), "",
		VerifyRequest{
			UserID:       "user-1",
			CategoryType: gating.CategoryEthereumProfile,
			ChallengeID:  ch.ChallengeID,
			Signature:    signMessage(t, key, ch.Message),
		})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	outcome := decodeBody[verification.Outcome](t, rec)
	if outcome.Status != storage.StatusVerified {
		t.Fatalf("expected status verified, got %q (%s)", outcome.Status, outcome.Message)
	}
	if outcome.ExpiresAt == nil {
		t.Fatal("expected an expiry on the grant")
	}

	// Stored status reflects the verification.
	rec = ts.do(t, http.MethodGet, fmt.Sprintf("/api/locks/%d/status?user=user-1", lock.ID), "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	status := decodeBody[LockStatusResponse](t, rec)
	if len(status.Stored) != 1 || status.Stored[0].Status != storage.StatusVerified {
		t.Fatalf("expected one stored verified category, got %+v", status.Stored)
	}
}

func TestVerifyFailedSignature(t *testing.T) {
	met := []checker.Result{{Kind: "native_balance", IsMet: true}}
	ts := newTestServer(t, met)
	lock := ts.createLock(t)
	_, addr := newWallet(t)
	otherKey, _ := newWallet(t)

	rec := ts.do(t, http.MethodPost, fmt.Sprintf("/api/locks/%d/challenge", lock.ID), "",
		ChallengeRequest{UserID: "user-1", CategoryType: gating.CategoryEthereumProfile, Address: addr})
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", rec.Code)
	}
	ch := decodeBody[ChallengeResponse](t, rec)

	// Signed by a different wallet than the one that requested the
	// challenge: recorded as a hard failure, not an HTTP error.
	rec = ts.do(t, http.MethodPost, fmt.Sprintf("/api/locks/%d/verify", lock.ID), "",
		VerifyRequest{
			UserID:       "user-1",
			CategoryType: gating.CategoryEthereumProfile,
			ChallengeID:  ch.ChallengeID,
			Signature:    signMessage(t, otherKey, ch.Message),
		})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	outcome := decodeBody[verification.Outcome](t, rec)
	if outcome.Status != storage.StatusFailed {
		t.Fatalf("expected status failed, got %q", outcome.Status)
	}
}

func TestVerifyWithoutChallenge(t *testing.T) {
	ts := newTestServer(t, nil)
	lock := ts.createLock(t)
	key, _ := newWallet(t)

	rec := ts.do(t, http.MethodPost, fmt.Sprintf("/api/locks/%d/verify", lock.ID), "",
		VerifyRequest{
			UserID:       "user-1",
			CategoryType: gating.CategoryEthereumProfile,
			ChallengeID:  "nonexistent",
			Signature:    signMessage(t, key, "anything"),
		})
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d: %s", rec.Code, rec.Body.String())
	}
	if apiErr := decodeBody[APIError](t, rec); apiErr.Error != ErrCodeNoChallenge {
		t.Errorf("expected error code %q, got %q", ErrCodeNoChallenge, apiErr.Error)
	}
}

func TestChallengeUnknownCategory(t *testing.T) {
	ts := newTestServer(t, nil)
	lock := ts.createLock(t)
	_, addr := newWallet(t)

	rec := ts.do(t, http.MethodPost, fmt.Sprintf("/api/locks/%d/challenge", lock.ID), "",
		ChallengeRequest{UserID: "user-1", CategoryType: gating.CategoryUniversalProfile, Address: addr})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", rec.Code, rec.Body.String())
	}
	if apiErr := decodeBody[APIError](t, rec); apiErr.Error != ErrCodeCategoryNotEnabled {
		t.Errorf("expected error code %q, got %q", ErrCodeCategoryNotEnabled, apiErr.Error)
	}
}

func TestBoardAccess(t *testing.T) {
	met := []checker.Result{{Kind: "native_balance", IsMet: true}}
	ts := newTestServer(t, met)
	lock := ts.createLock(t)

	rec := ts.do(t, http.MethodPost, "/api/admin/boards", testMasterToken, &storage.Board{
		Name:        "general",
		CommunityID: "forum",
		Fulfillment: gating.FulfillmentAll,
		LockIDs:     []int64{lock.ID},
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	board := decodeBody[*storage.Board](t, rec)

	// Before any verification the user has no access.
	rec = ts.do(t, http.MethodGet, fmt.Sprintf("/api/boards/%d/access?user=user-1", board.ID), "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	status := decodeBody[access.BoardStatus](t, rec)
	if status.HasWriteAccess {
		t.Fatal("expected no access before verification")
	}

	// Verify the lock's only category, then access follows.
	key, addr := newWallet(t)
	rec = ts.do(t, http.MethodPost, fmt.Sprintf("/api/locks/%d/challenge", lock.ID), "",
		ChallengeRequest{UserID: "user-1", CategoryType: gating.CategoryEthereumProfile, Address: addr})
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", rec.Code)
	}
	ch := decodeBody[ChallengeResponse](t, rec)

	rec = ts.do(t, http.MethodPost, fmt.Sprintf("/api/locks/%d/verify", lock.ID), "",
		VerifyRequest{
			UserID:       "user-1",
			CategoryType: gating.CategoryEthereumProfile,
			ChallengeID:  ch.ChallengeID,
			Signature:    signMessage(t, key, ch.Message),
			Context:      verification.GrantContext{Type: verification.ContextBoard, BoardID: board.ID},
		})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	rec = ts.do(t, http.MethodGet, fmt.Sprintf("/api/boards/%d/access?user=user-1", board.ID), "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	status = decodeBody[access.BoardStatus](t, rec)
	if !status.HasWriteAccess {
		t.Fatalf("expected write access after verification, got %+v", status)
	}
	if status.ExpiresAt == nil {
		t.Error("expected an access expiry")
	}

	rec = ts.do(t, http.MethodGet, "/api/boards/9999/access?user=user-1", "", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404 for unknown board, got %d", rec.Code)
	}
}

func TestSetLogLevel(t *testing.T) {
	ts := newTestServer(t, nil)

	rec := ts.do(t, http.MethodPost, "/api/admin/loglevel", testMasterToken,
		SetLogLevelRequest{Level: "debug"})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if got := ts.handler.logLevel.Level(); got != slog.LevelDebug {
		t.Errorf("expected level debug, got %v", got)
	}

	rec = ts.do(t, http.MethodPost, "/api/admin/loglevel", testMasterToken,
		SetLogLevelRequest{Level: "verbose"})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for unknown level, got %d", rec.Code)
	}
}
