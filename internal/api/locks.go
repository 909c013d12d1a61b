package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/openforum/gating-service/internal/gating"
	"github.com/openforum/gating-service/internal/metrics"
	"github.com/openforum/gating-service/internal/storage"
	"github.com/openforum/gating-service/internal/verification"
)

// CategoryRequirements pairs a lock category with its registry
// descriptor so clients can render the right connection flow.
type CategoryRequirements struct {
	Type         gating.CategoryType   `json:"type"`
	Enabled      bool                  `json:"enabled"`
	Requirements gating.Requirements   `json:"requirements"`
	Metadata     gating.Metadata       `json:"metadata"`
	Connection   gating.ConnectionSpec `json:"connection"`
}

// LockRequirementsResponse is the body of GET /api/locks/{lockID}/requirements.
type LockRequirementsResponse struct {
	Lock       *gating.Lock           `json:"lock"`
	Categories []CategoryRequirements `json:"categories"`
}

// HandleLockRequirements returns a lock's config joined with registry
// metadata for each category.
// GET /api/locks/{lockID}/requirements
func (h *Handler) HandleLockRequirements(w http.ResponseWriter, r *http.Request) {
	lock, ok := h.lockFromPath(w, r)
	if !ok {
		return
	}

	categories := make([]CategoryRequirements, 0, len(lock.Categories))
	for _, cat := range lock.Categories {
		cr := CategoryRequirements{
			Type:         cat.Type,
			Enabled:      cat.Enabled,
			Requirements: cat.Requirements,
		}
		if d, ok := h.registry.Get(cat.Type); ok {
			cr.Metadata = d.Metadata
			cr.Connection = d.Connection
		}
		categories = append(categories, cr)
	}

	writeJSON(w, http.StatusOK, LockRequirementsResponse{Lock: lock, Categories: categories})
}

// LockStatusResponse is the body of GET /api/locks/{lockID}/status.
type LockStatusResponse struct {
	Live   *verification.Evaluation      `json:"live,omitempty"`
	Stored []verification.CategoryStatus `json:"stored"`
}

// HandleLockStatus returns the stored verification states for a lock
// and, when wallet addresses are supplied, a live evaluator run.
// GET /api/locks/{lockID}/status?user={id}[&address=...][&upAddress=...]
func (h *Handler) HandleLockStatus(w http.ResponseWriter, r *http.Request) {
	lock, ok := h.lockFromPath(w, r)
	if !ok {
		return
	}
	userID := r.URL.Query().Get("user")
	if userID == "" {
		WriteError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "user query parameter is required")
		return
	}

	stored, err := h.verifier.GetStatus(r.Context(), userID, lock.ID)
	if err != nil {
		h.logger.Error("failed to get verification status", "error", err, "lock_id", lock.ID)
		WriteError(w, http.StatusInternalServerError, ErrCodeInternalError, "internal error")
		return
	}

	resp := LockStatusResponse{Stored: stored}

	addresses := map[gating.CategoryType]string{}
	if addr := r.URL.Query().Get("address"); addr != "" {
		addresses[gating.CategoryEthereumProfile] = addr
	}
	if addr := r.URL.Query().Get("upAddress"); addr != "" {
		addresses[gating.CategoryUniversalProfile] = addr
	}
	if len(addresses) > 0 {
		resp.Live = h.verifier.Evaluator().Evaluate(r.Context(), lock, addresses)
		recordCheckerFailures(resp.Live)
	}

	writeJSON(w, http.StatusOK, resp)
}

// ChallengeRequest is the body of POST /api/locks/{lockID}/challenge.
type ChallengeRequest struct {
	UserID       string              `json:"userId"`
	CategoryType gating.CategoryType `json:"categoryType"`
	Address      string              `json:"address"`
	// Context is accepted here for client symmetry with verify, but the
	// grant context only takes effect when the challenge is completed.
	Context verification.GrantContext `json:"context"`
}

// ChallengeResponse returns the message the wallet must sign.
type ChallengeResponse struct {
	ChallengeID string    `json:"challengeId"`
	Message     string    `json:"message"`
	ExpiresAt   time.Time `json:"expiresAt"`
}

// HandleIssueChallenge issues a signing challenge for one category of a
// lock. Re-requesting replaces any pending challenge for the same key.
// POST /api/locks/{lockID}/challenge
func (h *Handler) HandleIssueChallenge(w http.ResponseWriter, r *http.Request) {
	lockID, ok := h.lockIDFromPath(w, r)
	if !ok {
		return
	}

	var req ChallengeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "invalid JSON body")
		return
	}
	if req.UserID == "" || req.Address == "" || req.CategoryType == "" {
		WriteError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "userId, categoryType and address are required")
		return
	}
	if req.Context.Type != "" && !req.Context.Type.Valid() {
		WriteError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "context.type must be board, post or preview")
		return
	}

	ch, err := h.verifier.IssueChallenge(r.Context(), req.UserID, lockID, req.CategoryType, req.Address)
	if err != nil {
		h.writeVerificationError(w, err, lockID)
		return
	}

	writeJSON(w, http.StatusCreated, ChallengeResponse{
		ChallengeID: ch.ID,
		Message:     ch.Message,
		ExpiresAt:   ch.ExpiresAt,
	})
}

// VerifyRequest is the body of POST /api/locks/{lockID}/verify.
type VerifyRequest struct {
	UserID       string                    `json:"userId"`
	CategoryType gating.CategoryType       `json:"categoryType"`
	ChallengeID  string                    `json:"challengeId"`
	Signature    string                    `json:"signature"`
	Context      verification.GrantContext `json:"context"`
}

// HandleVerify completes a challenge: checks the signature, re-runs the
// category's requirements and records the outcome.
// POST /api/locks/{lockID}/verify
func (h *Handler) HandleVerify(w http.ResponseWriter, r *http.Request) {
	lockID, ok := h.lockIDFromPath(w, r)
	if !ok {
		return
	}

	var req VerifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "invalid JSON body")
		return
	}
	if req.UserID == "" || req.CategoryType == "" || req.ChallengeID == "" || req.Signature == "" {
		WriteError(w, http.StatusBadRequest, ErrCodeInvalidRequest,
			"userId, categoryType, challengeId and signature are required")
		return
	}
	if req.Context.Type == "" {
		req.Context.Type = verification.ContextPost
	}
	if !req.Context.Type.Valid() {
		WriteError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "context.type must be board, post or preview")
		return
	}

	outcome, err := h.verifier.VerifyAndRecord(r.Context(), req.UserID, lockID,
		req.CategoryType, req.ChallengeID, req.Signature, req.Context)
	if err != nil {
		h.writeVerificationError(w, err, lockID)
		return
	}

	metrics.RecordVerification(verificationOutcomeLabel(outcome, req.Context))
	writeJSON(w, http.StatusOK, outcome)
}

func verificationOutcomeLabel(outcome *verification.Outcome, grant verification.GrantContext) string {
	if outcome.Status == storage.StatusVerified {
		if grant.Type == verification.ContextPreview {
			return "preview"
		}
		return "verified"
	}
	if len(outcome.Missing) == 0 {
		return "signature_mismatch"
	}
	return "failed"
}

// writeVerificationError maps the verification package's sentinel
// errors onto API error codes.
func (h *Handler) writeVerificationError(w http.ResponseWriter, err error, lockID int64) {
	switch {
	case errors.Is(err, storage.ErrNotFound):
		WriteError(w, http.StatusNotFound, ErrCodeNotFound, "lock not found")
	case errors.Is(err, verification.ErrCategoryNotEnabled):
		WriteError(w, http.StatusBadRequest, ErrCodeCategoryNotEnabled, "category not enabled for this lock")
	case errors.Is(err, verification.ErrNoChallenge):
		WriteErrorWithHint(w, http.StatusConflict, ErrCodeNoChallenge,
			"no pending challenge for this verification", "request a new challenge first")
	case errors.Is(err, verification.ErrChallengeMismatch):
		WriteErrorWithHint(w, http.StatusConflict, ErrCodeChallengeMismatch,
			"challenge does not match the pending one", "request a new challenge and sign that")
	case errors.Is(err, verification.ErrChallengeExpired):
		WriteErrorWithHint(w, http.StatusConflict, ErrCodeChallengeExpired,
			"challenge expired before it was signed", "request a new challenge")
	default:
		h.logger.Error("verification error", "error", err, "lock_id", lockID)
		WriteError(w, http.StatusInternalServerError, ErrCodeInternalError, "internal error")
	}
}

func (h *Handler) lockIDFromPath(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "lockID"), 10, 64)
	if err != nil {
		WriteError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "invalid lock ID")
		return 0, false
	}
	return id, true
}

func (h *Handler) lockFromPath(w http.ResponseWriter, r *http.Request) (*gating.Lock, bool) {
	id, ok := h.lockIDFromPath(w, r)
	if !ok {
		return nil, false
	}
	lock, err := h.store.GetLock(r.Context(), id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			WriteError(w, http.StatusNotFound, ErrCodeNotFound, "lock not found")
		} else {
			h.logger.Error("failed to load lock", "error", err, "lock_id", id)
			WriteError(w, http.StatusInternalServerError, ErrCodeInternalError, "internal error")
		}
		return nil, false
	}
	return lock, true
}

func recordCheckerFailures(ev *verification.Evaluation) {
	for _, cat := range ev.Categories {
		for _, res := range cat.Results {
			if res.Error != "" {
				metrics.RecordCheckerFailure(string(cat.Type), res.Kind)
			}
		}
	}
}
