package api

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/openforum/gating-service/internal/gating"
	"github.com/openforum/gating-service/internal/storage"
)

// HandleCreateLock creates a lock config.
// POST /api/admin/locks
func (h *Handler) HandleCreateLock(w http.ResponseWriter, r *http.Request) {
	var lock gating.Lock
	if err := json.NewDecoder(r.Body).Decode(&lock); err != nil {
		WriteError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "invalid JSON body")
		return
	}

	created, err := h.store.CreateLock(r.Context(), &lock)
	if err != nil {
		WriteError(w, http.StatusBadRequest, ErrCodeInvalidRequest, err.Error())
		return
	}

	h.logger.Info("lock created", "lock_id", created.ID, "name", created.Name, "token", TokenName(r.Context()))
	writeJSON(w, http.StatusCreated, created)
}

// HandleListLocks lists locks, optionally filtered by community.
// GET /api/admin/locks[?community=...]
func (h *Handler) HandleListLocks(w http.ResponseWriter, r *http.Request) {
	locks, err := h.store.ListLocks(r.Context(), r.URL.Query().Get("community"))
	if err != nil {
		h.logger.Error("failed to list locks", "error", err)
		WriteError(w, http.StatusInternalServerError, ErrCodeInternalError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, locks)
}

// HandleGetLock returns one lock.
// GET /api/admin/locks/{lockID}
func (h *Handler) HandleGetLock(w http.ResponseWriter, r *http.Request) {
	lock, ok := h.lockFromPath(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, lock)
}

// HandleDeleteLock deletes a lock and, via cascade, its verification
// records.
// DELETE /api/admin/locks/{lockID}
func (h *Handler) HandleDeleteLock(w http.ResponseWriter, r *http.Request) {
	id, ok := h.lockIDFromPath(w, r)
	if !ok {
		return
	}

	if err := h.store.DeleteLock(r.Context(), id); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			WriteError(w, http.StatusNotFound, ErrCodeNotFound, "lock not found")
			return
		}
		h.logger.Error("failed to delete lock", "error", err, "lock_id", id)
		WriteError(w, http.StatusInternalServerError, ErrCodeInternalError, "internal error")
		return
	}

	h.logger.Info("lock deleted", "lock_id", id, "token", TokenName(r.Context()))
	w.WriteHeader(http.StatusNoContent)
}

// HandleCreateBoard binds a board to its gating locks.
// POST /api/admin/boards
func (h *Handler) HandleCreateBoard(w http.ResponseWriter, r *http.Request) {
	var board storage.Board
	if err := json.NewDecoder(r.Body).Decode(&board); err != nil {
		WriteError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "invalid JSON body")
		return
	}

	// Reject bindings to locks that don't exist.
	for _, lockID := range board.LockIDs {
		if _, err := h.store.GetLock(r.Context(), lockID); err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				WriteError(w, http.StatusBadRequest, ErrCodeInvalidRequest,
					"lock "+strconv.FormatInt(lockID, 10)+" does not exist")
				return
			}
			h.logger.Error("failed to check lock", "error", err, "lock_id", lockID)
			WriteError(w, http.StatusInternalServerError, ErrCodeInternalError, "internal error")
			return
		}
	}

	created, err := h.store.CreateBoard(r.Context(), &board)
	if err != nil {
		WriteError(w, http.StatusBadRequest, ErrCodeInvalidRequest, err.Error())
		return
	}

	h.logger.Info("board created", "board_id", created.ID, "name", created.Name, "token", TokenName(r.Context()))
	writeJSON(w, http.StatusCreated, created)
}

// HandleListBoards lists boards, optionally filtered by community.
// GET /api/admin/boards[?community=...]
func (h *Handler) HandleListBoards(w http.ResponseWriter, r *http.Request) {
	boards, err := h.store.ListBoards(r.Context(), r.URL.Query().Get("community"))
	if err != nil {
		h.logger.Error("failed to list boards", "error", err)
		WriteError(w, http.StatusInternalServerError, ErrCodeInternalError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, boards)
}

// HandleGetBoard returns one board.
// GET /api/admin/boards/{boardID}
func (h *Handler) HandleGetBoard(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "boardID"), 10, 64)
	if err != nil {
		WriteError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "invalid board ID")
		return
	}

	board, err := h.store.GetBoard(r.Context(), id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			WriteError(w, http.StatusNotFound, ErrCodeNotFound, "board not found")
			return
		}
		h.logger.Error("failed to get board", "error", err, "board_id", id)
		WriteError(w, http.StatusInternalServerError, ErrCodeInternalError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, board)
}

// HandleDeleteBoard deletes a board binding.
// DELETE /api/admin/boards/{boardID}
func (h *Handler) HandleDeleteBoard(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "boardID"), 10, 64)
	if err != nil {
		WriteError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "invalid board ID")
		return
	}

	if err := h.store.DeleteBoard(r.Context(), id); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			WriteError(w, http.StatusNotFound, ErrCodeNotFound, "board not found")
			return
		}
		h.logger.Error("failed to delete board", "error", err, "board_id", id)
		WriteError(w, http.StatusInternalServerError, ErrCodeInternalError, "internal error")
		return
	}

	h.logger.Info("board deleted", "board_id", id, "token", TokenName(r.Context()))
	w.WriteHeader(http.StatusNoContent)
}

// TokenResponse represents a token in API responses. The key itself is
// never returned after creation.
type TokenResponse struct {
	ID        int64  `json:"id"`
	Name      string `json:"name"`
	IsAdmin   bool   `json:"isAdmin"`
	CreatedAt string `json:"createdAt"`
}

// CreateTokenRequest is the body of POST /api/admin/tokens.
type CreateTokenRequest struct {
	Name    string `json:"name"`
	IsAdmin bool   `json:"isAdmin"`
}

// CreateTokenResponse includes the plaintext token, shown only once.
type CreateTokenResponse struct {
	ID      int64  `json:"id"`
	Name    string `json:"name"`
	IsAdmin bool   `json:"isAdmin"`
	Token   string `json:"token"`
}

// HandleCreateToken generates a new API token and stores its hash.
// The first token created must be an admin token, which also locks out
// the master token.
// POST /api/admin/tokens
func (h *Handler) HandleCreateToken(w http.ResponseWriter, r *http.Request) {
	var req CreateTokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "invalid JSON body")
		return
	}
	if req.Name == "" {
		WriteError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "name is required")
		return
	}

	if !req.IsAdmin {
		count, err := h.store.CountAdminTokens(r.Context())
		if err != nil {
			h.logger.Error("failed to count admin tokens", "error", err)
			WriteError(w, http.StatusInternalServerError, ErrCodeInternalError, "internal error")
			return
		}
		if count == 0 {
			WriteErrorWithHint(w, http.StatusBadRequest, ErrCodeNoAdminTokenExists,
				"the first token must be an admin token",
				"create a token with isAdmin=true first")
			return
		}
	}

	token, err := generateToken()
	if err != nil {
		h.logger.Error("failed to generate token", "error", err)
		WriteError(w, http.StatusInternalServerError, ErrCodeInternalError, "internal error")
		return
	}

	keyHash, err := storage.HashKey(token)
	if err != nil {
		h.logger.Error("failed to hash token", "error", err)
		WriteError(w, http.StatusInternalServerError, ErrCodeInternalError, "internal error")
		return
	}

	created, err := h.store.CreateToken(r.Context(), req.Name, req.IsAdmin, keyHash)
	if err != nil {
		if errors.Is(err, storage.ErrDuplicate) {
			WriteError(w, http.StatusConflict, ErrCodeDuplicate, "token already exists")
			return
		}
		h.logger.Error("failed to create token", "error", err)
		WriteError(w, http.StatusInternalServerError, ErrCodeInternalError, "internal error")
		return
	}

	h.logger.Info("token created", "token_id", created.ID, "name", created.Name, "is_admin", created.IsAdmin)
	writeJSON(w, http.StatusCreated, CreateTokenResponse{
		ID:      created.ID,
		Name:    created.Name,
		IsAdmin: created.IsAdmin,
		Token:   token,
	})
}

// HandleListTokens lists all tokens without their hashes.
// GET /api/admin/tokens
func (h *Handler) HandleListTokens(w http.ResponseWriter, r *http.Request) {
	tokens, err := h.store.ListTokens(r.Context())
	if err != nil {
		h.logger.Error("failed to list tokens", "error", err)
		WriteError(w, http.StatusInternalServerError, ErrCodeInternalError, "internal error")
		return
	}

	resp := make([]TokenResponse, len(tokens))
	for i, t := range tokens {
		resp[i] = tokenResponse(t)
	}
	writeJSON(w, http.StatusOK, resp)
}

// HandleGetToken returns one token's metadata.
// GET /api/admin/tokens/{id}
func (h *Handler) HandleGetToken(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		WriteError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "invalid token ID")
		return
	}

	token, err := h.store.GetTokenByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			WriteError(w, http.StatusNotFound, ErrCodeNotFound, "token not found")
			return
		}
		h.logger.Error("failed to get token", "error", err, "token_id", id)
		WriteError(w, http.StatusInternalServerError, ErrCodeInternalError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, tokenResponse(token))
}

// HandleDeleteToken deletes a token. The last admin token cannot be
// deleted, which would lock everyone out.
// DELETE /api/admin/tokens/{id}
func (h *Handler) HandleDeleteToken(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		WriteError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "invalid token ID")
		return
	}

	token, err := h.store.GetTokenByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			WriteError(w, http.StatusNotFound, ErrCodeNotFound, "token not found")
			return
		}
		h.logger.Error("failed to get token", "error", err, "token_id", id)
		WriteError(w, http.StatusInternalServerError, ErrCodeInternalError, "internal error")
		return
	}

	if token.IsAdmin {
		count, err := h.store.CountAdminTokens(r.Context())
		if err != nil {
			h.logger.Error("failed to count admin tokens", "error", err)
			WriteError(w, http.StatusInternalServerError, ErrCodeInternalError, "internal error")
			return
		}
		if count <= 1 {
			WriteError(w, http.StatusConflict, ErrCodeCannotDeleteLastAdmin,
				"cannot delete the last admin token")
			return
		}
	}

	if err := h.store.DeleteToken(r.Context(), id); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			WriteError(w, http.StatusNotFound, ErrCodeNotFound, "token not found")
			return
		}
		h.logger.Error("failed to delete token", "error", err, "token_id", id)
		WriteError(w, http.StatusInternalServerError, ErrCodeInternalError, "internal error")
		return
	}

	h.logger.Info("token deleted", "token_id", id)
	w.WriteHeader(http.StatusNoContent)
}

// SetLogLevelRequest is the body of POST /api/admin/loglevel.
type SetLogLevelRequest struct {
	Level string `json:"level"`
}

// HandleSetLogLevel changes the runtime log level.
// POST /api/admin/loglevel
// Body: {"level": "debug|info|warn|error"}
func (h *Handler) HandleSetLogLevel(w http.ResponseWriter, r *http.Request) {
	var req SetLogLevelRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "invalid JSON body")
		return
	}

	var level slog.Level
	switch req.Level {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		WriteError(w, http.StatusBadRequest, ErrCodeInvalidRequest,
			"level must be one of: debug, info, warn, error")
		return
	}

	h.logLevel.Set(level)
	h.logger.Info("log level changed", "new_level", req.Level)
	writeJSON(w, http.StatusOK, map[string]string{"level": req.Level})
}

func tokenResponse(t *storage.Token) TokenResponse {
	return TokenResponse{
		ID:        t.ID,
		Name:      t.Name,
		IsAdmin:   t.IsAdmin,
		CreatedAt: t.CreatedAt.UTC().Format("2006-01-02T15:04:05Z"),
	}
}

// generateToken returns 32 random bytes as hex.
func generateToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
