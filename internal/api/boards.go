package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/openforum/gating-service/internal/storage"
)

// HandleBoardAccess computes the user's current write access to a
// board from its locks and the user's stored verifications. The result
// is derived fresh on every call.
// GET /api/boards/{boardID}/access?user={id}
func (h *Handler) HandleBoardAccess(w http.ResponseWriter, r *http.Request) {
	boardID, err := strconv.ParseInt(chi.URLParam(r, "boardID"), 10, 64)
	if err != nil {
		WriteError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "invalid board ID")
		return
	}
	userID := r.URL.Query().Get("user")
	if userID == "" {
		WriteError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "user query parameter is required")
		return
	}

	status, err := h.access.ForBoard(r.Context(), userID, boardID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			WriteError(w, http.StatusNotFound, ErrCodeNotFound, "board not found")
			return
		}
		h.logger.Error("failed to compute board access", "error", err, "board_id", boardID)
		WriteError(w, http.StatusInternalServerError, ErrCodeInternalError, "internal error")
		return
	}

	writeJSON(w, http.StatusOK, status)
}
