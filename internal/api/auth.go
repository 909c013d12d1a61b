package api

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/openforum/gating-service/internal/storage"
)

type authContextKey string

const (
	adminKey     authContextKey = "is-admin"
	tokenNameKey authContextKey = "token-name"
)

// IsAdmin reports whether the request context carries admin rights.
func IsAdmin(ctx context.Context) bool {
	v, _ := ctx.Value(adminKey).(bool)
	return v
}

// TokenName returns the name of the authenticated token, or
// "master-token" for the bootstrap path.
func TokenName(ctx context.Context) string {
	v, _ := ctx.Value(tokenNameKey).(string)
	return v
}

// TokenAuthMiddleware validates bearer tokens for the admin API.
//
// The configured master token is accepted only while no admin token
// exists; after the first admin token is created the bootstrap path is
// locked and only stored tokens authenticate.
func (h *Handler) TokenAuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r)
		if token == "" {
			WriteError(w, http.StatusUnauthorized, ErrCodeInvalidCredentials, "missing API token")
			return
		}

		ctx := r.Context()

		if h.masterToken != "" && isMasterToken(token, h.masterToken) {
			count, err := h.store.CountAdminTokens(ctx)
			if err != nil {
				h.logger.Error("failed to count admin tokens", "error", err)
				WriteError(w, http.StatusInternalServerError, ErrCodeInternalError, "internal error")
				return
			}
			if count > 0 {
				WriteErrorWithHint(w, http.StatusForbidden, ErrCodeMasterTokenLocked,
					"master token is locked once an admin token exists",
					"authenticate with an admin token instead")
				return
			}
			ctx = context.WithValue(ctx, adminKey, true)
			ctx = context.WithValue(ctx, tokenNameKey, "master-token")
			h.logger.Debug("admin request via master token")
			next.ServeHTTP(w, r.WithContext(ctx))
			return
		}

		stored, err := h.matchToken(ctx, token)
		if err != nil {
			h.logger.Error("failed to validate token", "error", err)
			WriteError(w, http.StatusInternalServerError, ErrCodeInternalError, "internal error")
			return
		}
		if stored == nil {
			h.logger.Warn("invalid admin token attempt", "remote_addr", r.RemoteAddr)
			WriteError(w, http.StatusUnauthorized, ErrCodeInvalidCredentials, "invalid token")
			return
		}

		if !stored.IsAdmin {
			WriteError(w, http.StatusForbidden, ErrCodeAdminRequired, "admin token required")
			return
		}

		ctx = context.WithValue(ctx, adminKey, true)
		ctx = context.WithValue(ctx, tokenNameKey, stored.Name)
		h.logger.Debug("admin request via token", "token_name", stored.Name)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// matchToken finds the stored token matching the presented value.
// Hashes are bcrypt, so there is no direct lookup; the token list is
// small (operators and automation), so a scan is fine.
func (h *Handler) matchToken(ctx context.Context, token string) (*storage.Token, error) {
	tokens, err := h.store.ListTokens(ctx)
	if err != nil {
		return nil, err
	}
	for _, t := range tokens {
		if storage.VerifyKey(token, t.KeyHash) == nil {
			return t, nil
		}
	}
	return nil, nil
}

func bearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if v, ok := strings.CutPrefix(auth, "Bearer "); ok {
		return strings.TrimSpace(v)
	}
	return ""
}

// isMasterToken compares in constant time over SHA-256 digests so the
// comparison never leaks length or prefix information.
func isMasterToken(presented, configured string) bool {
	a := sha256.Sum256([]byte(presented))
	b := sha256.Sum256([]byte(configured))
	return subtle.ConstantTimeCompare(a[:], b[:]) == 1
}
