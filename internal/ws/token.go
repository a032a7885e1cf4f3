package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"lumen/ingest/internal/middleware"
)

// tokenTTL keeps gateway credentials short-lived; the client requests a
// fresh one right before opening the socket.
const tokenTTL = 60 * time.Second

// TokenHandler issues websocket-audience tokens to already authenticated
// callers. Browsers cannot set headers on a WebSocket handshake, so the
// gateway takes its credential from a query parameter and this endpoint
// mints one scoped tightly enough to be safe there.
type TokenHandler struct {
	secret []byte
}

func NewTokenHandler(secret []byte) *TokenHandler {
	return &TokenHandler{secret: secret}
}

func (h *TokenHandler) Issue(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	user, ok := middleware.GetUser(ctx)
	if !ok {
		h.writeError(ctx, w, "UNAUTHORIZED", "Missing user", http.StatusUnauthorized)
		return
	}

	now := time.Now()
	claims := jwt.MapClaims{
		"sub": user.ID,
		"iss": middleware.TokenIssuer,
		"aud": middleware.AudienceWebSocket,
		"iat": now.Unix(),
		"exp": now.Add(tokenTTL).Unix(),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(h.secret)
	if err != nil {
		slog.ErrorContext(ctx, "failed to sign gateway token", "error", err)
		h.writeError(ctx, w, "INTERNAL_ERROR", "failed to issue token", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	resp := map[string]interface{}{
		"token":     signed,
		"expiresIn": int(tokenTTL.Seconds()),
	}
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		slog.ErrorContext(ctx, "failed to encode response", "error", err)
	}
}

func (h *TokenHandler) writeError(ctx context.Context, w http.ResponseWriter, code, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	resp := map[string]interface{}{
		"error": map[string]string{
			"code":    code,
			"message": message,
		},
		"correlationId": middleware.GetCorrelationID(ctx),
	}
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		slog.Error("failed to encode error response", "error", err)
	}
}
