package middleware

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// TokenIssuer is the issuer every credential must carry.
const TokenIssuer = "lumen-api"

// AudienceWebSocket scopes short-lived tokens to the progress gateway.
const AudienceWebSocket = "websocket"

var ErrInvalidToken = errors.New("invalid or expired token")

type UserClaims struct {
	ID   string
	Role string
}

// VerifyToken validates an HS256 token against the shared secret. When
// audience is non-empty the token must be scoped to it.
func VerifyToken(secret []byte, token, audience string) (*UserClaims, error) {
	opts := []jwt.ParserOption{
		jwt.WithIssuer(TokenIssuer),
		jwt.WithValidMethods([]string{"HS256"}),
		jwt.WithExpirationRequired(),
	}
	if audience != "" {
		opts = append(opts, jwt.WithAudience(audience))
	}

	parsed, err := jwt.Parse(token, func(t *jwt.Token) (interface{}, error) {
		return secret, nil
	}, opts...)
	if err != nil || !parsed.Valid {
		return nil, ErrInvalidToken
	}

	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return nil, ErrInvalidToken
	}
	sub, err := claims.GetSubject()
	if err != nil || sub == "" {
		return nil, ErrInvalidToken
	}

	user := &UserClaims{ID: sub}
	if role, ok := claims["role"].(string); ok {
		user.Role = role
	}
	return user, nil
}

// Auth rejects requests without a valid Bearer token and puts the caller's
// identity on the request context.
func Auth(secret []byte) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			token, ok := strings.CutPrefix(header, "Bearer ")
			if !ok || token == "" {
				http.Error(w, `{"error":"Unauthorized"}`, http.StatusUnauthorized)
				return
			}

			user, err := VerifyToken(secret, token, "")
			if err != nil {
				slog.WarnContext(r.Context(), "rejected request token", "error", err)
				http.Error(w, `{"error":"Unauthorized"}`, http.StatusUnauthorized)
				return
			}

			ctx := context.WithValue(r.Context(), UserKey, user)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GetUser returns the authenticated caller, if any.
func GetUser(ctx context.Context) (*UserClaims, bool) {
	user, ok := ctx.Value(UserKey).(*UserClaims)
	return user, ok
}
