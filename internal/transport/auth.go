package transport

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"net/http"
	"strings"
)

// ErrUnauthorized indicates invalid or missing credentials.
var ErrUnauthorized = errors.New("unauthorized")

type userKey struct{}

// UserResolver resolves the acting user from a bearer token.
type UserResolver interface {
	ResolveUser(ctx context.Context, token string) (string, error)
}

// KeyResolver resolves users from SHA-256 digests of their API keys.
type KeyResolver struct {
	users map[string]string
}

// NewKeyResolver creates a resolver from a digest to user map.
func NewKeyResolver(digests map[string]string) *KeyResolver {
	users := make(map[string]string, len(digests))
	for digest, user := range digests {
		users[strings.ToLower(digest)] = user
	}
	return &KeyResolver{users: users}
}

// ResolveUser implements UserResolver.
func (r *KeyResolver) ResolveUser(_ context.Context, token string) (string, error) {
	user, ok := r.users[HashToken(token)]
	if !ok || user == "" {
		return "", ErrUnauthorized
	}
	return user, nil
}

// HashToken returns the hex SHA-256 digest of token.
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// BearerToken extracts the token from an Authorization header value.
func BearerToken(header string) string {
	return strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
}

// UserFromContext returns the acting user from context, if present.
func UserFromContext(ctx context.Context) (string, bool) {
	user, ok := ctx.Value(userKey{}).(string)
	return user, ok && user != ""
}

// WithUser returns ctx carrying user.
func WithUser(ctx context.Context, user string) context.Context {
	return context.WithValue(ctx, userKey{}, user)
}

// AuthMiddleware resolves a bearer token when one is sent. Requests without
// a token pass through anonymously; an invalid token is rejected.
func AuthMiddleware(resolver UserResolver) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			auth := r.Header.Get("Authorization")
			if auth == "" || resolver == nil {
				next.ServeHTTP(w, r)
				return
			}
			token := BearerToken(auth)
			if token == "" {
				WriteProblem(w, http.StatusUnauthorized, "unauthorized", "missing bearer token", nil)
				return
			}

			user, err := resolver.ResolveUser(r.Context(), token)
			if err != nil || user == "" {
				WriteProblem(w, http.StatusUnauthorized, "unauthorized", "invalid bearer token", nil)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), user)))
		})
	}
}

// RequireUser rejects requests without an acting user.
func RequireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := UserFromContext(r.Context()); !ok {
			WriteProblem(w, http.StatusUnauthorized, "unauthorized", "authentication required", nil)
			return
		}
		next.ServeHTTP(w, r)
	})
}
