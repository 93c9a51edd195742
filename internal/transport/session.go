package transport

import (
	"context"
	"net/http"
	"regexp"
)

// SandboxSessionHeader names the sandbox session of a request.
const SandboxSessionHeader = "X-Sandbox-Session"

var sessionIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,128}$`)

type sessionKey struct{}

// SessionIDFromContext returns the sandbox session ID from context, if present.
func SessionIDFromContext(ctx context.Context) (string, bool) {
	sessionID, ok := ctx.Value(sessionKey{}).(string)
	return sessionID, ok
}

// SessionMiddleware binds a request to the sandbox session named by
// X-Sandbox-Session. The session becomes the acting user, so sandbox writes
// need no bearer token. Requests without the header pass through anonymous.
func SessionMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sessionID := r.Header.Get(SandboxSessionHeader)
		if sessionID == "" {
			next.ServeHTTP(w, r)
			return
		}
		if !sessionIDPattern.MatchString(sessionID) {
			WriteProblem(w, http.StatusBadRequest, "invalid session",
				SandboxSessionHeader+" must be 1-128 letters, digits, '-' or '_'", nil)
			return
		}

		ctx := context.WithValue(r.Context(), sessionKey{}, sessionID)
		ctx = WithUser(ctx, "sandbox:"+sessionID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
