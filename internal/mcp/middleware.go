package mcp

import (
	"context"
	"fmt"
	"strings"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/rpggio/folio/internal/transport"
)

// getUser extracts the acting user from context.
func getUser(ctx context.Context) string {
	user, _ := transport.UserFromContext(ctx)
	return user
}

// authMiddleware resolves the bearer token of each tool call through the
// same resolver the REST surface uses. Protocol methods pass through.
func authMiddleware(resolver transport.UserResolver) sdkmcp.Middleware {
	return func(next sdkmcp.MethodHandler) sdkmcp.MethodHandler {
		return func(ctx context.Context, method string, req sdkmcp.Request) (sdkmcp.Result, error) {
			if method == "initialize" || method == "ping" || strings.HasPrefix(method, "notifications/") {
				return next(ctx, method, req)
			}

			extra := req.GetExtra()
			if extra == nil || extra.Header == nil {
				return nil, fmt.Errorf("%w: missing headers", transport.ErrUnauthorized)
			}

			token := transport.BearerToken(extra.Header.Get("Authorization"))
			if token == "" {
				return nil, fmt.Errorf("%w: missing bearer token", transport.ErrUnauthorized)
			}

			user, err := resolver.ResolveUser(ctx, token)
			if err != nil || user == "" {
				return nil, fmt.Errorf("%w: invalid bearer token", transport.ErrUnauthorized)
			}

			return next(transport.WithUser(ctx, user), method, req)
		}
	}
}

// noAuthMiddleware injects a default user when auth is disabled.
func noAuthMiddleware(defaultUser string) sdkmcp.Middleware {
	return func(next sdkmcp.MethodHandler) sdkmcp.MethodHandler {
		return func(ctx context.Context, method string, req sdkmcp.Request) (sdkmcp.Result, error) {
			return next(transport.WithUser(ctx, defaultUser), method, req)
		}
	}
}
