package transport

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/rpggio/folio/internal/app"
	"github.com/rpggio/folio/internal/sandbox"
)

// Config wires the HTTP server.
type Config struct {
	Services *app.Services
	Resolver UserResolver
	// Sandbox, when set, serves session-scoped stores under /sandbox.
	Sandbox *sandbox.Manager
	// MCP, when set, is mounted at /mcp.
	MCP    http.Handler
	Logger *slog.Logger
}

// NewServer creates an HTTP server router with middleware.
func NewServer(cfg Config) *chi.Mux {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger(logger))
	r.Use(AuthMiddleware(cfg.Resolver))

	r.Get("/health", handleHealth)

	durable := &api{
		services: func(*http.Request) (*app.Services, error) { return cfg.Services, nil },
		logger:   logger,
	}
	durable.mount(r)

	if cfg.Sandbox != nil {
		r.Route("/sandbox", func(r chi.Router) {
			r.Use(SessionMiddleware)
			sb := &api{
				services: func(req *http.Request) (*app.Services, error) {
					id, _ := SessionIDFromContext(req.Context())
					return cfg.Sandbox.Services(req.Context(), id)
				},
				logger: logger,
			}
			sb.mount(r)
		})
	}

	if cfg.MCP != nil {
		r.Handle("/mcp", cfg.MCP)
		r.Handle("/mcp/*", cfg.MCP)
	}

	return r
}

func handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func requestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)
			logger.Debug("http request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"duration", time.Since(start),
				"request_id", middleware.GetReqID(r.Context()))
		})
	}
}
