package mcp

import (
	"context"
	"log/slog"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/rpggio/folio/internal/domain/content"
	"github.com/rpggio/folio/internal/domain/history"
	"github.com/rpggio/folio/internal/domain/page"
	"github.com/rpggio/folio/internal/transport"
)

// EntityReader defines the entity reads needed by MCP.
type EntityReader interface {
	GetAll(ctx context.Context, collection string, includeNonPublished bool) ([]content.Entity, error)
	GetByID(ctx context.Context, collection, id string) (content.Entity, error)
}

// PageReader defines the page reads needed by MCP.
type PageReader interface {
	ReadPublished(ctx context.Context, slug string) (*page.View, error)
}

// HistoryReader defines the ledger reads needed by MCP.
type HistoryReader interface {
	ListByEntity(ctx context.Context, entityID string) ([]history.Entry, error)
	ListAll(ctx context.Context) ([]history.Entry, error)
}

// Services contains all domain services needed by MCP.
type Services struct {
	Entities EntityReader
	Pages    PageReader
	History  HistoryReader
}

// Config contains server configuration.
type Config struct {
	Services      Services
	Resolver      transport.UserResolver
	AuthEnabled   bool
	TransportMode string // "stdio" or "http"
	Logger        *slog.Logger
}

// NewServer creates and configures an MCP server with all tools and middleware.
func NewServer(cfg Config) *sdkmcp.Server {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	server := sdkmcp.NewServer(&sdkmcp.Implementation{
		Name:    "folio",
		Version: "0.1.0",
	}, &sdkmcp.ServerOptions{
		Instructions: serverInstructions,
		Logger:       cfg.Logger,
	})

	registerDocResources(server)

	// Stdio mode is local only and never authenticates.
	if cfg.TransportMode != "stdio" && cfg.AuthEnabled {
		server.AddReceivingMiddleware(authMiddleware(cfg.Resolver))
	} else {
		server.AddReceivingMiddleware(noAuthMiddleware("anonymous"))
	}
	server.AddReceivingMiddleware(trafficLoggingMiddleware(cfg.Logger, "inbound"))
	server.AddSendingMiddleware(trafficLoggingMiddleware(cfg.Logger, "outbound"))

	registerTools(server, cfg.Services, cfg.Logger)

	return server
}
