package testserver

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/require"

	"github.com/rpggio/folio/internal/app"
	"github.com/rpggio/folio/internal/mcp"
	"github.com/rpggio/folio/internal/sandbox"
	"github.com/rpggio/folio/internal/sqlite"
	"github.com/rpggio/folio/internal/transport"
)

// TestServer is the full HTTP stack over an in-memory SQLite database.
type TestServer struct {
	Server   *httptest.Server
	DB       *sqlite.DB
	Services *app.Services
	Notifier *RecordingNotifier
	Token    string
	User     string
}

// New starts a server accepting token as the bearer credential of user.
func New(t *testing.T, token, user string) *TestServer {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := sqlite.New(dsn)
	require.NoError(t, err)
	require.NoError(t, db.RunMigrations())

	notifier := &RecordingNotifier{}
	services := app.New(app.Backends{
		Documents: sqlite.NewDocumentRepository(db),
		History:   sqlite.NewHistoryRepository(db),
		Analytics: sqlite.NewAnalyticsRepository(db),
	}, app.Options{
		Notifier:            notifier,
		InvalidationTimeout: time.Second,
	})

	resolver := transport.NewKeyResolver(map[string]string{transport.HashToken(token): user})
	mcpServer := mcp.NewServer(mcp.Config{
		Services: mcp.Services{
			Entities: services.Store,
			Pages:    services.Pages,
			History:  services.Ledger,
		},
		Resolver:      resolver,
		AuthEnabled:   true,
		TransportMode: "http",
	})
	mcpHandler := sdkmcp.NewStreamableHTTPHandler(
		func(*http.Request) *sdkmcp.Server { return mcpServer },
		&sdkmcp.StreamableHTTPOptions{Stateless: true},
	)

	server := httptest.NewServer(transport.NewServer(transport.Config{
		Services: services,
		Resolver: resolver,
		Sandbox:  sandbox.NewManager(time.Minute, nil, sandbox.WithSeed(services.Store)),
		MCP:      mcpHandler,
	}))

	ts := &TestServer{
		Server:   server,
		DB:       db,
		Services: services,
		Notifier: notifier,
		Token:    token,
		User:     user,
	}

	t.Cleanup(func() {
		server.Close()
		services.Wait()
		_ = db.Close()
	})

	return ts
}

// RecordingNotifier remembers every invalidated path.
type RecordingNotifier struct {
	mu    sync.Mutex
	paths []string
}

// Invalidate implements page.Notifier.
func (n *RecordingNotifier) Invalidate(_ context.Context, path string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.paths = append(n.paths, path)
	return nil
}

// Paths returns the invalidated paths in arrival order.
func (n *RecordingNotifier) Paths() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]string, len(n.paths))
	copy(out, n.paths)
	return out
}
