package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/rpggio/folio/internal/app"
	"github.com/rpggio/folio/internal/config"
	"github.com/rpggio/folio/internal/domain/page"
	"github.com/rpggio/folio/internal/filestore"
	"github.com/rpggio/folio/internal/invalidate"
	"github.com/rpggio/folio/internal/mcp"
	"github.com/rpggio/folio/internal/sandbox"
	"github.com/rpggio/folio/internal/sqlite"
	"github.com/rpggio/folio/internal/transport"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(1)
	}

	// Use stderr for logs in stdio mode to keep stdout clean for JSON-RPC.
	logWriter := io.Writer(os.Stdout)
	if cfg.Transport.Mode == "stdio" {
		logWriter = os.Stderr
	}
	if cfg.Log.Path != "" {
		fileWriter, file, err := newLogFileWriter(cfg.Log.Path)
		if err != nil {
			fmt.Fprintf(os.Stderr, "log file error: %v\n", err)
		} else {
			defer file.Close()
			logWriter = fileWriter
		}
	}
	logger := slog.New(slog.NewTextHandler(logWriter, &slog.HandlerOptions{
		Level: parseLogLevel(cfg.Log.Level),
	}))

	backends, closeStorage, err := openStorage(cfg.Storage, logger)
	if err != nil {
		logger.Error("failed to open storage", "driver", cfg.Storage.Driver, "error", err)
		os.Exit(1)
	}
	defer closeStorage()

	services := app.New(backends, app.Options{
		Retention:           cfg.History.Retention,
		Notifier:            newNotifier(cfg.Invalidation, logger),
		InvalidationTimeout: cfg.Invalidation.Timeout,
		Logger:              logger,
	})
	defer services.Wait()

	keys := make(map[string]string, len(cfg.Auth.APIKeys))
	for _, k := range cfg.Auth.APIKeys {
		keys[k.KeySHA256] = k.User
	}
	resolver := transport.NewKeyResolver(keys)
	if len(keys) == 0 {
		logger.Warn("no api keys configured, all writes will be rejected")
	}

	mcpServer := mcp.NewServer(mcp.Config{
		Services: mcp.Services{
			Entities: services.Store,
			Pages:    services.Pages,
			History:  services.Ledger,
		},
		Resolver:      resolver,
		AuthEnabled:   len(keys) > 0,
		TransportMode: cfg.Transport.Mode,
		Logger:        logger,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Branch based on transport mode
	if cfg.Transport.Mode == "stdio" {
		runStdioMode(ctx, logger, mcpServer)
		return
	}

	var sandboxes *sandbox.Manager
	if cfg.Sandbox.Enabled {
		sandboxes = sandbox.NewManager(cfg.Sandbox.TTL, logger,
			sandbox.WithSeed(services.Store),
			sandbox.WithMaxSessions(cfg.Sandbox.MaxSessions),
		)
		go sandboxes.Run(ctx)
	}

	var mcpHandler http.Handler
	if cfg.MCP.Enabled {
		mcpHandler = sdkmcp.NewStreamableHTTPHandler(
			func(r *http.Request) *sdkmcp.Server { return mcpServer },
			&sdkmcp.StreamableHTTPOptions{
				Stateless:      false,
				SessionTimeout: 30 * time.Minute,
			},
		)
	}

	router := transport.NewServer(transport.Config{
		Services: services,
		Resolver: resolver,
		Sandbox:  sandboxes,
		MCP:      mcpHandler,
		Logger:   logger,
	})
	runHTTPMode(ctx, logger, router, cfg.Server.Host, cfg.Server.Port)
}

// openStorage returns the durable backends selected by cfg and a func
// releasing them.
func openStorage(cfg config.StorageConfig, logger *slog.Logger) (app.Backends, func(), error) {
	switch cfg.Driver {
	case "file":
		dir, err := filestore.Open(cfg.Dir)
		if err != nil {
			return app.Backends{}, nil, err
		}
		logger.Info("using file storage", "dir", dir.Path())
		return app.Backends{
			Documents: dir.Documents(),
			History:   dir.History(),
			Analytics: dir.Analytics(),
		}, func() {}, nil
	default:
		if err := ensureDBDir(cfg.Path); err != nil {
			return app.Backends{}, nil, fmt.Errorf("prepare database path: %w", err)
		}
		db, err := sqlite.New(cfg.Path)
		if err != nil {
			return app.Backends{}, nil, err
		}
		if err := db.RunMigrations(); err != nil {
			_ = db.Close()
			return app.Backends{}, nil, err
		}
		logger.Info("using sqlite storage", "path", cfg.Path)
		return app.Backends{
			Documents: sqlite.NewDocumentRepository(db),
			History:   sqlite.NewHistoryRepository(db),
			Analytics: sqlite.NewAnalyticsRepository(db),
		}, func() { _ = db.Close() }, nil
	}
}

// newNotifier always logs invalidations and also forwards them to every
// configured renderer hook.
func newNotifier(cfg config.InvalidationConfig, logger *slog.Logger) page.Notifier {
	fanout := invalidate.Fanout{invalidate.NewLog(logger)}
	if cfg.WebhookURL != "" {
		fanout = append(fanout, invalidate.NewWebhook(cfg.WebhookURL, cfg.WebhookSecret, cfg.Timeout))
	}
	if cfg.RedisAddr != "" {
		client := invalidate.NewRedisClient(cfg.RedisAddr, cfg.RedisPassword, 0)
		fanout = append(fanout, invalidate.NewRedis(client, cfg.RedisChannel))
	}
	return fanout
}

func runStdioMode(ctx context.Context, logger *slog.Logger, mcpServer *sdkmcp.Server) {
	logger.Info("starting stdio transport", "auth", "disabled")

	// Run blocks until stdin closes or context is canceled
	if err := mcpServer.Run(ctx, &sdkmcp.StdioTransport{}); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("stdio server error", "error", err)
		os.Exit(1)
	}
}

func runHTTPMode(ctx context.Context, logger *slog.Logger, handler http.Handler, host string, port int) {
	addr := fmt.Sprintf("%s:%d", host, port)
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("server listening", "addr", addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "error", err)
		}
	}()

	waitForShutdown(ctx, logger, httpServer)
}

func ensureDBDir(path string) error {
	if path == ":memory:" || path == "" {
		return nil
	}
	dir := filepath.Dir(path)
	if dir == "." {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}

func waitForShutdown(ctx context.Context, logger *slog.Logger, server *http.Server) {
	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	logger.Info("shutting down")
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
	}
}

func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

const (
	maxLogSizeBytes  = 6 * 1024 * 1024
	keepLogSizeBytes = 5 * 1024 * 1024
)

type logFileWriter struct {
	path string
	file *os.File
	mu   sync.Mutex
}

func newLogFileWriter(path string) (*logFileWriter, *os.File, error) {
	if err := ensureLogDir(path); err != nil {
		return nil, nil, err
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, err
	}
	writer := &logFileWriter{path: path, file: file}
	if err := writer.truncateIfNeeded(); err != nil {
		return nil, nil, err
	}
	return writer, file, nil
}

func ensureLogDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}

func (w *logFileWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	n, err := w.file.Write(p)
	if err != nil {
		return n, err
	}
	if err := w.truncateIfNeeded(); err != nil {
		return n, err
	}
	return n, nil
}

func (w *logFileWriter) truncateIfNeeded() error {
	info, err := w.file.Stat()
	if err != nil {
		return err
	}
	size := info.Size()
	if size <= maxLogSizeBytes {
		return nil
	}
	if size <= keepLogSizeBytes {
		return nil
	}

	buf := make([]byte, keepLogSizeBytes)
	if _, err := w.file.Seek(size-keepLogSizeBytes, io.SeekStart); err != nil {
		return err
	}
	n, err := w.file.Read(buf)
	if err != nil && err != io.EOF {
		return err
	}
	buf = buf[:n]

	if err := w.file.Truncate(0); err != nil {
		return err
	}
	if _, err := w.file.Seek(0, io.SeekStart); err != nil {
		return err
	}
	if _, err := w.file.Write(buf); err != nil {
		return err
	}
	_, err = w.file.Seek(0, io.SeekEnd)
	return err
}
