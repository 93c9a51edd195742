package main

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/rpggio/folio/internal/config"
	"github.com/rpggio/folio/internal/domain/analytics"
	"github.com/rpggio/folio/internal/invalidate"
)

func TestLogFileWriter_KeepsTail(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "folio.log")
	w, file, err := newLogFileWriter(path)
	require.NoError(t, err)
	defer file.Close()

	chunk := bytes.Repeat([]byte("a"), 1024*1024)
	for i := 0; i < 6; i++ {
		_, err := w.Write(chunk)
		require.NoError(t, err)
	}
	_, err = w.Write([]byte("last line\n"))
	require.NoError(t, err)

	info, err := os.Stat(path)
	require.NoError(t, err)
	require.Equal(t, int64(keepLogSizeBytes), info.Size())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.True(t, bytes.HasSuffix(data, []byte("last line\n")))
}

func TestParseLogLevel(t *testing.T) {
	require.Equal(t, slog.LevelDebug, parseLogLevel("debug"))
	require.Equal(t, slog.LevelError, parseLogLevel("error"))
	require.Equal(t, slog.LevelInfo, parseLogLevel("loud"))
}

func TestNewNotifier_AddsConfiguredHooks(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	plain := newNotifier(config.InvalidationConfig{}, logger)
	require.Len(t, plain.(invalidate.Fanout), 1)

	full := newNotifier(config.InvalidationConfig{
		WebhookURL:   "http://127.0.0.1:1/hook",
		RedisAddr:    "127.0.0.1:6379",
		RedisChannel: "folio:invalidate",
	}, logger)
	require.Len(t, full.(invalidate.Fanout), 3)
}

func TestOpenStorage(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	ctx := context.Background()

	for _, cfg := range []config.StorageConfig{
		{Driver: "sqlite", Path: filepath.Join(t.TempDir(), "db", "folio.db")},
		{Driver: "file", Dir: filepath.Join(t.TempDir(), "data")},
	} {
		t.Run(cfg.Driver, func(t *testing.T) {
			backends, closeStorage, err := openStorage(cfg, logger)
			require.NoError(t, err)
			defer closeStorage()

			require.NoError(t, backends.Analytics.Append(ctx, &analytics.Event{ID: "e1", Type: "view", Path: "/", Timestamp: time.Now()}))
			events, err := backends.Analytics.List(ctx, analytics.ListOptions{})
			require.NoError(t, err)
			require.Len(t, events, 1)
		})
	}
}
