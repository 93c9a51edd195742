// Package invalidate sends cache invalidations for page paths to the
// rendering layer.
package invalidate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/go-resty/resty/v2"

	"github.com/rpggio/folio/internal/domain/page"
)

// SecretHeader carries the shared webhook secret.
const SecretHeader = "X-Folio-Secret"

// Message is the payload sent for each invalidated path.
type Message struct {
	Path string `json:"path"`
}

// Log only records invalidations. It is used when no renderer is configured.
type Log struct {
	logger *slog.Logger
}

// NewLog creates a logging notifier.
func NewLog(logger *slog.Logger) *Log {
	if logger == nil {
		logger = slog.Default()
	}
	return &Log{logger: logger}
}

// Invalidate implements page.Notifier.
func (l *Log) Invalidate(_ context.Context, path string) error {
	l.logger.Info("page invalidated", "path", path)
	return nil
}

// Webhook posts {"path": ...} to the renderer's revalidation endpoint.
type Webhook struct {
	client *resty.Client
	url    string
}

// NewWebhook creates a webhook notifier. An empty secret omits the header.
func NewWebhook(url, secret string, timeout time.Duration) *Webhook {
	client := resty.New().
		SetTimeout(timeout).
		SetRetryCount(2).
		SetRetryWaitTime(200 * time.Millisecond).
		SetRetryMaxWaitTime(time.Second).
		SetHeader("Content-Type", "application/json")
	if secret != "" {
		client.SetHeader(SecretHeader, secret)
	}
	return &Webhook{client: client, url: url}
}

// Invalidate implements page.Notifier.
func (w *Webhook) Invalidate(ctx context.Context, path string) error {
	resp, err := w.client.R().
		SetContext(ctx).
		SetBody(Message{Path: path}).
		Post(w.url)
	if err != nil {
		return fmt.Errorf("posting invalidation for %s: %w", path, err)
	}
	if resp.IsError() {
		return fmt.Errorf("invalidation for %s: renderer returned %s", path, resp.Status())
	}
	return nil
}

// Publisher is the subset of the redis client used by Redis.
type Publisher interface {
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
}

// Redis publishes each invalidated path on a channel.
type Redis struct {
	client  Publisher
	channel string
}

// NewRedis creates a redis notifier.
func NewRedis(client Publisher, channel string) *Redis {
	return &Redis{client: client, channel: channel}
}

// NewRedisClient connects to addr.
func NewRedisClient(addr, password string, db int) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
}

// Invalidate implements page.Notifier.
func (r *Redis) Invalidate(ctx context.Context, path string) error {
	if err := r.client.Publish(ctx, r.channel, path).Err(); err != nil {
		return fmt.Errorf("publishing invalidation for %s: %w", path, err)
	}
	return nil
}

// Fanout sends to every notifier and joins their errors.
type Fanout []page.Notifier

// Invalidate implements page.Notifier.
func (f Fanout) Invalidate(ctx context.Context, path string) error {
	var errs []error
	for _, n := range f {
		if err := n.Invalidate(ctx, path); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

var (
	_ page.Notifier = (*Log)(nil)
	_ page.Notifier = (*Webhook)(nil)
	_ page.Notifier = (*Redis)(nil)
	_ page.Notifier = Fanout(nil)
)
