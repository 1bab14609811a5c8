package application

import (
	"context"
	"log/slog"
	"time"

	"github.com/groovy/replicasync/internal/domain"
)

type Config struct {
	ServiceName     string
	EventDedupTTL   time.Duration
	ReplicaCacheTTL time.Duration
	PublishTimeout  time.Duration
	SyncPageSize    int
	Clock           func() time.Time
}

func (c Config) withDefaults() Config {
	if c.ServiceName == "" {
		c.ServiceName = "replica-sync"
	}
	if c.EventDedupTTL <= 0 {
		c.EventDedupTTL = 7 * 24 * time.Hour
	}
	if c.ReplicaCacheTTL <= 0 {
		c.ReplicaCacheTTL = 5 * time.Minute
	}
	if c.PublishTimeout <= 0 {
		c.PublishTimeout = 10 * time.Second
	}
	if c.SyncPageSize <= 0 {
		c.SyncPageSize = 100
	}
	if c.Clock == nil {
		c.Clock = func() time.Time { return time.Now().UTC() }
	}
	return c
}

type ctxKey string

const ctxKeyCorrelationID ctxKey = "correlation_id"

func WithCorrelationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ctxKeyCorrelationID, id)
}

func CorrelationID(ctx context.Context) string {
	if v, ok := ctx.Value(ctxKeyCorrelationID).(string); ok {
		return v
	}
	return ""
}

func loggerOrDefault(logger *slog.Logger) *slog.Logger {
	if logger == nil {
		return slog.Default()
	}
	return logger
}

func cacheKeyUser(id string) string {
	return "replica:user:" + id
}

func cacheKeySong(id string) string {
	return "replica:song:" + id
}

type noopCache struct{}

func (noopCache) Get(context.Context, string) (string, error) { return "", domain.ErrNotFound }

func (noopCache) Set(context.Context, string, string, time.Duration) error { return nil }

func (noopCache) Delete(context.Context, ...string) error { return nil }
