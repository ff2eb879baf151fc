// Package cache keeps a read-through Redis copy of public snippet views.
//
// Shared links can be hit far more often than their owners edit them, and
// each uncached view costs two queries (snippet + author profile). Only the
// already-projected model.PublicSnippet is stored, never the owner's row.
//
// Every entry carries the version stamp the view was built under. Callers
// compare it with the database's current stamp before serving, so a
// missed Invalidate costs a refetch, not a stale or private page.
package cache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"

	"github.com/sakif/snippet-vault/internal/metrics"
	"github.com/sakif/snippet-vault/internal/model"
)

const keyPrefix = "public_snippet:"

type entry struct {
	Version string               `json:"version"`
	View    *model.PublicSnippet `json:"view"`
}

// PublicSnippetCache is safe to use with a nil client: every Get misses and
// every Set/Invalidate is a no-op.
type PublicSnippetCache struct {
	client *redis.Client
	ttl    time.Duration
	logger *slog.Logger
}

func NewPublicSnippetCache(client *redis.Client, ttl time.Duration, logger *slog.Logger) *PublicSnippetCache {
	return &PublicSnippetCache{client: client, ttl: ttl, logger: logger}
}

// Connect parses a redis:// URL (or a bare host:port) and pings it. A failed
// ping returns an error; the caller decides whether to run without a cache.
func Connect(ctx context.Context, addr string) (*redis.Client, error) {
	var opts *redis.Options
	if strings.Contains(addr, "://") {
		parsed, err := redis.ParseURL(addr)
		if err != nil {
			return nil, fmt.Errorf("cache: parsing redis url: %w", err)
		}
		opts = parsed
	} else {
		opts = &redis.Options{Addr: addr}
	}

	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("cache: pinging redis: %w", err)
	}
	return client, nil
}

// Get returns the cached view and the version it was stored under, or
// ok == false on a miss. Redis errors are logged and treated as a miss so
// the database stays authoritative.
func (c *PublicSnippetCache) Get(ctx context.Context, publicID string) (*model.PublicSnippet, string, bool) {
	if c == nil || c.client == nil {
		return nil, "", false
	}

	raw, err := c.client.Get(ctx, keyPrefix+publicID).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			metrics.RecordCacheLookup("miss")
		} else {
			metrics.RecordCacheLookup("error")
			c.logger.Warn("public snippet cache read failed",
				slog.String("public_id", publicID),
				slog.String("error", err.Error()),
			)
		}
		return nil, "", false
	}

	var e entry
	if err := json.Unmarshal(raw, &e); err != nil || e.View == nil || e.Version == "" {
		metrics.RecordCacheLookup("error")
		return nil, "", false
	}
	metrics.RecordCacheLookup("hit")
	return e.View, e.Version, true
}

// Set stores view under version. An empty version is never stored.
func (c *PublicSnippetCache) Set(ctx context.Context, version string, view *model.PublicSnippet) {
	if c == nil || c.client == nil || view == nil || view.PublicID == "" || version == "" {
		return
	}

	raw, err := json.Marshal(entry{Version: version, View: view})
	if err != nil {
		return
	}
	if err := c.client.Set(ctx, keyPrefix+view.PublicID, raw, c.ttl).Err(); err != nil {
		c.logger.Warn("public snippet cache write failed",
			slog.String("public_id", view.PublicID),
			slog.String("error", err.Error()),
		)
	}
}

// Invalidate drops the entry after unshare, update and delete. It only
// saves a refetch; the version check on read is what keeps a private
// snippet off the public page.
func (c *PublicSnippetCache) Invalidate(ctx context.Context, publicID string) {
	if c == nil || c.client == nil || publicID == "" {
		return
	}
	if err := c.client.Del(ctx, keyPrefix+publicID).Err(); err != nil {
		c.logger.Warn("public snippet cache invalidate failed",
			slog.String("public_id", publicID),
			slog.String("error", err.Error()),
		)
	}
}
