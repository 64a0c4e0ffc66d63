package querycache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// Collect removes entries that have been unused for longer than the policy
// GCTime and returns how many were dropped. Observed and in-flight entries
// are never collected.
func (c *Cache) Collect(now time.Time) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	gc := c.policy.GCTime
	if gc < 0 {
		return 0
	}
	n := 0
	for id, e := range c.entries {
		if len(e.observers) > 0 || e.call != nil {
			continue
		}
		if now.Sub(e.lastUsed) >= gc {
			delete(c.entries, id)
			n++
		}
	}
	return n
}

// Len reports how many entries the cache holds.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// SnapshotSize reports how many snapshots the store holds, or zero when the
// cache has no store.
func (c *Cache) SnapshotSize(ctx context.Context) (int64, error) {
	if c.store == nil {
		return 0, nil
	}
	return c.store.Size(ctx)
}

// StartCollector runs Collect on a cron schedule such as "@every 1m" until
// Close. An empty schedule disables collection.
func (c *Cache) StartCollector(schedule string) error {
	schedule = strings.TrimSpace(schedule)
	if schedule == "" {
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	if c.collector != nil {
		return errors.New("querycache: collector already running")
	}

	collector := cron.New()
	if _, err := collector.AddFunc(schedule, func() {
		if n := c.Collect(c.now()); n > 0 {
			c.logger.Debug("collected inactive queries", slog.Int("entries", n))
		}
	}); err != nil {
		return fmt.Errorf("querycache: collector schedule %q: %w", schedule, err)
	}
	c.collector = collector
	collector.Start()
	return nil
}
