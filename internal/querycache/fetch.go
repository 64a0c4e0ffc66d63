package querycache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/l0p7/eventdesk/internal/metrics"
)

// FetchOption adjusts a single fetch or observation.
type FetchOption func(*fetchConfig)

type fetchConfig struct {
	staleTime *time.Duration
}

// WithStaleTime overrides the policy stale time for this key. Negative means
// the data never goes stale once fetched.
func WithStaleTime(d time.Duration) FetchOption {
	return func(cfg *fetchConfig) { cfg.staleTime = &d }
}

func buildFetchConfig(opts []FetchOption) fetchConfig {
	var cfg fetchConfig
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	return cfg
}

// FetchQuery returns fresh cached data for key without calling fn, joins a
// request already in flight for key, or runs fn and stores its result.
//
// fn runs detached from ctx: when ctx ends the caller stops waiting, and the
// request is cancelled only once every waiter has gone. A cancelled request
// never writes into the entry.
func (c *Cache) FetchQuery(ctx context.Context, key Key, fn QueryFunc, opts ...FetchOption) (json.RawMessage, error) {
	if fn == nil {
		return nil, fmt.Errorf("querycache: fetch %s: query function required", key)
	}
	cfg := buildFetchConfig(opts)
	return c.fetch(ctx, key, fn, cfg.staleTime, false)
}

// Fetch is FetchQuery with typed decoding of the cached JSON.
func Fetch[T any](ctx context.Context, c *Cache, key Key, fn func(context.Context) (T, error), opts ...FetchOption) (T, error) {
	raw, err := c.FetchQuery(ctx, key, func(ctx context.Context) (any, error) {
		return fn(ctx)
	}, opts...)
	if err != nil {
		var zero T
		return zero, err
	}
	return Decode[T](raw)
}

// Decode unmarshals cached JSON into T.
func Decode[T any](raw json.RawMessage) (T, error) {
	var out T
	if err := json.Unmarshal(raw, &out); err != nil {
		return out, fmt.Errorf("querycache: decode: %w", err)
	}
	return out, nil
}

func (c *Cache) fetch(ctx context.Context, key Key, fn QueryFunc, staleOpt *time.Duration, force bool) (json.RawMessage, error) {
	if err := ctx.Err(); err != nil {
		c.metrics.ObserveFetch(key.Category, metrics.FetchCanceled)
		return nil, fmt.Errorf("querycache: fetch %s: %w", key, err)
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, ErrClosed
	}
	e := c.entryLocked(key)
	if fn != nil {
		e.fn = fn
	}
	if e.fn == nil {
		c.mu.Unlock()
		return nil, fmt.Errorf("querycache: fetch %s: query function required", key)
	}
	staleTime := c.staleTimeLocked(staleOpt)
	e.staleTime = staleTime
	now := c.now()
	e.lastUsed = now

	if !force && e.fresh(now, staleTime) {
		data := cloneRaw(e.data)
		c.mu.Unlock()
		c.metrics.ObserveFetch(key.Category, metrics.FetchHit)
		return data, nil
	}

	result := metrics.FetchShared
	cl := e.call
	if cl == nil {
		cl = c.startLocked(ctx, e, e.fn, staleTime, false)
		result = metrics.FetchMiss
	}
	cl.waiters++
	c.mu.Unlock()

	return c.await(ctx, e, cl, result)
}

func (c *Cache) await(ctx context.Context, e *entry, cl *call, result metrics.FetchResult) (json.RawMessage, error) {
	select {
	case <-cl.done:
		return c.resolve(e.key, cl, result)
	case <-ctx.Done():
	}

	c.mu.Lock()
	cl.waiters--
	if cl.waiters == 0 && !cl.detached {
		cl.cancel()
		if e.call == cl {
			e.call = nil
			c.notifyLocked(e)
		}
	}
	c.mu.Unlock()

	c.metrics.ObserveFetch(e.key.Category, metrics.FetchCanceled)
	return nil, fmt.Errorf("querycache: fetch %s: %w", e.key, ctx.Err())
}

func (c *Cache) resolve(key Key, cl *call, result metrics.FetchResult) (json.RawMessage, error) {
	switch {
	case cl.err != nil && isContextErr(cl.err):
		result = metrics.FetchCanceled
	case cl.err != nil:
		result = metrics.FetchError
	case cl.fromSnapshot && result == metrics.FetchMiss:
		result = metrics.FetchSnapshotHit
	}
	c.metrics.ObserveFetch(key.Category, result)
	if cl.err != nil {
		return nil, cl.err
	}
	return cloneRaw(cl.data), nil
}

// startLocked begins a request for e. Foreground calls keep the values of
// parent but not its cancellation; detached calls live on the cache context.
func (c *Cache) startLocked(parent context.Context, e *entry, fn QueryFunc, staleTime time.Duration, detached bool) *call {
	var (
		callCtx context.Context
		cancel  context.CancelFunc
		stop    func() bool
	)
	if detached {
		callCtx, cancel = context.WithCancel(c.ctx)
	} else {
		callCtx, cancel = context.WithCancel(context.WithoutCancel(parent))
		stop = context.AfterFunc(c.ctx, cancel)
	}

	cl := &call{
		done:     make(chan struct{}),
		cancel:   cancel,
		detached: detached,
		gen:      e.generation,
	}
	e.call = cl
	useSnapshot := c.store != nil && !e.hasData && !e.invalidated
	c.notifyLocked(e)

	c.wg.Add(1)
	go c.run(callCtx, e, cl, fn, staleTime, useSnapshot, stop)
	return cl
}

func (c *Cache) run(ctx context.Context, e *entry, cl *call, fn QueryFunc, staleTime time.Duration, useSnapshot bool, stop func() bool) {
	defer c.wg.Done()
	if stop != nil {
		defer stop()
	}

	var (
		data      json.RawMessage
		err       error
		updatedAt time.Time
	)
	storeID := storeKey(c.namespace, e.key)
	if useSnapshot {
		if snapshot, ok := c.lookupSnapshot(ctx, storeID, staleTime); ok {
			data = snapshot.Data
			updatedAt = snapshot.StoredAt
			cl.fromSnapshot = true
		}
	}
	if !cl.fromSnapshot {
		var value any
		value, err = fn(ctx)
		if err == nil {
			data, err = encode(value)
			if err != nil {
				err = fmt.Errorf("querycache: encode %s: %w", e.key, err)
			}
		}
	}
	saved := false
	if err == nil && !cl.fromSnapshot && c.current(ctx, e, cl) {
		updatedAt = c.saveSnapshot(storeID, data)
		saved = c.store != nil
	}

	c.mu.Lock()
	now := c.now()
	// An invalidation or cancellation that landed while the snapshot was
	// being written must not leave it behind.
	dropSaved := saved && (ctx.Err() != nil || e.generation != cl.gen)
	switch ctxErr := ctx.Err(); {
	case ctxErr != nil:
		if err == nil || !errors.Is(err, ctxErr) {
			err = fmt.Errorf("querycache: fetch %s: %w", e.key, ctxErr)
		}
		data = nil
	case err != nil:
		e.err = err
		e.errAt = now
	default:
		if updatedAt.IsZero() {
			updatedAt = now
		}
		e.data = data
		e.hasData = true
		e.updatedAt = updatedAt
		e.err = nil
		if e.generation == cl.gen {
			e.invalidated = false
		}
	}
	if e.call == cl {
		e.call = nil
	}
	e.lastUsed = now
	cl.data = data
	cl.err = err
	c.mu.Unlock()

	if dropSaved {
		c.dropSnapshots(e.key.Category)
	}

	c.mu.Lock()
	close(cl.done)
	c.notifyLocked(e)
	c.mu.Unlock()

	cl.cancel()
	if err != nil && !isContextErr(err) {
		c.logger.Debug("query failed", slog.String("key", e.key.String()), slog.Any("error", err))
	}
}

func (c *Cache) lookupSnapshot(ctx context.Context, storeID string, staleTime time.Duration) (Snapshot, bool) {
	snapshot, ok, err := c.store.Lookup(ctx, storeID)
	if err != nil {
		c.logger.Warn("snapshot lookup failed", slog.String("key", storeID), slog.Any("error", err))
		return Snapshot{}, false
	}
	if !ok || len(snapshot.Data) == 0 {
		return Snapshot{}, false
	}
	if staleTime >= 0 && c.now().Sub(snapshot.StoredAt) >= staleTime {
		return Snapshot{}, false
	}
	return snapshot, true
}

// current reports whether the call still belongs to the entry's latest
// generation and has not been cancelled.
func (c *Cache) current(ctx context.Context, e *entry, cl *call) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return ctx.Err() == nil && e.generation == cl.gen
}

func (c *Cache) dropSnapshots(category string) {
	if c.store == nil {
		return
	}
	if err := c.store.DeletePrefix(c.ctx, storePrefix(c.namespace, category)); err != nil {
		c.logger.Warn("snapshot invalidation failed", slog.String("category", category), slog.Any("error", err))
	}
}

// saveSnapshot mirrors data to the store and returns the freshness timestamp.
func (c *Cache) saveSnapshot(storeID string, data json.RawMessage) time.Time {
	now := c.now()
	if c.store == nil {
		return now
	}
	if err := c.store.Save(c.ctx, storeID, Snapshot{Data: cloneRaw(data), StoredAt: now}); err != nil {
		c.logger.Warn("snapshot save failed", slog.String("key", storeID), slog.Any("error", err))
	}
	return now
}

func isContextErr(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
