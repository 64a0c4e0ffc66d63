// Package querycache is the process-wide query cache. Entries are keyed by
// semantic query keys, hold JSON data with a freshness timestamp, and allow at
// most one in-flight request per key.
package querycache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/l0p7/eventdesk/internal/logging"
	"github.com/l0p7/eventdesk/internal/metrics"
)

// ErrClosed is returned by operations on a closed Cache.
var ErrClosed = errors.New("querycache: closed")

// Policy holds the cache-wide defaults. A negative StaleTime means data never
// goes stale; a negative GCTime disables collection.
type Policy struct {
	StaleTime time.Duration
	GCTime    time.Duration
}

// Options wires a Cache to its collaborators.
type Options struct {
	Logger  *slog.Logger
	Metrics *metrics.Recorder
	// Store, when set, mirrors fetched data under Namespace.
	Store     Store
	Namespace string
	Policy    Policy
	Clock     func() time.Time
}

// QueryFunc produces the data for a key. It must honour ctx.
type QueryFunc func(ctx context.Context) (any, error)

type entry struct {
	key Key

	data        json.RawMessage
	hasData     bool
	updatedAt   time.Time
	err         error
	errAt       time.Time
	invalidated bool
	generation  uint64

	fn        QueryFunc
	staleTime time.Duration
	call      *call
	observers map[*Observer]struct{}
	lastUsed  time.Time
}

type call struct {
	done     chan struct{}
	cancel   context.CancelFunc
	waiters  int
	detached bool
	gen      uint64

	data         json.RawMessage
	err          error
	fromSnapshot bool
}

// Cache is safe for concurrent use.
type Cache struct {
	logger    *slog.Logger
	metrics   *metrics.Recorder
	store     Store
	namespace string
	now       func() time.Time

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu        sync.Mutex
	entries   map[string]*entry
	policy    Policy
	collector *cron.Cron
	closed    bool
}

// New builds a Cache whose background work lives until Close.
func New(opts Options) *Cache {
	logger := opts.Logger
	if logger == nil {
		logger = logging.Discard()
	}
	clock := opts.Clock
	if clock == nil {
		clock = time.Now
	}
	namespace := opts.Namespace
	if namespace == "" {
		namespace = "eventdesk"
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Cache{
		logger:    logger.With(slog.String("agent", "querycache")),
		metrics:   opts.Metrics,
		store:     opts.Store,
		namespace: namespace,
		now:       clock,
		ctx:       ctx,
		cancel:    cancel,
		entries:   make(map[string]*entry),
		policy:    opts.Policy,
	}
}

// SetPolicy swaps the cache-wide defaults. Explicit per-fetch stale times are
// unaffected.
func (c *Cache) SetPolicy(p Policy) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.policy = p
}

func (c *Cache) Policy() Policy {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.policy
}

// GetQueryData returns a copy of the cached data for key.
func (c *Cache) GetQueryData(key Key) (json.RawMessage, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key.String()]
	if !ok || !e.hasData {
		return nil, false
	}
	return cloneRaw(e.data), true
}

// SetQueryData writes value as fresh data for key.
func (c *Cache) SetQueryData(key Key, value any) error {
	encoded, err := encode(value)
	if err != nil {
		return fmt.Errorf("querycache: set %s: %w", key, err)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	e := c.entryLocked(key)
	now := c.now()
	e.data = encoded
	e.hasData = true
	e.updatedAt = now
	e.lastUsed = now
	e.err = nil
	e.invalidated = false
	c.notifyLocked(e)
	return nil
}

// Close cancels in-flight work, stops the collector, and waits for
// background goroutines until ctx expires.
func (c *Cache) Close(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	collector := c.collector
	c.collector = nil
	c.mu.Unlock()

	if collector != nil {
		<-collector.Stop().Done()
	}
	c.cancel()

	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		return fmt.Errorf("querycache: close: %w", ctx.Err())
	}

	if c.store != nil {
		if err := c.store.Close(ctx); err != nil {
			return fmt.Errorf("querycache: close store: %w", err)
		}
	}
	return nil
}

func (c *Cache) entryLocked(key Key) *entry {
	id := key.String()
	e, ok := c.entries[id]
	if !ok {
		e = &entry{key: key.clone(), lastUsed: c.now()}
		c.entries[id] = e
	}
	return e
}

func (c *Cache) notifyLocked(e *entry) {
	for o := range e.observers {
		select {
		case o.changes <- struct{}{}:
		default:
		}
	}
}

func (c *Cache) staleTimeLocked(explicit *time.Duration) time.Duration {
	if explicit != nil {
		return *explicit
	}
	return c.policy.StaleTime
}

func (e *entry) fresh(now time.Time, staleTime time.Duration) bool {
	if !e.hasData || e.invalidated {
		return false
	}
	if staleTime < 0 {
		return true
	}
	return now.Sub(e.updatedAt) < staleTime
}

func (e *entry) active() bool {
	return len(e.observers) > 0 || (e.call != nil && e.call.waiters > 0)
}

func encode(value any) (json.RawMessage, error) {
	if raw, ok := value.(json.RawMessage); ok {
		if !json.Valid(raw) {
			return nil, errors.New("invalid json")
		}
		return cloneRaw(raw), nil
	}
	return json.Marshal(value)
}

func cloneRaw(in json.RawMessage) json.RawMessage {
	if in == nil {
		return nil
	}
	return append(json.RawMessage(nil), in...)
}
