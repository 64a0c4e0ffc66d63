package querycache

import (
	"context"
	"encoding/json"
	"sync"
	"time"
)

// Status is the render state of an observed query.
type Status string

const (
	StatusPending Status = "pending"
	StatusError   Status = "error"
	StatusSuccess Status = "success"
)

// State is a point-in-time view of an entry as an observer sees it.
type State struct {
	Status     Status
	Data       json.RawMessage
	Err        error
	UpdatedAt  time.Time
	IsFetching bool
	IsStale    bool
}

// Observer subscribes to one key. While open the entry counts as active, so
// invalidation with RefetchActive refetches it.
type Observer struct {
	cache     *Cache
	entry     *entry
	staleTime *time.Duration
	changes   chan struct{}

	once sync.Once
	stop func() bool
}

// Observe subscribes to key and fetches it in the background when the
// cached data is missing or stale. The observer closes itself when ctx ends.
func (c *Cache) Observe(ctx context.Context, key Key, fn QueryFunc, opts ...FetchOption) (*Observer, error) {
	cfg := buildFetchConfig(opts)

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, ErrClosed
	}
	e := c.entryLocked(key)
	if fn != nil {
		e.fn = fn
	}
	staleTime := c.staleTimeLocked(cfg.staleTime)
	e.staleTime = staleTime

	o := &Observer{
		cache:     c,
		entry:     e,
		staleTime: cfg.staleTime,
		changes:   make(chan struct{}, 1),
	}
	if e.observers == nil {
		e.observers = make(map[*Observer]struct{})
	}
	e.observers[o] = struct{}{}
	if e.call == nil && e.fn != nil && !e.fresh(c.now(), staleTime) {
		c.startLocked(c.ctx, e, e.fn, staleTime, true)
	}
	c.mu.Unlock()

	o.stop = context.AfterFunc(ctx, o.Close)
	return o, nil
}

func (o *Observer) Key() Key {
	return o.entry.key.clone()
}

// State reports the entry as of now.
func (o *Observer) State() State {
	c := o.cache
	c.mu.Lock()
	defer c.mu.Unlock()
	e := o.entry
	state := State{
		Data:       cloneRaw(e.data),
		Err:        e.err,
		UpdatedAt:  e.updatedAt,
		IsFetching: e.call != nil,
		IsStale:    !e.fresh(c.now(), c.staleTimeLocked(o.staleTime)),
	}
	switch {
	case e.err != nil:
		state.Status = StatusError
	case e.hasData:
		state.Status = StatusSuccess
	default:
		state.Status = StatusPending
	}
	return state
}

// Changes signals, coalesced, every time the entry changes.
func (o *Observer) Changes() <-chan struct{} {
	return o.changes
}

// Refetch runs the query regardless of freshness, joining an in-flight
// request when there is one.
func (o *Observer) Refetch(ctx context.Context) (json.RawMessage, error) {
	return o.cache.fetch(ctx, o.entry.key, nil, o.staleTime, true)
}

// Close unsubscribes. It is safe to call more than once.
func (o *Observer) Close() {
	o.once.Do(func() {
		if o.stop != nil {
			o.stop()
		}
		c := o.cache
		c.mu.Lock()
		delete(o.entry.observers, o)
		o.entry.lastUsed = c.now()
		c.mu.Unlock()
	})
}
