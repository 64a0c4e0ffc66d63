package querycache

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
)

// RefetchType selects which invalidated entries are refetched immediately.
type RefetchType int

const (
	// RefetchActive refetches entries with observers or waiting callers.
	RefetchActive RefetchType = iota
	RefetchInactive
	RefetchAll
	// RefetchNone only marks entries stale; they refetch on next access.
	RefetchNone
)

func (r RefetchType) String() string {
	switch r {
	case RefetchActive:
		return "active"
	case RefetchInactive:
		return "inactive"
	case RefetchAll:
		return "all"
	case RefetchNone:
		return "none"
	default:
		return "unknown"
	}
}

// ParseRefetchType accepts the names produced by String.
func ParseRefetchType(value string) (RefetchType, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "", "active":
		return RefetchActive, nil
	case "inactive":
		return RefetchInactive, nil
	case "all":
		return RefetchAll, nil
	case "none":
		return RefetchNone, nil
	default:
		return RefetchActive, fmt.Errorf("querycache: unknown refetch type %q", value)
	}
}

type InvalidateOptions struct {
	Refetch RefetchType
}

func (r RefetchType) selects(active bool) bool {
	switch r {
	case RefetchActive:
		return active
	case RefetchInactive:
		return !active
	case RefetchAll:
		return true
	default:
		return false
	}
}

// InvalidateQueries marks every entry under prefix stale and returns how many
// matched. Refetches chosen by opts run in the background on the cache's own
// lifetime; the call waits for them until ctx ends. Snapshots of the prefix
// category are dropped once the entries are marked.
func (c *Cache) InvalidateQueries(ctx context.Context, prefix Key, opts InvalidateOptions) (int, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return 0, ErrClosed
	}
	matched := 0
	var pending []<-chan struct{}
	for _, e := range c.entries {
		if !e.key.Matches(prefix) {
			continue
		}
		matched++
		e.invalidated = true
		e.generation++
		c.notifyLocked(e)
		if opts.Refetch.selects(e.active()) && e.fn != nil {
			pending = append(pending, c.refetchLocked(e))
		}
	}
	c.mu.Unlock()

	// Marking first means a fetch that saves after this delete sees the new
	// generation and drops its own snapshot.
	if c.store != nil {
		if err := c.store.DeletePrefix(ctx, storePrefix(c.namespace, prefix.Category)); err != nil {
			c.logger.Warn("snapshot invalidation failed", slog.String("prefix", prefix.String()), slog.Any("error", err))
		}
	}

	c.metrics.ObserveInvalidation(prefix.Category, opts.Refetch.String(), matched)
	c.logger.Debug("queries invalidated",
		slog.String("prefix", prefix.String()),
		slog.String("refetch", opts.Refetch.String()),
		slog.Int("entries", matched),
		slog.Int("refetches", len(pending)),
	)

	for _, done := range pending {
		select {
		case <-done:
		case <-ctx.Done():
			return matched, fmt.Errorf("querycache: invalidate %s: %w", prefix, ctx.Err())
		}
	}
	return matched, nil
}

// refetchLocked waits for any in-flight request on e to settle and then, if
// the entry is still invalidated, runs a detached refetch.
func (c *Cache) refetchLocked(e *entry) <-chan struct{} {
	done := make(chan struct{})
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		defer close(done)
		for {
			c.mu.Lock()
			if c.closed || c.entries[e.key.String()] != e {
				c.mu.Unlock()
				return
			}
			if inflight := e.call; inflight != nil {
				c.mu.Unlock()
				select {
				case <-inflight.done:
				case <-c.ctx.Done():
					return
				}
				continue
			}
			if !e.invalidated || e.fn == nil {
				c.mu.Unlock()
				return
			}
			cl := c.startLocked(c.ctx, e, e.fn, e.staleTime, true)
			c.mu.Unlock()
			select {
			case <-cl.done:
			case <-c.ctx.Done():
			}
			return
		}
	}()
	return done
}

// CancelQueries aborts in-flight requests under prefix. Their waiters receive
// a cancellation error and the entries keep their previous state.
func (c *Cache) CancelQueries(prefix Key) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, e := range c.entries {
		if e.call == nil || !e.key.Matches(prefix) {
			continue
		}
		e.call.cancel()
		e.call = nil
		c.notifyLocked(e)
		n++
	}
	return n
}

// RemoveQueries drops entries under prefix. Observed entries are reset to
// pending instead so their observers stay attached. Snapshots expire on
// their own.
func (c *Cache) RemoveQueries(prefix Key) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for id, e := range c.entries {
		if !e.key.Matches(prefix) {
			continue
		}
		if e.call != nil {
			e.call.cancel()
			e.call = nil
		}
		n++
		if len(e.observers) == 0 {
			delete(c.entries, id)
			continue
		}
		e.data = nil
		e.hasData = false
		e.err = nil
		e.invalidated = false
		e.generation++
		c.notifyLocked(e)
	}
	return n
}

// IsFetching counts entries with a request in flight under any of prefixes,
// or across the whole cache when none are given.
func (c *Cache) IsFetching(prefixes ...Key) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, e := range c.entries {
		if e.call == nil {
			continue
		}
		if len(prefixes) == 0 {
			n++
			continue
		}
		for _, prefix := range prefixes {
			if e.key.Matches(prefix) {
				n++
				break
			}
		}
	}
	return n
}
