package mutation

import (
	"context"
	"encoding/json"

	"github.com/l0p7/eventdesk/internal/querycache"
)

type optimisticRollback struct {
	key      querycache.Key
	previous json.RawMessage
	had      bool
}

// Optimistic builds callbacks that write the expected result into the cache
// before the request completes. They cancel in-flight fetches for the key,
// remember its data, write next(previous, in), restore the remembered data on
// error, and invalidate the key once the mutation settles either way.
//
// The returned options leave OnSuccess, Logger, and Metrics for the caller.
func Optimistic[In, Out any](cache *querycache.Cache, keyFor func(In) querycache.Key, next func(previous json.RawMessage, in In) (any, error)) Options[In, Out] {
	return Options[In, Out]{
		OnMutate: func(_ context.Context, in In) (any, error) {
			key := keyFor(in)
			cache.CancelQueries(key)
			previous, had := cache.GetQueryData(key)
			value, err := next(previous, in)
			if err != nil {
				return nil, err
			}
			if err := cache.SetQueryData(key, value); err != nil {
				return nil, err
			}
			return optimisticRollback{key: key, previous: previous, had: had}, nil
		},
		OnError: func(_ context.Context, _ error, _ In, rollback any) {
			rb, ok := rollback.(optimisticRollback)
			if !ok {
				return
			}
			if rb.had {
				_ = cache.SetQueryData(rb.key, rb.previous)
				return
			}
			cache.RemoveQueries(rb.key)
		},
		OnSettled: func(ctx context.Context, _ Out, _ error, in In, _ any) {
			_, _ = cache.InvalidateQueries(context.WithoutCancel(ctx), keyFor(in), querycache.InvalidateOptions{Refetch: querycache.RefetchActive})
		},
	}
}
