package objectgw

import (
	"context"

	"github.com/fluxplane/control-plane/internal/retry"
)

// WithRetry wraps a Store so every operation runs through the Retry
// Harness. PutJSON/PutText/GetJSON are retried up to 3 times; Exists
// retries too, except that a definitive "not found" is returned
// immediately without consuming a retry attempt (spec.md §4.3).
func WithRetry(s Store) Store {
	return &retrying{inner: s}
}

type retrying struct {
	inner Store
}

func (r *retrying) PutJSON(ctx context.Context, key string, v any) error {
	return retry.Do(ctx, "objectgw.putJson:"+key, func(ctx context.Context) error {
		return r.inner.PutJSON(ctx, key, v)
	})
}

func (r *retrying) PutText(ctx context.Context, key, contents, contentType string) error {
	return retry.Do(ctx, "objectgw.putText:"+key, func(ctx context.Context) error {
		return r.inner.PutText(ctx, key, contents, contentType)
	})
}

func (r *retrying) GetJSON(ctx context.Context, key string, v any) error {
	return retry.Do(ctx, "objectgw.getJson:"+key, func(ctx context.Context) error {
		return r.inner.GetJSON(ctx, key, v)
	})
}

func (r *retrying) Exists(ctx context.Context, key string) (bool, error) {
	var found bool
	err := retry.Do(ctx, "objectgw.exists:"+key, func(ctx context.Context) error {
		ok, err := r.inner.Exists(ctx, key)
		if err != nil {
			return err
		}
		found = ok
		return nil
	})
	return found, err
}
