package cache

import (
	"context"
	"encoding/json"
)

// Cache stores opaque values under string keys with a fixed time-to-live.
// An expired entry is indistinguishable from an absent one. Implementations
// must be safe for concurrent use from overlapping requests.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool)
	Set(ctx context.Context, key string, value []byte)
}

// GetJSON looks up key and unmarshals the cached value into v.
// A decode failure is treated as a miss.
func GetJSON(ctx context.Context, c Cache, key string, v interface{}) bool {
	data, ok := c.Get(ctx, key)
	if !ok {
		return false
	}
	if err := json.Unmarshal(data, v); err != nil {
		return false
	}
	return true
}

// SetJSON marshals v and stores it under key. Values that fail to
// marshal are dropped; caching is best-effort.
func SetJSON(ctx context.Context, c Cache, key string, v interface{}) {
	data, err := json.Marshal(v)
	if err != nil {
		return
	}
	c.Set(ctx, key, data)
}
