package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/stacktrader/server/internal/resource"
)

// Client reads and writes JSON components of entities in one namespace.
type Client struct {
	kv KV
	ns string
}

func NewClient(kv KV, ns string) *Client {
	return &Client{kv: kv, ns: ns}
}

// Namespace returns the rid namespace the client addresses.
func (c *Client) Namespace() string { return c.ns }

// KV exposes the backend for callers that work with raw keys.
func (c *Client) KV() KV { return c.kv }

// Key returns the store key of a component.
func (c *Client) Key(shard, entity, component string) string {
	return resource.Key(c.ns, shard, entity, component)
}

// Get decodes a component into dst. found is false when the component does
// not exist; dst is left untouched in that case.
func (c *Client) Get(ctx context.Context, shard, entity, component string, dst any) (bool, error) {
	return c.GetKey(ctx, c.Key(shard, entity, component), dst)
}

// GetKey decodes the value stored under key into dst.
func (c *Client) GetKey(ctx context.Context, key string, dst any) (bool, error) {
	raw, found, err := c.kv.Get(ctx, key)
	if err != nil {
		return false, fmt.Errorf("%w: get %s: %v", ErrStoreUnavailable, key, err)
	}
	if !found {
		return false, nil
	}
	if err := json.Unmarshal([]byte(raw), dst); err != nil {
		return false, fmt.Errorf("%w: %s: %v", ErrDecode, key, err)
	}
	return true, nil
}

// Set encodes v and stores it as a component.
func (c *Client) Set(ctx context.Context, shard, entity, component string, v any) error {
	return c.SetKey(ctx, c.Key(shard, entity, component), v)
}

// SetKey encodes v and stores it under key.
func (c *Client) SetKey(ctx context.Context, key string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	if err := c.kv.Set(ctx, key, string(raw)); err != nil {
		return fmt.Errorf("%w: set %s: %v", ErrStoreUnavailable, key, err)
	}
	return nil
}

// Exists reports whether the component is present.
func (c *Client) Exists(ctx context.Context, shard, entity, component string) (bool, error) {
	return c.ExistsKey(ctx, c.Key(shard, entity, component))
}

// ExistsKey reports whether a value is stored under key.
func (c *Client) ExistsKey(ctx context.Context, key string) (bool, error) {
	ok, err := c.kv.Exists(ctx, key)
	if err != nil {
		return false, fmt.Errorf("%w: exists %s: %v", ErrStoreUnavailable, key, err)
	}
	return ok, nil
}

// ListMembers returns the member keys of a collection in order. A missing
// collection yields an empty list.
func (c *Client) ListMembers(ctx context.Context, collectionKey string) ([]string, error) {
	members, err := c.kv.Members(ctx, collectionKey)
	if err != nil {
		return nil, fmt.Errorf("%w: members %s: %v", ErrStoreUnavailable, collectionKey, err)
	}
	return members, nil
}
