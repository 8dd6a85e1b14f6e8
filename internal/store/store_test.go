package store

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// brokenKV fails every call.
type brokenKV struct{}

var errDown = errors.New("connection refused")

func (brokenKV) Get(context.Context, string) (string, bool, error) { return "", false, errDown }
func (brokenKV) Set(context.Context, string, string) error         { return errDown }
func (brokenKV) Delete(context.Context, string) error              { return errDown }
func (brokenKV) Exists(context.Context, string) (bool, error)      { return false, errDown }
func (brokenKV) Members(context.Context, string) ([]string, error) { return nil, errDown }
func (brokenKV) AddMember(context.Context, string, string) (int, error) {
	return 0, errDown
}
func (brokenKV) RemoveMember(context.Context, string, string) (int, error) {
	return 0, errDown
}

func TestClient(t *testing.T) {
	ctx := context.Background()
	c := NewClient(NewMemory(), "decs")

	t.Run("set then get", func(t *testing.T) {
		require.NoError(t, c.Set(ctx, "s1", "ship", "position", point{1, 2, 3}))
		var got point
		found, err := c.Get(ctx, "s1", "ship", "position", &got)
		require.NoError(t, err)
		assert.True(t, found)
		assert.Equal(t, point{1, 2, 3}, got)
		assert.Equal(t, "decs:components:s1:ship:position", c.Key("s1", "ship", "position"))
	})
	t.Run("absent is not an error", func(t *testing.T) {
		var got point
		found, err := c.Get(ctx, "s1", "ghost", "position", &got)
		assert.NoError(t, err)
		assert.False(t, found)
		ok, err := c.Exists(ctx, "s1", "ghost", "position")
		assert.NoError(t, err)
		assert.False(t, ok)
	})
	t.Run("exists", func(t *testing.T) {
		ok, err := c.Exists(ctx, "s1", "ship", "position")
		assert.NoError(t, err)
		assert.True(t, ok)
	})
	t.Run("list members of missing collection", func(t *testing.T) {
		m, err := c.ListMembers(ctx, "decs:components:s1:ship:radar_contacts")
		assert.NoError(t, err)
		assert.Empty(t, m)
	})
	t.Run("undecodable value", func(t *testing.T) {
		kv := NewMemory()
		require.NoError(t, kv.Set(ctx, "decs:components:s1:ship:position", "{not json"))
		var got point
		_, err := NewClient(kv, "decs").Get(ctx, "s1", "ship", "position", &got)
		assert.ErrorIs(t, err, ErrDecode)
		assert.NotErrorIs(t, err, ErrStoreUnavailable)
	})
	t.Run("backend failures are wrapped", func(t *testing.T) {
		bad := NewClient(brokenKV{}, "decs")
		var got point
		_, err := bad.Get(ctx, "s1", "ship", "position", &got)
		assert.ErrorIs(t, err, ErrStoreUnavailable)
		_, err = bad.Exists(ctx, "s1", "ship", "position")
		assert.ErrorIs(t, err, ErrStoreUnavailable)
		_, err = bad.ListMembers(ctx, "k")
		assert.ErrorIs(t, err, ErrStoreUnavailable)
		assert.ErrorIs(t, bad.Set(ctx, "s1", "ship", "position", point{}), ErrStoreUnavailable)
	})
}

func TestMemoryMembers(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	const coll = "decs:components:s1:ship:radar_contacts"

	for i, member := range []string{"a", "b", "c"} {
		idx, err := m.AddMember(ctx, coll, coll+":"+member)
		require.NoError(t, err)
		assert.Equal(t, i, idx)
	}
	idx, err := m.AddMember(ctx, coll, coll+":b")
	require.NoError(t, err)
	assert.Equal(t, 1, idx, "re-adding keeps the original position")

	idx, err = m.RemoveMember(ctx, coll, coll+":b")
	require.NoError(t, err)
	assert.Equal(t, 1, idx)

	idx, err = m.RemoveMember(ctx, coll, coll+":zz")
	require.NoError(t, err)
	assert.Equal(t, -1, idx)

	got, err := m.Members(ctx, coll)
	require.NoError(t, err)
	assert.Equal(t, []string{coll + ":a", coll + ":c"}, got)

	ok, err := m.Exists(ctx, coll)
	require.NoError(t, err)
	assert.True(t, ok)
}
