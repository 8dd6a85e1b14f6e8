package radar

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stacktrader/server/internal/component"
	"github.com/stacktrader/server/internal/dispatch"
	"github.com/stacktrader/server/internal/net"
	"github.com/stacktrader/server/internal/resource"
	"github.com/stacktrader/server/internal/store"
	"github.com/stacktrader/server/internal/world"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fixture struct {
	kv    *store.Memory
	store *store.Client
	bus   *net.Local
	cache *world.Positions
	sys   *System
	calls []*net.Msg
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		kv:    store.NewMemory(),
		bus:   net.NewLocal(),
		cache: world.NewPositions(),
	}
	f.store = store.NewClient(f.kv, "decs")
	f.sys = NewSystem(f.store, f.bus, f.cache, zap.NewNop())
	_, err := f.bus.Subscribe("call.>", "", func(m *net.Msg) { f.calls = append(f.calls, m) })
	require.NoError(t, err)
	return f
}

func (f *fixture) set(t *testing.T, entity, comp string, v any) {
	t.Helper()
	require.NoError(t, f.store.Set(context.Background(), "s1", entity, comp, v))
}

func (f *fixture) addContact(t *testing.T, observer, slot string, c component.RadarContact) string {
	t.Helper()
	ctx := context.Background()
	collection := f.store.Key("s1", observer, component.NameRadarContacts)
	key := collection + ":" + slot
	require.NoError(t, f.store.SetKey(ctx, key, c))
	_, err := f.kv.AddMember(ctx, collection, key)
	require.NoError(t, err)
	return resource.ToRID(key)
}

func (f *fixture) frame(t *testing.T, entity string) error {
	t.Helper()
	err := f.sys.HandleFrame(context.Background(), dispatch.EntityFrame{Shard: "s1", EntityID: entity, ElapsedMS: 1000})
	f.bus.Flush()
	return err
}

func (f *fixture) observer(t *testing.T) {
	f.set(t, "observer", component.NamePosition, component.Position{})
	f.set(t, "observer", component.NameRadarReceiver, component.RadarReceiver{Radius: 5})
}

func decodeParams(t *testing.T, m *net.Msg, dst any) {
	t.Helper()
	var call resource.Call
	require.NoError(t, json.Unmarshal(m.Data, &call))
	require.NoError(t, json.Unmarshal(call.Params, dst))
}

func TestHandleFrame(t *testing.T) {
	t.Run("publishes new contacts", func(t *testing.T) {
		f := newFixture(t)
		f.observer(t)
		f.cache.Put(asteroidRID, component.Position{X: 1})
		f.cache.Put(moneyRID, component.Position{X: 500})

		require.NoError(t, f.frame(t, "observer"))
		require.Len(t, f.calls, 1)
		assert.Equal(t, "call.decs.components.s1.observer.radar_contacts.new", f.calls[0].Subject)
		var c component.RadarContact
		decodeParams(t, f.calls[0], &c)
		assert.Equal(t, asteroidRID, c.EntityID)
		assert.Equal(t, uint32(1), c.Distance)
		assert.Equal(t, resource.Reference{RID: asteroidRID + ".radar_transponder"}, c.Transponder)
	})
	t.Run("removes contacts out of range", func(t *testing.T) {
		f := newFixture(t)
		f.observer(t)
		f.set(t, "ship", component.NameTransponder, component.Transponder{ObjectType: "ship"})
		slot := f.addContact(t, "observer", "abc", component.NewRadarContact(shipRID, component.Position{}, component.Position{X: 1}))
		f.cache.Put(shipRID, component.Position{X: 500})

		require.NoError(t, f.frame(t, "observer"))
		require.Len(t, f.calls, 1)
		assert.Equal(t, "call.decs.components.s1.observer.radar_contacts.delete", f.calls[0].Subject)
		var p resource.DeleteParams
		decodeParams(t, f.calls[0], &p)
		assert.Equal(t, slot, p.RID)
		assert.Equal(t, 1, f.cache.Len())
	})
	t.Run("updates moved contacts by slot", func(t *testing.T) {
		f := newFixture(t)
		f.observer(t)
		f.set(t, "ship", component.NameTransponder, component.Transponder{ObjectType: "ship"})
		slot := f.addContact(t, "observer", "abc", component.NewRadarContact(shipRID, component.Position{}, component.Position{X: 1}))
		f.cache.Put(shipRID, component.Position{X: 2})

		require.NoError(t, f.frame(t, "observer"))
		require.Len(t, f.calls, 1)
		assert.Equal(t, "call."+slot+".set", f.calls[0].Subject)
		var c component.RadarContact
		decodeParams(t, f.calls[0], &c)
		assert.Equal(t, uint32(2), c.Distance)
	})
	t.Run("despawned target is removed and evicted", func(t *testing.T) {
		f := newFixture(t)
		f.observer(t)
		f.addContact(t, "observer", "abc", component.NewRadarContact(asteroidRID, component.Position{}, component.Position{X: 1}))
		f.cache.Put(asteroidRID, component.Position{X: 1})

		require.NoError(t, f.frame(t, "observer"))
		require.Len(t, f.calls, 1)
		assert.Equal(t, "call.decs.components.s1.observer.radar_contacts.delete", f.calls[0].Subject)
		_, ok := f.cache.Get(asteroidRID)
		assert.False(t, ok)
	})
	t.Run("entity without receiver is skipped", func(t *testing.T) {
		f := newFixture(t)
		f.set(t, "rock", component.NamePosition, component.Position{})
		f.cache.Put(asteroidRID, component.Position{})
		require.NoError(t, f.frame(t, "rock"))
		assert.Empty(t, f.calls)
	})
	t.Run("entity without position is skipped", func(t *testing.T) {
		f := newFixture(t)
		f.set(t, "observer", component.NameRadarReceiver, component.RadarReceiver{Radius: 5})
		f.cache.Put(asteroidRID, component.Position{})
		require.NoError(t, f.frame(t, "observer"))
		assert.Empty(t, f.calls)
	})
	t.Run("store failure surfaces", func(t *testing.T) {
		sys := NewSystem(store.NewClient(failingKV{}, "decs"), net.NewLocal(), world.NewPositions(), zap.NewNop())
		err := sys.HandleFrame(context.Background(), dispatch.EntityFrame{Shard: "s1", EntityID: "observer"})
		assert.ErrorIs(t, err, store.ErrStoreUnavailable)
	})
	t.Run("publish failure surfaces", func(t *testing.T) {
		kv := store.NewMemory()
		st := store.NewClient(kv, "decs")
		ctx := context.Background()
		require.NoError(t, st.Set(ctx, "s1", "observer", component.NamePosition, component.Position{}))
		require.NoError(t, st.Set(ctx, "s1", "observer", component.NameRadarReceiver, component.RadarReceiver{Radius: 5}))
		cache := world.NewPositions()
		cache.Put(shipRID, component.Position{X: 1})
		sys := NewSystem(st, failingBus{}, cache, zap.NewNop())
		err := sys.HandleFrame(ctx, dispatch.EntityFrame{Shard: "s1", EntityID: "observer"})
		assert.ErrorIs(t, err, ErrPublish)
	})
}

func TestPositionEvents(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	msg := dispatch.PositionChange{Shard: "s1", Entity: "ship", EntityRID: shipRID}
	require.NoError(t, f.sys.HandlePositionChange(ctx, msg, dispatch.PositionValues{Values: component.Position{X: 4}}))
	require.NoError(t, f.sys.HandlePositionChange(ctx, msg, dispatch.PositionValues{Values: component.Position{X: 7}}))
	pos, ok := f.cache.Get(shipRID)
	require.True(t, ok)
	assert.Equal(t, 7.0, pos.X)

	require.NoError(t, f.sys.HandleTransponderRemoved(ctx, dispatch.TransponderRemoved{EntityRID: shipRID}))
	assert.True(t, f.cache.Removed(shipRID))
	assert.Equal(t, 1, f.cache.Len())

	assert.Equal(t, 0, f.sys.SweepRemoved(time.Now().Add(-time.Minute)))
	assert.Equal(t, 1, f.sys.SweepRemoved(time.Now().Add(time.Minute)))
	assert.Equal(t, 0, f.cache.Len())
}

func TestRemovedEntityIsRetiredByEveryObserver(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	for _, name := range []string{"observer", "other"} {
		f.set(t, name, component.NamePosition, component.Position{})
		f.set(t, name, component.NameRadarReceiver, component.RadarReceiver{Radius: 5})
		f.addContact(t, name, "abc", component.NewRadarContact(shipRID, component.Position{}, component.Position{X: 1}))
	}
	f.set(t, "ship", component.NameTransponder, component.Transponder{ObjectType: "ship"})
	f.cache.Put(shipRID, component.Position{X: 1})
	f.cache.Put(asteroidRID, component.Position{X: 2})
	require.NoError(t, f.sys.HandleTransponderRemoved(ctx, dispatch.TransponderRemoved{EntityRID: shipRID}))

	require.NoError(t, f.frame(t, "observer"))
	require.NoError(t, f.frame(t, "other"))

	deletes := 0
	for _, m := range f.calls {
		if strings.HasSuffix(m.Subject, ".radar_contacts.delete") {
			deletes++
		}
		if strings.HasSuffix(m.Subject, ".radar_contacts.new") {
			var c component.RadarContact
			decodeParams(t, m, &c)
			assert.NotEqual(t, shipRID, c.EntityID)
		}
	}
	assert.Equal(t, 2, deletes)
	assert.True(t, f.cache.Removed(shipRID), "kept until swept")
}

func TestRemovedEntityIsNotAdded(t *testing.T) {
	f := newFixture(t)
	f.observer(t)
	f.cache.Put(shipRID, component.Position{X: 1})
	require.NoError(t, f.sys.HandleTransponderRemoved(context.Background(), dispatch.TransponderRemoved{EntityRID: shipRID}))
	require.NoError(t, f.frame(t, "observer"))
	assert.Empty(t, f.calls)
}

func TestRestoredTransponderIsAddedAgain(t *testing.T) {
	f := newFixture(t)
	f.observer(t)
	ctx := context.Background()
	f.cache.Put(shipRID, component.Position{X: 1})
	require.NoError(t, f.sys.HandleTransponderRemoved(ctx, dispatch.TransponderRemoved{EntityRID: shipRID}))

	f.set(t, "ship", component.NameTransponder, component.Transponder{ObjectType: "ship"})
	require.NoError(t, f.sys.HandleTransponderChanged(ctx, dispatch.TransponderChanged{Shard: "s1", Entity: "ship", EntityRID: shipRID}))
	msg := dispatch.PositionChange{Shard: "s1", Entity: "ship", EntityRID: shipRID}
	require.NoError(t, f.sys.HandlePositionChange(ctx, msg, dispatch.PositionValues{Values: component.Position{X: 2}}))
	assert.False(t, f.cache.Removed(shipRID))

	require.NoError(t, f.frame(t, "observer"))
	require.Len(t, f.calls, 1)
	assert.Equal(t, "call.decs.components.s1.observer.radar_contacts.new", f.calls[0].Subject)

	assert.Equal(t, 0, f.sys.SweepRemoved(time.Now().Add(time.Minute)))
	f.calls = nil
	require.NoError(t, f.frame(t, "observer"))
	require.Len(t, f.calls, 1, "still visible after the sweep")
	var c component.RadarContact
	decodeParams(t, f.calls[0], &c)
	assert.Equal(t, shipRID, c.EntityID)
}

func TestTransponderChangeLoadsSweptPosition(t *testing.T) {
	f := newFixture(t)
	f.observer(t)
	ctx := context.Background()
	f.set(t, "ship", component.NamePosition, component.Position{Y: 3})
	f.cache.Put(shipRID, component.Position{Y: 3})
	require.NoError(t, f.sys.HandleTransponderRemoved(ctx, dispatch.TransponderRemoved{EntityRID: shipRID}))
	require.Equal(t, 1, f.sys.SweepRemoved(time.Now().Add(time.Minute)))

	f.set(t, "ship", component.NameTransponder, component.Transponder{ObjectType: "ship"})
	require.NoError(t, f.sys.HandleTransponderChanged(ctx, dispatch.TransponderChanged{Shard: "s1", Entity: "ship", EntityRID: shipRID}))
	pos, ok := f.cache.Get(shipRID)
	require.True(t, ok)
	assert.Equal(t, 3.0, pos.Y)

	require.NoError(t, f.frame(t, "observer"))
	require.Len(t, f.calls, 1)
	assert.Equal(t, "call.decs.components.s1.observer.radar_contacts.new", f.calls[0].Subject)
}

func TestUndecodableContactIsSkipped(t *testing.T) {
	f := newFixture(t)
	f.observer(t)
	ctx := context.Background()
	collection := f.store.Key("s1", "observer", component.NameRadarContacts)
	bad := collection + ":broken"
	require.NoError(t, f.kv.Set(ctx, bad, "{not json"))
	_, err := f.kv.AddMember(ctx, collection, bad)
	require.NoError(t, err)
	f.cache.Put(asteroidRID, component.Position{X: 1})

	require.NoError(t, f.frame(t, "observer"))
	require.Len(t, f.calls, 1)
	assert.Equal(t, "call.decs.components.s1.observer.radar_contacts.new", f.calls[0].Subject)
}

var errDown = errors.New("down")

type failingKV struct{}

func (failingKV) Get(context.Context, string) (string, bool, error) { return "", false, errDown }
func (failingKV) Set(context.Context, string, string) error         { return errDown }
func (failingKV) Delete(context.Context, string) error              { return errDown }
func (failingKV) Exists(context.Context, string) (bool, error)      { return false, errDown }
func (failingKV) Members(context.Context, string) ([]string, error) { return nil, errDown }
func (failingKV) AddMember(context.Context, string, string) (int, error) {
	return 0, errDown
}
func (failingKV) RemoveMember(context.Context, string, string) (int, error) {
	return 0, errDown
}

type failingBus struct{}

func (failingBus) Publish(string, []byte) error { return errDown }
func (failingBus) PublishMsg(*net.Msg) error    { return errDown }
func (failingBus) Subscribe(string, string, net.Handler) (net.Subscription, error) {
	return nil, errDown
}
