package radar

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"testing"

	"github.com/ErikKalkoken/go-set"
	"github.com/stacktrader/server/internal/component"
	"github.com/stacktrader/server/internal/geometry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	observerRID = "decs.components.s1.observer"
	asteroidRID = "decs.components.s1.asteroid"
	shipRID     = "decs.components.s1.ship"
	moneyRID    = "decs.components.s1.money"
)

// transponders is a TransponderChecker backed by a set of live rids.
type transponders struct {
	live set.Set[string]
	err  error
}

func (t transponders) HasTransponder(_ context.Context, rid string) (bool, error) {
	if t.err != nil {
		return false, t.err
	}
	return t.live.Contains(rid), nil
}

func allAlive(rids ...string) transponders {
	return transponders{live: set.Of(rids...)}
}

func origin() component.Position { return component.Position{} }

func at(x, y, z float64) component.Position { return component.Position{X: x, Y: y, Z: z} }

func observer() Observation {
	return Observation{RID: observerRID, Position: origin(), Radius: 5}
}

func contactFor(slot, target string, pos component.Position) Contact {
	return Contact{Slot: slot, RadarContact: component.NewRadarContact(target, origin(), pos)}
}

func entityIDs(deltas []Delta, kind DeltaKind) set.Set[string] {
	s := set.New[string]()
	for _, d := range deltas {
		if d.Kind == kind {
			s.Add(d.Contact.EntityID)
		}
	}
	return s
}

func TestReconcileScenarios(t *testing.T) {
	ctx := context.Background()

	t.Run("first pass adds everything in range", func(t *testing.T) {
		snapshot := map[string]component.Position{
			observerRID: origin(),
			asteroidRID: origin(),
			shipRID:     origin(),
			moneyRID:    at(500, 0, 0),
		}
		res, err := Reconcile(ctx, observer(), nil, snapshot, allAlive(asteroidRID, shipRID, moneyRID))
		require.NoError(t, err)
		require.Len(t, res.Deltas, 2)
		assert.Equal(t, set.Of(asteroidRID, shipRID), entityIDs(res.Deltas, DeltaAdd))
		for _, d := range res.Deltas {
			assert.Empty(t, d.Slot)
			assert.Equal(t, d.Contact.EntityID+".radar_transponder", d.Contact.Transponder.RID)
		}
		assert.Empty(t, res.Despawned)
	})
	t.Run("contacts out of range are removed", func(t *testing.T) {
		previous := []Contact{
			contactFor(observerRID+".radar_contacts.a1", asteroidRID, origin()),
			contactFor(observerRID+".radar_contacts.s1", shipRID, origin()),
		}
		snapshot := map[string]component.Position{
			asteroidRID: at(500, 0, 0),
			shipRID:     at(0, 500, 0),
		}
		res, err := Reconcile(ctx, observer(), previous, snapshot, allAlive(asteroidRID, shipRID))
		require.NoError(t, err)
		require.Len(t, res.Deltas, 2)
		assert.Equal(t, set.Of(asteroidRID, shipRID), entityIDs(res.Deltas, DeltaRemove))
		slots := set.New[string]()
		for _, d := range res.Deltas {
			slots.Add(d.Slot)
		}
		assert.Equal(t, set.Of(observerRID+".radar_contacts.a1", observerRID+".radar_contacts.s1"), slots)
		assert.Empty(t, res.Despawned)
	})
	t.Run("contact without transponder is removed and reported despawned", func(t *testing.T) {
		previous := []Contact{contactFor("slot-1", asteroidRID, at(1, 1, 1))}
		snapshot := map[string]component.Position{asteroidRID: at(1, 1, 1)}
		res, err := Reconcile(ctx, observer(), previous, snapshot, allAlive())
		require.NoError(t, err)
		require.Len(t, res.Deltas, 1)
		assert.Equal(t, DeltaRemove, res.Deltas[0].Kind)
		assert.Equal(t, "slot-1", res.Deltas[0].Slot)
		assert.Equal(t, []string{asteroidRID}, res.Despawned)
	})
	t.Run("moved contact is changed in place", func(t *testing.T) {
		previous := []Contact{contactFor("slot-1", shipRID, at(1, 0, 0))}
		snapshot := map[string]component.Position{shipRID: at(0, 3, 0)}
		res, err := Reconcile(ctx, observer(), previous, snapshot, allAlive(shipRID))
		require.NoError(t, err)
		require.Len(t, res.Deltas, 1)
		d := res.Deltas[0]
		assert.Equal(t, DeltaChange, d.Kind)
		assert.Equal(t, "slot-1", d.Slot)
		assert.Equal(t, uint32(3), d.Contact.Distance)
		assert.InDelta(t, 90.0, d.Contact.Azimuth, 1e-9)
	})
	t.Run("unchanged contact yields nothing", func(t *testing.T) {
		previous := []Contact{contactFor("slot-1", shipRID, at(1, 2, 2))}
		snapshot := map[string]component.Position{shipRID: at(1, 2, 2)}
		res, err := Reconcile(ctx, observer(), previous, snapshot, allAlive(shipRID))
		require.NoError(t, err)
		assert.Empty(t, res.Deltas)
	})
	t.Run("contact absent from snapshot is left alone", func(t *testing.T) {
		previous := []Contact{contactFor("slot-1", shipRID, at(1, 0, 0))}
		res, err := Reconcile(ctx, observer(), previous, map[string]component.Position{}, allAlive())
		require.NoError(t, err)
		assert.Empty(t, res.Deltas)
		assert.Empty(t, res.Despawned)
		assert.Equal(t, 1, res.Stale)
	})
	t.Run("entity out of range and unknown is ignored", func(t *testing.T) {
		snapshot := map[string]component.Position{moneyRID: at(5.0001, 0, 0)}
		res, err := Reconcile(ctx, observer(), nil, snapshot, allAlive(moneyRID))
		require.NoError(t, err)
		assert.Empty(t, res.Deltas)
	})
	t.Run("entity on the radius is in range", func(t *testing.T) {
		snapshot := map[string]component.Position{moneyRID: at(3, 4, 0)}
		res, err := Reconcile(ctx, observer(), nil, snapshot, allAlive(moneyRID))
		require.NoError(t, err)
		assert.Equal(t, set.Of(moneyRID), entityIDs(res.Deltas, DeltaAdd))
	})
	t.Run("mixed pass", func(t *testing.T) {
		previous := []Contact{
			contactFor("slot-a", asteroidRID, at(1, 0, 0)),
			contactFor("slot-s", shipRID, at(2, 0, 0)),
		}
		snapshot := map[string]component.Position{
			asteroidRID: at(1, 0, 0),
			shipRID:     at(50, 0, 0),
			moneyRID:    at(0, 0, 4),
		}
		res, err := Reconcile(ctx, observer(), previous, snapshot, allAlive(asteroidRID, shipRID, moneyRID))
		require.NoError(t, err)
		require.Len(t, res.Deltas, 2)
		assert.Equal(t, set.Of(moneyRID), entityIDs(res.Deltas, DeltaAdd))
		assert.Equal(t, set.Of(shipRID), entityIDs(res.Deltas, DeltaRemove))
	})
	t.Run("duplicate contacts for one target only touch the first", func(t *testing.T) {
		previous := []Contact{
			contactFor("slot-1", shipRID, at(1, 0, 0)),
			contactFor("slot-2", shipRID, at(1, 0, 0)),
		}
		snapshot := map[string]component.Position{shipRID: at(100, 0, 0)}
		res, err := Reconcile(ctx, observer(), previous, snapshot, allAlive(shipRID))
		require.NoError(t, err)
		require.Len(t, res.Deltas, 1)
		assert.Equal(t, "slot-1", res.Deltas[0].Slot)
	})
	t.Run("checker failure aborts the pass", func(t *testing.T) {
		boom := errors.New("boom")
		previous := []Contact{contactFor("slot-1", shipRID, at(1, 0, 0))}
		snapshot := map[string]component.Position{shipRID: at(1, 0, 0)}
		_, err := Reconcile(ctx, observer(), previous, snapshot, transponders{err: boom})
		assert.ErrorIs(t, err, boom)
	})
}

func TestReconcileFromEmptyAddsExactlyInRange(t *testing.T) {
	ctx := context.Background()
	rng := rand.New(rand.NewSource(7))
	for round := range 20 {
		obs := Observation{
			RID:      observerRID,
			Position: at(rng.Float64()*100, rng.Float64()*100, rng.Float64()*100),
			Radius:   rng.Float64() * 60,
		}
		snapshot := map[string]component.Position{obs.RID: obs.Position}
		want := set.New[string]()
		for i := range 50 {
			rid := fmt.Sprintf("decs.components.s1.e%d", i)
			pos := at(rng.Float64()*100, rng.Float64()*100, rng.Float64()*100)
			snapshot[rid] = pos
			if geometry.Distance3D(obs.Position.Point(), pos.Point()) <= obs.Radius {
				want.Add(rid)
			}
		}
		res, err := Reconcile(ctx, obs, nil, snapshot, allAlive())
		require.NoError(t, err)
		assert.Len(t, res.Deltas, want.Size(), "round %d", round)
		assert.Equal(t, want, entityIDs(res.Deltas, DeltaAdd), "round %d", round)
	}
}

func TestReconcileReachesFixedPoint(t *testing.T) {
	ctx := context.Background()
	snapshot := map[string]component.Position{
		observerRID: origin(),
		asteroidRID: at(1, 2, 3),
		shipRID:     at(-2, 0.5, 1),
		moneyRID:    at(40, 0, 0),
	}
	checker := allAlive(asteroidRID, shipRID, moneyRID)
	previous := []Contact{contactFor("slot-m", moneyRID, at(1, 0, 0))}

	for pass := range 2 {
		res, err := Reconcile(ctx, observer(), previous, snapshot, checker)
		require.NoError(t, err)
		if pass == 1 {
			assert.Empty(t, res.Deltas)
			return
		}
		require.NotEmpty(t, res.Deltas)
		previous = apply(previous, res.Deltas)
	}
}

// apply mimics the gateway applying deltas to a contact collection.
func apply(contacts []Contact, deltas []Delta) []Contact {
	for i, d := range deltas {
		switch d.Kind {
		case DeltaAdd:
			contacts = append(contacts, Contact{Slot: fmt.Sprintf("slot-new-%d", i), RadarContact: d.Contact})
		case DeltaRemove:
			for j, c := range contacts {
				if c.Slot == d.Slot {
					contacts = append(contacts[:j], contacts[j+1:]...)
					break
				}
			}
		case DeltaChange:
			for j, c := range contacts {
				if c.Slot == d.Slot {
					contacts[j].RadarContact = d.Contact
				}
			}
		}
	}
	return contacts
}
