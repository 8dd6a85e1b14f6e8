package radar

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/stacktrader/server/internal/component"
	"github.com/stacktrader/server/internal/dispatch"
	"github.com/stacktrader/server/internal/net"
	"github.com/stacktrader/server/internal/resource"
	"github.com/stacktrader/server/internal/store"
	"github.com/stacktrader/server/internal/world"
	"go.uber.org/zap"
)

// System is the radar actor. It implements dispatch.Handlers.
type System struct {
	store *store.Client
	bus   net.Bus
	cache *world.Positions
	log   *zap.Logger
}

var _ dispatch.Handlers = (*System)(nil)

func NewSystem(st *store.Client, bus net.Bus, cache *world.Positions, log *zap.Logger) *System {
	return &System{store: st, bus: bus, cache: cache, log: log.Named("radar")}
}

// HandleFrame reconciles the contacts of the entity the frame is for.
// Entities without a receiver or a position are not observers and are
// skipped.
func (s *System) HandleFrame(ctx context.Context, frame dispatch.EntityFrame) error {
	var recv component.RadarReceiver
	found, err := s.store.Get(ctx, frame.Shard, frame.EntityID, component.NameRadarReceiver, &recv)
	if err != nil || !found {
		return err
	}
	var pos component.Position
	found, err = s.store.Get(ctx, frame.Shard, frame.EntityID, component.NamePosition, &pos)
	if err != nil || !found {
		return err
	}

	obs := Observation{
		RID:      resource.EntityRID(s.store.Namespace(), frame.Shard, frame.EntityID),
		Position: pos,
		Radius:   recv.Radius,
	}
	collection := resource.ComponentRID(obs.RID, component.NameRadarContacts)
	previous, err := s.contacts(ctx, collection)
	if err != nil {
		return err
	}

	res, err := Reconcile(ctx, obs, previous, s.snapshot(previous), s)
	if err != nil {
		return err
	}
	for _, d := range res.Deltas {
		if err := s.publish(collection, d); err != nil {
			return err
		}
	}
	for _, rid := range res.Despawned {
		// Entities reported removed stay until swept so other observers
		// can retire their contacts too.
		if !s.cache.Removed(rid) {
			s.cache.Evict(rid)
		}
	}

	if len(res.Deltas) > 0 || res.Stale > 0 {
		s.log.Debug("contacts reconciled",
			zap.String("observer", obs.RID),
			zap.Int("deltas", len(res.Deltas)),
			zap.Int("despawned", len(res.Despawned)),
			zap.Int("stale", res.Stale),
		)
	}
	return nil
}

// HandlePositionChange records the entity's latest position.
func (s *System) HandlePositionChange(_ context.Context, msg dispatch.PositionChange, pos dispatch.PositionValues) error {
	s.cache.Put(msg.EntityRID, pos.Values)
	return nil
}

// HandleTransponderRemoved marks the entity as removed. Observers retire
// their contacts on their next frames; SweepRemoved evicts it afterwards.
func (s *System) HandleTransponderRemoved(_ context.Context, msg dispatch.TransponderRemoved) error {
	if s.cache.MarkRemoved(msg.EntityRID, time.Now()) {
		s.log.Debug("entity marked removed", zap.String("entity", msg.EntityRID))
	}
	return nil
}

// HandleTransponderChanged clears a removed mark once the entity has a
// transponder again. An entity missing from the cache, because it was
// swept or never moved, is loaded from its stored position.
func (s *System) HandleTransponderChanged(ctx context.Context, msg dispatch.TransponderChanged) error {
	if s.cache.Restore(msg.EntityRID) {
		s.log.Debug("entity restored", zap.String("entity", msg.EntityRID))
	}
	if _, ok := s.cache.Get(msg.EntityRID); ok {
		return nil
	}
	var pos component.Position
	found, err := s.store.Get(ctx, msg.Shard, msg.Entity, component.NamePosition, &pos)
	if err != nil || !found {
		return err
	}
	s.cache.Put(msg.EntityRID, pos)
	return nil
}

// SweepRemoved evicts entities marked removed before cutoff.
func (s *System) SweepRemoved(cutoff time.Time) int {
	evicted := s.cache.Sweep(cutoff)
	if len(evicted) > 0 {
		s.log.Debug("removed entities evicted", zap.Strings("entities", evicted))
	}
	return len(evicted)
}

// HasTransponder implements TransponderChecker. Entities marked removed are
// answered from the cache; everything else is looked up in the store.
func (s *System) HasTransponder(ctx context.Context, entityRID string) (bool, error) {
	if s.cache.Removed(entityRID) {
		return false, nil
	}
	return s.store.ExistsKey(ctx, resource.ToKey(resource.ComponentRID(entityRID, component.NameTransponder)))
}

// snapshot copies the cache, leaving out removed entities the observer has
// no contact for so they are never added.
func (s *System) snapshot(previous []Contact) map[string]component.Position {
	snap := s.cache.Snapshot()
	known := make(map[string]struct{}, len(previous))
	for _, c := range previous {
		known[c.EntityID] = struct{}{}
	}
	for rid := range snap {
		if _, ok := known[rid]; !ok && s.cache.Removed(rid) {
			delete(snap, rid)
		}
	}
	return snap
}

// contacts loads the stored members of a contact collection. A member whose
// value has vanished since it was listed, or does not decode, is skipped.
func (s *System) contacts(ctx context.Context, collection string) ([]Contact, error) {
	members, err := s.store.ListMembers(ctx, resource.ToKey(collection))
	if err != nil {
		return nil, err
	}
	out := make([]Contact, 0, len(members))
	for _, key := range members {
		var c Contact
		found, err := s.store.GetKey(ctx, key, &c.RadarContact)
		if errors.Is(err, store.ErrDecode) {
			s.log.Warn("skipping undecodable contact", zap.String("key", key), zap.Error(err))
			continue
		}
		if err != nil {
			return nil, err
		}
		if !found {
			continue
		}
		c.Slot = resource.ToRID(key)
		out = append(out, c)
	}
	return out, nil
}

func (s *System) publish(collection string, d Delta) error {
	var (
		req    resource.Request
		params any
	)
	switch d.Kind {
	case DeltaAdd:
		req, params = resource.New(collection), d.Contact
	case DeltaRemove:
		req, params = resource.Delete(collection), resource.DeleteParams{RID: d.Slot}
	case DeltaChange:
		req, params = resource.Set(d.Slot), d.Contact
	default:
		return fmt.Errorf("%w: unknown delta %v", ErrPublish, d.Kind)
	}
	body, err := resource.CallWith(params)
	if err != nil {
		return fmt.Errorf("%w: encode %s: %v", ErrPublish, req, err)
	}
	if err := s.bus.Publish(req.Subject(), body); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrPublish, req, err)
	}
	return nil
}
