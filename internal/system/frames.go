package system

import (
	"context"
	"encoding/json"
	"time"

	coresys "github.com/stacktrader/server/internal/core/system"
	"github.com/stacktrader/server/internal/dispatch"
	"github.com/stacktrader/server/internal/net"
	"github.com/stacktrader/server/internal/resource"
	"github.com/stacktrader/server/internal/store"
	"go.uber.org/zap"
)

// FrameSystem publishes one frame per entity to a system actor at the
// actor's framerate. Only entities carrying every declared component get a
// frame. Phase 1 (Update).
type FrameSystem struct {
	store    *store.Client
	bus      net.Bus
	reg      dispatch.Registration
	shards   []string
	interval time.Duration
	elapsed  time.Duration
	log      *zap.Logger
}

func NewFrameSystem(st *store.Client, bus net.Bus, reg dispatch.Registration, shards []string, log *zap.Logger) *FrameSystem {
	interval := time.Second
	if reg.Framerate > 0 {
		interval = time.Second / time.Duration(reg.Framerate)
	}
	return &FrameSystem{
		store:    st,
		bus:      bus,
		reg:      reg,
		shards:   shards,
		interval: interval,
		log:      log,
	}
}

func (s *FrameSystem) Phase() coresys.Phase { return coresys.PhaseUpdate }

func (s *FrameSystem) Update(dt time.Duration) {
	s.elapsed += dt
	if s.elapsed < s.interval {
		return
	}
	elapsed := s.elapsed
	s.elapsed = 0

	ctx := context.Background()
	for _, shard := range s.shards {
		n, err := s.emitShard(ctx, shard, elapsed)
		if err != nil {
			s.log.Error("frame emission failed", zap.String("shard", shard), zap.String("system", s.reg.Name), zap.Error(err))
			continue
		}
		if n > 0 {
			s.log.Debug("frames emitted", zap.String("shard", shard), zap.String("system", s.reg.Name), zap.Int("entities", n))
		}
	}
}

func (s *FrameSystem) emitShard(ctx context.Context, shard string, elapsed time.Duration) (int, error) {
	entities, err := s.store.ListMembers(ctx, resource.ShardIndexKey(s.store.Namespace(), shard))
	if err != nil {
		return 0, err
	}
	subject := s.store.Namespace() + ".frames." + shard + "." + s.reg.Name
	n := 0
	for _, entity := range entities {
		ok, err := s.hasComponents(ctx, shard, entity)
		if err != nil {
			return n, err
		}
		if !ok {
			continue
		}
		body, err := json.Marshal(dispatch.EntityFrame{Shard: shard, EntityID: entity, ElapsedMS: uint32(elapsed.Milliseconds())})
		if err != nil {
			return n, err
		}
		if err := s.bus.Publish(subject, body); err != nil {
			return n, err
		}
		n++
	}
	return n, nil
}

func (s *FrameSystem) hasComponents(ctx context.Context, shard, entity string) (bool, error) {
	for _, comp := range s.reg.Components {
		ok, err := s.store.Exists(ctx, shard, entity, comp)
		if err != nil || !ok {
			return false, err
		}
	}
	return true, nil
}
