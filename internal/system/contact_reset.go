package system

import (
	"encoding/json"
	"time"

	"github.com/stacktrader/server/internal/component"
	coresys "github.com/stacktrader/server/internal/core/system"
	"github.com/stacktrader/server/internal/net"
	"github.com/stacktrader/server/internal/resource"
	"go.uber.org/zap"
)

// ContactResetSystem asks gateways to refresh every cached radar_contacts
// collection of the configured shards. Phase 1 (Update), every N ticks,
// starting with the first.
type ContactResetSystem struct {
	bus       net.Bus
	resources []string
	every     int
	tickCount int
	log       *zap.Logger
}

func NewContactResetSystem(bus net.Bus, ns string, shards []string, every int, log *zap.Logger) *ContactResetSystem {
	resources := make([]string, 0, len(shards))
	for _, shard := range shards {
		resources = append(resources, resource.ComponentRID(resource.EntityRID(ns, shard, "*"), component.NameRadarContacts))
	}
	return &ContactResetSystem{bus: bus, resources: resources, every: every, log: log}
}

func (s *ContactResetSystem) Phase() coresys.Phase { return coresys.PhaseUpdate }

func (s *ContactResetSystem) Update(_ time.Duration) {
	due := s.tickCount%s.every == 0
	s.tickCount++
	if !due || len(s.resources) == 0 {
		return
	}
	body, err := json.Marshal(resource.ResetEvent{Resources: s.resources})
	if err == nil {
		err = s.bus.Publish(resource.ResetSubject, body)
	}
	if err != nil {
		s.log.Error("contact reset failed", zap.Error(err))
		return
	}
	s.log.Debug("contact reset published", zap.Strings("resources", s.resources))
}
