package system

import (
	"time"

	coresys "github.com/stacktrader/server/internal/core/system"
	"github.com/stacktrader/server/internal/net"
)

// BusDrainSystem delivers the messages queued on an in-process bus.
// Only used when actors share one process. Phase 0 (Input).
type BusDrainSystem struct {
	bus       *net.Local
	maxRounds int
}

func NewBusDrainSystem(bus *net.Local, maxRounds int) *BusDrainSystem {
	return &BusDrainSystem{bus: bus, maxRounds: maxRounds}
}

func (s *BusDrainSystem) Phase() coresys.Phase { return coresys.PhaseInput }

func (s *BusDrainSystem) Update(_ time.Duration) {
	s.bus.Drain(s.maxRounds)
}
