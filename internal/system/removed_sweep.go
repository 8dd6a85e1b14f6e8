package system

import (
	"time"

	coresys "github.com/stacktrader/server/internal/core/system"
)

// Sweeper evicts cache entries flagged as removed before a cutoff.
type Sweeper interface {
	SweepRemoved(cutoff time.Time) int
}

// RemovedSweepSystem drops removed entities from the position cache once
// they have been flagged for longer than ttl. Phase 2 (Cleanup).
type RemovedSweepSystem struct {
	sweeper Sweeper
	ttl     time.Duration
	now     func() time.Time
}

func NewRemovedSweepSystem(sweeper Sweeper, ttl time.Duration) *RemovedSweepSystem {
	return &RemovedSweepSystem{sweeper: sweeper, ttl: ttl, now: time.Now}
}

func (s *RemovedSweepSystem) Phase() coresys.Phase { return coresys.PhaseCleanup }

func (s *RemovedSweepSystem) Update(_ time.Duration) {
	s.sweeper.SweepRemoved(s.now().Add(-s.ttl))
}
