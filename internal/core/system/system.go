package system

import "time"

// Phase defines execution ordering within a single tick.
type Phase int

const (
	PhaseInput   Phase = iota // 0: deliver queued bus messages
	PhaseUpdate               // 1: periodic publishers
	PhaseCleanup              // 2: cache housekeeping
)

// System is a periodic task driven by the Runner.
type System interface {
	Phase() Phase
	Update(dt time.Duration)
}
