package world

import (
	"maps"
	"sync"
	"time"

	"github.com/stacktrader/server/internal/component"
)

// Positions is the last known position of every entity that has reported
// one, keyed by entity rid. Position-change handlers write, frame handlers
// read. Entries are replaced wholesale; there is no cross-entry atomicity.
//
// An entity reported as removed keeps its entry, marked, until Sweep drops
// it, so every observer still sees it and can retire its contact.
type Positions struct {
	mu      sync.RWMutex
	entries map[string]component.Position
	removed map[string]time.Time
}

func NewPositions() *Positions {
	return &Positions{
		entries: make(map[string]component.Position, 1024),
		removed: make(map[string]time.Time),
	}
}

// Put records pos as the latest position of rid. Last write wins.
func (p *Positions) Put(rid string, pos component.Position) {
	p.mu.Lock()
	p.entries[rid] = pos
	p.mu.Unlock()
}

// Get returns the cached position of rid.
func (p *Positions) Get(rid string) (component.Position, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	pos, ok := p.entries[rid]
	return pos, ok
}

// Evict drops rid. Reports whether an entry was removed.
func (p *Positions) Evict(rid string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.entries[rid]; !ok {
		return false
	}
	delete(p.entries, rid)
	delete(p.removed, rid)
	return true
}

// MarkRemoved flags a cached rid as removed at the given time. Reports
// whether rid was cached.
func (p *Positions) MarkRemoved(rid string, at time.Time) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.entries[rid]; !ok {
		return false
	}
	if _, ok := p.removed[rid]; !ok {
		p.removed[rid] = at
	}
	return true
}

// Restore clears the removed flag of rid. Reports whether it was set.
func (p *Positions) Restore(rid string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.removed[rid]; !ok {
		return false
	}
	delete(p.removed, rid)
	return true
}

// Removed reports whether rid is flagged as removed.
func (p *Positions) Removed(rid string) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	_, ok := p.removed[rid]
	return ok
}

// Sweep evicts entries flagged as removed before cutoff and returns their
// rids.
func (p *Positions) Sweep(cutoff time.Time) []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	var evicted []string
	for rid, at := range p.removed {
		if at.Before(cutoff) {
			delete(p.entries, rid)
			delete(p.removed, rid)
			evicted = append(evicted, rid)
		}
	}
	return evicted
}

// Snapshot copies the cache under the read lock. The copy reflects whatever
// writes had completed when the lock was taken.
func (p *Positions) Snapshot() map[string]component.Position {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return maps.Clone(p.entries)
}

// Len returns the number of cached entities.
func (p *Positions) Len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.entries)
}
