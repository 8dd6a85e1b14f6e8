// Package radar keeps every observer's radar_contacts collection in step
// with the entities inside its receiver radius.
package radar

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/ErikKalkoken/go-set"
	"github.com/stacktrader/server/internal/component"
	"github.com/stacktrader/server/internal/geometry"
)

// ErrPublish is returned when a contact delta could not be sent.
var ErrPublish = errors.New("publish contact delta")

// DeltaKind is the operation a Delta asks the gateway to perform.
type DeltaKind int

const (
	DeltaAdd DeltaKind = iota
	DeltaRemove
	DeltaChange
)

func (k DeltaKind) String() string {
	switch k {
	case DeltaAdd:
		return "add"
	case DeltaRemove:
		return "remove"
	case DeltaChange:
		return "change"
	default:
		return fmt.Sprintf("DeltaKind(%d)", int(k))
	}
}

// Observation is one observer as seen at the start of a tick.
type Observation struct {
	RID      string
	Position component.Position
	Radius   float64
}

// Contact is a stored contact together with the slot rid it lives under.
type Contact struct {
	Slot string
	component.RadarContact
}

// Delta is one change to an observer's contact collection. Slot is empty
// for DeltaAdd; the gateway assigns it when the contact is created.
type Delta struct {
	Kind    DeltaKind
	Slot    string
	Contact component.RadarContact
}

// Result is the outcome of one reconciliation pass.
type Result struct {
	Deltas []Delta
	// Despawned lists entity rids whose transponder is gone. The caller
	// evicts them from the position cache once the deltas are out.
	Despawned []string
	// Stale counts previous contacts whose target was not in the snapshot.
	Stale int
}

// TransponderChecker reports whether an entity still carries a transponder.
type TransponderChecker interface {
	HasTransponder(ctx context.Context, entityRID string) (bool, error)
}

// Reconcile merges the observer's previous contacts with the entities in
// snapshot. Candidates are visited in rid order so the delta sequence is
// deterministic. The transponder is only consulted for entities that were
// already contacts, and a Change is only emitted when the recomputed
// contact differs from the stored one, so a pass over unchanged positions
// produces no deltas.
func Reconcile(ctx context.Context, obs Observation, previous []Contact, snapshot map[string]component.Position, checker TransponderChecker) (Result, error) {
	byEntity := make(map[string]Contact, len(previous))
	for _, c := range previous {
		if _, dup := byEntity[c.EntityID]; dup {
			continue
		}
		byEntity[c.EntityID] = c
	}

	ids := make([]string, 0, len(snapshot))
	for id := range snapshot {
		if id != obs.RID {
			ids = append(ids, id)
		}
	}
	slices.Sort(ids)

	origin := obs.Position.Point()
	seen := set.New[string]()
	var res Result
	for _, id := range ids {
		pos := snapshot[id]
		inRange := geometry.WithinRadius(origin, pos.Point(), obs.Radius)

		prev, known := byEntity[id]
		if !known {
			if inRange {
				res.Deltas = append(res.Deltas, Delta{
					Kind:    DeltaAdd,
					Contact: component.NewRadarContact(id, obs.Position, pos),
				})
			}
			continue
		}
		seen.Add(id)

		alive, err := checker.HasTransponder(ctx, id)
		if err != nil {
			return res, fmt.Errorf("transponder of %s: %w", id, err)
		}
		switch {
		case !alive:
			res.Deltas = append(res.Deltas, Delta{Kind: DeltaRemove, Slot: prev.Slot, Contact: prev.RadarContact})
			res.Despawned = append(res.Despawned, id)
		case inRange:
			next := component.NewRadarContact(id, obs.Position, pos)
			if next == prev.RadarContact {
				continue
			}
			res.Deltas = append(res.Deltas, Delta{Kind: DeltaChange, Slot: prev.Slot, Contact: next})
		default:
			res.Deltas = append(res.Deltas, Delta{Kind: DeltaRemove, Slot: prev.Slot, Contact: prev.RadarContact})
		}
	}

	for id := range byEntity {
		if !seen.Contains(id) {
			res.Stale++
		}
	}
	return res, nil
}
