package component

import (
	"github.com/stacktrader/server/internal/geometry"
	"github.com/stacktrader/server/internal/resource"
)

// RadarReceiver marks an entity as an observer. Contacts are tracked for
// every transponder within Radius.
type RadarReceiver struct {
	Radius float64 `json:"radius"`
}

// Transponder marks an entity as discoverable. An entity without one is
// treated as despawned by the radar.
type Transponder struct {
	ObjectType  string `json:"object_type"`
	DisplayName string `json:"display_name"`
	Color       string `json:"color"`
}

// RadarContact is one entry of an observer's radar_contacts collection.
// EntityID is the rid of the observed entity; the slot rid the contact is
// stored under is unrelated to it.
type RadarContact struct {
	EntityID    string             `json:"entity_id"`
	Distance    uint32             `json:"distance"`
	DistanceXY  uint32             `json:"distance_xy"`
	Azimuth     float64            `json:"azimuth"`
	Elevation   float64            `json:"elevation"`
	Transponder resource.Reference `json:"transponder"`
}

// NewRadarContact builds the contact record for target as seen from observer.
func NewRadarContact(targetRID string, observer, target Position) RadarContact {
	v := geometry.VectorTo(observer.Point(), target.Point())
	return RadarContact{
		EntityID:    targetRID,
		Distance:    v.Mag,
		DistanceXY:  v.DistanceXY,
		Azimuth:     v.Azimuth,
		Elevation:   v.Elevation,
		Transponder: resource.Reference{RID: resource.ComponentRID(targetRID, NameTransponder)},
	}
}

// MiningResource is the extractable payload seeded onto asteroids.
type MiningResource struct {
	StackType string `json:"stack_type"`
	Qty       uint32 `json:"qty"`
}
