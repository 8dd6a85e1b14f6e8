package component

import "github.com/stacktrader/server/internal/geometry"

// Position is a location in 3-dimensional space, in kilometers.
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// Point converts the component into a geometry point.
func (p Position) Point() geometry.Point {
	return geometry.Point{X: p.X, Y: p.Y, Z: p.Z}
}

// Velocity is a magnitude in KPH plus a unit direction vector.
// Written by the navigation actor; declared here so seeded entities can carry it.
type Velocity struct {
	Mag uint32  `json:"mag"`
	UX  float64 `json:"ux"`
	UY  float64 `json:"uy"`
	UZ  float64 `json:"uz"`
}
