// Package geometry holds the distance and bearing math used by the radar.
// All functions are pure.
package geometry

import "math"

// Point is a location in 3-dimensional space. Units are kilometers.
type Point struct {
	X, Y, Z float64
}

// Vector describes the direction and range from one point to another.
type Vector struct {
	Mag        uint32  // rounded 3-D distance
	UX, UY, UZ float64 // unit vector
	DistanceXY uint32  // rounded distance ignoring Z
	Azimuth    float64 // degrees, atan2(dy, dx)
	Elevation  float64 // degrees, acos(dz / distance)
}

// Distance3D returns the euclidean distance between a and b.
func Distance3D(a, b Point) float64 {
	dx, dy, dz := b.X-a.X, b.Y-a.Y, b.Z-a.Z
	return math.Sqrt(dx*dx + dy*dy + dz*dz)
}

// Distance2D returns the distance between a and b projected on the XY plane.
func Distance2D(a, b Point) float64 {
	dx, dy := b.X-a.X, b.Y-a.Y
	return math.Sqrt(dx*dx + dy*dy)
}

// WithinRadius reports whether target lies inside (or on) the sphere of the
// given radius centered at origin.
func WithinRadius(origin, target Point, radius float64) bool {
	return Distance3D(origin, target) <= radius
}

// VectorTo returns the vector from a to b. Coincident points yield the zero
// vector.
func VectorTo(a, b Point) Vector {
	d := Distance3D(a, b)
	if d == 0 {
		return Vector{}
	}
	dx, dy, dz := b.X-a.X, b.Y-a.Y, b.Z-a.Z
	return Vector{
		Mag:        uint32(math.Round(d)),
		UX:         dx / d,
		UY:         dy / d,
		UZ:         dz / d,
		DistanceXY: uint32(math.Round(Distance2D(a, b))),
		Azimuth:    degrees(math.Atan2(dy, dx)),
		Elevation:  degrees(math.Acos(clamp(dz/d, -1, 1))),
	}
}

func degrees(rad float64) float64 {
	return rad * 180 / math.Pi
}

// clamp guards acos against rounding drift just outside [-1, 1].
func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
