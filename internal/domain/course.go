package domain

import "context"

// UnnamedCourseLabel substitutes for courses the upstream source has no
// name tag for. A Course never carries an empty name.
const UnnamedCourseLabel = "Unnamed course"

// Course is a canonical golf-course record normalized from heterogeneous
// POI geometries.
type Course struct {
	// ID is a stable identifier of the form "<kind>/<external-id>",
	// e.g. "way/23918401".
	ID     string      `json:"id"`
	Name   string      `json:"name"`
	Coords Coordinates `json:"coords"`

	// DistanceKm is the great-circle distance from the query origin,
	// zero when no origin was supplied.
	DistanceKm float64 `json:"distance_km,omitempty"`
}

// CourseFinder resolves golf courses from a point-of-interest source.
type CourseFinder interface {
	// NearestCourse returns the minimum-distance course within the search
	// radius around origin, or (nil, nil) when the area holds none - an
	// empty area is a valid outcome, not a failure. Transport and decode
	// failures return a *CourseLookupError.
	NearestCourse(ctx context.Context, origin Coordinates) (*Course, error)

	// SearchByName returns up to a bounded number of courses whose name
	// matches query case-insensitively, scoped to a radius around near
	// when supplied and sorted by distance to it. A blank query returns
	// an empty list without touching the network.
	SearchByName(ctx context.Context, query string, near *Coordinates) ([]Course, error)
}
