package geo

import (
	"errors"
	"math"
)

// Point is a WGS84 coordinate in degrees.
type Point struct {
	Lat float64 `json:"latitude"`
	Lng float64 `json:"longitude"`
}

var (
	ErrNonFiniteCoordinate = errors.New("coordinate must be finite")
	ErrInvalidLatitude     = errors.New("latitude must be between -90 and 90")
	ErrInvalidLongitude    = errors.New("longitude must be between -180 and 180")
)

// Validate rejects NaN/Inf and out-of-range degrees.
func (point Point) Validate() error {
	if math.IsNaN(point.Lat) || math.IsInf(point.Lat, 0) || math.IsNaN(point.Lng) || math.IsInf(point.Lng, 0) {
		return ErrNonFiniteCoordinate
	}
	if point.Lat < -90 || point.Lat > 90 {
		return ErrInvalidLatitude
	}
	if point.Lng < -180 || point.Lng > 180 {
		return ErrInvalidLongitude
	}
	return nil
}

// HaversineKM returns the great-circle distance between two points in kilometres.
func HaversineKM(from, to Point) float64 {
	const R = 6371.0 // Earth radius in km
	a1 := from.Lat * math.Pi / 180
	a2 := to.Lat * math.Pi / 180
	da := (to.Lat - from.Lat) * math.Pi / 180
	db := (to.Lng - from.Lng) * math.Pi / 180

	a := math.Sin(da/2)*math.Sin(da/2) +
		math.Cos(a1)*math.Cos(a2)*math.Sin(db/2)*math.Sin(db/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return R * c
}
