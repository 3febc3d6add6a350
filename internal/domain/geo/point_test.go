package geo

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPointValidate(t *testing.T) {
	assert.NoError(t, Point{Lat: 12.97, Lng: 77.59}.Validate())
	assert.NoError(t, Point{Lat: -90, Lng: 180}.Validate())
	assert.ErrorIs(t, Point{Lat: math.NaN(), Lng: 0}.Validate(), ErrNonFiniteCoordinate)
	assert.ErrorIs(t, Point{Lat: 0, Lng: math.Inf(1)}.Validate(), ErrNonFiniteCoordinate)
	assert.ErrorIs(t, Point{Lat: 90.5, Lng: 0}.Validate(), ErrInvalidLatitude)
	assert.ErrorIs(t, Point{Lat: 0, Lng: -181}.Validate(), ErrInvalidLongitude)
}

func TestHaversineKM(t *testing.T) {
	p := Point{Lat: 12.9716, Lng: 77.5946}
	assert.InDelta(t, 0, HaversineKM(p, p), 1e-9)

	// one degree of latitude is ~111 km
	d := HaversineKM(Point{Lat: 0, Lng: 0}, Point{Lat: 1, Lng: 0})
	assert.InDelta(t, 111.19, d, 0.1)
}
