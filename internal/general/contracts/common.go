package contracts

import (
	"errors"
	"time"

	"shipease/internal/domain/geo"
)

var ErrInvalidMessage = errors.New("invalid message")

// Envelope adds cross-cutting headers all messages may carry.
type Envelope struct {
	CorrelationID string    `json:"correlation_id,omitempty"` // Correlation for tracing across services
	Producer      string    `json:"producer,omitempty"`       // Producer service name, e.g. "dispatch-service"
	SentAt        time.Time `json:"sent_at,omitempty"`        // ISO-8601 send time (UTC)
}

// GeoPoint is the wire shape of a coordinate.
type GeoPoint struct {
	Lat     float64 `json:"lat"`
	Lng     float64 `json:"lng"`
	Address string  `json:"address,omitempty"`
}

func (p GeoPoint) Point() geo.Point {
	return geo.Point{Lat: p.Lat, Lng: p.Lng}
}

func FromPoint(p geo.Point) GeoPoint {
	return GeoPoint{Lat: p.Lat, Lng: p.Lng}
}
