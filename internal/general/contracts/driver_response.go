package contracts

import (
	"fmt"
	"strings"
)

// DriverMatchResponse is published by the driver gateway when a driver answers an offer.
// Routing key: "driver.response.{booking_id}" on ExchangeDriverTopic.
type DriverMatchResponse struct {
	BookingID      string    `json:"booking_id"`
	DriverID       string    `json:"driver_id"`
	OfferID        string    `json:"offer_id,omitempty"`
	Accepted       bool      `json:"accepted"`
	DriverLocation *GeoPoint `json:"driver_location,omitempty"`
	Envelope
}

func (m DriverMatchResponse) Validate() error {
	if strings.TrimSpace(m.BookingID) == "" {
		return fmt.Errorf("%w: booking_id is required", ErrInvalidMessage)
	}
	if strings.TrimSpace(m.DriverID) == "" {
		return fmt.Errorf("%w: driver_id is required", ErrInvalidMessage)
	}
	return nil
}

// RoutingKey returns the key the response is published under.
func (m DriverMatchResponse) RoutingKey() string {
	return RouteDriverRespPrefix + m.BookingID
}
