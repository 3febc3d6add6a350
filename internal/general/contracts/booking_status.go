package contracts

import "time"

// BookingStatusMessage is published by the dispatch service when matching ends.
// Routing key: "booking.status.{status}" on ExchangeBookingTopic.
type BookingStatusMessage struct {
	BookingID  string    `json:"booking_id"`
	RiderID    string    `json:"rider_id,omitempty"`
	Status     string    `json:"status"`  // CONFIRMED|CANCELLED
	Outcome    string    `json:"outcome"` // confirmed|exhausted|timed_out|cancelled
	DriverID   string    `json:"driver_id,omitempty"`
	Reason     string    `json:"reason,omitempty"`
	OffersSent int       `json:"offers_sent"`
	Timestamp  time.Time `json:"timestamp"`
	Envelope
}

// RoutingKey returns the key the message is published under.
func (m BookingStatusMessage) RoutingKey() string {
	return RouteBookingStatusPrefix + m.Status
}
