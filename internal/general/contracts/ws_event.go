package contracts

import "time"

// Outbound WebSocket message types.
const (
	WSTypeBookingOffer  = "REQUEST_BOOKING"
	WSTypeMatchUpdate   = "match_update"
	WSTypeStatusAck     = "driver_status_ack"
	WSTypeResponseAck   = "ride_response_ack"
	WSTypeCancelAck     = "cancel_ack"
	WSTypeError         = "error"
	WSTypeAuthSuccess   = "auth_success"
	WSTypeAuthError     = "auth_error"
	WSTypeLocationSaved = "location_ack"
)

// WSDriverOffer is the booking request pushed to exactly one driver.
type WSDriverOffer struct {
	Type          string   `json:"type"` // "REQUEST_BOOKING"
	OfferID       string   `json:"offer_id"`
	BookingID     string   `json:"booking_id"`
	RiderID       string   `json:"user_id"`
	DriverID      string   `json:"driver_id"`
	Pickup        GeoPoint `json:"pickup_location"`
	Dropoff       GeoPoint `json:"dropoff_location"`
	TotalPrice    float64  `json:"total_price"`
	VehicleType   string   `json:"vehicle_type"`
	Sequence      int      `json:"sequence"`
	DistanceKM    float64  `json:"distance_to_pickup_km,omitempty"`
	ExpiresAt     string   `json:"expires_at"` // ISO-8601
	ExpiresInSecs int      `json:"expires_in_seconds"`
	Envelope
}

// WSRiderMatchUpdate tells the rider how matching ended.
type WSRiderMatchUpdate struct {
	Type      string    `json:"type"` // "match_update"
	BookingID string    `json:"booking_id"`
	Status    string    `json:"status"`
	Outcome   string    `json:"outcome"`
	DriverID  string    `json:"driver_id,omitempty"`
	Reason    string    `json:"reason,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	Envelope
}

// WSError is the generic error frame.
type WSError struct {
	Type  string `json:"type"` // "error"
	Error string `json:"error"`
}
