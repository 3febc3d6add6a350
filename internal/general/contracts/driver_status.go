package contracts

import "time"

// DriverStatusMessage is published by the driver gateway when availability changes.
// Routing key: "driver.status.{driver_id}" on ExchangeDriverTopic.
type DriverStatusMessage struct {
	DriverID    string    `json:"driver_id"`
	Status      string    `json:"status"` // OFFLINE|AVAILABLE|BUSY
	VehicleType string    `json:"vehicle_type,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
	Envelope
}
