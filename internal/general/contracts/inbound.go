package contracts

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"shipease/internal/domain/booking"
	"shipease/internal/domain/driver"
	"shipease/internal/domain/geo"
)

var ErrUnknownMessageType = errors.New("unknown message type")

// Inbound WebSocket message types.
const (
	WSTypeRideResponse   = "ride_response"
	WSTypeLocationUpdate = "location_update"
	WSTypeDriverStatus   = "driver_status"
	WSTypeCancelRequest  = "cancel_request"
)

// frame is the envelope every inbound socket message uses.
type frame struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

func decodeFrame(payload []byte) (frame, error) {
	var f frame
	if err := json.Unmarshal(payload, &f); err != nil {
		return frame{}, fmt.Errorf("%w: bad json: %w", ErrInvalidMessage, err)
	}
	f.Type = strings.ToLower(strings.TrimSpace(f.Type))
	if f.Type == "" {
		return frame{}, fmt.Errorf("%w: type is required", ErrInvalidMessage)
	}
	if len(f.Data) == 0 || string(f.Data) == "null" {
		return frame{}, fmt.Errorf("%w: %s has no data", ErrInvalidMessage, f.Type)
	}
	return f, nil
}

// ----- driver socket -----

// DriverMessage is a validated inbound frame from a driver socket. The
// concrete type is one of RideResponse, LocationUpdate or DriverStatusChange.
type DriverMessage interface {
	driverMessage()
}

// RideResponse is a driver's answer to an offer. The app sends either
// "accepted": bool or "status": "accepted"|"rejected".
type RideResponse struct {
	BookingID string
	OfferID   string
	Accepted  bool
}

// LocationUpdate is a driver's current position.
type LocationUpdate struct {
	Location       geo.Point
	AccuracyMeters float64
	SpeedKMH       float64
	HeadingDegrees float64
}

// DriverStatusChange switches a driver's availability. VehicleType is
// required when going AVAILABLE.
type DriverStatusChange struct {
	Status      driver.Status
	VehicleType booking.VehicleCategory
}

func (RideResponse) driverMessage()       {}
func (LocationUpdate) driverMessage()     {}
func (DriverStatusChange) driverMessage() {}

// DecodeDriverMessage parses and validates one driver frame.
func DecodeDriverMessage(payload []byte) (DriverMessage, error) {
	f, err := decodeFrame(payload)
	if err != nil {
		return nil, err
	}

	switch f.Type {
	case WSTypeRideResponse:
		return decodeRideResponse(f.Data)
	case WSTypeLocationUpdate:
		return decodeLocationUpdate(f.Data)
	case WSTypeDriverStatus:
		return decodeDriverStatus(f.Data)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownMessageType, f.Type)
	}
}

func decodeRideResponse(raw json.RawMessage) (RideResponse, error) {
	var p struct {
		BookingID string `json:"booking_id"`
		OfferID   string `json:"offer_id"`
		Accepted  *bool  `json:"accepted"`
		Status    string `json:"status"`
	}
	if err := json.Unmarshal(raw, &p); err != nil {
		return RideResponse{}, fmt.Errorf("%w: ride_response: %w", ErrInvalidMessage, err)
	}

	out := RideResponse{BookingID: strings.TrimSpace(p.BookingID), OfferID: strings.TrimSpace(p.OfferID)}
	if out.BookingID == "" {
		return RideResponse{}, fmt.Errorf("%w: ride_response: booking_id is required", ErrInvalidMessage)
	}

	switch {
	case p.Accepted != nil:
		out.Accepted = *p.Accepted
	case strings.EqualFold(strings.TrimSpace(p.Status), "accepted"):
		out.Accepted = true
	case strings.EqualFold(strings.TrimSpace(p.Status), "rejected"),
		strings.EqualFold(strings.TrimSpace(p.Status), "declined"):
		out.Accepted = false
	default:
		return RideResponse{}, fmt.Errorf("%w: ride_response: accepted or status is required", ErrInvalidMessage)
	}
	return out, nil
}

func decodeLocationUpdate(raw json.RawMessage) (LocationUpdate, error) {
	var p struct {
		Latitude       *float64 `json:"latitude"`
		Longitude      *float64 `json:"longitude"`
		AccuracyMeters float64  `json:"accuracy_meters"`
		SpeedKMH       float64  `json:"speed_kmh"`
		HeadingDegrees float64  `json:"heading_degrees"`
	}
	if err := json.Unmarshal(raw, &p); err != nil {
		return LocationUpdate{}, fmt.Errorf("%w: location_update: %w", ErrInvalidMessage, err)
	}
	if p.Latitude == nil || p.Longitude == nil {
		return LocationUpdate{}, fmt.Errorf("%w: location_update: latitude and longitude are required", ErrInvalidMessage)
	}

	pt := geo.Point{Lat: *p.Latitude, Lng: *p.Longitude}
	if err := pt.Validate(); err != nil {
		return LocationUpdate{}, fmt.Errorf("%w: location_update: %w", ErrInvalidMessage, err)
	}
	if p.SpeedKMH < 0 || p.HeadingDegrees < 0 || p.HeadingDegrees >= 360 {
		return LocationUpdate{}, fmt.Errorf("%w: location_update: speed or heading out of range", ErrInvalidMessage)
	}

	return LocationUpdate{
		Location:       pt,
		AccuracyMeters: p.AccuracyMeters,
		SpeedKMH:       p.SpeedKMH,
		HeadingDegrees: p.HeadingDegrees,
	}, nil
}

func decodeDriverStatus(raw json.RawMessage) (DriverStatusChange, error) {
	var p struct {
		Status      string `json:"status"`
		VehicleType string `json:"vehicle_type"`
	}
	if err := json.Unmarshal(raw, &p); err != nil {
		return DriverStatusChange{}, fmt.Errorf("%w: driver_status: %w", ErrInvalidMessage, err)
	}

	status, err := driver.ParseStatus(p.Status)
	if err != nil {
		return DriverStatusChange{}, fmt.Errorf("%w: driver_status: %w", ErrInvalidMessage, err)
	}
	out := DriverStatusChange{Status: status}

	if strings.TrimSpace(p.VehicleType) != "" {
		vc, err := booking.ParseVehicleCategory(p.VehicleType)
		if err != nil {
			return DriverStatusChange{}, fmt.Errorf("%w: driver_status: %w", ErrInvalidMessage, err)
		}
		out.VehicleType = vc
	}
	if status.Matchable() && out.VehicleType == "" {
		return DriverStatusChange{}, fmt.Errorf("%w: driver_status: vehicle_type is required to go %s", ErrInvalidMessage, status)
	}
	return out, nil
}

// ----- rider socket -----

// RiderMessage is a validated inbound frame from a rider socket.
type RiderMessage interface {
	riderMessage()
}

// CancelRequest asks to stop matching for a booking.
type CancelRequest struct {
	BookingID string
	Reason    string
}

func (CancelRequest) riderMessage() {}

// DecodeRiderMessage parses and validates one rider frame.
func DecodeRiderMessage(payload []byte) (RiderMessage, error) {
	f, err := decodeFrame(payload)
	if err != nil {
		return nil, err
	}

	switch f.Type {
	case WSTypeCancelRequest:
		var p struct {
			BookingID string `json:"booking_id"`
			Reason    string `json:"reason"`
		}
		if err := json.Unmarshal(f.Data, &p); err != nil {
			return nil, fmt.Errorf("%w: cancel_request: %w", ErrInvalidMessage, err)
		}
		if strings.TrimSpace(p.BookingID) == "" {
			return nil, fmt.Errorf("%w: cancel_request: booking_id is required", ErrInvalidMessage)
		}
		return CancelRequest{BookingID: strings.TrimSpace(p.BookingID), Reason: strings.TrimSpace(p.Reason)}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownMessageType, f.Type)
	}
}
