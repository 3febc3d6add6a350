package driver

import (
	"errors"
	"strings"
)

// Status is the availability a driver app reports over its socket.
type Status string

const (
	StatusOffline   Status = "OFFLINE"
	StatusAvailable Status = "AVAILABLE"
	StatusBusy      Status = "BUSY"
)

var ErrInvalidStatus = errors.New("invalid driver status")

// ParseStatus normalizes (uppercases+trims) and validates a driver status string.
// The app's "online" toggle maps to AVAILABLE.
func ParseStatus(in string) (Status, error) {
	s := strings.ToUpper(strings.TrimSpace(in))
	if s == "ONLINE" {
		return StatusAvailable, nil
	}
	status := Status(s)
	if status.Valid() {
		return status, nil
	}
	return "", ErrInvalidStatus
}

func (status Status) Valid() bool {
	switch status {
	case StatusOffline, StatusAvailable, StatusBusy:
		return true
	default:
		return false
	}
}

// Matchable reports whether a driver in this status may receive offers.
func (status Status) Matchable() bool {
	return status == StatusAvailable
}

func (status Status) String() string {
	return string(status)
}
