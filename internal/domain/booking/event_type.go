package booking

import (
	"errors"
	"strings"
)

// EventType corresponds to the values of `match_events.event_type`.
type EventType string

const (
	EventMatchStarted   EventType = "MATCH_STARTED"
	EventOfferSent      EventType = "OFFER_SENT"
	EventMatchConfirmed EventType = "MATCH_CONFIRMED"
	EventMatchExhausted EventType = "MATCH_EXHAUSTED"
	EventMatchTimedOut  EventType = "MATCH_TIMED_OUT"
	EventMatchCancelled EventType = "MATCH_CANCELLED"
)

var ErrInvalidEventType = errors.New("invalid match event type")

// ParseEventType normalizes (uppercases+trims) and validates an event type string.
func ParseEventType(input string) (EventType, error) {
	eventType := EventType(strings.ToUpper(strings.TrimSpace(input)))
	if eventType.Valid() {
		return eventType, nil
	}
	return "", ErrInvalidEventType
}

// Valid reports whether eventType is one of the allowed event type constants.
func (eventType EventType) Valid() bool {
	switch eventType {
	case EventMatchStarted,
		EventOfferSent,
		EventMatchConfirmed,
		EventMatchExhausted,
		EventMatchTimedOut,
		EventMatchCancelled:
		return true
	default:
		return false
	}
}

// String returns the string representation of the EventType.
func (eventType EventType) String() string {
	return string(eventType)
}
