package matching

import (
	"fmt"
	"time"
)

const (
	DefaultGlobalDeadline = 600 * time.Second
	DefaultOfferTimeout   = 20 * time.Second
)

// Config tunes an attempt. Zero values fall back to defaults via WithDefaults.
type Config struct {
	// GlobalDeadline bounds the whole attempt; it is never extended.
	GlobalDeadline time.Duration `yaml:"global_deadline"`
	// OfferTimeout bounds a single offer; expiry counts as a decline.
	OfferTimeout time.Duration `yaml:"offer_timeout"`
	// CandidateRefresh re-polls the candidate feed while offering. 0 disables it.
	CandidateRefresh time.Duration `yaml:"candidate_refresh"`
}

func DefaultConfig() Config {
	return Config{GlobalDeadline: DefaultGlobalDeadline, OfferTimeout: DefaultOfferTimeout}
}

// WithDefaults fills unset durations.
func (c Config) WithDefaults() Config {
	if c.GlobalDeadline == 0 {
		c.GlobalDeadline = DefaultGlobalDeadline
	}
	if c.OfferTimeout == 0 {
		c.OfferTimeout = DefaultOfferTimeout
	}
	return c
}

func (c Config) Validate() error {
	if c.GlobalDeadline <= 0 {
		return fmt.Errorf("%w: global deadline must be positive, got %s", ErrInvalidConfig, c.GlobalDeadline)
	}
	if c.OfferTimeout <= 0 {
		return fmt.Errorf("%w: offer timeout must be positive, got %s", ErrInvalidConfig, c.OfferTimeout)
	}
	if c.OfferTimeout >= c.GlobalDeadline {
		return fmt.Errorf("%w: offer timeout %s must be shorter than global deadline %s",
			ErrInvalidConfig, c.OfferTimeout, c.GlobalDeadline)
	}
	if c.CandidateRefresh < 0 {
		return fmt.Errorf("%w: candidate refresh must not be negative, got %s", ErrInvalidConfig, c.CandidateRefresh)
	}
	return nil
}
