package config

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"
)

type Config struct {
	Database struct {
		Host     string `yaml:"host"`
		Port     int    `yaml:"port"`
		User     string `yaml:"user"`
		Password string `yaml:"password"`
		Name     string `yaml:"database"`
		MaxConns int32  `yaml:"max_conns"`
	} `yaml:"database"`
	RabbitMQ struct {
		Host     string `yaml:"host"`
		Port     int    `yaml:"port"`
		User     string `yaml:"user"`
		Password string `yaml:"password"`
	} `yaml:"rabbitmq"`
	Redis struct {
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
		// KeyPrefix namespaces the driver index keys.
		KeyPrefix      string        `yaml:"key_prefix"`
		SearchRadiusKM float64       `yaml:"search_radius_km"`
		MaxCandidates  int           `yaml:"max_candidates"`
		LocationTTL    time.Duration `yaml:"location_ttl"`
	} `yaml:"redis"`
	Services struct {
		DispatchServicePort int `yaml:"dispatch_service"`
	} `yaml:"services"`
	JWT struct {
		SecretKey string        `yaml:"secret_key"`
		AccessTTL time.Duration `yaml:"access_ttl"`
	} `yaml:"jwt"`
	Matching struct {
		GlobalDeadline   time.Duration `yaml:"global_deadline"`
		OfferTimeout     time.Duration `yaml:"offer_timeout"`
		CandidateRefresh time.Duration `yaml:"candidate_refresh"`
	} `yaml:"matching"`
}

// LoadFromFile loads config from a YAML file to a Config struct, applies defaults, and validates required fields.
func LoadFromFile(path string) (*Config, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer file.Close()

	var cfg Config
	if err := parseYAML(file, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	applyDefaults(&cfg)

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

// applyDefaults sets safe defaults for some fields.
func applyDefaults(cfg *Config) {
	// Database
	if cfg.Database.Host == "" {
		cfg.Database.Host = "localhost"
	}
	if cfg.Database.Port == 0 {
		cfg.Database.Port = 5432
	}
	if cfg.Database.MaxConns == 0 {
		cfg.Database.MaxConns = 10
	}

	// RabbitMQ
	if cfg.RabbitMQ.Host == "" {
		cfg.RabbitMQ.Host = "localhost"
	}
	if cfg.RabbitMQ.Port == 0 {
		cfg.RabbitMQ.Port = 5672
	}

	// Redis
	if cfg.Redis.Addr == "" {
		cfg.Redis.Addr = "localhost:6379"
	}
	if cfg.Redis.KeyPrefix == "" {
		cfg.Redis.KeyPrefix = "shipease"
	}
	if cfg.Redis.SearchRadiusKM == 0 {
		cfg.Redis.SearchRadiusKM = 5
	}
	if cfg.Redis.MaxCandidates == 0 {
		cfg.Redis.MaxCandidates = 20
	}
	if cfg.Redis.LocationTTL == 0 {
		cfg.Redis.LocationTTL = 2 * time.Minute
	}

	// Services
	if cfg.Services.DispatchServicePort == 0 {
		cfg.Services.DispatchServicePort = 3000
	}

	// JWT
	if cfg.JWT.SecretKey == "" {
		key := make([]byte, 32)
		if _, err := rand.Read(key); err != nil {
			// fallback: time-based bytes
			key = []byte(fmt.Sprintf("%d", time.Now().UnixNano()))
		}
		cfg.JWT.SecretKey = base64.StdEncoding.EncodeToString(key)
	}
	if cfg.JWT.AccessTTL == 0 {
		cfg.JWT.AccessTTL = 24 * time.Hour
	}

	// Matching
	if cfg.Matching.GlobalDeadline == 0 {
		cfg.Matching.GlobalDeadline = 600 * time.Second
	}
	if cfg.Matching.OfferTimeout == 0 {
		cfg.Matching.OfferTimeout = 20 * time.Second
	}
}

// validate checks required fields and basic ranges.
func (c *Config) validate() error {
	var problems []string

	// DB
	if c.Database.Port <= 0 || c.Database.Port > 65535 {
		problems = append(problems, "database.port must be in 1..65535")
	}
	if c.Database.User == "" {
		problems = append(problems, "database.user is required")
	}
	if c.Database.Password == "" {
		problems = append(problems, "database.password is required")
	}
	if c.Database.Name == "" {
		problems = append(problems, "database.database is required")
	}
	if c.Database.MaxConns < 0 {
		problems = append(problems, "database.max_conns must not be negative")
	}

	// RabbitMQ
	if c.RabbitMQ.Port <= 0 || c.RabbitMQ.Port > 65535 {
		problems = append(problems, "rabbitmq.port must be in 1..65535")
	}
	if c.RabbitMQ.User == "" {
		problems = append(problems, "rabbitmq.user is required")
	}
	if c.RabbitMQ.Password == "" {
		problems = append(problems, "rabbitmq.password is required")
	}

	// Redis
	if c.Redis.DB < 0 {
		problems = append(problems, "redis.db must not be negative")
	}
	if c.Redis.SearchRadiusKM <= 0 {
		problems = append(problems, "redis.search_radius_km must be positive")
	}
	if c.Redis.MaxCandidates <= 0 {
		problems = append(problems, "redis.max_candidates must be positive")
	}
	if c.Redis.LocationTTL < 0 {
		problems = append(problems, "redis.location_ttl must not be negative")
	}

	// Services
	if c.Services.DispatchServicePort <= 0 || c.Services.DispatchServicePort > 65535 {
		problems = append(problems, "services.dispatch_service must be in 1..65535")
	}

	// JWT
	if c.JWT.AccessTTL <= 0 {
		problems = append(problems, "jwt.access_ttl must be positive")
	}

	// Matching
	if c.Matching.GlobalDeadline <= 0 {
		problems = append(problems, "matching.global_deadline must be positive")
	}
	if c.Matching.OfferTimeout <= 0 {
		problems = append(problems, "matching.offer_timeout must be positive")
	}
	if c.Matching.OfferTimeout >= c.Matching.GlobalDeadline {
		problems = append(problems, "matching.offer_timeout must be shorter than matching.global_deadline")
	}
	if c.Matching.CandidateRefresh < 0 {
		problems = append(problems, "matching.candidate_refresh must not be negative")
	}

	if len(problems) > 0 {
		return errors.New(strings.Join(problems, "; "))
	}
	return nil
}
