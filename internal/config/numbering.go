package config

import (
	"fmt"
	"time"
)

// NumberingConfig holds the engine-wide defaults applied to scopes created without explicit settings
type NumberingConfig struct {
	NumberLength     int    `mapstructure:"number_length" validate:"gte=0,lte=20"`
	PadWithZeros     bool   `mapstructure:"pad_with_zeros"`
	Separator        string `mapstructure:"separator" validate:"max=5"`
	ErrorLogLimit    int    `mapstructure:"error_log_limit" validate:"gte=1"`
	AuditLogEnabled  bool   `mapstructure:"audit_log_enabled"`
	ResetConcurrency int    `mapstructure:"reset_concurrency" validate:"gte=1"`
	ResolveRetries   uint64 `mapstructure:"resolve_retries"`
	Timezone         string `mapstructure:"timezone" validate:"required"`

	location *time.Location
}

func DefaultNumberingConfig() NumberingConfig {
	return NumberingConfig{
		NumberLength:     4,
		PadWithZeros:     true,
		Separator:        "-",
		ErrorLogLimit:    50,
		AuditLogEnabled:  true,
		ResetConcurrency: 4,
		ResolveRetries:   3,
		Timezone:         "UTC",
		location:         time.UTC,
	}
}

// LoadLocation resolves the configured timezone once so Location never touches zoneinfo
func (c *NumberingConfig) LoadLocation() error {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return fmt.Errorf("invalid numbering timezone %q: %w", c.Timezone, err)
	}
	c.location = loc
	return nil
}

// Location returns the timezone periods are computed in. UTC until LoadLocation ran.
func (c NumberingConfig) Location() *time.Location {
	if c.location == nil {
		return time.UTC
	}
	return c.location
}
