package telemetry

import (
	"time"

	"hockeysdk-go/configs/config"
	"hockeysdk-go/internal/shared"
)

const (
	DefaultEndpointURL      = "https://gate.hockeyapp.net/v2/track"
	DefaultMaxBatchCount    = 100
	DefaultMaxBatchInterval = 15 * time.Second
	DefaultSessionInterval  = 20 * time.Second
)

// AutoMode selects what the client collects without explicit calls.
type AutoMode uint8

const (
	AutoSessions AutoMode = 1 << iota
	AutoPageViews

	AutoNone AutoMode = 0
)

func (m AutoMode) Has(mode AutoMode) bool { return m&mode != 0 }

// Config is the telemetry settings bag.
type Config struct {
	InstrumentationKey string
	EndpointURL        string
	MaxBatchCount      int
	MaxBatchInterval   time.Duration
	// SessionInterval is how long the app may stay in the background before
	// returning to the foreground starts a new session.
	SessionInterval time.Duration
	UserID          string
	AutoModes       AutoMode
	Disabled        bool
}

// NewConfig builds a Config from the telemetry section of the SDK
// configuration. The instrumentation key is derived from appIdentifier.
func NewConfig(appIdentifier string, tc config.TelemetryConfig) Config {
	cfg := Config{
		InstrumentationKey: shared.ConvertAppIdentifierToIkey(appIdentifier),
		EndpointURL:        tc.EndpointURL,
		MaxBatchCount:      tc.MaxBatchCount,
		MaxBatchInterval:   tc.MaxBatchInterval,
		SessionInterval:    tc.SessionInterval,
		UserID:             tc.UserID,
		Disabled:           tc.Disabled,
	}
	if tc.AutoSessions {
		cfg.AutoModes |= AutoSessions
	}
	if tc.AutoPageViews {
		cfg.AutoModes |= AutoPageViews
	}
	return cfg.withDefaults()
}

func (c Config) withDefaults() Config {
	if c.EndpointURL == "" {
		c.EndpointURL = DefaultEndpointURL
	}
	if c.MaxBatchCount <= 0 {
		c.MaxBatchCount = DefaultMaxBatchCount
	}
	if c.MaxBatchInterval <= 0 {
		c.MaxBatchInterval = DefaultMaxBatchInterval
	}
	if c.SessionInterval <= 0 {
		c.SessionInterval = DefaultSessionInterval
	}
	return c
}
