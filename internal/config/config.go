// Svodka - Regional Community Digest Engine
// Copyright 2026 Okrug Media
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/okrugmedia/svodka

// Package config loads Svodka configuration with layered sources:
// built-in defaults, an optional YAML file, then SVODKA_* environment
// variables. Precedence: env > file > defaults.
package config

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
)

// Config is the root configuration for the Svodka engine.
type Config struct {
	Logging   LoggingConfig   `koanf:"logging"`
	Store     StoreConfig     `koanf:"store"`
	Redis     RedisConfig     `koanf:"redis"`
	NATS      NATSConfig      `koanf:"nats"`
	Upstream  UpstreamConfig  `koanf:"upstream"`
	RateGate  RateGateConfig  `koanf:"rategate"`
	Carousel  CarouselConfig  `koanf:"carousel"`
	Filter    FilterConfig    `koanf:"filter"`
	Mixer     MixerConfig     `koanf:"mixer"`
	Engage    EngageConfig    `koanf:"engagement"`
	Dispatch  DispatchConfig  `koanf:"dispatch"`
	MetricsAt string          `koanf:"metrics_listen"` // empty disables the /metrics listener
}

// LoggingConfig mirrors internal/logging.Config.
type LoggingConfig struct {
	Level  string `koanf:"level" validate:"omitempty,oneof=trace debug info warn error"`
	Format string `koanf:"format" validate:"omitempty,oneof=json console"`
}

// StoreConfig selects and configures the authoritative store.
type StoreConfig struct {
	// Driver is "postgres" or "memory". Memory is intended for tests and
	// single-node evaluation only.
	Driver string `koanf:"driver" validate:"oneof=postgres memory"`
	DSN    string `koanf:"dsn"`

	MaxOpenConns    int           `koanf:"max_open_conns"`
	MaxIdleConns    int           `koanf:"max_idle_conns"`
	ConnMaxLifetime time.Duration `koanf:"conn_max_lifetime"`
}

// RedisConfig configures the shared key-value store backing the rate gate.
type RedisConfig struct {
	Enabled  bool   `koanf:"enabled"`
	Addr     string `koanf:"addr"`
	Password string `koanf:"password"`
	DB       int    `koanf:"db"`
}

// NATSConfig configures the work queue transport.
type NATSConfig struct {
	Enabled       bool          `koanf:"enabled"`
	URL           string        `koanf:"url"`
	DurableName   string        `koanf:"durable_name"`
	QueueGroup    string        `koanf:"queue_group"`
	MaxReconnects int           `koanf:"max_reconnects"`
	ReconnectWait time.Duration `koanf:"reconnect_wait"`
	AckWait       time.Duration `koanf:"ack_wait"`
	CloseTimeout  time.Duration `koanf:"close_timeout"`
}

// UpstreamConfig configures the third-party social API client.
type UpstreamConfig struct {
	BaseURL        string        `koanf:"base_url" validate:"required,url"`
	APIVersion     string        `koanf:"api_version" validate:"required"`
	RequestTimeout time.Duration `koanf:"request_timeout"`
	MaxRetries     int           `koanf:"max_retries"`
	BackoffBase    time.Duration `koanf:"backoff_base"`
	BackoffMax     time.Duration `koanf:"backoff_max"`
}

// RateGateConfig configures the per-credential and per-client budgets.
type RateGateConfig struct {
	CredentialLimit  int           `koanf:"credential_limit" validate:"min=1"`
	CredentialWindow time.Duration `koanf:"credential_window"`
	ClientLimit      int           `koanf:"client_limit" validate:"min=1"`
	ClientWindow     time.Duration `koanf:"client_window"`
}

// CarouselConfig configures the region scan scheduler.
type CarouselConfig struct {
	MinInterval        time.Duration `koanf:"min_interval"`
	MinIntervalFloor   time.Duration `koanf:"min_interval_floor"`
	MinIntervalCeil    time.Duration `koanf:"min_interval_ceil"`
	MaxConcurrentScans int           `koanf:"max_concurrent_scans" validate:"min=1"`
	TickInterval       time.Duration `koanf:"tick_interval"`
}

// FilterConfig carries pipeline-wide tunables.
type FilterConfig struct {
	MaxAgeHours   int           `koanf:"max_age_hours"`
	MinViews      int           `koanf:"min_views"`
	MinTextLen    int           `koanf:"min_text_len"`
	MaxTextLen    int           `koanf:"max_text_len"`
	MinRegionHits int           `koanf:"min_region_hits"`
	CacheTTL      time.Duration `koanf:"cache_ttl"`
	SpamPatterns  []string      `koanf:"spam_patterns"`
	// MainNewsOnlyGroups lists community external ids where reposted
	// content (owner != author) is rejected.
	MainNewsOnlyGroups []int64 `koanf:"main_news_only_groups"`
}

// MixerConfig carries digest assembly tunables.
type MixerConfig struct {
	DigestSize       int     `koanf:"digest_size" validate:"min=1"`
	NegativeShareCap float64 `koanf:"negative_share_cap"`
}

// EngageConfig carries engagement scorer tunables.
type EngageConfig struct {
	WindowDays     int           `koanf:"window_days" validate:"min=7,max=365"`
	RollupInterval time.Duration `koanf:"rollup_interval"`
}

// DispatchConfig carries per-task rate limits as minimum intervals.
type DispatchConfig struct {
	ScanInterval     time.Duration `koanf:"scan_interval"`
	ValidateInterval time.Duration `koanf:"validate_interval"`
	OptimizeInterval time.Duration `koanf:"optimize_interval"`
	StatusInterval   time.Duration `koanf:"status_interval"`
	Workers          int           `koanf:"workers" validate:"min=1"`
}

// Validate checks constraints that the koanf layers cannot express.
func (c *Config) Validate() error {
	v := validator.New()
	if err := v.Struct(c); err != nil {
		return err
	}
	if c.Store.Driver == "postgres" && c.Store.DSN == "" {
		return fmt.Errorf("store.dsn is required when store.driver=postgres")
	}
	if c.RateGate.CredentialWindow <= 0 || c.RateGate.ClientWindow <= 0 {
		return fmt.Errorf("rategate windows must be positive")
	}
	if c.Carousel.MinIntervalFloor > c.Carousel.MinInterval ||
		c.Carousel.MinInterval > c.Carousel.MinIntervalCeil {
		return fmt.Errorf("carousel interval bounds must satisfy floor <= min_interval <= ceil")
	}
	if c.Mixer.NegativeShareCap <= 0 || c.Mixer.NegativeShareCap > 1 {
		return fmt.Errorf("mixer.negative_share_cap must be in (0, 1]")
	}
	return nil
}
