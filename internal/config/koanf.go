// Svodka - Regional Community Digest Engine
// Copyright 2026 Okrug Media
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/okrugmedia/svodka

package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths lists where config files are searched, in order.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/svodka/config.yaml",
	"/etc/svodka/config.yml",
}

// ConfigPathEnvVar overrides the config file path.
const ConfigPathEnvVar = "SVODKA_CONFIG"

// envPrefix is stripped from environment variables before mapping them to
// koanf paths: SVODKA_CAROUSEL_MIN_INTERVAL -> carousel.min_interval.
const envPrefix = "SVODKA_"

// defaultConfig returns a Config with all defaults applied. These match the
// defaults named in the component contracts (gate budgets, carousel
// intervals, pipeline thresholds).
func defaultConfig() *Config {
	return &Config{
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Store: StoreConfig{
			Driver:          "postgres",
			DSN:             "",
			MaxOpenConns:    10,
			MaxIdleConns:    5,
			ConnMaxLifetime: 30 * time.Minute,
		},
		Redis: RedisConfig{
			Enabled: true,
			Addr:    "127.0.0.1:6379",
			DB:      0,
		},
		NATS: NATSConfig{
			Enabled:       true,
			URL:           "nats://127.0.0.1:4222",
			DurableName:   "svodka-dispatch",
			QueueGroup:    "dispatchers",
			MaxReconnects: -1,
			ReconnectWait: 2 * time.Second,
			AckWait:       time.Minute,
			CloseTimeout:  30 * time.Second,
		},
		Upstream: UpstreamConfig{
			BaseURL:        "https://api.vk.com/method",
			APIVersion:     "5.131",
			RequestTimeout: 30 * time.Second,
			MaxRetries:     3,
			BackoffBase:    2 * time.Second,
			BackoffMax:     10 * time.Second,
		},
		RateGate: RateGateConfig{
			CredentialLimit:  3,
			CredentialWindow: time.Second,
			ClientLimit:      100,
			ClientWindow:     time.Minute,
		},
		Carousel: CarouselConfig{
			MinInterval:        60 * time.Minute,
			MinIntervalFloor:   15 * time.Minute,
			MinIntervalCeil:    240 * time.Minute,
			MaxConcurrentScans: 2,
			TickInterval:       time.Minute,
		},
		Filter: FilterConfig{
			MaxAgeHours:   72,
			MinViews:      0,
			MinTextLen:    10,
			MaxTextLen:    10000,
			MinRegionHits: 1,
			CacheTTL:      5 * time.Minute,
			SpamPatterns:  nil,
		},
		Mixer: MixerConfig{
			DigestSize:       10,
			NegativeShareCap: 0.30,
		},
		Engage: EngageConfig{
			WindowDays:     90,
			RollupInterval: time.Hour,
		},
		Dispatch: DispatchConfig{
			ScanInterval:     time.Minute,
			ValidateInterval: time.Hour,
			OptimizeInterval: 24 * time.Hour,
			StatusInterval:   15 * time.Minute,
			Workers:          2,
		},
		MetricsAt: ":9109",
	}
}

// Load reads configuration from defaults, an optional YAML file, and
// SVODKA_* environment variables, then validates the result.
func Load() (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("load defaults: %w", err)
	}

	if path := findConfigFile(); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config file %s: %w", path, err)
		}
	}

	envProvider := env.Provider(envPrefix, ".", envTransform)
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("load environment: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration invalid: %w", err)
	}
	return cfg, nil
}

func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}
	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// envTransform maps SVODKA_SECTION_SOME_KEY to section.some_key. The first
// underscore separates the section; the rest stays joined so multi-word
// keys survive (e.g. SVODKA_CAROUSEL_MIN_INTERVAL -> carousel.min_interval).
func envTransform(key string) string {
	key = strings.ToLower(strings.TrimPrefix(key, envPrefix))
	parts := strings.SplitN(key, "_", 2)
	if len(parts) == 1 {
		return parts[0]
	}
	return parts[0] + "." + parts[1]
}
