package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"
)

// Config holds every service-level option.
type Config struct {
	Server  ServerConfig  `koanf:"server"`
	Backend BackendConfig `koanf:"backend"`
	Cache   CacheConfig   `koanf:"cache"`
	Queries QueriesConfig `koanf:"queries"`
}

// ServerConfig collects the bootstrap knobs for the HTTP listener and telemetry.
type ServerConfig struct {
	Listen  ListenConfig  `koanf:"listen"`
	Logging LoggingConfig `koanf:"logging"`
}

// ListenConfig instructs the HTTP listener about bind address and port.
type ListenConfig struct {
	Address string `koanf:"address"`
	Port    int    `koanf:"port"`
}

// LoggingConfig expresses log level, format, and correlation ID wiring.
type LoggingConfig struct {
	Level             string `koanf:"level"`
	Format            string `koanf:"format"`
	CorrelationHeader string `koanf:"correlationHeader"`
}

// BackendConfig points the gateway at the events REST API.
type BackendConfig struct {
	BaseURL string `koanf:"baseURL"`
	// Timeout is an optional client-wide deadline. Empty means none.
	Timeout string `koanf:"timeout"`
}

// CacheConfig controls the query cache policy and its optional snapshot tier.
type CacheConfig struct {
	StaleTime       string         `koanf:"staleTime"`
	GCTime          string         `koanf:"gcTime"`
	CollectSchedule string         `koanf:"collectSchedule"`
	Snapshot        SnapshotConfig `koanf:"snapshot"`
}

// SnapshotConfig selects where fetched query data is mirrored.
type SnapshotConfig struct {
	Backend   string              `koanf:"backend"`
	TTL       string              `koanf:"ttl"`
	Namespace string              `koanf:"namespace"`
	Redis     SnapshotRedisConfig `koanf:"redis"`
}

type SnapshotRedisConfig struct {
	Address  string                 `koanf:"address"`
	Username string                 `koanf:"username"`
	Password string                 `koanf:"password"`
	DB       int                    `koanf:"db"`
	TLS      SnapshotRedisTLSConfig `koanf:"tls"`
}

type SnapshotRedisTLSConfig struct {
	Enabled bool   `koanf:"enabled"`
	CAFile  string `koanf:"caFile"`
}

// QueriesConfig carries the per-view staleness windows of the events routes.
type QueriesConfig struct {
	EventStaleTime  string `koanf:"eventStaleTime"`
	RecentStaleTime string `koanf:"recentStaleTime"`
	RecentMax       int    `koanf:"recentMax"`
}

// Validate rejects snapshots that would fail later at wiring time.
func (c *Config) Validate() error {
	if c.Server.Listen.Port < 0 || c.Server.Listen.Port > 65535 {
		return fmt.Errorf("config: server.listen.port %d out of range", c.Server.Listen.Port)
	}
	base := strings.TrimSpace(c.Backend.BaseURL)
	if base == "" {
		return errors.New("config: backend.baseURL required")
	}
	parsed, err := url.Parse(base)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return fmt.Errorf("config: backend.baseURL %q is not an absolute url", base)
	}

	durations := map[string]string{
		"backend.timeout":         c.Backend.Timeout,
		"cache.staleTime":         c.Cache.StaleTime,
		"cache.gcTime":            c.Cache.GCTime,
		"cache.snapshot.ttl":      c.Cache.Snapshot.TTL,
		"queries.eventStaleTime":  c.Queries.EventStaleTime,
		"queries.recentStaleTime": c.Queries.RecentStaleTime,
	}
	for name, value := range durations {
		if _, err := parseDuration(value); err != nil {
			return fmt.Errorf("config: %s: %w", name, err)
		}
	}
	if c.Queries.RecentMax < 0 {
		return fmt.Errorf("config: queries.recentMax %d must not be negative", c.Queries.RecentMax)
	}

	switch strings.ToLower(strings.TrimSpace(c.Cache.Snapshot.Backend)) {
	case "", "none", "memory":
	case "redis":
		if strings.TrimSpace(c.Cache.Snapshot.Redis.Address) == "" {
			return errors.New("config: cache.snapshot.redis.address required for redis backend")
		}
	default:
		return fmt.Errorf("config: unsupported cache.snapshot.backend %q", c.Cache.Snapshot.Backend)
	}
	return nil
}

// Duration parses a configured duration string. Empty strings mean zero.
// Validate guarantees every field it checks parses, so callers may ignore
// the error after a successful Load.
func Duration(value string) time.Duration {
	d, _ := parseDuration(value)
	return d
}

func parseDuration(value string) (time.Duration, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(trimmed)
	if err != nil {
		return 0, err
	}
	return d, nil
}

// DefaultConfig mirrors the staleness windows the events views were built around.
func DefaultConfig() Config {
	return Config{
		Server: ServerConfig{
			Listen: ListenConfig{
				Address: "0.0.0.0",
				Port:    8080,
			},
			Logging: LoggingConfig{
				Level:             "info",
				Format:            "json",
				CorrelationHeader: "X-Request-ID",
			},
		},
		Backend: BackendConfig{
			BaseURL: "http://localhost:3000",
		},
		Cache: CacheConfig{
			StaleTime:       "0s",
			GCTime:          "5m",
			CollectSchedule: "@every 1m",
			Snapshot: SnapshotConfig{
				Backend:   "none",
				TTL:       "5m",
				Namespace: "eventdesk",
			},
		},
		Queries: QueriesConfig{
			EventStaleTime:  "10s",
			RecentStaleTime: "5s",
			RecentMax:       3,
		},
	}
}
