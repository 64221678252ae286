/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Database backend selection.
type DatabaseBackend string

const (
	DatabasePostgres DatabaseBackend = "postgres"
	DatabaseMySQL    DatabaseBackend = "mysql"
	DatabaseSQLite   DatabaseBackend = "sqlite"
)

// EventBusBackend selects how schedule events travel between instances.
type EventBusBackend string

const (
	EventBusMemory EventBusBackend = "memory"
	EventBusRedis  EventBusBackend = "redis"
	EventBusNATS   EventBusBackend = "nats"
)

// Config covers process level configuration read from environment variables.
type Config struct {
	Environment     string
	HTTPBind        string
	HTTPPort        int
	BaseURL         string // Public base URL used in calendar exports
	DBBackend       DatabaseBackend
	DBDSN           string
	JWTSigningKey   string
	SessionTTL      time.Duration
	CookieSecure    bool
	MaxUploadSizeMB int

	// Conference metadata
	ConferenceName     string
	ConferenceVenue    string
	ConferenceTimezone string

	// Avatar storage. Local filesystem unless S3Bucket is set.
	AvatarRoot        string
	S3AccessKeyID     string
	S3SecretAccessKey string
	S3Region          string
	S3Bucket          string
	S3Endpoint        string // For S3-compatible services (MinIO, Spaces, etc.)
	S3PublicBaseURL   string
	S3UsePathStyle    bool

	// Tracing configuration
	TracingEnabled    bool
	OTLPEndpoint      string
	TracingSampleRate float64

	// Cache and multi-instance configuration
	CacheEnabled    bool
	CacheL1Size     int
	RedisAddr       string
	RedisPassword   string
	RedisDB         int
	EventBusBackend EventBusBackend
	NATSURL         string
	InstanceID      string
	LeaderElection  bool

	// Assistant (AWS Bedrock)
	AssistantEnabled     bool
	BedrockRegion        string
	AssistantRouterModel string
	AssistantAgentModel  string
	AssistantMaxSteps    int
	AssistantMaxTokens   int

	LegacyEnvWarnings []string
}

// Load reads environment variables, applies defaults, and validates the result.
func Load() (*Config, error) {
	cfg := &Config{
		Environment:     getEnvAny([]string{"CONFPLANNER_ENV", "APP_ENV"}, "development"),
		HTTPBind:        getEnvAny([]string{"CONFPLANNER_HTTP_BIND"}, "0.0.0.0"),
		HTTPPort:        getEnvIntAny([]string{"CONFPLANNER_HTTP_PORT", "PORT"}, 8080),
		BaseURL:         getEnvAny([]string{"CONFPLANNER_BASE_URL"}, "http://localhost:8080"),
		DBBackend:       DatabaseBackend(getEnvAny([]string{"CONFPLANNER_DB_BACKEND"}, string(DatabaseSQLite))),
		DBDSN:           getEnvAny([]string{"CONFPLANNER_DB_DSN", "DATABASE_URL"}, ""),
		JWTSigningKey:   getEnvAny([]string{"CONFPLANNER_JWT_SIGNING_KEY", "SESSION_SECRET"}, ""),
		SessionTTL:      time.Duration(getEnvIntAny([]string{"CONFPLANNER_SESSION_TTL_HOURS"}, 24*7)) * time.Hour,
		CookieSecure:    getEnvBoolAny([]string{"CONFPLANNER_COOKIE_SECURE"}, false),
		MaxUploadSizeMB: getEnvIntAny([]string{"CONFPLANNER_MAX_UPLOAD_SIZE_MB"}, 5),

		ConferenceName:     getEnvAny([]string{"CONFPLANNER_CONFERENCE_NAME"}, "Next.js Conf 2025"),
		ConferenceVenue:    getEnvAny([]string{"CONFPLANNER_CONFERENCE_VENUE"}, "San Francisco"),
		ConferenceTimezone: getEnvAny([]string{"CONFPLANNER_CONFERENCE_TZ"}, "America/Los_Angeles"),

		AvatarRoot:        getEnvAny([]string{"CONFPLANNER_AVATAR_ROOT"}, "./data/avatars"),
		S3AccessKeyID:     getEnvAny([]string{"CONFPLANNER_S3_ACCESS_KEY_ID", "AWS_ACCESS_KEY_ID"}, ""),
		S3SecretAccessKey: getEnvAny([]string{"CONFPLANNER_S3_SECRET_ACCESS_KEY", "AWS_SECRET_ACCESS_KEY"}, ""),
		S3Region:          getEnvAny([]string{"CONFPLANNER_S3_REGION", "AWS_REGION"}, "us-east-1"),
		S3Bucket:          getEnvAny([]string{"CONFPLANNER_S3_BUCKET", "S3_BUCKET"}, ""),
		S3Endpoint:        getEnvAny([]string{"CONFPLANNER_S3_ENDPOINT", "S3_ENDPOINT"}, ""),
		S3PublicBaseURL:   getEnvAny([]string{"CONFPLANNER_S3_PUBLIC_BASE_URL", "S3_PUBLIC_BASE_URL"}, ""),
		S3UsePathStyle:    getEnvBoolAny([]string{"CONFPLANNER_S3_USE_PATH_STYLE", "S3_USE_PATH_STYLE"}, false),

		TracingEnabled:    getEnvBoolAny([]string{"CONFPLANNER_TRACING_ENABLED"}, false),
		OTLPEndpoint:      getEnvAny([]string{"CONFPLANNER_OTLP_ENDPOINT", "OTEL_EXPORTER_OTLP_ENDPOINT"}, "localhost:4317"),
		TracingSampleRate: getEnvFloatAny([]string{"CONFPLANNER_TRACING_SAMPLE_RATE"}, 1.0),

		CacheEnabled:    getEnvBoolAny([]string{"CONFPLANNER_CACHE_ENABLED"}, true),
		CacheL1Size:     getEnvIntAny([]string{"CONFPLANNER_CACHE_L1_SIZE"}, 512),
		RedisAddr:       getEnvAny([]string{"CONFPLANNER_REDIS_ADDR", "REDIS_ADDR"}, "localhost:6379"),
		RedisPassword:   getEnvAny([]string{"CONFPLANNER_REDIS_PASSWORD", "REDIS_PASSWORD"}, ""),
		RedisDB:         getEnvIntAny([]string{"CONFPLANNER_REDIS_DB"}, 0),
		EventBusBackend: EventBusBackend(strings.ToLower(getEnvAny([]string{"CONFPLANNER_EVENT_BUS"}, string(EventBusMemory)))),
		NATSURL:         getEnvAny([]string{"CONFPLANNER_NATS_URL", "NATS_URL"}, "nats://localhost:4222"),
		InstanceID:      getEnvAny([]string{"CONFPLANNER_INSTANCE_ID", "HOSTNAME"}, ""),
		LeaderElection:  getEnvBoolAny([]string{"CONFPLANNER_LEADER_ELECTION"}, false),

		AssistantEnabled:     getEnvBoolAny([]string{"CONFPLANNER_ASSISTANT_ENABLED"}, false),
		BedrockRegion:        getEnvAny([]string{"CONFPLANNER_BEDROCK_REGION", "AWS_REGION"}, "us-east-1"),
		AssistantRouterModel: getEnvAny([]string{"CONFPLANNER_ASSISTANT_ROUTER_MODEL"}, "anthropic.claude-3-5-haiku-20241022-v1:0"),
		AssistantAgentModel:  getEnvAny([]string{"CONFPLANNER_ASSISTANT_AGENT_MODEL"}, "anthropic.claude-3-5-sonnet-20241022-v2:0"),
		AssistantMaxSteps:    getEnvIntAny([]string{"CONFPLANNER_ASSISTANT_MAX_STEPS"}, 5),
		AssistantMaxTokens:   getEnvIntAny([]string{"CONFPLANNER_ASSISTANT_MAX_TOKENS"}, 1024),
	}

	if cfg.DBBackend != DatabasePostgres && cfg.DBBackend != DatabaseMySQL && cfg.DBBackend != DatabaseSQLite {
		return nil, fmt.Errorf("unsupported database backend %q", cfg.DBBackend)
	}

	if cfg.DBDSN == "" {
		return nil, fmt.Errorf("CONFPLANNER_DB_DSN or DATABASE_URL must be provided")
	}

	if cfg.JWTSigningKey == "" {
		return nil, fmt.Errorf("CONFPLANNER_JWT_SIGNING_KEY or SESSION_SECRET must be provided")
	}

	switch cfg.EventBusBackend {
	case EventBusMemory, EventBusRedis, EventBusNATS:
	default:
		return nil, fmt.Errorf("unsupported event bus %q", cfg.EventBusBackend)
	}

	if _, err := time.LoadLocation(cfg.ConferenceTimezone); err != nil {
		return nil, fmt.Errorf("invalid CONFPLANNER_CONFERENCE_TZ %q: %w", cfg.ConferenceTimezone, err)
	}

	if cfg.AssistantMaxSteps < 1 {
		cfg.AssistantMaxSteps = 1
	}

	if strings.EqualFold(cfg.Environment, "production") {
		if len(cfg.JWTSigningKey) < 32 {
			return nil, fmt.Errorf("CONFPLANNER_JWT_SIGNING_KEY must be at least 32 characters in production")
		}
		if !cfg.CookieSecure {
			return nil, fmt.Errorf("CONFPLANNER_COOKIE_SECURE must be enabled in production")
		}
	}
	cfg.LegacyEnvWarnings = detectLegacyEnvWarnings()

	return cfg, nil
}

func detectLegacyEnvWarnings() []string {
	legacy := map[string]string{
		"JWT_SECRET":      "use CONFPLANNER_JWT_SIGNING_KEY (or SESSION_SECRET)",
		"TRACING_ENABLED": "use CONFPLANNER_TRACING_ENABLED",
		"ANTHROPIC_MODEL": "use CONFPLANNER_ASSISTANT_AGENT_MODEL",
	}

	warnings := make([]string, 0, len(legacy))
	for key, recommendation := range legacy {
		if os.Getenv(key) != "" {
			warnings = append(warnings, fmt.Sprintf("legacy env key %s is set; %s", key, recommendation))
		}
	}
	return warnings
}

// MaxUploadSizeBytes returns the configured upload limit in bytes.
// A value of 0 means "not configured" and callers should use endpoint defaults.
func (c *Config) MaxUploadSizeBytes() int64 {
	if c == nil || c.MaxUploadSizeMB <= 0 {
		return 0
	}
	return int64(c.MaxUploadSizeMB) * 1024 * 1024
}

// Location returns the conference time zone. Load has already validated it.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.ConferenceTimezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// getEnvAny returns the first non-empty environment variable value from keys, or def if none set.
func getEnvAny(keys []string, def string) string {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			return v
		}
	}
	return def
}

// getEnvIntAny returns the first set integer environment variable value from keys, or def.
func getEnvIntAny(keys []string, def int) int {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			if parsed, err := strconv.Atoi(v); err == nil {
				return parsed
			}
		}
	}
	return def
}

// getEnvBoolAny returns the first set boolean environment variable value from keys, or def.
func getEnvBoolAny(keys []string, def bool) bool {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			v = strings.ToLower(strings.TrimSpace(v))
			if v == "true" || v == "1" || v == "yes" {
				return true
			}
			if v == "false" || v == "0" || v == "no" {
				return false
			}
		}
	}
	return def
}

// getEnvFloatAny returns the first set float environment variable value from keys, or def.
func getEnvFloatAny(keys []string, def float64) float64 {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			if parsed, err := strconv.ParseFloat(v, 64); err == nil {
				return parsed
			}
		}
	}
	return def
}
