// Package config resolves process configuration once at boot: defaults, then
// an optional YAML file, then environment overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/creatorbot/intent-kernel/internal/intent"
)

// FileEnv names the environment variable holding the YAML config path.
const FileEnv = "INTENT_CONFIG_FILE"

// ErrInvalidConfig is wrapped by every Validate failure.
var ErrInvalidConfig = errors.New("invalid config")

// Config holds everything the binaries need.
type Config struct {
	Intent   IntentConfig   `yaml:"intent"`
	Server   ServerConfig   `yaml:"server"`
	Redis    RedisConfig    `yaml:"redis"`
	NATS     NATSConfig     `yaml:"nats"`
	Pipeline PipelineConfig `yaml:"pipeline"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// IntentConfig configures the intent engine.
type IntentConfig struct {
	ContextualLogic        bool   `yaml:"contextual_logic"`
	ContextValidityMinutes int    `yaml:"context_validity_minutes"`
	AssistantName          string `yaml:"assistant_name"`
}

// ServerConfig configures the HTTP surface.
type ServerConfig struct {
	Port           string   `yaml:"port"`
	AllowedOrigins []string `yaml:"allowed_origins"` // empty allows any origin
}

// RedisConfig configures the dialogue stores.
type RedisConfig struct {
	Address             string `yaml:"address"`
	Password            string `yaml:"password"`
	DB                  int    `yaml:"db"`
	TimeoutMS           int    `yaml:"timeout_ms"`
	NearCacheTTLSeconds int    `yaml:"near_cache_ttl_seconds"` // 0 disables the near cache
	NearCacheMaxEntries int64  `yaml:"near_cache_max_entries"`
}

// NATSConfig configures the inbound message consumer. An empty URL disables
// it.
type NATSConfig struct {
	URL                 string `yaml:"url"`
	Stream              string `yaml:"stream"`
	Durable             string `yaml:"durable"`
	InboundSubject      string `yaml:"inbound_subject"`
	ResultSubjectPrefix string `yaml:"result_subject_prefix"`
}

// PipelineConfig configures turn handling.
type PipelineConfig struct {
	HistoryMaxTurns    int `yaml:"history_max_turns"`
	TurnLockWaitMS     int `yaml:"turn_lock_wait_ms"`
	TurnLockTTLSeconds int `yaml:"turn_lock_ttl_seconds"`
	DedupeCacheSize    int `yaml:"dedupe_cache_size"`
}

// LoggingConfig selects the zap preset.
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// DefaultConfig returns the built-in defaults.
func DefaultConfig() *Config {
	return &Config{
		Intent: IntentConfig{
			ContextualLogic:        false,
			ContextValidityMinutes: intent.DefaultContextValidityMinutes,
			AssistantName:          "tuca",
		},
		Server: ServerConfig{Port: "3000"},
		Redis: RedisConfig{
			Address:             "127.0.0.1:6379",
			TimeoutMS:           1500,
			NearCacheTTLSeconds: 30,
			NearCacheMaxEntries: 10000,
		},
		NATS: NATSConfig{
			Stream:              "MESSAGES",
			Durable:             "intent-kernel",
			InboundSubject:      "messages.inbound",
			ResultSubjectPrefix: "intents.resolved",
		},
		Pipeline: PipelineConfig{
			HistoryMaxTurns:    20,
			TurnLockWaitMS:     2000,
			TurnLockTTLSeconds: 30,
			DedupeCacheSize:    4096,
		},
		Logging: LoggingConfig{Level: "info"},
	}
}

// Load reads defaults, the YAML file at path (a missing file is not an
// error) and the environment, in that order.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
			}
		case errors.Is(err, os.ErrNotExist):
		default:
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

// FromEnv is Load with the path taken from INTENT_CONFIG_FILE.
func FromEnv() (*Config, error) {
	return Load(os.Getenv(FileEnv))
}

func (c *Config) applyEnvOverrides() {
	if v, ok := lookupEnv("ENABLE_CONTEXTUAL_INTENT_LOGIC"); ok {
		c.Intent.ContextualLogic = parseFlag(v)
	}
	if v, ok := lookupEnv("CONTEXT_VALIDITY_MINUTES"); ok {
		c.Intent.ContextValidityMinutes = validityMinutes(v)
	}
	c.Intent.AssistantName = getEnv("ASSISTANT_NAME", c.Intent.AssistantName)

	c.Server.Port = getEnv("PORT", c.Server.Port)
	if v, ok := lookupEnv("ALLOWED_ORIGINS"); ok {
		c.Server.AllowedOrigins = splitList(v)
	}

	c.Redis.Address = getEnv("REDIS_ADDRESS", c.Redis.Address)
	c.Redis.Password = getEnv("REDIS_PASSWORD", c.Redis.Password)
	c.Redis.DB = getEnvInt("REDIS_DB", c.Redis.DB)
	c.Redis.TimeoutMS = getEnvInt("STORE_TIMEOUT_MS", c.Redis.TimeoutMS)
	c.Redis.NearCacheTTLSeconds = getEnvInt("STATE_NEAR_CACHE_TTL_SECONDS", c.Redis.NearCacheTTLSeconds)

	c.NATS.URL = getEnv("NATS_URL", c.NATS.URL)
	c.NATS.Stream = getEnv("NATS_STREAM", c.NATS.Stream)
	c.NATS.Durable = getEnv("NATS_DURABLE", c.NATS.Durable)
	c.NATS.InboundSubject = getEnv("NATS_INBOUND_SUBJECT", c.NATS.InboundSubject)
	c.NATS.ResultSubjectPrefix = getEnv("NATS_RESULT_SUBJECT_PREFIX", c.NATS.ResultSubjectPrefix)

	c.Pipeline.HistoryMaxTurns = getEnvInt("HISTORY_MAX_TURNS", c.Pipeline.HistoryMaxTurns)
	c.Pipeline.TurnLockWaitMS = getEnvInt("TURN_LOCK_WAIT_MS", c.Pipeline.TurnLockWaitMS)
	c.Pipeline.TurnLockTTLSeconds = getEnvInt("TURN_LOCK_TTL_SECONDS", c.Pipeline.TurnLockTTLSeconds)
	c.Pipeline.DedupeCacheSize = getEnvInt("DEDUPE_CACHE_SIZE", c.Pipeline.DedupeCacheSize)

	c.Logging.Level = strings.ToLower(getEnv("LOG_LEVEL", c.Logging.Level))
}

// Validate checks values that have no sensible fallback.
func (c *Config) Validate() error {
	if _, err := strconv.Atoi(c.Server.Port); err != nil {
		return fmt.Errorf("%w: port %q is not a number", ErrInvalidConfig, c.Server.Port)
	}
	if c.Redis.Address == "" {
		return fmt.Errorf("%w: redis address is empty", ErrInvalidConfig)
	}
	if c.Pipeline.HistoryMaxTurns <= 0 {
		return fmt.Errorf("%w: history_max_turns must be positive, got %d", ErrInvalidConfig, c.Pipeline.HistoryMaxTurns)
	}
	if c.Pipeline.DedupeCacheSize <= 0 {
		return fmt.Errorf("%w: dedupe_cache_size must be positive, got %d", ErrInvalidConfig, c.Pipeline.DedupeCacheSize)
	}
	if c.NATS.URL != "" && (c.NATS.InboundSubject == "" || c.NATS.ResultSubjectPrefix == "") {
		return fmt.Errorf("%w: nats subjects must be set when nats is enabled", ErrInvalidConfig)
	}
	return nil
}

// EngineConfig returns the intent engine configuration.
func (c *Config) EngineConfig() intent.Config {
	return intent.Config{
		ContextualLogicEnabled: c.Intent.ContextualLogic,
		ContextValidityMinutes: c.Intent.ContextValidityMinutes,
		AssistantName:          c.Intent.AssistantName,
	}
}

// StoreTimeout bounds every redis call.
func (c *Config) StoreTimeout() time.Duration {
	return time.Duration(c.Redis.TimeoutMS) * time.Millisecond
}

// NearCacheTTL returns 0 when the near cache is disabled.
func (c *Config) NearCacheTTL() time.Duration {
	if c.Redis.NearCacheTTLSeconds <= 0 {
		return 0
	}
	return time.Duration(c.Redis.NearCacheTTLSeconds) * time.Second
}

// TurnLockWait bounds how long a turn waits for the previous one of the
// same user.
func (c *Config) TurnLockWait() time.Duration {
	return time.Duration(c.Pipeline.TurnLockWaitMS) * time.Millisecond
}

// TurnLockTTL is how long an abandoned turn lock survives.
func (c *Config) TurnLockTTL() time.Duration {
	if c.Pipeline.TurnLockTTLSeconds <= 0 {
		return 30 * time.Second
	}
	return time.Duration(c.Pipeline.TurnLockTTLSeconds) * time.Second
}

// Debug reports whether development logging was requested.
func (c *Config) Debug() bool {
	return c.Logging.Level == "debug"
}

func lookupEnv(key string) (string, bool) {
	v, ok := os.LookupEnv(key)
	if !ok || strings.TrimSpace(v) == "" {
		return "", false
	}
	return strings.TrimSpace(v), true
}

func getEnv(key, defaultVal string) string {
	if val, ok := lookupEnv(key); ok {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val, ok := lookupEnv(key); ok {
		if n, err := strconv.Atoi(val); err == nil {
			return n
		}
	}
	return defaultVal
}

// splitList splits a comma-separated value, dropping blank entries.
func splitList(v string) []string {
	var out []string
	for _, item := range strings.Split(v, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func parseFlag(v string) bool {
	b, err := strconv.ParseBool(v)
	if err != nil {
		return strings.EqualFold(v, "yes") || strings.EqualFold(v, "on")
	}
	return b
}

// validityMinutes parses CONTEXT_VALIDITY_MINUTES. Non-numeric and
// non-positive values fall back to the default window.
func validityMinutes(v string) int {
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return intent.DefaultContextValidityMinutes
	}
	return n
}
