package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config captures all runtime configuration for the registration service and
// its event pipeline.
type Config struct {
	App        AppConfig
	Kafka      KafkaConfig
	Events     EventConfig
	Recovery   RecoveryConfig
	Breaker    BreakerConfig
	Enrichment EnrichmentConfig
}

// AppConfig contains generic application level settings.
type AppConfig struct {
	Env      string
	LogLevel string
}

// KafkaConfig defines broker information for producers and consumers.
type KafkaConfig struct {
	Brokers       []string
	ConsumerGroup string
}

// EventConfig controls the durable event channel.
type EventConfig struct {
	// Topics consumed by the worker binary. Producers derive the topic from
	// the event type, so no publish-side list exists.
	ConsumeTopics    []string
	DeadLetterSuffix string
}

// RecoveryConfig governs consumer-side retry and dead-letter behaviour.
type RecoveryConfig struct {
	RetryAttempts       int
	RetryDelay          time.Duration
	MaxInFlight         int
	CommitOnSuccessOnly bool
}

// BreakerConfig holds the sliding-window circuit breaker thresholds for the
// enrichment dependency.
type BreakerConfig struct {
	WindowSize              int
	MinCalls                int
	FailureThresholdPercent int
	OpenWait                time.Duration
	HalfOpenMaxCalls        int
}

// EnrichmentConfig describes the external profile dependency.
type EnrichmentConfig struct {
	BaseURL string
	Timeout time.Duration
}

// Load reads environment variables, applies defaults, validates required
// values and returns a populated Config instance.
func Load() (*Config, error) {
	_ = godotenv.Load()

	ldr := &envLoader{}

	cfg := &Config{}
	cfg.App.Env = ldr.getString("APP_ENV", "development", false)
	cfg.App.LogLevel = ldr.getString("LOG_LEVEL", "info", false)

	cfg.Kafka.Brokers = ldr.getStringSlice("KAFKA_BROKERS", true)
	cfg.Kafka.ConsumerGroup = ldr.getString("KAFKA_CONSUMER_GROUP", "user-registration-worker", false)

	cfg.Events.ConsumeTopics = ldr.getStringSlice("EVENT_CONSUME_TOPICS", false)
	if len(cfg.Events.ConsumeTopics) == 0 {
		cfg.Events.ConsumeTopics = []string{"user.created"}
	}
	cfg.Events.DeadLetterSuffix = ldr.getString("EVENT_DLT_SUFFIX", ".dlt", false)

	cfg.Recovery.RetryAttempts = ldr.getInt("RETRY_ATTEMPTS", 3, false)
	cfg.Recovery.RetryDelay = ldr.getDuration("RETRY_DELAY_MS", time.Second, false)
	cfg.Recovery.MaxInFlight = ldr.getInt("WORKER_MAX_IN_FLIGHT", 10, false)
	cfg.Recovery.CommitOnSuccessOnly = ldr.getBool("COMMIT_ON_SUCCESS_ONLY", true, false)

	cfg.Breaker.WindowSize = ldr.getInt("BREAKER_WINDOW_SIZE", 20, false)
	cfg.Breaker.MinCalls = ldr.getInt("BREAKER_MIN_CALLS", 10, false)
	cfg.Breaker.FailureThresholdPercent = ldr.getInt("BREAKER_FAILURE_THRESHOLD_PERCENT", 50, false)
	cfg.Breaker.OpenWait = ldr.getDuration("BREAKER_OPEN_WAIT_MS", 30*time.Second, false)
	cfg.Breaker.HalfOpenMaxCalls = ldr.getInt("BREAKER_HALF_OPEN_MAX_CALLS", 1, false)

	cfg.Enrichment.BaseURL = ldr.getString("ENRICHMENT_BASE_URL", "", false)
	cfg.Enrichment.Timeout = ldr.getDuration("ENRICHMENT_TIMEOUT_MS", 2*time.Second, false)

	if cfg.Recovery.RetryAttempts < 1 {
		ldr.addError("RETRY_ATTEMPTS must be >= 1")
	}
	if cfg.Breaker.WindowSize < 1 {
		ldr.addError("BREAKER_WINDOW_SIZE must be >= 1")
	}
	if cfg.Breaker.MinCalls < 1 {
		ldr.addError("BREAKER_MIN_CALLS must be >= 1")
	}
	if cfg.Breaker.FailureThresholdPercent < 1 || cfg.Breaker.FailureThresholdPercent > 100 {
		ldr.addError("BREAKER_FAILURE_THRESHOLD_PERCENT must be between 1 and 100")
	}

	if err := ldr.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

type envLoader struct {
	errs []string
}

func (l *envLoader) validate() error {
	if len(l.errs) == 0 {
		return nil
	}
	return fmt.Errorf("config validation failed: %s", strings.Join(l.errs, "; "))
}

func (l *envLoader) getString(key, def string, required bool) string {
	if val, ok := os.LookupEnv(key); ok {
		val = strings.TrimSpace(val)
		if val == "" {
			if required {
				l.addError(fmt.Sprintf("%s is required", key))
			}
			return def
		}
		return val
	}
	if required {
		l.addError(fmt.Sprintf("%s is required", key))
	}
	return def
}

func (l *envLoader) getInt(key string, def int, required bool) int {
	raw := l.getString(key, "", required)
	if raw == "" {
		return def
	}
	i, err := strconv.Atoi(raw)
	if err != nil {
		l.addError(fmt.Sprintf("%s must be a valid integer", key))
		return def
	}
	return i
}

func (l *envLoader) getBool(key string, def bool, required bool) bool {
	raw := l.getString(key, "", required)
	if raw == "" {
		return def
	}
	parsed, err := strconv.ParseBool(raw)
	if err != nil {
		l.addError(fmt.Sprintf("%s must be a valid boolean", key))
		return def
	}
	return parsed
}

// getDuration reads a millisecond count from the environment.
func (l *envLoader) getDuration(key string, def time.Duration, required bool) time.Duration {
	raw := l.getString(key, "", required)
	if raw == "" {
		return def
	}
	ms, err := strconv.Atoi(raw)
	if err != nil || ms < 0 {
		l.addError(fmt.Sprintf("%s must be a non-negative integer (milliseconds)", key))
		return def
	}
	return time.Duration(ms) * time.Millisecond
}

func (l *envLoader) getStringSlice(key string, required bool) []string {
	raw := l.getString(key, "", required)
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	var out []string
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	if required && len(out) == 0 {
		l.addError(fmt.Sprintf("%s must contain at least one entry", key))
	}
	return out
}

func (l *envLoader) addError(err string) {
	l.errs = append(l.errs, err)
}
