package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config groups all runtime configuration. Everything is environment
// driven so main stays lean and deployments stay twelve-factor.
type Config struct {
	Server      Server
	Catalog     Catalog
	Fulfillment Fulfillment
	Redis       Redis
	Postgres    Postgres
	Kafka       Kafka
}

// Server captures HTTP server level configuration.
type Server struct {
	Addr          string
	JWTSigningKey string
	DevSeed       bool
}

// Catalog locates the policy catalog file and controls hot reload.
type Catalog struct {
	Path   string
	Reload bool
}

// Fulfillment holds the retry policy for external fulfillment calls.
// Attempt count and delay curve are deliberately configuration, not
// constants.
type Fulfillment struct {
	MaxAttempts    uint64
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

// Redis configures the optional shared stock ledger backend.
type Redis struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// Postgres configures the optional durable audit store.
type Postgres struct {
	DSN string
}

// Kafka configures the optional audit outbox publisher.
type Kafka struct {
	Brokers []string
	Topic   string
}

// FromEnv builds a Config from environment variables with development
// defaults.
func FromEnv() Config {
	return Config{
		Server: Server{
			Addr:          envStr("ONBOARD_ADDR", ":8080"),
			JWTSigningKey: envStr("ONBOARD_JWT_SIGNING_KEY", "dev-secret-key-change-in-production"),
			DevSeed:       os.Getenv("ONBOARD_DEV_SEED") == "true",
		},
		Catalog: Catalog{
			Path:   envStr("ONBOARD_CATALOG_PATH", "config/catalog.yaml"),
			Reload: os.Getenv("ONBOARD_CATALOG_RELOAD") != "false",
		},
		Fulfillment: Fulfillment{
			MaxAttempts:    uint64(envInt("ONBOARD_FULFILL_MAX_ATTEMPTS", 3)),
			InitialBackoff: envDur("ONBOARD_FULFILL_INITIAL_BACKOFF", 200*time.Millisecond),
			MaxBackoff:     envDur("ONBOARD_FULFILL_MAX_BACKOFF", 5*time.Second),
		},
		Redis: Redis{
			URL:          os.Getenv("ONBOARD_REDIS_URL"),
			PoolSize:     envInt("ONBOARD_REDIS_POOL_SIZE", 10),
			MinIdleConns: envInt("ONBOARD_REDIS_MIN_IDLE_CONNS", 2),
			DialTimeout:  envDur("ONBOARD_REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  envDur("ONBOARD_REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: envDur("ONBOARD_REDIS_WRITE_TIMEOUT", 3*time.Second),
		},
		Postgres: Postgres{
			DSN: os.Getenv("ONBOARD_POSTGRES_DSN"),
		},
		Kafka: Kafka{
			Brokers: envList("ONBOARD_KAFKA_BROKERS"),
			Topic:   envStr("ONBOARD_KAFKA_AUDIT_TOPIC", "onboard.audit"),
		},
	}
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envDur(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func envList(key string) []string {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	parts := strings.Split(v, ",")
	out := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
