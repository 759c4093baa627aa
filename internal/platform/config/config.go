package config

import (
	"os"
	"strings"
	"time"
)

// Server captures process-level configuration. Loaded once at startup; the
// engine never mutates it.
type Server struct {
	Addr           string
	PolicyFile     string
	JWTSigningKey  string
	RedisURL       string
	PostgresDSN    string
	KafkaBrokers   []string
	KafkaTopic     string
	ExecutorURL    string
	NotifierURL    string
	ShutdownGrace  time.Duration
	AuditFeedDepth int
}

// FromEnv builds a Server config from environment variables so main stays
// lean. Absent stores (Redis, Postgres, Kafka) leave the engine on its
// in-memory backends.
func FromEnv() Server {
	cfg := Server{
		Addr:           envOr("WARDEN_ADDR", ":8080"),
		PolicyFile:     os.Getenv("WARDEN_POLICY_FILE"),
		JWTSigningKey:  envOr("WARDEN_JWT_SIGNING_KEY", "dev-secret-key-change-in-production"),
		RedisURL:       os.Getenv("WARDEN_REDIS_URL"),
		PostgresDSN:    os.Getenv("WARDEN_POSTGRES_DSN"),
		KafkaTopic:     envOr("WARDEN_KAFKA_TOPIC", "warden.audit"),
		ExecutorURL:    os.Getenv("WARDEN_EXECUTOR_URL"),
		NotifierURL:    os.Getenv("WARDEN_NOTIFIER_URL"),
		ShutdownGrace:  10 * time.Second,
		AuditFeedDepth: 256,
	}
	if brokers := os.Getenv("WARDEN_KAFKA_BROKERS"); brokers != "" {
		cfg.KafkaBrokers = strings.Split(brokers, ",")
	}
	return cfg
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
