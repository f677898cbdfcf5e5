package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all service settings, populated from environment variables.
type Config struct {
	DBURL    string
	Timezone *time.Location

	CrawlInterval  time.Duration
	MaxConcurrency int

	UserAgent      string
	RequestTimeout time.Duration
	ProxyPool      []string

	SourcesFile   string
	RulesFile     string
	StoreRejected bool

	KafkaBrokers     []string
	KafkaEventsTopic string
	BroadcastQueue   int

	LogsDir string

	HTTPAddr        string
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration
}

// Load reads configuration from environment variables, applying defaults
// where unset.
func Load() (*Config, error) {
	tzName := envOrDefault("APP_TIMEZONE", "Asia/Ho_Chi_Minh")
	tz, err := time.LoadLocation(tzName)
	if err != nil {
		return nil, fmt.Errorf("invalid APP_TIMEZONE %q: %w", tzName, err)
	}

	intervalMin, err := parsePositiveInt("CRAWL_INTERVAL_MINUTES", 15)
	if err != nil {
		return nil, err
	}

	timeoutSec, err := parsePositiveInt("REQUEST_TIMEOUT_SECONDS", 10)
	if err != nil {
		return nil, err
	}

	concurrency, err := parsePositiveInt("MAX_CONCURRENCY", 8)
	if err != nil {
		return nil, err
	}

	queueSize, err := parsePositiveInt("BROADCAST_QUEUE", 256)
	if err != nil {
		return nil, err
	}

	// Default shutdown bound: enough to drain one in-flight request per
	// worker, twice over.
	shutdownTimeout, err := parseDuration("SHUTDOWN_TIMEOUT", 2*time.Duration(timeoutSec)*time.Second)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		DBURL:    envOrDefault("APP_DB_URL", "disaster.db"),
		Timezone: tz,

		CrawlInterval:  time.Duration(intervalMin) * time.Minute,
		MaxConcurrency: concurrency,

		UserAgent:      envOrDefault("USER_AGENT", "vietwatch-crawler/1.0"),
		RequestTimeout: time.Duration(timeoutSec) * time.Second,
		ProxyPool:      splitList(os.Getenv("PROXY_POOL")),

		SourcesFile:   os.Getenv("SOURCES_FILE"),
		RulesFile:     os.Getenv("RULES_FILE"),
		StoreRejected: os.Getenv("STORE_REJECTED") == "true",

		KafkaBrokers:     splitList(envOrDefault("KAFKA_BROKERS", "localhost:9092")),
		KafkaEventsTopic: envOrDefault("KAFKA_EVENTS_TOPIC", "disaster-events"),
		BroadcastQueue:   queueSize,

		LogsDir: envOrDefault("LOGS_DIR", "logs"),

		HTTPAddr:        envOrDefault("HTTP_ADDR", ":8080"),
		LogLevel:        envOrDefault("LOG_LEVEL", "info"),
		LogFormat:       envOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout: shutdownTimeout,
	}

	if cfg.DBURL == "" {
		return nil, errors.New("APP_DB_URL is required")
	}
	if len(cfg.KafkaBrokers) == 0 {
		return nil, errors.New("KAFKA_BROKERS is required")
	}
	if cfg.KafkaEventsTopic == "" {
		return nil, errors.New("KAFKA_EVENTS_TOPIC is required")
	}

	return cfg, nil
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func parsePositiveInt(key string, fallback int) (int, error) {
	s := os.Getenv(key)
	if s == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid %s: %q", key, s)
	}
	return n, nil
}

func parseDuration(key string, fallback time.Duration) (time.Duration, error) {
	s := os.Getenv(key)
	if s == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid %s: %q", key, s)
	}
	return d, nil
}

// splitList parses a comma-separated list, trimming whitespace and dropping
// empty elements.
func splitList(s string) []string {
	if s == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
