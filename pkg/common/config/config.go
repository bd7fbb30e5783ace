package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	// Server
	ServerPort   string
	ServerHost   string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration

	// Database
	PostgresHost     string
	PostgresPort     string
	PostgresUser     string
	PostgresPassword string
	PostgresDB       string
	PostgresSSLMode  string

	// Redis
	RedisHost     string
	RedisPort     string
	RedisPassword string
	RedisDB       int

	// Kafka
	KafkaBrokers []string
	KafkaGroupID string

	// Message handling
	ConsumerMaxAttempts   int
	ConsumerRetryInterval time.Duration
	ConsumerRetryFactor   float64

	// Scraping
	ScrapeRequestDelay time.Duration
	ScrapeTimeout      time.Duration
	ScrapeMaxPages     int

	// Orchestrator
	SourcesFile       string
	SchedulerInterval time.Duration
	SchedulerLockTTL  time.Duration
	WatchdogInterval  time.Duration
	StaleJobThreshold time.Duration
}

func Load() *Config {
	return &Config{
		ServerPort:   getEnv("SERVER_PORT", "8080"),
		ServerHost:   getEnv("SERVER_HOST", "0.0.0.0"),
		ReadTimeout:  getDuration("READ_TIMEOUT", 30*time.Second),
		WriteTimeout: getDuration("WRITE_TIMEOUT", 30*time.Second),

		PostgresHost:     getEnv("POSTGRES_HOST", "localhost"),
		PostgresPort:     getEnv("POSTGRES_PORT", "5432"),
		PostgresUser:     getEnv("POSTGRES_USER", "gimmescrapes"),
		PostgresPassword: getEnv("POSTGRES_PASSWORD", "gimmescrapes123"),
		PostgresDB:       getEnv("POSTGRES_DB", "gimmescrapes"),
		PostgresSSLMode:  getEnv("POSTGRES_SSLMODE", "disable"),

		RedisHost:     getEnv("REDIS_HOST", "localhost"),
		RedisPort:     getEnv("REDIS_PORT", "6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getIntEnv("REDIS_DB", 0),

		KafkaBrokers: getStringSliceEnv("KAFKA_BROKERS", []string{"localhost:9092"}),
		KafkaGroupID: getEnv("KAFKA_GROUP_ID", "gimmescrapes-worker"),

		ConsumerMaxAttempts:   getIntEnv("CONSUMER_MAX_ATTEMPTS", 3),
		ConsumerRetryInterval: getDuration("CONSUMER_RETRY_INTERVAL", 1*time.Second),
		ConsumerRetryFactor:   getFloatEnv("CONSUMER_RETRY_FACTOR", 2.0),

		ScrapeRequestDelay: getDuration("SCRAPE_REQUEST_DELAY", 2*time.Second),
		ScrapeTimeout:      getDuration("SCRAPE_TIMEOUT", 10*time.Second),
		ScrapeMaxPages:     getIntEnv("SCRAPE_MAX_PAGES", 0),

		SourcesFile:       getEnv("SOURCES_FILE", "sources.yaml"),
		SchedulerInterval: getDuration("SCHEDULER_INTERVAL", 1*time.Minute),
		SchedulerLockTTL:  getDuration("SCHEDULER_LOCK_TTL", 10*time.Minute),
		WatchdogInterval:  getDuration("WATCHDOG_INTERVAL", 15*time.Minute),
		StaleJobThreshold: getDuration("STALE_JOB_THRESHOLD", 1*time.Hour),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getFloatEnv(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

func getStringSliceEnv(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		parts := strings.Split(value, ",")
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}
		return parts
	}
	return defaultValue
}

func getDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
