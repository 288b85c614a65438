package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds all configuration for the application. It is built once at
// process start and passed down by value; components never read the
// environment themselves.
type Config struct {
	Storage Storage
	Fetch   Fetch
	Metrics Metrics
	Logging Logging
	Server  Server
}

// Storage holds storage-related configuration.
type Storage struct {
	Type        string // "dynamodb", "mongodb", "postgresql"
	Region      string // For AWS DynamoDB
	TableName   string
	Endpoint    string // Custom endpoint for local testing
	MongoDBURI  string
	PostgresURI string
}

// Fetch holds external-source configuration.
type Fetch struct {
	SourceURL   string
	Timeout     time.Duration // per-attempt timeout
	MaxAttempts int
	UserAgent   string
}

// Metrics holds metrics-backend configuration.
type Metrics struct {
	Region       string
	FunctionName string // emitted as the FunctionName dimension
	Disabled     bool
}

// Logging holds logging configuration.
type Logging struct {
	Level  string // debug, info, warn, error
	Format string // json, text
}

// Server holds the read-back HTTP server configuration.
type Server struct {
	Port     int
	Interval time.Duration // re-run cadence in serve mode
}

// Load loads configuration from environment variables with defaults.
func Load() (*Config, error) {
	region := getEnv("AWS_REGION", "us-east-1")

	cfg := &Config{
		Storage: Storage{
			Type:        getEnv("STORAGE_TYPE", "dynamodb"),
			Region:      region,
			TableName:   getEnv("TABLE_NAME", "iac-data-store"),
			Endpoint:    getEnv("DYNAMODB_ENDPOINT", ""), // For local DynamoDB
			MongoDBURI:  getEnv("MONGODB_URI", ""),
			PostgresURI: getEnv("POSTGRES_URI", ""),
		},
		Fetch: Fetch{
			SourceURL:   getEnv("API_URL", "https://jsonplaceholder.typicode.com/posts"),
			Timeout:     getEnvDuration("API_TIMEOUT", 10*time.Second),
			MaxAttempts: getEnvInt("MAX_RETRIES", 3),
			UserAgent:   getEnv("USER_AGENT", "pipeline-runner/1.0"),
		},
		Metrics: Metrics{
			Region:       region,
			FunctionName: getEnv("FUNCTION_NAME", "data-fetcher"),
			Disabled:     getEnvBool("METRICS_DISABLED", false),
		},
		Logging: Logging{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
		Server: Server{
			Port:     getEnvInt("SERVER_PORT", 8080),
			Interval: getEnvDuration("INGESTION_INTERVAL", 5*time.Minute),
		},
	}

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
