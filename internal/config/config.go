package config

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	APIPort  string
	LogLevel string

	DatasetPath string
	ModelPath   string

	ONNXRuntimeLibPath string

	PostgresDSN string

	NATSURL     string
	NATSSubject string

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	ArchivePath string

	SessionTTL        time.Duration
	MaxUploadBytes    int64
	SQLScriptTimeout  time.Duration
	SQLMaxPages       int
	BulkPreviewRows   int
	RunsDefaultLimit  int
	SQLUploadTable    string
	ResultsTableName  string
	SampleTableName   string
	APIMaxConnections int

	APIRateLimitRPS       float64
	APIRateLimitBurst     int
	APIMaxInFlight        int
	APIBackpressureWaitMS int

	RetryMaxAttempts        int
	RetryInitialBackoff     time.Duration
	RetryMaxBackoff         time.Duration
	RetryMultiplier         float64
	BreakerEnabled          bool
	BreakerMinRequests      int
	BreakerFailureRatio     float64
	BreakerOpenTimeout      time.Duration
	BreakerHalfOpenMaxCalls int

	WorkerMetricsPort string
}

func Load() Config {
	return Config{
		APIPort:  mustEnv("API_PORT", "8080"),
		LogLevel: mustEnv("LOG_LEVEL", "info"),

		DatasetPath: mustEnv("DATASET_PATH", "./data/loan_data.csv"),
		ModelPath:   mustEnv("MODEL_PATH", "./data/loan_model.json"),

		ONNXRuntimeLibPath: mustEnv("ONNXRUNTIME_SHARED_LIBRARY_PATH", ""),

		PostgresDSN: mustEnv("POSTGRES_DSN", ""),

		NATSURL:     mustEnv("NATS_URL", ""),
		NATSSubject: mustEnv("NATS_SUBJECT", "loans.prediction_runs"),

		RedisAddr:     mustEnv("REDIS_ADDR", ""),
		RedisPassword: mustEnv("REDIS_PASSWORD", ""),
		RedisDB:       mustEnvInt("REDIS_DB", 0),

		ArchivePath: mustEnv("ARCHIVE_PATH", ""),

		SessionTTL:        mustEnvDuration("SESSION_TTL", 30*time.Minute),
		MaxUploadBytes:    int64(mustEnvInt("MAX_UPLOAD_BYTES", 20<<20)),
		SQLScriptTimeout:  mustEnvDuration("SQL_SCRIPT_TIMEOUT", 10*time.Second),
		SQLMaxPages:       mustEnvInt("SQL_MAX_PAGES", 16384),
		BulkPreviewRows:   mustEnvInt("BULK_PREVIEW_ROWS", 5),
		RunsDefaultLimit:  mustEnvInt("RUNS_DEFAULT_LIMIT", 20),
		SQLUploadTable:    mustEnv("SQL_UPLOAD_TABLE", "loan_data"),
		ResultsTableName:  mustEnv("RESULTS_TABLE_NAME", "loan_predictions"),
		SampleTableName:   mustEnv("SAMPLE_TABLE_NAME", "loan_data"),
		APIMaxConnections: mustEnvInt("API_MAX_CONNECTIONS", 256),

		APIRateLimitRPS:       mustEnvFloat("API_RATE_LIMIT_RPS", 20),
		APIRateLimitBurst:     mustEnvInt("API_RATE_LIMIT_BURST", 40),
		APIMaxInFlight:        mustEnvInt("API_MAX_IN_FLIGHT", 32),
		APIBackpressureWaitMS: mustEnvInt("API_BACKPRESSURE_WAIT_MS", 250),

		RetryMaxAttempts:        mustEnvInt("RETRY_MAX_ATTEMPTS", 3),
		RetryInitialBackoff:     mustEnvDuration("RETRY_INITIAL_BACKOFF", 100*time.Millisecond),
		RetryMaxBackoff:         mustEnvDuration("RETRY_MAX_BACKOFF", 2*time.Second),
		RetryMultiplier:         mustEnvFloat("RETRY_MULTIPLIER", 2),
		BreakerEnabled:          mustEnvBool("BREAKER_ENABLED", true),
		BreakerMinRequests:      mustEnvInt("BREAKER_MIN_REQUESTS", 5),
		BreakerFailureRatio:     mustEnvFloat("BREAKER_FAILURE_RATIO", 0.6),
		BreakerOpenTimeout:      mustEnvDuration("BREAKER_OPEN_TIMEOUT", 30*time.Second),
		BreakerHalfOpenMaxCalls: mustEnvInt("BREAKER_HALF_OPEN_MAX_CALLS", 1),

		WorkerMetricsPort: mustEnv("WORKER_METRICS_PORT", "9090"),
	}
}

// HistoryEnabled reports whether prediction runs are persisted to Postgres.
func (c Config) HistoryEnabled() bool {
	return c.PostgresDSN != ""
}

func mustEnv(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func mustEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func mustEnvFloat(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fallback
	}
	return f
}

func mustEnvBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return parsed
}

func mustEnvDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}
