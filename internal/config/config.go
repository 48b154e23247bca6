package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Rate limiter behavior when its backing store is unreachable.
const (
	FailOpen   = "open"
	FailClosed = "closed"
)

// Config holds configuration for the gateway.
type Config struct {
	HTTPPort      string
	JWTSecret     []byte
	Database      DatabaseConfig
	Redis         RedisConfig
	RateLimit     RateLimitConfig
	Backend       BackendConfig
	Payment       PaymentConfig
	Jobs          JobsConfig
	Results       ResultsConfig
	Pricing       PricingConfig
	RequestLogger RequestLoggerConfig
}

// DatabaseConfig holds database connection settings
type DatabaseConfig struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
	APIKeyCacheSize int
	APIKeyCacheTTL  time.Duration
}

// RedisConfig holds Redis connection settings. An empty address runs the
// gateway in standalone mode with in-memory rate limiting and queueing.
type RedisConfig struct {
	Address      string
	Password     string
	DB           int
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// RateLimitConfig holds per-key rate limiting settings
type RateLimitConfig struct {
	RequestsPerWindow int
	Window            time.Duration
	// FailPolicy selects what happens when the limiter store is
	// unreachable: "open" admits, "closed" rejects. Logged at startup.
	FailPolicy string
}

// BackendConfig holds conversion backend settings
type BackendConfig struct {
	URL            string
	RequestTimeout time.Duration
	MaxRetries     int
	RetryBackoff   time.Duration
}

// PaymentConfig holds payment collaborator settings
type PaymentConfig struct {
	URL            string
	APIKey         string
	RequestTimeout time.Duration
}

// JobsConfig holds async job tracking settings
type JobsConfig struct {
	Workers       int
	RunningGrace  time.Duration // Running longer than this is a reportable anomaly
	SweepInterval time.Duration
	Retention     time.Duration // terminal jobs older than this are purged
}

// ResultsConfig holds conversion output storage settings
type ResultsConfig struct {
	Store         string // "memory" or "s3"
	S3Bucket      string
	S3Region      string
	S3Prefix      string
	EncryptionKey string // base64 AES key; empty disables at-rest encryption
}

// PricingConfig holds credit pricing settings
type PricingConfig struct {
	CreditsPerPage        int
	MinCreditsPerDocument int
}

type RequestLoggerConfig struct {
	FilePathTemplate string
	MaxSize          int64
	MaxFiles         int
	BufferSize       int
	FlushInterval    time.Duration
}

func getEnvInt(key string, defaultValue int) int {
	val := os.Getenv(key)
	if val == "" {
		return defaultValue
	}

	intVal, err := strconv.Atoi(val)
	if err != nil {
		return defaultValue
	}

	return intVal
}

func getEnvInt64(key string, defaultValue int64) int64 {
	val := os.Getenv(key)
	if val == "" {
		return defaultValue
	}
	intVal, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return defaultValue
	}
	return intVal
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	val := os.Getenv(key)
	if val == "" {
		return defaultValue
	}

	duration, err := time.ParseDuration(val)
	if err != nil {
		return defaultValue
	}

	return duration
}

func getEnvString(key string, defaultValue string) string {
	val := os.Getenv(key)
	if val == "" {
		return defaultValue
	}
	return val
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	port := getEnvString("HTTP_PORT", "8080")
	jwtSecret := []byte(getEnvString("JWT_SECRET", "supersecretkey"))

	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	failPolicy := getEnvString("RATE_LIMIT_FAIL_POLICY", FailOpen)
	if failPolicy != FailOpen && failPolicy != FailClosed {
		return nil, fmt.Errorf("RATE_LIMIT_FAIL_POLICY must be %q or %q, got %q", FailOpen, FailClosed, failPolicy)
	}

	resultsStore := getEnvString("RESULTS_STORE", "memory")
	if resultsStore == "s3" && os.Getenv("RESULTS_S3_BUCKET") == "" {
		return nil, fmt.Errorf("RESULTS_S3_BUCKET is required when RESULTS_STORE=s3")
	}

	cfg := &Config{
		HTTPPort:  port,
		JWTSecret: jwtSecret,
		Database: DatabaseConfig{
			URL:             dbURL,
			MaxOpenConns:    getEnvInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    getEnvInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: getEnvDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute),
			ConnMaxIdleTime: getEnvDuration("DB_CONN_MAX_IDLE_TIME", 1*time.Minute),
			APIKeyCacheSize: getEnvInt("CACHE_API_KEY_SIZE", 1000),
			APIKeyCacheTTL:  getEnvDuration("CACHE_API_KEY_TTL", 5*time.Minute),
		},
		Redis: RedisConfig{
			Address:      getEnvString("REDIS_ADDRESS", ""),
			Password:     getEnvString("REDIS_PASSWORD", ""),
			DB:           getEnvInt("REDIS_DB", 0),
			PoolSize:     getEnvInt("REDIS_POOL_SIZE", 10),
			MinIdleConns: getEnvInt("REDIS_MIN_IDLE_CONNS", 2),
			DialTimeout:  getEnvDuration("REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  getEnvDuration("REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: getEnvDuration("REDIS_WRITE_TIMEOUT", 3*time.Second),
		},
		RateLimit: RateLimitConfig{
			RequestsPerWindow: getEnvInt("RATE_LIMIT_REQUESTS", 60),
			Window:            getEnvDuration("RATE_LIMIT_WINDOW", time.Minute),
			FailPolicy:        failPolicy,
		},
		Backend: BackendConfig{
			URL:            getEnvString("BACKEND_URL", "http://localhost:5001"),
			RequestTimeout: getEnvDuration("BACKEND_REQUEST_TIMEOUT", 120*time.Second),
			MaxRetries:     getEnvInt("BACKEND_MAX_RETRIES", 3),
			RetryBackoff:   getEnvDuration("BACKEND_RETRY_BACKOFF", time.Second),
		},
		Payment: PaymentConfig{
			URL:            getEnvString("PAYMENT_URL", ""),
			APIKey:         getEnvString("PAYMENT_API_KEY", ""),
			RequestTimeout: getEnvDuration("PAYMENT_REQUEST_TIMEOUT", 30*time.Second),
		},
		Jobs: JobsConfig{
			Workers:       getEnvInt("JOB_WORKERS", 4),
			RunningGrace:  getEnvDuration("JOB_RUNNING_GRACE", 10*time.Minute),
			SweepInterval: getEnvDuration("JOB_SWEEP_INTERVAL", time.Minute),
			Retention:     getEnvDuration("JOB_RETENTION", 7*24*time.Hour),
		},
		Results: ResultsConfig{
			Store:         resultsStore,
			S3Bucket:      getEnvString("RESULTS_S3_BUCKET", ""),
			S3Region:      getEnvString("RESULTS_S3_REGION", "us-east-1"),
			S3Prefix:      getEnvString("RESULTS_S3_PREFIX", "results/"),
			EncryptionKey: getEnvString("RESULTS_ENCRYPTION_KEY", ""),
		},
		Pricing: PricingConfig{
			CreditsPerPage:        getEnvInt("CREDITS_PER_PAGE", 1),
			MinCreditsPerDocument: getEnvInt("MIN_CREDITS_PER_DOCUMENT", 1),
		},
		RequestLogger: RequestLoggerConfig{
			FilePathTemplate: getEnvString("REQUEST_LOGGER_FILE_PATH_TEMPLATE", "/var/log/doc-gateway/requests-%s.jsonl"),
			MaxSize:          getEnvInt64("REQUEST_LOGGER_MAX_SIZE", 10_485_760),
			MaxFiles:         getEnvInt("REQUEST_LOGGER_MAX_FILES", 5),
			BufferSize:       getEnvInt("REQUEST_LOGGER_BUFFER_SIZE", 100),
			FlushInterval:    getEnvDuration("REQUEST_LOGGER_FLUSH_INTERVAL", 60*time.Second),
		},
	}

	return cfg, nil
}
