package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	SessionBackendRedis     = "redis"
	SessionBackendFirestore = "firestore"

	AuthModeFirebase = "firebase"
	AuthModeHeader   = "header"
)

type Config struct {
	Server     ServerConfig
	Database   DatabaseConfig
	Redis      RedisConfig
	Firebase   FirebaseConfig
	Storage    StorageConfig
	Generation GenerationConfig
	Sweeper    SweeperConfig
	App        AppConfig
}

type ServerConfig struct {
	Port           string
	AllowedOrigins []string
}

type DatabaseConfig struct {
	DSN      string
	MaxConns int
	MinConns int
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type FirebaseConfig struct {
	ProjectID       string
	CredentialsPath string
}

// StorageConfig selects the backends for sessions and artifacts. Bucket is
// required; there is no discovery of a default bucket.
type StorageConfig struct {
	SessionBackend string
	Bucket         string
	Region         string
	Endpoint       string
	Prefix         string
	URLTTL         time.Duration
}

type GenerationConfig struct {
	APIKey       string
	TextModel    string
	ImageModel   string
	Concurrency  int
	MaxAttempts  int
	BackoffBase  time.Duration
	RequestsPerM int
}

type SweeperConfig struct {
	StaleAfter time.Duration
	Schedule   string
}

type AppConfig struct {
	Environment string
	LogLevel    string
	Version     string
	AuthMode    string
}

func Load() (*Config, error) {
	// Load .env file if it exists (ignore error in production)
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	cfg := &Config{
		Server: ServerConfig{
			Port:           getEnv("PORT", "8080"),
			AllowedOrigins: getEnvAsList("CORS_ALLOWED_ORIGINS", []string{"http://localhost:3000"}),
		},
		Database: DatabaseConfig{
			DSN:      getEnv("DB_DSN", ""),
			MaxConns: getEnvAsInt("DB_MAX_CONNS", 10),
			MinConns: getEnvAsInt("DB_MIN_CONNS", 2),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
		},
		Firebase: FirebaseConfig{
			ProjectID:       getEnv("FIREBASE_PROJECT_ID", ""),
			CredentialsPath: getEnv("FIREBASE_CREDENTIALS_PATH", ""),
		},
		Storage: StorageConfig{
			SessionBackend: getEnv("SESSION_BACKEND", SessionBackendRedis),
			Bucket:         getEnv("ARTIFACT_BUCKET", ""),
			Region:         getEnv("ARTIFACT_REGION", "us-east-1"),
			Endpoint:       getEnv("ARTIFACT_ENDPOINT", ""),
			Prefix:         getEnv("ARTIFACT_PREFIX", ""),
			URLTTL:         getEnvAsDuration("ARTIFACT_URL_TTL", time.Hour),
		},
		Generation: GenerationConfig{
			APIKey:       getEnv("GEMINI_API_KEY", ""),
			TextModel:    getEnv("TEXT_MODEL", "gemini-2.5-flash"),
			ImageModel:   getEnv("IMAGE_MODEL", "gemini-2.5-flash-image"),
			Concurrency:  getEnvAsInt("RENDER_CONCURRENCY", 2),
			MaxAttempts:  getEnvAsInt("PROVIDER_MAX_ATTEMPTS", 3),
			BackoffBase:  getEnvAsDuration("PROVIDER_BACKOFF_BASE", time.Second),
			RequestsPerM: getEnvAsInt("PROVIDER_RPM", 0),
		},
		Sweeper: SweeperConfig{
			StaleAfter: getEnvAsDuration("STALE_PROJECT_AFTER", time.Hour),
			Schedule:   getEnv("SWEEP_SCHEDULE", "0 */10 * * * *"),
		},
		App: AppConfig{
			Environment: getEnv("APP_ENV", "development"),
			LogLevel:    getEnv("LOG_LEVEL", "info"),
			Version:     getEnv("APP_VERSION", "1.0.0"),
			AuthMode:    getEnv("AUTH_MODE", AuthModeFirebase),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("PORT is required")
	}

	if c.Database.DSN == "" {
		return fmt.Errorf("DB_DSN is required")
	}

	if c.Storage.Bucket == "" {
		return fmt.Errorf("ARTIFACT_BUCKET is required")
	}

	switch c.Storage.SessionBackend {
	case SessionBackendRedis:
		if c.Redis.Addr == "" {
			return fmt.Errorf("REDIS_ADDR is required for the redis session backend")
		}
	case SessionBackendFirestore:
		if c.Firebase.ProjectID == "" {
			return fmt.Errorf("FIREBASE_PROJECT_ID is required for the firestore session backend")
		}
	default:
		return fmt.Errorf("SESSION_BACKEND must be %q or %q, got %q", SessionBackendRedis, SessionBackendFirestore, c.Storage.SessionBackend)
	}

	switch c.App.AuthMode {
	case AuthModeFirebase, AuthModeHeader:
	default:
		return fmt.Errorf("AUTH_MODE must be %q or %q, got %q", AuthModeFirebase, AuthModeHeader, c.App.AuthMode)
	}

	if c.Generation.Concurrency < 1 {
		return fmt.Errorf("RENDER_CONCURRENCY must be at least 1")
	}
	if c.Generation.MaxAttempts < 1 {
		return fmt.Errorf("PROVIDER_MAX_ATTEMPTS must be at least 1")
	}
	if c.Generation.TextModel == "" || c.Generation.ImageModel == "" {
		return fmt.Errorf("TEXT_MODEL and IMAGE_MODEL are required")
	}

	return nil
}

// UsesFirebase reports whether a Firebase app has to be initialized.
func (c *Config) UsesFirebase() bool {
	return c.App.AuthMode == AuthModeFirebase || c.Storage.SessionBackend == SessionBackendFirestore
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.Atoi(valueStr)
	if err != nil {
		log.Printf("Warning: Invalid integer for %s, using default: %d", key, defaultValue)
		return defaultValue
	}

	return value
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := time.ParseDuration(valueStr)
	if err != nil {
		log.Printf("Warning: Invalid duration for %s, using default: %s", key, defaultValue)
		return defaultValue
	}

	return value
}

func getEnvAsList(key string, defaultValue []string) []string {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	var out []string
	for _, part := range strings.Split(valueStr, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
