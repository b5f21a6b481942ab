package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	return &Config{
		Server:   ServerConfig{Port: "8080"},
		Database: DatabaseConfig{DSN: "postgres://localhost/infographics"},
		Redis:    RedisConfig{Addr: "localhost:6379"},
		Storage:  StorageConfig{SessionBackend: SessionBackendRedis, Bucket: "artifacts", URLTTL: time.Hour},
		Generation: GenerationConfig{
			TextModel:   "gemini-2.5-flash",
			ImageModel:  "gemini-2.5-flash-image",
			Concurrency: 2,
			MaxAttempts: 3,
		},
		App: AppConfig{AuthMode: AuthModeHeader},
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{"valid", func(c *Config) {}, ""},
		{"missing dsn", func(c *Config) { c.Database.DSN = "" }, "DB_DSN"},
		{"missing bucket", func(c *Config) { c.Storage.Bucket = "" }, "ARTIFACT_BUCKET"},
		{"unknown backend", func(c *Config) { c.Storage.SessionBackend = "memcached" }, "SESSION_BACKEND"},
		{"firestore without project", func(c *Config) { c.Storage.SessionBackend = SessionBackendFirestore }, "FIREBASE_PROJECT_ID"},
		{"unknown auth mode", func(c *Config) { c.App.AuthMode = "none" }, "AUTH_MODE"},
		{"zero concurrency", func(c *Config) { c.Generation.Concurrency = 0 }, "RENDER_CONCURRENCY"},
		{"zero attempts", func(c *Config) { c.Generation.MaxAttempts = 0 }, "PROVIDER_MAX_ATTEMPTS"},
		{"missing model", func(c *Config) { c.Generation.ImageModel = "" }, "IMAGE_MODEL"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := validConfig()
			tt.mutate(c)
			err := c.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestUsesFirebase(t *testing.T) {
	c := validConfig()
	assert.False(t, c.UsesFirebase())

	c.Storage.SessionBackend = SessionBackendFirestore
	assert.True(t, c.UsesFirebase())

	c = validConfig()
	c.App.AuthMode = AuthModeFirebase
	assert.True(t, c.UsesFirebase())
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("DB_DSN", "postgres://localhost/test")
	t.Setenv("ARTIFACT_BUCKET", "bucket")
	t.Setenv("AUTH_MODE", AuthModeHeader)
	t.Setenv("RENDER_CONCURRENCY", "4")
	t.Setenv("PROVIDER_BACKOFF_BASE", "250ms")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://a.test, https://b.test,")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 4, cfg.Generation.Concurrency)
	assert.Equal(t, 250*time.Millisecond, cfg.Generation.BackoffBase)
	assert.Equal(t, []string{"https://a.test", "https://b.test"}, cfg.Server.AllowedOrigins)
	assert.Equal(t, SessionBackendRedis, cfg.Storage.SessionBackend)
}

func TestLoadIgnoresMalformedNumbers(t *testing.T) {
	t.Setenv("DB_DSN", "postgres://localhost/test")
	t.Setenv("ARTIFACT_BUCKET", "bucket")
	t.Setenv("AUTH_MODE", AuthModeHeader)
	t.Setenv("RENDER_CONCURRENCY", "lots")
	t.Setenv("ARTIFACT_URL_TTL", "forever")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 2, cfg.Generation.Concurrency)
	assert.Equal(t, time.Hour, cfg.Storage.URLTTL)
}
