package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/gogotex/docflow/internal/document/workflow"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds application configuration. Every key is read from the
// environment with the DOCFLOW_ prefix, e.g. DOCFLOW_SERVER_PORT.
type Config struct {
	Server    ServerConfig
	MongoDB   MongoDBConfig
	Redis     RedisConfig
	Auth      AuthConfig
	RateLimit RateLimitConfig
	MinIO     MinIOConfig
	Workflow  WorkflowConfig
}

type ServerConfig struct {
	Port         string
	Host         string
	Environment  string
	LogLevel     string
	ReadTimeout  time.Duration
	// WriteTimeout is off by default; event streams stay open for minutes.
	WriteTimeout time.Duration
}

func (s ServerConfig) Addr() string { return s.Host + ":" + s.Port }

// MongoDBConfig is optional; without a URI documents live in memory.
type MongoDBConfig struct {
	URI      string
	Database string
	Timeout  time.Duration
}

type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
	// EventPrefix is the pub/sub channel prefix of the event fan-out.
	EventPrefix string
	CacheTTL    time.Duration
}

func (r RedisConfig) Enabled() bool { return r.Host != "" }
func (r RedisConfig) Addr() string { return r.Host + ":" + r.Port }

type AuthConfig struct {
	JWTSecret          string
	TokenTTL           time.Duration
	OIDCIssuer         string
	OIDCClient         string
	AllowInsecureToken bool
}

type RateLimitConfig struct {
	Enabled       bool
	RPS           float64
	Burst         int
	UseRedis      bool
	WindowSeconds int
}

type MinIOConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	UseSSL    bool
	Bucket    string
}

func (m MinIOConfig) Enabled() bool { return m.Endpoint != "" }

type WorkflowConfig struct {
	SnapshotPolicy workflow.SnapshotPolicy
	TemplatesDir   string
}

// LoadConfig loads configuration from environment variables after the
// optional env files (default .env) have been applied.
func LoadConfig(envFiles ...string) (*Config, error) {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, f := range envFiles {
		_ = godotenv.Load(f)
	}

	v := viper.New()
	v.SetEnvPrefix("DOCFLOW")
	v.AutomaticEnv()

	v.SetDefault("SERVER_PORT", "5010")
	v.SetDefault("SERVER_HOST", "0.0.0.0")
	v.SetDefault("SERVER_ENVIRONMENT", "development")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("SERVER_READ_TIMEOUT", 30)
	v.SetDefault("SERVER_WRITE_TIMEOUT", 0)
	v.SetDefault("MONGODB_DATABASE", "docflow")
	v.SetDefault("MONGODB_TIMEOUT", 10)
	v.SetDefault("REDIS_PORT", "6379")
	v.SetDefault("REDIS_EVENT_PREFIX", "docflow:events")
	v.SetDefault("REDIS_CACHE_TTL", 300)
	v.SetDefault("AUTH_TOKEN_TTL", 60)
	v.SetDefault("RATE_LIMIT_RPS", 10.0)
	v.SetDefault("RATE_LIMIT_BURST", 20)
	v.SetDefault("RATE_LIMIT_WINDOW_SECONDS", 1)
	v.SetDefault("MINIO_BUCKET", "docflow")
	v.SetDefault("WORKFLOW_SNAPSHOT_POLICY", string(workflow.SnapshotWarn))

	policy, err := workflow.ParseSnapshotPolicy(strings.ToLower(strings.TrimSpace(v.GetString("WORKFLOW_SNAPSHOT_POLICY"))))
	if err != nil {
		return nil, fmt.Errorf("DOCFLOW_WORKFLOW_SNAPSHOT_POLICY: %w", err)
	}

	cfg := &Config{
		Server: ServerConfig{
			Port:         v.GetString("SERVER_PORT"),
			Host:         v.GetString("SERVER_HOST"),
			Environment:  v.GetString("SERVER_ENVIRONMENT"),
			LogLevel:     v.GetString("LOG_LEVEL"),
			ReadTimeout:  time.Duration(v.GetInt("SERVER_READ_TIMEOUT")) * time.Second,
			WriteTimeout: time.Duration(v.GetInt("SERVER_WRITE_TIMEOUT")) * time.Second,
		},
		MongoDB: MongoDBConfig{
			URI:      v.GetString("MONGODB_URI"),
			Database: v.GetString("MONGODB_DATABASE"),
			Timeout:  time.Duration(v.GetInt("MONGODB_TIMEOUT")) * time.Second,
		},
		Redis: RedisConfig{
			Host:        v.GetString("REDIS_HOST"),
			Port:        v.GetString("REDIS_PORT"),
			Password:    v.GetString("REDIS_PASSWORD"),
			DB:          v.GetInt("REDIS_DB"),
			EventPrefix: v.GetString("REDIS_EVENT_PREFIX"),
			CacheTTL:    time.Duration(v.GetInt("REDIS_CACHE_TTL")) * time.Second,
		},
		Auth: AuthConfig{
			JWTSecret:          v.GetString("AUTH_JWT_SECRET"),
			TokenTTL:           time.Duration(v.GetInt("AUTH_TOKEN_TTL")) * time.Minute,
			OIDCIssuer:         v.GetString("AUTH_OIDC_ISSUER"),
			OIDCClient:         v.GetString("AUTH_OIDC_CLIENT_ID"),
			AllowInsecureToken: v.GetBool("AUTH_ALLOW_INSECURE_TOKEN"),
		},
		RateLimit: RateLimitConfig{
			Enabled:       v.GetBool("RATE_LIMIT_ENABLED"),
			RPS:           v.GetFloat64("RATE_LIMIT_RPS"),
			Burst:         v.GetInt("RATE_LIMIT_BURST"),
			UseRedis:      v.GetBool("RATE_LIMIT_USE_REDIS"),
			WindowSeconds: v.GetInt("RATE_LIMIT_WINDOW_SECONDS"),
		},
		MinIO: MinIOConfig{
			Endpoint:  v.GetString("MINIO_ENDPOINT"),
			AccessKey: v.GetString("MINIO_ACCESS_KEY"),
			SecretKey: v.GetString("MINIO_SECRET_KEY"),
			UseSSL:    v.GetBool("MINIO_USE_SSL"),
			Bucket:    v.GetString("MINIO_BUCKET"),
		},
		Workflow: WorkflowConfig{
			SnapshotPolicy: policy,
			TemplatesDir:   v.GetString("WORKFLOW_TEMPLATES_DIR"),
		},
	}

	if cfg.RateLimit.Enabled && cfg.RateLimit.RPS <= 0 && cfg.RateLimit.Burst <= 0 {
		return nil, fmt.Errorf("rate limiting is enabled but allows no requests")
	}
	if cfg.Auth.OIDCIssuer != "" && cfg.Auth.OIDCClient == "" {
		return nil, fmt.Errorf("DOCFLOW_AUTH_OIDC_CLIENT_ID is required with an OIDC issuer")
	}
	return cfg, nil
}
