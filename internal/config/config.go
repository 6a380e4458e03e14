package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the application
type Config struct {
	// Database
	DatabaseURL string

	// Auth0
	Auth0Domain   string
	Auth0Audience string
	Auth0ClientID string

	// Server
	Port          string
	CORSOrigins   []string
	Env           string
	PublicBaseURL string

	// S3 Storage
	S3 S3Config

	// Redis fan-out for websocket events; empty disables it
	RedisURL string

	Providers  Providers
	Jobs       JobsConfig
	Workspaces WorkspacesConfig
	RateLimit  RateLimitConfig
}

// S3Config holds AWS S3 configuration
type S3Config struct {
	Region          string
	Bucket          string
	AccessKeyID     string
	SecretAccessKey string
	Endpoint        string // Optional: for MinIO/LocalStack local dev
	PresignExpiry   time.Duration
}

// Enabled reports whether artifact storage is configured
func (c S3Config) Enabled() bool {
	return c.Bucket != ""
}

// Providers maps job kinds to the provider adapters that serve them
type Providers struct {
	OpenAI    OpenAIConfig
	Callbacks []CallbackProviderConfig
}

// OpenAIConfig configures the synchronous OpenAI adapter
type OpenAIConfig struct {
	APIKey      string
	BaseURL     string
	ImageModel  string
	ImageSize   string
	SpeechModel string
	Voice       string
	Kinds       []string
}

// Enabled reports whether the OpenAI adapter should be registered
func (c OpenAIConfig) Enabled() bool {
	return c.APIKey != ""
}

// CallbackProviderConfig configures one asynchronous vendor that reports
// results through signed webhooks
type CallbackProviderConfig struct {
	Name          string
	Endpoint      string
	APIKey        string
	WebhookSecret string
	Kinds         []string
	JobTimeout    time.Duration
}

// JobsConfig holds the generation lifecycle knobs
type JobsConfig struct {
	DispatchTimeout   time.Duration
	SweepInterval     time.Duration
	DefaultJobTimeout time.Duration
	SweepBatchSize    int32
}

// WorkspacesConfig holds defaults applied to new workspaces
type WorkspacesConfig struct {
	InitialCredits int64
	MaxUsers       int32
}

// RateLimitConfig bounds job submissions per user
type RateLimitConfig struct {
	SubmitPerMinute int
	SubmitBurst     int
}

// Load reads configuration for the API server from environment variables
func Load() (*Config, error) {
	cfg, err := load()
	if err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadForCLI reads configuration for operator commands, which only need the database
func LoadForCLI() (*Config, error) {
	cfg, err := load()
	if err != nil {
		return nil, err
	}
	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	return cfg, nil
}

func load() (*Config, error) {
	// Load .env file if it exists (ignore error if not found)
	_ = godotenv.Load()

	cfg := &Config{
		DatabaseURL:   getEnv("DATABASE_URL", ""),
		Auth0Domain:   getEnv("AUTH0_DOMAIN", ""),
		Auth0Audience: getEnv("AUTH0_AUDIENCE", ""),
		Auth0ClientID: getEnv("AUTH0_CLIENT_ID", ""),
		Port:          getEnv("PORT", "8080"),
		CORSOrigins:   splitList(getEnv("CORS_ORIGINS", "http://localhost:3000")),
		Env:           getEnv("ENV", "development"),
		PublicBaseURL: strings.TrimRight(getEnv("PUBLIC_BASE_URL", "http://localhost:8080"), "/"),
		RedisURL:      getEnv("REDIS_URL", ""),
		S3: S3Config{
			Region:          getEnv("S3_REGION", "us-east-1"),
			Bucket:          getEnv("S3_BUCKET", ""),
			AccessKeyID:     getEnv("AWS_ACCESS_KEY_ID", ""),
			SecretAccessKey: getEnv("AWS_SECRET_ACCESS_KEY", ""),
			Endpoint:        getEnv("S3_ENDPOINT", ""), // Empty = use AWS, set for MinIO/LocalStack
		},
		Providers: Providers{
			OpenAI: OpenAIConfig{
				APIKey:      getEnv("OPENAI_API_KEY", ""),
				BaseURL:     getEnv("OPENAI_BASE_URL", ""),
				ImageModel:  getEnv("OPENAI_IMAGE_MODEL", "dall-e-3"),
				ImageSize:   getEnv("OPENAI_IMAGE_SIZE", "1024x1024"),
				SpeechModel: getEnv("OPENAI_SPEECH_MODEL", "tts-1"),
				Voice:       getEnv("OPENAI_VOICE", "alloy"),
				Kinds:       splitList(getEnv("OPENAI_KINDS", "text_to_speech,text_to_image")),
			},
		},
	}

	var err error
	if cfg.S3.PresignExpiry, err = getDuration("S3_PRESIGN_EXPIRY", time.Hour); err != nil {
		return nil, err
	}
	if cfg.Jobs.DispatchTimeout, err = getDuration("JOB_DISPATCH_TIMEOUT", 60*time.Second); err != nil {
		return nil, err
	}
	if cfg.Jobs.SweepInterval, err = getDuration("JOB_SWEEP_INTERVAL", 5*time.Minute); err != nil {
		return nil, err
	}
	if cfg.Jobs.DefaultJobTimeout, err = getDuration("JOB_DEFAULT_TIMEOUT", 30*time.Minute); err != nil {
		return nil, err
	}
	batch, err := getInt("JOB_SWEEP_BATCH_SIZE", 100)
	if err != nil {
		return nil, err
	}
	cfg.Jobs.SweepBatchSize = int32(batch)

	if cfg.Workspaces.InitialCredits, err = getInt64("WORKSPACE_INITIAL_CREDITS", 10); err != nil {
		return nil, err
	}
	maxUsers, err := getInt("WORKSPACE_MAX_USERS", 5)
	if err != nil {
		return nil, err
	}
	cfg.Workspaces.MaxUsers = int32(maxUsers)

	if cfg.RateLimit.SubmitPerMinute, err = getInt("RATE_LIMIT_SUBMIT_PER_MINUTE", 30); err != nil {
		return nil, err
	}
	if cfg.RateLimit.SubmitBurst, err = getInt("RATE_LIMIT_SUBMIT_BURST", 10); err != nil {
		return nil, err
	}

	if cfg.Providers.Callbacks, err = loadCallbackProviders(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// loadCallbackProviders reads CALLBACK_PROVIDERS=a,b and then PROVIDER_A_* for each name
func loadCallbackProviders() ([]CallbackProviderConfig, error) {
	names := splitList(getEnv("CALLBACK_PROVIDERS", ""))
	providers := make([]CallbackProviderConfig, 0, len(names))
	for _, name := range names {
		prefix := "PROVIDER_" + strings.ToUpper(strings.ReplaceAll(name, "-", "_")) + "_"
		timeout, err := getDuration(prefix+"JOB_TIMEOUT", 0)
		if err != nil {
			return nil, err
		}
		p := CallbackProviderConfig{
			Name:          name,
			Endpoint:      getEnv(prefix+"ENDPOINT", ""),
			APIKey:        getEnv(prefix+"API_KEY", ""),
			WebhookSecret: getEnv(prefix+"WEBHOOK_SECRET", ""),
			Kinds:         splitList(getEnv(prefix+"KINDS", "")),
			JobTimeout:    timeout,
		}
		if p.Endpoint == "" {
			return nil, fmt.Errorf("%sENDPOINT is required", prefix)
		}
		if p.WebhookSecret == "" {
			return nil, fmt.Errorf("%sWEBHOOK_SECRET is required", prefix)
		}
		if len(p.Kinds) == 0 {
			return nil, fmt.Errorf("%sKINDS is required", prefix)
		}
		providers = append(providers, p)
	}
	return providers, nil
}

func (c *Config) validate() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	if c.Auth0Domain == "" {
		return fmt.Errorf("AUTH0_DOMAIN is required")
	}
	if c.Auth0Audience == "" {
		return fmt.Errorf("AUTH0_AUDIENCE is required")
	}
	if c.Jobs.DispatchTimeout <= 0 {
		return fmt.Errorf("JOB_DISPATCH_TIMEOUT must be positive")
	}
	if c.Workspaces.InitialCredits < 0 {
		return fmt.Errorf("WORKSPACE_INITIAL_CREDITS cannot be negative")
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q: %w", key, value, err)
	}
	return d, nil
}

func getInt(key string, defaultValue int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid integer %q: %w", key, value, err)
	}
	return n, nil
}

func getInt64(key string, defaultValue int64) (int64, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	n, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid integer %q: %w", key, value, err)
	}
	return n, nil
}

func splitList(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
