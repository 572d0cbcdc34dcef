package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	ServerPort int
	// ClientURL is where OAuth callbacks redirect after a session is established.
	ClientURL string
	// BaseURL is the public origin used to build verification and reset links.
	BaseURL  string
	LogLevel string
	Database DatabaseConfig
	Auth     AuthConfig
	OAuth    OAuthConfig
	Cache    CacheConfig
	Storage  StorageConfig
	MQ       MQConfig
}

type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	UseSSL   bool
	// InMemory swaps Postgres for the process-local store. Local runs only.
	InMemory bool
}

type AuthConfig struct {
	AccessSecret       string
	RefreshSecret      string
	VerificationSecret string
	ResetSecret        string
	AccessTTL          time.Duration
	RefreshTTL         time.Duration
	VerificationTTL    time.Duration
	ResetTTL           time.Duration
	CookieSecure       bool
	// SessionPruneSchedule is the cron schedule for dropping expired refresh sessions.
	SessionPruneSchedule string
	// Admin is created at startup when AdminEmail is set and not yet taken.
	AdminName     string
	AdminEmail    string
	AdminPassword string
}

type OAuthConfig struct {
	Google   OAuthProviderConfig
	Facebook OAuthProviderConfig
}

type OAuthProviderConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
}

// Enabled reports whether the provider has credentials configured.
func (c OAuthProviderConfig) Enabled() bool {
	return strings.TrimSpace(c.ClientID) != "" && strings.TrimSpace(c.ClientSecret) != ""
}

type CacheConfig struct {
	TTL             time.Duration
	JanitorInterval time.Duration
	// BaseSegments is how many path segments form the invalidation prefix.
	BaseSegments int
}

type StorageConfig struct {
	// Backend is "minio", "gcs" or empty for no media backend.
	Backend      string
	MediaBaseURL string
	Minio        MinioConfig
	GCS          GCSConfig
}

type MinioConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

type GCSConfig struct {
	Bucket          string
	ProjectID       string
	CredentialsFile string
}

type MQConfig struct {
	// Backend is "rabbitmq", "pubsub" or empty to log events instead of publishing.
	Backend  string
	Channel  string
	RabbitMQ RabbitMQConfig
	PubSub   PubSubConfig
}

type RabbitMQConfig struct {
	URL             string
	QueueDurable    bool
	QueueAutoDelete bool
	PrefetchCount   int
}

type PubSubConfig struct {
	ProjectID          string
	CredentialsFile    string
	SubscriptionSuffix string
}

func LoadConfig() Config {
	if os.Getenv("ENV") == "dev" {
		godotenv.Load()
	}

	dbConfig := DatabaseConfig{
		Host:     getEnv("DB_HOST", "localhost"),
		Port:     getEnvInt("DB_PORT", 5432),
		User:     getEnv("DB_USER", "newsdesk"),
		Password: getEnv("DB_PASSWORD", "password"),
		DBName:   getEnv("DB_NAME", "newsdesk_db"),
		UseSSL:   getEnvBool("DB_USE_SSL", false),
		InMemory: getEnvBool("DB_IN_MEMORY", false),
	}

	authConfig := AuthConfig{
		AccessSecret:         getEnv("ACCESS_TOKEN_SECRET", ""),
		RefreshSecret:        getEnv("REFRESH_TOKEN_SECRET", ""),
		VerificationSecret:   getEnv("VERIFICATION_TOKEN_SECRET", ""),
		ResetSecret:          getEnv("RESET_PASSWORD_TOKEN_SECRET", ""),
		AccessTTL:            getEnvDuration("ACCESS_TOKEN_TTL", 15*time.Minute),
		RefreshTTL:           getEnvDuration("REFRESH_TOKEN_TTL", 7*24*time.Hour),
		VerificationTTL:      getEnvDuration("VERIFICATION_TOKEN_TTL", 15*time.Minute),
		ResetTTL:             getEnvDuration("RESET_PASSWORD_TOKEN_TTL", 15*time.Minute),
		CookieSecure:         getEnvBool("COOKIE_SECURE", true),
		SessionPruneSchedule: getEnv("SESSION_PRUNE_SCHEDULE", "@hourly"),
		AdminName:            getEnv("ADMIN_NAME", "Administrator"),
		AdminEmail:           getEnv("ADMIN_EMAIL", ""),
		AdminPassword:        getEnv("ADMIN_PASSWORD", ""),
	}

	oauthConfig := OAuthConfig{
		Google: OAuthProviderConfig{
			ClientID:     getEnv("GOOGLE_CLIENT_ID", ""),
			ClientSecret: getEnv("GOOGLE_CLIENT_SECRET", ""),
			RedirectURL:  getEnv("GOOGLE_REDIRECT_URL", ""),
		},
		Facebook: OAuthProviderConfig{
			ClientID:     getEnv("FACEBOOK_CLIENT_ID", ""),
			ClientSecret: getEnv("FACEBOOK_CLIENT_SECRET", ""),
			RedirectURL:  getEnv("FACEBOOK_REDIRECT_URL", ""),
		},
	}

	storageConfig := StorageConfig{
		Backend:      strings.ToLower(getEnv("STORAGE_BACKEND", "")),
		MediaBaseURL: getEnv("MEDIA_BASE_URL", ""),
		Minio: MinioConfig{
			Endpoint:  getEnv("MINIO_ENDPOINT", ""),
			AccessKey: getEnv("MINIO_ACCESS_KEY", ""),
			SecretKey: getEnv("MINIO_SECRET_KEY", ""),
			Bucket:    getEnv("MINIO_BUCKET", "media"),
			UseSSL:    getEnvBool("MINIO_USE_SSL", false),
		},
		GCS: GCSConfig{
			Bucket:          getEnv("GCS_BUCKET", ""),
			ProjectID:       getEnv("GCS_PROJECT_ID", ""),
			CredentialsFile: getEnv("GCS_CREDENTIALS_FILE", ""),
		},
	}

	mqConfig := MQConfig{
		Backend: strings.ToLower(getEnv("MQ_BACKEND", "")),
		Channel: getEnv("MQ_ACCOUNT_CHANNEL", "account-events"),
		RabbitMQ: RabbitMQConfig{
			URL:             getEnv("RABBITMQ_URL", ""),
			QueueDurable:    getEnvBool("RABBITMQ_QUEUE_DURABLE", true),
			QueueAutoDelete: getEnvBool("RABBITMQ_QUEUE_AUTO_DELETE", false),
			PrefetchCount:   getEnvInt("RABBITMQ_PREFETCH", 0),
		},
		PubSub: PubSubConfig{
			ProjectID:          getEnv("PUBSUB_PROJECT_ID", ""),
			CredentialsFile:    getEnv("PUBSUB_CREDENTIALS_FILE", ""),
			SubscriptionSuffix: getEnv("PUBSUB_SUBSCRIPTION_SUFFIX", "-sub"),
		},
	}

	return Config{
		ServerPort: getEnvInt("SERVER_PORT", 8080),
		ClientURL:  getEnv("CLIENT_URL", "http://localhost:3000"),
		BaseURL:    getEnv("BASE_URL", "http://localhost:8080"),
		LogLevel:   getEnv("LOG_LEVEL", "info"),
		Database:   dbConfig,
		Auth:       authConfig,
		OAuth:      oauthConfig,
		Cache: CacheConfig{
			TTL:             getEnvDuration("CACHE_TTL", 5*time.Minute),
			JanitorInterval: getEnvDuration("CACHE_JANITOR_INTERVAL", time.Minute),
			BaseSegments:    getEnvInt("CACHE_BASE_SEGMENTS", 3),
		},
		Storage: storageConfig,
		MQ:      mqConfig,
	}
}

// Validate checks settings the server cannot start without.
func (c Config) Validate() error {
	secrets := map[string]string{
		"ACCESS_TOKEN_SECRET":         c.Auth.AccessSecret,
		"REFRESH_TOKEN_SECRET":        c.Auth.RefreshSecret,
		"VERIFICATION_TOKEN_SECRET":   c.Auth.VerificationSecret,
		"RESET_PASSWORD_TOKEN_SECRET": c.Auth.ResetSecret,
	}
	seen := make(map[string]string, len(secrets))
	for name, value := range secrets {
		if strings.TrimSpace(value) == "" {
			return fmt.Errorf("%s is required", name)
		}
		if other, ok := seen[value]; ok {
			return fmt.Errorf("%s must differ from %s", name, other)
		}
		seen[value] = name
	}

	if c.Auth.AccessTTL <= 0 || c.Auth.RefreshTTL <= 0 {
		return errors.New("token ttl must be positive")
	}
	if c.Auth.AdminEmail != "" && len(c.Auth.AdminPassword) < 8 {
		return errors.New("ADMIN_PASSWORD must be at least 8 characters")
	}

	switch c.Storage.Backend {
	case "", "minio", "gcs":
	default:
		return fmt.Errorf("unknown storage backend %q", c.Storage.Backend)
	}
	switch c.MQ.Backend {
	case "", "rabbitmq", "pubsub":
	default:
		return fmt.Errorf("unknown mq backend %q", c.MQ.Backend)
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if valueStr, exists := os.LookupEnv(key); exists {
		var value int
		fmt.Sscanf(valueStr, "%d", &value)
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if valueStr, exists := os.LookupEnv(key); exists {
		value, err := strconv.ParseBool(strings.TrimSpace(valueStr))
		if err != nil {
			return defaultValue
		}
		return value
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if valueStr, exists := os.LookupEnv(key); exists {
		value, err := time.ParseDuration(strings.TrimSpace(valueStr))
		if err != nil {
			return defaultValue
		}
		return value
	}
	return defaultValue
}
