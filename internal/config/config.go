package config

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"github.com/straye-as/device-importer/internal/secrets"
	"github.com/straye-as/device-importer/internal/storage"
	"go.uber.org/zap"
)

// Config holds all application configuration
type Config struct {
	App       AppConfig
	IoTHub    IoTHubConfig
	Storage   StorageConfig
	Import    ImportConfig
	Retry     RetryConfig
	Jobs      JobsConfig
	Secrets   SecretsConfig
	Logging   LoggingConfig
	Server    ServerConfig
	ApiKey    ApiKeyConfig
	CORS      CORSConfig
	RateLimit RateLimitConfig
}

type AppConfig struct {
	Name        string
	Environment string
	Port        int
}

// IoTHubConfig holds the device registry connection settings
type IoTHubConfig struct {
	// ConnectionString is the hub's shared access policy connection string
	// (HostName=...;SharedAccessKeyName=...;SharedAccessKey=...)
	ConnectionString string
	// ApiVersion is the registry REST API version sent with every request
	ApiVersion string
	// TokenLifetime is the lifetime of generated registry SAS tokens (minutes)
	TokenLifetime int
	// RequestTimeout bounds a single registry call (seconds)
	RequestTimeout int
}

// StorageConfig holds the blob storage settings used to stage import files
type StorageConfig struct {
	// ConnectionString is the storage account connection string
	ConnectionString string
	// ContainerPrefix prefixes every staging container name
	ContainerPrefix string
	// BlobName is the name of the device file inside the staging container
	BlobName string
	// ChunkSize is the maximum number of bytes written per block
	ChunkSize int
	// SASLifetime is how long the account signature handed to the registry stays valid (minutes)
	SASLifetime int
}

// ImportConfig holds the device batches submitted by the importer CLI
type ImportConfig struct {
	PrimaryDevices  []string
	FollowUpDevices []string
	// Wait makes the CLI poll the follow-up job until it reaches a terminal status
	Wait bool
	// WaitTimeout bounds the total time spent waiting (seconds)
	WaitTimeout int
}

// RetryConfig controls the bounded exponential backoff used when a job cannot be created
type RetryConfig struct {
	// InitialInterval is the first delay between attempts (milliseconds)
	InitialInterval int
	Multiplier      float64
	// MaxInterval caps the delay between attempts (seconds)
	MaxInterval int
	// MaxAttempts is the total number of attempts, including the first one
	MaxAttempts int
}

// JobsConfig holds the background job settings of the API service
type JobsConfig struct {
	StatusRefreshEnabled bool
	StatusRefreshCron    string
	// StatusRefreshTimeout bounds a single refresh run (seconds)
	StatusRefreshTimeout int
}

type SecretsConfig struct {
	// Source determines where secrets are loaded from: "environment", "vault", or "auto"
	// "auto" uses environment in development, vault in staging/production
	Source       string
	KeyVaultName string
	CacheEnabled bool
	CacheTTL     int // seconds
}

type LoggingConfig struct {
	Level  string
	Format string
}

type ServerConfig struct {
	ReadTimeout  int
	WriteTimeout int
}

type ApiKeyConfig struct {
	Value string
}

// CORSConfig holds CORS configuration
type CORSConfig struct {
	AllowedOrigins   []string
	AllowedMethods   []string
	AllowedHeaders   []string
	AllowCredentials bool
	MaxAge           int
}

// RateLimitConfig holds rate limiting configuration
type RateLimitConfig struct {
	Enabled           bool
	RequestsPerMinute int
	WhitelistPaths    []string
}

// TokenLifetimeDuration returns the registry token lifetime as duration
func (c *IoTHubConfig) TokenLifetimeDuration() time.Duration {
	return time.Duration(c.TokenLifetime) * time.Minute
}

// RequestTimeoutDuration returns the registry request timeout as duration
func (c *IoTHubConfig) RequestTimeoutDuration() time.Duration {
	return time.Duration(c.RequestTimeout) * time.Second
}

// SASLifetimeDuration returns the storage signature lifetime as duration
func (s *StorageConfig) SASLifetimeDuration() time.Duration {
	return time.Duration(s.SASLifetime) * time.Minute
}

// WaitTimeoutDuration returns the job wait timeout as duration
func (i *ImportConfig) WaitTimeoutDuration() time.Duration {
	return time.Duration(i.WaitTimeout) * time.Second
}

// InitialIntervalDuration returns the first retry delay as duration
func (r *RetryConfig) InitialIntervalDuration() time.Duration {
	return time.Duration(r.InitialInterval) * time.Millisecond
}

// MaxIntervalDuration returns the retry delay cap as duration
func (r *RetryConfig) MaxIntervalDuration() time.Duration {
	return time.Duration(r.MaxInterval) * time.Second
}

// StatusRefreshTimeoutDuration returns the refresh run timeout as duration
func (j *JobsConfig) StatusRefreshTimeoutDuration() time.Duration {
	return time.Duration(j.StatusRefreshTimeout) * time.Second
}

// ReadTimeoutDuration returns read timeout as duration
func (s *ServerConfig) ReadTimeoutDuration() time.Duration {
	return time.Duration(s.ReadTimeout) * time.Second
}

// WriteTimeoutDuration returns write timeout as duration
func (s *ServerConfig) WriteTimeoutDuration() time.Duration {
	return time.Duration(s.WriteTimeout) * time.Second
}

// Load loads configuration from file and environment variables.
// Secrets held in Azure Key Vault are resolved by LoadWithSecrets.
func Load() (*Config, error) {
	// Load .env file if it exists (ignore error if not found)
	_ = godotenv.Load()

	v := viper.New()

	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("json")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// Environment variables override config file
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if cfg.ApiKey.Value == "" {
		cfg.ApiKey.Value = v.GetString("ADMIN_API_KEY")
	}
	if cfg.Secrets.KeyVaultName == "" {
		cfg.Secrets.KeyVaultName = v.GetString("AZURE_KEY_VAULT_NAME")
	}

	return &cfg, nil
}

// LoadWithSecrets loads configuration and resolves the connection strings from
// the configured secret source. Environment variables always take precedence
// over vault values.
func LoadWithSecrets(ctx context.Context, logger *zap.Logger) (*Config, error) {
	cfg, err := Load()
	if err != nil {
		return nil, err
	}

	provider, err := secrets.NewProvider(&secrets.ProviderConfig{
		Source:       secrets.SecretSource(cfg.Secrets.Source),
		VaultName:    cfg.Secrets.KeyVaultName,
		Environment:  cfg.App.Environment,
		CacheEnabled: cfg.Secrets.CacheEnabled,
		CacheTTL:     time.Duration(cfg.Secrets.CacheTTL) * time.Second,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize secrets provider: %w", err)
	}

	if !provider.IsVaultEnabled() {
		logger.Info("Using environment variables for secrets",
			zap.String("source", string(provider.Source())),
			zap.String("environment", cfg.App.Environment),
		)
		return cfg, nil
	}

	if err := ResolveSecrets(ctx, cfg, provider); err != nil {
		return nil, err
	}

	logger.Info("Secrets loaded from vault successfully",
		zap.String("key_vault_name", cfg.Secrets.KeyVaultName),
	)
	return cfg, nil
}

// ResolveSecrets fills the connection strings and API key from provider.
// Values already present in cfg are kept when the secret is missing.
func ResolveSecrets(ctx context.Context, cfg *Config, provider secrets.Getter) error {
	hub, err := provider.GetSecretOrEnv(ctx, "iothub-connection-string", "IOTHUB_CONNECTIONSTRING")
	if err != nil && cfg.IoTHub.ConnectionString == "" {
		return fmt.Errorf("failed to resolve IoT Hub connection string: %w", err)
	}
	if hub != "" {
		cfg.IoTHub.ConnectionString = hub
	}

	storage, err := provider.GetSecretOrEnv(ctx, "storage-connection-string", "STORAGE_CONNECTIONSTRING")
	if err != nil && cfg.Storage.ConnectionString == "" {
		return fmt.Errorf("failed to resolve storage connection string: %w", err)
	}
	if storage != "" {
		cfg.Storage.ConnectionString = storage
	}

	// The API key is only needed by the API service
	if apiKey, err := provider.GetSecretOrEnv(ctx, "admin-api-key", "ADMIN_API_KEY"); err == nil && apiKey != "" {
		cfg.ApiKey.Value = apiKey
	}

	return nil
}

// Validate checks the settings every binary needs before talking to Azure
func (c *Config) Validate() error {
	var errs []error

	if c.IoTHub.ConnectionString == "" {
		errs = append(errs, errors.New("iothub.connectionString is required"))
	}
	if c.IoTHub.ApiVersion == "" {
		errs = append(errs, errors.New("iothub.apiVersion is required"))
	}
	if c.IoTHub.TokenLifetime <= 0 {
		errs = append(errs, errors.New("iothub.tokenLifetime must be positive"))
	}
	if c.Storage.ConnectionString == "" {
		errs = append(errs, errors.New("storage.connectionString is required"))
	}
	if err := storage.ValidateContainerPrefix(c.Storage.ContainerPrefix); err != nil {
		errs = append(errs, fmt.Errorf("storage.containerPrefix: %w", err))
	}
	if c.Storage.BlobName == "" {
		errs = append(errs, errors.New("storage.blobName is required"))
	}
	if c.Storage.ChunkSize <= 0 {
		errs = append(errs, errors.New("storage.chunkSize must be positive"))
	}
	if c.Storage.SASLifetime <= 0 {
		errs = append(errs, errors.New("storage.sasLifetime must be positive"))
	}
	if c.Retry.MaxAttempts < 1 {
		errs = append(errs, errors.New("retry.maxAttempts must be at least 1"))
	}
	if c.Retry.InitialInterval <= 0 {
		errs = append(errs, errors.New("retry.initialInterval must be positive"))
	}
	if c.Retry.MaxInterval <= 0 {
		errs = append(errs, errors.New("retry.maxInterval must be positive"))
	} else if c.Retry.MaxIntervalDuration() < c.Retry.InitialIntervalDuration() {
		errs = append(errs, errors.New("retry.maxInterval must not be shorter than retry.initialInterval"))
	}
	if c.Retry.Multiplier < 1 {
		errs = append(errs, errors.New("retry.multiplier must be at least 1"))
	}

	return errors.Join(errs...)
}

func setDefaults(v *viper.Viper) {
	// App defaults
	v.SetDefault("app.name", "Device Importer")
	v.SetDefault("app.environment", "development")
	v.SetDefault("app.port", 8080)

	// IoT Hub defaults
	v.SetDefault("iothub.connectionString", "")
	v.SetDefault("iothub.apiVersion", "2021-04-12")
	v.SetDefault("iothub.tokenLifetime", 60)
	v.SetDefault("iothub.requestTimeout", 30)

	// Storage defaults
	v.SetDefault("storage.connectionString", "")
	v.SetDefault("storage.containerPrefix", "iothub-")
	v.SetDefault("storage.blobName", "devices.txt")
	v.SetDefault("storage.chunkSize", 500)
	v.SetDefault("storage.sasLifetime", 60)

	// Import defaults
	v.SetDefault("import.primaryDevices", []string{"test1", "test2"})
	v.SetDefault("import.followUpDevices", []string{"test3", "test4"})
	v.SetDefault("import.wait", false)
	v.SetDefault("import.waitTimeout", 600)

	// Retry defaults - starts at the two second pause the job loop always used
	v.SetDefault("retry.initialInterval", 2000)
	v.SetDefault("retry.multiplier", 2.0)
	v.SetDefault("retry.maxInterval", 30)
	v.SetDefault("retry.maxAttempts", 5)

	// Background job defaults
	v.SetDefault("jobs.statusRefreshEnabled", true)
	v.SetDefault("jobs.statusRefreshCron", "@every 30s")
	v.SetDefault("jobs.statusRefreshTimeout", 20)

	// Secrets defaults
	v.SetDefault("secrets.source", "auto")
	v.SetDefault("secrets.keyVaultName", "")
	v.SetDefault("secrets.cacheEnabled", true)
	v.SetDefault("secrets.cacheTTL", 300)

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")

	// Server defaults
	v.SetDefault("server.readTimeout", 30)
	v.SetDefault("server.writeTimeout", 60)

	v.SetDefault("apiKey.value", "")

	// CORS defaults - restrictive by default
	v.SetDefault("cors.allowedOrigins", []string{})
	v.SetDefault("cors.allowedMethods", []string{"GET", "POST", "DELETE", "OPTIONS"})
	v.SetDefault("cors.allowedHeaders", []string{"Accept", "Content-Type", "X-API-Key", "X-Request-ID"})
	v.SetDefault("cors.allowCredentials", false)
	v.SetDefault("cors.maxAge", 300)

	// Rate limiting defaults
	v.SetDefault("rateLimit.enabled", true)
	v.SetDefault("rateLimit.requestsPerMinute", 60)
	v.SetDefault("rateLimit.whitelistPaths", []string{"/health"})
}
