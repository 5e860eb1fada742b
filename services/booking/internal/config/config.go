package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"

	"servicebay/pkg/ai"
	"servicebay/pkg/domain"
	"servicebay/pkg/queue"
	"servicebay/pkg/storage"
)

// ConfigPath is the default config location; SERVICEBAY_CONFIG overrides it.
const ConfigPath = "config.yaml"

const (
	StoreMemory   = "memory"
	StorePostgres = "postgres"
	StoreMongo    = "mongo"
)

// FileConfig represents configuration loaded from YAML. Environment variables
// named in the env tags take precedence over the file.
type FileConfig struct {
	Port           string   `yaml:"port" env:"PORT"`
	LogLevel       string   `yaml:"logLevel" env:"LOG_LEVEL"`
	CORSOrigins    []string `yaml:"corsOrigins" env:"CORS_ORIGINS"`
	TrustedProxies []string `yaml:"trustedProxies" env:"TRUSTED_PROXIES"`

	StoreDriver   string `yaml:"storeDriver" env:"STORE_DRIVER"`
	DatabaseURL   string `yaml:"databaseURL" env:"DATABASE_URL"`
	MongoURI      string `yaml:"mongoURI" env:"MONGO_URI"`
	MongoDatabase string `yaml:"mongoDatabase" env:"MONGO_DATABASE"`
	SeedCatalog   bool   `yaml:"seedCatalog" env:"SEED_CATALOG"`

	AuthJWKSURL  string   `yaml:"authJwksURL" env:"AUTH_JWKS_URL"`
	JWTSecret    string   `yaml:"jwtSecret" env:"JWT_SECRET"`
	JWTIssuer    string   `yaml:"jwtIssuer" env:"JWT_ISSUER"`
	JWTAudience  string   `yaml:"jwtAudience" env:"JWT_AUDIENCE"`
	JWTLeeway    string   `yaml:"jwtLeeway" env:"JWT_LEEWAY"`
	StaffUserIDs []string `yaml:"staffUserIds" env:"STAFF_USER_IDS"`
	StatusPolicy string   `yaml:"statusPolicy" env:"STATUS_POLICY"`

	GenerationProvider         string `yaml:"generationProvider" env:"GENERATION_PROVIDER"`
	GeminiAPIKey               string `yaml:"geminiAPIKey" env:"GOOGLE_GEMINI_API_KEY"`
	GenerationModel            string `yaml:"generationModel" env:"GENERATION_MODEL"`
	GenerationBaseURL          string `yaml:"generationBaseURL" env:"GENERATION_BASE_URL"`
	GenerationAPIKey           string `yaml:"generationAPIKey" env:"GENERATION_API_KEY"`
	GenerationTimeoutSeconds   int    `yaml:"generationTimeoutSeconds" env:"GENERATION_TIMEOUT_SECONDS"`
	GenerateRateLimitPerMinute int    `yaml:"generateRateLimitPerMinute" env:"GENERATE_RATE_LIMIT_PER_MINUTE"`

	RedisAddr        string `yaml:"redisAddr" env:"REDIS_ADDR"`
	RedisPassword    string `yaml:"redisPassword" env:"REDIS_PASSWORD"`
	QueueStream      string `yaml:"queueStream" env:"QUEUE_STREAM"`
	QueueGroup       string `yaml:"queueGroup" env:"QUEUE_GROUP"`
	QueueConcurrency int    `yaml:"queueConcurrency" env:"QUEUE_CONCURRENCY"`
	QueueMaxRetries  int    `yaml:"queueMaxRetries" env:"QUEUE_MAX_RETRIES"`

	MinioEndpoint          string `yaml:"minioEndpoint" env:"MINIO_ENDPOINT"`
	MinioAccessKey         string `yaml:"minioAccessKey" env:"MINIO_ACCESS_KEY"`
	MinioSecretKey         string `yaml:"minioSecretKey" env:"MINIO_SECRET_KEY"`
	MinioBucket            string `yaml:"minioBucket" env:"MINIO_BUCKET"`
	MinioUseSSL            bool   `yaml:"minioUseSSL" env:"MINIO_USE_SSL"`
	ExportURLExpiryMinutes int    `yaml:"exportURLExpiryMinutes" env:"EXPORT_URL_EXPIRY_MINUTES"`

	RabbitURL        string `yaml:"rabbitURL" env:"RABBITMQ_URL"`
	RabbitExchange   string `yaml:"rabbitExchange" env:"RABBITMQ_EXCHANGE"`
	ReminderSchedule string `yaml:"reminderSchedule" env:"REMINDER_SCHEDULE"`

	// ReminderLookbackMinutes opens the first dispatch window when no
	// checkpoint has been saved yet.
	ReminderLookbackMinutes int `yaml:"reminderLookbackMinutes" env:"REMINDER_LOOKBACK_MINUTES"`
}

// Load reads config from path (defaults to SERVICEBAY_CONFIG, then config.yaml)
// and applies environment overrides.
func Load(path string) (FileConfig, error) {
	cfg := FileConfig{}
	if path == "" {
		path = os.Getenv("SERVICEBAY_CONFIG")
	}
	if path == "" {
		path = ConfigPath
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}
	if err := env.Parse(&cfg); err != nil {
		return cfg, fmt.Errorf("parse env overrides: %w", err)
	}
	applyDefaults(&cfg)
	if err := validateConfig(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyDefaults(cfg *FileConfig) {
	cfg.StoreDriver = strings.ToLower(strings.TrimSpace(cfg.StoreDriver))
	if cfg.StoreDriver == "" {
		cfg.StoreDriver = StorePostgres
	}
	if cfg.MongoDatabase == "" {
		cfg.MongoDatabase = "servicebay"
	}
	if cfg.GenerationTimeoutSeconds <= 0 {
		cfg.GenerationTimeoutSeconds = 60
	}
	if cfg.QueueStream == "" {
		cfg.QueueStream = "servicebay:reports"
	}
	if cfg.QueueConcurrency <= 0 {
		cfg.QueueConcurrency = 2
	}
	if cfg.ExportURLExpiryMinutes <= 0 {
		cfg.ExportURLExpiryMinutes = 15
	}
	if cfg.ReminderSchedule == "" {
		cfg.ReminderSchedule = "@every 1m"
	}
	if cfg.ReminderLookbackMinutes <= 0 {
		cfg.ReminderLookbackMinutes = 60
	}
	cfg.CORSOrigins = trimAll(cfg.CORSOrigins)
	cfg.TrustedProxies = trimAll(cfg.TrustedProxies)
	cfg.StaffUserIDs = trimAll(cfg.StaffUserIDs)
}

func validateConfig(cfg FileConfig) error {
	if cfg.Port == "" {
		return errors.New("config: port is required (set in config.yaml)")
	}
	switch cfg.StoreDriver {
	case StoreMemory:
	case StorePostgres:
		if cfg.DatabaseURL == "" {
			return errors.New("config: databaseURL is required (set in config.yaml or DATABASE_URL)")
		}
	case StoreMongo:
		if cfg.MongoURI == "" {
			return errors.New("config: mongoURI is required (set in config.yaml or MONGO_URI)")
		}
	default:
		return fmt.Errorf("config: unknown storeDriver %q", cfg.StoreDriver)
	}
	if cfg.AuthJWKSURL == "" && cfg.JWTSecret == "" {
		return errors.New("config: authJwksURL or jwtSecret is required (set in config.yaml)")
	}
	if cfg.AuthJWKSURL != "" && cfg.JWTSecret != "" {
		return errors.New("config: set only one of authJwksURL and jwtSecret")
	}
	if _, err := cfg.Leeway(); err != nil {
		return err
	}
	if _, err := domain.PolicyByName(cfg.StatusPolicy); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	switch strings.ToLower(strings.TrimSpace(cfg.GenerationProvider)) {
	case "", ai.ProviderGemini, ai.ProviderOllama:
	case ai.ProviderOpenAICompat:
		if cfg.GenerationBaseURL == "" {
			return errors.New("config: generationBaseURL is required for openai-compat (set in config.yaml)")
		}
	default:
		return fmt.Errorf("config: unknown generationProvider %q", cfg.GenerationProvider)
	}
	if cfg.MinioEndpoint != "" && (cfg.MinioAccessKey == "" || cfg.MinioSecretKey == "" || cfg.MinioBucket == "") {
		return errors.New("config: minioAccessKey, minioSecretKey and minioBucket are required with minioEndpoint")
	}
	return nil
}

// RequireQueue reports an error unless the async report queue is configured.
// The worker cannot run without it.
func (c FileConfig) RequireQueue() error {
	if c.RedisAddr == "" {
		return errors.New("config: redisAddr is required (set in config.yaml or REDIS_ADDR)")
	}
	return nil
}

// Leeway parses the jwtLeeway duration; empty means none.
func (c FileConfig) Leeway() (time.Duration, error) {
	if strings.TrimSpace(c.JWTLeeway) == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(strings.TrimSpace(c.JWTLeeway))
	if err != nil || d < 0 {
		return 0, fmt.Errorf("config: invalid jwtLeeway %q", c.JWTLeeway)
	}
	return d, nil
}

func (c FileConfig) GenerationTimeout() time.Duration {
	return time.Duration(c.GenerationTimeoutSeconds) * time.Second
}

func (c FileConfig) ExportURLExpiry() time.Duration {
	return time.Duration(c.ExportURLExpiryMinutes) * time.Minute
}

func (c FileConfig) ReminderLookback() time.Duration {
	return time.Duration(c.ReminderLookbackMinutes) * time.Minute
}

// GenerationAPIKeyFor returns the credential for the selected provider.
func (c FileConfig) GenerationAPIKeyFor() string {
	switch strings.ToLower(strings.TrimSpace(c.GenerationProvider)) {
	case "", ai.ProviderGemini:
		return c.GeminiAPIKey
	default:
		return c.GenerationAPIKey
	}
}

// GeneratorConfig maps the generation settings onto the provider config.
func (c FileConfig) GeneratorConfig() ai.Config {
	return ai.Config{
		Provider: c.GenerationProvider,
		APIKey:   c.GenerationAPIKeyFor(),
		Model:    c.GenerationModel,
		BaseURL:  c.GenerationBaseURL,
		Timeout:  c.GenerationTimeout(),
	}
}

func (c FileConfig) QueueConfig(consumer string) queue.RedisQueueConfig {
	return queue.RedisQueueConfig{
		Addr:       c.RedisAddr,
		Password:   c.RedisPassword,
		Stream:     c.QueueStream,
		Group:      c.QueueGroup,
		Consumer:   consumer,
		MaxRetries: c.QueueMaxRetries,
	}
}

func (c FileConfig) MinioConfig() storage.MinioConfig {
	return storage.MinioConfig{
		Endpoint:  c.MinioEndpoint,
		AccessKey: c.MinioAccessKey,
		SecretKey: c.MinioSecretKey,
		Bucket:    c.MinioBucket,
		UseSSL:    c.MinioUseSSL,
	}
}

func trimAll(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		out = append(out, v)
	}
	return out
}
