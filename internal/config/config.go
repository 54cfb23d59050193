package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// DefaultPublicBaseURL is used for inspection links when contracts.public_base_url is empty.
const DefaultPublicBaseURL = "https://gestion.rentacar.es"

type Config struct {
	App        AppConfig        `yaml:"app"`
	Database   DatabaseConfig   `yaml:"database"`
	Redis      RedisConfig      `yaml:"redis"`
	Backup     BackupConfig     `yaml:"backup"`
	Monitoring MonitoringConfig `yaml:"monitoring"`
	Logging    LoggingConfig    `yaml:"logging"`
	API        APIConfig        `yaml:"api"`
	Contracts  ContractsConfig  `yaml:"contracts"`
	Storage    StorageConfig    `yaml:"storage"`
	Telegram   TelegramConfig   `yaml:"telegram"`
	Email      EmailConfig      `yaml:"email"`
	Google     GoogleConfig     `yaml:"google"`
	Exports    ExportConfig     `yaml:"exports"`
	Worker     WorkerConfig     `yaml:"worker"`
	Scheduler  SchedulerConfig  `yaml:"scheduler"`
}

type APIConfig struct {
	Enabled   bool               `yaml:"enabled"`
	HTTP      APIHTTPConfig      `yaml:"http"`
	GRPC      APIGRPCConfig      `yaml:"grpc"`
	Auth      APIAuthConfig      `yaml:"auth"`
	RateLimit APIRateLimitConfig `yaml:"rate_limit"`
}

type APIHTTPConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
}

type APIGRPCConfig struct {
	Enabled    bool         `yaml:"enabled"`
	Port       int          `yaml:"port"`
	Reflection bool         `yaml:"reflection"`
	TLS        APITLSConfig `yaml:"tls"`
}

type APITLSConfig struct {
	Enabled           bool   `yaml:"enabled"`
	CertFile          string `yaml:"cert_file"`
	KeyFile           string `yaml:"key_file"`
	ClientCAFile      string `yaml:"client_ca_file"`
	RequireClientCert bool   `yaml:"require_client_cert"`
}

type APIAuthConfig struct {
	Enabled      bool           `yaml:"enabled"`
	HeaderAPIKey string         `yaml:"header_api_key"`
	HeaderExtra  string         `yaml:"header_extra"`
	APIKeys      []APIClientKey `yaml:"api_keys"`
	JWT          JWTConfig      `yaml:"jwt"`
}

type APIClientKey struct {
	Key         string   `yaml:"key"`
	Extra       string   `yaml:"extra"`
	Name        string   `yaml:"name"`
	Permissions []string `yaml:"permissions"`
}

// JWTConfig enables bearer tokens issued by the back-office login.
type JWTConfig struct {
	Secret string `yaml:"secret"`
	Issuer string `yaml:"issuer"`
}

type APIRateLimitConfig struct {
	RPS   float64 `yaml:"rps"`
	Burst int     `yaml:"burst"`
}

type AppConfig struct {
	Name        string `yaml:"name"`
	Environment string `yaml:"environment"`
	Version     string `yaml:"version"`
}

type DatabaseConfig struct {
	Path string `yaml:"path"`
}

type RedisConfig struct {
	Address  string `yaml:"address"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	PoolSize int    `yaml:"pool_size"`
}

type BackupConfig struct {
	Enabled       bool   `yaml:"enabled"`
	Schedule      string `yaml:"schedule"`
	RetentionDays int    `yaml:"retention_days"`
	StoragePath   string `yaml:"storage_path"`
}

type MonitoringConfig struct {
	PrometheusEnabled bool `yaml:"prometheus_enabled"`
	PrometheusPort    int  `yaml:"prometheus_port"`
}

type LoggingConfig struct {
	Level    string `yaml:"level"`
	Format   string `yaml:"format"`
	Output   string `yaml:"output"`
	FilePath string `yaml:"file_path"`
}

type ContractsConfig struct {
	PublicBaseURL         string        `yaml:"public_base_url"`
	TaxRate               float64       `yaml:"tax_rate"`
	BaseVersion           int64         `yaml:"base_version"`
	LinkTTL               time.Duration `yaml:"link_ttl"`
	DefaultLanguage       string        `yaml:"default_language"`
	Timezone              string        `yaml:"timezone"`
	TemplatePath          string        `yaml:"template_path"`
	MaxRegenerateAttempts int           `yaml:"max_regenerate_attempts"`
	Logo                  LogoConfig    `yaml:"logo"`
}

type LogoConfig struct {
	MaxDimension int `yaml:"max_dimension"`
	JPEGQuality  int `yaml:"jpeg_quality"`
}

type StorageConfig struct {
	Local LocalStorageConfig `yaml:"local"`
	S3    S3Config           `yaml:"s3"`
}

type LocalStorageConfig struct {
	Root          string `yaml:"root"`
	PublicBaseURL string `yaml:"public_base_url"`
}

type S3Config struct {
	Bucket       string        `yaml:"bucket"`
	Region       string        `yaml:"region"`
	Endpoint     string        `yaml:"endpoint"`
	AccessKeyID  string        `yaml:"access_key_id"`
	SecretKey    string        `yaml:"secret_key"`
	UsePathStyle bool          `yaml:"use_path_style"`
	PresignTTL   time.Duration `yaml:"presign_ttl"`
}

type TelegramConfig struct {
	BotToken          string        `yaml:"bot_token"`
	Managers          []int64       `yaml:"managers"`
	Debug             bool          `yaml:"debug"`
	RateLimitMessages int           `yaml:"rate_limit_messages"`
	RateLimitWindow   time.Duration `yaml:"rate_limit_window"`
}

type EmailConfig struct {
	SendGridAPIKey string `yaml:"sendgrid_api_key"`
	FromAddress    string `yaml:"from_address"`
	FromName       string `yaml:"from_name"`
}

type GoogleConfig struct {
	GoogleCredentialsFile string `yaml:"credentials_file"`
	RegisterSpreadsheetID string `yaml:"register_spreadsheet_id"`
	RegisterSheetName     string `yaml:"register_sheet_name"`
}

type ExportConfig struct {
	Path string `yaml:"path"`
}

type WorkerConfig struct {
	MaxRetries    int            `yaml:"max_retries"`
	InitialDelay  time.Duration  `yaml:"initial_delay"`
	MaxDelay      time.Duration  `yaml:"max_delay"`
	BackoffFactor float64        `yaml:"backoff_factor"`
	Jitter        float64        `yaml:"jitter"`
	TaskRetries   map[string]int `yaml:"task_retries"`
	PollInterval  time.Duration  `yaml:"poll_interval"`
}

// SchedulerConfig holds cron specs (with seconds) for housekeeping jobs.
type SchedulerConfig struct {
	Enabled               bool   `yaml:"enabled"`
	PurgeExpiredLinks     string `yaml:"purge_expired_links"`
	ResyncRegister        string `yaml:"resync_register"`
	ExpiredLinkRetainDays int    `yaml:"expired_link_retain_days"`
}

func Load(configPath string) (*Config, error) {
	// .env is optional
	if err := godotenv.Load(".env"); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, err
	}

	expandedData := []byte(os.ExpandEnv(string(data)))

	var config Config
	if err := yaml.Unmarshal(expandedData, &config); err != nil {
		return nil, err
	}

	config.applyDefaults()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

func (c *Config) Validate() error {
	if c.Database.Path == "" {
		return errors.New("database path is required")
	}

	if c.Contracts.TaxRate < 0 || c.Contracts.TaxRate >= 1 {
		return fmt.Errorf("contracts.tax_rate must be in [0,1), got %v", c.Contracts.TaxRate)
	}
	if c.Contracts.BaseVersion < 0 {
		return errors.New("contracts.base_version must not be negative")
	}
	if _, err := time.LoadLocation(c.Contracts.Timezone); err != nil {
		return fmt.Errorf("contracts.timezone: %w", err)
	}
	if c.Worker.Jitter < 0 || c.Worker.Jitter > 1 {
		return fmt.Errorf("worker.jitter must be in [0,1], got %v", c.Worker.Jitter)
	}

	return ValidateAPIKeys(c.API.Auth.APIKeys)
}

func ValidateAPIKeys(keys []APIClientKey) error {
	seen := make(map[string]bool)
	for _, k := range keys {
		if strings.TrimSpace(k.Key) == "" {
			return fmt.Errorf("api key '%s' is empty", k.Name)
		}
		if seen[k.Key] {
			return fmt.Errorf("duplicate api key for client '%s'", k.Name)
		}
		seen[k.Key] = true
	}
	return nil
}

// PublicBase returns the configured base for public links without a trailing slash.
func (c ContractsConfig) PublicBase() string {
	base := strings.TrimSpace(c.PublicBaseURL)
	if base == "" {
		base = DefaultPublicBaseURL
	}
	return strings.TrimRight(base, "/")
}

// Location resolves the contract time zone, falling back to UTC.
func (c ContractsConfig) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

func (c *Config) applyDefaults() {
	if c.API.GRPC.Port == 0 {
		c.API.GRPC.Port = 8081
	}
	if c.API.HTTP.Port == 0 {
		c.API.HTTP.Port = 8080
	}
	if c.Monitoring.PrometheusEnabled && c.Monitoring.PrometheusPort == 0 {
		c.Monitoring.PrometheusPort = 9090
	}
	if !c.API.HTTP.Enabled && c.API.Enabled {
		c.API.HTTP.Enabled = true
	}
	if c.API.Auth.HeaderAPIKey == "" {
		c.API.Auth.HeaderAPIKey = "x-api-key"
	}
	if c.API.Auth.HeaderExtra == "" {
		c.API.Auth.HeaderExtra = "x-api-extra"
	}

	// Contracts
	if c.Contracts.TaxRate == 0 {
		c.Contracts.TaxRate = 0.21
	}
	if c.Contracts.BaseVersion == 0 {
		c.Contracts.BaseVersion = 1
	}
	if c.Contracts.LinkTTL == 0 {
		c.Contracts.LinkTTL = 30 * 24 * time.Hour
	}
	if c.Contracts.DefaultLanguage == "" {
		c.Contracts.DefaultLanguage = "es"
	}
	if c.Contracts.Timezone == "" {
		c.Contracts.Timezone = "Europe/Madrid"
	}
	if c.Contracts.MaxRegenerateAttempts == 0 {
		c.Contracts.MaxRegenerateAttempts = 3
	}
	if c.Contracts.Logo.MaxDimension == 0 {
		c.Contracts.Logo.MaxDimension = 320
	}
	if c.Contracts.Logo.JPEGQuality == 0 {
		c.Contracts.Logo.JPEGQuality = 70
	}

	if c.Storage.S3.PresignTTL == 0 {
		c.Storage.S3.PresignTTL = 15 * time.Minute
	}
	if c.Telegram.RateLimitMessages == 0 {
		c.Telegram.RateLimitMessages = 20
	}
	if c.Telegram.RateLimitWindow == 0 {
		c.Telegram.RateLimitWindow = time.Minute
	}
	if c.Google.RegisterSheetName == "" {
		c.Google.RegisterSheetName = "Contratos"
	}
	if c.Exports.Path == "" {
		c.Exports.Path = "exports"
	}

	if c.Backup.Schedule == "" {
		c.Backup.Schedule = "0 0 3 * * *"
	}
	if c.Scheduler.PurgeExpiredLinks == "" {
		c.Scheduler.PurgeExpiredLinks = "0 30 3 * * *"
	}
	if c.Scheduler.ResyncRegister == "" {
		c.Scheduler.ResyncRegister = "0 0 4 * * *"
	}
	if c.Scheduler.ExpiredLinkRetainDays == 0 {
		c.Scheduler.ExpiredLinkRetainDays = 90
	}
}
