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

type Config struct {
	App        AppConfig        `yaml:"app"`
	Database   DatabaseConfig   `yaml:"database"`
	Redis      RedisConfig      `yaml:"redis"`
	Backup     BackupConfig     `yaml:"backup"`
	Monitoring MonitoringConfig `yaml:"monitoring"`
	Logging    LoggingConfig    `yaml:"logging"`
	API        APIConfig        `yaml:"api"`
	Payment    PaymentConfig    `yaml:"payment"`
	Storage    StorageConfig    `yaml:"storage"`
	Matching   MatchingConfig   `yaml:"matching"`
	Google     GoogleConfig     `yaml:"google"`
	Telegram   TelegramConfig   `yaml:"telegram"`
	Exports    ExportConfig     `yaml:"exports"`
	Locks      LockConfig       `yaml:"locks"`
	Worker     WorkerConfig     `yaml:"worker"`
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
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
	// MaxStreams caps concurrent streams per connection; 0 means no cap.
	MaxStreams uint32        `yaml:"max_streams"`
	Keepalive  time.Duration `yaml:"keepalive"`
}

type APIAuthConfig struct {
	Enabled      bool           `yaml:"enabled"`
	HeaderAPIKey string         `yaml:"header_api_key"`
	HeaderExtra  string         `yaml:"header_extra"`
	APIKeys      []APIClientKey `yaml:"api_keys"`
}

type APIClientKey struct {
	Key         string   `yaml:"key"`
	Extra       string   `yaml:"extra"`
	Name        string   `yaml:"name"`
	Permissions []string `yaml:"permissions"`
}

type APIRateLimitConfig struct {
	RPS   float64 `yaml:"rps"`
	Burst int     `yaml:"burst"`
}

type ExportConfig struct {
	Path string `yaml:"path"`
}

type AppConfig struct {
	Name        string `yaml:"name"`
	Environment string `yaml:"environment"`
	Version     string `yaml:"version"`
}

type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// RedisConfig is optional; an empty address keeps every Redis-backed
// component on its in-process fallback.
type RedisConfig struct {
	Address  string `yaml:"address"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	PoolSize int    `yaml:"pool_size"`
	Channel  string `yaml:"channel"`
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

const (
	PaymentModeOnline  = "online"
	PaymentModeOffline = "offline"
)

type PaymentConfig struct {
	Mode      string        `yaml:"mode"`
	KeyID     string        `yaml:"key_id"`
	KeySecret string        `yaml:"key_secret"`
	BaseURL   string        `yaml:"base_url"`
	Currency  string        `yaml:"currency"`
	Timeout   time.Duration `yaml:"timeout"`
}

const (
	StorageLocal = "local"
	StorageS3    = "s3"
)

type StorageConfig struct {
	Driver      string   `yaml:"driver"`
	LocalPath   string   `yaml:"local_path"`
	MaxUploadMB int64    `yaml:"max_upload_mb"`
	S3          S3Config `yaml:"s3"`
}

type S3Config struct {
	Bucket    string `yaml:"bucket"`
	Region    string `yaml:"region"`
	Endpoint  string `yaml:"endpoint"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
}

type MatchingConfig struct {
	DefaultLat  float64 `yaml:"default_lat"`
	DefaultLon  float64 `yaml:"default_lon"`
	NearbyLimit int     `yaml:"nearby_limit"`
}

type GoogleConfig struct {
	CredentialsFile     string `yaml:"credentials_file"`
	LedgerSpreadsheetID string `yaml:"ledger_spreadsheet_id"`
	LedgerSheet         string `yaml:"ledger_sheet"`
	// ResyncOnStart rewrites the whole sheet from the database at boot.
	ResyncOnStart bool `yaml:"resync_on_start"`
}

type TelegramConfig struct {
	BotToken string         `yaml:"bot_token"`
	Debug    bool           `yaml:"debug"`
	Links    []TelegramLink `yaml:"links"`
}

// TelegramLink forwards the events of one room to a chat.
type TelegramLink struct {
	Room   string `yaml:"room"`
	ChatID int64  `yaml:"chat_id"`
}

type LockConfig struct {
	TTL    time.Duration `yaml:"ttl"`
	Prefix string        `yaml:"prefix"`
}

type WorkerConfig struct {
	QueueKey   string        `yaml:"queue_key"`
	MaxRetries int           `yaml:"max_retries"`
	BaseDelay  time.Duration `yaml:"base_delay"`
	MaxDelay   time.Duration `yaml:"max_delay"`
}

func Load(configPath string) (*Config, error) {
	// .env is optional; variables may come from the environment directly.
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

	switch c.Payment.Mode {
	case PaymentModeOffline:
		if c.Payment.KeySecret == "" {
			return errors.New("payment key_secret is required")
		}
	case PaymentModeOnline:
		if c.Payment.KeyID == "" || c.Payment.KeySecret == "" {
			return errors.New("payment key_id and key_secret are required in online mode")
		}
		if c.Payment.BaseURL == "" {
			return errors.New("payment base_url is required in online mode")
		}
	default:
		return fmt.Errorf("unknown payment mode %q", c.Payment.Mode)
	}

	switch c.Storage.Driver {
	case StorageLocal:
	case StorageS3:
		if c.Storage.S3.Bucket == "" || c.Storage.S3.Region == "" {
			return errors.New("storage.s3 requires bucket and region")
		}
	default:
		return fmt.Errorf("unknown storage driver %q", c.Storage.Driver)
	}

	if c.Matching.DefaultLat < -90 || c.Matching.DefaultLat > 90 ||
		c.Matching.DefaultLon < -180 || c.Matching.DefaultLon > 180 {
		return errors.New("matching default centre is out of range")
	}

	if len(c.Telegram.Links) > 0 && c.Telegram.BotToken == "" {
		return errors.New("telegram bot token is required when links are configured")
	}
	return ValidateLinks(c.Telegram.Links)
}

// ValidateLinks rejects relay links without a room or chat and duplicate pairs.
func ValidateLinks(links []TelegramLink) error {
	seen := make(map[string]bool)
	for _, link := range links {
		if strings.TrimSpace(link.Room) == "" {
			return errors.New("telegram link has empty room")
		}
		if link.ChatID == 0 {
			return fmt.Errorf("telegram link for room '%s' has invalid chat_id 0", link.Room)
		}
		key := fmt.Sprintf("%s/%d", link.Room, link.ChatID)
		if seen[key] {
			return fmt.Errorf("duplicate telegram link found: %s", key)
		}
		seen[key] = true
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.App.Name == "" {
		c.App.Name = "fixit"
	}
	if c.API.GRPC.Port == 0 {
		c.API.GRPC.Port = 8081
	}
	if c.API.GRPC.Keepalive == 0 {
		c.API.GRPC.Keepalive = 30 * time.Second
	}
	if c.API.HTTP.Port == 0 {
		c.API.HTTP.Port = 8080
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
	if c.Monitoring.PrometheusEnabled && c.Monitoring.PrometheusPort == 0 {
		c.Monitoring.PrometheusPort = 9090
	}
	if c.Redis.Channel == "" {
		c.Redis.Channel = "fixit:rooms"
	}

	if c.Payment.Mode == "" {
		c.Payment.Mode = PaymentModeOffline
	}
	if c.Payment.Currency == "" {
		c.Payment.Currency = "INR"
	}
	if c.Payment.Timeout == 0 {
		c.Payment.Timeout = 10 * time.Second
	}
	if c.Payment.BaseURL == "" && c.Payment.Mode == PaymentModeOnline {
		c.Payment.BaseURL = "https://api.razorpay.com"
	}

	if c.Storage.Driver == "" {
		c.Storage.Driver = StorageLocal
	}
	if c.Storage.LocalPath == "" {
		c.Storage.LocalPath = "."
	}
	if c.Storage.MaxUploadMB == 0 {
		c.Storage.MaxUploadMB = 10
	}

	if c.Matching.DefaultLat == 0 && c.Matching.DefaultLon == 0 {
		c.Matching.DefaultLat = 28.6139
		c.Matching.DefaultLon = 77.2090
	}
	if c.Matching.NearbyLimit == 0 {
		c.Matching.NearbyLimit = 50
	}

	if c.Google.LedgerSheet == "" {
		c.Google.LedgerSheet = "Bookings"
	}
	if c.Exports.Path == "" {
		c.Exports.Path = "exports"
	}
	if c.Locks.TTL == 0 {
		c.Locks.TTL = 10 * time.Second
	}
	if c.Locks.Prefix == "" {
		c.Locks.Prefix = "fixit:lock:"
	}

	if c.Worker.QueueKey == "" {
		c.Worker.QueueKey = "fixit:ledger:queue"
	}
	if c.Worker.MaxRetries == 0 {
		c.Worker.MaxRetries = 5
	}
	if c.Worker.BaseDelay == 0 {
		c.Worker.BaseDelay = 2 * time.Second
	}
	if c.Worker.MaxDelay == 0 {
		c.Worker.MaxDelay = time.Minute
	}
}
