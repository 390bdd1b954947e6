package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"hotelledger/internal/models"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
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
	Ledger     LedgerConfig     `yaml:"ledger"`
	Google     GoogleConfig     `yaml:"google"`
	Telegram   TelegramConfig   `yaml:"telegram"`
	AMQP       AMQPConfig       `yaml:"amqp"`
}

type LedgerConfig struct {
	MaxBookingDays int `yaml:"max_booking_days"`
	// ReconcileInterval is how often room display statuses are recomputed.
	ReconcileInterval string `yaml:"reconcile_interval"`
	ProjectionTTL     int    `yaml:"projection_ttl"`
}

// ReconcileEvery parses ReconcileInterval, falling back to one hour.
func (l LedgerConfig) ReconcileEvery() time.Duration {
	if d, err := time.ParseDuration(l.ReconcileInterval); err == nil && d > 0 {
		return d
	}
	return time.Hour
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
	Enabled bool         `yaml:"enabled"`
	Port    int          `yaml:"port"`
	TLS     APITLSConfig `yaml:"tls"`
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

type AppConfig struct {
	Name        string `yaml:"name"`
	Environment string `yaml:"environment"`
	Version     string `yaml:"version"`
}

type TelegramConfig struct {
	BotToken       string  `yaml:"bot_token"`
	ManagerChatIDs []int64 `yaml:"manager_chat_ids"`
	Debug          bool    `yaml:"debug"`
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

type GoogleConfig struct {
	CredentialsFile string `yaml:"credentials_file"`
	SpreadsheetID   string `yaml:"spreadsheet_id"`
}

// Enabled reports whether the Sheets mirror is configured.
func (g GoogleConfig) Enabled() bool {
	return g.CredentialsFile != "" && g.SpreadsheetID != ""
}

type AMQPConfig struct {
	URL      string `yaml:"url"`
	Exchange string `yaml:"exchange"`
}

// RoomSeed is one entry of the rooms seed file.
type RoomSeed struct {
	HotelID  int64  `yaml:"hotel_id"`
	Number   string `yaml:"number"`
	Capacity int    `yaml:"capacity"`
	Rate     string `yaml:"rate"`
}

func (s RoomSeed) ToRoom() (models.Room, error) {
	rate, err := decimal.NewFromString(s.Rate)
	if err != nil {
		return models.Room{}, fmt.Errorf("room %s: invalid rate %q: %w", s.Number, s.Rate, err)
	}
	room := models.Room{HotelID: s.HotelID, Number: s.Number, Capacity: s.Capacity, Rate: rate}
	if err := room.Validate(); err != nil {
		return models.Room{}, fmt.Errorf("room %s: %w", s.Number, err)
	}
	return room, nil
}

func Load(configPath string) (*Config, error) {
	// Загружаем .env файл если существует
	if err := godotenv.Load(".env"); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, err
	}

	// Предварительная замена переменных окружения в YAML
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
	if c.Ledger.MaxBookingDays < 0 {
		return errors.New("ledger.max_booking_days must not be negative")
	}
	if c.Google.CredentialsFile != "" && c.Google.SpreadsheetID == "" {
		return errors.New("google.spreadsheet_id is required when credentials_file is set")
	}
	if c.Telegram.BotToken == "YOUR_BOT_TOKEN_HERE" {
		return errors.New("telegram bot token is a placeholder")
	}
	if c.Telegram.BotToken != "" && len(c.Telegram.ManagerChatIDs) == 0 {
		return errors.New("telegram.manager_chat_ids is required when bot_token is set")
	}
	if c.API.Auth.Enabled {
		for _, k := range c.API.Auth.APIKeys {
			if strings.TrimSpace(k.Key) == "" {
				return fmt.Errorf("api key %q has empty key", k.Name)
			}
		}
	}
	return nil
}

// ValidateRooms checks a seed list for bad entries and duplicate numbers
// within one hotel.
func ValidateRooms(seeds []RoomSeed) error {
	seen := make(map[string]bool)
	for _, s := range seeds {
		if _, err := s.ToRoom(); err != nil {
			return err
		}
		key := fmt.Sprintf("%d/%s", s.HotelID, s.Number)
		if seen[key] {
			return fmt.Errorf("duplicate room %s in hotel %d", s.Number, s.HotelID)
		}
		seen[key] = true
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.App.Name == "" {
		c.App.Name = "hotelledger"
	}
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

	if c.Ledger.MaxBookingDays == 0 {
		c.Ledger.MaxBookingDays = models.DefaultMaxBookingDays
	}
	if c.Ledger.ReconcileInterval == "" {
		c.Ledger.ReconcileInterval = "1h"
	}
	if c.Ledger.ProjectionTTL == 0 {
		c.Ledger.ProjectionTTL = models.DefaultProjectionTTL
	}
	if c.AMQP.URL != "" && c.AMQP.Exchange == "" {
		c.AMQP.Exchange = "hotelledger.events"
	}
}
