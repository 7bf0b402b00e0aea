package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

// Config holds every runtime setting read from the environment.
type Config struct {
	Port        string `validate:"required,numeric"`
	Environment string
	LogLevel    string `validate:"oneof=debug info warn error"`
	LogFormat   string `validate:"oneof=text json"`

	Database       DatabaseConfig
	UseMemoryStore bool

	Meta      MetaConfig
	Responder ResponderConfig

	UploadDir                string `validate:"required"`
	SessionExpirationMinutes int    `validate:"min=1"`
	DefaultTimezone          string `validate:"required"`
	HistoryLimit             int    `validate:"min=1,max=100"`

	JWTSecret        string
	SSETriggerSecret string
}

// DatabaseConfig covers both a plain URL and the Cloud SQL socket setup.
type DatabaseConfig struct {
	URL                    string
	Host                   string
	Port                   string
	User                   string
	Password               string
	Name                   string
	InstanceConnectionName string
}

// MetaConfig is the WhatsApp Cloud API setup shared by all lines.
type MetaConfig struct {
	VerifyToken   string `validate:"required"`
	AppSecret     string
	GraphAPIBase  string `validate:"required,url"`
	GraphVersion  string `validate:"required"`
	Timeout       time.Duration
	RatePerSecond float64 `validate:"gt=0"`
}

type ResponderConfig struct {
	APIKey  string
	Model   string `validate:"required"`
	BaseURL string `validate:"required,url"`
	Timeout time.Duration
}

// LoadDotEnv loads .env files for local development. A missing file is not an error.
func LoadDotEnv() {
	if os.Getenv("INSTANCE_CONNECTION_NAME") != "" {
		return
	}
	if err := godotenv.Load(".env"); err != nil {
		if err := godotenv.Load("environments/.env.development"); err != nil {
			slog.Info("no .env file found, using process environment")
		}
	}
}

// Load reads the environment into a Config and validates it.
func Load() (*Config, error) {
	cfg := &Config{
		Port:        getEnv("PORT", "8080"),
		Environment: getEnv("ENVIRONMENT", "development"),
		LogLevel:    getEnv("LOG_LEVEL", "info"),
		LogFormat:   getEnv("LOG_FORMAT", "text"),
		Database: DatabaseConfig{
			URL:                    os.Getenv("DATABASE_URL"),
			Host:                   getEnv("DB_HOST", "localhost"),
			Port:                   getEnv("DB_PORT", "5432"),
			User:                   getEnv("DB_USER", "postgres"),
			Password:               os.Getenv("DB_PASS"),
			Name:                   getEnv("DB_NAME", "orderline"),
			InstanceConnectionName: os.Getenv("INSTANCE_CONNECTION_NAME"),
		},
		UseMemoryStore: getBool("USE_MEMORY_STORE", false),
		Meta: MetaConfig{
			VerifyToken:   os.Getenv("META_VERIFY_TOKEN"),
			AppSecret:     os.Getenv("META_APP_SECRET"),
			GraphAPIBase:  getEnv("META_GRAPH_API_BASE", "https://graph.facebook.com"),
			GraphVersion:  getEnv("META_GRAPH_API_VERSION", "v21.0"),
			Timeout:       getDuration("WHATSAPP_TIMEOUT", 15*time.Second),
			RatePerSecond: getFloat("WHATSAPP_RATE_PER_SECOND", 20),
		},
		Responder: ResponderConfig{
			APIKey:  os.Getenv("OPENAI_API_KEY"),
			Model:   getEnv("OPENAI_MODEL", "gpt-4o-mini"),
			BaseURL: getEnv("OPENAI_BASE_URL", "https://api.openai.com/v1"),
			Timeout: getDuration("RESPONDER_TIMEOUT", 30*time.Second),
		},
		UploadDir:                getEnv("UPLOAD_DIR", "./uploads"),
		SessionExpirationMinutes: getInt("SESSION_EXPIRATION_MINUTES", 45),
		DefaultTimezone:          getEnv("DEFAULT_TIMEZONE", "America/Bogota"),
		HistoryLimit:             getInt("HISTORY_LIMIT", 12),
		JWTSecret:                os.Getenv("JWT_SECRET"),
		SSETriggerSecret:         os.Getenv("SSE_TRIGGER_SECRET"),
	}

	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	if _, err := time.LoadLocation(cfg.DefaultTimezone); err != nil {
		return nil, fmt.Errorf("invalid DEFAULT_TIMEZONE %q: %w", cfg.DefaultTimezone, err)
	}
	return cfg, nil
}

// SessionExpiration is the idle window after which a session expires.
func (c *Config) SessionExpiration() time.Duration {
	return time.Duration(c.SessionExpirationMinutes) * time.Minute
}

// Location returns the default merchant time zone.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.DefaultTimezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// DSN builds the postgres connection string.
func (d DatabaseConfig) DSN() string {
	if d.URL != "" {
		return d.URL
	}
	if d.InstanceConnectionName != "" {
		// Cloud Run: connect via the Cloud SQL unix socket
		return fmt.Sprintf("host=/cloudsql/%s user=%s password=%s dbname=%s sslmode=disable",
			d.InstanceConnectionName, d.User, d.Password, d.Name)
	}
	return fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=disable",
		d.Host, d.User, d.Password, d.Name, d.Port)
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getInt(key string, fallback int) int {
	if v, err := strconv.Atoi(os.Getenv(key)); err == nil {
		return v
	}
	return fallback
}

func getFloat(key string, fallback float64) float64 {
	if v, err := strconv.ParseFloat(os.Getenv(key), 64); err == nil {
		return v
	}
	return fallback
}

func getBool(key string, fallback bool) bool {
	if v, err := strconv.ParseBool(os.Getenv(key)); err == nil {
		return v
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) time.Duration {
	if v, err := time.ParseDuration(os.Getenv(key)); err == nil {
		return v
	}
	return fallback
}
