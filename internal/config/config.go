// Package config loads settings from the environment, with an optional .env
// file for local development.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"

	DriverSQLite = "sqlite"
	DriverMongo  = "mongo"

	devSecret = "dev_secret_change_me_please"
)

type Config struct {
	Env     string
	Port    int
	BaseURL string // used to build links in emails

	Store StoreConfig
	Auth  AuthConfig
	Mail  MailConfig
	Log   LogConfig
}

type StoreConfig struct {
	Driver        string
	DBPath        string
	MongoURI      string
	MongoDatabase string
}

type AuthConfig struct {
	JWTSecret  string
	SessionTTL time.Duration
	BcryptCost int
}

type MailConfig struct {
	SendGridAPIKey string // empty = log mail instead of sending it
	From           string
	AppName        string
}

type LogConfig struct {
	Level  string
	Format string
}

// Load reads .env (if present) and the process environment.
func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()

	setDefaults(v)

	// An explicit config file that doesn't exist comes back as an fs error,
	// not ConfigFileNotFoundError.
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("config: reading .env: %w", err)
		}
	}

	cfg := fromViper(v)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func fromViper(v *viper.Viper) *Config {
	return &Config{
		Env:     v.GetString("ENV"),
		Port:    v.GetInt("PORT"),
		BaseURL: strings.TrimRight(v.GetString("BASE_URL"), "/"),
		Store: StoreConfig{
			Driver:        strings.ToLower(v.GetString("STORE_DRIVER")),
			DBPath:        v.GetString("DB_PATH"),
			MongoURI:      v.GetString("MONGO_URI"),
			MongoDatabase: v.GetString("MONGO_DATABASE"),
		},
		Auth: AuthConfig{
			JWTSecret:  v.GetString("JWT_SECRET"),
			SessionTTL: parseDuration(v.GetString("SESSION_TTL"), 7*24*time.Hour),
			BcryptCost: v.GetInt("BCRYPT_COST"),
		},
		Mail: MailConfig{
			SendGridAPIKey: v.GetString("SENDGRID_API_KEY"),
			From:           v.GetString("MAIL_FROM"),
			AppName:        v.GetString("APP_NAME"),
		},
		Log: LogConfig{
			Level:  v.GetString("LOG_LEVEL"),
			Format: v.GetString("LOG_FORMAT"),
		},
	}
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", EnvDevelopment)
	v.SetDefault("PORT", 8080)
	v.SetDefault("BASE_URL", "http://localhost:8080")

	v.SetDefault("STORE_DRIVER", DriverSQLite)
	v.SetDefault("DB_PATH", "data/classplanner.db")
	v.SetDefault("MONGO_URI", "mongodb://localhost:27017")
	v.SetDefault("MONGO_DATABASE", "classplanner")

	v.SetDefault("JWT_SECRET", devSecret)
	v.SetDefault("SESSION_TTL", "168h")
	v.SetDefault("BCRYPT_COST", 12)

	v.SetDefault("SENDGRID_API_KEY", "")
	v.SetDefault("MAIL_FROM", "noreply@classplanner.local")
	v.SetDefault("APP_NAME", "classplanner")

	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "text")
}

// Validate rejects settings the server can't run with.
func (c *Config) Validate() error {
	switch c.Store.Driver {
	case DriverSQLite:
		if c.Store.DBPath == "" {
			return errors.New("config: DB_PATH is required for the sqlite store")
		}
	case DriverMongo:
		if c.Store.MongoURI == "" || c.Store.MongoDatabase == "" {
			return errors.New("config: MONGO_URI and MONGO_DATABASE are required for the mongo store")
		}
	default:
		return fmt.Errorf("config: unknown STORE_DRIVER %q", c.Store.Driver)
	}

	if len(c.Auth.JWTSecret) < 16 {
		return errors.New("config: JWT_SECRET must be at least 16 characters")
	}
	if c.IsProduction() && c.Auth.JWTSecret == devSecret {
		return errors.New("config: JWT_SECRET must be set in production")
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("config: invalid PORT %d", c.Port)
	}
	return nil
}

func (c *Config) IsProduction() bool {
	return c.Env == EnvProduction
}

func parseDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}
	return d
}
