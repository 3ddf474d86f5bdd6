// Package config loads the service configuration from the environment.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Storage backends
const (
	StorageLocal  = "LOCAL"
	StorageGCS    = "GCS"
	StorageRedis  = "REDIS"
	StorageMemory = "MEMORY"
)

// Config groups every setting of the process
type Config struct {
	App     AppConfig
	Log     LogConfig
	HTTP    HTTPConfig
	Storage StorageConfig
	FacturX FacturXConfig
	Remote  RemoteConfig
}

// AppConfig holds general settings
type AppConfig struct {
	Env     string // development, staging, production
	BaseURL string // public URL used to build download links
}

// LogConfig holds logger settings
type LogConfig struct {
	Level  string
	Format string
	Output string
}

// HTTPConfig holds the listener settings
type HTTPConfig struct {
	Address      string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// StorageConfig selects and configures the bundle store
type StorageConfig struct {
	Type           string
	Dir            string
	GCSBucket      string
	RedisURL       string
	RedisKeyPrefix string
}

// FacturXConfig tunes invoice generation
type FacturXConfig struct {
	// AllowPlainFallback keeps the rendered PDF without embedded XML when
	// embedding fails on the create path. Uploads are unaffected.
	AllowPlainFallback bool
}

// KeycloakConfig holds the client-credentials settings of the remote API
type KeycloakConfig struct {
	ServerURL    string
	Realm        string
	ClientID     string
	ClientSecret string
}

// TokenURL returns the OpenID Connect token endpoint of the realm
func (k KeycloakConfig) TokenURL() string {
	return strings.TrimRight(k.ServerURL, "/") + "/realms/" + k.Realm + "/protocol/openid-connect/token"
}

// RemoteConfig holds the settings of the remote message API
type RemoteConfig struct {
	APIURL       string
	RoutingKey   string
	FolderNumber string
	Keycloak     KeycloakConfig
}

// Enabled reports whether a remote API is configured
func (r RemoteConfig) Enabled() bool {
	return r.APIURL != ""
}

// Load reads .env (when present) and the environment
func Load() (*Config, error) {
	_ = godotenv.Load() // a missing .env is fine

	v := viper.New()
	v.AutomaticEnv()
	setDefaults(v)

	prefix := strings.ToUpper(strings.TrimSpace(v.GetString("KEYCLOAK_CLIENT_PREFIX")))
	keycloak := func(key string) string {
		if prefix != "" {
			if s := v.GetString(prefix + "_" + key); s != "" {
				return s
			}
		}
		return v.GetString(key)
	}

	cfg := &Config{
		App: AppConfig{
			Env:     v.GetString("APP_ENV"),
			BaseURL: strings.TrimRight(v.GetString("APP_BASE_URL"), "/"),
		},
		Log: LogConfig{
			Level:  v.GetString("LOG_LEVEL"),
			Format: v.GetString("LOG_FORMAT"),
			Output: v.GetString("LOG_OUTPUT"),
		},
		HTTP: HTTPConfig{
			Address:      v.GetString("HTTP_ADDRESS"),
			ReadTimeout:  v.GetDuration("HTTP_READ_TIMEOUT"),
			WriteTimeout: v.GetDuration("HTTP_WRITE_TIMEOUT"),
		},
		Storage: StorageConfig{
			Type:           strings.ToUpper(v.GetString("STORAGE_TYPE")),
			Dir:            v.GetString("STORAGE_DIR"),
			GCSBucket:      v.GetString("GCS_BUCKET_NAME"),
			RedisURL:       v.GetString("REDIS_URL"),
			RedisKeyPrefix: v.GetString("REDIS_KEY_PREFIX"),
		},
		FacturX: FacturXConfig{
			AllowPlainFallback: v.GetBool("FACTURX_ALLOW_PLAIN_FALLBACK"),
		},
		Remote: RemoteConfig{
			APIURL:       strings.TrimRight(v.GetString("REMOTE_API_URL"), "/"),
			RoutingKey:   v.GetString("RABBITMQ_ROUTING_KEY"),
			FolderNumber: v.GetString("REMOTE_FOLDER_NUMBER"),
			Keycloak: KeycloakConfig{
				ServerURL:    keycloak("KEYCLOAK_SERVER_URL"),
				Realm:        keycloak("KEYCLOAK_REALM_NAME"),
				ClientID:     keycloak("KEYCLOAK_CLIENT_ID"),
				ClientSecret: keycloak("KEYCLOAK_CLIENT_SECRET"),
			},
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("APP_ENV", "development")
	v.SetDefault("APP_BASE_URL", "http://localhost:8000")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "console")
	v.SetDefault("LOG_OUTPUT", "stdout")
	v.SetDefault("HTTP_ADDRESS", ":8000")
	v.SetDefault("HTTP_READ_TIMEOUT", 30*time.Second)
	v.SetDefault("HTTP_WRITE_TIMEOUT", 2*time.Minute)
	v.SetDefault("STORAGE_TYPE", StorageLocal)
	v.SetDefault("STORAGE_DIR", "invoices")
	v.SetDefault("REDIS_KEY_PREFIX", "facturx:")
	v.SetDefault("FACTURX_ALLOW_PLAIN_FALLBACK", false)
	v.SetDefault("RABBITMQ_ROUTING_KEY", "facture.entrant")
	v.SetDefault("REMOTE_FOLDER_NUMBER", "100602")
}

// Validate checks that the selected storage backend is fully configured
func (c *Config) Validate() error {
	var errs []error
	switch c.Storage.Type {
	case StorageLocal:
		if c.Storage.Dir == "" {
			errs = append(errs, errors.New("STORAGE_DIR is required for LOCAL storage"))
		}
	case StorageGCS:
		if c.Storage.GCSBucket == "" {
			errs = append(errs, errors.New("GCS_BUCKET_NAME is required for GCS storage"))
		}
	case StorageRedis:
		if c.Storage.RedisURL == "" {
			errs = append(errs, errors.New("REDIS_URL is required for REDIS storage"))
		}
	case StorageMemory:
	default:
		errs = append(errs, fmt.Errorf("unknown STORAGE_TYPE %q", c.Storage.Type))
	}
	if c.HTTP.ReadTimeout < 0 || c.HTTP.WriteTimeout < 0 {
		errs = append(errs, errors.New("HTTP timeouts must not be negative"))
	}
	return errors.Join(errs...)
}
