package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

const (
	envPrefix              = "SKILLSWAP"
	defaultHTTPAddress     = "0.0.0.0:8080"
	defaultAPIBaseURL      = "http://localhost:8080"
	defaultSocketURL       = "ws://localhost:8080/socket"
	defaultDatabasePath    = "skillswap.db"
	defaultStoragePath     = "skillswap-local.db"
	defaultLogLevel        = "info"
	defaultSessionIssuer   = "skillswap-auth"
	defaultSessionAudience = "skillswap-realtime"
)

// AppConfig captures runtime configuration for the realtime client and the dev server.
type AppConfig struct {
	HTTPAddress       string
	APIBaseURL        string
	SocketURL         string
	DatabasePath      string
	StoragePath       string
	LogLevel          string
	SessionSigningKey string
	SessionIssuer     string
	SessionAudience   string
}

// NewViper returns a viper instance with defaults and env bindings configured.
func NewViper() *viper.Viper {
	configViper := viper.New()
	ApplyDefaults(configViper)
	return configViper
}

// ApplyDefaults configures defaults and env bindings on the provided viper instance.
func ApplyDefaults(configViper *viper.Viper) {
	configViper.SetEnvPrefix(envPrefix)
	configViper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	configViper.AutomaticEnv()

	configViper.SetDefault("http.address", defaultHTTPAddress)
	configViper.SetDefault("api.base_url", defaultAPIBaseURL)
	configViper.SetDefault("socket.url", defaultSocketURL)
	configViper.SetDefault("database.path", defaultDatabasePath)
	configViper.SetDefault("storage.path", defaultStoragePath)
	configViper.SetDefault("log.level", defaultLogLevel)
	configViper.SetDefault("session.issuer", defaultSessionIssuer)
	configViper.SetDefault("session.audience", defaultSessionAudience)
}

// Load parses runtime configuration from viper.
func Load(configViper *viper.Viper) (AppConfig, error) {
	cfg := AppConfig{
		HTTPAddress:       configViper.GetString("http.address"),
		APIBaseURL:        configViper.GetString("api.base_url"),
		SocketURL:         configViper.GetString("socket.url"),
		DatabasePath:      configViper.GetString("database.path"),
		StoragePath:       configViper.GetString("storage.path"),
		LogLevel:          configViper.GetString("log.level"),
		SessionSigningKey: configViper.GetString("session.signing_secret"),
		SessionIssuer:     configViper.GetString("session.issuer"),
		SessionAudience:   configViper.GetString("session.audience"),
	}

	if err := cfg.validate(); err != nil {
		return AppConfig{}, err
	}

	return cfg, nil
}

func (c AppConfig) validate() error {
	if strings.TrimSpace(c.APIBaseURL) == "" {
		return fmt.Errorf("api.base_url is required")
	}
	if strings.TrimSpace(c.SocketURL) == "" {
		return fmt.Errorf("socket.url is required")
	}
	if strings.TrimSpace(c.DatabasePath) == "" {
		return fmt.Errorf("database.path is required")
	}
	if strings.TrimSpace(c.StoragePath) == "" {
		return fmt.Errorf("storage.path is required")
	}
	return nil
}
