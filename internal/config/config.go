package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

const (
	envPrefix           = "TRAVELBLOG"
	defaultHTTPAddress  = "0.0.0.0:8080"
	defaultDatabasePath = "travelblog.db"
	defaultLogLevel     = "info"
)

// AppConfig captures runtime configuration for the API server.
type AppConfig struct {
	HTTPAddress  string
	DatabasePath string
	RedisAddress string
	IDPJWKSURL   string
	IDPAudience  string
	IDPIssuers   []string
	StaticDir    string
	LogLevel     string
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
	configViper.SetDefault("database.path", defaultDatabasePath)
	configViper.SetDefault("redis.address", "")
	configViper.SetDefault("idp.jwks_url", "")
	configViper.SetDefault("idp.audience", "")
	configViper.SetDefault("idp.issuers", []string{})
	configViper.SetDefault("static.dir", "")
	configViper.SetDefault("log.level", defaultLogLevel)
}

// Load parses runtime configuration from viper.
func Load(configViper *viper.Viper) (AppConfig, error) {
	cfg := AppConfig{
		HTTPAddress:  configViper.GetString("http.address"),
		DatabasePath: configViper.GetString("database.path"),
		RedisAddress: configViper.GetString("redis.address"),
		IDPJWKSURL:   configViper.GetString("idp.jwks_url"),
		IDPAudience:  configViper.GetString("idp.audience"),
		IDPIssuers:   configViper.GetStringSlice("idp.issuers"),
		StaticDir:    configViper.GetString("static.dir"),
		LogLevel:     configViper.GetString("log.level"),
	}

	if err := cfg.validate(); err != nil {
		return AppConfig{}, err
	}

	return cfg, nil
}

func (c AppConfig) validate() error {
	if strings.TrimSpace(c.DatabasePath) == "" {
		return fmt.Errorf("database.path is required")
	}
	if strings.TrimSpace(c.IDPJWKSURL) == "" {
		return fmt.Errorf("idp.jwks_url is required")
	}
	if strings.TrimSpace(c.IDPAudience) == "" {
		return fmt.Errorf("idp.audience is required")
	}
	if len(c.IDPIssuers) == 0 {
		return fmt.Errorf("idp.issuers is required")
	}
	return nil
}
