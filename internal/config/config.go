package config

import (
	"strings"

	"github.com/spf13/viper"
)

// Config holds all configuration for the application.
type Config struct {
	Robinhood Robinhood `mapstructure:"robinhood"`
	Analysis  Analysis  `mapstructure:"analysis"`
	Logger    Logger    `mapstructure:"logger"`
	Server    Server    `mapstructure:"server"`
	Database  Database  `mapstructure:"database"`
}

// Robinhood holds the configuration for the Robinhood API.
type Robinhood struct {
	BaseURL        string  `mapstructure:"base_url"`
	Username       string  `mapstructure:"username"`
	Password       string  `mapstructure:"password"`
	MFACode        string  `mapstructure:"mfa_code"`
	AutoLogin      bool    `mapstructure:"auto_login"`
	RateLimit      float64 `mapstructure:"rate_limit"`
	RateLimitBurst int     `mapstructure:"rate_limit_burst"`
	TimeoutSeconds int     `mapstructure:"timeout_seconds"`
}

// Server holds the configuration for the tool server.
type Server struct {
	Port int `mapstructure:"port"`
}

// Database holds the configuration for the database.
type Database struct {
	DSN string `mapstructure:"dsn"`
}

// Analysis holds the configuration for the profit analysis.
type Analysis struct {
	PersistReports bool `mapstructure:"persist_reports"`
}

// Logger holds the configuration for the logger.
type Logger struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// LoadConfig reads configuration from file or environment variables.
func LoadConfig(path string) (config Config, err error) {
	v := viper.New()
	v.AddConfigPath(path)
	v.SetConfigName("config") // name of config file (without extension)
	v.SetConfigType("yml")

	// Allow environment variables to override config file,
	// e.g. ROBINHOOD_USERNAME overrides robinhood.username.
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	err = v.ReadInConfig()
	if err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return
		}
		// Running purely from env/defaults is allowed.
		err = nil
	}

	bindEnv(v)

	err = v.Unmarshal(&config)
	return
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("robinhood.base_url", "https://api.robinhood.com")
	v.SetDefault("robinhood.rate_limit", 5)       // requests per second
	v.SetDefault("robinhood.rate_limit_burst", 2) // burst size
	v.SetDefault("robinhood.timeout_seconds", 15)
	v.SetDefault("robinhood.auto_login", false)
	v.SetDefault("server.port", 8080)
	v.SetDefault("database.dsn", "robinhood.db")
	v.SetDefault("analysis.persist_reports", true)
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
}

// bindEnv makes keys that have no default visible to AutomaticEnv during Unmarshal.
func bindEnv(v *viper.Viper) {
	for _, key := range []string{"robinhood.username", "robinhood.password", "robinhood.mfa_code"} {
		_ = v.BindEnv(key)
	}
}
