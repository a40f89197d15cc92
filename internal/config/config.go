package config

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	// Audit orchestration configuration
	Audit AuditConfig `mapstructure:"audit"`

	// Upstream rate gateway configuration
	Gateway GatewayConfig `mapstructure:"gateway"`

	// Page checker configuration
	Checker CheckerConfig `mapstructure:"checker"`

	// Sitemap discovery configuration
	Sitemap SitemapConfig `mapstructure:"sitemap"`

	// Logging configuration
	Logging LoggingConfig `mapstructure:"logging"`
}

// AuditConfig holds orchestrator-specific configuration
type AuditConfig struct {
	PageCap            int           `mapstructure:"page_cap"`
	Concurrency        int           `mapstructure:"concurrency"`
	CheckTimeout       time.Duration `mapstructure:"check_timeout"`
	PerformanceTimeout time.Duration `mapstructure:"performance_timeout"`
	PriorityPaths      []string      `mapstructure:"priority_paths"`
}

// GatewayConfig holds the shared upstream rate budget
type GatewayConfig struct {
	MaxRequestsPerMinute int `mapstructure:"max_requests_per_minute"`
}

// CheckerConfig holds page-checker configuration. Mode "local" runs the
// in-process checks; "remote" calls the upstream audit API.
type CheckerConfig struct {
	Mode      string `mapstructure:"mode"`
	Endpoint  string `mapstructure:"endpoint"`
	Login     string `mapstructure:"login"`
	Password  string `mapstructure:"password"`
	UserAgent string `mapstructure:"user_agent"`
}

// SitemapConfig holds sitemap fetch configuration
type SitemapConfig struct {
	FetchTimeout      time.Duration `mapstructure:"fetch_timeout"`
	RequestsPerSecond int           `mapstructure:"requests_per_second"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // "json" or "console"
}

var (
	defaultConfig *Config
	configLoaded  bool
)

// Load loads configuration from file and environment
func Load(configPath string) (*Config, error) {
	if configLoaded && defaultConfig != nil {
		return defaultConfig, nil
	}

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")

	if configPath != "" {
		viper.SetConfigFile(configPath)
	} else {
		viper.AddConfigPath(".")
		viper.AddConfigPath("./config")
		viper.AddConfigPath("$HOME/.auditsmith")
	}

	// Set defaults
	setDefaults()

	// Bind environment variables
	bindEnvVars()

	// Read config file if it exists
	if err := viper.ReadInConfig(); err != nil {
		// Config file not found is not an error, we'll use defaults and env
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	// Override with environment variables
	loadFromEnv(&config)

	defaultConfig = &config
	configLoaded = true

	return &config, nil
}

// setDefaults sets default configuration values
func setDefaults() {
	// Audit defaults
	viper.SetDefault("audit.page_cap", 15)
	viper.SetDefault("audit.concurrency", 5)
	viper.SetDefault("audit.check_timeout", "15s")
	viper.SetDefault("audit.performance_timeout", "60s")
	viper.SetDefault("audit.priority_paths", []string{
		"/pricing", "/product", "/services", "/blog", "/about", "/contact", "/features",
	})

	// Gateway defaults
	viper.SetDefault("gateway.max_requests_per_minute", 50)

	// Checker defaults
	viper.SetDefault("checker.mode", "local")
	viper.SetDefault("checker.endpoint", "https://api.auditsmith.dev")
	viper.SetDefault("checker.user_agent", "AuditSmith/1.0")

	// Sitemap defaults
	viper.SetDefault("sitemap.fetch_timeout", "10s")
	viper.SetDefault("sitemap.requests_per_second", 2)

	// Logging defaults
	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "json")
}

// bindEnvVars binds environment variables
func bindEnvVars() {
	viper.SetEnvPrefix("AUDITSMITH")
	viper.AutomaticEnv()

	// Bind specific env vars
	viper.BindEnv("checker.login", "AUDITAPI_LOGIN")
	viper.BindEnv("checker.password", "AUDITAPI_PASSWORD")
	viper.BindEnv("checker.endpoint", "AUDITAPI_ENDPOINT")
}

// loadFromEnv loads configuration from environment variables
func loadFromEnv(config *Config) {
	if login := os.Getenv("AUDITAPI_LOGIN"); login != "" {
		config.Checker.Login = login
	}
	if password := os.Getenv("AUDITAPI_PASSWORD"); password != "" {
		config.Checker.Password = password
	}
	if endpoint := os.Getenv("AUDITAPI_ENDPOINT"); endpoint != "" {
		config.Checker.Endpoint = endpoint
	}
}

// Get returns the current configuration
func Get() *Config {
	if !configLoaded || defaultConfig == nil {
		// Load with defaults if not already loaded
		config, _ := Load("")
		return config
	}
	return defaultConfig
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Audit.PageCap <= 0 {
		return fmt.Errorf("audit.page_cap must be positive")
	}
	if c.Audit.Concurrency <= 0 {
		return fmt.Errorf("audit.concurrency must be positive")
	}
	if c.Gateway.MaxRequestsPerMinute <= 0 {
		return fmt.Errorf("gateway.max_requests_per_minute must be positive")
	}
	if c.Checker.Mode != "local" && c.Checker.Mode != "remote" {
		return fmt.Errorf("checker.mode must be \"local\" or \"remote\"")
	}
	if c.Checker.Mode == "remote" && c.Checker.Login == "" {
		return fmt.Errorf("checker.login is required in remote mode")
	}
	return nil
}
