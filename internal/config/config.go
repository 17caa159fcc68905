package config

import (
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/spf13/viper"
)

// DefaultUserAgent is the default User-Agent string sent with all HTTP requests.
// CDNs serving media payloads routinely reject clients that do not look like a
// browser, so the default mimics a current Firefox release.
const DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:147.0) Gecko/20100101 Firefox/147.0"

// Download tuning defaults. They match the behaviour the rest of the
// application is calibrated against and only need overriding in tests.
const (
	DefaultMaxConcurrent = 3
	DefaultChunkSize     = 1024 * 1024 // 1 MiB
	DefaultMaxRetries    = 3
	DefaultIdleTimeout   = "30s"
	DefaultRetryBackoff  = "1s"
	DefaultProgressStep  = 5
)

type FolderConfig struct {
	ID   string `mapstructure:"id"`
	Path string `mapstructure:"path"`
	Kind string `mapstructure:"kind"` // "audio", "video" or "any"
}

type DownloadsConfig struct {
	MaxConcurrent int            `mapstructure:"max_concurrent"`
	ChunkSize     int64          `mapstructure:"chunk_size"`
	MaxRetries    int            `mapstructure:"max_retries"`
	RetryBackoff  string         `mapstructure:"retry_backoff"` // Go duration string, grows linearly per attempt
	IdleTimeout   string         `mapstructure:"idle_timeout"`  // Go duration string like "30s"
	ProgressStep  int            `mapstructure:"progress_step"` // persist record every N percent
	DefaultDir    string         `mapstructure:"default_dir"`
	Folders       []FolderConfig `mapstructure:"folders"`
}

type Config struct {
	ProxyConnectionString string `mapstructure:"proxy_connection_string"`
	ClientTimeout         string `mapstructure:"client_timeout"` // Go duration string like "30s", "1h", etc.
	UserAgent             string `mapstructure:"user_agent"`
	Server                struct {
		Port    int    `mapstructure:"port"`
		Address string `mapstructure:"address"`
	} `mapstructure:"server"`
	LogLevel  string          `mapstructure:"log_level"`
	Downloads DownloadsConfig `mapstructure:"downloads"`
	Database  struct {
		Path string `mapstructure:"path"`
	} `mapstructure:"database"`
	ArtworkCache struct {
		Provider string `mapstructure:"provider"` // "memory" or "redis"
		Size     int    `mapstructure:"size"`     // Maximum number of entries in the LRU cache
		TTL      string `mapstructure:"ttl"`      // Go duration string like "1h", "24h", etc.
		Redis    string `mapstructure:"redis"`    // connection string, e.g. "redis://localhost:6379/0"
	} `mapstructure:"artwork_cache"`
	Metrics struct {
		Enabled bool `mapstructure:"enabled"`
		Port    int  `mapstructure:"port"`
	} `mapstructure:"metrics"`
	Sentry struct {
		DSN         string `mapstructure:"dsn"`
		Environment string `mapstructure:"environment"`
	} `mapstructure:"sentry"`
}

var (
	globalConfig *Config
	logger       zerolog.Logger
)

func init() {
	// Initialize zerolog with console writer for human-readable output
	logger = zerolog.New(zerolog.ConsoleWriter{
		Out:     os.Stdout,
		NoColor: false,
	}).With().Timestamp().Logger()

	config, err := LoadConfig()
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to load config")
	}

	// Parse and set log level from config
	level := zerolog.InfoLevel // default
	if config.LogLevel != "" {
		if parsedLevel, err := zerolog.ParseLevel(config.LogLevel); err == nil {
			level = parsedLevel
		} else {
			logger.Warn().Str("invalid_level", config.LogLevel).Msg("Invalid log level, using default 'info'")
		}
	}

	// Set the global log level
	zerolog.SetGlobalLevel(level)

	// Update logger with the configured level
	logger = logger.Level(level)

	logger.Info().Str("level", level.String()).Msg("Logging configured")
	globalConfig = config
	logger.Info().Msg("Configuration loaded successfully")
}

func LoadConfig() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")

	// Environment variable support
	viper.AutomaticEnv()
	viper.SetEnvPrefix("APP")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Add specific environment variable for log level
	_ = viper.BindEnv("log_level", "LOG_LEVEL")

	// Read config file
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, err
	}
	if config.UserAgent == "" {
		config.UserAgent = DefaultUserAgent
	}
	applyDownloadDefaults(&config.Downloads)

	return &config, nil
}

func applyDownloadDefaults(d *DownloadsConfig) {
	if d.MaxConcurrent <= 0 {
		d.MaxConcurrent = DefaultMaxConcurrent
	}
	if d.ChunkSize <= 0 {
		d.ChunkSize = DefaultChunkSize
	}
	if d.MaxRetries <= 0 {
		d.MaxRetries = DefaultMaxRetries
	}
	if d.RetryBackoff == "" {
		d.RetryBackoff = DefaultRetryBackoff
	}
	if d.IdleTimeout == "" {
		d.IdleTimeout = DefaultIdleTimeout
	}
	if d.ProgressStep <= 0 {
		d.ProgressStep = DefaultProgressStep
	}
	if d.DefaultDir == "" {
		d.DefaultDir = defaultDownloadDir()
	}
}

func defaultDownloadDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "downloads"
	}

	return home + string(os.PathSeparator) + "Downloads"
}

func GetConfig() *Config {
	return globalConfig
}

func GetUserAgent() string {
	if globalConfig != nil && globalConfig.UserAgent != "" {
		return globalConfig.UserAgent
	}

	return DefaultUserAgent
}

func GetLogger() zerolog.Logger {
	return logger
}
