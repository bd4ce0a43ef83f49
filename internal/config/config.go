package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Detector DetectorConfig `yaml:"detector" mapstructure:"detector"`
	Input    InputConfig    `yaml:"input" mapstructure:"input"`
	Fetch    FetchConfig    `yaml:"fetch" mapstructure:"fetch"`
	Report   ReportConfig   `yaml:"report" mapstructure:"report"`
	Server   ServerConfig   `yaml:"server" mapstructure:"server"`
	Log      LogConfig      `yaml:"log" mapstructure:"log"`
}

// DetectorConfig configures the local outlier factor detector.
type DetectorConfig struct {
	NeighborhoodSize int     `yaml:"neighborhood_size" mapstructure:"neighborhood_size"`
	Contamination    float64 `yaml:"contamination" mapstructure:"contamination"`
	Index            string  `yaml:"index" mapstructure:"index"`
	Workers          int     `yaml:"workers" mapstructure:"workers"` // 0 = GOMAXPROCS
}

// InputConfig configures how sources are read.
type InputConfig struct {
	TimestampField  string `yaml:"timestamp_field" mapstructure:"timestamp_field"`
	ValueField      string `yaml:"value_field" mapstructure:"value_field"`
	TimestampLayout string `yaml:"timestamp_layout" mapstructure:"timestamp_layout"`
	Encoding        string `yaml:"encoding" mapstructure:"encoding"`
}

// FetchConfig configures remote source retrieval.
type FetchConfig struct {
	TimeoutSecs int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	MaxAttempts int    `yaml:"max_attempts" mapstructure:"max_attempts"`
	UserAgent   string `yaml:"user_agent" mapstructure:"user_agent"`
}

// ReportConfig configures the text report.
type ReportConfig struct {
	MaxListed int `yaml:"max_listed" mapstructure:"max_listed"` // 0 = all
}

// ServerConfig configures the HTTP detection server.
type ServerConfig struct {
	Port                int     `yaml:"port" mapstructure:"port"`
	RateLimit           float64 `yaml:"rate_limit" mapstructure:"rate_limit"` // requests per second
	RateBurst           int     `yaml:"rate_burst" mapstructure:"rate_burst"`
	MaxPoints           int     `yaml:"max_points" mapstructure:"max_points"`
	MaxNeighborhoodSize int     `yaml:"max_neighborhood_size" mapstructure:"max_neighborhood_size"` // memory grows with points * k
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("ANOMALY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("detector.neighborhood_size", 20)
	v.SetDefault("detector.contamination", 0.05)
	v.SetDefault("detector.index", "auto")
	v.SetDefault("detector.workers", 0)
	v.SetDefault("input.timestamp_field", "timestamp")
	v.SetDefault("input.value_field", "value")
	v.SetDefault("input.timestamp_layout", "")
	v.SetDefault("input.encoding", "")
	v.SetDefault("fetch.timeout_secs", 30)
	v.SetDefault("fetch.max_attempts", 3)
	v.SetDefault("fetch.user_agent", "anomaly-cli/1.0")
	v.SetDefault("report.max_listed", 0)
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.rate_limit", 10.0)
	v.SetDefault("server.rate_burst", 20)
	v.SetDefault("server.max_points", 100000)
	v.SetDefault("server.max_neighborhood_size", 100)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	// Reports go to stdout; keep logs on stderr.
	zapCfg.OutputPaths = []string{"stderr"}

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}

// Validate checks the settings a command mode depends on. mode is
// "detect" or "serve". Detector parameters are validated by the lof package
// once flags have been applied.
func (c *Config) Validate(mode string) error {
	var errs []string

	switch mode {
	case "detect":
		if c.Fetch.MaxAttempts < 1 {
			errs = append(errs, "fetch.max_attempts must be >= 1")
		}
		if c.Fetch.TimeoutSecs < 0 {
			errs = append(errs, "fetch.timeout_secs must be >= 0")
		}
		if c.Report.MaxListed < 0 {
			errs = append(errs, "report.max_listed must be >= 0")
		}
	case "serve":
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, "server.port must be > 0 and <= 65535")
		}
		if c.Server.RateLimit <= 0 {
			errs = append(errs, "server.rate_limit must be > 0")
		}
		if c.Server.RateBurst < 1 {
			errs = append(errs, "server.rate_burst must be >= 1")
		}
		if c.Server.MaxPoints < 1 {
			errs = append(errs, "server.max_points must be >= 1")
		}
		if c.Server.MaxNeighborhoodSize < 1 {
			errs = append(errs, "server.max_neighborhood_size must be >= 1")
		}
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if len(errs) > 0 {
		return eris.Errorf("config: %s", strings.Join(errs, "; "))
	}
	return nil
}
