package config

import (
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store      StoreConfig      `yaml:"store" mapstructure:"store"`
	Blob       BlobConfig       `yaml:"blob" mapstructure:"blob"`
	Pipeline   PipelineConfig   `yaml:"pipeline" mapstructure:"pipeline"`
	Density    DensityConfig    `yaml:"density" mapstructure:"density"`
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	CORS       CORSConfig       `yaml:"cors" mapstructure:"cors"`
	Retry      RetryConfig      `yaml:"retry" mapstructure:"retry"`
	Circuit    CircuitConfig    `yaml:"circuit" mapstructure:"circuit"`
	Cache      CacheConfig      `yaml:"cache" mapstructure:"cache"`
	Metrics    MetricsConfig    `yaml:"metrics" mapstructure:"metrics"`
	Monitoring MonitoringConfig `yaml:"monitoring" mapstructure:"monitoring"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
}

// StoreConfig selects the record and project stores.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"` // postgres, sqlite or memory
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	SQLitePath  string `yaml:"sqlite_path" mapstructure:"sqlite_path"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
	// ProjectsFile, when set, serves project metadata from YAML instead of the database.
	ProjectsFile string `yaml:"projects_file" mapstructure:"projects_file"`
}

// BlobConfig selects the density blob store.
type BlobConfig struct {
	Driver       string  `yaml:"driver" mapstructure:"driver"` // fs or http
	Dir          string  `yaml:"dir" mapstructure:"dir"`
	ContainerURL string  `yaml:"container_url" mapstructure:"container_url"`
	SAS          string  `yaml:"sas" mapstructure:"sas"`
	RateLimit    float64 `yaml:"rate_limit" mapstructure:"rate_limit"`
	Burst        int     `yaml:"burst" mapstructure:"burst"`
	TimeoutSecs  int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
}

// PipelineConfig configures the temporal pipeline. Preset supplies defaults;
// any non-zero field overrides it. FillCap and DayOffset override whenever
// they are set, so an explicit 0 replaces the preset's value.
type PipelineConfig struct {
	Preset     string         `yaml:"preset" mapstructure:"preset"`
	GroupBy    string         `yaml:"group_by" mapstructure:"group_by"`
	FillCap    *int           `yaml:"fill_cap" mapstructure:"fill_cap"`
	Span       float64        `yaml:"span" mapstructure:"span"`
	Convention string         `yaml:"convention" mapstructure:"convention"`
	DayOffset  *time.Duration `yaml:"day_offset" mapstructure:"day_offset"`
}

// DensityConfig configures rasterization and blob fan-out.
type DensityConfig struct {
	Resolution  int       `yaml:"resolution" mapstructure:"resolution"`
	Ceiling     float64   `yaml:"ceiling" mapstructure:"ceiling"`
	Jitter      []float64 `yaml:"jitter" mapstructure:"jitter"`
	JitterSeed  uint64    `yaml:"jitter_seed" mapstructure:"jitter_seed"`
	Concurrency int       `yaml:"concurrency" mapstructure:"concurrency"`
}

// ServerConfig configures the HTTP API server.
type ServerConfig struct {
	Port            int `yaml:"port" mapstructure:"port"`
	ReadTimeoutSecs int `yaml:"read_timeout_secs" mapstructure:"read_timeout_secs"`
}

// CORSConfig configures cross-origin access to the API.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
}

// RetryConfig configures store retries.
type RetryConfig struct {
	MaxAttempts      int `yaml:"max_attempts" mapstructure:"max_attempts"`
	InitialBackoffMs int `yaml:"initial_backoff_ms" mapstructure:"initial_backoff_ms"`
	MaxBackoffMs     int `yaml:"max_backoff_ms" mapstructure:"max_backoff_ms"`
}

// CircuitConfig configures the per-store circuit breakers.
type CircuitConfig struct {
	FailureThreshold int `yaml:"failure_threshold" mapstructure:"failure_threshold"`
	ResetTimeoutSecs int `yaml:"reset_timeout_secs" mapstructure:"reset_timeout_secs"`
}

// CacheConfig configures project metadata caching. Zero disables it.
type CacheConfig struct {
	ProjectTTLSecs int `yaml:"project_ttl_secs" mapstructure:"project_ttl_secs"`
}

// MetricsConfig configures Prometheus metrics.
type MetricsConfig struct {
	Enabled   bool   `yaml:"enabled" mapstructure:"enabled"`
	Namespace string `yaml:"namespace" mapstructure:"namespace"`
}

// MonitoringConfig configures the background occupancy and feed checks run
// by the server.
type MonitoringConfig struct {
	Enabled           bool     `yaml:"enabled" mapstructure:"enabled"`
	Projects          []string `yaml:"projects" mapstructure:"projects"`
	CheckIntervalSecs int      `yaml:"check_interval_secs" mapstructure:"check_interval_secs"`
	LookbackMinutes   int      `yaml:"lookback_minutes" mapstructure:"lookback_minutes"`
	StaleAfterMinutes int      `yaml:"stale_after_minutes" mapstructure:"stale_after_minutes"`
	// UtilisationThreshold is a percentage of project capacity.
	UtilisationThreshold float64 `yaml:"utilisation_threshold" mapstructure:"utilisation_threshold"`
	WebhookURL           string  `yaml:"webhook_url" mapstructure:"webhook_url"`
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
	v.SetEnvPrefix("CROWD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "postgres")
	v.SetDefault("store.sqlite_path", "crowdcount.db")
	v.SetDefault("store.max_conns", 10)
	v.SetDefault("store.min_conns", 2)
	v.SetDefault("blob.driver", "fs")
	v.SetDefault("blob.dir", "blobs")
	v.SetDefault("blob.rate_limit", 20.0)
	v.SetDefault("blob.burst", 20)
	v.SetDefault("blob.timeout_secs", 15)
	v.SetDefault("pipeline.preset", "position")
	v.SetDefault("density.resolution", 2)
	v.SetDefault("density.ceiling", 5.0)
	v.SetDefault("density.concurrency", 4)
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout_secs", 15)
	v.SetDefault("cors.allowed_origins", []string{"*"})
	v.SetDefault("retry.max_attempts", 3)
	v.SetDefault("retry.initial_backoff_ms", 200)
	v.SetDefault("retry.max_backoff_ms", 5000)
	v.SetDefault("circuit.failure_threshold", 5)
	v.SetDefault("circuit.reset_timeout_secs", 30)
	v.SetDefault("cache.project_ttl_secs", 0)
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.namespace", "crowdcount")
	v.SetDefault("monitoring.enabled", false)
	v.SetDefault("monitoring.check_interval_secs", 300)
	v.SetDefault("monitoring.lookback_minutes", 60)
	v.SetDefault("monitoring.stale_after_minutes", 15)
	v.SetDefault("monitoring.utilisation_threshold", 90.0)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Keys without defaults are invisible to AutomaticEnv during Unmarshal.
	for _, key := range []string{
		"store.database_url",
		"store.projects_file",
		"blob.container_url",
		"blob.sas",
		"pipeline.group_by",
		"pipeline.fill_cap",
		"pipeline.span",
		"pipeline.convention",
		"pipeline.day_offset",
		"density.jitter_seed",
		"monitoring.projects",
		"monitoring.webhook_url",
	} {
		_ = v.BindEnv(key)
	}

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

// Validate checks the settings a command mode depends on. Modes: serve,
// query, import, migrate.
func (c *Config) Validate(mode string) error {
	var errs []string

	switch mode {
	case "serve":
		if c.Server.Port <= 0 {
			errs = append(errs, "server.port must be > 0")
		}
		errs = append(errs, c.validateStore(true)...)
		errs = append(errs, c.validateBlob()...)
		errs = append(errs, c.validateDensity()...)
		errs = append(errs, c.validateMonitoring()...)
	case "query":
		errs = append(errs, c.validateStore(true)...)
		errs = append(errs, c.validateBlob()...)
		errs = append(errs, c.validateDensity()...)
	case "import":
		errs = append(errs, c.validateStore(false)...)
	case "migrate":
		errs = append(errs, c.validateStore(false)...)
		if c.Store.Driver == "memory" {
			errs = append(errs, "store.driver memory has nothing to migrate")
		}
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if c.Retry.MaxAttempts < 1 || c.Retry.MaxAttempts > 10 {
		errs = append(errs, "retry.max_attempts must be between 1 and 10")
	}
	if c.Circuit.FailureThreshold < 1 {
		errs = append(errs, "circuit.failure_threshold must be >= 1")
	}
	if c.Cache.ProjectTTLSecs < 0 {
		errs = append(errs, "cache.project_ttl_secs must be >= 0")
	}

	if len(errs) > 0 {
		return eris.Errorf("config: %s", strings.Join(errs, "; "))
	}
	return nil
}

func (c *Config) validateStore(needProjects bool) []string {
	var errs []string
	switch c.Store.Driver {
	case "postgres":
		if c.Store.DatabaseURL == "" {
			errs = append(errs, "store.database_url is required")
		}
	case "sqlite":
		if c.Store.SQLitePath == "" {
			errs = append(errs, "store.sqlite_path is required")
		}
	case "memory":
		if needProjects && c.Store.ProjectsFile == "" {
			errs = append(errs, "store.projects_file is required with the memory driver")
		}
	default:
		errs = append(errs, "store.driver must be postgres, sqlite or memory")
	}
	return errs
}

func (c *Config) validateBlob() []string {
	var errs []string
	switch c.Blob.Driver {
	case "fs":
		if c.Blob.Dir == "" {
			errs = append(errs, "blob.dir is required")
		}
	case "http":
		if c.Blob.ContainerURL == "" {
			errs = append(errs, "blob.container_url is required")
		}
		if c.Blob.RateLimit <= 0 {
			errs = append(errs, "blob.rate_limit must be > 0")
		}
	default:
		errs = append(errs, "blob.driver must be fs or http")
	}
	return errs
}

func (c *Config) validateMonitoring() []string {
	if !c.Monitoring.Enabled {
		return nil
	}
	var errs []string
	if len(c.Monitoring.Projects) == 0 {
		errs = append(errs, "monitoring.projects is required when monitoring is enabled")
	}
	if c.Monitoring.LookbackMinutes < 1 {
		errs = append(errs, "monitoring.lookback_minutes must be >= 1")
	}
	if c.Monitoring.UtilisationThreshold <= 0 {
		errs = append(errs, "monitoring.utilisation_threshold must be > 0")
	}
	return errs
}

func (c *Config) validateDensity() []string {
	var errs []string
	if c.Density.Resolution < 1 {
		errs = append(errs, "density.resolution must be >= 1")
	}
	if c.Density.Ceiling <= 0 {
		errs = append(errs, "density.ceiling must be > 0")
	}
	if c.Density.Concurrency < 1 || c.Density.Concurrency > 64 {
		errs = append(errs, "density.concurrency must be between 1 and 64")
	}
	return errs
}

// InitLogger configures the global zap logger.
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

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
