package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all runtime configuration for a pricepanel run. It is built
// once at startup and passed by pointer into each phase.
type Config struct {
	LogFormat string `mapstructure:"log-format"` // "text" or "json"
	LogLevel  string `mapstructure:"log-level"`

	LakeDir       string `mapstructure:"lake-dir"`
	HospitalsFile string `mapstructure:"hospitals-file"` // default <lake-dir>/hospitals.parquet
	WorkDir       string `mapstructure:"work-dir"`
	StateDir      string `mapstructure:"state-dir"`
	OutDir        string `mapstructure:"out-dir"`
	TargetsFile   string `mapstructure:"targets-file"` // empty: embedded default list
	CrosswalkFile string `mapstructure:"crosswalk-file"`
	Compress      bool   `mapstructure:"compress"` // gzip CSV outputs

	RemoteURL   string `mapstructure:"remote-url"`
	RemoteToken string `mapstructure:"remote-token"`
	RemoteDSN   string `mapstructure:"remote-dsn"`

	PageSize         int           `mapstructure:"page-size"`
	EntityDelay      time.Duration `mapstructure:"entity-delay"`
	EmptyEntityDelay time.Duration `mapstructure:"empty-entity-delay"`
	ErrorCooldown    time.Duration `mapstructure:"error-cooldown"`
	MaxRetries       int           `mapstructure:"max-retries"`
	RetryBaseDelay   time.Duration `mapstructure:"retry-base-delay"`
	RequestTimeout   time.Duration `mapstructure:"request-timeout"`
	BreakerFailures  int           `mapstructure:"breaker-failures"`
	BreakerTimeout   time.Duration `mapstructure:"breaker-timeout"`
	ScanWorkers      int           `mapstructure:"scan-workers"`

	PushgatewayURL string `mapstructure:"pushgateway-url"`
	S3Bucket       string `mapstructure:"s3-bucket"`
	S3Prefix       string `mapstructure:"s3-prefix"`
	S3Region       string `mapstructure:"s3-region"`
	PanelDSN       string `mapstructure:"panel-dsn"`
	NoProgress     bool   `mapstructure:"no-progress"`
}

// SetDefaults registers every key with its default so that environment
// variables are honored by Unmarshal even when no flag or file sets them.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("log-format", "text")
	v.SetDefault("log-level", "info")
	v.SetDefault("lake-dir", "")
	v.SetDefault("hospitals-file", "")
	v.SetDefault("work-dir", "work")
	v.SetDefault("state-dir", "state")
	v.SetDefault("out-dir", "out")
	v.SetDefault("targets-file", "")
	v.SetDefault("crosswalk-file", "")
	v.SetDefault("compress", false)
	v.SetDefault("remote-url", "")
	v.SetDefault("remote-token", "")
	v.SetDefault("remote-dsn", "")
	v.SetDefault("page-size", 1000)
	v.SetDefault("entity-delay", "1s")
	v.SetDefault("empty-entity-delay", "250ms")
	v.SetDefault("error-cooldown", "30s")
	v.SetDefault("max-retries", 3)
	v.SetDefault("retry-base-delay", "2s")
	v.SetDefault("request-timeout", "2m")
	v.SetDefault("breaker-failures", 5)
	v.SetDefault("breaker-timeout", "60s")
	v.SetDefault("scan-workers", 1)
	v.SetDefault("pushgateway-url", "")
	v.SetDefault("s3-bucket", "")
	v.SetDefault("s3-prefix", "")
	v.SetDefault("s3-region", "us-east-1")
	v.SetDefault("panel-dsn", "")
	v.SetDefault("no-progress", false)
}

// NewViper returns a viper instance with defaults and PRICEPANEL_* environment
// binding (dashes become underscores: PRICEPANEL_PAGE_SIZE).
func NewViper() *viper.Viper {
	v := viper.New()
	SetDefaults(v)
	v.SetEnvPrefix("PRICEPANEL")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	return v
}

// Load reads an optional YAML config file into v and unmarshals the merged
// settings (flags > env > file > defaults).
func Load(v *viper.Viper, file string) (*Config, error) {
	if file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}
	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := c.validateConstants(); err != nil {
		return nil, err
	}
	return &c, nil
}

func (c *Config) validateConstants() error {
	if c.PageSize <= 0 {
		return fmt.Errorf("page-size must be positive, got %d", c.PageSize)
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("max-retries must be >= 0, got %d", c.MaxRetries)
	}
	if c.ScanWorkers <= 0 {
		c.ScanWorkers = 1
	}
	if c.LogFormat != "text" && c.LogFormat != "json" {
		return fmt.Errorf("log-format must be text or json, got %q", c.LogFormat)
	}
	return nil
}

// HospitalsPath resolves the lake hospital metadata file.
func (c *Config) HospitalsPath() string {
	if c.HospitalsFile != "" {
		return c.HospitalsFile
	}
	return filepath.Join(c.LakeDir, "hospitals.parquet")
}

// ValidateLake checks the lake extraction prerequisites.
func (c *Config) ValidateLake() error {
	if c.LakeDir == "" {
		return fmt.Errorf("--lake-dir is required")
	}
	if _, err := os.Stat(c.LakeDir); err != nil {
		return fmt.Errorf("lake dir not accessible: %w", err)
	}
	return nil
}

// ValidateRemote checks that exactly one remote source is configured.
func (c *Config) ValidateRemote() error {
	if c.RemoteURL == "" && c.RemoteDSN == "" {
		return fmt.Errorf("--remote-url or --remote-dsn is required")
	}
	if c.RemoteURL != "" && c.RemoteDSN != "" {
		return fmt.Errorf("--remote-url and --remote-dsn are mutually exclusive")
	}
	if c.StateDir == "" {
		return fmt.Errorf("--state-dir is required")
	}
	return nil
}

// ValidateBuild checks the build prerequisites.
func (c *Config) ValidateBuild() error {
	if c.WorkDir == "" {
		return fmt.Errorf("--work-dir is required")
	}
	if c.OutDir == "" {
		return fmt.Errorf("--out-dir is required")
	}
	if c.CrosswalkFile != "" {
		if _, err := os.Stat(c.CrosswalkFile); err != nil {
			return fmt.Errorf("crosswalk file not accessible: %w", err)
		}
	}
	return nil
}
