// Package config loads nimbusdir configuration.
//
// Precedence, lowest to highest: built-in defaults, the optional YAML file,
// NIMBUSDIR_* environment variables, then runtime overrides.
package config

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"github.com/3leaps/nimbusdir/internal/observability"
	"github.com/3leaps/nimbusdir/pkg/folder"
	"github.com/3leaps/nimbusdir/pkg/provider/s3"
)

// EnvPrefix prefixes every environment variable. Nested keys join with "_",
// so s3.max_keys is NIMBUSDIR_S3_MAX_KEYS.
const EnvPrefix = "NIMBUSDIR"

// Config is the complete configuration.
type Config struct {
	S3      S3Config      `mapstructure:"s3"`
	Folders FoldersConfig `mapstructure:"folders"`
	Logging LoggingConfig `mapstructure:"logging"`
}

// S3Config configures the object store client.
type S3Config struct {
	Region          string        `mapstructure:"region"`
	Endpoint        string        `mapstructure:"endpoint"`
	Profile         string        `mapstructure:"profile"`
	AccessKeyID     string        `mapstructure:"access_key_id"`
	SecretAccessKey string        `mapstructure:"secret_access_key"`
	ForcePathStyle  bool          `mapstructure:"force_path_style"`
	MaxKeys         int           `mapstructure:"max_keys"`
	DiscoverRegion  bool          `mapstructure:"discover_region"`
	Timeout         time.Duration `mapstructure:"timeout"`
}

// FoldersConfig configures the folder engine.
type FoldersConfig struct {
	Delimiter string  `mapstructure:"delimiter"`
	PageSize  int     `mapstructure:"page_size"`
	PageLimit int     `mapstructure:"page_limit"`
	RateLimit float64 `mapstructure:"rate_limit"`
}

// LoggingConfig configures the process logger.
type LoggingConfig struct {
	Level   string `mapstructure:"level"`
	Profile string `mapstructure:"profile"`
}

var (
	configMu  sync.RWMutex
	appConfig *Config
)

func setDefaults(v *viper.Viper) {
	v.SetDefault("s3.region", "")
	v.SetDefault("s3.endpoint", "")
	v.SetDefault("s3.profile", "")
	v.SetDefault("s3.access_key_id", "")
	v.SetDefault("s3.secret_access_key", "")
	v.SetDefault("s3.force_path_style", false)
	v.SetDefault("s3.max_keys", s3.DefaultMaxKeys)
	v.SetDefault("s3.discover_region", false)
	v.SetDefault("s3.timeout", "0s")

	v.SetDefault("folders.delimiter", folder.DefaultConfig().Delimiter)
	v.SetDefault("folders.page_size", 0)
	v.SetDefault("folders.page_limit", 0)
	v.SetDefault("folders.rate_limit", 0.0)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.profile", observability.ProfileStructured)
}

// Load reads configuration. An empty path skips the file layer. Later
// overrides win over earlier ones.
//
// The loaded configuration becomes the one GetConfig returns.
func Load(path string, overrides ...map[string]any) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	for _, o := range overrides {
		setOverrides(v, "", o)
	}

	var cfg Config
	hook := viper.DecodeHook(mapstructure.StringToTimeDurationHookFunc())
	if err := v.Unmarshal(&cfg, hook); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	configMu.Lock()
	appConfig = &cfg
	configMu.Unlock()
	return &cfg, nil
}

// GetConfig returns the most recently loaded configuration, or nil.
func GetConfig() *Config {
	configMu.RLock()
	defer configMu.RUnlock()
	return appConfig
}

// Validate checks every section and joins the problems found.
func (c *Config) Validate() error {
	var errs []error
	client := c.ClientConfig()
	if err := client.Validate(); err != nil {
		errs = append(errs, err)
	}
	if c.Folders.Delimiter == "" {
		errs = append(errs, errors.New("folders.delimiter must not be empty"))
	}
	if c.Folders.PageSize < 0 {
		errs = append(errs, fmt.Errorf("folders.page_size must not be negative, got %d", c.Folders.PageSize))
	}
	if c.Folders.PageLimit < 0 {
		errs = append(errs, fmt.Errorf("folders.page_limit must not be negative, got %d", c.Folders.PageLimit))
	}
	if c.Folders.RateLimit < 0 {
		errs = append(errs, fmt.Errorf("folders.rate_limit must not be negative, got %g", c.Folders.RateLimit))
	}
	if err := c.LoggerConfig().Validate(); err != nil {
		errs = append(errs, fmt.Errorf("logging: %w", err))
	}
	return errors.Join(errs...)
}

// ClientConfig returns the object store client configuration.
func (c *Config) ClientConfig() s3.Config {
	return s3.Config{
		Region:          c.S3.Region,
		Endpoint:        c.S3.Endpoint,
		Profile:         c.S3.Profile,
		AccessKeyID:     c.S3.AccessKeyID,
		SecretAccessKey: c.S3.SecretAccessKey,
		ForcePathStyle:  c.S3.ForcePathStyle,
		MaxKeys:         c.S3.MaxKeys,
		DiscoverRegion:  c.S3.DiscoverRegion,
		Timeout:         c.S3.Timeout,
	}
}

// EngineConfig returns the folder engine configuration.
func (c *Config) EngineConfig() folder.Config {
	return folder.Config{
		Delimiter: c.Folders.Delimiter,
		PageSize:  c.Folders.PageSize,
		PageLimit: c.Folders.PageLimit,
		RateLimit: c.Folders.RateLimit,
	}
}

// LoggerConfig returns the logger configuration.
func (c *Config) LoggerConfig() observability.Config {
	return observability.Config{
		Level:   c.Logging.Level,
		Profile: c.Logging.Profile,
	}
}

// setOverrides applies nested override maps with viper's highest precedence.
func setOverrides(v *viper.Viper, prefix string, m map[string]any) {
	for k, val := range m {
		key := k
		if prefix != "" {
			key = prefix + "." + k
		}
		if nested, ok := val.(map[string]any); ok {
			setOverrides(v, key, nested)
			continue
		}
		v.Set(key, val)
	}
}
