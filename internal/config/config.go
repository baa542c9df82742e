// Package config loads and validates gateway configuration via Viper.
package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Application ApplicationConfig `mapstructure:"application"`
	Storage     StorageConfig     `mapstructure:"storage"`
	Processor   ProcessorConfig   `mapstructure:"processor"`
	Cache       CacheConfig       `mapstructure:"cache"`
	Logging     LoggingConfig     `mapstructure:"logging"`
	// CustomTags are constant key=value pairs attached to every output's
	// metadata.
	CustomTags map[string]string `mapstructure:"custom_tags"`
}

// ApplicationConfig controls the HTTP bind address and signing.
type ApplicationConfig struct {
	Host        string `mapstructure:"host"`
	Port        int    `mapstructure:"port"`
	HMACSecret  string `mapstructure:"hmac_secret"`
	AllowUnsafe bool   `mapstructure:"allow_unsafe"`
	// MaxURLLength caps the request URL accepted at the front.
	MaxURLLength int `mapstructure:"max_url_length"`
	// RateLimit throttles processing routes per client address.
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
}

// RateLimitConfig caps the per-client request rate on processing routes.
// RPS 0 disables limiting.
type RateLimitConfig struct {
	RPS   float64 `mapstructure:"rps"`
	Burst int     `mapstructure:"burst"`
}

// StorageConfig selects and parameterizes the source/result backends.
type StorageConfig struct {
	// Provider is one of "local", "s3", "gcs".
	Provider   string `mapstructure:"provider"`
	BaseDir    string `mapstructure:"base_dir"`
	PathPrefix string `mapstructure:"path_prefix"`
	// SafeChars tunes source-key normalization: "" keeps the default safe
	// set, "--" disables escaping, anything else extends the safe set.
	SafeChars string `mapstructure:"safe_chars"`
	// MaxSourceSize bounds loaded source bytes.
	MaxSourceSize int64         `mapstructure:"max_source_size"`
	S3            S3Config      `mapstructure:"s3"`
	GCS           GCSConfig     `mapstructure:"gcs"`
	Results       ResultsConfig `mapstructure:"results"`
}

// S3Config holds credentials for an S3-compatible object store.
type S3Config struct {
	Endpoint  string `mapstructure:"endpoint"`
	Region    string `mapstructure:"region"`
	Bucket    string `mapstructure:"bucket"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	UseSSL    bool   `mapstructure:"use_ssl"`
}

// GCSConfig holds parameters for Google Cloud Storage.
type GCSConfig struct {
	Bucket string `mapstructure:"bucket"`
}

// ResultsConfig toggles write-through persistence of processed artifacts.
type ResultsConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// ProcessorConfig governs the external tool and its resource budgets.
type ProcessorConfig struct {
	DisabledFilters []string `mapstructure:"disabled_filters"`
	MaxFilterOps    int      `mapstructure:"max_filter_ops"`
	// Concurrency sizes the subprocess semaphore; 0 means the CPU count.
	Concurrency    int    `mapstructure:"concurrency"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
	MaxCacheFiles  int    `mapstructure:"max_cache_files"`
	MaxCacheMem    int    `mapstructure:"max_cache_mem"`
	MaxCacheSize   int    `mapstructure:"max_cache_size"`
	MaxOutputSize  int64  `mapstructure:"max_output_size"`
	WorkDir        string `mapstructure:"work_dir"`
	FFmpegPath     string `mapstructure:"ffmpeg_path"`
	FFprobePath    string `mapstructure:"ffprobe_path"`
}

// CacheConfig selects the artifact cache backend.
type CacheConfig struct {
	// Provider is one of "filesystem", "redis", "none".
	Provider   string                `mapstructure:"provider"`
	Filesystem FilesystemCacheConfig `mapstructure:"filesystem"`
	Redis      RedisConfig           `mapstructure:"redis"`
}

// FilesystemCacheConfig parameterizes the on-disk cache.
type FilesystemCacheConfig struct {
	BaseDir string `mapstructure:"base_dir"`
}

// RedisConfig parameterizes the Redis cache backend.
type RedisConfig struct {
	Addr       string `mapstructure:"addr"`
	Password   string `mapstructure:"password"`
	DB         int    `mapstructure:"db"`
	KeyPrefix  string `mapstructure:"key_prefix"`
	TTLSeconds int    `mapstructure:"ttl_seconds"`
}

// LoggingConfig toggles zap development features and file rotation.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	File        string `mapstructure:"file"`
	MaxSizeMB   int    `mapstructure:"max_size_mb"`
	MaxBackups  int    `mapstructure:"max_backups"`
	MaxAgeDays  int    `mapstructure:"max_age_days"`
}

// Load builds a Config from disk/environment. Environment variables
// override file values using the APP_<SECTION>__<KEY> convention.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("APP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "__"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("application.host", "127.0.0.1")
	v.SetDefault("application.port", 8080)
	// An explicit empty default so the environment override is visible to
	// Unmarshal even without a config file.
	v.SetDefault("application.hmac_secret", "")
	v.SetDefault("application.allow_unsafe", false)
	v.SetDefault("application.max_url_length", 8192)
	v.SetDefault("application.rate_limit.rps", 0)
	v.SetDefault("application.rate_limit.burst", 20)
	v.SetDefault("storage.provider", "local")
	v.SetDefault("storage.base_dir", "uploads")
	v.SetDefault("storage.path_prefix", "")
	v.SetDefault("storage.safe_chars", "")
	v.SetDefault("storage.max_source_size", 512*1024*1024)
	v.SetDefault("storage.s3.endpoint", "s3.amazonaws.com")
	v.SetDefault("storage.s3.use_ssl", true)
	v.SetDefault("storage.results.enabled", false)
	v.SetDefault("processor.max_filter_ops", 16)
	v.SetDefault("processor.concurrency", 0)
	v.SetDefault("processor.timeout_seconds", 120)
	v.SetDefault("processor.max_cache_files", 4096)
	v.SetDefault("processor.max_cache_mem", 256)
	v.SetDefault("processor.max_cache_size", 1024)
	v.SetDefault("processor.max_output_size", 512*1024*1024)
	v.SetDefault("processor.work_dir", "")
	v.SetDefault("processor.ffmpeg_path", "ffmpeg")
	v.SetDefault("processor.ffprobe_path", "ffprobe")
	v.SetDefault("cache.provider", "filesystem")
	v.SetDefault("cache.filesystem.base_dir", "cache")
	v.SetDefault("cache.redis.addr", "127.0.0.1:6379")
	v.SetDefault("cache.redis.key_prefix", "audio-gateway:artifact:")
	v.SetDefault("logging.development", true)
	v.SetDefault("logging.max_size_mb", 100)
	v.SetDefault("logging.max_backups", 3)
	v.SetDefault("logging.max_age_days", 28)
}

// Validate enforces required values and reasonable limits. The service
// refuses to start with an empty secret unless the unsafe bypass is
// explicitly enabled.
func (c Config) Validate() error {
	if c.Application.Port <= 0 {
		return fmt.Errorf("application.port must be > 0")
	}
	if c.Application.RateLimit.RPS < 0 {
		return fmt.Errorf("application.rate_limit.rps must be >= 0")
	}
	if c.Application.HMACSecret == "" && !c.Application.AllowUnsafe {
		return fmt.Errorf("application.hmac_secret must be set unless application.allow_unsafe is enabled")
	}
	switch c.Storage.Provider {
	case "local", "s3", "gcs":
	default:
		return fmt.Errorf("storage.provider must be one of local, s3, gcs")
	}
	if c.Storage.Provider == "s3" && c.Storage.S3.Bucket == "" {
		return fmt.Errorf("storage.s3.bucket must be set for the s3 provider")
	}
	if c.Storage.Provider == "gcs" && c.Storage.GCS.Bucket == "" {
		return fmt.Errorf("storage.gcs.bucket must be set for the gcs provider")
	}
	switch c.Cache.Provider {
	case "filesystem", "redis", "none":
	default:
		return fmt.Errorf("cache.provider must be one of filesystem, redis, none")
	}
	if c.Processor.Concurrency < 0 {
		return fmt.Errorf("processor.concurrency must be >= 0")
	}
	if c.Processor.TimeoutSeconds <= 0 {
		return fmt.Errorf("processor.timeout_seconds must be > 0")
	}
	if c.Processor.MaxFilterOps < 0 {
		return fmt.Errorf("processor.max_filter_ops must be >= 0")
	}
	return nil
}
