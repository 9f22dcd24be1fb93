package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	apperrors "github.com/anime-shed/image-eval-go/internal/errors"
	"github.com/anime-shed/image-eval-go/pkg/scoring"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Config is the complete runtime configuration. Values are layered:
// defaults, then an optional YAML or TOML file, then environment variables,
// then command-line flags.
type Config struct {
	Server  ServerConfig  `yaml:"server" toml:"server"`
	Compare CompareConfig `yaml:"compare" toml:"compare"`
	Metrics MetricsConfig `yaml:"metrics" toml:"metrics"`
	Azure   AzureConfig   `yaml:"azure" toml:"azure"`
	Cache   CacheConfig   `yaml:"cache" toml:"cache"`
	Store   StoreConfig   `yaml:"store" toml:"store"`
	Log     LogConfig     `yaml:"log" toml:"log"`

	// Weights overrides the canonical score weights when set
	Weights *scoring.Weights `yaml:"weights" toml:"weights"`
}

type ServerConfig struct {
	Host               string        `yaml:"host" toml:"host"`
	Port               string        `yaml:"port" toml:"port" validate:"required"`
	RequestTimeout     time.Duration `yaml:"request_timeout" toml:"request_timeout" validate:"gt=0"`
	ImageFetchTimeout  time.Duration `yaml:"image_fetch_timeout" toml:"image_fetch_timeout" validate:"gt=0"`
	MaxRequestBodySize int64         `yaml:"max_request_body_size" toml:"max_request_body_size" validate:"gt=0"`
	// AllowLocalSources lets batch requests name server-side directories
	AllowLocalSources bool `yaml:"allow_local_sources" toml:"allow_local_sources"`
	// RateLimit caps evaluation requests per second per client; 0 disables it
	RateLimit float64 `yaml:"rate_limit" toml:"rate_limit" validate:"gte=0"`
	RateBurst int     `yaml:"rate_burst" toml:"rate_burst" validate:"gte=1"`
}

type CompareConfig struct {
	BaseDir          string `yaml:"base_dir" toml:"base_dir"`
	ImprovedDir      string `yaml:"improved_dir" toml:"improved_dir"`
	SummaryThreshold int    `yaml:"summary_threshold" toml:"summary_threshold" validate:"gte=0"`
	Workers          int    `yaml:"workers" toml:"workers" validate:"gte=1,lte=256"`
	BaseMarker       string `yaml:"base_marker" toml:"base_marker" validate:"required"`
	ImprovedMarker   string `yaml:"improved_marker" toml:"improved_marker" validate:"required"`
	CollisionPolicy  string `yaml:"collision_policy" toml:"collision_policy" validate:"oneof=last first"`
}

type MetricsConfig struct {
	FFmpegPath     string        `yaml:"ffmpeg_path" toml:"ffmpeg_path"`
	SkipVMAF       bool          `yaml:"skip_vmaf" toml:"skip_vmaf"`
	VMAFTimeout    time.Duration `yaml:"vmaf_timeout" toml:"vmaf_timeout" validate:"gte=0"`
	BrisqueCommand string        `yaml:"brisque_command" toml:"brisque_command"`
	BrisqueTimeout time.Duration `yaml:"brisque_timeout" toml:"brisque_timeout" validate:"gte=0"`
	EdgeLow        float64       `yaml:"edge_low" toml:"edge_low" validate:"gte=0"`
	EdgeHigh       float64       `yaml:"edge_high" toml:"edge_high" validate:"gtefield=EdgeLow"`
	// Sequential computes a pair's metrics one after another instead of
	// concurrently; useful when workers already saturate the CPU
	Sequential bool `yaml:"sequential" toml:"sequential"`
}

type AzureConfig struct {
	ConnectionString string `yaml:"connection_string" toml:"connection_string"`
	AccountName      string `yaml:"account_name" toml:"account_name"`
	AccountKey       string `yaml:"account_key" toml:"account_key"`
}

type CacheConfig struct {
	Backend       string        `yaml:"backend" toml:"backend" validate:"oneof=none memory redis"`
	MemoryEntries int           `yaml:"memory_entries" toml:"memory_entries" validate:"gte=0"`
	RedisAddr     string        `yaml:"redis_addr" toml:"redis_addr" validate:"required_if=Backend redis"`
	RedisPassword string        `yaml:"redis_password" toml:"redis_password"`
	RedisDB       int           `yaml:"redis_db" toml:"redis_db" validate:"gte=0"`
	TTL           time.Duration `yaml:"ttl" toml:"ttl" validate:"gte=0"`
}

type StoreConfig struct {
	// Path of the SQLite run history; empty disables it
	Path string `yaml:"path" toml:"path"`
}

type LogConfig struct {
	Level  string `yaml:"level" toml:"level" validate:"oneof=debug info warn error"`
	Format string `yaml:"format" toml:"format" validate:"oneof=text json"`
}

// Default returns the built-in configuration
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:               "0.0.0.0",
			Port:               "8080",
			RequestTimeout:     5 * time.Minute,
			ImageFetchTimeout:  15 * time.Second,
			MaxRequestBodySize: 10 * 1024 * 1024, // 10MB
			RateLimit:          2,
			RateBurst:          4,
		},
		Compare: CompareConfig{
			SummaryThreshold: 10,
			Workers:          1,
			BaseMarker:       "_base",
			ImprovedMarker:   "_improved",
			CollisionPolicy:  "last",
		},
		Metrics: MetricsConfig{
			FFmpegPath:     "ffmpeg",
			VMAFTimeout:    2 * time.Minute,
			BrisqueTimeout: time.Minute,
			EdgeLow:        100,
			EdgeHigh:       200,
		},
		Cache: CacheConfig{
			Backend:       "none",
			MemoryEntries: 1024,
			TTL:           24 * time.Hour,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// ServerAddress joins host and port
func (c *Config) ServerAddress() string {
	host := strings.TrimSpace(c.Server.Host)
	port := strings.TrimSpace(c.Server.Port)
	return net.JoinHostPort(host, port)
}

// ScoreWeights returns the configured weight table or the canonical one
func (c *Config) ScoreWeights() scoring.Weights {
	if c.Weights != nil {
		return *c.Weights
	}
	return scoring.DefaultWeights()
}

// Load builds the configuration from defaults, the optional file at path and
// the environment, and validates the result
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		if err := cfg.LoadFile(path); err != nil {
			return nil, err
		}
	}
	cfg.ApplyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFile overlays a YAML (.yaml, .yml) or TOML (.toml) file. Unknown keys
// are rejected.
func (c *Config) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return apperrors.NewValidationError(fmt.Sprintf("cannot read config file %s", path), err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		decoder := yaml.NewDecoder(bytes.NewReader(data))
		decoder.KnownFields(true)
		if err := decoder.Decode(c); err != nil && !errors.Is(err, io.EOF) {
			return apperrors.NewValidationError(fmt.Sprintf("invalid YAML config %s", path), err)
		}
	case ".toml":
		md, err := toml.Decode(string(data), c)
		if err != nil {
			return apperrors.NewValidationError(fmt.Sprintf("invalid TOML config %s", path), err)
		}
		if undecoded := md.Undecoded(); len(undecoded) > 0 {
			return apperrors.NewValidationError(
				fmt.Sprintf("unknown keys in TOML config %s: %v", path, undecoded), nil)
		}
	default:
		return apperrors.NewValidationError(fmt.Sprintf("unsupported config format %q", filepath.Ext(path)), nil)
	}
	return nil
}

// ApplyEnv overrides values with any environment variables that are set
func (c *Config) ApplyEnv() {
	c.Server.Host = getEnvOrDefault("HOST", c.Server.Host)
	c.Server.Port = getEnvOrDefault("PORT", c.Server.Port)
	c.Server.RequestTimeout = parseDurationOrDefault("REQUEST_TIMEOUT", c.Server.RequestTimeout)
	c.Server.ImageFetchTimeout = parseDurationOrDefault("IMAGE_FETCH_TIMEOUT", c.Server.ImageFetchTimeout)
	c.Server.MaxRequestBodySize = parseIntOrDefault("MAX_REQUEST_BODY_SIZE", c.Server.MaxRequestBodySize)
	c.Server.AllowLocalSources = parseBoolOrDefault("ALLOW_LOCAL_SOURCES", c.Server.AllowLocalSources)
	c.Server.RateLimit = parseFloatOrDefault("RATE_LIMIT", c.Server.RateLimit)
	c.Server.RateBurst = int(parseIntOrDefault("RATE_BURST", int64(c.Server.RateBurst)))

	c.Compare.BaseDir = getEnvOrDefault("BASE_DIR", c.Compare.BaseDir)
	c.Compare.ImprovedDir = getEnvOrDefault("IMPROVED_DIR", c.Compare.ImprovedDir)
	c.Compare.SummaryThreshold = int(parseIntOrDefault("SUMMARY_THRESHOLD", int64(c.Compare.SummaryThreshold)))
	c.Compare.Workers = int(parseIntOrDefault("WORKERS", int64(c.Compare.Workers)))

	c.Metrics.FFmpegPath = getEnvOrDefault("FFMPEG_PATH", c.Metrics.FFmpegPath)
	c.Metrics.SkipVMAF = parseBoolOrDefault("SKIP_VMAF", c.Metrics.SkipVMAF)
	c.Metrics.VMAFTimeout = parseDurationOrDefault("VMAF_TIMEOUT", c.Metrics.VMAFTimeout)
	c.Metrics.BrisqueCommand = getEnvOrDefault("BRISQUE_COMMAND", c.Metrics.BrisqueCommand)
	c.Metrics.BrisqueTimeout = parseDurationOrDefault("BRISQUE_TIMEOUT", c.Metrics.BrisqueTimeout)
	c.Metrics.Sequential = parseBoolOrDefault("METRICS_SEQUENTIAL", c.Metrics.Sequential)

	c.Azure.ConnectionString = getEnvOrDefault("AZURE_STORAGE_CONNECTION_STRING", c.Azure.ConnectionString)
	c.Azure.AccountName = getEnvOrDefault("AZURE_STORAGE_ACCOUNT", c.Azure.AccountName)
	c.Azure.AccountKey = getEnvOrDefault("AZURE_STORAGE_KEY", c.Azure.AccountKey)

	c.Cache.Backend = getEnvOrDefault("CACHE_BACKEND", c.Cache.Backend)
	c.Cache.RedisAddr = getEnvOrDefault("REDIS_ADDR", c.Cache.RedisAddr)
	c.Cache.RedisPassword = getEnvOrDefault("REDIS_PASSWORD", c.Cache.RedisPassword)
	c.Cache.RedisDB = int(parseIntOrDefault("REDIS_DB", int64(c.Cache.RedisDB)))
	c.Cache.TTL = parseDurationOrDefault("CACHE_TTL", c.Cache.TTL)

	c.Store.Path = getEnvOrDefault("RUN_STORE_PATH", c.Store.Path)

	c.Log.Level = getEnvOrDefault("LOG_LEVEL", c.Log.Level)
	c.Log.Format = getEnvOrDefault("LOG_FORMAT", c.Log.Format)
}

// Validate checks field constraints and the weight table
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return apperrors.NewValidationError("invalid configuration", err)
	}
	p, err := strconv.Atoi(strings.TrimSpace(c.Server.Port))
	if err != nil || p < 1 || p > 65535 {
		return apperrors.NewValidationError(fmt.Sprintf("invalid port: %q", c.Server.Port), err)
	}
	if c.Weights != nil {
		if err := c.Weights.Validate(); err != nil {
			return apperrors.NewValidationError("invalid weights", err)
		}
	}
	return nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func parseDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(strings.TrimSpace(value)); err == nil && duration >= 0 {
			return duration
		}
	}
	return defaultValue
}

func parseIntOrDefault(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func parseFloatOrDefault(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(strings.TrimSpace(value), 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func parseBoolOrDefault(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(strings.TrimSpace(value)); err == nil {
			return b
		}
	}
	return defaultValue
}
