package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"

	"github.com/Flashl3opard/structify/internal/bridge"
	"github.com/Flashl3opard/structify/internal/cache"
	"github.com/Flashl3opard/structify/internal/llm"
)

type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Upstream UpstreamConfig `mapstructure:"upstream"`
	Cache    CacheConfig    `mapstructure:"cache"`
	Log      LogConfig      `mapstructure:"log"`
}

type ServerConfig struct {
	Port           int           `mapstructure:"port"            validate:"required,gte=1,lte=65535"`
	RequestTimeout time.Duration `mapstructure:"request_timeout" validate:"gt=0"`
	MaxBodyBytes   int64         `mapstructure:"max_body_bytes"  validate:"gt=0"`
}

// UpstreamConfig describes the completion provider. APIKey is optional here;
// a missing key is reported per request.
type UpstreamConfig struct {
	BaseURL     string        `mapstructure:"base_url"     validate:"required,url"`
	APIKey      string        `mapstructure:"api_key"`
	Model       string        `mapstructure:"model"        validate:"required"`
	Instruction string        `mapstructure:"instruction"  validate:"required"`
	Timeout     time.Duration `mapstructure:"timeout"      validate:"gte=0"`
	MaxRetries  int           `mapstructure:"max_retries"  validate:"gte=0,lte=5"`
	BaseBackoff time.Duration `mapstructure:"base_backoff" validate:"gte=0"`
}

type CacheConfig struct {
	Backend         string        `mapstructure:"backend"          validate:"oneof=none memory redis"`
	TTL             time.Duration `mapstructure:"ttl"              validate:"gte=0"`
	CleanupInterval time.Duration `mapstructure:"cleanup_interval" validate:"gte=0"`
	Prefix          string        `mapstructure:"prefix"`
	Version         string        `mapstructure:"version"          validate:"required"`
	RedisAddr       string        `mapstructure:"redis_addr"       validate:"required_if=Backend redis"`
}

type LogConfig struct {
	Env   string `mapstructure:"env"`
	Level string `mapstructure:"level" validate:"omitempty,oneof=debug info warn error dpanic panic fatal"`
}

// Bridge returns the bridge settings derived from the upstream section.
func (c *Config) Bridge() bridge.Config {
	return bridge.Config{
		BaseURL:     c.Upstream.BaseURL,
		APIKey:      c.Upstream.APIKey,
		Model:       c.Upstream.Model,
		Instruction: c.Upstream.Instruction,
		Timeout:     c.Upstream.Timeout,
	}
}

// Retry returns the caller-side retry policy.
func (c *Config) Retry() bridge.RetryPolicy {
	return bridge.RetryPolicy{
		MaxRetries:  c.Upstream.MaxRetries,
		BaseBackoff: c.Upstream.BaseBackoff,
	}
}

// ResultCache returns the cache factory settings.
func (c *Config) ResultCache() cache.Config {
	return cache.Config{
		Backend:         c.Cache.Backend,
		TTL:             c.Cache.TTL,
		Prefix:          c.Cache.Prefix,
		CleanupInterval: c.Cache.CleanupInterval,
	}
}

// envBindings maps config keys to the unprefixed variables operators
// already use. STRUCTIFY_<SECTION>_<KEY> works for every key as well.
var envBindings = map[string][]string{
	"upstream.api_key":  {"STRUCTIFY_UPSTREAM_API_KEY", "GROQ_API_KEY"},
	"upstream.base_url": {"STRUCTIFY_UPSTREAM_BASE_URL", "GROQ_BASE_URL"},
	"server.port":       {"STRUCTIFY_SERVER_PORT", "PORT"},
	"cache.redis_addr":  {"STRUCTIFY_CACHE_REDIS_ADDR", "REDIS_ADDR"},
	"log.level":         {"STRUCTIFY_LOG_LEVEL", "LOG_LEVEL"},
	"log.env":           {"STRUCTIFY_LOG_ENV", "ENV"},
}

func setDefaults(vip *viper.Viper) {
	vip.SetDefault("server.port", 8080)
	vip.SetDefault("server.request_timeout", "60s")
	vip.SetDefault("server.max_body_bytes", 512*1024)

	vip.SetDefault("upstream.base_url", llm.DefaultBaseURL)
	vip.SetDefault("upstream.api_key", "")
	vip.SetDefault("upstream.model", bridge.DefaultModel)
	vip.SetDefault("upstream.instruction", bridge.DefaultInstruction)
	vip.SetDefault("upstream.timeout", "45s")
	vip.SetDefault("upstream.max_retries", 0)
	vip.SetDefault("upstream.base_backoff", "250ms")

	vip.SetDefault("cache.backend", cache.BackendNone)
	vip.SetDefault("cache.ttl", "10m")
	vip.SetDefault("cache.cleanup_interval", "5m")
	vip.SetDefault("cache.prefix", "structify")
	vip.SetDefault("cache.version", "v1")
	vip.SetDefault("cache.redis_addr", "")

	vip.SetDefault("log.env", "")
	vip.SetDefault("log.level", "info")
}

// Load reads an optional YAML file, then the environment, then validates.
// An empty path searches ./configs/structify.yaml and ./structify.yaml.
func Load(path string) (*Config, error) {
	vip := viper.New()
	if path != "" {
		vip.SetConfigFile(path)
	} else {
		vip.SetConfigName("structify")
		vip.AddConfigPath("./configs")
		vip.AddConfigPath(".")
	}

	vip.SetConfigType("yaml")
	vip.SetEnvPrefix("STRUCTIFY")
	vip.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	vip.AutomaticEnv()

	for key, envs := range envBindings {
		if err := vip.BindEnv(append([]string{key}, envs...)...); err != nil {
			return nil, fmt.Errorf("bind env for %s: %w", key, err)
		}
	}

	setDefaults(vip)

	if err := vip.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := vip.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := Validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks struct tags.
func Validate(cfg *Config) error {
	if err := validator.New().Struct(cfg); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}
	return nil
}
