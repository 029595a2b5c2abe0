// Package config loads the server configuration from an optional config
// file, an optional .env file and APP_ prefixed environment variables.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	auth "github.com/goliatone/go-auth-tokens"
)

// EnvPrefix is prepended to every environment variable, e.g.
// APP_AUTH_SIGNING_KEY overrides auth.signing_key
const EnvPrefix = "APP"

type Config struct {
	Server   Server   `mapstructure:"server" json:"server"`
	Database Database `mapstructure:"database" json:"database"`
	Auth     Auth     `mapstructure:"auth" json:"auth"`
	Cache    Cache    `mapstructure:"cache" json:"cache"`
	Log      Log      `mapstructure:"log" json:"log"`
}

type Server struct {
	Addr            string        `mapstructure:"addr" json:"addr"`
	APIPrefix       string        `mapstructure:"api_prefix" json:"api_prefix"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout" json:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout" json:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" json:"shutdown_timeout"`
	MetricsPath     string        `mapstructure:"metrics_path" json:"metrics_path"`
}

type Database struct {
	Driver string `mapstructure:"driver" json:"driver"`
	DSN    string `mapstructure:"dsn" json:"dsn"`
	Debug  bool   `mapstructure:"debug" json:"debug"`
}

type Cache struct {
	Addr     string        `mapstructure:"addr" json:"addr"`
	Password string        `mapstructure:"password" json:"password"`
	DB       int           `mapstructure:"db" json:"db"`
	TTL      time.Duration `mapstructure:"ttl" json:"ttl"`
}

// Enabled reports whether a redis address is configured
func (c Cache) Enabled() bool {
	return strings.TrimSpace(c.Addr) != ""
}

type Log struct {
	Level  string `mapstructure:"level" json:"level"`
	Format string `mapstructure:"format" json:"format"`
}

// Auth holds token and password options, it implements auth.Config
type Auth struct {
	TokenFormat    string        `mapstructure:"token_format" json:"token_format"`
	SigningKey     string        `mapstructure:"signing_key" json:"signing_key"`
	Issuer         string        `mapstructure:"issuer" json:"issuer"`
	Audience       []string      `mapstructure:"audience" json:"audience"`
	AuthScheme     string        `mapstructure:"auth_scheme" json:"auth_scheme"`
	ContextKey     string        `mapstructure:"context_key" json:"context_key"`
	PasswordMin    int           `mapstructure:"password_min" json:"password_min"`
	BcryptCost     int           `mapstructure:"bcrypt_cost" json:"bcrypt_cost"`
	UseHashid      bool          `mapstructure:"use_hashid" json:"use_hashid"`
	TrackUsage     bool          `mapstructure:"track_usage" json:"track_usage"`
	PruneSchedule  string        `mapstructure:"prune_schedule" json:"prune_schedule"`
	PruneRetention time.Duration `mapstructure:"prune_retention" json:"prune_retention"`
}

var _ auth.Config = Auth{}

func (a Auth) GetTokenFormat() string    { return a.TokenFormat }
func (a Auth) GetSigningKey() string     { return a.SigningKey }
func (a Auth) GetIssuer() string         { return a.Issuer }
func (a Auth) GetAudience() []string     { return a.Audience }
func (a Auth) GetAuthScheme() string     { return a.AuthScheme }
func (a Auth) GetContextKey() string     { return a.ContextKey }
func (a Auth) GetPasswordMinLength() int { return a.PasswordMin }
func (a Auth) GetBcryptCost() int        { return a.BcryptCost }
func (a Auth) GetUseHashid() bool        { return a.UseHashid }

var defaults = map[string]any{
	"server.addr":             ":8080",
	"server.api_prefix":       "/api",
	"server.read_timeout":     "10s",
	"server.write_timeout":    "10s",
	"server.shutdown_timeout": "15s",
	"server.metrics_path":     "/metrics",

	"database.driver": "sqlite",
	"database.dsn":    "file:auth.db?cache=shared&_foreign_keys=on",
	"database.debug":  false,

	"auth.token_format":    auth.TokenFormatOpaque,
	"auth.signing_key":     "",
	"auth.issuer":          "go-auth-tokens",
	"auth.audience":        []string{},
	"auth.auth_scheme":     auth.DefaultAuthScheme,
	"auth.context_key":     auth.DefaultContextKey,
	"auth.password_min":    auth.DefaultPasswordMinLength,
	"auth.bcrypt_cost":     0,
	"auth.use_hashid":      false,
	"auth.track_usage":     false,
	"auth.prune_schedule":  "@hourly",
	"auth.prune_retention": "168h",

	"cache.addr":     "",
	"cache.password": "",
	"cache.db":       0,
	"cache.ttl":      "5m",

	"log.level":  "info",
	"log.format": "json",
}

type loader struct {
	configFile string
	envFile    string
}

type Option func(*loader)

// WithConfigFile reads a yaml, json or toml file before the environment
func WithConfigFile(path string) Option {
	return func(l *loader) {
		l.configFile = path
	}
}

// WithEnvFile loads a .env file into the process environment
func WithEnvFile(path string) Option {
	return func(l *loader) {
		l.envFile = path
	}
}

// Load resolves the configuration. Precedence, lowest first: defaults,
// config file, .env file, process environment.
func Load(opts ...Option) (*Config, error) {
	l := &loader{}
	for _, opt := range opts {
		opt(l)
	}

	if l.envFile != "" {
		if _, err := os.Stat(l.envFile); err == nil {
			if err := godotenv.Load(l.envFile); err != nil {
				return nil, fmt.Errorf("load env file %s: %w", l.envFile, err)
			}
		}
	}

	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	if l.configFile != "" {
		v.SetConfigFile(l.configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config file %s: %w", l.configFile, err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks option combinations Load cannot express as defaults
func (c *Config) Validate() error {
	switch strings.ToLower(c.Database.Driver) {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("unsupported database driver %q", c.Database.Driver)
	}

	if _, err := auth.NewTokenCodec(c.Auth); err != nil {
		return err
	}

	return nil
}

// Redacted returns a copy safe to print
func (c Config) Redacted() Config {
	if c.Auth.SigningKey != "" {
		c.Auth.SigningKey = "******"
	}
	if c.Cache.Password != "" {
		c.Cache.Password = "******"
	}
	if c.Database.DSN != "" && c.Database.Driver == "postgres" {
		c.Database.DSN = "******"
	}
	return c
}
