package config

import (
	"fmt"
	"os"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/spf13/viper"
)

// ConfigFileEnv names the optional YAML config file
const ConfigFileEnv = "SECTORHUB_CONFIG"

type Config struct {
	App        AppConfig
	HTTP       HTTPConfig
	Postgres   PostgresConfig
	Redis      RedisConfig
	Cache      CacheConfig
	Transition TransitionConfig
	Auth       AuthConfig
	RateLimit  RateLimitConfig
}

type AppConfig struct {
	Env string
}

type HTTPConfig struct {
	Addr string
}

type PostgresConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	DB       string
	SSLMode  string
}

type RedisConfig struct {
	Enabled  bool
	Host     string
	Port     string
	Password string
	DB       int
}

type CacheConfig struct {
	DefaultTTL      time.Duration
	CleanupInterval time.Duration
}

type TransitionConfig struct {
	CronSpec   string
	Timezone   string
	LockTTL    time.Duration
	RunOnStart bool
}

type AuthConfig struct {
	JWTSecret string
}

type RateLimitConfig struct {
	RPS   float64
	Burst int
}

// env var names kept from the earlier deployment scripts
var envBindings = map[string]string{
	"app.env":           "APP_ENV",
	"http.addr":         "HTTP_ADDR",
	"postgres.host":     "PG_HOST",
	"postgres.port":     "PG_PORT",
	"postgres.user":     "PG_USER",
	"postgres.password": "PG_PASSWORD",
	"postgres.db":       "PG_DB",
	"postgres.sslmode":  "PG_SSLMODE",
	"redis.enabled":     "REDIS_ENABLED",
	"redis.host":        "REDIS_HOST",
	"redis.port":        "REDIS_PORT",
	"redis.password":    "REDIS_PASSWORD",
	"redis.db":          "REDIS_DB",
	"auth.jwt_secret":   "JWT_SECRET",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.env", "development")
	v.SetDefault("http.addr", ":8080")
	v.SetDefault("postgres.host", "localhost")
	v.SetDefault("postgres.port", "5432")
	v.SetDefault("postgres.sslmode", "disable")
	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", "6379")
	v.SetDefault("redis.db", 0)
	v.SetDefault("cache.default_ttl", 10*time.Minute)
	v.SetDefault("cache.cleanup_interval", 15*time.Minute)
	v.SetDefault("transition.cron_spec", "0 0 * * *")
	v.SetDefault("transition.timezone", "Asia/Jakarta")
	v.SetDefault("transition.lock_ttl", 10*time.Minute)
	v.SetDefault("transition.run_on_start", false)
	v.SetDefault("ratelimit.rps", 20.0)
	v.SetDefault("ratelimit.burst", 40)
}

// Load reads defaults, the optional file named by SECTORHUB_CONFIG and the
// environment, in increasing precedence.
func Load() (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("SECTORHUB")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, env := range envBindings {
		if err := v.BindEnv(key, "SECTORHUB_"+strings.ToUpper(strings.ReplaceAll(key, ".", "_")), env); err != nil {
			return nil, fmt.Errorf("failed to bind %s: %w", key, err)
		}
	}

	if path := os.Getenv(ConfigFileEnv); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
	}

	return fromViper(v)
}

func fromViper(v *viper.Viper) (*Config, error) {
	cfg := &Config{
		App:  AppConfig{Env: v.GetString("app.env")},
		HTTP: HTTPConfig{Addr: v.GetString("http.addr")},
		Postgres: PostgresConfig{
			Host:     v.GetString("postgres.host"),
			Port:     v.GetString("postgres.port"),
			User:     v.GetString("postgres.user"),
			Password: v.GetString("postgres.password"),
			DB:       v.GetString("postgres.db"),
			SSLMode:  v.GetString("postgres.sslmode"),
		},
		Redis: RedisConfig{
			Enabled:  v.GetBool("redis.enabled"),
			Host:     v.GetString("redis.host"),
			Port:     v.GetString("redis.port"),
			Password: v.GetString("redis.password"),
			DB:       v.GetInt("redis.db"),
		},
		Cache: CacheConfig{
			DefaultTTL:      v.GetDuration("cache.default_ttl"),
			CleanupInterval: v.GetDuration("cache.cleanup_interval"),
		},
		Transition: TransitionConfig{
			CronSpec:   v.GetString("transition.cron_spec"),
			Timezone:   v.GetString("transition.timezone"),
			LockTTL:    v.GetDuration("transition.lock_ttl"),
			RunOnStart: v.GetBool("transition.run_on_start"),
		},
		Auth:      AuthConfig{JWTSecret: v.GetString("auth.jwt_secret")},
		RateLimit: RateLimitConfig{RPS: v.GetFloat64("ratelimit.rps"), Burst: v.GetInt("ratelimit.burst")},
	}

	if _, err := cfg.Location(); err != nil {
		return nil, err
	}
	if cfg.Transition.CronSpec == "" {
		return nil, fmt.Errorf("transition.cron_spec must not be empty")
	}
	return cfg, nil
}

// Location resolves the transition timezone
func (c *Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Transition.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid transition.timezone %q: %w", c.Transition.Timezone, err)
	}
	return loc, nil
}

// PostgresDSN builds the connection string shared by gorm and sqlx
func (c *Config) PostgresDSN() string {
	p := c.Postgres
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s", p.User, p.Password, p.Host, p.Port, p.DB, p.SSLMode)
}

// RedisAddr is host:port for go-redis
func (c *Config) RedisAddr() string {
	return fmt.Sprintf("%s:%s", c.Redis.Host, c.Redis.Port)
}

func (c *Config) IsProduction() bool {
	return c.App.Env == "production"
}
