package common

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

type Config struct {
	App        AppConfig        `koanf:"app"`
	Server     ServerConfig     `koanf:"server"`
	Database   DatabaseConfig   `koanf:"database"`
	Redis      RedisConfig      `koanf:"redis"`
	Token      TokenConfig      `koanf:"token"`
	Mail       MailConfig       `koanf:"mail"`
	Log        LogConfig        `koanf:"log"`
	Pagination PaginationConfig `koanf:"pagination"`
	Cache      CacheConfig      `koanf:"cache"`
	RateLimit  RateLimitConfig  `koanf:"rate_limit"`
	Password   PasswordConfig   `koanf:"password"`
}

type AppConfig struct {
	SecretKey   string `koanf:"secret_key"`
	AdminEmail  string `koanf:"admin_email"`
	Environment string `koanf:"environment"`
	Domain      string `koanf:"domain"`
}

type ServerConfig struct {
	Port string `koanf:"port"`
}

type DatabaseConfig struct {
	Driver string `koanf:"driver"`
	DSN    string `koanf:"dsn"`
}

type RedisConfig struct {
	Addr     string `koanf:"addr"`
	Password string `koanf:"password"`
	DB       int    `koanf:"db"`
}

type TokenConfig struct {
	ConfirmTTL     time.Duration `koanf:"confirm_ttl"`
	ResetTTL       time.Duration `koanf:"reset_ttl"`
	ChangeEmailTTL time.Duration `koanf:"change_email_ttl"`
}

type MailConfig struct {
	Host          string `koanf:"host"`
	Port          string `koanf:"port"`
	User          string `koanf:"user"`
	Password      string `koanf:"password"`
	Sender        string `koanf:"sender"`
	SubjectPrefix string `koanf:"subject_prefix"`
}

type LogConfig struct {
	Development bool `koanf:"development"`
}

type PaginationConfig struct {
	Posts     int `koanf:"posts"`
	Followers int `koanf:"followers"`
	Comments  int `koanf:"comments"`
}

type CacheConfig struct {
	Dir    string        `koanf:"dir"`
	MaxAge time.Duration `koanf:"max_age"`
}

type RateLimitConfig struct {
	PerMinute int `koanf:"per_minute"`
	Burst     int `koanf:"burst"`
}

type PasswordConfig struct {
	Scheme     string `koanf:"scheme"`
	BcryptCost int    `koanf:"bcrypt_cost"`
}

var defaults = map[string]any{
	"app.environment": "development",
	"app.domain":      "http://localhost:8080",

	"server.port": "8080",

	"database.driver": "sqlite",
	"database.dsn":    "socialblog.db",

	"token.confirm_ttl":      "1h",
	"token.reset_ttl":        "1h",
	"token.change_email_ttl": "1h",

	"mail.port":           "25",
	"mail.subject_prefix": "[Flasky]",
	"mail.sender":         "Flasky Admin <noreply@localhost>",

	"log.development": true,

	"pagination.posts":     20,
	"pagination.followers": 20,
	"pagination.comments":  20,

	"cache.dir":     "cache",
	"cache.max_age": "10m",

	"rate_limit.per_minute": 6,
	"rate_limit.burst":      3,

	"password.scheme":      "bcrypt",
	"password.bcrypt_cost": 12,
}

var envKeyMap = map[string]string{
	"SECRET_KEY":        "app.secret_key",
	"ADMIN_EMAIL":       "app.admin_email",
	"ENVIRONMENT":       "app.environment",
	"DOMAIN":            "app.domain",
	"PORT":              "server.port",
	"DB_DRIVER":         "database.driver",
	"DB_DSN":            "database.dsn",
	"REDIS_ADDR":        "redis.addr",
	"REDIS_PASSWORD":    "redis.password",
	"REDIS_DB":          "redis.db",
	"CONFIRM_TOKEN_TTL": "token.confirm_ttl",
	"RESET_TOKEN_TTL":   "token.reset_ttl",
	"EMAIL_TOKEN_TTL":   "token.change_email_ttl",
	"SMTP_HOST":         "mail.host",
	"SMTP_PORT":         "mail.port",
	"SMTP_USER":         "mail.user",
	"SMTP_PASSWORD":     "mail.password",
	"SMTP_FROM":         "mail.sender",
	"MAIL_PREFIX":       "mail.subject_prefix",
	"LOG_DEVELOPMENT":   "log.development",
	"CACHE_DIR":         "cache.dir",
	"CACHE_MAX_AGE":     "cache.max_age",
	"RATE_LIMIT":        "rate_limit.per_minute",
	"RATE_LIMIT_BURST":  "rate_limit.burst",
	"PASSWORD_SCHEME":   "password.scheme",
	"BCRYPT_COST":       "password.bcrypt_cost",
}

func envKeyReplacer(s string) string {
	if mapped, ok := envKeyMap[s]; ok {
		return mapped
	}
	return ""
}

// LoadConfig reads .env (if present), then defaults, an optional YAML file and
// environment variables, later sources overriding earlier ones.
func LoadConfig(configPath string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	k := koanf.New(".")

	for key, value := range defaults {
		if err := k.Set(key, value); err != nil {
			return nil, fmt.Errorf("set default %s: %w", key, err)
		}
	}

	if configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config file: %w", err)
		}
	}

	if err := k.Load(env.Provider("", ".", envKeyReplacer), nil); err != nil {
		return nil, fmt.Errorf("load env vars: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.App.SecretKey == "" {
		return fmt.Errorf("SECRET_KEY is required")
	}
	switch c.Database.Driver {
	case "sqlite", "postgres", "mysql":
	default:
		return fmt.Errorf("unsupported database driver %q", c.Database.Driver)
	}
	switch c.Password.Scheme {
	case "bcrypt", "argon2id":
	default:
		return fmt.Errorf("unsupported password scheme %q", c.Password.Scheme)
	}
	if c.Pagination.Posts <= 0 || c.Pagination.Followers <= 0 || c.Pagination.Comments <= 0 {
		return fmt.Errorf("pagination sizes must be positive")
	}
	return nil
}

func (c *Config) IsProduction() bool {
	return c.App.Environment == "production"
}
