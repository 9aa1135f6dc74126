package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds everything the moderation API process reads from the environment.
// Nothing below cmd/ reads environment variables directly.
type Config struct {
	App        AppConfig
	DB         DBConfig
	Redis      RedisConfig
	Auth       AuthConfig
	Moderation ModerationConfig
}

type AppConfig struct {
	Env  string
	Port int
}

type DBConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Name     string

	// SSLMode accepts disable, require, verify-ca, verify-full.
	SSLMode string

	// MaxOpenConns caps the pool; 0 keeps the driver default from pkg/utils.
	MaxOpenConns int
}

// RedisConfig is only required when moderation locks live in Redis.
type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

type AuthConfig struct {
	JWTSecret       string
	JWTIssuer       string
	JWTAudience     string
	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration
}

// Lock backends for per-entity serialization of moderation writes.
const (
	LockBackendRedis = "redis"
	LockBackendLocal = "local"
)

type ModerationConfig struct {
	// LockBackend is redis for multi-instance deployments, local for a single process.
	LockBackend string
	// LockTTL bounds how long a crashed holder can block an incident or appeal.
	LockTTL time.Duration
	// LockWait is how long a request waits for a busy entity before reporting a conflict.
	LockWait time.Duration
}

func Load() (Config, error) {
	var c Config
	p := &envParser{}

	c.App.Env = p.str("APP_ENV")
	c.App.Port = p.requiredInt("APP_PORT")

	c.DB.Host = p.str("DB_HOST")
	c.DB.Port = p.requiredInt("DB_PORT")
	c.DB.User = p.str("DB_USER")
	c.DB.Password = os.Getenv("DB_PASSWORD")
	c.DB.Name = p.str("DB_NAME")
	c.DB.SSLMode = p.str("DB_SSLMODE")
	c.DB.MaxOpenConns = p.optionalInt("DB_MAX_OPEN_CONNS")

	c.Moderation.LockBackend = p.str("MODERATION_LOCK_BACKEND")
	c.Moderation.LockTTL = p.duration("MODERATION_LOCK_TTL")
	c.Moderation.LockWait = p.duration("MODERATION_LOCK_WAIT")

	c.Redis.Host = p.str("REDIS_HOST")
	c.Redis.Password = os.Getenv("REDIS_PASSWORD")
	c.Redis.DB = p.optionalInt("REDIS_DB")
	if c.Moderation.LockBackend != LockBackendLocal {
		c.Redis.Port = p.requiredInt("REDIS_PORT")
	}

	c.Auth.JWTSecret = os.Getenv("JWT_SECRET")
	c.Auth.JWTIssuer = p.str("JWT_ISSUER")
	c.Auth.JWTAudience = p.str("JWT_AUDIENCE")
	c.Auth.AccessTokenTTL = p.duration("JWT_ACCESS_TTL")
	c.Auth.RefreshTokenTTL = p.duration("JWT_REFRESH_TTL")

	if err := joinErrors(p.errs); err != nil {
		return Config{}, err
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

// Validate checks required values and fills defaults for optional ones.
func (c *Config) Validate() error {
	var errs []error
	fail := func(format string, args ...any) { errs = append(errs, fmt.Errorf(format, args...)) }

	switch c.App.Env {
	case "":
		fail("APP_ENV is required")
	case "local", "dev", "staging", "production":
	default:
		fail("APP_ENV must be one of local, dev, staging, production, got %q", c.App.Env)
	}
	if !validPort(c.App.Port) {
		fail("APP_PORT must be a valid port, got %d", c.App.Port)
	}

	if c.DB.Host == "" {
		fail("DB_HOST is required")
	}
	if !validPort(c.DB.Port) {
		fail("DB_PORT must be a valid port, got %d", c.DB.Port)
	}
	if c.DB.User == "" {
		fail("DB_USER is required")
	}
	if c.DB.Name == "" {
		fail("DB_NAME is required")
	}
	switch c.DB.SSLMode {
	case "":
		if c.IsProduction() {
			fail("DB_SSLMODE is required in production")
		} else {
			c.DB.SSLMode = "disable"
		}
	case "disable", "require", "verify-ca", "verify-full":
	default:
		fail("DB_SSLMODE must be one of disable, require, verify-ca, verify-full, got %q", c.DB.SSLMode)
	}
	if c.DB.MaxOpenConns < 0 {
		fail("DB_MAX_OPEN_CONNS must not be negative")
	}

	switch c.Moderation.LockBackend {
	case "":
		c.Moderation.LockBackend = LockBackendRedis
	case LockBackendRedis, LockBackendLocal:
	default:
		fail("MODERATION_LOCK_BACKEND must be redis or local, got %q", c.Moderation.LockBackend)
	}
	if c.Moderation.LockBackend == LockBackendLocal && c.IsProduction() {
		fail("MODERATION_LOCK_BACKEND=local is not allowed in production")
	}
	if c.UsesRedis() {
		if c.Redis.Host == "" {
			fail("REDIS_HOST is required")
		}
		if !validPort(c.Redis.Port) {
			fail("REDIS_PORT must be a valid port, got %d", c.Redis.Port)
		}
	}
	if c.Moderation.LockTTL <= 0 {
		c.Moderation.LockTTL = 10 * time.Second
	}
	if c.Moderation.LockWait <= 0 {
		c.Moderation.LockWait = 3 * time.Second
	}
	if c.Moderation.LockWait >= c.Moderation.LockTTL {
		fail("MODERATION_LOCK_WAIT must be shorter than MODERATION_LOCK_TTL")
	}

	if c.Auth.JWTSecret == "" {
		fail("JWT_SECRET is required")
	}
	if c.IsProduction() {
		if c.Auth.JWTIssuer == "" {
			fail("JWT_ISSUER is required in production")
		}
		if c.Auth.JWTAudience == "" {
			fail("JWT_AUDIENCE is required in production")
		}
	}
	if c.Auth.AccessTokenTTL <= 0 {
		c.Auth.AccessTokenTTL = 15 * time.Minute
	}
	if c.Auth.RefreshTokenTTL <= 0 {
		c.Auth.RefreshTokenTTL = 30 * 24 * time.Hour
	}
	if c.Auth.RefreshTokenTTL <= c.Auth.AccessTokenTTL {
		fail("JWT_REFRESH_TTL must be greater than JWT_ACCESS_TTL")
	}

	return joinErrors(errs)
}

func (c Config) IsProduction() bool {
	return c.App.Env == "production"
}

// DevLoginEnabled reports whether the unauthenticated token endpoint may be served.
func (c Config) DevLoginEnabled() bool {
	return c.App.Env == "local" || c.App.Env == "dev"
}

func (c Config) UsesRedis() bool {
	return c.Moderation.LockBackend != LockBackendLocal
}

func (c Config) HTTPAddr() string {
	return fmt.Sprintf(":%d", c.App.Port)
}

// PostgresDSN contains the password; never log it.
func (c Config) PostgresDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.DB.Host, c.DB.Port, c.DB.User, c.DB.Password, c.DB.Name, c.DB.SSLMode,
	)
}

func (c Config) RedisAddr() string {
	return fmt.Sprintf("%s:%d", c.Redis.Host, c.Redis.Port)
}

// envParser collects every malformed variable so Load reports them together.
type envParser struct {
	errs []error
}

func (p *envParser) str(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}

func (p *envParser) requiredInt(key string) int {
	v := p.str(key)
	if v == "" {
		p.errs = append(p.errs, fmt.Errorf("%s is required", key))
		return 0
	}
	return p.parseInt(key, v)
}

func (p *envParser) optionalInt(key string) int {
	v := p.str(key)
	if v == "" {
		return 0
	}
	return p.parseInt(key, v)
}

func (p *envParser) parseInt(key, v string) int {
	n, err := strconv.Atoi(v)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("%s must be an integer, got %q", key, v))
		return 0
	}
	return n
}

// duration returns 0 for an unset key; Validate fills the default.
func (p *envParser) duration(key string) time.Duration {
	v := p.str(key)
	if v == "" {
		return 0
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("%s must be a duration like 10s, got %q", key, v))
		return 0
	}
	return d
}

func validPort(n int) bool { return n > 0 && n <= 65535 }

func joinErrors(errs []error) error {
	if len(errs) == 0 {
		return nil
	}
	if len(errs) == 1 {
		return errs[0]
	}
	var b strings.Builder
	b.WriteString("config errors:")
	for _, e := range errs {
		b.WriteString("\n- ")
		b.WriteString(e.Error())
	}
	return errors.New(b.String())
}
