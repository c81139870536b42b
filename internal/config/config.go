package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration required by the API process.
// All values must come from env (or an env-file loaded before Load reads the environment).
// No business logic should depend on raw environment variables.
type Config struct {
	App   AppConfig
	DB    DBConfig
	Redis RedisConfig
	Auth  AuthConfig
	Vapi  VapiConfig
	Batch BatchConfig
	Log   LogConfig
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

	// SSLMode is kept explicit for AWS-ready posture.
	// Accepts: disable, require, verify-ca, verify-full
	SSLMode string
}

type RedisConfig struct {
	Host string
	Port int
}

// AuthConfig describes how session tokens minted by the identity provider are verified.
type AuthConfig struct {
	JWTSecret   string
	JWTIssuer   string
	JWTAudience string

	// SessionCookie is read when no Authorization header is present.
	SessionCookie string
}

type VapiConfig struct {
	APIKey        string
	BaseURL       string
	PhoneNumberID string
	Timeout       time.Duration
	WebhookSecret string
}

// BatchConfig tunes the batch calling pipeline.
type BatchConfig struct {
	// Pacing is the wait between two items of the same batch.
	Pacing time.Duration
	// Concurrency is the number of items of one batch in flight. Only 1 is supported.
	Concurrency int
	MaxItems    int

	Workers       int
	QueueKey      string
	InflightLimit int
	SweepInterval time.Duration
}

type LogConfig struct {
	File       string
	MaxSizeMB  int
	MaxBackups int
}

// LoadEnvFile loads ENV_FILE (or ./.env when present) into the process environment.
// Variables that are already set win.
func LoadEnvFile() error {
	path := strings.TrimSpace(os.Getenv("ENV_FILE"))
	if path == "" {
		if _, err := os.Stat(".env"); err != nil {
			return nil
		}
		path = ".env"
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("load env file %s: %w", path, err)
	}
	return nil
}

func Load() (Config, error) {
	c := Config{}
	var parseErrs []error

	c.App.Env = strings.TrimSpace(os.Getenv("APP_ENV"))
	{
		n, err := mustInt("APP_PORT")
		n, parseErrs = appendParseErr(parseErrs, n, err)
		c.App.Port = n
	}

	c.DB.Host = strings.TrimSpace(os.Getenv("DB_HOST"))
	{
		n, err := mustInt("DB_PORT")
		n, parseErrs = appendParseErr(parseErrs, n, err)
		c.DB.Port = n
	}
	c.DB.User = strings.TrimSpace(os.Getenv("DB_USER"))
	c.DB.Password = os.Getenv("DB_PASSWORD")
	c.DB.Name = strings.TrimSpace(os.Getenv("DB_NAME"))
	c.DB.SSLMode = strings.TrimSpace(os.Getenv("DB_SSLMODE"))

	c.Redis.Host = strings.TrimSpace(os.Getenv("REDIS_HOST"))
	{
		n, err := mustInt("REDIS_PORT")
		n, parseErrs = appendParseErr(parseErrs, n, err)
		c.Redis.Port = n
	}

	c.Auth.JWTSecret = os.Getenv("JWT_SECRET")
	c.Auth.JWTIssuer = strings.TrimSpace(os.Getenv("JWT_ISSUER"))
	c.Auth.JWTAudience = strings.TrimSpace(os.Getenv("JWT_AUDIENCE"))
	c.Auth.SessionCookie = strings.TrimSpace(os.Getenv("SESSION_COOKIE"))

	c.Vapi.APIKey = os.Getenv("VAPI_API_KEY")
	c.Vapi.BaseURL = strings.TrimSpace(os.Getenv("VAPI_BASE_URL"))
	c.Vapi.PhoneNumberID = strings.TrimSpace(os.Getenv("VAPI_PHONE_NUMBER_ID"))
	c.Vapi.Timeout = mustDuration("VAPI_TIMEOUT")
	c.Vapi.WebhookSecret = os.Getenv("VAPI_WEBHOOK_SECRET")

	// Batch tuning is optional; defaults applied in Validate().
	c.Batch.Pacing = mustDuration("BATCH_PACING")
	c.Batch.Concurrency = optionalInt("BATCH_CONCURRENCY")
	c.Batch.MaxItems = optionalInt("BATCH_MAX_ITEMS")
	c.Batch.Workers = optionalInt("BATCH_WORKERS")
	c.Batch.QueueKey = strings.TrimSpace(os.Getenv("BATCH_QUEUE_KEY"))
	c.Batch.InflightLimit = optionalInt("BATCH_INFLIGHT_LIMIT")
	c.Batch.SweepInterval = mustDuration("BATCH_SWEEP_INTERVAL")

	c.Log.File = strings.TrimSpace(os.Getenv("LOG_FILE"))
	c.Log.MaxSizeMB = optionalInt("LOG_MAX_SIZE_MB")
	c.Log.MaxBackups = optionalInt("LOG_MAX_BACKUPS")

	if err := joinErrors(parseErrs); err != nil {
		return Config{}, err
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

// Validate checks required values and fills defaults in place.
func (c *Config) Validate() error {
	var errs []error

	if c.App.Env == "" {
		errs = append(errs, errors.New("APP_ENV is required"))
	} else if !isValidEnv(c.App.Env) {
		errs = append(errs, fmt.Errorf("APP_ENV must be one of local, dev, staging, production, got %q", c.App.Env))
	}
	if c.App.Port <= 0 || c.App.Port > 65535 {
		errs = append(errs, fmt.Errorf("APP_PORT must be a valid port, got %d", c.App.Port))
	}

	if c.DB.Host == "" {
		errs = append(errs, errors.New("DB_HOST is required"))
	}
	if c.DB.Port <= 0 || c.DB.Port > 65535 {
		errs = append(errs, fmt.Errorf("DB_PORT must be a valid port, got %d", c.DB.Port))
	}
	if c.DB.User == "" {
		errs = append(errs, errors.New("DB_USER is required"))
	}
	if c.DB.Name == "" {
		errs = append(errs, errors.New("DB_NAME is required"))
	}
	if strings.TrimSpace(c.DB.SSLMode) == "" {
		if c.IsProduction() {
			errs = append(errs, errors.New("DB_SSLMODE is required in production"))
		} else {
			// Local-friendly default; production must be explicit.
			c.DB.SSLMode = "disable"
		}
	}
	if c.DB.SSLMode != "" && !isValidSSLMode(c.DB.SSLMode) {
		errs = append(errs, fmt.Errorf("DB_SSLMODE must be one of disable, require, verify-ca, verify-full, got %q", c.DB.SSLMode))
	}

	if c.Redis.Host == "" {
		errs = append(errs, errors.New("REDIS_HOST is required"))
	}
	if c.Redis.Port <= 0 || c.Redis.Port > 65535 {
		errs = append(errs, fmt.Errorf("REDIS_PORT must be a valid port, got %d", c.Redis.Port))
	}

	if c.Auth.JWTSecret == "" {
		errs = append(errs, errors.New("JWT_SECRET is required"))
	}
	if c.IsProduction() && c.Auth.JWTIssuer == "" {
		errs = append(errs, errors.New("JWT_ISSUER is required in production"))
	}
	if c.Auth.SessionCookie == "" {
		c.Auth.SessionCookie = "sb-access-token"
	}

	if c.Vapi.APIKey == "" && c.IsProduction() {
		errs = append(errs, errors.New("VAPI_API_KEY is required in production"))
	}
	if c.Vapi.BaseURL == "" {
		c.Vapi.BaseURL = "https://api.vapi.ai"
	}
	if c.Vapi.Timeout <= 0 {
		c.Vapi.Timeout = 15 * time.Second
	}

	if c.Batch.Pacing < 0 {
		errs = append(errs, fmt.Errorf("BATCH_PACING must not be negative, got %s", c.Batch.Pacing))
	} else if c.Batch.Pacing == 0 {
		// Matches the provider's documented burst tolerance.
		c.Batch.Pacing = 500 * time.Millisecond
	}
	if c.Batch.Concurrency <= 0 {
		c.Batch.Concurrency = 1
	}
	if c.Batch.Concurrency != 1 {
		errs = append(errs, fmt.Errorf("BATCH_CONCURRENCY must be 1, got %d", c.Batch.Concurrency))
	}
	if c.Batch.MaxItems <= 0 {
		c.Batch.MaxItems = 1000
	}
	if c.Batch.Workers <= 0 {
		c.Batch.Workers = 2
	}
	if c.Batch.QueueKey == "" {
		c.Batch.QueueKey = "callbatch:queue"
	}
	if c.Batch.InflightLimit <= 0 {
		c.Batch.InflightLimit = 4
	}
	if c.Batch.SweepInterval <= 0 {
		c.Batch.SweepInterval = time.Minute
	}

	if c.Log.File != "" {
		if c.Log.MaxSizeMB <= 0 {
			c.Log.MaxSizeMB = 100
		}
		if c.Log.MaxBackups <= 0 {
			c.Log.MaxBackups = 5
		}
	}

	return joinErrors(errs)
}

func (c Config) IsProduction() bool {
	return c.App.Env == "production"
}

func (c Config) HTTPAddr() string {
	return fmt.Sprintf(":%d", c.App.Port)
}

func (c Config) PostgresDSN() string {
	// Avoid logging this string; it contains secrets.
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.DB.Host,
		c.DB.Port,
		c.DB.User,
		c.DB.Password,
		c.DB.Name,
		c.DB.SSLMode,
	)
}

func (c Config) RedisAddr() string {
	return fmt.Sprintf("%s:%d", c.Redis.Host, c.Redis.Port)
}

func mustInt(key string) (int, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return 0, fmt.Errorf("%s is required", key)
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer, got %q", key, v)
	}
	return n, nil
}

// optionalInt returns 0 for empty or malformed values so Validate can apply a default.
func optionalInt(key string) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return 0
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0
	}
	return n
}

func mustDuration(key string) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return 0
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0
	}
	return d
}

func appendParseErr(errs []error, n int, err error) (int, []error) {
	if err != nil {
		errs = append(errs, err)
	}
	return n, errs
}

func isValidEnv(v string) bool {
	switch v {
	case "local", "dev", "staging", "production":
		return true
	default:
		return false
	}
}

func isValidSSLMode(v string) bool {
	switch v {
	case "disable", "require", "verify-ca", "verify-full":
		return true
	default:
		return false
	}
}

func joinErrors(errs []error) error {
	if len(errs) == 0 {
		return nil
	}
	if len(errs) == 1 {
		return errs[0]
	}
	var b strings.Builder
	b.WriteString("config errors:\n")
	for _, e := range errs {
		b.WriteString("- ")
		b.WriteString(e.Error())
		b.WriteString("\n")
	}
	return errors.New(strings.TrimSpace(b.String()))
}
