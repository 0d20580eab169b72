// Package config reads the rehydrator settings from a YAML file and lets
// environment variables override individual values.
package config

import (
	"encoding/base64"
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ErrInvalid is wrapped by every validation failure returned from Load.
var ErrInvalid = errors.New("invalid config")

// Storage modes for available activities.
const (
	StorageFiles    = "files"
	StorageDatabase = "database"
	StorageS3       = "s3"
)

const (
	defaultBaseURL        = "https://rehydration.gnip.com:443"
	defaultPublisher      = "twitter"
	defaultInBox          = "./rehydration_in"
	defaultInBoxCompleted = "./rehydration_in/completed"
	defaultOutBox         = "./rehydration_out"
	defaultOutBoxNA       = "./rehydration_out/na_ids"
	defaultOutBoxOld      = "./rehydration_out/old_ids"
	defaultBatchSize      = 25
	defaultRequestTimeout = 60 * time.Second
	defaultDBHost         = "127.0.0.1"
	defaultDBPort         = 5432
	defaultRedisAddr      = "127.0.0.1:6379"
	defaultBucket         = "rehydrated-activities"
)

// Config is the full runtime configuration, grouped the way the YAML file is.
type Config struct {
	Account     AccountConfig     `yaml:"account"`
	Rehydration RehydrationConfig `yaml:"rehydration"`
	Database    DatabaseConfig    `yaml:"database"`
	ObjectStore ObjectStoreConfig `yaml:"object_store"`
	Queue       QueueConfig       `yaml:"queue"`
	Logging     LoggingConfig     `yaml:"logging"`
}

// AccountConfig holds the API credentials and endpoint.
type AccountConfig struct {
	AccountName string `yaml:"account_name"`
	UserName    string `yaml:"user_name"`
	// Password is plaintext after Load, even when PasswordEncoded was given.
	Password        string `yaml:"password"`
	PasswordEncoded string `yaml:"password_encoded"`
	BaseURL         string `yaml:"base_url"`
	Publisher       string `yaml:"publisher"`
}

// RehydrationConfig describes the in-box/out-box layout and request tuning.
type RehydrationConfig struct {
	InBox             string        `yaml:"in_box"`
	InBoxCompleted    string        `yaml:"in_box_completed"`
	OutBox            string        `yaml:"out_box"`
	OutBoxNA          string        `yaml:"out_box_na"`
	OutBoxOld         string        `yaml:"out_box_old"`
	Storage           string        `yaml:"storage"`
	KeepNAFiles       bool          `yaml:"keep_na_files"`
	BatchSize         int           `yaml:"batch_size"`
	RequestTimeout    time.Duration `yaml:"request_timeout"`
	RetryAttempts     int           `yaml:"retry_attempts"`
	RequestsPerMinute int           `yaml:"requests_per_minute"`
}

// DatabaseConfig is used when Storage is "database".
type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Schema   string `yaml:"schema"`
	UserName string `yaml:"user_name"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"ssl_mode"`
}

// ObjectStoreConfig is used when Storage is "s3".
type ObjectStoreConfig struct {
	Endpoint  string `yaml:"endpoint"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	UseSSL    bool   `yaml:"use_ssl"`
	Region    string `yaml:"region"`
	Bucket    string `yaml:"bucket"`
}

// QueueConfig configures the asynq worker and the periodic drain.
type QueueConfig struct {
	RedisAddr     string `yaml:"redis_addr"`
	RedisPassword string `yaml:"redis_password"`
	RedisDB       int    `yaml:"redis_db"`
	Schedule      string `yaml:"schedule"`
}

// LoggingConfig selects the logrus level and formatter.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Load reads path (skipped when empty), applies REHYDRATE_* environment
// overrides and defaults, decodes the encoded password and validates.
func Load(path string) (*Config, error) {
	cfg := defaults()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("decode config: %w", err)
		}
	}
	applyEnv(cfg)
	if err := cfg.finish(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func defaults() *Config {
	return &Config{
		Account: AccountConfig{
			BaseURL:   defaultBaseURL,
			Publisher: defaultPublisher,
		},
		Rehydration: RehydrationConfig{
			InBox:          defaultInBox,
			InBoxCompleted: defaultInBoxCompleted,
			OutBox:         defaultOutBox,
			OutBoxNA:       defaultOutBoxNA,
			OutBoxOld:      defaultOutBoxOld,
			Storage:        StorageFiles,
			BatchSize:      defaultBatchSize,
			RequestTimeout: defaultRequestTimeout,
			RetryAttempts:  1,
		},
		Database: DatabaseConfig{
			Host:    defaultDBHost,
			Port:    defaultDBPort,
			SSLMode: "disable",
		},
		ObjectStore: ObjectStoreConfig{
			Bucket: defaultBucket,
		},
		Queue: QueueConfig{
			RedisAddr: defaultRedisAddr,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

func applyEnv(cfg *Config) {
	a := &cfg.Account
	a.AccountName = readEnv("REHYDRATE_ACCOUNT_NAME", a.AccountName)
	a.UserName = readEnv("REHYDRATE_USER_NAME", a.UserName)
	// An environment password beats anything from the file, plaintext or
	// encoded. Between two values from the same source the encoded one wins.
	if v := readEnv("REHYDRATE_PASSWORD", ""); v != "" {
		a.Password = v
		a.PasswordEncoded = ""
	}
	a.PasswordEncoded = readEnv("REHYDRATE_PASSWORD_ENCODED", a.PasswordEncoded)
	a.BaseURL = readEnv("REHYDRATE_BASE_URL", a.BaseURL)
	a.Publisher = readEnv("REHYDRATE_PUBLISHER", a.Publisher)

	r := &cfg.Rehydration
	r.InBox = readEnv("REHYDRATE_IN_BOX", r.InBox)
	r.InBoxCompleted = readEnv("REHYDRATE_IN_BOX_COMPLETED", r.InBoxCompleted)
	r.OutBox = readEnv("REHYDRATE_OUT_BOX", r.OutBox)
	r.OutBoxNA = readEnv("REHYDRATE_OUT_BOX_NA", r.OutBoxNA)
	r.OutBoxOld = readEnv("REHYDRATE_OUT_BOX_OLD", r.OutBoxOld)
	r.Storage = readEnv("REHYDRATE_STORAGE", r.Storage)
	r.KeepNAFiles = parseBool("REHYDRATE_KEEP_NA_FILES", r.KeepNAFiles)
	r.BatchSize = parseInt("REHYDRATE_BATCH_SIZE", r.BatchSize)
	r.RequestTimeout = parseDuration("REHYDRATE_REQUEST_TIMEOUT", r.RequestTimeout)
	r.RetryAttempts = parseInt("REHYDRATE_RETRY_ATTEMPTS", r.RetryAttempts)
	r.RequestsPerMinute = parseInt("REHYDRATE_REQUESTS_PER_MINUTE", r.RequestsPerMinute)

	d := &cfg.Database
	d.Host = readEnv("REHYDRATE_DB_HOST", d.Host)
	d.Port = parseInt("REHYDRATE_DB_PORT", d.Port)
	d.Schema = readEnv("REHYDRATE_DB_SCHEMA", d.Schema)
	d.UserName = readEnv("REHYDRATE_DB_USER_NAME", d.UserName)
	d.Password = readEnv("REHYDRATE_DB_PASSWORD", d.Password)

	o := &cfg.ObjectStore
	o.Endpoint = readEnv("REHYDRATE_S3_ENDPOINT", o.Endpoint)
	o.AccessKey = readEnv("REHYDRATE_S3_ACCESS_KEY", o.AccessKey)
	o.SecretKey = readEnv("REHYDRATE_S3_SECRET_KEY", o.SecretKey)
	o.Bucket = readEnv("REHYDRATE_S3_BUCKET", o.Bucket)

	q := &cfg.Queue
	q.RedisAddr = readEnv("REHYDRATE_REDIS_ADDR", q.RedisAddr)
	q.RedisPassword = readEnv("REHYDRATE_REDIS_PASSWORD", q.RedisPassword)
	q.RedisDB = parseInt("REHYDRATE_REDIS_DB", q.RedisDB)
	q.Schedule = readEnv("REHYDRATE_SCHEDULE", q.Schedule)

	cfg.Logging.Level = readEnv("REHYDRATE_LOG_LEVEL", cfg.Logging.Level)
	cfg.Logging.Format = readEnv("REHYDRATE_LOG_FORMAT", cfg.Logging.Format)
}

func (c *Config) finish() error {
	if c.Account.PasswordEncoded != "" {
		raw, err := base64.StdEncoding.DecodeString(strings.TrimSpace(c.Account.PasswordEncoded))
		if err != nil {
			return fmt.Errorf("%w: password_encoded is not base64: %v", ErrInvalid, err)
		}
		c.Account.Password = string(raw)
	}
	if c.Account.AccountName == "" {
		return fmt.Errorf("%w: account_name is required", ErrInvalid)
	}
	switch c.Rehydration.Storage {
	case StorageFiles, StorageDatabase, StorageS3:
	default:
		return fmt.Errorf("%w: unknown storage %q", ErrInvalid, c.Rehydration.Storage)
	}
	if c.Rehydration.BatchSize <= 0 || c.Rehydration.BatchSize > defaultBatchSize {
		c.Rehydration.BatchSize = defaultBatchSize
	}
	if c.Rehydration.RequestTimeout <= 0 {
		c.Rehydration.RequestTimeout = defaultRequestTimeout
	}
	if c.Rehydration.RetryAttempts <= 0 {
		c.Rehydration.RetryAttempts = 1
	}
	return nil
}

// DSN builds the postgres connection string for the database storage mode.
func (c *Config) DSN() string {
	d := c.Database
	u := url.URL{
		Scheme: "postgres",
		Host:   fmt.Sprintf("%s:%d", d.Host, d.Port),
		Path:   "/" + d.Schema,
	}
	if d.UserName != "" {
		u.User = url.UserPassword(d.UserName, d.Password)
	}
	if d.SSLMode != "" {
		u.RawQuery = url.Values{"sslmode": {d.SSLMode}}.Encode()
	}
	return u.String()
}

// EnsureDirectories creates every configured in-box and out-box directory.
func (c *Config) EnsureDirectories() error {
	r := c.Rehydration
	for _, dir := range []string{r.InBox, r.InBoxCompleted, r.OutBox, r.OutBoxNA, r.OutBoxOld} {
		if dir == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return fmt.Errorf("create directory %s: %w", dir, err)
		}
	}
	return nil
}

func readEnv(key, def string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return def
}

func parseInt(key string, def int) int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			return parsed
		}
	}
	return def
}

func parseBool(key string, def bool) bool {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if parsed, err := strconv.ParseBool(v); err == nil {
			return parsed
		}
	}
	return def
}

func parseDuration(key string, def time.Duration) time.Duration {
	// time.ParseDuration understands inputs like "5m" or "30s".
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if parsed, err := time.ParseDuration(v); err == nil {
			return parsed
		}
	}
	return def
}
