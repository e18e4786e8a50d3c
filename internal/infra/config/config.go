package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log"
	"net/url"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const envPrefix = "PDFTRACK_"

// defaultRetries applies when max_retries is absent or negative; an explicit
// zero disables mirror retries.
const defaultRetries = 3

type Config struct {
	ServerURL  string `yaml:"server_url"`
	UploadPath string `yaml:"upload_path"`
	StatusPath string `yaml:"status_path"`
	HealthPath string `yaml:"health_path"`

	RequestTimeout  time.Duration `yaml:"request_timeout"`
	PollInterval    time.Duration `yaml:"poll_interval"`
	PollTimeout     time.Duration `yaml:"poll_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`

	LogLevel    string `yaml:"log_level"`
	MetricsAddr string `yaml:"metrics_addr"`

	Artifacts Artifacts `yaml:"artifacts"`
	Redis     Redis     `yaml:"redis"`
	MinIO     MinIO     `yaml:"minio"`
	NATS      NATS      `yaml:"nats"`
}

type Artifacts struct {
	Dir           string `yaml:"dir"`
	QueueCapacity int    `yaml:"queue_capacity"`
	PoolSize      int    `yaml:"pool_size"`
	MaxRetries    int    `yaml:"max_retries"`
}

type Redis struct {
	Addr      string        `yaml:"addr"`
	Password  string        `yaml:"password"`
	DB        int           `yaml:"db"`
	ScreenTTL time.Duration `yaml:"screen_ttl"`
}

type MinIO struct {
	Endpoint        string `yaml:"endpoint"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
	UseSSL          bool   `yaml:"use_ssl"`
	Bucket          string `yaml:"bucket"`
	BasePath        string `yaml:"base_path"`
}

type NATS struct {
	URL           string `yaml:"url"`
	Name          string `yaml:"name"`
	MaxReconnects int    `yaml:"max_reconnects"`
	Stream        string `yaml:"stream"`
	Subject       string `yaml:"subject"`
}

// Load reads the YAML file at path (skipped when path is empty), applies
// .env and PDFTRACK_* overrides, fills defaults and validates the result.
func Load(path string) (*Config, error) {
	cfg := Config{Artifacts: Artifacts{MaxRetries: -1}}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: cannot read file %q: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("config: cannot unmarshal yaml: %w", err)
		}
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("config: load .env: %w", err)
	}
	if err := applyEnv(&cfg); err != nil {
		return nil, err
	}

	cfg.setDefaults()

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func MustLoad(path string) *Config {
	cfg, err := Load(path)
	if err != nil {
		log.Fatalf("%v", err)
	}
	return cfg
}

func (c *Config) setDefaults() {
	if c.ServerURL == "" {
		c.ServerURL = "http://localhost:5000"
	}
	if c.UploadPath == "" {
		c.UploadPath = "/upload"
	}
	if c.StatusPath == "" {
		c.StatusPath = "/status/"
	}
	if c.HealthPath == "" {
		c.HealthPath = "/health"
	}
	if c.PollInterval <= 0 {
		c.PollInterval = 2 * time.Second
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = 5 * time.Minute
	}
	if c.ShutdownTimeout <= 0 {
		c.ShutdownTimeout = 10 * time.Second
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.Artifacts.Dir == "" {
		c.Artifacts.Dir = "./output"
	}
	if c.Artifacts.QueueCapacity <= 0 {
		c.Artifacts.QueueCapacity = 16
	}
	if c.Artifacts.PoolSize <= 0 {
		c.Artifacts.PoolSize = 2
	}
	if c.Artifacts.MaxRetries < 0 {
		c.Artifacts.MaxRetries = defaultRetries
	}
	if c.Redis.ScreenTTL <= 0 {
		c.Redis.ScreenTTL = 2 * time.Hour
	}
	if c.NATS.Name == "" {
		c.NATS.Name = "pdftrack"
	}
	if c.NATS.Stream == "" {
		c.NATS.Stream = "PDFTRACK_UI"
	}
	if c.NATS.Subject == "" {
		c.NATS.Subject = "pdftrack.ui"
	}
}

func (c *Config) validate() error {
	u, err := url.Parse(c.ServerURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("config: server_url %q must be an absolute http(s) url", c.ServerURL)
	}
	if c.PollTimeout < 0 {
		return fmt.Errorf("config: poll_timeout must not be negative, got %s", c.PollTimeout)
	}
	if c.MinIO.Endpoint != "" && c.MinIO.Bucket == "" {
		return fmt.Errorf("config: minio.bucket is empty")
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("config: unknown log_level %q", c.LogLevel)
	}
	return nil
}

func applyEnv(c *Config) error {
	setString(&c.ServerURL, "SERVER_URL")
	setString(&c.LogLevel, "LOG_LEVEL")
	setString(&c.MetricsAddr, "METRICS_ADDR")
	setString(&c.Artifacts.Dir, "ARTIFACTS_DIR")
	setString(&c.Redis.Addr, "REDIS_ADDR")
	setString(&c.Redis.Password, "REDIS_PASSWORD")
	setString(&c.MinIO.Endpoint, "MINIO_ENDPOINT")
	setString(&c.MinIO.AccessKeyID, "MINIO_ACCESS_KEY_ID")
	setString(&c.MinIO.SecretAccessKey, "MINIO_SECRET_ACCESS_KEY")
	setString(&c.MinIO.Bucket, "MINIO_BUCKET")
	setString(&c.NATS.URL, "NATS_URL")

	for key, dst := range map[string]*time.Duration{
		"POLL_INTERVAL":   &c.PollInterval,
		"POLL_TIMEOUT":    &c.PollTimeout,
		"REQUEST_TIMEOUT": &c.RequestTimeout,
	} {
		v, ok := os.LookupEnv(envPrefix + key)
		if !ok || v == "" {
			continue
		}
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("config: %s%s: %w", envPrefix, key, err)
		}
		*dst = d
	}

	if v, ok := os.LookupEnv(envPrefix + "ARTIFACTS_MAX_RETRIES"); ok && v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("config: %sARTIFACTS_MAX_RETRIES: %w", envPrefix, err)
		}
		c.Artifacts.MaxRetries = n
	}

	if v, ok := os.LookupEnv(envPrefix + "MINIO_USE_SSL"); ok && v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("config: %sMINIO_USE_SSL: %w", envPrefix, err)
		}
		c.MinIO.UseSSL = b
	}
	return nil
}

func setString(dst *string, key string) {
	if v, ok := os.LookupEnv(envPrefix + key); ok && v != "" {
		*dst = v
	}
}
