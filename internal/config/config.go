package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Config represents runtime configuration for the launcher daemon.
type Config struct {
	BasicConfig BasicConfig               `json:"basic_config"`
	Transfer    TransferConfig            `json:"transfer"`
	Redis       RedisConfig               `json:"redis"`
	Databases   map[string]DatabaseConfig `json:"databases"`
}

type BasicConfig struct {
	ServerAddress        string   `json:"server_address"`
	DestinationURL       string   `json:"destination_url"`
	Language             string   `json:"language"`
	DefaultTool          string   `json:"default_tool"`
	StoreBackend         string   `json:"store_backend"`  // memory | redis | sqlite3 | mysql | postgres
	BrowserDriver        string   `json:"browser_driver"` // system | chromedp
	SweepIntervalSeconds int      `json:"sweep_interval_seconds"`
	APIToken             string   `json:"api_token"`
	AllowedOrigins       []string `json:"allowed_origins"`
}

type TransferConfig struct {
	SessionTTLSeconds      int    `json:"session_ttl_seconds"`
	MaxBatchBytes          int64  `json:"max_batch_bytes"`
	StorageCeilingBytes    int64  `json:"storage_ceiling_bytes"`
	TabReadyTimeoutSeconds int    `json:"tab_ready_timeout_seconds"`
	ValidationPolicy       string `json:"validation_policy"` // strict | best-effort
	PayloadEncoding        string `json:"payload_encoding"`  // dataurl | bytes
}

type RedisConfig struct {
	Host      string `json:"host"`
	Port      int    `json:"port"`
	Username  string `json:"username"`
	Password  string `json:"password"`
	DB        int    `json:"db"`
	Namespace string `json:"namespace"`
}

type DatabaseConfig struct {
	DSN      string `json:"dsn"`
	Host     string `json:"host"`
	Port     int    `json:"port"`
	Username string `json:"username"`
	Password string `json:"password"`
	DBName   string `json:"db_name"`
	Params   string `json:"params"`
}

const (
	DefaultServerAddress       = "127.0.0.1:8790"
	DefaultDestinationURL      = "https://localpdf.online"
	DefaultSessionTTLSeconds   = 300
	DefaultMaxBatchBytes       = 200 << 20
	DefaultStorageCeilingBytes = 50 << 20
	DefaultTabReadyTimeout     = 30
	DefaultSweepInterval       = 60

	PolicyStrict     = "strict"
	PolicyBestEffort = "best-effort"

	apiTokenEnv = "SMARTLAUNCHER_API_TOKEN"
)

// Default returns a configuration usable without any file on disk.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

// Load reads configuration from the provided path (defaults to config.json).
// A missing default file is not an error; an explicitly named one is.
func Load(path string) (*Config, error) {
	explicit := path != ""
	if path == "" {
		path = "config.json"
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve config path: %w", err)
	}

	file, err := os.Open(absPath)
	if err != nil {
		if !explicit && errors.Is(err, os.ErrNotExist) {
			return Default(), nil
		}
		return nil, fmt.Errorf("open config %s: %w", absPath, err)
	}
	defer file.Close()

	var cfg Config
	if err := json.NewDecoder(file).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	// relative sqlite paths resolve against the config directory
	if db, ok := cfg.Databases["sqlite3"]; ok && db.DSN != "" && db.DSN != ":memory:" && !filepath.IsAbs(db.DSN) {
		db.DSN = filepath.Join(filepath.Dir(absPath), db.DSN)
		cfg.Databases["sqlite3"] = db
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	b := &c.BasicConfig
	if b.ServerAddress == "" {
		b.ServerAddress = DefaultServerAddress
	}
	if b.DestinationURL == "" {
		b.DestinationURL = DefaultDestinationURL
	}
	b.DestinationURL = strings.TrimRight(b.DestinationURL, "/")
	if b.Language == "" {
		b.Language = "en"
	}
	if b.DefaultTool == "" {
		b.DefaultTool = "merge"
	}
	if b.StoreBackend == "" {
		b.StoreBackend = "memory"
	}
	if b.BrowserDriver == "" {
		b.BrowserDriver = "system"
	}
	if b.SweepIntervalSeconds <= 0 {
		b.SweepIntervalSeconds = DefaultSweepInterval
	}
	if token := strings.TrimSpace(os.Getenv(apiTokenEnv)); token != "" {
		b.APIToken = token
	}

	t := &c.Transfer
	if t.SessionTTLSeconds <= 0 {
		t.SessionTTLSeconds = DefaultSessionTTLSeconds
	}
	if t.MaxBatchBytes <= 0 {
		t.MaxBatchBytes = DefaultMaxBatchBytes
	}
	if t.StorageCeilingBytes <= 0 {
		t.StorageCeilingBytes = DefaultStorageCeilingBytes
	}
	if t.TabReadyTimeoutSeconds <= 0 {
		t.TabReadyTimeoutSeconds = DefaultTabReadyTimeout
	}
	if t.ValidationPolicy == "" {
		t.ValidationPolicy = PolicyStrict
	}
	if t.PayloadEncoding == "" {
		t.PayloadEncoding = "dataurl"
	}
	if c.Redis.Namespace == "" {
		c.Redis.Namespace = "smartlauncher:"
	}
	if c.Databases == nil {
		c.Databases = map[string]DatabaseConfig{}
	}
}

func (c *Config) validate() error {
	switch c.Transfer.ValidationPolicy {
	case PolicyStrict, PolicyBestEffort:
	default:
		return fmt.Errorf("unknown validation_policy %q", c.Transfer.ValidationPolicy)
	}
	switch c.Transfer.PayloadEncoding {
	case "dataurl", "bytes":
	default:
		return fmt.Errorf("unknown payload_encoding %q", c.Transfer.PayloadEncoding)
	}
	if c.Transfer.StorageCeilingBytes > c.Transfer.MaxBatchBytes {
		return errors.New("storage_ceiling_bytes cannot exceed max_batch_bytes")
	}
	switch c.BasicConfig.StoreBackend {
	case "memory", "redis", "sqlite3", "mysql", "postgres":
	default:
		return fmt.Errorf("unknown store_backend %q", c.BasicConfig.StoreBackend)
	}
	switch c.BasicConfig.BrowserDriver {
	case "system", "chromedp":
	default:
		return fmt.Errorf("unknown browser_driver %q", c.BasicConfig.BrowserDriver)
	}
	return nil
}
