package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
)

const (
	DefaultAPIURL     = "http://127.0.0.1:7333"
	DefaultDBFileName = ".mailvault.db"
	DefaultLogLevel   = "info"

	DefaultBackupWorkers              = 4
	DefaultBackupFailureRateThreshold = 0.5
	DefaultBackupMaxPutAttempts       = 3
	DefaultBackupGCGraceHours         = 72
	DefaultBackupGCBatchSize          = 500

	configFileName  = ".mailvault.toml"
	configDirEnvKey = "MAILVAULT_CONFIG_DIR"
)

// BackupConfig defines runtime configuration for ingestion runs and blob
// reclamation.
type BackupConfig struct {
	Workers              int     `toml:"workers"`
	FailureRateThreshold float64 `toml:"failure_rate_threshold"`
	MaxPutAttempts       int     `toml:"max_put_attempts"`
	GCGraceHours         int     `toml:"gc_grace_hours"`
	GCBatchSize          int     `toml:"gc_batch_size"`
}

// Config defines runtime configuration for mailvault.
type Config struct {
	APIURL      string       `toml:"api_url"`
	DBPath      string       `toml:"db_path"`
	BlobRoot    string       `toml:"blob_root"`
	TenantsPath string       `toml:"tenants_path"`
	LogLevel    string       `toml:"log_level"`
	Backup      BackupConfig `toml:"backup"`
}

// Default returns default configuration values.
func Default() Config {
	return Config{
		APIURL:   DefaultAPIURL,
		LogLevel: DefaultLogLevel,
		Backup: BackupConfig{
			Workers:              DefaultBackupWorkers,
			FailureRateThreshold: DefaultBackupFailureRateThreshold,
			MaxPutAttempts:       DefaultBackupMaxPutAttempts,
			GCGraceHours:         DefaultBackupGCGraceHours,
			GCBatchSize:          DefaultBackupGCBatchSize,
		},
	}
}

func loadFileIfExists(path string, cfg *Config) (bool, error) {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	if info.IsDir() {
		return false, nil
	}
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return false, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	return true, nil
}

func overrideConfigPath() (string, bool) {
	dir := strings.TrimSpace(os.Getenv(configDirEnvKey))
	if dir == "" {
		return "", false
	}
	return filepath.Join(dir, configFileName), true
}

var allowedKeys = []string{
	"api_url",
	"db_path",
	"blob_root",
	"tenants_path",
	"log_level",
	"backup.workers",
	"backup.failure_rate_threshold",
	"backup.max_put_attempts",
	"backup.gc_grace_hours",
	"backup.gc_batch_size",
}

// AllowedKeys returns the set of valid config keys.
func AllowedKeys() []string {
	return allowedKeys
}

// IsAllowedKey checks if a key is a valid config key.
func IsAllowedKey(key string) bool {
	for _, k := range allowedKeys {
		if k == key {
			return true
		}
	}
	return false
}

// Get returns the value of a config key.
func (c *Config) Get(key string) (string, error) {
	switch key {
	case "api_url":
		return c.APIURL, nil
	case "db_path":
		return c.DBPath, nil
	case "blob_root":
		return c.BlobRoot, nil
	case "tenants_path":
		return c.TenantsPath, nil
	case "log_level":
		return c.LogLevel, nil
	case "backup.workers":
		return strconv.Itoa(c.Backup.Workers), nil
	case "backup.failure_rate_threshold":
		return strconv.FormatFloat(c.Backup.FailureRateThreshold, 'g', -1, 64), nil
	case "backup.max_put_attempts":
		return strconv.Itoa(c.Backup.MaxPutAttempts), nil
	case "backup.gc_grace_hours":
		return strconv.Itoa(c.Backup.GCGraceHours), nil
	case "backup.gc_batch_size":
		return strconv.Itoa(c.Backup.GCBatchSize), nil
	default:
		return "", fmt.Errorf("unknown key: %s", key)
	}
}

// GlobalPath returns the path to the config file.
func GlobalPath() (string, error) {
	if path, ok := overrideConfigPath(); ok {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, configFileName), nil
}

// SetKey reads the TOML file at path, sets key=value, and writes it back.
func SetKey(path, key, value string) error {
	if !IsAllowedKey(key) {
		return fmt.Errorf("unknown key: %s", key)
	}

	data := make(map[string]any)
	if _, err := os.Stat(path); err == nil {
		if _, err := toml.DecodeFile(path, &data); err != nil {
			return fmt.Errorf("parse %s: %w", path, err)
		}
	}

	parsedValue, err := parseSetValue(key, value)
	if err != nil {
		return err
	}
	if err := setNestedKey(data, strings.Split(key, "."), parsedValue); err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	return toml.NewEncoder(f).Encode(data)
}

// Load reads config from the global file and applies env overrides.
func Load() (*Config, error) {
	cfg := Default()

	path, err := GlobalPath()
	if err == nil {
		if _, loadErr := loadFileIfExists(path, &cfg); loadErr != nil {
			return nil, loadErr
		}
	}

	if cfg.DBPath == "" {
		if cwd, err := os.Getwd(); err == nil {
			cfg.DBPath = filepath.Join(cwd, DefaultDBFileName)
		}
	}
	if cfg.BlobRoot == "" {
		cfg.BlobRoot = filepath.Join(filepath.Dir(cfg.DBPath), "blobs")
	}

	if apiURL := os.Getenv("MAILVAULT_API_URL"); apiURL != "" {
		cfg.APIURL = apiURL
	}
	if dbPath := os.Getenv("MAILVAULT_DB"); dbPath != "" {
		cfg.DBPath = dbPath
	}
	if blobRoot := os.Getenv("MAILVAULT_BLOB_ROOT"); blobRoot != "" {
		cfg.BlobRoot = blobRoot
	}
	if tenantsPath := os.Getenv("MAILVAULT_TENANTS"); tenantsPath != "" {
		cfg.TenantsPath = tenantsPath
	}
	if level := os.Getenv("MAILVAULT_LOG_LEVEL"); level != "" {
		cfg.LogLevel = level
	}

	cfg.normalizeBackupDefaults()

	return &cfg, nil
}

func parseSetValue(key, value string) (any, error) {
	value = strings.TrimSpace(value)
	switch key {
	case "backup.workers", "backup.max_put_attempts", "backup.gc_grace_hours", "backup.gc_batch_size":
		parsed, err := strconv.Atoi(value)
		if err != nil || parsed <= 0 {
			return nil, fmt.Errorf("%s must be a positive integer", key)
		}
		return parsed, nil
	case "backup.failure_rate_threshold":
		parsed, err := strconv.ParseFloat(value, 64)
		if err != nil || parsed < 0 || parsed > 1 {
			return nil, fmt.Errorf("%s must be a fraction between 0 and 1", key)
		}
		return parsed, nil
	default:
		return value, nil
	}
}

func setNestedKey(data map[string]any, parts []string, value any) error {
	if len(parts) == 0 {
		return fmt.Errorf("invalid config key")
	}
	if len(parts) == 1 {
		data[parts[0]] = value
		return nil
	}
	childRaw, ok := data[parts[0]]
	if !ok {
		child := map[string]any{}
		data[parts[0]] = child
		return setNestedKey(child, parts[1:], value)
	}
	child, ok := childRaw.(map[string]any)
	if !ok {
		return fmt.Errorf("cannot set nested key %q", strings.Join(parts, "."))
	}
	return setNestedKey(child, parts[1:], value)
}

func (c *Config) normalizeBackupDefaults() {
	if c.Backup.Workers <= 0 {
		c.Backup.Workers = DefaultBackupWorkers
	}
	if c.Backup.FailureRateThreshold < 0 || c.Backup.FailureRateThreshold > 1 {
		c.Backup.FailureRateThreshold = DefaultBackupFailureRateThreshold
	}
	if c.Backup.MaxPutAttempts <= 0 {
		c.Backup.MaxPutAttempts = DefaultBackupMaxPutAttempts
	}
	if c.Backup.GCGraceHours <= 0 {
		c.Backup.GCGraceHours = DefaultBackupGCGraceHours
	}
	if c.Backup.GCBatchSize <= 0 {
		c.Backup.GCBatchSize = DefaultBackupGCBatchSize
	}
}
