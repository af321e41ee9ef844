package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv(configDirEnvKey, t.TempDir())

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.APIURL != DefaultAPIURL {
		t.Errorf("api_url = %q, want %q", cfg.APIURL, DefaultAPIURL)
	}
	if cfg.Backup.Workers != DefaultBackupWorkers {
		t.Errorf("workers = %d, want %d", cfg.Backup.Workers, DefaultBackupWorkers)
	}
	if cfg.Backup.GCGraceHours != DefaultBackupGCGraceHours {
		t.Errorf("gc_grace_hours = %d, want %d", cfg.Backup.GCGraceHours, DefaultBackupGCGraceHours)
	}
	if cfg.DBPath == "" || cfg.BlobRoot == "" {
		t.Errorf("expected derived db_path and blob_root, got %q / %q", cfg.DBPath, cfg.BlobRoot)
	}
}

func TestLoadFileAndEnvOverrides(t *testing.T) {
	dir := t.TempDir()
	t.Setenv(configDirEnvKey, dir)

	content := `db_path = "/var/lib/mailvault/catalog.db"
blob_root = "/var/lib/mailvault/blobs"
log_level = "debug"

[backup]
workers = 8
failure_rate_threshold = 0.25
`
	if err := os.WriteFile(filepath.Join(dir, configFileName), []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("MAILVAULT_DB", "/tmp/override.db")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.DBPath != "/tmp/override.db" {
		t.Errorf("db_path = %q, env override lost", cfg.DBPath)
	}
	if cfg.BlobRoot != "/var/lib/mailvault/blobs" {
		t.Errorf("blob_root = %q", cfg.BlobRoot)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("log_level = %q", cfg.LogLevel)
	}
	if cfg.Backup.Workers != 8 || cfg.Backup.FailureRateThreshold != 0.25 {
		t.Errorf("backup = %+v", cfg.Backup)
	}
	if cfg.Backup.MaxPutAttempts != DefaultBackupMaxPutAttempts {
		t.Errorf("max_put_attempts = %d, want default", cfg.Backup.MaxPutAttempts)
	}
}

func TestSetKeyRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), configFileName)

	if err := SetKey(path, "backup.workers", "6"); err != nil {
		t.Fatalf("set workers: %v", err)
	}
	if err := SetKey(path, "log_level", "warn"); err != nil {
		t.Fatalf("set log_level: %v", err)
	}

	var cfg Config
	if _, err := loadFileIfExists(path, &cfg); err != nil {
		t.Fatalf("reload: %v", err)
	}
	if cfg.Backup.Workers != 6 {
		t.Errorf("workers = %d, want 6", cfg.Backup.Workers)
	}
	if cfg.LogLevel != "warn" {
		t.Errorf("log_level = %q, want warn", cfg.LogLevel)
	}
}

func TestSetKeyRejectsInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), configFileName)

	if err := SetKey(path, "nonsense", "x"); err == nil {
		t.Error("expected error for unknown key")
	}
	if err := SetKey(path, "backup.failure_rate_threshold", "1.5"); err == nil {
		t.Error("expected error for out-of-range threshold")
	}
	if err := SetKey(path, "backup.workers", "-1"); err == nil {
		t.Error("expected error for negative workers")
	}
}

func TestIsAllowedKey(t *testing.T) {
	for _, key := range AllowedKeys() {
		if !IsAllowedKey(key) {
			t.Errorf("allowed key %q rejected", key)
		}
	}
	if IsAllowedKey("backup.nope") {
		t.Error("unknown key accepted")
	}
}
