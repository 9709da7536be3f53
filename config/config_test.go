// Copyright (c) 2024 The BitFS developers
// Use of this source code is governed by the Open BSV License v5
// that can be found in the LICENSE file.

package config

import (
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"

	"github.com/bitfsorg/libvault-go/keyring"
)

// ---------------------------------------------------------------------------
// DefaultConfig tests
// ---------------------------------------------------------------------------

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	tests := []struct {
		name string
		got  interface{}
		want interface{}
	}{
		{"LogLevel", cfg.LogLevel, "info"},
		{"LogFile", cfg.LogFile, ""},
		{"KDFTime", cfg.KDFTime, keyring.ModerateKDFParams.Time},
		{"KDFMemoryKiB", cfg.KDFMemoryKiB, keyring.ModerateKDFParams.MemoryKiB},
		{"KDFThreads", cfg.KDFThreads, keyring.ModerateKDFParams.Threads},
		{"Workers", cfg.Workers, 0},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if tc.got != tc.want {
				t.Errorf("got %v, want %v", tc.got, tc.want)
			}
		})
	}

	if cfg.RepoPath == "" {
		t.Error("RepoPath should not be empty")
	}
}

func TestDefaultConfig_KDFParams(t *testing.T) {
	if got := DefaultConfig().KDFParams(); got != keyring.ModerateKDFParams {
		t.Errorf("KDFParams() = %+v, want %+v", got, keyring.ModerateKDFParams)
	}
}

// ---------------------------------------------------------------------------
// SaveConfig / LoadConfig round-trip tests
// ---------------------------------------------------------------------------

func TestSaveLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config")

	original := Config{
		RepoPath:     "/tmp/test-vault",
		LogLevel:     "debug",
		LogFile:      "/tmp/vault.log",
		KDFTime:      2,
		KDFMemoryKiB: 65536,
		KDFThreads:   2,
		Workers:      3,
	}

	if err := SaveConfig(path, original); err != nil {
		t.Fatalf("SaveConfig: %v", err)
	}

	loaded, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}

	if loaded != original {
		t.Errorf("round trip mismatch:\n got  %+v\n want %+v", loaded, original)
	}
}

func TestSaveConfigCreatesDirectory(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "subdir", "config")

	cfg := DefaultConfig()
	if err := SaveConfig(path, cfg); err != nil {
		t.Fatalf("SaveConfig should create parent dirs: %v", err)
	}

	if _, err := os.Stat(path); err != nil {
		t.Errorf("Config file not created: %v", err)
	}
}

// ---------------------------------------------------------------------------
// LoadConfig error tests
// ---------------------------------------------------------------------------

func TestLoadConfigNotFound(t *testing.T) {
	_, err := LoadConfig("/nonexistent/path/config")
	if !errors.Is(err, ErrConfigNotFound) {
		t.Errorf("LoadConfig nonexistent: got %v, want ErrConfigNotFound", err)
	}
}

func TestLoadConfigInvalidLine(t *testing.T) {
	for _, content := range []string{"this-is-not-key-value\n", " = value\n"} {
		path := filepath.Join(t.TempDir(), "config")
		if err := os.WriteFile(path, []byte(content), 0600); err != nil {
			t.Fatal(err)
		}

		_, err := LoadConfig(path)
		if !errors.Is(err, ErrInvalidConfigLine) {
			t.Errorf("LoadConfig %q: got %v, want ErrInvalidConfigLine", content, err)
		}
	}
}

func TestLoadConfigInvalidNumbers(t *testing.T) {
	for _, content := range []string{
		"kdf.time = fast\n",
		"kdf.memory = -1\n",
		"kdf.threads = 300\n",
		"workers = many\n",
	} {
		path := filepath.Join(t.TempDir(), "config")
		if err := os.WriteFile(path, []byte(content), 0600); err != nil {
			t.Fatal(err)
		}

		_, err := LoadConfig(path)
		if !errors.Is(err, ErrInvalidValue) {
			t.Errorf("LoadConfig %q: got %v, want ErrInvalidValue", content, err)
		}
	}
}

func TestLoadConfigCommentsAndBlanks(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config")

	content := `# This is a comment
repo = /srv/vault

# Another comment
loglevel = debug
`
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}

	if cfg.RepoPath != "/srv/vault" {
		t.Errorf("RepoPath = %q, want %q", cfg.RepoPath, "/srv/vault")
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("LogLevel = %q, want %q", cfg.LogLevel, "debug")
	}
	// Unset fields should retain defaults.
	if cfg.KDFTime != keyring.ModerateKDFParams.Time {
		t.Errorf("KDFTime = %d, want default %d", cfg.KDFTime, keyring.ModerateKDFParams.Time)
	}
}

func TestLoadConfigUnknownKeysIgnored(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config")

	content := "futurekey = futurevalue\nworkers = 8\n"
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig with unknown key: %v", err)
	}
	if cfg.Workers != 8 {
		t.Errorf("Workers = %d, want %d", cfg.Workers, 8)
	}
}

func TestLoadConfig_KeysCaseInsensitive(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config")
	if err := os.WriteFile(path, []byte("LogLevel = warn\nKDF.Time = 5\n"), 0600); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.LogLevel != "warn" || cfg.KDFTime != 5 {
		t.Errorf("got LogLevel=%q KDFTime=%d, want warn/5", cfg.LogLevel, cfg.KDFTime)
	}
}

// ---------------------------------------------------------------------------
// ValidateConfig tests
// ---------------------------------------------------------------------------

func TestValidateConfigDefaults(t *testing.T) {
	cfg := DefaultConfig()
	if err := ValidateConfig(cfg); err != nil {
		t.Errorf("ValidateConfig(DefaultConfig()) = %v, want nil", err)
	}
}

func TestValidateConfigErrors(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr error
	}{
		{
			name:    "empty_repo",
			modify:  func(c *Config) { c.RepoPath = "" },
			wantErr: ErrEmptyRepoPath,
		},
		{
			name:    "bad_loglevel",
			modify:  func(c *Config) { c.LogLevel = "verbose" },
			wantErr: ErrInvalidLogLevel,
		},
		{
			name:    "zero_kdf_time",
			modify:  func(c *Config) { c.KDFTime = 0 },
			wantErr: ErrInvalidKDFParams,
		},
		{
			name:    "tiny_kdf_memory",
			modify:  func(c *Config) { c.KDFMemoryKiB = 1 },
			wantErr: ErrInvalidKDFParams,
		},
		{
			name:    "zero_kdf_threads",
			modify:  func(c *Config) { c.KDFThreads = 0 },
			wantErr: ErrInvalidKDFParams,
		},
		{
			name:    "negative_workers",
			modify:  func(c *Config) { c.Workers = -1 },
			wantErr: ErrInvalidWorkers,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tc.modify(&cfg)
			err := ValidateConfig(cfg)
			if !errors.Is(err, tc.wantErr) {
				t.Errorf("ValidateConfig: got %v, want %v", err, tc.wantErr)
			}
		})
	}
}

func TestValidateConfig_KDFErrorWrapsKeyring(t *testing.T) {
	cfg := DefaultConfig()
	cfg.KDFTime = 0
	if err := ValidateConfig(cfg); !errors.Is(err, keyring.ErrInvalidKDFParams) {
		t.Errorf("ValidateConfig: got %v, want keyring.ErrInvalidKDFParams in chain", err)
	}
}

func TestValidateConfigValidLogLevels(t *testing.T) {
	for _, level := range []string{"debug", "info", "warn", "error"} {
		cfg := DefaultConfig()
		cfg.LogLevel = level
		if err := ValidateConfig(cfg); err != nil {
			t.Errorf("ValidateConfig with loglevel %q: %v", level, err)
		}
	}
}

func TestValidateConfig_LogLevelCaseInsensitive(t *testing.T) {
	levels := []string{"INFO", "Debug", "WARN", "Error", "dEbUg"}
	for _, level := range levels {
		t.Run(level, func(t *testing.T) {
			cfg := DefaultConfig()
			cfg.LogLevel = level
			if err := ValidateConfig(cfg); err != nil {
				t.Errorf("ValidateConfig with LogLevel %q: %v", level, err)
			}
		})
	}
}

// ---------------------------------------------------------------------------
// ConfigPath tests
// ---------------------------------------------------------------------------

func TestConfigPath(t *testing.T) {
	got := ConfigPath("/home/user/photos")
	want := filepath.Join("/home/user/photos", ".vault", "config")
	if got != want {
		t.Errorf("ConfigPath = %q, want %q", got, want)
	}
}

func TestConfigPath_WithTrailingSlash(t *testing.T) {
	got := ConfigPath("/foo/")
	want := filepath.Join("/foo", ".vault", "config")
	if got != want {
		t.Errorf("ConfigPath(%q) = %q, want %q", "/foo/", got, want)
	}
}

func TestDefaultRepoPath_EndsWith_DotSecurevault(t *testing.T) {
	dir := DefaultRepoPath()
	if !strings.HasSuffix(dir, ".securevault") {
		t.Errorf("DefaultRepoPath() = %q, want suffix %q", dir, ".securevault")
	}
}

// ---------------------------------------------------------------------------
// LoadConfig parser edge cases
// ---------------------------------------------------------------------------

func TestLoadConfig_EmptyValue(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config")

	if err := os.WriteFile(path, []byte("logfile=\n"), 0600); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.LogFile != "" {
		t.Errorf("LogFile = %q, want empty string", cfg.LogFile)
	}
}

func TestLoadConfig_MultipleEquals(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config")

	// parseKeyValue should split on the first '=' only.
	if err := os.WriteFile(path, []byte("logfile=/tmp/a=b.log\n"), 0600); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.LogFile != "/tmp/a=b.log" {
		t.Errorf("LogFile = %q, want %q", cfg.LogFile, "/tmp/a=b.log")
	}
}

func TestLoadConfig_WhitespaceAroundEquals(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config")

	if err := os.WriteFile(path, []byte("  repo = /data/vault  \n"), 0600); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.RepoPath != "/data/vault" {
		t.Errorf("RepoPath = %q, want %q", cfg.RepoPath, "/data/vault")
	}
}

func TestLoadConfig_PermissionDenied(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("permission test not reliable on Windows")
	}
	if os.Getuid() == 0 {
		t.Skip("cannot test permission denial as root")
	}

	dir := t.TempDir()
	path := filepath.Join(dir, "config")

	if err := os.WriteFile(path, []byte("workers=2\n"), 0600); err != nil {
		t.Fatal(err)
	}
	if err := os.Chmod(path, 0000); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { os.Chmod(path, 0600) })

	_, err := LoadConfig(path)
	if err == nil {
		t.Fatal("LoadConfig on unreadable file: expected error, got nil")
	}
	if errors.Is(err, ErrConfigNotFound) {
		t.Error("LoadConfig on unreadable file should not return ErrConfigNotFound")
	}
}

// ---------------------------------------------------------------------------
// SaveConfig output format
// ---------------------------------------------------------------------------

func TestSaveConfig_OutputContainsHeader(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config")

	if err := SaveConfig(path, DefaultConfig()); err != nil {
		t.Fatalf("SaveConfig: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if !strings.Contains(string(data), "# Secure Vault Configuration") {
		t.Error("saved config should contain header '# Secure Vault Configuration'")
	}
}

func TestSaveConfig_OutputContainsAllKeys(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config")

	if err := SaveConfig(path, DefaultConfig()); err != nil {
		t.Fatalf("SaveConfig: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	content := string(data)

	keys := []string{"repo", "loglevel", "logfile", "kdf.time", "kdf.memory", "kdf.threads", "workers"}
	for _, key := range keys {
		if !strings.Contains(content, key+" = ") {
			t.Errorf("saved config should contain key %q", key)
		}
	}
}

// ---------------------------------------------------------------------------
// NewLogger tests
// ---------------------------------------------------------------------------

func TestNewLogger_Stderr(t *testing.T) {
	cfg := DefaultConfig()
	cfg.LogLevel = "WARN"

	logger, closeFn, err := NewLogger(cfg)
	if err != nil {
		t.Fatalf("NewLogger: %v", err)
	}
	defer closeFn()

	if logger.GetLevel() != logrus.WarnLevel {
		t.Errorf("level = %v, want %v", logger.GetLevel(), logrus.WarnLevel)
	}
	if logger.Out != os.Stderr {
		t.Error("logger should write to stderr when LogFile is empty")
	}
}

func TestNewLogger_File(t *testing.T) {
	cfg := DefaultConfig()
	cfg.LogFile = filepath.Join(t.TempDir(), "logs", "vault.log")

	logger, closeFn, err := NewLogger(cfg)
	if err != nil {
		t.Fatalf("NewLogger: %v", err)
	}
	logger.WithField("blocks", 3).Info("import complete")
	if err := closeFn(); err != nil {
		t.Fatalf("close: %v", err)
	}

	data, err := os.ReadFile(cfg.LogFile)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if !strings.Contains(string(data), `"msg":"import complete"`) {
		t.Errorf("log file missing entry: %s", data)
	}
	if !strings.Contains(string(data), `"blocks":3`) {
		t.Errorf("log file missing field: %s", data)
	}
}

func TestNewLogger_InvalidLevel(t *testing.T) {
	cfg := DefaultConfig()
	cfg.LogLevel = "verbose"
	if _, _, err := NewLogger(cfg); !errors.Is(err, ErrInvalidLogLevel) {
		t.Errorf("NewLogger: got %v, want ErrInvalidLogLevel", err)
	}
}
