// Copyright (c) 2024 The BitFS developers
// Use of this source code is governed by the Open BSV License v5
// that can be found in the LICENSE file.

// Package config loads and saves repository settings.
//
// Settings live in a plain "key = value" file under the repository's meta
// directory. Blank lines and lines starting with '#' are ignored, unknown
// keys are skipped, and keys missing from the file keep their defaults.
package config

import (
	"bufio"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/bitfsorg/libvault-go/keyring"
)

const (
	// MetaDirName is the hidden directory inside a repository.
	MetaDirName = ".vault"

	configFileName = "config"
)

// Config holds repository settings.
type Config struct {
	RepoPath string
	LogLevel string
	LogFile  string

	// Argon2id cost used when a new master key is wrapped. Existing records
	// keep the parameters they were created with.
	KDFTime      uint32
	KDFMemoryKiB uint32
	KDFThreads   uint8

	// Workers bounds batch import parallelism. Zero means GOMAXPROCS.
	Workers int
}

// DefaultRepoPath returns ~/.securevault, or ".securevault" if the home
// directory cannot be determined.
func DefaultRepoPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".securevault"
	}
	return filepath.Join(home, ".securevault")
}

// DefaultConfig returns settings with the moderate KDF tier.
func DefaultConfig() Config {
	return Config{
		RepoPath:     DefaultRepoPath(),
		LogLevel:     "info",
		KDFTime:      keyring.ModerateKDFParams.Time,
		KDFMemoryKiB: keyring.ModerateKDFParams.MemoryKiB,
		KDFThreads:   keyring.ModerateKDFParams.Threads,
	}
}

// KDFParams returns the configured Argon2id parameters.
func (c Config) KDFParams() keyring.KDFParams {
	return keyring.KDFParams{
		Time:      c.KDFTime,
		MemoryKiB: c.KDFMemoryKiB,
		Threads:   c.KDFThreads,
	}
}

// ConfigPath returns the config file path for a repository.
func ConfigPath(repoPath string) string {
	return filepath.Join(repoPath, MetaDirName, configFileName)
}

// LoadConfig reads the config file at path on top of DefaultConfig.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()

	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return cfg, fmt.Errorf("%w: %s", ErrConfigNotFound, path)
		}
		return cfg, fmt.Errorf("config: open %s: %w", path, err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		key, value, err := parseKeyValue(line)
		if err != nil {
			return cfg, fmt.Errorf("%w: line %d: %q", ErrInvalidConfigLine, lineNo, line)
		}
		if err := applyKey(&cfg, key, value); err != nil {
			return cfg, fmt.Errorf("line %d: %w", lineNo, err)
		}
	}
	if err := scanner.Err(); err != nil {
		return cfg, fmt.Errorf("config: read %s: %w", path, err)
	}

	return cfg, nil
}

// parseKeyValue splits a line on its first '='.
func parseKeyValue(line string) (string, string, error) {
	key, value, ok := strings.Cut(line, "=")
	if !ok {
		return "", "", ErrInvalidConfigLine
	}
	key = strings.ToLower(strings.TrimSpace(key))
	if key == "" {
		return "", "", ErrInvalidConfigLine
	}
	return key, strings.TrimSpace(value), nil
}

func applyKey(cfg *Config, key, value string) error {
	switch key {
	case "repo":
		cfg.RepoPath = value
	case "loglevel":
		cfg.LogLevel = value
	case "logfile":
		cfg.LogFile = value
	case "kdf.time":
		n, err := strconv.ParseUint(value, 10, 32)
		if err != nil {
			return fmt.Errorf("%w: kdf.time: %w", ErrInvalidValue, err)
		}
		cfg.KDFTime = uint32(n)
	case "kdf.memory":
		n, err := strconv.ParseUint(value, 10, 32)
		if err != nil {
			return fmt.Errorf("%w: kdf.memory: %w", ErrInvalidValue, err)
		}
		cfg.KDFMemoryKiB = uint32(n)
	case "kdf.threads":
		n, err := strconv.ParseUint(value, 10, 8)
		if err != nil {
			return fmt.Errorf("%w: kdf.threads: %w", ErrInvalidValue, err)
		}
		cfg.KDFThreads = uint8(n)
	case "workers":
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("%w: workers: %w", ErrInvalidValue, err)
		}
		cfg.Workers = n
	}
	return nil
}

// SaveConfig writes cfg to path, creating parent directories as needed.
func SaveConfig(path string, cfg Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("config: create directory: %w", err)
	}

	var b strings.Builder
	b.WriteString("# Secure Vault Configuration\n\n")
	fmt.Fprintf(&b, "repo = %s\n", cfg.RepoPath)
	fmt.Fprintf(&b, "loglevel = %s\n", cfg.LogLevel)
	fmt.Fprintf(&b, "logfile = %s\n", cfg.LogFile)
	b.WriteString("\n# Argon2id cost for newly wrapped keys (memory in KiB)\n")
	fmt.Fprintf(&b, "kdf.time = %d\n", cfg.KDFTime)
	fmt.Fprintf(&b, "kdf.memory = %d\n", cfg.KDFMemoryKiB)
	fmt.Fprintf(&b, "kdf.threads = %d\n", cfg.KDFThreads)
	b.WriteString("\n")
	fmt.Fprintf(&b, "workers = %d\n", cfg.Workers)

	if err := os.WriteFile(path, []byte(b.String()), 0600); err != nil {
		return fmt.Errorf("config: write %s: %w", path, err)
	}
	return nil
}
