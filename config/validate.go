// Copyright (c) 2024 The BitFS developers
// Use of this source code is governed by the Open BSV License v5
// that can be found in the LICENSE file.

package config

import (
	"fmt"
	"strings"
)

// validLogLevels lists the accepted log level strings.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// ValidateConfig checks that all configuration values are within acceptable
// ranges and returns the first error encountered, or nil if valid.
func ValidateConfig(cfg Config) error {
	if cfg.RepoPath == "" {
		return ErrEmptyRepoPath
	}

	if !validLogLevels[strings.ToLower(cfg.LogLevel)] {
		return ErrInvalidLogLevel
	}

	if err := cfg.KDFParams().Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidKDFParams, err)
	}

	if cfg.Workers < 0 {
		return ErrInvalidWorkers
	}

	return nil
}
