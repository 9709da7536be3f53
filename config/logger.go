// Copyright (c) 2024 The BitFS developers
// Use of this source code is governed by the Open BSV License v5
// that can be found in the LICENSE file.

package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"
)

// NewLogger builds a logger from the LogLevel and LogFile settings. Output
// goes to stderr when LogFile is empty. The returned closer releases the
// log file and is never nil.
func NewLogger(cfg Config) (*logrus.Logger, func() error, error) {
	level, err := logrus.ParseLevel(strings.ToLower(cfg.LogLevel))
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %q", ErrInvalidLogLevel, cfg.LogLevel)
	}

	logger := logrus.New()
	logger.SetLevel(level)
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	if cfg.LogFile == "" {
		logger.SetOutput(os.Stderr)
		return logger, func() error { return nil }, nil
	}

	if err := os.MkdirAll(filepath.Dir(cfg.LogFile), 0700); err != nil {
		return nil, nil, fmt.Errorf("config: create log directory: %w", err)
	}
	f, err := os.OpenFile(cfg.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
	if err != nil {
		return nil, nil, fmt.Errorf("config: open log file: %w", err)
	}
	logger.SetOutput(f)
	logger.SetFormatter(&logrus.JSONFormatter{})
	return logger, f.Close, nil
}
