// Copyright (c) 2024 The BitFS developers
// Use of this source code is governed by the Open BSV License v5
// that can be found in the LICENSE file.

package config

import "errors"

var (
	// ErrInvalidLogLevel indicates the log level is not recognized.
	ErrInvalidLogLevel = errors.New("config: invalid log level (must be \"debug\", \"info\", \"warn\", or \"error\")")

	// ErrEmptyRepoPath indicates the repository path is empty.
	ErrEmptyRepoPath = errors.New("config: repository path must not be empty")

	// ErrInvalidKDFParams indicates the Argon2id parameters are out of range.
	ErrInvalidKDFParams = errors.New("config: invalid KDF parameters")

	// ErrInvalidWorkers indicates a negative worker count.
	ErrInvalidWorkers = errors.New("config: workers must not be negative")

	// ErrConfigNotFound indicates the configuration file does not exist.
	ErrConfigNotFound = errors.New("config: configuration file not found")

	// ErrInvalidConfigLine indicates a line in the config file is malformed.
	ErrInvalidConfigLine = errors.New("config: invalid configuration line")

	// ErrInvalidValue indicates a value could not be parsed for its key.
	ErrInvalidValue = errors.New("config: invalid value")
)
