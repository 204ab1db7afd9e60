// Package config provides configuration management for the application.
// This file contains validation functions for configuration values.
package config

import (
	"fmt"
	"strings"

	"github.com/reviewgate/reviewgate/pkg/errors"
)

// Validate checks the configuration for values the process cannot start
// with. The first failure is returned; the caller exits with
// errors.ExitCodeConfigValidation.
func Validate(cfg *Config) *errors.AppError {
	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		return errors.New(errors.ErrCodeConfigInvalid,
			fmt.Sprintf("server port out of range: %d", cfg.Server.Port))
	}

	if err := validateQueueURL(cfg.Queue.URL); err != nil {
		return err
	}

	if cfg.Worker.Concurrency < 1 {
		return errors.New(errors.ErrCodeConfigInvalid,
			fmt.Sprintf("worker concurrency must be at least 1, got %d", cfg.Worker.Concurrency))
	}
	if cfg.Worker.LockDurationMS < 1000 {
		return errors.New(errors.ErrCodeConfigInvalid,
			fmt.Sprintf("worker lock duration must be at least 1000ms, got %d", cfg.Worker.LockDurationMS))
	}
	if cfg.Worker.StalledIntervalMS < 1000 {
		return errors.New(errors.ErrCodeConfigInvalid,
			fmt.Sprintf("worker stalled interval must be at least 1000ms, got %d", cfg.Worker.StalledIntervalMS))
	}
	if cfg.Worker.MaxStalledCount < 1 {
		return errors.New(errors.ErrCodeConfigInvalid,
			fmt.Sprintf("worker max stalled count must be at least 1, got %d", cfg.Worker.MaxStalledCount))
	}

	if cfg.Tenant.DefaultSlug == "" {
		return errors.New(errors.ErrCodeConfigInvalid, "default tenant slug cannot be empty")
	}

	if cfg.AI.Enabled && strings.TrimSpace(cfg.AI.APIKey) == "" {
		return errors.New(errors.ErrCodeConfigInvalid,
			"AI augmentation is enabled but AI_API_KEY is not set")
	}

	return nil
}

// validateQueueURL checks the queue backend selector. Only the db:// scheme
// is supported; anything else is a startup failure, not a silent fallback.
func validateQueueURL(url string) *errors.AppError {
	if url == "" {
		return errors.New(errors.ErrCodeConfigInvalid, "QUEUE_URL cannot be empty")
	}
	if !strings.HasPrefix(url, "db://") {
		return errors.New(errors.ErrCodeConfigInvalid,
			"QUEUE_URL scheme not supported, expected db://<name>: "+url)
	}
	if strings.TrimPrefix(url, "db://") == "" {
		return errors.New(errors.ErrCodeConfigInvalid, "QUEUE_URL has empty queue name")
	}
	return nil
}
