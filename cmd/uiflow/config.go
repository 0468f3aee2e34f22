// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package main

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/jeranaias/uiflow/series"
)

// =============================================================================
// DEMO CONFIGURATION
// =============================================================================

// Config controls the demo workload. Loaded from TOML with built-in
// defaults; every field is optional.
type Config struct {
	// Policy is the series policy the number keys submit to by default:
	// "default", "queue", "cancelRunning" or "cancelTentative".
	Policy string `toml:"policy"`

	// TaskMillis is the simulated duration of one task in milliseconds.
	TaskMillis int `toml:"task_millis"`

	// FailEvery makes every Nth task fail with a demo issue (0 = never).
	FailEvery int `toml:"fail_every"`
}

// DefaultConfig returns the built-in defaults.
func DefaultConfig() Config {
	return Config{
		Policy:     "queue",
		TaskMillis: 1500,
		FailEvery:  4,
	}
}

// LoadConfig reads uiflow.toml from the working directory or
// ~/.uiflow/uiflow.toml, first hit wins. A missing file is not an
// error; defaults apply.
func LoadConfig() (Config, error) {
	cfg := DefaultConfig()

	paths := []string{"uiflow.toml"}
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".uiflow", "uiflow.toml"))
	}

	for _, path := range paths {
		if _, err := os.Stat(path); err != nil {
			continue
		}
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return cfg, fmt.Errorf("failed to parse %s: %w", path, err)
		}
		break
	}

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate checks ranges and the policy name.
func (c *Config) Validate() error {
	if _, err := c.SeriesPolicy(); err != nil {
		return err
	}
	if c.TaskMillis < 0 {
		return fmt.Errorf("task_millis must not be negative, got %d", c.TaskMillis)
	}
	if c.FailEvery < 0 {
		return fmt.Errorf("fail_every must not be negative, got %d", c.FailEvery)
	}
	return nil
}

// TaskDuration returns the configured task duration.
func (c *Config) TaskDuration() time.Duration {
	return time.Duration(c.TaskMillis) * time.Millisecond
}

// SeriesPolicy maps the configured policy name to a series.Policy.
func (c *Config) SeriesPolicy() (series.Policy, error) {
	switch c.Policy {
	case "", "queue":
		return series.PolicyQueue, nil
	case "default":
		return series.PolicyDefault, nil
	case "cancelRunning":
		return series.PolicyCancelRunning, nil
	case "cancelTentative":
		return series.PolicyCancelTentative, nil
	default:
		return series.PolicyDefault, fmt.Errorf("unknown policy %q", c.Policy)
	}
}
