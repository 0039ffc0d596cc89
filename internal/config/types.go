package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

type Config struct {
	Telegram  TelegramConfig  `json:"telegram"`
	Logging   LoggingConfig   `json:"logging"`
	Storage   StorageConfig   `json:"storage"`
	Broadcast BroadcastConfig `json:"broadcast"`
	Joins     JoinsConfig     `json:"joins"`
}

type TelegramConfig struct {
	// Token is the controlling bot's token. May also come from the
	// BOT_TOKEN environment variable (takes precedence when set).
	Token string `json:"token"`
	// PollTimeout is a Go duration string (e.g. "10s", "2m").
	PollTimeout string `json:"poll_timeout"`
	// NotifyRatePerSec caps operator notifications per user. Default 1.
	NotifyRatePerSec int `json:"notify_rate_per_sec,omitempty"`
}

type LoggingConfig struct {
	Level   string      `json:"level"`
	Console bool        `json:"console"`
	File    LoggingFile `json:"file"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// StorageConfig controls the per-user document store.
//
// Example:
//
//	"storage": { "driver": "file", "path": "./blastbot_users" }
type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // Go duration string (sqlite)
}

// BroadcastConfig controls the broadcast registry housekeeping.
//
// All durations are Go duration strings.
type BroadcastConfig struct {
	// SweepInterval is how often terminal jobs are swept. Default "10m".
	SweepInterval string `json:"sweep_interval,omitempty"`
	// SweepMaxAge is how long a terminal job stays visible. Default "120m",
	// so "view last result" keeps working for a while after completion.
	SweepMaxAge string `json:"sweep_max_age,omitempty"`
}

// JoinsConfig carries the flood-protection policy for the auto-join worker.
// Thresholds are product policy, not platform-documented limits, so they are
// configurable rather than hard-coded.
type JoinsConfig struct {
	// PerTargetMin/Max bound the pause between target accounts within one
	// request, in seconds. Defaults 10/15.
	PerTargetMin int `json:"per_target_min,omitempty"`
	PerTargetMax int `json:"per_target_max,omitempty"`
	// BetweenMin/Max bound the pause between distinct join requests, in
	// seconds. Defaults 5/10.
	BetweenMin int `json:"between_min,omitempty"`
	BetweenMax int `json:"between_max,omitempty"`
	// Keywords are the join-trigger phrases looked for in mentioned messages.
	Keywords []string `json:"keywords,omitempty"`
}

func ParseDurationField(path, raw string) (time.Duration, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q: %w", path, raw, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("%s: duration must be >= 0", path)
	}
	return d, nil
}

func ParseDurationOrDefault(path, raw string, def time.Duration) (time.Duration, error) {
	d, err := ParseDurationField(path, raw)
	if err != nil {
		return 0, err
	}
	if d <= 0 {
		return def, nil
	}
	return d, nil
}

// Validate checks the parts of the config that would otherwise fail deep
// inside a service at an inconvenient time.
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("config is nil")
	}
	if _, err := ParseDurationField("telegram.poll_timeout", c.Telegram.PollTimeout); err != nil {
		return err
	}
	if _, err := ParseDurationField("storage.busy_timeout", c.Storage.BusyTimeout); err != nil {
		return err
	}
	if _, err := ParseDurationField("broadcast.sweep_interval", c.Broadcast.SweepInterval); err != nil {
		return err
	}
	if _, err := ParseDurationField("broadcast.sweep_max_age", c.Broadcast.SweepMaxAge); err != nil {
		return err
	}
	return nil
}
