// Package project loads run configuration from mend.toml and environment
// overrides. The file is optional: an absent manifest yields defaults.
package project

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/BurntSushi/toml"
)

// ReviewMode selects how decisions are obtained.
type ReviewMode string

const (
	// ModeAuto: interactive when stdout is a terminal, reject otherwise.
	ModeAuto ReviewMode = "auto"
	// ModeInteractive: always prompt.
	ModeInteractive ReviewMode = "interactive"
	// ModeAccept: accept every candidate without prompting.
	ModeAccept ReviewMode = "accept"
	// ModeReject: reject every candidate without prompting.
	ModeReject ReviewMode = "reject"
	// ModeSkip: defer every candidate without prompting.
	ModeSkip ReviewMode = "skip"
)

// ErrBadMode indicates an unknown [review].mode value.
var ErrBadMode = errors.New("invalid review mode")

// Config is the resolved run configuration.
type Config struct {
	Mode        ReviewMode
	FailStatus  int
	Color       string // auto|on|off
	History     bool
	HistoryKeep int
	// ForceUpdate makes Update-stage assertions block for reconciliation
	// instead of deferring to the caller's own comparison.
	ForceUpdate bool
}

// Default returns the configuration used when no manifest exists.
func Default() Config {
	return Config{
		Mode:        ModeAuto,
		FailStatus:  1,
		Color:       "auto",
		History:     true,
		HistoryKeep: 20,
	}
}

type manifest struct {
	Review struct {
		Mode        string `toml:"mode"`
		FailStatus  int    `toml:"fail_status"`
		Color       string `toml:"color"`
		History     *bool  `toml:"history"`
		HistoryKeep int    `toml:"history_keep"`
	} `toml:"review"`
	Update struct {
		Force bool `toml:"force"`
	} `toml:"update"`
}

// Load parses a mend.toml manifest, layering it over defaults.
func Load(path string) (Config, error) {
	cfg := Default()

	var m manifest
	meta, err := toml.DecodeFile(path, &m)
	if err != nil {
		return cfg, fmt.Errorf("%s: failed to parse TOML: %w", path, err)
	}

	if meta.IsDefined("review", "mode") {
		mode, err := ParseMode(m.Review.Mode)
		if err != nil {
			return cfg, fmt.Errorf("%s: %w", path, err)
		}
		cfg.Mode = mode
	}
	if meta.IsDefined("review", "fail_status") {
		cfg.FailStatus = m.Review.FailStatus
	}
	if meta.IsDefined("review", "color") {
		cfg.Color = m.Review.Color
	}
	if m.Review.History != nil {
		cfg.History = *m.Review.History
	}
	if meta.IsDefined("review", "history_keep") {
		cfg.HistoryKeep = m.Review.HistoryKeep
	}
	if meta.IsDefined("update", "force") {
		cfg.ForceUpdate = m.Update.Force
	}
	return cfg, nil
}

// Locate climbs from dir looking for mend.toml; reports false when no
// manifest exists up to the filesystem root.
func Locate(dir string) (string, bool) {
	for {
		candidate := filepath.Join(dir, "mend.toml")
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			return candidate, true
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", false
		}
		dir = parent
	}
}

// Resolve loads the nearest manifest relative to dir (defaults when none)
// and applies environment overrides on top.
func Resolve(dir string) (Config, error) {
	cfg := Default()
	if path, ok := Locate(dir); ok {
		loaded, err := Load(path)
		if err != nil {
			return cfg, err
		}
		cfg = loaded
	}
	cfg.ApplyEnv(os.LookupEnv)
	return cfg, nil
}

// ApplyEnv layers environment overrides onto the config:
// MEND_MODE, MEND_UPDATE, MEND_NOCOLOR, MEND_FAIL_STATUS.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) {
	if v, ok := lookup("MEND_MODE"); ok {
		if mode, err := ParseMode(v); err == nil {
			c.Mode = mode
		}
	}
	if v, ok := lookup("MEND_UPDATE"); ok && v != "" && v != "0" && v != "false" {
		c.ForceUpdate = true
	}
	if _, ok := lookup("MEND_NOCOLOR"); ok {
		c.Color = "off"
	}
	if v, ok := lookup("MEND_FAIL_STATUS"); ok {
		if status, err := strconv.Atoi(v); err == nil && status > 0 {
			c.FailStatus = status
		}
	}
}

// ParseMode validates a review mode string.
func ParseMode(value string) (ReviewMode, error) {
	switch ReviewMode(value) {
	case ModeAuto, ModeInteractive, ModeAccept, ModeReject, ModeSkip:
		return ReviewMode(value), nil
	default:
		return "", fmt.Errorf("%w %q (expected auto|interactive|accept|reject|skip)", ErrBadMode, value)
	}
}
