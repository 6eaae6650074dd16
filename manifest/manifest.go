// Package manifest handles mirror.toml runtime configuration.
package manifest

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"

	"github.com/chazu/mirror/accessor"
)

// Manifest represents a mirror.toml configuration.
type Manifest struct {
	Promotion Promotion `toml:"promotion"`
	Warmup    Warmup    `toml:"warmup"`
	Logging   Logging   `toml:"logging"`

	// Dir is the directory containing the mirror.toml file (set at load time).
	Dir string `toml:"-"`
}

// Promotion tunes the adaptive fast-path swap.
type Promotion struct {
	Threshold uint64 `toml:"threshold"`
	Disabled  bool   `toml:"disabled"`
}

// Warmup configures profile-driven eager promotion.
type Warmup struct {
	Profile        string `toml:"profile"`
	History        string `toml:"history"`
	MinInvocations uint64 `toml:"min-invocations"`
	MinRuns        int    `toml:"min-runs"`
}

// Logging configures CLI log output.
type Logging struct {
	Verbosity int `toml:"verbosity"`
}

// Load parses a mirror.toml file from the given directory.
func Load(dir string) (*Manifest, error) {
	path := filepath.Join(dir, "mirror.toml")
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}

	var m Manifest
	if err := toml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse error in %s: %w", path, err)
	}

	m.Dir, err = filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("cannot resolve path %s: %w", dir, err)
	}

	applyDefaults(&m)
	return &m, nil
}

// FindAndLoad walks up from startDir to find a mirror.toml file,
// then loads and returns the manifest. Returns nil if no manifest is found.
func FindAndLoad(startDir string) (*Manifest, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return nil, err
	}

	for {
		path := filepath.Join(dir, "mirror.toml")
		if _, err := os.Stat(path); err == nil {
			return Load(dir)
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			// Reached root
			return nil, nil
		}
		dir = parent
	}
}

// Default returns the configuration used when no mirror.toml exists.
func Default() *Manifest {
	m := &Manifest{}
	applyDefaults(m)
	return m
}

func applyDefaults(m *Manifest) {
	if m.Promotion.Threshold == 0 {
		m.Promotion.Threshold = accessor.DefaultPromotionThreshold
	}
	if m.Warmup.MinInvocations == 0 {
		m.Warmup.MinInvocations = m.Promotion.Threshold
	}
	if m.Warmup.MinRuns == 0 {
		m.Warmup.MinRuns = 1
	}
}

// Policy converts the promotion section into an accessor policy.
func (m *Manifest) Policy() accessor.Policy {
	return accessor.Policy{
		PromotionThreshold: m.Promotion.Threshold,
		DisablePromotion:   m.Promotion.Disabled,
	}
}

// ProfilePath returns the absolute path of the warmup profile, or ""
// when none is configured.
func (m *Manifest) ProfilePath() string {
	return m.resolve(m.Warmup.Profile)
}

// HistoryPath returns the absolute path of the history database, or ""
// when none is configured.
func (m *Manifest) HistoryPath() string {
	return m.resolve(m.Warmup.History)
}

func (m *Manifest) resolve(p string) string {
	if p == "" {
		return ""
	}
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(m.Dir, p)
}
