// Package config holds the typed configuration for attention routing:
// router parameters, keyword mappings, overrides, and the optional user
// config. All config is validated JSON/YAML parsed into structs; unknown
// keys are ignored (no warning is logged for them) and missing keys take
// documented defaults.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"attnroute/internal/logging"
)

// Category classifies a file for decay purposes.
type Category string

const (
	CategoryCode     Category = "code"
	CategoryProse    Category = "prose"
	CategoryMarkdown Category = "markdown"
	CategoryMixed    Category = "mixed"
)

// ValidCategory reports whether c is a known category.
func ValidCategory(c Category) bool {
	switch c {
	case CategoryCode, CategoryProse, CategoryMarkdown, CategoryMixed:
		return true
	}
	return false
}

// Config is the full router configuration.
type Config struct {
	// Tier thresholds
	HotThreshold  float64 // >= full file injection (default 0.8)
	WarmThreshold float64 // >= TOC injection (default 0.25)

	// Score dynamics
	DecayRates       map[Category]float64 // per-category decay multiplier
	ScoreEpsilon     float64              // entries below this are dropped (default 0.01)
	ScoreCeiling     float64              // clamp after every writing phase (default 1.2)
	CoactivationHop1 float64              // depth-1 BFS bonus factor (default 0.35)
	CoactivationHop2 float64              // depth-2 BFS bonus factor (default 0.15)
	LearnedBoost     float64              // learner boost factor (default 0.35)
	PredictorBoost   float64              // pre-warm bonus per confidence unit (default 0.20)
	PredictorTopN    int                  // predictions considered (default 5)
	PinnedFloorBump  float64              // pinned floor = warm + this (default 0.01)
	DemotedPenalty   float64              // demoted multiplier (default 0.5)

	// Tier capacity
	MaxHot  int // default 3
	MaxWarm int // default 5

	// Assembly budgets
	MaxContextChars int // total blob cap (default 20000)
	PerFileChars    int // hot file cap (default 8000)

	// Deadlines
	TurnDeadline    time.Duration // soft (default 45ms)
	BFSBudget       time.Duration // phase 4 (default 8ms)
	PredictorBudget time.Duration // phase 7 (default 5ms)

	// Behavior lists
	Pinned  []string
	Demoted []string

	// Keyword map
	Keywords []KeywordEntry

	// Purge: the router does not read this field. A scored file missing on
	// disk has its score zeroed during assembly, and the next turn's decay
	// removes the entry.
	MissingFilePurgeTurns int
}

// Default returns the documented default configuration.
func Default() *Config {
	return &Config{
		HotThreshold:  0.8,
		WarmThreshold: 0.25,
		DecayRates: map[Category]float64{
			CategoryCode:     0.85,
			CategoryProse:    0.70,
			CategoryMarkdown: 0.75,
			CategoryMixed:    0.80,
		},
		ScoreEpsilon:          0.01,
		ScoreCeiling:          1.2,
		CoactivationHop1:      0.35,
		CoactivationHop2:      0.15,
		LearnedBoost:          0.35,
		PredictorBoost:        0.20,
		PredictorTopN:         5,
		PinnedFloorBump:       0.01,
		DemotedPenalty:        0.5,
		MaxHot:                3,
		MaxWarm:               5,
		MaxContextChars:       20000,
		PerFileChars:          8000,
		TurnDeadline:          45 * time.Millisecond,
		BFSBudget:             8 * time.Millisecond,
		PredictorBudget:       5 * time.Millisecond,
		MissingFilePurgeTurns: 1,
	}
}

// DecayFor returns the decay rate for a category, falling back to mixed.
func (c *Config) DecayFor(cat Category) float64 {
	if rate, ok := c.DecayRates[cat]; ok {
		return rate
	}
	return c.DecayRates[CategoryMixed]
}

// IsPinned reports whether path is in the pinned list.
func (c *Config) IsPinned(path string) bool {
	for _, p := range c.Pinned {
		if p == path {
			return true
		}
	}
	return false
}

// IsDemoted reports whether path is in the demoted list.
func (c *Config) IsDemoted(path string) bool {
	for _, p := range c.Demoted {
		if p == path {
			return true
		}
	}
	return false
}

// PinnedFloor is the minimum score a pinned file holds on exit of any phase.
func (c *Config) PinnedFloor() float64 {
	return c.WarmThreshold + c.PinnedFloorBump
}

// overridesFile mirrors router_overrides.json. Pointer fields distinguish
// "absent" from zero.
type overridesFile struct {
	HotThreshold    *float64           `json:"hot_threshold"`
	WarmThreshold   *float64           `json:"warm_threshold"`
	DecayRates      map[string]float64 `json:"decay_rates"`
	MaxHot          *int               `json:"max_hot"`
	MaxWarm         *int               `json:"max_warm"`
	MaxContextChars *int               `json:"max_context_chars"`
	PerFileChars    *int               `json:"per_file_chars"`
	DemotedPenalty  *float64           `json:"demoted_penalty"`
	Pinned          []string           `json:"pinned"`
	Demoted         []string           `json:"demoted"`
}

// Load builds a Config from defaults, the keyword file, and the optional
// overrides file. Missing files are fine; malformed entries are skipped.
func Load(keywordsPath, overridesPath string) *Config {
	timer := logging.StartTimer(logging.CategoryConfig, "config.Load")
	defer timer.Stop()

	cfg := Default()
	cfg.Keywords = LoadKeywords(keywordsPath)
	applyOverrides(cfg, overridesPath)
	return cfg
}

func applyOverrides(cfg *Config, path string) {
	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			logging.Get(logging.CategoryConfig).Warnw("cannot read overrides", "path", path, "err", err)
		}
		return
	}

	var ov overridesFile
	if err := json.Unmarshal(data, &ov); err != nil {
		logging.Get(logging.CategoryConfig).Warnw("malformed overrides, ignoring", "path", path, "err", err)
		return
	}

	if ov.HotThreshold != nil {
		cfg.HotThreshold = *ov.HotThreshold
	}
	if ov.WarmThreshold != nil {
		cfg.WarmThreshold = *ov.WarmThreshold
	}
	for cat, rate := range ov.DecayRates {
		if !ValidCategory(Category(cat)) {
			logging.Get(logging.CategoryConfig).Warnw("unknown decay category, skipping", "category", cat)
			continue
		}
		if rate <= 0 || rate > 1 {
			logging.Get(logging.CategoryConfig).Warnw("decay rate out of range, skipping", "category", cat, "rate", rate)
			continue
		}
		cfg.DecayRates[Category(cat)] = rate
	}
	if ov.MaxHot != nil && *ov.MaxHot > 0 {
		cfg.MaxHot = *ov.MaxHot
	}
	if ov.MaxWarm != nil && *ov.MaxWarm > 0 {
		cfg.MaxWarm = *ov.MaxWarm
	}
	if ov.MaxContextChars != nil && *ov.MaxContextChars > 0 {
		cfg.MaxContextChars = *ov.MaxContextChars
	}
	if ov.PerFileChars != nil && *ov.PerFileChars > 0 {
		cfg.PerFileChars = *ov.PerFileChars
	}
	if ov.DemotedPenalty != nil && *ov.DemotedPenalty >= 0 && *ov.DemotedPenalty <= 1 {
		cfg.DemotedPenalty = *ov.DemotedPenalty
	}
	if ov.Pinned != nil {
		cfg.Pinned = ov.Pinned
	}
	if ov.Demoted != nil {
		cfg.Demoted = ov.Demoted
	}
}

// WriteDefaultOverrides writes a skeleton overrides file for `attnroute init`.
func WriteDefaultOverrides(path string) error {
	skeleton := map[string]any{
		"hot_threshold":     0.8,
		"warm_threshold":    0.25,
		"max_hot":           3,
		"max_warm":          5,
		"max_context_chars": 20000,
		"pinned":            []string{},
		"demoted":           []string{},
	}
	data, err := json.MarshalIndent(skeleton, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal overrides skeleton: %w", err)
	}
	return os.WriteFile(path, append(data, '\n'), 0o644)
}
