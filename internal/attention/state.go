package attention

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"attnroute/internal/logging"
	"attnroute/internal/telemetry"
)

// StateVersion is bumped when the on-disk schema changes. Unknown versions
// are discarded and rebuilt empty.
const StateVersion = 1

// State is the session-local attention state: score and hot-streak per file.
// The router exclusively reads and writes it during a turn.
type State struct {
	Version    int                `json:"version"`
	TurnCount  int                `json:"turn_count"`
	LastUpdate time.Time          `json:"last_update"`
	Scores     map[string]float64 `json:"scores"`
	Streaks    map[string]int     `json:"streaks"`
}

// NewState returns an empty attention state.
func NewState() *State {
	return &State{
		Version: StateVersion,
		Scores:  map[string]float64{},
		Streaks: map[string]int{},
	}
}

// LoadState reads attn_state.json. A missing, corrupt, or version-mismatched
// file yields a fresh empty state: producing empty context is always safe.
func LoadState(path string) *State {
	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			logging.Get(logging.CategoryState).Warnw("cannot read attention state, starting empty", "path", path, "err", err)
		}
		return NewState()
	}

	var s State
	if err := json.Unmarshal(data, &s); err != nil {
		logging.Get(logging.CategoryState).Warnw("corrupt attention state, rebuilding", "path", path, "err", err)
		return NewState()
	}
	if s.Version != StateVersion {
		logging.Get(logging.CategoryState).Warnw("attention state version mismatch, rebuilding",
			"path", path, "got", s.Version, "want", StateVersion)
		return NewState()
	}
	if s.Scores == nil {
		s.Scores = map[string]float64{}
	}
	if s.Streaks == nil {
		s.Streaks = map[string]int{}
	}
	return &s
}

// Save persists the state atomically (temp + rename). A crash mid-write
// leaves the previous committed content intact.
func (s *State) Save(path string) error {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal attention state: %w", err)
	}
	if err := telemetry.AtomicWrite(path, data); err != nil {
		return fmt.Errorf("persist attention state: %w", err)
	}
	return nil
}

// HotFiles returns files at or above the hot threshold.
func (s *State) HotFiles(hotThreshold float64) []string {
	var hot []string
	for file, score := range s.Scores {
		if score >= hotThreshold {
			hot = append(hot, file)
		}
	}
	return hot
}

// Clamp bounds a score to [0, ceiling]. Applied after every phase that
// writes.
func Clamp(score, ceiling float64) float64 {
	if score < 0 {
		return 0
	}
	if score > ceiling {
		return ceiling
	}
	return score
}
