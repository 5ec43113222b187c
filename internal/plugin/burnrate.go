package plugin

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

const (
	burnWindow       = 15 * time.Minute
	burnWarnMinutes  = 30.0
	burnCriticalMins = 10.0
	burnRateAlpha    = 0.3 // EWMA smoothing over interval rates
)

type burnSample struct {
	Timestamp time.Time `json:"timestamp"`
	Tokens    uint64    `json:"tokens"`
}

type burnState struct {
	Samples    []burnSample `json:"samples"`
	EWMARate   float64      `json:"ewma_rate"` // tokens per minute
	PlanType   string       `json:"plan_type"`
	WarnedAt30 bool         `json:"warned_at_30"`
	WarnedAt10 bool         `json:"warned_at_10"`
}

// statsCache mirrors the host assistant's usage cache file.
type statsCache struct {
	SessionTokens uint64 `json:"sessionTokens"`
	Model         string `json:"model"`
}

// BurnRate tracks the host's token consumption and predicts time to quota
// exhaustion, warning once at 30 minutes remaining and once at 10.
type BurnRate struct {
	statsPath string // override; empty uses <home>/stats-cache.json
}

// NewBurnRate returns the burn-rate monitor. statsPath overrides the host
// usage cache location; empty uses the default.
func NewBurnRate(statsPath string) *BurnRate { return &BurnRate{statsPath: statsPath} }

func (b *BurnRate) Name() string { return "burnrate" }

func (b *BurnRate) statsCachePath(ctx *Context) string {
	if b.statsPath != "" {
		return b.statsPath
	}
	return filepath.Join(ctx.Paths.Home, "stats-cache.json")
}

func (b *BurnRate) readStats(ctx *Context) (*statsCache, bool) {
	data, err := os.ReadFile(b.statsCachePath(ctx))
	if err != nil {
		return nil, false
	}
	var stats statsCache
	if err := json.Unmarshal(data, &stats); err != nil {
		return nil, false
	}
	return &stats, true
}

func detectPlanType(stats *statsCache) string {
	if stats.Model == "" || stats.Model == "api" {
		return "api"
	}
	switch {
	case stats.SessionTokens > 300_000:
		return "max_20x"
	case stats.SessionTokens > 100_000:
		return "max_5x"
	default:
		return "pro"
	}
}

func planLimit(planType string) uint64 {
	switch planType {
	case "free":
		return 25_000
	case "pro":
		return 150_000
	case "max_5x":
		return 500_000
	case "max_20x":
		return 2_000_000
	default:
		return 150_000
	}
}

func (b *BurnRate) OnSessionStart(ctx *Context) (string, error) {
	stats, ok := b.readStats(ctx)
	if !ok {
		return "", nil // no usage source, nothing to monitor
	}

	state := burnState{PlanType: detectPlanType(stats)}
	state.Samples = append(state.Samples, burnSample{Timestamp: ctx.Clock.Now(), Tokens: stats.SessionTokens})
	if err := SaveState(ctx, b.Name(), state); err != nil {
		return "", err
	}

	if state.PlanType == "api" {
		return "BurnRate: active (api mode)", nil
	}
	pct := stats.SessionTokens * 100 / planLimit(state.PlanType)
	return fmt.Sprintf("BurnRate: active (%s plan, %d%% of window used)", state.PlanType, pct), nil
}

func (b *BurnRate) OnPromptPre(ctx *Context, prompt string) (string, error) {
	stats, ok := b.readStats(ctx)
	if !ok {
		return "", nil
	}

	state, err := LoadState[burnState](ctx, b.Name())
	if err != nil {
		return "", err
	}
	if state.PlanType == "" {
		state.PlanType = detectPlanType(stats)
	}

	now := ctx.Clock.Now()
	b.recordSample(&state, now, stats.SessionTokens)

	minutesLeft, rateKnown := b.project(&state, stats.SessionTokens)

	msg := ""
	if rateKnown {
		switch {
		case minutesLeft <= burnCriticalMins && !state.WarnedAt10:
			state.WarnedAt10 = true
			ctx.LogEvent(b.Name(), "warning", fmt.Sprintf("~%.0f minutes of quota remaining", minutesLeft))
			msg = fmt.Sprintf(
				"burn_rate CRITICAL: ~%.0f minutes until the rate limit at the current pace "+
					"(%.0f tokens/min). Consider pausing or batching work.",
				minutesLeft, state.EWMARate)
		case minutesLeft <= burnWarnMinutes && !state.WarnedAt30:
			state.WarnedAt30 = true
			ctx.LogEvent(b.Name(), "warning", fmt.Sprintf("~%.0f minutes of quota remaining", minutesLeft))
			msg = fmt.Sprintf(
				"burn_rate warning: ~%.0f minutes until the rate limit at the current pace "+
					"(%.0f tokens/min).",
				minutesLeft, state.EWMARate)
		}
	}

	if err := SaveState(ctx, b.Name(), state); err != nil {
		return "", err
	}
	return msg, nil
}

func (b *BurnRate) OnStop(ctx *Context, turn *Turn) (string, error) {
	stats, ok := b.readStats(ctx)
	if !ok {
		return "", nil
	}
	state, err := LoadState[burnState](ctx, b.Name())
	if err != nil {
		return "", err
	}
	b.recordSample(&state, ctx.Clock.Now(), stats.SessionTokens)
	return "", SaveState(ctx, b.Name(), state)
}

// recordSample appends a usage sample, updates the EWMA rate, and trims the
// rolling window.
func (b *BurnRate) recordSample(state *burnState, now time.Time, tokens uint64) {
	if n := len(state.Samples); n > 0 {
		prev := state.Samples[n-1]
		elapsed := now.Sub(prev.Timestamp).Minutes()
		if elapsed > 0 && tokens >= prev.Tokens {
			rate := float64(tokens-prev.Tokens) / elapsed
			if state.EWMARate == 0 {
				state.EWMARate = rate
			} else {
				state.EWMARate = (1-burnRateAlpha)*state.EWMARate + burnRateAlpha*rate
			}
		}
	}

	state.Samples = append(state.Samples, burnSample{Timestamp: now, Tokens: tokens})

	cutoff := now.Add(-burnWindow)
	kept := state.Samples[:0]
	for _, s := range state.Samples {
		if s.Timestamp.After(cutoff) {
			kept = append(kept, s)
		}
	}
	state.Samples = kept
}

// project estimates minutes until the plan limit at the current rate.
func (b *BurnRate) project(state *burnState, tokens uint64) (float64, bool) {
	if state.EWMARate <= 0 || state.PlanType == "api" {
		return 0, false
	}
	limit := planLimit(state.PlanType)
	if tokens >= limit {
		return 0, true
	}
	return float64(limit-tokens) / state.EWMARate, true
}
