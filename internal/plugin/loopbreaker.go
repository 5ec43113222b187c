package plugin

import (
	"fmt"
	"hash/fnv"
	"path/filepath"
	"strings"
)

const (
	loopBufferSize   = 12
	loopSimilarCount = 3
	loopSimThreshold = 0.7
	loopOpTokenLimit = 5
)

var loopWorkTools = map[string]bool{
	"Edit": true, "edit": true,
	"Write": true, "write": true,
	"MultiEdit": true,
	"Bash":      true, "bash": true,
}

// signature is one normalized tool-call fingerprint kept in the ring.
type signature struct {
	Tool     string   `json:"tool"`
	Target   string   `json:"target"`
	OpHash   string   `json:"op_hash"`
	OpTokens []string `json:"op_tokens"`
}

type loopState struct {
	Recent        []signature `json:"recent"` // ring, newest last
	AdvisoryArmed bool        `json:"advisory_armed"`
	LoopsDetected int         `json:"loops_detected"`
}

// LoopBreaker watches for repetitive similar tool calls and injects a
// strategy-change advisory when the assistant appears stuck.
type LoopBreaker struct{}

// NewLoopBreaker returns the loop detection plugin.
func NewLoopBreaker() *LoopBreaker { return &LoopBreaker{} }

func (l *LoopBreaker) Name() string { return "loopbreaker" }

func (l *LoopBreaker) OnSessionStart(ctx *Context) (string, error) {
	if err := SaveState(ctx, l.Name(), loopState{}); err != nil {
		return "", err
	}
	return "LoopBreaker: active (repetitive attempt detection)", nil
}

func (l *LoopBreaker) OnPromptPre(ctx *Context, prompt string) (string, error) {
	state, err := LoadState[loopState](ctx, l.Name())
	if err != nil {
		return "", err
	}
	if !state.AdvisoryArmed {
		return "", nil
	}

	// One-shot advisory: consumed on delivery.
	state.AdvisoryArmed = false
	if err := SaveState(ctx, l.Name(), state); err != nil {
		return "", err
	}

	return "strategy_change: the last several edits look like repeated similar attempts. " +
		"Re-read the target file, reconsider whether this is the right problem, and try a " +
		"fundamentally different approach instead of repeating the same fix.", nil
}

func (l *LoopBreaker) OnStop(ctx *Context, turn *Turn) (string, error) {
	state, err := LoadState[loopState](ctx, l.Name())
	if err != nil {
		return "", err
	}

	for _, tc := range turn.ToolCalls {
		if !loopWorkTools[tc.Tool] || tc.Target == "" {
			continue
		}
		state.Recent = append(state.Recent, makeSignature(tc))
	}
	if excess := len(state.Recent) - loopBufferSize; excess > 0 {
		state.Recent = state.Recent[excess:]
	}

	msg := ""
	if looped, target := detectLoop(state.Recent); looped {
		state.AdvisoryArmed = true
		state.LoopsDetected++
		ctx.LogEvent(l.Name(), "violation",
			fmt.Sprintf("detected %d similar attempts on %s", loopSimilarCount, filepath.Base(target)))
		msg = fmt.Sprintf("[loopbreaker] %d similar attempts on %s", loopSimilarCount, filepath.Base(target))
	}

	if err := SaveState(ctx, l.Name(), state); err != nil {
		return "", err
	}
	return msg, nil
}

// makeSignature normalizes a tool call to (tool, target, opHash).
func makeSignature(tc ToolCall) signature {
	target := strings.ReplaceAll(tc.Target, "\\", "/")

	source := tc.OldString
	if source == "" {
		source = tc.Command
	}
	tokens := opTokens(source)

	h := fnv.New64a()
	h.Write([]byte(strings.Join(tokens, ":")))

	return signature{
		Tool:     tc.Tool,
		Target:   target,
		OpHash:   fmt.Sprintf("%x", h.Sum64()),
		OpTokens: tokens,
	}
}

// opTokens extracts the leading identifiers of the operation content.
func opTokens(source string) []string {
	fields := strings.FieldsFunc(source, func(r rune) bool {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_':
			return false
		}
		return true
	})
	if len(fields) > loopOpTokenLimit {
		fields = fields[:loopOpTokenLimit]
	}
	return fields
}

// detectLoop looks for three signatures in the ring that are pairwise
// similar. Returns the offending target on detection.
func detectLoop(recent []signature) (bool, string) {
	n := len(recent)
	if n < loopSimilarCount {
		return false, ""
	}
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			if similarity(recent[i], recent[j]) < loopSimThreshold {
				continue
			}
			for k := j + 1; k < n; k++ {
				if similarity(recent[i], recent[k]) >= loopSimThreshold &&
					similarity(recent[j], recent[k]) >= loopSimThreshold {
					return true, recent[k].Target
				}
			}
		}
	}
	return false, ""
}

// similarity scores two signatures in [0,1]. Tool equality is mandatory;
// the rest blends path suffix overlap with Jaccard over op tokens.
func similarity(a, b signature) float64 {
	if a.Tool != b.Tool {
		return 0
	}
	return 0.5*pathSimilarity(a.Target, b.Target) + 0.5*tokenJaccard(a.OpTokens, b.OpTokens)
}

// pathSimilarity is shared suffix components over the max path depth.
func pathSimilarity(a, b string) float64 {
	ca := strings.Split(strings.Trim(a, "/"), "/")
	cb := strings.Split(strings.Trim(b, "/"), "/")
	maxDepth := len(ca)
	if len(cb) > maxDepth {
		maxDepth = len(cb)
	}
	if maxDepth == 0 {
		return 0
	}
	shared := 0
	for i := 0; i < len(ca) && i < len(cb); i++ {
		if ca[len(ca)-1-i] != cb[len(cb)-1-i] {
			break
		}
		shared++
	}
	return float64(shared) / float64(maxDepth)
}

func tokenJaccard(a, b []string) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 1.0 // identical empty ops
	}
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	setA := map[string]bool{}
	for _, t := range a {
		setA[t] = true
	}
	inter := 0
	union := len(setA)
	seenB := map[string]bool{}
	for _, t := range b {
		if seenB[t] {
			continue
		}
		seenB[t] = true
		if setA[t] {
			inter++
		} else {
			union++
		}
	}
	return float64(inter) / float64(union)
}
