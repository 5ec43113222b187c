package plugin

import (
	"fmt"
	"strings"
)

var (
	verifyReadTools  = map[string]bool{"Read": true, "read": true}
	verifyWriteTools = map[string]bool{"Edit": true, "edit": true, "Write": true, "write": true, "MultiEdit": true}
)

type verifyState struct {
	FilesRead  map[string]bool `json:"files_read"`
	Violations []string        `json:"violations"`
}

// VerifyFirst enforces a read-before-write policy: a write or edit to a
// file never read this session is logged as a violation, and a pre-routing
// advisory is returned on each prompt while violations exist.
type VerifyFirst struct{}

// NewVerifyFirst returns the read-before-write plugin.
func NewVerifyFirst() *VerifyFirst { return &VerifyFirst{} }

func (v *VerifyFirst) Name() string { return "verifyfirst" }

func (v *VerifyFirst) OnSessionStart(ctx *Context) (string, error) {
	// The read set resets per session.
	if err := SaveState(ctx, v.Name(), verifyState{FilesRead: map[string]bool{}}); err != nil {
		return "", err
	}
	return "VerifyFirst: active (read-before-write policy)", nil
}

func (v *VerifyFirst) OnStop(ctx *Context, turn *Turn) (string, error) {
	state, err := LoadState[verifyState](ctx, v.Name())
	if err != nil {
		return "", err
	}
	if state.FilesRead == nil {
		state.FilesRead = map[string]bool{}
	}

	var fresh []string
	for _, tc := range turn.ToolCalls {
		if tc.Target == "" {
			continue
		}
		normalized := normalizePath(tc.Target)
		switch {
		case verifyReadTools[tc.Tool]:
			state.FilesRead[normalized] = true
		case verifyWriteTools[tc.Tool]:
			if !state.FilesRead[normalized] {
				state.Violations = append(state.Violations, tc.Target)
				fresh = append(fresh, tc.Target)
				ctx.LogEvent(v.Name(), "violation",
					fmt.Sprintf("%s to %s without a prior read", tc.Tool, tc.Target))
			}
			// A write implies familiarity going forward.
			state.FilesRead[normalized] = true
		}
	}

	if err := SaveState(ctx, v.Name(), state); err != nil {
		return "", err
	}

	if len(fresh) > 0 {
		return fmt.Sprintf("[verifyfirst] edited without reading first: %s", strings.Join(fresh, ", ")), nil
	}
	return "", nil
}

// Advisory surfaces on the next prompt while any violation stands.
func (v *VerifyFirst) OnPromptPre(ctx *Context, prompt string) (string, error) {
	state, err := LoadState[verifyState](ctx, v.Name())
	if err != nil {
		return "", err
	}
	if len(state.Violations) == 0 {
		return "", nil
	}
	return fmt.Sprintf(
		"verify_first: %d file(s) were edited this session without being read first (%s). "+
			"Read a file before editing it.",
		len(state.Violations), strings.Join(state.Violations, ", ")), nil
}

func normalizePath(path string) string {
	return strings.ReplaceAll(path, "\\", "/")
}
