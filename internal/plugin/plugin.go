// Package plugin implements the behavioral monitor framework: a small set
// of plugins consume routing telemetry and inject advisory context. Each
// plugin declares capabilities by implementing optional hook interfaces;
// dispatch is by interface assertion, not inheritance.
package plugin

import (
	"encoding/json"
	"fmt"
	"os"

	"attnroute/internal/attention"
	"attnroute/internal/logging"
	"attnroute/internal/telemetry"
)

// ToolCall is one observed host tool invocation.
type ToolCall struct {
	Tool      string `json:"tool"`
	Target    string `json:"target,omitempty"`
	Content   string `json:"content,omitempty"`
	OldString string `json:"old_string,omitempty"`
	Command   string `json:"command,omitempty"`
}

// Turn is the post-turn input to OnStop hooks.
type Turn struct {
	SessionID string
	ToolCalls []ToolCall
}

// Context is what plugins get: read-only paths, the clock, and an
// append-only event logger. Plugin state goes through LoadState/SaveState.
type Context struct {
	Paths     *telemetry.Paths
	Clock     attention.Clock
	SessionID string
}

// LogEvent appends an advisory or violation to events.jsonl.
func (c *Context) LogEvent(source, kind, message string) {
	event := telemetry.Event{
		Timestamp: c.Clock.Now(),
		SessionID: c.SessionID,
		Source:    source,
		Kind:      kind,
		Message:   message,
	}
	if err := telemetry.AppendJSONL(c.Paths.EventsPath(), event); err != nil {
		logging.Get(logging.CategoryPlugin).Warnw("cannot append event", "source", source, "err", err)
	}
}

// Plugin is the minimal contract: a unique name. Hooks are optional
// capability interfaces.
type Plugin interface {
	Name() string
}

// SessionStartHook runs when a session opens. The returned string (if any)
// is surfaced to the user as a status line.
type SessionStartHook interface {
	OnSessionStart(ctx *Context) (string, error)
}

// PromptPreHook runs before routing. The returned string is an advisory
// prepended to the turn's context output.
type PromptPreHook interface {
	OnPromptPre(ctx *Context, prompt string) (string, error)
}

// PromptPostHook runs after routing with the routing result. The returned
// string is appended to the context output.
type PromptPostHook interface {
	OnPromptPost(ctx *Context, prompt string, result *attention.RoutingResult) (string, error)
}

// StopHook runs post-turn with the observed tool calls.
type StopHook interface {
	OnStop(ctx *Context, turn *Turn) (string, error)
}

// LoadState reads a plugin's private state file. A missing file yields the
// zero value.
func LoadState[T any](ctx *Context, name string) (T, error) {
	var state T
	data, err := os.ReadFile(ctx.Paths.PluginStatePath(name))
	if err != nil {
		if os.IsNotExist(err) {
			return state, nil
		}
		return state, fmt.Errorf("read %s state: %w", name, err)
	}
	if err := json.Unmarshal(data, &state); err != nil {
		// A corrupt private state never takes the plugin down; it starts over.
		logging.Get(logging.CategoryPlugin).Warnw("corrupt plugin state, resetting", "plugin", name, "err", err)
		var zero T
		return zero, nil
	}
	return state, nil
}

// SaveState writes a plugin's private state atomically.
func SaveState[T any](ctx *Context, name string, state T) error {
	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal %s state: %w", name, err)
	}
	if err := telemetry.AtomicWrite(ctx.Paths.PluginStatePath(name), data); err != nil {
		return fmt.Errorf("persist %s state: %w", name, err)
	}
	return nil
}
