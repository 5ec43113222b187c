package plugin

import (
	"fmt"

	"attnroute/internal/attention"
	"attnroute/internal/config"
	"attnroute/internal/logging"
)

// Supervisor dispatches lifecycle events to registered plugins in
// registration order and isolates failures: a plugin that errors or panics
// is disabled for the remainder of the process with an error event, and the
// others continue.
type Supervisor struct {
	ctx      *Context
	plugins  []Plugin
	disabled map[string]bool
}

// NewSupervisor creates a supervisor over a shared plugin context.
func NewSupervisor(ctx *Context) *Supervisor {
	return &Supervisor{ctx: ctx, disabled: map[string]bool{}}
}

// Register adds a plugin if the user config has it enabled.
func (s *Supervisor) Register(p Plugin, uc config.UserConfig) {
	if !uc.PluginEnabled(p.Name()) {
		logging.Get(logging.CategoryPlugin).Debugw("plugin disabled by config", "plugin", p.Name())
		return
	}
	s.plugins = append(s.plugins, p)
}

// RegisterBuiltins registers the standard plugin set.
func (s *Supervisor) RegisterBuiltins(uc config.UserConfig) {
	s.Register(NewLoopBreaker(), uc)
	s.Register(NewVerifyFirst(), uc)
	s.Register(NewBurnRate(uc.StatsCachePath), uc)
}

// Count returns the number of registered plugins.
func (s *Supervisor) Count() int { return len(s.plugins) }

// Disabled reports whether a plugin has been disabled this process.
func (s *Supervisor) Disabled(name string) bool { return s.disabled[name] }

// invoke runs one hook with panic isolation.
func (s *Supervisor) invoke(name string, hook func() (string, error)) (out string) {
	defer func() {
		if r := recover(); r != nil {
			s.disable(name, fmt.Sprintf("panic: %v", r))
			out = ""
		}
	}()

	result, err := hook()
	if err != nil {
		s.disable(name, err.Error())
		return ""
	}
	return result
}

func (s *Supervisor) disable(name, reason string) {
	s.disabled[name] = true
	logging.Get(logging.CategoryPlugin).Errorw("plugin disabled for process lifetime", "plugin", name, "reason", reason)
	s.ctx.LogEvent(name, "error", "plugin disabled: "+reason)
}

// OnSessionStart dispatches session-start hooks and collects status lines.
func (s *Supervisor) OnSessionStart() []string {
	var messages []string
	for _, p := range s.plugins {
		hook, ok := p.(SessionStartHook)
		if !ok || s.disabled[p.Name()] {
			continue
		}
		if msg := s.invoke(p.Name(), func() (string, error) { return hook.OnSessionStart(s.ctx) }); msg != "" {
			messages = append(messages, msg)
		}
	}
	return messages
}

// OnPromptPre dispatches pre-routing hooks and collects advisories.
func (s *Supervisor) OnPromptPre(prompt string) []string {
	var advisories []string
	for _, p := range s.plugins {
		hook, ok := p.(PromptPreHook)
		if !ok || s.disabled[p.Name()] {
			continue
		}
		if msg := s.invoke(p.Name(), func() (string, error) { return hook.OnPromptPre(s.ctx, prompt) }); msg != "" {
			advisories = append(advisories, msg)
		}
	}
	return advisories
}

// OnPromptPost dispatches post-routing hooks.
func (s *Supervisor) OnPromptPost(prompt string, result *attention.RoutingResult) []string {
	var additions []string
	for _, p := range s.plugins {
		hook, ok := p.(PromptPostHook)
		if !ok || s.disabled[p.Name()] {
			continue
		}
		if msg := s.invoke(p.Name(), func() (string, error) { return hook.OnPromptPost(s.ctx, prompt, result) }); msg != "" {
			additions = append(additions, msg)
		}
	}
	return additions
}

// OnStop dispatches post-turn hooks.
func (s *Supervisor) OnStop(turn *Turn) []string {
	var messages []string
	for _, p := range s.plugins {
		hook, ok := p.(StopHook)
		if !ok || s.disabled[p.Name()] {
			continue
		}
		if msg := s.invoke(p.Name(), func() (string, error) { return hook.OnStop(s.ctx, turn) }); msg != "" {
			messages = append(messages, msg)
		}
	}
	return messages
}
