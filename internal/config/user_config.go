package config

import (
	"os"

	"gopkg.in/yaml.v3"

	"attnroute/internal/logging"
)

// UserConfig is the optional attnroute.yaml: ambient settings that don't
// belong in router_overrides.json.
type UserConfig struct {
	// Debug is parsed from the file, but nothing reads it to change logging;
	// verbose stderr logging is enabled by --verbose or ATTNROUTE_DEBUG=1.
	Debug bool `yaml:"debug"`

	// Plugins toggles built-in plugins by name. Absent plugins default to
	// enabled.
	Plugins map[string]bool `yaml:"plugins"`

	// StatsCachePath points at the host assistant's usage cache consumed by
	// the burn-rate monitor. Empty uses the host default.
	StatsCachePath string `yaml:"stats_cache_path"`
}

// LoadUserConfig reads attnroute.yaml. A missing or malformed file yields
// the zero config.
func LoadUserConfig(path string) UserConfig {
	var uc UserConfig
	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			logging.Get(logging.CategoryConfig).Warnw("cannot read user config", "path", path, "err", err)
		}
		return uc
	}
	if err := yaml.Unmarshal(data, &uc); err != nil {
		logging.Get(logging.CategoryConfig).Warnw("malformed user config, ignoring", "path", path, "err", err)
		return UserConfig{}
	}
	return uc
}

// PluginEnabled reports whether a plugin is enabled (default true).
func (uc UserConfig) PluginEnabled(name string) bool {
	if uc.Plugins == nil {
		return true
	}
	enabled, ok := uc.Plugins[name]
	if !ok {
		return true
	}
	return enabled
}
