package telemetry

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"attnroute/internal/logging"
)

// Env var names understood by the path resolver.
const (
	EnvHome    = "ATTNROUTE_HOME"
	EnvConfig  = "ATTNROUTE_CONFIG"
	EnvDisable = "ATTNROUTE_DISABLE"
)

const toolDir = ".attnroute"

// Paths resolves state file locations for a project. Per-copy state lives
// under <home>/.attnroute/projects/<hash>/. When the project is a secondary
// working copy sharing a common VCS metadata dir, learned and predictor
// models move to the common project's dir so sibling copies share them;
// attention state stays per-copy.
type Paths struct {
	Home       string // the .attnroute dir
	ProjectDir string // per-copy state dir
	SharedDir  string // shared learned/predictor dir (== ProjectDir unless worktree)
}

// NewPaths resolves paths for the given project root. ATTNROUTE_HOME
// overrides the user home dir.
func NewPaths(projectRoot string) (*Paths, error) {
	home := os.Getenv(EnvHome)
	if home == "" {
		userHome, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("resolve home dir: %w", err)
		}
		home = userHome
	}

	base := filepath.Join(home, toolDir)
	projectDir := filepath.Join(base, "projects", projectHash(projectRoot))

	sharedDir := projectDir
	if common := gitCommonRoot(projectRoot); common != "" && common != projectRoot {
		sharedDir = filepath.Join(base, "projects", projectHash(common))
		logging.Get(logging.CategoryTelemetry).Debugw("worktree detected, sharing learned state",
			"copy", projectRoot, "common", common)
	}

	return &Paths{Home: base, ProjectDir: projectDir, SharedDir: sharedDir}, nil
}

// EnsureDirs creates the state directories.
func (p *Paths) EnsureDirs() error {
	for _, dir := range []string{p.ProjectDir, p.SharedDir, p.TelemetryDir()} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create state dir %s: %w", dir, err)
		}
	}
	return nil
}

func (p *Paths) TelemetryDir() string { return filepath.Join(p.Home, "telemetry") }

// AttentionStatePath is per-copy: each working copy routes independently.
func (p *Paths) AttentionStatePath() string {
	return filepath.Join(p.ProjectDir, "attn_state.json")
}

// LearnedStatePath is shared across sibling working copies.
func (p *Paths) LearnedStatePath() string {
	return filepath.Join(p.SharedDir, "learned_state.json")
}

// PredictorModelPath is shared across sibling working copies.
func (p *Paths) PredictorModelPath() string {
	return filepath.Join(p.SharedDir, "predictor_model.json")
}

func (p *Paths) SessionStatePath() string {
	return filepath.Join(p.ProjectDir, "session_state.json")
}

func (p *Paths) TurnsPath() string  { return filepath.Join(p.TelemetryDir(), "turns.jsonl") }
func (p *Paths) EventsPath() string { return filepath.Join(p.TelemetryDir(), "events.jsonl") }
func (p *Paths) HistoryDBPath() string {
	return filepath.Join(p.TelemetryDir(), "history.db")
}

func (p *Paths) PluginDir() string { return filepath.Join(p.Home, "plugins") }

// PluginStatePath returns the private state file for a named plugin.
func (p *Paths) PluginStatePath(name string) string {
	return filepath.Join(p.PluginDir(), name+"_state.json")
}

// KeywordsPath returns the keyword config location. ATTNROUTE_CONFIG
// overrides the directory the config files are read from.
func (p *Paths) KeywordsPath() string {
	return filepath.Join(p.configDir(), "keywords.json")
}

// OverridesPath returns the router overrides file location.
func (p *Paths) OverridesPath() string {
	return filepath.Join(p.configDir(), "router_overrides.json")
}

// UserConfigPath returns the optional attnroute.yaml location.
func (p *Paths) UserConfigPath() string {
	return filepath.Join(p.configDir(), "attnroute.yaml")
}

func (p *Paths) configDir() string {
	if dir := os.Getenv(EnvConfig); dir != "" {
		return dir
	}
	return p.Home
}

// Disabled reports whether the hook is short-circuited via env.
func Disabled() bool {
	return os.Getenv(EnvDisable) == "1"
}

// projectHash produces a stable directory name from a project path.
func projectHash(root string) string {
	cleaned := filepath.ToSlash(filepath.Clean(root))
	return strings.NewReplacer("/", "-", ".", "-", ":", "-").Replace(cleaned)
}

// gitCommonRoot asks the VCS for its common directory. Returns the common
// project root, or "" when the tool is unavailable or the dir is primary.
func gitCommonRoot(projectRoot string) string {
	cmd := exec.Command("git", "rev-parse", "--git-common-dir")
	cmd.Dir = projectRoot
	out, err := cmd.Output()
	if err != nil {
		return ""
	}
	common := strings.TrimSpace(string(out))
	if common == "" || common == ".git" {
		return "" // primary copy, nothing shared
	}
	if !filepath.IsAbs(common) {
		common = filepath.Join(projectRoot, common)
	}
	return filepath.Dir(filepath.Clean(common))
}
