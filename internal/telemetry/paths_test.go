package telemetry

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewPathsUsesEnvHome(t *testing.T) {
	home := t.TempDir()
	t.Setenv(EnvHome, home)

	paths, err := NewPaths(t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(home, ".attnroute"), paths.Home)
	assert.True(t, strings.HasPrefix(paths.ProjectDir, filepath.Join(home, ".attnroute", "projects")))
	assert.Equal(t, "attn_state.json", filepath.Base(paths.AttentionStatePath()))
	assert.Equal(t, "learned_state.json", filepath.Base(paths.LearnedStatePath()))
	assert.Equal(t, "predictor_model.json", filepath.Base(paths.PredictorModelPath()))
	assert.Equal(t, "turns.jsonl", filepath.Base(paths.TurnsPath()))
}

func TestProjectHashStable(t *testing.T) {
	a := projectHash("/home/dev/proj.a")
	b := projectHash("/home/dev/proj.a")
	c := projectHash("/home/dev/proj.b")
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.NotContains(t, a, "/")
}

func TestConfigDirOverride(t *testing.T) {
	t.Setenv(EnvHome, t.TempDir())
	cfgDir := t.TempDir()
	t.Setenv(EnvConfig, cfgDir)

	paths, err := NewPaths(t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(cfgDir, "keywords.json"), paths.KeywordsPath())
	assert.Equal(t, filepath.Join(cfgDir, "router_overrides.json"), paths.OverridesPath())
}

func TestDisabled(t *testing.T) {
	t.Setenv(EnvDisable, "")
	assert.False(t, Disabled())
	t.Setenv(EnvDisable, "1")
	assert.True(t, Disabled())
}

func TestPluginStatePath(t *testing.T) {
	t.Setenv(EnvHome, t.TempDir())
	paths, err := NewPaths(t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, "loopbreaker_state.json", filepath.Base(paths.PluginStatePath("loopbreaker")))
}

// Non-repository dirs fall back to per-copy placement: shared == project.
func TestSharedDirFallsBackOutsideRepo(t *testing.T) {
	t.Setenv(EnvHome, t.TempDir())
	root := t.TempDir()
	paths, err := NewPaths(root)
	require.NoError(t, err)
	assert.Equal(t, paths.ProjectDir, paths.SharedDir)
}
