package attention

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStateRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "attn_state.json")

	s := NewState()
	s.TurnCount = 7
	s.LastUpdate = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	s.Scores["lexer.rs"] = 0.9
	s.Scores["parser.rs"] = 0.31
	s.Streaks["lexer.rs"] = 3

	require.NoError(t, s.Save(path))
	loaded := LoadState(path)

	if diff := cmp.Diff(s, loaded); diff != "" {
		t.Fatalf("state round-trip mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadStateMissingFile(t *testing.T) {
	s := LoadState(filepath.Join(t.TempDir(), "none.json"))
	assert.Equal(t, 0, s.TurnCount)
	assert.Empty(t, s.Scores)
	assert.Empty(t, s.Streaks)
}

func TestLoadStateCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "attn_state.json")
	require.NoError(t, os.WriteFile(path, []byte("{{{{not json"), 0o644))

	s := LoadState(path)
	assert.Empty(t, s.Scores, "corrupt state rebuilds empty")
}

func TestLoadStateVersionMismatch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "attn_state.json")
	content := `{"version": 99, "turn_count": 5, "scores": {"a.go": 0.5}, "streaks": {}}`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	s := LoadState(path)
	assert.Empty(t, s.Scores, "unknown versions are discarded")
	assert.Equal(t, 0, s.TurnCount)
}

// Simulates a crash mid-write: the temp file exists but was never renamed.
// The committed content must still load intact.
func TestCrashMidWriteLeavesCommittedState(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "attn_state.json")

	s := NewState()
	s.Scores["a.go"] = 0.5
	s.TurnCount = 3
	require.NoError(t, s.Save(path))

	// A torn write would be a partial temp file left beside the target.
	require.NoError(t, os.WriteFile(path+".tmp-crash", []byte(`{"version":1,"turn`), 0o644))

	loaded := LoadState(path)
	assert.Equal(t, 3, loaded.TurnCount)
	assert.Equal(t, 0.5, loaded.Scores["a.go"])
}

func TestClamp(t *testing.T) {
	assert.Equal(t, 0.0, Clamp(-0.3, 1.2))
	assert.Equal(t, 1.2, Clamp(5.0, 1.2))
	assert.Equal(t, 0.7, Clamp(0.7, 1.2))
}

func TestHotFiles(t *testing.T) {
	s := NewState()
	s.Scores["hot.go"] = 0.9
	s.Scores["warm.go"] = 0.5
	s.Scores["cold.go"] = 0.1
	hot := s.HotFiles(0.8)
	assert.Equal(t, []string{"hot.go"}, hot)
}
