package attention

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"attnroute/internal/config"
)

func TestSanitizeStripsProtocolSpans(t *testing.T) {
	content := "before <system-reminder>secret\nstuff</system-reminder> middle " +
		"<task-notification>note</task-notification> after"
	out := sanitize(content)
	assert.Equal(t, "before  middle  after", out)
}

func TestSanitizeHandlesNestedInBody(t *testing.T) {
	content := "func a() {}\n// <system-reminder>embedded</system-reminder>\nfunc b() {}"
	out := sanitize(content)
	assert.NotContains(t, out, "embedded")
	assert.Contains(t, out, "func a()")
	assert.Contains(t, out, "func b()")
}

func TestHotFileTruncatedWithMarker(t *testing.T) {
	root := t.TempDir()
	writeProjectFile(t, root, "big.md", strings.Repeat("line of text\n", 2000))

	cfg := config.Default()
	cfg.Keywords = []config.KeywordEntry{
		{Pattern: "big", Targets: []string{"big.md"}, Category: config.CategoryMarkdown, Weight: 1.0},
	}
	router := newTestRouter(cfg, routerOpts{root: root})

	state := NewState()
	result := router.Route(state, "big")

	assert.Contains(t, result.Output, fmt.Sprintf("[truncated at %d chars]", cfg.PerFileChars))
	assert.GreaterOrEqual(t, result.Stats.TruncatedFiles, 1)
}

func TestWarmUsesRepoMapOutline(t *testing.T) {
	root := t.TempDir()
	writeProjectFile(t, root, "warm.go", "package warm\n\nfunc A() {}\nfunc B() {}\n")

	cfg := config.Default()
	repoMap := &fakeRepoMap{outlines: map[string]string{"warm.go": "func A()\nfunc B()"}}
	router := newTestRouter(cfg, routerOpts{root: root, repoMap: repoMap})

	state := NewState()
	state.Scores["warm.go"] = 0.5 / 0.85 // decays to 0.5: warm

	result := router.Route(state, "unrelated")

	assert.Equal(t, TierWarm, result.Tiers["warm.go"])
	assert.Contains(t, result.Output, "[WARM] warm.go (outline)")
	assert.Contains(t, result.Output, "func A()")
	assert.NotContains(t, result.Output, "package warm")
}

func TestWarmEmptyOutlineOmitsContent(t *testing.T) {
	root := t.TempDir()
	writeProjectFile(t, root, "warm.go", "package warm\n")

	cfg := config.Default()
	repoMap := &fakeRepoMap{outlines: map[string]string{}}
	router := newTestRouter(cfg, routerOpts{root: root, repoMap: repoMap})

	state := NewState()
	state.Scores["warm.go"] = 0.5 / 0.85

	result := router.Route(state, "unrelated")

	assert.Contains(t, result.Output, "[WARM] warm.go\n")
	assert.NotContains(t, result.Output, "(outline)")
}

func TestWarmFallbackFirstNonBlankLines(t *testing.T) {
	root := t.TempDir()
	var lines []string
	for i := 0; i < 40; i++ {
		lines = append(lines, fmt.Sprintf("line%02d", i), "")
	}
	writeProjectFile(t, root, "warm.txt", strings.Join(lines, "\n"))

	cfg := config.Default()
	router := newTestRouter(cfg, routerOpts{root: root}) // no repo map

	state := NewState()
	state.Scores["warm.txt"] = 0.5 / 0.70 // prose decay

	result := router.Route(state, "unrelated")

	assert.Contains(t, result.Output, "line00")
	assert.Contains(t, result.Output, "line19")
	assert.NotContains(t, result.Output, "line20", "fallback stops at 20 non-blank lines")
}

func TestTierOrderInOutput(t *testing.T) {
	root := t.TempDir()
	writeProjectFile(t, root, "hot.md", "# hot content\n")
	writeProjectFile(t, root, "warm.md", "# warm content\n")

	cfg := config.Default()
	cfg.Keywords = []config.KeywordEntry{
		{Pattern: "hot", Targets: []string{"hot.md"}, Category: config.CategoryMarkdown, Weight: 1.0},
	}
	router := newTestRouter(cfg, routerOpts{root: root})

	state := NewState()
	state.Scores["warm.md"] = 0.5 / 0.75
	state.Scores["cold.md"] = 0.05 / 0.75

	result := router.Route(state, "hot")

	hotIdx := strings.Index(result.Output, "[HOT] hot.md")
	warmIdx := strings.Index(result.Output, "[WARM] warm.md")
	evictIdx := strings.Index(result.Output, "evicted:")
	assert.GreaterOrEqual(t, hotIdx, 0)
	assert.Greater(t, warmIdx, hotIdx)
	assert.Greater(t, evictIdx, warmIdx)
	assert.Contains(t, result.Output, "evicted: cold.md")
}

func TestBudgetTruncateToFitThenPathOnly(t *testing.T) {
	root := t.TempDir()
	filler := strings.Repeat("filler text for the hot file body\n", 300)
	for i := 0; i < 3; i++ {
		writeProjectFile(t, root, fmt.Sprintf("h%d.md", i), filler)
	}

	cfg := config.Default()
	cfg.MaxContextChars = 12000 // one file fits, the second is truncated, the third is listed by path
	cfg.Keywords = []config.KeywordEntry{
		{Pattern: "h", Targets: []string{"h0.md", "h1.md", "h2.md"}, Category: config.CategoryMarkdown, Weight: 1.0},
	}
	router := newTestRouter(cfg, routerOpts{root: root})

	state := NewState()
	result := router.Route(state, "h")

	assert.LessOrEqual(t, len(result.Output), cfg.MaxContextChars)
	assert.GreaterOrEqual(t, result.Stats.TruncatedFiles, 1)
}
