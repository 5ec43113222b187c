package learn

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func observeN(l *Learner, n int, prompt string, used ...string) {
	for i := 0; i < n; i++ {
		l.Observe(TurnObservation{Prompt: prompt, FilesInjected: used, FilesUsed: used})
	}
}

func TestMaturityGate(t *testing.T) {
	l := NewLearner()
	assert.Equal(t, MaturityObserving, l.Maturity())
	assert.False(t, l.Active())

	observeN(l, MaturityThreshold-1, "router work", "router.go")
	assert.Equal(t, MaturityObserving, l.Maturity())

	observeN(l, 1, "router work", "router.go")
	assert.Equal(t, MaturityActive, l.Maturity())
	assert.True(t, l.Active())
}

func TestQueryEmptyWhileObserving(t *testing.T) {
	l := NewLearner()
	observeN(l, 10, "router config", "router.go")
	assert.Empty(t, l.Query("router"), "observing maturity returns nothing")
}

func TestQueryReturnsAssociationsWhenActive(t *testing.T) {
	l := NewLearner()
	observeN(l, 30, "router config", "router.go")

	assocs := l.Query("router")
	require.NotEmpty(t, assocs)
	assert.Equal(t, "router.go", assocs[0].File)
	assert.Greater(t, assocs[0].Strength, 0.0)
}

func TestStopWordsFiltered(t *testing.T) {
	words := ExtractWords("please fix the parser in this file")
	assert.Equal(t, []string{"parser"}, words)
}

func TestIDFFormula(t *testing.T) {
	l := NewLearner()
	// "router" in every turn, "lexer" in one of ten.
	for i := 0; i < 9; i++ {
		l.Observe(TurnObservation{Prompt: "router broken", FilesUsed: []string{"router.go"}})
	}
	l.Observe(TurnObservation{Prompt: "router lexer", FilesUsed: []string{"lexer.go"}})

	assert.Greater(t, l.IDF("lexer"), l.IDF("router"),
		"rare tokens carry more weight")
	assert.Greater(t, l.IDF("router"), 0.0)
}

func TestInjectedUnusedPenalty(t *testing.T) {
	l := NewLearner()
	// wasted.go keeps being injected and never used; its association with
	// "parser" must not grow.
	for i := 0; i < 30; i++ {
		l.Observe(TurnObservation{
			Prompt:        "parser problem",
			FilesInjected: []string{"parser.go", "wasted.go"},
			FilesUsed:     []string{"parser.go"},
		})
	}

	assocs := l.Query("parser")
	require.NotEmpty(t, assocs)
	assert.Equal(t, "parser.go", assocs[0].File)
	for _, a := range assocs {
		if a.File == "wasted.go" {
			t.Fatalf("wasted.go should carry no positive association, got %v", a.Strength)
		}
	}
}

func TestDiscoveryCountsFull(t *testing.T) {
	l := NewLearner()
	// found.go is used without ever being injected (discovery).
	for i := 0; i < 30; i++ {
		l.Observe(TurnObservation{
			Prompt:    "tokenizer question",
			FilesUsed: []string{"found.go"},
		})
	}
	assocs := l.Query("tokenizer")
	require.NotEmpty(t, assocs)
	assert.Equal(t, "found.go", assocs[0].File)
}

func TestCoactivationDiscovery(t *testing.T) {
	l := NewLearner()
	// a and b always travel together; c travels alone.
	for i := 0; i < 10; i++ {
		l.Observe(TurnObservation{Prompt: "pair work", FilesUsed: []string{"a.go", "b.go"}})
		l.Observe(TurnObservation{Prompt: "solo work", FilesUsed: []string{"c.go"}})
	}

	edges := l.Neighbors("a.go")
	require.NotEmpty(t, edges)
	assert.Equal(t, "b.go", edges[0].File)
	assert.Greater(t, edges[0].Weight, 0.0)
	assert.LessOrEqual(t, edges[0].Weight, 1.0)

	for _, e := range edges {
		assert.NotEqual(t, "c.go", e.File, "disjoint files must not edge")
	}
}

func TestCoactivationEdgeDecaysWhenApart(t *testing.T) {
	l := NewLearner()
	for i := 0; i < 10; i++ {
		l.Observe(TurnObservation{Prompt: "pair", FilesUsed: []string{"a.go", "b.go"}})
	}
	weightBefore := l.Neighbors("a.go")[0].Weight

	// Now they stop appearing together.
	for i := 0; i < 20; i++ {
		l.Observe(TurnObservation{Prompt: "other", FilesUsed: []string{"x.go"}})
	}
	edges := l.Neighbors("a.go")
	if len(edges) > 0 {
		assert.Less(t, edges[0].Weight, weightBefore)
	}
}

func TestRhythmEWMA(t *testing.T) {
	l := NewLearner()
	// freq.go revisited every other turn: gaps of 2.
	for i := 0; i < 20; i++ {
		if i%2 == 0 {
			l.Observe(TurnObservation{Prompt: "freq", FilesUsed: []string{"freq.go"}})
		} else {
			l.Observe(TurnObservation{Prompt: "other", FilesUsed: []string{"other.go"}})
		}
	}

	r, ok := l.Rhythm("freq.go")
	require.True(t, ok)
	assert.InDelta(t, 2.0, r.Mean, 0.7, "EWMA converges toward the revisit gap")
}

func TestWarmStartSeeds(t *testing.T) {
	l := NewLearner()
	for i := 0; i < 10; i++ {
		l.Observe(TurnObservation{
			Prompt:        "useful work",
			FilesInjected: []string{"useful.go", "wasted.go"},
			FilesUsed:     []string{"useful.go"},
		})
	}

	seeds := l.WarmStartSeeds(3)
	require.NotEmpty(t, seeds)
	assert.Equal(t, "useful.go", seeds[0])
	assert.NotContains(t, seeds, "wasted.go")
}

func TestWarmStartSeedsLimit(t *testing.T) {
	l := NewLearner()
	for i := 0; i < 10; i++ {
		var files []string
		for j := 0; j < 8; j++ {
			files = append(files, fmt.Sprintf("f%d.go", j))
		}
		l.Observe(TurnObservation{Prompt: "work", FilesUsed: files})
	}
	assert.Len(t, l.WarmStartSeeds(5), 5)
}

func TestAssociationDecayPrunes(t *testing.T) {
	l := NewLearner()
	l.Observe(TurnObservation{Prompt: "ephemeral token", FilesUsed: []string{"once.go"}})
	before := l.AssociationCount()
	require.Greater(t, before, 0)

	// Hundreds of unrelated cycles decay the one-shot association away.
	for i := 0; i < 1500; i++ {
		l.Observe(TurnObservation{Prompt: "unrelated churn", FilesUsed: []string{"churn.go"}})
	}
	assocs := l.associations["ephemeral"]
	assert.Empty(t, assocs, "decayed associations are pruned")
}

func TestLearnedStateRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "learned_state.json")

	l := NewLearner()
	observeN(l, 30, "router config work", "router.go", "config.go")
	l.SaveSession([]string{"router.go"})
	l.Oracle().RecordCost(TaskBugFix, 1200)
	require.NoError(t, l.Save(path))

	loaded := LoadLearner(path)
	assert.Equal(t, l.TurnCount(), loaded.TurnCount())
	assert.Equal(t, l.Maturity(), loaded.Maturity())
	assert.Equal(t, l.AssociationCount(), loaded.AssociationCount())
	assert.Equal(t, l.EdgeCount(), loaded.EdgeCount())

	cost, ok := loaded.Oracle().EstimateCost(TaskBugFix)
	require.True(t, ok)
	assert.Equal(t, 1200, cost)

	// The reloaded learner answers queries identically.
	assert.Equal(t, l.Query("router"), loaded.Query("router"))
}

func TestLoadLearnerVersionMismatch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "learned_state.json")
	require.NoError(t,
		writeFile(path, `{"version": 42, "turn_count": 99, "associations": [], "coactivations": [], "rhythms": {}, "idf": {}}`))

	l := LoadLearner(path)
	assert.Equal(t, 0, l.TurnCount(), "unknown versions rebuild empty")
}

func TestLoadLearnerCorrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "learned_state.json")
	require.NoError(t, writeFile(path, "]]]"))
	l := LoadLearner(path)
	assert.Equal(t, 0, l.TurnCount())
}

func writeFile(path, content string) error {
	return os.WriteFile(path, []byte(content), 0o644)
}

func TestJaccard(t *testing.T) {
	assert.InDelta(t, 1.0, jaccard([]int{1, 2, 3}, []int{1, 2, 3}), 1e-9)
	assert.InDelta(t, 1.0/3.0, jaccard([]int{1, 2}, []int{2, 3}), 1e-9)
	assert.InDelta(t, 0.0, jaccard([]int{1}, []int{2}), 1e-9)
	assert.InDelta(t, 0.0, jaccard(nil, []int{1}), 1e-9)
}
