package learn

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"attnroute/internal/attention"
	"attnroute/internal/telemetry"
)

func TestPredictFileMentionConfident(t *testing.T) {
	p := NewPredictor()
	p.Update("work on the router", []string{"src/router.go"})

	preds := p.Predict("please fix src/router.go", nil)
	require.NotEmpty(t, preds)
	assert.Equal(t, "src/router.go", preds[0].File)
	assert.Equal(t, attention.ModeConfident, preds[0].Mode)
	assert.InDelta(t, 0.9, preds[0].Confidence, 1e-9)
}

func TestPredictStrongKeyword(t *testing.T) {
	p := NewPredictor()
	// "tokenizer" maps to exactly one file and must become rare enough to
	// clear the IDF threshold.
	p.Update("tokenizer rewrite", []string{"lexer.go"})
	for i := 0; i < 30; i++ {
		p.Update("unrelated churn prompt", []string{"other.go"})
	}

	preds := p.Predict("the tokenizer is slow", nil)
	require.NotEmpty(t, preds)
	assert.Equal(t, "lexer.go", preds[0].File)
	assert.Equal(t, attention.ModeConfident, preds[0].Mode)
	assert.InDelta(t, 0.7, preds[0].Confidence, 1e-9)
}

func TestPredictMarkovTransition(t *testing.T) {
	p := NewPredictor()
	// a.go is reliably followed by b.go.
	for i := 0; i < 10; i++ {
		p.Update("first", []string{"a.go"})
		p.Update("second", []string{"b.go"})
	}

	preds := p.Predict("zzz nothing matching", []string{"a.go"})
	require.NotEmpty(t, preds)
	assert.Equal(t, "b.go", preds[0].File)
	assert.Equal(t, attention.ModeConfident, preds[0].Mode)
	assert.Greater(t, preds[0].Confidence, markovThreshold)
}

func TestPredictFallbackCapped(t *testing.T) {
	p := NewPredictor()
	p.Update("popular work", []string{"popular.go"})
	p.Update("popular again", []string{"popular.go"})
	p.Update("rare work", []string{"rare.go"})

	preds := p.Predict("zzz qqq unmatched", nil)
	require.NotEmpty(t, preds)
	assert.Equal(t, attention.ModeFallback, preds[0].Mode)
	for _, pred := range preds {
		assert.LessOrEqual(t, pred.Confidence, confFallbackCap)
	}
}

func TestPredictEmptyModel(t *testing.T) {
	p := NewPredictor()
	assert.Empty(t, p.Predict("anything", nil))
}

func TestPredictorRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "predictor_model.json")

	p := NewPredictor()
	p.Update("router work", []string{"router.go", "config.go"})
	p.Update("more work", []string{"router.go"})
	require.NoError(t, p.Save(path))

	loaded := LoadPredictor(path, "")
	assert.Equal(t, p.TurnCount, loaded.TurnCount)
	assert.Equal(t, p.Popularity, loaded.Popularity)
	assert.Equal(t, p.Transitions, loaded.Transitions)
}

func TestPredictorVersionMismatchRebuildsFromTurns(t *testing.T) {
	dir := t.TempDir()
	modelPath := filepath.Join(dir, "predictor_model.json")
	turnsPath := filepath.Join(dir, "turns.jsonl")

	require.NoError(t, writeFile(modelPath, `{"version": 999}`))
	require.NoError(t, telemetry.AppendJSONL(turnsPath, telemetry.TurnRecord{
		TurnID: "t1", PromptText: "router work", FilesUsed: []string{"router.go"},
	}))
	require.NoError(t, telemetry.AppendJSONL(turnsPath, telemetry.TurnRecord{
		TurnID: "t2", PromptText: "router again", FilesUsed: []string{"router.go"},
	}))

	p := LoadPredictor(modelPath, turnsPath)
	assert.Equal(t, 2, p.TurnCount, "rebuilt from the turn log")
	assert.Equal(t, 2, p.Popularity["router.go"])
}

func TestPredictorCorruptModelNoTurnLog(t *testing.T) {
	dir := t.TempDir()
	modelPath := filepath.Join(dir, "predictor_model.json")
	require.NoError(t, writeFile(modelPath, "{{{"))

	p := LoadPredictor(modelPath, filepath.Join(dir, "missing.jsonl"))
	assert.Equal(t, 0, p.TurnCount)
}

func TestOracleClassification(t *testing.T) {
	o := NewOracle()
	assert.Equal(t, TaskBugFix, o.ClassifyTask("fix the broken login"))
	assert.Equal(t, TaskRefactor, o.ClassifyTask("refactor the module"))
	assert.Equal(t, TaskExploration, o.ClassifyTask("explore the codebase"))
	assert.Equal(t, TaskConfig, o.ClassifyTask("change this environment setting"))
	assert.Equal(t, TaskFeature, o.ClassifyTask("hello world"), "unmatched defaults to feature")
}

func TestOracleCostTracking(t *testing.T) {
	o := NewOracle()
	_, ok := o.EstimateCost(TaskBugFix)
	assert.False(t, ok)

	o.RecordCost(TaskBugFix, 1000)
	o.RecordCost(TaskBugFix, 2000)
	cost, ok := o.EstimateCost(TaskBugFix)
	require.True(t, ok)
	assert.Equal(t, 1500, cost)
}
