package learn

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"attnroute/internal/attention"
	"attnroute/internal/logging"
	"attnroute/internal/telemetry"
)

// PredictorVersion is the predictor_model.json schema version. Incompatible
// versions are discarded with a warning and rebuilt from the turn log.
const PredictorVersion = 1

const (
	confMention       = 0.9
	confStrongKeyword = 0.7
	confFallbackCap   = 0.4

	strongKeywordIDF = 3.0
	markovThreshold  = 0.3

	fallbackRecencyW    = 0.5
	fallbackCooccurW    = 0.3
	fallbackPopularityW = 0.2
)

// Predictor is the pre-warm model: prior mentions, keyword strength, and a
// Markov transition over recently active files.
type Predictor struct {
	Version      int                       `json:"version"`
	TurnCount    int                       `json:"turn_count"`
	Popularity   map[string]int            `json:"popularity"`   // file -> activation count
	TokenIndex   map[string][]string       `json:"token_index"`  // token -> files
	DocFreq      map[string]int            `json:"doc_freq"`     // token -> turns seen
	Transitions  map[string]map[string]int `json:"transitions"`  // prev -> next -> count
	TransTotals  map[string]int            `json:"trans_totals"` // prev -> total outgoing
	LastSeenTurn map[string]int            `json:"last_seen"`    // file -> last active turn
	PrevActive   []string                  `json:"prev_active"`  // previous turn's files
}

// NewPredictor returns an empty model.
func NewPredictor() *Predictor {
	return &Predictor{
		Version:      PredictorVersion,
		Popularity:   map[string]int{},
		TokenIndex:   map[string][]string{},
		DocFreq:      map[string]int{},
		Transitions:  map[string]map[string]int{},
		TransTotals:  map[string]int{},
		LastSeenTurn: map[string]int{},
	}
}

// Update ingests one finished turn. Offline, post-turn.
func (p *Predictor) Update(prompt string, filesUsed []string) {
	timer := logging.StartTimer(logging.CategoryPredict, "Predictor.Update")
	defer timer.Stop()

	words := ExtractWords(prompt)
	seen := map[string]bool{}
	for _, w := range words {
		if seen[w] {
			continue
		}
		seen[w] = true
		p.DocFreq[w]++
		for _, f := range filesUsed {
			if !contains(p.TokenIndex[w], f) {
				p.TokenIndex[w] = append(p.TokenIndex[w], f)
			}
		}
	}

	for _, f := range filesUsed {
		p.Popularity[f]++
		p.LastSeenTurn[f] = p.TurnCount
	}

	// Markov transitions from the previous turn's active set.
	for _, prev := range p.PrevActive {
		next := p.Transitions[prev]
		if next == nil {
			next = map[string]int{}
			p.Transitions[prev] = next
		}
		for _, cur := range filesUsed {
			if cur == prev {
				continue
			}
			next[cur]++
			p.TransTotals[prev]++
		}
	}

	p.PrevActive = append([]string(nil), filesUsed...)
	p.TurnCount++
}

// idf mirrors the learner's formula over the predictor's own corpus.
func (p *Predictor) idf(token string) float64 {
	return math.Log(float64(1+p.TurnCount)/float64(1+p.DocFreq[token])) + 1
}

// Predict implements attention.PredictorModel. Confident mode fires on
// literal file mentions, strong single-file keywords, or a Markov transition
// above threshold; otherwise fallback blends recency, co-occurrence with the
// last hot set, and popularity, capped low.
func (p *Predictor) Predict(prompt string, lastHot []string) []attention.Prediction {
	var confident []attention.Prediction
	promptLower := strings.ToLower(prompt)

	// (a) literal basename mentions
	for file := range p.Popularity {
		base := strings.ToLower(filepath.Base(file))
		if base != "" && strings.Contains(promptLower, base) {
			confident = append(confident, attention.Prediction{
				File: file, Confidence: confMention, Mode: attention.ModeConfident,
			})
		}
	}

	// (b) strong keywords pointing at a single file
	mentioned := predictionSet(confident)
	for _, token := range ExtractWords(prompt) {
		files := p.TokenIndex[token]
		if len(files) != 1 || p.idf(token) < strongKeywordIDF {
			continue
		}
		if !mentioned[files[0]] {
			confident = append(confident, attention.Prediction{
				File: files[0], Confidence: confStrongKeyword, Mode: attention.ModeConfident,
			})
			mentioned[files[0]] = true
		}
	}

	// (c) Markov transition from the previous hot set
	for _, prev := range lastHot {
		total := p.TransTotals[prev]
		if total == 0 {
			continue
		}
		for next, count := range p.Transitions[prev] {
			prob := float64(count) / float64(total)
			if prob > markovThreshold && !mentioned[next] {
				confident = append(confident, attention.Prediction{
					File: next, Confidence: prob, Mode: attention.ModeConfident,
				})
				mentioned[next] = true
			}
		}
	}

	if len(confident) > 0 {
		sortPredictions(confident)
		return confident
	}
	return p.fallback(lastHot)
}

// fallback blends recency, co-occurrence, and popularity 0.5/0.3/0.2.
func (p *Predictor) fallback(lastHot []string) []attention.Prediction {
	if len(p.Popularity) == 0 {
		return nil
	}

	maxPop := 0
	for _, count := range p.Popularity {
		if count > maxPop {
			maxPop = count
		}
	}

	hotSet := toSet(lastHot)
	var out []attention.Prediction
	for file, pop := range p.Popularity {
		if hotSet[file] {
			continue
		}

		gap := float64(p.TurnCount - p.LastSeenTurn[file])
		recency := math.Exp(-gap / 10.0)

		cooccur := 0.0
		for _, prev := range lastHot {
			if total := p.TransTotals[prev]; total > 0 {
				cooccur = math.Max(cooccur, float64(p.Transitions[prev][file])/float64(total))
			}
		}

		popularity := float64(pop) / float64(maxPop)

		score := fallbackRecencyW*recency + fallbackCooccurW*cooccur + fallbackPopularityW*popularity
		out = append(out, attention.Prediction{
			File: file, Confidence: math.Min(score, confFallbackCap), Mode: attention.ModeFallback,
		})
	}
	sortPredictions(out)
	return out
}

func sortPredictions(preds []attention.Prediction) {
	sort.Slice(preds, func(i, j int) bool {
		if preds[i].Confidence != preds[j].Confidence {
			return preds[i].Confidence > preds[j].Confidence
		}
		return preds[i].File < preds[j].File
	})
}

func predictionSet(preds []attention.Prediction) map[string]bool {
	set := map[string]bool{}
	for _, p := range preds {
		set[p.File] = true
	}
	return set
}

// Save persists the model atomically as versioned JSON. Binary formats are
// rejected for portability and crash-safety.
func (p *Predictor) Save(path string) error {
	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("marshal predictor model: %w", err)
	}
	if err := telemetry.AtomicWrite(path, data); err != nil {
		return fmt.Errorf("persist predictor model: %w", err)
	}
	return nil
}

// LoadPredictor reads predictor_model.json. An incompatible version is
// discarded with a warning and rebuilt from the turn log when available.
func LoadPredictor(path, turnsPath string) *Predictor {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return NewPredictor()
		}
		logging.Get(logging.CategoryPredict).Warnw("cannot read predictor model", "path", path, "err", err)
		return rebuildFromTurns(turnsPath)
	}

	var p Predictor
	if err := json.Unmarshal(data, &p); err != nil {
		logging.Get(logging.CategoryPredict).Warnw("corrupt predictor model, rebuilding", "path", path, "err", err)
		return rebuildFromTurns(turnsPath)
	}
	if p.Version != PredictorVersion {
		logging.Get(logging.CategoryPredict).Warnw("predictor model version mismatch, rebuilding",
			"path", path, "got", p.Version, "want", PredictorVersion)
		return rebuildFromTurns(turnsPath)
	}

	fresh := NewPredictor()
	if p.Popularity == nil {
		p.Popularity = fresh.Popularity
	}
	if p.TokenIndex == nil {
		p.TokenIndex = fresh.TokenIndex
	}
	if p.DocFreq == nil {
		p.DocFreq = fresh.DocFreq
	}
	if p.Transitions == nil {
		p.Transitions = fresh.Transitions
	}
	if p.TransTotals == nil {
		p.TransTotals = fresh.TransTotals
	}
	if p.LastSeenTurn == nil {
		p.LastSeenTurn = fresh.LastSeenTurn
	}
	return &p
}

// rebuildFromTurns replays the turn log into a fresh model.
func rebuildFromTurns(turnsPath string) *Predictor {
	p := NewPredictor()
	if turnsPath == "" {
		return p
	}
	records, err := telemetry.ReadJSONL[telemetry.TurnRecord](turnsPath)
	if err != nil || len(records) == 0 {
		return p
	}
	logging.Get(logging.CategoryPredict).Infow("rebuilding predictor from turn log", "turns", len(records))
	for _, rec := range records {
		p.Update(rec.PromptText, rec.FilesUsed)
	}
	return p
}

func contains(items []string, target string) bool {
	for _, item := range items {
		if item == target {
			return true
		}
	}
	return false
}
