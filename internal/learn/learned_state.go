package learn

import (
	"encoding/json"
	"fmt"
	"os"

	"attnroute/internal/logging"
	"attnroute/internal/telemetry"
)

// LearnedStateVersion is the learned_state.json schema version.
const LearnedStateVersion = 1

// learnedStateFile is the on-disk shape of learned_state.json. Associations
// and co-activations serialize as triples to keep the file compact and
// diffable.
type learnedStateFile struct {
	Version       int                `json:"version"`
	TurnCount     int                `json:"turn_count"`
	Associations  [][3]any           `json:"associations"`  // [token, file, strength]
	Coactivations [][3]any           `json:"coactivations"` // [a, b, weight]
	Rhythms       map[string]Rhythm  `json:"rhythms"`
	IDF           map[string]int     `json:"idf"` // token -> doc freq
	Windows       map[string][]int   `json:"windows,omitempty"`
	Usefulness    map[string]float64 `json:"usefulness,omitempty"`
	LastSession   []string           `json:"last_session,omitempty"`
	Oracle        *Oracle            `json:"oracle,omitempty"`
}

// Save persists the learner atomically.
func (l *Learner) Save(path string) error {
	out := learnedStateFile{
		Version:     LearnedStateVersion,
		TurnCount:   l.turnCount,
		Rhythms:     l.rhythms,
		IDF:         l.docFreq,
		Windows:     l.windows,
		Usefulness:  l.usefulness,
		LastSession: l.lastSession,
		Oracle:      l.oracle,
	}
	for token, files := range l.associations {
		for file, strength := range files {
			out.Associations = append(out.Associations, [3]any{token, file, strength})
		}
	}
	for pair, weight := range l.coactivations {
		out.Coactivations = append(out.Coactivations, [3]any{pair[0], pair[1], weight})
	}

	data, err := json.Marshal(out)
	if err != nil {
		return fmt.Errorf("marshal learned state: %w", err)
	}
	if err := telemetry.AtomicWrite(path, data); err != nil {
		return fmt.Errorf("persist learned state: %w", err)
	}
	return nil
}

// LoadLearner reads learned_state.json. Missing, corrupt, or
// version-mismatched files yield a fresh observing learner.
func LoadLearner(path string) *Learner {
	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			logging.Get(logging.CategoryLearn).Warnw("cannot read learned state, starting fresh", "path", path, "err", err)
		}
		return NewLearner()
	}

	var in learnedStateFile
	if err := json.Unmarshal(data, &in); err != nil {
		logging.Get(logging.CategoryLearn).Warnw("corrupt learned state, rebuilding", "path", path, "err", err)
		return NewLearner()
	}
	if in.Version != LearnedStateVersion {
		logging.Get(logging.CategoryLearn).Warnw("learned state version mismatch, rebuilding",
			"path", path, "got", in.Version, "want", LearnedStateVersion)
		return NewLearner()
	}

	l := NewLearner()
	l.turnCount = in.TurnCount
	if in.Rhythms != nil {
		l.rhythms = in.Rhythms
	}
	if in.IDF != nil {
		l.docFreq = in.IDF
	}
	if in.Windows != nil {
		l.windows = in.Windows
	}
	if in.Usefulness != nil {
		l.usefulness = in.Usefulness
	}
	l.lastSession = in.LastSession
	if in.Oracle != nil {
		if in.Oracle.TaskCosts == nil {
			in.Oracle.TaskCosts = map[TaskType]*CostEntry{}
		}
		l.oracle = in.Oracle
	}

	for _, triple := range in.Associations {
		token, okT := triple[0].(string)
		file, okF := triple[1].(string)
		strength, okS := triple[2].(float64)
		if !okT || !okF || !okS {
			logging.Get(logging.CategoryLearn).Debugw("skipping malformed association triple")
			continue
		}
		fm := l.associations[token]
		if fm == nil {
			fm = map[string]float64{}
			l.associations[token] = fm
		}
		fm[file] = strength
	}
	for _, triple := range in.Coactivations {
		a, okA := triple[0].(string)
		b, okB := triple[1].(string)
		weight, okW := triple[2].(float64)
		if !okA || !okB || !okW {
			logging.Get(logging.CategoryLearn).Debugw("skipping malformed coactivation triple")
			continue
		}
		l.coactivations[pairKey(a, b)] = weight
	}
	return l
}
