// Package learn holds the offline models that feed the router: the learner
// (prompt-file affinity, co-activation discovery, file rhythms), the
// predictor (pre-warm), and the oracle (task classification). All updates
// run post-turn, never on the latency-critical path.
package learn

import (
	"math"
	"sort"
	"strings"

	"attnroute/internal/attention"
	"attnroute/internal/logging"
)

const (
	// MaturityThreshold gates learner influence: below it the learner
	// records but returns nothing.
	MaturityThreshold = 25

	assocDecay     = 0.995
	assocEpsilon   = 0.005
	coactReinforce = 0.1
	coactJaccard   = 0.25
	coactDecay     = 0.995
	coactEpsilon   = 0.005
	rhythmAlpha    = 0.3
	windowTurns    = 30
	usefulnessEWMA = 0.3

	minTokenLen = 3
)

// Maturity is the learner's gating state.
type Maturity string

const (
	MaturityObserving Maturity = "observing"
	MaturityActive    Maturity = "active"
)

var stopWords = map[string]bool{}

func init() {
	for _, w := range strings.Fields(
		"the a an is are was were be been being have has had do does did " +
			"will would could should may might can to of in for on with at by " +
			"from as into through then here there when where why how all each " +
			"every both few more most some such not only just but and or if " +
			"about what which who this that these those it its my me we our " +
			"you your up down no so very too than please help want like think " +
			"know see look make take get let say tell give use find show try " +
			"ask work call put keep also file code change update add remove " +
			"fix check run new now still already done good right sure yes okay thanks thank") {
		stopWords[w] = true
	}
}

// ExtractWords tokenizes a prompt for learning: lowercase, identifier-ish
// boundaries, stop words and short tokens dropped.
func ExtractWords(prompt string) []string {
	var words []string
	for _, w := range attention.Tokenize(prompt) {
		if len(w) < minTokenLen || stopWords[w] {
			continue
		}
		words = append(words, w)
	}
	return words
}

// Rhythm is the EWMA revisit cadence of one file, in turns.
type Rhythm struct {
	Mean     float64 `json:"mean"`
	Var      float64 `json:"var"`
	LastTurn int     `json:"last_turn"`
}

// TurnObservation is the post-turn input to the learner.
type TurnObservation struct {
	Prompt        string
	FilesInjected []string
	FilesUsed     []string
}

// Learner owns prompt-file associations, co-activation edges, and file
// rhythms. Nothing else may mutate them.
type Learner struct {
	turnCount     int
	associations  map[string]map[string]float64 // token -> file -> strength
	coactivations map[[2]string]float64         // ordered pair -> weight
	rhythms       map[string]Rhythm
	docFreq       map[string]int   // token -> turns it appeared in
	windows       map[string][]int // file -> activation turns (last 30)
	usefulness    map[string]float64
	lastSession   []string
	oracle        *Oracle
}

// NewLearner returns an empty learner in observing maturity.
func NewLearner() *Learner {
	return &Learner{
		associations:  map[string]map[string]float64{},
		coactivations: map[[2]string]float64{},
		rhythms:       map[string]Rhythm{},
		docFreq:       map[string]int{},
		windows:       map[string][]int{},
		usefulness:    map[string]float64{},
		oracle:        NewOracle(),
	}
}

// Oracle returns the task-cost oracle persisted with the learned state.
func (l *Learner) Oracle() *Oracle { return l.oracle }

// Maturity returns the gating state for the current turn count.
func (l *Learner) Maturity() Maturity {
	if l.turnCount >= MaturityThreshold {
		return MaturityActive
	}
	return MaturityObserving
}

// Active implements attention.LearnerModel.
func (l *Learner) Active() bool { return l.Maturity() == MaturityActive }

// TurnCount returns the number of observed turns.
func (l *Learner) TurnCount() int { return l.turnCount }

// IDF implements attention.LearnerModel:
// log((1 + N) / (1 + df(token))) + 1, updated incrementally.
func (l *Learner) IDF(token string) float64 {
	df := l.docFreq[token]
	return math.Log(float64(1+l.turnCount)/float64(1+df)) + 1
}

// Query implements attention.LearnerModel. Returns nothing while observing.
func (l *Learner) Query(token string) []attention.Association {
	if !l.Active() {
		return nil
	}
	files := l.associations[token]
	if len(files) == 0 {
		return nil
	}
	out := make([]attention.Association, 0, len(files))
	for file, strength := range files {
		out = append(out, attention.Association{File: file, Strength: strength})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Strength != out[j].Strength {
			return out[i].Strength > out[j].Strength
		}
		return out[i].File < out[j].File
	})
	return out
}

// Neighbors implements attention.LearnerModel over the co-activation graph.
func (l *Learner) Neighbors(file string) []attention.CoactEdge {
	var edges []attention.CoactEdge
	for pair, weight := range l.coactivations {
		switch file {
		case pair[0]:
			edges = append(edges, attention.CoactEdge{File: pair[1], Weight: weight})
		case pair[1]:
			edges = append(edges, attention.CoactEdge{File: pair[0], Weight: weight})
		}
	}
	sort.Slice(edges, func(i, j int) bool {
		if edges[i].Weight != edges[j].Weight {
			return edges[i].Weight > edges[j].Weight
		}
		return edges[i].File < edges[j].File
	})
	return edges
}

// usefulnessOf scores one file's contribution to a turn. Discovery (used
// without being injected) counts full; injected-but-unused costs a little.
func usefulnessOf(injected, used bool) float64 {
	switch {
	case used:
		return 1.0
	case injected:
		return -0.2
	default:
		return 0.0
	}
}

// Observe ingests one turn: associations, co-activation, rhythms, decay.
// Called post-turn, off the critical path.
func (l *Learner) Observe(turn TurnObservation) {
	timer := logging.StartTimer(logging.CategoryLearn, "Learner.Observe")
	defer timer.Stop()

	words := ExtractWords(turn.Prompt)

	injectedSet := toSet(turn.FilesInjected)
	usedSet := toSet(turn.FilesUsed)
	allFiles := map[string]bool{}
	for f := range injectedSet {
		allFiles[f] = true
	}
	for f := range usedSet {
		allFiles[f] = true
	}

	// Document frequency over unique tokens.
	seen := map[string]bool{}
	for _, w := range words {
		if !seen[w] {
			seen[w] = true
			l.docFreq[w]++
		}
	}

	// Association strengths, weighted by usefulness and IDF.
	for _, w := range words {
		idf := l.IDF(w)
		for f := range allFiles {
			u := usefulnessOf(injectedSet[f], usedSet[f])
			if u == 0 {
				continue
			}
			fm := l.associations[w]
			if fm == nil {
				fm = map[string]float64{}
				l.associations[w] = fm
			}
			fm[f] += u * idf
			if fm[f] < 0 {
				fm[f] = 0
			}
		}
	}

	// Per-file usefulness EWMA drives warm-start seeding.
	for f := range allFiles {
		u := usefulnessOf(injectedSet[f], usedSet[f])
		prev, ok := l.usefulness[f]
		if !ok {
			l.usefulness[f] = u
		} else {
			l.usefulness[f] = (1-usefulnessEWMA)*prev + usefulnessEWMA*u
		}
	}

	l.observeWindowsAndRhythms(usedSet)
	l.updateCoactivation(turn.FilesUsed)
	l.decayCycle()

	l.turnCount++
}

func (l *Learner) observeWindowsAndRhythms(usedSet map[string]bool) {
	for f := range usedSet {
		if r, ok := l.rhythms[f]; ok {
			gap := float64(l.turnCount - r.LastTurn)
			delta := gap - r.Mean
			r.Mean = (1-rhythmAlpha)*r.Mean + rhythmAlpha*gap
			r.Var = (1-rhythmAlpha)*r.Var + rhythmAlpha*delta*delta
			r.LastTurn = l.turnCount
			l.rhythms[f] = r
		} else {
			l.rhythms[f] = Rhythm{Mean: 0, Var: 0, LastTurn: l.turnCount}
		}

		l.windows[f] = append(l.windows[f], l.turnCount)
	}

	// Trim windows to the last 30 turns.
	cutoff := l.turnCount - windowTurns
	for f, turns := range l.windows {
		kept := turns[:0]
		for _, t := range turns {
			if t > cutoff {
				kept = append(kept, t)
			}
		}
		if len(kept) == 0 {
			delete(l.windows, f)
			continue
		}
		l.windows[f] = kept
	}
}

// updateCoactivation reinforces edges between files used together when
// their activation windows overlap enough, and decays the rest.
func (l *Learner) updateCoactivation(filesUsed []string) {
	reinforced := map[[2]string]bool{}

	files := append([]string(nil), filesUsed...)
	sort.Strings(files)
	for i := 0; i < len(files); i++ {
		for j := i + 1; j < len(files); j++ {
			a, b := files[i], files[j]
			if a == b {
				continue
			}
			key := pairKey(a, b)
			jac := jaccard(l.windows[a], l.windows[b])
			if jac >= coactJaccard {
				l.coactivations[key] = math.Min(l.coactivations[key]+coactReinforce, 1.0)
				reinforced[key] = true
			}
		}
	}

	for key, weight := range l.coactivations {
		if reinforced[key] {
			continue
		}
		weight *= coactDecay
		if weight < coactEpsilon {
			delete(l.coactivations, key)
			continue
		}
		l.coactivations[key] = weight
	}
}

// decayCycle applies the global association decay and prunes tiny strengths.
func (l *Learner) decayCycle() {
	for token, files := range l.associations {
		for file, strength := range files {
			strength *= assocDecay
			if strength < assocEpsilon {
				delete(files, file)
				continue
			}
			files[file] = strength
		}
		if len(files) == 0 {
			delete(l.associations, token)
		}
	}
}

// SaveSession records the session's active files; the list is persisted
// with the learned state. WarmStartSeeds does not read it.
func (l *Learner) SaveSession(activeFiles []string) {
	l.lastSession = append([]string(nil), activeFiles...)
}

// WarmStartSeeds returns the top-k files by recent usefulness, to be seeded
// at warm_threshold + 0.05 when a session opens. Biases the first turn
// towards historically useful files.
func (l *Learner) WarmStartSeeds(k int) []string {
	type fileScore struct {
		file  string
		score float64
	}
	scores := make([]fileScore, 0, len(l.usefulness))
	for f, u := range l.usefulness {
		if u > 0 {
			scores = append(scores, fileScore{file: f, score: u})
		}
	}
	sort.Slice(scores, func(i, j int) bool {
		if scores[i].score != scores[j].score {
			return scores[i].score > scores[j].score
		}
		return scores[i].file < scores[j].file
	})
	if len(scores) > k {
		scores = scores[:k]
	}
	files := make([]string, len(scores))
	for i, s := range scores {
		files[i] = s.file
	}
	return files
}

// Rhythm returns the revisit rhythm for a file, if observed.
func (l *Learner) Rhythm(file string) (Rhythm, bool) {
	r, ok := l.rhythms[file]
	return r, ok
}

// AssociationCount is the number of live (token, file) pairs.
func (l *Learner) AssociationCount() int {
	n := 0
	for _, files := range l.associations {
		n += len(files)
	}
	return n
}

// EdgeCount is the number of live co-activation edges.
func (l *Learner) EdgeCount() int { return len(l.coactivations) }

func pairKey(a, b string) [2]string {
	if a < b {
		return [2]string{a, b}
	}
	return [2]string{b, a}
}

func jaccard(a, b []int) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	setA := map[int]bool{}
	for _, t := range a {
		setA[t] = true
	}
	inter := 0
	union := len(setA)
	seenB := map[int]bool{}
	for _, t := range b {
		if seenB[t] {
			continue
		}
		seenB[t] = true
		if setA[t] {
			inter++
		} else {
			union++
		}
	}
	return float64(inter) / float64(union)
}

func toSet(items []string) map[string]bool {
	set := make(map[string]bool, len(items))
	for _, item := range items {
		set[item] = true
	}
	return set
}
