package attention

import (
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"attnroute/internal/config"
	"attnroute/internal/logging"
)

// Router runs the synchronous scoring pipeline. It exclusively owns the
// AttentionState mutation for the duration of a turn; the learner and
// predictor are consulted through read-only snapshots.
type Router struct {
	cfg         *config.Config
	keywords    config.KeywordIndex
	fileCat     map[string]config.Category
	learner     LearnerModel   // nil when no learned state exists yet
	predictor   PredictorModel // nil disables phase 7
	indexer     Indexer        // optional external index
	repoMap     RepoMap        // optional outline source
	clock       Clock
	projectRoot string
}

// NewRouter builds a router over the given configuration and collaborators.
// learner, predictor, indexer, and repoMap may be nil.
func NewRouter(cfg *config.Config, projectRoot string, clock Clock,
	learner LearnerModel, predictor PredictorModel, indexer Indexer, repoMap RepoMap) *Router {

	fileCat := map[string]config.Category{}
	for _, entry := range cfg.Keywords {
		for _, target := range entry.Targets {
			fileCat[target] = entry.Category
		}
	}

	return &Router{
		cfg:         cfg,
		keywords:    config.BuildKeywordIndex(cfg.Keywords),
		fileCat:     fileCat,
		learner:     learner,
		predictor:   predictor,
		indexer:     indexer,
		repoMap:     repoMap,
		clock:       clock,
		projectRoot: projectRoot,
	}
}

var fileMentionRe = regexp.MustCompile(
	`\b([\w./-]+\.(?:go|rs|py|js|ts|tsx|jsx|java|md|json|html|css|yaml|yml|toml|c|cpp|h|hpp))\b`)

// Route runs all eight phases against state and assembles the context blob.
// Deterministic given fixed inputs; tie-breaking is a stable sort keyed by
// (-score, -streak, path).
func (r *Router) Route(state *State, prompt string) *RoutingResult {
	timer := logging.StartTimer(logging.CategoryRouter, "Route")
	defer timer.Stop()
	start := r.clock.Now()

	result := &RoutingResult{
		State:             state,
		DirectlyActivated: map[string]bool{},
		Tiers:             map[string]Tier{},
	}

	// The previous turn's hot set feeds the predictor before decay runs.
	lastHot := state.HotFiles(r.cfg.HotThreshold)
	sort.Strings(lastHot)

	tokens := Tokenize(prompt)

	r.phaseDecay(state, result)
	r.phaseKeywords(state, prompt, tokens, result)
	r.phaseIndexerSeed(state, prompt, result)
	r.phaseLearnedBoost(state, tokens, result)
	r.phaseCoactivation(state, start, result)
	r.phasePinnedFloor(state)
	r.phaseDemoted(state)
	r.phasePredictor(state, prompt, lastHot, result)
	r.phaseSortAndTier(state, result)

	r.assemble(state, result)

	state.TurnCount++
	state.LastUpdate = r.clock.Now()

	result.Stats.TurnElapsed = r.clock.Now().Sub(start)
	if result.Stats.TurnElapsed > r.cfg.TurnDeadline {
		result.Stats.DeadlineExceeded = true
		logging.Get(logging.CategoryRouter).Warnw("turn deadline exceeded",
			"elapsed", result.Stats.TurnElapsed, "deadline", r.cfg.TurnDeadline)
	}
	return result
}

// phaseDecay multiplies every score by its category decay rate and drops
// entries below epsilon.
func (r *Router) phaseDecay(state *State, result *RoutingResult) {
	for file, score := range state.Scores {
		decayed := score * r.cfg.DecayFor(r.categoryOf(file))
		if decayed < r.cfg.ScoreEpsilon {
			delete(state.Scores, file)
			delete(state.Streaks, file)
			result.Stats.DecayedOut++
			continue
		}
		state.Scores[file] = Clamp(decayed, r.cfg.ScoreCeiling)
	}
}

// phaseKeywords activates configured keyword targets and literal file
// mentions found in the prompt.
func (r *Router) phaseKeywords(state *State, prompt string, tokens []string, result *RoutingResult) {
	for _, token := range tokens {
		for _, entry := range r.keywords[token] {
			for _, target := range entry.Targets {
				activation := Clamp(1.0*entry.Weight, r.cfg.ScoreCeiling)
				if activation > state.Scores[target] {
					state.Scores[target] = activation
				}
				result.DirectlyActivated[target] = true
				result.Stats.KeywordHits++
			}
		}
	}

	// Literal path mentions activate even without a keyword entry, as long
	// as they resolve to a known file (see resolveMention).
	for _, mention := range fileMentionRe.FindAllString(prompt, -1) {
		rel := r.resolveMention(state, mention)
		if rel == "" {
			continue
		}
		if state.Scores[rel] < 1.0 {
			state.Scores[rel] = Clamp(1.0, r.cfg.ScoreCeiling)
		}
		result.DirectlyActivated[rel] = true
		result.Stats.KeywordHits++
	}
}

// resolveMention maps a mentioned path to a known FileId: an existing scored
// file with a matching basename, a keyword target with a matching basename,
// or a path that exists on disk. Only the last case checks the disk.
func (r *Router) resolveMention(state *State, mention string) string {
	base := filepath.Base(mention)
	for file := range state.Scores {
		if filepath.Base(file) == base {
			return file
		}
	}
	for _, entry := range r.cfg.Keywords {
		for _, target := range entry.Targets {
			if filepath.Base(target) == base {
				return target
			}
		}
	}
	if r.projectRoot != "" {
		if _, err := os.Stat(filepath.Join(r.projectRoot, mention)); err == nil {
			return mention
		}
	}
	return ""
}

// phaseIndexerSeed lets the optional external index surface warm-tier
// candidates the keyword map doesn't know about. Seeds are bounded under
// the hot threshold so the index can never promote a file by itself.
func (r *Router) phaseIndexerSeed(state *State, prompt string, result *RoutingResult) {
	if r.indexer == nil {
		return
	}
	hits := r.indexer.Query(prompt)
	if len(hits) == 0 {
		return
	}
	maxScore := hits[0].Score
	for _, h := range hits {
		if h.Score > maxScore {
			maxScore = h.Score
		}
	}
	if maxScore <= 0 {
		return
	}
	limit := 5
	for i, h := range hits {
		if i >= limit {
			break
		}
		seed := r.cfg.WarmThreshold + 0.1*(h.Score/maxScore)
		if seed > state.Scores[h.File] {
			state.Scores[h.File] = Clamp(seed, r.cfg.ScoreCeiling)
		}
	}
}

// phaseLearnedBoost applies learned prompt-file associations. Gated on the
// learner's maturity: while observing, the boost is zero.
func (r *Router) phaseLearnedBoost(state *State, tokens []string, result *RoutingResult) {
	if r.learner == nil || !r.learner.Active() {
		return
	}
	for _, token := range tokens {
		idf := r.learner.IDF(token)
		for _, assoc := range r.learner.Query(token) {
			boost := r.cfg.LearnedBoost * idf * assoc.Strength
			if boost <= 0 {
				continue
			}
			state.Scores[assoc.File] = Clamp(state.Scores[assoc.File]+boost, r.cfg.ScoreCeiling)
			result.Stats.LearnedBoosts++
		}
	}
}

// phaseCoactivation spreads activation from directly activated files through
// the co-activation graph: depth 1 and depth 2, bounded by the phase budget.
// A file reached at both depths takes the larger bonus once.
func (r *Router) phaseCoactivation(state *State, turnStart time.Time, result *RoutingResult) {
	if r.learner == nil || len(result.DirectlyActivated) == 0 {
		return
	}

	seeds := make([]string, 0, len(result.DirectlyActivated))
	for file := range result.DirectlyActivated {
		seeds = append(seeds, file)
	}
	sort.Strings(seeds) // reproducible traversal order

	bonuses := map[string]float64{}
	for _, seed := range seeds {
		if r.clock.Now().Sub(turnStart) > r.cfg.BFSBudget {
			result.Stats.CoactPartial = true
			break
		}
		for _, e1 := range r.learner.Neighbors(seed) {
			b1 := r.cfg.CoactivationHop1 * e1.Weight
			if b1 > bonuses[e1.File] {
				bonuses[e1.File] = b1
			}
			for _, e2 := range r.learner.Neighbors(e1.File) {
				if e2.File == seed {
					continue
				}
				b2 := r.cfg.CoactivationHop2 * e2.Weight
				if b2 > bonuses[e2.File] {
					bonuses[e2.File] = b2
				}
			}
		}
	}

	for file, bonus := range bonuses {
		next := Clamp(state.Scores[file]+bonus, r.cfg.ScoreCeiling)
		// Directly activated files already carry their keyword activation;
		// a depth-1 bonus may not push them past 1.0.
		if result.DirectlyActivated[file] && next > 1.0 {
			if cur := state.Scores[file]; cur > 1.0 {
				next = cur
			} else {
				next = 1.0
			}
		}
		state.Scores[file] = next
		result.Stats.CoactVisited++
	}
}

// phasePinnedFloor raises every pinned file to just above the warm
// threshold. Pinned files are exempt from phase 6 and phase 8 eviction.
func (r *Router) phasePinnedFloor(state *State) {
	floor := r.cfg.PinnedFloor()
	for _, file := range r.cfg.Pinned {
		if state.Scores[file] < floor {
			state.Scores[file] = floor
		}
	}
}

// phaseDemoted halves demoted files' scores. Pinned wins over demoted.
func (r *Router) phaseDemoted(state *State) {
	for _, file := range r.cfg.Demoted {
		if r.cfg.IsPinned(file) {
			continue
		}
		if score, ok := state.Scores[file]; ok {
			state.Scores[file] = Clamp(score*r.cfg.DemotedPenalty, r.cfg.ScoreCeiling)
		}
	}
}

// phasePredictor applies the pre-warm model: a bounded additive bonus for
// the top predictions so the predictor cannot unilaterally promote a file
// to hot.
func (r *Router) phasePredictor(state *State, prompt string, lastHot []string, result *RoutingResult) {
	if r.predictor == nil {
		return
	}
	phaseStart := r.clock.Now()
	predictions := r.predictor.Predict(prompt, lastHot)

	for i, p := range predictions {
		if i >= r.cfg.PredictorTopN {
			break
		}
		if r.clock.Now().Sub(phaseStart) > r.cfg.PredictorBudget {
			result.Stats.PredictorPartial = true
			break
		}
		state.Scores[p.File] = Clamp(state.Scores[p.File]+r.cfg.PredictorBoost*p.Confidence, r.cfg.ScoreCeiling)
		result.Stats.PredictorApplied++
	}
}

// phaseSortAndTier runs the cache-stability sort, assigns tiers, enforces
// the hot/warm caps by demotion, and updates per-file streaks.
func (r *Router) phaseSortAndTier(state *State, result *RoutingResult) {
	type scoredFile struct {
		file   string
		score  float64
		streak int
	}

	entries := make([]scoredFile, 0, len(state.Scores))
	for file, score := range state.Scores {
		entries = append(entries, scoredFile{file: file, score: score, streak: state.Streaks[file]})
	}
	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].score != entries[j].score {
			return entries[i].score > entries[j].score
		}
		if entries[i].streak != entries[j].streak {
			return entries[i].streak > entries[j].streak
		}
		return entries[i].file < entries[j].file
	})

	hotCount, warmCount := 0, 0
	for _, e := range entries {
		tier := TierFor(e.score, r.cfg.HotThreshold, r.cfg.WarmThreshold)

		if tier == TierHot {
			if hotCount < r.cfg.MaxHot {
				hotCount++
			} else {
				tier = TierWarm // overflow demotion
			}
		}
		if tier == TierWarm {
			if r.cfg.IsPinned(e.file) {
				// Pinned files never fall below warm and don't consume the cap.
			} else if warmCount < r.cfg.MaxWarm {
				warmCount++
			} else {
				tier = TierCold
			}
		}
		if tier == TierCold && r.cfg.IsPinned(e.file) {
			tier = TierWarm
		}

		result.Tiers[e.file] = tier
		switch tier {
		case TierHot:
			result.Hot = append(result.Hot, e.file)
		case TierWarm:
			result.Warm = append(result.Warm, e.file)
		default:
			result.Cold = append(result.Cold, e.file)
		}
	}

	// Streaks: +1 when hot this turn, otherwise reset.
	for file := range state.Scores {
		if result.Tiers[file] == TierHot {
			state.Streaks[file]++
		} else {
			state.Streaks[file] = 0
		}
	}
	for file := range state.Streaks {
		if _, ok := state.Scores[file]; !ok {
			delete(state.Streaks, file)
		}
	}
}

func (r *Router) categoryOf(file string) config.Category {
	if cat, ok := r.fileCat[file]; ok {
		return cat
	}
	return categoryFromExtension(file)
}

// categoryFromExtension classifies files the keyword map doesn't cover.
func categoryFromExtension(file string) config.Category {
	switch strings.ToLower(filepath.Ext(file)) {
	case ".go", ".rs", ".py", ".js", ".ts", ".tsx", ".jsx", ".java", ".c", ".cpp", ".h", ".hpp":
		return config.CategoryCode
	case ".md", ".markdown":
		return config.CategoryMarkdown
	case ".txt", ".rst":
		return config.CategoryProse
	default:
		return config.CategoryMixed
	}
}
