// Package hook implements the stdin/stdout JSON protocol between the host
// assistant and the attention router. One process per event; state lives on
// disk between invocations.
package hook

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"attnroute/internal/attention"
	"attnroute/internal/config"
	"attnroute/internal/learn"
	"attnroute/internal/logging"
	"attnroute/internal/plugin"
	"attnroute/internal/telemetry"
)

// Protocol event names.
const (
	EventSessionStart     = "session_start"
	EventUserPromptSubmit = "user_prompt_submit"
	EventStop             = "stop"
)

const (
	lockTimeout    = 500 * time.Millisecond
	lockStaleAfter = 30 * time.Second
	warmStartTopK  = 5
	warmStartBump  = 0.05
)

// Input is the host's JSON payload on stdin.
type Input struct {
	Event       string            `json:"event"`
	Prompt      string            `json:"prompt,omitempty"`
	SessionID   string            `json:"session_id,omitempty"`
	ProjectPath string            `json:"project_path,omitempty"`
	TurnID      string            `json:"turn_id,omitempty"`
	ToolCalls   []plugin.ToolCall `json:"tool_calls,omitempty"`
}

// Output is emitted on stdout: assembled context plus advisory strings.
type Output struct {
	Context string   `json:"context"`
	Events  []string `json:"events"`
}

// Runner wires the router, learners, and plugins for one hook invocation.
type Runner struct {
	Clock attention.Clock
}

// NewRunner returns a runner on the system clock.
func NewRunner() *Runner {
	return &Runner{Clock: attention.SystemClock{}}
}

// Run reads one event from stdin and writes the response to stdout.
// A malformed payload is a protocol violation: the error propagates and the
// process exits non-zero, which the host treats as "no context".
func (r *Runner) Run(stdin io.Reader, stdout io.Writer) error {
	raw, err := io.ReadAll(stdin)
	if err != nil {
		return fmt.Errorf("read stdin: %w", err)
	}

	var input Input
	if err := json.Unmarshal(raw, &input); err != nil {
		return fmt.Errorf("parse hook input: %w", err)
	}

	if telemetry.Disabled() {
		return writeOutput(stdout, &Output{})
	}

	var output *Output
	switch input.Event {
	case EventSessionStart:
		output, err = r.sessionStart(&input)
	case EventUserPromptSubmit:
		output, err = r.promptSubmit(&input)
	case EventStop:
		output, err = r.stop(&input)
	default:
		return fmt.Errorf("unknown hook event %q", input.Event)
	}
	if err != nil {
		return err
	}
	return writeOutput(stdout, output)
}

func writeOutput(stdout io.Writer, output *Output) error {
	if output.Events == nil {
		output.Events = []string{}
	}
	data, err := json.Marshal(output)
	if err != nil {
		return fmt.Errorf("marshal hook output: %w", err)
	}
	if _, err := stdout.Write(data); err != nil {
		return fmt.Errorf("write stdout: %w", err)
	}
	return nil
}

func (r *Runner) projectRoot(input *Input) string {
	if input.ProjectPath != "" {
		return input.ProjectPath
	}
	cwd, err := os.Getwd()
	if err != nil {
		return "."
	}
	return cwd
}

func (r *Runner) pluginContext(paths *telemetry.Paths, sessionID string) *plugin.Context {
	return &plugin.Context{Paths: paths, Clock: r.Clock, SessionID: sessionID}
}

// sessionStart seeds the attention state from the learner's warm-start list
// and announces active plugins.
func (r *Runner) sessionStart(input *Input) (*Output, error) {
	timer := logging.StartTimer(logging.CategoryHook, "sessionStart")
	defer timer.Stop()

	root := r.projectRoot(input)
	paths, err := telemetry.NewPaths(root)
	if err != nil {
		return nil, err
	}
	if err := paths.EnsureDirs(); err != nil {
		return nil, err
	}

	uc := config.LoadUserConfig(paths.UserConfigPath())
	cfg := config.Load(paths.KeywordsPath(), paths.OverridesPath())

	// Warm start: bias the first turn towards historically useful files.
	learner := learn.LoadLearner(paths.LearnedStatePath())
	state := attention.LoadState(paths.AttentionStatePath())
	seedScore := cfg.WarmThreshold + warmStartBump
	for _, file := range learner.WarmStartSeeds(warmStartTopK) {
		if state.Scores[file] < seedScore {
			state.Scores[file] = seedScore
		}
	}
	if err := state.Save(paths.AttentionStatePath()); err != nil {
		logging.Get(logging.CategoryHook).Warnw("cannot persist warm-started state", "err", err)
	}

	sessionID := input.SessionID
	if sessionID == "" {
		sessionID = uuid.NewString()
	}
	sessionData, _ := json.MarshalIndent(map[string]any{
		"session_id": sessionID,
		"started_at": r.Clock.Now().UTC().Format(time.RFC3339),
		"project":    root,
	}, "", "  ")
	if err := telemetry.AtomicWrite(paths.SessionStatePath(), sessionData); err != nil {
		logging.Get(logging.CategoryHook).Warnw("cannot persist session state", "err", err)
	}

	supervisor := plugin.NewSupervisor(r.pluginContext(paths, sessionID))
	supervisor.RegisterBuiltins(uc)
	messages := supervisor.OnSessionStart()

	return &Output{Events: messages}, nil
}

// promptSubmit is the latency-critical path: route the prompt against the
// stored state and emit the context blob.
func (r *Runner) promptSubmit(input *Input) (*Output, error) {
	timer := logging.StartTimer(logging.CategoryHook, "promptSubmit")
	defer timer.Stop()

	root := r.projectRoot(input)
	paths, err := telemetry.NewPaths(root)
	if err != nil {
		return nil, err
	}
	if err := paths.EnsureDirs(); err != nil {
		return nil, err
	}

	uc := config.LoadUserConfig(paths.UserConfigPath())
	cfg := config.Load(paths.KeywordsPath(), paths.OverridesPath())

	lock, err := telemetry.AcquireLock(paths.AttentionStatePath()+".lock", lockTimeout, lockStaleAfter)
	if err != nil {
		// Another session holds the state; degrade to empty context rather
		// than stall the host.
		logging.Get(logging.CategoryHook).Warnw("state locked, emitting empty context", "err", err)
		return &Output{}, nil
	}
	defer lock.Release()

	state := attention.LoadState(paths.AttentionStatePath())
	learner := learn.LoadLearner(paths.LearnedStatePath())
	predictor := learn.LoadPredictor(paths.PredictorModelPath(), paths.TurnsPath())

	supervisor := plugin.NewSupervisor(r.pluginContext(paths, input.SessionID))
	supervisor.RegisterBuiltins(uc)
	advisories := supervisor.OnPromptPre(input.Prompt)

	router := attention.NewRouter(cfg, root, r.Clock, learner, predictor, nil, nil)
	result := router.Route(state, input.Prompt)

	additions := supervisor.OnPromptPost(input.Prompt, result)

	// An I/O failure persisting state is non-fatal to this turn's output;
	// the next turn loads the previous committed state.
	if err := state.Save(paths.AttentionStatePath()); err != nil {
		logging.Get(logging.CategoryHook).Errorw("cannot persist attention state", "err", err)
	}

	var events []string
	events = append(events, advisories...)
	events = append(events, additions...)

	contextParts := make([]string, 0, 3)
	if len(advisories) > 0 {
		contextParts = append(contextParts, strings.Join(advisories, "\n"))
	}
	if result.Output != "" {
		contextParts = append(contextParts, result.Output)
	}
	if len(additions) > 0 {
		contextParts = append(contextParts, strings.Join(additions, "\n"))
	}

	return &Output{Context: strings.Join(contextParts, "\n"), Events: events}, nil
}

// stop runs the deferred post-turn work: telemetry, learner, predictor, and
// plugin stop hooks. The routing result was already delivered; nothing here
// may block the next turn's prompt hook beyond the state lock.
func (r *Runner) stop(input *Input) (*Output, error) {
	timer := logging.StartTimer(logging.CategoryHook, "stop")
	defer timer.Stop()

	root := r.projectRoot(input)
	paths, err := telemetry.NewPaths(root)
	if err != nil {
		return nil, err
	}
	if err := paths.EnsureDirs(); err != nil {
		return nil, err
	}

	uc := config.LoadUserConfig(paths.UserConfigPath())
	cfg := config.Load(paths.KeywordsPath(), paths.OverridesPath())

	supervisor := plugin.NewSupervisor(r.pluginContext(paths, input.SessionID))
	supervisor.RegisterBuiltins(uc)
	messages := supervisor.OnStop(&plugin.Turn{SessionID: input.SessionID, ToolCalls: input.ToolCalls})

	filesUsed := filesFromToolCalls(input.ToolCalls)

	state := attention.LoadState(paths.AttentionStatePath())
	var filesInjected []string
	for file, score := range state.Scores {
		if score >= cfg.WarmThreshold {
			filesInjected = append(filesInjected, file)
		}
	}

	injectedTokens := estimateInjected(state, cfg.HotThreshold, cfg.WarmThreshold)
	usedTokens := estimateUsed(input.ToolCalls)

	turnID := input.TurnID
	if turnID == "" {
		turnID = uuid.NewString()
	}
	record := telemetry.TurnRecord{
		TurnID:        turnID,
		SessionID:     input.SessionID,
		Project:       root,
		Timestamp:     r.Clock.Now().UTC(),
		PromptLength:  len(input.Prompt),
		PromptText:    telemetry.TrimPrompt(input.Prompt),
		FilesInjected: filesInjected,
		FilesUsed:     filesUsed,
		TokenEstimate: injectedTokens,
		WasteRatio:    telemetry.WasteRatio(injectedTokens, usedTokens),
	}
	if err := telemetry.AppendJSONL(paths.TurnsPath(), record); err != nil {
		logging.Get(logging.CategoryHook).Warnw("cannot append turn record", "err", err)
	}

	// The slow learners update concurrently, off the critical path.
	var g errgroup.Group
	g.Go(func() error {
		learner := learn.LoadLearner(paths.LearnedStatePath())
		learner.Observe(learn.TurnObservation{
			Prompt:        input.Prompt,
			FilesInjected: filesInjected,
			FilesUsed:     filesUsed,
		})
		if input.Prompt != "" {
			taskType := learner.Oracle().ClassifyTask(input.Prompt)
			learner.Oracle().RecordCost(taskType, injectedTokens)
		}
		learner.SaveSession(filesUsed)
		return learner.Save(paths.LearnedStatePath())
	})
	g.Go(func() error {
		predictor := learn.LoadPredictor(paths.PredictorModelPath(), paths.TurnsPath())
		predictor.Update(input.Prompt, filesUsed)
		return predictor.Save(paths.PredictorModelPath())
	})
	if err := g.Wait(); err != nil {
		logging.Get(logging.CategoryHook).Warnw("post-turn update failed", "err", err)
	}

	return &Output{Events: messages}, nil
}

func filesFromToolCalls(calls []plugin.ToolCall) []string {
	seen := map[string]bool{}
	var files []string
	for _, tc := range calls {
		if tc.Target == "" || seen[tc.Target] {
			continue
		}
		seen[tc.Target] = true
		files = append(files, tc.Target)
	}
	return files
}

// estimateInjected approximates the tokens the tiered context cost.
func estimateInjected(state *attention.State, hotThreshold, warmThreshold float64) int {
	tokens := 0
	for _, score := range state.Scores {
		switch {
		case score >= hotThreshold:
			tokens += 2000
		case score >= warmThreshold:
			tokens += 300
		}
	}
	return tokens
}

// estimateUsed approximates the tokens the assistant actually touched.
func estimateUsed(calls []plugin.ToolCall) int {
	tokens := 0
	for _, tc := range calls {
		tokens += telemetry.EstimateTokens(tc.Content)
		tokens += telemetry.EstimateTokens(tc.OldString)
		tokens += telemetry.EstimateTokens(tc.Command)
	}
	return tokens
}
