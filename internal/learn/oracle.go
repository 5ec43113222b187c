package learn

import (
	"strings"
)

// TaskType classifies the kind of work a prompt asks for.
type TaskType string

const (
	TaskRefactor    TaskType = "refactor"
	TaskBugFix      TaskType = "bug_fix"
	TaskFeature     TaskType = "feature"
	TaskReview      TaskType = "review"
	TaskExploration TaskType = "exploration"
	TaskConfig      TaskType = "config"
)

var taskKeywords = []struct {
	taskType TaskType
	keywords []string
}{
	{TaskRefactor, []string{"refactor", "rename", "reorganize", "restructure", "cleanup", "simplify", "extract", "move"}},
	{TaskBugFix, []string{"fix", "bug", "error", "broken", "crash", "issue", "wrong", "fail", "problem"}},
	{TaskFeature, []string{"add", "implement", "create", "new", "feature", "build", "develop"}},
	{TaskReview, []string{"review", "check", "examine", "audit", "analyze"}},
	{TaskExploration, []string{"find", "search", "where", "how does", "what is", "explain", "show", "explore"}},
	{TaskConfig, []string{"config", "setting", "environment", "setup", "install", "deploy"}},
}

// CostEntry accumulates token cost observations for one task type.
type CostEntry struct {
	Tokens int `json:"tokens"`
	Count  int `json:"count"`
}

// Oracle classifies prompts into task types and tracks their average token
// cost, feeding the report command.
type Oracle struct {
	TaskCosts map[TaskType]*CostEntry `json:"task_costs"`
}

// NewOracle returns an empty oracle.
func NewOracle() *Oracle {
	return &Oracle{TaskCosts: map[TaskType]*CostEntry{}}
}

// ClassifyTask picks the task type with the most keyword hits. Unmatched
// prompts default to feature work.
func (o *Oracle) ClassifyTask(prompt string) TaskType {
	promptLower := strings.ToLower(prompt)

	best := TaskFeature
	bestCount := 0
	for _, entry := range taskKeywords {
		count := 0
		for _, kw := range entry.keywords {
			if strings.Contains(promptLower, kw) {
				count++
			}
		}
		if count > bestCount {
			best = entry.taskType
			bestCount = count
		}
	}
	return best
}

// RecordCost adds one observed turn cost for a task type.
func (o *Oracle) RecordCost(taskType TaskType, tokens int) {
	entry := o.TaskCosts[taskType]
	if entry == nil {
		entry = &CostEntry{}
		o.TaskCosts[taskType] = entry
	}
	entry.Tokens += tokens
	entry.Count++
}

// EstimateCost returns the average observed token cost for a task type, or
// false when nothing has been recorded.
func (o *Oracle) EstimateCost(taskType TaskType) (int, bool) {
	entry := o.TaskCosts[taskType]
	if entry == nil || entry.Count == 0 {
		return 0, false
	}
	return entry.Tokens / entry.Count, true
}
