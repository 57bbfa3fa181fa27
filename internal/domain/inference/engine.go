package inference

import (
	"sort"
	"time"

	"github.com/cdss/cdss/internal/rules"
)

// StateUndetermined is recorded for a category when none of its rules match.
// It is an explicit fact value: guards testing for it match, guards expecting
// a concrete state do not.
const StateUndetermined = "Undetermined"

// CategoryResult is one derived category state.
type CategoryResult struct {
	Category string `json:"category"`
	State    string `json:"state"`
}

// Recommendation is the output of one fired procedural rule.
type Recommendation struct {
	Rule    string   `json:"rule"`
	Actions []string `json:"actions"`
}

// Result is a complete rule evaluation for one patient snapshot.
type Result struct {
	Snapshot        time.Time         `json:"snapshot"`
	Facts           map[string]string `json:"facts"`
	Categories      []CategoryResult  `json:"categories"`
	Recommendations []Recommendation  `json:"recommendations"`
}

// matches reports whether every equality in the condition holds over facts.
func matches(cond rules.Condition, facts map[string]string) bool {
	for key, want := range cond {
		if facts[key] != want {
			return false
		}
	}
	return true
}

// Evaluate derives category states and recommendations from the seeded facts.
// Categories evaluate in declaration order, their rules in ascending priority
// with first match winning; each category's state is fed back into the facts
// map so later categories can depend on it. Every matching procedural rule
// fires. Evaluation is pure: identical inputs give identical results.
func Evaluate(rb *rules.Rulebook, seed map[string]string) *Result {
	facts := make(map[string]string, len(seed))
	for k, v := range seed {
		facts[k] = v
	}

	byCategory := make(map[string][]rules.CombinationRule)
	for _, r := range rb.CombinationRules {
		byCategory[r.Category] = append(byCategory[r.Category], r)
	}

	var categories []CategoryResult
	for _, cat := range rb.Categories() {
		candidates := byCategory[cat]
		sort.SliceStable(candidates, func(i, j int) bool {
			return candidates[i].Priority < candidates[j].Priority
		})

		state := StateUndetermined
		for _, r := range candidates {
			if matches(r.When, facts) {
				state = r.State
				break
			}
		}
		facts[cat] = state
		categories = append(categories, CategoryResult{Category: cat, State: state})
	}

	var recs []Recommendation
	for _, r := range rb.ProceduralRules {
		if matches(r.When, facts) {
			recs = append(recs, Recommendation{Rule: r.Name, Actions: r.Actions})
		}
	}

	return &Result{
		Facts:           facts,
		Categories:      categories,
		Recommendations: recs,
	}
}
