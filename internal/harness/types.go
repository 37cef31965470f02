package harness

// Trace entry types.
const (
	EntryFold   = "fold"
	EntryEffect = "effect"
)

// TraceEntry is one line of a condensed trace.
//
// Consecutive folds with the same result and state kinds collapse into one
// entry, so the trace does not depend on how many ticks happened to run
// before a cancel.
type TraceEntry struct {
	Type   string `json:"type"`
	Result string `json:"result,omitempty"`
	State  string `json:"state,omitempty"`
	Effect string `json:"effect,omitempty"`
}

// Summary is what assertions are evaluated against.
type Summary struct {
	// FinalState and FinalPercent describe the state after the last fold.
	FinalState   string `json:"final_state"`
	FinalPercent int    `json:"final_percent,omitempty"`

	// States lists state kinds in order, without consecutive repeats,
	// starting with the initial state.
	States []string `json:"states"`

	// Results and Effects count recorded kinds.
	Results map[string]int `json:"results"`
	Effects map[string]int `json:"effects"`

	// Launches is the number of download jobs started.
	Launches int64 `json:"launches"`
}

// Result is the outcome of a scenario run.
type Result struct {
	// Pass is true when every step completed and every assertion held.
	Pass bool `json:"pass"`

	// FeatureID is the instance id the run was journaled under.
	FeatureID string `json:"feature_id"`

	Trace   []TraceEntry `json:"trace"`
	Summary Summary      `json:"summary"`

	// Errors contains step and assertion failures. Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceEntry{},
		Errors: []string{},
		Summary: Summary{
			States:  []string{},
			Results: make(map[string]int),
			Effects: make(map[string]int),
		},
	}
}

// AddError records a failure and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// addFold appends a fold, merging it into the previous entry when both
// kinds match.
func (r *Result) addFold(result, state string) {
	if n := len(r.Trace); n > 0 {
		last := r.Trace[n-1]
		if last.Type == EntryFold && last.Result == result && last.State == state {
			return
		}
	}
	r.Trace = append(r.Trace, TraceEntry{Type: EntryFold, Result: result, State: state})
}

func (r *Result) addEffect(effect string) {
	r.Trace = append(r.Trace, TraceEntry{Type: EntryEffect, Effect: effect})
}
