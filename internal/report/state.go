package report

// State is a step of report generation.
type State int

const (
	Idle State = iota
	LocatingSource
	Compressing
	Summarizing
	Aggregating
	Done
	Failed
)

var stateNames = [...]string{
	Idle:           "idle",
	LocatingSource: "locating_source",
	Compressing:    "compressing",
	Summarizing:    "summarizing",
	Aggregating:    "aggregating",
	Done:           "done",
	Failed:         "failed",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "unknown"
	}
	return stateNames[s]
}

// Terminal reports whether no transition can follow s.
func (s State) Terminal() bool {
	return s == Done || s == Failed
}
