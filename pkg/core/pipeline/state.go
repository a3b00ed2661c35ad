package pipeline

import "fmt"

// State is a step of a pipeline run.
type State string

const (
	StateIdle        State = "idle"
	StateLoading     State = "loading"
	StateIndexing    State = "indexing"
	StateExtracting  State = "extracting"
	StateCalculating State = "calculating"
	StateAnalyzing   State = "analyzing"
	StateVerifying   State = "verifying"
	StateDistilling  State = "distilling"
	StateDone        State = "done"
	StateFailed      State = "failed"
)

// transitions lists the legal successors of each state. Done and Failed are
// absorbing. Only Loading and Extracting may fail a run; every other stage
// degrades to a placeholder instead.
var transitions = map[State][]State{
	StateIdle:        {StateLoading},
	StateLoading:     {StateIndexing, StateFailed},
	StateIndexing:    {StateExtracting},
	StateExtracting:  {StateCalculating, StateFailed},
	StateCalculating: {StateAnalyzing},
	StateAnalyzing:   {StateVerifying},
	StateVerifying:   {StateDistilling},
	StateDistilling:  {StateDone},
}

// CanTransition reports whether from -> to is legal.
func CanTransition(from, to State) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// machine tracks one run. failedAt records the stage that moved it to Failed.
type machine struct {
	state    State
	failedAt State
}

func newMachine() *machine { return &machine{state: StateIdle} }

func (m *machine) advance(to State) error {
	if !CanTransition(m.state, to) {
		return fmt.Errorf("illegal transition %s -> %s", m.state, to)
	}
	if to == StateFailed {
		m.failedAt = m.state
	}
	m.state = to
	return nil
}
