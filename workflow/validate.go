package workflow

// ValidationResult is the full report of a Validate run. Workflow-level
// problems end up in WorkflowErrors, per-node and per-edge problems are keyed
// by the offending entity's ID.
type ValidationResult struct {
	WorkflowErrors []string

	stateErrors      map[string][]string
	transitionErrors map[string][]string
}

// Valid reports whether the graph passed every check.
func (r *ValidationResult) Valid() bool {
	return len(r.WorkflowErrors) == 0 && len(r.stateErrors) == 0 && len(r.transitionErrors) == 0
}

// StateErrors returns the problems recorded for the given state, or an empty
// slice when there are none.
func (r *ValidationResult) StateErrors(stateID string) []string {
	return r.stateErrors[stateID]
}

// TransitionErrors returns the problems recorded for the given transition, or
// an empty slice when there are none.
func (r *ValidationResult) TransitionErrors(transitionID string) []string {
	return r.transitionErrors[transitionID]
}

func (r *ValidationResult) addStateError(stateID, msg string) {
	r.stateErrors[stateID] = append(r.stateErrors[stateID], msg)
}

func (r *ValidationResult) addTransitionError(transitionID, msg string) {
	r.transitionErrors[transitionID] = append(r.transitionErrors[transitionID], msg)
}

// Validate checks the structure of a workflow graph and returns the complete
// report. Every check runs, nothing short-circuits, so a single run surfaces
// all problems at once:
//
//   - there must be exactly one start state
//   - there must be at least one end state
//   - every transition must connect two states of this workflow
//   - a non-start state without incoming transitions is orphaned
//   - a non-end state without outgoing transitions is a dead end
//
// Only local degree checks are performed. A cluster of states connected among
// themselves but unreachable from the start state still validates.
func Validate(wf *Workflow, states []*State, transitions []*Transition) *ValidationResult {
	r := &ValidationResult{
		stateErrors:      map[string][]string{},
		transitionErrors: map[string][]string{},
	}

	byID := make(map[string]*State, len(states))
	starts, ends := 0, 0
	for _, s := range states {
		byID[s.ID] = s
		if s.IsStartState {
			starts++
		}
		if s.IsEndState {
			ends++
		}
	}

	if starts != 1 {
		r.WorkflowErrors = append(r.WorkflowErrors, "there must be exactly one start state")
	}

	if ends < 1 {
		r.WorkflowErrors = append(r.WorkflowErrors, "there must be at least one end state")
	}

	incoming := map[string]int{}
	outgoing := map[string]int{}
	for _, t := range transitions {
		from, fromOk := byID[t.FromStateID]
		to, toOk := byID[t.ToStateID]

		if !fromOk || from.WorkflowID != wf.ID {
			r.addTransitionError(t.ID, "transition comes from a state outside this workflow")
		} else {
			outgoing[from.ID]++
		}

		if !toOk || to.WorkflowID != wf.ID {
			r.addTransitionError(t.ID, "transition leads to a state outside this workflow")
		} else {
			incoming[to.ID]++
		}
	}

	for _, s := range states {
		if incoming[s.ID] == 0 && !s.IsStartState {
			r.addStateError(s.ID, "state is orphaned, there is no way to reach it in the current topology")
		}

		if outgoing[s.ID] == 0 && !s.IsEndState {
			r.addStateError(s.ID, "state is a dead end, it is not an end state and has no exit transition")
		}
	}

	return r
}
