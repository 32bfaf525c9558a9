package workflow

import (
	"time"

	"github.com/google/uuid"
)

// Units for a state's residency estimate.
const (
	Second = time.Second
	Minute = time.Minute
	Hour   = time.Hour
	Day    = 24 * time.Hour
	Week   = 7 * 24 * time.Hour
)

// State is a node in a workflow graph. A state can be the single start node of
// its workflow, one of its end nodes, or neither.
type State struct {
	ID          string
	WorkflowID  string
	Name        string
	Description string

	IsStartState bool
	IsEndState   bool

	// EstimationValue and EstimationUnit describe how long an activity is
	// expected to stay in this state. A value of zero means no estimate.
	EstimationValue int
	EstimationUnit  time.Duration

	// Users and Groups record who may view an activity while it is in this
	// state. Enforcement is left to the embedding application.
	Users  []string
	Groups []string
}

func NewState(workflowID, name string) *State {
	return &State{
		ID:             uuid.NewString(),
		WorkflowID:     workflowID,
		Name:           name,
		EstimationUnit: Day,
	}
}

// DeadlineFrom returns the expected exit time for an activity entering this
// state at now, or nil when the state carries no estimate.
func (s *State) DeadlineFrom(now time.Time) *time.Time {
	if s.EstimationValue <= 0 {
		return nil
	}

	d := now.Add(time.Duration(s.EstimationValue) * s.EstimationUnit)
	return &d
}
