package client

import (
	"fmt"

	"github.com/enactgo/enact/workflow"
)

type ActivationErrorKind int

const (
	// ActivationNotInDefinition means the workflow already left the
	// definition status.
	ActivationNotInDefinition ActivationErrorKind = iota

	// ActivationInvalidGraph means the workflow's graph failed structural
	// validation.
	ActivationInvalidGraph
)

// ActivationError is returned when a workflow cannot be activated.
type ActivationError struct {
	WorkflowID string
	Kind       ActivationErrorKind

	// Result holds the validation report when Kind is
	// ActivationInvalidGraph.
	Result *workflow.ValidationResult
}

func (e *ActivationError) Error() string {
	switch e.Kind {
	case ActivationNotInDefinition:
		return fmt.Sprintf("cannot activate workflow %s: only workflows in the definition status may be activated", e.WorkflowID)
	default:
		return fmt.Sprintf("cannot activate workflow %s: the workflow does not validate", e.WorkflowID)
	}
}

type StartErrorKind int

const (
	StartAlreadyStarted StartErrorKind = iota
	StartAlreadyCompleted
	StartNoSingleStartState
)

// StartError is returned when an activity cannot be started.
type StartError struct {
	ActivityID string
	Kind       StartErrorKind
}

func (e *StartError) Error() string {
	switch e.Kind {
	case StartAlreadyStarted:
		return fmt.Sprintf("cannot start activity %s: already started", e.ActivityID)
	case StartAlreadyCompleted:
		return fmt.Sprintf("cannot start activity %s: already completed", e.ActivityID)
	default:
		return fmt.Sprintf("cannot start activity %s: cannot find single start state", e.ActivityID)
	}
}

type ProgressErrorKind int

const (
	// ProgressNotStarted means the activity has no history yet.
	ProgressNotStarted ProgressErrorKind = iota

	// ProgressWrongState means the transition does not originate in the
	// activity's current state.
	ProgressWrongState
)

// ProgressError is returned when a transition cannot be taken.
type ProgressError struct {
	ActivityID   string
	TransitionID string
	Kind         ProgressErrorKind
}

func (e *ProgressError) Error() string {
	switch e.Kind {
	case ProgressNotStarted:
		return fmt.Sprintf("cannot progress activity %s: start the workflow before attempting to transition", e.ActivityID)
	default:
		return fmt.Sprintf("cannot progress activity %s: transition %s does not originate in the current state", e.ActivityID, e.TransitionID)
	}
}

// CommentError is returned when a comment cannot be added.
type CommentError struct {
	ActivityID string
}

func (e *CommentError) Error() string {
	return fmt.Sprintf("cannot comment on activity %s: cannot add an empty comment", e.ActivityID)
}
