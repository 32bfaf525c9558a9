package workflow

import (
	"time"

	"github.com/google/uuid"
)

// Status describes where a workflow is in its lifecycle.
type Status int

const (
	// StatusDefinition is the initial status. Only workflows in definition may
	// have their graph edited or be activated.
	StatusDefinition Status = iota

	// StatusActive workflows accept new activities. Their graph must not be
	// modified anymore, running activities depend on it.
	StatusActive

	// StatusRetired workflows accept no new activities. Retirement is
	// irreversible.
	StatusRetired
)

func (s Status) String() string {
	switch s {
	case StatusDefinition:
		return "Definition"
	case StatusActive:
		return "Active"
	case StatusRetired:
		return "Retired"
	default:
		return "Unknown"
	}
}

// Workflow is a named directed graph of states and transitions describing a
// business process. The graph itself is held in the associated State and
// Transition records.
type Workflow struct {
	ID          string
	Name        string
	Description string
	Status      Status
	CreatedBy   string
	CreatedAt   time.Time
}

func NewWorkflow(now time.Time, name, description, createdBy string) *Workflow {
	return &Workflow{
		ID:          uuid.NewString(),
		Name:        name,
		Description: description,
		Status:      StatusDefinition,
		CreatedBy:   createdBy,
		CreatedAt:   now,
	}
}

// CanActivate reports whether the workflow's status permits activation. The
// structural checks happen separately, see Validate.
func (w *Workflow) CanActivate() bool {
	return w.Status == StatusDefinition
}
