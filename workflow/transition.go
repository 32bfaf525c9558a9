package workflow

import "github.com/google/uuid"

// Transition is a directed edge between two states of the same workflow.
type Transition struct {
	ID          string
	WorkflowID  string
	Name        string
	Description string

	FromStateID string
	ToStateID   string

	// Users and Groups record who may execute this transition. Enforcement is
	// left to the embedding application.
	Users  []string
	Groups []string
}

func NewTransition(workflowID, name, fromStateID, toStateID string) *Transition {
	return &Transition{
		ID:          uuid.NewString(),
		WorkflowID:  workflowID,
		Name:        name,
		FromStateID: fromStateID,
		ToStateID:   toStateID,
	}
}
