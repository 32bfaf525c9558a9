package activity

import (
	"time"

	"github.com/google/uuid"
)

// Activity is one enactment of a workflow: a single subject progressing
// through the workflow's graph. Its position is not stored on the activity
// itself, it is derived from the newest history entry.
type Activity struct {
	ID         string
	WorkflowID string

	// Subject is the external key of the thing being tracked, for example an
	// order or document ID. Informational only.
	Subject string

	CreatedBy string
	CreatedAt time.Time

	// CompletedAt is set when the activity reaches an end state or is force
	// stopped. An activity with a non-nil CompletedAt is terminal.
	CompletedAt *time.Time
}

func NewActivity(now time.Time, workflowID, subject, createdBy string) *Activity {
	return &Activity{
		ID:         uuid.NewString(),
		WorkflowID: workflowID,
		Subject:    subject,
		CreatedBy:  createdBy,
		CreatedAt:  now,
	}
}

// Completed reports whether the activity is terminal.
func (a *Activity) Completed() bool {
	return a.CompletedAt != nil
}
