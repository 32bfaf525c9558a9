package events

import (
	"context"
	"time"

	"github.com/enactgo/enact/activity"
)

// Type names a lifecycle notification. The values double as wire names for
// out-of-process subscribers.
type Type string

const (
	// WorkflowPreChange fires before a history entry is persisted.
	WorkflowPreChange Type = "workflow_pre_change"

	// WorkflowPostChange fires once a history entry has been persisted.
	WorkflowPostChange Type = "workflow_post_change"

	// WorkflowTransitioned fires for persisted transition entries.
	WorkflowTransitioned Type = "workflow_transitioned"

	// WorkflowCommented fires for persisted comment entries.
	WorkflowCommented Type = "workflow_commented"

	// WorkflowStarted fires when an entry puts an activity into its
	// workflow's start state.
	WorkflowStarted Type = "workflow_started"

	// WorkflowEnded fires when an entry puts an activity into one of its
	// workflow's end states.
	WorkflowEnded Type = "workflow_ended"
)

// Event carries a lifecycle notification and the history entry that caused
// it.
type Event struct {
	Type       Type            `json:"type"`
	WorkflowID string          `json:"workflow_id"`
	ActivityID string          `json:"activity_id"`
	Entry      *activity.Entry `json:"entry,omitempty"`
	OccurredAt time.Time       `json:"occurred_at"`
}

// Notifier receives lifecycle notifications. Delivery is best effort: the
// engine logs and discards notifier errors, a failed delivery never rolls
// back the persisted history entry. Apart from WorkflowPreChange, events are
// published only after the entry is durably persisted.
type Notifier interface {
	Publish(ctx context.Context, event *Event) error
}
