package metrickeys

const (
	Prefix = "enact."

	// Workflows
	WorkflowCreated   = Prefix + "workflow.created"
	WorkflowActivated = Prefix + "workflow.activated"
	WorkflowRetired   = Prefix + "workflow.retired"

	// Activities
	ActivityCreated   = Prefix + "activity.created"
	ActivityStarted   = Prefix + "activity.started"
	ActivityCompleted = Prefix + "activity.completed"

	// History
	TransitionTaken = Prefix + "history.transition"
	CommentAdded    = Prefix + "history.comment"
	ForceStopped    = Prefix + "history.force_stop"
)

// Tag names
const (
	// Backend being used
	Backend = "backend"

	WorkflowName = "workflow"
)
