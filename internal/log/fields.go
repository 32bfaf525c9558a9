package log

const (
	NamespaceKey = "enact"

	WorkflowIDKey   = NamespaceKey + ".workflow.id"
	WorkflowNameKey = NamespaceKey + ".workflow.name"
	StatusKey       = NamespaceKey + ".workflow.status"

	StateIDKey      = NamespaceKey + ".state.id"
	TransitionIDKey = NamespaceKey + ".transition.id"

	ActivityIDKey = NamespaceKey + ".activity.id"
	SubjectKey    = NamespaceKey + ".activity.subject"

	EntryIDKey   = NamespaceKey + ".entry.id"
	EntryTypeKey = NamespaceKey + ".entry.type"

	EventTypeKey = NamespaceKey + ".event.type"

	UserKey = NamespaceKey + ".user"
)
