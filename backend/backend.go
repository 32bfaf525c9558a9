package backend

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/enactgo/enact/activity"
	"github.com/enactgo/enact/backend/metrics"
	"github.com/enactgo/enact/workflow"
)

var (
	ErrWorkflowNotFound   = errors.New("workflow not found")
	ErrStateNotFound      = errors.New("state not found")
	ErrTransitionNotFound = errors.New("transition not found")
	ErrActivityNotFound   = errors.New("activity not found")

	// ErrRelationNotFound is returned when no workflow has been assigned to
	// the given object or object type.
	ErrRelationNotFound = errors.New("no workflow assigned")

	// ErrRelationExists is returned when an object already has a workflow
	// assigned.
	ErrRelationExists = errors.New("workflow already assigned")

	// ErrConflict is returned by AppendHistory when the history head moved
	// after the caller read it. The caller lost a race and has to re-read the
	// current state before retrying.
	ErrConflict = errors.New("history head changed")
)

const TracerName = "enact"

// Backend is the persistence collaborator the engine runs against. It is a
// plain store: all sequencing and validation rules live in the client, except
// for the head check in AppendHistory which has to be atomic with the insert.
type Backend interface {
	// CreateWorkflow persists a new workflow definition.
	CreateWorkflow(ctx context.Context, wf *workflow.Workflow) error

	// GetWorkflow returns the workflow with the given ID
	GetWorkflow(ctx context.Context, workflowID string) (*workflow.Workflow, error)

	// SaveWorkflow persists status changes of an existing workflow
	SaveWorkflow(ctx context.Context, wf *workflow.Workflow) error

	// CreateState adds a state to a workflow's graph
	CreateState(ctx context.Context, s *workflow.State) error

	// CreateTransition adds a transition to a workflow's graph
	CreateTransition(ctx context.Context, t *workflow.Transition) error

	// GetStates returns all states of the given workflow
	GetStates(ctx context.Context, workflowID string) ([]*workflow.State, error)

	// GetTransitions returns all transitions of the given workflow
	GetTransitions(ctx context.Context, workflowID string) ([]*workflow.Transition, error)

	// GetTransition returns a single transition by ID
	GetTransition(ctx context.Context, transitionID string) (*workflow.Transition, error)

	// CreateActivity persists a new activity
	CreateActivity(ctx context.Context, a *activity.Activity) error

	// GetActivity returns the activity with the given ID
	GetActivity(ctx context.Context, activityID string) (*activity.Activity, error)

	// GetHistory returns the history of an activity, newest first
	GetHistory(ctx context.Context, activityID string) ([]*activity.Entry, error)

	// GetLatestEntry returns the newest history entry of an activity, or nil
	// when the history is empty
	GetLatestEntry(ctx context.Context, activityID string) (*activity.Entry, error)

	// AppendHistory appends an entry to an activity's history. In a single
	// transaction it verifies that the newest entry's ID still equals
	// expectedHeadID ("" for an empty history), inserts the entry, and, when
	// completedAt is given, stamps the activity's completion time unless it is
	// already set. Returns ErrConflict when the head check fails.
	AppendHistory(ctx context.Context, activityID, expectedHeadID string, entry *activity.Entry, completedAt *time.Time) error

	// CompleteActivity stamps the activity's completion time without touching
	// the history. The first stamp wins, later calls are no-ops.
	CompleteActivity(ctx context.Context, activityID string, completedAt time.Time) error

	// AssignObjectWorkflow tags a single external object with a workflow.
	// Each object can carry at most one workflow.
	AssignObjectWorkflow(ctx context.Context, objectType, objectID, workflowID string) error

	// ObjectWorkflow returns the workflow ID assigned to an object
	ObjectWorkflow(ctx context.Context, objectType, objectID string) (string, error)

	// AssignModelWorkflow tags a whole object type with a workflow,
	// overwriting any previous assignment
	AssignModelWorkflow(ctx context.Context, objectType, workflowID string) error

	// ModelWorkflow returns the workflow ID assigned to an object type
	ModelWorkflow(ctx context.Context, objectType string) (string, error)

	// Tracer returns the configured tracer for the backend
	Tracer() trace.Tracer

	// Metrics returns the configured metrics client for the backend
	Metrics() metrics.Client

	// Options returns the configured options for the backend
	Options() *Options

	// Close closes any underlying resources
	Close() error
}
